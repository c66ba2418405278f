package memory

import (
	"context"
	"sync"
	"time"

	"github.com/matchsight/matchsight/internal/domain/auditlog"
)

// AuditLogRecorder buffers audit entries in memory. Useful for tests
// and deployments without a database.
type AuditLogRecorder struct {
	mu       sync.RWMutex
	system   []auditlog.SystemEntry
	analysis []auditlog.AnalysisEntry
	now      func() time.Time
}

func NewAuditLogRecorder() *AuditLogRecorder {
	return &AuditLogRecorder{now: time.Now}
}

func (r *AuditLogRecorder) RecordSystem(_ context.Context, entry auditlog.SystemEntry) error {
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = r.now()
	}

	r.mu.Lock()
	r.system = append(r.system, entry)
	r.mu.Unlock()
	return nil
}

func (r *AuditLogRecorder) RecordAnalysis(_ context.Context, entry auditlog.AnalysisEntry) error {
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = r.now()
	}

	r.mu.Lock()
	r.analysis = append(r.analysis, entry)
	r.mu.Unlock()
	return nil
}

// SystemEntries returns a copy of the recorded system entries.
func (r *AuditLogRecorder) SystemEntries() []auditlog.SystemEntry {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]auditlog.SystemEntry, len(r.system))
	copy(out, r.system)
	return out
}

// AnalysisEntries returns a copy of the recorded analysis entries.
func (r *AuditLogRecorder) AnalysisEntries() []auditlog.AnalysisEntry {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]auditlog.AnalysisEntry, len(r.analysis))
	copy(out, r.analysis)
	return out
}
