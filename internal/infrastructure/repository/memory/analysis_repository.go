package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/matchsight/matchsight/internal/domain/analysis"
	"github.com/matchsight/matchsight/internal/platform/id"
)

// AnalysisRepository is the in-memory analysis store used in tests and
// database-less deployments.
type AnalysisRepository struct {
	mu      sync.RWMutex
	byID    map[string]analysis.Analysis
	ids     id.Generator
	now     func() time.Time
}

func NewAnalysisRepository(ids id.Generator) *AnalysisRepository {
	if ids == nil {
		ids = id.NewRandomGenerator()
	}
	return &AnalysisRepository{
		byID: make(map[string]analysis.Analysis),
		ids:  ids,
		now:  time.Now,
	}
}

func (r *AnalysisRepository) Insert(_ context.Context, a analysis.Analysis) (analysis.Analysis, error) {
	if a.ID == "" {
		newID, err := r.ids.NewID()
		if err != nil {
			return analysis.Analysis{}, err
		}
		a.ID = newID
	}
	if a.CreatedAt.IsZero() {
		a.CreatedAt = r.now()
	}

	r.mu.Lock()
	r.byID[a.ID] = a
	r.mu.Unlock()
	return a, nil
}

func (r *AnalysisRepository) GetByID(_ context.Context, analysisID string) (analysis.Analysis, bool, error) {
	r.mu.RLock()
	a, ok := r.byID[analysisID]
	r.mu.RUnlock()
	return a, ok, nil
}

func (r *AnalysisRepository) FindByEventAndChecksum(_ context.Context, eventID, checksum string) (analysis.Analysis, bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var (
		best  analysis.Analysis
		found bool
	)
	for _, a := range r.byID {
		if a.EventID != eventID || a.Checksum != checksum {
			continue
		}
		if !found || a.FinishedAt.After(best.FinishedAt) {
			best = a
			found = true
		}
	}
	return best, found, nil
}

func (r *AnalysisRepository) ListByEvent(_ context.Context, eventID string) ([]analysis.Analysis, error) {
	r.mu.RLock()
	out := make([]analysis.Analysis, 0, 4)
	for _, a := range r.byID {
		if a.EventID == eventID {
			out = append(out, a)
		}
	}
	r.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, nil
}
