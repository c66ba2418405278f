package app

import (
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"

	"github.com/matchsight/matchsight/external/apisports"
	"github.com/matchsight/matchsight/external/groq"
	"github.com/matchsight/matchsight/internal/config"
	"github.com/matchsight/matchsight/internal/domain/analysis"
	"github.com/matchsight/matchsight/internal/domain/auditlog"
	"github.com/matchsight/matchsight/internal/infrastructure/repository/memory"
	"github.com/matchsight/matchsight/internal/infrastructure/repository/postgres"
	"github.com/matchsight/matchsight/internal/interfaces/httpapi"
	"github.com/matchsight/matchsight/internal/platform/cache"
	idgen "github.com/matchsight/matchsight/internal/platform/id"
	"github.com/matchsight/matchsight/internal/platform/logging"
	"github.com/matchsight/matchsight/internal/platform/resilience"
	"github.com/matchsight/matchsight/internal/usecase"
)

func NewHTTPServer(cfg config.Config, logger *slog.Logger) (*http.Server, error) {
	zlog := logging.NewJSON(cfg.LogLevel)
	logging.SetDefault(zlog)

	var (
		analysisRepo analysis.Repository
		auditRepo    auditlog.Recorder
	)
	var db *sqlx.DB
	if cfg.DBEnabled {
		opened, err := openDB(cfg.DBURL)
		if err != nil {
			return nil, fmt.Errorf("open database: %w", err)
		}
		db = opened
		analysisRepo = postgres.NewAnalysisRepository(db)
		auditRepo = postgres.NewAuditLogRecorder(db)
	} else {
		analysisRepo = memory.NewAnalysisRepository(idgen.NewRandomGenerator())
		auditRepo = memory.NewAuditLogRecorder()
	}

	sportsClient := apisports.NewClient(apisports.ClientConfig{
		APIKey:          cfg.SportsAPIKey,
		FootballBaseURL: cfg.FootballBaseURL,
		Timeout:         cfg.SportsTimeout,
		CacheTTL:        cfg.SportsCacheTTL,
		Logger:          zlog,
		CircuitBreaker: resilience.CircuitBreakerConfig{
			Enabled:          cfg.SportsCircuitEnabled,
			FailureThreshold: cfg.SportsCircuitFailureCount,
			OpenTimeout:      cfg.SportsCircuitOpenTimeout,
			HalfOpenMaxReq:   cfg.SportsCircuitHalfOpenMax,
		},
	})

	groqClient := groq.NewClient(groq.ClientConfig{
		APIKey:        cfg.GroqAPIKey,
		Model:         cfg.GroqModel,
		FallbackModel: cfg.GroqFallbackModel,
		MaxRetries:    cfg.GroqMaxRetries,
		BaseTimeout:   cfg.GroqBaseTimeout,
		Temperature:   cfg.GroqTemperature,
		MaxTokens:     cfg.GroqMaxTokens,
		CircuitBreaker: resilience.CircuitBreakerConfig{
			Enabled:          cfg.GroqCircuitEnabled,
			FailureThreshold: cfg.GroqCircuitFailureCount,
			OpenTimeout:      cfg.GroqCircuitOpenTimeout,
			HalfOpenMaxReq:   cfg.GroqCircuitHalfOpenMax,
		},
	}, logger)

	eventResults := cache.NewStore(cfg.SportsCacheTTL)
	leagueCatalog := cache.NewStore(cfg.SportsCacheTTL)

	eventSvc := usecase.NewEventService(sportsClient, eventResults, zlog)
	leagueSvc := usecase.NewLeagueService(sportsClient, leagueCatalog, zlog)
	analysisSvc := usecase.NewAnalysisService(analysisRepo, auditRepo, groqClient, idgen.NewRandomGenerator(), zlog)

	handler := httpapi.NewHandler(eventSvc, leagueSvc, analysisSvc, logger)
	router := httpapi.NewRouter(handler, logger, cfg.SwaggerEnabled, cfg.CORSAllowedOrigins)

	server := &http.Server{
		Addr:         cfg.HTTPAddr,
		Handler:      router,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}

	if server.Addr == "" {
		return nil, fmt.Errorf("http server addr cannot be empty")
	}

	if db != nil {
		server.RegisterOnShutdown(func() { _ = db.Close() })
	}

	return server, nil
}

func openDB(dbURL string) (*sqlx.DB, error) {
	db, err := sqlx.Connect("postgres", dbURL)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(30 * time.Minute)
	return db, nil
}
