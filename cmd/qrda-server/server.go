package main

import (
	"context"
	"fmt"
	"net/http"
	"os"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/trace"

	"github.com/qrda/qrda-export/internal/config"
	"github.com/qrda/qrda-export/internal/domain/cqm"
	"github.com/qrda/qrda-export/internal/domain/export"
	"github.com/qrda/qrda-export/internal/domain/qdm"
	"github.com/qrda/qrda-export/internal/platform/auth"
	"github.com/qrda/qrda-export/internal/platform/blobstore"
	"github.com/qrda/qrda-export/internal/platform/db"
	"github.com/qrda/qrda-export/internal/platform/htmlreport"
	"github.com/qrda/qrda-export/internal/platform/middleware"
	"github.com/qrda/qrda-export/internal/platform/qrda"
	"github.com/qrda/qrda-export/internal/platform/telemetry"
)

const healthMessage = "QRDA Export Service is up"

func newLogger(env string) zerolog.Logger {
	if env == "development" {
		return zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).With().Timestamp().Logger()
	}
	return zerolog.New(os.Stdout).With().Timestamp().Logger()
}

// deps are the optional backends a server is wired with. Nil fields disable
// the matching feature.
type deps struct {
	runs     export.RunRepository
	store    blobstore.Store
	dbHealth db.Pinger
}

// newExportService wires the default renderers into a batch service.
func newExportService(cfg *config.Config, logger zerolog.Logger, tracer trace.Tracer, d deps) (*export.Service, error) {
	reg := qdm.DefaultRegistry

	html, err := htmlreport.NewPatientRenderer(reg)
	if err != nil {
		return nil, fmt.Errorf("patient report templates: %w", err)
	}
	summary, err := htmlreport.NewSummaryRenderer()
	if err != nil {
		return nil, fmt.Errorf("summary report templates: %w", err)
	}
	generator := export.NewGenerator(qrda.NewGenerator(cfg.OrgName, cfg.OrgOID, reg), html, tracer)

	opts := []export.ServiceOption{
		export.WithWorkers(cfg.ExportWorkers),
		export.WithTracer(tracer),
		export.WithLogger(logger),
	}
	if d.runs != nil {
		opts = append(opts, export.WithRunRepository(d.runs))
	}
	if d.store != nil {
		opts = append(opts, export.WithArchive(d.store))
	}
	return export.NewService(cqm.NewMeasureAssembler(reg), cqm.NewPatientBuilder(reg), generator, summary, opts...), nil
}

// newServer builds the Echo instance with every route and middleware.
func newServer(cfg *config.Config, logger zerolog.Logger, tracer trace.Tracer, svc *export.Service, d deps) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	// Global middleware
	e.Use(middleware.RequestID())
	e.Use(middleware.Recovery(logger))
	e.Use(middleware.Logger(logger))
	e.Use(telemetry.TracingMiddleware(tracer))
	e.Use(middleware.SecurityHeaders(!cfg.IsDev()))
	e.Use(middleware.BodyLimit(cfg.BodyLimit))
	e.Use(middleware.RequestTimeout(cfg.RequestTimeout, "/api/health", "/api/health/db"))

	e.GET("/api/health", func(c echo.Context) error {
		return c.String(http.StatusOK, healthMessage)
	})
	if d.dbHealth != nil {
		e.GET("/api/health/db", db.HealthHandler(d.dbHealth))
	}

	api := e.Group("/api")
	if cfg.AuthEnabled() {
		api.Use(auth.JWTMiddleware(auth.JWTConfig{
			Issuer:     cfg.AuthIssuer,
			Audience:   cfg.AuthAudience,
			SigningKey: []byte(cfg.AuthSigningKey),
			Skipper:    auth.AuthSkipper,
		}))
		api.Use(auth.RequireScopes(auth.AuthSkipper))
	}
	if cfg.RateLimitRPS > 0 {
		api.Use(middleware.RateLimit(middleware.RateLimitConfig{
			RequestsPerSecond: cfg.RateLimitRPS,
			BurstSize:         cfg.RateLimitBurst,
		}))
	}

	export.NewHandler(svc).RegisterRoutes(api)
	if d.store != nil {
		blobstore.NewHandler(d.store).RegisterRoutes(api)
	}
	return e
}

// openDeps connects the configured backends. The returned cleanup closes
// whatever was opened.
func openDeps(ctx context.Context, cfg *config.Config, logger zerolog.Logger, tracer trace.Tracer) (deps, func(), error) {
	var d deps
	var pool *pgxpool.Pool
	cleanup := func() {
		if pool != nil {
			pool.Close()
		}
	}

	if cfg.HistoryEnabled() {
		p, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns, db.WithTracer(tracer))
		if err != nil {
			return d, cleanup, fmt.Errorf("connect to database: %w", err)
		}
		pool = p
		d.runs = export.NewRunRepoPG(pool)
		d.dbHealth = pool
		logger.Info().Msg("connected to database, run history enabled")
	}

	switch cfg.ArchiveBackend {
	case config.ArchiveMemory:
		d.store = blobstore.NewInMemoryStore()
		logger.Info().Msg("in-memory artifact archive enabled")
	case config.ArchiveMinio:
		store, err := blobstore.NewMinioStore(ctx, blobstore.MinioConfig{
			Endpoint:  cfg.MinioEndpoint,
			AccessKey: cfg.MinioAccessKey,
			SecretKey: cfg.MinioSecretKey,
			Bucket:    cfg.MinioBucket,
			UseSSL:    cfg.MinioUseSSL,
		})
		if err != nil {
			return d, cleanup, fmt.Errorf("connect to minio: %w", err)
		}
		d.store = store
		logger.Info().Str("bucket", cfg.MinioBucket).Msg("minio artifact archive enabled")
	}
	return d, cleanup, nil
}

func newTracing(cfg *config.Config) (*telemetry.Provider, error) {
	return telemetry.NewProvider(telemetry.Config{
		Enabled:     cfg.TracingEnabled,
		Exporter:    cfg.TracingExporter,
		SampleRate:  cfg.TracingSampleRate,
		ServiceName: telemetry.DefaultServiceName,
	})
}
