package app

import (
	"context"
	"net/http"
	"path"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/app"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/xenking/catalog-service/internal/domain/catalog"
	"github.com/xenking/catalog-service/internal/handler"
	"github.com/xenking/catalog-service/internal/storage/files"
	"github.com/xenking/catalog-service/internal/storage/postgres"
	"github.com/xenking/catalog-service/pkg/health"
	"github.com/xenking/catalog-service/pkg/httpmiddleware"
)

// uploadStore is a file intake backend that can also serve what it stored.
type uploadStore interface {
	handler.FileStore
	health.Pinger
	Handler() http.Handler
}

func newUploadStore(ctx context.Context, cfg *Config) (uploadStore, error) {
	switch cfg.Uploads.Backend {
	case BackendMinio:
		return files.NewMinio(ctx, files.MinioConfig{
			Endpoint:  cfg.Minio.Endpoint,
			AccessKey: cfg.Minio.AccessKey,
			SecretKey: cfg.Minio.SecretKey,
			Bucket:    cfg.Minio.Bucket,
			Secure:    cfg.Minio.Secure,
			URLPrefix: cfg.Uploads.URLPrefix,
		})
	default:
		return files.NewDisk(cfg.Uploads.Dir, cfg.Uploads.URLPrefix)
	}
}

// Run creates all dependencies, starts the HTTP server, and handles graceful
// shutdown. It is the single wiring point for the application.
func Run(ctx context.Context, lg *zap.Logger, m *app.Telemetry, cfg *Config) error {
	lg.Info("Initializing",
		zap.String("addr", cfg.Addr),
		zap.String("uploads", cfg.Uploads.Backend),
	)

	// PostgreSQL pool + migrations.
	pool, err := postgres.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		return errors.Wrap(err, "create db pool")
	}
	defer pool.Close()

	if err := postgres.RunMigrations(ctx, pool); err != nil {
		return errors.Wrap(err, "run migrations")
	}

	uploads, err := newUploadStore(ctx, cfg)
	if err != nil {
		return errors.Wrap(err, "create upload store")
	}

	// Health check service.
	healthSvc := health.New()
	healthSvc.AddReadinessCheck("postgres", 5*time.Second, health.PingCheck(pool))
	healthSvc.AddReadinessCheck("uploads", 5*time.Second, health.PingCheck(uploads))
	healthSvc.AddLivenessCheck("goroutines", time.Second, health.GoroutineCountCheck(10000))
	healthSvc.AddLivenessCheck("gc", time.Second, health.GCMaxPauseCheck(time.Second))
	healthSvc.Start(ctx, 10*time.Second)
	healthSvc.SetReady(true)

	// Domain services.
	products := postgres.NewProductRepository(pool)
	writer := catalog.NewWriter(products)
	reader := catalog.NewReader(products)

	// HTTP handlers.
	h, err := handler.NewHandler(
		handler.HandlerConfig{
			MaxUploadBytes: cfg.Uploads.MaxBytes,
			MaxFiles:       cfg.Uploads.MaxFiles,
			MeterProvider:  m.MeterProvider(),
		},
		writer,
		reader,
		uploads,
	)
	if err != nil {
		return errors.Wrap(err, "create handler")
	}

	// Mux: health endpoints, catalog API and stored images on one server.
	mux := http.NewServeMux()
	mux.HandleFunc("GET /livez", healthSvc.LiveEndpoint)
	mux.HandleFunc("GET /readyz", healthSvc.ReadyEndpoint)
	h.Register(mux)
	prefix := path.Join("/", cfg.Uploads.URLPrefix)
	mux.Handle("GET "+prefix+"/", http.StripPrefix(prefix, uploads.Handler()))
	routeFinder := httpmiddleware.MakeRouteFinder(mux)

	trustedProxies, err := httpmiddleware.ParseTrustedProxies(cfg.RateLimit.TrustedProxies)
	if err != nil {
		return errors.Wrap(err, "parse trusted proxies")
	}

	server := &http.Server{
		ReadHeaderTimeout: time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
		MaxHeaderBytes:    1 << 20,
		Addr:              cfg.Addr,
		Handler: httpmiddleware.Wrap(mux,
			httpmiddleware.InjectLogger(zctx.From(ctx)),
			httpmiddleware.Recovery(),
			httpmiddleware.RequestID(),
			httpmiddleware.CORS(httpmiddleware.CORSConfig{
				AllowOrigins:     cfg.CORS.Origins,
				AllowHeaders:     []string{"Content-Type", httpmiddleware.HeaderRequestID},
				ExposeHeaders:    []string{httpmiddleware.HeaderRequestID, "X-RateLimit-Limit", "X-RateLimit-Remaining", "X-RateLimit-Reset", "Retry-After"},
				AllowCredentials: cfg.CORS.AllowCredentials,
				MaxAge:           86400,
			}),
			httpmiddleware.RateLimitWithCleanup(ctx, httpmiddleware.RateLimitConfig{
				Max:            cfg.RateLimit.Max,
				Window:         cfg.RateLimit.Window,
				TrustedProxies: trustedProxies,
			}),
			httpmiddleware.Instrument("catalog-api", routeFinder, m),
			httpmiddleware.LogRequests(routeFinder),
			httpmiddleware.Labeler(routeFinder),
		),
	}

	// Graceful shutdown: wait for context cancellation, drain, then stop.
	shutdownDone := make(chan struct{})
	go func() {
		<-ctx.Done()
		healthSvc.SetReady(false)
		lg.Info("Readiness set to false, draining", zap.Duration("delay", cfg.Graceful.ReadinessDelay))
		time.Sleep(cfg.Graceful.ReadinessDelay)

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Graceful.ShutdownTimeout)
		defer cancel()

		lg.Info("Shutting down server", zap.Duration("timeout", cfg.Graceful.ShutdownTimeout))
		if err := server.Shutdown(shutdownCtx); err != nil {
			lg.Error("Server shutdown error", zap.Error(err))
		}
		healthSvc.Stop()
		close(shutdownDone)
	}()

	lg.Info("Server listening", zap.String("addr", cfg.Addr))
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return errors.Wrap(err, "server")
	}
	<-shutdownDone
	return nil
}
