// Command ctxauth-server runs the context-based authentication HTTP surface
// over Redis and PostgreSQL.
//
// With -dev it needs neither: Redis is embedded through miniredis, users come
// from the config file's dev_users, and mail is written to the log.
package main

import (
	"context"
	"database/sql"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	ctxAuth "github.com/MrEthical07/ctxAuth"
	"github.com/MrEthical07/ctxAuth/httpapi"
	"github.com/MrEthical07/ctxAuth/internal/memdir"
	"github.com/MrEthical07/ctxAuth/mailer"
	otelexport "github.com/MrEthical07/ctxAuth/metrics/export/otel"
	promexport "github.com/MrEthical07/ctxAuth/metrics/export/prometheus"
	"github.com/MrEthical07/ctxAuth/storage/postgres"
	"github.com/alicebob/miniredis/v2"
	"github.com/gorilla/mux"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel/attribute"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

func main() {
	cfg, err := LoadConfig(os.Args[1:], os.Getenv)
	if errors.Is(err, flag.ErrHelp) {
		return
	}
	if err != nil {
		logrus.WithError(err).Fatal("invalid configuration")
	}

	logger, err := newLogger(cfg)
	if err != nil {
		logrus.WithError(err).Fatal("invalid log level")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.WithError(err).Fatal("server stopped")
	}
}

func newLogger(cfg Config) (*logrus.Logger, error) {
	logger := logrus.New()
	level, err := logrus.ParseLevel(cfg.LogLevel)
	if err != nil {
		return nil, err
	}
	logger.SetLevel(level)
	if cfg.LogFormat == "json" {
		logger.SetFormatter(&logrus.JSONFormatter{})
	}
	return logger, nil
}

func run(ctx context.Context, cfg Config, logger *logrus.Logger) error {
	a, err := newApp(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer a.Close()

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           a.handler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.WithFields(logrus.Fields{"addr": cfg.Addr, "dev": cfg.Dev}).Info("server listening")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

// app owns everything the server opened.
type app struct {
	engine  *ctxAuth.Engine
	handler http.Handler
	reader  *sdkmetric.ManualReader

	closers []func()
}

func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
}

// errNoUserStore rejects a non-dev configuration with nowhere to read users.
var errNoUserStore = errors.New("database_url is required outside dev mode")

func newApp(ctx context.Context, cfg Config, logger *logrus.Logger) (_ *app, err error) {
	if !cfg.Dev && cfg.DatabaseURL == "" {
		return nil, errNoUserStore
	}

	a := &app{}
	defer func() {
		if err != nil {
			a.Close()
		}
	}()

	// -------- REDIS --------
	redisAddr := cfg.RedisAddr
	if redisAddr == "" && cfg.Dev {
		mr, err := miniredis.Run()
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, mr.Close)
		redisAddr = mr.Addr()
		logger.WithField("addr", redisAddr).Warn("using embedded redis")
	}
	rdb := redis.NewClient(&redis.Options{
		Addr:     redisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	a.closers = append(a.closers, func() { _ = rdb.Close() })

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		return nil, err
	}

	builder := ctxAuth.New().
		WithConfig(cfg.EngineConfig()).
		WithRedis(rdb).
		WithLogger(logger)

	// -------- USERS & STORES --------
	if cfg.DatabaseURL != "" {
		db, err := openDatabase(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, func() { _ = db.Close() })

		builder.
			WithUserDirectory(postgres.NewUserDirectory(db)).
			WithTrustStore(postgres.NewTrustStore(db)).
			WithRefreshTokenStore(postgres.NewRefreshTokenStore(db)).
			WithPreferenceStore(postgres.NewPreferenceStore(db))
	} else {
		// Dev only; guarded above.
		users := cfg.Users()
		if len(users) == 0 {
			users = append(users, ctxAuth.UserRecord{ID: "dev-user", Email: "dev@ctxauth.local", Name: "Dev"})
		}
		builder.WithUserDirectory(memdir.New(users...))
		logger.WithField("users", len(users)).Warn("using in-memory user directory")
	}

	// -------- MAIL --------
	if smtpCfg, ok := cfg.MailerConfig(); ok {
		m, err := mailer.NewSMTPMailer(smtpCfg)
		if err != nil {
			return nil, err
		}
		builder.WithMailer(m)
	} else {
		builder.WithMailer(mailer.NewLogMailer(logger))
		logger.Warn("smtp not configured, mail is logged")
	}

	if cfg.Audit {
		builder.WithAuditSink(ctxAuth.NewLogrusSink(logger.WithField("component", "audit")))
	}

	engine, err := builder.Build()
	if err != nil {
		return nil, err
	}
	a.engine = engine
	a.closers = append(a.closers, engine.Close)

	// -------- METRICS --------
	a.reader = sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(a.reader))
	a.closers = append(a.closers, func() { _ = provider.Shutdown(context.Background()) })

	exporter, err := otelexport.NewExporter(provider.Meter("github.com/MrEthical07/ctxAuth"), engine,
		otelexport.WithAttributes(attribute.String("app", cfg.AppName)))
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, func() { _ = exporter.Close() })

	// -------- ROUTES --------
	handlers := httpapi.NewHandlers(engine,
		httpapi.WithLogger(logger),
		httpapi.WithTrustForwarded(cfg.TrustForwarded),
	)

	r := mux.NewRouter()
	r.Use(httpapi.LoggingMiddleware(logger))
	r.HandleFunc("/server-status", serverStatus).Methods("GET")
	r.Handle("/metrics", promexport.NewCollector(engine).Handler()).Methods("GET")
	r.HandleFunc("/debug/otel-metrics", a.otelMetrics).Methods("GET")
	handlers.RegisterRoutes(r)
	if cfg.Dev {
		registerDevRoutes(r, engine, handlers, cfg.TrustForwarded)
	}

	a.handler = otelhttp.NewHandler(r, "ctxauth-server",
		otelhttp.WithMeterProvider(provider),
		otelhttp.WithFilter(func(req *http.Request) bool {
			return req.URL.Path != "/metrics" && req.URL.Path != "/server-status"
		}),
	)
	return a, nil
}

func openDatabase(ctx context.Context, dsn string) (*sql.DB, error) {
	db, err := postgres.Open(ctx, dsn)
	if err != nil {
		return nil, err
	}
	if err := postgres.Migrate(ctx, db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}

func serverStatus(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"message": "Server is up and running!"})
}

// otelMetrics dumps the OTel view of the engine and HTTP metrics.
func (a *app) otelMetrics(w http.ResponseWriter, r *http.Request) {
	var rm metricdata.ResourceMetrics
	if err := a.reader.Collect(r.Context(), &rm); err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"message": "Internal server error"})
		return
	}
	writeJSON(w, http.StatusOK, rm.ScopeMetrics)
}
