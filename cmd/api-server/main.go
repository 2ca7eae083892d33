// cmd/api-server/main.go
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"admissions-forms/internal/api"
	"admissions-forms/internal/common/camunda"
	"admissions-forms/internal/common/config"
	"admissions-forms/internal/common/database"
	"admissions-forms/internal/common/logger"
	"admissions-forms/internal/common/observability"
	"admissions-forms/internal/common/zoho"
	"admissions-forms/internal/events"
	"admissions-forms/internal/forms"
	"admissions-forms/internal/notify"
	"admissions-forms/internal/submissions"

	uss "admissions-forms/internal/workers/review/update-submission-status"
)

const eventTimeout = 30 * time.Second

func main() {
	cfg, err := config.Load()
	if err != nil {
		zap.NewExample().Fatal("config load failed", zap.Error(err))
	}

	zapLog := logger.New(cfg.Logging.Level, cfg.Logging.Format, cfg.Logging.Output)
	defer zapLog.Sync()
	log := logger.NewZapAdapter(zapLog)

	log.Info("Starting admissions forms API", map[string]interface{}{
		"version":     cfg.App.Version,
		"environment": cfg.App.Environment,
	})

	ctx := context.Background()

	obs, err := observability.New(cfg.App.Name)
	if err != nil {
		log.Warn("metrics provider unavailable", map[string]interface{}{"error": err.Error()})
	}
	serviceName := cfg.Tracing.ServiceName
	if serviceName == "" {
		serviceName = cfg.App.Name
	}
	tracer, err := observability.NewTracer(observability.TracingConfig{
		Enabled:     cfg.Tracing.Enabled,
		Endpoint:    cfg.Tracing.Endpoint,
		ServiceName: serviceName,
		SampleRatio: cfg.Tracing.SampleRatio,
	})
	if err != nil {
		log.Warn("tracing disabled", map[string]interface{}{"error": err.Error()})
	}

	// --- Init PostgreSQL with retry ---
	var pg *database.PostgresClient
	err = retryWithBackoff(func() error {
		var err error
		pg, err = database.NewPostgres(cfg.Database.Postgres)
		if err != nil {
			return err
		}
		return pg.Ping(ctx)
	}, 15, 2*time.Second, log, "PostgreSQL connection")
	if err != nil {
		zapLog.Fatal("postgres failed after retries", zap.Error(err))
	}
	defer pg.Close()
	log.Info("PostgreSQL connected successfully", nil)

	if len(os.Args) > 1 && os.Args[1] == "migrate" {
		if err := runMigrate(ctx, pg, os.Args[2:], log); err != nil {
			zapLog.Fatal("migration command failed", zap.Error(err))
		}
		return
	}

	if cfg.Database.Postgres.AutoMigrate {
		if err := pg.Migrate(ctx); err != nil {
			zapLog.Fatal("schema migration failed", zap.Error(err))
		}
	}

	// --- Init Redis with retry ---
	var rdb *database.RedisClient
	err = retryWithBackoff(func() error {
		var err error
		rdb, err = database.NewRedis(cfg.Database.Redis)
		if err != nil {
			return err
		}
		return rdb.Ping(ctx)
	}, 10, 2*time.Second, log, "Redis connection")
	if err != nil {
		zapLog.Fatal("redis failed after retries", zap.Error(err))
	}
	defer rdb.Close()
	log.Info("Redis connected successfully", nil)

	// --- Init Elasticsearch with retry ---
	var searchIndex *submissions.SearchIndex
	if cfg.Database.Elasticsearch.Enabled {
		var es *database.ElasticsearchClient
		err = retryWithBackoff(func() error {
			var err error
			es, err = database.NewElasticsearch(cfg.Database.Elasticsearch)
			if err != nil {
				return err
			}
			return es.Ping(ctx)
		}, 15, 2*time.Second, log, "Elasticsearch connection")
		if err != nil {
			zapLog.Fatal("elasticsearch failed after retries", zap.Error(err))
		}
		searchIndex = submissions.NewSearchIndex(es.Client, cfg.Search.Index, log)
		log.Info("Elasticsearch connected successfully", nil)
	}

	// --- Init Zeebe Client with retry ---
	var zeebe *camunda.Client
	if cfg.Camunda.Enabled {
		err = retryWithBackoff(func() error {
			var err error
			zeebe, err = camunda.NewClient(cfg.Camunda.BrokerAddress)
			return err
		}, 10, 2*time.Second, log, "Zeebe client initialization")
		if err != nil {
			zapLog.Fatal("zeebe client failed after retries", zap.Error(err))
		}
		defer zeebe.Close()
		log.Info("Zeebe client connected successfully", nil)
	}

	// --- Notifications ---
	senders, err := buildSenders(ctx, cfg, log)
	if err != nil {
		zapLog.Fatal("notification senders failed", zap.Error(err))
	}
	dispatcher := notify.NewDispatcher(senders, config.GetDuration(cfg.Notifications.Email.Timeout), log)

	// --- Event subscribers ---
	bus := events.NewBus(eventTimeout, log)
	if searchIndex != nil {
		bus.Subscribe(searchIndex)
	}
	if zeebe != nil {
		bus.Subscribe(events.NewZeebeNotifier(zeebe, config.GetDuration(cfg.Camunda.Timeout)))
	}
	if cfg.Integrations.Zoho.Enabled {
		bus.Subscribe(events.NewCRMSync(zoho.NewCRMClient(cfg.Integrations.Zoho.BaseURL, cfg.Integrations.Zoho.AuthToken)))
	}
	if sh := cfg.Integrations.Sheets; sh.Enabled {
		exporter, err := events.NewSheetsExporter(ctx, sh.CredentialsFile, sh.SpreadsheetID, sh.SheetName, sh.Endpoint)
		if err != nil {
			log.Warn("sheets export disabled", map[string]interface{}{"error": err.Error()})
		} else {
			bus.Subscribe(exporter)
		}
	}

	// --- Services ---
	var cache forms.Cache
	if cfg.Cache.Enabled {
		cache = forms.NewRedisCache(rdb.Client, config.GetDuration(cfg.Cache.FormTTL))
	}
	formsSvc := forms.NewService(forms.NewPostgresRepository(pg.DB), cache, forms.Options{
		SlugMaxAttempts:  cfg.Forms.SlugMaxAttempts,
		DefaultPageLimit: cfg.Forms.DefaultPageLimit,
		MaxPageLimit:     cfg.Forms.MaxPageLimit,
	}, log)

	deps := submissions.Deps{Notifier: dispatcher, Publisher: bus, Forms: formsSvc}
	if searchIndex != nil {
		deps.Search = searchIndex
	}
	submissionsSvc := submissions.NewService(submissions.NewPostgresRepository(pg.DB), deps, submissions.Options{
		DefaultPageLimit: cfg.Forms.DefaultPageLimit,
		MaxPageLimit:     cfg.Forms.MaxPageLimit,
		SMSPriorities:    smsPriorities(cfg.Notifications.SMS.PriorityThreshold),
		SignOff:          cfg.Notifications.Email.FromName,
		DisableAdminCopy: !cfg.Notifications.AdminCopy.Enabled,
	}, log)

	if cfg.Forms.SeedOnStartup {
		if err := seedForms(ctx, formsSvc, cfg.Forms.RegistryPath, log); err != nil {
			log.Warn("form registry seed failed", map[string]interface{}{"error": err.Error()})
		}
	}

	// --- Workers ---
	var workers []*camunda.CamundaWorker
	if wc := cfg.Workers[uss.TaskType]; zeebe != nil && wc.Enabled {
		handler := uss.NewHandler(uss.LoadConfig(wc), submissionsSvc, log)
		workers = append(workers, camunda.NewWorker(zeebe.GetClient(), uss.TaskType, wc.MaxJobsActive,
			config.GetDuration(wc.Timeout), handler, log))
	}

	// --- HTTP ---
	verifier, err := buildVerifier(cfg.Auth)
	if err != nil {
		zapLog.Fatal("token verifier failed", zap.Error(err))
	}

	var limiter *api.RateLimiter
	if cfg.RateLimit.Enabled {
		limiter = api.NewRateLimiter(rdb.Client, cfg.RateLimit.Requests, config.GetDuration(cfg.RateLimit.Window), log)
	}

	handler := api.NewHandler(formsSvc, submissionsSvc, verifier, log, api.Options{
		AllowedOrigins: cfg.Server.AllowedOrigins,
		TrustedProxies: cfg.Server.TrustedProxies,
		Production:     cfg.App.IsProduction(),
		MaxBodyBytes:   cfg.Server.MaxBodyBytes,
		StaffRoles:     cfg.Auth.StaffRoles,
		Tracer:         tracer,
		Operations:     obs,
		Limiter:        limiter,
	})

	router := chi.NewRouter()
	router.Get("/health", healthHandler)
	router.Get("/ready", readyHandler(map[string]func(context.Context) error{
		"postgres": pg.Ping,
		"redis":    rdb.Ping,
	}))
	router.Handle("/metrics", promhttp.Handler())
	router.Mount("/", handler.Routes())

	server := &http.Server{
		Addr:         cfg.Server.Addr(),
		Handler:      router,
		ReadTimeout:  config.GetDuration(cfg.Server.ReadTimeout),
		WriteTimeout: config.GetDuration(cfg.Server.WriteTimeout),
	}
	go func() {
		log.Info("HTTP server listening", map[string]interface{}{"addr": server.Addr})
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			zapLog.Fatal("HTTP server failed", zap.Error(err))
		}
	}()

	// --- Graceful Shutdown ---
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	log.Info("Shutdown signal received, draining...", nil)
	timeout := config.GetDuration(cfg.Server.ShutdownTimeout)
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("HTTP server shutdown failed", map[string]interface{}{"error": err.Error()})
	}
	for _, w := range workers {
		w.Stop()
	}
	if err := dispatcher.Wait(shutdownCtx); err != nil {
		log.Warn("pending notifications abandoned", map[string]interface{}{"error": err.Error()})
	}
	if err := bus.Wait(shutdownCtx); err != nil {
		log.Warn("pending events abandoned", map[string]interface{}{"error": err.Error()})
	}
	if err := tracer.Shutdown(shutdownCtx); err != nil {
		log.Warn("tracer shutdown failed", map[string]interface{}{"error": err.Error()})
	}
	if err := obs.Shutdown(shutdownCtx); err != nil {
		log.Warn("metrics shutdown failed", map[string]interface{}{"error": err.Error()})
	}

	log.Info("Admissions forms API stopped gracefully", nil)
}
