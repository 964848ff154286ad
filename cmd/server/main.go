// Command server runs the application backend: template registration,
// storage and event wiring, and the HTTP surface. Business logic lives in
// the internal packages; main only assembles them.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"formflow/internal/application/delegation"
	apphandler "formflow/internal/application/handler"
	"formflow/internal/application/service"
	"formflow/internal/application/store"
	"formflow/internal/audit"
	"formflow/internal/externaldata"
	"formflow/internal/externaldata/providers/nationalregistry"
	"formflow/internal/externaldata/providers/userprofile"
	jwttoken "formflow/internal/jwt_token"
	"formflow/internal/platform/config"
	"formflow/internal/platform/httpserver"
	"formflow/internal/platform/kafka"
	"formflow/internal/platform/logger"
	"formflow/internal/platform/metrics"
	"formflow/internal/platform/postgres"
	"formflow/internal/platform/redis"
	"formflow/internal/template"
	"formflow/internal/template/parentalleave"
	"formflow/internal/template/referencetemplate"
	httptransport "formflow/internal/transport/http"
	id "formflow/pkg/domain"
)

const providerTimeout = 10 * time.Second

func main() {
	cfg := config.FromEnv()
	log := logger.New(cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	m := metrics.New()

	// Storage: PostgreSQL when configured, in-memory otherwise.
	var applications store.Store = store.NewInMemory()
	health := map[string]httptransport.HealthChecker{}
	if cfg.DatabaseURL != "" {
		db, err := postgres.Open(cfg.DatabaseURL)
		if err != nil {
			log.Error("open postgres", "error", err)
			os.Exit(1)
		}
		defer db.Close()
		applications = store.NewPostgres(db)
		health["postgres"] = db.PingContext
	} else {
		log.Warn("DATABASE_URL not set, using in-memory application store")
	}

	// Delegation tokens: Redis when configured, in-memory otherwise.
	var tokens delegation.TokenStore = delegation.NewInMemory(config.DelegationTokenTTL)
	if cfg.RedisURL != "" {
		rdb, err := redis.New(cfg.RedisURL)
		if err != nil {
			log.Error("connect redis", "error", err)
			os.Exit(1)
		}
		defer rdb.Close()
		tokens = delegation.NewRedisStore(rdb, config.DelegationTokenTTL)
		health["redis"] = rdb.Health
	} else {
		log.Warn("REDIS_URL not set, using in-memory delegation tokens")
	}

	// Events: audit and notifications share one producer. Optional.
	var producer *kafka.Publisher
	if len(cfg.KafkaBrokers) > 0 {
		var err error
		producer, err = kafka.NewPublisher(ctx, cfg.KafkaBrokers, audit.Topic, service.NotificationsTopic)
		if err != nil {
			log.Error("connect kafka", "error", err)
			os.Exit(1)
		}
		defer producer.Close()
	} else {
		log.Warn("KAFKA_BROKERS not set, audit and notifications disabled")
	}

	caseworkers := make([]id.NationalID, 0, len(cfg.Caseworkers))
	for _, raw := range cfg.Caseworkers {
		cw, err := id.ParseNationalID(raw)
		if err != nil {
			log.Error("invalid caseworker national id", "value", raw, "error", err)
			os.Exit(1)
		}
		caseworkers = append(caseworkers, cw)
	}

	registry := template.NewRegistry()
	templates := []template.Template{
		parentalleave.New(parentalleave.Config{
			Caseworkers: caseworkers,
			Providers: []externaldata.Provider{
				nationalregistry.New(cfg.NationalRegistryURL, cfg.NationalRegistryAPIKey, providerTimeout),
				userprofile.New(cfg.UserProfileURL, providerTimeout),
			},
		}),
		referencetemplate.New(referencetemplate.Config{Reviewers: caseworkers}),
	}
	for _, tpl := range templates {
		if err := registry.Register(tpl); err != nil {
			log.Error("register template", "error", err)
			os.Exit(1)
		}
	}

	orchestrator, err := externaldata.NewOrchestrator(log, m, registry.Providers()...)
	if err != nil {
		log.Error("build external data orchestrator", "error", err)
		os.Exit(1)
	}

	svc := service.New(service.Config{
		Store:       applications,
		Templates:   registry,
		External:    orchestrator,
		Delegations: tokens,
		Audit:       audit.NewPublisher(producer, log),
		Notifier:    producer,
		Metrics:     m,
		Logger:      log,
	})

	router := httptransport.NewRouter(httptransport.Deps{
		Applications: apphandler.New(svc, log),
		Validator:    jwttoken.NewJWTService(cfg.JWTSigningKey, cfg.JWTIssuer),
		Logger:       log,
		Metrics:      m,
		Health:       health,
	})

	srv := httpserver.New(cfg.Addr, router)

	go func() {
		log.Info("starting formflow", "addr", cfg.Addr, "templates", registry.IDs())
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("server error", "error", err)
			stop()
		}
	}()

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("graceful shutdown failed", "error", err)
		os.Exit(1)
	}
	log.Info("server stopped")
}
