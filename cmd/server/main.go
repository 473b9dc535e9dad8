package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"kycore/internal/audit"
	"kycore/internal/auditlog"
	auditloghandler "kycore/internal/auditlog/handler"
	"kycore/internal/auditlog/tracer"
	consenthandler "kycore/internal/consent/handler"
	consentservice "kycore/internal/consent/service"
	consentstore "kycore/internal/consent/store"
	"kycore/internal/document"
	docstore "kycore/internal/document/store"
	jwttoken "kycore/internal/jwt_token"
	"kycore/internal/ledger"
	"kycore/internal/platform/config"
	"kycore/internal/platform/database"
	"kycore/internal/platform/health"
	"kycore/internal/platform/httpserver"
	"kycore/internal/platform/kafka"
	"kycore/internal/platform/kafka/producer"
	"kycore/internal/platform/logger"
	"kycore/internal/platform/metrics"
	"kycore/internal/platform/middleware"
	"kycore/internal/platform/redis"
)

// main wires high-level dependencies, exposes the HTTP router, and keeps the
// server lifecycle small. Business logic lives in the internal services.
func main() {
	cfg := config.FromEnv()
	log := logger.New()
	m := metrics.New()

	log.Info("initializing kycore",
		"addr", cfg.Addr,
		"environment", cfg.Environment,
	)

	// Backends are optional for local development: without Postgres the
	// service runs on in-memory stores, without Redis enrichment lookups
	// skip the cache, without Kafka audit events stay local.
	dbCfg := database.DefaultConfig()
	dbCfg.URL = cfg.DatabaseURL
	pool, err := database.New(dbCfg)
	if err != nil {
		log.Error("database init failed", "error", err)
		os.Exit(1)
	}

	redisCfg := redis.DefaultConfig()
	redisCfg.URL = cfg.RedisURL
	redisClient, err := redis.New(redisCfg)
	if err != nil {
		log.Error("redis init failed", "error", err)
		os.Exit(1)
	}

	var kafkaProducer *producer.Producer
	if cfg.KafkaBrokers != "" {
		producerCfg := producer.DefaultConfig()
		producerCfg.Brokers = cfg.KafkaBrokers
		kafkaProducer, err = producer.New(producerCfg, log)
		if err != nil {
			log.Error("kafka producer init failed", "error", err)
			os.Exit(1)
		}
	}

	auditOpts := []audit.PublisherOption{
		audit.WithAsyncBuffer(256),
		audit.WithPublisherLogger(log),
	}
	if kafkaProducer != nil {
		auditOpts = append(auditOpts, audit.WithSink(audit.NewKafkaSink(kafkaProducer, audit.DefaultTopic)))
	}
	auditor := audit.NewPublisher(audit.NewInMemoryStore(), auditOpts...)

	var consents consentstore.Store
	var documents docstore.Store
	if pool != nil {
		consents = consentstore.NewPostgres(pool.DB())
		documents = docstore.NewPostgres(pool.DB())
	} else {
		log.Warn("DATABASE_URL not set, using in-memory stores")
		consents = consentstore.NewInMemory()
		documents = docstore.NewInMemory()
	}

	consentSvc := consentservice.NewService(consents, ledger.NewStub(), auditor, log,
		consentservice.WithMetrics(m),
	)

	linkerOpts := []document.Option{document.WithMetrics(m)}
	if redisClient != nil {
		linkerOpts = append(linkerOpts, document.WithCache(redisClient, cfg.DocumentCacheTTL))
	}
	linker := document.NewLinker(documents, log, linkerOpts...)

	auditlogSvc := auditlog.NewService(consents, linker, log,
		auditlog.WithAuditor(auditor),
		auditlog.WithMetrics(m),
		auditlog.WithTracer(tracer.NewOTel()),
		auditlog.WithLedgerExplorerURL(cfg.LedgerExplorerURL),
		auditlog.WithPageSizes(cfg.AuditDefaultPageSize, cfg.AuditMaxPageSize),
	)

	jwtSvc := jwttoken.NewJWTService(cfg.JWTSigningKey, "kycore", "kycore-api")

	healthHandler := health.New(cfg.Environment)
	if pool != nil {
		healthHandler.RegisterCheck("database", func() error {
			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			return pool.Health(ctx)
		})
	}
	if redisClient != nil {
		healthHandler.RegisterCheck("redis", func() error {
			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			return redisClient.Health(ctx)
		})
	}
	if cfg.KafkaBrokers != "" {
		kafkaCheck := kafka.NewHealthChecker(cfg.KafkaBrokers)
		healthHandler.RegisterCheck(kafkaCheck.Name(), func() error {
			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			return kafkaCheck.Check(ctx)
		})
	}

	router := chi.NewRouter()
	router.Use(middleware.Recovery(log))
	router.Use(middleware.RequestID)
	router.Use(middleware.Logger(log))
	router.Use(middleware.CaptureMetadata)
	router.Use(middleware.Timeout(30 * time.Second))
	router.Use(middleware.LatencyMiddleware(m))
	router.Use(middleware.ContentTypeJSON)

	healthHandler.Register(router)
	router.Handle("/metrics", promhttp.Handler())

	router.Group(func(r chi.Router) {
		r.Use(middleware.RequireAuth(jwtSvc, log))

		consenthandler.New(consentSvc, log).Register(r)

		r.Group(func(r chi.Router) {
			r.Use(middleware.RequireInstitution(log))
			auditloghandler.New(auditlogSvc, log).Register(r)
		})
	})

	srv := httpserver.New(cfg.Addr, router)

	log.Info("starting http server", "addr", cfg.Addr)

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	// Graceful shutdown on SIGINT
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt)
	<-quit

	log.Info("shutting down server gracefully")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Error("graceful shutdown failed", "error", err)
	}

	auditor.Close()
	if kafkaProducer != nil {
		kafkaProducer.Close()
	}
	if redisClient != nil {
		if err := redisClient.Close(); err != nil {
			log.Warn("redis close failed", "error", err)
		}
	}
	if err := pool.Close(); err != nil {
		log.Warn("database close failed", "error", err)
	}

	log.Info("server stopped")
}
