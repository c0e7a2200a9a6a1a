package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/openlims/openlims/modules/centers"
	"github.com/openlims/openlims/modules/samples"
	"github.com/openlims/openlims/modules/users"
	"github.com/openlims/openlims/pkg/config"
	"github.com/openlims/openlims/pkg/httpserver"
	"github.com/openlims/openlims/pkg/logger"
	"github.com/openlims/openlims/pkg/pg"
	"github.com/openlims/openlims/pkg/redis"
	"github.com/openlims/openlims/pkg/requestid"
	"github.com/openlims/openlims/pkg/tenant"
)

type appConfig struct {
	ServiceName string `env:"APP_NAME" envDefault:"openlims"`
	Environment string `env:"APP_ENV" envDefault:"production"`

	HTTPAddr         string        `env:"HTTP_ADDR" envDefault:":8080"`
	HTTPReadTimeout  time.Duration `env:"HTTP_READ_TIMEOUT" envDefault:"15s"`
	HTTPWriteTimeout time.Duration `env:"HTTP_WRITE_TIMEOUT" envDefault:"30s"`
	HTTPIdleTimeout  time.Duration `env:"HTTP_IDLE_TIMEOUT" envDefault:"60s"`
	ShutdownTimeout  time.Duration `env:"HTTP_SHUTDOWN_TIMEOUT" envDefault:"10s"`
}

func main() {
	if err := run(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	var (
		appCfg    appConfig
		pgCfg     pg.Config
		redisCfg  redis.Config
		tenantCfg tenant.Config
	)
	config.MustLoad(&appCfg)
	config.MustLoad(&pgCfg)
	config.MustLoad(&redisCfg)
	config.MustLoad(&tenantCfg)

	log := logger.New(
		logger.WithService(appCfg.ServiceName, appCfg.Environment),
		logger.WithContextExtractors(
			requestid.LoggerExtractor(),
			tenant.LoggerExtractor(),
		),
	)
	logger.SetAsDefault(log)

	pool, err := pg.Connect(ctx, pgCfg)
	if err != nil {
		return fmt.Errorf("connect to postgres: %w", err)
	}
	defer pool.Close()

	if err := pg.Migrate(ctx, pool, pgCfg, log); err != nil {
		return fmt.Errorf("apply public migrations: %w", err)
	}

	probes := []func(context.Context) error{pg.Healthcheck(pool)}

	var cache tenant.ExistenceCache
	if redisCfg.Enabled() {
		client, err := redis.Connect(ctx, redisCfg)
		if err != nil {
			return fmt.Errorf("connect to redis: %w", err)
		}
		defer client.Close()
		cache = tenant.NewRedisCache(client)
		probes = append(probes, redis.Healthcheck(client))
		log.InfoContext(ctx, "tenant existence cache backed by redis")
	} else {
		cache = tenant.NewMemoryCache()
		log.InfoContext(ctx, "tenant existence cache in process memory")
	}
	defer cache.Close()

	checker := tenant.NewCatalogChecker(pool, cache, tenantCfg.CacheTTL, log)
	resolver := tenant.NewPathResolver(checker, tenantCfg.SchemaPrefix)
	switcher := tenant.NewPoolSwitcher(pool, tenantCfg.PublicSchema)
	lifecycle := tenant.NewLifecycleManager(pool, cache, samples.Schema, tenantCfg, log)

	// `openlims migrate-tenants` re-applies the tenant DDL to every existing
	// center schema and exits. Run after deploys that change tenant tables.
	if len(os.Args) > 1 && os.Args[1] == "migrate-tenants" {
		failed := 0
		for schema, ok := range lifecycle.MigrateAll(ctx) {
			if !ok {
				failed++
				log.ErrorContext(ctx, "tenant schema migration failed", logger.Schema(schema))
			}
		}
		if failed > 0 {
			return fmt.Errorf("tenant migration failed for %d schema(s)", failed)
		}
		return nil
	}

	centersSvc := centers.NewService(centers.NewRepository(pool), lifecycle, checker, tenantCfg.SchemaPrefix, log)

	r := chi.NewRouter()
	r.Use(requestid.Middleware)
	r.Use(chimw.Recoverer)
	r.Use(tenant.Middleware(resolver, switcher,
		tenant.WithSkipPaths("/healthz", "/readyz"),
		tenant.WithLogger(log),
	))

	r.Get("/healthz", httpserver.HealthCheckHandler(log))
	r.Get("/readyz", httpserver.HealthCheckHandler(log, probes...))

	r.Mount("/api/admin/centers", centers.NewHandler(centersSvc).Routes())
	r.Mount("/api/users", users.NewHandler(users.NewRepository(pool), checker).Routes())

	r.Route("/api/centers/{center_id}", func(r chi.Router) {
		r.Use(tenant.RequireTenant(nil))
		r.Mount("/samples", samples.NewHandler(samples.NewRepository()).Routes())
	})

	srv := httpserver.New(
		httpserver.WithAddr(appCfg.HTTPAddr),
		httpserver.WithReadTimeout(appCfg.HTTPReadTimeout),
		httpserver.WithWriteTimeout(appCfg.HTTPWriteTimeout),
		httpserver.WithIdleTimeout(appCfg.HTTPIdleTimeout),
		httpserver.WithShutdownTimeout(appCfg.ShutdownTimeout),
		httpserver.WithLogger(log),
	)
	return srv.Run(ctx, r)
}
