package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/act-admin/my-github-hub/internal/application"
	"github.com/act-admin/my-github-hub/internal/application/nlq"
	"github.com/act-admin/my-github-hub/internal/config"
	"github.com/act-admin/my-github-hub/internal/domain/ai"
	"github.com/act-admin/my-github-hub/internal/domain/audit"
	"github.com/act-admin/my-github-hub/internal/domain/sqlguard"
	openaiclient "github.com/act-admin/my-github-hub/internal/infra/ai/openai"
	"github.com/act-admin/my-github-hub/internal/infra/ai/prompt"
	mysqlp "github.com/act-admin/my-github-hub/internal/infra/db/mysql"
	postgresp "github.com/act-admin/my-github-hub/internal/infra/db/postgres"
	"github.com/act-admin/my-github-hub/internal/infra/httpserver"
	minioStore "github.com/act-admin/my-github-hub/internal/infra/storage"
	"github.com/act-admin/my-github-hub/internal/infra/warehouse/snowflake"
	"github.com/act-admin/my-github-hub/internal/logging"
	"github.com/act-admin/my-github-hub/internal/middleware"
)

func main() {
	// .env opsional, env asli tetap menang
	if err := config.LoadEnvFile(os.Getenv("ENV_FILE")); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	// path config.yaml
	path := "config.yaml"
	if v := os.Getenv("CONFIG_PATH"); v != "" {
		path = v
	}

	cfg, err := config.Load(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config load error: %v\n", err)
		os.Exit(1)
	}

	log := logging.New(cfg.Log.Level, cfg.Log.Format)
	if err := cfg.Validate(); err != nil {
		log.Fatal().Err(err).Msg("invalid configuration")
	}
	for tenant := range cfg.Auth.APIKeys {
		if err := middleware.ValidateTenantID(tenant); err != nil {
			log.Fatal().Err(err).Str("tenant", tenant).Msg("invalid api key tenant")
		}
	}

	ctx := context.Background()
	checkers := map[string]middleware.HealthChecker{}

	// audit sinks (optional, write-only)
	var repo audit.Repository
	var closeDB func() error
	switch cfg.Audit.Driver {
	case "mysql":
		db, err := mysqlp.Connect(ctx, cfg.MySQLDSN())
		if err != nil {
			log.Fatal().Err(err).Msg("mysql connect error")
		}
		r := mysqlp.NewAuditRepository(db)
		if err := r.EnsureSchema(ctx); err != nil {
			log.Fatal().Err(err).Msg("mysql schema error")
		}
		repo, closeDB = r, db.Close
		checkers["audit_db"] = &middleware.DatabaseHealthChecker{DB: db}
	case "postgres":
		db, err := postgresp.Connect(ctx, cfg.PostgresDSN())
		if err != nil {
			log.Fatal().Err(err).Msg("postgres connect error")
		}
		r := postgresp.NewAuditRepository(db)
		if err := r.EnsureSchema(ctx); err != nil {
			log.Fatal().Err(err).Msg("postgres schema error")
		}
		repo, closeDB = r, db.Close
		checkers["audit_db"] = &middleware.DatabaseHealthChecker{DB: db}
	}
	if closeDB != nil {
		defer closeDB()
	}

	var archive audit.Archive
	if m := cfg.Audit.Minio; m.Endpoint != "" {
		store, err := minioStore.New(ctx, m.Endpoint, m.Region, m.BucketName, m.AccessKey, m.SecretKey, m.UseSSL)
		if err != nil {
			log.Fatal().Err(err).Msg("minio init error")
		}
		archive = store
		checkers["audit_archive"] = store
	}
	recorder := audit.NewRecorder(repo, archive, log.With().Str("component", "audit").Logger())

	// completion service
	var completer ai.Client
	if cfg.UseAzure() {
		completer = openaiclient.NewAzureClient(cfg.OpenAI.AzureEndpoint, cfg.OpenAI.AzureAPIKey,
			cfg.OpenAI.AzureDeployment, cfg.OpenAI.AzureAPIVersion)
		log.Info().Str("deployment", cfg.OpenAI.AzureDeployment).Msg("using azure openai")
	} else {
		completer = openaiclient.NewClient(cfg.OpenAI.APIKey, cfg.OpenAI.Model)
		log.Info().Str("model", cfg.OpenAI.Model).Msg("using openai")
	}

	// warehouse
	httpClient := &http.Client{Timeout: time.Duration(cfg.Snowflake.StatementTimeout+15) * time.Second}
	var warehouse nlq.Warehouse
	if cfg.Snowflake.Account != "" {
		warehouse = newWarehouse(cfg, httpClient, log)
	} else {
		log.Warn().Msg("SNOWFLAKE_ACCOUNT not set, generated SQL will not be executed")
	}

	schema := prompt.DefaultSchema()
	schema.Database = cfg.Snowflake.Database
	schema.Schema = cfg.Snowflake.Schema

	policy := sqlguard.DefaultPolicy()
	if len(cfg.Validator.AllowedTables) > 0 {
		policy.AllowedTables = cfg.Validator.AllowedTables
	} else {
		policy.AllowedTables = schema.TableNames()
	}
	policy.MaxOpenParens = cfg.Validator.MaxOpenParens
	policy.DefaultLimit = cfg.Validator.DefaultLimit
	policy.Strict = cfg.Validator.Strict
	policy.Qualifiers = []string{schema.Qualifier()}

	svc := &nlq.Service{
		Synth:     nlq.NewSynthesizer(completer, schema),
		Summary:   nlq.NewSummarizer(completer),
		Policy:    policy,
		Warehouse: warehouse,
		Audit:     recorder,
		Clock:     application.SystemClock{},
		Log:       log.With().Str("component", "nlq").Logger(),
	}

	// rate limiting
	var limiter middleware.Limiter
	if rpm := cfg.RateLimit.RequestsPerMinute; rpm > 0 {
		local := middleware.NewRateLimiter(rpm, cfg.RateLimit.Burst)
		defer local.Close()
		limiter = local
		if cfg.Redis.Addr != "" {
			rdb := redis.NewClient(&redis.Options{
				Addr:     cfg.Redis.Addr,
				Password: cfg.Redis.Password,
				DB:       cfg.Redis.DB,
			})
			defer rdb.Close()
			limiter = middleware.NewRedisLimiter(rdb, rpm, local, log)
			checkers["redis"] = &middleware.RedisHealthChecker{Client: rdb}
		}
	}

	mux := chi.NewRouter()
	mux.Mount("/", httpserver.NewRouter(svc, httpserver.Options{
		APIKeys:        cfg.Auth.APIKeys,
		Limiter:        limiter,
		RequestTimeout: time.Duration(cfg.Server.RequestTimeout) * time.Second,
		Checkers:       checkers,
		Log:            log.With().Str("component", "http").Logger(),
	}))

	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		// covers synthesis, polling and summary
		WriteTimeout: time.Duration(cfg.Server.RequestTimeout+10) * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Info().Str("addr", addr).Msg("server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("server error")
		}
	}()

	// graceful shutdown
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop
	log.Info().Msg("shutting down server...")

	ctx2, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx2); err != nil {
		log.Error().Err(err).Msg("shutdown error")
	}
}

func newWarehouse(cfg *config.Config, client *http.Client, log zerolog.Logger) *snowflake.Executor {
	sf := cfg.Snowflake
	secrets := snowflake.Secrets{
		Account:    sf.Account,
		User:       sf.User,
		Password:   sf.Password,
		PrivateKey: sf.PrivateKey,
		PublicKey:  sf.PublicKey,
		Warehouse:  sf.Warehouse,
		Database:   sf.Database,
		Schema:     sf.Schema,
		Role:       sf.Role,
	}
	base := snowflake.BaseURL(sf.Account)

	primary, fallback, keyErr := snowflake.NewProviders(base, secrets, client)
	if keyErr != nil {
		// session login still works when the password is configured
		log.Error().Err(keyErr).Msg("snowflake key pair unusable")
	}
	if primary != nil {
		ev := log.Info().Str("primary", string(primary.Kind()))
		if fallback != nil {
			ev = ev.Str("fallback", string(fallback.Kind()))
		}
		ev.Msg("snowflake credentials configured")
	}

	return snowflake.NewExecutor(snowflake.Config{
		BaseURL:          base,
		Warehouse:        sf.Warehouse,
		Database:         sf.Database,
		Schema:           sf.Schema,
		Role:             sf.Role,
		StatementTimeout: sf.StatementTimeout,
		PollInterval:     sf.PollInterval,
		PollAttempts:     sf.PollAttempts,
	}, client, primary, fallback, log.With().Str("component", "snowflake").Logger(), sf.Password, sf.PrivateKey)
}
