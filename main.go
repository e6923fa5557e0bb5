package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Gobusters/ectoenv"
	"github.com/Gobusters/ectologger"
	"github.com/Gobusters/ectologger/zapadapter"
	"github.com/jmoiron/sqlx"
	"github.com/joho/godotenv"
	"github.com/labstack/echo/v4"
	echomiddleware "github.com/labstack/echo/v4/middleware"
	_ "github.com/lib/pq"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/github.com/labstack/echo/otelecho"
	"go.uber.org/zap"

	"github.com/golang-migrate/migrate/v4/database/postgres"

	"github.com/Ramsey-B/fern/config"
	"github.com/Ramsey-B/fern/internal/handlers"
	"github.com/Ramsey-B/fern/pkg/audit"
	"github.com/Ramsey-B/fern/pkg/catalog"
	"github.com/Ramsey-B/fern/pkg/commerce"
	"github.com/Ramsey-B/fern/pkg/database"
	"github.com/Ramsey-B/fern/pkg/dispatcher"
	"github.com/Ramsey-B/fern/pkg/generative"
	"github.com/Ramsey-B/fern/pkg/health"
	"github.com/Ramsey-B/fern/pkg/httpclient"
	"github.com/Ramsey-B/fern/pkg/identity"
	"github.com/Ramsey-B/fern/pkg/lifecycle"
	"github.com/Ramsey-B/fern/pkg/middleware"
	"github.com/Ramsey-B/fern/pkg/repositories"
	"github.com/Ramsey-B/fern/pkg/safety"
	"github.com/Ramsey-B/fern/pkg/slots"
	"github.com/Ramsey-B/fern/pkg/startup"
	"github.com/Ramsey-B/fern/pkg/tracing"
)

func main() {
	_ = godotenv.Load()

	var cfg config.Config
	if err := ectoenv.BindEnv(&cfg); err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger := newLogger(cfg)
	logger.Infof("Starting %s", cfg.AppName)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.WithError(err).Error("service exited with error")
		os.Exit(1)
	}
}

func newLogger(cfg config.Config) ectologger.Logger {
	zapConfig := zap.NewProductionConfig()
	if cfg.PrettyLogs {
		zapConfig = zap.NewDevelopmentConfig()
	}
	if level, err := zap.ParseAtomicLevel(cfg.LogLevel); err == nil {
		zapConfig.Level = level
	}

	zapLogger, _ := zapConfig.Build()
	return zapadapter.NewZapEctoLogger(zapLogger, nil)
}

func run(ctx context.Context, cfg config.Config, logger ectologger.Logger) error {
	shutdownTracing, err := tracing.Init(ctx, tracing.Config{
		ServiceName: cfg.AppName,
		Enabled:     cfg.OTLPEnabled,
		Endpoint:    cfg.OTLPEndpoint,
		Protocol:    cfg.OTLPProtocol,
		Insecure:    cfg.OTLPInsecure,
		Timeout:     10 * time.Second,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize tracing: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = shutdownTracing(shutdownCtx)
	}()

	var (
		db        database.DB
		slotStore *slots.Store
		producer  *audit.Producer
		verifier  identity.TokenVerifier
		generator *generative.Client
	)

	boot := startup.NewStartup(logger, cfg.StartupMaxAttempts)

	boot.AddDependency(dependency{
		name: "database",
		start: func(ctx context.Context) error {
			dsn := fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
				cfg.DatabaseHost, cfg.DatabasePort, cfg.DatabaseUserName, cfg.DatabasePassword,
				cfg.DatabaseName, cfg.DatabaseSSLMode)

			sqlxDB, err := sqlx.ConnectContext(ctx, cfg.DatabaseDriver, dsn)
			if err != nil {
				return fmt.Errorf("failed to connect to database: %w", err)
			}
			sqlxDB.SetMaxOpenConns(cfg.DatabaseMaxOpenConns)
			sqlxDB.SetMaxIdleConns(cfg.DatabaseMaxIdleConns)
			sqlxDB.SetConnMaxLifetime(cfg.DatabaseConnMaxLifetime)

			driver, err := postgres.WithInstance(sqlxDB.DB, &postgres.Config{})
			if err != nil {
				return fmt.Errorf("failed to create migration driver: %w", err)
			}

			migrations := database.NewMigrationService(logger, &database.MigrationConfig{
				MigrationFolderPath: cfg.DatabaseMigrationFolderPath,
				Version:             uint(cfg.DatabaseMigrationVersion),
				Force:               cfg.DatabaseMigrationForce,
			})
			if err := migrations.Migrate(cfg.DatabaseName, driver); err != nil {
				return err
			}

			db = database.NewDatabaseInstance(sqlxDB, logger)
			return nil
		},
		stop: func(ctx context.Context) error {
			if db != nil {
				return db.Close()
			}
			return nil
		},
	})

	boot.AddDependency(dependency{
		name: "redis",
		start: func(ctx context.Context) error {
			store, err := slots.NewStore(slots.Config{
				Host:     cfg.RedisHost,
				Port:     cfg.RedisPort,
				Password: cfg.RedisPassword,
				DB:       cfg.RedisDB,
				TTL:      cfg.SlotTTL,
			}, logger)
			if err != nil {
				return err
			}
			slotStore = store
			return nil
		},
		stop: func(ctx context.Context) error {
			if slotStore != nil {
				return slotStore.Close()
			}
			return nil
		},
	})

	boot.AddDependency(dependency{
		name: "kafka",
		start: func(ctx context.Context) error {
			producer = audit.NewProducer(audit.ParseConfig(cfg.KafkaBrokers, cfg.KafkaAuditTopic, cfg.KafkaBlockedTopic), logger)
			return nil
		},
		stop: func(ctx context.Context) error {
			if producer != nil {
				return producer.Close()
			}
			return nil
		},
	})

	boot.AddDependency(dependency{
		name: "identity-provider",
		start: func(ctx context.Context) error {
			if cfg.AuthIssuerURL == "" {
				logger.Warn("no identity provider configured, bearer tokens will not verify")
				return nil
			}
			v, err := identity.NewOIDCVerifier(ctx, cfg.AuthIssuerURL, cfg.AuthClientID, cfg.AuthVerifyTimeout, logger)
			if err != nil {
				return err
			}
			verifier = v
			return nil
		},
		stop: func(ctx context.Context) error { return nil },
	})

	boot.AddDependency(dependency{
		name: "generative",
		start: func(ctx context.Context) error {
			g, err := generative.NewClient(ctx, cfg.GeminiAPIKey, cfg.GeminiModel, cfg.GeminiTimeout, logger)
			if err != nil {
				return err
			}
			generator = g
			return nil
		},
		stop: func(ctx context.Context) error { return nil },
	})

	if err := boot.Start(ctx); err != nil {
		return err
	}
	defer func() {
		stopCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		_ = boot.Stop(stopCtx)
	}()

	httpClient := httpclient.NewClient(httpclient.Config{
		Timeout:         cfg.BackendTimeout,
		MaxIdleConns:    100,
		IdleConnTimeout: 90 * time.Second,
	}, logger)
	backend := commerce.NewClient(httpClient, cfg.BackendURL, cfg.BackendAPIKey, logger)

	identityResolver := identity.NewResolver(verifier, slotStore, logger)
	variantResolver := catalog.NewResolver()
	guard := lifecycle.NewGuard(backend, logger)
	filter := safety.NewFilter(logger)
	turnLog := repositories.NewTurnLogRepository(db, logger)

	d := dispatcher.New(
		identityResolver,
		variantResolver,
		guard,
		filter,
		generator,
		backend,
		slotStore,
		producer,
		turnLog,
		cfg.IntentConfidenceThreshold,
		logger,
	)

	checker := health.NewChecker()
	checker.Register("database", func(ctx context.Context) error { return db.PingContext(ctx) })
	checker.Register("redis", func(ctx context.Context) error { return slotStore.Ping(ctx) })

	e := echo.New()
	e.HideBanner = true
	e.HTTPErrorHandler = middleware.Error(logger)
	e.Use(otelecho.Middleware(cfg.AppName))
	e.Use(middleware.Context())
	e.Use(middleware.Logger(logger))
	e.Use(echomiddleware.CORSWithConfig(echomiddleware.CORSConfig{
		AllowOrigins: cfg.AllowOrigins,
		AllowMethods: cfg.AllowMethods,
	}))
	e.Use(echomiddleware.TimeoutWithConfig(echomiddleware.TimeoutConfig{
		Timeout: cfg.MaxTurnDuration,
	}))

	handler := handlers.NewWebhookHandler(d, turnLog, slotStore, checker, logger)
	handler.RegisterRoutes(e)
	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		ReadTimeout:       time.Duration(cfg.HttpServerReadTimeoutSeconds) * time.Second,
		WriteTimeout:      time.Duration(cfg.HttpServerWriteTimeoutSeconds) * time.Second,
		IdleTimeout:       time.Duration(cfg.HttpServerIdleTimeoutSeconds) * time.Second,
		ReadHeaderTimeout: time.Duration(cfg.ReadHeaderTimeoutSeconds) * time.Second,
		MaxHeaderBytes:    cfg.MaxHeaderBytes,
	}

	errCh := make(chan error, 1)
	go func() {
		if err := e.StartServer(server); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	logger.Infof("%s listening on port %d", cfg.AppName, cfg.Port)

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	return e.Shutdown(shutdownCtx)
}

// dependency adapts start/stop funcs to the startup interface.
type dependency struct {
	name      string
	dependsOn []string
	start     func(ctx context.Context) error
	stop      func(ctx context.Context) error
}

func (d dependency) GetName() string                 { return d.name }
func (d dependency) DependsOn() []string             { return d.dependsOn }
func (d dependency) Start(ctx context.Context) error { return d.start(ctx) }
func (d dependency) Stop(ctx context.Context) error  { return d.stop(ctx) }
