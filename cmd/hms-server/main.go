package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/hms/hms/internal/config"
	"github.com/hms/hms/internal/domain/catalog"
	"github.com/hms/hms/internal/domain/cds"
	"github.com/hms/hms/internal/domain/chart"
	"github.com/hms/hms/internal/domain/cpoe"
	"github.com/hms/hms/internal/platform/auth"
	"github.com/hms/hms/internal/platform/db"
	"github.com/hms/hms/internal/platform/kafka"
	"github.com/hms/hms/internal/platform/metrics"
	"github.com/hms/hms/internal/platform/middleware"
	"github.com/hms/hms/internal/platform/outbox"
	"github.com/hms/hms/migrations"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "hms-server",
		Short: "Hospital order entry and clinical decision support API",
	}

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(migrateCmd())
	rootCmd.AddCommand(facilityCmd())
	rootCmd.AddCommand(seedCmd())
	rootCmd.AddCommand(outboxRelayCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func newLogger(env string) zerolog.Logger {
	if env == "development" {
		return zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).With().Timestamp().Logger()
	}
	return zerolog.New(os.Stdout).With().Timestamp().Logger()
}

func loadConfig() (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func openPool(ctx context.Context, cfg *config.Config) (*pgxpool.Pool, error) {
	return db.NewPool(ctx, db.PoolConfig{
		URL:      cfg.DatabaseURL,
		MaxConns: cfg.DBMaxConns,
		MinConns: cfg.DBMinConns,
	})
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer()
		},
	}
}

func migrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Run database migrations",
	}

	upCmd := &cobra.Command{
		Use:   "up",
		Short: "Apply pending migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			facility, _ := cmd.Flags().GetString("facility")

			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			ctx := context.Background()
			pool, err := openPool(ctx, cfg)
			if err != nil {
				return err
			}
			defer pool.Close()

			if facility == "" {
				facility = cfg.DefaultFacility
			}
			schema := db.SchemaFor(facility)
			fmt.Printf("Running migrations on schema: %s\n", schema)

			count, err := db.NewMigrator(pool, migrations.FS).Up(ctx, schema)
			if err != nil {
				return fmt.Errorf("migration failed: %w", err)
			}
			fmt.Printf("Applied %d migration(s) successfully.\n", count)
			return nil
		},
	}
	upCmd.Flags().String("facility", "", "Facility identifier (defaults to DEFAULT_FACILITY)")
	cmd.AddCommand(upCmd)

	statusCmd := &cobra.Command{
		Use:   "status",
		Short: "Show migration status",
		RunE: func(cmd *cobra.Command, args []string) error {
			facility, _ := cmd.Flags().GetString("facility")

			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			ctx := context.Background()
			pool, err := openPool(ctx, cfg)
			if err != nil {
				return err
			}
			defer pool.Close()

			if facility == "" {
				facility = cfg.DefaultFacility
			}
			schema := db.SchemaFor(facility)
			statuses, err := db.NewMigrator(pool, migrations.FS).Status(ctx, schema)
			if err != nil {
				return fmt.Errorf("failed to get migration status: %w", err)
			}

			fmt.Printf("Migration status for schema: %s\n", schema)
			fmt.Printf("%-10s %-40s %-10s %s\n", "VERSION", "NAME", "STATUS", "APPLIED AT")
			fmt.Println("---------- ---------------------------------------- ---------- --------------------")
			for _, s := range statuses {
				status := "pending"
				appliedAt := ""
				if s.Applied {
					status = "applied"
					if s.AppliedAt != nil {
						appliedAt = s.AppliedAt.Format("2006-01-02 15:04:05")
					}
				}
				fmt.Printf("%-10d %-40s %-10s %s\n", s.Version, s.Name, status, appliedAt)
			}
			return nil
		},
	}
	statusCmd.Flags().String("facility", "", "Facility identifier (defaults to DEFAULT_FACILITY)")
	cmd.AddCommand(statusCmd)

	return cmd
}

func facilityCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "facility",
		Short: "Manage facilities",
	}

	createCmd := &cobra.Command{
		Use:   "create",
		Short: "Create a facility schema and apply all migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			name, _ := cmd.Flags().GetString("name")
			if name == "" {
				return fmt.Errorf("--name is required")
			}

			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			ctx := context.Background()
			pool, err := openPool(ctx, cfg)
			if err != nil {
				return err
			}
			defer pool.Close()

			fmt.Printf("Creating facility schema: %s\n", db.SchemaFor(name))
			if err := db.CreateFacilitySchema(ctx, pool, name, db.NewMigrator(pool, migrations.FS)); err != nil {
				return err
			}
			fmt.Println("Facility created successfully.")
			return nil
		},
	}
	createCmd.Flags().String("name", "", "Facility identifier (alphanumeric)")

	cmd.AddCommand(createCmd)
	return cmd
}

func seedCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Load the sample formulary and interaction rules into a facility",
		RunE: func(cmd *cobra.Command, args []string) error {
			facility, _ := cmd.Flags().GetString("facility")
			demo, _ := cmd.Flags().GetBool("demo-patient")

			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			logger := newLogger(cfg.Env)
			ctx := context.Background()
			pool, err := openPool(ctx, cfg)
			if err != nil {
				return err
			}
			defer pool.Close()

			if facility == "" {
				facility = cfg.DefaultFacility
			}
			s := newSeeder(pool, logger)
			return db.WithFacility(ctx, pool, facility, func(ctx context.Context) error {
				return s.Run(ctx, demo)
			})
		},
	}
	cmd.Flags().String("facility", "", "Facility identifier (defaults to DEFAULT_FACILITY)")
	cmd.Flags().Bool("demo-patient", false, "Also create a demo patient with an allergy and an active medication")
	return cmd
}

func outboxRelayCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "outbox-relay",
		Short: "Run the order event relay without the API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if !cfg.EventsEnabled() {
				return fmt.Errorf("KAFKA_BROKERS and ORDER_EVENTS_TOPIC must be set to run the relay")
			}
			logger := newLogger(cfg.Env)

			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			pool, err := openPool(ctx, cfg)
			if err != nil {
				return err
			}
			defer pool.Close()

			reg := prometheus.NewRegistry()
			m := metrics.New(reg)
			relay, producer, err := newRelay(cfg, pool, logger, m)
			if err != nil {
				return err
			}
			defer producer.Close()

			return relay.Run(ctx)
		},
	}
}

func newRelay(cfg *config.Config, pool *pgxpool.Pool, logger zerolog.Logger, m *metrics.Metrics) (*outbox.Relay, *kafka.Producer, error) {
	producer, err := kafka.NewProducer(kafka.DefaultProducerConfig(cfg.KafkaBrokers), logger, m)
	if err != nil {
		return nil, nil, fmt.Errorf("create kafka producer: %w", err)
	}
	relayCfg := outbox.Config{
		BatchSize:    cfg.OutboxBatchSize,
		PollInterval: cfg.OutboxPollInterval,
		MaxRetries:   cfg.OutboxMaxRetries,
	}
	return outbox.NewRelay(outbox.NewPGStore(pool), producer, relayCfg, logger, m), producer, nil
}

// newServer builds the echo instance with middleware and every route. The
// pool is only touched at request time.
func newServer(cfg *config.Config, pool *pgxpool.Pool, logger zerolog.Logger, m *metrics.Metrics, gatherer prometheus.Gatherer) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(middleware.Recovery(logger))
	e.Use(middleware.RequestID())
	e.Use(middleware.Logger(logger))
	e.Use(echomw.BodyLimit("1M"))
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins: cfg.CORSOrigins,
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete},
		AllowHeaders: []string{"Authorization", "Content-Type", middleware.RequestIDHeader, "X-Facility-ID"},
	}))

	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
	})
	e.GET("/health/db", db.HealthHandler(pool, db.NewMigrator(pool, migrations.FS), cfg.DefaultFacility))
	if cfg.MetricsEnabled {
		e.GET("/metrics", metrics.Handler(gatherer))
	}

	jwtCfg := auth.JWTConfig{
		Issuer:     cfg.AuthIssuer,
		Audience:   cfg.AuthAudience,
		JWKSURL:    cfg.AuthJWKSURL,
		SigningKey: []byte(cfg.AuthSigningKey),
	}
	authMW := auth.JWTMiddleware(jwtCfg)
	if cfg.IsDev() {
		authMW = auth.DevAuthMiddleware(jwtCfg)
	}

	apiV1 := e.Group("/api/v1", authMW, db.FacilityMiddleware(pool, cfg.DefaultFacility), middleware.Audit(logger))

	// Repositories
	items := catalog.NewRepoPG(pool)
	patients := chart.NewPatientRepoPG(pool)
	allergies := chart.NewAllergyRepoPG(pool)
	meds := chart.NewMedicationRepoPG(pool)
	rules := cds.NewRuleRepoPG(pool)
	orders := cpoe.NewOrderRepoPG(pool)

	var events cpoe.EventWriter
	if cfg.EventsEnabled() {
		events = outbox.NewWriter(cfg.OrderEventsTopic)
	}

	evaluator := cds.NewEvaluator(orders, allergies, meds, rules, logger, m)

	catalog.NewHandler(catalog.NewService(items, logger)).RegisterRoutes(apiV1)
	cds.NewHandler(cds.NewService(rules, evaluator, patients, items, logger)).RegisterRoutes(apiV1)
	cpoe.NewHandler(cpoe.NewService(orders, patients, items, evaluator, db.NewTxManager(pool), events, logger, m)).RegisterRoutes(apiV1)

	return e
}

func runServer() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	logger := newLogger(cfg.Env)
	if err := cfg.Validate(); err != nil {
		logger.Fatal().Err(err).Msg("invalid configuration")
	}

	ctx := context.Background()
	pool, err := openPool(ctx, cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer pool.Close()
	logger.Info().Msg("connected to database")

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	e := newServer(cfg, pool, logger, m, reg)

	relayCtx, stopRelay := context.WithCancel(context.Background())
	defer stopRelay()
	if cfg.EventsEnabled() {
		relay, producer, err := newRelay(cfg, pool, logger, m)
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to start outbox relay")
		}
		defer producer.Close()
		go func() {
			if err := relay.Run(relayCtx); err != nil {
				logger.Error().Err(err).Msg("outbox relay exited")
			}
		}()
	} else {
		logger.Warn().Msg("KAFKA_BROKERS not set; order events are not recorded")
	}

	go func() {
		addr := ":" + cfg.Port
		logger.Info().Str("addr", addr).Msg("starting server")
		if err := e.Start(addr); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("shutting down server")
	stopRelay()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.Fatal().Err(err).Msg("server shutdown failed")
	}
	logger.Info().Msg("server stopped")
	return nil
}
