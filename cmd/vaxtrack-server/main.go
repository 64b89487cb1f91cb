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
	"github.com/rs/zerolog"
	zlog "github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/vaxtrack/vaxtrack/internal/config"
	"github.com/vaxtrack/vaxtrack/internal/domain/catalog"
	"github.com/vaxtrack/vaxtrack/internal/domain/privatevaccine"
	"github.com/vaxtrack/vaxtrack/internal/domain/schedule"
	"github.com/vaxtrack/vaxtrack/internal/domain/subscription"
	"github.com/vaxtrack/vaxtrack/internal/platform/auth"
	"github.com/vaxtrack/vaxtrack/internal/platform/db"
	"github.com/vaxtrack/vaxtrack/internal/platform/export"
	"github.com/vaxtrack/vaxtrack/internal/platform/middleware"
	"github.com/vaxtrack/vaxtrack/internal/platform/notification"
	"github.com/vaxtrack/vaxtrack/internal/platform/reminder"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "vaxtrack-server",
		Short: "Vaccination schedule and reminder API server",
	}

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(migrateCmd())
	rootCmd.AddCommand(remindCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
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

func newLogger() zerolog.Logger {
	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()
	if os.Getenv("ENV") == "development" || os.Getenv("ENV") == "" {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).With().Timestamp().Logger()
	}
	return logger
}

func openPool(ctx context.Context, cfg *config.Config) (*pgxpool.Pool, error) {
	return db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
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
			dir, _ := cmd.Flags().GetString("dir")

			cfg, err := config.Load()
			if err != nil {
				return err
			}

			ctx := context.Background()
			pool, err := openPool(ctx, cfg)
			if err != nil {
				return err
			}
			defer pool.Close()

			migrator := db.NewMigrator(pool, dir)
			count, err := migrator.Up(ctx)
			if err != nil {
				return fmt.Errorf("migration failed: %w", err)
			}

			fmt.Printf("Applied %d migration(s) successfully.\n", count)
			return nil
		},
	}
	upCmd.Flags().String("dir", "./migrations", "Path to migrations directory")
	cmd.AddCommand(upCmd)

	statusCmd := &cobra.Command{
		Use:   "status",
		Short: "Show migration status",
		RunE: func(cmd *cobra.Command, args []string) error {
			dir, _ := cmd.Flags().GetString("dir")

			cfg, err := config.Load()
			if err != nil {
				return err
			}

			ctx := context.Background()
			pool, err := openPool(ctx, cfg)
			if err != nil {
				return err
			}
			defer pool.Close()

			migrator := db.NewMigrator(pool, dir)
			statuses, err := migrator.Status(ctx)
			if err != nil {
				return fmt.Errorf("failed to get migration status: %w", err)
			}

			fmt.Printf("%-10s %-40s %-10s %s\n", "VERSION", "NAME", "STATUS", "APPLIED AT")
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
	statusCmd.Flags().String("dir", "./migrations", "Path to migrations directory")
	cmd.AddCommand(statusCmd)

	return cmd
}

// remindCmd exposes the batch passes for on-demand runs; the serve command
// schedules the same passes via cron.
func remindCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "remind",
		Short: "Run reminder batch passes on demand",
	}

	withEngine := func(run func(ctx context.Context, cfg *config.Config, engine *reminder.Engine) error) func(*cobra.Command, []string) error {
		return func(cmd *cobra.Command, args []string) error {
			logger := newLogger()
			cfg, err := config.Load()
			if err != nil {
				return err
			}

			ctx := context.Background()
			pool, err := openPool(ctx, cfg)
			if err != nil {
				return err
			}
			defer pool.Close()

			recordRepo := schedule.NewRepoPG(pool)
			subSvc := subscription.NewService(subscription.NewRepoPG(pool))
			engine := reminder.NewEngine(recordRepo, subSvc, newNotificationManager(cfg), logger)
			return run(ctx, cfg, engine)
		}
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "daily",
		Short: "Run the daily reminder passes",
		RunE: withEngine(func(ctx context.Context, _ *config.Config, engine *reminder.Engine) error {
			stats, err := engine.RunDaily(ctx, reminder.Today())
			if err != nil {
				return err
			}
			fmt.Printf("3-day: %d, 1-day: %d, overdue: %d, follow-ups: %d, errors: %d\n",
				stats.Reminders3Day, stats.Reminders1Day, stats.MarkedOverdue, stats.FollowUps, stats.Errors)
			return nil
		}),
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "weekly",
		Short: "Run the weekly digest",
		RunE: withEngine(func(ctx context.Context, _ *config.Config, engine *reminder.Engine) error {
			sent, err := engine.RunWeeklyDigest(ctx, reminder.Today())
			if err != nil {
				return err
			}
			fmt.Printf("Sent %d digest(s).\n", sent)
			return nil
		}),
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "cleanup",
		Short: "Delete stale notification subscriptions",
		RunE: withEngine(func(ctx context.Context, cfg *config.Config, engine *reminder.Engine) error {
			n, err := engine.RunSubscriptionCleanup(ctx, reminder.Today(), cfg.SubscriptionMaxAgeDays)
			if err != nil {
				return err
			}
			fmt.Printf("Deleted %d subscription(s).\n", n)
			return nil
		}),
	})

	return cmd
}

// newNotificationManager wires the configured senders. Email and SMS have no
// transport credentials in this deployment yet and fall back to the mock
// sender, which logs into the in-memory notification log.
func newNotificationManager(cfg *config.Config) *notification.Manager {
	mock := &notification.MockSender{}
	var push notification.PushSender = mock
	if cfg.WebhookPushURL != "" {
		push = notification.NewWebhookPushSender(cfg.WebhookPushURL)
	}
	return notification.NewManager(mock, mock, push, notification.NewTemplateEngine())
}

func runServer() error {
	logger := newLogger()
	zlog.Logger = logger

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load config")
	}
	if err := cfg.Validate(); err != nil {
		logger.Fatal().Err(err).Msg("invalid config")
	}

	ctx := context.Background()
	pool, err := openPool(ctx, cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer pool.Close()
	logger.Info().Msg("connected to database")

	// Repositories and services
	recordRepo := schedule.NewRepoPG(pool)
	catalogSvc := catalog.NewService(catalog.NewRepoPG(pool), cfg.CatalogVersion)
	inTx := func(ctx context.Context, fn func(ctx context.Context) error) error {
		return db.WithTx(ctx, pool, fn)
	}
	scheduleSvc := schedule.NewService(recordRepo, catalogSvc, inTx)
	wizardSvc := privatevaccine.NewService(recordRepo, inTx)
	subSvc := subscription.NewService(subscription.NewRepoPG(pool))
	notifier := newNotificationManager(cfg)

	// Echo server
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(middleware.Recovery(logger))
	e.Use(middleware.RequestID())
	e.Use(middleware.Logger(logger))
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins: cfg.CORSOrigins,
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete},
		AllowHeaders: []string{"Authorization", "Content-Type", "X-Request-ID"},
	}))

	if cfg.IsDev() {
		e.Use(auth.DevAuthMiddleware())
	} else {
		e.Use(auth.JWTMiddleware(auth.JWTConfig{
			Issuer:     cfg.AuthIssuer,
			Audience:   cfg.AuthAudience,
			SigningKey: []byte(cfg.AuthJWTSecret),
		}))
	}

	e.GET("/health", db.HealthHandler(pool))

	apiV1 := e.Group("/api/v1")
	children := apiV1.Group("", auth.RequireOwnership(schedule.NewDirectory(recordRepo)))

	scheduleHandler := schedule.NewHandler(scheduleSvc)
	scheduleHandler.RegisterRoutes(children, apiV1)

	wizardHandler := privatevaccine.NewHandler(wizardSvc)
	wizardHandler.RegisterRoutes(children, apiV1)

	catalog.NewHandler(catalogSvc).RegisterRoutes(apiV1)
	subscription.NewHandler(subSvc).RegisterRoutes(apiV1)
	export.NewHandler(scheduleSvc).RegisterRoutes(children)
	notification.NewHandler(notifier).RegisterRoutes(apiV1)

	// Reminder scheduler
	engine := reminder.NewEngine(recordRepo, subSvc, notifier, logger)
	runner := reminder.NewRunner(engine, cfg.ReminderHour, cfg.DigestDay(), cfg.SubscriptionMaxAgeDays, logger)
	if err := runner.Start(); err != nil {
		logger.Fatal().Err(err).Msg("failed to start reminder scheduler")
	}
	defer runner.Stop()

	// Start server
	go func() {
		addr := ":" + cfg.Port
		logger.Info().Str("addr", addr).Str("env", cfg.Env).Msg("server started")
		if err := e.Start(addr); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.Fatal().Err(err).Msg("server shutdown failed")
	}
	logger.Info().Msg("server stopped")
	return nil
}
