package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"gorm.io/gorm"

	"roommate/server/config"
	"roommate/server/internal/api"
	"roommate/server/internal/attendance"
	"roommate/server/internal/certification"
	"roommate/server/internal/clock"
	"roommate/server/internal/database"
	"roommate/server/internal/notify"
	"roommate/server/internal/queue"
	"roommate/server/internal/visits"
)

func main() {
	// Load .env file if present
	_ = godotenv.Load()

	var configPath string
	rootCmd := &cobra.Command{
		Use:          "roommate-server",
		Short:        "Interest queue engine for room listings",
		SilenceUsage: true,
	}
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", os.Getenv("CONFIG_PATH"), "path to a YAML config file")

	rootCmd.AddCommand(&cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP server",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := setup(configPath)
			if err != nil {
				return err
			}
			return serve(cmd.Context(), cfg, logger)
		},
	})

	rootCmd.AddCommand(&cobra.Command{
		Use:   "migrate",
		Short: "Create or update the database schema and exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := setup(configPath)
			if err != nil {
				return err
			}
			db, err := openDatabase(cfg, logger)
			if err != nil {
				return err
			}
			defer database.Close(db)
			logger.Info("Schema is up to date")
			return nil
		},
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

func setup(configPath string) (*config.Config, *logrus.Logger, error) {
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		return nil, nil, err
	}
	return cfg, newLogger(cfg.Logging), nil
}

func newLogger(cfg config.LoggingConfig) *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(os.Stdout)
	if cfg.Format == "text" {
		logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	} else {
		logger.SetFormatter(&logrus.JSONFormatter{})
	}

	level, err := logrus.ParseLevel(cfg.Level)
	if err != nil {
		logger.WithError(err).Warn("Unknown log level, using info")
		level = logrus.InfoLevel
	}
	logger.SetLevel(level)
	return logger
}

func openDatabase(cfg *config.Config, logger *logrus.Logger) (*gorm.DB, error) {
	logger.WithField("driver", cfg.Database.Driver).Info("Opening database")
	db, err := database.Open(cfg.Database, logger)
	if err != nil {
		return nil, err
	}

	logger.Info("Running database migrations...")
	if err := database.MigrateSchema(db); err != nil {
		_ = database.Close(db)
		return nil, err
	}
	return db, nil
}

// newNotifier starts the delivery queue with a log sink and, when
// configured, Telegram
func newNotifier(cfg *config.Config, db *gorm.DB, logger *logrus.Logger) *notify.Queue {
	events := notify.NewQueue(cfg.Notifications.BufferSize, logger)
	events.Subscribe(notify.LogHandler(logger))

	if cfg.Notifications.TelegramEnabled {
		resolve := func(userID uint) (string, bool) {
			return database.TelegramChatID(db, userID)
		}
		sender := notify.NewTelegramSender(cfg.Notifications.TelegramBotToken, resolve, logger)
		events.Subscribe(sender.Handle)
		logger.Info("Telegram notifications enabled")
	}

	events.Start()
	return events
}

func serve(ctx context.Context, cfg *config.Config, logger *logrus.Logger) error {
	db, err := openDatabase(cfg, logger)
	if err != nil {
		return err
	}
	defer database.Close(db)

	events := newNotifier(cfg, db, logger)
	defer events.Close()

	clk := clock.Real()
	listings := queue.NewSerializer(db, queue.NewListingLocks(), events)
	handler := api.NewHandler(db, logger,
		queue.NewController(db, listings, clk, cfg, logger),
		certification.NewWorkflow(db, listings, events, clk, logger),
		visits.NewGate(db, listings, clk, cfg, logger),
		attendance.NewTracker(db, listings, clk, cfg, logger),
	)

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery(), api.RequestLogger(logger))
	router.Use(cors.New(cors.Config{
		AllowOrigins: cfg.Server.AllowedOrigins,
		AllowMethods: []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowHeaders: []string{"Origin", "Content-Type", "X-Actor-ID", "X-Actor-Role"},
		MaxAge:       12 * time.Hour,
	}))
	api.SetupRoutes(router, handler)

	srv := &http.Server{
		Addr:              ":" + cfg.Server.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Infof("Starting server on port %s", cfg.Server.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			logger.WithError(err).Error("Server failed to start")
		}
		return err
	case <-ctx.Done():
	}

	logger.Info("Shutting down server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
