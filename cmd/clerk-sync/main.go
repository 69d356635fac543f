package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/redis/go-redis/v9"

	"github.com/systemsaholic/clerk-sync/internal/clerk"
	"github.com/systemsaholic/clerk-sync/internal/config"
	"github.com/systemsaholic/clerk-sync/internal/events"
	"github.com/systemsaholic/clerk-sync/internal/handlers"
	"github.com/systemsaholic/clerk-sync/internal/logging"
	"github.com/systemsaholic/clerk-sync/internal/repository"
	"github.com/systemsaholic/clerk-sync/internal/server"
	"github.com/systemsaholic/clerk-sync/internal/usersync"
	"github.com/systemsaholic/clerk-sync/internal/webhook"
)

func main() {
	configPath := flag.String("config", "", "path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger := logging.New(
		logging.ParseLevel(cfg.Logging.Level),
		cfg.Logging.Format,
	).With(logging.Service("clerk-sync"))
	logging.SetDefault(logger)

	slog.Info("Starting Clerk sync service",
		slog.Int("port", cfg.Server.Port),
		slog.String("log_level", cfg.Logging.Level),
		slog.String("log_format", cfg.Logging.Format),
	)
	if *configPath != "" {
		slog.Info("Loaded configuration", slog.String("config_path", *configPath))
	}

	// Repository
	var (
		store repository.IdentityStore
		roles repository.RoleRegistry
	)
	if cfg.Database.Type == "postgres" {
		connString := cfg.Database.Postgres.ConnString()

		slog.Info("Connecting to PostgreSQL",
			slog.String("host", cfg.Database.Postgres.Host),
			slog.Int("port", cfg.Database.Postgres.Port),
			slog.String("database", cfg.Database.Postgres.Database),
		)

		pgRepo, err := repository.NewPostgresRepository(context.Background(), connString)
		if err != nil {
			slog.Error("Failed to connect to PostgreSQL", slog.String("error", err.Error()))
			os.Exit(1)
		}
		defer pgRepo.Close()
		store, roles = pgRepo, pgRepo
		slog.Info("Connected to PostgreSQL")

		slog.Info("Running database migrations")
		m, err := migrate.New("file://migrations", connString)
		if err != nil {
			slog.Error("Failed to initialize migrations", slog.String("error", err.Error()))
			os.Exit(1)
		}
		if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
			slog.Error("Failed to run migrations", slog.String("error", err.Error()))
			os.Exit(1)
		}
		version, dirty, err := m.Version()
		if err != nil {
			slog.Warn("Could not get migration version", slog.String("error", err.Error()))
		} else {
			slog.Info("Database migration complete",
				slog.Uint64("version", uint64(version)),
				slog.Bool("dirty", dirty),
			)
		}
	} else {
		slog.Warn("Using in-memory repository (development only)")
		memRepo := repository.NewInMemoryRepository()
		store, roles = memRepo, memRepo
	}

	// Replay cache (optional)
	var rdb *redis.Client
	if cfg.Redis.Enabled {
		rdb = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err := rdb.Ping(context.Background()).Err(); err != nil {
			slog.Error("Failed to connect to Redis", slog.String("error", err.Error()))
			os.Exit(1)
		}
		defer rdb.Close()
		slog.Info("Replay cache enabled", slog.String("addr", cfg.Redis.Addr))
	}
	replay := webhook.NewReplayCache(rdb, cfg.Clerk.Tolerance)

	// Event publisher (optional)
	var publisher events.Publisher = events.NoopPublisher{}
	if cfg.NATS.Enabled {
		natsPub, err := events.NewNATSPublisher(cfg.NATS.URL, cfg.NATS.SubjectPrefix)
		if err != nil {
			slog.Error("Failed to connect to NATS", slog.String("error", err.Error()))
			os.Exit(1)
		}
		publisher = natsPub
		slog.Info("Sync event publishing enabled", slog.String("url", cfg.NATS.URL))
	}
	defer publisher.Close()

	// Webhook verifier
	var verifier *webhook.Verifier
	if cfg.Clerk.WebhookSecret == "" {
		slog.Warn("No webhook secret configured; all deliveries will be rejected")
	} else {
		verifier, err = webhook.NewVerifier(cfg.Clerk.WebhookSecret, cfg.Clerk.Tolerance)
		if err != nil {
			slog.Error("Invalid webhook secret", slog.String("error", err.Error()))
			os.Exit(1)
		}
	}

	var notifier usersync.Notifier
	if cfg.Clerk.APIKey != "" {
		notifier = clerk.NewClient(cfg.Clerk.APIKey, cfg.Clerk.APIURL, logger)
		slog.Info("Metadata push-back enabled", slog.String("api_url", cfg.Clerk.APIURL))
	} else {
		slog.Info("No Clerk API key configured; metadata push-back disabled")
	}
	settings := usersync.StaticSettings{
		DefaultRole:    cfg.Sync.DefaultRole,
		DeletionPolicy: cfg.Sync.DeletionPolicy,
		ReassignUserID: cfg.Sync.ReassignUserID,
	}

	syncService := usersync.NewService(store, roles, settings, notifier, publisher, logger)
	handler := handlers.NewWebhookHandler(verifier, replay, syncService, logger)
	router := server.NewRouter(handler)

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	go func() {
		slog.Info("Clerk sync service listening", slog.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("Server error", slog.String("error", err.Error()))
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.Info("Shutting down server")
	ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.WriteTimeout)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		slog.Error("Server forced to shutdown", slog.String("error", err.Error()))
		os.Exit(1)
	}

	slog.Info("Server stopped gracefully")
}
