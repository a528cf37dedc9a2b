package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	gorillaws "github.com/gorilla/websocket"
	"github.com/joho/godotenv"
	"github.com/jonboulle/clockwork"
	"github.com/skills-gamification/internal/auth"
	"github.com/skills-gamification/internal/badge"
	"github.com/skills-gamification/internal/config"
	"github.com/skills-gamification/internal/domain"
	"github.com/skills-gamification/internal/drills"
	"github.com/skills-gamification/internal/handler"
	"github.com/skills-gamification/internal/kafka"
	"github.com/skills-gamification/internal/memory"
	"github.com/skills-gamification/internal/postgres"
	"github.com/skills-gamification/internal/rank"
	"github.com/skills-gamification/internal/redis"
	"github.com/skills-gamification/internal/scoring"
	"github.com/skills-gamification/internal/service"
	"github.com/skills-gamification/internal/store"
	"github.com/skills-gamification/internal/websocket"
	"github.com/skills-gamification/internal/worker"
)

func main() {
	configPath := flag.String("config", "config.yaml", "Path to configuration file")
	flag.Parse()

	// .env is optional; values already in the environment win
	_ = godotenv.Load()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	})).With("service", "gamification")
	slog.SetDefault(logger)

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Warn("failed to load config file, using defaults", "error", err)
		cfg = config.DefaultConfig()
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	clock := clockwork.NewRealClock()

	location, err := cfg.Gamification.Location()
	if err != nil {
		logger.Error("invalid timezone", "error", err)
		os.Exit(1)
	}

	var (
		repo        store.Repository
		drillSource drills.Source
	)
	switch cfg.Storage.Driver {
	case "memory":
		logger.Warn("using in-memory storage, data is lost on restart")
		repo = memory.NewRepository()
		drillSource = drills.DefaultDrills()

	default:
		logger.Info("connecting to PostgreSQL", "host", cfg.Postgres.Host, "database", cfg.Postgres.Database)
		postgresRepo, err := postgres.NewRepository(&cfg.Postgres, logger)
		if err != nil {
			logger.Error("failed to connect to PostgreSQL", "error", err)
			os.Exit(1)
		}
		defer postgresRepo.Close()
		logger.Info("connected to PostgreSQL")

		if err := postgresRepo.RunMigrations(ctx); err != nil {
			logger.Error("failed to run migrations", "error", err)
			os.Exit(1)
		}
		if err := postgresRepo.SeedCatalogs(ctx, badge.DefaultDefinitions, rank.DefaultDefinitions); err != nil {
			logger.Error("failed to seed catalogs", "error", err)
			os.Exit(1)
		}
		repo = postgresRepo
		drillSource = postgres.NewDrillSource(postgresRepo)
	}

	badgeCatalog, rankCatalog, err := loadCatalogs(ctx, repo, domain.Currency(cfg.Gamification.RankCurrency))
	if err != nil {
		logger.Error("failed to load catalogs", "error", err)
		os.Exit(1)
	}
	logger.Info("catalogs loaded", "badges", len(badgeCatalog.All()), "ranks", len(rankCatalog.Definitions()))

	drillCatalog := drills.NewCatalog(drillSource, cfg.Gamification.DrillCacheSize, cfg.Gamification.DrillCacheTTL, clock, logger)

	gamificationService := service.NewGamificationService(
		repo,
		drillCatalog,
		scoring.NewDefaultPolicy(),
		rankCatalog,
		badgeCatalog,
		service.Options{
			Location:           location,
			Milestones:         cfg.Gamification.Milestones,
			MilestoneBonus:     cfg.Gamification.MilestoneBonus,
			BadgeAwardCurrency: domain.Currency(cfg.Gamification.BadgeAwardCurrency),
			DrillLookupTimeout: cfg.Gamification.DrillLookupTimeout,
			LeaderboardLimit:   cfg.Gamification.LeaderboardLimit,
			LeaderboardMax:     cfg.Gamification.LeaderboardMax,
		},
		clock,
		logger,
	)

	// Realtime leaderboard cache
	if cfg.Redis.Enabled {
		logger.Info("connecting to Redis", "addr", cfg.Redis.Addr)
		leaderboard, err := redis.NewLeaderboard(&cfg.Redis, logger)
		if err != nil {
			logger.Warn("failed to connect to Redis, serving leaderboards from the database", "error", err)
		} else {
			defer leaderboard.Close()
			gamificationService.SetLeaderboard(leaderboard)
			logger.Info("connected to Redis")
		}
	}

	// Event publication to Kafka
	if cfg.Kafka.Enabled && cfg.Kafka.PublishEvents {
		publisher, err := kafka.NewPublisher(&cfg.Kafka, logger)
		if err != nil {
			logger.Warn("failed to create event publisher, continuing without it", "error", err)
		} else {
			defer publisher.Close()
			gamificationService.AddNotifier(publisher)
			logger.Info("publishing events", "topic", cfg.Kafka.EventsTopic)
		}
	}

	// Live push
	var (
		wsHub      *websocket.Hub
		wsUpgrader *gorillaws.Upgrader
	)
	if cfg.WebSocket.Enabled {
		wsHub = websocket.NewHub(logger)
		wsUpgrader = websocket.NewUpgrader(cfg.WebSocket)
		go wsHub.Run()
		gamificationService.AddNotifier(wsHub)
		logger.Info("WebSocket hub initialized")
	}

	reconcileWorker := worker.NewReconcileWorker(gamificationService, &cfg.Reconcile, clock, logger)
	if cfg.Reconcile.OnStartup {
		reconcileWorker.RunOnce(ctx)
	}
	if cfg.Reconcile.Enabled {
		if err := reconcileWorker.Start(ctx); err != nil {
			logger.Error("failed to start reconcile worker", "error", err)
			os.Exit(1)
		}
	}

	// Workout completions from Kafka
	var kafkaConsumer *kafka.Consumer
	if cfg.Kafka.Enabled {
		logger.Info("initializing Kafka consumer",
			"brokers", cfg.Kafka.Brokers,
			"topic", cfg.Kafka.Topic,
		)
		kafkaConsumer, err = kafka.NewConsumer(&cfg.Kafka, gamificationService, logger)
		if err != nil {
			logger.Warn("failed to create Kafka consumer, continuing without Kafka", "error", err)
			kafkaConsumer = nil
		} else if err := kafkaConsumer.Start(); err != nil {
			logger.Warn("failed to start Kafka consumer, continuing without Kafka", "error", err)
			kafkaConsumer = nil
		} else {
			logger.Info("Kafka consumer started successfully")
		}
	}

	verifier, err := auth.NewVerifier(auth.Config{
		Mode:     auth.Mode(cfg.Auth.Mode),
		Secret:   cfg.Auth.Secret,
		Issuer:   cfg.Auth.Issuer,
		Audience: cfg.Auth.Audience,
	})
	if err != nil {
		logger.Error("failed to configure authentication", "error", err)
		os.Exit(1)
	}

	httpHandler := handler.NewHandler(gamificationService, verifier, wsHub, wsUpgrader, logger)

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      httpHandler.Router(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	go func() {
		logger.Info("starting HTTP server", "port", cfg.Server.Port, "storage", cfg.Storage.Driver, "auth", cfg.Auth.Mode)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("HTTP server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	// Stop intake first so nothing new is recorded while draining
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("failed to shutdown server", "error", err)
	}

	if kafkaConsumer != nil {
		if err := kafkaConsumer.Stop(); err != nil {
			logger.Error("failed to stop Kafka consumer", "error", err)
		}
	}

	if err := reconcileWorker.Stop(); err != nil {
		logger.Error("failed to stop reconcile worker", "error", err)
	}

	if wsHub != nil {
		wsHub.Stop()
	}

	logger.Info("server stopped")
}

// loadCatalogs reads the badge and rank catalogs from the store
func loadCatalogs(ctx context.Context, repo store.Repository, rankCurrency domain.Currency) (*badge.Catalog, *rank.Catalog, error) {
	badgeDefs, err := repo.ListBadgeDefinitions(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("listing badge definitions: %w", err)
	}
	badges, err := badge.NewCatalog(badgeDefs)
	if err != nil {
		return nil, nil, err
	}

	rankDefs, err := repo.ListRankDefinitions(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("listing rank definitions: %w", err)
	}
	ranks, err := rank.NewCatalog(rankCurrency, rankDefs)
	if err != nil {
		return nil, nil, err
	}
	return badges, ranks, nil
}
