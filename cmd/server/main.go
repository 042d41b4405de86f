package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/blockfall/blockfall-server-go/internal/catalog"
	"github.com/blockfall/blockfall-server-go/internal/config"
	"github.com/blockfall/blockfall-server-go/internal/game"
	"github.com/blockfall/blockfall-server-go/internal/repository"
	"github.com/blockfall/blockfall-server-go/internal/room"
	"github.com/blockfall/blockfall-server-go/internal/server"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	configPath = flag.String("config", "config/config.yaml", "path to configuration file")
	version    = "dev" // set via ldflags during build
)

func main() {
	flag.Parse()

	// Load configuration
	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	logger, err := initLogger(cfg.Logging)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	logger.Info("starting blockfall server",
		zap.String("version", version),
		zap.String("config", *configPath),
	)

	// Create context that listens for termination signals
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	// Load the ability catalog (embedded table unless overridden)
	cat := catalog.Default()
	if cfg.Game.CatalogPath != "" {
		cat, err = catalog.Load(cfg.Game.CatalogPath)
		if err != nil {
			logger.Fatal("failed to load ability catalog",
				zap.String("path", cfg.Game.CatalogPath),
				zap.Error(err),
			)
		}
	}
	logger.Info("ability catalog loaded", zap.Int("abilities", len(cat.All())))

	// Initialize match persistence when configured
	var recorder room.MatchRecorder
	if cfg.Database.Enabled {
		db, err := repository.NewDB(ctx, cfg.Database, logger)
		if err != nil {
			logger.Fatal("failed to connect to database", zap.Error(err))
		}
		defer db.Close()

		stats := db.Stats()
		logger.Info("database connection pool initialized",
			zap.Int32("total_conns", stats.TotalConns()),
			zap.Int32("idle_conns", stats.IdleConns()),
		)

		if err := db.EnsureSchema(ctx); err != nil {
			logger.Fatal("failed to ensure database schema", zap.Error(err))
		}
		recorder = repository.NewMatchRepository(db)
	} else {
		logger.Info("database disabled; finished matches will not be recorded")
	}

	// Initialize replay recording when configured
	var replays *game.Recorder
	if cfg.Replay.Enabled {
		replays = game.NewRecorder(cfg.Replay.Directory, logger)
		logger.Info("replay recording enabled",
			zap.String("directory", cfg.Replay.Directory),
		)
	}

	// Initialize room manager
	rooms := room.NewManager(room.ManagerConfig{
		Catalog:  cat,
		Recorder: recorder,
		Replays:  replays,
		Engine: game.Config{
			Width:        cfg.Game.BoardWidth,
			Height:       cfg.Game.BoardHeight,
			QueueSize:    cfg.Game.QueueSize,
			StarCapacity: cfg.Game.StarCapacity,
			BlackholeCap: cfg.Game.BlackholeCap,
			Catalog:      cat,
		},
		DefaultPersona: cfg.AI.DefaultPersona,
		DecisionPeriod: cfg.AI.DecisionPeriod,
	}, logger)
	logger.Info("room manager initialized",
		zap.String("default_persona", cfg.AI.DefaultPersona),
		zap.Duration("ai_decision_period", cfg.AI.DecisionPeriod),
	)

	srv := server.New(cfg, rooms, logger)

	// Start websocket server
	go func() {
		if serveErr := srv.Run(); serveErr != nil {
			logger.Error("websocket server error", zap.Error(serveErr))
		}
	}()

	logger.Info("blockfall server initialized",
		zap.String("version", version),
		zap.String("address", cfg.Server.Address),
		zap.Int("board_width", cfg.Game.BoardWidth),
		zap.Int("board_height", cfg.Game.BoardHeight),
	)

	// Wait for termination signal
	sig := <-sigChan
	logger.Info("received shutdown signal", zap.String("signal", sig.String()))

	// Graceful shutdown
	logger.Info("shutting down gracefully...")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("websocket server shutdown incomplete", zap.Error(err))
	}
	rooms.CloseAll()

	logger.Info("blockfall server stopped")
}

// initLogger initializes the zap logger based on configuration
func initLogger(cfg config.LoggingConfig) (*zap.Logger, error) {
	var level zapcore.Level
	switch cfg.Level {
	case "debug":
		level = zapcore.DebugLevel
	case "info":
		level = zapcore.InfoLevel
	case "warn":
		level = zapcore.WarnLevel
	case "error":
		level = zapcore.ErrorLevel
	default:
		level = zapcore.InfoLevel
	}

	var zapCfg zap.Config
	if cfg.Format == "json" {
		zapCfg = zap.NewProductionConfig()
	} else {
		zapCfg = zap.NewDevelopmentConfig()
		zapCfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	}

	zapCfg.Level = zap.NewAtomicLevelAt(level)

	return zapCfg.Build()
}
