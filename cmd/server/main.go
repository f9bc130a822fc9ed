package main

import (
	"context"
	"flag"
	"fmt"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/crystalrace/crystal-server-go/internal/config"
	"github.com/crystalrace/crystal-server-go/internal/game"
	"github.com/crystalrace/crystal-server-go/internal/match"
	"github.com/crystalrace/crystal-server-go/internal/repository"
	"github.com/crystalrace/crystal-server-go/internal/server"
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

	logger.Info("starting crystal server",
		zap.String("version", version),
		zap.String("config", *configPath),
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	// Results and checkpoints go to Postgres when enabled, memory otherwise
	var store match.Store = match.NewMemoryStore()
	if cfg.Database.Enabled {
		db, err := repository.NewDB(ctx, cfg.Database, logger)
		if err != nil {
			logger.Fatal("failed to connect to database", zap.Error(err))
		}
		defer db.Close()
		if err := db.Migrate(ctx); err != nil {
			logger.Fatal("failed to migrate database", zap.Error(err))
		}

		stats := db.Stats()
		logger.Info("database connection pool initialized",
			zap.Int32("total_conns", stats.TotalConns()),
			zap.Int32("idle_conns", stats.IdleConns()),
		)
		store = repository.NewMatchRepository(db)
	} else {
		logger.Warn("database disabled; match results are kept in memory only")
	}

	opts := []match.Option{match.WithStore(store)}
	if cfg.Replay.Enabled {
		opts = append(opts, match.WithRecorder(game.NewReplayRecorder(logger, cfg.Replay.Directory)))
		logger.Info("replay recording enabled", zap.String("directory", cfg.Replay.Directory))
	}

	matchMgr := match.NewManager(match.Config{
		Rules:       cfg.Game.Rules(),
		MaxMatches:  cfg.Server.MaxMatches,
		TurnTimeout: cfg.Server.TurnTimeout,
	}, logger, opts...)
	logger.Info("match manager initialized",
		zap.Int("max_matches", cfg.Server.MaxMatches),
		zap.Duration("turn_timeout", cfg.Server.TurnTimeout),
	)

	if cfg.Server.TurnTimeout > 0 {
		go matchMgr.Run(ctx, cfg.Server.SweepInterval)
	}

	var grpcServer interface{ GracefulStop() }
	if cfg.Server.GRPC.Address != "" {
		srv := server.NewGRPCServer(cfg.Server.GRPC, matchMgr, logger)
		lis, err := net.Listen("tcp", cfg.Server.GRPC.Address)
		if err != nil {
			logger.Fatal("failed to listen", zap.Error(err))
		}
		go func() {
			logger.Info("starting gRPC server", zap.String("address", cfg.Server.GRPC.Address))
			if serveErr := srv.Serve(lis); serveErr != nil {
				logger.Error("gRPC server error", zap.Error(serveErr))
			}
		}()
		grpcServer = srv
	}

	ws := server.NewWebSocketServer(cfg.Server.WebSocket, matchMgr, logger)
	httpServer := server.NewHTTPServer(cfg.Server.WebSocket, ws)
	if cfg.Server.WebSocket.Address != "" {
		go func() {
			if wsErr := server.StartWebSocketServer(httpServer, logger); wsErr != nil {
				logger.Error("WebSocket server error", zap.Error(wsErr))
			}
		}()
	}

	logger.Info("crystal server initialized",
		zap.String("version", version),
		zap.String("grpc_address", cfg.Server.GRPC.Address),
		zap.String("websocket_address", cfg.Server.WebSocket.Address),
	)

	// Wait for termination signal
	sig := <-sigChan
	logger.Info("received shutdown signal", zap.String("signal", sig.String()))

	logger.Info("shutting down gracefully...")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Warn("websocket server shutdown", zap.Error(err))
	}
	ws.CloseAll()
	if grpcServer != nil {
		grpcServer.GracefulStop()
	}

	// Running matches are recorded as abandoned
	for _, sum := range matchMgr.List() {
		if sum.State == match.StatePlaying {
			matchMgr.Remove(shutdownCtx, sum.ID)
		}
	}

	logger.Info("crystal server stopped")
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
