package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/urfave/cli/v2"
	"go.uber.org/zap"

	"github.com/microbecode/file-merkle-proofs/pkg/config"
	"github.com/microbecode/file-merkle-proofs/pkg/logger"
	"github.com/microbecode/file-merkle-proofs/pkg/merkle"
	"github.com/microbecode/file-merkle-proofs/pkg/node"
	"github.com/microbecode/file-merkle-proofs/pkg/storage"
	"github.com/microbecode/file-merkle-proofs/pkg/storage/badger"
	"github.com/microbecode/file-merkle-proofs/pkg/storage/memory"
	"github.com/microbecode/file-merkle-proofs/pkg/storage/redis"
)

const shutdownTimeout = 10 * time.Second

func main() {
	app := &cli.App{
		Name:  "merkle-server",
		Usage: "Stores uploaded files and serves merkle inclusion proofs for them",
		Description: `Holds one batch of files at a time. Every upload replaces the previous batch
and rebuilds the merkle tree over the files in upload order. Clients fetch any file
by its leaf index together with a proof against the root they computed themselves.`,
		Version: "1.0.0",
		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:    "port",
				Aliases: []string{"p"},
				Value:   config.DefaultPort,
				Usage:   "HTTP server port",
				EnvVars: []string{config.EnvMerklePort},
			},
			&cli.StringFlag{
				Name:    "hash",
				Value:   merkle.DefaultHashAlgorithm,
				Usage:   fmt.Sprintf("Hash algorithm: %s", config.GetSupportedHashAlgorithmsString()),
				EnvVars: []string{config.EnvMerkleHashAlgorithm},
			},
			&cli.StringFlag{
				Name:    "persistence",
				Value:   config.PersistenceTypeBadger.String(),
				Usage:   fmt.Sprintf("File store backend: %s", config.GetSupportedPersistenceTypesString()),
				EnvVars: []string{config.EnvMerklePersistence},
			},
			&cli.StringFlag{
				Name:    "data-dir",
				Value:   config.DefaultDataDir,
				Usage:   "Directory for the badger file store",
				EnvVars: []string{config.EnvMerkleDataDir},
			},
			&cli.StringFlag{
				Name:    "redis-address",
				Value:   config.DefaultRedisAddress,
				Usage:   "Redis host:port for the redis file store",
				EnvVars: []string{config.EnvMerkleRedisAddress},
			},
			&cli.StringFlag{
				Name:    "redis-password",
				Usage:   "Redis password",
				EnvVars: []string{config.EnvMerkleRedisPassword},
			},
			&cli.IntFlag{
				Name:    "redis-db",
				Usage:   "Redis database number (0-15)",
				EnvVars: []string{config.EnvMerkleRedisDB},
			},
			&cli.StringFlag{
				Name:    "redis-key-prefix",
				Usage:   "Prefix for every redis key",
				EnvVars: []string{config.EnvMerkleRedisKeyPrefix},
			},
			&cli.Float64Flag{
				Name:    "rate-limit",
				Value:   config.DefaultRateLimit,
				Usage:   "Requests per second across all clients (0 disables)",
				EnvVars: []string{config.EnvMerkleRateLimit},
			},
			&cli.IntFlag{
				Name:    "rate-burst",
				Value:   config.DefaultRateBurst,
				Usage:   "Burst size for the rate limiter",
				EnvVars: []string{config.EnvMerkleRateBurst},
			},
			&cli.Int64Flag{
				Name:    "max-upload-bytes",
				Value:   config.DefaultMaxUploadBytes,
				Usage:   "Maximum size of an upload request body",
				EnvVars: []string{config.EnvMerkleMaxUploadBytes},
			},
			&cli.BoolFlag{
				Name:    "verbose",
				Usage:   "Enable verbose logging",
				EnvVars: []string{config.EnvMerkleVerbose},
			},
		},
		Action: runServer,
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatalf("Application error: %v", err)
	}
}

func parseServerConfig(c *cli.Context) *config.ServerConfig {
	return &config.ServerConfig{
		Port:            c.Int("port"),
		HashAlgorithm:   c.String("hash"),
		PersistenceType: config.PersistenceType(c.String("persistence")),
		DataDir:         c.String("data-dir"),
		Redis: config.RedisConfig{
			Address:   c.String("redis-address"),
			Password:  c.String("redis-password"),
			DB:        c.Int("redis-db"),
			KeyPrefix: c.String("redis-key-prefix"),
		},
		RateLimit:      c.Float64("rate-limit"),
		RateBurst:      c.Int("rate-burst"),
		MaxUploadBytes: c.Int64("max-upload-bytes"),
		Debug:          c.Bool("verbose"),
	}
}

func newFileStore(cfg *config.ServerConfig, l *zap.Logger) (storage.IFileStore, error) {
	switch cfg.PersistenceType {
	case config.PersistenceTypeMemory:
		l.Sugar().Warnw("Using in-memory file store - ALL FILES WILL BE LOST ON RESTART")
		return memory.NewMemoryStore(), nil
	case config.PersistenceTypeBadger:
		return badger.NewBadgerStore(cfg.DataDir, l)
	case config.PersistenceTypeRedis:
		return redis.NewRedisStore(&redis.RedisConfig{
			Address:   cfg.Redis.Address,
			Password:  cfg.Redis.Password,
			DB:        cfg.Redis.DB,
			KeyPrefix: cfg.Redis.KeyPrefix,
		}, l)
	default:
		return nil, fmt.Errorf("unsupported persistence type: %s", cfg.PersistenceType)
	}
}

func runServer(c *cli.Context) error {
	l, err := logger.NewLogger(&logger.LoggerConfig{Debug: c.Bool("verbose")})
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}
	defer func() { _ = l.Sync() }()

	serverConfig := parseServerConfig(c)
	if err := serverConfig.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	hasher, err := merkle.NewHasher(serverConfig.HashAlgorithm)
	if err != nil {
		return err
	}

	store, err := newFileStore(serverConfig, l)
	if err != nil {
		return fmt.Errorf("failed to open file store: %w", err)
	}
	defer func() {
		if err := store.Close(); err != nil {
			l.Sugar().Errorw("Failed to close file store", "error", err)
		}
	}()

	ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := store.HealthCheck(ctx); err != nil {
		return fmt.Errorf("file store is not healthy: %w", err)
	}

	n, err := node.NewNode(node.Config{
		Port:           serverConfig.Port,
		RateLimit:      serverConfig.RateLimit,
		RateBurst:      serverConfig.RateBurst,
		MaxUploadBytes: serverConfig.MaxUploadBytes,
		Logger:         l,
	}, hasher, store)
	if err != nil {
		return fmt.Errorf("failed to create node: %w", err)
	}

	if err := n.Start(ctx); err != nil {
		return fmt.Errorf("failed to start node: %w", err)
	}

	l.Sugar().Infow("Merkle server running",
		"port", serverConfig.Port,
		"hash_algorithm", hasher.Name(),
		"persistence", serverConfig.PersistenceType,
	)
	l.Sugar().Infow("Available endpoints",
		"upload", "POST /upload",
		"file", "GET /file/{index}",
		"delete_all", "DELETE /delete_all",
		"health", "GET /health")

	<-ctx.Done()
	l.Sugar().Infow("Shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return n.Stop(shutdownCtx)
}
