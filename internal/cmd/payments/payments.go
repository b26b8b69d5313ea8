// Package payments parses payments command flags and starts the saga runtime.
package payments

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"time"

	"go.uber.org/zap"

	entrypoint "github.com/louisbranch/paysaga/internal/platform/cmd"
	"github.com/louisbranch/paysaga/internal/platform/logging"
	"github.com/louisbranch/paysaga/internal/random"
	"github.com/louisbranch/paysaga/internal/services/payments/app"
	"github.com/louisbranch/paysaga/internal/services/payments/domain/event"
	"github.com/louisbranch/paysaga/internal/services/payments/domain/money"
	"github.com/louisbranch/paysaga/internal/services/payments/domain/outcome"
	"github.com/louisbranch/paysaga/internal/services/payments/saga"
	"github.com/louisbranch/paysaga/internal/services/payments/storage/redisstream"
)

// Config holds payments command configuration.
type Config struct {
	Storage     string `env:"STORAGE" envDefault:"memory"`
	SQLitePath  string `env:"SQLITE_PATH" envDefault:"data/payments.db"`
	PostgresDSN string `env:"POSTGRES_DSN"`
	Outbox      bool   `env:"OUTBOX" envDefault:"true"`

	RedisAddr   string `env:"REDIS_ADDR"`
	RedisPrefix string `env:"REDIS_STREAM_PREFIX" envDefault:"paysaga:events"`

	Partitions           int           `env:"PARTITIONS" envDefault:"8"`
	SagaDeadline         time.Duration `env:"SAGA_DEADLINE" envDefault:"30s"`
	CompensationDeadline time.Duration `env:"COMPENSATION_DEADLINE" envDefault:"60s"`
	FeeRateBasisPoints   int64         `env:"FEE_RATE_BPS" envDefault:"290"`
	FixedFee             int64         `env:"FIXED_FEE" envDefault:"30"`
	AuthorizationCeiling int64         `env:"AUTHORIZATION_CEILING" envDefault:"100000000"`

	Simulate     int     `env:"SIMULATE"`
	Seed         uint64  `env:"SEED"`
	ApprovalRate float64 `env:"APPROVAL_RATE" envDefault:"0.9"`

	Logging logging.Config
}

// ParseConfig parses environment and flags into a Config.
func ParseConfig(fs *flag.FlagSet, args []string) (Config, error) {
	var cfg Config
	if err := entrypoint.Load(&cfg, fs, args, bindFlags); err != nil {
		return Config{}, err
	}
	if cfg.Simulate < 0 {
		return Config{}, fmt.Errorf("simulate must not be negative, got %d", cfg.Simulate)
	}
	return cfg, nil
}

func bindFlags(fs *flag.FlagSet, cfg *Config) {
	fs.StringVar(&cfg.Storage, "storage", cfg.Storage, "Storage backend: memory, sqlite or postgres")
	fs.StringVar(&cfg.SQLitePath, "sqlite-path", cfg.SQLitePath, "SQLite database path")
	fs.StringVar(&cfg.PostgresDSN, "postgres-dsn", cfg.PostgresDSN, "Postgres connection string")
	fs.BoolVar(&cfg.Outbox, "outbox", cfg.Outbox, "Relay sqlite events through the dispatch outbox")
	fs.StringVar(&cfg.RedisAddr, "redis-addr", cfg.RedisAddr, "Forward events to Redis streams at this address")
	fs.IntVar(&cfg.Partitions, "partitions", cfg.Partitions, "Ordered delivery queues per subscriber")
	fs.DurationVar(&cfg.SagaDeadline, "saga-deadline", cfg.SagaDeadline, "Deadline for a payment to settle")
	fs.IntVar(&cfg.Simulate, "simulate", cfg.Simulate, "Submit N synthetic payments, print the read models and exit")
	fs.Uint64Var(&cfg.Seed, "seed", cfg.Seed, "Simulation seed (0 draws one)")
	fs.Float64Var(&cfg.ApprovalRate, "approval-rate", cfg.ApprovalRate, "Simulated processor and rail approval rate")
	fs.StringVar(&cfg.Logging.Mode, "log-mode", cfg.Logging.Mode, "Log encoder: development or production")
	fs.StringVar(&cfg.Logging.Level, "log-level", cfg.Logging.Level, "Minimum log level")
}

// Run starts the payments service, or a simulation when cfg.Simulate is set.
func Run(ctx context.Context, cfg Config) error {
	logger, err := logging.New(cfg.Logging)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	service := entrypoint.ServicePayments
	if cfg.Simulate > 0 {
		service = entrypoint.ServiceSimulate
	}
	return entrypoint.Run(ctx, service, func(ctx context.Context) error {
		return run(ctx, cfg, logger, os.Stdout)
	}, entrypoint.WithLogger(logger))
}

func run(ctx context.Context, cfg Config, logger *zap.Logger, out io.Writer) error {
	stores, err := app.OpenStores(ctx, app.StorageConfig{
		Backend:     cfg.Storage,
		SQLitePath:  cfg.SQLitePath,
		PostgresDSN: cfg.PostgresDSN,
		Outbox:      cfg.Outbox && cfg.Storage == app.BackendSQLite,
	}, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := stores.Close(); err != nil {
			logger.Warn("close stores", zap.Error(err))
		}
	}()

	opts := app.Options{
		Config: serviceConfig(cfg),
		Stores: stores,
		Logger: logger,
		OnDeadLetter: func(subscriber string, evt event.Event, err error) {
			logger.Error("event dead-lettered", zap.String("subscriber", subscriber), zap.String("event_id", evt.ID()), zap.Error(err))
		},
	}
	if cfg.RedisAddr != "" {
		client, err := redisstream.Dial(ctx, cfg.RedisAddr)
		if err != nil {
			return err
		}
		defer func() { _ = client.Close() }()
		forward, err := redisstream.NewPublisher(client, redisstream.Options{
			Prefix:     cfg.RedisPrefix,
			Partitions: cfg.Partitions,
			Logger:     logging.Named(logger, "redisstream"),
		})
		if err != nil {
			return err
		}
		opts.Forward = forward
	}

	if cfg.Simulate == 0 {
		svc, err := app.New(opts)
		if err != nil {
			return err
		}
		logger.Info("payments service running", zap.String("storage", cfg.Storage))
		return svc.Run(ctx)
	}

	rng, seed, err := random.NewSource(cfg.Seed)
	if err != nil {
		return err
	}
	if opts.Processor, err = outcome.NewRandom(seed, cfg.ApprovalRate); err != nil {
		return err
	}
	if opts.SettlementRail, err = outcome.NewRandom(seed+1, cfg.ApprovalRate); err != nil {
		return err
	}
	logger.Info("simulating payments", zap.Int("count", cfg.Simulate), zap.Uint64("seed", seed))
	svc, err := app.New(opts)
	if err != nil {
		return err
	}
	return runSimulation(ctx, svc, Simulation{Payments: cfg.Simulate, Amounts: rng}, out)
}

func serviceConfig(cfg Config) app.Config {
	sc := app.DefaultConfig()
	sc.Partitions = cfg.Partitions
	sc.Saga = saga.Config{Deadline: cfg.SagaDeadline, CompensationDeadline: cfg.CompensationDeadline}
	sc.AuthorizationCeiling = money.Amount(cfg.AuthorizationCeiling)
	sc.Fees = money.FeePolicy{RateBasisPoints: cfg.FeeRateBasisPoints, Fixed: money.Amount(cfg.FixedFee)}
	return sc
}

// runSimulation runs svc in the background for the duration of one simulation.
func runSimulation(ctx context.Context, svc *app.Service, sim Simulation, out io.Writer) error {
	runCtx, cancel := context.WithCancel(ctx)
	done := make(chan error, 1)
	go func() { done <- svc.Run(runCtx) }()

	simErr := Simulate(ctx, svc, sim, out)
	cancel()
	runErr := <-done
	return errors.Join(simErr, runErr)
}
