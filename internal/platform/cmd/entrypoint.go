// Package cmd holds the shared startup sequence for paysaga binaries.
package cmd

import (
	"context"
	"errors"
	"flag"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/louisbranch/paysaga/internal/platform/config"
	"github.com/louisbranch/paysaga/internal/platform/otel"
	"github.com/louisbranch/paysaga/internal/platform/timeouts"
)

// Telemetry resource names.
const (
	ServicePayments = "payments"
	ServiceSimulate = "payments-simulate"
)

var (
	errConfigTarget = errors.New("config target is required")
	errFlagSet      = errors.New("flag set is required")
	errServiceName  = errors.New("service name is required")
	errRunFunc      = errors.New("run function is required")
)

// Load fills cfg from PAYSAGA_* variables, lets bind declare flags defaulting
// to those values and parses args, so a flag overrides its variable. bind may
// be nil.
func Load[T any](cfg *T, fs *flag.FlagSet, args []string, bind func(*flag.FlagSet, *T)) error {
	switch {
	case cfg == nil:
		return errConfigTarget
	case fs == nil:
		return errFlagSet
	}
	if err := config.ParseEnv(cfg); err != nil {
		return err
	}
	if bind != nil {
		bind(fs, cfg)
	}
	if args == nil {
		args = []string{}
	}
	return fs.Parse(args)
}

type runner struct {
	logger   *zap.Logger
	shutdown time.Duration
}

// Option tunes Run.
type Option func(*runner)

// WithLogger reports telemetry shutdown failures to logger.
func WithLogger(logger *zap.Logger) Option {
	return func(r *runner) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// WithShutdownTimeout bounds the telemetry flush after fn returns.
func WithShutdownTimeout(d time.Duration) Option {
	return func(r *runner) {
		if d > 0 {
			r.shutdown = d
		}
	}
}

// Run installs tracing for service, runs fn and flushes spans once fn returns.
// fn's error is returned as is.
func Run(ctx context.Context, service string, fn func(context.Context) error, opts ...Option) error {
	if service = strings.TrimSpace(service); service == "" {
		return errServiceName
	}
	if fn == nil {
		return errRunFunc
	}
	if ctx == nil {
		ctx = context.Background()
	}
	r := runner{logger: zap.NewNop(), shutdown: timeouts.Shutdown}
	for _, opt := range opts {
		opt(&r)
	}

	flush, err := otel.Setup(ctx, service)
	if err != nil {
		return err
	}
	defer r.flush(service, flush)
	return fn(ctx)
}

// flush runs detached from the caller's context, which is usually cancelled
// by the time fn returns.
func (r runner) flush(service string, flush func(context.Context) error) {
	ctx, cancel := context.WithTimeout(context.Background(), r.shutdown)
	defer cancel()
	if err := flush(ctx); err != nil {
		r.logger.Warn("flush telemetry", zap.String("service", service), zap.Error(err))
	}
}
