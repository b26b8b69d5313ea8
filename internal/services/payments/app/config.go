package app

import (
	"fmt"
	"time"

	"github.com/louisbranch/paysaga/internal/platform/timeouts"
	"github.com/louisbranch/paysaga/internal/services/payments/domain/money"
	"github.com/louisbranch/paysaga/internal/services/payments/saga"
)

// Defaults for a service assembled without explicit tuning.
const (
	DefaultPartitions           = 8
	DefaultAuthorizationCeiling = money.Amount(1_000_000_00)
	DefaultFeeRateBasisPoints   = 290
	DefaultFixedFee             = money.Amount(30)

	outboxRelayBatch = 64
)

// Config tunes the service runtime.
type Config struct {
	// Partitions is the number of ordered delivery queues per subscriber.
	Partitions int
	Saga       saga.Config
	// AuthorizationCeiling rejects authorizations at or above it.
	AuthorizationCeiling money.Amount
	Fees                 money.FeePolicy
	DeadlineSweep        time.Duration
	OutboxPoll           time.Duration
	OutboxBatch          int
}

// DefaultConfig returns the production defaults.
func DefaultConfig() Config {
	return Config{
		Partitions:           DefaultPartitions,
		Saga:                 saga.DefaultConfig(),
		AuthorizationCeiling: DefaultAuthorizationCeiling,
		Fees: money.FeePolicy{
			RateBasisPoints: DefaultFeeRateBasisPoints,
			Fixed:           DefaultFixedFee,
		},
		DeadlineSweep: timeouts.DeadlineSweep,
		OutboxPoll:    timeouts.OutboxPoll,
		OutboxBatch:   outboxRelayBatch,
	}
}

// withDefaults fills unset fields from DefaultConfig.
func (c Config) withDefaults() Config {
	def := DefaultConfig()
	if c.Partitions <= 0 {
		c.Partitions = def.Partitions
	}
	if c.Saga.Deadline <= 0 {
		c.Saga.Deadline = def.Saga.Deadline
	}
	if c.Saga.CompensationDeadline <= 0 {
		c.Saga.CompensationDeadline = def.Saga.CompensationDeadline
	}
	if c.AuthorizationCeiling <= 0 {
		c.AuthorizationCeiling = def.AuthorizationCeiling
	}
	if c.DeadlineSweep <= 0 {
		c.DeadlineSweep = def.DeadlineSweep
	}
	if c.OutboxPoll <= 0 {
		c.OutboxPoll = def.OutboxPoll
	}
	if c.OutboxBatch <= 0 {
		c.OutboxBatch = def.OutboxBatch
	}
	return c
}

func (c Config) validate() error {
	if err := c.Fees.Validate(); err != nil {
		return fmt.Errorf("fees: %w", err)
	}
	return nil
}
