// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package config defines the vault VM's configuration.
package config

import (
	"encoding/json"
	"errors"
	"time"

	"github.com/luxfi/ids"
	"github.com/luxfi/math/set"

	"github.com/luxfi/vault/fees"
	"github.com/luxfi/vault/owners"
	"github.com/luxfi/vault/ratelimit"
	"github.com/luxfi/vault/timelock"
	"github.com/luxfi/vault/utils/units"
)

var (
	ErrInvalidName      = errors.New("wallet name must not be empty")
	ErrInvalidOwners    = errors.New("invalid owner set")
	ErrInvalidThreshold = errors.New("invalid confirmation threshold")
	ErrInvalidTimelock  = errors.New("invalid default time-lock duration")
	ErrInvalidFee       = errors.New("invalid fee configuration")
	ErrInvalidRateLimit = errors.New("invalid rate-limit configuration")
	ErrInvalidCooldown  = errors.New("invalid emergency cooldown")
)

// Config contains the vault VM's parameters. The owner set, threshold, and
// fee collector come from genesis; the rest may be overridden by node
// configuration.
type Config struct {
	// WalletName is the vault's display name.
	WalletName string `json:"walletName"`

	// Owners is the initial approver set (1-20 unique simple accounts).
	Owners []ids.ShortID `json:"-"`
	// RequiredConfirmations is the quorum for executing a transaction.
	RequiredConfirmations uint32 `json:"requiredConfirmations"`

	// DefaultTimelockDuration applies when a proposal requests a lock
	// without a custom duration.
	DefaultTimelockDuration time.Duration `json:"defaultTimelockDuration"`

	// FeeRateBps is the execution fee in basis points (100 = 1%).
	FeeRateBps uint16 `json:"feeRateBps"`
	// FeeCollector is the only identity allowed to drain the fee pool.
	FeeCollector ids.ShortID `json:"-"`

	// DailyTxLimit caps proposals per owner per day.
	DailyTxLimit uint32 `json:"dailyTxLimit"`
	// ProposalCooldown is the minimum spacing between one owner's proposals.
	ProposalCooldown time.Duration `json:"proposalCooldown"`

	// EmergencyCooldown spaces emergency recoveries.
	EmergencyCooldown time.Duration `json:"emergencyCooldown"`

	// Alert thresholds. A value above the threshold raises a security alert.
	HighValueThreshold    uint64 `json:"highValueThreshold"`
	BatchValueThreshold   uint64 `json:"batchValueThreshold"`
	ConfirmValueThreshold uint64 `json:"confirmValueThreshold"`
}

// DefaultConfig returns the default configuration. Owners and the fee
// collector must still be supplied by genesis before Validate passes.
func DefaultConfig() Config {
	return Config{
		WalletName:              "vault",
		RequiredConfirmations:   2,
		DefaultTimelockDuration: 24 * time.Hour,

		FeeRateBps: 25, // 0.25%

		DailyTxLimit:     50,
		ProposalCooldown: 5 * time.Minute,

		EmergencyCooldown: 24 * time.Hour,

		HighValueThreshold:    100 * units.Lux,
		BatchValueThreshold:   1000 * units.Lux,
		ConfirmValueThreshold: 50 * units.Lux,
	}
}

// ParseConfig overlays JSON settings over base. Empty input returns base
// unchanged.
func ParseConfig(base Config, data []byte) (Config, error) {
	cfg := base
	if len(data) == 0 {
		return cfg, nil
	}
	if err := json.Unmarshal(data, &cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks the configuration.
func (c *Config) Validate() error {
	if c.WalletName == "" {
		return ErrInvalidName
	}

	if len(c.Owners) < owners.MinOwners || len(c.Owners) > owners.MaxOwners {
		return ErrInvalidOwners
	}
	seen := set.NewSet[ids.ShortID](len(c.Owners))
	for _, owner := range c.Owners {
		if owner == ids.ShortEmpty || seen.Contains(owner) {
			return ErrInvalidOwners
		}
		seen.Add(owner)
	}

	if c.RequiredConfirmations < 1 || int(c.RequiredConfirmations) > len(c.Owners) {
		return ErrInvalidThreshold
	}

	if c.DefaultTimelockDuration < 0 || c.DefaultTimelockDuration > timelock.MaxDuration {
		return ErrInvalidTimelock
	}

	if c.FeeRateBps > fees.MaxRateBps {
		return ErrInvalidFee
	}
	if c.FeeCollector == ids.ShortEmpty {
		return ErrInvalidFee
	}

	if c.DailyTxLimit < ratelimit.MinDailyLimit || c.DailyTxLimit > ratelimit.MaxDailyLimit {
		return ErrInvalidRateLimit
	}
	if c.ProposalCooldown < ratelimit.MinCooldown || c.ProposalCooldown > ratelimit.MaxCooldown {
		return ErrInvalidRateLimit
	}

	if c.EmergencyCooldown <= 0 {
		return ErrInvalidCooldown
	}

	return nil
}
