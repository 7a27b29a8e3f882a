// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package fees implements the execution fee schedule and the collected-fee
// pool.
package fees

import (
	"fmt"
	"sync"

	safemath "github.com/luxfi/math"

	"github.com/luxfi/vault/errs"
)

const (
	// MaxRateBps caps the fee rate at 5%.
	MaxRateBps uint16 = 500

	bpsDenominator uint64 = 10_000
)

var (
	ErrRateTooHigh = fmt.Errorf("%w: fee rate above %d bps", errs.ErrPolicy, MaxRateBps)
	ErrEmptyPool   = fmt.Errorf("%w: no fees to collect", errs.ErrState)
)

// Fee returns floor(amount * rateBps / 10000). The split keeps every
// intermediate product inside uint64 for any rate up to 10000 bps.
func Fee(amount uint64, rateBps uint16) uint64 {
	quo := amount / bpsDenominator
	rem := amount % bpsDenominator
	return quo*uint64(rateBps) + rem*uint64(rateBps)/bpsDenominator
}

// Calculator applies the configured rate and accumulates collected fees.
type Calculator struct {
	mu      sync.RWMutex
	rateBps uint16
	pool    uint64
}

// New returns a calculator with the given rate.
func New(rateBps uint16) (*Calculator, error) {
	if rateBps > MaxRateBps {
		return nil, ErrRateTooHigh
	}
	return &Calculator{rateBps: rateBps}, nil
}

// Fee returns the fee deducted from a transfer of amount at the current rate.
func (c *Calculator) Fee(amount uint64) uint64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return Fee(amount, c.rateBps)
}

// RateBps returns the current fee rate.
func (c *Calculator) RateBps() uint16 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.rateBps
}

// SetRate changes the fee rate.
func (c *Calculator) SetRate(rateBps uint16) error {
	if rateBps > MaxRateBps {
		return ErrRateTooHigh
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.rateBps = rateBps
	return nil
}

// Accrue adds a deducted fee to the pool.
func (c *Calculator) Accrue(fee uint64) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	pool, err := safemath.Add64(c.pool, fee)
	if err != nil {
		return fmt.Errorf("%w: fee pool overflow", errs.ErrValidation)
	}
	c.pool = pool
	return nil
}

// Refund removes a previously accrued fee from the pool. Used to roll back
// the accrual of a failed execution.
func (c *Calculator) Refund(fee uint64) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	pool, err := safemath.Sub(c.pool, fee)
	if err != nil {
		return fmt.Errorf("%w: fee pool underflow", errs.ErrValidation)
	}
	c.pool = pool
	return nil
}

// Pool returns the accumulated fees awaiting collection.
func (c *Calculator) Pool() uint64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.pool
}

// Drain zeroes the pool and returns what it held. The pool is emptied before
// any external transfer is attempted so a reentering caller observes nothing
// left to collect.
func (c *Calculator) Drain() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	pool := c.pool
	c.pool = 0
	return pool
}

// Restore overwrites the pool from persisted state.
func (c *Calculator) Restore(pool uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.pool = pool
}
