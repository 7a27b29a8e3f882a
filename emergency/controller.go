// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package emergency tracks the vault's emergency mode and the gate on
// expedited recovery.
//
// The activation and recovery gates count the current owner-set size, not
// recorded votes. A single owner can activate whenever the set is already
// large enough, and removing owners below the bar retroactively blocks
// recovery.
package emergency

import (
	"fmt"
	"sync"
	"time"

	"github.com/luxfi/vault/errs"
)

// MinThreshold floors the emergency threshold regardless of how low the
// normal confirmation threshold is set.
const MinThreshold uint32 = 2

var (
	ErrAlreadyActive      = fmt.Errorf("%w: emergency mode already active", errs.ErrEmergency)
	ErrNotActive          = fmt.Errorf("%w: emergency mode not active", errs.ErrEmergency)
	ErrInsufficientOwners = fmt.Errorf("%w: owner count below emergency threshold", errs.ErrEmergency)
	ErrCooldownActive     = fmt.Errorf("%w: emergency cooldown not elapsed", errs.ErrEmergency)
)

// Controller is the emergency-mode state machine.
type Controller struct {
	mu         sync.RWMutex
	active     bool
	threshold  uint32
	cooldown   time.Duration
	lastAction uint64
}

// New returns a controller whose threshold is derived from the normal
// confirmation threshold.
func New(normalThreshold uint32, cooldown time.Duration) *Controller {
	return &Controller{
		threshold: max(normalThreshold, MinThreshold),
		cooldown:  cooldown,
	}
}

// SetNormalThreshold rederives the emergency threshold after the normal
// threshold changed.
func (c *Controller) SetNormalThreshold(normalThreshold uint32) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.threshold = max(normalThreshold, MinThreshold)
}

// Activate enters emergency mode. The gate is the live owner count.
func (c *Controller) Activate(ownerCount int, now time.Time) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.active {
		return ErrAlreadyActive
	}
	if ownerCount < int(c.threshold) {
		return ErrInsufficientOwners
	}
	c.active = true
	c.lastAction = unix(now)
	return nil
}

// Deactivate returns to normal operation.
func (c *Controller) Deactivate() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.active {
		return ErrNotActive
	}
	c.active = false
	return nil
}

// CheckRecovery verifies the gates on an emergency withdrawal: emergency mode
// active, cooldown elapsed since the last emergency action, and the live
// owner count at or above the threshold.
func (c *Controller) CheckRecovery(ownerCount int, now time.Time) error {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if !c.active {
		return ErrNotActive
	}
	if unix(now) < c.lastAction+uint64(c.cooldown/time.Second) {
		return ErrCooldownActive
	}
	if ownerCount < int(c.threshold) {
		return ErrInsufficientOwners
	}
	return nil
}

// RecordAction stamps the time of a completed emergency action.
func (c *Controller) RecordAction(now time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lastAction = unix(now)
}

// Active reports whether emergency mode is engaged.
func (c *Controller) Active() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.active
}

// Threshold returns the emergency threshold.
func (c *Controller) Threshold() uint32 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.threshold
}

// LastAction returns the unix timestamp of the most recent emergency action.
func (c *Controller) LastAction() uint64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.lastAction
}

// Cooldown returns the recovery cooldown.
func (c *Controller) Cooldown() time.Duration {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.cooldown
}

// Restore overwrites the controller's state from persistence.
func (c *Controller) Restore(active bool, lastAction uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.active = active
	c.lastAction = lastAction
}

func unix(t time.Time) uint64 {
	return uint64(max(t.Unix(), 0))
}
