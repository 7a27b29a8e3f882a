// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package ratelimit tracks per-owner proposal cooldowns and daily quotas.
//
// Daily counters are keyed per owner and never expire on their own: a count
// recorded yesterday still blocks today once the limit is reached. Only an
// explicit Reset zeroes them.
package ratelimit

import (
	"fmt"
	"sync"
	"time"

	"github.com/luxfi/ids"

	"github.com/luxfi/vault/errs"
	"github.com/luxfi/vault/utils/timer/mockable"
)

const (
	MinDailyLimit uint32 = 1
	MaxDailyLimit uint32 = 1000

	MinCooldown = time.Minute
	MaxCooldown = time.Hour
)

var (
	ErrCooldownActive    = fmt.Errorf("%w: proposal cooldown not elapsed", errs.ErrPolicy)
	ErrDailyLimitReached = fmt.Errorf("%w: daily proposal limit reached", errs.ErrPolicy)
	ErrInvalidLimit      = fmt.Errorf("%w: daily limit outside [%d, %d]", errs.ErrValidation, MinDailyLimit, MaxDailyLimit)
	ErrInvalidCooldown   = fmt.Errorf("%w: cooldown outside [%s, %s]", errs.ErrValidation, MinCooldown, MaxCooldown)
)

// OwnerState is the recorded rate state for one owner.
type OwnerState struct {
	LastTx uint64 `serialize:"true" json:"lastTx"`
	Count  uint32 `serialize:"true" json:"count"`
}

// Limiter enforces the proposal rate policy.
type Limiter struct {
	mu         sync.Mutex
	dailyLimit uint32
	cooldown   time.Duration
	owners     map[ids.ShortID]*OwnerState
	days       map[uint64]uint32
}

// New returns a limiter with the given policy.
func New(dailyLimit uint32, cooldown time.Duration) (*Limiter, error) {
	l := &Limiter{
		owners: make(map[ids.ShortID]*OwnerState),
		days:   make(map[uint64]uint32),
	}
	if err := l.SetLimits(dailyLimit, cooldown); err != nil {
		return nil, err
	}
	return l, nil
}

// CheckAndRecord verifies the cooldown and daily quota for owner and, if both
// pass, records the proposal at now. A failed check records nothing.
func (l *Limiter) CheckAndRecord(owner ids.ShortID, now time.Time) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	nowUnix := uint64(max(now.Unix(), 0))
	state, ok := l.owners[owner]
	if !ok {
		state = &OwnerState{}
		l.owners[owner] = state
	}

	if nowUnix < state.LastTx+uint64(l.cooldown/time.Second) {
		return ErrCooldownActive
	}
	if state.Count >= l.dailyLimit {
		return ErrDailyLimitReached
	}

	state.LastTx = nowUnix
	state.Count++
	l.days[nowUnix/mockable.SecondsPerDay]++
	return nil
}

// SetLimits replaces the daily quota and cooldown.
func (l *Limiter) SetLimits(dailyLimit uint32, cooldown time.Duration) error {
	if dailyLimit < MinDailyLimit || dailyLimit > MaxDailyLimit {
		return ErrInvalidLimit
	}
	if cooldown < MinCooldown || cooldown > MaxCooldown {
		return ErrInvalidCooldown
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	l.dailyLimit = dailyLimit
	l.cooldown = cooldown
	return nil
}

// Reset zeroes every owner's counter and the current day's aggregate.
// Cooldown timestamps are kept.
func (l *Limiter) Reset(now time.Time) {
	l.mu.Lock()
	defer l.mu.Unlock()

	for _, state := range l.owners {
		state.Count = 0
	}
	delete(l.days, uint64(max(now.Unix(), 0))/mockable.SecondsPerDay)
}

// Limits returns the current daily quota and cooldown.
func (l *Limiter) Limits() (uint32, time.Duration) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.dailyLimit, l.cooldown
}

// Owner returns the recorded state for one owner. Unknown owners report a
// zero state.
func (l *Limiter) Owner(owner ids.ShortID) OwnerState {
	l.mu.Lock()
	defer l.mu.Unlock()
	if state, ok := l.owners[owner]; ok {
		return *state
	}
	return OwnerState{}
}

// DayCount returns the aggregate number of proposals recorded in a day
// bucket.
func (l *Limiter) DayCount(day uint64) uint32 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.days[day]
}

// Snapshot copies the limiter's recorded state for persistence.
func (l *Limiter) Snapshot() (map[ids.ShortID]OwnerState, map[uint64]uint32) {
	l.mu.Lock()
	defer l.mu.Unlock()

	owners := make(map[ids.ShortID]OwnerState, len(l.owners))
	for owner, state := range l.owners {
		owners[owner] = *state
	}
	days := make(map[uint64]uint32, len(l.days))
	for day, count := range l.days {
		days[day] = count
	}
	return owners, days
}

// Restore replaces the limiter's recorded state from persistence.
func (l *Limiter) Restore(owners map[ids.ShortID]OwnerState, days map[uint64]uint32) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.owners = make(map[ids.ShortID]*OwnerState, len(owners))
	for owner, state := range owners {
		s := state
		l.owners[owner] = &s
	}
	l.days = make(map[uint64]uint32, len(days))
	for day, count := range days {
		l.days[day] = count
	}
}
