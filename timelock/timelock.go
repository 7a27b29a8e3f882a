// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package timelock computes and checks transaction unlock times.
package timelock

import (
	"fmt"
	"time"

	"github.com/luxfi/vault/errs"
)

// MaxDuration bounds how far in the future a transaction may be locked.
const MaxDuration = 365 * 24 * time.Hour

var (
	ErrDurationTooLong = fmt.Errorf("%w: time lock longer than %s", errs.ErrValidation, MaxDuration)
	ErrLocked          = fmt.Errorf("%w: time lock not expired", errs.ErrPolicy)
)

// Compute returns the unlock timestamp for a new transaction. When no lock
// was requested it returns (0, false). Otherwise the duration is custom if
// nonzero, else def, and must not exceed MaxDuration.
func Compute(requested bool, custom, def time.Duration, now time.Time) (uint64, bool, error) {
	if !requested {
		return 0, false, nil
	}
	duration := custom
	if duration == 0 {
		duration = def
	}
	if duration > MaxDuration {
		return 0, false, ErrDurationTooLong
	}
	return unix(now) + uint64(duration/time.Second), true, nil
}

// Unlocked reports whether a transaction with the given lock state may
// execute at now.
func Unlocked(unlockTime uint64, locked bool, now time.Time) bool {
	return !locked || unix(now) >= unlockTime
}

func unix(t time.Time) uint64 {
	return uint64(max(t.Unix(), 0))
}
