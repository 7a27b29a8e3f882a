// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package ratelimit

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/luxfi/ids"

	"github.com/luxfi/vault/errs"
)

var testStart = time.Unix(1_700_000_000, 0)

func TestNewValidatesLimits(t *testing.T) {
	require := require.New(t)

	_, err := New(0, 5*time.Minute)
	require.ErrorIs(err, ErrInvalidLimit)

	_, err = New(MaxDailyLimit+1, 5*time.Minute)
	require.ErrorIs(err, ErrInvalidLimit)

	_, err = New(50, 59*time.Second)
	require.ErrorIs(err, ErrInvalidCooldown)

	_, err = New(50, time.Hour+time.Second)
	require.ErrorIs(err, ErrInvalidCooldown)

	l, err := New(50, time.Minute)
	require.NoError(err)
	require.NotNil(l)
}

func TestCooldown(t *testing.T) {
	require := require.New(t)

	l, err := New(50, time.Minute)
	require.NoError(err)

	owner := ids.GenerateTestShortID()
	require.NoError(l.CheckAndRecord(owner, testStart))

	err = l.CheckAndRecord(owner, testStart.Add(59*time.Second))
	require.ErrorIs(err, ErrCooldownActive)
	require.ErrorIs(err, errs.ErrPolicy)

	require.NoError(l.CheckAndRecord(owner, testStart.Add(time.Minute)))
}

func TestCooldownIsPerOwner(t *testing.T) {
	require := require.New(t)

	l, err := New(50, time.Minute)
	require.NoError(err)

	require.NoError(l.CheckAndRecord(ids.GenerateTestShortID(), testStart))
	require.NoError(l.CheckAndRecord(ids.GenerateTestShortID(), testStart))
}

func TestDailyLimit(t *testing.T) {
	require := require.New(t)

	l, err := New(3, time.Minute)
	require.NoError(err)

	owner := ids.GenerateTestShortID()
	now := testStart
	for i := 0; i < 3; i++ {
		require.NoError(l.CheckAndRecord(owner, now))
		now = now.Add(time.Minute)
	}

	err = l.CheckAndRecord(owner, now)
	require.ErrorIs(err, ErrDailyLimitReached)

	// A failed check records nothing.
	require.Equal(uint32(3), l.Owner(owner).Count)
}

func TestCountsPersistAcrossDays(t *testing.T) {
	require := require.New(t)

	l, err := New(2, time.Minute)
	require.NoError(err)

	owner := ids.GenerateTestShortID()
	require.NoError(l.CheckAndRecord(owner, testStart))
	require.NoError(l.CheckAndRecord(owner, testStart.Add(time.Hour)))

	// Two days later the counter still blocks: it only clears via Reset.
	later := testStart.Add(48 * time.Hour)
	require.ErrorIs(l.CheckAndRecord(owner, later), ErrDailyLimitReached)

	l.Reset(later)
	require.NoError(l.CheckAndRecord(owner, later))
}

func TestResetKeepsCooldown(t *testing.T) {
	require := require.New(t)

	l, err := New(1, time.Minute)
	require.NoError(err)

	owner := ids.GenerateTestShortID()
	require.NoError(l.CheckAndRecord(owner, testStart))

	l.Reset(testStart.Add(time.Second))

	// The counter cleared but the cooldown is still running.
	err = l.CheckAndRecord(owner, testStart.Add(2*time.Second))
	require.ErrorIs(err, ErrCooldownActive)

	require.NoError(l.CheckAndRecord(owner, testStart.Add(time.Minute)))
}

func TestDayAggregate(t *testing.T) {
	require := require.New(t)

	l, err := New(50, time.Minute)
	require.NoError(err)

	day := uint64(testStart.Unix()) / 86400
	require.NoError(l.CheckAndRecord(ids.GenerateTestShortID(), testStart))
	require.NoError(l.CheckAndRecord(ids.GenerateTestShortID(), testStart))
	require.Equal(uint32(2), l.DayCount(day))

	l.Reset(testStart)
	require.Zero(l.DayCount(day))
}

func TestSnapshotRestore(t *testing.T) {
	require := require.New(t)

	l, err := New(5, time.Minute)
	require.NoError(err)

	owner := ids.GenerateTestShortID()
	require.NoError(l.CheckAndRecord(owner, testStart))

	owners, days := l.Snapshot()

	restored, err := New(5, time.Minute)
	require.NoError(err)
	restored.Restore(owners, days)

	require.Equal(l.Owner(owner), restored.Owner(owner))
	day := uint64(testStart.Unix()) / 86400
	require.Equal(l.DayCount(day), restored.DayCount(day))

	// The snapshot is a copy, not a view.
	require.NoError(l.CheckAndRecord(owner, testStart.Add(time.Minute)))
	require.Equal(uint32(1), restored.Owner(owner).Count)
}
