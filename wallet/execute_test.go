// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package wallet

import (
	"errors"
	"testing"
	"time"

	"github.com/luxfi/ids"
	"github.com/stretchr/testify/require"

	"github.com/luxfi/vault/emergency"
	"github.com/luxfi/vault/errs"
	"github.com/luxfi/vault/events"
	"github.com/luxfi/vault/fees"
	"github.com/luxfi/vault/ratelimit"
	"github.com/luxfi/vault/timelock"
	"github.com/luxfi/vault/utils/units"
)

// Proposal, confirmation by a second owner, then execution by a third.
func TestLifecycle(t *testing.T) {
	require := require.New(t)
	f := newTestWallet(t, []ids.ShortID{owner1, owner2, owner3}, 2)
	initial := f.wallet.Balance()
	amount := 10 * units.Lux
	fee := fees.Fee(amount, 25)

	index := f.propose(t, owner1, payee, amount)
	require.NoError(f.wallet.Confirm(owner2, index))
	require.NoError(f.wallet.Confirm(owner3, index))

	require.ErrorIs(f.wallet.Execute(payee, index), ErrCallerNotOwner)
	require.ErrorIs(f.wallet.Execute(owner1, index+1), ErrTxNotFound)
	require.NoError(f.wallet.Execute(owner1, index))

	tx, err := f.wallet.Transaction(index)
	require.NoError(err)
	require.True(tx.Executed)

	// The payout left the treasury; the fee stays behind, earmarked.
	require.Equal(initial-(amount-fee), f.wallet.Balance())
	_, pool, _ := f.wallet.FeeInfo()
	require.Equal(fee, pool)
	require.Equal(initial-amount, f.wallet.AvailableBalance())

	executions := f.eventsOfType(events.TypeExecution)
	require.Len(executions, 1)
	require.Equal(index, executions[0].TxIndex)
	require.Equal(amount, executions[0].Amount)
}

func TestExecuteBelowThreshold(t *testing.T) {
	require := require.New(t)
	f := newTestWallet(t, []ids.ShortID{owner1, owner2, owner3, owner4}, 3)

	index := f.propose(t, owner1, payee, 10*units.Lux)
	require.NoError(f.wallet.Confirm(owner2, index))
	require.NoError(f.wallet.Confirm(owner3, index))

	err := f.wallet.Execute(owner1, index)
	require.ErrorIs(err, ErrThresholdNotMet)
	require.ErrorIs(err, errs.ErrState)
	tx, err := f.wallet.Transaction(index)
	require.NoError(err)
	require.False(tx.Executed)

	require.NoError(f.wallet.Confirm(owner4, index))
	require.NoError(f.wallet.Execute(owner1, index))
	require.ErrorIs(f.wallet.Execute(owner1, index), ErrAlreadyExecuted)
}

func TestExecuteTimelock(t *testing.T) {
	require := require.New(t)
	f := newTestWallet(t, []ids.ShortID{owner1, owner2, owner3}, 2)

	f.clock.Advance(2 * time.Minute)
	index, err := f.wallet.Propose(owner1, payee, 10*units.Lux, nil, true, 48*time.Hour)
	require.NoError(err)
	require.NoError(f.wallet.Confirm(owner2, index))
	require.NoError(f.wallet.Confirm(owner3, index))

	tx, err := f.wallet.Transaction(index)
	require.NoError(err)
	require.True(tx.TimeLocked)
	require.Equal(f.clock.Unix()+48*3600, tx.UnlockTime)

	f.clock.Advance(47 * time.Hour)
	err = f.wallet.Execute(owner1, index)
	require.ErrorIs(err, timelock.ErrLocked)
	require.ErrorIs(err, errs.ErrPolicy)

	f.clock.Advance(time.Hour + time.Second)
	require.NoError(f.wallet.Execute(owner1, index))
}

func TestProposeTimelockDefaults(t *testing.T) {
	require := require.New(t)
	f := newTestWallet(t, []ids.ShortID{owner1, owner2}, 1)

	// Zero duration with the flag set falls back to the wallet default
	// of 24 hours.
	f.clock.Advance(2 * time.Minute)
	index, err := f.wallet.Propose(owner1, payee, units.Lux, nil, true, 0)
	require.NoError(err)
	tx, err := f.wallet.Transaction(index)
	require.NoError(err)
	require.True(tx.TimeLocked)
	require.Equal(f.clock.Unix()+24*3600, tx.UnlockTime)

	_, err = f.wallet.Propose(owner1, payee, units.Lux, nil, true, timelock.MaxDuration+time.Hour)
	require.ErrorIs(err, timelock.ErrDurationTooLong)
}

func TestRateLimiting(t *testing.T) {
	require := require.New(t)
	f := newTestWallet(t, []ids.ShortID{owner1, owner2}, 1)
	require.NoError(f.wallet.SetRateLimits(owner1, 2, time.Minute))

	f.clock.Advance(2 * time.Minute)
	_, err := f.wallet.Propose(owner1, payee, units.Lux, nil, false, 0)
	require.NoError(err)

	// Thirty seconds in, the cooldown still holds.
	f.clock.Advance(30 * time.Second)
	_, err = f.wallet.Propose(owner1, payee, units.Lux, nil, false, 0)
	require.ErrorIs(err, ratelimit.ErrCooldownActive)
	require.ErrorIs(err, errs.ErrPolicy)

	// Other owners are unaffected.
	_, err = f.wallet.Propose(owner2, payee, units.Lux, nil, false, 0)
	require.NoError(err)

	f.clock.Advance(time.Minute)
	_, err = f.wallet.Propose(owner1, payee, units.Lux, nil, false, 0)
	require.NoError(err)

	// The daily allowance of two is spent.
	f.clock.Advance(2 * time.Minute)
	_, err = f.wallet.Propose(owner1, payee, units.Lux, nil, false, 0)
	require.ErrorIs(err, ratelimit.ErrDailyLimitReached)

	// An administrative reset clears the count but not the cooldown.
	require.NoError(f.wallet.ResetDailyCounters(owner2))
	_, err = f.wallet.Propose(owner1, payee, units.Lux, nil, false, 0)
	require.NoError(err)
}

func TestDailyLimitAtFullQuota(t *testing.T) {
	require := require.New(t)
	f := newTestWallet(t, []ids.ShortID{owner1, owner2}, 1)

	for i := 0; i < 50; i++ {
		f.clock.Advance(time.Minute + time.Second)
		_, err := f.wallet.Propose(owner1, payee, units.Lux, nil, false, 0)
		require.NoError(err)
	}

	f.clock.Advance(time.Minute + time.Second)
	_, err := f.wallet.Propose(owner1, payee, units.Lux, nil, false, 0)
	require.ErrorIs(err, ratelimit.ErrDailyLimitReached)

	// A reset reopens the quota with no further waiting.
	require.NoError(f.wallet.ResetDailyCounters(owner1))
	_, err = f.wallet.Propose(owner1, payee, units.Lux, nil, false, 0)
	require.NoError(err)
}

func TestEmergencyMode(t *testing.T) {
	require := require.New(t)
	f := newTestWallet(t, []ids.ShortID{owner1, owner2, owner3}, 2)
	index := f.propose(t, owner1, payee, 10*units.Lux)
	require.NoError(f.wallet.Confirm(owner2, index))
	require.NoError(f.wallet.Confirm(owner3, index))

	require.ErrorIs(f.wallet.ActivateEmergency(payee), ErrCallerNotOwner)
	require.NoError(f.wallet.ActivateEmergency(owner1))
	require.ErrorIs(f.wallet.ActivateEmergency(owner2), emergency.ErrAlreadyActive)

	active, threshold, lastAction, confirmations := f.wallet.EmergencyStatus()
	require.True(active)
	require.Equal(uint32(2), threshold)
	require.Equal(f.clock.Unix(), lastAction)
	require.Equal(3, confirmations)

	// Normal operations are refused until deactivation.
	f.clock.Advance(2 * time.Minute)
	_, err := f.wallet.Propose(owner1, payee, units.Lux, nil, false, 0)
	require.ErrorIs(err, ErrEmergencyActive)
	require.ErrorIs(err, errs.ErrEmergency)
	require.ErrorIs(f.wallet.Confirm(owner3, index), ErrEmergencyActive)
	require.ErrorIs(f.wallet.Execute(owner1, index), ErrEmergencyActive)
	require.ErrorIs(f.wallet.AddOwner(owner1, owner4), ErrEmergencyActive)
	require.ErrorIs(f.wallet.RemoveOwner(owner1, owner3), ErrEmergencyActive)

	require.NoError(f.wallet.DeactivateEmergency(owner2))
	require.ErrorIs(f.wallet.DeactivateEmergency(owner2), emergency.ErrNotActive)
	require.NoError(f.wallet.Execute(owner1, index))
}

func TestEmergencyRecovery(t *testing.T) {
	require := require.New(t)
	f := newTestWallet(t, []ids.ShortID{owner1, owner2, owner3}, 2)
	initial := f.wallet.Balance()
	amount := 500 * units.Lux

	err := f.wallet.EmergencyRecovery(owner1, payee, amount)
	require.ErrorIs(err, emergency.ErrNotActive)

	require.NoError(f.wallet.ActivateEmergency(owner1))

	// Activation starts the cooldown; recovery must wait it out.
	err = f.wallet.EmergencyRecovery(owner1, payee, amount)
	require.ErrorIs(err, emergency.ErrCooldownActive)
	require.ErrorIs(err, errs.ErrEmergency)

	f.clock.Advance(24*time.Hour + time.Second)
	require.ErrorIs(f.wallet.EmergencyRecovery(owner1, vaultAddr, amount), ErrInvalidRecipient)
	require.ErrorIs(f.wallet.EmergencyRecovery(owner1, payee, 0), ErrZeroAmount)
	require.ErrorIs(f.wallet.EmergencyRecovery(owner1, payee, initial+1), ErrInsufficientFunds)

	require.NoError(f.wallet.EmergencyRecovery(owner1, payee, amount))
	require.Equal(initial-amount, f.wallet.Balance())

	recoveries := f.eventsOfType(events.TypeEmergencyRecovery)
	require.Len(recoveries, 1)
	require.Equal(amount, recoveries[0].Amount)
	var kinds []string
	for _, alert := range f.eventsOfType(events.TypeSecurityAlert) {
		kinds = append(kinds, alert.Kind)
	}
	require.Contains(kinds, events.AlertEmergencyRecovery)

	// A successful recovery restarts the cooldown.
	err = f.wallet.EmergencyRecovery(owner1, payee, amount)
	require.ErrorIs(err, emergency.ErrCooldownActive)
}

func TestEmergencyActivationNeedsTwoOwners(t *testing.T) {
	require := require.New(t)
	f := newTestWallet(t, []ids.ShortID{owner1}, 1)
	require.ErrorIs(f.wallet.ActivateEmergency(owner1), emergency.ErrInsufficientOwners)
}

func TestExecuteTransferFailureRollsBack(t *testing.T) {
	require := require.New(t)
	f := newTestWallet(t, []ids.ShortID{owner1, owner2}, 1)
	initial := f.wallet.Balance()

	index := f.propose(t, owner1, payee, 10*units.Lux)
	require.NoError(f.wallet.Confirm(owner2, index))

	f.treasury.failNext = errors.New("recipient refused payment")
	err := f.wallet.Execute(owner1, index)
	require.ErrorIs(err, ErrTransferFailed)
	require.ErrorIs(err, errs.ErrTransfer)
	require.ErrorContains(err, "recipient refused payment")

	// Everything the optimistic mark touched is rolled back.
	tx, err := f.wallet.Transaction(index)
	require.NoError(err)
	require.False(tx.Executed)
	_, pool, _ := f.wallet.FeeInfo()
	require.Zero(pool)
	require.Equal(initial, f.wallet.Balance())
	require.Empty(f.eventsOfType(events.TypeExecution))

	// The transaction is retryable without re-confirmation.
	require.NoError(f.wallet.Execute(owner1, index))
}

func TestExecuteBalanceCheckedAtExecution(t *testing.T) {
	require := require.New(t)
	f := newTestWallet(t, []ids.ShortID{owner1, owner2}, 1)

	// Both proposals fit the treasury on their own.
	first := f.propose(t, owner1, payee, 1500*units.Lux)
	second := f.propose(t, owner1, payee, 1500*units.Lux)
	require.NoError(f.wallet.Confirm(owner2, first))
	require.NoError(f.wallet.Confirm(owner2, second))

	require.NoError(f.wallet.Execute(owner1, first))
	err := f.wallet.Execute(owner1, second)
	require.ErrorIs(err, ErrInsufficientFunds)
	tx, err := f.wallet.Transaction(second)
	require.NoError(err)
	require.False(tx.Executed)
}

func TestReentrantCallsRejected(t *testing.T) {
	require := require.New(t)
	f := newTestWallet(t, []ids.ShortID{owner1, owner2}, 1)

	index := f.propose(t, owner1, payee, 10*units.Lux)
	require.NoError(f.wallet.Confirm(owner2, index))
	victim := f.propose(t, owner1, payee, units.Lux)
	require.NoError(f.wallet.Confirm(owner2, victim))

	var nested []error
	f.treasury.onTransfer = func() {
		_, err := f.wallet.Propose(owner2, payee, units.Lux, nil, false, 0)
		nested = append(nested, err)
		nested = append(nested, f.wallet.Confirm(owner2, victim))
		nested = append(nested, f.wallet.Execute(owner2, victim))
		_, err = f.wallet.CollectFees(collector)
		nested = append(nested, err)
		nested = append(nested, f.wallet.EmergencyRecovery(owner2, payee, units.Lux))
		nested = append(nested, f.wallet.Deposit(payee, units.Lux))
		nested = append(nested, f.wallet.AddOwner(owner2, owner3))

		// Mid-transfer, the transaction already reads as spent.
		tx, err := f.wallet.Transaction(index)
		if err == nil && !tx.Executed {
			nested = append(nested, errors.New("transaction not marked during transfer"))
		}
	}

	require.NoError(f.wallet.Execute(owner1, index))
	require.Len(nested, 7)
	for _, err := range nested {
		require.ErrorIs(err, ErrReentrantCall)
	}

	// The guard disarms once the transfer returns.
	f.treasury.onTransfer = nil
	require.NoError(f.wallet.Execute(owner1, victim))
}

func TestCollectFees(t *testing.T) {
	require := require.New(t)
	f := newTestWallet(t, []ids.ShortID{owner1, owner2}, 1)
	amount := 100 * units.Lux
	fee := fees.Fee(amount, 25)

	_, err := f.wallet.CollectFees(collector)
	require.ErrorIs(err, fees.ErrEmptyPool)

	index := f.propose(t, owner1, payee, amount)
	require.NoError(f.wallet.Confirm(owner2, index))
	require.NoError(f.wallet.Execute(owner1, index))

	_, err = f.wallet.CollectFees(owner1)
	require.ErrorIs(err, ErrNotCollector)
	require.ErrorIs(err, errs.ErrAuthorization)

	// A failed payout restores the pool.
	f.treasury.failNext = errors.New("collector unreachable")
	_, err = f.wallet.CollectFees(collector)
	require.ErrorIs(err, ErrTransferFailed)
	_, pool, _ := f.wallet.FeeInfo()
	require.Equal(fee, pool)

	collected, err := f.wallet.CollectFees(collector)
	require.NoError(err)
	require.Equal(fee, collected)
	_, pool, _ = f.wallet.FeeInfo()
	require.Zero(pool)
	require.Len(f.eventsOfType(events.TypeFeeCollected), 1)
}

// Whatever leaves the treasury must equal what executions and collections
// paid out; fees never mint or burn value.
func TestFeeConservation(t *testing.T) {
	require := require.New(t)
	f := newTestWallet(t, []ids.ShortID{owner1, owner2}, 1)
	initial := f.wallet.Balance()
	amount := 100 * units.Lux
	fee := fees.Fee(amount, 25)

	index := f.propose(t, owner1, payee, amount)
	require.NoError(f.wallet.Confirm(owner2, index))
	require.NoError(f.wallet.Execute(owner1, index))
	require.Equal(amount-fee, f.treasury.transferred)

	collected, err := f.wallet.CollectFees(collector)
	require.NoError(err)
	require.Equal(fee, collected)

	require.Equal(amount, f.treasury.transferred)
	require.Equal(initial-amount, f.wallet.Balance())
	require.Equal(f.wallet.Balance(), f.wallet.AvailableBalance())
}

func TestZeroFeeRate(t *testing.T) {
	require := require.New(t)
	f := newTestWallet(t, []ids.ShortID{owner1, owner2}, 1)
	require.NoError(f.wallet.SetFeeRate(owner1, 0))
	initial := f.wallet.Balance()
	amount := 10 * units.Lux

	index := f.propose(t, owner1, payee, amount)
	require.NoError(f.wallet.Confirm(owner2, index))
	require.NoError(f.wallet.Execute(owner1, index))

	require.Equal(initial-amount, f.wallet.Balance())
	_, pool, _ := f.wallet.FeeInfo()
	require.Zero(pool)
	_, err := f.wallet.CollectFees(collector)
	require.ErrorIs(err, fees.ErrEmptyPool)
}
