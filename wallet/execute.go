// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package wallet

import (
	"fmt"

	"github.com/luxfi/ids"

	"github.com/luxfi/vault/emergency"
	"github.com/luxfi/vault/events"
	"github.com/luxfi/vault/fees"
	"github.com/luxfi/vault/timelock"
)

// Execute pays out the transaction at index. The caller must be an owner,
// the transaction must be unlocked and confirmed by at least the threshold,
// and the wallet must be neither paused nor in emergency mode.
//
// The transaction is marked executed and the fee accrued before the
// external transfer runs, so anything observing the wallet mid-transfer
// sees it spent. If the transfer fails both are rolled back and the
// transaction can be retried.
func (w *Wallet) Execute(caller ids.ShortID, index uint64) error {
	w.mu.Lock()
	if w.busy {
		w.mu.Unlock()
		return ErrReentrantCall
	}
	if !w.owners.Contains(caller) {
		w.mu.Unlock()
		return ErrCallerNotOwner
	}
	tx, err := w.tx(index)
	if err != nil {
		w.mu.Unlock()
		return err
	}
	if tx.Executed {
		w.mu.Unlock()
		return ErrAlreadyExecuted
	}
	if w.pauser.IsPaused() {
		w.mu.Unlock()
		return ErrPaused
	}
	if w.emergency.Active() {
		w.mu.Unlock()
		return ErrEmergencyActive
	}
	now := w.clock.Time()
	if !timelock.Unlocked(tx.UnlockTime, tx.TimeLocked, now) {
		w.mu.Unlock()
		return timelock.ErrLocked
	}
	if tx.Confirmations < w.owners.Threshold() {
		w.mu.Unlock()
		return ErrThresholdNotMet
	}
	if tx.Amount > w.available() {
		w.mu.Unlock()
		return ErrInsufficientFunds
	}

	fee := w.fees.Fee(tx.Amount)
	tx.Executed = true
	if err := w.fees.Accrue(fee); err != nil {
		tx.Executed = false
		w.mu.Unlock()
		return err
	}
	w.busy = true
	to := tx.To
	payout := tx.Amount - fee
	payload := tx.Payload
	w.mu.Unlock()

	transferErr := w.transferer.Transfer(to, payout, payload)

	w.mu.Lock()
	defer w.mu.Unlock()
	w.busy = false
	if transferErr != nil {
		tx.Executed = false
		if err := w.fees.Refund(fee); err != nil {
			w.log.Error("fee rollback failed", "index", index, "error", err)
		}
		w.log.Warn("transaction execution failed",
			"index", index,
			"caller", caller,
			"error", transferErr,
		)
		return fmt.Errorf("%w: %v", ErrTransferFailed, transferErr)
	}

	nowUnix := uint64(now.Unix())
	w.owners.Touch(caller, nowUnix)
	w.sink.Emit(events.Event{
		Type:    events.TypeExecution,
		Actor:   caller,
		Subject: to,
		TxIndex: index,
		Amount:  tx.Amount,
		Time:    nowUnix,
	})
	if tx.Amount > w.highValue {
		w.sink.Emit(events.Event{
			Type:    events.TypeSecurityAlert,
			Actor:   caller,
			Subject: to,
			TxIndex: index,
			Amount:  tx.Amount,
			Kind:    events.AlertLargeExecution,
			Time:    nowUnix,
		})
	}
	w.log.Info("transaction executed",
		"index", index,
		"caller", caller,
		"to", to,
		"amount", tx.Amount,
		"fee", fee,
	)
	return nil
}

// EmergencyRecovery moves amount to an arbitrary recipient while emergency
// mode is active, bypassing the ledger. The recovery cooldown must have
// elapsed since the last emergency action and the live owner count must
// meet the raised threshold. Recovery spends against the full treasury
// balance; the fee earmark does not apply in an emergency.
func (w *Wallet) EmergencyRecovery(caller, to ids.ShortID, amount uint64) error {
	w.mu.Lock()
	if w.busy {
		w.mu.Unlock()
		return ErrReentrantCall
	}
	if !w.owners.Contains(caller) {
		w.mu.Unlock()
		return ErrCallerNotOwner
	}
	if w.pauser.IsPaused() {
		w.mu.Unlock()
		return ErrPaused
	}
	if !w.emergency.Active() {
		w.mu.Unlock()
		return emergency.ErrNotActive
	}
	if to == ids.ShortEmpty || to == w.self {
		w.mu.Unlock()
		return ErrInvalidRecipient
	}
	if amount == 0 {
		w.mu.Unlock()
		return ErrZeroAmount
	}
	if amount > w.transferer.Balance() {
		w.mu.Unlock()
		return ErrInsufficientFunds
	}
	now := w.clock.Time()
	if err := w.emergency.CheckRecovery(w.owners.Len(), now); err != nil {
		w.mu.Unlock()
		return err
	}
	w.busy = true
	w.mu.Unlock()

	transferErr := w.transferer.Transfer(to, amount, nil)

	w.mu.Lock()
	defer w.mu.Unlock()
	w.busy = false
	if transferErr != nil {
		w.log.Warn("emergency recovery failed",
			"caller", caller,
			"to", to,
			"amount", amount,
			"error", transferErr,
		)
		return fmt.Errorf("%w: %v", ErrTransferFailed, transferErr)
	}

	w.emergency.RecordAction(now)
	nowUnix := uint64(now.Unix())
	w.owners.Touch(caller, nowUnix)
	w.sink.Emit(events.Event{
		Type:    events.TypeEmergencyRecovery,
		Actor:   caller,
		Subject: to,
		Amount:  amount,
		Time:    nowUnix,
	})
	w.sink.Emit(events.Event{
		Type:    events.TypeSecurityAlert,
		Actor:   caller,
		Subject: to,
		Amount:  amount,
		Kind:    events.AlertEmergencyRecovery,
		Time:    nowUnix,
	})
	w.log.Warn("emergency recovery executed",
		"caller", caller,
		"to", to,
		"amount", amount,
	)
	return nil
}

// CollectFees pays the accrued fee pool out to the collector and returns
// the amount paid. Only the collector may call it. The pool is zeroed
// before the external transfer runs, so a re-entrant collection finds
// nothing to drain; a failed payout restores the pool.
func (w *Wallet) CollectFees(caller ids.ShortID) (uint64, error) {
	w.mu.Lock()
	if w.busy {
		w.mu.Unlock()
		return 0, ErrReentrantCall
	}
	if caller != w.feeCollector {
		w.mu.Unlock()
		return 0, ErrNotCollector
	}
	if w.pauser.IsPaused() {
		w.mu.Unlock()
		return 0, ErrPaused
	}
	if w.fees.Pool() == 0 {
		w.mu.Unlock()
		return 0, fees.ErrEmptyPool
	}
	pool := w.fees.Drain()
	collector := w.feeCollector
	w.busy = true
	w.mu.Unlock()

	transferErr := w.transferer.Transfer(collector, pool, nil)

	w.mu.Lock()
	defer w.mu.Unlock()
	w.busy = false
	if transferErr != nil {
		if err := w.fees.Accrue(pool); err != nil {
			w.log.Error("fee pool restore failed", "pool", pool, "error", err)
		}
		return 0, fmt.Errorf("%w: %v", ErrTransferFailed, transferErr)
	}

	nowUnix := w.clock.Unix()
	w.sink.Emit(events.Event{
		Type:   events.TypeFeeCollected,
		Actor:  caller,
		Amount: pool,
		Time:   nowUnix,
	})
	w.log.Info("fees collected", "collector", collector, "amount", pool)
	return pool, nil
}

// Deposit credits the treasury with amount from the given account.
// Deposits are accepted even while paused or in emergency mode.
func (w *Wallet) Deposit(from ids.ShortID, amount uint64) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.busy {
		return ErrReentrantCall
	}
	if amount == 0 {
		return ErrZeroAmount
	}
	if err := w.depositor.Credit(from, amount); err != nil {
		return fmt.Errorf("%w: %v", ErrTransferFailed, err)
	}

	w.sink.Emit(events.Event{
		Type:   events.TypeDeposit,
		Actor:  from,
		Amount: amount,
		Time:   w.clock.Unix(),
	})
	w.log.Info("deposit received", "from", from, "amount", amount)
	return nil
}
