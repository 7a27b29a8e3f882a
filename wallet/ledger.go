// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package wallet

import (
	"time"

	"github.com/luxfi/ids"
	"github.com/luxfi/math/set"

	safemath "github.com/luxfi/math"

	"github.com/luxfi/vault/events"
	"github.com/luxfi/vault/timelock"
)

// Propose appends a new transaction to the ledger and returns its index.
// The proposal passes through the caller's rate limit; it carries zero
// confirmations until other owners confirm it. If withTimelock is set the
// transaction cannot execute before lockDuration has elapsed, or the
// wallet's default duration when lockDuration is zero.
func (w *Wallet) Propose(
	caller ids.ShortID,
	to ids.ShortID,
	amount uint64,
	payload []byte,
	withTimelock bool,
	lockDuration time.Duration,
) (uint64, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if err := w.activeGuard(caller); err != nil {
		return 0, err
	}
	if to == ids.ShortEmpty || to == w.self {
		return 0, ErrInvalidRecipient
	}
	if amount == 0 {
		return 0, ErrZeroAmount
	}
	if amount > w.available() {
		return 0, ErrInsufficientFunds
	}
	if len(payload) > MaxPayloadSize {
		return 0, ErrPayloadTooLarge
	}

	now := w.clock.Time()
	unlockTime, locked, err := timelock.Compute(withTimelock, lockDuration, w.defaultTimelock, now)
	if err != nil {
		return 0, err
	}
	// The rate limiter records on success, so it runs after every pure
	// check. A rejected proposal must not consume quota.
	if err := w.limiter.CheckAndRecord(caller, now); err != nil {
		return 0, err
	}

	nowUnix := uint64(now.Unix())
	index := uint64(len(w.txs))
	w.txs = append(w.txs, &Transaction{
		To:          to,
		Amount:      amount,
		Payload:     payload,
		UnlockTime:  unlockTime,
		TimeLocked:  locked,
		SubmittedAt: nowUnix,
		Submitter:   caller,
	})
	w.confirmers[index] = set.NewSet[ids.ShortID](0)
	w.owners.RecordProposal(caller, nowUnix)

	w.sink.Emit(events.Event{
		Type:    events.TypeProposal,
		Actor:   caller,
		Subject: to,
		TxIndex: index,
		Amount:  amount,
		Time:    nowUnix,
	})
	if amount > w.highValue {
		w.sink.Emit(events.Event{
			Type:    events.TypeSecurityAlert,
			Actor:   caller,
			Subject: to,
			TxIndex: index,
			Amount:  amount,
			Kind:    events.AlertLargeProposal,
			Time:    nowUnix,
		})
	}
	w.log.Info("transaction proposed",
		"index", index,
		"submitter", caller,
		"to", to,
		"amount", amount,
		"timeLocked", locked,
	)
	return index, nil
}

// ProposeBatch appends up to MaxBatchSize transactions as one batch,
// passing through the caller's rate limit once. Either every transaction
// is admitted or none is. Batch entries carry no time-lock. The returned
// indices are consecutive.
func (w *Wallet) ProposeBatch(
	caller ids.ShortID,
	recipients []ids.ShortID,
	amounts []uint64,
	payloads [][]byte,
) ([]uint64, uint64, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if err := w.activeGuard(caller); err != nil {
		return nil, 0, err
	}
	n := len(recipients)
	if n == 0 || n > MaxBatchSize || len(amounts) != n || len(payloads) != n {
		return nil, 0, ErrBadBatch
	}
	total := uint64(0)
	for i := 0; i < n; i++ {
		if recipients[i] == ids.ShortEmpty || recipients[i] == w.self {
			return nil, 0, ErrInvalidRecipient
		}
		if amounts[i] == 0 {
			return nil, 0, ErrZeroAmount
		}
		if len(payloads[i]) > MaxPayloadSize {
			return nil, 0, ErrPayloadTooLarge
		}
		sum, err := safemath.Add64(total, amounts[i])
		if err != nil {
			return nil, 0, ErrInsufficientFunds
		}
		total = sum
	}
	if total > w.available() {
		return nil, 0, ErrInsufficientFunds
	}

	now := w.clock.Time()
	if err := w.limiter.CheckAndRecord(caller, now); err != nil {
		return nil, 0, err
	}

	nowUnix := uint64(now.Unix())
	batchID := w.batchCount
	w.batchCount++
	indices := make([]uint64, n)
	for i := 0; i < n; i++ {
		index := uint64(len(w.txs))
		w.txs = append(w.txs, &Transaction{
			To:          recipients[i],
			Amount:      amounts[i],
			Payload:     payloads[i],
			Batched:     true,
			BatchID:     batchID,
			SubmittedAt: nowUnix,
			Submitter:   caller,
		})
		w.confirmers[index] = set.NewSet[ids.ShortID](0)
		w.owners.RecordProposal(caller, nowUnix)
		indices[i] = index

		w.sink.Emit(events.Event{
			Type:    events.TypeProposal,
			Actor:   caller,
			Subject: recipients[i],
			TxIndex: index,
			Amount:  amounts[i],
			BatchID: batchID,
			Time:    nowUnix,
		})
	}
	w.sink.Emit(events.Event{
		Type:    events.TypeBatchProposal,
		Actor:   caller,
		TxIndex: indices[0],
		Amount:  total,
		BatchID: batchID,
		Time:    nowUnix,
	})
	if total > w.batchValue {
		w.sink.Emit(events.Event{
			Type:    events.TypeSecurityAlert,
			Actor:   caller,
			TxIndex: indices[0],
			Amount:  total,
			Kind:    events.AlertLargeBatch,
			BatchID: batchID,
			Time:    nowUnix,
		})
	}
	w.log.Info("batch proposed",
		"batchID", batchID,
		"submitter", caller,
		"transactions", n,
		"total", total,
	)
	return indices, batchID, nil
}

// Confirm records the caller's approval of the transaction at index. The
// submitter cannot confirm its own proposal, and an owner confirms a given
// transaction at most once.
func (w *Wallet) Confirm(caller ids.ShortID, index uint64) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if err := w.activeGuard(caller); err != nil {
		return err
	}
	tx, err := w.tx(index)
	if err != nil {
		return err
	}
	if tx.Executed {
		return ErrAlreadyExecuted
	}
	if w.confirmers[index].Contains(caller) {
		return ErrAlreadyConfirmed
	}
	if caller == tx.Submitter {
		return ErrSelfConfirmation
	}

	w.confirmers[index].Add(caller)
	tx.Confirmations++
	nowUnix := w.clock.Unix()
	w.owners.RecordConfirmation(caller, nowUnix)

	w.sink.Emit(events.Event{
		Type:    events.TypeConfirmation,
		Actor:   caller,
		TxIndex: index,
		Amount:  tx.Amount,
		Time:    nowUnix,
	})
	if tx.Amount > w.confirmValue {
		w.sink.Emit(events.Event{
			Type:    events.TypeSecurityAlert,
			Actor:   caller,
			TxIndex: index,
			Amount:  tx.Amount,
			Kind:    events.AlertLargeConfirmation,
			Time:    nowUnix,
		})
	}
	w.log.Info("transaction confirmed",
		"index", index,
		"owner", caller,
		"confirmations", tx.Confirmations,
		"threshold", w.owners.Threshold(),
	)
	return nil
}

// Revoke withdraws the caller's standing confirmation on the transaction
// at index. Confirmations on executed transactions cannot be revoked.
func (w *Wallet) Revoke(caller ids.ShortID, index uint64) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if err := w.activeGuard(caller); err != nil {
		return err
	}
	tx, err := w.tx(index)
	if err != nil {
		return err
	}
	if tx.Executed {
		return ErrAlreadyExecuted
	}
	if !w.confirmers[index].Contains(caller) {
		return ErrNotConfirmed
	}

	w.confirmers[index].Remove(caller)
	tx.Confirmations--
	nowUnix := w.clock.Unix()
	w.owners.Touch(caller, nowUnix)

	w.sink.Emit(events.Event{
		Type:    events.TypeRevocation,
		Actor:   caller,
		TxIndex: index,
		Amount:  tx.Amount,
		Time:    nowUnix,
	})
	w.log.Info("confirmation revoked",
		"index", index,
		"owner", caller,
		"confirmations", tx.Confirmations,
	)
	return nil
}
