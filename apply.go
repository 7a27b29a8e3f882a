// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package vault

import (
	"errors"
	"fmt"
	"time"

	"github.com/luxfi/ids"

	"github.com/luxfi/vault/events"
	"github.com/luxfi/vault/wallet"
)

// opOutcome carries the values an operation produced, for callers that
// report them back. Block processing ignores it.
type opOutcome struct {
	// indices of transactions created by a proposal
	indices []uint64
	// batchID assigned to a batch proposal
	batchID uint64
	// amount moved by a fee collection
	amount uint64
}

// applyOp applies one operation to the wallet and writes the touched state
// through to the database. Domain failures are returned as-is; database
// failures are wrapped in errPersist and abort the block.
func (vm *VM) applyOp(op *Op) (*opOutcome, error) {
	switch op.Type {
	case OpDeposit:
		if err := vm.wallet.Deposit(op.Caller, op.Amount); err != nil {
			return nil, err
		}
		return &opOutcome{}, vm.persistTreasury()

	case OpPropose:
		lockDuration := time.Duration(op.LockSeconds) * time.Second
		index, err := vm.wallet.Propose(op.Caller, op.To, op.Amount, op.Payload, op.WithTimelock, lockDuration)
		if err != nil {
			return nil, err
		}
		return &opOutcome{indices: []uint64{index}}, vm.persistProposal(op.Caller, index)

	case OpProposeBatch:
		indices, batchID, err := vm.wallet.ProposeBatch(op.Caller, op.Recipients, op.Amounts, op.Payloads)
		if err != nil {
			return nil, err
		}
		return &opOutcome{indices: indices, batchID: batchID}, vm.persistProposal(op.Caller, indices...)

	case OpConfirm:
		if err := vm.wallet.Confirm(op.Caller, op.TxIndex); err != nil {
			return nil, err
		}
		if err := vm.persistTransaction(op.TxIndex); err != nil {
			return nil, err
		}
		return &opOutcome{}, vm.persistOwner(op.Caller)

	case OpRevoke:
		if err := vm.wallet.Revoke(op.Caller, op.TxIndex); err != nil {
			return nil, err
		}
		if err := vm.persistTransaction(op.TxIndex); err != nil {
			return nil, err
		}
		return &opOutcome{}, vm.persistOwner(op.Caller)

	case OpExecute:
		if err := vm.wallet.Execute(op.Caller, op.TxIndex); err != nil {
			return nil, err
		}
		if err := vm.persistTransaction(op.TxIndex); err != nil {
			return nil, err
		}
		if err := vm.persistFees(); err != nil {
			return nil, err
		}
		if err := vm.persistTreasury(); err != nil {
			return nil, err
		}
		return &opOutcome{}, vm.persistOwner(op.Caller)

	case OpAddOwner:
		if err := vm.wallet.AddOwner(op.Caller, op.To); err != nil {
			return nil, err
		}
		return &opOutcome{}, vm.persistOwnerSet()

	case OpRemoveOwner:
		if err := vm.wallet.RemoveOwner(op.Caller, op.To); err != nil {
			return nil, err
		}
		if err := vm.persistOwnerSet(); err != nil {
			return nil, err
		}
		if err := vm.state.DeleteOwnerStats(op.To); err != nil {
			return nil, persistErr(err)
		}
		if err := vm.state.DeleteRateState(op.To); err != nil {
			return nil, persistErr(err)
		}
		// Removing an owner revokes their standing confirmations, so every
		// pending record is rewritten.
		return &opOutcome{}, vm.persistPending()

	case OpChangeThreshold:
		if err := vm.wallet.ChangeThreshold(op.Caller, op.Threshold); err != nil {
			return nil, err
		}
		return &opOutcome{}, vm.persistOwnerSet()

	case OpSetRateLimits:
		cooldown := time.Duration(op.CooldownSeconds) * time.Second
		if err := vm.wallet.SetRateLimits(op.Caller, op.DailyLimit, cooldown); err != nil {
			return nil, err
		}
		if err := vm.state.SetRateLimits(op.DailyLimit, op.CooldownSeconds); err != nil {
			return nil, persistErr(err)
		}
		return &opOutcome{}, vm.persistOwner(op.Caller)

	case OpResetDailyCounters:
		if err := vm.wallet.ResetDailyCounters(op.Caller); err != nil {
			return nil, err
		}
		return &opOutcome{}, vm.persistRateReset(op.Caller)

	case OpSetFeeRate:
		if err := vm.wallet.SetFeeRate(op.Caller, op.RateBps); err != nil {
			return nil, err
		}
		if err := vm.persistFees(); err != nil {
			return nil, err
		}
		return &opOutcome{}, vm.persistOwner(op.Caller)

	case OpSetFeeCollector:
		if err := vm.wallet.SetFeeCollector(op.Caller, op.To); err != nil {
			return nil, err
		}
		if err := vm.persistFees(); err != nil {
			return nil, err
		}
		return &opOutcome{}, vm.persistOwner(op.Caller)

	case OpCollectFees:
		amount, err := vm.wallet.CollectFees(op.Caller)
		if err != nil {
			return nil, err
		}
		if err := vm.persistFees(); err != nil {
			return nil, err
		}
		return &opOutcome{amount: amount}, vm.persistTreasury()

	case OpActivateEmergency:
		if err := vm.wallet.ActivateEmergency(op.Caller); err != nil {
			return nil, err
		}
		if err := vm.persistEmergency(); err != nil {
			return nil, err
		}
		return &opOutcome{}, vm.persistOwner(op.Caller)

	case OpDeactivateEmergency:
		if err := vm.wallet.DeactivateEmergency(op.Caller); err != nil {
			return nil, err
		}
		if err := vm.persistEmergency(); err != nil {
			return nil, err
		}
		return &opOutcome{}, vm.persistOwner(op.Caller)

	case OpEmergencyRecovery:
		if err := vm.wallet.EmergencyRecovery(op.Caller, op.To, op.Amount); err != nil {
			return nil, err
		}
		if err := vm.persistEmergency(); err != nil {
			return nil, err
		}
		if err := vm.persistTreasury(); err != nil {
			return nil, err
		}
		return &opOutcome{}, vm.persistOwner(op.Caller)

	case OpPause:
		return &opOutcome{}, vm.applyPause(op.Caller, true)

	case OpUnpause:
		return &opOutcome{}, vm.applyPause(op.Caller, false)

	default:
		return nil, fmt.Errorf("%w: %q", ErrInvalidOp, op.Type)
	}
}

// issueOp applies one operation outside block processing and commits it.
// The RPC surface uses it in standalone deployments where no consensus
// engine drives ProcessBlock; the clock is synced to wall time first so
// cooldowns and time-locks keep advancing.
func (vm *VM) issueOp(op *Op) (*opOutcome, error) {
	vm.lock.Lock()
	defer vm.lock.Unlock()

	if vm.shutdown {
		return nil, errShutdown
	}
	if !vm.initialized || !vm.bootstrapped {
		return nil, ErrNotBootstrapped
	}

	vm.clock.Sync()

	outcome, err := vm.applyOp(op)
	if err != nil {
		if errors.Is(err, errPersist) {
			vm.abortAndReload()
			return nil, err
		}
		vm.metrics.MarkRejected(op.Type)
		return nil, err
	}
	vm.metrics.MarkAccepted(op.Type)

	if err := vm.state.SetTimestamp(vm.clock.Unix()); err != nil {
		vm.abortAndReload()
		return nil, persistErr(err)
	}
	if err := vm.db.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit: %w", err)
	}
	vm.observe()
	return outcome, nil
}

// abortAndReload discards uncommitted writes and resyncs the in-memory
// components from the last committed state.
func (vm *VM) abortAndReload() {
	vm.db.Abort()
	if err := vm.loadState(); err != nil {
		vm.log.Error("failed to reload state after abort", "error", err)
	}
}

// applyPause flips the vault's circuit breaker. Any owner may pause or
// unpause; redundant transitions are rejected to keep the audit trail
// unambiguous.
func (vm *VM) applyPause(caller ids.ShortID, pause bool) error {
	if !vm.wallet.IsOwner(caller) {
		return wallet.ErrCallerNotOwner
	}
	paused := vm.treasury.IsPaused()
	if pause && paused {
		return errAlreadyPaused
	}
	if !pause && !paused {
		return errNotPaused
	}

	vm.treasury.setPaused(pause)
	if err := vm.state.SetPaused(pause); err != nil {
		return persistErr(err)
	}

	eventType := events.TypePaused
	if !pause {
		eventType = events.TypeUnpaused
	}
	vm.sink.Emit(events.Event{
		Type:  eventType,
		Actor: caller,
		Time:  vm.clock.Unix(),
	})
	return nil
}

func persistErr(err error) error {
	return fmt.Errorf("%w: %v", errPersist, err)
}

// persistTransaction rewrites one transaction record and its confirmer set.
func (vm *VM) persistTransaction(index uint64) error {
	tx, err := vm.wallet.Transaction(index)
	if err != nil {
		return persistErr(err)
	}
	if err := vm.state.PutTransaction(index, &tx); err != nil {
		return persistErr(err)
	}
	confirmers, err := vm.wallet.Confirmers(index)
	if err != nil {
		return persistErr(err)
	}
	if err := vm.state.PutConfirmers(index, confirmers); err != nil {
		return persistErr(err)
	}
	return nil
}

// persistPending rewrites every non-executed transaction record.
func (vm *VM) persistPending() error {
	count := vm.wallet.TransactionCount()
	for i := uint64(0); i < count; i++ {
		tx, err := vm.wallet.Transaction(i)
		if err != nil {
			return persistErr(err)
		}
		if tx.Executed {
			continue
		}
		if err := vm.persistTransaction(i); err != nil {
			return err
		}
	}
	return nil
}

// persistProposal writes the records a successful proposal touched: the new
// transactions, the proposer's activity stats, the proposer's rate state,
// the day bucket, and the ledger counters.
func (vm *VM) persistProposal(caller ids.ShortID, indices ...uint64) error {
	for _, index := range indices {
		if err := vm.persistTransaction(index); err != nil {
			return err
		}
	}
	if err := vm.persistOwner(caller); err != nil {
		return err
	}

	if err := vm.state.PutRateState(caller, vm.limiter.Owner(caller)); err != nil {
		return persistErr(err)
	}
	day := vm.clock.UnixDay()
	if err := vm.state.PutDayCount(day, vm.limiter.DayCount(day)); err != nil {
		return persistErr(err)
	}

	if err := vm.state.SetTxCount(vm.wallet.TransactionCount()); err != nil {
		return persistErr(err)
	}
	if err := vm.state.SetBatchCount(vm.wallet.BatchCount()); err != nil {
		return persistErr(err)
	}
	return nil
}

// persistOwner rewrites one owner's activity stats.
func (vm *VM) persistOwner(addr ids.ShortID) error {
	stats, err := vm.wallet.OwnerStats(addr)
	if err != nil {
		return persistErr(err)
	}
	if err := vm.state.PutOwnerStats(addr, stats); err != nil {
		return persistErr(err)
	}
	return nil
}

// persistOwnerSet rewrites the owner list, the threshold, and every
// remaining owner's stats.
func (vm *VM) persistOwnerSet() error {
	if err := vm.state.SetOwners(vm.registry.List(), vm.registry.Threshold()); err != nil {
		return persistErr(err)
	}
	for addr, stats := range vm.registry.AllStats() {
		if err := vm.state.PutOwnerStats(addr, stats); err != nil {
			return persistErr(err)
		}
	}
	return nil
}

// persistRateReset rewrites every owner's rate state after a counter reset
// and clears the current day bucket.
func (vm *VM) persistRateReset(caller ids.ShortID) error {
	rateStates, _ := vm.limiter.Snapshot()
	for addr, rateState := range rateStates {
		if err := vm.state.PutRateState(addr, rateState); err != nil {
			return persistErr(err)
		}
	}
	if err := vm.state.DeleteDayCount(vm.clock.UnixDay()); err != nil {
		return persistErr(err)
	}
	return vm.persistOwner(caller)
}

func (vm *VM) persistFees() error {
	rateBps, pool, collector := vm.wallet.FeeInfo()
	if err := vm.state.SetFees(rateBps, pool, collector); err != nil {
		return persistErr(err)
	}
	return nil
}

func (vm *VM) persistTreasury() error {
	if err := vm.state.SetTreasury(vm.treasury.Balance()); err != nil {
		return persistErr(err)
	}
	return nil
}

func (vm *VM) persistEmergency() error {
	active, _, lastAction, _ := vm.wallet.EmergencyStatus()
	if err := vm.state.SetEmergency(active, lastAction); err != nil {
		return persistErr(err)
	}
	return nil
}
