// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package wallet implements the multi-party authorization engine: a ledger
// of proposed transfers that execute only after a quorum of owners confirms
// them, subject to time-locks, spend-rate limits, fees, and an emergency
// override mode.
package wallet

import (
	"fmt"
	"sync"
	"time"

	"github.com/luxfi/ids"
	"github.com/luxfi/log"
	"github.com/luxfi/math/set"

	"github.com/luxfi/vault/emergency"
	"github.com/luxfi/vault/errs"
	"github.com/luxfi/vault/events"
	"github.com/luxfi/vault/fees"
	"github.com/luxfi/vault/owners"
	"github.com/luxfi/vault/ratelimit"
	"github.com/luxfi/vault/utils/timer/mockable"
)

var (
	ErrCallerNotOwner    = fmt.Errorf("%w: caller is not an owner", errs.ErrAuthorization)
	ErrNotCollector      = fmt.Errorf("%w: caller is not the fee collector", errs.ErrAuthorization)
	ErrPaused            = fmt.Errorf("%w: vault is paused", errs.ErrState)
	ErrReentrantCall     = fmt.Errorf("%w: reentrant call", errs.ErrState)
	ErrEmergencyActive   = fmt.Errorf("%w: emergency mode active", errs.ErrEmergency)
	ErrTxNotFound        = fmt.Errorf("%w: transaction not found", errs.ErrState)
	ErrAlreadyExecuted   = fmt.Errorf("%w: transaction already executed", errs.ErrState)
	ErrAlreadyConfirmed  = fmt.Errorf("%w: transaction already confirmed by caller", errs.ErrState)
	ErrNotConfirmed      = fmt.Errorf("%w: transaction not confirmed by caller", errs.ErrState)
	ErrThresholdNotMet   = fmt.Errorf("%w: confirmations below threshold", errs.ErrState)
	ErrSelfConfirmation  = fmt.Errorf("%w: submitter cannot confirm own transaction", errs.ErrValidation)
	ErrInvalidRecipient  = fmt.Errorf("%w: invalid recipient", errs.ErrValidation)
	ErrZeroAmount        = fmt.Errorf("%w: amount must be positive", errs.ErrValidation)
	ErrInsufficientFunds = fmt.Errorf("%w: insufficient balance", errs.ErrValidation)
	ErrPayloadTooLarge   = fmt.Errorf("%w: payload exceeds %d bytes", errs.ErrValidation, MaxPayloadSize)
	ErrBadBatch          = fmt.Errorf("%w: batch is empty, oversized, or has mismatched lengths", errs.ErrValidation)
	ErrTransferFailed    = fmt.Errorf("%w: external transfer rejected", errs.ErrTransfer)
)

// Transferer moves funds out of the treasury. Transfer is the only call the
// wallet makes while its lock is released; implementations must not call
// back into the wallet.
type Transferer interface {
	// Balance returns the treasury balance, including accrued fees that
	// have not been collected yet.
	Balance() uint64

	// Transfer debits the treasury and credits to. The payload travels
	// with the transfer for the recipient's benefit; the wallet does not
	// interpret it.
	Transfer(to ids.ShortID, amount uint64, payload []byte) error
}

// Depositor credits the treasury with funds received from an account.
type Depositor interface {
	Credit(from ids.ShortID, amount uint64) error
}

// Pauser reports the administrative pause switch. While paused, every
// fund-mutating and owner-mutating operation is rejected.
type Pauser interface {
	IsPaused() bool
}

// Params wires a Wallet's collaborators.
type Params struct {
	Log        log.Logger
	Clock      *mockable.Clock
	Owners     *owners.Registry
	Classifier owners.Classifier
	Limiter    *ratelimit.Limiter
	Fees       *fees.Calculator
	Emergency  *emergency.Controller
	Transferer Transferer
	Depositor  Depositor
	Pauser     Pauser
	Sink       events.Sink

	// Self is the vault's own address. It is never a valid recipient.
	Self         ids.ShortID
	FeeCollector ids.ShortID

	// DefaultTimelock applies when a proposal requests a time-lock
	// without naming a duration.
	DefaultTimelock time.Duration

	// Alert thresholds, in the treasury's base denomination.
	HighValueThreshold    uint64
	BatchValueThreshold   uint64
	ConfirmValueThreshold uint64
}

// Wallet is the authorization engine. All operations identify the caller
// explicitly; the wallet performs no signature verification of its own.
type Wallet struct {
	log        log.Logger
	clock      *mockable.Clock
	owners     *owners.Registry
	classifier owners.Classifier
	limiter    *ratelimit.Limiter
	fees       *fees.Calculator
	emergency  *emergency.Controller
	transferer Transferer
	depositor  Depositor
	pauser     Pauser
	sink       events.Sink

	self            ids.ShortID
	defaultTimelock time.Duration
	highValue       uint64
	batchValue      uint64
	confirmValue    uint64

	mu sync.Mutex
	// busy is set for the duration of an external transfer, while mu is
	// released. Every mutating operation checks it first, so a transfer
	// callback that re-enters the wallet is rejected.
	busy         bool
	feeCollector ids.ShortID
	txs          []*Transaction
	confirmers   map[uint64]set.Set[ids.ShortID]
	batchCount   uint64
}

// New returns a wallet over the given collaborators. The registry, limiter,
// fee calculator, and emergency controller carry their own configured
// policy; Params adds only what the wallet itself consumes.
func New(p Params) *Wallet {
	return &Wallet{
		log:             p.Log,
		clock:           p.Clock,
		owners:          p.Owners,
		classifier:      p.Classifier,
		limiter:         p.Limiter,
		fees:            p.Fees,
		emergency:       p.Emergency,
		transferer:      p.Transferer,
		depositor:       p.Depositor,
		pauser:          p.Pauser,
		sink:            p.Sink,
		self:            p.Self,
		defaultTimelock: p.DefaultTimelock,
		highValue:       p.HighValueThreshold,
		batchValue:      p.BatchValueThreshold,
		confirmValue:    p.ConfirmValueThreshold,
		feeCollector:    p.FeeCollector,
		confirmers:      make(map[uint64]set.Set[ids.ShortID]),
	}
}

// activeGuard enforces the common preconditions of normal operations:
// no in-flight transfer, caller is an owner, not paused, and not in
// emergency mode. Must be called with mu held.
func (w *Wallet) activeGuard(caller ids.ShortID) error {
	if w.busy {
		return ErrReentrantCall
	}
	if !w.owners.Contains(caller) {
		return ErrCallerNotOwner
	}
	if w.pauser.IsPaused() {
		return ErrPaused
	}
	if w.emergency.Active() {
		return ErrEmergencyActive
	}
	return nil
}

// available returns the treasury balance minus the accrued fee pool, which
// is earmarked for the collector. Must be called with mu held.
func (w *Wallet) available() uint64 {
	balance := w.transferer.Balance()
	pool := w.fees.Pool()
	if pool >= balance {
		return 0
	}
	return balance - pool
}

func (w *Wallet) tx(index uint64) (*Transaction, error) {
	if index >= uint64(len(w.txs)) {
		return nil, ErrTxNotFound
	}
	return w.txs[index], nil
}

// AddOwner admits a new owner. The address must not be a contract, must not
// already be an owner, and the registry must have capacity. If the quorum
// threshold was all-but-one of the old set it grows with the set.
func (w *Wallet) AddOwner(caller, addr ids.ShortID) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if err := w.activeGuard(caller); err != nil {
		return err
	}
	before := w.owners.Threshold()
	if err := w.owners.Add(addr); err != nil {
		return err
	}
	now := w.clock.Unix()
	w.owners.Touch(caller, now)
	w.sink.Emit(events.Event{
		Type:    events.TypeOwnerAdded,
		Actor:   caller,
		Subject: addr,
		Time:    now,
	})
	if after := w.owners.Threshold(); after != before {
		w.emergency.SetNormalThreshold(after)
		w.sink.Emit(events.Event{
			Type:   events.TypeThresholdChanged,
			Actor:  caller,
			Amount: uint64(after),
			Time:   now,
		})
	}
	w.log.Info("owner added",
		"owner", addr,
		"caller", caller,
		"owners", w.owners.Len(),
	)
	return nil
}

// RemoveOwner expels an owner. The last owner cannot be removed. Pending
// confirmations by the removed owner are revoked so that confirmation
// counts never exceed the owner-set size; executed records keep theirs.
func (w *Wallet) RemoveOwner(caller, addr ids.ShortID) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if err := w.activeGuard(caller); err != nil {
		return err
	}
	before := w.owners.Threshold()
	if err := w.owners.Remove(addr); err != nil {
		return err
	}
	for index, confirmed := range w.confirmers {
		if w.txs[index].Executed || !confirmed.Contains(addr) {
			continue
		}
		confirmed.Remove(addr)
		w.txs[index].Confirmations--
	}
	now := w.clock.Unix()
	w.owners.Touch(caller, now)
	w.sink.Emit(events.Event{
		Type:    events.TypeOwnerRemoved,
		Actor:   caller,
		Subject: addr,
		Time:    now,
	})
	if after := w.owners.Threshold(); after != before {
		w.emergency.SetNormalThreshold(after)
		w.sink.Emit(events.Event{
			Type:   events.TypeThresholdChanged,
			Actor:  caller,
			Amount: uint64(after),
			Time:   now,
		})
	}
	w.log.Info("owner removed",
		"owner", addr,
		"caller", caller,
		"owners", w.owners.Len(),
	)
	return nil
}

// ChangeThreshold sets the quorum threshold to n. n must be in
// [1, owner count].
func (w *Wallet) ChangeThreshold(caller ids.ShortID, n uint32) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if err := w.activeGuard(caller); err != nil {
		return err
	}
	if err := w.owners.SetThreshold(n); err != nil {
		return err
	}
	w.emergency.SetNormalThreshold(n)
	now := w.clock.Unix()
	w.owners.Touch(caller, now)
	w.sink.Emit(events.Event{
		Type:   events.TypeThresholdChanged,
		Actor:  caller,
		Amount: uint64(n),
		Time:   now,
	})
	w.log.Info("threshold changed", "threshold", n, "caller", caller)
	return nil
}

// SetRateLimits replaces the per-owner daily proposal limit and cooldown.
func (w *Wallet) SetRateLimits(caller ids.ShortID, dailyLimit uint32, cooldown time.Duration) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if err := w.activeGuard(caller); err != nil {
		return err
	}
	if err := w.limiter.SetLimits(dailyLimit, cooldown); err != nil {
		return err
	}
	now := w.clock.Unix()
	w.owners.Touch(caller, now)
	w.sink.Emit(events.Event{
		Type:   events.TypeRateLimitChanged,
		Actor:  caller,
		Amount: uint64(dailyLimit),
		Time:   now,
	})
	w.log.Info("rate limits changed",
		"dailyLimit", dailyLimit,
		"cooldown", cooldown,
		"caller", caller,
	)
	return nil
}

// ResetDailyCounters zeroes every owner's daily proposal count and the
// current day's aggregate. Cooldown timestamps survive the reset.
func (w *Wallet) ResetDailyCounters(caller ids.ShortID) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if err := w.activeGuard(caller); err != nil {
		return err
	}
	w.limiter.Reset(w.clock.Time())
	w.owners.Touch(caller, w.clock.Unix())
	w.log.Info("daily counters reset", "caller", caller)
	return nil
}

// SetFeeRate replaces the execution fee rate. rateBps must not exceed
// fees.MaxRateBps.
func (w *Wallet) SetFeeRate(caller ids.ShortID, rateBps uint16) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if err := w.activeGuard(caller); err != nil {
		return err
	}
	if err := w.fees.SetRate(rateBps); err != nil {
		return err
	}
	now := w.clock.Unix()
	w.owners.Touch(caller, now)
	w.sink.Emit(events.Event{
		Type:   events.TypeFeeRateChanged,
		Actor:  caller,
		Amount: uint64(rateBps),
		Time:   now,
	})
	w.log.Info("fee rate changed", "rateBps", rateBps, "caller", caller)
	return nil
}

// SetFeeCollector names the account entitled to drain the fee pool. The
// collector must be a simple account, not a contract.
func (w *Wallet) SetFeeCollector(caller, collector ids.ShortID) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if err := w.activeGuard(caller); err != nil {
		return err
	}
	if collector == ids.ShortEmpty || collector == w.self {
		return ErrInvalidRecipient
	}
	if !w.classifier.IsSimpleAccount(collector) {
		return ErrInvalidRecipient
	}
	w.feeCollector = collector
	now := w.clock.Unix()
	w.owners.Touch(caller, now)
	w.sink.Emit(events.Event{
		Type:    events.TypeFeeCollectorChanged,
		Actor:   caller,
		Subject: collector,
		Time:    now,
	})
	w.log.Info("fee collector changed", "collector", collector, "caller", caller)
	return nil
}

// ActivateEmergency switches the wallet into emergency mode. At least two
// owners must exist. Activation starts the recovery cooldown.
func (w *Wallet) ActivateEmergency(caller ids.ShortID) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.busy {
		return ErrReentrantCall
	}
	if !w.owners.Contains(caller) {
		return ErrCallerNotOwner
	}
	now := w.clock.Time()
	if err := w.emergency.Activate(w.owners.Len(), now); err != nil {
		return err
	}
	nowUnix := uint64(now.Unix())
	w.owners.Touch(caller, nowUnix)
	w.sink.Emit(events.Event{
		Type:  events.TypeEmergencyActivated,
		Actor: caller,
		Time:  nowUnix,
	})
	w.log.Warn("emergency mode activated", "caller", caller)
	return nil
}

// DeactivateEmergency returns the wallet to normal operation.
func (w *Wallet) DeactivateEmergency(caller ids.ShortID) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.busy {
		return ErrReentrantCall
	}
	if !w.owners.Contains(caller) {
		return ErrCallerNotOwner
	}
	if err := w.emergency.Deactivate(); err != nil {
		return err
	}
	now := w.clock.Unix()
	w.owners.Touch(caller, now)
	w.sink.Emit(events.Event{
		Type:  events.TypeEmergencyDeactivated,
		Actor: caller,
		Time:  now,
	})
	w.log.Warn("emergency mode deactivated", "caller", caller)
	return nil
}

// EmergencyConfirmations reports how many owners currently back an
// emergency action. The count is the live owner-set size, not a recorded
// vote: owners admitted after activation raise it, removed owners lower it.
func (w *Wallet) EmergencyConfirmations() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.owners.Len()
}

// Transaction returns a copy of the transaction at index.
func (w *Wallet) Transaction(index uint64) (Transaction, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	tx, err := w.tx(index)
	if err != nil {
		return Transaction{}, err
	}
	return *tx, nil
}

// TransactionCount returns the number of transactions ever proposed.
func (w *Wallet) TransactionCount() uint64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	return uint64(len(w.txs))
}

// PendingCount returns the number of transactions awaiting execution.
func (w *Wallet) PendingCount() uint64 {
	w.mu.Lock()
	defer w.mu.Unlock()

	var pending uint64
	for _, tx := range w.txs {
		if !tx.Executed {
			pending++
		}
	}
	return pending
}

// Confirmed reports whether owner has a standing confirmation on index.
func (w *Wallet) Confirmed(index uint64, owner ids.ShortID) (bool, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if _, err := w.tx(index); err != nil {
		return false, err
	}
	return w.confirmers[index].Contains(owner), nil
}

// Confirmers returns the owners with standing confirmations on index.
func (w *Wallet) Confirmers(index uint64) ([]ids.ShortID, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if _, err := w.tx(index); err != nil {
		return nil, err
	}
	return w.confirmers[index].List(), nil
}

// BatchTransactions returns the ledger indices of the given batch, in
// submission order.
func (w *Wallet) BatchTransactions(batchID uint64) []uint64 {
	w.mu.Lock()
	defer w.mu.Unlock()

	var indices []uint64
	for i, tx := range w.txs {
		if tx.Batched && tx.BatchID == batchID {
			indices = append(indices, uint64(i))
		}
	}
	return indices
}

// BatchCount returns the number of batches ever proposed.
func (w *Wallet) BatchCount() uint64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.batchCount
}

// Owners returns the current owner set in registry order.
func (w *Wallet) Owners() []ids.ShortID {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.owners.List()
}

// IsOwner reports whether addr is currently an owner.
func (w *Wallet) IsOwner(addr ids.ShortID) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.owners.Contains(addr)
}

// Threshold returns the quorum threshold for normal execution.
func (w *Wallet) Threshold() uint32 {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.owners.Threshold()
}

// OwnerStats returns the activity statistics recorded for addr.
func (w *Wallet) OwnerStats(addr ids.ShortID) (owners.Stats, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.owners.Stats(addr)
}

// EmergencyStatus reports the emergency mode flag, the raised threshold,
// the time of the last emergency action, and the live backing count.
func (w *Wallet) EmergencyStatus() (active bool, threshold uint32, lastAction uint64, confirmations int) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.emergency.Active(), w.emergency.Threshold(), w.emergency.LastAction(), w.owners.Len()
}

// FeeInfo reports the fee rate, the accrued pool, and the collector.
func (w *Wallet) FeeInfo() (rateBps uint16, pool uint64, collector ids.ShortID) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.fees.RateBps(), w.fees.Pool(), w.feeCollector
}

// RateInfo reports the per-owner daily limit and cooldown.
func (w *Wallet) RateInfo() (dailyLimit uint32, cooldown time.Duration) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.limiter.Limits()
}

// OwnerRate returns the rate-limiter state recorded for addr.
func (w *Wallet) OwnerRate(addr ids.ShortID) ratelimit.OwnerState {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.limiter.Owner(addr)
}

// Balance returns the treasury balance, fees included.
func (w *Wallet) Balance() uint64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.transferer.Balance()
}

// AvailableBalance returns the balance spendable by proposals: the
// treasury minus the accrued fee pool.
func (w *Wallet) AvailableBalance() uint64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.available()
}

// Paused reports the administrative pause switch.
func (w *Wallet) Paused() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.pauser.IsPaused()
}

// Self returns the vault's own address.
func (w *Wallet) Self() ids.ShortID {
	return w.self
}

// FeeCollector returns the account entitled to drain the fee pool.
func (w *Wallet) FeeCollector() ids.ShortID {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.feeCollector
}

// Restore replaces the ledger with previously persisted transactions and
// confirmation sets. It is meant for state reload, before the wallet
// serves requests.
func (w *Wallet) Restore(txs []*Transaction, confirmers map[uint64][]ids.ShortID, batchCount uint64) {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.txs = txs
	w.confirmers = make(map[uint64]set.Set[ids.ShortID], len(confirmers))
	for index, addrs := range confirmers {
		w.confirmers[index] = set.Of(addrs...)
	}
	w.batchCount = batchCount
}
