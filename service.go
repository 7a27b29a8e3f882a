// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package vault

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/luxfi/ids"

	"github.com/luxfi/vault/utils/formatting"
	"github.com/luxfi/vault/utils/json"
)

var (
	ErrInvalidRequest = errors.New("invalid request")

	errBatchNotFound = errors.New("batch not found")
)

// Service provides the JSON-RPC API for the vault VM. Mutating methods run
// through the same apply path as block operations and persist on success;
// they are rejected until the VM has bootstrapped.
//
// Addresses travel as strings, amounts and indices as quoted integers, and
// payloads as checksummed hex.
type Service struct {
	vm *VM
}

func parseAddress(field, addr string) (ids.ShortID, error) {
	if addr == "" {
		return ids.ShortEmpty, fmt.Errorf("%w: %s address required", ErrInvalidRequest, field)
	}
	parsed, err := ids.ShortFromString(addr)
	if err != nil {
		return ids.ShortEmpty, fmt.Errorf("%w: invalid %s address", ErrInvalidRequest, field)
	}
	return parsed, nil
}

func formatAddresses(addrs []ids.ShortID) []string {
	out := make([]string, len(addrs))
	for i, addr := range addrs {
		out[i] = addr.String()
	}
	return out
}

// TransactionView is the JSON representation of a ledger transaction.
type TransactionView struct {
	Index         json.Uint64 `json:"index"`
	To            string      `json:"to"`
	Amount        json.Uint64 `json:"amount"`
	Payload       string      `json:"payload,omitempty"`
	Executed      bool        `json:"executed"`
	Confirmations json.Uint32 `json:"confirmations"`
	TimeLocked    bool        `json:"timeLocked"`
	UnlockTime    json.Uint64 `json:"unlockTime"`
	Batched       bool        `json:"batched"`
	BatchID       json.Uint64 `json:"batchId"`
	SubmittedAt   json.Uint64 `json:"submittedAt"`
	Submitter     string      `json:"submitter"`
	Confirmers    []string    `json:"confirmers"`
}

func (s *Service) transactionView(index uint64) (TransactionView, error) {
	tx, err := s.vm.wallet.Transaction(index)
	if err != nil {
		return TransactionView{}, err
	}
	confirmers, err := s.vm.wallet.Confirmers(index)
	if err != nil {
		return TransactionView{}, err
	}
	var payload string
	if len(tx.Payload) > 0 {
		payload, err = formatting.Encode(formatting.Hex, tx.Payload)
		if err != nil {
			return TransactionView{}, err
		}
	}
	return TransactionView{
		Index:         json.Uint64(index),
		To:            tx.To.String(),
		Amount:        json.Uint64(tx.Amount),
		Payload:       payload,
		Executed:      tx.Executed,
		Confirmations: json.Uint32(tx.Confirmations),
		TimeLocked:    tx.TimeLocked,
		UnlockTime:    json.Uint64(tx.UnlockTime),
		Batched:       tx.Batched,
		BatchID:       json.Uint64(tx.BatchID),
		SubmittedAt:   json.Uint64(tx.SubmittedAt),
		Submitter:     tx.Submitter.String(),
		Confirmers:    formatAddresses(confirmers),
	}, nil
}

// ======== Health and status ========

// PingArgs is the argument for the Ping API.
type PingArgs struct{}

// PingReply is the reply for the Ping API.
type PingReply struct {
	Success bool `json:"success"`
}

// Ping returns a simple liveness response.
func (s *Service) Ping(_ *http.Request, _ *PingArgs, reply *PingReply) error {
	reply.Success = true
	return nil
}

// HealthArgs is the argument for the Health API.
type HealthArgs struct{}

// HealthReply is the reply for the Health API.
type HealthReply struct {
	Healthy      bool        `json:"healthy"`
	Bootstrapped bool        `json:"bootstrapped"`
	Height       json.Uint64 `json:"height"`
	Transactions json.Uint64 `json:"transactions"`
	Paused       bool        `json:"paused"`
	Emergency    bool        `json:"emergency"`
}

// Health returns the vault's health status.
func (s *Service) Health(_ *http.Request, _ *HealthArgs, reply *HealthReply) error {
	s.vm.lock.RLock()
	reply.Healthy = s.vm.initialized && !s.vm.shutdown
	reply.Bootstrapped = s.vm.bootstrapped
	reply.Height = json.Uint64(s.vm.height)
	s.vm.lock.RUnlock()

	reply.Transactions = json.Uint64(s.vm.wallet.TransactionCount())
	reply.Paused = s.vm.treasury.IsPaused()
	active, _, _, _ := s.vm.wallet.EmergencyStatus()
	reply.Emergency = active
	return nil
}

// ======== Treasury ========

// DepositArgs is the argument for the Deposit API.
type DepositArgs struct {
	From   string      `json:"from"`
	Amount json.Uint64 `json:"amount"`
}

// DepositReply is the reply for the Deposit API.
type DepositReply struct {
	Balance json.Uint64 `json:"balance"`
}

// Deposit credits the treasury with funds attributed to a sender.
func (s *Service) Deposit(_ *http.Request, args *DepositArgs, reply *DepositReply) error {
	from, err := parseAddress("from", args.From)
	if err != nil {
		return err
	}
	if _, err := s.vm.issueOp(&Op{
		Type:   OpDeposit,
		Caller: from,
		Amount: uint64(args.Amount),
	}); err != nil {
		return err
	}
	reply.Balance = json.Uint64(s.vm.wallet.Balance())
	return nil
}

// GetBalanceArgs is the argument for the GetBalance API.
type GetBalanceArgs struct{}

// GetBalanceReply is the reply for the GetBalance API.
type GetBalanceReply struct {
	Balance   json.Uint64 `json:"balance"`
	Available json.Uint64 `json:"available"`
	FeePool   json.Uint64 `json:"feePool"`
}

// GetBalance returns the treasury balance, the portion spendable by
// proposals, and the accrued fee pool.
func (s *Service) GetBalance(_ *http.Request, _ *GetBalanceArgs, reply *GetBalanceReply) error {
	if !s.vm.IsBootstrapped() {
		return ErrNotBootstrapped
	}
	_, pool, _ := s.vm.wallet.FeeInfo()
	reply.Balance = json.Uint64(s.vm.wallet.Balance())
	reply.Available = json.Uint64(s.vm.wallet.AvailableBalance())
	reply.FeePool = json.Uint64(pool)
	return nil
}

// SetPausedArgs is the argument for the SetPaused API.
type SetPausedArgs struct {
	Caller string `json:"caller"`
	Paused bool   `json:"paused"`
}

// SetPausedReply is the reply for the SetPaused API.
type SetPausedReply struct {
	Paused bool `json:"paused"`
}

// SetPaused flips the vault's circuit breaker. Any owner may pause or
// unpause.
func (s *Service) SetPaused(_ *http.Request, args *SetPausedArgs, reply *SetPausedReply) error {
	caller, err := parseAddress("caller", args.Caller)
	if err != nil {
		return err
	}
	opType := OpPause
	if !args.Paused {
		opType = OpUnpause
	}
	if _, err := s.vm.issueOp(&Op{
		Type:   opType,
		Caller: caller,
	}); err != nil {
		return err
	}
	reply.Paused = args.Paused
	return nil
}

// ======== Transaction lifecycle ========

// ProposeArgs is the argument for the Propose API.
type ProposeArgs struct {
	Proposer string      `json:"proposer"`
	To       string      `json:"to"`
	Amount   json.Uint64 `json:"amount"`
	// Payload is optional checksummed hex, delivered opaque to the
	// recipient on execution.
	Payload      string      `json:"payload,omitempty"`
	WithTimelock bool        `json:"withTimelock"`
	LockSeconds  json.Uint64 `json:"lockSeconds"`
}

// ProposeReply is the reply for the Propose API.
type ProposeReply struct {
	TxIndex json.Uint64 `json:"txIndex"`
}

// Propose submits a new outbound transfer for owner approval.
func (s *Service) Propose(_ *http.Request, args *ProposeArgs, reply *ProposeReply) error {
	proposer, err := parseAddress("proposer", args.Proposer)
	if err != nil {
		return err
	}
	to, err := parseAddress("to", args.To)
	if err != nil {
		return err
	}
	payload, err := formatting.Decode(formatting.Hex, args.Payload)
	if err != nil {
		return fmt.Errorf("%w: bad payload: %v", ErrInvalidRequest, err)
	}

	outcome, err := s.vm.issueOp(&Op{
		Type:         OpPropose,
		Caller:       proposer,
		To:           to,
		Amount:       uint64(args.Amount),
		Payload:      payload,
		WithTimelock: args.WithTimelock,
		LockSeconds:  uint64(args.LockSeconds),
	})
	if err != nil {
		return err
	}
	reply.TxIndex = json.Uint64(outcome.indices[0])
	return nil
}

// ProposeBatchArgs is the argument for the ProposeBatch API.
type ProposeBatchArgs struct {
	Proposer   string        `json:"proposer"`
	Recipients []string      `json:"recipients"`
	Amounts    []json.Uint64 `json:"amounts"`
	// Payloads is optional; missing entries are empty.
	Payloads []string `json:"payloads,omitempty"`
}

// ProposeBatchReply is the reply for the ProposeBatch API.
type ProposeBatchReply struct {
	BatchID   json.Uint64   `json:"batchId"`
	TxIndices []json.Uint64 `json:"txIndices"`
}

// ProposeBatch submits several transfers as one atomic batch, consuming a
// single slot of the proposer's rate quota.
func (s *Service) ProposeBatch(_ *http.Request, args *ProposeBatchArgs, reply *ProposeBatchReply) error {
	proposer, err := parseAddress("proposer", args.Proposer)
	if err != nil {
		return err
	}
	if len(args.Payloads) > len(args.Recipients) {
		return fmt.Errorf("%w: more payloads than recipients", ErrInvalidRequest)
	}

	recipients := make([]ids.ShortID, len(args.Recipients))
	for i, addr := range args.Recipients {
		recipients[i], err = parseAddress("recipient", addr)
		if err != nil {
			return err
		}
	}
	amounts := make([]uint64, len(args.Amounts))
	for i, amount := range args.Amounts {
		amounts[i] = uint64(amount)
	}
	payloads := make([][]byte, len(args.Recipients))
	for i, p := range args.Payloads {
		payloads[i], err = formatting.Decode(formatting.Hex, p)
		if err != nil {
			return fmt.Errorf("%w: bad payload %d: %v", ErrInvalidRequest, i, err)
		}
	}

	outcome, err := s.vm.issueOp(&Op{
		Type:       OpProposeBatch,
		Caller:     proposer,
		Recipients: recipients,
		Amounts:    amounts,
		Payloads:   payloads,
	})
	if err != nil {
		return err
	}
	reply.BatchID = json.Uint64(outcome.batchID)
	reply.TxIndices = make([]json.Uint64, len(outcome.indices))
	for i, index := range outcome.indices {
		reply.TxIndices[i] = json.Uint64(index)
	}
	return nil
}

// ConfirmArgs is the argument for the Confirm API.
type ConfirmArgs struct {
	Owner   string      `json:"owner"`
	TxIndex json.Uint64 `json:"txIndex"`
}

// ConfirmReply is the reply for the Confirm API.
type ConfirmReply struct {
	Confirmations json.Uint32 `json:"confirmations"`
	Threshold     json.Uint32 `json:"threshold"`
}

// Confirm records the owner's approval of a pending transaction.
func (s *Service) Confirm(_ *http.Request, args *ConfirmArgs, reply *ConfirmReply) error {
	owner, err := parseAddress("owner", args.Owner)
	if err != nil {
		return err
	}
	if _, err := s.vm.issueOp(&Op{
		Type:    OpConfirm,
		Caller:  owner,
		TxIndex: uint64(args.TxIndex),
	}); err != nil {
		return err
	}
	tx, err := s.vm.wallet.Transaction(uint64(args.TxIndex))
	if err != nil {
		return err
	}
	reply.Confirmations = json.Uint32(tx.Confirmations)
	reply.Threshold = json.Uint32(s.vm.wallet.Threshold())
	return nil
}

// RevokeArgs is the argument for the Revoke API.
type RevokeArgs struct {
	Owner   string      `json:"owner"`
	TxIndex json.Uint64 `json:"txIndex"`
}

// RevokeReply is the reply for the Revoke API.
type RevokeReply struct {
	Confirmations json.Uint32 `json:"confirmations"`
}

// Revoke withdraws the owner's standing confirmation.
func (s *Service) Revoke(_ *http.Request, args *RevokeArgs, reply *RevokeReply) error {
	owner, err := parseAddress("owner", args.Owner)
	if err != nil {
		return err
	}
	if _, err := s.vm.issueOp(&Op{
		Type:    OpRevoke,
		Caller:  owner,
		TxIndex: uint64(args.TxIndex),
	}); err != nil {
		return err
	}
	tx, err := s.vm.wallet.Transaction(uint64(args.TxIndex))
	if err != nil {
		return err
	}
	reply.Confirmations = json.Uint32(tx.Confirmations)
	return nil
}

// ExecuteArgs is the argument for the Execute API.
type ExecuteArgs struct {
	Caller  string      `json:"caller"`
	TxIndex json.Uint64 `json:"txIndex"`
}

// ExecuteReply is the reply for the Execute API.
type ExecuteReply struct {
	To     string      `json:"to"`
	Amount json.Uint64 `json:"amount"`
}

// Execute carries out a fully confirmed transaction, moving funds out of
// the treasury.
func (s *Service) Execute(_ *http.Request, args *ExecuteArgs, reply *ExecuteReply) error {
	caller, err := parseAddress("caller", args.Caller)
	if err != nil {
		return err
	}
	if _, err := s.vm.issueOp(&Op{
		Type:    OpExecute,
		Caller:  caller,
		TxIndex: uint64(args.TxIndex),
	}); err != nil {
		return err
	}
	tx, err := s.vm.wallet.Transaction(uint64(args.TxIndex))
	if err != nil {
		return err
	}
	reply.To = tx.To.String()
	reply.Amount = json.Uint64(tx.Amount)
	return nil
}

// GetTransactionArgs is the argument for the GetTransaction API.
type GetTransactionArgs struct {
	TxIndex json.Uint64 `json:"txIndex"`
}

// GetTransactionReply is the reply for the GetTransaction API.
type GetTransactionReply struct {
	Transaction TransactionView `json:"transaction"`
}

// GetTransaction returns the transaction at the given ledger index.
func (s *Service) GetTransaction(_ *http.Request, args *GetTransactionArgs, reply *GetTransactionReply) error {
	if !s.vm.IsBootstrapped() {
		return ErrNotBootstrapped
	}
	view, err := s.transactionView(uint64(args.TxIndex))
	if err != nil {
		return err
	}
	reply.Transaction = view
	return nil
}

// GetTransactionCountArgs is the argument for the GetTransactionCount API.
type GetTransactionCountArgs struct{}

// GetTransactionCountReply is the reply for the GetTransactionCount API.
type GetTransactionCountReply struct {
	Count   json.Uint64 `json:"count"`
	Pending json.Uint64 `json:"pending"`
}

// GetTransactionCount returns the number of transactions ever proposed and
// the number still awaiting execution.
func (s *Service) GetTransactionCount(_ *http.Request, _ *GetTransactionCountArgs, reply *GetTransactionCountReply) error {
	if !s.vm.IsBootstrapped() {
		return ErrNotBootstrapped
	}
	reply.Count = json.Uint64(s.vm.wallet.TransactionCount())
	reply.Pending = json.Uint64(s.vm.wallet.PendingCount())
	return nil
}

// IsConfirmedArgs is the argument for the IsConfirmed API.
type IsConfirmedArgs struct {
	TxIndex json.Uint64 `json:"txIndex"`
	Owner   string      `json:"owner"`
}

// IsConfirmedReply is the reply for the IsConfirmed API.
type IsConfirmedReply struct {
	Confirmed bool `json:"confirmed"`
}

// IsConfirmed reports whether the owner has a standing confirmation on the
// transaction.
func (s *Service) IsConfirmed(_ *http.Request, args *IsConfirmedArgs, reply *IsConfirmedReply) error {
	if !s.vm.IsBootstrapped() {
		return ErrNotBootstrapped
	}
	owner, err := parseAddress("owner", args.Owner)
	if err != nil {
		return err
	}
	confirmed, err := s.vm.wallet.Confirmed(uint64(args.TxIndex), owner)
	if err != nil {
		return err
	}
	reply.Confirmed = confirmed
	return nil
}

// GetBatchArgs is the argument for the GetBatch API.
type GetBatchArgs struct {
	BatchID json.Uint64 `json:"batchId"`
}

// GetBatchReply is the reply for the GetBatch API.
type GetBatchReply struct {
	BatchID      json.Uint64       `json:"batchId"`
	TxIndices    []json.Uint64     `json:"txIndices"`
	Transactions []TransactionView `json:"transactions"`
}

// GetBatch returns every transaction of a batch, in submission order.
func (s *Service) GetBatch(_ *http.Request, args *GetBatchArgs, reply *GetBatchReply) error {
	if !s.vm.IsBootstrapped() {
		return ErrNotBootstrapped
	}
	batchID := uint64(args.BatchID)
	if batchID >= s.vm.wallet.BatchCount() {
		return fmt.Errorf("%w: %d", errBatchNotFound, batchID)
	}

	indices := s.vm.wallet.BatchTransactions(batchID)
	reply.BatchID = args.BatchID
	reply.TxIndices = make([]json.Uint64, len(indices))
	reply.Transactions = make([]TransactionView, len(indices))
	for i, index := range indices {
		view, err := s.transactionView(index)
		if err != nil {
			return err
		}
		reply.TxIndices[i] = json.Uint64(index)
		reply.Transactions[i] = view
	}
	return nil
}

// ======== Owner administration ========

// AddOwnerArgs is the argument for the AddOwner API.
type AddOwnerArgs struct {
	Caller string `json:"caller"`
	Owner  string `json:"owner"`
}

// AddOwnerReply is the reply for the AddOwner API.
type AddOwnerReply struct {
	Owners    []string    `json:"owners"`
	Threshold json.Uint32 `json:"threshold"`
}

// AddOwner admits a new owner into the authorization set.
func (s *Service) AddOwner(_ *http.Request, args *AddOwnerArgs, reply *AddOwnerReply) error {
	caller, err := parseAddress("caller", args.Caller)
	if err != nil {
		return err
	}
	owner, err := parseAddress("owner", args.Owner)
	if err != nil {
		return err
	}
	if _, err := s.vm.issueOp(&Op{
		Type:   OpAddOwner,
		Caller: caller,
		To:     owner,
	}); err != nil {
		return err
	}
	reply.Owners = formatAddresses(s.vm.wallet.Owners())
	reply.Threshold = json.Uint32(s.vm.wallet.Threshold())
	return nil
}

// RemoveOwnerArgs is the argument for the RemoveOwner API.
type RemoveOwnerArgs struct {
	Caller string `json:"caller"`
	Owner  string `json:"owner"`
}

// RemoveOwnerReply is the reply for the RemoveOwner API.
type RemoveOwnerReply struct {
	Owners    []string    `json:"owners"`
	Threshold json.Uint32 `json:"threshold"`
}

// RemoveOwner expels an owner and revokes their standing confirmations.
func (s *Service) RemoveOwner(_ *http.Request, args *RemoveOwnerArgs, reply *RemoveOwnerReply) error {
	caller, err := parseAddress("caller", args.Caller)
	if err != nil {
		return err
	}
	owner, err := parseAddress("owner", args.Owner)
	if err != nil {
		return err
	}
	if _, err := s.vm.issueOp(&Op{
		Type:   OpRemoveOwner,
		Caller: caller,
		To:     owner,
	}); err != nil {
		return err
	}
	reply.Owners = formatAddresses(s.vm.wallet.Owners())
	reply.Threshold = json.Uint32(s.vm.wallet.Threshold())
	return nil
}

// ChangeThresholdArgs is the argument for the ChangeThreshold API.
type ChangeThresholdArgs struct {
	Caller    string      `json:"caller"`
	Threshold json.Uint32 `json:"threshold"`
}

// ChangeThresholdReply is the reply for the ChangeThreshold API.
type ChangeThresholdReply struct {
	Threshold json.Uint32 `json:"threshold"`
}

// ChangeThreshold sets the number of confirmations required to execute.
func (s *Service) ChangeThreshold(_ *http.Request, args *ChangeThresholdArgs, reply *ChangeThresholdReply) error {
	caller, err := parseAddress("caller", args.Caller)
	if err != nil {
		return err
	}
	if _, err := s.vm.issueOp(&Op{
		Type:      OpChangeThreshold,
		Caller:    caller,
		Threshold: uint32(args.Threshold),
	}); err != nil {
		return err
	}
	reply.Threshold = json.Uint32(s.vm.wallet.Threshold())
	return nil
}

// GetOwnersArgs is the argument for the GetOwners API.
type GetOwnersArgs struct{}

// GetOwnersReply is the reply for the GetOwners API.
type GetOwnersReply struct {
	Owners    []string    `json:"owners"`
	Threshold json.Uint32 `json:"threshold"`
}

// GetOwners returns the owner set and the confirmation threshold.
func (s *Service) GetOwners(_ *http.Request, _ *GetOwnersArgs, reply *GetOwnersReply) error {
	if !s.vm.IsBootstrapped() {
		return ErrNotBootstrapped
	}
	reply.Owners = formatAddresses(s.vm.wallet.Owners())
	reply.Threshold = json.Uint32(s.vm.wallet.Threshold())
	return nil
}

// GetOwnerStatsArgs is the argument for the GetOwnerStats API.
type GetOwnerStatsArgs struct {
	Owner string `json:"owner"`
}

// GetOwnerStatsReply is the reply for the GetOwnerStats API.
type GetOwnerStatsReply struct {
	LastActivity  json.Uint64 `json:"lastActivity"`
	LastProposal  json.Uint64 `json:"lastProposal"`
	Proposals     json.Uint64 `json:"proposals"`
	Confirmations json.Uint64 `json:"confirmations"`
}

// GetOwnerStats returns one owner's recorded activity.
func (s *Service) GetOwnerStats(_ *http.Request, args *GetOwnerStatsArgs, reply *GetOwnerStatsReply) error {
	if !s.vm.IsBootstrapped() {
		return ErrNotBootstrapped
	}
	owner, err := parseAddress("owner", args.Owner)
	if err != nil {
		return err
	}
	stats, err := s.vm.wallet.OwnerStats(owner)
	if err != nil {
		return err
	}
	reply.LastActivity = json.Uint64(stats.LastActivity)
	reply.LastProposal = json.Uint64(stats.LastProposal)
	reply.Proposals = json.Uint64(stats.Proposals)
	reply.Confirmations = json.Uint64(stats.Confirmations)
	return nil
}

// ======== Rate limits ========

// SetRateLimitsArgs is the argument for the SetRateLimits API.
type SetRateLimitsArgs struct {
	Caller          string      `json:"caller"`
	DailyLimit      json.Uint32 `json:"dailyLimit"`
	CooldownSeconds json.Uint64 `json:"cooldownSeconds"`
}

// SetRateLimitsReply is the reply for the SetRateLimits API.
type SetRateLimitsReply struct {
	DailyLimit      json.Uint32 `json:"dailyLimit"`
	CooldownSeconds json.Uint64 `json:"cooldownSeconds"`
}

// SetRateLimits changes the per-owner daily proposal limit and cooldown.
func (s *Service) SetRateLimits(_ *http.Request, args *SetRateLimitsArgs, reply *SetRateLimitsReply) error {
	caller, err := parseAddress("caller", args.Caller)
	if err != nil {
		return err
	}
	if _, err := s.vm.issueOp(&Op{
		Type:            OpSetRateLimits,
		Caller:          caller,
		DailyLimit:      uint32(args.DailyLimit),
		CooldownSeconds: uint64(args.CooldownSeconds),
	}); err != nil {
		return err
	}
	reply.DailyLimit = args.DailyLimit
	reply.CooldownSeconds = args.CooldownSeconds
	return nil
}

// ResetDailyCountersArgs is the argument for the ResetDailyCounters API.
type ResetDailyCountersArgs struct {
	Caller string `json:"caller"`
}

// ResetDailyCountersReply is the reply for the ResetDailyCounters API.
type ResetDailyCountersReply struct {
	Success bool `json:"success"`
}

// ResetDailyCounters zeroes every owner's daily proposal count. Cooldown
// stamps survive the reset.
func (s *Service) ResetDailyCounters(_ *http.Request, args *ResetDailyCountersArgs, reply *ResetDailyCountersReply) error {
	caller, err := parseAddress("caller", args.Caller)
	if err != nil {
		return err
	}
	if _, err := s.vm.issueOp(&Op{
		Type:   OpResetDailyCounters,
		Caller: caller,
	}); err != nil {
		return err
	}
	reply.Success = true
	return nil
}

// GetRateLimitArgs is the argument for the GetRateLimit API.
type GetRateLimitArgs struct {
	// Owner is optional; when set, the reply carries that owner's usage.
	Owner string `json:"owner,omitempty"`
}

// GetRateLimitReply is the reply for the GetRateLimit API.
type GetRateLimitReply struct {
	DailyLimit      json.Uint32 `json:"dailyLimit"`
	CooldownSeconds json.Uint64 `json:"cooldownSeconds"`
	UsedToday       json.Uint32 `json:"usedToday"`
	LastProposal    json.Uint64 `json:"lastProposal"`
}

// GetRateLimit returns the rate policy and, when an owner is named, that
// owner's usage against it.
func (s *Service) GetRateLimit(_ *http.Request, args *GetRateLimitArgs, reply *GetRateLimitReply) error {
	if !s.vm.IsBootstrapped() {
		return ErrNotBootstrapped
	}
	dailyLimit, cooldown := s.vm.wallet.RateInfo()
	reply.DailyLimit = json.Uint32(dailyLimit)
	reply.CooldownSeconds = json.Uint64(cooldown / time.Second)

	if args.Owner == "" {
		return nil
	}
	owner, err := parseAddress("owner", args.Owner)
	if err != nil {
		return err
	}
	rate := s.vm.wallet.OwnerRate(owner)
	reply.UsedToday = json.Uint32(rate.Count)
	reply.LastProposal = json.Uint64(rate.LastTx)
	return nil
}

// ======== Fees ========

// SetFeeRateArgs is the argument for the SetFeeRate API.
type SetFeeRateArgs struct {
	Caller  string `json:"caller"`
	RateBps uint16 `json:"rateBps"`
}

// SetFeeRateReply is the reply for the SetFeeRate API.
type SetFeeRateReply struct {
	RateBps uint16 `json:"rateBps"`
}

// SetFeeRate changes the execution fee rate, in basis points.
func (s *Service) SetFeeRate(_ *http.Request, args *SetFeeRateArgs, reply *SetFeeRateReply) error {
	caller, err := parseAddress("caller", args.Caller)
	if err != nil {
		return err
	}
	if _, err := s.vm.issueOp(&Op{
		Type:    OpSetFeeRate,
		Caller:  caller,
		RateBps: args.RateBps,
	}); err != nil {
		return err
	}
	rateBps, _, _ := s.vm.wallet.FeeInfo()
	reply.RateBps = rateBps
	return nil
}

// SetFeeCollectorArgs is the argument for the SetFeeCollector API.
type SetFeeCollectorArgs struct {
	Caller    string `json:"caller"`
	Collector string `json:"collector"`
}

// SetFeeCollectorReply is the reply for the SetFeeCollector API.
type SetFeeCollectorReply struct {
	Collector string `json:"collector"`
}

// SetFeeCollector names the account entitled to drain the fee pool.
func (s *Service) SetFeeCollector(_ *http.Request, args *SetFeeCollectorArgs, reply *SetFeeCollectorReply) error {
	caller, err := parseAddress("caller", args.Caller)
	if err != nil {
		return err
	}
	collector, err := parseAddress("collector", args.Collector)
	if err != nil {
		return err
	}
	if _, err := s.vm.issueOp(&Op{
		Type:   OpSetFeeCollector,
		Caller: caller,
		To:     collector,
	}); err != nil {
		return err
	}
	reply.Collector = collector.String()
	return nil
}

// CollectFeesArgs is the argument for the CollectFees API.
type CollectFeesArgs struct {
	Caller string `json:"caller"`
}

// CollectFeesReply is the reply for the CollectFees API.
type CollectFeesReply struct {
	Amount json.Uint64 `json:"amount"`
}

// CollectFees pays the accrued fee pool out to the collector.
func (s *Service) CollectFees(_ *http.Request, args *CollectFeesArgs, reply *CollectFeesReply) error {
	caller, err := parseAddress("caller", args.Caller)
	if err != nil {
		return err
	}
	outcome, err := s.vm.issueOp(&Op{
		Type:   OpCollectFees,
		Caller: caller,
	})
	if err != nil {
		return err
	}
	reply.Amount = json.Uint64(outcome.amount)
	return nil
}

// GetFeeInfoArgs is the argument for the GetFeeInfo API.
type GetFeeInfoArgs struct{}

// GetFeeInfoReply is the reply for the GetFeeInfo API.
type GetFeeInfoReply struct {
	RateBps   uint16      `json:"rateBps"`
	Pool      json.Uint64 `json:"pool"`
	Collector string      `json:"collector"`
}

// GetFeeInfo returns the fee rate, the accrued pool, and the collector.
func (s *Service) GetFeeInfo(_ *http.Request, _ *GetFeeInfoArgs, reply *GetFeeInfoReply) error {
	if !s.vm.IsBootstrapped() {
		return ErrNotBootstrapped
	}
	rateBps, pool, collector := s.vm.wallet.FeeInfo()
	reply.RateBps = rateBps
	reply.Pool = json.Uint64(pool)
	reply.Collector = collector.String()
	return nil
}

// ======== Emergency ========

// ActivateEmergencyArgs is the argument for the ActivateEmergency API.
type ActivateEmergencyArgs struct {
	Caller string `json:"caller"`
}

// ActivateEmergencyReply is the reply for the ActivateEmergency API.
type ActivateEmergencyReply struct {
	Active    bool        `json:"active"`
	Threshold json.Uint32 `json:"threshold"`
}

// ActivateEmergency switches the vault into emergency mode, freezing
// normal operation.
func (s *Service) ActivateEmergency(_ *http.Request, args *ActivateEmergencyArgs, reply *ActivateEmergencyReply) error {
	caller, err := parseAddress("caller", args.Caller)
	if err != nil {
		return err
	}
	if _, err := s.vm.issueOp(&Op{
		Type:   OpActivateEmergency,
		Caller: caller,
	}); err != nil {
		return err
	}
	active, threshold, _, _ := s.vm.wallet.EmergencyStatus()
	reply.Active = active
	reply.Threshold = json.Uint32(threshold)
	return nil
}

// DeactivateEmergencyArgs is the argument for the DeactivateEmergency API.
type DeactivateEmergencyArgs struct {
	Caller string `json:"caller"`
}

// DeactivateEmergencyReply is the reply for the DeactivateEmergency API.
type DeactivateEmergencyReply struct {
	Active bool `json:"active"`
}

// DeactivateEmergency returns the vault to normal operation.
func (s *Service) DeactivateEmergency(_ *http.Request, args *DeactivateEmergencyArgs, reply *DeactivateEmergencyReply) error {
	caller, err := parseAddress("caller", args.Caller)
	if err != nil {
		return err
	}
	if _, err := s.vm.issueOp(&Op{
		Type:   OpDeactivateEmergency,
		Caller: caller,
	}); err != nil {
		return err
	}
	active, _, _, _ := s.vm.wallet.EmergencyStatus()
	reply.Active = active
	return nil
}

// EmergencyRecoveryArgs is the argument for the EmergencyRecovery API.
type EmergencyRecoveryArgs struct {
	Caller string      `json:"caller"`
	To     string      `json:"to"`
	Amount json.Uint64 `json:"amount"`
}

// EmergencyRecoveryReply is the reply for the EmergencyRecovery API.
type EmergencyRecoveryReply struct {
	To     string      `json:"to"`
	Amount json.Uint64 `json:"amount"`
}

// EmergencyRecovery moves funds out of the treasury while emergency mode is
// active, bypassing per-transaction confirmation. The full owner set must
// back the action and the recovery cooldown must have elapsed.
func (s *Service) EmergencyRecovery(_ *http.Request, args *EmergencyRecoveryArgs, reply *EmergencyRecoveryReply) error {
	caller, err := parseAddress("caller", args.Caller)
	if err != nil {
		return err
	}
	to, err := parseAddress("to", args.To)
	if err != nil {
		return err
	}
	if _, err := s.vm.issueOp(&Op{
		Type:   OpEmergencyRecovery,
		Caller: caller,
		To:     to,
		Amount: uint64(args.Amount),
	}); err != nil {
		return err
	}
	reply.To = to.String()
	reply.Amount = args.Amount
	return nil
}

// GetEmergencyStatusArgs is the argument for the GetEmergencyStatus API.
type GetEmergencyStatusArgs struct{}

// GetEmergencyStatusReply is the reply for the GetEmergencyStatus API.
type GetEmergencyStatusReply struct {
	Active        bool        `json:"active"`
	Threshold     json.Uint32 `json:"threshold"`
	LastAction    json.Uint64 `json:"lastAction"`
	Confirmations json.Uint32 `json:"confirmations"`
}

// GetEmergencyStatus returns the emergency mode flag, the raised threshold,
// the time of the last emergency action, and the live backing count.
func (s *Service) GetEmergencyStatus(_ *http.Request, _ *GetEmergencyStatusArgs, reply *GetEmergencyStatusReply) error {
	if !s.vm.IsBootstrapped() {
		return ErrNotBootstrapped
	}
	active, threshold, lastAction, confirmations := s.vm.wallet.EmergencyStatus()
	reply.Active = active
	reply.Threshold = json.Uint32(threshold)
	reply.LastAction = json.Uint64(lastAction)
	reply.Confirmations = json.Uint32(confirmations)
	return nil
}

// ======== Events ========

// EventView is the JSON representation of one audit event.
type EventView struct {
	Type    string      `json:"type"`
	Actor   string      `json:"actor"`
	Subject string      `json:"subject,omitempty"`
	TxIndex json.Uint64 `json:"txIndex"`
	BatchID json.Uint64 `json:"batchId"`
	Amount  json.Uint64 `json:"amount"`
	Kind    string      `json:"kind,omitempty"`
	Time    json.Uint64 `json:"time"`
}

// GetEventsArgs is the argument for the GetEvents API.
type GetEventsArgs struct {
	Offset int `json:"offset"`
	Limit  int `json:"limit"`
}

// GetEventsReply is the reply for the GetEvents API.
type GetEventsReply struct {
	Events []EventView `json:"events"`
	Total  json.Uint64 `json:"total"`
}

// GetEvents returns the audit log from offset, at most limit entries.
func (s *Service) GetEvents(_ *http.Request, args *GetEventsArgs, reply *GetEventsReply) error {
	if !s.vm.IsBootstrapped() {
		return ErrNotBootstrapped
	}
	recorded := s.vm.eventLog.Since(args.Offset)
	if args.Limit > 0 && len(recorded) > args.Limit {
		recorded = recorded[:args.Limit]
	}

	reply.Total = json.Uint64(s.vm.eventLog.Len())
	reply.Events = make([]EventView, len(recorded))
	for i, e := range recorded {
		view := EventView{
			Type:    string(e.Type),
			Actor:   e.Actor.String(),
			TxIndex: json.Uint64(e.TxIndex),
			BatchID: json.Uint64(e.BatchID),
			Amount:  json.Uint64(e.Amount),
			Kind:    e.Kind,
			Time:    json.Uint64(e.Time),
		}
		if e.Subject != ids.ShortEmpty {
			view.Subject = e.Subject.String()
		}
		reply.Events[i] = view
	}
	return nil
}
