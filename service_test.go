// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package vault

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/luxfi/database/memdb"

	"github.com/luxfi/vault/emergency"
	"github.com/luxfi/vault/utils/formatting"
	"github.com/luxfi/vault/utils/json"
	"github.com/luxfi/vault/utils/units"
	"github.com/luxfi/vault/wallet"
)

func newTestService(t *testing.T) (*Service, *VM) {
	vm := newTestVM(t, memdb.New(), testGenesis(t))
	return &Service{vm: vm}, vm
}

func TestServicePing(t *testing.T) {
	require := require.New(t)

	service, _ := newTestService(t)
	reply := PingReply{}
	require.NoError(service.Ping(nil, &PingArgs{}, &reply))
	require.True(reply.Success)
}

func TestServiceHealth(t *testing.T) {
	require := require.New(t)

	service, _ := newTestService(t)
	reply := HealthReply{}
	require.NoError(service.Health(nil, &HealthArgs{}, &reply))
	require.True(reply.Healthy)
	require.True(reply.Bootstrapped)
	require.Zero(reply.Height)
	require.False(reply.Paused)
	require.False(reply.Emergency)
}

func TestServiceNotBootstrapped(t *testing.T) {
	require := require.New(t)

	vm := &VM{}
	require.NoError(vm.Initialize(context.Background(), nil, memdb.New(), testGenesis(t), nil, nil, nil, nil, nil))
	service := &Service{vm: vm}

	// Liveness answers regardless.
	pingReply := PingReply{}
	require.NoError(service.Ping(nil, &PingArgs{}, &pingReply))

	balanceReply := GetBalanceReply{}
	err := service.GetBalance(nil, &GetBalanceArgs{}, &balanceReply)
	require.ErrorIs(err, ErrNotBootstrapped)

	depositReply := DepositReply{}
	err = service.Deposit(nil, &DepositArgs{From: testOutsider.String(), Amount: 1}, &depositReply)
	require.ErrorIs(err, ErrNotBootstrapped)
}

func TestServiceDeposit(t *testing.T) {
	require := require.New(t)

	service, _ := newTestService(t)

	reply := DepositReply{}
	require.NoError(service.Deposit(nil, &DepositArgs{
		From:   testOutsider.String(),
		Amount: json.Uint64(100 * units.Lux),
	}, &reply))
	require.Equal(json.Uint64(1100*units.Lux), reply.Balance)

	balanceReply := GetBalanceReply{}
	require.NoError(service.GetBalance(nil, &GetBalanceArgs{}, &balanceReply))
	require.Equal(json.Uint64(1100*units.Lux), balanceReply.Balance)
	require.Equal(json.Uint64(1100*units.Lux), balanceReply.Available)
	require.Zero(balanceReply.FeePool)

	err := service.Deposit(nil, &DepositArgs{From: "", Amount: 1}, &reply)
	require.ErrorIs(err, ErrInvalidRequest)
}

func TestServiceTransactionLifecycle(t *testing.T) {
	require := require.New(t)

	service, _ := newTestService(t)

	payloadHex, err := formatting.Encode(formatting.Hex, []byte("memo"))
	require.NoError(err)

	proposeReply := ProposeReply{}
	require.NoError(service.Propose(nil, &ProposeArgs{
		Proposer: testOwner1.String(),
		To:       testPayee.String(),
		Amount:   json.Uint64(100 * units.Lux),
		Payload:  payloadHex,
	}, &proposeReply))
	require.Zero(proposeReply.TxIndex)

	confirmReply := ConfirmReply{}
	require.NoError(service.Confirm(nil, &ConfirmArgs{
		Owner:   testOwner2.String(),
		TxIndex: 0,
	}, &confirmReply))
	require.Equal(json.Uint32(1), confirmReply.Confirmations)
	require.Equal(json.Uint32(2), confirmReply.Threshold)

	isConfirmedReply := IsConfirmedReply{}
	require.NoError(service.IsConfirmed(nil, &IsConfirmedArgs{
		TxIndex: 0,
		Owner:   testOwner2.String(),
	}, &isConfirmedReply))
	require.True(isConfirmedReply.Confirmed)

	require.NoError(service.Confirm(nil, &ConfirmArgs{
		Owner:   testOwner3.String(),
		TxIndex: 0,
	}, &confirmReply))
	require.Equal(json.Uint32(2), confirmReply.Confirmations)

	executeReply := ExecuteReply{}
	require.NoError(service.Execute(nil, &ExecuteArgs{
		Caller:  testOwner1.String(),
		TxIndex: 0,
	}, &executeReply))
	require.Equal(testPayee.String(), executeReply.To)
	require.Equal(json.Uint64(100*units.Lux), executeReply.Amount)

	txReply := GetTransactionReply{}
	require.NoError(service.GetTransaction(nil, &GetTransactionArgs{TxIndex: 0}, &txReply))
	view := txReply.Transaction
	require.True(view.Executed)
	require.Equal(payloadHex, view.Payload)
	require.Equal(testOwner1.String(), view.Submitter)
	require.Len(view.Confirmers, 2)

	countReply := GetTransactionCountReply{}
	require.NoError(service.GetTransactionCount(nil, &GetTransactionCountArgs{}, &countReply))
	require.Equal(json.Uint64(1), countReply.Count)
	require.Zero(countReply.Pending)
}

func TestServiceProposeValidation(t *testing.T) {
	require := require.New(t)

	service, _ := newTestService(t)
	reply := ProposeReply{}

	err := service.Propose(nil, &ProposeArgs{To: testPayee.String(), Amount: 1}, &reply)
	require.ErrorIs(err, ErrInvalidRequest)

	err = service.Propose(nil, &ProposeArgs{
		Proposer: "not an address",
		To:       testPayee.String(),
		Amount:   1,
	}, &reply)
	require.ErrorIs(err, ErrInvalidRequest)

	err = service.Propose(nil, &ProposeArgs{
		Proposer: testOwner1.String(),
		To:       testPayee.String(),
		Amount:   1,
		Payload:  "zzzz",
	}, &reply)
	require.ErrorIs(err, ErrInvalidRequest)

	err = service.Propose(nil, &ProposeArgs{
		Proposer: testOutsider.String(),
		To:       testPayee.String(),
		Amount:   1,
	}, &reply)
	require.ErrorIs(err, wallet.ErrCallerNotOwner)

	txReply := GetTransactionReply{}
	err = service.GetTransaction(nil, &GetTransactionArgs{TxIndex: 0}, &txReply)
	require.ErrorIs(err, wallet.ErrTxNotFound)
}

func TestServiceBatch(t *testing.T) {
	require := require.New(t)

	service, _ := newTestService(t)

	reply := ProposeBatchReply{}
	err := service.ProposeBatch(nil, &ProposeBatchArgs{
		Proposer:   testOwner1.String(),
		Recipients: []string{testPayee.String()},
		Amounts:    []json.Uint64{1},
		Payloads:   []string{"", ""},
	}, &reply)
	require.ErrorIs(err, ErrInvalidRequest)

	require.NoError(service.ProposeBatch(nil, &ProposeBatchArgs{
		Proposer:   testOwner1.String(),
		Recipients: []string{testPayee.String(), testOutsider.String()},
		Amounts:    []json.Uint64{json.Uint64(units.Lux), json.Uint64(2 * units.Lux)},
	}, &reply))
	require.Zero(reply.BatchID)
	require.Equal([]json.Uint64{0, 1}, reply.TxIndices)

	batchReply := GetBatchReply{}
	require.NoError(service.GetBatch(nil, &GetBatchArgs{BatchID: 0}, &batchReply))
	require.Len(batchReply.Transactions, 2)
	require.True(batchReply.Transactions[0].Batched)
	require.Equal(testPayee.String(), batchReply.Transactions[0].To)

	err = service.GetBatch(nil, &GetBatchArgs{BatchID: 7}, &batchReply)
	require.ErrorIs(err, errBatchNotFound)
}

func TestServiceOwnerAdmin(t *testing.T) {
	require := require.New(t)

	service, _ := newTestService(t)

	addReply := AddOwnerReply{}
	require.NoError(service.AddOwner(nil, &AddOwnerArgs{
		Caller: testOwner1.String(),
		Owner:  testOwner4.String(),
	}, &addReply))
	require.Len(addReply.Owners, 4)
	require.Equal(json.Uint32(3), addReply.Threshold)

	removeReply := RemoveOwnerReply{}
	require.NoError(service.RemoveOwner(nil, &RemoveOwnerArgs{
		Caller: testOwner1.String(),
		Owner:  testOwner4.String(),
	}, &removeReply))
	require.Len(removeReply.Owners, 3)

	thresholdReply := ChangeThresholdReply{}
	require.NoError(service.ChangeThreshold(nil, &ChangeThresholdArgs{
		Caller:    testOwner2.String(),
		Threshold: 2,
	}, &thresholdReply))
	require.Equal(json.Uint32(2), thresholdReply.Threshold)

	ownersReply := GetOwnersReply{}
	require.NoError(service.GetOwners(nil, &GetOwnersArgs{}, &ownersReply))
	require.Len(ownersReply.Owners, 3)
	require.Contains(ownersReply.Owners, testOwner1.String())

	proposeReply := ProposeReply{}
	require.NoError(service.Propose(nil, &ProposeArgs{
		Proposer: testOwner3.String(),
		To:       testPayee.String(),
		Amount:   json.Uint64(units.Lux),
	}, &proposeReply))

	statsReply := GetOwnerStatsReply{}
	require.NoError(service.GetOwnerStats(nil, &GetOwnerStatsArgs{
		Owner: testOwner3.String(),
	}, &statsReply))
	require.Equal(json.Uint64(1), statsReply.Proposals)
	require.NotZero(statsReply.LastProposal)
}

func TestServiceRateLimits(t *testing.T) {
	require := require.New(t)

	service, _ := newTestService(t)

	setReply := SetRateLimitsReply{}
	require.NoError(service.SetRateLimits(nil, &SetRateLimitsArgs{
		Caller:          testOwner1.String(),
		DailyLimit:      10,
		CooldownSeconds: 120,
	}, &setReply))
	require.Equal(json.Uint32(10), setReply.DailyLimit)

	proposeReply := ProposeReply{}
	require.NoError(service.Propose(nil, &ProposeArgs{
		Proposer: testOwner2.String(),
		To:       testPayee.String(),
		Amount:   json.Uint64(units.Lux),
	}, &proposeReply))

	limitReply := GetRateLimitReply{}
	require.NoError(service.GetRateLimit(nil, &GetRateLimitArgs{
		Owner: testOwner2.String(),
	}, &limitReply))
	require.Equal(json.Uint32(10), limitReply.DailyLimit)
	require.Equal(json.Uint64(120), limitReply.CooldownSeconds)
	require.Equal(json.Uint32(1), limitReply.UsedToday)

	resetReply := ResetDailyCountersReply{}
	require.NoError(service.ResetDailyCounters(nil, &ResetDailyCountersArgs{
		Caller: testOwner1.String(),
	}, &resetReply))
	require.True(resetReply.Success)

	require.NoError(service.GetRateLimit(nil, &GetRateLimitArgs{
		Owner: testOwner2.String(),
	}, &limitReply))
	require.Zero(limitReply.UsedToday)
}

func TestServiceFees(t *testing.T) {
	require := require.New(t)

	service, _ := newTestService(t)

	rateReply := SetFeeRateReply{}
	require.NoError(service.SetFeeRate(nil, &SetFeeRateArgs{
		Caller:  testOwner1.String(),
		RateBps: 100,
	}, &rateReply))
	require.Equal(uint16(100), rateReply.RateBps)

	proposeReply := ProposeReply{}
	require.NoError(service.Propose(nil, &ProposeArgs{
		Proposer: testOwner1.String(),
		To:       testPayee.String(),
		Amount:   json.Uint64(100 * units.Lux),
	}, &proposeReply))
	confirmReply := ConfirmReply{}
	require.NoError(service.Confirm(nil, &ConfirmArgs{Owner: testOwner2.String(), TxIndex: 0}, &confirmReply))
	require.NoError(service.Confirm(nil, &ConfirmArgs{Owner: testOwner3.String(), TxIndex: 0}, &confirmReply))
	executeReply := ExecuteReply{}
	require.NoError(service.Execute(nil, &ExecuteArgs{Caller: testOwner1.String(), TxIndex: 0}, &executeReply))

	fee := 100 * units.Lux / 100
	infoReply := GetFeeInfoReply{}
	require.NoError(service.GetFeeInfo(nil, &GetFeeInfoArgs{}, &infoReply))
	require.Equal(uint16(100), infoReply.RateBps)
	require.Equal(json.Uint64(fee), infoReply.Pool)
	require.Equal(testCollector.String(), infoReply.Collector)

	collectReply := CollectFeesReply{}
	err := service.CollectFees(nil, &CollectFeesArgs{Caller: testOwner1.String()}, &collectReply)
	require.ErrorIs(err, wallet.ErrNotCollector)

	require.NoError(service.CollectFees(nil, &CollectFeesArgs{Caller: testCollector.String()}, &collectReply))
	require.Equal(json.Uint64(fee), collectReply.Amount)

	require.NoError(service.GetFeeInfo(nil, &GetFeeInfoArgs{}, &infoReply))
	require.Zero(infoReply.Pool)

	collectorReply := SetFeeCollectorReply{}
	require.NoError(service.SetFeeCollector(nil, &SetFeeCollectorArgs{
		Caller:    testOwner2.String(),
		Collector: testPayee.String(),
	}, &collectorReply))
	require.Equal(testPayee.String(), collectorReply.Collector)
}

func TestServiceEmergency(t *testing.T) {
	require := require.New(t)

	service, _ := newTestService(t)

	activateReply := ActivateEmergencyReply{}
	require.NoError(service.ActivateEmergency(nil, &ActivateEmergencyArgs{
		Caller: testOwner1.String(),
	}, &activateReply))
	require.True(activateReply.Active)
	require.Equal(json.Uint32(2), activateReply.Threshold)

	statusReply := GetEmergencyStatusReply{}
	require.NoError(service.GetEmergencyStatus(nil, &GetEmergencyStatusArgs{}, &statusReply))
	require.True(statusReply.Active)
	require.Equal(json.Uint32(3), statusReply.Confirmations)
	require.NotZero(statusReply.LastAction)

	// Activation starts the recovery cooldown, so an immediate recovery is
	// refused.
	recoveryReply := EmergencyRecoveryReply{}
	err := service.EmergencyRecovery(nil, &EmergencyRecoveryArgs{
		Caller: testOwner2.String(),
		To:     testPayee.String(),
		Amount: json.Uint64(units.Lux),
	}, &recoveryReply)
	require.ErrorIs(err, emergency.ErrCooldownActive)

	deactivateReply := DeactivateEmergencyReply{}
	require.NoError(service.DeactivateEmergency(nil, &DeactivateEmergencyArgs{
		Caller: testOwner3.String(),
	}, &deactivateReply))
	require.False(deactivateReply.Active)
}

func TestServicePause(t *testing.T) {
	require := require.New(t)

	service, _ := newTestService(t)

	pauseReply := SetPausedReply{}
	require.NoError(service.SetPaused(nil, &SetPausedArgs{
		Caller: testOwner1.String(),
		Paused: true,
	}, &pauseReply))
	require.True(pauseReply.Paused)

	proposeReply := ProposeReply{}
	err := service.Propose(nil, &ProposeArgs{
		Proposer: testOwner2.String(),
		To:       testPayee.String(),
		Amount:   json.Uint64(units.Lux),
	}, &proposeReply)
	require.ErrorIs(err, wallet.ErrPaused)

	require.NoError(service.SetPaused(nil, &SetPausedArgs{
		Caller: testOwner2.String(),
		Paused: false,
	}, &pauseReply))
	require.False(pauseReply.Paused)
}

func TestServiceEvents(t *testing.T) {
	require := require.New(t)

	service, _ := newTestService(t)

	depositReply := DepositReply{}
	require.NoError(service.Deposit(nil, &DepositArgs{
		From:   testOutsider.String(),
		Amount: json.Uint64(units.Lux),
	}, &depositReply))
	pauseReply := SetPausedReply{}
	require.NoError(service.SetPaused(nil, &SetPausedArgs{Caller: testOwner1.String(), Paused: true}, &pauseReply))
	require.NoError(service.SetPaused(nil, &SetPausedArgs{Caller: testOwner1.String(), Paused: false}, &pauseReply))

	eventsReply := GetEventsReply{}
	require.NoError(service.GetEvents(nil, &GetEventsArgs{}, &eventsReply))
	require.Equal(json.Uint64(3), eventsReply.Total)
	require.Len(eventsReply.Events, 3)
	require.Equal("deposit", eventsReply.Events[0].Type)

	require.NoError(service.GetEvents(nil, &GetEventsArgs{Offset: 1, Limit: 1}, &eventsReply))
	require.Len(eventsReply.Events, 1)
	require.Equal("paused", eventsReply.Events[0].Type)

	require.NoError(service.GetEvents(nil, &GetEventsArgs{Offset: 10}, &eventsReply))
	require.Empty(eventsReply.Events)
}
