// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package state

import (
	"testing"

	"github.com/luxfi/database"
	"github.com/luxfi/database/memdb"
	"github.com/luxfi/ids"
	"github.com/stretchr/testify/require"

	"github.com/luxfi/vault/owners"
	"github.com/luxfi/vault/ratelimit"
	"github.com/luxfi/vault/wallet"
)

func TestTransactionRoundTrip(t *testing.T) {
	require := require.New(t)
	s := New(memdb.New())

	_, err := s.GetTransaction(0)
	require.ErrorIs(err, database.ErrNotFound)

	tx := &wallet.Transaction{
		To:          ids.ShortID{1},
		Amount:      42,
		Payload:     []byte("invoice 7"),
		UnlockTime:  1_700_000_000,
		TimeLocked:  true,
		SubmittedAt: 1_699_999_000,
		Submitter:   ids.ShortID{2},
	}
	require.NoError(s.PutTransaction(0, tx))

	got, err := s.GetTransaction(0)
	require.NoError(err)
	require.Equal(tx, got)

	// Stored records are isolated from later mutation of either side.
	got.Executed = true
	tx.Amount = 0
	reread, err := s.GetTransaction(0)
	require.NoError(err)
	require.False(reread.Executed)
	require.Equal(uint64(42), reread.Amount)
}

func TestTransactionOverwrite(t *testing.T) {
	require := require.New(t)
	s := New(memdb.New())

	tx := &wallet.Transaction{To: ids.ShortID{1}, Amount: 7}
	require.NoError(s.PutTransaction(3, tx))
	tx.Executed = true
	tx.Confirmations = 2
	require.NoError(s.PutTransaction(3, tx))

	got, err := s.GetTransaction(3)
	require.NoError(err)
	require.True(got.Executed)
	require.Equal(uint32(2), got.Confirmations)
}

func TestConfirmers(t *testing.T) {
	require := require.New(t)
	s := New(memdb.New())

	got, err := s.GetConfirmers(9)
	require.NoError(err)
	require.Empty(got)

	addrs := []ids.ShortID{{1}, {2}, {3}}
	require.NoError(s.PutConfirmers(9, addrs))
	got, err = s.GetConfirmers(9)
	require.NoError(err)
	require.Equal(addrs, got)
}

func TestOwnersRecord(t *testing.T) {
	require := require.New(t)
	s := New(memdb.New())

	_, _, err := s.GetOwners()
	require.ErrorIs(err, database.ErrNotFound)

	addrs := []ids.ShortID{{1}, {2}}
	require.NoError(s.SetOwners(addrs, 2))
	gotAddrs, threshold, err := s.GetOwners()
	require.NoError(err)
	require.Equal(addrs, gotAddrs)
	require.Equal(uint32(2), threshold)
}

func TestOwnerStats(t *testing.T) {
	require := require.New(t)
	s := New(memdb.New())

	addr1 := ids.ShortID{1}
	addr2 := ids.ShortID{2}
	require.NoError(s.PutOwnerStats(addr1, owners.Stats{Proposals: 3, LastActivity: 100}))
	require.NoError(s.PutOwnerStats(addr2, owners.Stats{Confirmations: 5}))

	all, err := s.GetAllOwnerStats()
	require.NoError(err)
	require.Len(all, 2)
	require.Equal(uint64(3), all[addr1].Proposals)
	require.Equal(uint64(5), all[addr2].Confirmations)

	require.NoError(s.DeleteOwnerStats(addr1))
	all, err = s.GetAllOwnerStats()
	require.NoError(err)
	require.Len(all, 1)
	require.NotContains(all, addr1)
}

func TestRateRecords(t *testing.T) {
	require := require.New(t)
	s := New(memdb.New())

	addr := ids.ShortID{7}
	require.NoError(s.PutRateState(addr, ratelimit.OwnerState{LastTx: 1_700_000_000, Count: 4}))
	states, err := s.GetAllRateStates()
	require.NoError(err)
	require.Len(states, 1)
	require.Equal(uint32(4), states[addr].Count)

	require.NoError(s.PutDayCount(19_676, 12))
	require.NoError(s.PutDayCount(19_677, 1))
	days, err := s.GetAllDayCounts()
	require.NoError(err)
	require.Equal(map[uint64]uint32{19_676: 12, 19_677: 1}, days)

	require.NoError(s.DeleteDayCount(19_676))
	days, err = s.GetAllDayCounts()
	require.NoError(err)
	require.Equal(map[uint64]uint32{19_677: 1}, days)

	require.NoError(s.DeleteRateState(addr))
	states, err = s.GetAllRateStates()
	require.NoError(err)
	require.Empty(states)
}

func TestPolicySingletons(t *testing.T) {
	require := require.New(t)
	s := New(memdb.New())

	_, _, err := s.GetRateLimits()
	require.ErrorIs(err, database.ErrNotFound)
	require.NoError(s.SetRateLimits(50, 300))
	limit, cooldown, err := s.GetRateLimits()
	require.NoError(err)
	require.Equal(uint32(50), limit)
	require.Equal(uint64(300), cooldown)

	collector := ids.ShortID{0xcc}
	require.NoError(s.SetFees(25, 10_000, collector))
	rate, pool, gotCollector, err := s.GetFees()
	require.NoError(err)
	require.Equal(uint16(25), rate)
	require.Equal(uint64(10_000), pool)
	require.Equal(collector, gotCollector)

	require.NoError(s.SetEmergency(true, 1_700_000_000))
	active, lastAction, err := s.GetEmergency()
	require.NoError(err)
	require.True(active)
	require.Equal(uint64(1_700_000_000), lastAction)

	policy := Policy{
		Name:                     "treasury-vault",
		Address:                  ids.ShortID{0xaa},
		DefaultTimelockSeconds:   86_400,
		EmergencyCooldownSeconds: 86_400,
		HighValueThreshold:       100,
		BatchValueThreshold:      1_000,
		ConfirmValueThreshold:    50,
	}
	require.NoError(s.SetPolicy(policy))
	gotPolicy, err := s.GetPolicy()
	require.NoError(err)
	require.Equal(policy, gotPolicy)
}

func TestCountersDefaultZero(t *testing.T) {
	require := require.New(t)
	s := New(memdb.New())

	count, err := s.GetTxCount()
	require.NoError(err)
	require.Zero(count)
	batches, err := s.GetBatchCount()
	require.NoError(err)
	require.Zero(batches)
	timestamp, err := s.GetTimestamp()
	require.NoError(err)
	require.Zero(timestamp)
	height, err := s.GetHeight()
	require.NoError(err)
	require.Zero(height)
	paused, err := s.GetPaused()
	require.NoError(err)
	require.False(paused)

	require.NoError(s.SetTxCount(4))
	require.NoError(s.SetBatchCount(1))
	require.NoError(s.SetTimestamp(1_700_000_123))
	require.NoError(s.SetHeight(9))
	require.NoError(s.SetPaused(true))

	count, err = s.GetTxCount()
	require.NoError(err)
	require.Equal(uint64(4), count)
	batches, err = s.GetBatchCount()
	require.NoError(err)
	require.Equal(uint64(1), batches)
	timestamp, err = s.GetTimestamp()
	require.NoError(err)
	require.Equal(uint64(1_700_000_123), timestamp)
	height, err = s.GetHeight()
	require.NoError(err)
	require.Equal(uint64(9), height)
	paused, err = s.GetPaused()
	require.NoError(err)
	require.True(paused)
}

func TestAccounts(t *testing.T) {
	require := require.New(t)
	s := New(memdb.New())

	addr := ids.ShortID{9}
	account, err := s.GetAccount(addr)
	require.NoError(err)
	require.Zero(account.Balance)
	require.False(account.Contract)

	require.NoError(s.PutAccount(addr, Account{Balance: 77, Contract: true}))
	account, err = s.GetAccount(addr)
	require.NoError(err)
	require.Equal(uint64(77), account.Balance)
	require.True(account.Contract)
}

func TestTreasury(t *testing.T) {
	require := require.New(t)
	s := New(memdb.New())

	_, err := s.GetTreasury()
	require.ErrorIs(err, database.ErrNotFound)
	require.NoError(s.SetTreasury(1_000_000))
	balance, err := s.GetTreasury()
	require.NoError(err)
	require.Equal(uint64(1_000_000), balance)
}

func TestInitializedFlag(t *testing.T) {
	require := require.New(t)
	s := New(memdb.New())

	initialized, err := s.IsInitialized()
	require.NoError(err)
	require.False(initialized)
	require.NoError(s.SetInitialized())
	initialized, err = s.IsInitialized()
	require.NoError(err)
	require.True(initialized)
}
