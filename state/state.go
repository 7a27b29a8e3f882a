// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package state persists the vault to a key-value database. Each component
// writes through its own key space; the VM wraps the whole database in a
// versioned layer and commits once per accepted block.
package state

import (
	"encoding/binary"

	"github.com/luxfi/cache"
	"github.com/luxfi/database"
	"github.com/luxfi/database/prefixdb"
	"github.com/luxfi/ids"

	"github.com/luxfi/vault/owners"
	"github.com/luxfi/vault/ratelimit"
	"github.com/luxfi/vault/wallet"
)

const txCacheSize = 2048

var (
	txPrefix        = []byte("tx")
	confirmerPrefix = []byte("cf")
	statsPrefix     = []byte("stat")
	ratePrefix      = []byte("rate")
	dayPrefix       = []byte("day")
	accountPrefix   = []byte("acct")
	singletonPrefix = []byte("meta")

	ownersKey      = []byte("owners")
	policyKey      = []byte("policy")
	feesKey        = []byte("fees")
	emergencyKey   = []byte("emergency")
	rateLimitsKey  = []byte("rateLimits")
	treasuryKey    = []byte("treasury")
	txCountKey     = []byte("txCount")
	batchCountKey  = []byte("batchCount")
	timestampKey   = []byte("timestamp")
	heightKey      = []byte("height")
	pausedKey      = []byte("paused")
	initializedKey = []byte("initialized")
)

type ownersRecord struct {
	Addrs     []ids.ShortID `serialize:"true"`
	Threshold uint32        `serialize:"true"`
}

type confirmersRecord struct {
	Addrs []ids.ShortID `serialize:"true"`
}

type feesRecord struct {
	RateBps   uint16      `serialize:"true"`
	Pool      uint64      `serialize:"true"`
	Collector ids.ShortID `serialize:"true"`
}

type emergencyRecord struct {
	Active     bool   `serialize:"true"`
	LastAction uint64 `serialize:"true"`
}

type rateLimitsRecord struct {
	DailyLimit      uint32 `serialize:"true"`
	CooldownSeconds uint64 `serialize:"true"`
}

type dayRecord struct {
	Count uint32 `serialize:"true"`
}

// Policy is the static vault policy fixed at genesis.
type Policy struct {
	Name                     string      `serialize:"true"`
	Address                  ids.ShortID `serialize:"true"`
	DefaultTimelockSeconds   uint64      `serialize:"true"`
	EmergencyCooldownSeconds uint64      `serialize:"true"`
	HighValueThreshold       uint64      `serialize:"true"`
	BatchValueThreshold      uint64      `serialize:"true"`
	ConfirmValueThreshold    uint64      `serialize:"true"`
}

// Account is the ledger entry for an external account. Contract-backed
// accounts cannot own the vault or collect its fees.
type Account struct {
	Balance  uint64 `serialize:"true" json:"balance"`
	Contract bool   `serialize:"true" json:"contract"`
}

// State is the vault's persistent store.
type State struct {
	txDB        database.Database
	confirmerDB database.Database
	statsDB     database.Database
	rateDB      database.Database
	dayDB       database.Database
	accountDB   database.Database
	singletonDB database.Database

	txCache *cache.LRU[uint64, *wallet.Transaction]
}

// New returns a State writing through db.
func New(db database.Database) *State {
	return &State{
		txDB:        prefixdb.New(txPrefix, db),
		confirmerDB: prefixdb.New(confirmerPrefix, db),
		statsDB:     prefixdb.New(statsPrefix, db),
		rateDB:      prefixdb.New(ratePrefix, db),
		dayDB:       prefixdb.New(dayPrefix, db),
		accountDB:   prefixdb.New(accountPrefix, db),
		singletonDB: prefixdb.New(singletonPrefix, db),
		txCache:     &cache.LRU[uint64, *wallet.Transaction]{Size: txCacheSize},
	}
}

func uint64Key(n uint64) []byte {
	key := make([]byte, 8)
	binary.BigEndian.PutUint64(key, n)
	return key
}

// PutTransaction stores the transaction at its ledger index.
func (s *State) PutTransaction(index uint64, tx *wallet.Transaction) error {
	bytes, err := Codec.Marshal(codecVersion, tx)
	if err != nil {
		return err
	}
	cp := *tx
	s.txCache.Put(index, &cp)
	return s.txDB.Put(uint64Key(index), bytes)
}

// GetTransaction loads the transaction at index. The returned value is a
// copy; mutating it does not touch the store.
func (s *State) GetTransaction(index uint64) (*wallet.Transaction, error) {
	if tx, ok := s.txCache.Get(index); ok {
		cp := *tx
		return &cp, nil
	}
	bytes, err := s.txDB.Get(uint64Key(index))
	if err != nil {
		return nil, err
	}
	tx := &wallet.Transaction{}
	if _, err := Codec.Unmarshal(bytes, tx); err != nil {
		return nil, err
	}
	cp := *tx
	s.txCache.Put(index, &cp)
	return tx, nil
}

// PutConfirmers stores the owners with standing confirmations on index.
func (s *State) PutConfirmers(index uint64, addrs []ids.ShortID) error {
	bytes, err := Codec.Marshal(codecVersion, &confirmersRecord{Addrs: addrs})
	if err != nil {
		return err
	}
	return s.confirmerDB.Put(uint64Key(index), bytes)
}

// GetConfirmers loads the confirmation set of index. A transaction without
// recorded confirmations yields an empty slice.
func (s *State) GetConfirmers(index uint64) ([]ids.ShortID, error) {
	bytes, err := s.confirmerDB.Get(uint64Key(index))
	if err == database.ErrNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	record := &confirmersRecord{}
	if _, err := Codec.Unmarshal(bytes, record); err != nil {
		return nil, err
	}
	return record.Addrs, nil
}

// SetOwners stores the owner set and quorum threshold.
func (s *State) SetOwners(addrs []ids.ShortID, threshold uint32) error {
	bytes, err := Codec.Marshal(codecVersion, &ownersRecord{
		Addrs:     addrs,
		Threshold: threshold,
	})
	if err != nil {
		return err
	}
	return s.singletonDB.Put(ownersKey, bytes)
}

// GetOwners loads the owner set and quorum threshold.
func (s *State) GetOwners() ([]ids.ShortID, uint32, error) {
	bytes, err := s.singletonDB.Get(ownersKey)
	if err != nil {
		return nil, 0, err
	}
	record := &ownersRecord{}
	if _, err := Codec.Unmarshal(bytes, record); err != nil {
		return nil, 0, err
	}
	return record.Addrs, record.Threshold, nil
}

// PutOwnerStats stores the activity counters of one owner.
func (s *State) PutOwnerStats(addr ids.ShortID, stats owners.Stats) error {
	bytes, err := Codec.Marshal(codecVersion, &stats)
	if err != nil {
		return err
	}
	return s.statsDB.Put(addr[:], bytes)
}

// DeleteOwnerStats drops the counters of a removed owner.
func (s *State) DeleteOwnerStats(addr ids.ShortID) error {
	return s.statsDB.Delete(addr[:])
}

// GetAllOwnerStats loads the counters of every registered owner.
func (s *State) GetAllOwnerStats() (map[ids.ShortID]owners.Stats, error) {
	stats := make(map[ids.ShortID]owners.Stats)
	it := s.statsDB.NewIterator()
	defer it.Release()
	for it.Next() {
		addr, err := ids.ToShortID(it.Key())
		if err != nil {
			return nil, err
		}
		entry := owners.Stats{}
		if _, err := Codec.Unmarshal(it.Value(), &entry); err != nil {
			return nil, err
		}
		stats[addr] = entry
	}
	return stats, it.Error()
}

// PutRateState stores the rate-limiter record of one owner.
func (s *State) PutRateState(addr ids.ShortID, state ratelimit.OwnerState) error {
	bytes, err := Codec.Marshal(codecVersion, &state)
	if err != nil {
		return err
	}
	return s.rateDB.Put(addr[:], bytes)
}

// DeleteRateState drops the rate-limiter record of a removed owner.
func (s *State) DeleteRateState(addr ids.ShortID) error {
	return s.rateDB.Delete(addr[:])
}

// GetAllRateStates loads every owner's rate-limiter record.
func (s *State) GetAllRateStates() (map[ids.ShortID]ratelimit.OwnerState, error) {
	states := make(map[ids.ShortID]ratelimit.OwnerState)
	it := s.rateDB.NewIterator()
	defer it.Release()
	for it.Next() {
		addr, err := ids.ToShortID(it.Key())
		if err != nil {
			return nil, err
		}
		entry := ratelimit.OwnerState{}
		if _, err := Codec.Unmarshal(it.Value(), &entry); err != nil {
			return nil, err
		}
		states[addr] = entry
	}
	return states, it.Error()
}

// PutDayCount stores the vault-wide proposal count of a day bucket.
func (s *State) PutDayCount(day uint64, count uint32) error {
	bytes, err := Codec.Marshal(codecVersion, &dayRecord{Count: count})
	if err != nil {
		return err
	}
	return s.dayDB.Put(uint64Key(day), bytes)
}

// DeleteDayCount drops one day bucket.
func (s *State) DeleteDayCount(day uint64) error {
	return s.dayDB.Delete(uint64Key(day))
}

// GetAllDayCounts loads every day bucket.
func (s *State) GetAllDayCounts() (map[uint64]uint32, error) {
	days := make(map[uint64]uint32)
	it := s.dayDB.NewIterator()
	defer it.Release()
	for it.Next() {
		key := it.Key()
		if len(key) != 8 {
			continue
		}
		record := dayRecord{}
		if _, err := Codec.Unmarshal(it.Value(), &record); err != nil {
			return nil, err
		}
		days[binary.BigEndian.Uint64(key)] = record.Count
	}
	return days, it.Error()
}

// SetPolicy stores the static vault policy.
func (s *State) SetPolicy(policy Policy) error {
	bytes, err := Codec.Marshal(codecVersion, &policy)
	if err != nil {
		return err
	}
	return s.singletonDB.Put(policyKey, bytes)
}

// GetPolicy loads the static vault policy.
func (s *State) GetPolicy() (Policy, error) {
	bytes, err := s.singletonDB.Get(policyKey)
	if err != nil {
		return Policy{}, err
	}
	policy := Policy{}
	if _, err := Codec.Unmarshal(bytes, &policy); err != nil {
		return Policy{}, err
	}
	return policy, nil
}

// SetRateLimits stores the rate-limit policy.
func (s *State) SetRateLimits(dailyLimit uint32, cooldownSeconds uint64) error {
	bytes, err := Codec.Marshal(codecVersion, &rateLimitsRecord{
		DailyLimit:      dailyLimit,
		CooldownSeconds: cooldownSeconds,
	})
	if err != nil {
		return err
	}
	return s.singletonDB.Put(rateLimitsKey, bytes)
}

// GetRateLimits loads the rate-limit policy.
func (s *State) GetRateLimits() (dailyLimit uint32, cooldownSeconds uint64, err error) {
	bytes, err := s.singletonDB.Get(rateLimitsKey)
	if err != nil {
		return 0, 0, err
	}
	record := &rateLimitsRecord{}
	if _, err := Codec.Unmarshal(bytes, record); err != nil {
		return 0, 0, err
	}
	return record.DailyLimit, record.CooldownSeconds, nil
}

// SetFees stores the fee policy and accrued pool.
func (s *State) SetFees(rateBps uint16, pool uint64, collector ids.ShortID) error {
	bytes, err := Codec.Marshal(codecVersion, &feesRecord{
		RateBps:   rateBps,
		Pool:      pool,
		Collector: collector,
	})
	if err != nil {
		return err
	}
	return s.singletonDB.Put(feesKey, bytes)
}

// GetFees loads the fee policy and accrued pool.
func (s *State) GetFees() (rateBps uint16, pool uint64, collector ids.ShortID, err error) {
	bytes, err := s.singletonDB.Get(feesKey)
	if err != nil {
		return 0, 0, ids.ShortEmpty, err
	}
	record := &feesRecord{}
	if _, err := Codec.Unmarshal(bytes, record); err != nil {
		return 0, 0, ids.ShortEmpty, err
	}
	return record.RateBps, record.Pool, record.Collector, nil
}

// SetEmergency stores the emergency flag and last action time.
func (s *State) SetEmergency(active bool, lastAction uint64) error {
	bytes, err := Codec.Marshal(codecVersion, &emergencyRecord{
		Active:     active,
		LastAction: lastAction,
	})
	if err != nil {
		return err
	}
	return s.singletonDB.Put(emergencyKey, bytes)
}

// GetEmergency loads the emergency flag and last action time.
func (s *State) GetEmergency() (active bool, lastAction uint64, err error) {
	bytes, err := s.singletonDB.Get(emergencyKey)
	if err != nil {
		return false, 0, err
	}
	record := &emergencyRecord{}
	if _, err := Codec.Unmarshal(bytes, record); err != nil {
		return false, 0, err
	}
	return record.Active, record.LastAction, nil
}

// PutAccount stores an external account's ledger entry.
func (s *State) PutAccount(addr ids.ShortID, account Account) error {
	bytes, err := Codec.Marshal(codecVersion, &account)
	if err != nil {
		return err
	}
	return s.accountDB.Put(addr[:], bytes)
}

// GetAccount loads an external account's ledger entry. Unknown accounts
// read as zero-balance simple accounts.
func (s *State) GetAccount(addr ids.ShortID) (Account, error) {
	bytes, err := s.accountDB.Get(addr[:])
	if err == database.ErrNotFound {
		return Account{}, nil
	}
	if err != nil {
		return Account{}, err
	}
	account := Account{}
	if _, err := Codec.Unmarshal(bytes, &account); err != nil {
		return Account{}, err
	}
	return account, nil
}

// SetTreasury stores the treasury balance.
func (s *State) SetTreasury(balance uint64) error {
	return database.PutUInt64(s.singletonDB, treasuryKey, balance)
}

// GetTreasury loads the treasury balance.
func (s *State) GetTreasury() (uint64, error) {
	return database.GetUInt64(s.singletonDB, treasuryKey)
}

// SetTxCount stores the number of transactions ever proposed.
func (s *State) SetTxCount(count uint64) error {
	return database.PutUInt64(s.singletonDB, txCountKey, count)
}

// GetTxCount loads the number of transactions ever proposed.
func (s *State) GetTxCount() (uint64, error) {
	count, err := database.GetUInt64(s.singletonDB, txCountKey)
	if err == database.ErrNotFound {
		return 0, nil
	}
	return count, err
}

// SetBatchCount stores the number of batches ever proposed.
func (s *State) SetBatchCount(count uint64) error {
	return database.PutUInt64(s.singletonDB, batchCountKey, count)
}

// GetBatchCount loads the number of batches ever proposed.
func (s *State) GetBatchCount() (uint64, error) {
	count, err := database.GetUInt64(s.singletonDB, batchCountKey)
	if err == database.ErrNotFound {
		return 0, nil
	}
	return count, err
}

// SetTimestamp stores the time of the last accepted block.
func (s *State) SetTimestamp(timestamp uint64) error {
	return database.PutUInt64(s.singletonDB, timestampKey, timestamp)
}

// GetTimestamp loads the time of the last accepted block.
func (s *State) GetTimestamp() (uint64, error) {
	timestamp, err := database.GetUInt64(s.singletonDB, timestampKey)
	if err == database.ErrNotFound {
		return 0, nil
	}
	return timestamp, err
}

// SetHeight stores the height of the last accepted block.
func (s *State) SetHeight(height uint64) error {
	return database.PutUInt64(s.singletonDB, heightKey, height)
}

// GetHeight loads the height of the last accepted block.
func (s *State) GetHeight() (uint64, error) {
	height, err := database.GetUInt64(s.singletonDB, heightKey)
	if err == database.ErrNotFound {
		return 0, nil
	}
	return height, err
}

// SetPaused stores the administrative pause switch.
func (s *State) SetPaused(paused bool) error {
	var flag uint64
	if paused {
		flag = 1
	}
	return database.PutUInt64(s.singletonDB, pausedKey, flag)
}

// GetPaused loads the administrative pause switch.
func (s *State) GetPaused() (bool, error) {
	flag, err := database.GetUInt64(s.singletonDB, pausedKey)
	if err == database.ErrNotFound {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return flag != 0, nil
}

// IsInitialized reports whether genesis has been written.
func (s *State) IsInitialized() (bool, error) {
	return s.singletonDB.Has(initializedKey)
}

// SetInitialized marks genesis as written.
func (s *State) SetInitialized() error {
	return s.singletonDB.Put(initializedKey, nil)
}
