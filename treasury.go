// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package vault

import (
	"errors"
	"fmt"
	"sync"

	"github.com/luxfi/ids"
	safemath "github.com/luxfi/math"

	"github.com/luxfi/vault/state"
)

var (
	errInsufficientTreasury = errors.New("insufficient treasury balance")
	errCreditOverflow       = errors.New("treasury balance overflow")
)

// treasury holds the vault's funds and the ledger of external accounts. It
// backs the wallet's transfer, deposit, and pause hooks and classifies
// addresses for owner eligibility. Outbound transfers credit the recipient's
// account record immediately; the treasury balance singleton is persisted by
// the block processor.
type treasury struct {
	mu      sync.RWMutex
	state   *state.State
	self    ids.ShortID
	balance uint64
	paused  bool
}

func newTreasury(st *state.State, self ids.ShortID, balance uint64, paused bool) *treasury {
	return &treasury{
		state:   st,
		self:    self,
		balance: balance,
		paused:  paused,
	}
}

// Balance returns the treasury's current balance, fee pool included.
func (t *treasury) Balance() uint64 {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.balance
}

// Transfer moves amount from the treasury to the recipient's account. The
// payload travels with the transfer and is not interpreted here.
func (t *treasury) Transfer(to ids.ShortID, amount uint64, _ []byte) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.balance < amount {
		return errInsufficientTreasury
	}

	account, err := t.state.GetAccount(to)
	if err != nil {
		return fmt.Errorf("failed to load recipient account: %w", err)
	}
	credited, err := safemath.Add64(account.Balance, amount)
	if err != nil {
		return errCreditOverflow
	}
	account.Balance = credited
	if err := t.state.PutAccount(to, account); err != nil {
		return fmt.Errorf("failed to store recipient account: %w", err)
	}

	t.balance -= amount
	return nil
}

// Credit adds deposited funds to the treasury. The depositor's own funds are
// outside the chain's ledger, so only the treasury side is recorded.
func (t *treasury) Credit(_ ids.ShortID, amount uint64) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	credited, err := safemath.Add64(t.balance, amount)
	if err != nil {
		return errCreditOverflow
	}
	t.balance = credited
	return nil
}

// IsPaused reports whether the vault is paused.
func (t *treasury) IsPaused() bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.paused
}

func (t *treasury) setPaused(paused bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.paused = paused
}

// IsSimpleAccount reports whether addr is a plain externally-controlled
// account. The vault's own address and contract accounts do not qualify.
func (t *treasury) IsSimpleAccount(addr ids.ShortID) bool {
	if addr == t.self {
		return false
	}
	account, err := t.state.GetAccount(addr)
	if err != nil {
		return false
	}
	return !account.Contract
}
