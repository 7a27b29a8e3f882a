// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package vault

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/luxfi/ids"

	"github.com/luxfi/vault/config"
	"github.com/luxfi/vault/state"
)

// addressLen is the size of a short ID in bytes.
const addressLen = 20

var (
	errNoGenesis         = errors.New("missing genesis")
	errBadOwnerAddress   = errors.New("invalid owner address")
	errBadCollector      = errors.New("invalid fee collector address")
	errBadVaultAddress   = errors.New("invalid vault address")
	errBadAccountAddress = errors.New("invalid account address")
)

// Genesis is the chain creation document, supplied as JSON. Addresses are
// the string form of 20-byte short IDs. Zero-valued policy fields fall back
// to the node configuration.
type Genesis struct {
	// Name is the vault's display name.
	Name string `json:"name,omitempty"`

	// Address is the vault's own account address. When empty it is derived
	// from the chain ID.
	Address string `json:"address,omitempty"`

	// Owners is the initial approver set.
	Owners []string `json:"owners"`
	// Threshold is the quorum for executing a transaction.
	Threshold uint32 `json:"threshold"`

	// FeeCollector is the only identity allowed to drain the fee pool.
	FeeCollector string `json:"feeCollector"`
	// FeeRateBps overrides the execution fee rate when non-zero.
	FeeRateBps uint16 `json:"feeRateBps,omitempty"`

	// TimelockSeconds overrides the default time-lock duration when non-zero.
	TimelockSeconds uint64 `json:"timelockSeconds,omitempty"`
	// EmergencyCooldownSeconds overrides the recovery cooldown when non-zero.
	EmergencyCooldownSeconds uint64 `json:"emergencyCooldownSeconds,omitempty"`

	// DailyTxLimit and CooldownSeconds override the proposal rate limits
	// when non-zero.
	DailyTxLimit    uint32 `json:"dailyTxLimit,omitempty"`
	CooldownSeconds uint64 `json:"cooldownSeconds,omitempty"`

	// Alert thresholds. Amounts above these raise security alerts.
	HighValueThreshold    uint64 `json:"highValueThreshold,omitempty"`
	BatchValueThreshold   uint64 `json:"batchValueThreshold,omitempty"`
	ConfirmValueThreshold uint64 `json:"confirmValueThreshold,omitempty"`

	// Balance is the vault treasury's initial balance.
	Balance uint64 `json:"balance,omitempty"`

	// Accounts seeds external accounts, keyed by address.
	Accounts map[string]GenesisAccount `json:"accounts,omitempty"`
}

// GenesisAccount seeds an external account. Contract accounts accept
// payload-bearing transfers and are barred from the owner set.
type GenesisAccount struct {
	Balance  uint64 `json:"balance,omitempty"`
	Contract bool   `json:"contract,omitempty"`
}

// ParseGenesis parses the chain creation document.
func ParseGenesis(genesisBytes []byte) (*Genesis, error) {
	if len(genesisBytes) == 0 {
		return nil, errNoGenesis
	}
	gen := &Genesis{}
	if err := json.Unmarshal(genesisBytes, gen); err != nil {
		return nil, fmt.Errorf("failed to parse genesis: %w", err)
	}
	return gen, nil
}

// Bytes returns the JSON encoding of the genesis document.
func (g *Genesis) Bytes() ([]byte, error) {
	return json.MarshalIndent(g, "", "  ")
}

// Config merges the genesis policy over base and resolves the owner and
// collector addresses. The merged configuration is validated before it is
// returned.
func (g *Genesis) Config(base config.Config) (config.Config, error) {
	cfg := base

	if g.Name != "" {
		cfg.WalletName = g.Name
	}

	cfg.Owners = make([]ids.ShortID, 0, len(g.Owners))
	for _, addrStr := range g.Owners {
		addr, err := ids.ShortFromString(addrStr)
		if err != nil {
			return config.Config{}, fmt.Errorf("%w: %q: %v", errBadOwnerAddress, addrStr, err)
		}
		cfg.Owners = append(cfg.Owners, addr)
	}
	if g.Threshold != 0 {
		cfg.RequiredConfirmations = g.Threshold
	}

	if g.FeeCollector != "" {
		collector, err := ids.ShortFromString(g.FeeCollector)
		if err != nil {
			return config.Config{}, fmt.Errorf("%w: %q: %v", errBadCollector, g.FeeCollector, err)
		}
		cfg.FeeCollector = collector
	}
	if g.FeeRateBps != 0 {
		cfg.FeeRateBps = g.FeeRateBps
	}

	if g.TimelockSeconds != 0 {
		cfg.DefaultTimelockDuration = time.Duration(g.TimelockSeconds) * time.Second
	}
	if g.EmergencyCooldownSeconds != 0 {
		cfg.EmergencyCooldown = time.Duration(g.EmergencyCooldownSeconds) * time.Second
	}

	if g.DailyTxLimit != 0 {
		cfg.DailyTxLimit = g.DailyTxLimit
	}
	if g.CooldownSeconds != 0 {
		cfg.ProposalCooldown = time.Duration(g.CooldownSeconds) * time.Second
	}

	if g.HighValueThreshold != 0 {
		cfg.HighValueThreshold = g.HighValueThreshold
	}
	if g.BatchValueThreshold != 0 {
		cfg.BatchValueThreshold = g.BatchValueThreshold
	}
	if g.ConfirmValueThreshold != 0 {
		cfg.ConfirmValueThreshold = g.ConfirmValueThreshold
	}

	if err := cfg.Validate(); err != nil {
		return config.Config{}, err
	}
	return cfg, nil
}

// SelfAddress returns the vault's account address, deriving one from the
// chain ID when the genesis leaves it unset.
func (g *Genesis) SelfAddress(chainID ids.ID) (ids.ShortID, error) {
	if g.Address == "" {
		return ids.ToShortID(chainID[:addressLen])
	}
	addr, err := ids.ShortFromString(g.Address)
	if err != nil {
		return ids.ShortEmpty, fmt.Errorf("%w: %q: %v", errBadVaultAddress, g.Address, err)
	}
	return addr, nil
}

// SeedAccounts resolves the genesis account map to typed addresses.
func (g *Genesis) SeedAccounts() (map[ids.ShortID]state.Account, error) {
	if len(g.Accounts) == 0 {
		return nil, nil
	}
	accounts := make(map[ids.ShortID]state.Account, len(g.Accounts))
	for addrStr, account := range g.Accounts {
		addr, err := ids.ShortFromString(addrStr)
		if err != nil {
			return nil, fmt.Errorf("%w: %q: %v", errBadAccountAddress, addrStr, err)
		}
		accounts[addr] = state.Account{
			Balance:  account.Balance,
			Contract: account.Contract,
		}
	}
	return accounts, nil
}
