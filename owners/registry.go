// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package owners maintains the approver set, the confirmation threshold, and
// per-owner activity counters.
package owners

import (
	"fmt"
	"sync"

	"github.com/luxfi/ids"
	"github.com/luxfi/math/set"

	"github.com/luxfi/vault/errs"
)

const (
	MinOwners = 1
	MaxOwners = 20
)

var (
	ErrNotOwner         = fmt.Errorf("%w: not an owner", errs.ErrValidation)
	ErrDuplicateOwner   = fmt.Errorf("%w: owner already registered", errs.ErrValidation)
	ErrCapacityReached  = fmt.Errorf("%w: owner set at capacity", errs.ErrValidation)
	ErrInvalidIdentity  = fmt.Errorf("%w: identity is empty or not a simple account", errs.ErrValidation)
	ErrLastOwner        = fmt.Errorf("%w: cannot remove the last owner", errs.ErrValidation)
	ErrInvalidThreshold = fmt.Errorf("%w: threshold outside [1, owner count]", errs.ErrValidation)
)

// Classifier reports whether an identity is a plain externally-controlled
// account. Contract-backed identities may not own the vault or collect its
// fees.
type Classifier interface {
	IsSimpleAccount(ids.ShortID) bool
}

// Stats are the per-owner activity counters.
type Stats struct {
	LastActivity  uint64 `serialize:"true" json:"lastActivity"`
	LastProposal  uint64 `serialize:"true" json:"lastProposal"`
	Proposals     uint64 `serialize:"true" json:"proposals"`
	Confirmations uint64 `serialize:"true" json:"confirmations"`
}

// Registry is the authoritative owner set. Membership is what matters;
// removal swaps with the last element, so iteration order is not stable
// across removals.
type Registry struct {
	mu         sync.RWMutex
	classifier Classifier
	addrs      []ids.ShortID
	index      map[ids.ShortID]int
	stats      map[ids.ShortID]*Stats
	threshold  uint32
}

// New validates the initial owner set and threshold and returns a registry.
func New(initial []ids.ShortID, threshold uint32, classifier Classifier) (*Registry, error) {
	if len(initial) < MinOwners || len(initial) > MaxOwners {
		return nil, fmt.Errorf("%w: %d owners", ErrInvalidIdentity, len(initial))
	}
	seen := set.NewSet[ids.ShortID](len(initial))
	for _, addr := range initial {
		if addr == ids.ShortEmpty || !classifier.IsSimpleAccount(addr) {
			return nil, fmt.Errorf("%w: %s", ErrInvalidIdentity, addr)
		}
		if seen.Contains(addr) {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateOwner, addr)
		}
		seen.Add(addr)
	}
	if threshold < 1 || int(threshold) > len(initial) {
		return nil, ErrInvalidThreshold
	}

	r := &Registry{
		classifier: classifier,
		addrs:      make([]ids.ShortID, len(initial)),
		index:      make(map[ids.ShortID]int, len(initial)),
		stats:      make(map[ids.ShortID]*Stats, len(initial)),
		threshold:  threshold,
	}
	copy(r.addrs, initial)
	for i, addr := range r.addrs {
		r.index[addr] = i
		r.stats[addr] = &Stats{}
	}
	return r, nil
}

// Load rebuilds a registry from persisted state. The entries were validated
// when first admitted, so only structural checks are repeated.
func Load(addrs []ids.ShortID, threshold uint32, stats map[ids.ShortID]Stats, classifier Classifier) (*Registry, error) {
	if len(addrs) < MinOwners || len(addrs) > MaxOwners {
		return nil, fmt.Errorf("%w: %d owners", ErrInvalidIdentity, len(addrs))
	}
	if threshold < 1 || int(threshold) > len(addrs) {
		return nil, ErrInvalidThreshold
	}

	r := &Registry{
		classifier: classifier,
		addrs:      make([]ids.ShortID, len(addrs)),
		index:      make(map[ids.ShortID]int, len(addrs)),
		stats:      make(map[ids.ShortID]*Stats, len(addrs)),
		threshold:  threshold,
	}
	copy(r.addrs, addrs)
	for i, addr := range r.addrs {
		if _, ok := r.index[addr]; ok {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateOwner, addr)
		}
		r.index[addr] = i
		s := stats[addr]
		r.stats[addr] = &s
	}
	return r, nil
}

// AdjustThreshold returns the threshold after the owner set changed size.
// Growing keeps an all-but-one quorum all-but-one; shrinking caps the
// threshold at the new size; nothing else moves it.
func AdjustThreshold(threshold uint32, oldSize, newSize int) uint32 {
	switch {
	case newSize > oldSize && int(threshold) == oldSize-1:
		return uint32(newSize - 1)
	case newSize < oldSize && int(threshold) > newSize:
		return uint32(newSize)
	default:
		return threshold
	}
}

// Add admits a new owner and applies the threshold adjustment.
func (r *Registry) Add(addr ids.ShortID) error {
	if addr == ids.ShortEmpty || !r.classifier.IsSimpleAccount(addr) {
		return fmt.Errorf("%w: %s", ErrInvalidIdentity, addr)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.index[addr]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicateOwner, addr)
	}
	if len(r.addrs) >= MaxOwners {
		return ErrCapacityReached
	}

	oldSize := len(r.addrs)
	r.addrs = append(r.addrs, addr)
	r.index[addr] = oldSize
	r.stats[addr] = &Stats{}
	r.threshold = AdjustThreshold(r.threshold, oldSize, len(r.addrs))
	return nil
}

// Remove drops an owner, swapping the last entry into its slot, and caps the
// threshold at the new size.
func (r *Registry) Remove(addr ids.ShortID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	i, ok := r.index[addr]
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotOwner, addr)
	}
	if len(r.addrs) <= MinOwners {
		return ErrLastOwner
	}

	oldSize := len(r.addrs)
	last := len(r.addrs) - 1
	moved := r.addrs[last]
	r.addrs[i] = moved
	r.index[moved] = i
	r.addrs = r.addrs[:last]
	delete(r.index, addr)
	delete(r.stats, addr)
	r.threshold = AdjustThreshold(r.threshold, oldSize, len(r.addrs))
	return nil
}

// SetThreshold replaces the confirmation threshold.
func (r *Registry) SetThreshold(threshold uint32) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if threshold < 1 || int(threshold) > len(r.addrs) {
		return ErrInvalidThreshold
	}
	r.threshold = threshold
	return nil
}

// Contains reports membership.
func (r *Registry) Contains(addr ids.ShortID) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.index[addr]
	return ok
}

// List returns a copy of the owner set. Order is not stable across removals.
func (r *Registry) List() []ids.ShortID {
	r.mu.RLock()
	defer r.mu.RUnlock()
	addrs := make([]ids.ShortID, len(r.addrs))
	copy(addrs, r.addrs)
	return addrs
}

// Len returns the owner count.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.addrs)
}

// Threshold returns the confirmation threshold.
func (r *Registry) Threshold() uint32 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.threshold
}

// Stats returns the activity counters for one owner.
func (r *Registry) Stats(addr ids.ShortID) (Stats, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	stats, ok := r.stats[addr]
	if !ok {
		return Stats{}, fmt.Errorf("%w: %s", ErrNotOwner, addr)
	}
	return *stats, nil
}

// AllStats copies every owner's counters.
func (r *Registry) AllStats() map[ids.ShortID]Stats {
	r.mu.RLock()
	defer r.mu.RUnlock()

	all := make(map[ids.ShortID]Stats, len(r.stats))
	for addr, stats := range r.stats {
		all[addr] = *stats
	}
	return all
}

// RecordProposal bumps the proposal counters for an owner.
func (r *Registry) RecordProposal(addr ids.ShortID, now uint64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if stats, ok := r.stats[addr]; ok {
		stats.LastActivity = now
		stats.LastProposal = now
		stats.Proposals++
	}
}

// RecordConfirmation bumps the confirmation counters for an owner.
func (r *Registry) RecordConfirmation(addr ids.ShortID, now uint64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if stats, ok := r.stats[addr]; ok {
		stats.LastActivity = now
		stats.Confirmations++
	}
}

// Touch updates an owner's last-activity timestamp.
func (r *Registry) Touch(addr ids.ShortID, now uint64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if stats, ok := r.stats[addr]; ok {
		stats.LastActivity = now
	}
}
