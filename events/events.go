// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package events defines the vault's typed audit events and an in-memory
// append-only log. Emission is fire-and-forget; no acknowledgment is awaited.
package events

import (
	"sync"

	"github.com/luxfi/ids"
)

// Type names the kind of event emitted.
type Type string

const (
	TypeDeposit              Type = "deposit"
	TypeProposal             Type = "proposal"
	TypeBatchProposal        Type = "batch_proposal"
	TypeConfirmation         Type = "confirmation"
	TypeRevocation           Type = "revocation"
	TypeExecution            Type = "execution"
	TypeOwnerAdded           Type = "owner_added"
	TypeOwnerRemoved         Type = "owner_removed"
	TypeThresholdChanged     Type = "threshold_changed"
	TypeEmergencyActivated   Type = "emergency_activated"
	TypeEmergencyDeactivated Type = "emergency_deactivated"
	TypeEmergencyRecovery    Type = "emergency_recovery"
	TypeFeeCollected         Type = "fee_collected"
	TypeFeeRateChanged       Type = "fee_rate_changed"
	TypeFeeCollectorChanged  Type = "fee_collector_changed"
	TypeRateLimitChanged     Type = "rate_limit_changed"
	TypePaused               Type = "paused"
	TypeUnpaused             Type = "unpaused"
	TypeSecurityAlert        Type = "security_alert"
)

// Kinds carried by security alerts.
const (
	AlertLargeProposal     = "large_proposal"
	AlertLargeBatch        = "large_batch"
	AlertLargeConfirmation = "large_confirmation"
	AlertLargeExecution    = "large_execution"
	AlertEmergencyRecovery = "emergency_recovery"
)

// Event is one audit record.
type Event struct {
	Type    Type        `serialize:"true" json:"type"`
	Actor   ids.ShortID `serialize:"true" json:"actor"`
	Subject ids.ShortID `serialize:"true" json:"subject"`
	TxIndex uint64      `serialize:"true" json:"txIndex"`
	BatchID uint64      `serialize:"true" json:"batchId"`
	Amount  uint64      `serialize:"true" json:"amount"`
	Kind    string      `serialize:"true" json:"kind,omitempty"`
	Time    uint64      `serialize:"true" json:"time"`
}

// Sink receives emitted events. Emit may be called with the emitter's lock
// held, so implementations must not call back into the emitter.
type Sink interface {
	Emit(Event)
}

// Log is an in-memory append-only Sink.
type Log struct {
	mu     sync.RWMutex
	events []Event
}

// NewLog returns an empty log.
func NewLog() *Log {
	return &Log{}
}

// Emit appends an event.
func (l *Log) Emit(e Event) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, e)
}

// Len returns the number of recorded events.
func (l *Log) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.events)
}

// All copies every recorded event.
func (l *Log) All() []Event {
	return l.Since(0)
}

// Since copies the events recorded at or after offset i.
func (l *Log) Since(i int) []Event {
	l.mu.RLock()
	defer l.mu.RUnlock()

	if i < 0 {
		i = 0
	}
	if i >= len(l.events) {
		return nil
	}
	out := make([]Event, len(l.events)-i)
	copy(out, l.events[i:])
	return out
}
