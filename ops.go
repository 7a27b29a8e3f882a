// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package vault

import (
	"errors"
	"fmt"

	"github.com/luxfi/ids"
)

// Operation types
const (
	OpDeposit             = "deposit"
	OpPropose             = "propose"
	OpProposeBatch        = "propose_batch"
	OpConfirm             = "confirm"
	OpRevoke              = "revoke"
	OpExecute             = "execute"
	OpAddOwner            = "add_owner"
	OpRemoveOwner         = "remove_owner"
	OpChangeThreshold     = "change_threshold"
	OpSetRateLimits       = "set_rate_limits"
	OpResetDailyCounters  = "reset_daily_counters"
	OpSetFeeRate          = "set_fee_rate"
	OpSetFeeCollector     = "set_fee_collector"
	OpCollectFees         = "collect_fees"
	OpActivateEmergency   = "activate_emergency"
	OpDeactivateEmergency = "deactivate_emergency"
	OpEmergencyRecovery   = "emergency_recovery"
	OpPause               = "pause"
	OpUnpause             = "unpause"
)

var ErrInvalidOp = errors.New("invalid operation")

// Op is one vault operation carried in a block. A single envelope covers
// every operation type; fields irrelevant to a type are left zero.
type Op struct {
	Type   string      `serialize:"true" json:"type"`
	Caller ids.ShortID `serialize:"true" json:"caller"`

	// Transfer fields.
	To      ids.ShortID `serialize:"true" json:"to"`
	Amount  uint64      `serialize:"true" json:"amount"`
	Payload []byte      `serialize:"true" json:"payload,omitempty"`

	// Ledger reference.
	TxIndex uint64 `serialize:"true" json:"txIndex"`

	// Time-lock request.
	WithTimelock bool   `serialize:"true" json:"withTimelock"`
	LockSeconds  uint64 `serialize:"true" json:"lockSeconds"`

	// Batch proposal fields.
	Recipients []ids.ShortID `serialize:"true" json:"recipients,omitempty"`
	Amounts    []uint64      `serialize:"true" json:"amounts,omitempty"`
	Payloads   [][]byte      `serialize:"true" json:"payloads,omitempty"`

	// Policy fields.
	Threshold       uint32 `serialize:"true" json:"threshold"`
	DailyLimit      uint32 `serialize:"true" json:"dailyLimit"`
	CooldownSeconds uint64 `serialize:"true" json:"cooldownSeconds"`
	RateBps         uint16 `serialize:"true" json:"rateBps"`
}

// ParseOp decodes an operation from its wire bytes.
func ParseOp(bytes []byte) (*Op, error) {
	op := &Op{}
	if _, err := Codec.Unmarshal(bytes, op); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidOp, err)
	}
	if op.Type == "" {
		return nil, fmt.Errorf("%w: missing type", ErrInvalidOp)
	}
	return op, nil
}

// Bytes encodes the operation for inclusion in a block.
func (op *Op) Bytes() ([]byte, error) {
	return Codec.Marshal(codecVersion, op)
}
