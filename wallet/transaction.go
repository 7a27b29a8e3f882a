// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package wallet

import (
	"github.com/luxfi/ids"
)

const (
	// MaxPayloadSize bounds the opaque payload carried by a transaction.
	MaxPayloadSize = 10_000

	// MaxBatchSize bounds the number of transactions in one batch proposal.
	MaxBatchSize = 10
)

// Transaction is one proposed transfer. Its index in the ledger identifies
// it; indices are assigned in submission order and never reused. Once
// Executed is set the record is immutable, except for the one-time rollback
// when the external transfer fails.
type Transaction struct {
	To            ids.ShortID `serialize:"true" json:"to"`
	Amount        uint64      `serialize:"true" json:"amount"`
	Payload       []byte      `serialize:"true" json:"payload,omitempty"`
	Executed      bool        `serialize:"true" json:"executed"`
	Confirmations uint32      `serialize:"true" json:"confirmations"`
	UnlockTime    uint64      `serialize:"true" json:"unlockTime"`
	TimeLocked    bool        `serialize:"true" json:"timeLocked"`
	Batched       bool        `serialize:"true" json:"batched"`
	BatchID       uint64      `serialize:"true" json:"batchId"`
	SubmittedAt   uint64      `serialize:"true" json:"submittedAt"`
	Submitter     ids.ShortID `serialize:"true" json:"submitter"`
}
