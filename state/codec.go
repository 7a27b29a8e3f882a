// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package state

import (
	"github.com/luxfi/codec"
	"github.com/luxfi/codec/linearcodec"

	"github.com/luxfi/vault/owners"
	"github.com/luxfi/vault/ratelimit"
	"github.com/luxfi/vault/wallet"
)

const codecVersion = 0

// Codec serializes every record the vault persists.
var Codec codec.Manager

func init() {
	c := linearcodec.NewDefault()

	// Register types
	c.RegisterType(&wallet.Transaction{})
	c.RegisterType(&owners.Stats{})
	c.RegisterType(&ratelimit.OwnerState{})
	c.RegisterType(&confirmersRecord{})
	c.RegisterType(&ownersRecord{})
	c.RegisterType(&feesRecord{})
	c.RegisterType(&emergencyRecord{})
	c.RegisterType(&rateLimitsRecord{})
	c.RegisterType(&dayRecord{})
	c.RegisterType(&Policy{})
	c.RegisterType(&Account{})

	Codec = codec.NewDefaultManager()
	if err := Codec.RegisterCodec(codecVersion, c); err != nil {
		panic(err)
	}
}
