// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package vault

import (
	"github.com/luxfi/log"

	"github.com/luxfi/vault/config"
)

// Factory creates vault VM instances.
type Factory struct {
	config.Config
}

// New returns a vault VM carrying the factory's configuration. The owner
// set and fee collector are supplied by genesis, so the configuration is
// only fully validated during Initialize.
func (f *Factory) New(logger log.Logger) (interface{}, error) {
	if f.Config.WalletName == "" {
		f.Config = config.DefaultConfig()
	}
	return &VM{
		Config: f.Config,
		log:    logger,
	}, nil
}

// NewFactory creates a vault VM factory with the given configuration.
func NewFactory(cfg config.Config) *Factory {
	return &Factory{Config: cfg}
}

// NewDefaultFactory creates a vault VM factory with the default
// configuration.
func NewDefaultFactory() *Factory {
	return &Factory{Config: config.DefaultConfig()}
}
