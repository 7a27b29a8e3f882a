// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package units

// Denominations of value held by the vault.
// LUX uses 6 decimals, so a uint64 balance holds ~18.4 trillion LUX.
const (
	MicroLux uint64 = 1               // base unit, 0.000001 LUX
	MilliLux uint64 = 1000 * MicroLux // 0.001 LUX
	Lux      uint64 = 1000 * MilliLux // 1 LUX
	KiloLux  uint64 = 1000 * Lux      // 1,000 LUX
	MegaLux  uint64 = 1000 * KiloLux  // 1,000,000 LUX
)
