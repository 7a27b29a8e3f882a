// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package json defines the quoted integer types used by the vault API.
// Amounts are uint64 base units and JSON numbers lose precision past
// 2^53, so the API quotes them.
package json

import "strconv"

const null = "null"

// Uint32 marshals as a quoted decimal string.
type Uint32 uint32

func (u Uint32) MarshalJSON() ([]byte, error) {
	return []byte(`"` + strconv.FormatUint(uint64(u), 10) + `"`), nil
}

func (u *Uint32) UnmarshalJSON(b []byte) error {
	if string(b) == null {
		return nil
	}
	val, err := strconv.ParseUint(trimQuotes(b), 10, 32)
	*u = Uint32(val)
	return err
}

// Uint64 marshals as a quoted decimal string.
type Uint64 uint64

func (u Uint64) MarshalJSON() ([]byte, error) {
	return []byte(`"` + strconv.FormatUint(uint64(u), 10) + `"`), nil
}

func (u *Uint64) UnmarshalJSON(b []byte) error {
	if string(b) == null {
		return nil
	}
	val, err := strconv.ParseUint(trimQuotes(b), 10, 64)
	*u = Uint64(val)
	return err
}

// trimQuotes strips one pair of surrounding quotes, so both quoted and
// bare numbers parse.
func trimQuotes(b []byte) string {
	if len(b) >= 2 && b[0] == '"' && b[len(b)-1] == '"' {
		b = b[1 : len(b)-1]
	}
	return string(b)
}
