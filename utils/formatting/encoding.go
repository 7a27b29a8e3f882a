// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package formatting converts byte slices to and from the string encodings
// used by the API.
package formatting

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"math"
	"strings"
)

const (
	hexPrefix   = "0x"
	checksumLen = 4
)

var (
	errEncodingOverflow            = errors.New("encoding overflow")
	errInvalidEncoding             = errors.New("invalid encoding")
	errUnsupportedEncodingInMethod = errors.New("unsupported encoding in method")
	errMissingHexPrefix            = errors.New("missing 0x prefix to hex encoding")
	errMissingChecksum             = errors.New("input string is smaller than the checksum size")
	errBadChecksum                 = errors.New("invalid input checksum")
)

// Encoding defines how bytes are converted to a string and vice versa.
type Encoding uint8

const (
	// Hex specifies a hex plus 4 byte checksum encoding format
	Hex Encoding = iota
	// JSON specifies the JSON encoding format
	JSON
)

func (enc Encoding) String() string {
	switch enc {
	case Hex:
		return "hex"
	case JSON:
		return "json"
	default:
		return errInvalidEncoding.Error()
	}
}

func (enc Encoding) valid() bool {
	switch enc {
	case Hex, JSON:
		return true
	}
	return false
}

func (enc Encoding) MarshalJSON() ([]byte, error) {
	if !enc.valid() {
		return nil, errInvalidEncoding
	}
	return []byte(`"` + enc.String() + `"`), nil
}

func (enc *Encoding) UnmarshalJSON(b []byte) error {
	str := string(b)
	if str == "null" {
		return nil
	}
	var err error
	*enc, err = ToEncoding(strings.Trim(str, `"`))
	return err
}

// ToEncoding returns the encoding named by encodingStr.
func ToEncoding(encodingStr string) (Encoding, error) {
	switch encodingStr {
	case Hex.String():
		return Hex, nil
	case JSON.String():
		return JSON, nil
	default:
		return Hex, errInvalidEncoding
	}
}

// Encode converts bytes to a string using the given encoding. A 4 byte
// checksum of the payload is appended before encoding.
func Encode(encoding Encoding, bytes []byte) (string, error) {
	if !encoding.valid() {
		return "", errInvalidEncoding
	}

	switch encoding {
	case Hex:
		if len(bytes) > math.MaxInt32-checksumLen {
			return "", errEncodingOverflow
		}
		checked := make([]byte, len(bytes)+checksumLen)
		copy(checked, bytes)
		copy(checked[len(bytes):], checksum(bytes))
		return hexPrefix + hex.EncodeToString(checked), nil
	default:
		return "", errUnsupportedEncodingInMethod
	}
}

// Decode converts str to bytes using the given encoding and verifies the
// trailing checksum.
func Decode(encoding Encoding, str string) ([]byte, error) {
	switch {
	case !encoding.valid():
		return nil, errInvalidEncoding
	case len(str) == 0:
		return nil, nil
	}

	var (
		decoded []byte
		err     error
	)
	switch encoding {
	case Hex:
		if !strings.HasPrefix(str, hexPrefix) {
			return nil, errMissingHexPrefix
		}
		decoded, err = hex.DecodeString(strings.TrimPrefix(str, hexPrefix))
	default:
		return nil, errUnsupportedEncodingInMethod
	}
	if err != nil {
		return nil, err
	}
	if len(decoded) < checksumLen {
		return nil, errMissingChecksum
	}

	rawBytes := decoded[:len(decoded)-checksumLen]
	if want := checksum(rawBytes); !bytes.Equal(decoded[len(decoded)-checksumLen:], want) {
		return nil, fmt.Errorf("%w: expected %x", errBadChecksum, want)
	}
	return rawBytes, nil
}

// checksum returns the last 4 bytes of the payload's sha256 hash.
func checksum(b []byte) []byte {
	hash := sha256.Sum256(b)
	return hash[len(hash)-checksumLen:]
}
