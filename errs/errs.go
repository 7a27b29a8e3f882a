// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package errs defines the failure classes shared by the vault components.
// Every concrete error in the module wraps exactly one class, so callers can
// match the specific failure or the class with errors.Is.
package errs

import "errors"

var (
	// ErrAuthorization covers calls from identities that lack the required role.
	ErrAuthorization = errors.New("unauthorized")

	// ErrValidation covers malformed or out-of-range inputs.
	ErrValidation = errors.New("invalid input")

	// ErrState covers operations applied in the wrong lifecycle state.
	ErrState = errors.New("invalid state")

	// ErrPolicy covers time-lock, rate-limit, and fee policy violations.
	ErrPolicy = errors.New("policy violation")

	// ErrEmergency covers emergency-mode gating failures.
	ErrEmergency = errors.New("emergency")

	// ErrTransfer covers failed external transfers.
	ErrTransfer = errors.New("transfer failed")
)
