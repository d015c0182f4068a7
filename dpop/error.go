// Copyright IBM Corp. 2020, 2025
// SPDX-License-Identifier: MPL-2.0

package dpop

import "errors"

var (
	ErrInvalidParameter = errors.New("invalid parameter")
	ErrNilParameter     = errors.New("nil parameter")
	ErrUnsupportedAlg   = errors.New("unsupported signing algorithm")
	ErrInvalidKey       = errors.New("invalid key")
	ErrProofFailed      = errors.New("unable to create DPoP proof")
)
