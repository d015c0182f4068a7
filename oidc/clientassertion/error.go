// Copyright IBM Corp. 2020, 2025
// SPDX-License-Identifier: MPL-2.0

package clientassertion

import "errors"

// Configuration errors, returned by NewJWTWithKey, NewJWTWithHMAC and their
// options.
var (
	ErrMissingClientID    = errors.New("missing client ID")
	ErrMissingAudience    = errors.New("missing audience")
	ErrMissingAlgorithm   = errors.New("missing signing algorithm")
	ErrMissingKeyOrSecret = errors.New("missing private key or client secret")
	ErrBothKeyAndSecret   = errors.New("both private key and client secret provided")
	ErrInvalidHeader      = errors.New("invalid header")
)

// Key and secret errors.
var (
	ErrUnsupportedAlgorithm = errors.New("unsupported algorithm")
	ErrInvalidSecretLength  = errors.New("secret too short for algorithm")
	ErrNilPrivateKey        = errors.New("nil private key")
	ErrKeyAlgorithmMismatch = errors.New("private key does not match algorithm")
)

// Serialize errors. The first two mean the JWT was not built with one of the
// constructors.
var (
	ErrMissingFuncIDGenerator = errors.New("missing jti generator")
	ErrMissingFuncNow         = errors.New("missing clock")
	ErrCreatingSigner         = errors.New("error creating jwt signer")
)
