// Copyright IBM Corp. 2020, 2025
// SPDX-License-Identifier: MPL-2.0

// Package id generates random identifiers that are safe to use as OAuth
// state, nonce or session identifiers.
package id

import (
	"encoding/base64"
	"fmt"

	"github.com/hashicorp/go-uuid"
)

// DefaultSize is the number of random bytes behind an identifier.
const DefaultSize = 32

// New generates an unpadded base64url identifier from DefaultSize random
// bytes, with an optional prefix.
func New(optionalPrefix string) (string, error) {
	return NewSize(optionalPrefix, DefaultSize)
}

// NewSize is like New with an explicit number of random bytes.
func NewSize(optionalPrefix string, size int) (string, error) {
	const op = "id.NewSize"
	if size <= 0 {
		return "", fmt.Errorf("%s: size must be positive, got %d", op, size)
	}
	b, err := uuid.GenerateRandomBytes(size)
	if err != nil {
		return "", fmt.Errorf("%s: unable to generate id: %w", op, err)
	}
	id := base64.RawURLEncoding.EncodeToString(b)
	if optionalPrefix != "" {
		return fmt.Sprintf("%s_%s", optionalPrefix, id), nil
	}
	return id, nil
}
