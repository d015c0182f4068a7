// Copyright IBM Corp. 2020, 2025
// SPDX-License-Identifier: MPL-2.0

package oidc

import (
	"fmt"

	"github.com/tbroyer/oidc-servlets-sub000/sdk/id"
)

// NewId generates an ID with an optional prefix. The ID generated is suitable
// for a state or nonce.
func NewId(optionalPrefix string) (string, error) {
	const op = "NewId"
	v, err := id.New(optionalPrefix)
	if err != nil {
		return "", fmt.Errorf("%s: unable to generate id: %w: %w", op, ErrIdGeneratorFailed, err)
	}
	return v, nil
}
