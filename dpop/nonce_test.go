// Copyright IBM Corp. 2020, 2025
// SPDX-License-Identifier: MPL-2.0

package dpop

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNonceStores(t *testing.T) {
	t.Parallel()
	t.Run("per-uri", func(t *testing.T) {
		t.Parallel()
		assert := assert.New(t)
		s := &PerURINonceStore{}
		assert.Empty(s.Nonce("https://op/token"))
		s.SetNonce("https://op/token", "n1")
		s.SetNonce("https://rs/api", "n2")
		assert.Equal("n1", s.Nonce("https://op/token"))
		assert.Equal("n2", s.Nonce("https://rs/api"))
		s.SetNonce("https://op/token", "n3")
		assert.Equal("n3", s.Nonce("https://op/token"))
	})
	t.Run("single", func(t *testing.T) {
		t.Parallel()
		assert := assert.New(t)
		s := &SingleNonceStore{}
		assert.Empty(s.Nonce("https://op/token"))
		s.SetNonce("https://op/token", "n1")
		assert.Equal("n1", s.Nonce("https://rs/api"))
		s.SetNonce("https://rs/api", "n2")
		assert.Equal("n2", s.Nonce("https://op/token"))
	})
}
