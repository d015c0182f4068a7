// Copyright IBM Corp. 2020, 2025
// SPDX-License-Identifier: MPL-2.0

package dpop

import (
	"sync"
	"time"

	"github.com/patrickmn/go-cache"
)

// NonceLifetime is how long PerURINonceStore keeps a nonce. Servers rotate
// theirs, so an older one would only cost a use_dpop_nonce retry.
const NonceLifetime = 10 * time.Minute

// NonceStore keeps the last nonce handed out by servers. uri is the htu of
// the request the nonce was received for.
type NonceStore interface {
	Nonce(uri string) string
	SetNonce(uri, nonce string)
}

// PerURINonceStore keeps one nonce per URI for NonceLifetime. The zero value
// is ready to use.
type PerURINonceStore struct {
	once   sync.Once
	nonces *cache.Cache
}

var _ NonceStore = (*PerURINonceStore)(nil)

func (s *PerURINonceStore) store() *cache.Cache {
	s.once.Do(func() {
		s.nonces = cache.New(NonceLifetime, 2*NonceLifetime)
	})
	return s.nonces
}

// Nonce implements NonceStore.
func (s *PerURINonceStore) Nonce(uri string) string {
	if v, ok := s.store().Get(uri); ok {
		return v.(string)
	}
	return ""
}

// SetNonce implements NonceStore.
func (s *PerURINonceStore) SetNonce(uri, nonce string) {
	s.store().SetDefault(uri, nonce)
}

// SingleNonceStore keeps a single nonce, whatever the URI. It suits servers
// sharing nonces across their endpoints.
type SingleNonceStore struct {
	mu    sync.RWMutex
	nonce string
}

var _ NonceStore = (*SingleNonceStore)(nil)

// Nonce implements NonceStore.
func (s *SingleNonceStore) Nonce(string) string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.nonce
}

// SetNonce implements NonceStore.
func (s *SingleNonceStore) SetNonce(_, nonce string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nonce = nonce
}
