// Copyright IBM Corp. 2020, 2025
// SPDX-License-Identifier: MPL-2.0

package loggedout

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// testStore runs the behaviour every Store implementation must share.
func testStore(t *testing.T, newStore func(t *testing.T, opt ...Option) Store) {
	ctx := context.Background()

	loggedOut := func(t *testing.T, s Store, sid string) bool {
		t.Helper()
		out, err := s.IsLoggedOut(ctx, sid)
		require.NoError(t, err)
		return out
	}

	t.Run("unknown-sid", func(t *testing.T) {
		assert := assert.New(t)
		s := newStore(t)
		assert.True(loggedOut(t, s, "sid"))
	})
	t.Run("acquire-release-two", func(t *testing.T) {
		assert, require := assert.New(t), require.New(t)
		s := newStore(t)
		require.NoError(s.Acquire(ctx, "sid", "1"))
		require.NoError(s.Acquire(ctx, "sid", "2"))
		assert.False(loggedOut(t, s, "sid"))
		require.NoError(s.Release(ctx, "sid", "1"))
		assert.False(loggedOut(t, s, "sid"))
		require.NoError(s.Release(ctx, "sid", "2"))
		assert.True(loggedOut(t, s, "sid"))
	})
	t.Run("acquire-renew-release", func(t *testing.T) {
		assert, require := assert.New(t), require.New(t)
		s := newStore(t)
		require.NoError(s.Acquire(ctx, "sid", "1"))
		require.NoError(s.Renew(ctx, "sid", "1", "2"))
		assert.False(loggedOut(t, s, "sid"))
		require.NoError(s.Release(ctx, "sid", "1"))
		assert.False(loggedOut(t, s, "sid"), "old id no longer bound")
		require.NoError(s.Release(ctx, "sid", "2"))
		assert.True(loggedOut(t, s, "sid"))
	})
	t.Run("renew-unknown-sid-acquires", func(t *testing.T) {
		assert, require := assert.New(t), require.New(t)
		s := newStore(t)
		require.NoError(s.Renew(ctx, "sid", "1", "2"))
		assert.False(loggedOut(t, s, "sid"))
		require.NoError(s.Release(ctx, "sid", "2"))
		assert.True(loggedOut(t, s, "sid"))
	})
	t.Run("logout-then-stale-release", func(t *testing.T) {
		assert, require := assert.New(t), require.New(t)
		s := newStore(t)
		require.NoError(s.Acquire(ctx, "sid", "1"))
		require.NoError(s.Logout(ctx, "sid"))
		assert.True(loggedOut(t, s, "sid"))
		require.NoError(s.Release(ctx, "sid", "1"))
		assert.True(loggedOut(t, s, "sid"))
	})
	t.Run("logout-unknown-sid", func(t *testing.T) {
		assert, require := assert.New(t), require.New(t)
		s := newStore(t)
		require.NoError(s.Logout(ctx, "sid"))
		assert.True(loggedOut(t, s, "sid"))
	})
	t.Run("keys-are-independent", func(t *testing.T) {
		assert, require := assert.New(t), require.New(t)
		s := newStore(t)
		require.NoError(s.Acquire(ctx, "b", "1"))
		require.NoError(s.Acquire(ctx, "a", "1"))
		require.NoError(s.Renew(ctx, "a", "1", "2"))
		require.NoError(s.Release(ctx, "a", "2"))
		require.NoError(s.Logout(ctx, "a"))
		assert.True(loggedOut(t, s, "a"))
		assert.False(loggedOut(t, s, "b"))
	})
	t.Run("logout-func", func(t *testing.T) {
		assert, require := assert.New(t), require.New(t)
		var gotSid string
		var gotIDs []string
		s := newStore(t, WithLogoutFunc(func(_ context.Context, sid string, ids []string) {
			gotSid, gotIDs = sid, ids
		}))
		require.NoError(s.Acquire(ctx, "sid", "1"))
		require.NoError(s.Acquire(ctx, "sid", "2"))
		require.NoError(s.Logout(ctx, "sid"))
		assert.Equal("sid", gotSid)
		assert.ElementsMatch([]string{"1", "2"}, gotIDs)
	})
	t.Run("invalid-parameters", func(t *testing.T) {
		assert := assert.New(t)
		s := newStore(t)
		assert.ErrorIs(s.Acquire(ctx, "", "1"), ErrInvalidParameter)
		assert.ErrorIs(s.Acquire(ctx, "sid", ""), ErrInvalidParameter)
		assert.ErrorIs(s.Release(ctx, "sid", ""), ErrInvalidParameter)
		assert.ErrorIs(s.Renew(ctx, "sid", "1", ""), ErrInvalidParameter)
		assert.ErrorIs(s.Logout(ctx, ""), ErrInvalidParameter)
		_, err := s.IsLoggedOut(ctx, "")
		assert.ErrorIs(err, ErrInvalidParameter)
	})
	t.Run("random-interleavings-match-model", func(t *testing.T) {
		s := newStore(t)
		rnd := rand.New(rand.NewSource(42))
		model := map[string]map[string]bool{}
		sids := []string{"a", "b", "c"}
		ids := []string{"1", "2", "3", "4"}
		for i := 0; i < 2000; i++ {
			sid := sids[rnd.Intn(len(sids))]
			id, other := ids[rnd.Intn(len(ids))], ids[rnd.Intn(len(ids))]
			var desc string
			switch rnd.Intn(4) {
			case 0:
				desc = fmt.Sprintf("acquire(%s,%s)", sid, id)
				require.NoError(t, s.Acquire(ctx, sid, id))
				if model[sid] == nil {
					model[sid] = map[string]bool{}
				}
				model[sid][id] = true
			case 1:
				desc = fmt.Sprintf("release(%s,%s)", sid, id)
				require.NoError(t, s.Release(ctx, sid, id))
				delete(model[sid], id)
			case 2:
				desc = fmt.Sprintf("renew(%s,%s,%s)", sid, id, other)
				require.NoError(t, s.Renew(ctx, sid, id, other))
				if model[sid] == nil {
					model[sid] = map[string]bool{}
				}
				delete(model[sid], id)
				model[sid][other] = true
			case 3:
				desc = fmt.Sprintf("logout(%s)", sid)
				require.NoError(t, s.Logout(ctx, sid))
				delete(model, sid)
			}
			for _, k := range sids {
				require.Equal(t, len(model[k]) == 0, loggedOut(t, s, k), "step %d %s, key %s", i, desc, k)
			}
		}
	})
	t.Run("concurrent-sessions-one-sid", func(t *testing.T) {
		assert := assert.New(t)
		s := newStore(t)
		const n = 50
		var wg sync.WaitGroup
		for i := 0; i < n; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				id := fmt.Sprintf("local-%d", i)
				assert.NoError(s.Acquire(ctx, "sid", id))
				assert.NoError(s.Renew(ctx, "sid", id, id+"-rotated"))
			}(i)
		}
		wg.Wait()
		assert.False(loggedOut(t, s, "sid"))
		for i := 0; i < n; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				assert.NoError(s.Release(ctx, "sid", fmt.Sprintf("local-%d-rotated", i)))
			}(i)
		}
		wg.Wait()
		assert.True(loggedOut(t, s, "sid"))
	})
}

func TestNull(t *testing.T) {
	t.Parallel()
	assert := assert.New(t)
	ctx := context.Background()
	var s Store = Null{}
	assert.NoError(s.Acquire(ctx, "sid", "1"))
	assert.NoError(s.Logout(ctx, "sid"))
	out, err := s.IsLoggedOut(ctx, "sid")
	assert.NoError(err)
	assert.False(out)
}
