// Copyright IBM Corp. 2020, 2025
// SPDX-License-Identifier: MPL-2.0

package id

import (
	"encoding/base64"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name   string
		prefix string
	}{
		{name: "no-prefix"},
		{name: "with-prefix", prefix: "st"},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert, require := assert.New(t), require.New(t)
			got, err := New(tt.prefix)
			require.NoError(err)
			raw := got
			if tt.prefix != "" {
				require.True(strings.HasPrefix(got, tt.prefix+"_"))
				raw = strings.TrimPrefix(got, tt.prefix+"_")
			}
			b, err := base64.RawURLEncoding.DecodeString(raw)
			require.NoError(err)
			assert.Len(b, DefaultSize)

			other, err := New(tt.prefix)
			require.NoError(err)
			assert.NotEqual(got, other)
		})
	}
}

func TestNewSize(t *testing.T) {
	t.Parallel()
	assert, require := assert.New(t), require.New(t)
	_, err := NewSize("", 0)
	require.Error(err)

	got, err := NewSize("", 16)
	require.NoError(err)
	b, err := base64.RawURLEncoding.DecodeString(got)
	require.NoError(err)
	assert.Len(b, 16)
}
