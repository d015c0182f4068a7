// Copyright IBM Corp. 2020, 2025
// SPDX-License-Identifier: MPL-2.0

package oidc

import (
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"
)

func TestNewToken(t *testing.T) {
	t.Parallel()
	assert, require := assert.New(t), require.New(t)
	expiry := time.Now().Add(time.Hour)

	_, err := NewToken(nil)
	assert.ErrorIs(err, ErrNilParameter)

	_, err = NewToken(&oauth2.Token{AccessToken: "at"})
	assert.ErrorIs(err, ErrMissingIdToken)

	tk, err := NewToken((&oauth2.Token{
		AccessToken:  "at",
		RefreshToken: "rt",
		TokenType:    "DPoP",
		Expiry:       expiry,
	}).WithExtra(map[string]interface{}{"id_token": "it"}))
	require.NoError(err)
	assert.Equal(&Token{
		IdToken:      "it",
		AccessToken:  "at",
		RefreshToken: "rt",
		TokenType:    "DPoP",
		Expiry:       expiry,
	}, tk)
	assert.True(tk.Valid())

	ts, err := tk.StaticTokenSource().Token()
	require.NoError(err)
	assert.Equal("at", ts.AccessToken)
	assert.Equal("DPoP", ts.Type())
}

func TestToken_Valid(t *testing.T) {
	t.Parallel()
	assert := assert.New(t)
	var nilToken *Token
	assert.False(nilToken.Valid())
	assert.False((&Token{}).Valid())
	assert.True((&Token{AccessToken: "at"}).Valid())
	assert.False((&Token{AccessToken: "at", Expiry: time.Now().Add(5 * time.Second)}).Valid())
	assert.True((&Token{AccessToken: "at", Expiry: time.Now().Add(time.Minute)}).Valid())
}

func TestRedactedTokens(t *testing.T) {
	t.Parallel()
	assert, require := assert.New(t), require.New(t)
	tk := Token{IdToken: "it", AccessToken: "at", RefreshToken: "rt"}
	assert.NotContains(fmt.Sprintf("%v", tk), "it")
	b, err := json.Marshal(tk)
	require.NoError(err)
	assert.NotContains(string(b), `"at"`)
	assert.NotContains(string(b), `"rt"`)
	assert.Contains(string(b), RedactedIdToken)
	assert.Contains(string(b), RedactedAccessToken)
	assert.Contains(string(b), RedactedRefreshToken)
}
