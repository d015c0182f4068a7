// Copyright IBM Corp. 2020, 2025
// SPDX-License-Identifier: MPL-2.0

package dpop

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/lestrrat-go/jwx/v2/jws"
	"github.com/lestrrat-go/jwx/v2/jwt"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tbroyer/oidc-servlets-sub000/oidc"
)

type seenProof struct {
	htm, htu, nonce, ath string
	body                 string
}

// nonceServer requires the nonce "n1" then "n2" in proofs, answering the
// way an authorization server (400) or a resource server (401) does.
type nonceServer struct {
	mu      sync.Mutex
	current string
	status  int
	proofs  []seenProof
}

func (s *nonceServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	body, _ := io.ReadAll(r.Body)
	tok, err := parseProof(r.Header.Get(HeaderName))
	if err != nil {
		http.Error(w, err.Error(), http.StatusTeapot)
		return
	}
	get := func(name string) string {
		v, _ := tok.Get(name)
		s, _ := v.(string)
		return s
	}
	p := seenProof{htm: get("htm"), htu: get("htu"), nonce: get("nonce"), ath: get("ath"), body: string(body)}
	s.proofs = append(s.proofs, p)
	if p.nonce != s.current {
		w.Header().Set(NonceHeaderName, s.current)
		switch s.status {
		case http.StatusUnauthorized:
			w.Header().Set("WWW-Authenticate", `DPoP error="use_dpop_nonce", error_description="nonce required"`)
			w.WriteHeader(http.StatusUnauthorized)
		default:
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusBadRequest)
			_, _ = io.WriteString(w, `{"error":"use_dpop_nonce"}`)
		}
		return
	}
	_, _ = io.WriteString(w, "ok")
}

func parseProof(proof string) (jwt.Token, error) {
	msg, err := jws.Parse([]byte(proof))
	if err != nil {
		return nil, err
	}
	h := msg.Signatures()[0].ProtectedHeaders()
	return jwt.Parse([]byte(proof), jwt.WithKey(h.Algorithm(), h.JWK()))
}

func TestTransport_nonceRetry(t *testing.T) {
	t.Parallel()
	for _, status := range []int{http.StatusBadRequest, http.StatusUnauthorized} {
		status := status
		t.Run(http.StatusText(status), func(t *testing.T) {
			t.Parallel()
			assert, require := assert.New(t), require.New(t)
			srv := &nonceServer{current: "n1", status: status}
			ts := httptest.NewServer(srv)
			t.Cleanup(ts.Close)

			k, err := GenerateKey()
			require.NoError(err)
			nonces := &PerURINonceStore{}
			c, err := NewClient(ts.Client(), k, WithNonceStore(nonces))
			require.NoError(err)

			req, err := http.NewRequest(http.MethodPost, ts.URL+"/token?x=1", strings.NewReader("grant_type=authorization_code"))
			require.NoError(err)
			req.Header.Set("Authorization", "DPoP the-access-token")
			resp, err := c.Do(req)
			require.NoError(err)
			b, err := io.ReadAll(resp.Body)
			require.NoError(err)
			_ = resp.Body.Close()
			assert.Equal(http.StatusOK, resp.StatusCode)
			assert.Equal("ok", string(b))
			assert.Empty(req.Header.Get(HeaderName), "original request must not be modified")

			require.Len(srv.proofs, 2)
			assert.Equal("", srv.proofs[0].nonce)
			assert.Equal("n1", srv.proofs[1].nonce)
			for _, p := range srv.proofs {
				assert.Equal(http.MethodPost, p.htm)
				assert.Equal(ts.URL+"/token", p.htu)
				assert.Equal(AccessTokenHash("the-access-token"), p.ath)
				assert.Equal("grant_type=authorization_code", p.body)
			}
			assert.Equal("n1", nonces.Nonce(ts.URL+"/token"))

			// the stored nonce is used right away, and a rotated one
			// triggers a single retry
			srv.mu.Lock()
			srv.current = "n2"
			srv.mu.Unlock()
			resp, err = c.Get(ts.URL + "/token")
			require.NoError(err)
			_ = resp.Body.Close()
			assert.Equal(http.StatusOK, resp.StatusCode)
			require.Len(srv.proofs, 4)
			assert.Equal("n1", srv.proofs[2].nonce)
			assert.Equal("n2", srv.proofs[3].nonce)
			assert.Empty(srv.proofs[3].ath)
		})
	}
}

func TestTransport_noRetry(t *testing.T) {
	t.Parallel()
	assert, require := assert.New(t), require.New(t)
	var calls int
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.Header().Set(NonceHeaderName, "same")
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		_, _ = io.WriteString(w, `{"error":"use_dpop_nonce"}`)
	}))
	t.Cleanup(ts.Close)

	k, err := GenerateKey()
	require.NoError(err)
	tr, err := NewTransport(k, WithBase(ts.Client().Transport), WithNonceStore(&SingleNonceStore{}))
	require.NoError(err)
	assert.Same(k, tr.Key())
	c := &http.Client{Transport: tr}

	resp, err := c.Get(ts.URL)
	require.NoError(err)
	assert.Equal(1, calls)
	b, err := io.ReadAll(resp.Body)
	require.NoError(err)
	_ = resp.Body.Close()
	assert.JSONEq(`{"error":"use_dpop_nonce"}`, string(b), "body is restored")

	// same nonce again: the server is not making progress
	resp, err = c.Get(ts.URL)
	require.NoError(err)
	_ = resp.Body.Close()
	assert.Equal(2, calls)

	_, err = NewTransport(nil)
	assert.ErrorIs(err, ErrNilParameter)
	_, err = NewClient(nil, nil)
	assert.ErrorIs(err, ErrNilParameter)
}

func TestTransport_withProvider(t *testing.T) {
	t.Parallel()
	assert, require := assert.New(t), require.New(t)
	ctx := context.Background()
	tp := oidc.StartTestProvider(t, 0)
	tp.SetDPoPNonce("op-nonce")
	p, err := oidc.NewProvider(tp.NewConfig(t))
	require.NoError(err)
	t.Cleanup(p.Done)

	k, err := GenerateKey()
	require.NoError(err)
	client, err := NewClient(tp.HTTPClient(), k)
	require.NoError(err)

	const redirectURI = "https://rp.example.com/callback"
	verifier := oidc.NewCodeVerifier()
	r := p.NewAuthRequest()
	r.RedirectURI = redirectURI
	r.State, r.Nonce = "state", "nonce"
	r.CodeChallenge, r.CodeChallengeMethod = verifier.Challenge(), oidc.S256
	r.DPoPJKT = k.Thumbprint()
	authURL, err := r.URL()
	require.NoError(err)
	code := tp.Authorize(t, authURL).Query().Get("code")
	require.NotEmpty(code)

	dctx := oidc.HttpClientContext(ctx, client)
	tk, err := p.Exchange(dctx, code, redirectURI, verifier)
	require.NoError(err)
	assert.Equal("DPoP", tk.TokenType)
	assert.Equal(2, tp.TokenRequests())
	jkt, ok := tp.AccessTokenJKT(string(tk.AccessToken))
	require.True(ok)
	assert.Equal(k.Thumbprint(), jkt)

	claims, err := p.VerifyIdToken(ctx, tk.IdToken, "nonce")
	require.NoError(err)
	info, err := p.UserInfo(dctx, tk, oidc.WithExpectedSubject(claims.Subject))
	require.NoError(err)
	assert.Equal(oidc.TestSubject, info.Subject)

	// a bound token is useless without proofs
	_, err = p.UserInfo(ctx, tk)
	assert.ErrorIs(err, oidc.ErrUserInfoFailed)
}
