// Copyright IBM Corp. 2020, 2025
// SPDX-License-Identifier: MPL-2.0

package dpop

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
)

// useNonceError is the error code a server answers with when a proof lacks
// its current nonce (RFC 9449, section 8).
const useNonceError = "use_dpop_nonce"

// maxErrorBody bounds how much of a 400 response is read to look for
// useNonceError.
const maxErrorBody = 1 << 16

// Transport adds a DPoP proof to every request it sends.
type Transport struct {
	key    *Key
	base   http.RoundTripper
	nonces NonceStore
	opts   transportOptions
}

var _ http.RoundTripper = (*Transport)(nil)

// NewTransport returns a Transport signing proofs with key.
//
// Supported options: WithBase, WithNonceStore, WithLogger, WithNow
func NewTransport(key *Key, opt ...Option) (*Transport, error) {
	const op = "dpop.NewTransport"
	if key == nil {
		return nil, fmt.Errorf("%s: key is nil: %w", op, ErrNilParameter)
	}
	opts := getTransportOpts(opt...)
	return &Transport{
		key:    key,
		base:   opts.withBase,
		nonces: opts.withNonceStore,
		opts:   opts,
	}, nil
}

// NewClient returns a copy of c whose transport wraps c's in a Transport. A
// nil c stands for http.DefaultClient.
//
// Supported options: WithNonceStore, WithLogger, WithNow
func NewClient(c *http.Client, key *Key, opt ...Option) (*http.Client, error) {
	const op = "dpop.NewClient"
	if c == nil {
		c = http.DefaultClient
	}
	base := c.Transport
	if base == nil {
		base = http.DefaultTransport
	}
	t, err := NewTransport(key, append(opt, WithBase(base))...)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	client := *c
	client.Transport = t
	return &client, nil
}

// Key returns the key signing the proofs.
func (t *Transport) Key() *Key {
	return t.key
}

// RoundTrip implements http.RoundTripper. A request is retried at most once,
// when the server answers with a use_dpop_nonce error and a new nonce, and
// the request body can be replayed.
func (t *Transport) RoundTrip(req *http.Request) (*http.Response, error) {
	const op = "dpop.(Transport).RoundTrip"
	htu := HTU(req.URL)
	var accessToken string
	if scheme, token, ok := strings.Cut(req.Header.Get("Authorization"), " "); ok && strings.EqualFold(scheme, HeaderName) {
		accessToken = strings.TrimSpace(token)
	}

	nonce := t.nonces.Nonce(htu)
	resp, err := t.send(req, req.Body, htu, nonce, accessToken)
	if err != nil {
		return nil, err
	}
	newNonce := resp.Header.Get(NonceHeaderName)
	if newNonce == "" {
		return resp, nil
	}
	t.nonces.SetNonce(htu, newNonce)
	if newNonce == nonce || !isUseNonceError(resp) {
		return resp, nil
	}

	var body io.ReadCloser
	if req.Body != nil && req.Body != http.NoBody {
		if req.GetBody == nil {
			return resp, nil
		}
		body, err = req.GetBody()
		if err != nil {
			return resp, nil
		}
	}
	t.opts.withLogger.Debug("retrying with server nonce", "op", op, "htu", htu)
	_, _ = io.Copy(io.Discard, resp.Body)
	_ = resp.Body.Close()
	return t.send(req, body, htu, newNonce, accessToken)
}

func (t *Transport) send(req *http.Request, body io.ReadCloser, htu, nonce, accessToken string) (*http.Response, error) {
	const op = "dpop.(Transport).send"
	proof, err := t.key.Sign(Proof{
		Method:      req.Method,
		URI:         htu,
		Nonce:       nonce,
		AccessToken: accessToken,
		IssuedAt:    t.opts.withNowFunc(),
	})
	if err != nil {
		if body != nil {
			_ = body.Close()
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	r := req.Clone(req.Context())
	r.Body = body
	r.Header.Set(HeaderName, proof)
	return t.base.RoundTrip(r)
}

// isUseNonceError reports whether resp is a use_dpop_nonce error: a
// WWW-Authenticate challenge from a resource server, or a JSON error body
// from an authorization server. A body read to find out is restored.
func isUseNonceError(resp *http.Response) bool {
	switch resp.StatusCode {
	case http.StatusUnauthorized:
		for _, v := range resp.Header.Values("WWW-Authenticate") {
			if strings.Contains(v, `error="`+useNonceError+`"`) {
				return true
			}
		}
		return false
	case http.StatusBadRequest:
		b, err := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		rest := resp.Body
		resp.Body = struct {
			io.Reader
			io.Closer
		}{io.MultiReader(bytes.NewReader(b), rest), rest}
		if err != nil {
			return false
		}
		var e struct {
			Error string `json:"error"`
		}
		return json.Unmarshal(b, &e) == nil && e.Error == useNonceError
	default:
		return false
	}
}
