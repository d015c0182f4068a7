// Copyright IBM Corp. 2020, 2025
// SPDX-License-Identifier: MPL-2.0

package rp

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	ErrInvalidParameter = errors.New("invalid parameter")
	ErrNilParameter     = errors.New("nil parameter")
	ErrMissingState     = errors.New("missing saved state")
	ErrStateMismatch    = errors.New("state mismatch")
	ErrIssuerMismatch   = errors.New("issuer mismatch")
	ErrProviderError    = errors.New("provider returned an error")
	ErrNotNavigation    = errors.New("not a navigation request")
)

// Kind classifies the failures of the HTTP handlers.
type Kind int

const (
	// KindClient is a protocol error caused by the request: missing or
	// mismatched state, error response from the provider, malformed logout
	// token.
	KindClient Kind = iota + 1

	// KindProvider is a validation failure of what the provider returned:
	// id_token signature, nonce or audience, userinfo subject. Either the
	// provider or the relying party's configuration is wrong.
	KindProvider

	// KindIO is a failed call to a collaborator: token, userinfo or
	// discovery request, session or logged-out session store.
	KindIO
)

// String implements fmt.Stringer.
func (k Kind) String() string {
	switch k {
	case KindClient:
		return "client"
	case KindProvider:
		return "provider"
	case KindIO:
		return "io"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// Status returns the HTTP status code of the kind: 400 for client errors,
// 500 otherwise.
func (k Kind) Status() int {
	if k == KindClient {
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}

// Error is the error the handlers answer a request with.
type Error struct {
	Kind Kind

	// Message is safe to show to the user.
	Message string

	// Err is the cause, if any. It must not be shown to the user.
	Err error
}

// Error implements error.
func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Kind, e.Message)
	}
	return fmt.Sprintf("%s: %s: %s", e.Kind, e.Message, e.Err)
}

// Unwrap returns the cause.
func (e *Error) Unwrap() error {
	return e.Err
}

// ErrorResponseFunc writes the response for a failed request. It's given
// the status code matching e.Kind.
type ErrorResponseFunc func(w http.ResponseWriter, r *http.Request, status int, e *Error)

// DefaultErrorResponse writes e.Message as plain text.
func DefaultErrorResponse(w http.ResponseWriter, _ *http.Request, status int, e *Error) {
	http.Error(w, e.Message, status)
}

// responder logs and renders handler errors.
type responder struct {
	opts options
}

func (rs responder) fail(w http.ResponseWriter, r *http.Request, op string, kind Kind, msg string, cause error) *Error {
	e := &Error{Kind: kind, Message: msg, Err: cause}
	args := []interface{}{"op", op, "kind", kind.String(), "message", msg}
	if cause != nil {
		args = append(args, "error", cause)
	}
	if kind == KindClient {
		rs.opts.withLogger.Debug("request rejected", args...)
	} else {
		rs.opts.withLogger.Error("request failed", args...)
	}
	rs.opts.withErrorResponse(w, r, kind.Status(), e)
	return e
}
