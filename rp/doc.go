// Copyright IBM Corp. 2020, 2025
// SPDX-License-Identifier: MPL-2.0

/*
Package rp is the HTTP layer of an OpenID Connect relying party. It plugs
the authorization code flow of an oidc.Provider into a net/http
application, with sessions kept by a session.Store.

	Binder             binds the principal of authenticated sessions to requests
	Gate               lets authorized requests through, others start a flow
	Redirector         starts authentication flows
	Callback           completes them at the redirect URI
	Login              starts a flow on explicit request
	Logout             logs out, then redirects to the provider's end_session_endpoint
	LogoutCallback     checks the state the provider comes back with
	BackchannelLogout  handles the provider's back-channel logout requests
	TokenRevoker       revokes tokens in the background

Redirects are sent as 303. Login and Logout only act on same-origin
navigations, as told by Sec-Fetch-Site, or Origin and Referer for older
browsers.

Example:

	rd, err := rp.NewRedirector(p, sessions, "/callback")
	if err != nil {
		// handle error
	}
	cb, err := rp.NewCallback(rd)
	if err != nil {
		// handle error
	}
	binder, err := rp.NewBinder(sessions)
	if err != nil {
		// handle error
	}
	mux := http.NewServeMux()
	mux.Handle("/callback", cb)
	mux.Handle("/", app)
	gate := rp.Gate(rp.NewIsAuthenticated(rd))
	http.ListenAndServe(":8080", binder.Handler(gate(mux)))

Failed requests are answered according to their Kind: 400 for protocol
errors caused by the request, 500 for invalid responses from the provider
and failed calls. WithErrorResponse customizes the response.
*/
package rp
