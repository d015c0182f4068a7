// Copyright IBM Corp. 2020, 2025
// SPDX-License-Identifier: MPL-2.0

package rp

import (
	"net/http"
	"net/url"
	"strings"
)

// ReturnToParameter is the parameter of Login and Logout requests holding
// where to go afterwards.
const ReturnToParameter = "return-to"

// sendRedirect answers with a 303, so the browser follows with a GET
// whatever the method of the request.
func sendRedirect(w http.ResponseWriter, location string) {
	w.Header().Set("Location", location)
	w.WriteHeader(http.StatusSeeOther)
}

// isNavigation reports whether r is a top-level navigation. Browsers not
// sending Sec-Fetch-Mode are given the benefit of the doubt.
func isNavigation(r *http.Request) bool {
	mode := r.Header.Get("Sec-Fetch-Mode")
	return mode == "" || mode == "navigate"
}

func isSafeMethod(r *http.Request) bool {
	return r.Method == http.MethodGet || r.Method == http.MethodHead
}

// isSameOrigin reports whether r was initiated from origin. It trusts
// Sec-Fetch-Site, then falls back to Origin, then to Referer.
func isSameOrigin(r *http.Request, origin string) bool {
	if r.Header.Get("Sec-Fetch-Site") == "same-origin" {
		return true
	}
	actual := r.Header.Get("Origin")
	if actual == "" || actual == "null" {
		ref, err := url.Parse(r.Header.Get("Referer"))
		if err != nil || ref.Scheme == "" || ref.Host == "" {
			return false
		}
		actual = ref.Scheme + "://" + ref.Host
	}
	return strings.EqualFold(trimSlash(actual), origin)
}

// returnTo returns the ReturnToParameter of r reduced to a path (with query
// and fragment) on origin, or "/" when absent or pointing elsewhere.
func returnTo(r *http.Request, origin string) string {
	v := r.FormValue(ReturnToParameter)
	if v == "" {
		return "/"
	}
	root, err := url.Parse(origin + "/")
	if err != nil {
		return "/"
	}
	ref, err := url.Parse(v)
	if err != nil {
		return "/"
	}
	target := root.ResolveReference(ref)
	if !strings.EqualFold(target.Scheme, root.Scheme) || !strings.EqualFold(target.Host, root.Host) || target.User != nil {
		return "/"
	}
	target.Scheme, target.Host = "", ""
	// a leading "//" would make a network-path reference
	if p := "/" + strings.TrimLeft(target.Path, "/"); p != target.Path {
		target.Path, target.RawPath = p, ""
	}
	return target.String()
}

// requestOrigin returns the scheme and host r was sent to.
func requestOrigin(r *http.Request) string {
	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	return scheme + "://" + r.Host
}

// requestURI returns the path and query of r, to come back to once
// authenticated.
func requestURI(r *http.Request) string {
	return r.URL.RequestURI()
}

func trimSlash(s string) string {
	return strings.TrimRight(s, "/")
}
