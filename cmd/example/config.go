// Copyright IBM Corp. 2020, 2025
// SPDX-License-Identifier: MPL-2.0

package main

import (
	"fmt"
	"os"
	"strconv"

	"github.com/hashicorp/go-multierror"
	"github.com/joho/godotenv"
)

// Configuration environment variables. OIDC_ISSUER, OIDC_CLIENT_ID and
// OIDC_CLIENT_SECRET are required.
const (
	envIssuer       = "OIDC_ISSUER"
	envClientID     = "OIDC_CLIENT_ID"
	envClientSecret = "OIDC_CLIENT_SECRET"
	envPort         = "OIDC_PORT"
	envBaseURL      = "OIDC_BASE_URL"
	envRedisAddr    = "OIDC_REDIS_ADDR"
	envAdminRole    = "OIDC_ADMIN_ROLE"
	envDPoP         = "OIDC_DPOP"
	envPAR          = "OIDC_PAR"
	envKeycloak     = "OIDC_KEYCLOAK_ROLES"
	envLogLevel     = "OIDC_LOG_LEVEL"
)

type config struct {
	issuer       string
	clientID     string
	clientSecret string
	port         string
	baseURL      string
	redisAddr    string
	adminRole    string
	dpop         bool
	par          bool
	keycloak     bool
	logLevel     string
}

// loadConfig reads the environment, after loading .env when present.
func loadConfig() (*config, error) {
	const op = "loadConfig"
	_ = godotenv.Load()

	c := &config{
		issuer:       os.Getenv(envIssuer),
		clientID:     os.Getenv(envClientID),
		clientSecret: os.Getenv(envClientSecret),
		port:         getenv(envPort, "8080"),
		redisAddr:    os.Getenv(envRedisAddr),
		adminRole:    getenv(envAdminRole, "admin"),
		logLevel:     getenv(envLogLevel, "info"),
	}
	c.baseURL = getenv(envBaseURL, "http://localhost:"+c.port)

	var errs *multierror.Error
	for name, v := range map[string]string{envIssuer: c.issuer, envClientID: c.clientID, envClientSecret: c.clientSecret} {
		if v == "" {
			errs = multierror.Append(errs, fmt.Errorf("%s is empty", name))
		}
	}
	for name, dst := range map[string]*bool{envDPoP: &c.dpop, envPAR: &c.par, envKeycloak: &c.keycloak} {
		v := os.Getenv(name)
		if v == "" {
			continue
		}
		b, err := strconv.ParseBool(v)
		if err != nil {
			errs = multierror.Append(errs, fmt.Errorf("%s: %w", name, err))
			continue
		}
		*dst = b
	}
	if err := errs.ErrorOrNil(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return c, nil
}

func getenv(name, def string) string {
	if v := os.Getenv(name); v != "" {
		return v
	}
	return def
}
