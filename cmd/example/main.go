// Copyright IBM Corp. 2020, 2025
// SPDX-License-Identifier: MPL-2.0

// Command example is a relying party protecting a couple of pages: "/"
// needs an authenticated user, "/admin" a user with OIDC_ADMIN_ROLE.
// Register http://localhost:8080/callback as redirect URI,
// http://localhost:8080/logged-out as post logout redirect URI and
// http://localhost:8080/backchannel-logout as back-channel logout URI.
package main

import (
	"context"
	"errors"
	"fmt"
	"html/template"
	"net/http"
	"os"
	"os/signal"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/hashicorp/go-hclog"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/tbroyer/oidc-servlets-sub000/dpop"
	"github.com/tbroyer/oidc-servlets-sub000/loggedout"
	"github.com/tbroyer/oidc-servlets-sub000/oidc"
	"github.com/tbroyer/oidc-servlets-sub000/rp"
	"github.com/tbroyer/oidc-servlets-sub000/session"
)

const (
	callbackPath      = "/callback"
	loggedOutPath     = "/logged-out"
	backchannelPath   = "/backchannel-logout"
	shutdownTimeout   = 10 * time.Second
	readHeaderTimeout = 10 * time.Second
)

var page = template.Must(template.New("page").Parse(`<!doctype html>
<title>{{.Title}}</title>
<h1>{{.Title}}</h1>
{{if .User}}<p>Signed in as {{.User}}.</p>
<form method="post" action="/logout"><input type="hidden" name="return-to" value="/"><button>Sign out</button></form>
{{else}}<p><a href="/login?return-to=/">Sign in</a></p>{{end}}
<p><a href="/">Home</a> | <a href="/admin">Admin</a></p>
`))

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger := hclog.New(&hclog.LoggerOptions{
		Name:  "oidc-rp",
		Level: hclog.LevelFromString(cfg.logLevel),
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	pc, err := oidc.NewConfig(cfg.issuer, cfg.clientID, oidc.ClientSecret(cfg.clientSecret),
		oidc.WithSupportedSigningAlgs(oidc.RS256, oidc.ES256),
		oidc.WithScopes("profile", "email"))
	if err != nil {
		return err
	}
	p, err := oidc.NewProvider(pc, oidc.WithLogger(logger.Named("provider")))
	if err != nil {
		return err
	}
	defer p.Done()

	reg := prometheus.NewRegistry()
	m, err := rp.NewMetrics(reg)
	if err != nil {
		return err
	}

	// Logged out local sessions are invalidated right away, not only on
	// their next request.
	var sessions *session.MemoryStore
	backchannelStore, err := newLoggedOutStore(cfg, logger, func(_ context.Context, _ string, ids []string) {
		sessions.InvalidateIDs(ids...)
	})
	if err != nil {
		return err
	}
	listener, err := rp.NewBackchannelLogoutListener(backchannelStore, rp.WithLogger(logger))
	if err != nil {
		return err
	}
	sessions, err = session.NewMemoryStore(
		session.WithLogger(logger.Named("session")),
		session.WithListener(listener),
		session.WithListener(m.SessionListener()),
		session.WithInsecureCookie(),
	)
	if err != nil {
		return err
	}

	var factory rp.PrincipalFactory = rp.SimplePrincipalFactory{}
	if cfg.keycloak {
		factory = rp.KeycloakPrincipalFactory{}
	}
	with := func(extra ...rp.Option) []rp.Option {
		return append([]rp.Option{
			rp.WithLogger(logger.Named("rp")),
			rp.WithMetrics(m),
			rp.WithBaseURL(cfg.baseURL),
			rp.WithPrincipalFactory(factory),
		}, extra...)
	}

	rdOpts := []rp.Option{rp.WithBackchannelLogoutPath(backchannelPath)}
	if cfg.dpop {
		rdOpts = append(rdOpts, rp.WithDPoP(dpop.NewPerSession(nil)))
	}
	if cfg.par && p.Metadata().PushedAuthorizationRequestEndpoint != "" {
		par, err := oidc.NewPARSender(p, oidc.WithLogger(logger.Named("par")))
		if err != nil {
			return err
		}
		rdOpts = append(rdOpts, rp.WithAuthRequestSender(par))
	}
	rd, err := rp.NewRedirector(p, sessions, callbackPath, with(rdOpts...)...)
	if err != nil {
		return err
	}
	cb, err := rp.NewCallback(rd, with(rp.WithAuthenticationListener(listener))...)
	if err != nil {
		return err
	}
	binder, err := rp.NewBinder(sessions, with(rp.WithLoggedOutStore(backchannelStore))...)
	if err != nil {
		return err
	}
	login, err := rp.NewLogin(rd, with()...)
	if err != nil {
		return err
	}
	logoutOpts := []rp.Option{rp.WithPostLogoutRedirectPath(loggedOutPath), rp.WithLogoutState()}
	if p.Metadata().RevocationEndpoint != "" {
		revoker, err := rp.NewTokenRevoker(p, with(rp.WithRevokeRefreshToken())...)
		if err != nil {
			return err
		}
		defer revoker.Close()
		logoutOpts = append(logoutOpts, rp.WithTokenRevoker(revoker))
	}
	logout, err := rp.NewLogout(p, sessions, with(logoutOpts...)...)
	if err != nil {
		return err
	}
	loggedOut, err := rp.NewLogoutCallback(sessions, with()...)
	if err != nil {
		return err
	}
	backchannel, err := rp.NewBackchannelLogout(p, backchannelStore, with()...)
	if err != nil {
		return err
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID, middleware.Recoverer)
	r.Post(backchannelPath, backchannel.ServeHTTP)
	r.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	r.Group(func(r chi.Router) {
		r.Use(binder.Handler)
		r.Handle(callbackPath, cb)
		r.Handle("/login", login)
		r.Handle("/logout", logout)
		r.Get(loggedOutPath, loggedOut.ServeHTTP)
		r.Group(func(r chi.Router) {
			r.Use(rp.Gate(rp.NewIsAuthenticated(rd)))
			r.Get("/", render("Home"))
		})
		r.Group(func(r chi.Router) {
			r.Use(rp.Gate(rp.NewHasRole(rd, cfg.adminRole)))
			r.Get("/admin", render("Admin"))
		})
	})

	srv := &http.Server{
		Addr:              ":" + cfg.port,
		Handler:           r,
		ReadHeaderTimeout: readHeaderTimeout,
	}
	srvErr := make(chan error, 1)
	go func() {
		logger.Info("listening", "addr", srv.Addr, "base_url", cfg.baseURL)
		srvErr <- srv.ListenAndServe()
	}()

	select {
	case err := <-srvErr:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case <-ctx.Done():
	}
	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

// newLoggedOutStore returns the store of logged out provider sessions:
// Redis when OIDC_REDIS_ADDR is set, memory otherwise.
func newLoggedOutStore(cfg *config, logger hclog.Logger, onLogout loggedout.LogoutFunc) (loggedout.Store, error) {
	opts := []loggedout.Option{loggedout.WithLogger(logger.Named("loggedout")), loggedout.WithLogoutFunc(onLogout)}
	if cfg.redisAddr == "" {
		return loggedout.NewInMemory(opts...), nil
	}
	client := redis.NewClient(&redis.Options{Addr: cfg.redisAddr})
	return loggedout.NewRedis(client, append(opts, loggedout.WithTTL(24*time.Hour))...)
}

func render(title string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_ = page.Execute(w, struct{ Title, User string }{
			Title: title,
			User:  rp.RemoteUser(r),
		})
	}
}
