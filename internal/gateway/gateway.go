// Package gateway composes the pipeline stages into a fixed-order chain and
// drives each request through it to completion or short-circuit: body
// capture, then credential verification, then rate limiting, then route
// matching and dispatch.
package gateway

import (
	"net/http"
	"strings"
	"sync/atomic"

	"github.com/tollgate-io/tollgate/internal/auth"
	"github.com/tollgate-io/tollgate/internal/config"
	gwerrors "github.com/tollgate-io/tollgate/internal/errors"
	"github.com/tollgate-io/tollgate/internal/logging"
	"github.com/tollgate-io/tollgate/internal/metrics"
	"github.com/tollgate-io/tollgate/internal/middleware"
	"github.com/tollgate-io/tollgate/internal/middleware/authn"
	"github.com/tollgate-io/tollgate/internal/middleware/bodycache"
	"github.com/tollgate-io/tollgate/internal/middleware/ratelimit"
	"github.com/tollgate-io/tollgate/internal/route"
	"go.uber.org/zap"
)

// authPrefix is where the token-issuing endpoints live. It is always in the
// authentication skip list: a client must be able to log in without already
// holding a token, whatever skip paths the operator configures.
const authPrefix = "/auth"

// Forwarder hands a matched request off to its route's destination. The
// transport behind it is an external collaborator.
type Forwarder interface {
	Forward(w http.ResponseWriter, r *http.Request, cr *route.CompiledRoute)
}

// dynamic holds the settings that can change on config reload without
// rebuilding the pipeline.
type dynamic struct {
	fallbackStatus int
	fallbackBody   string
}

// Gateway is the request-processing core.
type Gateway struct {
	table     *route.Table
	limiter   *ratelimit.Limiter
	authHdl   *auth.Handler
	forwarder Forwarder
	metrics   *metrics.Metrics

	metricsEnabled bool
	metricsPath    string
	adminHandler   http.Handler

	dyn     atomic.Pointer[dynamic]
	handler http.Handler
}

// New wires the pipeline. The stage order is constructed exactly once, here;
// it is the ordering contract of the whole gateway.
func New(cfg *config.Config, table *route.Table, forwarder Forwarder, m *metrics.Metrics) *Gateway {
	issuer := auth.NewIssuer(cfg.Auth.Secret, cfg.Auth.TokenTTL, cfg.Auth.Users)
	authenticator := authn.New(issuer, withAuthPrefix(cfg.Auth.SkipPaths))

	g := &Gateway{
		table:   table,
		authHdl: auth.NewHandler(issuer),
		limiter: ratelimit.NewLimiter(ratelimit.Config{
			Capacity:       cfg.RateLimit.Capacity,
			RefillInterval: cfg.RateLimit.RefillInterval,
			IdleEviction:   cfg.RateLimit.IdleEvictionEnabled(),
			IdleAfter:      cfg.RateLimit.IdleAfter,
			SweepInterval:  cfg.RateLimit.SweepInterval,
		}),
		forwarder:      forwarder,
		metrics:        m,
		metricsEnabled: cfg.MetricsEnabled(),
		metricsPath:    cfg.Metrics.Path,
	}
	g.dyn.Store(&dynamic{
		fallbackStatus: cfg.Fallback.Status,
		fallbackBody:   cfg.Fallback.Body,
	})
	g.adminHandler = g.newAdminHandler()

	if m != nil {
		table.OnReload = m.RecordReload
	}

	chain := middleware.NewChain(
		middleware.Recovery(),
		middleware.RequestID(),
		g.observe(),
		bodycache.Capture(cfg.Limits.MaxBodyBytes),
		authenticator.Middleware(),
		g.limiter.Middleware(),
	)
	g.handler = chain.ThenFunc(g.dispatch)

	return g
}

// ApplyConfig swaps the dynamic settings after a config reload and refreshes
// the route table so new predicate options take effect.
func (g *Gateway) ApplyConfig(cfg *config.Config) {
	g.dyn.Store(&dynamic{
		fallbackStatus: cfg.Fallback.Status,
		fallbackBody:   cfg.Fallback.Body,
	})
	g.table.SetCompileOptions(route.CompileOptions{
		BodyFallback: route.FallbackMode(cfg.Routes.BodyPredicateFallback),
	})
}

// Handler returns the composed pipeline.
func (g *Gateway) Handler() http.Handler {
	return g.handler
}

// Limiter exposes the rate limiter (used by tests and diagnostics).
func (g *Gateway) Limiter() *ratelimit.Limiter {
	return g.limiter
}

// dispatch runs after every filter stage has passed: local endpoints first,
// then first-match over the active route snapshot, then the fallback
// responder.
func (g *Gateway) dispatch(w http.ResponseWriter, r *http.Request) {
	path := r.URL.Path

	switch {
	case strings.HasPrefix(path, authPrefix):
		g.serveAuth(w, r)
		return

	case path == "/fallback":
		if r.Method != http.MethodGet && r.Method != http.MethodPost {
			gwerrors.ErrMethodNotAllowed.WriteText(w)
			return
		}
		setOutcome(r, "fallback")
		g.fallback(w)
		return

	case g.metricsEnabled && path == g.metricsPath:
		setOutcome(r, "local")
		g.metrics.Handler().ServeHTTP(w, r)
		return

	case strings.HasPrefix(path, "/admin/routes"):
		setOutcome(r, "local")
		g.adminHandler.ServeHTTP(w, r)
		return
	}

	if cr, ok := g.table.Match(r); ok {
		setOutcome(r, "proxied")
		logging.Debug("route matched",
			zap.String("route", cr.Def.ID),
			zap.String("destination", cr.Def.URI),
			zap.String("path", path))
		g.forwarder.Forward(w, r, cr)
		return
	}

	setOutcome(r, "fallback")
	g.fallback(w)
}

// serveAuth handles the endpoints under the authentication prefix.
func (g *Gateway) serveAuth(w http.ResponseWriter, r *http.Request) {
	setOutcome(r, "local")
	switch r.URL.Path {
	case authPrefix + "/login":
		g.authHdl.Login(w, r)
	case authPrefix + "/test":
		g.authHdl.Test(w, r)
	default:
		gwerrors.ErrNotFound.WriteText(w)
	}
}

// withAuthPrefix returns the skip list with the auth endpoints' prefix
// guaranteed present.
func withAuthPrefix(skipPaths []string) []string {
	for _, p := range skipPaths {
		if p == authPrefix {
			return skipPaths
		}
	}
	out := make([]string, 0, len(skipPaths)+1)
	out = append(out, authPrefix)
	out = append(out, skipPaths...)
	return out
}

// fallback writes the fixed no-route-matched response.
func (g *Gateway) fallback(w http.ResponseWriter) {
	d := g.dyn.Load()
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(d.fallbackStatus)
	w.Write([]byte(d.fallbackBody))
}
