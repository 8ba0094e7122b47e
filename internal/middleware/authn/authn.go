// Package authn provides the Bearer-token authentication stage. Requests
// under a configured set of path prefixes (where tokens are issued) bypass
// verification; everything else must present a valid token or the chain
// short-circuits with 401 before any later stage runs.
package authn

import (
	"context"
	"net/http"
	"strings"

	"github.com/tollgate-io/tollgate/internal/auth"
	gwerrors "github.com/tollgate-io/tollgate/internal/errors"
	"github.com/tollgate-io/tollgate/internal/logging"
	"github.com/tollgate-io/tollgate/internal/middleware"
	"go.uber.org/zap"
)

type subjectKey struct{}

// SubjectFromContext returns the authenticated subject, if any.
func SubjectFromContext(ctx context.Context) (string, bool) {
	s, ok := ctx.Value(subjectKey{}).(string)
	return s, ok
}

// Authenticator verifies Bearer tokens on incoming requests.
type Authenticator struct {
	issuer    *auth.Issuer
	skipPaths []string
}

// New creates an Authenticator. skipPaths are path prefixes that bypass
// verification entirely.
func New(issuer *auth.Issuer, skipPaths []string) *Authenticator {
	return &Authenticator{
		issuer:    issuer,
		skipPaths: skipPaths,
	}
}

// skip reports whether the path bypasses authentication.
func (a *Authenticator) skip(path string) bool {
	for _, prefix := range a.skipPaths {
		if strings.HasPrefix(path, prefix) {
			return true
		}
	}
	return false
}

// extractToken pulls the token out of the Authorization header.
func extractToken(r *http.Request) (string, bool) {
	header := r.Header.Get("Authorization")
	if header == "" {
		return "", false
	}
	const prefix = "Bearer "
	if len(header) <= len(prefix) || !strings.EqualFold(header[:len(prefix)], prefix) {
		return "", false
	}
	return header[len(prefix):], true
}

// Middleware creates the authentication stage.
func (a *Authenticator) Middleware() middleware.Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if a.skip(r.URL.Path) {
				next.ServeHTTP(w, r)
				return
			}

			token, ok := extractToken(r)
			if !ok {
				gwerrors.ErrUnauthorized.
					WithReason(gwerrors.ReasonMissingToken).
					WriteText(w)
				return
			}

			subject, err := a.issuer.Verify(token)
			if err != nil {
				if ge, ok := gwerrors.IsGatewayError(err); ok {
					logging.Debug("token rejected",
						zap.String("reason", string(ge.Reason)),
						zap.String("path", r.URL.Path))
					ge.WriteText(w)
					return
				}
				gwerrors.ErrUnauthorized.WriteText(w)
				return
			}

			ctx := context.WithValue(r.Context(), subjectKey{}, subject)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
