package auth

import (
	"net/http"

	gwerrors "github.com/tollgate-io/tollgate/internal/errors"
	"github.com/tollgate-io/tollgate/internal/logging"
	"go.uber.org/zap"
)

// Handler serves the token-issuing endpoints under the auth path prefix.
type Handler struct {
	issuer *Issuer
}

// NewHandler creates the auth endpoint handler.
func NewHandler(issuer *Issuer) *Handler {
	return &Handler{issuer: issuer}
}

// Login handles POST /auth/login?username=&password=. On success the token
// is returned both in the Authorization header and as the response body.
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		gwerrors.ErrMethodNotAllowed.WriteText(w)
		return
	}

	username := r.URL.Query().Get("username")
	password := r.URL.Query().Get("password")

	token, err := h.issuer.Issue(username, password)
	if err != nil {
		logging.Debug("login rejected", zap.String("username", username))
		gwerrors.ErrInvalidCredentials.WriteText(w)
		return
	}

	w.Header().Set("Authorization", "Bearer "+token)
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(token))
}

// Test handles GET /auth/test, a credential-free diagnostic endpoint.
func (h *Handler) Test(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("JWT works!"))
}
