// Package bodycache materializes request bodies so that routing predicates
// and the eventual upstream forward can each consume the same bytes. The
// buffer lives in the request context and dies with the request.
package bodycache

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"

	gwerrors "github.com/tollgate-io/tollgate/internal/errors"
	"github.com/tollgate-io/tollgate/internal/logging"
	"github.com/tollgate-io/tollgate/internal/middleware"
	"go.uber.org/zap"
)

// CachedBody holds the exact bytes of a captured request body.
type CachedBody struct {
	Bytes []byte
}

// Text returns the body decoded as a string.
func (b *CachedBody) Text() string {
	return string(b.Bytes)
}

type contextKey struct{}

// FromContext returns the body captured for this request, if any.
func FromContext(ctx context.Context) (*CachedBody, bool) {
	b, ok := ctx.Value(contextKey{}).(*CachedBody)
	return b, ok
}

// NewContext stores a captured body in the context.
func NewContext(ctx context.Context, b *CachedBody) context.Context {
	return context.WithValue(ctx, contextKey{}, b)
}

// hasBody reports whether the method is expected to carry a body.
func hasBody(method string) bool {
	switch method {
	case http.MethodPost, http.MethodPut, http.MethodPatch:
		return true
	default:
		return false
	}
}

// Capture creates the body capture stage. maxBytes caps the buffered size
// (0 disables the cap); oversized bodies short-circuit with 413. For
// bodiless methods the stage is a no-op.
func Capture(maxBytes int64) middleware.Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !hasBody(r.Method) || r.Body == nil || r.Body == http.NoBody {
				next.ServeHTTP(w, r)
				return
			}

			body := r.Body
			if maxBytes > 0 {
				body = http.MaxBytesReader(w, body, maxBytes)
			}

			raw, err := io.ReadAll(body)
			if err != nil {
				var mbe *http.MaxBytesError
				if errors.As(err, &mbe) {
					logging.Warn("request body exceeds buffer cap",
						zap.Int64("limit", mbe.Limit),
						zap.String("path", r.URL.Path))
					gwerrors.ErrRequestEntityTooLarge.WriteText(w)
					return
				}
				// Client went away or the read failed mid-stream; nothing
				// downstream can run without the body.
				logging.Debug("request body read failed", zap.Error(err))
				gwerrors.ErrBadRequest.WriteText(w)
				return
			}
			r.Body.Close()

			cached := &CachedBody{Bytes: raw}

			// Any downstream consumer, including the upstream forward, sees
			// the original bytes, as many times as the body is rebuilt.
			r.Body = io.NopCloser(bytes.NewReader(raw))
			r.GetBody = func() (io.ReadCloser, error) {
				return io.NopCloser(bytes.NewReader(raw)), nil
			}
			r.ContentLength = int64(len(raw))

			next.ServeHTTP(w, r.WithContext(NewContext(r.Context(), cached)))
		})
	}
}
