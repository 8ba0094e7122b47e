package gateway

import (
	"context"
	"net/http"

	"github.com/tollgate-io/tollgate/internal/middleware"
)

// outcomeHolder lets dispatch label a request after the response has started.
type outcomeHolder struct {
	outcome string
}

type outcomeKey struct{}

// setOutcome labels the request's final disposition for metrics.
func setOutcome(r *http.Request, outcome string) {
	if h, ok := r.Context().Value(outcomeKey{}).(*outcomeHolder); ok {
		h.outcome = outcome
	}
}

// statusWriter records the status code written to the client.
type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	if w.status == 0 {
		w.status = code
	}
	w.ResponseWriter.WriteHeader(code)
}

func (w *statusWriter) Write(b []byte) (int, error) {
	if w.status == 0 {
		w.status = http.StatusOK
	}
	return w.ResponseWriter.Write(b)
}

// Unwrap lets http.ResponseController reach the underlying writer, so
// flush and hijack keep working through the pipeline.
func (w *statusWriter) Unwrap() http.ResponseWriter {
	return w.ResponseWriter
}

// observe records request outcomes and short-circuits. A request that never
// reaches dispatch was terminated by a pipeline stage; the stage is inferred
// from the status it wrote.
func (g *Gateway) observe() middleware.Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if g.metrics == nil {
				next.ServeHTTP(w, r)
				return
			}

			holder := &outcomeHolder{}
			ctx := context.WithValue(r.Context(), outcomeKey{}, holder)
			sw := &statusWriter{ResponseWriter: w}

			next.ServeHTTP(sw, r.WithContext(ctx))

			status := sw.status
			if status == 0 {
				status = http.StatusOK
			}

			outcome := holder.outcome
			if outcome == "" {
				outcome = "short_circuit"
				switch status {
				case http.StatusUnauthorized:
					g.metrics.RecordShortCircuit("authn")
				case http.StatusTooManyRequests:
					g.metrics.RecordShortCircuit("ratelimit")
				case http.StatusRequestEntityTooLarge:
					g.metrics.RecordShortCircuit("bodycache")
				default:
					g.metrics.RecordShortCircuit("other")
				}
			}
			g.metrics.RecordRequest(outcome, status)
		})
	}
}
