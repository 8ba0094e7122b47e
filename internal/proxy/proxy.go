// Package proxy is the default forwarding collaborator: it hands a matched
// request to its route's destination over HTTP and streams the response
// back. The core only guarantees the hand-off is well-formed; transport
// behavior beyond that is this package's concern alone.
package proxy

import (
	"net/http"
	"net/http/httputil"
	"time"

	gwerrors "github.com/tollgate-io/tollgate/internal/errors"
	"github.com/tollgate-io/tollgate/internal/logging"
	"github.com/tollgate-io/tollgate/internal/route"
	"go.uber.org/zap"
)

// Forwarder forwards requests to route destinations.
type Forwarder struct {
	transport http.RoundTripper
}

// NewForwarder creates a Forwarder with a shared transport.
func NewForwarder() *Forwarder {
	return &Forwarder{
		transport: &http.Transport{
			MaxIdleConns:          100,
			MaxIdleConnsPerHost:   10,
			IdleConnTimeout:       90 * time.Second,
			TLSHandshakeTimeout:   10 * time.Second,
			ExpectContinueTimeout: time.Second,
		},
	}
}

// Forward dispatches the request to the route's destination, applying the
// route-scoped filters to the outbound request first.
func (f *Forwarder) Forward(w http.ResponseWriter, r *http.Request, cr *route.CompiledRoute) {
	rp := &httputil.ReverseProxy{
		Transport: f.transport,
		Rewrite: func(pr *httputil.ProxyRequest) {
			pr.SetURL(cr.Dest)
			pr.SetXForwarded()
			pr.Out.Host = cr.Dest.Host
			cr.ApplyFilters(pr.Out, pr.In)
		},
		ErrorHandler: func(w http.ResponseWriter, r *http.Request, err error) {
			logging.Error("upstream forward failed",
				zap.String("route", cr.Def.ID),
				zap.String("destination", cr.Def.URI),
				zap.Error(err))
			gwerrors.ErrBadGateway.WriteText(w)
		},
	}
	rp.ServeHTTP(w, r)
}
