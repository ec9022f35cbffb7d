package authclient

import (
	"context"
	"net/http"

	"github.com/google/uuid"
)

type correlationKey struct{}

// withCorrelationID returns a context carrying a fresh correlation id for
// one token request, and the id.
func withCorrelationID(ctx context.Context) (context.Context, string) {
	id := uuid.NewString()
	return context.WithValue(ctx, correlationKey{}, id), id
}

func correlationID(ctx context.Context) string {
	id, _ := ctx.Value(correlationKey{}).(string)
	return id
}

// correlationTransport stamps provider calls with the library SKU and the
// request's correlation id so they can be traced in provider logs.
type correlationTransport struct {
	base http.RoundTripper
}

func (t *correlationTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	req = req.Clone(req.Context())
	req.Header.Set("x-client-SKU", clientSKU)
	if id := correlationID(req.Context()); id != "" {
		req.Header.Set("client-request-id", id)
		req.Header.Set("return-client-request-id", "true")
	}
	return t.base.RoundTrip(req)
}

// wrapHTTPClient returns a copy of c whose transport adds correlation headers.
func wrapHTTPClient(c *http.Client) *http.Client {
	base := c.Transport
	if base == nil {
		base = http.DefaultTransport
	}
	wrapped := *c
	wrapped.Transport = &correlationTransport{base: base}
	return &wrapped
}
