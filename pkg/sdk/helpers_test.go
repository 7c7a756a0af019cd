package sdk

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/beanbocchi/stowage/pkg/endpoint"
	"github.com/beanbocchi/stowage/pkg/sdk/sdktest"
)

func testCredential(t *testing.T) Credential {
	t.Helper()
	return sdktest.Credential()
}

// newTestClient points a client at a TLS server running handler.
func newTestClient(t *testing.T, handler http.Handler, opts ...Option) (*Client, *httptest.Server) {
	t.Helper()
	srv := httptest.NewTLSServer(handler)
	t.Cleanup(srv.Close)
	opts = append([]Option{
		WithHTTPClient(srv.Client()),
		WithResolver(endpoint.FixedResolver(srv.Listener.Addr().String())),
	}, opts...)
	return NewClient(opts...), srv
}
