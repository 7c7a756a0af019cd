package sdk

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/bytedance/sonic"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/beanbocchi/stowage/pkg/endpoint"
	"github.com/beanbocchi/stowage/pkg/signer"
	"github.com/beanbocchi/stowage/pkg/validator"
)

const (
	contentTypeJSON        = signer.ContentTypeJSON
	contentTypeForm        = signer.ContentTypeForm
	contentTypeOctetStream = "application/octet-stream"

	headerOpcRequestID       = "opc-request-id"
	headerOpcClientRequestID = "opc-client-request-id"
)

var tracer = otel.Tracer("github.com/beanbocchi/stowage/pkg/sdk")

// Credential identifies the signing key used for a call.
type Credential = signer.Credential

// Client talks to the object storage REST API. It holds no per-call state
// and is safe for concurrent use.
type Client struct {
	httpClient *http.Client
	resolver   endpoint.Resolver
	signer     *signer.Signer
	metrics    *Metrics
	observer   UploadObserver
	logger     *slog.Logger
}

type Option func(*Client)

// WithHTTPClient replaces the HTTP client. Timeouts are whatever that client
// is configured with.
func WithHTTPClient(httpClient *http.Client) Option {
	return func(c *Client) { c.httpClient = httpClient }
}

func WithResolver(resolver endpoint.Resolver) Option {
	return func(c *Client) { c.resolver = resolver }
}

func WithMetrics(metrics *Metrics) Option {
	return func(c *Client) { c.metrics = metrics }
}

// WithObserver registers a hook notified about multipart upload progress.
func WithObserver(observer UploadObserver) Option {
	return func(c *Client) { c.observer = observer }
}

func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) { c.logger = logger }
}

// NewClient creates a client resolving hosts with the public naming scheme
// unless WithResolver says otherwise.
func NewClient(opts ...Option) *Client {
	c := &Client{
		httpClient: &http.Client{},
		resolver:   endpoint.NewStaticResolver(nil),
		signer:     signer.New(),
		observer:   nopObserver{},
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Request describes one call. It is built fresh for every step and never
// mutated once handed to the executor.
type Request struct {
	Method string
	// Path is already percent-encoded.
	Path string
	// Query is empty or starts with "?".
	Query  string
	Header http.Header
	// Body is sent verbatim ([]byte or string) for form-encoded calls and as
	// JSON text otherwise. nil sends an empty body.
	Body any
	// RawResponse delivers the response bytes whatever the content type.
	RawResponse bool
}

type BodyKind int

const (
	KindEmpty BodyKind = iota
	KindJSON
	KindBinary
)

// Response is a demultiplexed 2xx answer. Payload is the parsed JSON value
// for KindJSON, a []byte for KindBinary and an empty object otherwise.
type Response struct {
	StatusCode int
	Header     http.Header
	Kind       BodyKind
	Payload    any
	Raw        []byte
}

// Decode unmarshals a JSON body into v. Empty and non JSON bodies leave v
// untouched.
func (r *Response) Decode(v any) error {
	if r.Kind != KindJSON || len(bytes.TrimSpace(r.Raw)) == 0 {
		return nil
	}
	if err := sonic.Unmarshal(r.Raw, v); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// Do signs and executes req.
func (c *Client) Do(ctx context.Context, cred Credential, req Request) (*Response, error) {
	httpReq, err := c.prepare(ctx, cred, req)
	if err != nil {
		return nil, err
	}
	return c.send(httpReq, req.RawResponse)
}

// prepare serializes the body, builds the HTTP request and signs it. The
// body is serialized first since the signature covers its exact bytes.
func (c *Client) prepare(ctx context.Context, cred Credential, req Request) (*http.Request, error) {
	if err := validator.Validate(cred); err != nil {
		return nil, &SigningError{Err: fmt.Errorf("invalid credential: %w", err)}
	}

	header := req.Header.Clone()
	if header == nil {
		header = make(http.Header)
	}
	if header.Get(signer.HeaderContentType) == "" {
		header.Set(signer.HeaderContentType, contentTypeJSON)
	}

	body, err := serializeBody(header.Get(signer.HeaderContentType), req.Body)
	if err != nil {
		return nil, err
	}

	host, err := c.resolver.HostFor(endpoint.ServiceObjectStorage, cred.Region)
	if err != nil {
		return nil, fmt.Errorf("resolve host: %w", err)
	}
	u, err := url.Parse("https://" + host + req.Path + req.Query)
	if err != nil {
		return nil, fmt.Errorf("build url: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, req.Method, u.String(), bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	httpReq.URL = u
	httpReq.Header = header
	httpReq.ContentLength = int64(len(body))
	if len(body) == 0 {
		httpReq.Body = http.NoBody
		httpReq.GetBody = func() (io.ReadCloser, error) { return http.NoBody, nil }
	}

	if err := c.signer.Sign(cred, httpReq, body); err != nil {
		return nil, &SigningError{Err: err}
	}
	return httpReq, nil
}

func serializeBody(contentType string, body any) ([]byte, error) {
	if body == nil {
		return nil, nil
	}
	if contentType == contentTypeForm {
		switch b := body.(type) {
		case []byte:
			return b, nil
		case string:
			return []byte(b), nil
		default:
			return nil, fmt.Errorf("form body must be []byte or string, got %T", body)
		}
	}
	data, err := sonic.ConfigStd.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("marshal body: %w", err)
	}
	return data, nil
}

func (c *Client) send(httpReq *http.Request, raw bool) (*Response, error) {
	method, path := httpReq.Method, httpReq.URL.EscapedPath()
	span := trace.SpanFromContext(httpReq.Context())

	start := time.Now()
	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		c.metrics.observeRequest(method, 0, time.Since(start))
		return nil, &TransportError{Method: method, Path: path, Err: err}
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	c.metrics.observeRequest(method, resp.StatusCode, time.Since(start))
	if err != nil {
		return nil, &TransportError{Method: method, Path: path, Err: fmt.Errorf("read body: %w", err)}
	}

	span.AddEvent("http.response", trace.WithAttributes(
		attribute.String("http.method", method),
		attribute.Int("http.status_code", resp.StatusCode),
	))
	c.logger.Debug("object storage request",
		slog.String("method", method),
		slog.String("path", path),
		slog.Int("status", resp.StatusCode),
		slog.Int("bytes", len(data)),
	)

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return nil, protocolError(method, path, resp, data)
	}

	return demux(resp, data, raw)
}

func demux(resp *http.Response, data []byte, raw bool) (*Response, error) {
	out := &Response{
		StatusCode: resp.StatusCode,
		Header:     resp.Header,
		Kind:       KindEmpty,
		Payload:    map[string]any{},
		Raw:        data,
	}
	if raw {
		out.Kind = KindBinary
		out.Payload = data
		return out, nil
	}

	switch mediaType(resp.Header.Get("Content-Type")) {
	case contentTypeJSON:
		if len(bytes.TrimSpace(data)) == 0 {
			return out, nil
		}
		var payload any
		if err := sonic.Unmarshal(data, &payload); err != nil {
			return nil, fmt.Errorf("decode response: %w", err)
		}
		out.Kind = KindJSON
		out.Payload = payload
	case contentTypeForm, contentTypeOctetStream:
		out.Kind = KindBinary
		out.Payload = data
	}
	return out, nil
}

func protocolError(method, path string, resp *http.Response, data []byte) *ProtocolError {
	perr := &ProtocolError{
		Method:       method,
		Path:         path,
		StatusCode:   resp.StatusCode,
		OpcRequestID: resp.Header.Get(headerOpcRequestID),
	}
	if mediaType(resp.Header.Get("Content-Type")) == contentTypeJSON && len(data) > 0 {
		_ = sonic.Unmarshal(data, &perr.ServiceError)
	}
	return perr
}

func mediaType(contentType string) string {
	if contentType == "" {
		return ""
	}
	mt, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return strings.ToLower(strings.TrimSpace(contentType))
	}
	return mt
}
