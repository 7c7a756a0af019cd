package sdk

import (
	"context"
	"io"
	"log/slog"
	"net/http"

	"github.com/guregu/null/v6"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/beanbocchi/stowage/pkg/endpoint"
	"github.com/beanbocchi/stowage/pkg/validator"
)

var (
	getObjectHeaders    = []string{"opc-client-request-id", "if-match", "if-none-match", "range"}
	deleteObjectHeaders = []string{"opc-client-request-id", "if-match"}
)

// GetObjectParams selects the object to read. Optional fields are passed
// through as request headers.
type GetObjectParams struct {
	ObjectRef
	OpcClientRequestID null.String
	IfMatch            null.String
	IfNoneMatch        null.String
	// Range is a raw HTTP range, e.g. "bytes=0-99".
	Range null.String
}

// ObjectStream is the body of an object being fetched. It is handed out
// before the response arrives; the whole body is delivered in a single
// write once it does, followed by end of stream. Callers must Close it.
type ObjectStream struct {
	pr     *io.PipeReader
	ready  chan struct{}
	header http.Header
	err    error
}

func (s *ObjectStream) Read(p []byte) (int, error) {
	return s.pr.Read(p)
}

// Close releases the stream. Unread bytes are discarded.
func (s *ObjectStream) Close() error {
	return s.pr.Close()
}

// Header waits for the response and returns its headers, or the error that
// ended the request.
func (s *ObjectStream) Header(ctx context.Context) (http.Header, error) {
	select {
	case <-s.ready:
		return s.header, s.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// GetObject starts fetching an object and returns its stream right away.
// Invalid params and signing failures are reported here; transport and
// protocol errors are reported by the stream's Read. The request is bound
// to ctx for its whole lifetime.
func (c *Client) GetObject(ctx context.Context, cred Credential, params GetObjectParams) (*ObjectStream, error) {
	if err := validator.Validate(params); err != nil {
		return nil, err
	}

	ctx, span := tracer.Start(ctx, "sdk.GetObject", trace.WithAttributes(
		attribute.String("object", params.ObjectRef.String()),
	))

	fields := conditionalFields(requestID(params.OpcClientRequestID), params.IfMatch, params.IfNoneMatch)
	if params.Range.Valid {
		fields["range"] = params.Range.String
	}

	httpReq, err := c.prepare(ctx, cred, Request{
		Method:      http.MethodGet,
		Path:        objectPath(params.NamespaceName, params.BucketName, params.ObjectName),
		Header:      endpoint.BuildHeaders(getObjectHeaders, fields, false),
		RawResponse: true,
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		span.End()
		return nil, err
	}

	pr, pw := io.Pipe()
	stream := &ObjectStream{pr: pr, ready: make(chan struct{})}

	go func() {
		defer span.End()

		resp, err := c.send(httpReq, true)
		if err != nil {
			stream.err = err
			close(stream.ready)
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			pw.CloseWithError(err)
			return
		}

		stream.header = resp.Header
		close(stream.ready)
		span.SetAttributes(attribute.Int("object.size", len(resp.Raw)))

		if len(resp.Raw) > 0 {
			if _, err := pw.Write(resp.Raw); err != nil {
				c.logger.Debug("object stream closed before it was drained",
					slog.String("object", params.ObjectRef.String()),
					slog.String("error", err.Error()),
				)
			}
		}
		pw.Close()
	}()

	return stream, nil
}

type DeleteObjectParams struct {
	ObjectRef
	OpcClientRequestID null.String
	IfMatch            null.String
}

// DeleteObject removes an object.
func (c *Client) DeleteObject(ctx context.Context, cred Credential, params DeleteObjectParams) (*Response, error) {
	if err := validator.Validate(params); err != nil {
		return nil, err
	}

	ctx, span := tracer.Start(ctx, "sdk.DeleteObject", trace.WithAttributes(
		attribute.String("object", params.ObjectRef.String()),
	))
	defer span.End()

	fields := conditionalFields(requestID(params.OpcClientRequestID), params.IfMatch, null.String{})
	resp, err := c.Do(ctx, cred, Request{
		Method: http.MethodDelete,
		Path:   objectPath(params.NamespaceName, params.BucketName, params.ObjectName),
		Header: endpoint.BuildHeaders(deleteObjectHeaders, fields, false),
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	return resp, nil
}
