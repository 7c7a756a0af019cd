package sdk

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"slices"
	"strconv"
	"time"

	"github.com/aws/smithy-go/ptr"
	"github.com/guregu/null/v6"
	"github.com/zeebo/blake3"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/beanbocchi/stowage/pkg/endpoint"
	"github.com/beanbocchi/stowage/pkg/validator"
)

const (
	DefaultPartSize = 8 << 20
	MaxParts        = 10000
)

var ErrTooManyParts = fmt.Errorf("upload exceeds %d parts", MaxParts)

var (
	createUploadHeaders = []string{"opc-client-request-id", "if-match", "if-none-match"}
	uploadPartHeaders   = []string{"opc-client-request-id", "if-match", "if-none-match", "expect"}
	commitUploadHeaders = []string{"opc-client-request-id", "if-match", "if-none-match"}
	abortUploadHeaders  = []string{"opc-client-request-id"}

	uploadPartQuery = []string{"uploadId", "uploadPartNum"}
	uploadIDQuery   = []string{"uploadId"}
)

type UploadState int

const (
	StateIdle UploadState = iota
	StateSessionOpening
	StateSessionOpen
	StatePartUploading
	StateCommitting
	StateDone
	StateFailed
)

func (s UploadState) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateSessionOpening:
		return "session_opening"
	case StateSessionOpen:
		return "session_open"
	case StatePartUploading:
		return "part_uploading"
	case StateCommitting:
		return "committing"
	case StateDone:
		return "done"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// PartRecord acknowledges one uploaded part. Records are committed in the
// order they were uploaded.
type PartRecord struct {
	PartNum int    `json:"partNum"`
	ETag    string `json:"etag"`
}

// UploadSession is the state of one multipart upload, owned by the
// PutObject call that opened it.
type UploadSession struct {
	NamespaceName  string
	BucketName     string
	UploadID       string
	ObjectName     string
	NextPartNumber int
	State          UploadState
	Parts          []PartRecord
}

func (s UploadSession) snapshot() UploadSession {
	s.Parts = slices.Clone(s.Parts)
	return s
}

// UploadObserver is notified as a multipart upload progresses. Calls for one
// upload are made sequentially from the goroutine driving it. Sessions are
// copies and may be retained.
type UploadObserver interface {
	UploadOpened(ctx context.Context, session UploadSession)
	PartUploaded(ctx context.Context, session UploadSession, part PartRecord, size int)
	UploadCommitted(ctx context.Context, session UploadSession, result *PutObjectResult)
	UploadFailed(ctx context.Context, session UploadSession, err error)
}

type nopObserver struct{}

func (nopObserver) UploadOpened(context.Context, UploadSession) {}
func (nopObserver) PartUploaded(context.Context, UploadSession, PartRecord, int) {}
func (nopObserver) UploadCommitted(context.Context, UploadSession, *PutObjectResult) {}
func (nopObserver) UploadFailed(context.Context, UploadSession, error) {}

// CreateMultipartUploadDetails is the body of a create upload call.
type CreateMultipartUploadDetails struct {
	Object             string            `json:"object" validate:"required"`
	ContentType        *string           `json:"contentType,omitempty"`
	ContentLanguage    *string           `json:"contentLanguage,omitempty"`
	ContentEncoding    *string           `json:"contentEncoding,omitempty"`
	ContentDisposition *string           `json:"contentDisposition,omitempty"`
	CacheControl       *string           `json:"cacheControl,omitempty"`
	StorageTier        *string           `json:"storageTier,omitempty"`
	Metadata           map[string]string `json:"metadata,omitempty"`
}

type CreateMultipartUploadParams struct {
	NamespaceName      string `validate:"required"`
	BucketName         string `validate:"required"`
	OpcClientRequestID null.String
	IfMatch            null.String
	IfNoneMatch        null.String
	Details            CreateMultipartUploadDetails
}

// MultipartUpload describes an open upload session.
type MultipartUpload struct {
	Namespace   string    `json:"namespace"`
	Bucket      string    `json:"bucket"`
	Object      string    `json:"object"`
	UploadID    string    `json:"uploadId"`
	TimeCreated time.Time `json:"timeCreated"`
	StorageTier string    `json:"storageTier"`
}

// CreateMultipartUpload opens an upload session.
func (c *Client) CreateMultipartUpload(ctx context.Context, cred Credential, params CreateMultipartUploadParams) (*MultipartUpload, error) {
	if err := validator.Validate(params); err != nil {
		return nil, err
	}

	fields := conditionalFields(requestID(params.OpcClientRequestID), params.IfMatch, params.IfNoneMatch)
	resp, err := c.Do(ctx, cred, Request{
		Method: http.MethodPost,
		Path:   uploadsPath(params.NamespaceName, params.BucketName),
		Header: endpoint.BuildHeaders(createUploadHeaders, fields, false),
		Body:   params.Details,
	})
	if err != nil {
		return nil, err
	}

	var upload MultipartUpload
	if err := resp.Decode(&upload); err != nil {
		return nil, err
	}
	if upload.UploadID == "" {
		return nil, errors.New("create upload: response carries no uploadId")
	}
	return &upload, nil
}

type UploadPartParams struct {
	ObjectRef
	UploadID           string `validate:"required"`
	PartNum            int    `validate:"min=1,max=10000"`
	OpcClientRequestID null.String
	IfMatch            null.String
	IfNoneMatch        null.String
	Body               []byte
}

// UploadPart sends one part of an open upload and returns its record.
func (c *Client) UploadPart(ctx context.Context, cred Credential, params UploadPartParams) (PartRecord, error) {
	if err := validator.Validate(params); err != nil {
		return PartRecord{}, err
	}

	fields := conditionalFields(requestID(params.OpcClientRequestID), params.IfMatch, params.IfNoneMatch)
	resp, err := c.Do(ctx, cred, Request{
		Method: http.MethodPut,
		Path:   uploadPath(params.NamespaceName, params.BucketName, params.ObjectName),
		Query: endpoint.BuildQuery(uploadPartQuery, map[string]string{
			"uploadId":      params.UploadID,
			"uploadPartNum": strconv.Itoa(params.PartNum),
		}),
		Header: endpoint.BuildHeaders(uploadPartHeaders, fields, true),
		Body:   params.Body,
	})
	if err != nil {
		return PartRecord{}, err
	}

	etag := resp.Header.Get("ETag")
	if etag == "" {
		return PartRecord{}, fmt.Errorf("upload part %d: response carries no etag", params.PartNum)
	}
	return PartRecord{PartNum: params.PartNum, ETag: etag}, nil
}

type CommitMultipartUploadParams struct {
	ObjectRef
	UploadID           string `validate:"required"`
	OpcClientRequestID null.String
	IfMatch            null.String
	IfNoneMatch        null.String
	Parts              []PartRecord
}

type commitDetails struct {
	PartsToCommit []PartRecord `json:"partsToCommit"`
}

// CommitResult is the answer to a commit call.
type CommitResult struct {
	ETag         string
	MultipartMD5 string
	OpcRequestID string
	Payload      any
}

// CommitMultipartUpload assembles the uploaded parts into the object. Parts
// are sent in the given order.
func (c *Client) CommitMultipartUpload(ctx context.Context, cred Credential, params CommitMultipartUploadParams) (*CommitResult, error) {
	if err := validator.Validate(params); err != nil {
		return nil, err
	}

	parts := params.Parts
	if parts == nil {
		parts = []PartRecord{}
	}

	fields := conditionalFields(requestID(params.OpcClientRequestID), params.IfMatch, params.IfNoneMatch)
	resp, err := c.Do(ctx, cred, Request{
		Method: http.MethodPost,
		Path:   uploadPath(params.NamespaceName, params.BucketName, params.ObjectName),
		Query:  endpoint.BuildQuery(uploadIDQuery, map[string]string{"uploadId": params.UploadID}),
		Header: endpoint.BuildHeaders(commitUploadHeaders, fields, false),
		Body:   commitDetails{PartsToCommit: parts},
	})
	if err != nil {
		return nil, err
	}

	return &CommitResult{
		ETag:         resp.Header.Get("ETag"),
		MultipartMD5: resp.Header.Get("opc-multipart-md5"),
		OpcRequestID: resp.Header.Get(headerOpcRequestID),
		Payload:      resp.Payload,
	}, nil
}

type AbortMultipartUploadParams struct {
	ObjectRef
	UploadID           string `validate:"required"`
	OpcClientRequestID null.String
}

// AbortMultipartUpload discards an open upload and the parts sent so far.
func (c *Client) AbortMultipartUpload(ctx context.Context, cred Credential, params AbortMultipartUploadParams) (*Response, error) {
	if err := validator.Validate(params); err != nil {
		return nil, err
	}

	fields := conditionalFields(requestID(params.OpcClientRequestID), null.String{}, null.String{})
	return c.Do(ctx, cred, Request{
		Method: http.MethodDelete,
		Path:   uploadPath(params.NamespaceName, params.BucketName, params.ObjectName),
		Query:  endpoint.BuildQuery(uploadIDQuery, map[string]string{"uploadId": params.UploadID}),
		Header: endpoint.BuildHeaders(abortUploadHeaders, fields, false),
	})
}

// ChunkSource yields the chunks of an upload. Next returns io.EOF once the
// source is exhausted. Each chunk must be backed by its own memory: the
// transport may still be reading a part body after the part call returned.
type ChunkSource interface {
	Next(ctx context.Context) ([]byte, error)
}

type readerSource struct {
	r        io.Reader
	partSize int
}

// NewReaderSource cuts r into chunks of partSize bytes. The last chunk may be
// shorter.
func NewReaderSource(r io.Reader, partSize int) ChunkSource {
	if partSize <= 0 {
		partSize = DefaultPartSize
	}
	return &readerSource{r: r, partSize: partSize}
}

func (s *readerSource) Next(ctx context.Context) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	buf := make([]byte, s.partSize)
	n, err := io.ReadFull(s.r, buf)
	switch {
	case errors.Is(err, io.ErrUnexpectedEOF):
		return buf[:n], nil
	case err != nil:
		return nil, err
	}
	return buf, nil
}

type chanSource <-chan []byte

// NewChanSource uploads the chunks received from ch as they are, one part
// per chunk. Closing ch ends the upload.
func NewChanSource(ch <-chan []byte) ChunkSource {
	return chanSource(ch)
}

func (s chanSource) Next(ctx context.Context) ([]byte, error) {
	select {
	case chunk, ok := <-s:
		if !ok {
			return nil, io.EOF
		}
		return chunk, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

type PutObjectParams struct {
	ObjectRef
	OpcClientRequestID null.String
	IfMatch            null.String
	IfNoneMatch        null.String
	ContentType        null.String
	StorageTier        null.String
	Metadata           map[string]string
	// PartSize applies to PutObject only. Defaults to DefaultPartSize.
	PartSize int `validate:"min=0"`
	// AbortOnFailure aborts the server side session when the upload fails
	// after it was opened. Otherwise the session is left for the caller.
	AbortOnFailure bool
}

type PutObjectResult struct {
	UploadID     string
	ObjectName   string
	Parts        []PartRecord
	Size         int64
	Hash         string
	ETag         string
	MultipartMD5 string
	OpcRequestID string
	Payload      any
}

// PutObject uploads the content of r as one object, cut into parts of
// params.PartSize bytes.
func (c *Client) PutObject(ctx context.Context, cred Credential, params PutObjectParams, r io.Reader) (*PutObjectResult, error) {
	return c.PutObjectChunks(ctx, cred, params, NewReaderSource(r, params.PartSize))
}

// PutObjectChunks uploads one part per chunk of src, in order, then commits
// the upload. Parts are sent one at a time and src is not asked for the next
// chunk until the previous part is acknowledged.
//
// Failures after the session was opened are reported as *PartialUploadError
// and nothing is committed.
func (c *Client) PutObjectChunks(ctx context.Context, cred Credential, params PutObjectParams, src ChunkSource) (*PutObjectResult, error) {
	if err := validator.Validate(params); err != nil {
		return nil, err
	}

	ctx, span := tracer.Start(ctx, "sdk.PutObject", trace.WithAttributes(
		attribute.String("object", params.ObjectRef.String()),
	))
	defer span.End()

	u := &upload{
		client:    c,
		cred:      cred,
		params:    params,
		requestID: null.StringFrom(requestID(params.OpcClientRequestID)),
		hash:      blake3.New(),
		logger:    c.logger.With(slog.String("object", params.ObjectRef.String())),
		session: UploadSession{
			NamespaceName: params.NamespaceName,
			BucketName:    params.BucketName,
			State:         StateIdle,
		},
	}

	result, err := u.run(ctx, src)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		c.metrics.observeUpload("failed")
		return nil, err
	}
	span.SetAttributes(
		attribute.String("upload_id", result.UploadID),
		attribute.Int("parts", len(result.Parts)),
		attribute.Int64("size", result.Size),
	)
	c.metrics.observeUpload("committed")
	return result, nil
}

// upload drives one multipart session. Its fields are only touched by the
// goroutine currently advancing the state machine.
type upload struct {
	client    *Client
	cred      Credential
	params    PutObjectParams
	requestID null.String
	session   UploadSession
	hash      *blake3.Hasher
	size      int64
	// failedPart is the part in flight when the upload failed, 0 otherwise.
	failedPart int
	logger     *slog.Logger
}

func (u *upload) transition(state UploadState) {
	if u.session.State == state {
		return
	}
	u.logger.Debug("upload state changed",
		slog.String("upload_id", u.session.UploadID),
		slog.String("from", u.session.State.String()),
		slog.String("to", state.String()),
	)
	u.session.State = state
}

func (u *upload) ref() ObjectRef {
	return ObjectRef{
		NamespaceName: u.session.NamespaceName,
		BucketName:    u.session.BucketName,
		ObjectName:    u.session.ObjectName,
	}
}

func (u *upload) run(ctx context.Context, src ChunkSource) (*PutObjectResult, error) {
	u.transition(StateSessionOpening)
	mu, err := u.client.CreateMultipartUpload(ctx, u.cred, CreateMultipartUploadParams{
		NamespaceName:      u.params.NamespaceName,
		BucketName:         u.params.BucketName,
		OpcClientRequestID: u.requestID,
		IfMatch:            u.params.IfMatch,
		IfNoneMatch:        u.params.IfNoneMatch,
		Details:            u.details(),
	})
	if err != nil {
		u.transition(StateFailed)
		return nil, fmt.Errorf("open upload session: %w", err)
	}

	u.session.UploadID = mu.UploadID
	u.session.ObjectName = mu.Object
	if u.session.ObjectName == "" {
		u.session.ObjectName = u.params.ObjectName
	}
	u.session.NextPartNumber = 1
	u.transition(StateSessionOpen)
	u.logger = u.logger.With(slog.String("upload_id", u.session.UploadID))
	u.client.observer.UploadOpened(ctx, u.session.snapshot())

	if err := u.uploadParts(ctx, src); err != nil {
		return nil, u.fail(ctx, err)
	}

	u.transition(StateCommitting)
	commit, err := u.client.CommitMultipartUpload(ctx, u.cred, CommitMultipartUploadParams{
		ObjectRef:          u.ref(),
		UploadID:           u.session.UploadID,
		OpcClientRequestID: u.requestID,
		Parts:              u.session.Parts,
	})
	if err != nil {
		return nil, u.fail(ctx, fmt.Errorf("commit upload: %w", err))
	}
	u.transition(StateDone)

	result := &PutObjectResult{
		UploadID:     u.session.UploadID,
		ObjectName:   u.session.ObjectName,
		Parts:        slices.Clone(u.session.Parts),
		Size:         u.size,
		Hash:         hex.EncodeToString(u.hash.Sum(nil)),
		ETag:         commit.ETag,
		MultipartMD5: commit.MultipartMD5,
		OpcRequestID: commit.OpcRequestID,
		Payload:      commit.Payload,
	}
	u.logger.Info("upload committed",
		slog.Int("parts", len(result.Parts)),
		slog.Int64("size", result.Size),
	)
	u.client.observer.UploadCommitted(ctx, u.session.snapshot(), result)
	return result, nil
}

func (u *upload) details() CreateMultipartUploadDetails {
	d := CreateMultipartUploadDetails{
		Object:   u.params.ObjectName,
		Metadata: u.params.Metadata,
	}
	if u.params.ContentType.Valid {
		d.ContentType = ptr.String(u.params.ContentType.String)
	}
	if u.params.StorageTier.Valid {
		d.StorageTier = ptr.String(u.params.StorageTier.String)
	}
	return d
}

// uploadParts pumps chunks from src to the service. The reader hands over one
// chunk and blocks until the part is recorded; closing chunks marks the end
// of the source.
func (u *upload) uploadParts(ctx context.Context, src ChunkSource) error {
	g, gctx := errgroup.WithContext(ctx)
	chunks := make(chan []byte)
	ready := make(chan struct{})

	g.Go(func() error {
		defer close(chunks)
		for {
			chunk, err := src.Next(gctx)
			if errors.Is(err, io.EOF) {
				return nil
			}
			if err != nil {
				return fmt.Errorf("read source: %w", err)
			}
			if len(chunk) == 0 {
				continue
			}

			select {
			case chunks <- chunk:
			case <-gctx.Done():
				return gctx.Err()
			}
			select {
			case <-ready:
			case <-gctx.Done():
				return gctx.Err()
			}
		}
	})

	g.Go(func() error {
		for chunk := range chunks {
			if err := u.uploadChunk(gctx, chunk); err != nil {
				return err
			}
			select {
			case ready <- struct{}{}:
			case <-gctx.Done():
				return gctx.Err()
			}
		}
		return nil
	})

	return g.Wait()
}

func (u *upload) uploadChunk(ctx context.Context, chunk []byte) error {
	partNum := u.session.NextPartNumber
	u.failedPart = partNum
	if partNum > MaxParts {
		return ErrTooManyParts
	}
	u.transition(StatePartUploading)

	part, err := u.client.UploadPart(ctx, u.cred, UploadPartParams{
		ObjectRef:          u.ref(),
		UploadID:           u.session.UploadID,
		PartNum:            partNum,
		OpcClientRequestID: u.requestID,
		Body:               chunk,
	})
	if err != nil {
		return fmt.Errorf("upload part %d: %w", partNum, err)
	}

	u.session.Parts = append(u.session.Parts, part)
	u.session.NextPartNumber++
	u.failedPart = 0
	u.hash.Write(chunk)
	u.size += int64(len(chunk))

	u.client.metrics.observePart(len(chunk))
	u.logger.Debug("part uploaded",
		slog.Int("part", partNum),
		slog.Int("size", len(chunk)),
	)
	u.client.observer.PartUploaded(ctx, u.session.snapshot(), part, len(chunk))
	return nil
}

func (u *upload) fail(ctx context.Context, cause error) error {
	u.transition(StateFailed)
	perr := &PartialUploadError{
		UploadID:   u.session.UploadID,
		ObjectName: u.session.ObjectName,
		PartNumber: u.failedPart,
		Err:        cause,
	}

	if u.params.AbortOnFailure {
		_, err := u.client.AbortMultipartUpload(context.WithoutCancel(ctx), u.cred, AbortMultipartUploadParams{
			ObjectRef:          u.ref(),
			UploadID:           u.session.UploadID,
			OpcClientRequestID: u.requestID,
		})
		if err != nil {
			u.logger.Warn("failed to abort upload session", slog.String("error", err.Error()))
		} else {
			perr.Aborted = true
		}
	} else {
		u.logger.Warn("upload failed, session left open",
			slog.Int("part", u.failedPart),
			slog.String("error", cause.Error()),
		)
	}

	u.client.observer.UploadFailed(ctx, u.session.snapshot(), perr)
	return perr
}
