package remote

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path"

	"github.com/guregu/null/v6"

	"github.com/beanbocchi/stowage/internal/client/objectstore"
	"github.com/beanbocchi/stowage/pkg/sdk"
)

// ClientImpl stores objects in a bucket of the object storage service.
type ClientImpl struct {
	sdk            *sdk.Client
	cred           sdk.Credential
	namespace      string
	bucket         string
	prefix         string
	partSize       int
	abortOnFailure bool
}

type RemoteConfig struct {
	Client     *sdk.Client
	Credential sdk.Credential
	Namespace  string
	Bucket     string
	// Prefix is prepended to every key, e.g. "stowage/".
	Prefix         string
	PartSize       int
	AbortOnFailure bool
}

func NewClient(cfg RemoteConfig) (*ClientImpl, error) {
	if cfg.Client == nil {
		return nil, fmt.Errorf("sdk client is required")
	}
	if cfg.Namespace == "" {
		return nil, fmt.Errorf("namespace is required")
	}
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("bucket name is required")
	}

	return &ClientImpl{
		sdk:            cfg.Client,
		cred:           cfg.Credential,
		namespace:      cfg.Namespace,
		bucket:         cfg.Bucket,
		prefix:         cfg.Prefix,
		partSize:       cfg.PartSize,
		abortOnFailure: cfg.AbortOnFailure,
	}, nil
}

func (c *ClientImpl) ref(key string) sdk.ObjectRef {
	return sdk.ObjectRef{
		NamespaceName: c.namespace,
		BucketName:    c.bucket,
		ObjectName:    path.Join(c.prefix, key),
	}
}

// Upload sends content as a multipart upload.
func (c *ClientImpl) Upload(ctx context.Context, key string, content io.Reader) (objectstore.ObjectInfo, error) {
	result, err := c.sdk.PutObject(ctx, c.cred, sdk.PutObjectParams{
		ObjectRef:      c.ref(key),
		ContentType:    null.StringFrom("application/octet-stream"),
		PartSize:       c.partSize,
		AbortOnFailure: c.abortOnFailure,
	}, content)
	if err != nil {
		return objectstore.ObjectInfo{}, fmt.Errorf("put object: %w", err)
	}

	return objectstore.ObjectInfo{
		Key:  key,
		Size: result.Size,
		Hash: result.Hash,
		ETag: result.ETag,
	}, nil
}

// Download waits for the response headers so a missing object is reported
// here rather than on the first read.
func (c *ClientImpl) Download(ctx context.Context, key string) (io.ReadCloser, error) {
	stream, err := c.sdk.GetObject(ctx, c.cred, sdk.GetObjectParams{ObjectRef: c.ref(key)})
	if err != nil {
		return nil, fmt.Errorf("get object: %w", err)
	}

	if _, err := stream.Header(ctx); err != nil {
		stream.Close()
		if isNotFound(err) {
			return nil, fmt.Errorf("get object %s: %w", key, objectstore.ErrNotFound)
		}
		return nil, fmt.Errorf("get object: %w", err)
	}

	return stream, nil
}

func (c *ClientImpl) Delete(ctx context.Context, key string) error {
	if _, err := c.sdk.DeleteObject(ctx, c.cred, sdk.DeleteObjectParams{ObjectRef: c.ref(key)}); err != nil && !isNotFound(err) {
		return fmt.Errorf("delete object: %w", err)
	}
	return nil
}

func isNotFound(err error) bool {
	var perr *sdk.ProtocolError
	return errors.As(err, &perr) && perr.StatusCode == http.StatusNotFound
}
