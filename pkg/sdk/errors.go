package sdk

import (
	"fmt"

	"github.com/beanbocchi/stowage/internal/model"
)

// SigningError is returned when a request could not be signed. Nothing was
// sent to the service.
type SigningError struct {
	Err error
}

func (e *SigningError) Error() string {
	return fmt.Sprintf("sign request: %v", e.Err)
}

func (e *SigningError) Unwrap() error { return e.Err }

// TransportError wraps a failure to exchange a request with the service
// (connection, TLS, cancelled context, truncated body).
type TransportError struct {
	Method string
	Path   string
	Err    error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Method, e.Path, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// ProtocolError is a non-2xx answer from the service. ServiceError holds the
// decoded error body when the service sent one.
type ProtocolError struct {
	Method       string
	Path         string
	StatusCode   int
	OpcRequestID string
	ServiceError model.Error
}

func (e *ProtocolError) Error() string {
	if e.ServiceError.ErrCode != "" {
		return fmt.Sprintf("%s %s: status %d: %s: %s", e.Method, e.Path, e.StatusCode, e.ServiceError.ErrCode, e.ServiceError.Message)
	}
	return fmt.Sprintf("%s %s: status %d", e.Method, e.Path, e.StatusCode)
}

func (e *ProtocolError) Unwrap() error {
	if e.ServiceError.ErrCode == "" {
		return nil
	}
	return e.ServiceError
}

// PartialUploadError reports a multipart upload that failed after its
// session was opened. The commit was not attempted.
type PartialUploadError struct {
	UploadID   string
	ObjectName string
	// PartNumber is the part being processed when the upload failed, 0 if
	// the failure happened outside a part upload.
	PartNumber int
	// Aborted is set when the session was aborted on the service.
	Aborted bool
	Err     error
}

func (e *PartialUploadError) Error() string {
	if e.PartNumber > 0 {
		return fmt.Sprintf("upload %s of %s failed at part %d: %v", e.UploadID, e.ObjectName, e.PartNumber, e.Err)
	}
	return fmt.Sprintf("upload %s of %s failed: %v", e.UploadID, e.ObjectName, e.Err)
}

func (e *PartialUploadError) Unwrap() error { return e.Err }
