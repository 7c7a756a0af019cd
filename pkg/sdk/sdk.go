// Package sdk is a client for the object storage REST API. Every call is
// signed with the caller's API key; large uploads are split into parts and
// committed as one object.
package sdk

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/guregu/null/v6"

	"github.com/beanbocchi/stowage/pkg/endpoint"
)

// ObjectRef names an object in a bucket.
type ObjectRef struct {
	NamespaceName string `validate:"required"`
	BucketName    string `validate:"required"`
	ObjectName    string `validate:"required"`
}

func (r ObjectRef) String() string {
	return fmt.Sprintf("%s/%s/%s", r.NamespaceName, r.BucketName, r.ObjectName)
}

func objectPath(ns, bucket, object string) string {
	return fmt.Sprintf("/n/%s/b/%s/o/%s", endpoint.PercentEncode(ns), endpoint.PercentEncode(bucket), endpoint.PercentEncode(object))
}

func uploadsPath(ns, bucket string) string {
	return fmt.Sprintf("/n/%s/b/%s/u", endpoint.PercentEncode(ns), endpoint.PercentEncode(bucket))
}

func uploadPath(ns, bucket, object string) string {
	return fmt.Sprintf("/n/%s/b/%s/u/%s", endpoint.PercentEncode(ns), endpoint.PercentEncode(bucket), endpoint.PercentEncode(object))
}

// requestID returns the caller's client request id or a fresh one, so all
// calls of one operation can be correlated on the service side.
func requestID(id null.String) string {
	if id.Valid && id.String != "" {
		return id.String
	}
	return uuid.NewString()
}

// conditionalFields collects the optional header fields shared by most
// calls. Absent values are left out so the allow-list projection skips them.
func conditionalFields(requestID string, ifMatch, ifNoneMatch null.String) map[string]string {
	fields := map[string]string{headerOpcClientRequestID: requestID}
	if ifMatch.Valid {
		fields["if-match"] = ifMatch.String
	}
	if ifNoneMatch.Valid {
		fields["if-none-match"] = ifNoneMatch.String
	}
	return fields
}
