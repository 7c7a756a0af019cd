// Package endpoint holds the small collaborators the request pipeline
// relies on: regional host resolution, path segment encoding and the
// allow-list projection of call fields into headers and query strings.
package endpoint

import (
	"fmt"
	"net/http"
	"strings"
)

const ServiceObjectStorage = "objectstorage"

const UserAgent = "stowage-go/1.0"

// Resolver maps a service and region to the host serving it.
type Resolver interface {
	HostFor(service, region string) (string, error)
}

// StaticResolver resolves hosts from a fixed table, falling back to the
// public realm naming scheme for unknown regions.
type StaticResolver struct {
	// Overrides maps region to host and wins over the naming scheme.
	Overrides map[string]string
	// Domain is the realm domain, "oraclecloud.com" when empty.
	Domain string
}

func NewStaticResolver(overrides map[string]string) *StaticResolver {
	return &StaticResolver{Overrides: overrides}
}

func (r *StaticResolver) HostFor(service, region string) (string, error) {
	if region == "" {
		return "", fmt.Errorf("region is required")
	}
	if host, ok := r.Overrides[region]; ok && host != "" {
		return host, nil
	}
	if service == "" {
		return "", fmt.Errorf("service is required")
	}
	domain := r.Domain
	if domain == "" {
		domain = "oraclecloud.com"
	}
	return fmt.Sprintf("%s.%s.%s", service, region, domain), nil
}

// FixedResolver always answers with the same host. Useful when the
// endpoint is configured explicitly.
type FixedResolver string

func (r FixedResolver) HostFor(string, string) (string, error) {
	if r == "" {
		return "", fmt.Errorf("host is not configured")
	}
	return string(r), nil
}

// PercentEncode escapes a path segment the way encodeURIComponent does:
// everything except A-Z a-z 0-9 - _ . ! ~ * ' ( ) is percent-encoded.
func PercentEncode(value string) string {
	const hex = "0123456789ABCDEF"

	var b strings.Builder
	b.Grow(len(value))
	for i := 0; i < len(value); i++ {
		c := value[i]
		if unreserved(c) {
			b.WriteByte(c)
			continue
		}
		b.WriteByte('%')
		b.WriteByte(hex[c>>4])
		b.WriteByte(hex[c&0x0f])
	}
	return b.String()
}

func unreserved(c byte) bool {
	switch {
	case 'a' <= c && c <= 'z', 'A' <= c && c <= 'Z', '0' <= c && c <= '9':
		return true
	}
	switch c {
	case '-', '_', '.', '!', '~', '*', '\'', '(', ')':
		return true
	}
	return false
}

// BuildHeaders projects the allowed field names present in fields into a
// header set. Names match case-insensitively and are emitted lower-case.
// content-type is JSON unless form is set; a user-agent is always added.
func BuildHeaders(allowed []string, fields map[string]string, form bool) http.Header {
	h := make(http.Header)
	if form {
		h.Set("content-type", "application/x-www-form-urlencoded")
	} else {
		h.Set("content-type", "application/json")
	}
	h.Set("user-agent", UserAgent)

	for _, name := range allowed {
		if v, ok := lookup(fields, name); ok {
			h.Set(strings.ToLower(name), v)
		}
	}
	return h
}

// BuildQuery renders the allowed fields present in fields as a query string
// in allow-list order, e.g. "?uploadId=a&uploadPartNum=1". Empty when none
// are present.
func BuildQuery(allowed []string, fields map[string]string) string {
	var b strings.Builder
	for _, name := range allowed {
		v, ok := fields[name]
		if !ok {
			continue
		}
		if b.Len() == 0 {
			b.WriteByte('?')
		} else {
			b.WriteByte('&')
		}
		b.WriteString(name)
		b.WriteByte('=')
		b.WriteString(PercentEncode(v))
	}
	return b.String()
}

func lookup(fields map[string]string, name string) (string, bool) {
	if v, ok := fields[name]; ok {
		return v, true
	}
	for k, v := range fields {
		if strings.EqualFold(k, name) {
			return v, true
		}
	}
	return "", false
}
