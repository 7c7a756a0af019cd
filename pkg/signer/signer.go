// Package signer signs object storage requests with the HTTP Signatures
// scheme (draft-cavage) expected by the service, including its
// version="1" extension of the Authorization header.
package signer

import (
	"crypto"
	"crypto/ecdsa"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/base64"
	"encoding/pem"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"
)

const (
	HeaderHost          = "host"
	HeaderDate          = "date"
	HeaderRequestTarget = "(request-target)"
	HeaderContentType   = "content-type"
	HeaderContentLength = "content-length"
	HeaderContentSHA256 = "x-content-sha256"
	HeaderAuthorization = "authorization"

	ContentTypeJSON = "application/json"
	ContentTypeForm = "application/x-www-form-urlencoded"
)

var (
	ErrInvalidKey           = errors.New("signer: invalid private key")
	ErrUnsupportedAlgorithm = errors.New("signer: unsupported key algorithm")
)

// nowFunc is swapped in tests to pin the date header.
var nowFunc = time.Now

// Credential identifies the API signing key of a user. It is supplied per
// call and never mutated.
type Credential struct {
	TenancyID      string `validate:"required"`
	UserID         string `validate:"required"`
	KeyFingerprint string `validate:"required"`
	// PrivateKey is the PEM encoded RSA or ECDSA key (PKCS#1, PKCS#8 or SEC 1).
	PrivateKey string `validate:"required"`
	Region     string `validate:"required"`
}

// KeyID returns the key identifier placed in the signature header.
func (c Credential) KeyID() string {
	return fmt.Sprintf("%s/%s/%s", c.TenancyID, c.UserID, c.KeyFingerprint)
}

type Signer struct{}

func New() *Signer {
	return &Signer{}
}

// Sign computes the signature over the request headers and stores it in the
// Authorization header. body must be exactly the bytes that will be sent.
func (s *Signer) Sign(cred Credential, req *http.Request, body []byte) error {
	key, err := parsePrivateKey(cred.PrivateKey)
	if err != nil {
		return err
	}

	if req.Header == nil {
		req.Header = make(http.Header)
	}
	if req.Header.Get(HeaderDate) == "" {
		req.Header.Set(HeaderDate, nowFunc().UTC().Format(http.TimeFormat))
	}
	host := req.Host
	if host == "" {
		host = req.URL.Host
	}
	req.Header.Set(HeaderHost, host)

	headers := SignedHeaders(req.Method, req.Header.Get(HeaderContentType))
	if hasBody(req.Method) {
		req.ContentLength = int64(len(body))
		req.Header.Set(HeaderContentLength, strconv.Itoa(len(body)))
		if req.Header.Get(HeaderContentType) != ContentTypeForm {
			req.Header.Set(HeaderContentSHA256, ContentSHA256(body))
		}
	}

	signature, algorithm, err := signString(key, signingString(req, headers))
	if err != nil {
		return err
	}

	req.Header.Set(HeaderAuthorization, fmt.Sprintf(
		`Signature version="1",keyId="%s",algorithm="%s",headers="%s",signature="%s"`,
		cred.KeyID(), algorithm, strings.Join(headers, " "), signature,
	))
	return nil
}

// SignedHeaders returns the ordered list of header names covered by the
// signature for a request with the given method and content type.
func SignedHeaders(method, contentType string) []string {
	headers := []string{HeaderHost, HeaderDate, HeaderRequestTarget}
	if !hasBody(method) {
		return headers
	}
	headers = append(headers, HeaderContentType, HeaderContentLength)
	if contentType != ContentTypeForm {
		headers = append(headers, HeaderContentSHA256)
	}
	return headers
}

// ContentSHA256 is the base64 SHA-256 digest sent as x-content-sha256.
func ContentSHA256(body []byte) string {
	sum := sha256.Sum256(body)
	return base64.StdEncoding.EncodeToString(sum[:])
}

func hasBody(method string) bool {
	m := strings.ToUpper(method)
	return m == http.MethodPost || m == http.MethodPut
}

func signingString(req *http.Request, headers []string) string {
	lines := make([]string, 0, len(headers))
	for _, h := range headers {
		if h == HeaderRequestTarget {
			lines = append(lines, fmt.Sprintf("%s: %s %s", h, strings.ToLower(req.Method), req.URL.RequestURI()))
			continue
		}
		lines = append(lines, fmt.Sprintf("%s: %s", h, req.Header.Get(h)))
	}
	return strings.Join(lines, "\n")
}

func signString(key crypto.Signer, s string) (string, string, error) {
	digest := sha256.Sum256([]byte(s))

	switch k := key.(type) {
	case *rsa.PrivateKey:
		sig, err := rsa.SignPKCS1v15(nil, k, crypto.SHA256, digest[:])
		if err != nil {
			return "", "", fmt.Errorf("rsa sign: %w", err)
		}
		return base64.StdEncoding.EncodeToString(sig), "rsa-sha256", nil
	case *ecdsa.PrivateKey:
		sig, err := ecdsa.SignASN1(rand.Reader, k, digest[:])
		if err != nil {
			return "", "", fmt.Errorf("ecdsa sign: %w", err)
		}
		return base64.StdEncoding.EncodeToString(sig), "ecdsa-sha256", nil
	default:
		return "", "", fmt.Errorf("%w: %T", ErrUnsupportedAlgorithm, key)
	}
}

func parsePrivateKey(pemKey string) (crypto.Signer, error) {
	block, _ := pem.Decode([]byte(pemKey))
	if block == nil {
		return nil, fmt.Errorf("%w: no PEM block found", ErrInvalidKey)
	}

	switch block.Type {
	case "RSA PRIVATE KEY":
		key, err := x509.ParsePKCS1PrivateKey(block.Bytes)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidKey, err)
		}
		return key, nil
	case "EC PRIVATE KEY":
		key, err := x509.ParseECPrivateKey(block.Bytes)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidKey, err)
		}
		return key, nil
	case "PRIVATE KEY":
		key, err := x509.ParsePKCS8PrivateKey(block.Bytes)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidKey, err)
		}
		signer, ok := key.(crypto.Signer)
		if !ok {
			return nil, fmt.Errorf("%w: %T", ErrUnsupportedAlgorithm, key)
		}
		return signer, nil
	default:
		return nil, fmt.Errorf("%w: unexpected PEM type %q", ErrInvalidKey, block.Type)
	}
}
