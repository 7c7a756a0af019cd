package endpoint

import (
	"testing"
)

func TestStaticResolver(t *testing.T) {
	t.Run("naming scheme", func(t *testing.T) {
		host, err := NewStaticResolver(nil).HostFor(ServiceObjectStorage, "us-ashburn-1")
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if host != "objectstorage.us-ashburn-1.oraclecloud.com" {
			t.Errorf("unexpected host %q", host)
		}
	})

	t.Run("override wins", func(t *testing.T) {
		r := NewStaticResolver(map[string]string{"eu-frankfurt-1": "127.0.0.1:8443"})
		host, err := r.HostFor(ServiceObjectStorage, "eu-frankfurt-1")
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if host != "127.0.0.1:8443" {
			t.Errorf("unexpected host %q", host)
		}
	})

	t.Run("missing region", func(t *testing.T) {
		if _, err := NewStaticResolver(nil).HostFor(ServiceObjectStorage, ""); err == nil {
			t.Fatal("expected error for empty region")
		}
	})
}

func TestFixedResolver(t *testing.T) {
	host, err := FixedResolver("localhost:9000").HostFor("anything", "anywhere")
	if err != nil || host != "localhost:9000" {
		t.Errorf("expected localhost:9000, got %q (%v)", host, err)
	}
	if _, err := FixedResolver("").HostFor("a", "b"); err == nil {
		t.Error("expected error for empty host")
	}
}

func TestPercentEncode(t *testing.T) {
	tests := map[string]string{
		"objName":         "objName",
		"dir/file.txt":    "dir%2Ffile.txt",
		"a b+c":           "a%20b%2Bc",
		"keep-_.!~*'()":   "keep-_.!~*'()",
		"q?x=1&y=2":       "q%3Fx%3D1%26y%3D2",
		"café":       "caf%C3%A9",
		"":                "",
		"100%":            "100%25",
		"@host:port,list": "%40host%3Aport%2Clist",
	}
	for in, want := range tests {
		if got := PercentEncode(in); got != want {
			t.Errorf("PercentEncode(%q): expected %q, got %q", in, want, got)
		}
	}
}

func TestBuildHeaders(t *testing.T) {
	fields := map[string]string{
		"Range":                 "bytes=0-99",
		"opc-client-request-id": "req-1",
		"bucketName":            "not-a-header",
	}
	allowed := []string{"opc-client-request-id", "if-match", "if-none-match", "range"}

	h := BuildHeaders(allowed, fields, false)
	if got := h.Get("range"); got != "bytes=0-99" {
		t.Errorf("expected range header, got %q", got)
	}
	if got := h.Get("opc-client-request-id"); got != "req-1" {
		t.Errorf("expected request id header, got %q", got)
	}
	if h.Get("if-match") != "" {
		t.Error("expected absent field to be skipped")
	}
	if h.Get("bucketName") != "" {
		t.Error("expected non allow-listed field to be skipped")
	}
	if got := h.Get("content-type"); got != "application/json" {
		t.Errorf("expected json content type, got %q", got)
	}
	if h.Get("user-agent") == "" {
		t.Error("expected user-agent header")
	}

	form := BuildHeaders(nil, nil, true)
	if got := form.Get("content-type"); got != "application/x-www-form-urlencoded" {
		t.Errorf("expected form content type, got %q", got)
	}
}

func TestBuildQuery(t *testing.T) {
	allowed := []string{"uploadId", "uploadPartNum"}

	if got := BuildQuery(allowed, map[string]string{"uploadPartNum": "3", "uploadId": "a/b"}); got != "?uploadId=a%2Fb&uploadPartNum=3" {
		t.Errorf("unexpected query %q", got)
	}
	if got := BuildQuery(allowed, map[string]string{"uploadId": "x"}); got != "?uploadId=x" {
		t.Errorf("unexpected query %q", got)
	}
	if got := BuildQuery(allowed, map[string]string{"other": "x"}); got != "" {
		t.Errorf("expected empty query, got %q", got)
	}
}
