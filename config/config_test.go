package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/beanbocchi/stowage/internal/model"
)

const testYAML = `
env: test
log:
  level: debug
  format: json
credential:
  tenancyId: ocid1.tenancy.oc1..t
  userId: ocid1.user.oc1..u
  keyFingerprint: aa:bb
  privateKey: inline-key
  region: us-ashburn-1
objectstore:
  namespace: ns
  bucket: bucket
  partSize: 1048576
  timeout: 30s
  cache:
    enabled: true
    root: /tmp/cache
`

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}
	return path
}

func TestLoad(t *testing.T) {
	t.Run("file values and defaults", func(t *testing.T) {
		cfg, err := Load(writeConfig(t, testYAML))
		if err != nil {
			t.Fatalf("Load() error = %v", err)
		}

		if cfg.Env != "test" || cfg.Log.Level != "debug" || cfg.Log.Format != "json" {
			t.Errorf("general config = %+v %+v", cfg.Env, cfg.Log)
		}
		if cfg.Server.Addr != ":8080" || cfg.Server.ShutdownTimeout != 10*time.Second {
			t.Errorf("Server = %+v", cfg.Server)
		}
		store := cfg.Objectstore
		if store.Namespace != "ns" || store.PartSize != 1<<20 || store.Timeout != 30*time.Second {
			t.Errorf("Objectstore = %+v", store)
		}
		if !store.Cache.Enabled || store.Cache.Root != "/tmp/cache" || store.Cache.MaxSize != 1024 {
			t.Errorf("Cache = %+v", store.Cache)
		}
		if cred := cfg.Credential.SDK(); cred.PrivateKey != "inline-key" || cred.Region != "us-ashburn-1" {
			t.Errorf("SDK() = %+v", cred)
		}
	})

	t.Run("environment overrides the file", func(t *testing.T) {
		t.Setenv("STOWAGE_OBJECTSTORE_BUCKET", "from-env")
		t.Setenv("STOWAGE_LOG_LEVEL", "warn")

		cfg, err := Load(writeConfig(t, testYAML))
		if err != nil {
			t.Fatalf("Load() error = %v", err)
		}
		if cfg.Objectstore.Bucket != "from-env" || cfg.Log.Level != "warn" {
			t.Errorf("bucket = %q, level = %q", cfg.Objectstore.Bucket, cfg.Log.Level)
		}
	})

	t.Run("private key is read from path", func(t *testing.T) {
		keyPath := filepath.Join(t.TempDir(), "key.pem")
		os.WriteFile(keyPath, []byte("pem-from-file"), 0o600)
		t.Setenv("STOWAGE_CREDENTIAL_PRIVATEKEY", "")
		t.Setenv("STOWAGE_CREDENTIAL_PRIVATEKEYPATH", keyPath)

		cfg, err := Load(writeConfig(t, `
env: test
credential: {tenancyId: t, userId: u, keyFingerprint: f, region: r}
objectstore: {namespace: ns, bucket: b}
`))
		if err != nil {
			t.Fatalf("Load() error = %v", err)
		}
		if cfg.Credential.PrivateKey != "pem-from-file" {
			t.Errorf("PrivateKey = %q", cfg.Credential.PrivateKey)
		}
	})

	t.Run("request timeout is off unless set", func(t *testing.T) {
		cfg, err := Load(writeConfig(t, `
env: test
credential: {tenancyId: t, userId: u, keyFingerprint: f, privateKey: k, region: r}
objectstore: {namespace: ns, bucket: b}
`))
		if err != nil {
			t.Fatalf("Load() error = %v", err)
		}
		if cfg.Objectstore.Timeout != 0 {
			t.Errorf("Timeout = %v, want 0", cfg.Objectstore.Timeout)
		}
	})

	t.Run("missing required values fail validation", func(t *testing.T) {
		_, err := Load(writeConfig(t, "env: test\n"))
		var merr model.Error
		if !errors.As(err, &merr) || merr.Code() != model.ErrValidation.Code() {
			t.Errorf("Load() error = %v, want validation error", err)
		}
	})

	t.Run("unknown env is rejected", func(t *testing.T) {
		t.Setenv("STOWAGE_ENV", "staging")
		if _, err := Load(writeConfig(t, testYAML)); err == nil {
			t.Error("Load() error = nil")
		}
	})
}
