package sdktest

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"sync"

	"github.com/beanbocchi/stowage/pkg/signer"
)

var (
	keyOnce sync.Once
	key     *rsa.PrivateKey
	keyPEM  string
)

func generateKey() {
	keyOnce.Do(func() {
		k, err := rsa.GenerateKey(rand.Reader, 2048)
		if err != nil {
			panic(err)
		}
		key = k
		keyPEM = string(pem.EncodeToMemory(&pem.Block{Type: "RSA PRIVATE KEY", Bytes: x509.MarshalPKCS1PrivateKey(k)}))
	})
}

// Credential returns a credential with a freshly generated RSA key. The key
// is generated once per test binary.
func Credential() signer.Credential {
	generateKey()
	return signer.Credential{
		TenancyID:      "ocid1.tenancy.oc1..test",
		UserID:         "ocid1.user.oc1..test",
		KeyFingerprint: "aa:bb:cc",
		PrivateKey:     keyPEM,
		Region:         "us-phoenix-1",
	}
}

// PublicKey returns the public half of the key in Credential, for checking
// signatures.
func PublicKey() *rsa.PublicKey {
	generateKey()
	return &key.PublicKey
}
