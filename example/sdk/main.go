package main

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/beanbocchi/stowage/pkg/sdk"
)

// Reads the credential from OCI_* environment variables and round-trips an
// object through BUCKET in NAMESPACE.
func main() {
	key, err := os.ReadFile(os.Getenv("OCI_KEY_FILE"))
	if err != nil {
		fmt.Printf("Failed to read key: %v\n", err)
		return
	}
	cred := sdk.Credential{
		TenancyID:      os.Getenv("OCI_TENANCY"),
		UserID:         os.Getenv("OCI_USER"),
		KeyFingerprint: os.Getenv("OCI_FINGERPRINT"),
		PrivateKey:     string(key),
		Region:         os.Getenv("OCI_REGION"),
	}
	ref := sdk.ObjectRef{
		NamespaceName: os.Getenv("NAMESPACE"),
		BucketName:    os.Getenv("BUCKET"),
		ObjectName:    "examples/sdk.txt",
	}

	client := sdk.NewClient()
	ctx := context.Background()

	// Upload in 5 MiB parts
	content := strings.Repeat("This is object content\n", 500000)
	result, err := client.PutObject(ctx, cred, sdk.PutObjectParams{
		ObjectRef: ref,
		PartSize:  5 << 20,
	}, strings.NewReader(content))
	if err != nil {
		fmt.Printf("Upload failed: %v\n", err)
		return
	}
	fmt.Printf("Upload successful: %d parts, %d bytes, etag %s\n", len(result.Parts), result.Size, result.ETag)

	// Download
	stream, err := client.GetObject(ctx, cred, sdk.GetObjectParams{ObjectRef: ref})
	if err != nil {
		fmt.Printf("Download failed: %v\n", err)
		return
	}
	defer stream.Close()

	var buf bytes.Buffer
	if _, err := io.Copy(&buf, stream); err != nil {
		fmt.Printf("Download failed: %v\n", err)
		return
	}
	fmt.Printf("Download successful, content matches: %v\n", buf.String() == content)
}
