package sdk

import (
	"context"
	"errors"
	"io"
	"net/http"
	"testing"
	"time"

	"github.com/guregu/null/v6"

	"github.com/beanbocchi/stowage/pkg/sdk/sdktest"
)

func testRef(object string) ObjectRef {
	return ObjectRef{NamespaceName: "ns", BucketName: "bucket", ObjectName: object}
}

func TestGetObject(t *testing.T) {
	t.Run("streams the object body", func(t *testing.T) {
		fake := sdktest.NewService()
		fake.PutObject("objName", []byte("hello object"))
		client, _ := newTestClient(t, fake.Handler())

		stream, err := client.GetObject(context.Background(), testCredential(t), GetObjectParams{
			ObjectRef: testRef("objName"),
			Range:     null.StringFrom("bytes=0-99"),
			IfMatch:   null.StringFrom("object-etag"),
		})
		if err != nil {
			t.Fatalf("GetObject() error = %v", err)
		}
		defer stream.Close()

		data, err := io.ReadAll(stream)
		if err != nil {
			t.Fatalf("ReadAll() error = %v", err)
		}
		if string(data) != "hello object" {
			t.Errorf("body = %q", data)
		}

		header, err := stream.Header(context.Background())
		if err != nil {
			t.Fatalf("Header() error = %v", err)
		}
		if header.Get("ETag") != "object-etag" {
			t.Errorf("ETag = %q", header.Get("ETag"))
		}

		reqs := fake.Requests()
		if len(reqs) != 1 {
			t.Fatalf("got %d requests, want 1", len(reqs))
		}
		req := reqs[0]
		if req.Method != "GET" || req.Path != "/n/ns/b/bucket/o/objName" {
			t.Errorf("request = %s %s", req.Method, req.Path)
		}
		if req.Header.Get("Range") != "bytes=0-99" || req.Header.Get("If-Match") != "object-etag" {
			t.Errorf("conditional headers not sent: %v", req.Header)
		}
		if req.Header.Get("x-content-sha256") != "" {
			t.Error("GET must not carry a body hash")
		}
	})

	t.Run("stream is returned before the response arrives", func(t *testing.T) {
		fake := sdktest.NewService()
		fake.PutObject("slow", []byte("late bytes"))
		release := make(chan struct{})
		handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			<-release
			fake.Handler().ServeHTTP(w, r)
		})
		client, _ := newTestClient(t, handler)

		returned := make(chan *ObjectStream, 1)
		go func() {
			stream, err := client.GetObject(context.Background(), testCredential(t), GetObjectParams{ObjectRef: testRef("slow")})
			if err != nil {
				t.Errorf("GetObject() error = %v", err)
			}
			returned <- stream
		}()

		var stream *ObjectStream
		select {
		case stream = <-returned:
		case <-time.After(2 * time.Second):
			close(release)
			t.Fatal("GetObject() blocked on the response")
		}
		if stream == nil {
			close(release)
			return
		}
		defer stream.Close()

		ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
		_, err := stream.Header(ctx)
		cancel()
		if !errors.Is(err, context.DeadlineExceeded) {
			t.Errorf("Header() while pending error = %v, want deadline exceeded", err)
		}

		close(release)
		data, err := io.ReadAll(stream)
		if err != nil || string(data) != "late bytes" {
			t.Fatalf("ReadAll() = %q, %v", data, err)
		}
		if n, err := stream.Read(make([]byte, 4)); n != 0 || err != io.EOF {
			t.Errorf("Read() after end = %d, %v, want 0, EOF", n, err)
		}
	})

	t.Run("path segments are percent encoded", func(t *testing.T) {
		fake := sdktest.NewService()
		fake.PutObject("dir/a b.txt", []byte("x"))
		client, _ := newTestClient(t, fake.Handler())

		stream, err := client.GetObject(context.Background(), testCredential(t), GetObjectParams{ObjectRef: testRef("dir/a b.txt")})
		if err != nil {
			t.Fatalf("GetObject() error = %v", err)
		}
		defer stream.Close()
		if _, err := io.ReadAll(stream); err != nil {
			t.Fatalf("ReadAll() error = %v", err)
		}

		if got := fake.Requests()[0].Path; got != "/n/ns/b/bucket/o/dir%2Fa%20b.txt" {
			t.Errorf("path = %q", got)
		}
	})

	t.Run("empty object ends the stream at once", func(t *testing.T) {
		fake := sdktest.NewService()
		fake.PutObject("empty", []byte{})
		client, _ := newTestClient(t, fake.Handler())

		stream, err := client.GetObject(context.Background(), testCredential(t), GetObjectParams{ObjectRef: testRef("empty")})
		if err != nil {
			t.Fatalf("GetObject() error = %v", err)
		}
		defer stream.Close()

		data, err := io.ReadAll(stream)
		if err != nil || len(data) != 0 {
			t.Errorf("ReadAll() = %q, %v", data, err)
		}
	})

	t.Run("service error surfaces on read", func(t *testing.T) {
		fake := sdktest.NewService()
		client, _ := newTestClient(t, fake.Handler())

		stream, err := client.GetObject(context.Background(), testCredential(t), GetObjectParams{ObjectRef: testRef("missing")})
		if err != nil {
			t.Fatalf("GetObject() error = %v", err)
		}
		defer stream.Close()

		_, err = io.ReadAll(stream)
		var perr *ProtocolError
		if !errors.As(err, &perr) {
			t.Fatalf("ReadAll() error = %v, want *ProtocolError", err)
		}
		if perr.StatusCode != 404 || perr.ServiceError.ErrCode != "ObjectNotFound" || perr.OpcRequestID != "req-ObjectNotFound" {
			t.Errorf("ProtocolError = %+v", perr)
		}

		if _, err := stream.Header(context.Background()); !errors.As(err, &perr) {
			t.Errorf("Header() error = %v, want *ProtocolError", err)
		}
	})

	t.Run("signing failure is returned synchronously", func(t *testing.T) {
		fake := sdktest.NewService()
		client, _ := newTestClient(t, fake.Handler())

		cred := testCredential(t)
		cred.PrivateKey = "not a key"
		_, err := client.GetObject(context.Background(), cred, GetObjectParams{ObjectRef: testRef("obj")})

		var serr *SigningError
		if !errors.As(err, &serr) {
			t.Fatalf("GetObject() error = %v, want *SigningError", err)
		}
		if len(fake.Requests()) != 0 {
			t.Errorf("got %d requests, want none", len(fake.Requests()))
		}
	})

	t.Run("closing early releases the stream", func(t *testing.T) {
		fake := sdktest.NewService()
		fake.PutObject("obj", []byte("some bytes"))
		client, _ := newTestClient(t, fake.Handler())

		stream, err := client.GetObject(context.Background(), testCredential(t), GetObjectParams{ObjectRef: testRef("obj")})
		if err != nil {
			t.Fatalf("GetObject() error = %v", err)
		}
		if err := stream.Close(); err != nil {
			t.Errorf("Close() error = %v", err)
		}
		if _, err := stream.Read(make([]byte, 4)); !errors.Is(err, io.ErrClosedPipe) {
			t.Errorf("Read() after Close error = %v, want io.ErrClosedPipe", err)
		}
	})
}

func TestDeleteObject(t *testing.T) {
	fake := sdktest.NewService()
	fake.PutObject("obj", []byte("x"))
	client, _ := newTestClient(t, fake.Handler())

	if _, err := client.DeleteObject(context.Background(), testCredential(t), DeleteObjectParams{ObjectRef: testRef("obj")}); err != nil {
		t.Fatalf("DeleteObject() error = %v", err)
	}
	if _, ok := fake.Object("obj"); ok {
		t.Error("object still stored")
	}

	_, err := client.DeleteObject(context.Background(), testCredential(t), DeleteObjectParams{ObjectRef: testRef("obj")})
	var perr *ProtocolError
	if !errors.As(err, &perr) || perr.StatusCode != 404 {
		t.Errorf("second DeleteObject() error = %v, want 404", err)
	}
}
