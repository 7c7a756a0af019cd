package sdk

import (
	"bytes"
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"testing"

	"github.com/zeebo/blake3"

	"github.com/beanbocchi/stowage/internal/model"
	"github.com/beanbocchi/stowage/pkg/sdk/sdktest"
)

func testPutParams(object string) PutObjectParams {
	return PutObjectParams{
		ObjectRef: ObjectRef{NamespaceName: "ns", BucketName: "bucket", ObjectName: object},
	}
}

func chunkChan(chunks ...string) <-chan []byte {
	ch := make(chan []byte, len(chunks))
	for _, c := range chunks {
		ch <- []byte(c)
	}
	close(ch)
	return ch
}

func blake3Hex(data []byte) string {
	sum := blake3.Sum256(data)
	return hex.EncodeToString(sum[:])
}

type eventObserver struct {
	mu     sync.Mutex
	events []string
	failed error
}

func (o *eventObserver) add(event string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.events = append(o.events, event)
}

func (o *eventObserver) UploadOpened(_ context.Context, s UploadSession) {
	o.add("opened:" + s.UploadID)
}

func (o *eventObserver) PartUploaded(_ context.Context, s UploadSession, p PartRecord, size int) {
	o.add(fmt.Sprintf("part:%d:%d:%d", p.PartNum, size, len(s.Parts)))
}

func (o *eventObserver) UploadCommitted(_ context.Context, s UploadSession, r *PutObjectResult) {
	o.add(fmt.Sprintf("committed:%s:%d", s.State, r.Size))
}

func (o *eventObserver) UploadFailed(_ context.Context, s UploadSession, err error) {
	o.add("failed:" + s.State.String())
	o.failed = err
}

func TestPutObjectChunks(t *testing.T) {
	t.Run("three chunks are uploaded as parts 1 to 3 and committed", func(t *testing.T) {
		fake := sdktest.NewService()
		client, _ := newTestClient(t, fake.Handler())

		result, err := client.PutObjectChunks(context.Background(), testCredential(t), testPutParams("objName"),
			NewChanSource(chunkChan("aaaaa", "bbbbb", "cc")))
		if err != nil {
			t.Fatalf("PutObjectChunks() error = %v", err)
		}

		want := []PartRecord{
			{PartNum: 1, ETag: "etag-1-5"},
			{PartNum: 2, ETag: "etag-2-5"},
			{PartNum: 3, ETag: "etag-3-2"},
		}
		if fmt.Sprint(result.Parts) != fmt.Sprint(want) {
			t.Errorf("Parts = %v, want %v", result.Parts, want)
		}
		if result.UploadID != "upload-1" {
			t.Errorf("UploadID = %q, want upload-1", result.UploadID)
		}
		if result.Size != 12 {
			t.Errorf("Size = %d, want 12", result.Size)
		}
		if result.Hash != blake3Hex([]byte("aaaaabbbbbcc")) {
			t.Errorf("Hash = %q, want blake3 of the uploaded bytes", result.Hash)
		}
		if result.ETag != "commit-etag" || result.MultipartMD5 != "md5-3" || result.OpcRequestID != "req-commit" {
			t.Errorf("commit headers not propagated: %+v", result)
		}

		reqs := fake.Requests()
		if len(reqs) != 5 {
			t.Fatalf("got %d requests, want 5", len(reqs))
		}
		if reqs[0].Method != "POST" || reqs[0].Path != "/n/ns/b/bucket/u" {
			t.Errorf("first request = %s %s, want session creation", reqs[0].Method, reqs[0].Path)
		}
		for i, part := range reqs[1:4] {
			if part.Method != "PUT" || part.Path != "/n/ns/b/bucket/u/objName" {
				t.Errorf("part request %d = %s %s", i+1, part.Method, part.Path)
			}
			if part.Query["uploadId"] != "upload-1" || part.Query["uploadPartNum"] != fmt.Sprint(i+1) {
				t.Errorf("part request %d query = %v", i+1, part.Query)
			}
			if part.Header.Get("Content-Type") != contentTypeForm {
				t.Errorf("part request %d content-type = %q", i+1, part.Header.Get("Content-Type"))
			}
			if part.Header.Get("x-content-sha256") != "" {
				t.Errorf("part request %d must not carry a body hash", i+1)
			}
			if part.Length != int64(len(part.Body)) {
				t.Errorf("part request %d content-length = %d, body %d", i+1, part.Length, len(part.Body))
			}
		}

		commit := reqs[4]
		if commit.Method != "POST" || commit.Path != "/n/ns/b/bucket/u/objName" || commit.Query["uploadId"] != "upload-1" {
			t.Errorf("commit request = %s %s %v", commit.Method, commit.Path, commit.Query)
		}
		wantBody := `{"partsToCommit":[{"partNum":1,"etag":"etag-1-5"},{"partNum":2,"etag":"etag-2-5"},{"partNum":3,"etag":"etag-3-2"}]}`
		if string(commit.Body) != wantBody {
			t.Errorf("commit body = %s, want %s", commit.Body, wantBody)
		}
		if commit.Header.Get("x-content-sha256") == "" {
			t.Error("commit request must carry a body hash")
		}

		data, ok := fake.Object("objName")
		if !ok || string(data) != "aaaaabbbbbcc" {
			t.Errorf("stored object = %q, %v", data, ok)
		}
	})

	t.Run("all calls of one upload share the client request id", func(t *testing.T) {
		fake := sdktest.NewService()
		client, _ := newTestClient(t, fake.Handler())

		if _, err := client.PutObjectChunks(context.Background(), testCredential(t), testPutParams("obj"),
			NewChanSource(chunkChan("a", "b"))); err != nil {
			t.Fatalf("PutObjectChunks() error = %v", err)
		}

		reqs := fake.Requests()
		id := reqs[0].Header.Get(headerOpcClientRequestID)
		if id == "" {
			t.Fatal("missing opc-client-request-id")
		}
		for _, r := range reqs {
			if got := r.Header.Get(headerOpcClientRequestID); got != id {
				t.Errorf("%s %s request id = %q, want %q", r.Method, r.Path, got, id)
			}
		}
	})

	t.Run("empty chunks are skipped", func(t *testing.T) {
		fake := sdktest.NewService()
		client, _ := newTestClient(t, fake.Handler())

		result, err := client.PutObjectChunks(context.Background(), testCredential(t), testPutParams("obj"),
			NewChanSource(chunkChan("a", "", "b")))
		if err != nil {
			t.Fatalf("PutObjectChunks() error = %v", err)
		}
		if len(result.Parts) != 2 || result.Parts[1].PartNum != 2 {
			t.Errorf("Parts = %v, want two parts numbered 1 and 2", result.Parts)
		}
	})

	t.Run("next chunk is not requested while a part is in flight", func(t *testing.T) {
		fake := sdktest.NewService()
		client, _ := newTestClient(t, fake.Handler())

		src := &pacingSource{fake: fake, chunks: []string{"one", "two", "three", "four"}}
		if _, err := client.PutObjectChunks(context.Background(), testCredential(t), testPutParams("obj"), src); err != nil {
			t.Fatalf("PutObjectChunks() error = %v", err)
		}
		if src.overlaps != 0 {
			t.Errorf("source was read %d times while a part was uploading", src.overlaps)
		}
	})

	t.Run("observer sees every step", func(t *testing.T) {
		fake := sdktest.NewService()
		observer := &eventObserver{}
		client, _ := newTestClient(t, fake.Handler(), WithObserver(observer))

		if _, err := client.PutObjectChunks(context.Background(), testCredential(t), testPutParams("obj"),
			NewChanSource(chunkChan("abc", "de"))); err != nil {
			t.Fatalf("PutObjectChunks() error = %v", err)
		}

		want := []string{"opened:upload-1", "part:1:3:1", "part:2:2:2", "committed:done:5"}
		if strings.Join(observer.events, ",") != strings.Join(want, ",") {
			t.Errorf("events = %v, want %v", observer.events, want)
		}
	})
}

type pacingSource struct {
	fake     *sdktest.Service
	chunks   []string
	overlaps int
}

func (s *pacingSource) Next(context.Context) ([]byte, error) {
	if s.fake.PartsInFlight.Load() != 0 {
		s.overlaps++
	}
	if len(s.chunks) == 0 {
		return nil, io.EOF
	}
	chunk := s.chunks[0]
	s.chunks = s.chunks[1:]
	return []byte(chunk), nil
}

type failingSource struct {
	chunks []string
	err    error
}

func (s *failingSource) Next(context.Context) ([]byte, error) {
	if len(s.chunks) == 0 {
		return nil, s.err
	}
	chunk := s.chunks[0]
	s.chunks = s.chunks[1:]
	return []byte(chunk), nil
}

func TestPutObject(t *testing.T) {
	t.Run("reader is cut into parts of PartSize bytes", func(t *testing.T) {
		fake := sdktest.NewService()
		client, _ := newTestClient(t, fake.Handler())

		params := testPutParams("dir/file.bin")
		params.PartSize = 4
		params.ContentType.SetValid("application/zip")

		result, err := client.PutObject(context.Background(), testCredential(t), params, strings.NewReader("0123456789"))
		if err != nil {
			t.Fatalf("PutObject() error = %v", err)
		}

		var sizes []int
		for _, r := range sdktest.Filter(fake.Requests(), "PUT", "/u/dir%2Ffile.bin") {
			sizes = append(sizes, len(r.Body))
		}
		if fmt.Sprint(sizes) != "[4 4 2]" {
			t.Errorf("part sizes = %v, want [4 4 2]", sizes)
		}
		if result.ObjectName != "dir/file.bin" {
			t.Errorf("ObjectName = %q", result.ObjectName)
		}

		create := fake.Requests()[0]
		if !bytes.Contains(create.Body, []byte(`"contentType":"application/zip"`)) {
			t.Errorf("create body = %s, want contentType", create.Body)
		}
		if data, _ := fake.Object("dir/file.bin"); string(data) != "0123456789" {
			t.Errorf("stored object = %q", data)
		}
	})

	t.Run("empty source commits an empty part list", func(t *testing.T) {
		fake := sdktest.NewService()
		client, _ := newTestClient(t, fake.Handler())

		result, err := client.PutObject(context.Background(), testCredential(t), testPutParams("empty"), strings.NewReader(""))
		if err != nil {
			t.Fatalf("PutObject() error = %v", err)
		}
		if len(result.Parts) != 0 || result.Size != 0 {
			t.Errorf("result = %+v, want no parts", result)
		}

		commits := sdktest.Filter(fake.Requests(), "POST", "/u/empty")
		if len(commits) != 1 || string(commits[0].Body) != `{"partsToCommit":[]}` {
			t.Errorf("commit requests = %v", commits)
		}
	})

	t.Run("failed part stops the upload without commit", func(t *testing.T) {
		fake := sdktest.NewService()
		fake.FailPart = 2
		observer := &eventObserver{}
		client, _ := newTestClient(t, fake.Handler(), WithObserver(observer))

		params := testPutParams("obj")
		params.PartSize = 2
		_, err := client.PutObject(context.Background(), testCredential(t), params, strings.NewReader("aabbcc"))

		var perr *PartialUploadError
		if !errors.As(err, &perr) {
			t.Fatalf("error = %v, want *PartialUploadError", err)
		}
		if perr.UploadID != "upload-1" || perr.PartNumber != 2 || perr.Aborted {
			t.Errorf("PartialUploadError = %+v", perr)
		}
		var protoErr *ProtocolError
		if !errors.As(err, &protoErr) || protoErr.StatusCode != 500 {
			t.Errorf("error does not wrap the part failure: %v", err)
		}

		reqs := fake.Requests()
		if n := len(sdktest.Filter(reqs, "POST", "/u/obj")); n != 0 {
			t.Errorf("got %d commit requests, want none", n)
		}
		if n := len(sdktest.Filter(reqs, "PUT", "/u/obj")); n != 2 {
			t.Errorf("got %d part requests, want 2", n)
		}
		if fake.OpenUploads() != 1 {
			t.Error("session should be left open")
		}
		if got := observer.events[len(observer.events)-1]; got != "failed:failed" {
			t.Errorf("last event = %q", got)
		}
	})

	t.Run("failed part aborts the session when asked to", func(t *testing.T) {
		fake := sdktest.NewService()
		fake.FailPart = 1
		client, _ := newTestClient(t, fake.Handler())

		params := testPutParams("obj")
		params.AbortOnFailure = true
		_, err := client.PutObject(context.Background(), testCredential(t), params, strings.NewReader("data"))

		var perr *PartialUploadError
		if !errors.As(err, &perr) {
			t.Fatalf("error = %v, want *PartialUploadError", err)
		}
		if !perr.Aborted {
			t.Error("Aborted = false, want true")
		}
		aborts := sdktest.Filter(fake.Requests(), "DELETE", "/u/obj")
		if len(aborts) != 1 || aborts[0].Query["uploadId"] != "upload-1" {
			t.Errorf("abort requests = %v", aborts)
		}
		if fake.OpenUploads() != 0 {
			t.Error("session should be gone")
		}
	})

	t.Run("source error fails the upload", func(t *testing.T) {
		fake := sdktest.NewService()
		client, _ := newTestClient(t, fake.Handler())

		srcErr := errors.New("disk on fire")
		_, err := client.PutObjectChunks(context.Background(), testCredential(t), testPutParams("obj"),
			&failingSource{chunks: []string{"abc"}, err: srcErr})

		var perr *PartialUploadError
		if !errors.As(err, &perr) || perr.PartNumber != 0 {
			t.Fatalf("error = %v, want *PartialUploadError outside a part", err)
		}
		if !errors.Is(err, srcErr) {
			t.Errorf("error does not wrap the source error: %v", err)
		}
		if n := len(sdktest.Filter(fake.Requests(), "POST", "/u/obj")); n != 0 {
			t.Errorf("got %d commit requests, want none", n)
		}
	})

	t.Run("session creation failure is returned as is", func(t *testing.T) {
		fake := sdktest.NewService()
		fake.FailCreate = true
		client, _ := newTestClient(t, fake.Handler())

		_, err := client.PutObject(context.Background(), testCredential(t), testPutParams("obj"), strings.NewReader("data"))

		var perr *PartialUploadError
		if errors.As(err, &perr) {
			t.Fatalf("error = %v, session was never opened", err)
		}
		var protoErr *ProtocolError
		if !errors.As(err, &protoErr) || protoErr.ServiceError.ErrCode != "InternalError" {
			t.Errorf("error = %v, want ProtocolError", err)
		}
		if len(fake.Requests()) != 1 {
			t.Errorf("got %d requests, want 1", len(fake.Requests()))
		}
	})

	t.Run("invalid params are rejected before any call", func(t *testing.T) {
		fake := sdktest.NewService()
		client, _ := newTestClient(t, fake.Handler())

		params := testPutParams("obj")
		params.BucketName = ""
		_, err := client.PutObject(context.Background(), testCredential(t), params, strings.NewReader("data"))

		var verr model.Error
		if !errors.As(err, &verr) || verr.Code() != model.ErrValidation.Code() {
			t.Errorf("error = %v, want validation error", err)
		}
		if len(fake.Requests()) != 0 {
			t.Errorf("got %d requests, want none", len(fake.Requests()))
		}
	})
}

func TestUploadChunkPartLimit(t *testing.T) {
	u := &upload{session: UploadSession{NextPartNumber: MaxParts + 1}}
	err := u.uploadChunk(context.Background(), []byte("x"))
	if !errors.Is(err, ErrTooManyParts) {
		t.Errorf("uploadChunk() error = %v, want ErrTooManyParts", err)
	}
	if u.failedPart != MaxParts+1 {
		t.Errorf("failedPart = %d", u.failedPart)
	}
}

func TestReaderSource(t *testing.T) {
	src := NewReaderSource(strings.NewReader("abcdefg"), 3)

	var chunks [][]byte
	for {
		chunk, err := src.Next(context.Background())
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			t.Fatalf("Next() error = %v", err)
		}
		chunks = append(chunks, chunk)
	}

	// Earlier chunks must survive later reads untouched.
	got := make([]string, len(chunks))
	for i, chunk := range chunks {
		got[i] = string(chunk)
	}
	if strings.Join(got, "|") != "abc|def|g" {
		t.Errorf("chunks = %v", got)
	}
}

func TestUploadStateString(t *testing.T) {
	tests := map[UploadState]string{
		StateIdle:           "idle",
		StateSessionOpening: "session_opening",
		StateSessionOpen:    "session_open",
		StatePartUploading:  "part_uploading",
		StateCommitting:     "committing",
		StateDone:           "done",
		StateFailed:         "failed",
		UploadState(42):     "unknown",
	}
	for state, want := range tests {
		if got := state.String(); got != want {
			t.Errorf("%d.String() = %q, want %q", int(state), got, want)
		}
	}
}
