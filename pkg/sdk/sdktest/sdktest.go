// Package sdktest provides an in-memory object storage service for tests of
// code built on the sdk client.
package sdktest

import (
	"bytes"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/bytedance/sonic"
)

// Request is a request as received by the Service.
type Request struct {
	Method     string
	Path       string
	Query      map[string]string
	RequestURI string
	Host       string
	Header     http.Header
	Body       []byte
	Length     int64
}

func record(r *http.Request) Request {
	body, _ := io.ReadAll(r.Body)
	query := map[string]string{}
	for k := range r.URL.Query() {
		query[k] = r.URL.Query().Get(k)
	}
	return Request{
		Method:     r.Method,
		Path:       r.URL.EscapedPath(),
		Query:      query,
		RequestURI: r.RequestURI,
		Host:       r.Host,
		Header:     r.Header.Clone(),
		Body:       body,
		Length:     r.ContentLength,
	}
}

type upload struct {
	object string
	parts  map[int][]byte
}

// Service is an in-memory object storage service speaking the REST dialect
// of the sdk client. Serve its Handler over TLS and point the client at it.
type Service struct {
	mu       sync.Mutex
	requests []Request
	objects  map[string][]byte
	uploads  map[string]*upload
	nextID   int

	// FailPart makes the given part number fail with a 500.
	FailPart int
	// FailCreate makes session creation fail with a 500.
	FailCreate bool
	// PartsInFlight counts part uploads being handled.
	PartsInFlight atomic.Int32
}

func NewService() *Service {
	return &Service{
		objects: map[string][]byte{},
		uploads: map[string]*upload{},
	}
}

func (f *Service) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /n/{ns}/b/{bucket}/o/{object}", f.getObject)
	mux.HandleFunc("DELETE /n/{ns}/b/{bucket}/o/{object}", f.deleteObject)
	mux.HandleFunc("POST /n/{ns}/b/{bucket}/u", f.createUpload)
	mux.HandleFunc("PUT /n/{ns}/b/{bucket}/u/{object}", f.uploadPart)
	mux.HandleFunc("POST /n/{ns}/b/{bucket}/u/{object}", f.commitUpload)
	mux.HandleFunc("DELETE /n/{ns}/b/{bucket}/u/{object}", f.abortUpload)
	return mux
}

func (f *Service) Requests() []Request {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Request(nil), f.requests...)
}

func (f *Service) Object(name string) ([]byte, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	data, ok := f.objects[name]
	return data, ok
}

func (f *Service) PutObject(name string, data []byte) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.objects[name] = data
}

func (f *Service) OpenUploads() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.uploads)
}

func (f *Service) track(r *http.Request) Request {
	rec := record(r)
	f.mu.Lock()
	f.requests = append(f.requests, rec)
	f.mu.Unlock()
	return rec
}

// WriteError writes an error body the way the service does.
func WriteError(w http.ResponseWriter, status int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("opc-request-id", "req-"+code)
	w.WriteHeader(status)
	fmt.Fprintf(w, `{"code":%q,"message":%q}`, code, message)
}

func (f *Service) getObject(w http.ResponseWriter, r *http.Request) {
	f.track(r)
	data, ok := f.Object(r.PathValue("object"))
	if !ok {
		WriteError(w, http.StatusNotFound, "ObjectNotFound", "The object does not exist")
		return
	}
	w.Header().Set("Content-Type", "application/octet-stream")
	w.Header().Set("ETag", "object-etag")
	w.Header().Set("opc-request-id", "req-get")
	w.Write(data)
}

func (f *Service) deleteObject(w http.ResponseWriter, r *http.Request) {
	f.track(r)
	name := r.PathValue("object")
	if _, ok := f.Object(name); !ok {
		WriteError(w, http.StatusNotFound, "ObjectNotFound", "The object does not exist")
		return
	}
	f.mu.Lock()
	delete(f.objects, name)
	f.mu.Unlock()
	w.WriteHeader(http.StatusNoContent)
}

func (f *Service) createUpload(w http.ResponseWriter, r *http.Request) {
	rec := f.track(r)
	if f.FailCreate {
		WriteError(w, http.StatusInternalServerError, "InternalError", "create failed")
		return
	}

	var details struct {
		Object string `json:"object"`
	}
	if err := sonic.Unmarshal(rec.Body, &details); err != nil || details.Object == "" {
		WriteError(w, http.StatusBadRequest, "InvalidParameter", "object is required")
		return
	}

	f.mu.Lock()
	f.nextID++
	id := "upload-" + strconv.Itoa(f.nextID)
	f.uploads[id] = &upload{object: details.Object, parts: map[int][]byte{}}
	f.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	sonic.ConfigDefault.NewEncoder(w).Encode(map[string]string{
		"namespace": r.PathValue("ns"),
		"bucket":    r.PathValue("bucket"),
		"object":    details.Object,
		"uploadId":  id,
	})
}

func (f *Service) uploadPart(w http.ResponseWriter, r *http.Request) {
	f.PartsInFlight.Add(1)
	defer f.PartsInFlight.Add(-1)

	rec := f.track(r)
	partNum, _ := strconv.Atoi(rec.Query["uploadPartNum"])
	if partNum == f.FailPart {
		WriteError(w, http.StatusInternalServerError, "InternalError", "part failed")
		return
	}

	f.mu.Lock()
	upload, ok := f.uploads[rec.Query["uploadId"]]
	if ok {
		upload.parts[partNum] = rec.Body
	}
	f.mu.Unlock()
	if !ok {
		WriteError(w, http.StatusNotFound, "NoSuchUpload", "unknown upload")
		return
	}

	w.Header().Set("ETag", fmt.Sprintf("etag-%d-%d", partNum, len(rec.Body)))
	w.WriteHeader(http.StatusOK)
}

func (f *Service) commitUpload(w http.ResponseWriter, r *http.Request) {
	rec := f.track(r)
	var details struct {
		PartsToCommit []struct {
			PartNum int    `json:"partNum"`
			ETag    string `json:"etag"`
		} `json:"partsToCommit"`
	}
	if err := sonic.Unmarshal(rec.Body, &details); err != nil {
		WriteError(w, http.StatusBadRequest, "InvalidParameter", err.Error())
		return
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	id := rec.Query["uploadId"]
	upload, ok := f.uploads[id]
	if !ok {
		WriteError(w, http.StatusNotFound, "NoSuchUpload", "unknown upload")
		return
	}

	sort.Slice(details.PartsToCommit, func(i, j int) bool {
		return details.PartsToCommit[i].PartNum < details.PartsToCommit[j].PartNum
	})
	var buf bytes.Buffer
	for _, p := range details.PartsToCommit {
		buf.Write(upload.parts[p.PartNum])
	}
	f.objects[upload.object] = buf.Bytes()
	delete(f.uploads, id)

	w.Header().Set("ETag", "commit-etag")
	w.Header().Set("opc-multipart-md5", "md5-"+strconv.Itoa(len(details.PartsToCommit)))
	w.Header().Set("opc-request-id", "req-commit")
	w.WriteHeader(http.StatusOK)
}

func (f *Service) abortUpload(w http.ResponseWriter, r *http.Request) {
	rec := f.track(r)
	f.mu.Lock()
	delete(f.uploads, rec.Query["uploadId"])
	f.mu.Unlock()
	w.WriteHeader(http.StatusNoContent)
}

// Filter keeps the requests with the given method whose escaped path ends
// with suffix.
func Filter(reqs []Request, method, suffix string) []Request {
	var out []Request
	for _, r := range reqs {
		if r.Method == method && strings.HasSuffix(r.Path, suffix) {
			out = append(out, r)
		}
	}
	return out
}
