// Package s3test implements an in-memory S3-compatible server for tests. It
// serves path-style requests for object and multipart upload operations.
package s3test

import (
	"crypto/md5"
	"encoding/hex"
	"encoding/pem"
	"encoding/xml"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"

	// Packages
	uuid "github.com/google/uuid"
)

////////////////////////////////////////////////////////////////////////////////
// TYPES

// Server is an S3-compatible test server
type Server struct {
	*httptest.Server
	sync.Mutex

	// Fail, when set, is called before each request. A non-zero status code
	// is returned to the client instead of serving the request.
	Fail func(r *http.Request) int

	objects  map[string][]byte
	uploads  map[string]map[int32][]byte
	requests map[string]int
}

type completeRequest struct {
	Parts []struct {
		PartNumber int32  `xml:"PartNumber"`
		ETag       string `xml:"ETag"`
	} `xml:"Part"`
}

type initiateResult struct {
	XMLName  xml.Name `xml:"InitiateMultipartUploadResult"`
	Bucket   string   `xml:"Bucket"`
	Key      string   `xml:"Key"`
	UploadId string   `xml:"UploadId"`
}

type completeResult struct {
	XMLName xml.Name `xml:"CompleteMultipartUploadResult"`
	Bucket  string   `xml:"Bucket"`
	Key     string   `xml:"Key"`
	ETag    string   `xml:"ETag"`
}

type errorResult struct {
	XMLName xml.Name `xml:"Error"`
	Code    string   `xml:"Code"`
	Message string   `xml:"Message"`
}

////////////////////////////////////////////////////////////////////////////////
// LIFECYCLE

// New starts a server. Close it when done.
func New() *Server {
	server := &Server{
		objects:  make(map[string][]byte),
		uploads:  make(map[string]map[int32][]byte),
		requests: make(map[string]int),
	}
	server.Server = httptest.NewServer(server)
	return server
}

// NewTLS starts a server which serves HTTPS with a self-signed certificate.
// Close it when done.
func NewTLS() *Server {
	server := &Server{
		objects:  make(map[string][]byte),
		uploads:  make(map[string]map[int32][]byte),
		requests: make(map[string]int),
	}
	server.Server = httptest.NewTLSServer(server)
	return server
}

// CertificatePEM returns the certificate of a TLS server in PEM encoding
func (server *Server) CertificatePEM() []byte {
	cert := server.Certificate()
	if cert == nil {
		return nil
	}
	return pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: cert.Raw})
}

////////////////////////////////////////////////////////////////////////////////
// PUBLIC METHODS

// Object returns the content of an object as bucket/key
func (server *Server) Object(path string) ([]byte, bool) {
	server.Lock()
	defer server.Unlock()
	data, exists := server.objects[path]
	return data, exists
}

// Uploads returns the number of multipart uploads in progress
func (server *Server) Uploads() int {
	server.Lock()
	defer server.Unlock()
	return len(server.uploads)
}

// Requests returns the number of requests served for an operation, such as
// "UploadPart"
func (server *Server) Requests(op string) int {
	server.Lock()
	defer server.Unlock()
	return server.requests[op]
}

func (server *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/")
	query := r.URL.Query()
	op := operation(r.Method, query)

	server.Lock()
	server.requests[op]++
	server.Unlock()

	if server.Fail != nil {
		if code := server.Fail(r); code != 0 {
			writeError(w, code, "InternalError", "injected failure")
			return
		}
	}
	if !strings.Contains(path, "/") {
		writeError(w, http.StatusBadRequest, "InvalidRequest", "path-style bucket and key are required")
		return
	}

	switch op {
	case "CreateMultipartUpload":
		server.create(w, path)
	case "UploadPart":
		server.uploadPart(w, r, query.Get("uploadId"), query.Get("partNumber"))
	case "CompleteMultipartUpload":
		server.complete(w, r, path, query.Get("uploadId"))
	case "AbortMultipartUpload":
		server.abort(w, query.Get("uploadId"))
	case "PutObject":
		server.put(w, r, path)
	case "GetObject":
		server.get(w, path)
	default:
		writeError(w, http.StatusNotImplemented, "NotImplemented", op)
	}
}

////////////////////////////////////////////////////////////////////////////////
// PRIVATE METHODS

func operation(method string, query map[string][]string) string {
	_, uploads := query["uploads"]
	_, uploadId := query["uploadId"]
	_, partNumber := query["partNumber"]
	switch {
	case method == http.MethodPost && uploads:
		return "CreateMultipartUpload"
	case method == http.MethodPut && uploadId && partNumber:
		return "UploadPart"
	case method == http.MethodPost && uploadId:
		return "CompleteMultipartUpload"
	case method == http.MethodDelete && uploadId:
		return "AbortMultipartUpload"
	case method == http.MethodPut:
		return "PutObject"
	case method == http.MethodGet || method == http.MethodHead:
		return "GetObject"
	default:
		return method
	}
}

func (server *Server) create(w http.ResponseWriter, path string) {
	id := uuid.NewString()
	server.Lock()
	server.uploads[id] = make(map[int32][]byte)
	server.Unlock()

	bucket, key, _ := strings.Cut(path, "/")
	writeXML(w, initiateResult{Bucket: bucket, Key: key, UploadId: id})
}

func (server *Server) uploadPart(w http.ResponseWriter, r *http.Request, id, number string) {
	n, err := strconv.ParseInt(number, 10, 32)
	if err != nil || n < 1 {
		writeError(w, http.StatusBadRequest, "InvalidArgument", "invalid part number")
		return
	}
	data, err := io.ReadAll(r.Body)
	if err != nil {
		writeError(w, http.StatusBadRequest, "IncompleteBody", err.Error())
		return
	}

	server.Lock()
	defer server.Unlock()
	parts, exists := server.uploads[id]
	if !exists {
		writeError(w, http.StatusNotFound, "NoSuchUpload", id)
		return
	}
	parts[int32(n)] = data
	w.Header().Set("ETag", etag(data))
	w.WriteHeader(http.StatusOK)
}

func (server *Server) complete(w http.ResponseWriter, r *http.Request, path, id string) {
	var req completeRequest
	if err := xml.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "MalformedXML", err.Error())
		return
	}

	server.Lock()
	defer server.Unlock()
	parts, exists := server.uploads[id]
	if !exists {
		writeError(w, http.StatusNotFound, "NoSuchUpload", id)
		return
	}

	// Parts are listed in ascending order and must have been uploaded
	var data []byte
	var last int32
	for _, part := range req.Parts {
		content, exists := parts[part.PartNumber]
		if !exists || part.ETag != etag(content) {
			writeError(w, http.StatusBadRequest, "InvalidPart", fmt.Sprint(part.PartNumber))
			return
		} else if part.PartNumber <= last {
			writeError(w, http.StatusBadRequest, "InvalidPartOrder", fmt.Sprint(part.PartNumber))
			return
		}
		last = part.PartNumber
		data = append(data, content...)
	}
	server.objects[path] = data
	delete(server.uploads, id)

	bucket, key, _ := strings.Cut(path, "/")
	writeXML(w, completeResult{Bucket: bucket, Key: key, ETag: etag(data)})
}

func (server *Server) abort(w http.ResponseWriter, id string) {
	server.Lock()
	defer server.Unlock()
	if _, exists := server.uploads[id]; !exists {
		writeError(w, http.StatusNotFound, "NoSuchUpload", id)
		return
	}
	delete(server.uploads, id)
	w.WriteHeader(http.StatusNoContent)
}

func (server *Server) put(w http.ResponseWriter, r *http.Request, path string) {
	data, err := io.ReadAll(r.Body)
	if err != nil {
		writeError(w, http.StatusBadRequest, "IncompleteBody", err.Error())
		return
	}
	server.Lock()
	server.objects[path] = data
	server.Unlock()
	w.Header().Set("ETag", etag(data))
	w.WriteHeader(http.StatusOK)
}

func (server *Server) get(w http.ResponseWriter, path string) {
	data, exists := server.Object(path)
	if !exists {
		writeError(w, http.StatusNotFound, "NoSuchKey", "The specified key does not exist.")
		return
	}
	w.Header().Set("ETag", etag(data))
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	w.WriteHeader(http.StatusOK)
	w.Write(data)
}


func etag(data []byte) string {
	sum := md5.Sum(data)
	return `"` + hex.EncodeToString(sum[:]) + `"`
}

func writeXML(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/xml")
	w.WriteHeader(http.StatusOK)
	io.WriteString(w, xml.Header)
	xml.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, errcode, message string) {
	w.Header().Set("Content-Type", "application/xml")
	w.WriteHeader(code)
	io.WriteString(w, xml.Header)
	xml.NewEncoder(w).Encode(errorResult{Code: errcode, Message: message})
}
