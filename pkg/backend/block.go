package backend

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/xml"
	"io"
	"net/http"
	"net/url"
	"strings"

	// Packages
	tablestore "github.com/mutablelogic/go-tablestore"
	schema "github.com/mutablelogic/go-tablestore/pkg/schema"
	transport "github.com/mutablelogic/go-tablestore/pkg/transport"
)

////////////////////////////////////////////////////////////////////////////////
// TYPES

// blockbackend uploads to a block blob container addressed by a URL with a
// shared access signature. Parts are put as uncommitted blocks and committed
// as a block list.
type blockbackend struct {
	*opt
	container *url.URL
	client    *http.Client
}

type blockupload struct {
	backend *blockbackend
	key     string
}

type blockList struct {
	XMLName xml.Name `xml:"BlockList"`
	Latest  []string `xml:"Latest"`
}

var _ Backend = (*blockbackend)(nil)
var _ tablestore.Upload = (*blockupload)(nil)

////////////////////////////////////////////////////////////////////////////////
// GLOBALS

const (
	blockAPIVersion = "2021-08-06"
	headerVersion   = "x-ms-version"
	headerBlobType  = "x-ms-blob-type"
	headerVersionID = "x-ms-version-id"
)

////////////////////////////////////////////////////////////////////////////////
// LIFECYCLE

// NewBlockBackend returns a backend for a container URL, which carries the
// shared access signature as its query
func NewBlockBackend(containerURL string, opts ...Opt) (*blockbackend, error) {
	self := new(blockbackend)
	if u, err := url.Parse(containerURL); err != nil {
		return nil, tablestore.ErrPermanentRequest.Withf("invalid container url: %v", err)
	} else if u.Scheme != "http" && u.Scheme != "https" {
		return nil, tablestore.ErrPermanentRequest.Withf("container url must be http:// or https://, got %q", u.Scheme)
	} else if strings.Trim(u.Path, "/") == "" {
		return nil, tablestore.ErrPermanentRequest.With("container url has no container")
	} else if opt, err := apply(nil, opts...); err != nil {
		return nil, err
	} else {
		u.Path = "/" + strings.Trim(u.Path, "/")
		u.RawPath = ""
		self.container = u
		self.opt = opt
	}

	// HTTP client
	if client, err := self.httpClient(nil); err != nil {
		return nil, err
	} else {
		self.client = client
	}

	// Return success
	return self, nil
}

// Close the backend
func (b *blockbackend) Close() error {
	return nil
}

////////////////////////////////////////////////////////////////////////////////
// PUBLIC METHODS

// URL returns the location of a blob without the shared access signature
func (b *blockbackend) URL(key string) string {
	u := b.blobURL(key, nil)
	u.RawQuery = ""
	return u.String()
}

// Fetch returns the content of a blob in the container, adding the shared
// access signature to the URL
func (b *blockbackend) Fetch(ctx context.Context, u string) (io.ReadCloser, error) {
	key, ok := strings.CutPrefix(u, b.URL(""))
	if !ok || key == "" {
		return nil, tablestore.ErrPermanentRequest.Withf("%q is not a blob of the container", u)
	}
	req, err := b.request(ctx, http.MethodGet, key, nil, nil, 0)
	if err != nil {
		return nil, err
	}
	resp, err := transport.Do(b.client, req)
	if err != nil {
		return nil, err
	}
	return resp.Body, nil
}

// PutObject writes a block blob in a single request
func (b *blockbackend) PutObject(ctx context.Context, key string, r io.Reader, size int64) (*schema.Version, error) {
	body, ok := r.(io.ReadSeeker)
	if !ok {
		data, err := io.ReadAll(io.LimitReader(r, size))
		if err != nil {
			return nil, err
		}
		body = bytes.NewReader(data)
	}
	req, err := b.request(ctx, http.MethodPut, key, nil, body, size)
	if err != nil {
		return nil, err
	}
	req.Header.Set(headerBlobType, "BlockBlob")
	resp, err := transport.Do(b.client, req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	return &schema.Version{
		Key:       key,
		ETag:      resp.Header.Get("ETag"),
		VersionID: resp.Header.Get(headerVersionID),
		Size:      size,
	}, nil
}

// Begin starts a chunked upload. Nothing is sent until a block is put.
func (b *blockbackend) Begin(ctx context.Context, key string) (tablestore.Upload, error) {
	if strings.Trim(key, "/") == "" {
		return nil, tablestore.ErrPermanentRequest.With("key is required")
	}
	return &blockupload{backend: b, key: key}, nil
}

// PutPart puts a part as an uncommitted block, with the part id as block id
func (u *blockupload) PutPart(ctx context.Context, part schema.Part, r io.ReadSeeker) (schema.PartHandle, error) {
	id := blockID(part.Number)
	req, err := u.backend.request(ctx, http.MethodPut, u.key, url.Values{
		"comp":    {"block"},
		"blockid": {id},
	}, r, part.Size)
	if err != nil {
		return schema.PartHandle{}, err
	}
	resp, err := transport.Do(u.backend.client, req)
	if err != nil {
		return schema.PartHandle{}, err
	}
	resp.Body.Close()
	return schema.PartHandle{Number: part.Number, ETag: id, Size: part.Size}, nil
}

// Commit puts the block list in the order given
func (u *blockupload) Commit(ctx context.Context, parts []schema.PartHandle) (_ *schema.Version, err error) {
	if len(parts) == 0 {
		return nil, tablestore.ErrUnsupportedEmptyChunkedUpload.With(u.key)
	}

	// OTEL span
	ctx, endFunc := u.backend.span(ctx, "Commit")
	defer func() { endFunc(err) }()

	// Block list in part order
	var size int64
	list := blockList{Latest: make([]string, 0, len(parts))}
	for _, part := range parts {
		list.Latest = append(list.Latest, blockID(part.Number))
		size += part.Size
	}
	data, err := xml.Marshal(list)
	if err != nil {
		return nil, err
	}
	data = append([]byte(xml.Header), data...)

	// Put the block list
	req, err := u.backend.request(ctx, http.MethodPut, u.key, url.Values{
		"comp": {"blocklist"},
	}, bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/xml")
	resp, err := transport.Do(u.backend.client, req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	return &schema.Version{
		Key:       u.key,
		ETag:      resp.Header.Get("ETag"),
		VersionID: resp.Header.Get(headerVersionID),
		Size:      size,
		Parts:     len(parts),
	}, nil
}

// Abort does nothing: uncommitted blocks are discarded by the service when
// they are not committed within a week
func (u *blockupload) Abort(ctx context.Context) error {
	return nil
}

////////////////////////////////////////////////////////////////////////////////
// PRIVATE METHODS

// blobURL returns the URL of a blob with the shared access signature and
// the query parameters in params
func (b *blockbackend) blobURL(key string, params url.Values) *url.URL {
	u := *b.container
	if key = strings.TrimPrefix(key, "/"); key != "" {
		u.Path = u.Path + "/" + key
	} else {
		u.Path = u.Path + "/"
	}
	if len(params) > 0 {
		q := u.Query()
		for k, v := range params {
			q[k] = v
		}
		u.RawQuery = q.Encode()
	}
	return &u
}

// request returns a request for a blob. Each attempt of the retrying
// transport reads the body from its own section of the reader, so an
// abandoned attempt cannot move the offset of the next.
func (b *blockbackend) request(ctx context.Context, method, key string, params url.Values, body io.ReadSeeker, size int64) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, b.blobURL(key, params).String(), nil)
	if err != nil {
		return nil, tablestore.ErrPermanentRequest.Withf("%s %q: %v", method, key, err)
	}
	req.Header.Set(headerVersion, blockAPIVersion)
	if body == nil {
		return req, nil
	} else if size == 0 {
		req.Body, req.ContentLength = http.NoBody, 0
		return req, nil
	}

	// Take the body from the current offset
	section, err := sectionOf(body, size)
	if err != nil {
		return nil, err
	}
	req.ContentLength = size
	req.Body = io.NopCloser(io.NewSectionReader(section, 0, size))
	req.GetBody = func() (io.ReadCloser, error) {
		return io.NopCloser(io.NewSectionReader(section, 0, size)), nil
	}
	return req, nil
}

// sectionOf returns size bytes of r from its current offset. Readers which
// cannot read at an offset are read into memory.
func sectionOf(r io.ReadSeeker, size int64) (*io.SectionReader, error) {
	start, err := r.Seek(0, io.SeekCurrent)
	if err != nil {
		return nil, err
	}
	if ra, ok := r.(io.ReaderAt); ok {
		return io.NewSectionReader(ra, start, size), nil
	}
	data := make([]byte, size)
	if _, err := io.ReadFull(r, data); err != nil {
		return nil, err
	}
	return io.NewSectionReader(bytes.NewReader(data), 0, size), nil
}

// blockID returns the block id of a part. All block ids of a blob need the
// same length.
func blockID(number int) string {
	return base64.StdEncoding.EncodeToString([]byte(schema.PartID(number)))
}
