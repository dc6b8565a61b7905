package transfer_test

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"slices"
	"sync"
	"sync/atomic"

	// Packages
	tablestore "github.com/mutablelogic/go-tablestore"
	schema "github.com/mutablelogic/go-tablestore/pkg/schema"
)

////////////////////////////////////////////////////////////////////////////////
// TYPES

// memBackend is an in-memory backend which fails parts on request. Attempts
// are counted per key and part number, and fail is called with the part and
// its attempt counted from one.
type memBackend struct {
	sync.Mutex
	objects  map[string][]byte
	attempts map[string]int
	fail     func(schema.Part, int) error
	commits  map[string][]schema.PartHandle
	aborts   []string
	begins   []string
	inflight atomic.Int32
	peak     atomic.Int32
}

type memUpload struct {
	backend *memBackend
	key     string
	parts   map[int][]byte
}

var _ tablestore.Backend = (*memBackend)(nil)
var _ tablestore.Fetcher = (*memBackend)(nil)

////////////////////////////////////////////////////////////////////////////////
// LIFECYCLE

func newMemBackend(fail func(schema.Part, int) error) *memBackend {
	return &memBackend{
		objects:  make(map[string][]byte),
		attempts: make(map[string]int),
		commits:  make(map[string][]schema.PartHandle),
		fail:     fail,
	}
}

////////////////////////////////////////////////////////////////////////////////
// BACKEND

func (b *memBackend) Begin(ctx context.Context, key string) (tablestore.Upload, error) {
	b.Lock()
	defer b.Unlock()
	b.begins = append(b.begins, key)
	return &memUpload{backend: b, key: key, parts: make(map[int][]byte)}, nil
}

func (b *memBackend) PutObject(ctx context.Context, key string, r io.Reader, size int64) (*schema.Version, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	b.Lock()
	defer b.Unlock()
	b.objects[key] = data
	return &schema.Version{Key: key, Size: int64(len(data))}, nil
}

func (b *memBackend) URL(key string) string {
	return "mem://test/" + key
}

func (b *memBackend) Fetch(ctx context.Context, url string) (io.ReadCloser, error) {
	b.Lock()
	defer b.Unlock()
	for key, data := range b.objects {
		if b.URL(key) == url {
			return io.NopCloser(bytes.NewReader(data)), nil
		}
	}
	return nil, tablestore.ErrNotFound.With(url)
}

func (b *memBackend) Attempts(key string, number int) int {
	b.Lock()
	defer b.Unlock()
	return b.attempts[fmt.Sprint(key, "/", number)]
}

func (b *memBackend) Object(key string) ([]byte, bool) {
	b.Lock()
	defer b.Unlock()
	data, exists := b.objects[key]
	return data, exists
}

////////////////////////////////////////////////////////////////////////////////
// UPLOAD

func (u *memUpload) PutPart(ctx context.Context, part schema.Part, r io.ReadSeeker) (schema.PartHandle, error) {
	b := u.backend
	if n := b.inflight.Add(1); n > b.peak.Load() {
		b.peak.Store(n)
	}
	defer b.inflight.Add(-1)

	b.Lock()
	id := fmt.Sprint(part.Key, "/", part.Number)
	b.attempts[id]++
	attempt := b.attempts[id]
	b.Unlock()

	if b.fail != nil {
		if err := b.fail(part, attempt); err != nil {
			return schema.PartHandle{}, err
		}
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return schema.PartHandle{}, err
	}

	b.Lock()
	defer b.Unlock()
	u.parts[part.Number] = data
	return schema.PartHandle{Number: part.Number, ETag: fmt.Sprintf("etag-%d", part.Number), Size: int64(len(data))}, nil
}

func (u *memUpload) Commit(ctx context.Context, handles []schema.PartHandle) (*schema.Version, error) {
	b := u.backend
	b.Lock()
	defer b.Unlock()
	var data []byte
	for _, handle := range handles {
		data = append(data, u.parts[handle.Number]...)
	}
	b.objects[u.key] = data
	b.commits[u.key] = slices.Clone(handles)
	return &schema.Version{Key: u.key, Size: int64(len(data)), Parts: len(handles)}, nil
}

func (u *memUpload) Abort(ctx context.Context) error {
	b := u.backend
	b.Lock()
	defer b.Unlock()
	b.aborts = append(b.aborts, u.key)
	return ctx.Err()
}
