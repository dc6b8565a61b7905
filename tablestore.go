package tablestore

import (
	"context"
	"io"

	// Packages
	schema "github.com/mutablelogic/go-tablestore/pkg/schema"
)

////////////////////////////////////////////////////////////////////////////////
// INTERFACES

// Backend is a blob store which accepts objects either in a single shot or as
// a sequence of parts which are committed together.
type Backend interface {
	// Begin a chunked upload session for the object with the given key
	Begin(ctx context.Context, key string) (Upload, error)

	// PutObject uploads an object in a single request. This is the only path
	// for zero-byte objects.
	PutObject(ctx context.Context, key string, r io.Reader, size int64) (*schema.Version, error)

	// URL returns the location of the object with the given key, in a form
	// which a Fetcher for the same store understands
	URL(key string) string
}

// Upload is one chunked upload session for a single object
type Upload interface {
	// PutPart uploads the bytes of one part. Uploading a part with the same
	// number again replaces the earlier bytes.
	PutPart(ctx context.Context, part schema.Part, r io.ReadSeeker) (schema.PartHandle, error)

	// Commit assembles the parts in the order given and returns the object
	Commit(ctx context.Context, parts []schema.PartHandle) (*schema.Version, error)

	// Abort discards any staged parts
	Abort(ctx context.Context) error
}

// Fetcher retrieves a remote object by URL. A missing object is reported
// with ErrNotFound.
type Fetcher interface {
	Fetch(ctx context.Context, url string) (io.ReadCloser, error)
}

// Logger is the logging hook of the transport and the transfers. Every
// message has the context of the request it belongs to.
type Logger interface {
	Print(context.Context, ...any)
	Printf(context.Context, string, ...any)
}
