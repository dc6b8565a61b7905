package backend

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"path"
	"strings"
	"syscall"

	// Packages
	sdkaws "github.com/aws/aws-sdk-go-v2/aws"
	types "github.com/mutablelogic/go-server/pkg/types"
	tablestore "github.com/mutablelogic/go-tablestore"
	schema "github.com/mutablelogic/go-tablestore/pkg/schema"
	blob "gocloud.dev/blob"
	s3blob "gocloud.dev/blob/s3blob"
	gcerrors "gocloud.dev/gcerrors"

	// Drivers
	_ "gocloud.dev/blob/fileblob" // file:// URLs
	_ "gocloud.dev/blob/memblob"  // mem:// URLs
)

////////////////////////////////////////////////////////////////////////////////
// TYPES

type blobbackend struct {
	*opt
	bucket       *blob.Bucket
	base         string // URL of the backend root, without query
	bucketPrefix string // key prefix for bucket operations (empty for file://)
}

var _ Backend = (*blobbackend)(nil)

////////////////////////////////////////////////////////////////////////////////
// GLOBALS

const (
	// Parts are staged under the object key with this suffix
	partsSuffix = ".parts"
)

////////////////////////////////////////////////////////////////////////////////
// LIFECYCLE

// NewBlobBackend creates a new blob backend using Go CDK.
// Supported URL schemes: s3://, file://, mem://
// Examples:
//   - "s3://my-bucket/prefix?region=us-east-1"
//   - "file://name/path/to/directory"
//   - "mem://name"
//
// Parts of a chunked upload are staged as objects next to the destination
// and concatenated on commit. For S3 URLs, you can optionally provide an
// aws.Config via WithAWSConfig() for full control over AWS SDK configuration.
func NewBlobBackend(ctx context.Context, u string, opts ...Opt) (*blobbackend, error) {
	self := new(blobbackend)

	// Set the options
	if url, err := url.Parse(u); err != nil {
		return nil, err
	} else if opt, err := apply(url, opts...); err != nil {
		return nil, err
	} else {
		self.opt = opt
	}

	// Validate the backend name (URL host) is a valid identifier
	if !types.IsIdentifier(self.url.Host) && self.url.Scheme != "s3" {
		return nil, fmt.Errorf("backend name %q must be a valid identifier (letter, digits, underscores, hyphens; max 64 chars)", self.url.Host)
	}

	// For s3/mem: the path is a key prefix (bucket opens at host level).
	// For file://: path is the bucket root directory.
	prefix := strings.Trim(self.url.Path, "/")
	if self.url.Scheme != "file" && prefix != "" {
		self.bucketPrefix = prefix + "/"
	}
	base := url.URL{Scheme: self.url.Scheme, Host: self.url.Host, Path: "/" + prefix}
	self.base = strings.TrimSuffix(base.String(), "/") + "/"

	// Open the bucket
	var bucket *blob.Bucket
	var err error

	if self.url.Scheme == "s3" {
		// Open S3 buckets with a client which retries through the transport.
		// Options not set are taken from the URL query.
		query := self.url.Query()
		if self.region == "" {
			self.region = query.Get("region")
		}
		if self.endpoint == "" {
			self.endpoint = query.Get("endpoint")
		}
		if query.Get("anonymous") == "true" {
			self.anonymous = true
		}
		if client, err := self.s3Client(ctx); err != nil {
			return nil, err
		} else if bucket, err = s3blob.OpenBucket(ctx, client, self.url.Host, &s3blob.Options{
			RequestChecksumCalculation: sdkaws.RequestChecksumCalculationWhenRequired,
		}); err != nil {
			return nil, fmt.Errorf("failed to open bucket: %w", err)
		}
	} else if self.url.Scheme == "file" {
		// For file:// the path is the bucket root dir - open using just the path
		openURL := &url.URL{Scheme: "file", Path: self.url.Path, RawQuery: self.url.RawQuery}
		bucket, err = blob.OpenBucket(ctx, openURL.String())
	} else {
		// For mem: open at root (strip path) to avoid PrefixedBucket
		openURL := *self.url
		openURL.Path = ""
		openURL.RawPath = ""
		bucket, err = blob.OpenBucket(ctx, openURL.String())
	}

	if err != nil {
		return nil, fmt.Errorf("failed to open bucket: %w", err)
	}
	self.bucket = bucket

	return self, nil
}

// NewFileBackend creates a file-based backend with a logical name.
// name must be a valid identifier (see types.IsIdentifier): starts with a
// letter, contains only letters, digits, underscores, or hyphens, max 64 chars.
// dir must be an absolute path; if it doesn't start with "/" an error is returned.
func NewFileBackend(ctx context.Context, name, dir string, opts ...Opt) (*blobbackend, error) {
	if !path.IsAbs(dir) {
		return nil, fmt.Errorf("backend dir %q must be an absolute path", dir)
	}
	return NewBlobBackend(ctx, "file://"+name+path.Clean(dir), opts...)
}

// Close the backend
func (b *blobbackend) Close() error {
	var result error
	if b.bucket != nil {
		result = errors.Join(result, b.bucket.Close())
		b.bucket = nil
	}

	// Return any errors
	return result
}

////////////////////////////////////////////////////////////////////////////////
// PUBLIC METHODS

// URL returns the location of an object, which Fetch understands
func (b *blobbackend) URL(key string) string {
	return b.base + strings.TrimPrefix(key, "/")
}

// Fetch returns the content of an object of this backend by URL
func (b *blobbackend) Fetch(ctx context.Context, url string) (io.ReadCloser, error) {
	key, ok := strings.CutPrefix(url, b.base)
	if !ok || key == "" {
		return nil, tablestore.ErrPermanentRequest.Withf("%q is not an object of %q", url, b.base)
	}
	r, err := b.bucket.NewReader(ctx, b.storageKey(key), nil)
	if err != nil {
		return nil, blobErr(err, url)
	}
	return r, nil
}

// PutObject writes an object in a single request
func (b *blobbackend) PutObject(ctx context.Context, key string, r io.Reader, size int64) (*schema.Version, error) {
	sk := b.storageKey(key)
	if err := b.write(ctx, sk, r); err != nil {
		return nil, blobErr(err, b.URL(key))
	}
	return b.version(ctx, key, 0)
}

// Begin starts a chunked upload. Nothing is written until a part is put.
func (b *blobbackend) Begin(ctx context.Context, key string) (tablestore.Upload, error) {
	if strings.Trim(key, "/") == "" {
		return nil, tablestore.ErrPermanentRequest.With("key is required")
	}
	return newBlobUpload(b, key), nil
}

////////////////////////////////////////////////////////////////////////////////
// PRIVATE METHODS

// storageKey returns the blob storage key for a key, prepending the bucket
// prefix (for s3/mem where the bucket opens at the host level).
func (b *blobbackend) storageKey(key string) string {
	return b.bucketPrefix + strings.TrimPrefix(key, "/")
}

// write copies r to the object, which is deleted again on failure
func (b *blobbackend) write(ctx context.Context, sk string, r io.Reader) error {
	w, err := b.bucket.NewWriter(ctx, sk, nil)
	if err != nil {
		return err
	}
	if _, err := io.Copy(w, r); err != nil {
		err = errors.Join(err, w.Close())
		b.bucket.Delete(context.WithoutCancel(ctx), sk)
		return err
	}
	return w.Close()
}

// version returns the version of a written object
func (b *blobbackend) version(ctx context.Context, key string, parts int) (*schema.Version, error) {
	attrs, err := b.bucket.Attributes(ctx, b.storageKey(key))
	if err != nil {
		return nil, blobErr(err, b.URL(key))
	}
	return &schema.Version{
		Key:   key,
		ETag:  attrs.ETag,
		Size:  attrs.Size,
		Parts: parts,
	}, nil
}

// blobErr wraps a go-cloud blob error with the matching error kind
func blobErr(err error, url string) error {
	if err == nil {
		return nil
	}
	// Check for OS-level errors before go-cloud classification, since the
	// gcerrors default path wraps with %v and breaks the chain.
	if errors.Is(err, syscall.EISDIR) || errors.Is(err, syscall.EEXIST) {
		return tablestore.ErrPermanentRequest.Withf("cannot overwrite directory with file: %q", url)
	}
	switch gcerrors.Code(err) {
	case gcerrors.NotFound:
		return tablestore.ErrNotFound.Withf("object %q not found", url)
	case gcerrors.Canceled:
		return context.Canceled
	case gcerrors.DeadlineExceeded:
		return context.DeadlineExceeded
	case gcerrors.PermissionDenied, gcerrors.InvalidArgument, gcerrors.FailedPrecondition, gcerrors.AlreadyExists, gcerrors.Unimplemented:
		return tablestore.ErrPermanentRequest.Withf("%q: %v", url, err)
	default:
		return tablestore.ErrTransientTransport.Withf("blob operation failed for %q: %v", url, err)
	}
}
