package backend

import (
	"context"
	"errors"
	"io"

	// Packages
	uuid "github.com/google/uuid"
	tablestore "github.com/mutablelogic/go-tablestore"
	schema "github.com/mutablelogic/go-tablestore/pkg/schema"
	blob "gocloud.dev/blob"
	gcerrors "gocloud.dev/gcerrors"
)

////////////////////////////////////////////////////////////////////////////////
// TYPES

// blobupload stages each part as an object under key.parts/<session>/ and
// concatenates them into the object on commit
type blobupload struct {
	backend *blobbackend
	key     string
	staging string // storage key prefix of the staged parts
}

var _ tablestore.Upload = (*blobupload)(nil)

////////////////////////////////////////////////////////////////////////////////
// LIFECYCLE

func newBlobUpload(backend *blobbackend, key string) *blobupload {
	return &blobupload{
		backend: backend,
		key:     key,
		staging: backend.storageKey(key) + partsSuffix + "/" + uuid.NewString() + "/",
	}
}

////////////////////////////////////////////////////////////////////////////////
// PUBLIC METHODS

// PutPart stages the bytes of a part, replacing any earlier bytes for the
// same part number
func (u *blobupload) PutPart(ctx context.Context, part schema.Part, r io.ReadSeeker) (schema.PartHandle, error) {
	sk := u.staging + part.ID()
	if err := u.backend.write(ctx, sk, io.LimitReader(r, part.Size)); err != nil {
		return schema.PartHandle{}, blobErr(err, u.backend.URL(u.key))
	}
	attrs, err := u.backend.bucket.Attributes(ctx, sk)
	if err != nil {
		return schema.PartHandle{}, blobErr(err, u.backend.URL(u.key))
	} else if attrs.Size != part.Size {
		return schema.PartHandle{}, tablestore.ErrTransientTransport.Withf("part %s of %q: wrote %d of %d bytes", part.ID(), u.key, attrs.Size, part.Size)
	}
	return schema.PartHandle{Number: part.Number, ETag: attrs.ETag, Size: attrs.Size}, nil
}

// Commit concatenates the staged parts in the order given into the object,
// then removes them
func (u *blobupload) Commit(ctx context.Context, parts []schema.PartHandle) (_ *schema.Version, err error) {
	if len(parts) == 0 {
		return nil, tablestore.ErrUnsupportedEmptyChunkedUpload.With(u.key)
	}

	// OTEL span
	ctx, endFunc := u.backend.span(ctx, "Commit")
	defer func() { endFunc(err) }()

	// Every part must be staged with the expected size
	bucket := u.backend.bucket
	for _, part := range parts {
		attrs, err := bucket.Attributes(ctx, u.staging+schema.PartID(part.Number))
		if gcerrors.Code(err) == gcerrors.NotFound {
			return nil, tablestore.ErrPermanentRequest.Withf("part %s of %q is not staged", schema.PartID(part.Number), u.key)
		} else if err != nil {
			return nil, blobErr(err, u.backend.URL(u.key))
		} else if part.Size != 0 && attrs.Size != part.Size {
			return nil, tablestore.ErrPermanentRequest.Withf("part %s of %q has %d bytes, expected %d", schema.PartID(part.Number), u.key, attrs.Size, part.Size)
		}
	}

	// Concatenate the parts
	pr, pw := io.Pipe()
	go func() {
		pw.CloseWithError(u.concat(ctx, pw, parts))
	}()
	if err := u.backend.write(ctx, u.backend.storageKey(u.key), pr); err != nil {
		pr.CloseWithError(err)
		return nil, blobErr(err, u.backend.URL(u.key))
	}

	// Remove the staged parts
	if err := u.Abort(ctx); err != nil {
		return nil, err
	}

	return u.backend.version(ctx, u.key, len(parts))
}

// Abort removes any staged parts
func (u *blobupload) Abort(ctx context.Context) (err error) {
	// OTEL span
	ctx, endFunc := u.backend.span(ctx, "Abort")
	defer func() { endFunc(err) }()

	iter := u.backend.bucket.List(&blob.ListOptions{Prefix: u.staging})
	for {
		obj, err := iter.Next(ctx)
		if errors.Is(err, io.EOF) {
			break
		} else if err != nil {
			return blobErr(err, u.backend.URL(u.key))
		}
		if err := u.backend.bucket.Delete(ctx, obj.Key); err != nil && gcerrors.Code(err) != gcerrors.NotFound {
			return blobErr(err, u.backend.URL(u.key))
		}
	}

	return nil
}

////////////////////////////////////////////////////////////////////////////////
// PRIVATE METHODS

func (u *blobupload) concat(ctx context.Context, w io.Writer, parts []schema.PartHandle) error {
	for _, part := range parts {
		r, err := u.backend.bucket.NewReader(ctx, u.staging+schema.PartID(part.Number), nil)
		if err != nil {
			return err
		}
		_, err = io.Copy(w, r)
		if err := errors.Join(err, r.Close()); err != nil {
			return err
		}
	}
	return nil
}
