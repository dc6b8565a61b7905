package transfer

import (
	"bytes"
	"context"
	"encoding/json"
	"path/filepath"

	// Packages
	otel "github.com/mutablelogic/go-client/pkg/otel"
	httpresponse "github.com/mutablelogic/go-server/pkg/httpresponse"
	schema "github.com/mutablelogic/go-tablestore/pkg/schema"
)

////////////////////////////////////////////////////////////////////////////////
// PUBLIC METHODS

// UploadSliced uploads local slices of one logical file as prefix plus the
// slice file name, then writes a manifest listing every slice to prefix plus
// "manifest". No manifest is written when any slice fails, and the returned
// error is the *Error of the slice upload.
func (u *Uploader) UploadSliced(ctx context.Context, prefix string, paths ...string) (_ *schema.Manifest, err error) {
	if len(paths) == 0 {
		return nil, httpresponse.ErrBadRequest.With("no slices")
	}

	// Name each slice
	refs := make([]schema.ObjectRef, 0, len(paths))
	names := make(map[string]string, len(paths))
	for _, path := range paths {
		name := filepath.Base(path)
		if name == schema.ManifestName {
			return nil, httpresponse.ErrBadRequest.Withf("slice %q conflicts with the manifest", path)
		} else if other, exists := names[name]; exists {
			return nil, httpresponse.ErrBadRequest.Withf("slices %q and %q have the same name", other, path)
		}
		names[name] = path
		refs = append(refs, schema.ObjectRef{Key: prefix + name, Path: path})
	}

	// OTEL span
	ctx, endFunc := otel.StartSpan(u.o.tracer, ctx, spanName("UploadSliced"))
	defer func() { endFunc(err) }()

	// Upload the slices
	if _, err := u.Upload(ctx, refs...); err != nil {
		return nil, err
	}

	// Write the manifest, with entries in slice order
	manifest := &schema.Manifest{Entries: make([]schema.ManifestEntry, 0, len(refs))}
	for _, ref := range refs {
		manifest.Entries = append(manifest.Entries, schema.ManifestEntry{
			URL:       u.backend.URL(ref.Key),
			Mandatory: true,
		})
	}
	data, err := json.Marshal(manifest)
	if err != nil {
		return nil, err
	}
	if _, err := u.backend.PutObject(ctx, prefix+schema.ManifestName, bytes.NewReader(data), int64(len(data))); err != nil {
		return nil, err
	}

	return manifest, nil
}
