// Package backend implements blob stores which accept chunked uploads: Go
// CDK buckets, S3 multipart uploads and block blob containers.
package backend

import (
	"context"
	"io"

	// Packages
	httpresponse "github.com/mutablelogic/go-server/pkg/httpresponse"
	tablestore "github.com/mutablelogic/go-tablestore"
	schema "github.com/mutablelogic/go-tablestore/pkg/schema"
)

////////////////////////////////////////////////////////////////////////////////
// TYPES

// Backend is a store which can also fetch its own objects and be closed
type Backend interface {
	io.Closer
	tablestore.Backend
	tablestore.Fetcher
}

////////////////////////////////////////////////////////////////////////////////
// LIFECYCLE

// NewFromUploadParams returns the backend for a prepared file, using the
// upload parameters and temporary credentials issued for it. The object key
// is file.UploadKey().
func NewFromUploadParams(ctx context.Context, file *schema.File, opts ...Opt) (Backend, error) {
	if file == nil {
		return nil, httpresponse.ErrBadRequest.With("file is required")
	}
	switch file.Provider {
	case schema.ProviderAWS:
		params := file.UploadParams
		if params == nil || params.Bucket == "" {
			return nil, httpresponse.ErrBadRequest.Withf("file %d has no upload parameters", file.ID)
		}
		if params.Credentials != nil {
			opts = append(opts, WithCredentials(*params.Credentials))
		}
		if file.Region != "" {
			opts = append(opts, WithRegion(file.Region))
		}
		return NewS3Backend(ctx, params.Bucket, opts...)
	case schema.ProviderAzure:
		params := file.BlockUploadParams
		if params == nil || params.ContainerURL == "" {
			return nil, httpresponse.ErrBadRequest.Withf("file %d has no upload parameters", file.ID)
		}
		return NewBlockBackend(params.ContainerURL, opts...)
	default:
		return nil, httpresponse.ErrNotImplemented.Withf("provider %q is not supported", file.Provider)
	}
}
