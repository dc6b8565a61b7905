package backend

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"net/url"
	"slices"
	"strings"

	// Packages
	sdkaws "github.com/aws/aws-sdk-go-v2/aws"
	s3 "github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
	types "github.com/mutablelogic/go-server/pkg/types"
	tablestore "github.com/mutablelogic/go-tablestore"
	aws "github.com/mutablelogic/go-tablestore/pkg/aws"
	schema "github.com/mutablelogic/go-tablestore/pkg/schema"
	otelaws "go.opentelemetry.io/contrib/instrumentation/github.com/aws/aws-sdk-go-v2/otelaws"
	gootel "go.opentelemetry.io/otel"
)

////////////////////////////////////////////////////////////////////////////////
// TYPES

type s3backend struct {
	*opt
	client *aws.Client
	bucket string
}

// s3upload is one S3 multipart upload
type s3upload struct {
	backend *s3backend
	key     string
	id      string
}

var _ Backend = (*s3backend)(nil)
var _ tablestore.Upload = (*s3upload)(nil)

////////////////////////////////////////////////////////////////////////////////
// LIFECYCLE

// NewS3Backend returns a backend for an S3 bucket which uploads with
// multipart uploads. Requests are made through a retrying HTTP client, and
// the SDK retryer is disabled.
func NewS3Backend(ctx context.Context, bucket string, opts ...Opt) (*s3backend, error) {
	self := new(s3backend)
	if bucket == "" {
		return nil, tablestore.ErrPermanentRequest.With("bucket is required")
	} else if opt, err := apply(nil, opts...); err != nil {
		return nil, err
	} else {
		self.opt = opt
		self.bucket = bucket
	}

	// Create the client
	if client, err := self.awsClient(ctx); err != nil {
		return nil, err
	} else {
		self.client = client
	}

	// Return success
	return self, nil
}

// Close the backend
func (b *s3backend) Close() error {
	return nil
}

////////////////////////////////////////////////////////////////////////////////
// PUBLIC METHODS

// URL returns the s3:// location of an object
func (b *s3backend) URL(key string) string {
	u := url.URL{Scheme: "s3", Host: b.bucket, Path: "/" + strings.TrimPrefix(key, "/")}
	return u.String()
}

// Fetch returns the content of an object in the bucket by s3:// URL
func (b *s3backend) Fetch(ctx context.Context, u string) (io.ReadCloser, error) {
	parsed, err := url.Parse(u)
	if err != nil {
		return nil, tablestore.ErrPermanentRequest.Withf("%q: %v", u, err)
	} else if parsed.Scheme != "s3" || parsed.Host != b.bucket {
		return nil, tablestore.ErrPermanentRequest.Withf("%q is not an object of bucket %q", u, b.bucket)
	}
	return b.client.GetObject(ctx, b.bucket, strings.TrimPrefix(parsed.Path, "/"))
}

// PutObject writes an object in a single request. The body is read into
// memory when it cannot seek.
func (b *s3backend) PutObject(ctx context.Context, key string, r io.Reader, size int64) (*schema.Version, error) {
	body, ok := r.(io.ReadSeeker)
	if !ok {
		data, err := io.ReadAll(io.LimitReader(r, size))
		if err != nil {
			return nil, err
		}
		body = bytes.NewReader(data)
	}
	result, err := b.client.PutObject(ctx, b.bucket, key, body, size)
	if err != nil {
		return nil, err
	}
	return &schema.Version{
		Key:       key,
		ETag:      types.PtrString(result.ETag),
		VersionID: types.PtrString(result.VersionId),
		Size:      size,
	}, nil
}

// Begin creates a multipart upload
func (b *s3backend) Begin(ctx context.Context, key string) (tablestore.Upload, error) {
	id, err := b.client.CreateMultipartUpload(ctx, b.bucket, key)
	if err != nil {
		return nil, err
	}
	return &s3upload{backend: b, key: key, id: id}, nil
}

// PutPart uploads one part. S3 accepts at most 10000 parts, and all but the
// last part need at least 5MiB.
func (u *s3upload) PutPart(ctx context.Context, part schema.Part, r io.ReadSeeker) (schema.PartHandle, error) {
	if part.Number < 1 || part.Number > aws.MaxParts {
		return schema.PartHandle{}, tablestore.ErrPermanentRequest.Withf("part number %d is out of range", part.Number)
	}
	etag, err := u.backend.client.UploadPart(ctx, u.backend.bucket, u.key, u.id, int32(part.Number), r, part.Size)
	if err != nil {
		return schema.PartHandle{}, err
	}
	return schema.PartHandle{Number: part.Number, ETag: etag, Size: part.Size}, nil
}

// Commit completes the multipart upload with the parts sorted by number
func (u *s3upload) Commit(ctx context.Context, parts []schema.PartHandle) (_ *schema.Version, err error) {
	if len(parts) == 0 {
		return nil, tablestore.ErrUnsupportedEmptyChunkedUpload.With(u.key)
	}

	// OTEL span
	ctx, endFunc := u.backend.span(ctx, "Commit")
	defer func() { endFunc(err) }()

	// Completed parts in ascending order
	var size int64
	completed := make([]s3types.CompletedPart, 0, len(parts))
	for _, part := range parts {
		size += part.Size
		completed = append(completed, s3types.CompletedPart{
			PartNumber: types.Int32Ptr(int32(part.Number)),
			ETag:       types.StringPtr(part.ETag),
		})
	}
	slices.SortFunc(completed, func(a, b s3types.CompletedPart) int {
		return int(*a.PartNumber - *b.PartNumber)
	})

	result, err := u.backend.client.CompleteMultipartUpload(ctx, u.backend.bucket, u.key, u.id, completed)
	if err != nil {
		return nil, err
	}
	return &schema.Version{
		Key:       u.key,
		ETag:      types.PtrString(result.ETag),
		VersionID: types.PtrString(result.VersionId),
		Size:      size,
		Parts:     len(parts),
	}, nil
}

// Abort discards the multipart upload
func (u *s3upload) Abort(ctx context.Context) (err error) {
	// OTEL span
	ctx, endFunc := u.backend.span(ctx, "Abort")
	defer func() { endFunc(err) }()

	return u.backend.client.AbortMultipartUpload(ctx, u.backend.bucket, u.key, u.id)
}

////////////////////////////////////////////////////////////////////////////////
// PRIVATE METHODS

// awsClient returns an S3 client which makes requests through the retrying
// HTTP client. The base transport trusts AWS_CA_BUNDLE when it is set.
func (o *opt) awsClient(ctx context.Context) (*aws.Client, error) {
	client, err := o.s3HTTPClient()
	if err != nil {
		return nil, err
	}

	// Client options
	opts := []aws.Opt{aws.WithHTTPClient(client)}
	if o.region != "" {
		opts = append(opts, aws.WithRegion(o.region))
	}
	if o.endpoint != "" {
		opts = append(opts, aws.WithEndpoint(o.endpoint))
	}
	if o.credentials != nil && !o.anonymous {
		opts = append(opts, aws.WithCredentials(*o.credentials))
	}
	if o.tracer != nil {
		opts = append(opts, aws.WithTracerProvider(gootel.GetTracerProvider()))
	}

	return aws.New(ctx, opts...)
}

// s3Client returns the S3 API client for a blob bucket. A configuration set
// with WithAWSConfig is used with the retrying HTTP client in place of its
// own client and retryer.
func (o *opt) s3Client(ctx context.Context) (*s3.Client, error) {
	if o.awsConfig == nil {
		client, err := o.awsClient(ctx)
		if err != nil {
			return nil, err
		}
		return client.S3(), nil
	}

	client, err := o.s3HTTPClient()
	if err != nil {
		return nil, err
	}
	cfg := o.awsConfig.Copy()
	cfg.HTTPClient = client
	cfg.Retryer = func() sdkaws.Retryer {
		return sdkaws.NopRetryer{}
	}
	cfg.RetryMaxAttempts = 0
	if o.tracer != nil {
		otelaws.AppendMiddlewares(&cfg.APIOptions)
	}
	return s3.NewFromConfig(cfg), nil
}

func (o *opt) s3HTTPClient() (*http.Client, error) {
	base, err := aws.Transport()
	if err != nil {
		return nil, err
	}
	return o.httpClient(base)
}
