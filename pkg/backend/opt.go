package backend

import (
	"context"
	"fmt"
	"net/http"
	"net/url"

	// Packages
	aws "github.com/aws/aws-sdk-go-v2/aws"
	otel "github.com/mutablelogic/go-client/pkg/otel"
	tablestore "github.com/mutablelogic/go-tablestore"
	schema "github.com/mutablelogic/go-tablestore/pkg/schema"
	transport "github.com/mutablelogic/go-tablestore/pkg/transport"
	trace "go.opentelemetry.io/otel/trace"
)

////////////////////////////////////////////////////////////////////////////////
// TYPES

type opt struct {
	url         *url.URL
	awsConfig   *aws.Config
	endpoint    string              // raw endpoint URL set via WithEndpoint; wired into awsConfig when both are present
	region      string              // S3 region
	credentials *schema.Credentials // static credentials
	anonymous   bool                // forces anonymous credentials; wired into awsConfig when both are present
	tracer      trace.Tracer        // optional OTel tracer; when set, AWS SDK middleware is injected
	logger      tablestore.Logger
	client      *http.Client
	transport   []transport.Opt
}

type Opt func(*opt) error

////////////////////////////////////////////////////////////////////////////////
// LIFECYCLE

func apply(url *url.URL, opts ...Opt) (*opt, error) {
	// Apply options
	o := opt{url: url}
	for _, opt := range opts {
		if err := opt(&o); err != nil {
			return nil, err
		}
	}
	// Return success
	return &o, nil
}

////////////////////////////////////////////////////////////////////////////////
// PUBLIC METHODS

// WithEndpoint sets the S3 endpoint for S3-compatible services.
// For http:// endpoints, HTTPS is automatically disabled.
func WithEndpoint(endpoint string) Opt {
	return func(o *opt) error {
		// Set endpoint parameter
		if endpoint, err := url.Parse(endpoint); err != nil {
			return err
		} else if endpoint.Scheme != "http" && endpoint.Scheme != "https" {
			return fmt.Errorf("endpoint must be http:// or https://, got %s://", endpoint.Scheme)
		} else {
			o.endpoint = endpoint.String() // stored for use with awsConfig path
			o.set("endpoint", endpoint.String())
			o.set("s3ForcePathStyle", "true") // Always set s3ForcePathStyle=true for custom endpoints
			if endpoint.Scheme == "http" {
				o.set("disable_https", "true")
			}
		}
		return nil
	}
}

// WithRegion sets the S3 region
func WithRegion(region string) Opt {
	return func(o *opt) error {
		o.region = region
		o.set("region", region)
		return nil
	}
}

// WithCredentials sets static S3 credentials, such as the temporary
// credentials of a prepared upload
func WithCredentials(credentials schema.Credentials) Opt {
	return func(o *opt) error {
		o.credentials = &credentials
		return nil
	}
}

// WithAnonymous forces use of anonymous credentials.
// Use this for S3-compatible services that don't require authentication.
func WithAnonymous() Opt {
	return func(o *opt) error {
		o.anonymous = true
		o.set("anonymous", "true")
		return nil
	}
}

// WithCreateDir sets create_dir=true for file:// URLs to create the directory if it doesn't exist
func WithCreateDir() Opt {
	return func(o *opt) error {
		o.set("create_dir", "true")
		return nil
	}
}

// WithTracer sets the OpenTelemetry tracer for the backend.
// Upload sessions produce a span for each commit and abort. When set on an
// S3 backend, AWS SDK middleware is injected so each S3 API call produces a
// child span.
func WithTracer(tracer trace.Tracer) Opt {
	return func(o *opt) error {
		o.tracer = tracer
		return nil
	}
}

// WithAWSConfig provides an AWS SDK v2 Config directly.
// When provided for s3:// URLs, this config is used instead of the URL-based configuration.
func WithAWSConfig(cfg aws.Config) Opt {
	return func(o *opt) error {
		o.awsConfig = &cfg
		return nil
	}
}

// WithLogger sets the logger for retried requests
func WithLogger(logger tablestore.Logger) Opt {
	return func(o *opt) error {
		o.logger = logger
		return nil
	}
}

// WithHTTPClient sets the HTTP client for S3 and block backends. By default
// a client with a retrying transport is created.
func WithHTTPClient(client *http.Client) Opt {
	return func(o *opt) error {
		o.client = client
		return nil
	}
}

// WithRetry sets the options of the retrying transport
func WithRetry(opts ...transport.Opt) Opt {
	return func(o *opt) error {
		o.transport = append(o.transport, opts...)
		return nil
	}
}

////////////////////////////////////////////////////////////////////////////////
// PRIVATE METHODS

func (o *opt) set(key, value string) {
	if o.url == nil {
		return
	}
	q := o.url.Query()
	if value == "" {
		q.Del(key)
	} else {
		q.Set(key, value)
	}
	o.url.RawQuery = q.Encode()
}

// httpClient returns the HTTP client, creating one with a retrying transport
// over base when none was set. A nil base is the default transport.
func (o *opt) httpClient(base http.RoundTripper) (*http.Client, error) {
	if o.client != nil {
		return o.client, nil
	}
	opts := []transport.Opt{transport.WithLogger(o.logger)}
	if base != nil {
		opts = append(opts, transport.WithBase(base))
	}
	return transport.NewClient(append(opts, o.transport...)...)
}

// span starts a span for an operation of the backend
func (o *opt) span(ctx context.Context, op string) (context.Context, func(error)) {
	return otel.StartSpan(o.tracer, ctx, schema.SchemaName+".backend."+op)
}
