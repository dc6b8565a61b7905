package aws

import (
	"net/http"
	"net/url"

	// Packages
	httpresponse "github.com/mutablelogic/go-server/pkg/httpresponse"
	schema "github.com/mutablelogic/go-tablestore/pkg/schema"
	trace "go.opentelemetry.io/otel/trace"
)

////////////////////////////////////////////////////////////////////////////////
// TYPES

type opt struct {
	endpoint       *string
	region         *string
	credentials    *schema.Credentials
	client         *http.Client
	tracerProvider trace.TracerProvider
}

// Opt represents a function that modifies the options
type Opt func(*opt) error

////////////////////////////////////////////////////////////////////////////////
// LIFECYCLE

func applyOpts(opts ...Opt) (*opt, error) {
	var o opt

	// Apply the options
	for _, fn := range opts {
		if err := fn(&o); err != nil {
			return nil, err
		}
	}

	// Return success
	return &o, nil
}

////////////////////////////////////////////////////////////////////////////////
// PUBLIC METHODS

// WithEndpoint sets the endpoint of an S3-compatible service
func WithEndpoint(endpoint string) Opt {
	return func(o *opt) error {
		if u, err := url.Parse(endpoint); err != nil {
			return httpresponse.ErrBadRequest.Withf("invalid endpoint: %v", err)
		} else if u.Scheme != "http" && u.Scheme != "https" {
			return httpresponse.ErrBadRequest.Withf("endpoint must be http:// or https://, got %q", endpoint)
		}
		o.endpoint = &endpoint
		return nil
	}
}

func WithRegion(region string) Opt {
	return func(o *opt) error {
		o.region = &region
		return nil
	}
}

// WithCredentials sets static, possibly temporary, credentials
func WithCredentials(credentials schema.Credentials) Opt {
	return func(o *opt) error {
		if credentials.AccessKeyID == "" || credentials.SecretAccessKey == "" {
			return httpresponse.ErrBadRequest.With("access key and secret are required")
		}
		o.credentials = &credentials
		return nil
	}
}

// WithHTTPClient sets the HTTP client, which is expected to make its own
// retries
func WithHTTPClient(client *http.Client) Opt {
	return func(o *opt) error {
		o.client = client
		return nil
	}
}

// WithTracerProvider adds a span for each S3 API call
func WithTracerProvider(provider trace.TracerProvider) Opt {
	return func(o *opt) error {
		o.tracerProvider = provider
		return nil
	}
}
