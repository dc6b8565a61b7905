package aws

import (
	"context"

	// Packages
	aws "github.com/aws/aws-sdk-go-v2/aws"
	config "github.com/aws/aws-sdk-go-v2/config"
	credentials "github.com/aws/aws-sdk-go-v2/credentials"
	s3 "github.com/aws/aws-sdk-go-v2/service/s3"
	httpresponse "github.com/mutablelogic/go-server/pkg/httpresponse"
	otelaws "go.opentelemetry.io/contrib/instrumentation/github.com/aws/aws-sdk-go-v2/otelaws"
)

////////////////////////////////////////////////////////////////////////////////
// TYPES

type Client struct {
	region string
	config aws.Config
	s3     *s3.Client
}

////////////////////////////////////////////////////////////////////////////////
// LIFECYCLE

// New returns an S3 client. Without a region the client is anonymous, unless
// credentials are set. When an HTTP client is set, the SDK retryer is
// disabled so retries are made by that client only.
func New(ctx context.Context, opts ...Opt) (*Client, error) {
	self := new(Client)
	o, err := applyOpts(opts...)
	if err != nil {
		return nil, err
	}

	// Load the default configuration
	cfg, err := config.LoadDefaultConfig(ctx, o.loadOptions()...)
	if err != nil {
		return nil, err
	}
	if o.tracerProvider != nil {
		otelaws.AppendMiddlewares(&cfg.APIOptions, otelaws.WithTracerProvider(o.tracerProvider))
	}

	// Create the S3 client
	if s3 := s3.NewFromConfig(cfg, func(so *s3.Options) {
		so.UsePathStyle = true

		// Checksums are only sent and validated when an operation needs them
		so.RequestChecksumCalculation = aws.RequestChecksumCalculationWhenRequired
		so.ResponseChecksumValidation = aws.ResponseChecksumValidationWhenRequired

		// If there is no region set, we need to set the credentials to nil
		if so.Region == "" {
			if o.credentials == nil {
				so.Credentials = nil
			}
			so.Region = "none"
		}

		// We set the endpoint if it is not empty
		if o.endpoint != nil {
			so.BaseEndpoint = o.endpoint
		}

		// The HTTP client makes the retries
		if o.client != nil {
			so.HTTPClient = o.client
			so.Retryer = aws.NopRetryer{}
			so.RetryMaxAttempts = 0
		}
	}); s3 == nil {
		return nil, httpresponse.ErrInternalError.Withf("Invalid S3 client")
	} else {
		self.s3 = s3
		self.region = s3.Options().Region
		self.config = cfg
	}

	// Return success
	return self, nil
}

////////////////////////////////////////////////////////////////////////////////
// PUBLIC METHODS

func (client *Client) S3() *s3.Client {
	return client.s3
}

func (client *Client) Region() string {
	return client.region
}

// Config returns the SDK configuration the client was created with
func (client *Client) Config() aws.Config {
	return client.config
}

////////////////////////////////////////////////////////////////////////////////
// PRIVATE METHODS

func (o *opt) loadOptions() []func(*config.LoadOptions) error {
	var result []func(*config.LoadOptions) error
	if o.region != nil {
		result = append(result, config.WithRegion(*o.region))
	}
	if o.credentials != nil {
		result = append(result, config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			o.credentials.AccessKeyID, o.credentials.SecretAccessKey, o.credentials.SessionToken,
		)))
	}
	return result
}
