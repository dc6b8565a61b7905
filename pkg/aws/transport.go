package aws

import (
	"crypto/tls"
	"crypto/x509"
	"net/http"
	"os"

	// Packages
	httpresponse "github.com/mutablelogic/go-server/pkg/httpresponse"
)

////////////////////////////////////////////////////////////////////////////////
// GLOBALS

const (
	// EnvCABundle names a PEM file of certificates to trust for S3 requests
	EnvCABundle = "AWS_CA_BUNDLE"
)

////////////////////////////////////////////////////////////////////////////////
// PUBLIC METHODS

// Transport returns a transport for S3 requests, for use as the base of a
// retrying transport. When AWS_CA_BUNDLE is set, only the certificates in
// that file are trusted, as with the SDK client.
func Transport() (*http.Transport, error) {
	tr := http.DefaultTransport.(*http.Transport).Clone()
	path := os.Getenv(EnvCABundle)
	if path == "" {
		return tr, nil
	}

	// Read the bundle
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, httpresponse.ErrBadRequest.Withf("%s: %v", EnvCABundle, err)
	}
	pool := x509.NewCertPool()
	if !pool.AppendCertsFromPEM(data) {
		return nil, httpresponse.ErrBadRequest.Withf("%s: no certificates in %q", EnvCABundle, path)
	}

	// Set the root certificates
	if tr.TLSClientConfig == nil {
		tr.TLSClientConfig = &tls.Config{MinVersion: tls.VersionTLS12}
	}
	tr.TLSClientConfig.RootCAs = pool

	// Return success
	return tr, nil
}
