package httpclient

import (
	"crypto/tls"
	"net/http"
	"os"
	"strings"

	// Packages
	client "github.com/mutablelogic/go-client"
	transport "github.com/mutablelogic/go-tablestore/pkg/transport"
	version "github.com/mutablelogic/go-tablestore/pkg/version"
)

///////////////////////////////////////////////////////////////////////////////
// TYPES

// Client is a control plane HTTP client that wraps the base HTTP client
// and provides typed methods for preparing uploads.
type Client struct {
	*client.Client
}

///////////////////////////////////////////////////////////////////////////////
// GLOBALS

const (
	// envHTTP1 disables HTTP/2 when set to a truthy value
	envHTTP1 = "TABLESTORE_HTTP1"
)

///////////////////////////////////////////////////////////////////////////////
// LIFECYCLE

// New creates a new control plane client with the given base URL and
// options. Requests which fail with a transient error are retried with the
// transport options in retry.
func New(url string, opts ...client.ClientOpt) (*Client, error) {
	return NewWithRetry(url, nil, opts...)
}

// NewWithRetry creates a new control plane client with options for the
// retrying transport
func NewWithRetry(url string, retry []transport.Opt, opts ...client.ClientOpt) (*Client, error) {
	c := new(Client)
	opts = append([]client.ClientOpt{client.OptUserAgent(version.UserAgent())}, opts...)
	cl, err := client.New(append(opts, client.OptEndpoint(url))...)
	if err != nil {
		return nil, err
	}

	// The base transport makes each attempt
	base := cl.Client.Transport
	if base == nil {
		base = http.DefaultTransport
	}
	if isTruthyEnv(envHTTP1) {
		base = http1(base)
	}
	if rt, err := transport.New(append([]transport.Opt{transport.WithBase(base)}, retry...)...); err != nil {
		return nil, err
	} else {
		cl.Client.Transport = rt
	}

	c.Client = cl
	return c, nil
}

func isTruthyEnv(key string) bool {
	v := strings.TrimSpace(strings.ToLower(os.Getenv(key)))
	return v != "" && v != "0" && v != "false" && v != "no" && v != "off"
}

// http1 returns a transport which does not negotiate HTTP/2
func http1(rt http.RoundTripper) http.RoundTripper {
	tr, ok := rt.(*http.Transport)
	if ok && tr != nil {
		tr = tr.Clone()
	} else {
		tr = http.DefaultTransport.(*http.Transport).Clone()
	}
	tr.ForceAttemptHTTP2 = false
	tr.TLSNextProto = map[string]func(string, *tls.Conn) http.RoundTripper{}
	return tr
}
