package transport

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"

	// Packages
	tablestore "github.com/mutablelogic/go-tablestore"
)

////////////////////////////////////////////////////////////////////////////////
// TYPES

// Fetcher retrieves http:// and https:// objects with GET requests
type Fetcher struct {
	client *http.Client
}

// Router dispatches fetches to a fetcher registered for the URL scheme
type Router struct {
	sync.RWMutex
	schemes map[string]tablestore.Fetcher
}

var _ tablestore.Fetcher = (*Fetcher)(nil)
var _ tablestore.Fetcher = (*Router)(nil)

////////////////////////////////////////////////////////////////////////////////
// GLOBALS

const (
	// Bytes of an error response included in the error message
	maxErrorBody = 1024
)

////////////////////////////////////////////////////////////////////////////////
// LIFECYCLE

// NewFetcher returns a fetcher which uses the given client, which should
// have a retrying transport
func NewFetcher(client *http.Client) *Fetcher {
	if client == nil {
		client = http.DefaultClient
	}
	return &Fetcher{client: client}
}

// NewRouter returns a router with the fetcher registered for http and https
func NewRouter(fetcher tablestore.Fetcher) *Router {
	r := &Router{schemes: make(map[string]tablestore.Fetcher)}
	if fetcher != nil {
		r.Register("http", fetcher)
		r.Register("https", fetcher)
	}
	return r
}

////////////////////////////////////////////////////////////////////////////////
// PUBLIC METHODS

// Fetch returns the body of the object. The caller must close it.
func (f *Fetcher) Fetch(ctx context.Context, url string) (io.ReadCloser, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, tablestore.ErrPermanentRequest.Withf("%w", err)
	}
	resp, err := Do(f.client, req)
	if err != nil {
		return nil, err
	}
	return resp.Body, nil
}

// Register sets the fetcher for a URL scheme
func (r *Router) Register(scheme string, fetcher tablestore.Fetcher) {
	r.Lock()
	defer r.Unlock()
	r.schemes[strings.ToLower(scheme)] = fetcher
}

// Fetch dispatches on the scheme of the URL
func (r *Router) Fetch(ctx context.Context, u string) (io.ReadCloser, error) {
	parsed, err := url.Parse(u)
	if err != nil {
		return nil, tablestore.ErrPermanentRequest.Withf("%w", err)
	}

	r.RLock()
	fetcher, exists := r.schemes[strings.ToLower(parsed.Scheme)]
	r.RUnlock()
	if !exists {
		return nil, tablestore.ErrPermanentRequest.Withf("no fetcher for scheme %q", parsed.Scheme)
	}
	return fetcher.Fetch(ctx, u)
}

// Do executes the request with the client and returns the response when the
// status is 2xx. Other statuses are returned as errors of the matching kind
// (see tablestore.StatusErr) and the response body is closed.
func Do(client *http.Client, req *http.Request) (*http.Response, error) {
	resp, err := client.Do(req)
	if err != nil {
		if ctxErr := req.Context().Err(); ctxErr != nil {
			return nil, ctxErr
		}
		var urlErr *url.Error
		if errors.As(err, &urlErr) && urlErr.Err != nil {
			err = urlErr.Err
		}
		return nil, tablestore.ErrTransientTransport.Withf("%s %s: %w", req.Method, redacted(req.URL), err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		defer resp.Body.Close()
		data, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return nil, tablestore.StatusErr(resp.StatusCode, req.Method+" "+redacted(req.URL)+": "+strings.TrimSpace(string(data)))
	}
	return resp, nil
}

// redacted returns the URL without credentials or query, which may carry a
// shared access signature
func redacted(u *url.URL) string {
	c := *u
	c.User = nil
	c.RawQuery = ""
	return c.String()
}
