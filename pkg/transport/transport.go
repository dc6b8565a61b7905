package transport

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"strconv"
	"time"

	// Packages
	tablestore "github.com/mutablelogic/go-tablestore"
	schema "github.com/mutablelogic/go-tablestore/pkg/schema"
	attribute "go.opentelemetry.io/otel/attribute"
	metric "go.opentelemetry.io/otel/metric"
)

////////////////////////////////////////////////////////////////////////////////
// TYPES

// Transport is an http.RoundTripper which retries failed attempts. It holds
// no mutable state and can be shared between goroutines.
type Transport struct {
	base     http.RoundTripper
	decision RetryDecision
	backoff  BackoffDelay
	timeout  time.Duration
	logger   tablestore.Logger
	retries  metric.Int64Counter
}

// readCloser reads from a reader and closes the original body
type readCloser struct {
	io.Reader
	io.Closer
}

// cancelBody releases the attempt context when the response body is closed
type cancelBody struct {
	io.ReadCloser
	cancel context.CancelFunc
}

var _ http.RoundTripper = (*Transport)(nil)

////////////////////////////////////////////////////////////////////////////////
// GLOBALS

const (
	// Bytes of a discarded response read so the connection can be reused
	maxDrain = 64 * 1024

	// Request bodies without GetBody up to this size are held in memory so
	// they can be replayed
	maxBuffer = 1024 * 1024
)

////////////////////////////////////////////////////////////////////////////////
// LIFECYCLE

// New returns a retrying transport
func New(opts ...Opt) (*Transport, error) {
	o, err := applyOpts(opts...)
	if err != nil {
		return nil, err
	}

	t := &Transport{
		base:     o.base,
		decision: o.decision,
		backoff:  o.backoff,
		timeout:  o.timeout,
		logger:   o.logger,
	}
	if o.meter != nil {
		if t.retries, err = o.meter.Int64Counter(schema.SchemaName+".transport.retries",
			metric.WithDescription("Number of retried HTTP requests"),
		); err != nil {
			return nil, err
		}
	}

	// Return success
	return t, nil
}

// NewClient returns an http.Client which uses a retrying transport
func NewClient(opts ...Opt) (*http.Client, error) {
	t, err := New(opts...)
	if err != nil {
		return nil, err
	}
	return &http.Client{Transport: t}, nil
}

////////////////////////////////////////////////////////////////////////////////
// PUBLIC METHODS

// RoundTrip executes the request, retrying while the decision allows it.
// A request with a body is retried only when GetBody is set, or when the body
// is small enough to be held in memory.
func (t *Transport) RoundTrip(req *http.Request) (*http.Response, error) {
	ctx := req.Context()
	req, err := buffer(req)
	if err != nil {
		return nil, err
	}
	for retries := 0; ; retries++ {
		attempt := req
		if retries > 0 {
			attempt = req.Clone(ctx)
			if hasBody(req) {
				body, err := req.GetBody()
				if err != nil {
					return nil, err
				}
				attempt.Body = body
			}
		}

		resp, err := t.do(attempt)
		if ctx.Err() != nil || !replayable(req) || !t.decision.ShouldRetry(retries, resp, err) {
			return resp, err
		}

		// Discard the failed response
		status := 0
		if resp != nil {
			status = resp.StatusCode
			io.Copy(io.Discard, io.LimitReader(resp.Body, maxDrain))
			resp.Body.Close()
		}

		// Wait before the next attempt
		delay := t.backoff.Delay(retries + 1)
		if t.logger != nil {
			if err != nil {
				t.logger.Printf(ctx, "retry %d %s %s in %v: %v", retries+1, req.Method, redacted(req.URL), delay, err)
			} else {
				t.logger.Printf(ctx, "retry %d %s %s in %v: status %d", retries+1, req.Method, redacted(req.URL), delay, status)
			}
		}
		if t.retries != nil {
			t.retries.Add(ctx, 1, metric.WithAttributes(
				attribute.String("method", req.Method),
				attribute.String("status", strconv.Itoa(status)),
			))
		}
		if err := sleep(ctx, delay); err != nil {
			return nil, err
		}
	}
}

func (b *cancelBody) Close() error {
	defer b.cancel()
	return b.ReadCloser.Close()
}

////////////////////////////////////////////////////////////////////////////////
// PRIVATE METHODS

// do performs one attempt, with its own timeout when one is set
func (t *Transport) do(req *http.Request) (*http.Response, error) {
	if t.timeout <= 0 {
		return t.base.RoundTrip(req)
	}
	ctx, cancel := context.WithTimeout(req.Context(), t.timeout)
	resp, err := t.base.RoundTrip(req.WithContext(ctx))
	if err != nil {
		cancel()
		return nil, err
	}
	resp.Body = &cancelBody{ReadCloser: resp.Body, cancel: cancel}
	return resp, nil
}

func hasBody(req *http.Request) bool {
	return req.Body != nil && req.Body != http.NoBody
}

func replayable(req *http.Request) bool {
	return !hasBody(req) || req.GetBody != nil
}

// buffer returns a copy of the request with the body in memory when it has
// no GetBody and at most maxBuffer bytes. Larger bodies are sent once.
func buffer(req *http.Request) (*http.Request, error) {
	if !hasBody(req) || req.GetBody != nil || req.ContentLength > maxBuffer {
		return req, nil
	}
	data, err := io.ReadAll(io.LimitReader(req.Body, maxBuffer+1))
	if err != nil {
		req.Body.Close()
		return nil, err
	}

	clone := req.Clone(req.Context())
	if len(data) > maxBuffer {
		clone.Body = readCloser{io.MultiReader(bytes.NewReader(data), req.Body), req.Body}
		return clone, nil
	}
	req.Body.Close()
	clone.ContentLength = int64(len(data))
	if len(data) == 0 {
		clone.Body = http.NoBody
		return clone, nil
	}
	clone.Body = io.NopCloser(bytes.NewReader(data))
	clone.GetBody = func() (io.ReadCloser, error) {
		return io.NopCloser(bytes.NewReader(data)), nil
	}
	return clone, nil
}

// sleep waits for the duration or until the context is done
func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
