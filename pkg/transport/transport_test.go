package transport_test

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	// Packages
	transport "github.com/mutablelogic/go-tablestore/pkg/transport"
	assert "github.com/stretchr/testify/assert"
	require "github.com/stretchr/testify/require"
)

// statusSequence returns a handler which replies with the given statuses in
// turn and then 200 OK, counting requests
func statusSequence(count *atomic.Int32, codes ...int) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		n := int(count.Add(1))
		if n <= len(codes) {
			w.WriteHeader(codes[n-1])
			return
		}
		w.WriteHeader(http.StatusOK)
		fmt.Fprint(w, "ok")
	}
}

type logger struct {
	sync.Mutex
	lines []string
}

func (l *logger) Print(_ context.Context, args ...any) {
	l.Lock()
	defer l.Unlock()
	l.lines = append(l.lines, fmt.Sprint(args...))
}

func (l *logger) Printf(_ context.Context, format string, args ...any) {
	l.Lock()
	defer l.Unlock()
	l.lines = append(l.lines, fmt.Sprintf(format, args...))
}

func newClient(t *testing.T, opts ...transport.Opt) *http.Client {
	t.Helper()
	client, err := transport.NewClient(append([]transport.Opt{transport.WithUnit(time.Millisecond)}, opts...)...)
	require.NoError(t, err)
	return client
}

func Test_Transport_001(t *testing.T) {
	assert := assert.New(t)
	var count atomic.Int32
	srv := httptest.NewServer(statusSequence(&count, http.StatusInternalServerError, http.StatusBadGateway))
	defer srv.Close()

	log := new(logger)
	client := newClient(t, transport.WithLogger(log))
	resp, err := client.Get(srv.URL)
	if !assert.NoError(err) {
		t.FailNow()
	}
	defer resp.Body.Close()
	assert.Equal(http.StatusOK, resp.StatusCode)
	assert.Equal(int32(3), count.Load())
	assert.Len(log.lines, 2)
}

func Test_Transport_002(t *testing.T) {
	// 501 is never retried, whatever the remaining budget
	assert := assert.New(t)
	var count atomic.Int32
	srv := httptest.NewServer(statusSequence(&count, http.StatusNotImplemented))
	defer srv.Close()

	client := newClient(t, transport.WithMaxRetries(10))
	resp, err := client.Get(srv.URL)
	if !assert.NoError(err) {
		t.FailNow()
	}
	resp.Body.Close()
	assert.Equal(http.StatusNotImplemented, resp.StatusCode)
	assert.Equal(int32(1), count.Load())
}

func Test_Transport_003(t *testing.T) {
	// 503 is not retried when maintenance retry is disabled
	assert := assert.New(t)
	var count atomic.Int32
	srv := httptest.NewServer(statusSequence(&count, http.StatusServiceUnavailable))
	defer srv.Close()

	client := newClient(t, transport.WithMaintenanceRetry(false))
	resp, err := client.Get(srv.URL)
	if !assert.NoError(err) {
		t.FailNow()
	}
	resp.Body.Close()
	assert.Equal(http.StatusServiceUnavailable, resp.StatusCode)
	assert.Equal(int32(1), count.Load())

	// and is retried by default
	count.Store(0)
	client = newClient(t)
	resp, err = client.Get(srv.URL)
	if !assert.NoError(err) {
		t.FailNow()
	}
	resp.Body.Close()
	assert.Equal(http.StatusOK, resp.StatusCode)
	assert.Equal(int32(2), count.Load())
}

func Test_Transport_004(t *testing.T) {
	// 409 is retried only for a conflict code
	assert := assert.New(t)
	var count atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := count.Add(1)
		switch {
		case r.URL.Path == "/version" && n == 1:
			w.WriteHeader(http.StatusConflict)
			fmt.Fprint(w, `{"code":"versionConflict"}`)
		case r.URL.Path == "/exists":
			w.WriteHeader(http.StatusConflict)
			fmt.Fprint(w, `{"code":"alreadyExists","error":"bucket exists"}`)
		default:
			w.WriteHeader(http.StatusOK)
		}
	}))
	defer srv.Close()

	client := newClient(t)
	resp, err := client.Get(srv.URL + "/version")
	if !assert.NoError(err) {
		t.FailNow()
	}
	resp.Body.Close()
	assert.Equal(http.StatusOK, resp.StatusCode)
	assert.Equal(int32(2), count.Load())

	count.Store(0)
	resp, err = client.Get(srv.URL + "/exists")
	if !assert.NoError(err) {
		t.FailNow()
	}
	defer resp.Body.Close()
	assert.Equal(http.StatusConflict, resp.StatusCode)
	assert.Equal(int32(1), count.Load())
	body, err := io.ReadAll(resp.Body)
	assert.NoError(err)
	assert.Contains(string(body), "bucket exists")
}

func Test_Transport_005(t *testing.T) {
	// Bodies are replayed on retry
	assert := assert.New(t)
	var count atomic.Int32
	var bodies []string
	var lock sync.Mutex
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		data, _ := io.ReadAll(r.Body)
		lock.Lock()
		bodies = append(bodies, string(data))
		lock.Unlock()
		if count.Add(1) == 1 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusCreated)
	}))
	defer srv.Close()

	client := newClient(t)
	req, err := http.NewRequest(http.MethodPut, srv.URL, bytes.NewReader([]byte("payload")))
	require.NoError(t, err)
	resp, err := client.Do(req)
	if !assert.NoError(err) {
		t.FailNow()
	}
	resp.Body.Close()
	assert.Equal(http.StatusCreated, resp.StatusCode)
	assert.Equal([]string{"payload", "payload"}, bodies)
}

func Test_Transport_006(t *testing.T) {
	// Retries stop at the maximum
	assert := assert.New(t)
	var count atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		count.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	client := newClient(t, transport.WithMaxRetries(2))
	resp, err := client.Get(srv.URL)
	if !assert.NoError(err) {
		t.FailNow()
	}
	resp.Body.Close()
	assert.Equal(http.StatusBadGateway, resp.StatusCode)
	assert.Equal(int32(3), count.Load())
}

func Test_Transport_007(t *testing.T) {
	// Cancellation ends the backoff wait
	assert := assert.New(t)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	client, err := transport.NewClient(transport.WithUnit(time.Hour))
	require.NoError(t, err)
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL, nil)
	require.NoError(t, err)

	start := time.Now()
	_, err = client.Do(req)
	assert.ErrorIs(err, context.DeadlineExceeded)
	assert.Less(time.Since(start), 10*time.Second)
}

func Test_Transport_008(t *testing.T) {
	// A custom decision replaces the default policy
	assert := assert.New(t)
	var count atomic.Int32
	srv := httptest.NewServer(statusSequence(&count, http.StatusNotFound, http.StatusNotFound))
	defer srv.Close()

	client := newClient(t, transport.WithDecision(transport.RetryDecisionFunc(func(retries int, resp *http.Response, err error) bool {
		return retries < 5 && resp != nil && resp.StatusCode == http.StatusNotFound
	})), transport.WithBackoff(transport.BackoffFunc(func(int) time.Duration {
		return 0
	})))
	resp, err := client.Get(srv.URL)
	if !assert.NoError(err) {
		t.FailNow()
	}
	resp.Body.Close()
	assert.Equal(http.StatusOK, resp.StatusCode)
	assert.Equal(int32(3), count.Load())
}

func Test_Transport_009(t *testing.T) {
	// Each attempt has its own timeout
	assert := assert.New(t)
	var count atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if count.Add(1) == 1 {
			select {
			case <-r.Context().Done():
			case <-time.After(5 * time.Second):
			}
			return
		}
		fmt.Fprint(w, "ok")
	}))
	defer srv.Close()

	client := newClient(t, transport.WithAttemptTimeout(100*time.Millisecond))
	resp, err := client.Get(srv.URL)
	if !assert.NoError(err) {
		t.FailNow()
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	assert.NoError(err)
	assert.Equal("ok", string(body))
	assert.Equal(int32(2), count.Load())
}

func Test_Transport_010(t *testing.T) {
	_, err := transport.New(transport.WithMaxRetries(-1))
	assert.Error(t, err)
	_, err = transport.New(transport.WithUnit(0))
	assert.Error(t, err)
	_, err = transport.New(transport.WithBase(nil))
	assert.Error(t, err)
}

// opaqueReader hides the type of a reader, so a request made with it has no
// GetBody
type opaqueReader struct {
	io.Reader
}

func Test_Transport_011(t *testing.T) {
	// Small bodies without GetBody are held in memory and replayed
	assert := assert.New(t)
	var count atomic.Int32
	var bodies []string
	var lock sync.Mutex
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		data, _ := io.ReadAll(r.Body)
		lock.Lock()
		bodies = append(bodies, string(data))
		lock.Unlock()
		if count.Add(1) <= 2 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	var decisions atomic.Int32
	decider := &transport.Decider{MaxRetries: 5}
	client := newClient(t, transport.WithDecision(transport.RetryDecisionFunc(func(retries int, resp *http.Response, err error) bool {
		decisions.Add(1)
		return decider.ShouldRetry(retries, resp, err)
	})))
	req, err := http.NewRequest(http.MethodPost, srv.URL, opaqueReader{bytes.NewReader([]byte(`{"name":"export.csv"}`))})
	require.NoError(t, err)
	assert.Nil(req.GetBody)
	resp, err := client.Do(req)
	if !assert.NoError(err) {
		t.FailNow()
	}
	resp.Body.Close()
	assert.Equal(http.StatusOK, resp.StatusCode)
	assert.Equal(int32(3), count.Load())
	assert.Equal(int32(2), decisions.Load())
	assert.Equal([]string{`{"name":"export.csv"}`, `{"name":"export.csv"}`, `{"name":"export.csv"}`}, bodies)
}

func Test_Transport_012(t *testing.T) {
	// An empty body of unknown length is retried like a GET without body
	assert := assert.New(t)
	var count atomic.Int32
	srv := httptest.NewServer(statusSequence(&count, http.StatusBadGateway))
	defer srv.Close()

	client := newClient(t)
	req, err := http.NewRequest(http.MethodGet, srv.URL, opaqueReader{bytes.NewReader(nil)})
	require.NoError(t, err)
	resp, err := client.Do(req)
	if !assert.NoError(err) {
		t.FailNow()
	}
	resp.Body.Close()
	assert.Equal(http.StatusOK, resp.StatusCode)
	assert.Equal(int32(2), count.Load())
}

func Test_Transport_013(t *testing.T) {
	// Large bodies without GetBody are sent once, in full
	assert := assert.New(t)
	var count atomic.Int32
	var size atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n, _ := io.Copy(io.Discard, r.Body)
		size.Store(n)
		count.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	client := newClient(t)
	data := bytes.Repeat([]byte("x"), 2*1024*1024)
	req, err := http.NewRequest(http.MethodPut, srv.URL, opaqueReader{bytes.NewReader(data)})
	require.NoError(t, err)
	resp, err := client.Do(req)
	if !assert.NoError(err) {
		t.FailNow()
	}
	resp.Body.Close()
	assert.Equal(http.StatusBadGateway, resp.StatusCode)
	assert.Equal(int32(1), count.Load())
	assert.Equal(int64(len(data)), size.Load())
}
