package transport

import (
	"bytes"
	"encoding/json"
	"io"
	"math"
	"net/http"
	"slices"
	"time"
)

////////////////////////////////////////////////////////////////////////////////
// TYPES

// RetryDecision decides whether a request is retried. retries is the number
// of retries already made for the request.
type RetryDecision interface {
	ShouldRetry(retries int, resp *http.Response, err error) bool
}

// RetryDecisionFunc adapts a function to RetryDecision
type RetryDecisionFunc func(retries int, resp *http.Response, err error) bool

// BackoffDelay returns the wait before retry number retry, counting from one
type BackoffDelay interface {
	Delay(retry int) time.Duration
}

// BackoffFunc adapts a function to BackoffDelay
type BackoffFunc func(retry int) time.Duration

// Decider is the default retry decision
type Decider struct {
	MaxRetries         int
	RetryOnMaintenance bool
	ConflictCodes      []string
}

// Exponential waits Unit * 2^(retry-1), capped at Max when Max is non-zero
type Exponential struct {
	Unit time.Duration
	Max  time.Duration
}

var _ RetryDecision = (*Decider)(nil)
var _ BackoffDelay = Exponential{}

////////////////////////////////////////////////////////////////////////////////
// GLOBALS

const (
	DefaultMaxRetries = 5
	DefaultUnit       = time.Second

	// Only the start of a 409 body is inspected for the error code
	maxConflictBody = 64 * 1024
)

var (
	// DefaultConflictCodes are the 409 body codes which signal a retryable
	// version conflict
	DefaultConflictCodes = []string{"versionConflict"}
)

////////////////////////////////////////////////////////////////////////////////
// PUBLIC METHODS

func (fn RetryDecisionFunc) ShouldRetry(retries int, resp *http.Response, err error) bool {
	return fn(retries, resp, err)
}

func (fn BackoffFunc) Delay(retry int) time.Duration {
	return fn(retry)
}

// ShouldRetry implements the default policy
func (d *Decider) ShouldRetry(retries int, resp *http.Response, err error) bool {
	if retries >= d.MaxRetries {
		return false
	}
	if err != nil {
		return true
	}
	if resp == nil {
		return false
	}
	switch code := resp.StatusCode; {
	case code == http.StatusNotImplemented:
		return false
	case code == http.StatusServiceUnavailable:
		return d.RetryOnMaintenance
	case code == http.StatusConflict:
		return slices.Contains(d.ConflictCodes, conflictCode(resp))
	default:
		return code > 499
	}
}

// Delay returns Unit * 2^(retry-1)
func (e Exponential) Delay(retry int) time.Duration {
	if retry < 1 {
		retry = 1
	}
	unit := e.Unit
	if unit <= 0 {
		unit = DefaultUnit
	}
	delay := time.Duration(math.MaxInt64)
	if shift := retry - 1; shift < 63 && unit <= time.Duration(math.MaxInt64>>shift) {
		delay = unit << shift
	}
	if e.Max > 0 && delay > e.Max {
		return e.Max
	}
	return delay
}

////////////////////////////////////////////////////////////////////////////////
// PRIVATE METHODS

// conflictCode returns the "code" field of a JSON response body, leaving the
// body readable for the caller
func conflictCode(resp *http.Response) string {
	if resp.Body == nil || resp.Body == http.NoBody {
		return ""
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, maxConflictBody))
	orig := resp.Body
	resp.Body = struct {
		io.Reader
		io.Closer
	}{io.MultiReader(bytes.NewReader(data), orig), orig}
	if err != nil {
		return ""
	}

	var body struct {
		Code string `json:"code"`
	}
	if err := json.Unmarshal(data, &body); err != nil {
		return ""
	}
	return body.Code
}
