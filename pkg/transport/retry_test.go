package transport_test

import (
	"errors"
	"io"
	"net/http"
	"strings"
	"testing"
	"time"

	// Packages
	transport "github.com/mutablelogic/go-tablestore/pkg/transport"
	assert "github.com/stretchr/testify/assert"
)

func response(code int, body string) *http.Response {
	return &http.Response{
		StatusCode: code,
		Body:       io.NopCloser(strings.NewReader(body)),
	}
}

func Test_Decider_001(t *testing.T) {
	decider := &transport.Decider{
		MaxRetries:         3,
		RetryOnMaintenance: true,
		ConflictCodes:      transport.DefaultConflictCodes,
	}
	tests := []struct {
		name    string
		retries int
		resp    *http.Response
		err     error
		want    bool
	}{
		{"transport error", 0, nil, errors.New("connection reset"), true},
		{"500", 0, response(http.StatusInternalServerError, ""), nil, true},
		{"502", 2, response(http.StatusBadGateway, ""), nil, true},
		{"501", 0, response(http.StatusNotImplemented, ""), nil, false},
		{"503", 0, response(http.StatusServiceUnavailable, ""), nil, true},
		{"404", 0, response(http.StatusNotFound, ""), nil, false},
		{"400", 0, response(http.StatusBadRequest, ""), nil, false},
		{"409 conflict code", 0, response(http.StatusConflict, `{"code":"versionConflict"}`), nil, true},
		{"409 other code", 0, response(http.StatusConflict, `{"code":"alreadyExists"}`), nil, false},
		{"409 no json", 0, response(http.StatusConflict, `conflict`), nil, false},
		{"exhausted", 3, response(http.StatusInternalServerError, ""), nil, false},
		{"exhausted error", 4, nil, errors.New("timeout"), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, decider.ShouldRetry(tt.retries, tt.resp, tt.err))
		})
	}
}

func Test_Decider_002(t *testing.T) {
	assert := assert.New(t)
	decider := &transport.Decider{MaxRetries: 3}

	// Maintenance retry disabled
	assert.False(decider.ShouldRetry(0, response(http.StatusServiceUnavailable, ""), nil))

	// Conflict codes are configuration
	decider.ConflictCodes = []string{"alreadyExists", "versionConflict"}
	assert.True(decider.ShouldRetry(0, response(http.StatusConflict, `{"code":"alreadyExists"}`), nil))
}

func Test_Decider_003(t *testing.T) {
	assert := assert.New(t)
	decider := &transport.Decider{MaxRetries: 1, ConflictCodes: []string{"versionConflict"}}

	// The body of an inspected 409 is still readable
	resp := response(http.StatusConflict, `{"code":"versionConflict","error":"try again"}`)
	assert.True(decider.ShouldRetry(0, resp, nil))
	data, err := io.ReadAll(resp.Body)
	assert.NoError(err)
	assert.Equal(`{"code":"versionConflict","error":"try again"}`, string(data))
}

func Test_Exponential_001(t *testing.T) {
	assert := assert.New(t)
	backoff := transport.Exponential{Unit: time.Second}
	assert.Equal(1*time.Second, backoff.Delay(1))
	assert.Equal(2*time.Second, backoff.Delay(2))
	assert.Equal(4*time.Second, backoff.Delay(3))
	assert.Equal(8*time.Second, backoff.Delay(4))
	assert.Equal(1*time.Second, backoff.Delay(0))

	// Monotonically non-decreasing, even past overflow
	prev := time.Duration(0)
	for k := 1; k < 100; k++ {
		d := backoff.Delay(k)
		assert.GreaterOrEqual(d, prev, "retry %d", k)
		prev = d
	}
}

func Test_Exponential_002(t *testing.T) {
	assert := assert.New(t)
	backoff := transport.Exponential{Unit: time.Millisecond, Max: 10 * time.Millisecond}
	assert.Equal(time.Millisecond, backoff.Delay(1))
	assert.Equal(8*time.Millisecond, backoff.Delay(4))
	assert.Equal(10*time.Millisecond, backoff.Delay(5))
	assert.Equal(10*time.Millisecond, backoff.Delay(60))
}
