package transport

import (
	"net/http"
	"time"

	// Packages
	httpresponse "github.com/mutablelogic/go-server/pkg/httpresponse"
	tablestore "github.com/mutablelogic/go-tablestore"
	metric "go.opentelemetry.io/otel/metric"
)

////////////////////////////////////////////////////////////////////////////////
// TYPES

type opt struct {
	base     http.RoundTripper
	decision RetryDecision
	backoff  BackoffDelay
	decider  Decider
	maxDelay time.Duration
	unit     time.Duration
	timeout  time.Duration
	logger   tablestore.Logger
	meter    metric.Meter
}

// Opt is a functional option for the transport
type Opt func(*opt) error

////////////////////////////////////////////////////////////////////////////////
// LIFECYCLE

func applyOpts(opts ...Opt) (*opt, error) {
	o := &opt{
		base: http.DefaultTransport,
		decider: Decider{
			MaxRetries:         DefaultMaxRetries,
			RetryOnMaintenance: true,
			ConflictCodes:      DefaultConflictCodes,
		},
		unit: DefaultUnit,
	}
	for _, fn := range opts {
		if err := fn(o); err != nil {
			return nil, err
		}
	}
	if o.decision == nil {
		decider := o.decider
		o.decision = &decider
	}
	if o.backoff == nil {
		o.backoff = Exponential{Unit: o.unit, Max: o.maxDelay}
	}
	return o, nil
}

////////////////////////////////////////////////////////////////////////////////
// OPTIONS

// WithBase sets the round tripper which performs each attempt
func WithBase(rt http.RoundTripper) Opt {
	return func(o *opt) error {
		if rt == nil {
			return httpresponse.ErrBadRequest.With("base round tripper is nil")
		}
		o.base = rt
		return nil
	}
}

// WithMaxRetries sets the number of retries after the first attempt
func WithMaxRetries(n int) Opt {
	return func(o *opt) error {
		if n < 0 {
			return httpresponse.ErrBadRequest.Withf("invalid max retries: %d", n)
		}
		o.decider.MaxRetries = n
		return nil
	}
}

// WithMaintenanceRetry sets whether 503 responses are retried
func WithMaintenanceRetry(v bool) Opt {
	return func(o *opt) error {
		o.decider.RetryOnMaintenance = v
		return nil
	}
}

// WithConflictCodes sets the 409 body codes which are retried
func WithConflictCodes(codes ...string) Opt {
	return func(o *opt) error {
		o.decider.ConflictCodes = codes
		return nil
	}
}

// WithDecision replaces the default retry decision. WithMaxRetries,
// WithMaintenanceRetry and WithConflictCodes are then ignored.
func WithDecision(d RetryDecision) Opt {
	return func(o *opt) error {
		o.decision = d
		return nil
	}
}

// WithBackoff replaces the default exponential backoff
func WithBackoff(b BackoffDelay) Opt {
	return func(o *opt) error {
		o.backoff = b
		return nil
	}
}

// WithUnit sets the time unit of the default exponential backoff
func WithUnit(d time.Duration) Opt {
	return func(o *opt) error {
		if d <= 0 {
			return httpresponse.ErrBadRequest.Withf("invalid backoff unit: %v", d)
		}
		o.unit = d
		return nil
	}
}

// WithMaxDelay caps the default exponential backoff
func WithMaxDelay(d time.Duration) Opt {
	return func(o *opt) error {
		o.maxDelay = d
		return nil
	}
}

// WithAttemptTimeout sets a timeout for each attempt, including reading
// the response body
func WithAttemptTimeout(d time.Duration) Opt {
	return func(o *opt) error {
		o.timeout = d
		return nil
	}
}

// WithLogger sets the logger for retried attempts
func WithLogger(l tablestore.Logger) Opt {
	return func(o *opt) error {
		o.logger = l
		return nil
	}
}

// WithMeter sets the meter used to count retries
func WithMeter(m metric.Meter) Opt {
	return func(o *opt) error {
		o.meter = m
		return nil
	}
}
