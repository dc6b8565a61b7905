package transfer

import (
	"context"
	"time"

	// Packages
	httpresponse "github.com/mutablelogic/go-server/pkg/httpresponse"
	tablestore "github.com/mutablelogic/go-tablestore"
	transport "github.com/mutablelogic/go-tablestore/pkg/transport"
	metric "go.opentelemetry.io/otel/metric"
	trace "go.opentelemetry.io/otel/trace"
)

////////////////////////////////////////////////////////////////////////////////
// TYPES

type opt struct {
	partSize   int64
	multi      int
	single     int
	maxRetries int
	backoff    transport.BackoffDelay
	strict     bool
	logger     tablestore.Logger
	tracer     trace.Tracer
	meter      metric.Meter
	progress   ProgressFunc
}

// Opt is a functional option for uploads and reassembly
type Opt func(*opt) error

// ProgressFunc is called as bytes of an object are accepted by the backend
type ProgressFunc func(key string, written, total int64)

// Options is an immutable set of transfer options, shared by all parts of
// one transfer
type Options struct {
	o opt
}

////////////////////////////////////////////////////////////////////////////////
// GLOBALS

const (
	DefaultPartSize              = 5 * 1024 * 1024
	DefaultMultiFileConcurrency  = 5
	DefaultSingleFileConcurrency = 10
	DefaultMaxRetriesPerPart     = 3
)

////////////////////////////////////////////////////////////////////////////////
// LIFECYCLE

// NewOptions applies the options over the defaults
func NewOptions(opts ...Opt) (Options, error) {
	o := opt{
		partSize:   DefaultPartSize,
		multi:      DefaultMultiFileConcurrency,
		single:     DefaultSingleFileConcurrency,
		maxRetries: DefaultMaxRetriesPerPart,
		backoff:    transport.Exponential{Unit: time.Second, Max: 32 * time.Second},
	}
	for _, fn := range opts {
		if err := fn(&o); err != nil {
			return Options{}, err
		}
	}
	return Options{o: o}, nil
}

////////////////////////////////////////////////////////////////////////////////
// PUBLIC METHODS - GET

func (o Options) PartSize() int64 {
	return o.o.partSize
}

func (o Options) MultiFileConcurrency() int {
	return o.o.multi
}

func (o Options) SingleFileConcurrency() int {
	return o.o.single
}

func (o Options) MaxRetriesPerPart() int {
	return o.o.maxRetries
}

// Concurrency returns the worker limit for a transfer of n objects
func (o Options) Concurrency(n int) int {
	if n > 1 {
		return o.o.multi
	}
	return o.o.single
}

// Delay returns the wait before retry round number round
func (o Options) Delay(round int) time.Duration {
	if round < 1 || o.o.backoff == nil {
		return 0
	}
	return o.o.backoff.Delay(round)
}

////////////////////////////////////////////////////////////////////////////////
// OPTIONS

// WithPartSize sets the size of each uploaded part in bytes
func WithPartSize(n int64) Opt {
	return func(o *opt) error {
		if n <= 0 {
			return httpresponse.ErrBadRequest.Withf("invalid part size: %d", n)
		}
		o.partSize = n
		return nil
	}
}

// WithMultiFileConcurrency sets the number of parts in flight when more than
// one object is transferred
func WithMultiFileConcurrency(n int) Opt {
	return func(o *opt) error {
		if n < 1 {
			return httpresponse.ErrBadRequest.Withf("invalid multi-file concurrency: %d", n)
		}
		o.multi = n
		return nil
	}
}

// WithSingleFileConcurrency sets the number of parts in flight when one
// object is transferred
func WithSingleFileConcurrency(n int) Opt {
	return func(o *opt) error {
		if n < 1 {
			return httpresponse.ErrBadRequest.Withf("invalid single-file concurrency: %d", n)
		}
		o.single = n
		return nil
	}
}

// WithMaxRetriesPerPart sets the number of retry rounds for failed parts
func WithMaxRetriesPerPart(n int) Opt {
	return func(o *opt) error {
		if n < 0 {
			return httpresponse.ErrBadRequest.Withf("invalid max retries: %d", n)
		}
		o.maxRetries = n
		return nil
	}
}

// WithBackoff sets the wait before each retry round. A nil value disables it.
func WithBackoff(b transport.BackoffDelay) Opt {
	return func(o *opt) error {
		o.backoff = b
		return nil
	}
}

// WithStrictManifest treats every manifest entry as mandatory
func WithStrictManifest() Opt {
	return func(o *opt) error {
		o.strict = true
		return nil
	}
}

// WithLogger sets the logger
func WithLogger(l tablestore.Logger) Opt {
	return func(o *opt) error {
		o.logger = l
		return nil
	}
}

// WithTracer sets the OpenTelemetry tracer
func WithTracer(t trace.Tracer) Opt {
	return func(o *opt) error {
		o.tracer = t
		return nil
	}
}

// WithMeter sets the OpenTelemetry meter for transfer counters
func WithMeter(m metric.Meter) Opt {
	return func(o *opt) error {
		o.meter = m
		return nil
	}
}

// WithProgress sets a callback for uploaded bytes
func WithProgress(fn ProgressFunc) Opt {
	return func(o *opt) error {
		o.progress = fn
		return nil
	}
}

////////////////////////////////////////////////////////////////////////////////
// PRIVATE METHODS

func (o Options) printf(ctx context.Context, format string, args ...any) {
	if o.o.logger != nil {
		o.o.logger.Printf(ctx, format, args...)
	}
}
