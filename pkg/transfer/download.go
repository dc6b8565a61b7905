package transfer

import (
	"context"
	"io"

	// Packages
	otel "github.com/mutablelogic/go-client/pkg/otel"
	httpresponse "github.com/mutablelogic/go-server/pkg/httpresponse"
	schema "github.com/mutablelogic/go-tablestore/pkg/schema"
)

////////////////////////////////////////////////////////////////////////////////
// PUBLIC METHODS

// Download writes a single object to the destination of the plan, through
// the same decompression, header and compression as Reassemble
func (r *Reassembler) Download(ctx context.Context, url string, plan schema.ReassemblyPlan) (err error) {
	if plan.Path == "" {
		return httpresponse.ErrBadRequest.With("destination path is required")
	}

	// OTEL span
	ctx, endFunc := otel.StartSpan(r.o.tracer, ctx, spanName("Download"))
	defer func() { endFunc(err) }()

	// Fetch the object
	body, err := r.fetcher.Fetch(ctx, url)
	if err != nil {
		return err
	}
	defer body.Close()

	return r.write(plan, func(w io.Writer) error {
		n, err := copyDecompressed(w, body)
		r.metrics.written(ctx, "Download", n)
		return err
	})
}
