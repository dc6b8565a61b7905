package transfer

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"

	// Packages
	gzip "github.com/klauspost/compress/gzip"
	otel "github.com/mutablelogic/go-client/pkg/otel"
	httpresponse "github.com/mutablelogic/go-server/pkg/httpresponse"
	tablestore "github.com/mutablelogic/go-tablestore"
	schema "github.com/mutablelogic/go-tablestore/pkg/schema"
	errgroup "golang.org/x/sync/errgroup"
)

////////////////////////////////////////////////////////////////////////////////
// TYPES

// Reassembler downloads sliced and single objects to local files
type Reassembler struct {
	Options
	fetcher tablestore.Fetcher
	metrics metrics
}

////////////////////////////////////////////////////////////////////////////////
// GLOBALS

const (
	writeBufferSize = 1024 * 1024
)

var (
	gzipMagic = []byte{0x1f, 0x8b}
)

////////////////////////////////////////////////////////////////////////////////
// LIFECYCLE

// NewReassembler returns a reassembler which fetches parts with fetcher
func NewReassembler(fetcher tablestore.Fetcher, opts ...Opt) (*Reassembler, error) {
	if fetcher == nil {
		return nil, httpresponse.ErrBadRequest.With("fetcher is required")
	}
	options, err := NewOptions(opts...)
	if err != nil {
		return nil, err
	}
	metrics, err := newMetrics(options.o.meter)
	if err != nil {
		return nil, err
	}
	return &Reassembler{
		Options: options,
		fetcher: fetcher,
		metrics: metrics,
	}, nil
}

////////////////////////////////////////////////////////////////////////////////
// PUBLIC METHODS

// Reassemble downloads the entries of a manifest and writes them, in manifest
// order, to the destination of the plan. Parts are decompressed when they are
// gzipped. The destination is only replaced when every mandatory entry was
// downloaded.
func (r *Reassembler) Reassemble(ctx context.Context, manifest *schema.Manifest, plan schema.ReassemblyPlan) (err error) {
	if manifest == nil {
		return httpresponse.ErrBadRequest.With("manifest is required")
	} else if plan.Path == "" {
		return httpresponse.ErrBadRequest.With("destination path is required")
	}

	// OTEL span
	ctx, endFunc := otel.StartSpan(r.o.tracer, ctx, spanName("Reassemble"))
	defer func() { endFunc(err) }()

	// Parts are downloaded next to the destination and always removed
	tmpdir, err := os.MkdirTemp(filepath.Dir(plan.Path), ".parts-*")
	if err != nil {
		return err
	}
	defer os.RemoveAll(tmpdir)

	// Download the parts
	paths, err := r.download(ctx, tmpdir, manifest.Entries)
	if err != nil {
		return err
	}

	// Concatenate the parts in manifest order
	return r.write(plan, func(w io.Writer) error {
		for _, path := range paths {
			if path == "" {
				continue
			}
			if err := copyFile(w, path); err != nil {
				return err
			}
		}
		return nil
	})
}

////////////////////////////////////////////////////////////////////////////////
// PRIVATE METHODS

// download fetches every entry into its own file in dir, with the file of
// each entry at the same index in the result. Skipped entries have an empty
// path.
func (r *Reassembler) download(ctx context.Context, dir string, entries []schema.ManifestEntry) ([]string, error) {
	paths := make([]string, len(entries))

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(r.SingleFileConcurrency())
	for i, entry := range entries {
		g.Go(func() error {
			path := filepath.Join(dir, schema.PartID(i+1))
			err := r.fetch(ctx, entry.URL, path)
			switch {
			case err == nil:
				paths[i] = path
				return nil
			case ctx.Err() != nil:
				return ctx.Err()
			case errors.Is(err, tablestore.ErrNotFound) && !entry.Mandatory && !r.o.strict:
				r.printf(ctx, "reassemble: skipping optional entry %d: %v", i, err)
				return nil
			default:
				return tablestore.ErrPartUnavailable.Withf("entry %d: %w", i, err)
			}
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	return paths, nil
}

// fetch writes the object at url to a new file at path
func (r *Reassembler) fetch(ctx context.Context, url, path string) error {
	body, err := r.fetcher.Fetch(ctx, url)
	if err != nil {
		return err
	}
	defer body.Close()

	w, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o600)
	if err != nil {
		return err
	}
	n, err := io.Copy(w, body)
	if err := errors.Join(err, w.Close()); err != nil {
		return tablestore.ErrTransientTransport.Withf("%s: %w", url, err)
	}

	r.metrics.part(ctx, "Reassemble")
	r.metrics.written(ctx, "Reassemble", n)

	return nil
}

// write creates a temporary file next to the destination, writes the header
// and body to it, compressing when the plan requires it, then renames it into
// place. The temporary file is removed on failure.
func (r *Reassembler) write(plan schema.ReassemblyPlan, body func(io.Writer) error) error {
	f, err := os.CreateTemp(filepath.Dir(plan.Path), "."+filepath.Base(plan.Path)+".*")
	if err != nil {
		return err
	}
	success := false
	defer func() {
		if !success {
			f.Close()
			os.Remove(f.Name())
		}
	}()

	// The whole output is one gzip stream when compressed
	buf := bufio.NewWriterSize(f, writeBufferSize)
	var w io.Writer = buf
	var gz *gzip.Writer
	if plan.Compress {
		gz = gzip.NewWriter(buf)
		w = gz
	}

	// Header then body
	if err := writeHeader(w, plan.Header); err != nil {
		return err
	}
	if err := body(w); err != nil {
		return err
	}

	// Flush and close
	if gz != nil {
		if err := gz.Close(); err != nil {
			return err
		}
	}
	if err := buf.Flush(); err != nil {
		return err
	}
	if err := f.Sync(); err != nil {
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	if err := os.Rename(f.Name(), plan.Path); err != nil {
		return err
	}

	success = true
	return nil
}

func copyFile(w io.Writer, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	_, err = copyDecompressed(w, f)
	return err
}

// copyDecompressed copies r to w, decompressing it when it starts with the
// gzip magic number. Concatenated gzip members are all decompressed.
func copyDecompressed(w io.Writer, r io.Reader) (int64, error) {
	br := bufio.NewReader(r)
	if magic, _ := br.Peek(len(gzipMagic)); !bytes.Equal(magic, gzipMagic) {
		return io.Copy(w, br)
	}
	gz, err := gzip.NewReader(br)
	if err != nil {
		return 0, err
	}
	defer gz.Close()
	return io.Copy(w, gz)
}
