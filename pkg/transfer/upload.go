package transfer

import (
	"cmp"
	"context"
	"fmt"
	"io"
	"maps"
	"os"
	"slices"
	"sync/atomic"
	"time"

	// Packages
	otel "github.com/mutablelogic/go-client/pkg/otel"
	httpresponse "github.com/mutablelogic/go-server/pkg/httpresponse"
	tablestore "github.com/mutablelogic/go-tablestore"
	schema "github.com/mutablelogic/go-tablestore/pkg/schema"
	errgroup "golang.org/x/sync/errgroup"
)

////////////////////////////////////////////////////////////////////////////////
// TYPES

// Uploader uploads local files to a backend as multipart uploads
type Uploader struct {
	Options
	backend tablestore.Backend
	metrics metrics
}

// uploadState is the state of one object during an upload. Handles and errors are
// only written between rounds, so they need no locking.
type uploadState struct {
	ref     schema.ObjectRef
	size    int64
	file    *os.File
	session tablestore.Upload
	parts   []schema.Part
	handles map[int]schema.PartHandle
	errs    map[int]error
	failed  error
	written atomic.Int64
	outcome *schema.TransferOutcome
}

// partTask is one part to put in a round
type partTask struct {
	upload *uploadState
	part   schema.Part
}

type partResult struct {
	handle schema.PartHandle
	err    error
}

////////////////////////////////////////////////////////////////////////////////
// LIFECYCLE

// NewUploader returns an uploader for a backend
func NewUploader(backend tablestore.Backend, opts ...Opt) (*Uploader, error) {
	if backend == nil {
		return nil, httpresponse.ErrBadRequest.With("backend is required")
	}
	options, err := NewOptions(opts...)
	if err != nil {
		return nil, err
	}
	metrics, err := newMetrics(options.o.meter)
	if err != nil {
		return nil, err
	}
	return &Uploader{
		Options: options,
		backend: backend,
		metrics: metrics,
	}, nil
}

////////////////////////////////////////////////////////////////////////////////
// PUBLIC METHODS

// Upload uploads each local file to its key. Parts of all files share one
// bounded pool of workers, and a failed part is re-issued with the same part
// number in the next round until it succeeds, fails permanently or runs out of
// rounds. Each file is committed once all its parts are accepted, and aborted
// otherwise. The outcome of every key is returned, together with an *Error
// when any key was not committed.
func (u *Uploader) Upload(ctx context.Context, refs ...schema.ObjectRef) (_ map[string]*schema.TransferOutcome, err error) {
	outcomes := make(map[string]*schema.TransferOutcome, len(refs))
	if len(refs) == 0 {
		return outcomes, nil
	}

	// Check for empty and duplicate keys
	for i, ref := range refs {
		if ref.Key == "" || ref.Path == "" {
			return nil, httpresponse.ErrBadRequest.Withf("object %d: key and path are required", i)
		}
		if _, exists := outcomes[ref.Key]; exists {
			return nil, httpresponse.ErrBadRequest.Withf("duplicate key %q", ref.Key)
		}
		outcomes[ref.Key] = nil
	}

	// OTEL span
	ctx, endFunc := otel.StartSpan(u.o.tracer, ctx, spanName("Upload"))
	defer func() { endFunc(err) }()

	// Open every file, and begin a multipart upload for non-empty ones
	uploads := make([]*uploadState, 0, len(refs))
	defer func() {
		for _, upload := range uploads {
			upload.close()
		}
	}()
	for _, ref := range refs {
		upload := u.begin(ctx, ref)
		uploads = append(uploads, upload)
	}

	// Put the parts in rounds
	limit := u.Concurrency(len(refs))
	for round := 0; round <= u.MaxRetriesPerPart(); round++ {
		tasks := pending(uploads)
		if len(tasks) == 0 || ctx.Err() != nil {
			break
		}
		if round > 0 {
			u.printf(ctx, "upload: retrying %d parts (round %d of %d)", len(tasks), round, u.MaxRetriesPerPart())
		}
		u.round(ctx, round, limit, tasks)
	}

	// Commit the complete uploads, and abort the rest
	for _, upload := range uploads {
		if upload.outcome == nil {
			u.finish(ctx, upload)
		}
		outcomes[upload.ref.Key] = upload.outcome
	}

	// Report failures
	var failed []*schema.TransferOutcome
	for _, outcome := range outcomes {
		if !outcome.Committed() {
			failed = append(failed, outcome)
		}
	}
	if len(failed) > 0 {
		slices.SortFunc(failed, func(a, b *schema.TransferOutcome) int {
			return cmp.Compare(a.Key, b.Key)
		})
		err = &Error{Failed: failed, Committed: len(outcomes) - len(failed)}
	}

	return outcomes, err
}

////////////////////////////////////////////////////////////////////////////////
// PRIVATE METHODS

// begin opens the file for a ref and starts its upload. Empty files are put
// directly, and failures are recorded in the outcome.
func (u *Uploader) begin(ctx context.Context, ref schema.ObjectRef) *uploadState {
	upload := &uploadState{
		ref:     ref,
		handles: make(map[int]schema.PartHandle),
		errs:    make(map[int]error),
	}

	// Open the file
	file, err := os.Open(ref.Path)
	if err != nil {
		return upload.fail(err)
	}
	upload.file = file
	if info, err := file.Stat(); err != nil {
		return upload.fail(err)
	} else if !info.Mode().IsRegular() {
		return upload.fail(httpresponse.ErrBadRequest.Withf("%q is not a regular file", ref.Path))
	} else {
		upload.size = info.Size()
	}

	// Empty files are put as a single object
	if upload.size == 0 {
		version, err := u.backend.PutObject(ctx, ref.Key, file, 0)
		if err != nil {
			return upload.fail(err)
		}
		upload.outcome = &schema.TransferOutcome{Key: ref.Key, Version: version}
		return upload
	}

	// Begin the multipart upload
	session, err := u.backend.Begin(ctx, ref.Key)
	if err != nil {
		return upload.fail(err)
	}
	upload.session = session
	upload.parts = Plan(ref.Key, upload.size, u.PartSize())

	return upload
}

// round puts each task with at most limit in flight, then merges the results
func (u *Uploader) round(ctx context.Context, round, limit int, tasks []partTask) {
	results := make([]partResult, len(tasks))

	var g errgroup.Group
	g.SetLimit(limit)
	for i, task := range tasks {
		g.Go(func() error {
			results[i] = u.put(ctx, round, task)
			return nil
		})
	}
	_ = g.Wait()

	for i, task := range tasks {
		upload, number := task.upload, task.part.Number
		if err := results[i].err; err == nil {
			upload.handles[number] = results[i].handle
			delete(upload.errs, number)
		} else {
			upload.errs[number] = err
			if upload.failed == nil && (tablestore.IsPermanent(err) || ctx.Err() != nil) {
				upload.failed = fmt.Errorf("part %s: %w", task.part.ID(), err)
			}
		}
	}
}

// put waits for the round backoff and puts one part
func (u *Uploader) put(ctx context.Context, round int, task partTask) partResult {
	upload, part := task.upload, task.part
	if round > 0 {
		if err := sleep(ctx, u.Delay(round)); err != nil {
			return partResult{err: err}
		}
		u.metrics.retry(ctx, "Upload")
	}

	body := io.NewSectionReader(upload.file, part.Offset, part.Size)
	handle, err := upload.session.PutPart(ctx, part, body)
	if err != nil {
		u.printf(ctx, "upload: %s part %s: %v", part.Key, part.ID(), err)
		return partResult{err: err}
	}
	if handle.Number == 0 {
		handle.Number = part.Number
	}
	if handle.Size == 0 {
		handle.Size = part.Size
	}

	// Counters and progress
	u.metrics.part(ctx, "Upload")
	u.metrics.written(ctx, "Upload", part.Size)
	written := upload.written.Add(part.Size)
	if u.o.progress != nil {
		u.o.progress(part.Key, written, upload.size)
	}

	return partResult{handle: handle}
}

// finish commits an upload with every part accepted, or else aborts it
func (u *Uploader) finish(ctx context.Context, upload *uploadState) {
	key := upload.ref.Key
	if upload.failed == nil && ctx.Err() != nil {
		upload.failed = ctx.Err()
	}
	if upload.failed == nil && len(upload.handles) == len(upload.parts) {
		handles := slices.SortedFunc(maps.Values(upload.handles), func(a, b schema.PartHandle) int {
			return a.Number - b.Number
		})
		version, err := upload.session.Commit(ctx, handles)
		if err == nil {
			upload.outcome = &schema.TransferOutcome{Key: key, Version: version}
			return
		}
		upload.failed = err
	}

	// Abort with a context which survives cancellation of the upload
	if err := upload.session.Abort(context.WithoutCancel(ctx)); err != nil {
		u.printf(ctx, "upload: abort %s: %v", key, err)
	}

	upload.outcome = &schema.TransferOutcome{
		Key:          key,
		Err:          upload.err(),
		MissingParts: upload.missing(),
	}
}

func (upload *uploadState) fail(err error) *uploadState {
	upload.outcome = &schema.TransferOutcome{
		Key: upload.ref.Key,
		Err: fmt.Errorf("%s: %w", upload.ref.Key, err),
	}
	return upload
}

// err returns the reason an upload was not committed
func (upload *uploadState) err() error {
	if upload.failed != nil {
		return upload.failed
	}
	missing := upload.missing()
	if len(missing) == 0 || upload.errs[missing[0]] == nil {
		return tablestore.ErrRetriesExhausted.With(upload.ref.Key)
	}
	return tablestore.ErrRetriesExhausted.Withf("part %s: %w", schema.PartID(missing[0]), upload.errs[missing[0]])
}

// missing returns the numbers of parts without a handle
func (upload *uploadState) missing() []int {
	var result []int
	for _, part := range upload.parts {
		if _, exists := upload.handles[part.Number]; !exists {
			result = append(result, part.Number)
		}
	}
	return result
}

func (upload *uploadState) close() {
	if upload.file != nil {
		upload.file.Close()
	}
}

// pending returns the parts still to put, in object and part order
func pending(uploads []*uploadState) []partTask {
	var result []partTask
	for _, upload := range uploads {
		if upload.outcome != nil || upload.failed != nil {
			continue
		}
		for _, part := range upload.parts {
			if _, exists := upload.handles[part.Number]; !exists {
				result = append(result, partTask{upload: upload, part: part})
			}
		}
	}
	return result
}

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
