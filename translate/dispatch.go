package translate

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/minios-linux/mnbkit/chunk"
	"github.com/minios-linux/mnbkit/progress"
	"github.com/minios-linux/mnbkit/prompt"
	"github.com/minios-linux/mnbkit/provider"
	"github.com/minios-linux/mnbkit/retry"
	"github.com/minios-linux/mnbkit/tags"
)

// ---------------------------------------------------------------------------
// Rate limit gate
// ---------------------------------------------------------------------------

// pauseGate holds every worker back until a server-requested pause ends.
type pauseGate struct {
	mu    sync.Mutex
	until time.Time
}

// pause closes the gate for at least d from now. A longer pause in effect
// is kept.
func (g *pauseGate) pause(d time.Duration) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if end := time.Now().Add(d); end.After(g.until) {
		g.until = end
	}
}

func (g *pauseGate) remaining() time.Duration {
	g.mu.Lock()
	defer g.mu.Unlock()
	return time.Until(g.until)
}

// wait blocks while the gate is closed. The deadline is re-read after each
// sleep since another worker may extend it.
func (g *pauseGate) wait(ctx context.Context) error {
	for {
		d := g.remaining()
		if d <= 0 {
			return nil
		}
		t := time.NewTimer(d)
		select {
		case <-ctx.Done():
			t.Stop()
			return ctx.Err()
		case <-t.C:
		}
	}
}

// ---------------------------------------------------------------------------
// Dispatcher
// ---------------------------------------------------------------------------

// run is the shared state of one TranslateAll invocation.
type run struct {
	id      string
	opts    *Options
	client  provider.Client
	sink    progress.Sink
	results []ChunkResult

	// ctx is the caller's context (user cancellation); workCtx is also
	// cancelled on abort.
	ctx     context.Context
	workCtx context.Context
	stop    context.CancelFunc
	abort   atomic.Pointer[FatalError]

	gate pauseGate

	progressMu sync.Mutex
	completed  atomic.Int64
	total      int
}

func (r *run) emit(e progress.Event) {
	e.RunID = r.id
	r.sink.Report(e)
}

func (r *run) status(idx int, format string, args ...any) {
	r.emit(progress.Event{Kind: progress.Status, Chunk: idx, Message: fmt.Sprintf(format, args...)})
}

func (r *run) errorEvent(idx int, format string, args ...any) {
	r.emit(progress.Event{Kind: progress.Error, Chunk: idx, Message: fmt.Sprintf(format, args...)})
}

// resolve stores the result for a non-empty chunk and reports progress.
func (r *run) resolve(res ChunkResult) {
	r.results[res.Index] = res
	r.progressMu.Lock()
	defer r.progressMu.Unlock()
	n := r.completed.Add(1)
	r.emit(progress.Event{Kind: progress.Progress, Chunk: res.Index, Completed: int(n), Total: r.total})
}

// requestAbort records the first fatal failure and stops all workers.
func (r *run) requestAbort(idx int, err error) {
	if r.abort.CompareAndSwap(nil, &FatalError{Chunk: idx, Err: err}) {
		r.stop()
	}
}

func (r *run) aborted() bool {
	return r.abort.Load() != nil
}

// TranslateAll translates chunks with a bounded worker pool and returns one
// ChunkResult per chunk, at the chunk's index. Empty chunks resolve as
// Fallback without a call. Chunks are submitted in index order; completion
// order is arbitrary.
//
// If ctx is cancelled, unsubmitted chunks and chunks whose call returns
// after the cancellation resolve as Cancelled and ErrCancelled is returned
// with the results. A cancel that arrives after every chunk resolved is
// ignored. If a call fails with an authorization error the run is
// aborted: nil results and a *FatalError are returned.
func TranslateAll(ctx context.Context, chunks []chunk.Chunk, client provider.Client, opts Options) ([]ChunkResult, error) {
	workCtx, stop := context.WithCancel(ctx)
	defer stop()

	r := &run{
		id:      uuid.NewString(),
		opts:    &opts,
		client:  client,
		sink:    opts.sink(),
		results: make([]ChunkResult, len(chunks)),
		ctx:     ctx,
		workCtx: workCtx,
		stop:    stop,
		total:   chunk.CountNonEmpty(chunks),
	}

	workers := opts.effectiveConcurrency()
	if opts.Verbose {
		log.Printf("[DEBUG] run %s: %d chunks (%d to translate), %d workers, model %q",
			r.id, len(chunks), r.total, workers, opts.Model)
	}

	sem := make(chan struct{}, workers)
	var wg sync.WaitGroup
	launched := 0

	for i, c := range chunks {
		if r.aborted() {
			r.results[i] = ChunkResult{Index: i, Status: Cancelled}
			continue
		}
		if ctx.Err() != nil {
			r.cancelPending(c)
			continue
		}

		if c.Empty {
			r.results[i] = ChunkResult{Index: i, Status: Fallback, Text: c.Text()}
			r.status(i, "chunk %d is empty, kept as is", i+1)
			continue
		}

		protected := tags.Protect(c.Text())
		rendered, renderErr := prompt.Render(opts.Template, protected, opts.Language)
		if renderErr == nil && opts.Cache != nil {
			if text, ok := opts.Cache.Lookup(opts.Model, rendered); ok {
				r.resolve(ChunkResult{Index: i, Status: Translated, Text: text + c.Terminator(), Cached: true})
				continue
			}
		}

		// Delay between launching workers (skip first)
		if launched > 0 && opts.RequestDelay > 0 {
			select {
			case <-workCtx.Done():
			case <-time.After(opts.RequestDelay):
			}
			if workCtx.Err() != nil {
				r.stopAt(c)
				continue
			}
		}

		select {
		case sem <- struct{}{}:
		case <-workCtx.Done():
			r.stopAt(c)
			continue
		}

		launched++
		wg.Add(1)
		go func(c chunk.Chunk, rendered string, renderErr error) {
			defer func() {
				<-sem
				wg.Done()
			}()
			r.work(c, rendered, renderErr)
		}(c, rendered, renderErr)
	}

	wg.Wait()

	if fatal := r.abort.Load(); fatal != nil {
		r.errorEvent(fatal.Chunk, "aborted: %v", fatal.Err)
		r.terminal(progress.Error, "error")
		r.opts.logError("translation aborted: %v", fatal.Err)
		return nil, fatal
	}
	// A cancel that lands after the last chunk resolved changes nothing.
	if ctx.Err() != nil && r.anyCancelled() {
		r.terminal(progress.Status, "cancelled")
		return r.results, ErrCancelled
	}
	if r.total == 0 {
		r.emit(progress.Event{Kind: progress.Progress, Chunk: -1, Completed: 0, Total: 0})
	}
	return r.results, nil
}

func (r *run) anyCancelled() bool {
	for _, res := range r.results {
		if res.Status == Cancelled {
			return true
		}
	}
	return false
}

func (r *run) terminal(kind progress.Kind, msg string) {
	r.emit(progress.Event{Kind: kind, Chunk: -1, Message: msg, Terminal: true})
}

// cancelPending resolves a chunk that will not be submitted because the
// caller cancelled.
func (r *run) cancelPending(c chunk.Chunk) {
	if c.Empty {
		r.results[c.Index] = ChunkResult{Index: c.Index, Status: Cancelled}
		return
	}
	r.resolve(ChunkResult{Index: c.Index, Status: Cancelled})
}

// stopAt resolves a chunk that could not be submitted because workCtx ended.
func (r *run) stopAt(c chunk.Chunk) {
	if r.aborted() {
		r.results[c.Index] = ChunkResult{Index: c.Index, Status: Cancelled}
		return
	}
	r.cancelPending(c)
}

// work translates one chunk, retrying per policy.
func (r *run) work(c chunk.Chunk, rendered string, renderErr error) {
	opts := r.opts
	policy := opts.Retry
	original := c.Text()

	if renderErr != nil {
		err := retry.New(retry.InvalidRequest, renderErr)
		r.errorEvent(c.Index, "chunk %d: %v; keeping original text", c.Index+1, err)
		r.resolve(ChunkResult{Index: c.Index, Status: Fallback, Text: original, Err: err})
		return
	}

	attempts := 0
	for retries := 0; ; retries++ {
		if err := r.gate.wait(r.workCtx); err != nil || r.workCtx.Err() != nil {
			r.interrupted(c, attempts)
			return
		}

		attempts++
		if opts.Verbose {
			log.Printf("[DEBUG] chunk %d attempt %d", c.Index+1, attempts)
		}
		out, err := r.client.Translate(r.workCtx, rendered, opts.Model)

		// Results that arrive after cancellation are discarded.
		if r.workCtx.Err() != nil {
			r.interrupted(c, attempts)
			return
		}

		if err == nil {
			restored := strings.TrimSpace(tags.Restore(out))
			if lost := tags.Count(original) - tags.Count(restored); lost > 0 {
				opts.log("[WARN] chunk %d: %d placeholder(s) missing from translation", c.Index+1, lost)
			}
			if opts.Cache != nil {
				opts.Cache.Store(opts.Model, rendered, restored)
			}
			r.resolve(ChunkResult{
				Index:    c.Index,
				Status:   Translated,
				Text:     restored + c.Terminator(),
				Attempts: attempts,
			})
			return
		}

		if policy.IsFatal(err) {
			r.requestAbort(c.Index, err)
			return
		}

		if !policy.IsRetryable(err) || policy.Exhausted(retries) {
			reason := "not retryable"
			if policy.IsRetryable(err) {
				reason = fmt.Sprintf("gave up after %d attempts", attempts)
			}
			r.errorEvent(c.Index, "chunk %d: %v (%s); keeping original text", c.Index+1, err, reason)
			opts.logError("chunk %d: %v", c.Index+1, err)
			r.resolve(ChunkResult{Index: c.Index, Status: Fallback, Text: original, Err: err, Attempts: attempts})
			return
		}

		wait := policy.Delay(retries, err)
		kind := retry.Classify(err)
		if kind == retry.RateLimited {
			var f *retry.Failure
			if errors.As(err, &f) && f.RetryAfter > 0 {
				r.gate.pause(wait)
			}
		}
		r.status(c.Index, "chunk %d: %s, retrying in %v (attempt %d/%d)",
			c.Index+1, kind, wait, attempts+1, policy.Retries()+1)
		if opts.Verbose {
			log.Printf("[WARN] chunk %d: %v, waiting %v before retry", c.Index+1, err, wait)
		}

		select {
		case <-r.workCtx.Done():
			r.interrupted(c, attempts)
			return
		case <-time.After(wait):
		}
	}
}

// interrupted resolves a chunk whose worker stopped because of cancellation
// or abort.
func (r *run) interrupted(c chunk.Chunk, attempts int) {
	res := ChunkResult{Index: c.Index, Status: Cancelled, Attempts: attempts}
	if r.aborted() {
		r.results[c.Index] = res
		return
	}
	r.resolve(res)
}
