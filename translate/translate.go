// Package translate runs the chunked translation pipeline: split the source
// into line-bounded chunks, protect placeholder tags, dispatch the chunks to a
// provider.Client through a bounded worker pool with retries, reassemble the
// results in source order and apply the glossary.
package translate

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/minios-linux/mnbkit/chunk"
	"github.com/minios-linux/mnbkit/glossary"
	"github.com/minios-linux/mnbkit/progress"
	"github.com/minios-linux/mnbkit/prompt"
	"github.com/minios-linux/mnbkit/provider"
	"github.com/minios-linux/mnbkit/retry"
)

// ---------------------------------------------------------------------------
// Errors
// ---------------------------------------------------------------------------

var (
	// ErrCancelled is returned by TranslateAll when the caller's context was
	// cancelled before every chunk resolved.
	ErrCancelled = errors.New("translation cancelled")
	// ErrAborted matches every *FatalError.
	ErrAborted = errors.New("translation aborted")
)

// FatalError is returned when a failure invalidates the whole run (an
// authentication or authorization failure). No partial results accompany it.
type FatalError struct {
	// Chunk is the index of the chunk whose call failed.
	Chunk int
	Err   error
}

func (e *FatalError) Error() string {
	return fmt.Sprintf("translation aborted at chunk %d: %v", e.Chunk+1, e.Err)
}

func (e *FatalError) Unwrap() error { return e.Err }

// Is makes errors.Is(err, ErrAborted) true.
func (e *FatalError) Is(target error) bool { return target == ErrAborted }

// ---------------------------------------------------------------------------
// Results
// ---------------------------------------------------------------------------

// Status is the terminal state of one chunk.
type Status int

const (
	// Translated: the provider returned text (or the cache had it).
	Translated Status = iota
	// Fallback: the chunk is empty or could not be translated; Text holds
	// the original.
	Fallback
	// Cancelled: the chunk was not translated because the run stopped.
	Cancelled
)

func (s Status) String() string {
	switch s {
	case Translated:
		return "translated"
	case Fallback:
		return "fallback"
	case Cancelled:
		return "cancelled"
	}
	return fmt.Sprintf("Status(%d)", int(s))
}

// ChunkResult is the outcome of one chunk.
type ChunkResult struct {
	Index  int
	Status Status
	// Text is the translation for Translated, the original chunk text for
	// Fallback, and empty for Cancelled.
	Text string
	// Err is the last failure of a Fallback chunk (nil for empty chunks).
	Err error
	// Attempts counts provider calls made for this chunk.
	Attempts int
	// Cached is set when the translation came from the cache.
	Cached bool
}

// Cache is a translation memory consulted before calling the provider.
// *cache.Memory implements it.
type Cache interface {
	Lookup(model, prompt string) (string, bool)
	Store(model, prompt, text string)
}

// ---------------------------------------------------------------------------
// Translation options
// ---------------------------------------------------------------------------

// Options controls the translation behavior.
type Options struct {
	// Model is passed to the client on every call.
	Model string
	// Template is the prompt template; it must contain {text_to_translate}.
	Template string
	// Language is the human-readable target language (e.g., "Korean").
	Language string
	// ChunkSize is the number of lines per chunk (0 = chunk.DefaultSize).
	ChunkSize int
	// Concurrency is the number of calls in flight. 0 derives it from
	// ConcurrencyTable and Model.
	Concurrency int
	// ConcurrencyTable maps models to worker counts (nil = built-in table).
	ConcurrencyTable provider.ConcurrencyTable
	// Retry is the per-chunk retry policy.
	Retry retry.Policy
	// RequestDelay is the delay between launching workers.
	RequestDelay time.Duration
	// Glossary holds the merged active terms applied after reassembly.
	Glossary glossary.Terms
	// GlossaryOptions controls glossary matching.
	GlossaryOptions glossary.Options
	// Cache, if set, short-circuits chunks translated before.
	Cache Cache
	// Progress receives status, progress and error events (nil = discard).
	Progress progress.Sink
	// OnLog emits log messages during translation.
	OnLog func(format string, args ...any)
	// OnError emits error messages during translation.
	OnError func(format string, args ...any)
	// Verbose enables detailed logging.
	Verbose bool
}

// DefaultOptions returns options with the default chunk size and retry
// policy.
func DefaultOptions() Options {
	return Options{
		ChunkSize:       chunk.DefaultSize,
		Retry:           retry.DefaultPolicy(),
		GlossaryOptions: glossary.DefaultOptions(),
	}
}

func (o *Options) log(format string, args ...any) {
	if o.OnLog != nil {
		o.OnLog(format, args...)
	}
}

func (o *Options) logError(format string, args ...any) {
	if o.OnError != nil {
		o.OnError(format, args...)
	} else if o.OnLog != nil {
		o.OnLog(format, args...)
	}
}

func (o *Options) effectiveChunkSize() int {
	if o.ChunkSize == 0 {
		return chunk.DefaultSize
	}
	return o.ChunkSize
}

func (o *Options) effectiveConcurrency() int {
	if o.Concurrency > 0 {
		return o.Concurrency
	}
	table := o.ConcurrencyTable
	if table == nil {
		table = provider.DefaultConcurrencyTable()
	}
	return table.Concurrency(o.Model)
}

func (o *Options) sink() progress.Sink {
	if o.Progress != nil {
		return o.Progress
	}
	return progress.Discard
}

// ---------------------------------------------------------------------------
// Whole-document pipeline
// ---------------------------------------------------------------------------

// RunStatus is the overall outcome of Translate.
type RunStatus int

const (
	// Done: every chunk resolved; Text holds the document.
	Done RunStatus = iota
	// RunCancelled: the context was cancelled; Text is empty.
	RunCancelled
)

func (s RunStatus) String() string {
	if s == RunCancelled {
		return "cancelled"
	}
	return "done"
}

// Stats summarizes a run.
type Stats struct {
	Chunks     int
	Empty      int
	Translated int
	Cached     int
	Fallback   int
	Cancelled  int
	Calls      int
}

// Collect tallies results.
func Collect(results []ChunkResult, chunks []chunk.Chunk) Stats {
	s := Stats{Chunks: len(results)}
	for i, r := range results {
		s.Calls += r.Attempts
		switch r.Status {
		case Translated:
			s.Translated++
			if r.Cached {
				s.Cached++
			}
		case Fallback:
			if i < len(chunks) && chunks[i].Empty {
				s.Empty++
			} else {
				s.Fallback++
			}
		case Cancelled:
			s.Cancelled++
		}
	}
	return s
}

// Outcome is the result of Translate.
type Outcome struct {
	Status RunStatus
	Text   string
	Chunks []ChunkResult
	Stats  Stats
}

// Translate runs the full pipeline over text. Configuration errors (bad
// chunk size, template without placeholder) are returned before any call is
// made. A cancelled run returns an Outcome with Status RunCancelled and a
// nil error; a fatal failure returns a *FatalError and no Outcome.
func Translate(ctx context.Context, text string, client provider.Client, opts Options) (*Outcome, error) {
	if err := prompt.Validate(opts.Template); err != nil {
		return nil, fmt.Errorf("%w: %w", chunk.ErrInvalidConfiguration, err)
	}
	chunks, err := chunk.Split(text, opts.effectiveChunkSize())
	if err != nil {
		return nil, err
	}

	results, err := TranslateAll(ctx, chunks, client, opts)
	if errors.Is(err, ErrCancelled) {
		return &Outcome{Status: RunCancelled, Chunks: results, Stats: Collect(results, chunks)}, nil
	}
	if err != nil {
		return nil, err
	}

	parts := make([]string, len(results))
	for i, r := range results {
		parts[i] = r.Text
	}
	joined := chunk.Join(parts)
	if len(opts.Glossary) > 0 {
		joined = glossary.Apply(joined, opts.Glossary, opts.GlossaryOptions, opts.logError)
	}

	return &Outcome{
		Status: Done,
		Text:   joined,
		Chunks: results,
		Stats:  Collect(results, chunks),
	}, nil
}
