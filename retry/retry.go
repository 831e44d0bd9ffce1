// Package retry classifies translation-call failures and computes backoff.
//
// Provider adapters map their library-specific errors into a *Failure with a
// FailureKind at the call boundary. Everything above the adapters reasons only
// about that closed set of kinds.
package retry

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"syscall"
	"time"
)

// FailureKind is the closed set of failure classes a translation call can
// produce.
type FailureKind int

const (
	Unknown FailureKind = iota
	Unauthorized
	RateLimited
	Timeout
	Unavailable
	Network
	InvalidRequest
)

var kindNames = map[FailureKind]string{
	Unknown:        "unknown",
	Unauthorized:   "unauthorized",
	RateLimited:    "rate-limited",
	Timeout:        "timeout",
	Unavailable:    "service-unavailable",
	Network:        "network",
	InvalidRequest: "invalid-request",
}

func (k FailureKind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return fmt.Sprintf("FailureKind(%d)", int(k))
}

// ParseKind is the inverse of String. Unrecognized names map to Unknown.
func ParseKind(s string) FailureKind {
	s = strings.ToLower(strings.TrimSpace(s))
	for k, name := range kindNames {
		if name == s {
			return k
		}
	}
	return Unknown
}

// Failure is an error tagged with its FailureKind.
type Failure struct {
	Kind FailureKind
	Err  error
	// RetryAfter is a server-provided hint for RateLimited failures (0 = none).
	RetryAfter time.Duration
}

// New wraps err into a Failure of the given kind.
func New(kind FailureKind, err error) *Failure {
	return &Failure{Kind: kind, Err: err}
}

// Newf creates a Failure with a formatted message.
func Newf(kind FailureKind, format string, args ...any) *Failure {
	return &Failure{Kind: kind, Err: fmt.Errorf(format, args...)}
}

func (f *Failure) Error() string {
	if f.Err == nil {
		return f.Kind.String()
	}
	return f.Kind.String() + ": " + f.Err.Error()
}

func (f *Failure) Unwrap() error {
	return f.Err
}

// Classify returns the FailureKind of err. A *Failure anywhere in the chain
// wins; otherwise deadlines and network errors are recognized, and anything
// else is Unknown.
func Classify(err error) FailureKind {
	if err == nil {
		return Unknown
	}
	var f *Failure
	if errors.As(err, &f) {
		return f.Kind
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return Timeout
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return Timeout
	}
	var opErr *net.OpError
	var dnsErr *net.DNSError
	if errors.As(err, &opErr) || errors.As(err, &dnsErr) ||
		errors.Is(err, syscall.ECONNRESET) || errors.Is(err, syscall.ECONNREFUSED) {
		return Network
	}
	return Unknown
}

// retryAfter returns the RetryAfter hint carried by err, if any.
func retryAfter(err error) time.Duration {
	var f *Failure
	if errors.As(err, &f) {
		return f.RetryAfter
	}
	return 0
}

// Defaults.
const (
	DefaultMaxRetries   = 2
	DefaultInitialDelay = time.Second
	DefaultMaxDelay     = 60 * time.Second
)

// Policy decides whether a failed call is retried and how long to wait.
type Policy struct {
	// MaxRetries bounds the retries after the first attempt.
	MaxRetries int
	// InitialDelay is the backoff for the first retry (0 = DefaultInitialDelay).
	InitialDelay time.Duration
	// MaxDelay caps any single wait (0 = no cap).
	MaxDelay time.Duration
}

// DefaultPolicy allows 2 retries (3 attempts) starting at 1s.
func DefaultPolicy() Policy {
	return Policy{
		MaxRetries:   DefaultMaxRetries,
		InitialDelay: DefaultInitialDelay,
		MaxDelay:     DefaultMaxDelay,
	}
}

func (p Policy) effectiveInitialDelay() time.Duration {
	if p.InitialDelay > 0 {
		return p.InitialDelay
	}
	return DefaultInitialDelay
}

// Retries returns the retry budget (never negative).
func (p Policy) Retries() int {
	if p.MaxRetries < 0 {
		return 0
	}
	return p.MaxRetries
}

// IsRetryable reports whether err belongs to a transient class.
func (p Policy) IsRetryable(err error) bool {
	switch Classify(err) {
	case RateLimited, Timeout, Unavailable, Network:
		return true
	}
	return false
}

// IsFatal reports whether err invalidates every remaining call of the run.
func (p Policy) IsFatal(err error) bool {
	return Classify(err) == Unauthorized
}

// Exhausted reports whether the given number of retries already performed
// uses up the budget.
func (p Policy) Exhausted(retriesDone int) bool {
	return retriesDone >= p.Retries()
}

// ShouldRetry combines IsRetryable and Exhausted.
func (p Policy) ShouldRetry(err error, retriesDone int) bool {
	return p.IsRetryable(err) && !p.Exhausted(retriesDone)
}

// BackoffDelay returns InitialDelay * 2^attempt, capped at MaxDelay.
func (p Policy) BackoffDelay(attempt int) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	d := p.effectiveInitialDelay()
	for i := 0; i < attempt; i++ {
		d *= 2
		if p.MaxDelay > 0 && d >= p.MaxDelay {
			return p.MaxDelay
		}
	}
	if p.MaxDelay > 0 && d > p.MaxDelay {
		return p.MaxDelay
	}
	return d
}

// Delay is BackoffDelay, raised to the server's RetryAfter hint when err
// carries a longer one. The result is capped at MaxDelay.
func (p Policy) Delay(attempt int, err error) time.Duration {
	d := p.BackoffDelay(attempt)
	if hint := retryAfter(err); hint > d {
		d = hint
	}
	if p.MaxDelay > 0 && d > p.MaxDelay {
		d = p.MaxDelay
	}
	return d
}
