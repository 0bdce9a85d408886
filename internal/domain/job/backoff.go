package job

import (
	"errors"
	"time"
)

// ErrEmptySchedule indicates a backoff policy was configured with no delays.
var ErrEmptySchedule = errors.New("backoff schedule must contain at least one delay")

// Default retry budgets.
const (
	DefaultAnalysisMaxRetries = 2
	DefaultCallbackMaxRetries = 2
	DefaultCallbackDelay      = 5 * time.Second
)

// DefaultAnalysisDelays is the fixed analysis retry schedule indexed by attempt.
func DefaultAnalysisDelays() []time.Duration {
	return []time.Duration{30 * time.Second, 60 * time.Second}
}

// BackoffPolicy decides whether a failed attempt is retried and how long to wait.
// Delays are a fixed schedule indexed by attempt; there is no jitter or growth.
type BackoffPolicy struct {
	delays     []time.Duration
	maxRetries int
	classify   bool
}

// NewAnalysisPolicy builds the policy applied around the analyzer stage.
// Only errors tagged KindRetryable are retried.
func NewAnalysisPolicy(delays []time.Duration, maxRetries int) (*BackoffPolicy, error) {
	if len(delays) == 0 {
		return nil, ErrEmptySchedule
	}
	if maxRetries < 0 {
		maxRetries = 0
	}
	return &BackoffPolicy{delays: append([]time.Duration(nil), delays...), maxRetries: maxRetries, classify: true}, nil
}

// NewConstantPolicy builds a policy that retries every failure after the same delay.
func NewConstantPolicy(delay time.Duration, maxRetries int) *BackoffPolicy {
	if delay < 0 {
		delay = 0
	}
	if maxRetries < 0 {
		maxRetries = 0
	}
	return &BackoffPolicy{delays: []time.Duration{delay}, maxRetries: maxRetries}
}

// MaxRetries returns the retry budget.
func (p *BackoffPolicy) MaxRetries() int {
	if p == nil {
		return 0
	}
	return p.maxRetries
}

// MaxAttempts returns the total number of attempts the budget allows.
func (p *BackoffPolicy) MaxAttempts() int {
	return p.MaxRetries() + 1
}

// Decision captures the outcome of evaluating a failed attempt.
type Decision struct {
	Retry   bool
	Delay   time.Duration
	Kind    ErrorKind
	Attempt int
}

// Decide evaluates err raised by the 0-based attempt.
func (p *BackoffPolicy) Decide(err error, attempt int) Decision {
	d := Decision{Attempt: attempt, Kind: KindRetryable}
	if p == nil || err == nil {
		return d
	}
	if p.classify {
		d.Kind = KindOf(err)
		if d.Kind != KindRetryable {
			return d
		}
	}
	if attempt < 0 || attempt >= p.maxRetries {
		return d
	}
	d.Retry = true
	d.Delay = p.delayFor(attempt)
	return d
}

// delayFor returns the scheduled delay; a short schedule repeats its last entry.
func (p *BackoffPolicy) delayFor(attempt int) time.Duration {
	if attempt < len(p.delays) {
		return p.delays[attempt]
	}
	return p.delays[len(p.delays)-1]
}
