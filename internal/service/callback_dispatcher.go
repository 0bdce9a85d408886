package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/target/policy-analysis-api/internal/core"
	"github.com/target/policy-analysis-api/internal/domain/job"
	"github.com/target/policy-analysis-api/internal/domain/model"
	"github.com/target/policy-analysis-api/internal/observability/metrics"
	"github.com/target/policy-analysis-api/internal/observability/statsd"
)

const (
	defaultCallbackTimeout = 30 * time.Second
	maxCallbackBodyBytes   = 4 << 10
)

// CallbackDispatcherOptions groups dependencies for CallbackDispatcher.
type CallbackDispatcherOptions struct {
	Secret  string             // Optional: HMAC secret; unsigned when empty
	Timeout time.Duration      // Optional: per-attempt timeout (default 30s)
	Policy  *job.BackoffPolicy // Optional: defaults to 2 retries, 5s apart
	Client  *http.Client       // Optional: HTTP client
	Sleeper core.Sleeper       // Optional: retry delay (default real timer)
	Metrics statsd.Sink        // Optional: metrics sink
	Logger  *slog.Logger       // Optional: structured logger
}

// CallbackDispatcher POSTs signed callback envelopes with a fixed retry budget.
type CallbackDispatcher struct {
	secret  string
	timeout time.Duration
	policy  *job.BackoffPolicy
	client  *http.Client
	sleeper core.Sleeper
	metrics statsd.Sink
	logger  *slog.Logger
}

var _ core.CallbackSender = (*CallbackDispatcher)(nil)

// NewCallbackDispatcher constructs a CallbackDispatcher.
func NewCallbackDispatcher(opts CallbackDispatcherOptions) *CallbackDispatcher {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = defaultCallbackTimeout
	}
	policy := opts.Policy
	if policy == nil {
		policy = job.NewConstantPolicy(job.DefaultCallbackDelay, job.DefaultCallbackMaxRetries)
	}
	client := opts.Client
	if client == nil {
		client = &http.Client{}
	}
	sleeper := opts.Sleeper
	if sleeper == nil {
		sleeper = core.TimerSleeper{}
	}
	return &CallbackDispatcher{
		secret:  opts.Secret,
		timeout: timeout,
		policy:  policy,
		client:  client,
		sleeper: sleeper,
		metrics: opts.Metrics,
		logger:  logger.With("component", "callback_dispatcher"),
	}
}

// Deliver sends env to url. Delivery failure after the retry budget is logged and dropped.
func (d *CallbackDispatcher) Deliver(ctx context.Context, url string, env model.CallbackEnvelope) {
	_ = d.Send(ctx, url, env)
}

// Send is Deliver returning the final delivery error.
func (d *CallbackDispatcher) Send(ctx context.Context, url string, env model.CallbackEnvelope) error {
	body, err := env.Marshal()
	if err != nil {
		d.logger.ErrorContext(ctx, "callback envelope encode failed", "analysis_id", env.AnalysisID, "error", err)
		return err
	}

	signature := ""
	if d.secret != "" {
		signature = job.Sign(body, d.secret)
	}

	start := time.Now()
	var lastErr error
	attempts := 0
	for attempt := range d.policy.MaxAttempts() {
		attempts++
		lastErr = d.post(ctx, url, body, signature)
		if lastErr == nil {
			d.logger.InfoContext(ctx, "callback delivered",
				"analysis_id", env.AnalysisID,
				"status", env.Status,
				"attempt", attempt+1)
			metrics.EmitDelivery(d.metrics, metrics.DeliveryMetric{
				Kind: "callback", Result: metrics.ResultSuccess, Attempts: attempts, Duration: time.Since(start),
			})
			return nil
		}

		decision := d.policy.Decide(lastErr, attempt)
		if !decision.Retry {
			break
		}
		d.logger.WarnContext(ctx, "callback attempt failed, retrying",
			"analysis_id", env.AnalysisID,
			"attempt", attempt+1,
			"delay", decision.Delay,
			"error", lastErr)
		if err := d.sleeper.Sleep(ctx, decision.Delay); err != nil {
			lastErr = errors.Join(lastErr, err)
			break
		}
	}

	d.logger.ErrorContext(ctx, "callback delivery failed",
		"analysis_id", env.AnalysisID,
		"url", redactURL(url),
		"attempts", attempts,
		"error", lastErr)
	metrics.EmitDelivery(d.metrics, metrics.DeliveryMetric{
		Kind: "callback", Result: metrics.ResultError, Attempts: attempts, Duration: time.Since(start), Err: lastErr,
	})
	return fmt.Errorf("callback delivery after %d attempts: %w", attempts, lastErr)
}

func (d *CallbackDispatcher) post(ctx context.Context, url string, body []byte, signature string) error {
	ctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if signature != "" {
		req.Header.Set(job.SignatureHeader, signature)
	}

	resp, err := d.client.Do(req)
	if err != nil {
		return fmt.Errorf("send request: %w", err)
	}

	respBody, readErr := io.ReadAll(io.LimitReader(resp.Body, maxCallbackBodyBytes))
	closeErr := resp.Body.Close()
	if readErr != nil || closeErr != nil {
		return errors.Join(readErr, closeErr)
	}

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status: got %d, want %d: %s",
			resp.StatusCode, http.StatusOK, strings.TrimSpace(string(respBody)))
	}
	return nil
}

// redactURL strips the query string, which commonly carries tokens.
func redactURL(u string) string {
	if i := strings.IndexAny(u, "?#"); i >= 0 {
		return u[:i]
	}
	return u
}
