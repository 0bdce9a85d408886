package service

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/target/policy-analysis-api/internal/core"
	"github.com/target/policy-analysis-api/internal/domain/model"
	obserrors "github.com/target/policy-analysis-api/internal/observability/errors"
	"github.com/target/policy-analysis-api/internal/observability/metrics"
	"github.com/target/policy-analysis-api/internal/observability/notify"
	"github.com/target/policy-analysis-api/internal/observability/statsd"
)

const (
	defaultDeliveryQueueSize    = 256
	defaultCallbackWorkers      = 4
	defaultPersistenceTimeout   = 10 * time.Second
	defaultNotificationTimeout  = 15 * time.Second
	deliveryKindStatusMirror    = "status_mirror"
	deliveryKindResultMirror    = "result_mirror"
	deliveryKindFailureNotifier = "failure_notify"
)

// ErrDeliveryWorkerClosed is logged when work arrives after Close.
var ErrDeliveryWorkerClosed = errors.New("delivery worker closed")

// DeliveryWorkerOptions groups dependencies for DeliveryWorker.
type DeliveryWorkerOptions struct {
	Persistence     core.PersistenceBackend // Optional: status/result mirror
	Callbacks       core.CallbackSender     // Optional: required for callback delivery
	Notifier        notify.Sink             // Optional: operator failure notifications
	QueueSize       int                     // Optional: buffered entries per queue
	CallbackWorkers int                     // Optional: concurrent callback deliveries
	WriteTimeout    time.Duration           // Optional: per persistence write
	Metrics         statsd.Sink             // Optional: metrics sink
	Logger          *slog.Logger            // Optional: structured logger
}

type mirrorTask struct {
	jobID  string
	status *model.StatusFields
	result *model.AnalysisResult
}

type callbackTask struct {
	url string
	env model.CallbackEnvelope
}

// DeliveryWorker executes best-effort side effects off the orchestrator's critical path.
//
// Persistence mirrors run on a single goroutine in submission order so a backend
// never observes a job's status going backwards. When the mirror queue is full the
// write is dropped with a warning. Callback and notification tasks run on a small
// pool; when their queue is full a dedicated goroutine takes the task so no
// terminal callback is lost to backpressure.
type DeliveryWorker struct {
	persistence  core.PersistenceBackend
	callbacks    core.CallbackSender
	notifier     notify.Sink
	workers      int
	writeTimeout time.Duration
	metrics      statsd.Sink
	logger       *slog.Logger

	mirrorQ   chan mirrorTask
	callbackQ chan func(context.Context)

	mu      sync.RWMutex
	closed  bool
	started bool
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

var _ core.SideEffects = (*DeliveryWorker)(nil)

// NewDeliveryWorker constructs a DeliveryWorker. Call Start before submitting,
// or submissions simply buffer until Start.
func NewDeliveryWorker(opts DeliveryWorkerOptions) *DeliveryWorker {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	size := opts.QueueSize
	if size <= 0 {
		size = defaultDeliveryQueueSize
	}
	workers := opts.CallbackWorkers
	if workers <= 0 {
		workers = defaultCallbackWorkers
	}
	timeout := opts.WriteTimeout
	if timeout <= 0 {
		timeout = defaultPersistenceTimeout
	}
	return &DeliveryWorker{
		persistence:  opts.Persistence,
		callbacks:    opts.Callbacks,
		notifier:     opts.Notifier,
		workers:      workers,
		writeTimeout: timeout,
		metrics:      opts.Metrics,
		logger:       logger.With("component", "delivery_worker"),
		mirrorQ:      make(chan mirrorTask, size),
		callbackQ:    make(chan func(context.Context), size),
	}
}

// Start launches the worker goroutines. Cancelling ctx aborts in-flight retries.
func (w *DeliveryWorker) Start(ctx context.Context) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.started || w.closed {
		return
	}
	w.started = true
	w.ctx, w.cancel = context.WithCancel(ctx)

	w.wg.Add(1)
	go w.runMirror()
	for range w.workers {
		w.wg.Add(1)
		go w.runCallbacks()
	}
	w.logger.InfoContext(ctx, "delivery worker started", "callback_workers", w.workers)
}

// Close stops accepting work and waits for queued work to drain or ctx to expire.
func (w *DeliveryWorker) Close(ctx context.Context) error {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return nil
	}
	w.closed = true
	close(w.mirrorQ)
	close(w.callbackQ)
	started := w.started
	w.mu.Unlock()

	if !started {
		return nil
	}

	done := make(chan struct{})
	go func() {
		w.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		w.cancel()
		return nil
	case <-ctx.Done():
		w.cancel()
		<-done
		return ctx.Err()
	}
}

// Running reports whether the worker has started and not yet been closed.
func (w *DeliveryWorker) Running() bool {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.started && !w.closed
}

// Backlog returns the number of queued mirror writes and callbacks.
func (w *DeliveryWorker) Backlog() (mirror, callbacks int) {
	return len(w.mirrorQ), len(w.callbackQ)
}

// MirrorStatus queues a status mirror write.
func (w *DeliveryWorker) MirrorStatus(jobID string, fields model.StatusFields) {
	if w.persistence == nil {
		return
	}
	w.enqueueMirror(mirrorTask{jobID: jobID, status: &fields}, deliveryKindStatusMirror)
}

// MirrorResult queues a result mirror write.
func (w *DeliveryWorker) MirrorResult(jobID string, result *model.AnalysisResult) {
	if w.persistence == nil || result == nil {
		return
	}
	w.enqueueMirror(mirrorTask{jobID: jobID, result: result}, deliveryKindResultMirror)
}

// DeliverCallback queues a callback delivery. It is never dropped for backpressure.
func (w *DeliveryWorker) DeliverCallback(url string, env model.CallbackEnvelope) {
	if w.callbacks == nil {
		w.logger.Warn("callback requested but no dispatcher configured", "analysis_id", env.AnalysisID)
		return
	}
	task := callbackTask{url: url, env: env}
	w.enqueueCallback(func(ctx context.Context) {
		w.callbacks.Deliver(ctx, task.url, task.env)
	}, env.AnalysisID)
}

// NotifyFailure queues an operator notification for a failed job.
func (w *DeliveryWorker) NotifyFailure(notice model.FailureNotice) {
	if w.notifier == nil {
		return
	}
	payload := notify.AnalysisFailurePayload{
		AnalysisID: notice.AnalysisID,
		PolicyID:   notice.PolicyID,
		ClientName: notice.ClientName,
		Stage:      string(notice.Stage),
		Attempts:   notice.Attempts,
		Error:      notice.Error,
		ErrorClass: obserrors.Classify(notice.Cause),
		OccurredAt: notice.OccurredAt,
	}
	w.enqueueCallback(func(ctx context.Context) {
		ctx, cancel := context.WithTimeout(ctx, defaultNotificationTimeout)
		defer cancel()
		err := w.notifier.SendAnalysisFailure(ctx, payload)
		w.record(deliveryKindFailureNotifier, err)
		if err != nil {
			w.logger.WarnContext(ctx, "failure notification failed", "analysis_id", payload.AnalysisID, "error", err)
		}
	}, notice.AnalysisID)
}

func (w *DeliveryWorker) enqueueMirror(task mirrorTask, kind string) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	if w.closed {
		w.logger.Warn("dropping mirror write", "kind", kind, "job_id", task.jobID, "error", ErrDeliveryWorkerClosed)
		return
	}
	select {
	case w.mirrorQ <- task:
	default:
		w.logger.Warn("mirror queue full, dropping write", "kind", kind, "job_id", task.jobID)
		metrics.EmitDelivery(w.metrics, metrics.DeliveryMetric{Kind: kind, Result: metrics.ResultNoop})
	}
}

func (w *DeliveryWorker) enqueueCallback(fn func(context.Context), jobID string) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	if w.closed {
		w.logger.Warn("dropping delivery", "job_id", jobID, "error", ErrDeliveryWorkerClosed)
		return
	}
	select {
	case w.callbackQ <- fn:
	default:
		w.logger.Warn("callback queue full, delivering on dedicated goroutine", "job_id", jobID)
		w.wg.Add(1)
		go func() {
			defer w.wg.Done()
			fn(w.runContext())
		}()
	}
}

func (w *DeliveryWorker) runMirror() {
	defer w.wg.Done()
	for task := range w.mirrorQ {
		w.applyMirror(task)
	}
}

func (w *DeliveryWorker) runCallbacks() {
	defer w.wg.Done()
	for fn := range w.callbackQ {
		fn(w.runContext())
	}
}

func (w *DeliveryWorker) applyMirror(task mirrorTask) {
	ctx, cancel := context.WithTimeout(w.runContext(), w.writeTimeout)
	defer cancel()

	var (
		err  error
		kind string
	)
	if task.status != nil {
		kind = deliveryKindStatusMirror
		err = w.persistence.UpsertStatus(ctx, task.jobID, *task.status)
	} else {
		kind = deliveryKindResultMirror
		err = w.persistence.UpsertResult(ctx, task.jobID, task.result)
	}
	w.record(kind, err)
	if err != nil {
		w.logger.WarnContext(ctx, "persistence mirror failed", "kind", kind, "job_id", task.jobID, "error", err)
	}
}

func (w *DeliveryWorker) record(kind string, err error) {
	result := metrics.ResultSuccess
	if err != nil {
		result = metrics.ResultError
	}
	metrics.EmitDelivery(w.metrics, metrics.DeliveryMetric{Kind: kind, Result: result, Err: err})
}

func (w *DeliveryWorker) runContext() context.Context {
	w.mu.RLock()
	defer w.mu.RUnlock()
	if w.ctx == nil {
		return context.Background()
	}
	return w.ctx
}
