// Package metrics emits the standard analysis pipeline metrics.
package metrics

import (
	"strconv"
	"time"

	obserrors "github.com/target/policy-analysis-api/internal/observability/errors"
	"github.com/target/policy-analysis-api/internal/observability/statsd"
)

// Result constants for metric tagging.
const (
	ResultSuccess = "success"
	ResultError   = "error"
	ResultRetry   = "retry"
	ResultNoop    = "noop"
)

// TransitionMetric captures one job state transition.
type TransitionMetric struct {
	From     string
	To       string
	Result   string
	Duration time.Duration
	Err      error
}

// EmitTransition emits the analysis.transition counter and, for terminal
// transitions, the analysis.duration timing.
func EmitTransition(sink statsd.Sink, in TransitionMetric) {
	if sink == nil {
		return
	}

	tags := map[string]string{
		"from":   in.From,
		"to":     in.To,
		"result": in.Result,
	}
	addErrorClass(tags, in.Result, in.Err)

	sink.Count("analysis.transition", 1, tags)

	if in.Duration > 0 {
		sink.Timing("analysis.duration", in.Duration, CloneTags(tags))
	}
}

// StageMetric captures one collaborator call.
type StageMetric struct {
	Stage    string
	Attempt  int
	Result   string
	Duration time.Duration
	Err      error
}

// EmitStage emits the analysis.stage counter and timing.
func EmitStage(sink statsd.Sink, in StageMetric) {
	if sink == nil {
		return
	}

	tags := map[string]string{
		"stage":   in.Stage,
		"attempt": strconv.Itoa(in.Attempt),
		"result":  in.Result,
	}
	addErrorClass(tags, in.Result, in.Err)

	sink.Count("analysis.stage", 1, tags)
	if in.Duration > 0 {
		sink.Timing("analysis.stage.duration", in.Duration, CloneTags(tags))
	}
}

// DeliveryMetric captures one side-effect delivery outcome.
type DeliveryMetric struct {
	Kind     string // "callback", "status_mirror", "result_mirror"
	Result   string
	Attempts int
	Duration time.Duration
	Err      error
}

// EmitDelivery emits the delivery counter and timing.
func EmitDelivery(sink statsd.Sink, in DeliveryMetric) {
	if sink == nil {
		return
	}

	tags := map[string]string{
		"kind":   in.Kind,
		"result": in.Result,
	}
	addErrorClass(tags, in.Result, in.Err)

	sink.Count("delivery.outcome", 1, tags)
	if in.Attempts > 0 {
		sink.Gauge("delivery.attempts", float64(in.Attempts), CloneTags(tags))
	}
	if in.Duration > 0 {
		sink.Timing("delivery.duration", in.Duration, CloneTags(tags))
	}
}

func addErrorClass(tags map[string]string, result string, err error) {
	if err == nil || result != ResultError && result != ResultRetry {
		return
	}
	if class := obserrors.Classify(err); class != "" {
		tags["error_class"] = class
	}
}

// CloneTags creates a shallow copy of a tag map.
func CloneTags(src map[string]string) map[string]string {
	if len(src) == 0 {
		return nil
	}
	out := make(map[string]string, len(src))
	for k, v := range src {
		out[k] = v
	}
	return out
}
