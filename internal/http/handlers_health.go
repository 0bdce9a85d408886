package httpx

import (
	"net/http"
)

// JobHealth reports the state of the analysis job runner.
type JobHealth interface {
	Accepting() bool
	InFlight() int
}

// DeliveryHealth reports the state of the side-effect delivery worker.
type DeliveryHealth interface {
	Running() bool
	Backlog() (mirror, callbacks int)
}

// HealthHandler serves liveness for load balancers. It answers 503 once the
// service has begun draining so traffic moves elsewhere before shutdown.
type HealthHandler struct {
	Jobs     JobHealth      // Optional: omitted from the report when nil
	Delivery DeliveryHealth // Optional: omitted from the report when nil
}

type healthReport struct {
	Status          string `json:"status"`
	AcceptingJobs   *bool  `json:"accepting_jobs,omitempty"`
	JobsInFlight    *int   `json:"jobs_in_flight,omitempty"`
	DeliveryRunning *bool  `json:"delivery_running,omitempty"`
	MirrorBacklog   *int   `json:"mirror_backlog,omitempty"`
	CallbackBacklog *int   `json:"callback_backlog,omitempty"`
}

func (h HealthHandler) report() (healthReport, bool) {
	rep := healthReport{Status: "ok"}
	healthy := true
	if h.Jobs != nil {
		accepting, inFlight := h.Jobs.Accepting(), h.Jobs.InFlight()
		rep.AcceptingJobs, rep.JobsInFlight = &accepting, &inFlight
		healthy = healthy && accepting
	}
	if h.Delivery != nil {
		running := h.Delivery.Running()
		mirror, callbacks := h.Delivery.Backlog()
		rep.DeliveryRunning, rep.MirrorBacklog, rep.CallbackBacklog = &running, &mirror, &callbacks
		healthy = healthy && running
	}
	if !healthy {
		rep.Status = "draining"
	}
	return rep, healthy
}

// ServeHTTP writes the health report. HEAD gets the status code only.
func (h HealthHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	rep, healthy := h.report()
	code := http.StatusOK
	if !healthy {
		code = http.StatusServiceUnavailable
	}
	if r.Method == http.MethodHead {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(code)
		return
	}
	WriteJSON(w, code, rep)
}
