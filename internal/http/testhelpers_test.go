package httpx

import (
	"context"
	"sync"

	"github.com/target/policy-analysis-api/internal/domain/model"
)

type fakeAnalyses struct {
	mu       sync.Mutex
	jobs     map[string]model.Job
	order    []string
	enqueued []model.AnalysisRequest
	nextID   string
	err      error
}

func newFakeAnalyses(jobs ...model.Job) *fakeAnalyses {
	f := &fakeAnalyses{jobs: make(map[string]model.Job), nextID: "analysis_000000000001"}
	for _, j := range jobs {
		f.jobs[j.ID] = j
		f.order = append(f.order, j.ID)
	}
	return f
}

func (f *fakeAnalyses) Enqueue(_ context.Context, req model.AnalysisRequest) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return "", f.err
	}
	f.enqueued = append(f.enqueued, req)
	f.jobs[f.nextID] = model.Job{ID: f.nextID, PolicyID: req.PolicyID, ClientName: req.ClientName, Status: model.JobStatusStarted}
	f.order = append(f.order, f.nextID)
	return f.nextID, nil
}

func (f *fakeAnalyses) GetStatus(id string) (model.Job, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	j, ok := f.jobs[id]
	return j, ok
}

func (f *fakeAnalyses) List() []model.Job {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]model.Job, 0, len(f.order))
	for _, id := range f.order {
		out = append(out, f.jobs[id])
	}
	return out
}

func (f *fakeAnalyses) set(j model.Job) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.jobs[j.ID] = j
}

func (f *fakeAnalyses) requests() []model.AnalysisRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]model.AnalysisRequest(nil), f.enqueued...)
}
