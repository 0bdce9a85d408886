// Package model defines the core data types shared by the policy analysis pipeline.
package model

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// JobStatus represents the current stage of an analysis job.
//
//nolint:recvcheck // UnmarshalText needs pointer receiver, Valid needs value receiver
type JobStatus string

const (
	// JobStatusStarted is set at enqueue time, before the background task runs.
	JobStatusStarted JobStatus = "started"
	// JobStatusExtracting indicates text extraction from the source document.
	JobStatusExtracting JobStatus = "extracting"
	// JobStatusAnalyzing indicates the analyzer is running.
	JobStatusAnalyzing JobStatus = "analyzing"
	// JobStatusRetrying indicates the analyzer failed transiently and a retry is scheduled.
	JobStatusRetrying JobStatus = "retrying"
	// JobStatusGenerating indicates the report is being rendered.
	JobStatusGenerating JobStatus = "generating"
	// JobStatusCompleted is terminal success.
	JobStatusCompleted JobStatus = "completed"
	// JobStatusFailed is terminal failure.
	JobStatusFailed JobStatus = "failed"
)

// Progress messages reported to polling clients.
const (
	ProgressInitializing = "Initializing..."
	ProgressExtracting   = "Extracting text from PDF..."
	ProgressAnalyzing    = "Analyzing policy with Claude..."
	ProgressGenerating   = "Generating PDF report..."
	ProgressComplete     = "Analysis complete"
	ProgressFailed       = "Analysis failed"
)

// ProgressRetrying returns the progress message for the given 0-based retry index.
func ProgressRetrying(retry int) string {
	return fmt.Sprintf("Retrying analysis (attempt %d)...", retry+2)
}

// Valid returns true if the JobStatus is a known state.
func (s JobStatus) Valid() bool {
	switch s {
	case JobStatusStarted, JobStatusExtracting, JobStatusAnalyzing, JobStatusRetrying,
		JobStatusGenerating, JobStatusCompleted, JobStatusFailed:
		return true
	}
	return false
}

// Terminal reports whether no further transitions may leave this state.
func (s JobStatus) Terminal() bool {
	return s == JobStatusCompleted || s == JobStatusFailed
}

// UnmarshalText implements encoding.TextUnmarshaler for JobStatus.
func (s *JobStatus) UnmarshalText(text []byte) error {
	v := JobStatus(strings.ToLower(strings.TrimSpace(string(text))))
	if !v.Valid() {
		return fmt.Errorf("invalid JobStatus: %q", string(text))
	}
	*s = v
	return nil
}

// CanTransition reports whether the state machine permits moving from s to next.
func (s JobStatus) CanTransition(next JobStatus) bool {
	if s.Terminal() {
		return false
	}
	if next == JobStatusFailed {
		return true
	}
	switch s {
	case JobStatusStarted:
		return next == JobStatusExtracting
	case JobStatusExtracting:
		return next == JobStatusAnalyzing
	case JobStatusAnalyzing:
		// Progress updates within the analyzing stage are allowed.
		return next == JobStatusAnalyzing || next == JobStatusRetrying || next == JobStatusGenerating
	case JobStatusRetrying:
		return next == JobStatusAnalyzing
	case JobStatusGenerating:
		return next == JobStatusCompleted
	}
	return false
}

// Job is the registry record for one run of the analysis pipeline.
type Job struct {
	ID          string          `json:"analysis_id"`
	PolicyID    string          `json:"policy_id,omitempty"`
	ClientName  string          `json:"client_name,omitempty"`
	Status      JobStatus       `json:"status"`
	Progress    string          `json:"progress"`
	Attempts    int             `json:"attempts"`
	StartedAt   time.Time       `json:"started_at"`
	CompletedAt *time.Time      `json:"completed_at"`
	Error       *string         `json:"error"`
	Result      *AnalysisResult `json:"result"`
}

// Clone returns a copy safe to hand to readers outside the registry lock.
func (j Job) Clone() Job {
	out := j
	if j.CompletedAt != nil {
		t := *j.CompletedAt
		out.CompletedAt = &t
	}
	if j.Error != nil {
		e := *j.Error
		out.Error = &e
	}
	out.Result = j.Result.Clone()
	return out
}

// Source identifies the document to extract. Exactly one of Path or URL is expected.
type Source struct {
	Path string
	URL  string
}

// Empty reports whether neither a local path nor a URL was supplied.
func (s Source) Empty() bool {
	return strings.TrimSpace(s.Path) == "" && strings.TrimSpace(s.URL) == ""
}

// AnalysisRequest is what callers hand the orchestrator at enqueue time.
type AnalysisRequest struct {
	PolicyID       string `json:"policy_id"`
	ClientID       string `json:"client_id"`
	ClientName     string `json:"client_name"`
	ClientIndustry string `json:"client_industry"`
	PolicyType     string `json:"policy_type"`
	Renewal        bool   `json:"renewal"`
	Carrier        string `json:"carrier,omitempty"`
	FileName       string `json:"file_name,omitempty"`
	FileURL        string `json:"file_url,omitempty"`
	CallbackURL    string `json:"callback_url,omitempty"`
	TenantID       string `json:"tenant_id,omitempty"`

	// LocalFilePath is a transient upload owned by the job; it is removed when the job exits.
	LocalFilePath string `json:"-"`
}

// Request defaults.
const (
	DefaultClientName     = "Unknown Client"
	DefaultClientIndustry = "Other/General"
	DefaultPolicyType     = "cyber"
	DefaultTenantID       = "default"
	DefaultClientID       = "unknown"
)

// Normalize fills defaults for optional fields.
func (r *AnalysisRequest) Normalize() {
	r.ClientName = strings.TrimSpace(r.ClientName)
	if r.ClientName == "" {
		r.ClientName = DefaultClientName
	}
	if strings.TrimSpace(r.ClientIndustry) == "" {
		r.ClientIndustry = DefaultClientIndustry
	}
	if strings.TrimSpace(r.PolicyType) == "" {
		r.PolicyType = DefaultPolicyType
	}
}

// Source returns the extraction source for the request; a local upload wins over a URL.
func (r AnalysisRequest) Source() Source {
	if r.LocalFilePath != "" {
		return Source{Path: r.LocalFilePath}
	}
	return Source{URL: r.FileURL}
}

// AnalysisContext carries classification hints for the analyzer.
type AnalysisContext struct {
	ClientName     string
	ClientIndustry string
	PolicyType     string
	Renewal        bool
	Carrier        string
	FileName       string
	// OnPhase, when set, receives progress messages from multi-phase analyzers.
	OnPhase func(message string)
}

// Extraction is the extractor output.
type Extraction struct {
	Text      string
	PageCount int
	Warnings  []string
}

// Analysis is the analyzer output. Score and Recommendation are lifted out of
// Data by the analyzer so the orchestrator never inspects Data itself.
type Analysis struct {
	Data           map[string]any
	Score          *float64
	Recommendation string
	TokensUsed     int
	Warnings       []string
}

// RenderInput carries naming hints for the renderer.
type RenderInput struct {
	JobID      string
	ClientName string
	OutputDir  string
}

// AnalysisResult is the structured payload of a completed job.
type AnalysisResult struct {
	AnalysisID            string         `json:"analysis_id"`
	PolicyID              string         `json:"policy_id,omitempty"`
	ClientID              string         `json:"client_id,omitempty"`
	ClientName            string         `json:"client_name"`
	Status                JobStatus      `json:"status"`
	OverallScore          *float64       `json:"overall_score"`
	Recommendation        string         `json:"recommendation,omitempty"`
	ReportPath            string         `json:"report_path,omitempty"`
	ReportStoragePath     string         `json:"report_storage_path,omitempty"`
	AnalysisData          map[string]any `json:"analysis_data,omitempty"`
	TokensUsed            int            `json:"tokens_used,omitempty"`
	CompletedAt           time.Time      `json:"completed_at"`
	ProcessingTimeSeconds float64        `json:"processing_time_seconds"`
}

// Clone returns a deep copy of the result. A nil result clones to nil.
func (r *AnalysisResult) Clone() *AnalysisResult {
	if r == nil {
		return nil
	}
	out := *r
	if r.OverallScore != nil {
		v := *r.OverallScore
		out.OverallScore = &v
	}
	if r.AnalysisData != nil {
		out.AnalysisData = cloneMap(r.AnalysisData)
	}
	return &out
}

func cloneMap(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = cloneValue(v)
	}
	return out
}

// cloneValue copies the container types produced by encoding/json and yaml.v3.
func cloneValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		return cloneMap(t)
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = cloneValue(e)
		}
		return out
	default:
		return v
	}
}

// StatusFields is the subset of job state mirrored to persistence backends.
type StatusFields struct {
	AnalysisID  string     `json:"analysis_id"`
	PolicyID    string     `json:"policy_id,omitempty"`
	Status      JobStatus  `json:"status"`
	Progress    string     `json:"progress,omitempty"`
	Attempts    int        `json:"attempts"`
	Error       string     `json:"error,omitempty"`
	UpdatedAt   time.Time  `json:"updated_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// CallbackEnvelope is the outbound payload delivered to a caller's callback URL.
type CallbackEnvelope struct {
	AnalysisID            string         `json:"analysis_id"`
	PolicyID              string         `json:"policy_id,omitempty"`
	ClientID              string         `json:"client_id,omitempty"`
	ClientName            string         `json:"client_name,omitempty"`
	Status                JobStatus      `json:"status"`
	OverallScore          *float64       `json:"overall_score,omitempty"`
	Recommendation        string         `json:"recommendation,omitempty"`
	ReportPath            string         `json:"report_path,omitempty"`
	ReportStoragePath     string         `json:"report_storage_path,omitempty"`
	AnalysisData          map[string]any `json:"analysis_data,omitempty"`
	ProcessingTimeSeconds float64        `json:"processing_time_seconds,omitempty"`
	ErrorMessage          string         `json:"error_message,omitempty"`
	CompletedAt           time.Time      `json:"completed_at"`
}

// SuccessEnvelope builds the callback payload for a completed job.
func SuccessEnvelope(res *AnalysisResult) CallbackEnvelope {
	return CallbackEnvelope{
		AnalysisID:            res.AnalysisID,
		PolicyID:              res.PolicyID,
		ClientID:              res.ClientID,
		ClientName:            res.ClientName,
		Status:                JobStatusCompleted,
		OverallScore:          res.OverallScore,
		Recommendation:        res.Recommendation,
		ReportPath:            res.ReportPath,
		ReportStoragePath:     res.ReportStoragePath,
		AnalysisData:          res.AnalysisData,
		ProcessingTimeSeconds: res.ProcessingTimeSeconds,
		CompletedAt:           res.CompletedAt,
	}
}

// FailureEnvelope builds the callback payload for a failed job.
func FailureEnvelope(jobID string, req AnalysisRequest, msg string, at time.Time) CallbackEnvelope {
	return CallbackEnvelope{
		AnalysisID:   jobID,
		PolicyID:     req.PolicyID,
		ClientID:     req.ClientID,
		Status:       JobStatusFailed,
		ErrorMessage: msg,
		CompletedAt:  at,
	}
}

// Marshal returns the canonical byte form that is both signed and sent.
func (e CallbackEnvelope) Marshal() ([]byte, error) {
	b, err := json.Marshal(e)
	if err != nil {
		return nil, fmt.Errorf("marshal callback envelope: %w", err)
	}
	return b, nil
}

// FailureNotice describes a failed job for operator notification.
type FailureNotice struct {
	AnalysisID string
	PolicyID   string
	ClientName string
	Stage      JobStatus
	Attempts   int
	Error      string
	Cause      error
	OccurredAt time.Time
}
