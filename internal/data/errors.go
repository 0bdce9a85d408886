package data

import "errors"

// Shared sentinel errors for data-layer repositories.
var (
	ErrAnalysisIDRequired = errors.New("analysis_id is required")
	ErrResultRequired     = errors.New("analysis result is required")
	ErrAnalysisNotFound   = errors.New("analysis not found")
)
