// Package errors turns arbitrary errors into low-cardinality class names for metrics and logs.
package errors

import (
	"context"
	goerrors "errors"
	"reflect"
	"strings"

	"github.com/target/policy-analysis-api/internal/domain/job"
)

// Classify returns a normalized error class suitable for tagging metrics/logs.
// Tagged stage errors report "<kind>_<reason>"; context errors have fixed names;
// anything else is named after its innermost concrete type in snake_case-ish form.
func Classify(err error) string {
	if err == nil {
		return ""
	}

	var se *job.StageError
	if goerrors.As(err, &se) {
		if se.Reason == "" {
			return string(se.Kind)
		}
		return string(se.Kind) + "_" + se.Reason
	}
	switch {
	case goerrors.Is(err, context.DeadlineExceeded):
		return "deadline_exceeded"
	case goerrors.Is(err, context.Canceled):
		return "canceled"
	}

	// Unwrap to the innermost error for better signal.
	for {
		unwrapped := goerrors.Unwrap(err)
		if unwrapped == nil {
			break
		}
		err = unwrapped
	}

	t := reflect.TypeOf(err)
	for t != nil && t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if t == nil {
		return "unknown"
	}

	name := strings.ToLower(strings.ReplaceAll(t.String(), "*", ""))
	name = strings.ReplaceAll(name, ".", "_")
	if name == "" {
		return "unknown"
	}
	return name
}
