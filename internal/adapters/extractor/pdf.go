package extractor

import (
	"context"
	"fmt"
	"strings"

	"github.com/ledongthuc/pdf"

	"github.com/target/policy-analysis-api/internal/domain/model"
)

// extractPDF reads every page of the document at path. Each page is prefixed
// with a "--- Page N ---" marker and pages are separated by a blank line.
func extractPDF(ctx context.Context, path string) (out *model.Extraction, err error) {
	// The PDF reader panics on some malformed inputs.
	defer func() {
		if r := recover(); r != nil {
			out, err = nil, fmt.Errorf("parse PDF: %v", r)
		}
	}()

	f, r, err := pdf.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open PDF: %w", err)
	}
	defer f.Close()

	total := r.NumPage()
	pages := make([]string, 0, total)
	for i := 1; i <= total; i++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		var text string
		if p := r.Page(i); !p.V.IsNull() {
			text, err = p.GetPlainText(nil)
			if err != nil {
				return nil, fmt.Errorf("read page %d: %w", i, err)
			}
		}
		pages = append(pages, fmt.Sprintf("--- Page %d ---\n%s", i, strings.TrimSpace(text)))
	}

	return &model.Extraction{
		Text:      strings.Join(pages, "\n\n"),
		PageCount: total,
	}, nil
}
