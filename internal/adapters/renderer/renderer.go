// Package renderer writes branded HTML policy analysis reports.
package renderer

import (
	"bytes"
	"context"
	"embed"
	"errors"
	"fmt"
	"html/template"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
	"unicode"

	"github.com/target/policy-analysis-api/internal/domain/model"
)

//go:embed templates/*.tmpl
var templateFS embed.FS

const (
	reportTemplate = "report.html.tmpl"
	// Ext is the extension of rendered reports.
	Ext = ".html"

	maxSafeNameRunes = 50
)

// Options groups dependencies for Renderer.
type Options struct {
	TemplateFS fs.FS            // Optional: overrides the embedded templates (must contain report.html.tmpl)
	OutputDir  string           // Optional: default output directory when RenderInput.OutputDir is empty
	Clock      func() time.Time // Optional: defaults to time.Now
	Logger     *slog.Logger     // Optional: structured logger
}

// Renderer implements core.Renderer.
type Renderer struct {
	t         *template.Template
	outputDir string
	clock     func() time.Time
	logger    *slog.Logger
}

// New parses the report template and returns a Renderer.
func New(opts Options) (*Renderer, error) {
	clock := opts.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	fsys := opts.TemplateFS
	if fsys == nil {
		sub, err := fs.Sub(templateFS, "templates")
		if err != nil {
			return nil, fmt.Errorf("open embedded templates: %w", err)
		}
		fsys = sub
	}

	r := &Renderer{
		outputDir: opts.OutputDir,
		clock:     clock,
		logger:    logger.With("component", "renderer"),
	}
	t, err := template.New(reportTemplate).Funcs(r.funcs()).ParseFS(fsys, reportTemplate)
	if err != nil {
		return nil, fmt.Errorf("parse report template: %w", err)
	}
	r.t = t
	return r, nil
}

// Render writes the report for data and returns its path. The file is written
// to a temporary name and renamed into place so readers never see a partial report.
func (r *Renderer) Render(ctx context.Context, data map[string]any, in model.RenderInput) (string, error) {
	if data == nil {
		return "", errors.New("no analysis data to render")
	}
	if in.JobID == "" {
		return "", errors.New("job id is required")
	}

	var buf bytes.Buffer
	if err := r.t.ExecuteTemplate(&buf, reportTemplate, data); err != nil {
		return "", fmt.Errorf("execute report template: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}

	dir := in.OutputDir
	if dir == "" {
		dir = r.outputDir
	}
	if dir == "" {
		dir = "."
	}
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return "", fmt.Errorf("create report dir: %w", err)
	}

	name := ReportFileName(in.JobID, in.ClientName)
	path := filepath.Join(dir, name)

	tmp, err := os.CreateTemp(dir, "."+name+".*")
	if err != nil {
		return "", fmt.Errorf("create report file: %w", err)
	}
	_, writeErr := tmp.Write(buf.Bytes())
	closeErr := tmp.Close()
	if err := errors.Join(writeErr, closeErr); err != nil {
		_ = os.Remove(tmp.Name())
		return "", fmt.Errorf("write report: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		_ = os.Remove(tmp.Name())
		return "", fmt.Errorf("finalize report: %w", err)
	}

	r.logger.DebugContext(ctx, "report written", "path", path, "bytes", buf.Len())
	return path, nil
}

// ReportFileName returns "{jobID}_{safeName}_Analysis.html". The client name
// keeps only letters, digits, spaces, dashes and underscores, with spaces
// replaced by underscores, truncated to 50 runes.
func ReportFileName(jobID, clientName string) string {
	return fmt.Sprintf("%s_%s_Analysis%s", jobID, SafeName(clientName), Ext)
}

// SafeName reduces name to a filesystem-safe token.
func SafeName(name string) string {
	var b strings.Builder
	for _, c := range name {
		if unicode.IsLetter(c) || unicode.IsDigit(c) || c == ' ' || c == '-' || c == '_' {
			b.WriteRune(c)
		}
	}
	safe := strings.ReplaceAll(strings.TrimSpace(b.String()), " ", "_")
	if runes := []rune(safe); len(runes) > maxSafeNameRunes {
		safe = string(runes[:maxSafeNameRunes])
	}
	if safe == "" {
		safe = "Report"
	}
	return safe
}

func (r *Renderer) funcs() template.FuncMap {
	return template.FuncMap{
		"get":         get,
		"dict":        dict,
		"list":        list,
		"str":         str,
		"upper":       strings.ToUpper,
		"truncate":    truncate,
		"score":       score,
		"money":       money,
		"recClass":    recommendationClass,
		"today":       func() string { return r.clock().Format("January 02, 2006") },
		"generatedAt": func() string { return r.clock().Format("January 02, 2006 at 03:04 PM") },
	}
}

func get(m any, key string) any {
	d, ok := m.(map[string]any)
	if !ok {
		return nil
	}
	return d[key]
}

func dict(v any) map[string]any {
	d, _ := v.(map[string]any)
	return d
}

func list(v any) []any {
	l, _ := v.([]any)
	return l
}

func str(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(t)
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case bool:
		if t {
			return "Yes"
		}
		return "No"
	default:
		return fmt.Sprint(t)
	}
}

func truncate(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n]) + "..."
}

func number(v any) (float64, bool) {
	switch t := v.(type) {
	case float64:
		return t, true
	case int:
		return float64(t), true
	case int64:
		return float64(t), true
	case uint64:
		return float64(t), true
	}
	return 0, false
}

func score(v any) string {
	if f, ok := number(v); ok {
		return strconv.FormatFloat(f, 'f', -1, 64) + "/10"
	}
	if s := str(v); s != "" {
		return s
	}
	return "N/A"
}

// money formats whole currency amounts with thousands separators.
func money(v any) string {
	f, ok := number(v)
	if !ok {
		if s := str(v); s != "" {
			return s
		}
		return "N/A"
	}
	digits := strconv.FormatInt(int64(f), 10)
	neg := strings.HasPrefix(digits, "-")
	digits = strings.TrimPrefix(digits, "-")

	var b strings.Builder
	for i, c := range digits {
		if i > 0 && (len(digits)-i)%3 == 0 {
			b.WriteByte(',')
		}
		b.WriteRune(c)
	}
	if neg {
		return "-$" + b.String()
	}
	return "$" + b.String()
}

func recommendationClass(rec string) string {
	up := strings.ToUpper(rec)
	switch {
	case strings.Contains(up, "CONDITIONS"), strings.Contains(up, "NEGOTIATE"):
		return "warning"
	case strings.Contains(up, "BIND"):
		return "success"
	default:
		return "danger"
	}
}
