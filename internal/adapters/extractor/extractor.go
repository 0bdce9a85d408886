// Package extractor turns policy documents into plain text for the analyzer.
//
// PDFs are read page by page, HTML documents are reduced to their visible
// text, and anything else that sniffs as text is passed through. Remote
// documents are downloaded to a temporary file which is removed once the text
// has been read.
package extractor

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/target/policy-analysis-api/internal/domain/model"
)

const (
	// DefaultMinTextChars is the extraction size below which a document likely needs OCR.
	DefaultMinTextChars = 500
	// DefaultMaxDownloadBytes caps remote documents.
	DefaultMaxDownloadBytes int64 = 50 << 20

	defaultDownloadTimeout = 2 * time.Minute
	sniffLen               = 512
)

// ErrDownloadTooLarge is returned when a remote document exceeds the download cap.
var ErrDownloadTooLarge = errors.New("download exceeds size limit")

// Options groups dependencies for Extractor.
type Options struct {
	HTTPClient       *http.Client // Optional: defaults to a client with a 2m timeout
	TempDir          string       // Optional: download directory, defaults to os.TempDir()
	MinTextChars     int          // Optional: low-text warning threshold, defaults to 500
	MaxDownloadBytes int64        // Optional: defaults to 50MB
	Logger           *slog.Logger // Optional: structured logger
}

// Extractor implements core.Extractor for local files and URLs.
type Extractor struct {
	client       *http.Client
	tempDir      string
	minTextChars int
	maxDownload  int64
	logger       *slog.Logger
}

// New constructs an Extractor.
func New(opts Options) *Extractor {
	client := opts.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: defaultDownloadTimeout}
	}
	tempDir := opts.TempDir
	if tempDir == "" {
		tempDir = os.TempDir()
	}
	minChars := opts.MinTextChars
	if minChars <= 0 {
		minChars = DefaultMinTextChars
	}
	maxDownload := opts.MaxDownloadBytes
	if maxDownload <= 0 {
		maxDownload = DefaultMaxDownloadBytes
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Extractor{
		client:       client,
		tempDir:      tempDir,
		minTextChars: minChars,
		maxDownload:  maxDownload,
		logger:       logger.With("component", "extractor"),
	}
}

// Extract reads src and returns its text. A local path wins over a URL.
func (e *Extractor) Extract(ctx context.Context, src model.Source) (*model.Extraction, error) {
	switch {
	case strings.TrimSpace(src.Path) != "":
		return e.ExtractFile(ctx, src.Path)
	case strings.TrimSpace(src.URL) != "":
		return e.ExtractURL(ctx, src.URL)
	default:
		return nil, errors.New("no file path or URL provided")
	}
}

// ExtractURL downloads the document at rawURL into the temp dir and extracts it.
// The downloaded file is always removed.
func (e *Extractor) ExtractURL(ctx context.Context, rawURL string) (*model.Extraction, error) {
	e.logger.InfoContext(ctx, "downloading document")

	path, n, err := e.download(ctx, rawURL)
	if err != nil {
		return nil, err
	}
	defer func() {
		if rmErr := os.Remove(path); rmErr != nil && !errors.Is(rmErr, fs.ErrNotExist) {
			e.logger.WarnContext(ctx, "failed to remove downloaded document", "path", path, "error", rmErr)
		}
	}()
	e.logger.DebugContext(ctx, "downloaded document", "bytes", n, "path", path)

	return e.ExtractFile(ctx, path)
}

func (e *Extractor) download(ctx context.Context, rawURL string) (string, int64, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return "", 0, fmt.Errorf("build download request: %w", err)
	}
	resp, err := e.client.Do(req)
	if err != nil {
		return "", 0, fmt.Errorf("download document: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return "", 0, fmt.Errorf("failed to download PDF: HTTP %d", resp.StatusCode)
	}

	if err := os.MkdirAll(e.tempDir, 0o750); err != nil {
		return "", 0, fmt.Errorf("create temp dir: %w", err)
	}
	name := "download_" + strings.ReplaceAll(uuid.NewString(), "-", "")[:8] + downloadExt(resp.Header.Get("Content-Type"))
	path := filepath.Join(e.tempDir, name)

	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o600)
	if err != nil {
		return "", 0, fmt.Errorf("create temp file: %w", err)
	}
	n, copyErr := io.Copy(f, io.LimitReader(resp.Body, e.maxDownload+1))
	closeErr := f.Close()
	if copyErr == nil && n > e.maxDownload {
		copyErr = ErrDownloadTooLarge
	}
	if err := errors.Join(copyErr, closeErr); err != nil {
		_ = os.Remove(path)
		return "", 0, fmt.Errorf("write downloaded document: %w", err)
	}
	return path, n, nil
}

func downloadExt(contentType string) string {
	ct := strings.ToLower(contentType)
	switch {
	case strings.Contains(ct, "text/html"):
		return ".html"
	case strings.HasPrefix(ct, "text/plain"):
		return ".txt"
	default:
		return ".pdf"
	}
}

// ExtractFile extracts text from the document at path.
func (e *Extractor) ExtractFile(ctx context.Context, path string) (*model.Extraction, error) {
	e.logger.InfoContext(ctx, "starting extraction", "path", path)

	info, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("file not found: %s", path)
		}
		return nil, fmt.Errorf("stat document: %w", err)
	}
	if info.IsDir() {
		return nil, fmt.Errorf("not a file: %s", path)
	}

	kind, err := detectKind(path)
	if err != nil {
		return nil, err
	}

	var out *model.Extraction
	switch kind {
	case kindPDF:
		out, err = extractPDF(ctx, path)
	case kindHTML:
		out, err = extractHTML(path)
	default:
		out, err = extractText(path)
	}
	if err != nil {
		return nil, err
	}

	chars := utf8.RuneCountInString(out.Text)
	if chars < e.minTextChars {
		warning := fmt.Sprintf("low text extraction (%d chars), document may need OCR", chars)
		out.Warnings = append(out.Warnings, warning)
		e.logger.WarnContext(ctx, "low text extraction", "chars", chars, "path", path)
	}
	e.logger.InfoContext(ctx, "extraction complete",
		"chars", chars,
		"pages", out.PageCount,
		"kind", kind,
	)
	return out, nil
}

type docKind string

const (
	kindPDF  docKind = "pdf"
	kindHTML docKind = "html"
	kindText docKind = "text"
)

// detectKind sniffs the first bytes of path, falling back to its extension.
func detectKind(path string) (docKind, error) {
	f, err := os.Open(path) // #nosec G304 - path is owned by the job
	if err != nil {
		return "", fmt.Errorf("open document: %w", err)
	}
	defer f.Close()

	buf := make([]byte, sniffLen)
	n, err := io.ReadFull(f, buf)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
		return "", fmt.Errorf("read document: %w", err)
	}
	head := buf[:n]

	if strings.HasPrefix(string(head), "%PDF-") {
		return kindPDF, nil
	}
	ct := http.DetectContentType(head)
	switch {
	case strings.HasPrefix(ct, "text/html"):
		return kindHTML, nil
	case strings.HasPrefix(ct, "text/"):
		switch strings.ToLower(filepath.Ext(path)) {
		case ".html", ".htm":
			return kindHTML, nil
		}
		return kindText, nil
	}
	// Anything else is handed to the PDF reader, which reports a parse error.
	return kindPDF, nil
}

func extractText(path string) (*model.Extraction, error) {
	b, err := os.ReadFile(path) // #nosec G304 - path is owned by the job
	if err != nil {
		return nil, fmt.Errorf("read document: %w", err)
	}
	return &model.Extraction{Text: strings.TrimSpace(string(b)), PageCount: 1}, nil
}
