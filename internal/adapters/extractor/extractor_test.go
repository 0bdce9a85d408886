package extractor

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/target/policy-analysis-api/internal/domain/model"
)

// buildPDF renders a minimal single-font PDF with one text line per page.
func buildPDF(pages ...string) []byte {
	var objs []string
	n := len(pages)
	fontObj := 3 + 2*n

	kids := make([]string, n)
	for i := range pages {
		kids[i] = fmt.Sprintf("%d 0 R", 3+2*i)
	}
	objs = append(objs,
		"<< /Type /Catalog /Pages 2 0 R >>",
		fmt.Sprintf("<< /Type /Pages /Kids [%s] /Count %d >>", strings.Join(kids, " "), n),
	)
	for i, text := range pages {
		stream := fmt.Sprintf("BT /F1 12 Tf 72 720 Td (%s) Tj ET", text)
		objs = append(objs,
			fmt.Sprintf("<< /Type /Page /Parent 2 0 R /MediaBox [0 0 612 792] /Resources << /Font << /F1 %d 0 R >> >> /Contents %d 0 R >>", fontObj, 4+2*i),
			fmt.Sprintf("<< /Length %d >>\nstream\n%s\nendstream", len(stream), stream),
		)
	}
	objs = append(objs, "<< /Type /Font /Subtype /Type1 /BaseFont /Helvetica /Encoding /WinAnsiEncoding >>")

	var buf bytes.Buffer
	buf.WriteString("%PDF-1.4\n")
	offsets := make([]int, len(objs))
	for i, body := range objs {
		offsets[i] = buf.Len()
		fmt.Fprintf(&buf, "%d 0 obj\n%s\nendobj\n", i+1, body)
	}
	xref := buf.Len()
	fmt.Fprintf(&buf, "xref\n0 %d\n0000000000 65535 f \n", len(objs)+1)
	for _, off := range offsets {
		fmt.Fprintf(&buf, "%010d 00000 n \n", off)
	}
	fmt.Fprintf(&buf, "trailer\n<< /Size %d /Root 1 0 R >>\nstartxref\n%d\n%%%%EOF\n", len(objs)+1, xref)
	return buf.Bytes()
}

func writeFile(t *testing.T, name string, data []byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, data, 0o600))
	return path
}

func TestExtractor_FileNotFound(t *testing.T) {
	e := New(Options{})
	path := filepath.Join(t.TempDir(), "missing.pdf")

	_, err := e.Extract(context.Background(), model.Source{Path: path})
	require.Error(t, err)
	assert.Equal(t, "file not found: "+path, err.Error())
}

func TestExtractor_NoSource(t *testing.T) {
	_, err := New(Options{}).Extract(context.Background(), model.Source{})
	require.Error(t, err)
}

func TestExtractor_PDFPages(t *testing.T) {
	path := writeFile(t, "policy.pdf", buildPDF("Coverage limit one million", "Retention ten thousand"))

	out, err := New(Options{}).Extract(context.Background(), model.Source{Path: path})
	require.NoError(t, err)
	assert.Equal(t, 2, out.PageCount)
	assert.True(t, strings.HasPrefix(out.Text, "--- Page 1 ---\n"))
	assert.Contains(t, out.Text, "\n\n--- Page 2 ---\n")
	assert.Contains(t, out.Text, "Coverage")
	assert.Contains(t, out.Text, "Retention")
	require.Len(t, out.Warnings, 1)
	assert.Contains(t, out.Warnings[0], "may need OCR")
}

func TestExtractor_CorruptPDF(t *testing.T) {
	path := writeFile(t, "broken.pdf", []byte("%PDF-1.4\nthis is not really a pdf"))

	_, err := New(Options{}).Extract(context.Background(), model.Source{Path: path})
	require.Error(t, err)
}

func TestExtractor_HTML(t *testing.T) {
	doc := `<!DOCTYPE html><html><head><title>ignored</title><style>p{}</style></head>
<body><h1>Cyber Policy</h1><p>Limit:   $1,000,000</p><script>var x = 1;</script><ul><li>Ransomware</li></ul></body></html>`
	path := writeFile(t, "policy.html", []byte(doc))

	out, err := New(Options{}).Extract(context.Background(), model.Source{Path: path})
	require.NoError(t, err)
	assert.Equal(t, "Cyber Policy\nLimit: $1,000,000\nRansomware", out.Text)
	assert.NotContains(t, out.Text, "var x")
}

func TestExtractor_PlainTextAboveThreshold(t *testing.T) {
	body := strings.Repeat("policy wording ", 10)
	path := writeFile(t, "policy.txt", []byte(body))

	out, err := New(Options{MinTextChars: 50}).Extract(context.Background(), model.Source{Path: path})
	require.NoError(t, err)
	assert.Equal(t, strings.TrimSpace(body), out.Text)
	assert.Empty(t, out.Warnings)
}

func TestExtractor_DownloadNon200(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	t.Cleanup(srv.Close)

	tmp := t.TempDir()
	_, err := New(Options{TempDir: tmp}).Extract(context.Background(), model.Source{URL: srv.URL})
	require.Error(t, err)
	assert.Equal(t, "failed to download PDF: HTTP 403", err.Error())

	entries, _ := os.ReadDir(tmp)
	assert.Empty(t, entries)
}

func TestExtractor_DownloadRemovesTempFile(t *testing.T) {
	pdfBytes := buildPDF("Downloaded policy text")
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/pdf")
		_, _ = w.Write(pdfBytes)
	}))
	t.Cleanup(srv.Close)

	tmp := t.TempDir()
	out, err := New(Options{TempDir: tmp}).Extract(context.Background(), model.Source{URL: srv.URL})
	require.NoError(t, err)
	assert.Contains(t, out.Text, "Downloaded")

	entries, err := os.ReadDir(tmp)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestExtractor_DownloadTooLarge(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write(bytes.Repeat([]byte("a"), 2048))
	}))
	t.Cleanup(srv.Close)

	tmp := t.TempDir()
	_, err := New(Options{TempDir: tmp, MaxDownloadBytes: 1024}).Extract(context.Background(), model.Source{URL: srv.URL})
	require.ErrorIs(t, err, ErrDownloadTooLarge)

	entries, _ := os.ReadDir(tmp)
	assert.Empty(t, entries)
}

func TestDownloadExt(t *testing.T) {
	assert.Equal(t, ".html", downloadExt("text/html; charset=utf-8"))
	assert.Equal(t, ".txt", downloadExt("text/plain"))
	assert.Equal(t, ".pdf", downloadExt("application/pdf"))
	assert.Equal(t, ".pdf", downloadExt(""))
}
