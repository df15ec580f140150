package server

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cyber-nic/sparkle-eraser/internal/pdfclean"
	"github.com/cyber-nic/sparkle-eraser/internal/watermark"
)

func TestMain(m *testing.M) {
	gin.SetMode(gin.TestMode)
	os.Exit(m.Run())
}

type mockCleaner struct {
	CleanFunc func(in, out string) watermark.Result
}

func (m *mockCleaner) Clean(in, out string) watermark.Result {
	return m.CleanFunc(in, out)
}

type mockRedactor struct {
	RedactFunc func(in, out string) (pdfclean.Report, error)
}

func (m *mockRedactor) Redact(in, out string) (pdfclean.Report, error) {
	return m.RedactFunc(in, out)
}

// copyThrough mimics a processor by copying in to out.
func copyThrough(in, out string) error {
	data, err := os.ReadFile(in)
	if err != nil {
		return err
	}
	return os.WriteFile(out, data, 0o600)
}

func newTestServer(t *testing.T, images ImageCleaner, pdfs PDFRedactor) (*Server, Config) {
	t.Helper()
	dir := t.TempDir()
	cfg := Config{
		Port:         "0",
		UploadDir:    filepath.Join(dir, "uploads"),
		ProcessedDir: filepath.Join(dir, "processed"),
		MaxFileSize:  1 << 20,
		MaxAge:       time.Hour,
	}
	s, err := New(cfg, images, pdfs)
	require.NoError(t, err)
	return s, cfg
}

func uploadRequest(t *testing.T, field, filename string, body []byte) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	part, err := w.CreateFormFile(field, filename)
	require.NoError(t, err)
	_, err = part.Write(body)
	require.NoError(t, err)
	require.NoError(t, w.Close())

	req := httptest.NewRequest(http.MethodPost, "/upload", &buf)
	req.Header.Set("Content-Type", w.FormDataContentType())
	return req
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) response {
	t.Helper()
	var resp response
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return resp
}

func TestUpload_ImageThenDownload(t *testing.T) {
	var gotIn, gotOut string
	images := &mockCleaner{CleanFunc: func(in, out string) watermark.Result {
		gotIn, gotOut = in, out
		require.NoError(t, copyThrough(in, out))
		return watermark.Result{OK: true, Message: "watermark removed", Path: out}
	}}
	s, cfg := newTestServer(t, images, nil)

	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, uploadRequest(t, "file", "my photo.PNG", []byte("pixels")))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	resp := decode(t, rec)
	assert.True(t, resp.Success)
	assert.Equal(t, "watermark removed", resp.Message)
	assert.True(t, strings.HasPrefix(resp.DownloadURL, "/download/cleaned_"))
	assert.True(t, strings.HasSuffix(resp.DownloadURL, "_my_photo.PNG"))
	assert.Equal(t, cfg.UploadDir, filepath.Dir(gotIn))
	assert.Equal(t, filepath.Join(cfg.ProcessedDir, strings.TrimPrefix(resp.DownloadURL, "/download/")), gotOut)

	rec = httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, resp.DownloadURL, nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "pixels", rec.Body.String())
	assert.Contains(t, rec.Header().Get("Content-Disposition"), "attachment")
}

func TestUpload_PDF(t *testing.T) {
	pdfs := &mockRedactor{RedactFunc: func(in, out string) (pdfclean.Report, error) {
		require.NoError(t, copyThrough(in, out))
		return pdfclean.Report{TextHits: 2, Boxes: 1, Pages: 1}, nil
	}}
	s, _ := newTestServer(t, nil, pdfs)

	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, uploadRequest(t, "file", "slides.pdf", []byte("%PDF-1.4")))
	require.Equal(t, http.StatusOK, rec.Code)
	resp := decode(t, rec)
	assert.True(t, resp.Success)
	assert.Contains(t, resp.Message, "3")
}

func TestUpload_Failures(t *testing.T) {
	images := &mockCleaner{CleanFunc: func(in, out string) watermark.Result {
		return watermark.Result{Message: "input unreadable: bad data"}
	}}
	pdfs := &mockRedactor{RedactFunc: func(in, out string) (pdfclean.Report, error) {
		return pdfclean.Report{}, errors.New("broken xref")
	}}
	s, _ := newTestServer(t, images, pdfs)

	tests := []struct {
		name     string
		req      *http.Request
		status   int
		contains string
	}{
		{
			name:     "wrong field",
			req:      uploadRequest(t, "document", "a.png", []byte("x")),
			status:   http.StatusBadRequest,
			contains: "No file part",
		},
		{
			name:     "extension",
			req:      uploadRequest(t, "file", "notes.txt", []byte("x")),
			status:   http.StatusBadRequest,
			contains: "Extension .txt not allowed",
		},
		{
			name:     "too large",
			req:      uploadRequest(t, "file", "big.jpg", bytes.Repeat([]byte("x"), 2<<20)),
			status:   http.StatusRequestEntityTooLarge,
			contains: "too large",
		},
		{
			name:     "image failure",
			req:      uploadRequest(t, "file", "a.jpeg", []byte("x")),
			status:   http.StatusInternalServerError,
			contains: "input unreadable",
		},
		{
			name:     "pdf failure",
			req:      uploadRequest(t, "file", "a.pdf", []byte("x")),
			status:   http.StatusInternalServerError,
			contains: "broken xref",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			s.Handler().ServeHTTP(rec, tt.req)
			assert.Equal(t, tt.status, rec.Code)
			resp := decode(t, rec)
			assert.False(t, resp.Success)
			assert.Contains(t, resp.Message, tt.contains)
		})
	}
}

// countingReader records how many bytes the handler consumed.
type countingReader struct {
	r io.Reader
	n int64
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.n += int64(n)
	return n, err
}

func TestUpload_OversizeStopsReadingBody(t *testing.T) {
	called := false
	images := &mockCleaner{CleanFunc: func(in, out string) watermark.Result {
		called = true
		return watermark.Result{OK: true}
	}}
	s, cfg := newTestServer(t, images, nil)

	req := uploadRequest(t, "file", "huge.png", bytes.Repeat([]byte("x"), 16<<20))
	body := &countingReader{r: req.Body}
	req.Body = io.NopCloser(body)

	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
	assert.Contains(t, decode(t, rec).Message, "too large")
	assert.False(t, called)
	assert.Less(t, body.n, int64(2<<20), "body must not be read past the limit")

	entries, err := os.ReadDir(cfg.UploadDir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestUpload_SweepsStaleFiles(t *testing.T) {
	images := &mockCleaner{CleanFunc: func(in, out string) watermark.Result {
		return watermark.Result{OK: true, Path: out}
	}}
	s, cfg := newTestServer(t, images, nil)

	stale := filepath.Join(cfg.ProcessedDir, "cleaned_old.png")
	require.NoError(t, os.WriteFile(stale, []byte("x"), 0o600))
	old := time.Now().Add(-2 * time.Hour)
	require.NoError(t, os.Chtimes(stale, old, old))

	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, uploadRequest(t, "file", "a.png", []byte("x")))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.NoFileExists(t, stale)
}

func TestDownload(t *testing.T) {
	s, cfg := newTestServer(t, nil, nil)
	require.NoError(t, os.WriteFile(filepath.Join(cfg.ProcessedDir, ".env"), []byte("x"), 0o600))

	tests := []struct {
		name   string
		path   string
		status int
	}{
		{name: "missing", path: "/download/cleaned_nope.png", status: http.StatusNotFound},
		{name: "parent", path: "/download/..", status: http.StatusBadRequest},
		{name: "hidden", path: "/download/.env", status: http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, tt.path, nil))
			assert.Equal(t, tt.status, rec.Code)
		})
	}
}

func TestHealth(t *testing.T) {
	s, _ := newTestServer(t, nil, nil)

	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
	assert.Equal(t, "no-store", rec.Header().Get("Cache-Control"))
}

func TestSanitizeFilename(t *testing.T) {
	tests := map[string]string{
		"photo.png":            "photo.png",
		"my photo (1).jpg":     "my_photo_1_.jpg",
		"../../etc/passwd.pdf": "passwd.pdf",
		`C:\Users\me\a b.png`:  "a_b.png",
		"":                     "upload",
	}
	for in, want := range tests {
		assert.Equal(t, want, SanitizeFilename(in), in)
	}
}
