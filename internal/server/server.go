// Package server exposes the watermark remover over HTTP: files are uploaded,
// cleaned synchronously and fetched back from the processed directory.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"github.com/cyber-nic/sparkle-eraser/internal/pdfclean"
	"github.com/cyber-nic/sparkle-eraser/internal/watermark"
)

// ImageCleaner removes the watermark from a raster image file.
type ImageCleaner interface {
	Clean(in, out string) watermark.Result
}

// PDFRedactor removes the watermark from a PDF file.
type PDFRedactor interface {
	Redact(in, out string) (pdfclean.Report, error)
}

// Config holds the HTTP settings.
type Config struct {
	Port         string
	UploadDir    string
	ProcessedDir string
	MaxFileSize  int64
	// MaxAge is the retention of uploads and results.
	MaxAge time.Duration
}

// Server wires the handlers to their processors.
type Server struct {
	cfg    Config
	images ImageCleaner
	pdfs   PDFRedactor
	engine *gin.Engine
}

// New creates the server and its directories.
func New(cfg Config, images ImageCleaner, pdfs PDFRedactor) (*Server, error) {
	for _, dir := range []string{cfg.UploadDir, cfg.ProcessedDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create %s: %w", dir, err)
		}
	}

	s := &Server{cfg: cfg, images: images, pdfs: pdfs}
	r := gin.New()
	r.Use(requestLogger(), gin.Recovery())
	r.MaxMultipartMemory = cfg.MaxFileSize

	r.GET("/health", s.handleHealth)
	r.HEAD("/health", s.handleHealth)
	r.POST("/upload", s.handleUpload)
	r.GET("/download/:name", s.handleDownload)
	s.engine = r
	return s, nil
}

// Handler returns the HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.engine
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              ":" + s.cfg.Port,
		Handler:           s.engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", srv.Addr).Msg("listening")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	log.Info().Msg("shutting down")
	return srv.Shutdown(shutdownCtx)
}

// requestLogger logs each request through zerolog.
func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		ev := log.Info()
		if c.Writer.Status() >= http.StatusInternalServerError {
			ev = log.Error()
		}
		ev.Str("method", c.Request.Method).
			Str("path", c.Request.URL.Path).
			Int("status", c.Writer.Status()).
			Int64("duration(ms)", time.Since(start).Milliseconds()).
			Msg("request")
	}
}
