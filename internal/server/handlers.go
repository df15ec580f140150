package server

import (
	"errors"
	"net/http"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/cyber-nic/sparkle-eraser/internal/janitor"
)

// allowedExtensions are the accepted upload types.
var allowedExtensions = map[string]bool{
	".pdf":  true,
	".png":  true,
	".jpg":  true,
	".jpeg": true,
}

// multipartOverhead is the room left for part headers and boundaries on top
// of the file size limit.
const multipartOverhead = 64 << 10

var unsafeChars = regexp.MustCompile(`[^A-Za-z0-9._-]+`)

type response struct {
	Success     bool   `json:"success"`
	Message     string `json:"message"`
	DownloadURL string `json:"download_url,omitempty"`
}

func fail(c *gin.Context, status int, msg string) {
	c.JSON(status, response{Message: msg})
}

func (s *Server) handleHealth(c *gin.Context) {
	c.Header("Cache-Control", "no-store")
	if c.Request.Method == http.MethodHead {
		c.Status(http.StatusOK)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) handleUpload(c *gin.Context) {
	janitor.SweepAll(s.cfg.MaxAge, s.cfg.UploadDir, s.cfg.ProcessedDir)

	if s.cfg.MaxFileSize > 0 {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, s.cfg.MaxFileSize+multipartOverhead)
	}
	header, err := c.FormFile("file")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			fail(c, http.StatusRequestEntityTooLarge, "File too large")
			return
		}
		fail(c, http.StatusBadRequest, "No file part")
		return
	}
	if header.Filename == "" {
		fail(c, http.StatusBadRequest, "No selected file")
		return
	}
	ext := strings.ToLower(filepath.Ext(header.Filename))
	if !allowedExtensions[ext] {
		fail(c, http.StatusBadRequest, "Extension "+ext+" not allowed")
		return
	}
	if s.cfg.MaxFileSize > 0 && header.Size > s.cfg.MaxFileSize {
		fail(c, http.StatusRequestEntityTooLarge, "File too large")
		return
	}

	stored := uuid.NewString() + "_" + SanitizeFilename(header.Filename)
	in := filepath.Join(s.cfg.UploadDir, stored)
	if err := c.SaveUploadedFile(header, in); err != nil {
		log.Error().Err(err).Str("file", in).Msg("save upload")
		fail(c, http.StatusInternalServerError, "Failed to save file")
		return
	}

	outName := "cleaned_" + stored
	out := filepath.Join(s.cfg.ProcessedDir, outName)

	var msg string
	if ext == ".pdf" {
		report, err := s.pdfs.Redact(in, out)
		if err != nil {
			log.Error().Err(err).Str("file", in).Msg("pdf redaction failed")
			fail(c, http.StatusInternalServerError, "Error processing PDF: "+err.Error())
			return
		}
		msg = report.Message()
	} else {
		res := s.images.Clean(in, out)
		if !res.OK {
			log.Error().Str("file", in).Str("reason", res.Message).Msg("image cleaning failed")
			fail(c, http.StatusInternalServerError, res.Message)
			return
		}
		msg = res.Message
	}

	c.JSON(http.StatusOK, response{
		Success:     true,
		Message:     msg,
		DownloadURL: "/download/" + outName,
	})
}

func (s *Server) handleDownload(c *gin.Context) {
	name := c.Param("name")
	if name != filepath.Base(name) || strings.HasPrefix(name, ".") {
		fail(c, http.StatusBadRequest, "Invalid file name")
		return
	}
	path := filepath.Join(s.cfg.ProcessedDir, name)
	if info, err := os.Stat(path); err != nil || !info.Mode().IsRegular() {
		fail(c, http.StatusNotFound, "File not found")
		return
	}
	c.FileAttachment(path, name)
}

// SanitizeFilename keeps the base name of an upload and replaces anything
// outside [A-Za-z0-9._-] with an underscore.
func SanitizeFilename(name string) string {
	name = filepath.Base(strings.ReplaceAll(name, `\`, "/"))
	name = unsafeChars.ReplaceAllString(name, "_")
	if name == "" || strings.Trim(name, ".") == "" {
		return "upload"
	}
	return name
}
