// Package config loads the YAML application configuration and applies
// environment overrides.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/lucasb-eyer/go-colorful"
	"gocv.io/x/gocv"
	"gopkg.in/yaml.v3"

	"github.com/cyber-nic/sparkle-eraser/internal/janitor"
	"github.com/cyber-nic/sparkle-eraser/internal/pdfclean"
	"github.com/cyber-nic/sparkle-eraser/internal/watermark"
)

// DefaultFile is read when no -config flag is given.
const DefaultFile = "local.env.yaml"

// Template names one logo template. File wins over the built-in Size.
type Template struct {
	Name string `yaml:"name"`
	File string `yaml:"file"`
	Size int    `yaml:"size"`
}

// Detection overrides the matcher constants. Zero values keep the defaults.
type Detection struct {
	AcceptThreshold   float64 `yaml:"accept_threshold"`
	HighThreshold     float64 `yaml:"high_threshold"`
	EdgeFallbackBelow float64 `yaml:"edge_fallback_below"`
	EdgeMagnitude     float32 `yaml:"edge_magnitude"`
	ScaleMin          float64 `yaml:"scale_min"`
	ScaleMax          float64 `yaml:"scale_max"`
	ScaleSteps        int     `yaml:"scale_steps"`
	// Inpaint is "telea" or "ns".
	Inpaint string `yaml:"inpaint"`
	Workers int    `yaml:"workers"`
}

type Server struct {
	Port         string        `yaml:"port"`
	UploadDir    string        `yaml:"upload_dir"`
	ProcessedDir string        `yaml:"processed_dir"`
	MaxFileSize  int64         `yaml:"max_file_size"`
	MaxAge       time.Duration `yaml:"max_age"`
}

type PDF struct {
	Text      string  `yaml:"text"`
	BoxWidth  float64 `yaml:"box_width"`
	BoxHeight float64 `yaml:"box_height"`
	BoxMargin float64 `yaml:"box_margin"`
	// Fill is a hex colour such as "#ffffff".
	Fill string `yaml:"fill"`
}

// AppConfig is the whole configuration file.
type AppConfig struct {
	Debug     bool       `yaml:"debug"`
	Info      bool       `yaml:"info"`
	Human     bool       `yaml:"human"`
	Visual    bool       `yaml:"visual"`
	Enhance   bool       `yaml:"enhance"`
	Templates []Template `yaml:"templates"`
	Detection Detection  `yaml:"detection"`
	Server    Server     `yaml:"server"`
	PDF       PDF        `yaml:"pdf"`
}

// Default returns the configuration used when no file is present.
func Default() *AppConfig {
	cfg := &AppConfig{
		Server: Server{
			Port:         "5001",
			UploadDir:    ".tmp/uploads",
			ProcessedDir: ".tmp/processed",
			MaxFileSize:  32 << 20,
			MaxAge:       janitor.DefaultMaxAge,
		},
		PDF: PDF{
			Text:      pdfclean.DefaultText,
			BoxWidth:  pdfclean.DefaultBoxWidth,
			BoxHeight: pdfclean.DefaultBoxHeight,
			BoxMargin: pdfclean.DefaultBoxMargin,
			Fill:      "#ffffff",
		},
	}
	for _, s := range watermark.DefaultSources() {
		cfg.Templates = append(cfg.Templates, Template{Name: s.Name, File: s.File, Size: s.Size})
	}
	return cfg
}

// Load reads path over the defaults, then applies .env files and the PORT,
// UPLOAD_DIR, PROCESSED_DIR and MAX_FILE_SIZE environment variables. A
// missing config file or .env file is not an error.
func Load(path string, envFiles ...string) (*AppConfig, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
	case err != nil:
		return nil, fmt.Errorf("read config: %w", err)
	default:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	for _, f := range envFiles {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("load %s: %w", f, err)
		}
	}
	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	return cfg, cfg.Validate()
}

func (c *AppConfig) applyEnv() error {
	if v := os.Getenv("PORT"); v != "" {
		c.Server.Port = v
	}
	if v := os.Getenv("UPLOAD_DIR"); v != "" {
		c.Server.UploadDir = v
	}
	if v := os.Getenv("PROCESSED_DIR"); v != "" {
		c.Server.ProcessedDir = v
	}
	if v := os.Getenv("MAX_FILE_SIZE"); v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return fmt.Errorf("MAX_FILE_SIZE: %w", err)
		}
		c.Server.MaxFileSize = n
	}
	return nil
}

// Validate rejects settings the pipeline cannot run with.
func (c *AppConfig) Validate() error {
	if _, err := c.InpaintMethod(); err != nil {
		return err
	}
	if _, err := c.FillRGB(); err != nil {
		return err
	}
	d := c.Detection
	if d.ScaleMin < 0 || (d.ScaleMax != 0 && d.ScaleMax < d.ScaleMin) {
		return fmt.Errorf("invalid scale range [%v, %v]", d.ScaleMin, d.ScaleMax)
	}
	if c.Server.MaxFileSize <= 0 {
		return fmt.Errorf("max_file_size must be positive")
	}
	return nil
}

// InpaintMethod maps the configured name onto the OpenCV algorithm.
func (c *AppConfig) InpaintMethod() (gocv.InpaintMethods, error) {
	switch strings.ToLower(c.Detection.Inpaint) {
	case "", "telea":
		return gocv.Telea, nil
	case "ns", "navier-stokes":
		return gocv.NS, nil
	}
	return 0, fmt.Errorf("unknown inpaint method %q", c.Detection.Inpaint)
}

// Params builds the detection parameters, keeping defaults for unset values.
func (c *AppConfig) Params() watermark.Params {
	p := watermark.DefaultParams()
	d := c.Detection
	if d.AcceptThreshold > 0 {
		p.AcceptThreshold = d.AcceptThreshold
	}
	if d.HighThreshold > 0 {
		p.HighThreshold = d.HighThreshold
	}
	if d.EdgeFallbackBelow > 0 {
		p.EdgeFallbackBelow = d.EdgeFallbackBelow
	}
	if d.EdgeMagnitude > 0 {
		p.EdgeMagnitude = d.EdgeMagnitude
	}
	if d.ScaleMin > 0 {
		p.ScaleMin = d.ScaleMin
	}
	if d.ScaleMax > 0 {
		p.ScaleMax = d.ScaleMax
	}
	if d.ScaleSteps > 0 {
		p.ScaleSteps = d.ScaleSteps
	}
	if m, err := c.InpaintMethod(); err == nil {
		p.InpaintMethod = m
	}
	p.Workers = d.Workers
	return p
}

// TemplateSources returns the templates in configured order.
func (c *AppConfig) TemplateSources() []watermark.TemplateSource {
	sources := make([]watermark.TemplateSource, 0, len(c.Templates))
	for _, t := range c.Templates {
		sources = append(sources, watermark.TemplateSource{Name: t.Name, File: t.File, Size: t.Size})
	}
	return sources
}

// FillRGB parses the PDF fill colour into [0,1] components.
func (c *AppConfig) FillRGB() ([3]float64, error) {
	if c.PDF.Fill == "" {
		return [3]float64{1, 1, 1}, nil
	}
	col, err := colorful.Hex(c.PDF.Fill)
	if err != nil {
		return [3]float64{}, fmt.Errorf("pdf fill: %w", err)
	}
	return [3]float64{col.R, col.G, col.B}, nil
}

// PDFOptions builds the redactor options.
func (c *AppConfig) PDFOptions() pdfclean.Options {
	fill, err := c.FillRGB()
	if err != nil {
		fill = [3]float64{1, 1, 1}
	}
	return pdfclean.Options{
		Text:      c.PDF.Text,
		BoxWidth:  c.PDF.BoxWidth,
		BoxHeight: c.PDF.BoxHeight,
		BoxMargin: c.PDF.BoxMargin,
		Fill:      fill,
	}
}
