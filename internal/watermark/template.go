package watermark

import (
	"fmt"
	"image"
	"math"
	"sync"

	"github.com/rs/zerolog/log"
	"gocv.io/x/gocv"
)

// Template is a grayscale reference rendition of the logo.
type Template struct {
	Name string
	Gray gocv.Mat
}

// Scaled resizes the template by factor s. The caller owns the result.
func (t *Template) Scaled(s float64) gocv.Mat {
	w := int(math.Round(float64(t.Gray.Cols()) * s))
	h := int(math.Round(float64(t.Gray.Rows()) * s))
	out := gocv.NewMat()
	if w < 1 || h < 1 {
		return out
	}
	interp := gocv.InterpolationCubic
	if s < 1 {
		interp = gocv.InterpolationArea
	}
	gocv.Resize(t.Gray, &out, image.Pt(w, h), 0, 0, interp)
	return out
}

// Binary returns the non-zero footprint of a (scaled) template as 0/255.
func Binary(gray gocv.Mat) gocv.Mat {
	bin := gocv.NewMat()
	gocv.Threshold(gray, &bin, 0, 255, gocv.ThresholdBinary)
	return bin
}

// TemplateSource names one template. An empty File selects the built-in
// rendering of the sparkle at Size pixels.
type TemplateSource struct {
	Name string
	File string
	Size int
}

// DefaultSources lists the built-in renditions, newest and largest first.
func DefaultSources() []TemplateSource {
	return []TemplateSource{
		{Name: "sparkle-96", Size: 96},
		{Name: "sparkle-48", Size: 48},
	}
}

// Repository loads templates in a fixed, caller-given order and caches them
// for the life of the process. Templates are read-only once loaded.
type Repository struct {
	mu      sync.Mutex
	sources []TemplateSource
	loaded  []*Template
}

// NewRepository creates a repository over the ordered sources.
func NewRepository(sources []TemplateSource) *Repository {
	return &Repository{sources: sources}
}

// Templates loads (once) and returns the templates in source order. Sources
// that fail to load are skipped with a warning; an empty result is not an
// error, the pipeline then relies on its fallbacks.
func (r *Repository) Templates() []*Template {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.loaded != nil {
		return r.loaded
	}

	r.loaded = make([]*Template, 0, len(r.sources))
	for _, src := range r.sources {
		tpl, err := loadTemplate(src)
		if err != nil {
			log.Warn().Err(err).Str("template", src.Name).Msg("skipping template")
			continue
		}
		log.Debug().
			Str("template", tpl.Name).
			Int("width", tpl.Gray.Cols()).
			Int("height", tpl.Gray.Rows()).
			Msg("template loaded")
		r.loaded = append(r.loaded, tpl)
	}
	return r.loaded
}

// Close releases every loaded template.
func (r *Repository) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, t := range r.loaded {
		t.Gray.Close()
	}
	r.loaded = nil
}

func loadTemplate(src TemplateSource) (*Template, error) {
	if src.File == "" {
		if src.Size < 8 {
			return nil, fmt.Errorf("built-in template size %d too small", src.Size)
		}
		return &Template{Name: src.Name, Gray: RenderSparkle(src.Size)}, nil
	}

	gray := gocv.IMRead(src.File, gocv.IMReadGrayScale)
	if gray.Empty() {
		gray.Close()
		return nil, fmt.Errorf("%w: template %s", ErrInputUnreadable, src.File)
	}
	name := src.Name
	if name == "" {
		name = src.File
	}
	return &Template{Name: name, Gray: gray}, nil
}

// RenderSparkle draws the four-pointed sparkle on black, size x size pixels.
// The outline is the superellipse |u|^0.5 + |v|^0.5 = 1 with anti-aliased
// edges from 4x4 supersampling.
func RenderSparkle(size int) gocv.Mat {
	const ss = 4
	mat := gocv.NewMatWithSize(size, size, gocv.MatTypeCV8UC1)
	half := float64(size) / 2
	for y := 0; y < size; y++ {
		for x := 0; x < size; x++ {
			inside := 0
			for sy := 0; sy < ss; sy++ {
				for sx := 0; sx < ss; sx++ {
					u := (float64(x) + (float64(sx)+0.5)/ss - half) / half
					v := (float64(y) + (float64(sy)+0.5)/ss - half) / half
					if math.Sqrt(math.Abs(u))+math.Sqrt(math.Abs(v)) <= 1 {
						inside++
					}
				}
			}
			mat.SetUCharAt(y, x, uint8(inside*255/(ss*ss)))
		}
	}
	return mat
}
