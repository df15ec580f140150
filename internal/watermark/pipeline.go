// Package watermark locates and erases the sparkle logo watermark and
// caption labels from raster images.
//
// The pipeline runs once per image:
// region selection, multi-scale template matching with an edge-map fallback,
// label detection, confidence-tiered mask building with blob / fixed-anchor /
// safety-box fallbacks, patch cloning or inpainting, and an optional
// quality enhancement pass.
package watermark

import (
	"fmt"
	"image"
	"time"

	"github.com/rs/zerolog/log"
)

// Options toggles optional pipeline stages.
type Options struct {
	Enhance bool
}

// Diagnostics describes what a removal pass did.
type Diagnostics struct {
	Score       float64
	Scale       float64
	Location    image.Point
	Template    string
	Tier        Tier
	Strategy    Strategy
	Labels      int
	MaskPixels  int
	NoTemplates bool
	Duration    time.Duration
}

// Remover runs the detection and removal pipeline.
type Remover struct {
	params   Params
	matcher  *Matcher
	restorer *Restorer
}

// NewRemover creates a remover with the given parameters.
func NewRemover(p Params) *Remover {
	return &Remover{
		params:   p,
		matcher:  NewMatcher(p),
		restorer: NewRestorer(p.InpaintMethod),
	}
}

// Detect runs every detector on img and returns their contributions together
// with the diagnostics of the decision. It never modifies img.
func (r *Remover) Detect(img *Image, templates []*Template) ([]Contribution, Diagnostics) {
	w, h := img.Cols(), img.Rows()
	diag := Diagnostics{NoTemplates: len(templates) == 0}

	if w < MinViableSide || h < MinViableSide {
		fallback := FallbackContribution(w, h)
		diag.Strategy = fallback.Strategy
		return []Contribution{fallback}, diag
	}

	regions := SelectRegions(w, h)
	var contributions []Contribution

	corner := img.BGR.Region(regions.Corner)
	gray := ToGray(corner)
	corner.Close()
	match := r.matcher.Match(gray, templates)
	gray.Close()

	if match.Found() {
		diag.Score = match.Score
		diag.Scale = match.Scale
		diag.Location = match.Loc.Add(regions.Corner.Min)
		diag.Template = match.Template.Name
		diag.Tier = r.params.TierFor(match.Score)
	}

	if diag.Tier != TierLow {
		diag.Strategy = StrategyTemplate
		contributions = append(contributions, TemplateContribution(match, regions.Corner, diag.Tier))
	} else if blobs := DetectBlobs(img.BGR, regions.Corner); len(blobs) > 0 {
		diag.Strategy = StrategyFallbackBlob
		contributions = append(contributions, Contribution{
			Strategy:      StrategyFallbackBlob,
			Dilation:      blobDilation,
			InpaintRadius: BlobInpaintRadius,
			Shapes:        blobs,
		})
	} else {
		fallback := FallbackContribution(w, h)
		diag.Strategy = fallback.Strategy
		contributions = append(contributions, fallback)
	}

	if labels := DetectLabels(img.BGR, regions.LabelStrip); len(labels) > 0 {
		diag.Labels = len(labels)
		contributions = append(contributions, Contribution{
			Strategy:      StrategyLabel,
			InpaintRadius: LabelInpaintRadius,
			Shapes:        labels,
		})
	}
	return contributions, diag
}

// RemoveLogo erases the watermark from img and returns a new image; img is
// left untouched. Some fallback geometry is always applied, so a readable
// image always comes back patched.
func (r *Remover) RemoveLogo(img *Image, templates []*Template, opts Options) (*Image, Diagnostics, error) {
	if img == nil || img.BGR.Empty() {
		return nil, Diagnostics{}, fmt.Errorf("%w: empty image", ErrInputUnreadable)
	}
	start := time.Now()

	contributions, diag := r.Detect(img, templates)
	comp := Compose(img.Cols(), img.Rows(), contributions)
	defer comp.Close()
	diag.MaskPixels = comp.Pixels()

	restored := &Image{BGR: r.restorer.Restore(img.BGR, comp), Alpha: img.Alpha.Clone()}
	if opts.Enhance {
		enhanced := Enhance(restored)
		restored.Close()
		restored = enhanced
	}
	diag.Duration = time.Since(start)

	log.Debug().
		Float64("score", diag.Score).
		Float64("scale", diag.Scale).
		Str("tier", diag.Tier.String()).
		Str("strategy", string(diag.Strategy)).
		Int("labels", diag.Labels).
		Int("maskPixels", diag.MaskPixels).
		Int64("duration(ms)", diag.Duration.Milliseconds()).
		Msg("logo removed")
	return restored, diag, nil
}

// ProcessFile loads in, removes the watermark and writes out. Every failure,
// including a panic inside the vision layer, is reported through Result.
func (r *Remover) ProcessFile(in, out string, templates []*Template, opts Options) (res Result) {
	defer func() {
		if p := recover(); p != nil {
			log.Error().Interface("panic", p).Str("src", in).Msg("image processing panicked")
			res = Result{Message: fmt.Errorf("%w: %v", ErrProcessing, p).Error()}
		}
	}()

	img, err := Load(in)
	if err != nil {
		return Result{Message: err.Error()}
	}
	defer img.Close()

	cleaned, diag, err := r.RemoveLogo(img, templates, opts)
	if err != nil {
		return Result{Message: err.Error()}
	}
	defer cleaned.Close()

	if err := cleaned.Save(out); err != nil {
		return Result{Message: err.Error(), Diagnostics: diag}
	}
	return Result{
		OK:          true,
		Message:     fmt.Sprintf("watermark removed (%s, score %.2f)", diag.Strategy, diag.Score),
		Path:        out,
		Diagnostics: diag,
	}
}

// Cleaner binds a remover to its template repository and options so callers
// only deal with file paths.
type Cleaner struct {
	Remover   *Remover
	Templates *Repository
	Options   Options
}

// NewCleaner creates a file-level cleaner.
func NewCleaner(p Params, templates *Repository, opts Options) *Cleaner {
	return &Cleaner{Remover: NewRemover(p), Templates: templates, Options: opts}
}

// Clean removes the watermark from the image at in and writes it to out.
func (c *Cleaner) Clean(in, out string) Result {
	var templates []*Template
	if c.Templates != nil {
		templates = c.Templates.Templates()
	}
	return c.Remover.ProcessFile(in, out, templates, c.Options)
}
