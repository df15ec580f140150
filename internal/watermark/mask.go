package watermark

import (
	"image"
	"image/color"

	"gocv.io/x/gocv"
)

// Strategy names the detector that decided where the logo is.
type Strategy string

const (
	StrategyTemplate     Strategy = "template"
	StrategyFallbackBlob Strategy = "fallback-blob"
	StrategyFixedAnchor  Strategy = "fixed-anchor"
	StrategySafetyBox    Strategy = "safety-box"
	StrategyLabel        Strategy = "label"
)

// Tier classifies a match score.
type Tier int

const (
	TierLow Tier = iota
	TierMedium
	TierHigh
)

func (t Tier) String() string {
	switch t {
	case TierHigh:
		return "high"
	case TierMedium:
		return "medium"
	}
	return "low"
}

// TierFor classifies a score against the accept and high thresholds.
func (p Params) TierFor(score float64) Tier {
	switch {
	case score > p.HighThreshold:
		return TierHigh
	case score >= p.AcceptThreshold:
		return TierMedium
	}
	return TierLow
}

// Dilation is a square kernel applied Iterations times.
type Dilation struct {
	Kernel     int
	Iterations int
}

// Strength orders dilations by how far they grow a mask.
func (d Dilation) Strength() int {
	if d.Kernel <= 1 {
		return 0
	}
	return (d.Kernel / 2) * d.Iterations
}

// DilationFor returns the footprint dilation of a tier. A convincing match
// justifies stronger erasure.
func DilationFor(t Tier) Dilation {
	switch t {
	case TierHigh:
		return Dilation{Kernel: 5, Iterations: 3}
	case TierMedium:
		return Dilation{Kernel: 3, Iterations: 2}
	}
	return Dilation{}
}

var (
	blobDilation   = Dilation{Kernel: 3, Iterations: 3}
	globalDilation = Dilation{Kernel: 3, Iterations: 1}
)

// Shape is a masked area. A nil Stencil covers the whole rectangle; otherwise
// it holds Bounds.Dx()*Bounds.Dy() bytes, non-zero meaning masked.
type Shape struct {
	Bounds  image.Rectangle
	Stencil []byte
}

// Contribution is the immutable output of one detector.
type Contribution struct {
	Strategy      Strategy
	Confidence    float64
	Dilation      Dilation
	InpaintRadius float32
	Shapes        []Shape
}

// Empty reports whether the contribution marks nothing.
func (c Contribution) Empty() bool {
	return len(c.Shapes) == 0
}

// TemplateContribution turns an accepted match into the template-shaped
// footprint in image coordinates.
func TemplateContribution(m Match, corner image.Rectangle, tier Tier) Contribution {
	scaled := m.Template.Scaled(m.Scale)
	defer scaled.Close()
	bin := Binary(scaled)
	defer bin.Close()

	return Contribution{
		Strategy:   StrategyTemplate,
		Confidence: m.Score,
		Dilation:   DilationFor(tier),
		Shapes: []Shape{{
			Bounds:  image.Rectangle{Min: m.Loc, Max: m.Loc.Add(m.Size)}.Add(corner.Min),
			Stencil: bin.ToBytes(),
		}},
	}
}

// AnchorBox is the canonical watermark position: a square of
// AnchorSizeRatio*max(w,h) centred at AnchorRatio of each dimension.
func AnchorBox(w, h int) image.Rectangle {
	side := int(AnchorSizeRatio * float64(max(w, h)))
	cx := int(AnchorRatio * float64(w))
	cy := int(AnchorRatio * float64(h))
	box := image.Rect(cx-side/2, cy-side/2, cx-side/2+side, cy-side/2+side)
	return box.Intersect(image.Rect(0, 0, w, h))
}

// SafetyBox is the minimal bottom-right box used as the last resort.
func SafetyBox(w, h int) image.Rectangle {
	side := max(1, min(w, h)/8)
	return GravityRect(w, h, side, side, SouthEast)
}

// FallbackContribution picks the fixed anchor box, or the safety box when
// the image is too small or the anchor degenerates.
func FallbackContribution(w, h int) Contribution {
	if w >= MinViableSide && h >= MinViableSide {
		if box := AnchorBox(w, h); !box.Empty() {
			return Contribution{
				Strategy:      StrategyFixedAnchor,
				InpaintRadius: AnchorInpaintRadius,
				Shapes:        []Shape{{Bounds: box}},
			}
		}
	}
	return Contribution{
		Strategy:      StrategySafetyBox,
		InpaintRadius: AnchorInpaintRadius,
		Shapes:        []Shape{{Bounds: SafetyBox(w, h)}},
	}
}

// Composite holds the masks handed to the restorer. Clone covers the logo
// footprints resolved by patch cloning; Inpaint covers everything else and
// never overlaps Clone.
type Composite struct {
	Clone         gocv.Mat
	Inpaint       gocv.Mat
	InpaintRadius float32
	// CloneShapes are the dilated footprint rectangles inside Clone.
	CloneShapes []image.Rectangle
}

// Pixels counts masked pixels in both masks.
func (c *Composite) Pixels() int {
	return gocv.CountNonZero(c.Clone) + gocv.CountNonZero(c.Inpaint)
}

// Close releases both masks.
func (c *Composite) Close() {
	c.Clone.Close()
	c.Inpaint.Close()
}

// Compose merges contributions into clone and inpaint masks for a w x h
// image. Each contribution is painted on its own layer, dilated by its own
// policy and ORed into the target mask; both masks then get the global
// dilation that absorbs anti-aliased edges.
func Compose(w, h int, contributions []Contribution) *Composite {
	comp := &Composite{
		Clone:   zeroMask(w, h),
		Inpaint: zeroMask(w, h),
	}

	bounds := image.Rect(0, 0, w, h)
	for _, c := range contributions {
		if c.Empty() {
			continue
		}
		layer := zeroMask(w, h)
		for _, s := range c.Shapes {
			paintShape(&layer, s, bounds)
		}
		dilate(&layer, c.Dilation)

		if c.Strategy == StrategyTemplate {
			for _, s := range c.Shapes {
				grow := c.Dilation.Strength() + globalDilation.Strength()
				comp.CloneShapes = append(comp.CloneShapes, s.Bounds.Inset(-grow).Intersect(bounds))
			}
			gocv.BitwiseOr(comp.Clone, layer, &comp.Clone)
		} else {
			gocv.BitwiseOr(comp.Inpaint, layer, &comp.Inpaint)
			comp.InpaintRadius = max(comp.InpaintRadius, c.InpaintRadius)
		}
		layer.Close()
	}

	dilate(&comp.Clone, globalDilation)
	dilate(&comp.Inpaint, globalDilation)

	// The logo footprint is resolved by cloning, never inpainted twice.
	notClone := gocv.NewMat()
	defer notClone.Close()
	gocv.BitwiseNot(comp.Clone, &notClone)
	gocv.BitwiseAnd(comp.Inpaint, notClone, &comp.Inpaint)

	if comp.InpaintRadius == 0 {
		comp.InpaintRadius = LabelInpaintRadius
	}
	return comp
}

func zeroMask(w, h int) gocv.Mat {
	m := gocv.NewMatWithSize(h, w, gocv.MatTypeCV8UC1)
	m.SetTo(gocv.NewScalar(0, 0, 0, 0))
	return m
}

func paintShape(mask *gocv.Mat, s Shape, bounds image.Rectangle) {
	if s.Stencil == nil {
		if r := s.Bounds.Intersect(bounds); !r.Empty() {
			gocv.Rectangle(mask, r, color.RGBA{255, 255, 255, 255}, -1)
		}
		return
	}
	w := s.Bounds.Dx()
	for y := s.Bounds.Min.Y; y < s.Bounds.Max.Y; y++ {
		for x := s.Bounds.Min.X; x < s.Bounds.Max.X; x++ {
			if !(image.Point{X: x, Y: y}).In(bounds) {
				continue
			}
			if s.Stencil[(y-s.Bounds.Min.Y)*w+(x-s.Bounds.Min.X)] != 0 {
				mask.SetUCharAt(y, x, 255)
			}
		}
	}
}

func dilate(mask *gocv.Mat, d Dilation) {
	if d.Kernel <= 1 || d.Iterations <= 0 {
		return
	}
	kernel := gocv.GetStructuringElement(gocv.MorphRect, image.Pt(d.Kernel, d.Kernel))
	defer kernel.Close()
	for i := 0; i < d.Iterations; i++ {
		gocv.Dilate(*mask, mask, kernel)
	}
}
