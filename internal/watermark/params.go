package watermark

import "gocv.io/x/gocv"

// Empirical thresholds, tuned by trial on real watermarked images.
const (
	// AcceptThreshold is the minimum match score treated as a detection.
	AcceptThreshold float64 = 0.38
	// HighThreshold separates medium from high confidence matches.
	HighThreshold float64 = 0.8
	// EdgeFallbackBelow triggers the edge-map re-match for weak intensity scores.
	EdgeFallbackBelow float64 = 0.5
	// EdgeMagnitude is the Sobel magnitude above which a pixel is an edge.
	EdgeMagnitude float32 = 40

	ScaleMin   float64 = 0.4
	ScaleMax   float64 = 1.8
	ScaleSteps int     = 29

	BandRatio       float64 = 0.15
	LabelStripRatio float64 = 0.05
	CornerRatio     float64 = 0.28
	MinSearchSide   int     = 100
	MaxSearchSide   int     = 400
	MinLabelStrip   int     = 12
	MinViableSide   int     = 50

	LabelMinWidth     int     = 30
	LabelMaxWidthFrac float64 = 0.8
	LabelMinHeight    int     = 4
	LabelPadding      int     = 4

	BlobMinArea    int     = 5
	BlobMaxArea    int     = 2000
	MaxBlobs       int     = 4
	TopHatKernel   int     = 15
	TopHatMinLevel float32 = 30
	// Brightness squeeze: bright corners start just under the percentile.
	BrightPercentile  float64 = 96
	BrightCornerLevel float32 = 170
	BrightMinLevel    float32 = 160
	BrightMaxStart    float32 = 250
	// BlobMaxCoverage caps the thresholded area at a fraction of the corner.
	BlobMaxCoverage float64 = 0.025

	AnchorRatio     float64 = 0.945
	AnchorSizeRatio float64 = 0.05

	CloneOffsetRatio float64 = 1.25

	LabelInpaintRadius  float32 = 3
	BlobInpaintRadius   float32 = 5
	AnchorInpaintRadius float32 = 7
)

// Params carries the tunable detection constants. The zero value is not
// usable; start from DefaultParams.
type Params struct {
	AcceptThreshold   float64
	HighThreshold     float64
	EdgeFallbackBelow float64
	EdgeMagnitude     float32
	ScaleMin          float64
	ScaleMax          float64
	ScaleSteps        int
	InpaintMethod     gocv.InpaintMethods
	// Workers bounds matcher concurrency; 0 means GOMAXPROCS.
	Workers int
}

// DefaultParams returns the calibrated defaults.
func DefaultParams() Params {
	return Params{
		AcceptThreshold:   AcceptThreshold,
		HighThreshold:     HighThreshold,
		EdgeFallbackBelow: EdgeFallbackBelow,
		EdgeMagnitude:     EdgeMagnitude,
		ScaleMin:          ScaleMin,
		ScaleMax:          ScaleMax,
		ScaleSteps:        ScaleSteps,
		InpaintMethod:     gocv.Telea,
	}
}

// Scales returns the deterministic list of template scale factors.
func (p Params) Scales() []float64 {
	if p.ScaleSteps <= 1 {
		return []float64{1}
	}
	step := (p.ScaleMax - p.ScaleMin) / float64(p.ScaleSteps-1)
	scales := make([]float64, p.ScaleSteps)
	for i := range scales {
		scales[i] = p.ScaleMin + float64(i)*step
	}
	return scales
}
