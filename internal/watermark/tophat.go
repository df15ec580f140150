package watermark

import (
	"image"

	"github.com/rs/zerolog/log"
	"gocv.io/x/gocv"
)

// DetectBlobs looks for small bright marks in the corner region, the first
// fallback when template matching is not confident.
//
// Two masks are squeezed and ORed together. A white top-hat catches thin
// strokes on uneven backgrounds; its threshold starts at mean + 3*stddev of
// the response (never below TopHatMinLevel). Plain brightness catches solid
// cores wider than the top-hat kernel; its threshold starts just under the
// 96th percentile on bright corners and at BrightMinLevel otherwise. Each
// threshold is raised until the area fits in BlobMaxCoverage of the corner.
// Components with an area in [BlobMinArea, BlobMaxArea] are kept; more than
// MaxBlobs of them means a busy background and nothing is returned.
func DetectBlobs(bgr gocv.Mat, corner image.Rectangle) []Shape {
	roi := bgr.Region(corner)
	defer roi.Close()
	gray := ToGray(roi)
	defer gray.Close()

	kernel := gocv.GetStructuringElement(gocv.MorphEllipse, image.Pt(TopHatKernel, TopHatKernel))
	defer kernel.Close()
	tophat := gocv.NewMat()
	defer tophat.Close()
	gocv.MorphologyEx(gray, &tophat, gocv.MorphTophat, kernel)

	maxArea := int(float64(corner.Dx()*corner.Dy()) * BlobMaxCoverage)
	mean, stdDev := MeanStdDev(tophat)
	thin, thinOK := squeeze(tophat, max(TopHatMinLevel, mean+3*stdDev), maxArea)
	defer thin.Close()
	bright, brightOK := squeeze(gray, brightnessStart(gray), maxArea)
	defer bright.Close()

	bin := gocv.NewMat()
	defer bin.Close()
	switch {
	case thinOK && brightOK:
		gocv.BitwiseOr(thin, bright, &bin)
	case thinOK:
		thin.CopyTo(&bin)
	case brightOK:
		bright.CopyTo(&bin)
	default:
		return nil
	}

	labels := gocv.NewMat()
	defer labels.Close()
	stats := gocv.NewMat()
	defer stats.Close()
	centroids := gocv.NewMat()
	defer centroids.Close()
	n := gocv.ConnectedComponentsWithStats(bin, &labels, &stats, &centroids)

	var shapes []Shape
	for i := 1; i < n; i++ {
		area := int(stats.GetIntAt(i, int(gocv.CCStatArea)))
		if area < BlobMinArea || area > BlobMaxArea {
			continue
		}
		box := componentRect(stats, i)
		shapes = append(shapes, Shape{
			Bounds:  box.Add(corner.Min),
			Stencil: componentStencil(labels, box, int32(i)),
		})
	}
	if len(shapes) > MaxBlobs {
		log.Debug().Int("blobs", len(shapes)).Msg("busy background, blobs rejected")
		return nil
	}
	return shapes
}

// squeeze thresholds src from start upwards until the mask left after a 2x2
// opening is non-empty and at most maxArea pixels.
func squeeze(src gocv.Mat, start float32, maxArea int) (gocv.Mat, bool) {
	noise := gocv.GetStructuringElement(gocv.MorphRect, image.Pt(2, 2))
	defer noise.Close()
	bin := gocv.NewMat()
	for t := start; t < 255; t++ {
		gocv.Threshold(src, &bin, t, 255, gocv.ThresholdBinary)
		gocv.MorphologyEx(bin, &bin, gocv.MorphOpen, noise)
		count := gocv.CountNonZero(bin)
		if count == 0 {
			break
		}
		if count <= maxArea {
			log.Debug().Float32("threshold", t).Int("area", count).Msg("blob threshold locked")
			return bin, true
		}
	}
	return bin, false
}

// brightnessStart is the first brightness threshold tried on a corner.
func brightnessStart(gray gocv.Mat) float32 {
	if p := Percentile(gray, BrightPercentile); p > BrightCornerLevel {
		return min(p-2, BrightMaxStart)
	}
	return BrightMinLevel
}

// Percentile returns the smallest 8-bit level at or below which pct percent
// of the pixels of a single-channel image fall.
func Percentile(gray gocv.Mat, pct float64) float32 {
	hist := gocv.NewMat()
	defer hist.Close()
	mask := gocv.NewMat()
	defer mask.Close()
	gocv.CalcHist([]gocv.Mat{gray}, []int{0}, mask, &hist, []int{256}, []float64{0, 256}, false)

	want := float64(gray.Rows()*gray.Cols()) * pct / 100
	var seen float64
	for v := 0; v < 256; v++ {
		seen += float64(hist.GetFloatAt(v, 0))
		if seen >= want {
			return float32(v)
		}
	}
	return 255
}

// componentStencil extracts the pixels of one labelled component.
func componentStencil(labels gocv.Mat, box image.Rectangle, label int32) []byte {
	stencil := make([]byte, box.Dx()*box.Dy())
	for y := box.Min.Y; y < box.Max.Y; y++ {
		for x := box.Min.X; x < box.Max.X; x++ {
			if labels.GetIntAt(y, x) == label {
				stencil[(y-box.Min.Y)*box.Dx()+(x-box.Min.X)] = 255
			}
		}
	}
	return stencil
}

// MeanStdDev returns the mean and standard deviation averaged over channels.
func MeanStdDev(img gocv.Mat) (float32, float32) {
	mean := gocv.NewMat()
	defer mean.Close()
	stdDev := gocv.NewMat()
	defer stdDev.Close()
	gocv.MeanStdDev(img, &mean, &stdDev)
	return averageDoubles(mean), averageDoubles(stdDev)
}

func averageDoubles(m gocv.Mat) float32 {
	total := m.Rows() * m.Cols()
	if total == 0 {
		return 0
	}
	var sum float64
	for y := 0; y < m.Rows(); y++ {
		for x := 0; x < m.Cols(); x++ {
			sum += m.GetDoubleAt(y, x)
		}
	}
	return float32(sum / float64(total))
}
