package watermark

import (
	"image"
	"math"

	"github.com/rs/zerolog/log"
	"gocv.io/x/gocv"
)

// Restorer fills masked pixels: patch cloning for logo footprints,
// inpainting for the rest.
type Restorer struct {
	method gocv.InpaintMethods
}

// NewRestorer creates a restorer using the given inpainting algorithm.
func NewRestorer(method gocv.InpaintMethods) *Restorer {
	return &Restorer{method: method}
}

// Restore returns a new BGR Mat with every masked pixel replaced. Footprints
// without a clean neighbouring patch are handed to the inpainting pass.
func (r *Restorer) Restore(bgr gocv.Mat, comp *Composite) gocv.Mat {
	out := bgr.Clone()

	union := gocv.NewMat()
	defer union.Close()
	gocv.BitwiseOr(comp.Clone, comp.Inpaint, &union)

	inpaintMask := comp.Inpaint.Clone()
	defer inpaintMask.Close()

	for _, rect := range comp.CloneShapes {
		if rect.Empty() {
			continue
		}
		if ClonePatch(&out, comp.Clone, union, rect) {
			continue
		}
		log.Debug().Str("rect", rect.String()).Msg("no clean patch, inpainting footprint")
		src := comp.Clone.Region(rect)
		dst := inpaintMask.Region(rect)
		gocv.BitwiseOr(dst, src, &dst)
		src.Close()
		dst.Close()
	}

	if gocv.CountNonZero(inpaintMask) == 0 {
		return out
	}
	return Inpaint(out, inpaintMask, comp.InpaintRadius, r.method)
}

// Inpaint reconstructs masked pixels from their surroundings. It consumes
// src and returns the result.
func Inpaint(src, mask gocv.Mat, radius float32, method gocv.InpaintMethods) gocv.Mat {
	defer src.Close()
	inpainted := gocv.NewMat()
	gocv.Inpaint(src, mask, &inpainted, radius, method)
	return inpainted
}

// ClonePatch replaces target with a same-size patch taken beside it and
// blends it in with a blurred copy of the local mask as weight. The left
// neighbour is tried first, then the mirrored right side, then above; a
// source must lie inside the image and contain no masked pixel.
func ClonePatch(img *gocv.Mat, mask, union gocv.Mat, target image.Rectangle) bool {
	bounds := image.Rect(0, 0, img.Cols(), img.Rows())
	dx := int(math.Round(CloneOffsetRatio * float64(target.Dx())))
	dy := int(math.Round(CloneOffsetRatio * float64(target.Dy())))

	for _, d := range []image.Point{{X: -dx}, {X: dx}, {Y: -dy}} {
		source := target.Add(d)
		if !source.In(bounds) {
			continue
		}
		taken := union.Region(source)
		dirty := gocv.CountNonZero(taken) > 0
		taken.Close()
		if dirty {
			continue
		}
		blendPatch(img, mask, source, target)
		return true
	}
	return false
}

// blendPatch computes target = target + (patch - target) * weight in float,
// with weight the 5x5-blurred local mask scaled to [0, 1].
func blendPatch(img *gocv.Mat, mask gocv.Mat, source, target image.Rectangle) {
	srcROI := img.Region(source)
	patch := gocv.NewMat()
	defer patch.Close()
	srcROI.ConvertTo(&patch, gocv.MatTypeCV32FC3)
	srcROI.Close()

	localMask := mask.Region(target)
	blurred := gocv.NewMat()
	defer blurred.Close()
	gocv.GaussianBlur(localMask, &blurred, image.Pt(5, 5), 0, 0, gocv.BorderReflect)
	localMask.Close()
	weight1 := gocv.NewMat()
	defer weight1.Close()
	blurred.ConvertToWithParams(&weight1, gocv.MatTypeCV32F, 1.0/255, 0)
	weight := gocv.NewMat()
	defer weight.Close()
	gocv.Merge([]gocv.Mat{weight1, weight1, weight1}, &weight)

	dstROI := img.Region(target)
	defer dstROI.Close()
	orig := gocv.NewMat()
	defer orig.Close()
	dstROI.ConvertTo(&orig, gocv.MatTypeCV32FC3)

	delta := gocv.NewMat()
	defer delta.Close()
	gocv.Subtract(patch, orig, &delta)
	scaled := gocv.NewMat()
	defer scaled.Close()
	gocv.Multiply(delta, weight, &scaled)
	blended := gocv.NewMat()
	defer blended.Close()
	gocv.Add(orig, scaled, &blended)

	out := gocv.NewMat()
	defer out.Close()
	blended.ConvertTo(&out, gocv.MatTypeCV8UC3)
	out.CopyTo(&dstROI)
}
