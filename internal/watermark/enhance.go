package watermark

import (
	"image"

	"gocv.io/x/gocv"
)

// UpscaleFactor is the enhancer's resize factor.
const UpscaleFactor = 2

// sharpenNeighbour is the weight of each 4-neighbour in the sharpen kernel.
// The centre is 1 - 4*sharpenNeighbour so the kernel sums to one.
const sharpenNeighbour float32 = -0.25

// Enhance denoises, upscales and sharpens the image. The alpha plane, if any,
// is resized with the same interpolation and left otherwise untouched.
func Enhance(im *Image) *Image {
	smooth := gocv.NewMat()
	defer smooth.Close()
	gocv.BilateralFilter(im.BGR, &smooth, 9, 75, 75)

	size := image.Pt(im.Cols()*UpscaleFactor, im.Rows()*UpscaleFactor)
	up := gocv.NewMat()
	defer up.Close()
	gocv.Resize(smooth, &up, size, 0, 0, gocv.InterpolationLanczos4)

	detail := gocv.NewMat()
	defer detail.Close()
	gocv.DetailEnhance(up, &detail, 10, 0.15)

	kernel := SharpenKernel()
	defer kernel.Close()
	sharp := gocv.NewMat()
	gocv.Filter2D(detail, &sharp, -1, kernel, image.Pt(-1, -1), 0, gocv.BorderReflect)

	out := &Image{BGR: sharp, Alpha: gocv.NewMat()}
	if im.HasAlpha() {
		gocv.Resize(im.Alpha, &out.Alpha, size, 0, 0, gocv.InterpolationLanczos4)
	}
	return out
}

// SharpenKernel returns the 3x3 luminance-preserving unsharp kernel.
func SharpenKernel() gocv.Mat {
	k := gocv.NewMatWithSize(3, 3, gocv.MatTypeCV32F)
	k.SetTo(gocv.NewScalar(0, 0, 0, 0))
	for _, p := range []image.Point{{X: 1, Y: 0}, {X: 0, Y: 1}, {X: 2, Y: 1}, {X: 1, Y: 2}} {
		k.SetFloatAt(p.Y, p.X, sharpenNeighbour)
	}
	k.SetFloatAt(1, 1, 1-4*sharpenNeighbour)
	return k
}
