package watermark

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"gocv.io/x/gocv"
)

// ExtractTemplate isolates the sparkle from a BGR screenshot of the logo.
// The logo is colourful or very bright against a grey checkerboard, so
// pixels with saturation > 20 or value > 200 are candidates; the largest
// external contour is cropped from the value channel. It returns the
// grayscale template and its binary mask (value > 10).
func ExtractTemplate(bgr gocv.Mat) (gocv.Mat, gocv.Mat, error) {
	hsv := gocv.NewMat()
	defer hsv.Close()
	gocv.CvtColor(bgr, &hsv, gocv.ColorBGRToHSV)
	channels := gocv.Split(hsv)
	for i := range channels {
		defer channels[i].Close()
	}
	if len(channels) < 3 {
		return gocv.NewMat(), gocv.NewMat(), errors.New("invalid hsv channels")
	}

	satMask := gocv.NewMat()
	defer satMask.Close()
	gocv.Threshold(channels[1], &satMask, 20, 255, gocv.ThresholdBinary)
	valMask := gocv.NewMat()
	defer valMask.Close()
	gocv.Threshold(channels[2], &valMask, 200, 255, gocv.ThresholdBinary)
	mask := gocv.NewMat()
	defer mask.Close()
	gocv.BitwiseOr(satMask, valMask, &mask)

	contours := gocv.FindContours(mask, gocv.RetrievalExternal, gocv.ChainApproxSimple)
	defer contours.Close()
	if contours.Size() == 0 {
		return gocv.NewMat(), gocv.NewMat(), errors.New("no contours found")
	}

	largest, largestArea := 0, -1.0
	for i := 0; i < contours.Size(); i++ {
		if area := gocv.ContourArea(contours.At(i)); area > largestArea {
			largest, largestArea = i, area
		}
	}
	box := gocv.BoundingRect(contours.At(largest))

	roi := channels[2].Region(box)
	tpl := roi.Clone()
	roi.Close()

	bin := gocv.NewMat()
	gocv.Threshold(tpl, &bin, 10, 255, gocv.ThresholdBinary)
	return tpl, bin, nil
}

// ExtractTemplateFile runs ExtractTemplate on src and writes dst plus a
// "_mask" sibling next to it.
func ExtractTemplateFile(src, dst string) (string, error) {
	img := gocv.IMRead(src, gocv.IMReadColor)
	defer img.Close()
	if img.Empty() {
		return "", fmt.Errorf("%w: %s", ErrInputUnreadable, src)
	}

	tpl, bin, err := ExtractTemplate(img)
	defer tpl.Close()
	defer bin.Close()
	if err != nil {
		return "", err
	}

	maskPath := MaskPath(dst)
	if !gocv.IMWrite(dst, tpl) {
		return "", fmt.Errorf("%w: writing %s", ErrProcessing, dst)
	}
	if !gocv.IMWrite(maskPath, bin) {
		return "", fmt.Errorf("%w: writing %s", ErrProcessing, maskPath)
	}
	return maskPath, nil
}

// MaskPath derives the binary mask filename for a template path.
func MaskPath(path string) string {
	ext := filepath.Ext(path)
	return strings.TrimSuffix(path, ext) + "_mask" + ext
}
