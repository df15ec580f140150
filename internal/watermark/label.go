package watermark

import (
	"image"

	"github.com/rs/zerolog/log"
	"gocv.io/x/gocv"
)

// DetectLabels finds caption-like text bands in the label strip of a BGR
// image and returns one padded shape per label, in image coordinates.
func DetectLabels(bgr gocv.Mat, strip image.Rectangle) []Shape {
	imgW, imgH := bgr.Cols(), bgr.Rows()
	roi := bgr.Region(strip)
	defer roi.Close()
	gray := ToGray(roi)
	defer gray.Close()

	edges := gocv.NewMat()
	defer edges.Close()
	gocv.Canny(gray, &edges, 50, 150)

	// Opening with a vertical line keeps letter strokes and drops rules.
	vertical := gocv.GetStructuringElement(gocv.MorphRect, image.Pt(1, 3))
	defer vertical.Close()
	strokes := gocv.NewMat()
	defer strokes.Close()
	gocv.MorphologyEx(edges, &strokes, gocv.MorphOpen, vertical)

	horizontal := gocv.GetStructuringElement(gocv.MorphRect, image.Pt(15, 3))
	defer horizontal.Close()
	words := gocv.NewMat()
	defer words.Close()
	gocv.Dilate(strokes, &words, horizontal)

	labels := gocv.NewMat()
	defer labels.Close()
	stats := gocv.NewMat()
	defer stats.Close()
	centroids := gocv.NewMat()
	defer centroids.Close()
	n := gocv.ConnectedComponentsWithStats(words, &labels, &stats, &centroids)

	maxW := int(float64(imgW) * LabelMaxWidthFrac)
	var shapes []Shape
	for i := 1; i < n; i++ {
		box := componentRect(stats, i)
		w, h := box.Dx(), box.Dy()
		if w <= LabelMinWidth || w >= maxW {
			continue
		}
		if h < LabelMinHeight || h > strip.Dy() || w < 2*h {
			continue
		}
		padded := box.Add(strip.Min).Inset(-LabelPadding).Intersect(image.Rect(0, 0, imgW, imgH))
		shapes = append(shapes, Shape{Bounds: padded})
	}

	log.Debug().Int("labels", len(shapes)).Int("components", n-1).Msg("label scan")
	return shapes
}

// componentRect reads the bounding box of component i from a stats Mat.
func componentRect(stats gocv.Mat, i int) image.Rectangle {
	x := int(stats.GetIntAt(i, int(gocv.CCStatLeft)))
	y := int(stats.GetIntAt(i, int(gocv.CCStatTop)))
	w := int(stats.GetIntAt(i, int(gocv.CCStatWidth)))
	h := int(stats.GetIntAt(i, int(gocv.CCStatHeight)))
	return image.Rect(x, y, x+w, y+h)
}
