package watermark

import "image"

// Gravity anchors a sub-rectangle inside the image, like a gravity crop.
type Gravity string

const (
	South     Gravity = "south"
	SouthEast Gravity = "south-east"
)

// GravityRect places a width x height rectangle inside an imgW x imgH image
// according to gravity, shrinking it to fit. South spans from the left edge.
func GravityRect(imgW, imgH, width, height int, gravity Gravity) image.Rectangle {
	width = min(width, imgW)
	height = min(height, imgH)

	startX, startY := 0, imgH-height
	if gravity == SouthEast {
		startX = imgW - width
	}
	return image.Rect(startX, startY, startX+width, startY+height)
}

// Regions are the search areas derived from the image size.
type Regions struct {
	// Band is the full-width bottom margin.
	Band image.Rectangle
	// LabelStrip is the thin bottom strip searched for caption text.
	LabelStrip image.Rectangle
	// Corner is the bottom-right area searched for the logo.
	Corner image.Rectangle
}

// SelectRegions computes the search regions for a w x h image. Any region
// with non-positive extents falls back to the whole image.
func SelectRegions(w, h int) Regions {
	whole := image.Rect(0, 0, w, h)

	bandH := int(float64(h) * BandRatio)
	stripH := max(int(float64(h)*LabelStripRatio), MinLabelStrip)
	cornerW := clampInt(int(float64(w)*CornerRatio), MinSearchSide, MaxSearchSide)
	cornerH := clampInt(bandH, MinSearchSide, MaxSearchSide)

	return Regions{
		Band:       orWhole(GravityRect(w, h, w, bandH, South), whole),
		LabelStrip: orWhole(GravityRect(w, h, w, stripH, South), whole),
		Corner:     orWhole(GravityRect(w, h, cornerW, cornerH, SouthEast), whole),
	}
}

func orWhole(r, whole image.Rectangle) image.Rectangle {
	if r.Dx() <= 0 || r.Dy() <= 0 {
		return whole
	}
	return r
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
