package watermark

import (
	"image"
	"image/color"
	"image/draw"
	"math"
	"testing"

	"github.com/stretchr/testify/require"
	"gocv.io/x/gocv"
)

var background = color.NRGBA{R: 90, G: 90, B: 90, A: 255}

// newUniformImage creates a w x h image filled with c.
func newUniformImage(t *testing.T, w, h int, c color.NRGBA) *Image {
	t.Helper()
	src := image.NewNRGBA(image.Rect(0, 0, w, h))
	draw.Draw(src, src.Bounds(), &image.Uniform{C: c}, image.Point{}, draw.Src)
	return mustFromImage(t, src)
}

func mustFromImage(t *testing.T, src image.Image) *Image {
	t.Helper()
	im, err := FromImage(src)
	require.NoError(t, err)
	t.Cleanup(im.Close)
	return im
}

// channelAt reads channel c of pixel (x, y) in an interleaved 8-bit Mat.
func channelAt(m gocv.Mat, y, x, c int) uint8 {
	return m.GetUCharAt(y, x*m.Channels()+c)
}

func setChannel(m gocv.Mat, y, x, c int, v uint8) {
	m.SetUCharAt(y, x*m.Channels()+c, v)
}

// stamp overlays a semi-transparent white mark using gray as coverage.
func stamp(im *Image, gray gocv.Mat, at image.Point, opacity float64) {
	for y := 0; y < gray.Rows(); y++ {
		for x := 0; x < gray.Cols(); x++ {
			a := float64(gray.GetUCharAt(y, x)) / 255 * opacity
			if a == 0 {
				continue
			}
			for c := 0; c < 3; c++ {
				v := float64(channelAt(im.BGR, at.Y+y, at.X+x, c))
				setChannel(im.BGR, at.Y+y, at.X+x, c, uint8(math.Round(v*(1-a)+255*a)))
			}
		}
	}
}

// fillRect paints a solid gray rectangle on the BGR plane.
func fillRect(im *Image, r image.Rectangle, v uint8) {
	for y := r.Min.Y; y < r.Max.Y; y++ {
		for x := r.Min.X; x < r.Max.X; x++ {
			for c := 0; c < 3; c++ {
				setChannel(im.BGR, y, x, c, v)
			}
		}
	}
}

// fillDisc paints a solid gray disc and returns the painted pixels.
func fillDisc(im *Image, center image.Point, radius int, v uint8) []image.Point {
	var painted []image.Point
	for y := center.Y - radius; y <= center.Y+radius; y++ {
		for x := center.X - radius; x <= center.X+radius; x++ {
			dx, dy := x-center.X, y-center.Y
			if dx*dx+dy*dy > radius*radius {
				continue
			}
			for c := 0; c < 3; c++ {
				setChannel(im.BGR, y, x, c, v)
			}
			painted = append(painted, image.Pt(x, y))
		}
	}
	return painted
}

func defaultTemplates(t *testing.T) []*Template {
	t.Helper()
	repo := NewRepository(DefaultSources())
	t.Cleanup(repo.Close)
	tpls := repo.Templates()
	require.Len(t, tpls, 2)
	return tpls
}

func templateNamed(t *testing.T, tpls []*Template, name string) *Template {
	t.Helper()
	for _, tpl := range tpls {
		if tpl.Name == name {
			return tpl
		}
	}
	t.Fatalf("template %s not found", name)
	return nil
}

// scaleNear returns the configured scale closest to s.
func scaleNear(s float64) float64 {
	best := 0.0
	for _, c := range DefaultParams().Scales() {
		if math.Abs(c-s) < math.Abs(best-s) {
			best = c
		}
	}
	return best
}

func absInt(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
