package watermark

import (
	"image"
	"image/color"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var dark = color.NRGBA{R: 40, G: 40, B: 40, A: 255}

func TestDetectBlobs_SingleMark(t *testing.T) {
	im := newUniformImage(t, 400, 400, dark)
	fillRect(im, image.Rect(340, 350, 346, 356), 230)
	corner := SelectRegions(400, 400).Corner

	blobs := DetectBlobs(im.BGR, corner)
	require.Len(t, blobs, 1)
	assert.True(t, image.Pt(342, 352).In(blobs[0].Bounds))
	require.Len(t, blobs[0].Stencil, blobs[0].Bounds.Dx()*blobs[0].Bounds.Dy())
}

func TestDetectBlobs_SolidLogoSizedMark(t *testing.T) {
	im := newUniformImage(t, 1000, 1000, background)
	painted := fillDisc(im, image.Pt(820, 830), 20, 255)
	corner := SelectRegions(1000, 1000).Corner

	blobs := DetectBlobs(im.BGR, corner)
	require.Len(t, blobs, 1)
	b := blobs[0]
	for _, p := range painted {
		require.True(t, p.In(b.Bounds), "pixel %v outside blob", p)
		i := (p.Y-b.Bounds.Min.Y)*b.Bounds.Dx() + (p.X - b.Bounds.Min.X)
		require.NotZero(t, b.Stencil[i], "core pixel %v not in stencil", p)
	}
}

func TestPercentile(t *testing.T) {
	im := newUniformImage(t, 10, 10, dark)
	fillRect(im, image.Rect(0, 0, 10, 1), 200)
	gray := ToGray(im.BGR)
	defer gray.Close()

	assert.Equal(t, float32(40), Percentile(gray, 90))
	assert.Equal(t, float32(200), Percentile(gray, 96))
}

func TestDetectBlobs_BusyBackground(t *testing.T) {
	im := newUniformImage(t, 400, 400, dark)
	for i := 0; i < 5; i++ {
		for _, y := range []int{320, 360} {
			x := 295 + 20*i
			fillRect(im, image.Rect(x, y, x+3, y+3), 230)
		}
	}
	assert.Nil(t, DetectBlobs(im.BGR, SelectRegions(400, 400).Corner))
}

func TestDetectBlobs_Flat(t *testing.T) {
	im := newUniformImage(t, 400, 400, dark)
	assert.Nil(t, DetectBlobs(im.BGR, SelectRegions(400, 400).Corner))
}

func TestMeanStdDev(t *testing.T) {
	im := newUniformImage(t, 10, 10, dark)
	mean, std := MeanStdDev(im.BGR)
	assert.InDelta(t, 40, mean, 0.001)
	assert.InDelta(t, 0, std, 0.001)
}
