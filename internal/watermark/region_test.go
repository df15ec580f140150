package watermark

import (
	"image"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSelectRegions(t *testing.T) {
	tests := []struct {
		name   string
		w, h   int
		band   image.Rectangle
		strip  image.Rectangle
		corner image.Rectangle
	}{
		{
			name:   "1024 square",
			w:      1024,
			h:      1024,
			band:   image.Rect(0, 871, 1024, 1024),
			strip:  image.Rect(0, 973, 1024, 1024),
			corner: image.Rect(738, 871, 1024, 1024),
		},
		{
			name:   "small image clamps corner to minimum",
			w:      200,
			h:      200,
			band:   image.Rect(0, 170, 200, 200),
			strip:  image.Rect(0, 188, 200, 200),
			corner: image.Rect(100, 100, 200, 200),
		},
		{
			name:   "huge image clamps corner to maximum",
			w:      4000,
			h:      3000,
			band:   image.Rect(0, 2550, 4000, 3000),
			strip:  image.Rect(0, 2850, 4000, 3000),
			corner: image.Rect(3600, 2600, 4000, 3000),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := SelectRegions(tt.w, tt.h)
			assert.Equal(t, tt.band, r.Band)
			assert.Equal(t, tt.strip, r.LabelStrip)
			assert.Equal(t, tt.corner, r.Corner)
		})
	}
}

func TestSelectRegions_DegenerateFallsBackToWholeImage(t *testing.T) {
	r := SelectRegions(5, 5)
	assert.Equal(t, image.Rect(0, 0, 5, 5), r.Band)
	assert.Equal(t, image.Rect(0, 0, 5, 5), r.Corner)
}

func TestGravityRect(t *testing.T) {
	assert.Equal(t, image.Rect(0, 40, 100, 50), GravityRect(100, 50, 100, 10, South))
	assert.Equal(t, image.Rect(90, 40, 100, 50), GravityRect(100, 50, 10, 10, SouthEast))
	assert.Equal(t, image.Rect(0, 0, 100, 50), GravityRect(100, 50, 500, 500, SouthEast))
}
