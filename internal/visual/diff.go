// Package visual renders debug artifacts showing what a removal pass changed.
package visual

import (
	"fmt"
	"image"
	"path/filepath"
	"strings"

	"github.com/anthonynsimon/bild/blend"
	"github.com/anthonynsimon/bild/segment"
	"github.com/disintegration/imaging"
)

// Diff returns a binary map of pixels that differ between before and after,
// together with the number of changed pixels.
func Diff(before, after image.Image) (*image.Gray, int, error) {
	if before.Bounds().Size() != after.Bounds().Size() {
		return nil, 0, fmt.Errorf("size mismatch: %v vs %v", before.Bounds().Size(), after.Bounds().Size())
	}
	delta := blend.Difference(before, after)
	changed := segment.Threshold(delta, 1)

	n := 0
	for _, v := range changed.Pix {
		if v != 0 {
			n++
		}
	}
	return changed, n, nil
}

// WriteDiff saves the change map of before/after as a PNG beside dst and
// returns its path and the changed pixel count.
func WriteDiff(before, after image.Image, dst string) (string, int, error) {
	changed, n, err := Diff(before, after)
	if err != nil {
		return "", 0, err
	}
	path := DiffPath(dst)
	if err := imaging.Save(changed, path); err != nil {
		return "", 0, fmt.Errorf("save diff: %w", err)
	}
	return path, n, nil
}

// DiffPath derives the change-map filename for an output path.
func DiffPath(dst string) string {
	ext := filepath.Ext(dst)
	return strings.TrimSuffix(dst, ext) + "_diff.png"
}
