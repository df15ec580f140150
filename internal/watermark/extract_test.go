package watermark

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gocv.io/x/gocv"
)

// checkerboardWithSparkle renders a blue sparkle over a grey checkerboard.
func checkerboardWithSparkle(t *testing.T) gocv.Mat {
	t.Helper()
	img := gocv.NewMatWithSize(200, 200, gocv.MatTypeCV8UC3)
	for y := 0; y < 200; y++ {
		for x := 0; x < 200; x++ {
			v := uint8(150)
			if (x/10+y/10)%2 == 0 {
				v = 170
			}
			for c := 0; c < 3; c++ {
				setChannel(img, y, x, c, v)
			}
		}
	}
	sparkle := RenderSparkle(48)
	defer sparkle.Close()
	for y := 0; y < 48; y++ {
		for x := 0; x < 48; x++ {
			if sparkle.GetUCharAt(y, x) > 128 {
				setChannel(img, 70+y, 60+x, 0, 230)
				setChannel(img, 70+y, 60+x, 1, 120)
				setChannel(img, 70+y, 60+x, 2, 60)
			}
		}
	}
	return img
}

func TestExtractTemplate(t *testing.T) {
	img := checkerboardWithSparkle(t)
	defer img.Close()

	tpl, bin, err := ExtractTemplate(img)
	defer tpl.Close()
	defer bin.Close()
	require.NoError(t, err)

	assert.InDelta(t, 48, tpl.Cols(), 4)
	assert.InDelta(t, 48, tpl.Rows(), 4)
	assert.Equal(t, tpl.Cols(), bin.Cols())
	assert.Positive(t, gocv.CountNonZero(bin))
}

func TestExtractTemplate_NothingToExtract(t *testing.T) {
	img := gocv.NewMatWithSize(20, 20, gocv.MatTypeCV8UC3)
	defer img.Close()
	img.SetTo(gocv.NewScalar(100, 100, 100, 0))

	tpl, bin, err := ExtractTemplate(img)
	defer tpl.Close()
	defer bin.Close()
	assert.Error(t, err)
}

func TestExtractTemplateFile(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "logo.png")
	img := checkerboardWithSparkle(t)
	defer img.Close()
	require.True(t, gocv.IMWrite(src, img))

	dst := filepath.Join(dir, "template.png")
	maskPath, err := ExtractTemplateFile(src, dst)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "template_mask.png"), maskPath)
	assert.FileExists(t, dst)
	_, err = os.Stat(maskPath)
	assert.NoError(t, err)

	_, err = ExtractTemplateFile(filepath.Join(dir, "missing.png"), dst)
	assert.ErrorIs(t, err, ErrInputUnreadable)
}

func TestMaskPath(t *testing.T) {
	assert.Equal(t, "a/b/logo_mask.png", MaskPath("a/b/logo.png"))
	assert.Equal(t, "logo_mask", MaskPath("logo"))
}
