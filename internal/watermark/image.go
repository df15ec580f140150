package watermark

import (
	"errors"
	"fmt"
	"image"
	"io"
	"io/fs"
	"os"

	"github.com/disintegration/imaging"
	"gocv.io/x/gocv"
)

// Image is a decoded raster split into a 3-channel BGR plane and an optional
// alpha plane. Detection and restoration only ever see BGR; Alpha is carried
// through untouched unless the enhancer resamples it.
type Image struct {
	BGR   gocv.Mat
	Alpha gocv.Mat
}

// HasAlpha reports whether the image carries an alpha plane.
func (im *Image) HasAlpha() bool {
	return !im.Alpha.Empty()
}

// Cols returns the image width.
func (im *Image) Cols() int { return im.BGR.Cols() }

// Rows returns the image height.
func (im *Image) Rows() int { return im.BGR.Rows() }

// Close releases both planes.
func (im *Image) Close() {
	im.BGR.Close()
	im.Alpha.Close()
}

// Clone deep-copies both planes.
func (im *Image) Clone() *Image {
	return &Image{BGR: im.BGR.Clone(), Alpha: im.Alpha.Clone()}
}

// FromImage converts a Go image into BGR and alpha planes. The alpha plane is
// only kept when at least one pixel is not fully opaque.
func FromImage(src image.Image) (*Image, error) {
	nrgba := imaging.Clone(src)
	w, h := nrgba.Bounds().Dx(), nrgba.Bounds().Dy()
	if w == 0 || h == 0 {
		return nil, fmt.Errorf("%w: empty image", ErrInputUnreadable)
	}

	bgr := make([]byte, w*h*3)
	alpha := make([]byte, w*h)
	opaque := true
	for y := 0; y < h; y++ {
		row := nrgba.Pix[y*nrgba.Stride : y*nrgba.Stride+w*4]
		for x := 0; x < w; x++ {
			i := y*w + x
			bgr[i*3] = row[x*4+2]
			bgr[i*3+1] = row[x*4+1]
			bgr[i*3+2] = row[x*4]
			alpha[i] = row[x*4+3]
			if alpha[i] != 0xff {
				opaque = false
			}
		}
	}

	bgrMat, err := matFromBytes(h, w, gocv.MatTypeCV8UC3, bgr)
	if err != nil {
		return nil, err
	}
	out := &Image{BGR: bgrMat, Alpha: gocv.NewMat()}
	if !opaque {
		out.Alpha.Close()
		if out.Alpha, err = matFromBytes(h, w, gocv.MatTypeCV8UC1, alpha); err != nil {
			out.BGR.Close()
			return nil, err
		}
	}
	return out, nil
}

// ToImage converts the planes back into a non-premultiplied Go image.
func (im *Image) ToImage() *image.NRGBA {
	w, h := im.Cols(), im.Rows()
	out := image.NewNRGBA(image.Rect(0, 0, w, h))
	bgr := im.BGR.ToBytes()
	var alpha []byte
	if im.HasAlpha() {
		alpha = im.Alpha.ToBytes()
	}
	for i := 0; i < w*h; i++ {
		out.Pix[i*4] = bgr[i*3+2]
		out.Pix[i*4+1] = bgr[i*3+1]
		out.Pix[i*4+2] = bgr[i*3]
		out.Pix[i*4+3] = 0xff
		if alpha != nil {
			out.Pix[i*4+3] = alpha[i]
		}
	}
	return out
}

// Decode reads an image, applying EXIF orientation.
func Decode(r io.Reader) (*Image, error) {
	src, err := imaging.Decode(r, imaging.AutoOrientation(true))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInputUnreadable, err)
	}
	return FromImage(src)
}

// Load opens and decodes the image at path.
func Load(path string) (*Image, error) {
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrInputNotFound, path)
		}
		return nil, fmt.Errorf("%w: %v", ErrInputUnreadable, err)
	}
	defer f.Close()
	return Decode(f)
}

// Save encodes the image using the format implied by the path extension.
// JPEG output drops the alpha plane.
func (im *Image) Save(path string) error {
	format, err := imaging.FormatFromFilename(path)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrProcessing, err)
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("%w: create output: %v", ErrProcessing, err)
	}
	defer f.Close()
	return im.Encode(f, format)
}

// Encode writes the image in the given format.
func (im *Image) Encode(w io.Writer, format imaging.Format) error {
	if err := imaging.Encode(w, im.ToImage(), format, imaging.JPEGQuality(95)); err != nil {
		return fmt.Errorf("%w: encode: %v", ErrProcessing, err)
	}
	return nil
}

// matFromBytes copies data into a new Mat owned by cgo memory.
func matFromBytes(rows, cols int, mt gocv.MatType, data []byte) (gocv.Mat, error) {
	tmp, err := gocv.NewMatFromBytes(rows, cols, mt, data)
	if err != nil {
		return gocv.NewMat(), fmt.Errorf("%w: %v", ErrProcessing, err)
	}
	defer tmp.Close()
	return tmp.Clone(), nil
}
