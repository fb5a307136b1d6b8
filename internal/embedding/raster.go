package embedding

import (
	"image"

	"github.com/andresmejia3/recallme/internal/imagedec"
)

// raster is a read-only view of the image's 8-bit non-premultiplied RGB
// samples, origin at (0, 0).
type raster struct {
	w, h   int
	stride int
	pix    []uint8
}

func newRaster(img image.Image) raster {
	n := imagedec.ToNRGBA(img)
	return raster{
		w:      n.Rect.Dx(),
		h:      n.Rect.Dy(),
		stride: n.Stride,
		pix:    n.Pix,
	}
}

func (r raster) rgb(x, y int) (int, int, int) {
	i := y*r.stride + x*4
	return int(r.pix[i]), int(r.pix[i+1]), int(r.pix[i+2])
}

// grayInt is the integer-truncated channel average.
func (r raster) grayInt(x, y int) int {
	red, green, blue := r.rgb(x, y)
	return (red + green + blue) / 3
}

// gray is the unrounded channel average in [0, 255].
func (r raster) gray(x, y int) float64 {
	red, green, blue := r.rgb(x, y)
	return float64(red+green+blue) / 3.0
}
