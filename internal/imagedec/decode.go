// Package imagedec decodes encoded image bytes coming over the channels or
// from disk. JPEG, PNG, GIF, WebP and BMP are recognised.
package imagedec

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/draw"

	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/webp"
)

// ErrEmpty is returned for a nil or zero-length buffer.
var ErrEmpty = errors.New("imagedec: empty image data")

// Decode decodes data into an image. The returned error is non-nil for empty
// buffers, unknown formats, truncated data and zero-area images.
func Decode(data []byte) (image.Image, string, error) {
	if len(data) == 0 {
		return nil, "", ErrEmpty
	}
	img, format, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, "", fmt.Errorf("imagedec: %w", err)
	}
	if img.Bounds().Empty() {
		return nil, format, fmt.Errorf("imagedec: %s image has zero area", format)
	}
	return img, format, nil
}

// ToNRGBA returns img as a non-premultiplied RGBA image with its minimum
// point at (0, 0). Images already in that form are returned as-is.
func ToNRGBA(img image.Image) *image.NRGBA {
	if n, ok := img.(*image.NRGBA); ok && n.Rect.Min == (image.Point{}) {
		return n
	}
	b := img.Bounds()
	dst := image.NewNRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(dst, dst.Bounds(), img, b.Min, draw.Src)
	return dst
}
