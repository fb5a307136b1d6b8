// Package detector locates faces in images and crops them for embedding.
package detector

import (
	"image"

	"github.com/andresmejia3/recallme/internal/types"
)

// Largest returns the box with the biggest area. ok is false for no boxes.
func Largest(boxes []types.FaceBox) (best types.FaceBox, ok bool) {
	for i, b := range boxes {
		if i == 0 || b.Area() > best.Area() {
			best = b
		}
	}
	return best, len(boxes) > 0
}

type subImager interface {
	SubImage(r image.Rectangle) image.Image
}

// Crop returns the part of img covered by box (relative to img's bounds),
// clipped to the image. It returns nil when the intersection is empty.
func Crop(img image.Image, box types.FaceBox) image.Image {
	b := img.Bounds()
	x0 := b.Min.X + int(box.X)
	y0 := b.Min.Y + int(box.Y)
	r := image.Rect(x0, y0, x0+int(box.Width), y0+int(box.Height)).Intersect(b)
	if r.Empty() {
		return nil
	}
	if s, ok := img.(subImager); ok {
		return s.SubImage(r)
	}
	// Fallback for image types without SubImage.
	dst := image.NewNRGBA(image.Rect(0, 0, r.Dx(), r.Dy()))
	for y := r.Min.Y; y < r.Max.Y; y++ {
		for x := r.Min.X; x < r.Max.X; x++ {
			dst.Set(x-r.Min.X, y-r.Min.Y, img.At(x, y))
		}
	}
	return dst
}
