// Package embedding computes a hand-crafted face embedding: a fixed-length,
// unit-normalised feature vector built from color histograms, a spatial
// intensity grid, regional gradients, a local texture histogram and quadrant
// averages. No learned parameters are involved; the same pixels always yield
// the same vector.
//
// Feature layout (written sequentially, truncated at Size, zero-filled):
//
//	color histograms   64  (16 bins x R,G,B,gray, interleaved per bin)
//	spatial grid      <=64 (8x8 mean gray, empty cells skipped)
//	gradients         <=6  (horizontal, vertical for eyes, nose, mouth bands)
//	texture            16  (4x4 sampled local binary pattern codes)
//	quadrants         <=4  (TL, TR, BL, BR mean gray)
//
// The layout must stay stable: stored embeddings are compared against fresh
// ones.
package embedding

import (
	"errors"
	"fmt"
	"image"
	"log/slog"
	"math"

	"github.com/andresmejia3/recallme/internal/imagedec"
)

// Size is the embedding dimension.
const Size = 256

// ErrImageTooSmall is returned for images without a valid texture sample
// point, i.e. narrower or shorter than 3 pixels.
var ErrImageTooSmall = errors.New("embedding: image smaller than 3x3")

// Vector is an embedding. A nil Vector means no embedding was produced.
type Vector []float64

// Norm returns the Euclidean norm of v.
func (v Vector) Norm() float64 {
	var sum float64
	for _, x := range v {
		sum += x * x
	}
	return math.Sqrt(sum)
}

// Extract computes the embedding of img.
func Extract(img image.Image) (Vector, error) {
	r := newRaster(img)
	if r.w < 3 || r.h < 3 {
		return nil, fmt.Errorf("%w: got %dx%d", ErrImageTooSmall, r.w, r.h)
	}

	b := newBuilder(Size)
	colorHistograms(r, b)
	spatialGrid(r, b)
	regionGradients(r, b)
	textureHistogram(r, b)
	quadrantAverages(r, b)

	v := b.vector()
	normalize(v)
	return v, nil
}

// FromImage is the boundary form of Extract: it never returns an error and
// never panics. A nil result means no embedding could be produced; retrying
// with the same image will not help.
func FromImage(img image.Image) (v Vector) {
	defer func() {
		if r := recover(); r != nil {
			slog.Warn("embedding: extraction fault", "panic", r)
			v = nil
		}
	}()
	if img == nil {
		return nil
	}
	v, err := Extract(img)
	if err != nil {
		slog.Warn("embedding: extraction failed", "error", err)
		return nil
	}
	return v
}

// FromBytes decodes data and extracts its embedding. Decode failures yield
// nil, as do all failures of FromImage.
func FromBytes(data []byte) Vector {
	img, _, err := imagedec.Decode(data)
	if err != nil {
		slog.Warn("embedding: decode failed", "bytes", len(data), "error", err)
		return nil
	}
	return FromImage(img)
}

// builder appends features sequentially and drops anything past its capacity.
type builder struct {
	buf []float64
	n   int
}

func newBuilder(size int) *builder {
	return &builder{buf: make([]float64, size)}
}

func (b *builder) add(x float64) {
	if b.n < len(b.buf) {
		b.buf[b.n] = x
		b.n++
	}
}

// vector returns the assembled features; unwritten slots stay zero.
func (b *builder) vector() Vector {
	return Vector(b.buf)
}

func normalize(v Vector) {
	norm := v.Norm()
	if norm > 0 {
		for i := range v {
			v[i] /= norm
		}
	}
}
