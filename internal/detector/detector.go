package detector

import (
	"fmt"
	"image"
	"log/slog"
	"os"

	pigo "github.com/esimov/pigo/core"

	"github.com/andresmejia3/recallme/internal/imagedec"
	"github.com/andresmejia3/recallme/internal/types"
)

// Confidence is reported for every box. The cascade's own score is not on a
// probability scale, so it is only used for filtering.
const Confidence = 0.95

// Localizer finds face bounding boxes. Implementations never return errors:
// a failure is an empty result.
type Localizer interface {
	Detect(data []byte) []types.FaceBox
	DetectImage(img image.Image) []types.FaceBox
	Close() error
}

// Options tunes the cascade run.
type Options struct {
	MinFaceRatio     float64 // minimum face size as a fraction of the shorter image side
	ShiftFactor      float64
	ScaleFactor      float64
	IoUThreshold     float64
	QualityThreshold float32
}

// DefaultOptions mirrors the accurate detector settings of the mobile app.
func DefaultOptions() Options {
	return Options{
		MinFaceRatio:     0.15,
		ShiftFactor:      0.1,
		ScaleFactor:      1.1,
		IoUThreshold:     0.2,
		QualityThreshold: 5.0,
	}
}

// Pigo is a Localizer backed by a pigo pixel-comparison cascade.
type Pigo struct {
	classifier *pigo.Pigo
	opts       Options
}

var _ Localizer = (*Pigo)(nil)

// NewPigo unpacks a binary cascade (e.g. pigo's "facefinder").
func NewPigo(cascade []byte, opts Options) (p *Pigo, err error) {
	// Unpack indexes into the packet without length checks.
	defer func() {
		if r := recover(); r != nil {
			p, err = nil, fmt.Errorf("failed to unpack face cascade: malformed data (%v)", r)
		}
	}()
	classifier, err := pigo.NewPigo().Unpack(cascade)
	if err != nil {
		return nil, fmt.Errorf("failed to unpack face cascade: %w", err)
	}
	return &Pigo{classifier: classifier, opts: opts}, nil
}

// LoadPigo reads the cascade file at path and unpacks it.
func LoadPigo(path string, opts Options) (*Pigo, error) {
	cascade, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read face cascade: %w", err)
	}
	return NewPigo(cascade, opts)
}

// Detect decodes data and runs the cascade on it.
func (p *Pigo) Detect(data []byte) []types.FaceBox {
	img, _, err := imagedec.Decode(data)
	if err != nil {
		slog.Warn("detector: decode failed", "bytes", len(data), "error", err)
		return []types.FaceBox{}
	}
	return p.DetectImage(img)
}

// DetectImage runs the cascade on an already decoded image. Box coordinates
// are relative to img's bounds.
func (p *Pigo) DetectImage(img image.Image) (boxes []types.FaceBox) {
	defer func() {
		if r := recover(); r != nil {
			slog.Warn("detector: cascade fault", "panic", r)
			boxes = []types.FaceBox{}
		}
	}()

	src := imagedec.ToNRGBA(img)
	cols, rows := src.Rect.Dx(), src.Rect.Dy()
	minSide := min(cols, rows)

	params := pigo.CascadeParams{
		MinSize:     max(int(float64(minSide)*p.opts.MinFaceRatio), 1),
		MaxSize:     max(cols, rows),
		ShiftFactor: p.opts.ShiftFactor,
		ScaleFactor: p.opts.ScaleFactor,
		ImageParams: pigo.ImageParams{
			Pixels: pigo.RgbToGrayscale(src),
			Rows:   rows,
			Cols:   cols,
			Dim:    cols,
		},
	}

	dets := p.classifier.RunCascade(params, 0.0)
	dets = p.classifier.ClusterDetections(dets, p.opts.IoUThreshold)

	boxes = make([]types.FaceBox, 0, len(dets))
	for _, d := range dets {
		if d.Q < p.opts.QualityThreshold {
			continue
		}
		boxes = append(boxes, boxFromDetection(d.Row, d.Col, d.Scale, cols, rows))
	}
	slog.Debug("detector: cascade done", "candidates", len(dets), "faces", len(boxes))
	return boxes
}

// Close releases nothing; the cascade is plain memory.
func (p *Pigo) Close() error {
	return nil
}

// boxFromDetection converts a centre/scale detection into a top-left box
// clipped to the image.
func boxFromDetection(row, col, scale, cols, rows int) types.FaceBox {
	r := image.Rect(col-scale/2, row-scale/2, col+scale/2, row+scale/2).
		Intersect(image.Rect(0, 0, cols, rows))
	return types.FaceBox{
		X:          float64(r.Min.X),
		Y:          float64(r.Min.Y),
		Width:      float64(r.Dx()),
		Height:     float64(r.Dy()),
		Confidence: Confidence,
	}
}

// Nop finds no faces. It stands in when no cascade is configured.
type Nop struct{}

var _ Localizer = Nop{}

func (Nop) Detect([]byte) []types.FaceBox            { return []types.FaceBox{} }
func (Nop) DetectImage(image.Image) []types.FaceBox { return []types.FaceBox{} }
func (Nop) Close() error                            { return nil }
