package detector

import (
	"bytes"
	"image"
	"image/color"
	_ "image/jpeg"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"github.com/andresmejia3/recallme/internal/types"
)

func TestDetectUnparsableBytes(t *testing.T) {
	p := &Pigo{opts: DefaultOptions()}

	boxes := p.Detect([]byte{0xDE, 0xAD, 0xBE, 0xEF})
	if boxes == nil {
		t.Fatal("Expected empty slice, got nil")
	}
	if len(boxes) != 0 {
		t.Errorf("Expected no faces, got %d", len(boxes))
	}

	if boxes := p.Detect(nil); boxes == nil || len(boxes) != 0 {
		t.Errorf("Expected empty slice for nil input, got %v", boxes)
	}
}

func TestDetectImageRecoversFault(t *testing.T) {
	// A Pigo without a classifier faults inside the cascade run; the caller
	// still gets an empty list.
	p := &Pigo{opts: DefaultOptions()}
	img := image.NewNRGBA(image.Rect(0, 0, 32, 32))

	boxes := p.DetectImage(img)
	if boxes == nil || len(boxes) != 0 {
		t.Errorf("Expected empty slice, got %v", boxes)
	}
}

func TestNewPigoMalformedCascade(t *testing.T) {
	if _, err := NewPigo([]byte{1, 2, 3}, DefaultOptions()); err == nil {
		t.Error("Expected error for malformed cascade")
	}
	if _, err := LoadPigo("/nonexistent/facefinder", DefaultOptions()); err == nil {
		t.Error("Expected error for missing cascade file")
	}
}

func TestNop(t *testing.T) {
	var buf bytes.Buffer
	png.Encode(&buf, image.NewGray(image.Rect(0, 0, 8, 8)))

	var l Localizer = Nop{}
	if boxes := l.Detect(buf.Bytes()); boxes == nil || len(boxes) != 0 {
		t.Errorf("Expected empty slice, got %v", boxes)
	}
	if err := l.Close(); err != nil {
		t.Errorf("Close returned %v", err)
	}
}

func TestBoxFromDetection(t *testing.T) {
	b := boxFromDetection(50, 40, 20, 100, 100)
	if b.X != 30 || b.Y != 40 || b.Width != 20 || b.Height != 20 {
		t.Errorf("Unexpected box %+v", b)
	}
	if b.Confidence != Confidence {
		t.Errorf("Expected confidence %v, got %v", Confidence, b.Confidence)
	}

	// Clipped at the top-left corner
	b = boxFromDetection(5, 5, 20, 100, 100)
	if b.X != 0 || b.Y != 0 || b.Width != 15 || b.Height != 15 {
		t.Errorf("Expected clipped box, got %+v", b)
	}
}

func TestLargest(t *testing.T) {
	if _, ok := Largest(nil); ok {
		t.Error("Expected ok=false for no boxes")
	}

	boxes := []types.FaceBox{
		{X: 0, Y: 0, Width: 10, Height: 10},
		{X: 5, Y: 5, Width: 30, Height: 20},
		{X: 1, Y: 1, Width: 20, Height: 20},
	}
	best, ok := Largest(boxes)
	if !ok || best.Width != 30 {
		t.Errorf("Expected the 30x20 box, got %+v", best)
	}
}

func TestCrop(t *testing.T) {
	img := image.NewNRGBA(image.Rect(0, 0, 40, 40))
	img.SetNRGBA(12, 14, color.NRGBA{255, 0, 0, 255})

	crop := Crop(img, types.FaceBox{X: 10, Y: 10, Width: 20, Height: 20})
	if crop == nil {
		t.Fatal("Expected crop, got nil")
	}
	if crop.Bounds().Dx() != 20 || crop.Bounds().Dy() != 20 {
		t.Errorf("Expected 20x20 crop, got %v", crop.Bounds())
	}
	r, _, _, _ := crop.At(12, 14).RGBA()
	if r>>8 != 255 {
		t.Errorf("Expected red pixel preserved at source coordinates, got r=%d", r>>8)
	}

	// Partially outside: clipped
	crop = Crop(img, types.FaceBox{X: 30, Y: 30, Width: 20, Height: 20})
	if crop == nil || crop.Bounds().Dx() != 10 {
		t.Errorf("Expected 10px clipped crop, got %v", crop)
	}

	// Fully outside
	if crop := Crop(img, types.FaceBox{X: 50, Y: 50, Width: 5, Height: 5}); crop != nil {
		t.Errorf("Expected nil crop, got %v", crop.Bounds())
	}
}

func loadFacefinder(t *testing.T, opts Options) *Pigo {
	t.Helper()
	p, err := LoadPigo(filepath.Join("testdata", "facefinder"), opts)
	if err != nil {
		t.Fatalf("LoadPigo failed: %v", err)
	}
	return p
}

func TestPigoDetectsFace(t *testing.T) {
	// MinSize 20 on the 320px side of the sample.
	opts := Options{
		MinFaceRatio:     0.0625,
		ShiftFactor:      0.2,
		ScaleFactor:      1.1,
		IoUThreshold:     0.1,
		QualityThreshold: 0,
	}
	p := loadFacefinder(t, opts)
	defer p.Close()

	data, err := os.ReadFile(filepath.Join("testdata", "sample.jpg"))
	if err != nil {
		t.Fatal(err)
	}
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		t.Fatal(err)
	}
	bounds := img.Bounds()

	boxes := p.Detect(data)
	if len(boxes) == 0 {
		t.Fatal("Expected at least one face in the sample image")
	}
	for _, b := range boxes {
		if b.Confidence != Confidence {
			t.Errorf("Expected confidence %v, got %v", Confidence, b.Confidence)
		}
		if b.Width <= 0 || b.Height <= 0 || b.X < 0 || b.Y < 0 ||
			b.X+b.Width > float64(bounds.Dx()) || b.Y+b.Height > float64(bounds.Dy()) {
			t.Errorf("Box %+v outside %v", b, bounds)
		}
	}

	// Decoded and raw inputs agree.
	if got := p.DetectImage(img); len(got) != len(boxes) {
		t.Errorf("Expected DetectImage to match Detect, got %d vs %d", len(got), len(boxes))
	}
}

func TestPigoBlankImage(t *testing.T) {
	p := loadFacefinder(t, DefaultOptions())

	img := image.NewGray(image.Rect(0, 0, 160, 200))
	for i := range img.Pix {
		img.Pix[i] = 128
	}
	boxes := p.DetectImage(img)
	if boxes == nil {
		t.Fatal("Expected empty slice, got nil")
	}
	if len(boxes) != 0 {
		t.Errorf("Expected no faces in a blank image, got %v", boxes)
	}
}
