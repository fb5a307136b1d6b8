package types

import "time"

// FaceTask represents a single image sent to a worker for processing
type FaceTask struct {
	Index int
	Name  string // file path or caller-supplied label
	Data  []byte
}

// FaceBox is one detected face in pixel coordinates.
// Field names match the face channel's detectFaces reply.
type FaceBox struct {
	X          float64 `msgpack:"x" json:"x"`
	Y          float64 `msgpack:"y" json:"y"`
	Width      float64 `msgpack:"width" json:"width"`
	Height     float64 `msgpack:"height" json:"height"`
	Confidence float64 `msgpack:"confidence" json:"confidence"`
}

// Area returns the box area in square pixels.
func (b FaceBox) Area() float64 {
	return b.Width * b.Height
}

// Identity is a gallery entry with its running-mean embedding.
type Identity struct {
	ID        int
	Name      string
	Count     int
	CreatedAt time.Time
}

// EmbeddingResult is one line of batch embed output.
type EmbeddingResult struct {
	Name   string    `json:"name"`
	Vector []float64 `json:"vector"` // null when no embedding could be produced
	Error  string    `json:"error,omitempty"`
}
