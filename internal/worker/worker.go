package worker

import (
	"context"
	"errors"
	"fmt"
	"image"
	"log/slog"
	"sync"

	"github.com/andresmejia3/recallme/internal/detector"
	"github.com/andresmejia3/recallme/internal/embedding"
	"github.com/andresmejia3/recallme/internal/imagedec"
	"github.com/andresmejia3/recallme/internal/types"
)

const megabyte = 1024 * 1024

// ErrNoFace is reported for a task when cropping was requested and the
// localizer found nothing.
var ErrNoFace = errors.New("no face detected")

// Buffer pool to reduce GC pressure when streaming frames
var framePool = sync.Pool{
	New: func() interface{} { return make([]byte, 0, megabyte) },
}

// GetBuffer returns a pooled buffer holding a copy of data. Tasks built on
// it are returned to the pool once processed.
func GetBuffer(data []byte) []byte {
	buf := framePool.Get().([]byte)
	if cap(buf) < len(data) {
		buf = make([]byte, len(data))
	}
	buf = buf[:len(data)]
	copy(buf, data)
	return buf
}

// Result is the outcome of one task.
type Result struct {
	Index  int
	Name   string
	Faces  []types.FaceBox
	Vector embedding.Vector // nil when no embedding was produced
	Err    error
}

// Pool runs detection and extraction on Size goroutines.
type Pool struct {
	Size      int
	Localizer detector.Localizer // may be nil when Crop and DetectOnly are off

	// Crop embeds the largest detected face instead of the whole image.
	Crop bool

	// DetectOnly skips extraction.
	DetectOnly bool

	// Pooled marks task data as coming from GetBuffer.
	Pooled bool
}

// Process consumes tasks until the channel is closed or ctx is done. Results
// arrive in completion order; the returned channel is closed once every
// worker has exited.
func (p *Pool) Process(ctx context.Context, tasks <-chan types.FaceTask) <-chan Result {
	size := max(p.Size, 1)
	results := make(chan Result, size*2)

	var wg sync.WaitGroup
	for i := 0; i < size; i++ {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()
			p.run(ctx, workerID, tasks, results)
		}(i)
	}

	go func() {
		wg.Wait()
		close(results)
	}()
	return results
}

func (p *Pool) run(ctx context.Context, id int, tasks <-chan types.FaceTask, results chan<- Result) {
	for {
		var task types.FaceTask
		var ok bool
		select {
		case <-ctx.Done():
			return
		case task, ok = <-tasks:
			if !ok {
				return
			}
		}

		res := p.process(task)
		if p.Pooled {
			framePool.Put(task.Data[:0])
		}
		if res.Err != nil {
			slog.Debug("worker: task failed", "worker", id, "task", task.Name, "error", res.Err)
		}

		select {
		case results <- res:
		case <-ctx.Done():
			return
		}
	}
}

func (p *Pool) process(task types.FaceTask) (res Result) {
	res = Result{Index: task.Index, Name: task.Name}
	defer func() {
		if r := recover(); r != nil {
			res.Vector = nil
			res.Err = fmt.Errorf("worker fault: %v", r)
		}
	}()

	img, _, err := imagedec.Decode(task.Data)
	if err != nil {
		res.Err = err
		return res
	}

	if p.Crop || p.DetectOnly {
		res.Faces = p.Localizer.DetectImage(img)
	}
	if p.DetectOnly {
		return res
	}

	var face image.Image = img
	if p.Crop {
		best, ok := detector.Largest(res.Faces)
		if !ok {
			res.Err = ErrNoFace
			return res
		}
		if face = detector.Crop(img, best); face == nil {
			res.Err = ErrNoFace
			return res
		}
	}

	res.Vector, res.Err = embedding.Extract(face)
	return res
}

// Ordered re-sequences results by Index, starting at first. Indices must be
// contiguous; a gap holds back everything after it until the input closes,
// when the remainder is flushed in order.
func Ordered(results <-chan Result, first int) <-chan Result {
	out := make(chan Result)
	go func() {
		defer close(out)
		// Worker 2 might finish before worker 1
		buffer := make(map[int]Result)
		next := first
		for res := range results {
			buffer[res.Index] = res
			for {
				r, ok := buffer[next]
				if !ok {
					break
				}
				delete(buffer, next)
				out <- r
				next++
			}
		}
		for len(buffer) > 0 {
			if r, ok := buffer[next]; ok {
				delete(buffer, next)
				out <- r
			}
			next++
		}
	}()
	return out
}
