package embedding

import "math"

const (
	histBins    = 16
	gridSize    = 8
	textureGrid = 4
)

// Sampling loops run x outer, y inner. The float sums are order sensitive in
// their last bits and stored embeddings were produced in this order.

// colorHistograms writes 16-bin R, G, B and gray histograms, each bin as a
// fraction of all pixels, interleaved per bin.
func colorHistograms(r raster, b *builder) {
	var red, green, blue, gray [histBins]int
	for x := 0; x < r.w; x++ {
		for y := 0; y < r.h; y++ {
			rv, gv, bv := r.rgb(x, y)
			red[bin(rv, histBins)]++
			green[bin(gv, histBins)]++
			blue[bin(bv, histBins)]++
			gray[bin((rv+gv+bv)/3, histBins)]++
		}
	}

	total := float64(r.w * r.h)
	for i := 0; i < histBins; i++ {
		b.add(float64(red[i]) / total)
		b.add(float64(green[i]) / total)
		b.add(float64(blue[i]) / total)
		b.add(float64(gray[i]) / total)
	}
}

// spatialGrid writes the mean normalised gray of each cell of an 8x8 grid.
// Cell bounds are clamped to the last pixel index and the upper bound is
// exclusive, so the last row and column are never sampled and small images
// produce empty cells. Empty cells are skipped without reserving a slot.
func spatialGrid(r raster, b *builder) {
	for gy := 0; gy < gridSize; gy++ {
		for gx := 0; gx < gridSize; gx++ {
			x0 := clamp(r.w*gx/gridSize, 0, r.w-1)
			x1 := clamp(r.w*(gx+1)/gridSize, 0, r.w-1)
			y0 := clamp(r.h*gy/gridSize, 0, r.h-1)
			y1 := clamp(r.h*(gy+1)/gridSize, 0, r.h-1)

			var sum float64
			count := 0
			for x := x0; x < x1; x++ {
				for y := y0; y < y1; y++ {
					sum += r.gray(x, y) / 255.0
					count++
				}
			}
			if count > 0 {
				b.add(sum / float64(count))
			}
		}
	}
}

// band is a half-open pixel rectangle.
type band struct {
	x0, y0, x1, y1 int
}

// faceBands returns the eyes, nose and mouth bands of a w x h face crop.
func faceBands(w, h int) [3]band {
	return [3]band{
		{w / 4, h / 4, 3 * w / 4, h / 2},
		{w / 4, h / 2, 3 * w / 4, 3 * h / 4},
		{w / 4, 3 * h / 4, 3 * w / 4, h},
	}
}

// regionGradients writes the mean absolute horizontal and vertical gray
// differences (scaled to [0, 1]) inside each face band. A band without
// interior pixels writes nothing.
func regionGradients(r raster, b *builder) {
	for _, bd := range faceBands(r.w, r.h) {
		var hSum, vSum float64
		count := 0
		for x := bd.x0; x < bd.x1-1; x++ {
			for y := bd.y0; y < bd.y1-1; y++ {
				if x < 0 || x >= r.w-1 || y < 0 || y >= r.h-1 {
					continue
				}
				g := r.gray(x, y)
				hSum += math.Abs(r.gray(x+1, y) - g)
				vSum += math.Abs(r.gray(x, y+1) - g)
				count++
			}
		}
		if count > 0 {
			b.add(hSum / float64(count) / 255.0)
			b.add(vSum / float64(count) / 255.0)
		}
	}
}

// neighbors lists the 8-neighborhood clockwise from top-left. Bit k of a
// texture code belongs to neighbors[k].
var neighbors = [8][2]int{
	{-1, -1}, {0, -1}, {1, -1},
	{1, 0}, {1, 1},
	{0, 1}, {-1, 1}, {-1, 0},
}

// textureHistogram samples a local binary pattern at the centre of each cell
// of a 4x4 grid and writes a 16-bin histogram of the codes, each bin as a
// fraction of the samples. Requires w, h >= 3.
func textureHistogram(r raster, b *builder) {
	var hist [histBins]int
	for gy := 0; gy < textureGrid; gy++ {
		for gx := 0; gx < textureGrid; gx++ {
			cx := clamp(int(float64(r.w)*(float64(gx)+0.5)/textureGrid), 1, r.w-2)
			cy := clamp(int(float64(r.h)*(float64(gy)+0.5)/textureGrid), 1, r.h-2)
			hist[bin(lbpCode(r, cx, cy), histBins)]++
		}
	}

	samples := float64(textureGrid * textureGrid)
	for _, n := range hist {
		b.add(float64(n) / samples)
	}
}

// lbpCode returns the 8-bit local binary pattern at (cx, cy): bit k is set
// when neighbor k is at least as bright as the centre.
func lbpCode(r raster, cx, cy int) int {
	center := r.grayInt(cx, cy)
	code := 0
	for k, d := range neighbors {
		nx, ny := cx+d[0], cy+d[1]
		if nx < 0 || nx >= r.w || ny < 0 || ny >= r.h {
			continue
		}
		if r.grayInt(nx, ny) >= center {
			code |= 1 << k
		}
	}
	return code
}

// quadrantAverages writes the mean normalised gray of the top-left,
// top-right, bottom-left and bottom-right quadrants. Empty quadrants write
// nothing.
func quadrantAverages(r raster, b *builder) {
	mx, my := r.w/2, r.h/2
	quadrants := [4]band{
		{0, 0, mx, my},
		{mx, 0, r.w, my},
		{0, my, mx, r.h},
		{mx, my, r.w, r.h},
	}
	for _, q := range quadrants {
		var sum float64
		count := 0
		for x := q.x0; x < q.x1; x++ {
			for y := q.y0; y < q.y1; y++ {
				sum += r.gray(x, y) / 255.0
				count++
			}
		}
		if count > 0 {
			b.add(sum / float64(count))
		}
	}
}

// bin maps an 8-bit value onto one of n equal-width bins.
func bin(v, n int) int {
	return clamp(v*n/256, 0, n-1)
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
