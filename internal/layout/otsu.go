package layout

import "image"

// otsuThreshold computes the global binarization threshold that maximizes
// between-class variance of the grayscale histogram.
func otsuThreshold(gray *image.Gray) uint8 {
	var hist [256]int
	b := gray.Bounds()
	total := b.Dx() * b.Dy()
	if total == 0 {
		return 128
	}
	for y := 0; y < b.Dy(); y++ {
		for x := 0; x < b.Dx(); x++ {
			hist[gray.GrayAt(b.Min.X+x, b.Min.Y+y).Y]++
		}
	}

	sum := 0.0
	for i, c := range hist {
		sum += float64(i) * float64(c)
	}

	var (
		sumB       float64
		wB         int
		maxVar     float64
		best       uint8 = 128
		totalF           = float64(total)
	)
	for t := 0; t < 256; t++ {
		wB += hist[t]
		if wB == 0 {
			continue
		}
		wF := total - wB
		if wF == 0 {
			break
		}
		sumB += float64(t) * float64(hist[t])
		mB := sumB / float64(wB)
		mF := (sum - sumB) / float64(wF)
		between := float64(wB) / totalF * float64(wF) / totalF * (mB - mF) * (mB - mF)
		if between > maxVar {
			maxVar = between
			best = uint8(t)
		}
	}
	return best
}

// binarize returns a mask where true marks ink (pixels darker than the
// threshold).
func binarize(gray *image.Gray, threshold uint8) *mask {
	b := gray.Bounds()
	m := newMask(b.Dx(), b.Dy())
	for y := 0; y < m.h; y++ {
		for x := 0; x < m.w; x++ {
			if gray.GrayAt(b.Min.X+x, b.Min.Y+y).Y < threshold {
				m.set(x, y)
			}
		}
	}
	return m
}

// mask is a dense binary image.
type mask struct {
	w, h int
	bits []bool
}

func newMask(w, h int) *mask {
	return &mask{w: w, h: h, bits: make([]bool, w*h)}
}

func (m *mask) set(x, y int)      { m.bits[y*m.w+x] = true }
func (m *mask) at(x, y int) bool  { return m.bits[y*m.w+x] }
func (m *mask) inside(x, y int) bool {
	return x >= 0 && x < m.w && y >= 0 && y < m.h
}
