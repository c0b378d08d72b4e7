package layout

// box is a component bounding box in mask coordinates.
type box struct {
	minX, minY, maxX, maxY int
	pixels                 int
}

func (b box) w() int { return b.maxX - b.minX + 1 }
func (b box) h() int { return b.maxY - b.minY + 1 }

// connectedComponents labels 8-connected ink components and returns their
// bounding boxes. Uses an explicit stack flood fill; page masks are small
// after downscaling.
func connectedComponents(m *mask) []box {
	visited := make([]bool, len(m.bits))
	var boxes []box
	stack := make([][2]int, 0, 1024)

	for y := 0; y < m.h; y++ {
		for x := 0; x < m.w; x++ {
			idx := y*m.w + x
			if visited[idx] || !m.bits[idx] {
				continue
			}
			b := box{minX: x, minY: y, maxX: x, maxY: y}
			stack = stack[:0]
			stack = append(stack, [2]int{x, y})
			visited[idx] = true
			for len(stack) > 0 {
				p := stack[len(stack)-1]
				stack = stack[:len(stack)-1]
				px, py := p[0], p[1]
				b.pixels++
				if px < b.minX {
					b.minX = px
				}
				if px > b.maxX {
					b.maxX = px
				}
				if py < b.minY {
					b.minY = py
				}
				if py > b.maxY {
					b.maxY = py
				}
				for dy := -1; dy <= 1; dy++ {
					for dx := -1; dx <= 1; dx++ {
						if dx == 0 && dy == 0 {
							continue
						}
						nx, ny := px+dx, py+dy
						if !m.inside(nx, ny) {
							continue
						}
						nidx := ny*m.w + nx
						if visited[nidx] || !m.bits[nidx] {
							continue
						}
						visited[nidx] = true
						stack = append(stack, [2]int{nx, ny})
					}
				}
			}
			boxes = append(boxes, b)
		}
	}
	return boxes
}

// lineCounts reports how many rows and columns inside the box are mostly ink,
// the signal used to recognize ruled tables.
func lineCounts(m *mask, b box, minFill float64) (rows, cols int) {
	for y := b.minY; y <= b.maxY; y++ {
		ink := 0
		for x := b.minX; x <= b.maxX; x++ {
			if m.at(x, y) {
				ink++
			}
		}
		if float64(ink) >= minFill*float64(b.w()) {
			rows++
		}
	}
	for x := b.minX; x <= b.maxX; x++ {
		ink := 0
		for y := b.minY; y <= b.maxY; y++ {
			if m.at(x, y) {
				ink++
			}
		}
		if float64(ink) >= minFill*float64(b.h()) {
			cols++
		}
	}
	return rows, cols
}

// edgeDensity is the fraction of box pixels that sit on an ink/background
// transition, scanning both directions. Handwriting scores high because
// strokes are thin relative to their bounding box.
func edgeDensity(m *mask, b box) float64 {
	area := b.w() * b.h()
	if area == 0 {
		return 0
	}
	transitions := 0
	for y := b.minY; y <= b.maxY; y++ {
		for x := b.minX; x < b.maxX; x++ {
			if m.at(x, y) != m.at(x+1, y) {
				transitions++
			}
		}
	}
	for x := b.minX; x <= b.maxX; x++ {
		for y := b.minY; y < b.maxY; y++ {
			if m.at(x, y) != m.at(x, y+1) {
				transitions++
			}
		}
	}
	return float64(transitions) / float64(area)
}

func fillRatio(b box) float64 {
	area := b.w() * b.h()
	if area == 0 {
		return 0
	}
	return float64(b.pixels) / float64(area)
}
