package preprocess

import (
	"image"
	"image/color"
	"math"

	"github.com/disintegration/imaging"
)

// deskewProbeWidth is the width text pages are downscaled to before skew
// scoring; full-resolution rotation sweeps are needlessly expensive.
const deskewProbeWidth = 400

// estimateSkew sweeps candidate angles and picks the one maximizing the
// variance of row darkness sums. Straight text lines concentrate dark pixels
// into few rows, so the correctly deskewed angle scores highest.
func estimateSkew(gray *image.NRGBA, maxAngle, step float64) float64 {
	if maxAngle <= 0 || step <= 0 {
		return 0
	}
	probe := gray
	if probe.Bounds().Dx() > deskewProbeWidth {
		probe = imaging.Resize(probe, deskewProbeWidth, 0, imaging.Box)
	}

	bestAngle := 0.0
	bestScore := projectionVariance(probe)
	for angle := -maxAngle; angle <= maxAngle+1e-9; angle += step {
		if math.Abs(angle) < step/2 {
			continue
		}
		rotated := imaging.Rotate(probe, angle, color.White)
		if score := projectionVariance(rotated); score > bestScore {
			bestScore = score
			bestAngle = angle
		}
	}
	return bestAngle
}

func projectionVariance(img *image.NRGBA) float64 {
	b := img.Bounds()
	h := b.Dy()
	if h == 0 {
		return 0
	}
	sums := make([]float64, h)
	for y := 0; y < h; y++ {
		row := 0.0
		for x := 0; x < b.Dx(); x++ {
			off := y*img.Stride + x*4
			// Darkness relative to white background.
			row += 255.0 - float64(img.Pix[off])
		}
		sums[y] = row
	}
	mean := 0.0
	for _, s := range sums {
		mean += s
	}
	mean /= float64(h)
	variance := 0.0
	for _, s := range sums {
		d := s - mean
		variance += d * d
	}
	return variance / float64(h)
}

// removeShadow divides the image by a heavily blurred copy of itself, which
// flattens uneven illumination while keeping ink dark.
func removeShadow(gray *image.NRGBA, sigma float64) *image.NRGBA {
	if sigma <= 0 {
		return gray
	}
	background := imaging.Blur(gray, sigma)
	out := imaging.Clone(gray)
	b := out.Bounds()
	for y := 0; y < b.Dy(); y++ {
		for x := 0; x < b.Dx(); x++ {
			off := y*out.Stride + x*4
			bg := float64(background.Pix[off])
			if bg < 1 {
				bg = 1
			}
			v := float64(out.Pix[off]) / bg * 255.0
			if v > 255 {
				v = 255
			}
			g := uint8(v)
			out.Pix[off], out.Pix[off+1], out.Pix[off+2] = g, g, g
		}
	}
	return out
}

// stretchContrast linearly remaps the 2nd..98th percentile grayscale range to
// the full 0..255 range.
func stretchContrast(gray *image.NRGBA) *image.NRGBA {
	b := gray.Bounds()
	total := b.Dx() * b.Dy()
	if total == 0 {
		return gray
	}
	var hist [256]int
	for y := 0; y < b.Dy(); y++ {
		for x := 0; x < b.Dx(); x++ {
			hist[gray.Pix[y*gray.Stride+x*4]]++
		}
	}
	lo, hi := percentileBounds(hist[:], total, 0.02, 0.98)
	if hi <= lo {
		return gray
	}
	out := imaging.Clone(gray)
	scale := 255.0 / float64(hi-lo)
	for y := 0; y < b.Dy(); y++ {
		for x := 0; x < b.Dx(); x++ {
			off := y*out.Stride + x*4
			v := (float64(out.Pix[off]) - float64(lo)) * scale
			if v < 0 {
				v = 0
			} else if v > 255 {
				v = 255
			}
			g := uint8(v)
			out.Pix[off], out.Pix[off+1], out.Pix[off+2] = g, g, g
		}
	}
	return out
}

func percentileBounds(hist []int, total int, loPct, hiPct float64) (int, int) {
	loTarget := int(float64(total) * loPct)
	hiTarget := int(float64(total) * hiPct)
	lo, hi := 0, 255
	cum := 0
	for i, c := range hist {
		cum += c
		if cum <= loTarget {
			lo = i
		}
		if cum <= hiTarget {
			hi = i
		}
	}
	return lo, hi
}
