package ocr

import (
	"image"
	"image/color"
	"sort"

	"github.com/disintegration/imaging"
)

// Enhancement percentages. The reduce/boost pair approximates the
// classic 0.75/1.5 enhancement factors.
const (
	reducePct = -25.0
	boostPct  = 50.0
)

// BuildVariants produces the recognition battery for one image: the
// enlarged original, its grayscale, and then, for every
// contrast/brightness combination in both application orders (the
// double-reduce case is skipped, it only destroys detail), the
// single-enhancement intermediate, the combined enhancement, its
// median-filtered copy, and binary plus inverse-binary cutoffs of both
// the combined and the median image.
func BuildVariants(img image.Image, enlargeFactor int, threshold uint8) []image.Image {
	if enlargeFactor < 1 {
		enlargeFactor = 1
	}
	b := img.Bounds()
	enlarged := imaging.Resize(img, b.Dx()*enlargeFactor, b.Dy()*enlargeFactor, imaging.Lanczos)
	gray := imaging.Grayscale(enlarged)

	variants := []image.Image{enlarged, gray}

	factors := []float64{reducePct, boostPct}
	for order := 0; order < 2; order++ {
		for _, p1 := range factors {
			for _, p2 := range factors {
				if p1 == reducePct && p2 == reducePct {
					continue
				}
				var first, combined image.Image
				if order == 0 {
					first = imaging.AdjustBrightness(gray, p1)
					combined = imaging.AdjustContrast(first, p2)
				} else {
					first = imaging.AdjustContrast(gray, p1)
					combined = imaging.AdjustBrightness(first, p2)
				}
				median := medianFilter(combined)
				variants = append(variants,
					first, combined, median,
					thresholdImage(combined, threshold, false),
					thresholdImage(combined, threshold, true),
					thresholdImage(median, threshold, false),
					thresholdImage(median, threshold, true))
			}
		}
	}
	return variants
}

// medianFilter applies a 3x3 median over the luminance channel. Edge
// pixels use the truncated neighborhood.
func medianFilter(img image.Image) *image.Gray {
	b := img.Bounds()
	src := imaging.Grayscale(img)
	out := image.NewGray(image.Rect(0, 0, b.Dx(), b.Dy()))

	w, h := b.Dx(), b.Dy()
	window := make([]uint8, 0, 9)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			window = window[:0]
			for dy := -1; dy <= 1; dy++ {
				for dx := -1; dx <= 1; dx++ {
					nx, ny := x+dx, y+dy
					if nx < 0 || ny < 0 || nx >= w || ny >= h {
						continue
					}
					window = append(window, src.NRGBAAt(nx, ny).R)
				}
			}
			sort.Slice(window, func(i, j int) bool { return window[i] < window[j] })
			out.SetGray(x, y, color.Gray{Y: window[len(window)/2]})
		}
	}
	return out
}

// thresholdImage cuts the image to pure black and white at the given
// luminance threshold. inverse flips the two sides, which rescues
// light-on-dark text.
func thresholdImage(img image.Image, threshold uint8, inverse bool) *image.Gray {
	b := img.Bounds()
	src := imaging.Grayscale(img)
	out := image.NewGray(image.Rect(0, 0, b.Dx(), b.Dy()))

	for y := 0; y < b.Dy(); y++ {
		for x := 0; x < b.Dx(); x++ {
			v := src.NRGBAAt(x, y).R
			white := v >= threshold
			if inverse {
				white = !white
			}
			if white {
				out.SetGray(x, y, color.Gray{Y: 255})
			} else {
				out.SetGray(x, y, color.Gray{Y: 0})
			}
		}
	}
	return out
}
