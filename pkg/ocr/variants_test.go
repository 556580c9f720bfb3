package ocr

import (
	"image"
	"image/color"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func flatImage(w, h int, c color.Color) image.Image {
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, c)
		}
	}
	return img
}

func TestBuildVariantsBattery(t *testing.T) {
	img := flatImage(20, 10, color.NRGBA{R: 120, G: 120, B: 120, A: 255})
	variants := BuildVariants(img, 2, 180)

	// Enlarged + grayscale + 6 order/combo enhancements at 7 images
	// each: intermediate, combined, median, and four cutoffs.
	require.Len(t, variants, 44)

	for i, v := range variants {
		b := v.Bounds()
		assert.Equal(t, 40, b.Dx(), "variant %d width", i)
		assert.Equal(t, 20, b.Dy(), "variant %d height", i)
	}
}

func TestThresholdImageCutoff(t *testing.T) {
	light := flatImage(4, 4, color.NRGBA{R: 200, G: 200, B: 200, A: 255})
	dark := flatImage(4, 4, color.NRGBA{R: 50, G: 50, B: 50, A: 255})

	assert.Equal(t, uint8(255), thresholdImage(light, 180, false).GrayAt(1, 1).Y)
	assert.Equal(t, uint8(0), thresholdImage(dark, 180, false).GrayAt(1, 1).Y)

	assert.Equal(t, uint8(0), thresholdImage(light, 180, true).GrayAt(1, 1).Y)
	assert.Equal(t, uint8(255), thresholdImage(dark, 180, true).GrayAt(1, 1).Y)

	// A pixel exactly at the threshold lands on the white side.
	at := flatImage(4, 4, color.NRGBA{R: 180, G: 180, B: 180, A: 255})
	assert.Equal(t, uint8(255), thresholdImage(at, 180, false).GrayAt(1, 1).Y)
}

func TestMedianFilterSuppressesSaltNoise(t *testing.T) {
	img := image.NewNRGBA(image.Rect(0, 0, 9, 9))
	for y := 0; y < 9; y++ {
		for x := 0; x < 9; x++ {
			img.Set(x, y, color.NRGBA{R: 10, G: 10, B: 10, A: 255})
		}
	}
	// One bright outlier pixel in the middle.
	img.Set(4, 4, color.NRGBA{R: 255, G: 255, B: 255, A: 255})

	out := medianFilter(img)
	assert.Equal(t, uint8(10), out.GrayAt(4, 4).Y, "lone outlier should vanish")
}

func TestMedianFilterPreservesFlatImage(t *testing.T) {
	out := medianFilter(flatImage(5, 5, color.NRGBA{R: 77, G: 77, B: 77, A: 255}))
	for y := 0; y < 5; y++ {
		for x := 0; x < 5; x++ {
			assert.Equal(t, uint8(77), out.GrayAt(x, y).Y)
		}
	}
}
