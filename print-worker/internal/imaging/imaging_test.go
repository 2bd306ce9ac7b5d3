package imaging

import (
	"image"
	"image/color"
	"image/draw"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func solid(w, h int, c color.Color) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.Draw(img, img.Bounds(), &image.Uniform{C: c}, image.Point{}, draw.Src)
	return img
}

func TestEstimatePages_PadsToEven(t *testing.T) {
	assert.Equal(t, 12, EstimatePages(10, true, false))
	assert.Equal(t, 12, EstimatePages(10, true, true))
	assert.Equal(t, 10, EstimatePages(9, false, false))
	assert.Equal(t, 0, EstimatePages(0, false, false))
}

func TestSpineWidth(t *testing.T) {
	assert.InDelta(t, 2.4, SpineWidthMM(24, 0.1), 1e-9)
	assert.Equal(t, 28, MMToPixels(2.4, 300))
}

func TestCMYKTIFF_RoundTrip(t *testing.T) {
	src := solid(8, 6, color.RGBA{R: 200, G: 40, B: 10, A: 255})
	cmyk := ToCMYK(src)
	require.Equal(t, src.Bounds(), cmyk.Bounds())

	data, err := EncodeCMYKTIFF(cmyk)
	require.NoError(t, err)

	decoded, err := Decode(data)
	require.NoError(t, err)
	got, ok := decoded.(*image.CMYK)
	require.True(t, ok, "decoded TIFF must stay CMYK, got %T", decoded)
	assert.Equal(t, cmyk.Pix, got.Pix)
}

func TestUpscaleAndCheckSize(t *testing.T) {
	up := Upscale(solid(10, 10, color.White), 40, 30)
	assert.NoError(t, CheckSize(up, 40, 30))
	assert.Error(t, CheckSize(up, 40, 40))
}

func TestComposeSpread(t *testing.T) {
	front := solid(60, 80, color.RGBA{R: 255, A: 255})
	back := solid(30, 40, color.RGBA{B: 255, A: 255})

	spread, err := ComposeSpread(front, back, SpreadSpec{Title: "Mia", Badge: "KCS-000001", SpineWidth: 10, DPI: 72})
	require.NoError(t, err)
	assert.Equal(t, image.Rect(0, 0, 130, 80), spread.Bounds())

	// Передняя обложка справа от корешка
	r, _, _, _ := spread.At(120, 10).RGBA()
	assert.Equal(t, uint32(0xffff), r)
	_, _, b, _ := spread.At(20, 10).RGBA()
	assert.Greater(t, b, uint32(0x8000))
}

func TestOverlayText_KeepsSize(t *testing.T) {
	page := solid(300, 300, color.RGBA{G: 200, A: 255})
	out, err := OverlayText(page, "Mia found a tiny dragon under the old bridge.", PositionBottom,
		TextStyle{FontSize: 12, LineSpacing: 1.3, DPI: 72, Margin: 10})
	require.NoError(t, err)
	assert.Equal(t, page.Bounds(), out.Bounds())

	// Плашка светлее фона внизу, верх страницы не тронут
	_, gTop, _, _ := out.At(150, 5).RGBA()
	assert.Equal(t, uint32(200*0x101), gTop)
	rBottom, _, _, _ := out.At(15, 285).RGBA()
	assert.Greater(t, rBottom, uint32(0x8000))
}

func TestParsePosition(t *testing.T) {
	p, ok := ParsePosition("Top third looks calm.")
	assert.True(t, ok)
	assert.Equal(t, PositionTop, p)

	_, ok = ParsePosition("left")
	assert.False(t, ok)
}

func TestCMYKSafe(t *testing.T) {
	out := CMYKSafe(solid(2, 2, color.RGBA{R: 10, G: 200, B: 90, A: 255}))
	assert.Equal(t, image.Rect(0, 0, 2, 2), out.Bounds())
}
