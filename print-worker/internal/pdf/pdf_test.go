package pdf

import (
	"bytes"
	"image"
	"image/color"
	"image/draw"
	"image/jpeg"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func jpegPage(t *testing.T) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 40, 40))
	draw.Draw(img, img.Bounds(), &image.Uniform{C: color.RGBA{R: 90, G: 120, B: 200, A: 255}}, image.Point{}, draw.Src)
	var buf bytes.Buffer
	require.NoError(t, jpeg.Encode(&buf, img, nil))
	return buf.Bytes()
}

func TestBuild_PageCountMatches(t *testing.T) {
	page := jpegPage(t)
	data, err := Build([][]byte{page, page, page, page}, Options{
		WidthMM:    210,
		HeightMM:   210,
		Title:      "Mia and the Dragon",
		ICCProfile: "ISOcoated_v2_300_eci",
	})
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(data, []byte("%PDF-")))
	assert.Contains(t, string(data), "ISOcoated_v2_300_eci")

	count, err := PageCount(data)
	require.NoError(t, err)
	assert.Equal(t, 4, count)
}

func TestBuild_Rejects(t *testing.T) {
	_, err := Build(nil, Options{WidthMM: 210, HeightMM: 210})
	assert.Error(t, err)

	_, err = Build([][]byte{jpegPage(t)}, Options{})
	assert.Error(t, err)

	_, err = Build([][]byte{[]byte("not a jpeg")}, Options{WidthMM: 210, HeightMM: 210})
	assert.Error(t, err)
}
