package imaging

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/draw"

	"github.com/hhrutter/tiff"
	xdraw "golang.org/x/image/draw"
)

// Upscale масштабирует изображение до печатного размера (CatmullRom).
func Upscale(img image.Image, width, height int) *image.RGBA {
	dst := image.NewRGBA(image.Rect(0, 0, width, height))
	xdraw.CatmullRom.Scale(dst, dst.Bounds(), img, img.Bounds(), xdraw.Over, nil)
	return dst
}

// CheckSize сравнивает фактический размер с ожидаемым.
func CheckSize(img image.Image, width, height int) error {
	b := img.Bounds()
	if b.Dx() != width || b.Dy() != height {
		return fmt.Errorf("image is %dx%d, expected %dx%d", b.Dx(), b.Dy(), width, height)
	}
	return nil
}

// ToCMYK переводит изображение в пространство CMYK.
func ToCMYK(img image.Image) *image.CMYK {
	b := img.Bounds()
	dst := image.NewCMYK(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(dst, dst.Bounds(), img, b.Min, draw.Src)
	return dst
}

// CMYKSafe возвращает RGB-изображение, прошедшее через CMYK и обратно:
// цвета вне охвата печати заменяются ближайшими печатными.
func CMYKSafe(img image.Image) *image.RGBA {
	b := img.Bounds()
	dst := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			c := color.CMYKModel.Convert(img.At(x, y))
			dst.Set(x-b.Min.X, y-b.Min.Y, c)
		}
	}
	return dst
}

// EncodeCMYKTIFF пишет TIFF без потерь (Deflate с предиктором).
func EncodeCMYKTIFF(img *image.CMYK) ([]byte, error) {
	var buf bytes.Buffer
	if err := tiff.Encode(&buf, img, &tiff.Options{Compression: tiff.Deflate, Predictor: true}); err != nil {
		return nil, fmt.Errorf("encode cmyk tiff: %w", err)
	}
	return buf.Bytes(), nil
}
