package imaging

import (
	"fmt"
	"image"
	"image/color"
	"math"

	"github.com/fogleman/gg"
)

// EstimatePages - страницы внутреннего блока: по абзацу на страницу,
// плюс посвящение и промо, с добором до четного числа.
func EstimatePages(paragraphs int, dedication, promo bool) int {
	pages := paragraphs
	if dedication {
		pages++
	}
	if promo {
		pages++
	}
	if pages%2 != 0 {
		pages++
	}
	return pages
}

// SpineWidthMM - толщина корешка: число страниц на толщину листа бумаги.
func SpineWidthMM(pages int, caliperMM float64) float64 {
	return float64(pages) * caliperMM
}

// MMToPixels переводит миллиметры в пиксели при заданном DPI.
func MMToPixels(mm float64, dpi int) int {
	return int(math.Round(mm / 25.4 * float64(dpi)))
}

// SpreadSpec - параметры разворота обложки.
type SpreadSpec struct {
	Title       string
	Badge       string
	SpineWidth  int // px
	DPI         int
	SpineColor  color.Color
	BadgeMargin int // px
}

// ComposeSpread собирает разворот: задняя обложка | корешок | передняя обложка.
// Задняя обложка приводится к размеру передней.
func ComposeSpread(front, back image.Image, spec SpreadSpec) (image.Image, error) {
	fb := front.Bounds()
	width, height := fb.Dx(), fb.Dy()
	if width == 0 || height == 0 {
		return nil, fmt.Errorf("front cover is empty")
	}
	if spec.SpineWidth < 1 {
		spec.SpineWidth = 1
	}
	if spec.DPI <= 0 {
		spec.DPI = 300
	}
	if spec.SpineColor == nil {
		spec.SpineColor = color.RGBA{R: 0x22, G: 0x2a, B: 0x44, A: 0xff}
	}
	if spec.BadgeMargin <= 0 {
		spec.BadgeMargin = height / 40
	}

	dc := gg.NewContext(width*2+spec.SpineWidth, height)
	dc.SetColor(color.White)
	dc.Clear()

	dc.DrawImage(Upscale(back, width, height), 0, 0)
	dc.DrawImage(front, width+spec.SpineWidth, 0)

	dc.SetColor(spec.SpineColor)
	dc.DrawRectangle(float64(width), 0, float64(spec.SpineWidth), float64(height))
	dc.Fill()

	if spec.Title != "" {
		// Кегль корешка ограничен его толщиной
		size := math.Min(float64(spec.SpineWidth)*0.6*72/float64(spec.DPI), 28)
		if size >= 4 {
			face, err := Face(size, spec.DPI, true)
			if err != nil {
				return nil, err
			}
			cx := float64(width) + float64(spec.SpineWidth)/2
			cy := float64(height) / 2
			dc.Push()
			dc.SetFontFace(face)
			dc.SetColor(color.White)
			dc.RotateAbout(gg.Radians(90), cx, cy)
			dc.DrawStringAnchored(spec.Title, cx, cy, 0.5, 0.35)
			dc.Pop()
		}
	}

	if spec.Badge != "" {
		face, err := Face(10, spec.DPI, false)
		if err != nil {
			return nil, err
		}
		dc.SetFontFace(face)
		tw, th := dc.MeasureString(spec.Badge)
		pad := th / 2
		x := float64(spec.BadgeMargin)
		y := float64(height-spec.BadgeMargin) - th - 2*pad
		dc.SetRGBA(1, 1, 1, 0.85)
		dc.DrawRoundedRectangle(x, y, tw+2*pad, th+2*pad, pad)
		dc.Fill()
		dc.SetRGB(0.1, 0.1, 0.1)
		dc.DrawStringAnchored(spec.Badge, x+pad, y+pad+th/2, 0, 0.35)
	}

	return dc.Image(), nil
}
