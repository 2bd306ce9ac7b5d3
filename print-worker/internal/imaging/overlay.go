package imaging

import (
	"fmt"
	"image"
	"image/color"
	"strings"

	"github.com/fogleman/gg"
)

// Position - положение текста на иллюстрации.
type Position string

const (
	PositionTop    Position = "top"
	PositionMiddle Position = "middle"
	PositionBottom Position = "bottom"
)

// ParsePosition понимает ответы модели вида "Bottom." или "top third".
func ParsePosition(raw string) (Position, bool) {
	s := strings.ToLower(raw)
	for _, p := range []Position{PositionTop, PositionMiddle, PositionBottom} {
		if strings.Contains(s, string(p)) {
			return p, true
		}
	}
	return "", false
}

// TextStyle - параметры набора текста на странице.
type TextStyle struct {
	FontSize    float64 // pt
	LineSpacing float64
	DPI         int
	Margin      int // px
	Bold        bool
}

// OverlayText накладывает абзац на иллюстрацию поверх полупрозрачной плашки.
func OverlayText(page image.Image, text string, pos Position, style TextStyle) (image.Image, error) {
	dc := gg.NewContextForImage(page)
	if strings.TrimSpace(text) == "" {
		return dc.Image(), nil
	}
	face, err := Face(style.FontSize, style.DPI, style.Bold)
	if err != nil {
		return nil, err
	}
	dc.SetFontFace(face)

	w, h := float64(dc.Width()), float64(dc.Height())
	margin := float64(style.Margin)
	textWidth := w - 4*margin
	if textWidth <= 0 {
		return nil, fmt.Errorf("page %vx%v is too small for margin %v", w, h, margin)
	}
	lines := dc.WordWrap(text, textWidth)
	lineHeight := dc.FontHeight() * style.LineSpacing
	blockHeight := float64(len(lines)) * lineHeight
	bandHeight := blockHeight + 2*margin

	var top float64
	switch pos {
	case PositionTop:
		top = margin
	case PositionMiddle:
		top = (h - bandHeight) / 2
	default:
		top = h - bandHeight - margin
	}

	dc.SetRGBA(1, 1, 1, 0.78)
	dc.DrawRoundedRectangle(margin, top, w-2*margin, bandHeight, margin/2)
	dc.Fill()

	dc.SetColor(color.RGBA{R: 0x1a, G: 0x1a, B: 0x1a, A: 0xff})
	dc.DrawStringWrapped(text, w/2, top+margin, 0.5, 0, textWidth, style.LineSpacing, gg.AlignCenter)
	return dc.Image(), nil
}

// TextPage рисует белую страницу с текстом по центру (посвящение, промо).
func TextPage(width, height int, text string, style TextStyle) (image.Image, error) {
	face, err := Face(style.FontSize, style.DPI, style.Bold)
	if err != nil {
		return nil, err
	}
	dc := gg.NewContext(width, height)
	dc.SetColor(color.White)
	dc.Clear()
	dc.SetFontFace(face)
	dc.SetRGB(0.1, 0.1, 0.1)

	textWidth := float64(width) - 4*float64(style.Margin)
	dc.DrawStringWrapped(text, float64(width)/2, float64(height)/2, 0.5, 0.5, textWidth, style.LineSpacing, gg.AlignCenter)
	return dc.Image(), nil
}
