package config

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Layout - параметры верстки для одного уровня чтения.
type Layout struct {
	FontSize     float64 `yaml:"font_size"`
	LineSpacing  float64 `yaml:"line_spacing"`
	MarginMM     float64 `yaml:"margin_mm"`
	OverlayAI    *bool   `yaml:"overlay_ai"`
	PageWidthMM  float64 `yaml:"page_width_mm"`
	PageHeightMM float64 `yaml:"page_height_mm"`
	DPI          int     `yaml:"dpi"`
	Bold         bool    `yaml:"bold"`
}

// UseOverlayAI сообщает, выбирать ли позицию текста vision-запросом.
func (l Layout) UseOverlayAI() bool {
	return l.OverlayAI != nil && *l.OverlayAI
}

// PagePixels возвращает размер страницы в пикселях при заданном DPI.
func (l Layout) PagePixels() (int, int) {
	return mmToPx(l.PageWidthMM, l.DPI), mmToPx(l.PageHeightMM, l.DPI)
}

// MarginPixels возвращает поле страницы в пикселях.
func (l Layout) MarginPixels() int {
	return mmToPx(l.MarginMM, l.DPI)
}

func mmToPx(mm float64, dpi int) int {
	return int(mm / 25.4 * float64(dpi))
}

// Layouts - содержимое PRINT_CONFIG_FILE: уровень чтения -> верстка.
type Layouts struct {
	Default Layout            `yaml:"default"`
	Levels  map[string]Layout `yaml:"reading_levels"`
}

// For возвращает верстку для уровня; незаданные поля берутся из default.
func (l Layouts) For(readingLevel string) Layout {
	layout, ok := l.Levels[readingLevel]
	if !ok {
		return l.Default
	}
	if layout.FontSize <= 0 {
		layout.FontSize = l.Default.FontSize
	}
	if layout.LineSpacing <= 0 {
		layout.LineSpacing = l.Default.LineSpacing
	}
	if layout.MarginMM <= 0 {
		layout.MarginMM = l.Default.MarginMM
	}
	if layout.PageWidthMM <= 0 || layout.PageHeightMM <= 0 {
		layout.PageWidthMM, layout.PageHeightMM = l.Default.PageWidthMM, l.Default.PageHeightMM
	}
	if layout.DPI <= 0 {
		layout.DPI = l.Default.DPI
	}
	if layout.OverlayAI == nil {
		layout.OverlayAI = l.Default.OverlayAI
	}
	return layout
}

// LoadLayouts читает YAML с версткой.
func LoadLayouts(path string) (Layouts, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Layouts{}, fmt.Errorf("failed to read print config %s: %w", path, err)
	}
	return ParseLayouts(data)
}

// ParseLayouts разбирает YAML; секция default обязательна.
func ParseLayouts(data []byte) (Layouts, error) {
	var layouts Layouts
	if err := yaml.Unmarshal(data, &layouts); err != nil {
		return Layouts{}, fmt.Errorf("failed to parse print config: %w", err)
	}
	d := layouts.Default
	if d.FontSize <= 0 || d.PageWidthMM <= 0 || d.PageHeightMM <= 0 || d.DPI <= 0 {
		return Layouts{}, errors.New("print config: default layout must set font_size, page size and dpi")
	}
	if d.LineSpacing <= 0 {
		layouts.Default.LineSpacing = 1.4
	}
	return layouts, nil
}
