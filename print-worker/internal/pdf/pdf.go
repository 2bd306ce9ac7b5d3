// Package pdf собирает печатный PDF из готовых страниц и проверяет результат.
package pdf

import (
	"bytes"
	"errors"
	"fmt"
	"time"

	"github.com/go-pdf/fpdf"
	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
)

func init() {
	// pdfcpu не должен создавать каталог конфигурации в $HOME воркера
	api.DisableConfigDir()
}

// Options - параметры документа. Размеры в миллиметрах.
type Options struct {
	WidthMM    float64
	HeightMM   float64
	Title      string
	Author     string
	ICCProfile string
	CreatedAt  time.Time
}

// Build кладет каждую JPEG-страницу на отдельный лист во весь формат.
func Build(pages [][]byte, opts Options) ([]byte, error) {
	if len(pages) == 0 {
		return nil, errors.New("pdf: no pages")
	}
	if opts.WidthMM <= 0 || opts.HeightMM <= 0 {
		return nil, fmt.Errorf("pdf: invalid page size %vx%v mm", opts.WidthMM, opts.HeightMM)
	}

	doc := fpdf.NewCustom(&fpdf.InitType{
		OrientationStr: "P",
		UnitStr:        "mm",
		Size:           fpdf.SizeType{Wd: opts.WidthMM, Ht: opts.HeightMM},
	})
	doc.SetMargins(0, 0, 0)
	doc.SetAutoPageBreak(false, 0)
	doc.SetTitle(opts.Title, true)
	if opts.Author != "" {
		doc.SetAuthor(opts.Author, true)
	}
	doc.SetCreator("kcs print-worker", false)
	if opts.ICCProfile != "" {
		doc.SetSubject("Output intent: "+opts.ICCProfile, false)
		doc.SetKeywords("icc:"+opts.ICCProfile, false)
	}
	if !opts.CreatedAt.IsZero() {
		doc.SetCreationDate(opts.CreatedAt)
	}

	imgOpts := fpdf.ImageOptions{ImageType: "JPG"}
	for i, page := range pages {
		name := fmt.Sprintf("page-%03d", i+1)
		doc.RegisterImageOptionsReader(name, imgOpts, bytes.NewReader(page))
		doc.AddPage()
		doc.ImageOptions(name, 0, 0, opts.WidthMM, opts.HeightMM, false, imgOpts, 0, "")
		if err := doc.Error(); err != nil {
			return nil, fmt.Errorf("pdf: page %d: %w", i+1, err)
		}
	}

	var buf bytes.Buffer
	if err := doc.Output(&buf); err != nil {
		return nil, fmt.Errorf("pdf: output: %w", err)
	}
	return buf.Bytes(), nil
}

// PageCount читает документ через pdfcpu и возвращает число страниц.
func PageCount(data []byte) (int, error) {
	ctx, err := api.ReadContext(bytes.NewReader(data), model.NewDefaultConfiguration())
	if err != nil {
		return 0, fmt.Errorf("pdf: read context: %w", err)
	}
	return ctx.PageCount, nil
}
