package stages

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/jpeg"
	_ "image/png"

	xdraw "golang.org/x/image/draw"
	_ "golang.org/x/image/webp"

	"kcs-server/shared/provider"
	"kcs-server/shared/storage"
)

// FaceCropper достает крупный план лица из фотографии.
type FaceCropper interface {
	Crop(ctx context.Context, imageURL string) (provider.Image, error)
}

// PortraitCropper вырезает квадрат из верхней центральной части кадра,
// где на портретных фото обычно находится лицо.
type PortraitCropper struct {
	store storage.ObjectStore
	size  int
}

var _ FaceCropper = (*PortraitCropper)(nil)

func NewPortraitCropper(store storage.ObjectStore, size int) *PortraitCropper {
	if size <= 0 {
		size = 512
	}
	return &PortraitCropper{store: store, size: size}
}

func (c *PortraitCropper) Crop(ctx context.Context, imageURL string) (provider.Image, error) {
	data, err := c.store.Download(ctx, imageURL)
	if err != nil {
		return provider.Image{}, fmt.Errorf("download photo: %w", err)
	}
	src, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return provider.Image{}, fmt.Errorf("decode photo: %w", err)
	}

	dst := image.NewRGBA(image.Rect(0, 0, c.size, c.size))
	xdraw.CatmullRom.Scale(dst, dst.Bounds(), src, PortraitRect(src.Bounds()), xdraw.Over, nil)

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, dst, &jpeg.Options{Quality: 90}); err != nil {
		return provider.Image{}, fmt.Errorf("encode crop: %w", err)
	}
	return provider.Image{Data: buf.Bytes(), MIMEType: "image/jpeg"}, nil
}

// PortraitRect - квадрат со стороной 60% меньшей стороны, по центру по горизонтали
// и в верхней трети по вертикали.
func PortraitRect(b image.Rectangle) image.Rectangle {
	side := b.Dx()
	if b.Dy() < side {
		side = b.Dy()
	}
	side = side * 3 / 5
	x0 := b.Min.X + (b.Dx()-side)/2
	y0 := b.Min.Y + (b.Dy()-side)/4
	return image.Rect(x0, y0, x0+side, y0+side)
}
