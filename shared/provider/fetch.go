package provider

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"
)

const maxImageBytes = 20 << 20

var imageHTTPClient = &http.Client{Timeout: 60 * time.Second}

// imageBytes возвращает содержимое изображения, скачивая его по URL при необходимости.
func imageBytes(ctx context.Context, img Image) ([]byte, string, error) {
	if len(img.Data) > 0 {
		mime := img.MIMEType
		if mime == "" {
			mime = http.DetectContentType(img.Data)
		}
		return img.Data, mime, nil
	}
	if img.URL == "" {
		return nil, "", fmt.Errorf("image has neither data nor url")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, img.URL, nil)
	if err != nil {
		return nil, "", fmt.Errorf("failed to build image request: %w", err)
	}
	resp, err := imageHTTPClient.Do(req)
	if err != nil {
		return nil, "", fmt.Errorf("failed to download image %s: %w", img.URL, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, "", fmt.Errorf("failed to download image %s: status %d", img.URL, resp.StatusCode)
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, maxImageBytes))
	if err != nil {
		return nil, "", fmt.Errorf("failed to read image %s: %w", img.URL, err)
	}
	mime := resp.Header.Get("Content-Type")
	if mime == "" {
		mime = http.DetectContentType(data)
	}
	return data, mime, nil
}
