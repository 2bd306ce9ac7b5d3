package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path"
	"strings"
	"time"

	gcs "cloud.google.com/go/storage"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"google.golang.org/api/option"
)

const maxDownloadBytes = 64 << 20

// ObjectStore - хранилище бинарных артефактов заказа (изображения, TIFF, PDF).
type ObjectStore interface {
	// Upload сохраняет объект и возвращает его публичный URL.
	Upload(ctx context.Context, key string, data []byte) (string, error)
	// Download читает объект по URL: свои объекты - через API бакета, чужие - по HTTP.
	Download(ctx context.Context, url string) ([]byte, error)
	PublicURL(key string) string
}

// Config - настройки бакета.
type Config struct {
	Bucket          string
	PublicBaseURL   string
	EmulatorHost    string
	CredentialsFile string
}

type gcsStore struct {
	client        *gcs.Client
	bucket        string
	publicBaseURL string
	httpClient    *http.Client
	logger        *zap.Logger
}

var _ ObjectStore = (*gcsStore)(nil)

// NewGCSStore создает клиента GCS. При заданном EmulatorHost работает без аутентификации.
func NewGCSStore(ctx context.Context, cfg Config, logger *zap.Logger) (ObjectStore, error) {
	if cfg.Bucket == "" {
		return nil, errors.New("storage: bucket name is required")
	}

	var opts []option.ClientOption
	emulator := strings.TrimRight(strings.TrimSpace(cfg.EmulatorHost), "/")
	if emulator != "" {
		_ = os.Setenv("STORAGE_EMULATOR_HOST", emulator)
		opts = append(opts, option.WithoutAuthentication())
	} else {
		opts = append(opts, option.WithScopes(gcs.ScopeReadWrite))
		if cfg.CredentialsFile != "" {
			opts = append(opts, option.WithCredentialsFile(cfg.CredentialsFile))
		}
	}

	client, err := gcs.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create storage client: %w", err)
	}

	publicBase := strings.TrimRight(cfg.PublicBaseURL, "/")
	if publicBase == "" {
		if emulator != "" {
			publicBase = emulator + "/" + cfg.Bucket
		} else {
			publicBase = "https://storage.googleapis.com/" + cfg.Bucket
		}
	}

	logger.Info("Object storage initialized",
		zap.String("bucket", cfg.Bucket),
		zap.String("public_base_url", publicBase),
		zap.Bool("emulator", emulator != ""),
	)

	return &gcsStore{
		client:        client,
		bucket:        cfg.Bucket,
		publicBaseURL: publicBase,
		httpClient:    &http.Client{Timeout: 2 * time.Minute},
		logger:        logger.Named("ObjectStore"),
	}, nil
}

func (s *gcsStore) Upload(ctx context.Context, key string, data []byte) (string, error) {
	key = strings.TrimLeft(key, "/")
	ctx, cancel := context.WithTimeout(ctx, 2*time.Minute)
	defer cancel()

	w := s.client.Bucket(s.bucket).Object(key).NewWriter(ctx)
	if ct := ContentTypeForKey(key); ct != "" {
		w.ContentType = ct
	}
	if _, err := io.Copy(w, bytes.NewReader(data)); err != nil {
		_ = w.Close()
		return "", fmt.Errorf("failed to write %s to GCS: %w", key, err)
	}
	if err := w.Close(); err != nil {
		return "", fmt.Errorf("failed to close GCS writer for %s: %w", key, err)
	}
	s.logger.Debug("Object uploaded", zap.String("key", key), zap.Int("bytes", len(data)))
	return s.PublicURL(key), nil
}

func (s *gcsStore) Download(ctx context.Context, url string) ([]byte, error) {
	if key, ok := s.keyFromURL(url); ok {
		ctx, cancel := context.WithTimeout(ctx, 2*time.Minute)
		defer cancel()
		r, err := s.client.Bucket(s.bucket).Object(key).NewReader(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to open GCS object %s: %w", key, err)
		}
		defer r.Close()
		data, err := io.ReadAll(io.LimitReader(r, maxDownloadBytes))
		if err != nil {
			return nil, fmt.Errorf("failed to read GCS object %s: %w", key, err)
		}
		return data, nil
	}
	return s.httpGet(ctx, url)
}

func (s *gcsStore) PublicURL(key string) string {
	return s.publicBaseURL + "/" + strings.TrimLeft(key, "/")
}

func (s *gcsStore) keyFromURL(url string) (string, bool) {
	prefix := s.publicBaseURL + "/"
	if !strings.HasPrefix(url, prefix) {
		return "", false
	}
	key := strings.TrimPrefix(url, prefix)
	if i := strings.Index(key, "?"); i >= 0 {
		key = key[:i]
	}
	return key, key != ""
}

func (s *gcsStore) httpGet(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build download request: %w", err)
	}
	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to download %s: %w", url, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("failed to download %s: status %d", url, resp.StatusCode)
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, maxDownloadBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", url, err)
	}
	return data, nil
}

// OrderKey строит ключ объекта заказа: orders/<orderId>/<parts...>.
func OrderKey(orderID uuid.UUID, parts ...string) string {
	return path.Join(append([]string{"orders", orderID.String()}, parts...)...)
}

// ContentTypeForKey определяет Content-Type по расширению.
func ContentTypeForKey(key string) string {
	s := strings.ToLower(strings.TrimSpace(key))
	if i := strings.Index(s, "?"); i >= 0 {
		s = s[:i]
	}
	switch {
	case strings.HasSuffix(s, ".png"):
		return "image/png"
	case strings.HasSuffix(s, ".jpg"), strings.HasSuffix(s, ".jpeg"):
		return "image/jpeg"
	case strings.HasSuffix(s, ".webp"):
		return "image/webp"
	case strings.HasSuffix(s, ".tif"), strings.HasSuffix(s, ".tiff"):
		return "image/tiff"
	case strings.HasSuffix(s, ".pdf"):
		return "application/pdf"
	case strings.HasSuffix(s, ".json"):
		return "application/json"
	default:
		return ""
	}
}
