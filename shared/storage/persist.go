package storage

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
)

// ErrNoImage - у результата генерации нет ни URL, ни base64.
var ErrNoImage = errors.New("generated image has neither url nor b64 payload")

// PersistGenerated приводит результат генерации (base64 или внешний URL) к объекту в бакете.
func PersistGenerated(ctx context.Context, store ObjectStore, key, url, b64 string) (string, []byte, error) {
	var data []byte
	switch {
	case b64 != "":
		decoded, err := base64.StdEncoding.DecodeString(b64)
		if err != nil {
			return "", nil, fmt.Errorf("decode generated image: %w", err)
		}
		data = decoded
	case url != "":
		downloaded, err := store.Download(ctx, url)
		if err != nil {
			return "", nil, fmt.Errorf("download generated image: %w", err)
		}
		data = downloaded
	default:
		return "", nil, ErrNoImage
	}

	stored, err := store.Upload(ctx, key, data)
	if err != nil {
		return "", nil, fmt.Errorf("upload %s: %w", key, err)
	}
	return stored, data, nil
}
