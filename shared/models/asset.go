package models

import (
	"time"

	"github.com/google/uuid"
)

type AssetType string

const (
	AssetTypeImage AssetType = "image"
	AssetTypePDF   AssetType = "pdf"
)

type AssetRole string

const (
	AssetRoleChild              AssetRole = "child"
	AssetRoleSupporting         AssetRole = "supporting"
	AssetRoleLocation           AssetRole = "location"
	AssetRoleMainCharacter      AssetRole = "main-character"
	AssetRoleSecondaryCharacter AssetRole = "secondary-character"
	AssetRoleCover              AssetRole = "cover"
	AssetRoleInterior           AssetRole = "interior"
	AssetRoleBook               AssetRole = "book"
)

// AssetMetadata - свободные метаданные ассета.
type AssetMetadata struct {
	Role       AssetRole `json:"role"`
	Ordinal    int       `json:"ordinal"`
	Provenance string    `json:"provenance"` // upload | provider name
	Stage      string    `json:"stage,omitempty"`
	Filename   string    `json:"filename,omitempty"`
	ExternalID string    `json:"external_id,omitempty"`
}

// Asset - загруженный или сгенерированный файл. Не изменяется после создания:
// исправления создают новый ассет.
type Asset struct {
	ID        uuid.UUID     `db:"id" json:"id"`
	OrderID   uuid.UUID     `db:"order_id" json:"order_id"`
	Type      AssetType     `db:"type" json:"type"`
	URL       string        `db:"url" json:"url"`
	Metadata  AssetMetadata `db:"metadata" json:"metadata"`
	CreatedAt time.Time     `db:"created_at" json:"created_at"`
}

// NewAsset заполняет идентификатор и время создания.
func NewAsset(orderID uuid.UUID, typ AssetType, url string, meta AssetMetadata) *Asset {
	return &Asset{
		ID:        uuid.New(),
		OrderID:   orderID,
		Type:      typ,
		URL:       url,
		Metadata:  meta,
		CreatedAt: time.Now().UTC(),
	}
}
