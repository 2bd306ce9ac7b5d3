package models

import (
	"encoding/json"
	"fmt"
)

// PayloadVersion - поддерживаемая версия тела заказа.
const PayloadVersion = "2024-06"

// Возрастные группы чтения.
const (
	ReadingLevelToddler = "3-5"
	ReadingLevelEarly   = "6-8"
	ReadingLevelMiddle  = "9-12"
)

// Назначения загрузок.
const (
	UploadUsageChildPhoto          = "child_photo"
	UploadUsageSupportingCharacter = "supporting_character"
	UploadUsageLocation            = "location"
)

// OrderPayload - версионированное тело заказа партнера.
type OrderPayload struct {
	Version    string   `json:"version" validate:"required,eq=2024-06"`
	ProductSKU string   `json:"product_sku" validate:"required,max=64"`
	Customer   Customer `json:"customer" validate:"required"`
	Currency   string   `json:"currency" validate:"required,iso4217"`
	AllowEdits bool     `json:"allow_edits"`
	Brief      Brief    `json:"brief" validate:"required"`
	Uploads    []Upload `json:"uploads" validate:"omitempty,max=10,dive"`
}

type Customer struct {
	Email string `json:"email" validate:"required,email"`
	Name  string `json:"name" validate:"required,max=200"`
}

type Brief struct {
	Child        Child            `json:"child" validate:"required"`
	Characters   []BriefCharacter `json:"characters" validate:"omitempty,max=6,dive"`
	Location     *BriefLocation   `json:"location,omitempty" validate:"omitempty"`
	ReadingLevel string           `json:"reading_level,omitempty" validate:"omitempty,oneof=3-5 6-8 9-12"`
	Theme        string           `json:"theme,omitempty" validate:"omitempty,max=500"`
	Dedication   string           `json:"dedication,omitempty" validate:"omitempty,max=1000"`
	AvoidTopics  []string         `json:"avoid_topics,omitempty" validate:"omitempty,max=20,dive,required,max=100"`
}

type Child struct {
	Name        string `json:"name" validate:"required,max=100"`
	Age         int    `json:"age" validate:"required,min=1,max=14"`
	Gender      string `json:"gender,omitempty" validate:"omitempty,oneof=girl boy neutral"`
	Description string `json:"description,omitempty" validate:"omitempty,max=1000"`
}

type BriefCharacter struct {
	Name        string `json:"name" validate:"required,max=100"`
	Relation    string `json:"relation" validate:"required,max=100"`
	Description string `json:"description,omitempty" validate:"omitempty,max=1000"`
}

type BriefLocation struct {
	Name        string `json:"name" validate:"required,max=200"`
	Description string `json:"description,omitempty" validate:"omitempty,max=1000"`
}

// Upload - ссылка на файл, загруженный партнером заранее.
type Upload struct {
	AssetID  string `json:"asset_id" validate:"required,max=128"`
	URL      string `json:"url" validate:"required,url"`
	Usage    string `json:"usage" validate:"required,oneof=child_photo supporting_character location"`
	Filename string `json:"filename" validate:"required,max=255"`
}

// Role переводит назначение загрузки в роль ассета.
func (u Upload) Role() AssetRole {
	switch u.Usage {
	case UploadUsageChildPhoto:
		return AssetRoleChild
	case UploadUsageSupportingCharacter:
		return AssetRoleSupporting
	default:
		return AssetRoleLocation
	}
}

// DeriveReadingLevel берет явный уровень из брифа, иначе выводит его из возраста ребенка.
func DeriveReadingLevel(b Brief) string {
	if b.ReadingLevel != "" {
		return b.ReadingLevel
	}
	switch {
	case b.Child.Age <= 5:
		return ReadingLevelToddler
	case b.Child.Age <= 8:
		return ReadingLevelEarly
	default:
		return ReadingLevelMiddle
	}
}

// DeriveConstraints собирает ограничения контента из брифа.
func DeriveConstraints(b Brief) BriefConstraints {
	maxPages := 24
	if DeriveReadingLevel(b) == ReadingLevelToddler {
		maxPages = 16
	}
	topics := make([]string, 0, len(b.AvoidTopics))
	topics = append(topics, b.AvoidTopics...)
	return BriefConstraints{ExcludedTopics: topics, MaxPages: maxPages}
}

// Payload разбирает сохраненное тело заказа.
func (b *OrderBrief) Payload() (*OrderPayload, error) {
	var p OrderPayload
	if err := json.Unmarshal(b.RawPayload, &p); err != nil {
		return nil, fmt.Errorf("decode brief payload for order %s: %w", b.OrderID, err)
	}
	return &p, nil
}
