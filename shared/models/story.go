package models

import (
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Story - состояние генерации для заказа (1:1 с Order).
type Story struct {
	OrderID          uuid.UUID     `db:"order_id" json:"order_id"`
	EmotionalProfile *string       `db:"emotional_profile" json:"emotional_profile,omitempty"`
	Outline          *string       `db:"outline" json:"outline,omitempty"`
	DraftText        *string       `db:"draft_text" json:"draft_text,omitempty"`
	RevisedText      *string       `db:"revised_text" json:"revised_text,omitempty"`
	FinalText        *string       `db:"final_text" json:"final_text,omitempty"`
	AssetPlan        AssetPlan     `db:"asset_plan" json:"asset_plan"`
	PrintStatus      *PrintStatus  `db:"print_status" json:"print_status,omitempty"`
	PrintMetadata    PrintMetadata `db:"print_metadata" json:"print_metadata"`
	UpdatedAt        time.Time     `db:"updated_at" json:"updated_at"`
}

// CurrentPrintStatus возвращает статус печати или пустую строку, если печать не начиналась.
func (s *Story) CurrentPrintStatus() PrintStatus {
	if s == nil || s.PrintStatus == nil {
		return PrintStatusNone
	}
	return *s.PrintStatus
}

// Character - персонаж книги в плане ассетов.
type Character struct {
	Name        string    `json:"name"`
	Role        AssetRole `json:"role"`
	Description string    `json:"description"`
}

// Paragraph - абзац истории и промпт для иллюстрации.
type Paragraph struct {
	Index       int    `json:"index"`
	Text        string `json:"text"`
	ImagePrompt string `json:"image_prompt,omitempty"`
}

// GenerationState - статусы генерации ассетов по ключу персонажа.
type GenerationState struct {
	Status   map[string]string `json:"status,omitempty"`
	ID       map[string]string `json:"id,omitempty"`
	Provider map[string]string `json:"provider,omitempty"`
}

// Packaging - метаданные обложки.
type Packaging struct {
	Title    string `json:"title"`
	Subtitle string `json:"subtitle,omitempty"`
	Blurb    string `json:"blurb,omitempty"`
}

// AssetPlan - типизированное представление JSON-поля asset_plan.
// Каждая стадия владеет своими секциями.
type AssetPlan struct {
	Characters     []Character       `json:"characters,omitempty"`
	Style          string            `json:"style,omitempty"`
	FocusItems     []string          `json:"focus_items,omitempty"`
	Paragraphs     []Paragraph       `json:"paragraphs,omitempty"`
	Generation     *GenerationState  `json:"generation,omitempty"`
	GeneratedLinks map[string]string `json:"generated_links,omitempty"`
	Packaging      *Packaging        `json:"packaging,omitempty"`
}

// AssetPlanPatch содержит только секции, которые пишет стадия.
// Хранилище мержит верхнеуровневые ключи, не трогая чужие секции.
type AssetPlanPatch struct {
	Characters     []Character       `json:"characters,omitempty"`
	Style          *string           `json:"style,omitempty"`
	FocusItems     []string          `json:"focus_items,omitempty"`
	Paragraphs     []Paragraph       `json:"paragraphs,omitempty"`
	Generation     *GenerationState  `json:"generation,omitempty"`
	GeneratedLinks map[string]string `json:"generated_links,omitempty"`
	Packaging      *Packaging        `json:"packaging,omitempty"`
}

// PrintMetadata - URL-ы артефактов печати.
type PrintMetadata struct {
	FrontCoverURL     string   `json:"front_cover_url,omitempty"`
	BackCoverURL      string   `json:"back_cover_url,omitempty"`
	FrontCoverCMYKURL string   `json:"front_cover_cmyk_url,omitempty"`
	BackCoverCMYKURL  string   `json:"back_cover_cmyk_url,omitempty"`
	CoverSpreadURL    string   `json:"cover_spread_url,omitempty"`
	CoverProvider     string   `json:"cover_provider,omitempty"`
	EstimatedPages    int      `json:"estimated_pages,omitempty"`
	InteriorURLs      []string `json:"interior_urls,omitempty"`
	InteriorCMYKURLs  []string `json:"interior_cmyk_urls,omitempty"`
	ICCProfile        string   `json:"icc_profile,omitempty"`
	PDFURL            string   `json:"pdf_url,omitempty"`
	PageCount         int      `json:"page_count,omitempty"`
	DriveFileIDs      []string `json:"drive_file_ids,omitempty"`
	DeliveredAt       string   `json:"delivered_at,omitempty"`
}

// PrintMetadataPatch - частичное обновление print_metadata.
type PrintMetadataPatch struct {
	FrontCoverURL     *string  `json:"front_cover_url,omitempty"`
	BackCoverURL      *string  `json:"back_cover_url,omitempty"`
	FrontCoverCMYKURL *string  `json:"front_cover_cmyk_url,omitempty"`
	BackCoverCMYKURL  *string  `json:"back_cover_cmyk_url,omitempty"`
	CoverSpreadURL    *string  `json:"cover_spread_url,omitempty"`
	CoverProvider     *string  `json:"cover_provider,omitempty"`
	EstimatedPages    *int     `json:"estimated_pages,omitempty"`
	InteriorURLs      []string `json:"interior_urls,omitempty"`
	InteriorCMYKURLs  []string `json:"interior_cmyk_urls,omitempty"`
	ICCProfile        *string  `json:"icc_profile,omitempty"`
	PDFURL            *string  `json:"pdf_url,omitempty"`
	PageCount         *int     `json:"page_count,omitempty"`
	DriveFileIDs      []string `json:"drive_file_ids,omitempty"`
	DeliveredAt       *string  `json:"delivered_at,omitempty"`
}

// StoryUpdate - типизированное частичное обновление истории.
// nil-поля не изменяются.
type StoryUpdate struct {
	EmotionalProfile *string
	Outline          *string
	DraftText        *string
	RevisedText      *string
	FinalText        *string
	AssetPlan        *AssetPlanPatch
	PrintStatus      *PrintStatus
	PrintMetadata    *PrintMetadataPatch
}

// IsEmpty сообщает, что обновление ничего не меняет.
func (u *StoryUpdate) IsEmpty() bool {
	return u == nil || (u.EmotionalProfile == nil && u.Outline == nil && u.DraftText == nil &&
		u.RevisedText == nil && u.FinalText == nil && u.AssetPlan == nil &&
		u.PrintStatus == nil && u.PrintMetadata == nil)
}

// StoryVersion - неизменяемый снимок текста на именованной стадии.
type StoryVersion struct {
	ID        uuid.UUID `db:"id" json:"id"`
	OrderID   uuid.UUID `db:"order_id" json:"order_id"`
	Label     string    `db:"label" json:"label"`
	Text      string    `db:"text" json:"text"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

const (
	VersionDraft    = "draft_v1"
	VersionRevised  = "revised"
	VersionPolished = "polished"
)

// StringPtr возвращает указатель на строку.
func StringPtr(s string) *string { return &s }

// IntPtr возвращает указатель на int.
func IntPtr(i int) *int { return &i }

// MaxInteriorPages - верхняя граница страниц внутреннего блока (одна страница на абзац).
const MaxInteriorPages = 24

var paragraphBreak = regexp.MustCompile(`\n\s*\n`)

// SplitParagraphs делит текст на абзацы по пустым строкам. Если абзацев больше limit,
// соседние абзацы склеиваются равными группами.
func SplitParagraphs(text string, limit int) []string {
	var paragraphs []string
	for _, p := range paragraphBreak.Split(strings.TrimSpace(text), -1) {
		if p = strings.TrimSpace(p); p != "" {
			paragraphs = append(paragraphs, p)
		}
	}
	if limit <= 0 || len(paragraphs) <= limit {
		return paragraphs
	}

	group := (len(paragraphs) + limit - 1) / limit
	merged := make([]string, 0, limit)
	for i := 0; i < len(paragraphs); i += group {
		end := i + group
		if end > len(paragraphs) {
			end = len(paragraphs)
		}
		merged = append(merged, strings.Join(paragraphs[i:end], "\n\n"))
	}
	return merged
}
