package utils

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
)

var (
	jsonBlockRegex = regexp.MustCompile("(?s)```json\\s*(.*?)\\s*```")
	anyBlockRegex  = regexp.MustCompile("(?s)```\\s*(.*?)\\s*```")
)

func isValidJSON(s string) bool {
	var js json.RawMessage
	return json.Unmarshal([]byte(s), &js) == nil
}

// ExtractJSON вытаскивает JSON из ответа модели: блок ```json, любой ``` блок,
// затем отрезок от первой { или [ до последней } или ].
// Возвращает пустую строку, если ничего похожего на JSON нет.
func ExtractJSON(rawText string) string {
	rawText = strings.TrimSpace(rawText)
	if isValidJSON(rawText) {
		return rawText
	}

	for _, re := range []*regexp.Regexp{jsonBlockRegex, anyBlockRegex} {
		if matches := re.FindStringSubmatch(rawText); len(matches) > 1 && isValidJSON(matches[1]) {
			return matches[1]
		}
	}

	firstBrace := strings.Index(rawText, "{")
	firstBracket := strings.Index(rawText, "[")
	startIdx, closer := firstBrace, "}"
	if firstBrace == -1 || (firstBracket != -1 && firstBracket < firstBrace) {
		startIdx, closer = firstBracket, "]"
	}
	if startIdx == -1 {
		return ""
	}
	endIdx := strings.LastIndex(rawText, closer)
	if endIdx > startIdx {
		if candidate := rawText[startIdx : endIdx+1]; isValidJSON(candidate) {
			return candidate
		}
	}
	return ""
}

// DecodeJSONOutput разбирает JSON из ответа модели в v.
func DecodeJSONOutput(rawText string, v any) error {
	extracted := ExtractJSON(rawText)
	if extracted == "" {
		return fmt.Errorf("no json found in model output: %q", StringShort(rawText, 120))
	}
	if err := json.Unmarshal([]byte(extracted), v); err != nil {
		return fmt.Errorf("decode model output: %w", err)
	}
	return nil
}

// StringShort обрезает строку до указанной максимальной длины,
// добавляя многоточие, если строка была обрезана.
func StringShort(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	if maxLen <= 3 {
		return "..."
	}
	return s[:maxLen-3] + "..."
}
