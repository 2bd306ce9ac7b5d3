package stages

import (
	"fmt"
	"strings"

	"kcs-server/shared/models"
	"kcs-server/shared/pipeline"
)

const writerSystemPrompt = "You are a children's book author writing a personalized picture book. " +
	"Keep language age-appropriate and warm. Never include excluded topics."

// briefSummary - общий контекст заказа для всех текстовых стадий.
func briefSummary(sc *pipeline.StageContext) string {
	var b strings.Builder
	payload, err := sc.Brief.Payload()
	if err == nil {
		child := payload.Brief.Child
		fmt.Fprintf(&b, "Child: %s, age %d", child.Name, child.Age)
		if child.Gender != "" {
			fmt.Fprintf(&b, ", %s", child.Gender)
		}
		b.WriteString(".\n")
		for _, ch := range payload.Brief.Characters {
			fmt.Fprintf(&b, "Character: %s (%s).\n", ch.Name, ch.Relation)
		}
		if loc := payload.Brief.Location; loc != nil {
			fmt.Fprintf(&b, "Location: %s.\n", loc.Name)
		}
		if payload.Brief.Theme != "" {
			fmt.Fprintf(&b, "Theme: %s.\n", payload.Brief.Theme)
		}
	}
	fmt.Fprintf(&b, "Reading level: %s.\n", sc.Brief.ReadingLevel)
	if topics := sc.Brief.Constraints.ExcludedTopics; len(topics) > 0 {
		fmt.Fprintf(&b, "Excluded topics: %s.\n", strings.Join(topics, ", "))
	}
	for _, d := range sc.Brief.ImageDescriptors {
		fmt.Fprintf(&b, "Appearance (%s): %s\n", d.Role, d.Description)
	}
	return b.String()
}

// storyContext добавляет к брифу уже готовые артефакты истории.
func storyContext(sc *pipeline.StageContext) string {
	var b strings.Builder
	b.WriteString(briefSummary(sc))
	if sc.Story == nil {
		return b.String()
	}
	plan := sc.Story.AssetPlan
	if plan.Style != "" {
		fmt.Fprintf(&b, "Illustration style: %s\n", plan.Style)
	}
	if len(plan.FocusItems) > 0 {
		fmt.Fprintf(&b, "Focus items: %s\n", strings.Join(plan.FocusItems, ", "))
	}
	if p := sc.Story.EmotionalProfile; p != nil && *p != "" {
		fmt.Fprintf(&b, "Emotional profile: %s\n", *p)
	}
	return b.String()
}

func maxParagraphs(sc *pipeline.StageContext) int {
	if n := sc.Brief.Constraints.MaxPages; n > 0 && n < models.MaxInteriorPages {
		return n
	}
	return models.MaxInteriorPages
}
