package stages

import (
	"fmt"
	"strings"
	"time"

	"kcs-server/shared/messaging"
	"kcs-server/shared/models"
	"kcs-server/shared/pipeline"
	"kcs-server/shared/provider"
	"kcs-server/shared/utils"
)

var errEmptyOutput = fmt.Errorf("%w: model returned blank text", models.ErrTransient)

func textOutput(resp provider.Response) (string, error) {
	out := strings.TrimSpace(resp.Output)
	if out == "" {
		return "", errEmptyOutput
	}
	return out, nil
}

func newAssetPlanStage(caller provider.Caller) pipeline.Stage {
	return &textStage{
		name:   messaging.StageAssetPlan,
		caller: caller,
		request: func(sc *pipeline.StageContext) provider.Request {
			return provider.Request{
				System: writerSystemPrompt,
				Prompt: briefSummary(sc) + "\nList the book's characters as JSON: " +
					`{"characters":[{"name":"...","role":"main-character|secondary-character","description":"..."}]}. ` +
					"The child is the only main-character.",
				JSON: true,
			}
		},
		apply: func(sc *pipeline.StageContext, resp provider.Response) (*pipeline.Result, error) {
			var out struct {
				Characters []models.Character `json:"characters"`
			}
			if err := utils.DecodeJSONOutput(resp.Output, &out); err != nil {
				return nil, fmt.Errorf("%w: %v", models.ErrTransient, err)
			}
			if len(out.Characters) == 0 {
				return nil, fmt.Errorf("%w: no characters in plan", models.ErrTransient)
			}
			return &pipeline.Result{
				StoryUpdate:  &models.StoryUpdate{AssetPlan: &models.AssetPlanPatch{Characters: out.Characters}},
				EventPayload: map[string]any{"characters": len(out.Characters)},
			}, nil
		},
	}
}

func newStyleStage(caller provider.Caller) pipeline.Stage {
	return &textStage{
		name:     messaging.StageStyle,
		caller:   caller,
		requires: requirePlanCharacters,
		request: func(sc *pipeline.StageContext) provider.Request {
			return provider.Request{
				System: writerSystemPrompt,
				Prompt: storyContext(sc) + "\nDescribe one consistent illustration style for the whole book in one sentence.",
			}
		},
		apply: func(sc *pipeline.StageContext, resp provider.Response) (*pipeline.Result, error) {
			style, err := textOutput(resp)
			if err != nil {
				return nil, err
			}
			return &pipeline.Result{
				StoryUpdate: &models.StoryUpdate{AssetPlan: &models.AssetPlanPatch{Style: &style}},
			}, nil
		},
	}
}

func newFocusStage(caller provider.Caller) pipeline.Stage {
	return &textStage{
		name:     messaging.StageFocus,
		caller:   caller,
		requires: requirePlanCharacters,
		request: func(sc *pipeline.StageContext) provider.Request {
			return provider.Request{
				System: writerSystemPrompt,
				Prompt: storyContext(sc) + "\nPick 3 to 5 objects or places the story should feature. " +
					`Answer as JSON: {"focus_items":["..."]}.`,
				JSON: true,
			}
		},
		apply: func(sc *pipeline.StageContext, resp provider.Response) (*pipeline.Result, error) {
			var out struct {
				FocusItems []string `json:"focus_items"`
			}
			if err := utils.DecodeJSONOutput(resp.Output, &out); err != nil {
				return nil, fmt.Errorf("%w: %v", models.ErrTransient, err)
			}
			return &pipeline.Result{
				StoryUpdate: &models.StoryUpdate{AssetPlan: &models.AssetPlanPatch{FocusItems: out.FocusItems}},
			}, nil
		},
	}
}

func newProfileStage(caller provider.Caller) pipeline.Stage {
	return &textStage{
		name:     messaging.StageProfile,
		caller:   caller,
		requires: pipeline.RequireStory,
		request: func(sc *pipeline.StageContext) provider.Request {
			return provider.Request{
				System: writerSystemPrompt,
				Prompt: storyContext(sc) + "\nWrite a short emotional profile of the child: what delights, comforts and motivates them.",
			}
		},
		apply: func(sc *pipeline.StageContext, resp provider.Response) (*pipeline.Result, error) {
			profile, err := textOutput(resp)
			if err != nil {
				return nil, err
			}
			return &pipeline.Result{StoryUpdate: &models.StoryUpdate{EmotionalProfile: &profile}}, nil
		},
	}
}

func newOutlineStage(caller provider.Caller) pipeline.Stage {
	return &textStage{
		name:   messaging.StageOutline,
		caller: caller,
		requires: func(sc *pipeline.StageContext) error {
			return pipeline.RequireText(sc, "emotional profile", storyField(sc, func(s *models.Story) *string { return s.EmotionalProfile }))
		},
		request: func(sc *pipeline.StageContext) provider.Request {
			return provider.Request{
				System: writerSystemPrompt,
				Prompt: storyContext(sc) + fmt.Sprintf("\nWrite a numbered outline of at most %d story beats.", maxParagraphs(sc)),
			}
		},
		apply: func(sc *pipeline.StageContext, resp provider.Response) (*pipeline.Result, error) {
			outline, err := textOutput(resp)
			if err != nil {
				return nil, err
			}
			return &pipeline.Result{StoryUpdate: &models.StoryUpdate{Outline: &outline}}, nil
		},
	}
}

func newDraftStage(caller provider.Caller) pipeline.Stage {
	return &textStage{
		name:   messaging.StageDraft,
		caller: caller,
		requires: func(sc *pipeline.StageContext) error {
			return pipeline.RequireText(sc, "outline", storyField(sc, func(s *models.Story) *string { return s.Outline }))
		},
		request: func(sc *pipeline.StageContext) provider.Request {
			return provider.Request{
				System: writerSystemPrompt,
				Prompt: storyContext(sc) + "\nOutline:\n" + *sc.Story.Outline +
					fmt.Sprintf("\n\nWrite the story. One paragraph per beat, at most %d paragraphs, separated by blank lines.", maxParagraphs(sc)),
				MaxTokens: 4000,
			}
		},
		apply: func(sc *pipeline.StageContext, resp provider.Response) (*pipeline.Result, error) {
			draft, err := textOutput(resp)
			if err != nil {
				return nil, err
			}
			return &pipeline.Result{
				StoryUpdate: &models.StoryUpdate{DraftText: &draft},
				Version:     newVersion(sc, models.VersionDraft, draft),
			}, nil
		},
	}
}

func newReviseStage(caller provider.Caller) pipeline.Stage {
	return &textStage{
		name:   messaging.StageRevise,
		caller: caller,
		requires: func(sc *pipeline.StageContext) error {
			return pipeline.RequireText(sc, "draft text", storyField(sc, func(s *models.Story) *string { return s.DraftText }))
		},
		request: func(sc *pipeline.StageContext) provider.Request {
			return provider.Request{
				System: writerSystemPrompt,
				Prompt: storyContext(sc) + "\nRevise this draft for rhythm, clarity and reading level. " +
					"Keep paragraph breaks.\n\n" + *sc.Story.DraftText,
				MaxTokens: 4000,
			}
		},
		apply: func(sc *pipeline.StageContext, resp provider.Response) (*pipeline.Result, error) {
			revised, err := textOutput(resp)
			if err != nil {
				return nil, err
			}
			return &pipeline.Result{
				StoryUpdate: &models.StoryUpdate{RevisedText: &revised},
				Version:     newVersion(sc, models.VersionRevised, revised),
			}, nil
		},
	}
}

func newPromptsStage(caller provider.Caller) pipeline.Stage {
	return &textStage{
		name:   messaging.StagePrompts,
		caller: caller,
		requires: func(sc *pipeline.StageContext) error {
			return pipeline.RequireText(sc, "revised text", storyField(sc, func(s *models.Story) *string { return s.RevisedText }))
		},
		request: func(sc *pipeline.StageContext) provider.Request {
			paragraphs := models.SplitParagraphs(*sc.Story.RevisedText, maxParagraphs(sc))
			var b strings.Builder
			for i, p := range paragraphs {
				fmt.Fprintf(&b, "%d. %s\n", i, p)
			}
			return provider.Request{
				System: writerSystemPrompt,
				Prompt: storyContext(sc) + "\nFor each numbered paragraph write one illustration prompt. " +
					`Answer as JSON: {"paragraphs":[{"index":0,"image_prompt":"..."}]}.` + "\n\n" + b.String(),
				JSON:      true,
				MaxTokens: 4000,
			}
		},
		apply: func(sc *pipeline.StageContext, resp provider.Response) (*pipeline.Result, error) {
			var out struct {
				Paragraphs []models.Paragraph `json:"paragraphs"`
			}
			if err := utils.DecodeJSONOutput(resp.Output, &out); err != nil {
				return nil, fmt.Errorf("%w: %v", models.ErrTransient, err)
			}
			paragraphs := models.SplitParagraphs(*sc.Story.RevisedText, maxParagraphs(sc))
			prompts := make(map[int]string, len(out.Paragraphs))
			for _, p := range out.Paragraphs {
				prompts[p.Index] = p.ImagePrompt
			}
			planned := make([]models.Paragraph, len(paragraphs))
			for i, text := range paragraphs {
				planned[i] = models.Paragraph{Index: i, Text: text, ImagePrompt: prompts[i]}
			}
			return &pipeline.Result{
				StoryUpdate:  &models.StoryUpdate{AssetPlan: &models.AssetPlanPatch{Paragraphs: planned}},
				EventPayload: map[string]any{"paragraphs": len(planned)},
			}, nil
		},
	}
}

func newPackagingStage(caller provider.Caller) pipeline.Stage {
	return &textStage{
		name:   messaging.StagePackaging,
		caller: caller,
		requires: func(sc *pipeline.StageContext) error {
			return pipeline.RequireText(sc, "revised text", storyField(sc, func(s *models.Story) *string { return s.RevisedText }))
		},
		request: func(sc *pipeline.StageContext) provider.Request {
			return provider.Request{
				System: writerSystemPrompt,
				Prompt: storyContext(sc) + "\nStory:\n" + *sc.Story.RevisedText +
					"\n\nWrite the cover copy as JSON: " + `{"title":"...","subtitle":"...","blurb":"..."}.`,
				JSON: true,
			}
		},
		apply: func(sc *pipeline.StageContext, resp provider.Response) (*pipeline.Result, error) {
			var packaging models.Packaging
			if err := utils.DecodeJSONOutput(resp.Output, &packaging); err != nil {
				return nil, fmt.Errorf("%w: %v", models.ErrTransient, err)
			}
			if strings.TrimSpace(packaging.Title) == "" {
				return nil, fmt.Errorf("%w: packaging without title", models.ErrTransient)
			}
			return &pipeline.Result{
				StoryUpdate: &models.StoryUpdate{AssetPlan: &models.AssetPlanPatch{Packaging: &packaging}},
			}, nil
		},
	}
}

func newPolishStage(caller provider.Caller) pipeline.Stage {
	return &textStage{
		name:   messaging.StagePolish,
		caller: caller,
		requires: func(sc *pipeline.StageContext) error {
			return pipeline.RequireText(sc, "revised text", storyField(sc, func(s *models.Story) *string { return s.RevisedText }))
		},
		request: func(sc *pipeline.StageContext) provider.Request {
			return provider.Request{
				System: writerSystemPrompt,
				Prompt: "Proofread this children's story. Fix typos and punctuation only. " +
					"Keep every paragraph break.\n\n" + *sc.Story.RevisedText,
				MaxTokens: 4000,
			}
		},
		apply: func(sc *pipeline.StageContext, resp provider.Response) (*pipeline.Result, error) {
			final, err := textOutput(resp)
			if err != nil {
				return nil, err
			}
			return &pipeline.Result{
				StoryUpdate: &models.StoryUpdate{FinalText: &final},
				Version:     newVersion(sc, models.VersionPolished, final),
			}, nil
		},
	}
}

func requirePlanCharacters(sc *pipeline.StageContext) error {
	if err := pipeline.RequireStory(sc); err != nil {
		return err
	}
	if len(sc.Story.AssetPlan.Characters) == 0 {
		return models.NewIntegrityError(sc.Stage.String(), "asset plan characters")
	}
	return nil
}

func storyField(sc *pipeline.StageContext, get func(*models.Story) *string) *string {
	if sc.Story == nil {
		return nil
	}
	return get(sc.Story)
}

func newVersion(sc *pipeline.StageContext, label, text string) *models.StoryVersion {
	return &models.StoryVersion{
		OrderID:   sc.Order.ID,
		Label:     label,
		Text:      text,
		CreatedAt: time.Now().UTC(),
	}
}
