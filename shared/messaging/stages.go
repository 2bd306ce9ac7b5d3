package messaging

import (
	"fmt"
	"strconv"
	"time"
)

// Stage - имя стадии пайплайна. Совпадает с именем очереди.
type Stage string

const (
	StageImageAnalysis Stage = "image-analysis"
	StageAssetPlan     Stage = "story.asset_plan"
	StageStyle         Stage = "story.style"
	StageFocus         Stage = "story.focus"
	StageProfile       Stage = "story.profile"
	StageOutline       Stage = "story.outline"
	StageDraft         Stage = "story.draft"
	StageRevise        Stage = "story.revise"
	StagePrompts       Stage = "story.prompts"
	StageAssets        Stage = "story.assets"
	StageAssetsRefine  Stage = "story.assets_refine"
	StagePackaging     Stage = "story.packaging"
	StagePolish        Stage = "story.polish"
	StageCover         Stage = "story.cover"
	StageInterior      Stage = "story.interior"
	StageCMYK          Stage = "story.cmyk"
	StageAssembly      Stage = "story.assembly"
	StageHandoff       Stage = "story.handoff"
)

// Chain - фиксированный граф стадий. Ветвлений нет.
var Chain = []Stage{
	StageImageAnalysis,
	StageAssetPlan,
	StageStyle,
	StageFocus,
	StageProfile,
	StageOutline,
	StageDraft,
	StageRevise,
	StagePrompts,
	StageAssets,
	StageAssetsRefine,
	StagePackaging,
	StagePolish,
	StageCover,
	StageInterior,
	StageCMYK,
	StageAssembly,
	StageHandoff,
}

var stageIndex = func() map[Stage]int {
	idx := make(map[Stage]int, len(Chain))
	for i, s := range Chain {
		idx[s] = i
	}
	return idx
}()

// ParseStage проверяет имя стадии.
func ParseStage(name string) (Stage, error) {
	s := Stage(name)
	if _, ok := stageIndex[s]; !ok {
		return "", fmt.Errorf("unknown stage %q", name)
	}
	return s, nil
}

// Next возвращает единственного преемника стадии; false для handoff.
func (s Stage) Next() (Stage, bool) {
	i, ok := stageIndex[s]
	if !ok || i == len(Chain)-1 {
		return "", false
	}
	return Chain[i+1], true
}

func (s Stage) String() string { return string(s) }

// QueueName - основная очередь стадии.
func (s Stage) QueueName() string { return string(s) }

// RetryQueueName - очередь отложенных повторов с задержкой delay.
// На каждую задержку своя очередь: TTL у всех сообщений в ней одинаковый,
// поэтому истекают они строго по порядку.
func (s Stage) RetryQueueName(delay time.Duration) string {
	return string(s) + ".retry." + strconv.FormatInt(delayMillis(delay), 10) + "ms"
}

// DeadLetterQueueName - очередь заданий, остановленных по fail-stop.
func (s Stage) DeadLetterQueueName() string { return string(s) + ".dlq" }
