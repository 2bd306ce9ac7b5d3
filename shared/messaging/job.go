package messaging

import (
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
)

// StageJob - минимальный payload задания. Все состояние перечитывается из базы.
type StageJob struct {
	OrderID uuid.UUID `json:"orderId"`
}

// DecodeStageJob разбирает тело сообщения. Лишние поля игнорируются.
func DecodeStageJob(body []byte) (StageJob, error) {
	var job StageJob
	if err := json.Unmarshal(body, &job); err != nil {
		return StageJob{}, fmt.Errorf("invalid stage job payload: %w", err)
	}
	if job.OrderID == uuid.Nil {
		return StageJob{}, fmt.Errorf("invalid stage job payload: orderId is empty")
	}
	return job, nil
}
