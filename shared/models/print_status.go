package models

import "fmt"

// PrintStatus - машина состояний печати, отдельная от статуса заказа.
type PrintStatus string

const (
	PrintStatusNone              PrintStatus = ""
	PrintStatusCoverGenerated    PrintStatus = "cover_generated"
	PrintStatusInteriorGenerated PrintStatus = "interior_generated"
	PrintStatusCMYKConverted     PrintStatus = "cmyk_converted"
	PrintStatusAssembled         PrintStatus = "assembled"
	PrintStatusCompleted         PrintStatus = "completed"
	PrintStatusPartialUpload     PrintStatus = "partial_upload"
	PrintStatusUploadFailed      PrintStatus = "upload_failed"
)

var printStatusRank = map[PrintStatus]int{
	PrintStatusNone:              0,
	PrintStatusCoverGenerated:    1,
	PrintStatusInteriorGenerated: 2,
	PrintStatusCMYKConverted:     3,
	PrintStatusAssembled:         4,
	PrintStatusCompleted:         5,
	PrintStatusPartialUpload:     5,
	PrintStatusUploadFailed:      5,
}

// Rank возвращает позицию статуса; -1 для неизвестного значения.
func (s PrintStatus) Rank() int {
	r, ok := printStatusRank[s]
	if !ok {
		return -1
	}
	return r
}

// IsTerminal сообщает, что статус финальный.
func (s PrintStatus) IsTerminal() bool {
	return s.Rank() == printStatusRank[PrintStatusCompleted]
}

// Reached сообщает, что текущий статус не ниже target.
func (s PrintStatus) Reached(target PrintStatus) bool {
	return s.Rank() >= target.Rank() && target.Rank() >= 0
}

// ValidateTransition проверяет, что переход строго вперед.
// Повторная запись того же статуса допустима, переход между финальными - нет.
func ValidateTransition(from, to PrintStatus) error {
	fr, tr := from.Rank(), to.Rank()
	if fr < 0 || tr < 0 {
		return fmt.Errorf("%w: unknown status %q -> %q", ErrBackwardTransition, from, to)
	}
	if from == to {
		return nil
	}
	if tr <= fr {
		return fmt.Errorf("%w: %q -> %q", ErrBackwardTransition, from, to)
	}
	return nil
}

// PrintStatusPtr возвращает указатель на статус.
func PrintStatusPtr(s PrintStatus) *PrintStatus { return &s }
