package models

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// Application-wide standard errors
var (
	// Common Resource/DB Errors
	ErrNotFound = errors.New("resource not found")
	ErrConflict = errors.New("resource already exists")

	// Intake
	ErrUnauthorized = errors.New("unauthorized")

	// Pipeline
	ErrBackwardTransition = errors.New("print status transition is not forward")
	ErrTransient          = errors.New("transient failure")
	// ErrHandoffAborted - handoff упал после принудительной записи upload_failed.
	ErrHandoffAborted = errors.New("handoff aborted")
	// ErrUnprintable - артефакт нельзя напечатать (битое изображение, пустая верстка).
	ErrUnprintable = errors.New("artifact cannot be printed")

	// General Request/Server Errors
	ErrInternalServer = errors.New("internal server error")
)

// ValidationError собирает ошибки валидации по полям запроса.
// Никогда не возвращается вместе с частичным результатом.
type ValidationError struct {
	FieldErrors map[string]string
}

func NewValidationError() *ValidationError {
	return &ValidationError{FieldErrors: make(map[string]string)}
}

func (e *ValidationError) Add(field, message string) {
	if _, exists := e.FieldErrors[field]; !exists {
		e.FieldErrors[field] = message
	}
}

func (e *ValidationError) Empty() bool {
	return len(e.FieldErrors) == 0
}

func (e *ValidationError) Error() string {
	fields := make([]string, 0, len(e.FieldErrors))
	for f := range e.FieldErrors {
		fields = append(fields, f)
	}
	sort.Strings(fields)
	return fmt.Sprintf("invalid request: %s", strings.Join(fields, ", "))
}

// IntegrityError означает, что обязательный артефакт предыдущей стадии отсутствует.
// Такая ошибка не ретраится: это баг целостности пайплайна.
type IntegrityError struct {
	Stage    string
	Artifact string
}

func (e *IntegrityError) Error() string {
	return fmt.Sprintf("pipeline integrity: stage %s requires %s", e.Stage, e.Artifact)
}

// NewIntegrityError создает ошибку целостности для стадии.
func NewIntegrityError(stage, artifact string) error {
	return &IntegrityError{Stage: stage, Artifact: artifact}
}

// IsTerminal сообщает, что ошибку бесполезно повторять через очередь.
func IsTerminal(err error) bool {
	if err == nil {
		return false
	}
	var integrity *IntegrityError
	if errors.As(err, &integrity) {
		return true
	}
	var validation *ValidationError
	if errors.As(err, &validation) {
		return true
	}
	return errors.Is(err, ErrBackwardTransition) || errors.Is(err, ErrNotFound) ||
		errors.Is(err, ErrHandoffAborted) || errors.Is(err, ErrUnprintable)
}
