package service

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"kcs-server/shared/models"
)

// newValidator возвращает валидатор, который называет поля по json-тегам.
func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// decodePayload строго разбирает тело заказа и собирает все нарушения полей.
// Неизвестные поля отклоняются.
func decodePayload(v *validator.Validate, body []byte) (*models.OrderPayload, error) {
	verr := models.NewValidationError()

	dec := json.NewDecoder(bytes.NewReader(body))
	dec.DisallowUnknownFields()
	var payload models.OrderPayload
	if err := dec.Decode(&payload); err != nil {
		addDecodeError(verr, err)
		return nil, verr
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		verr.Add("body", "must contain a single JSON object")
		return nil, verr
	}

	if err := v.Struct(payload); err != nil {
		var fieldErrs validator.ValidationErrors
		if !errors.As(err, &fieldErrs) {
			return nil, fmt.Errorf("validate payload: %w", err)
		}
		for _, fe := range fieldErrs {
			verr.Add(fieldPath(fe.Namespace()), fieldMessage(fe))
		}
	}
	if !verr.Empty() {
		return nil, verr
	}
	return &payload, nil
}

func addDecodeError(verr *models.ValidationError, err error) {
	var typeErr *json.UnmarshalTypeError
	var syntaxErr *json.SyntaxError
	switch {
	case errors.As(err, &typeErr):
		field := typeErr.Field
		if field == "" {
			field = "body"
		}
		verr.Add(field, "must be "+typeErr.Type.Kind().String())
	case errors.As(err, &syntaxErr):
		verr.Add("body", "malformed JSON")
	case strings.HasPrefix(err.Error(), "json: unknown field "):
		field := strings.Trim(strings.TrimPrefix(err.Error(), "json: unknown field "), `"`)
		verr.Add(field, "unknown field")
	case errors.Is(err, io.EOF), errors.Is(err, io.ErrUnexpectedEOF):
		verr.Add("body", "is required")
	default:
		verr.Add("body", err.Error())
	}
}

// fieldPath убирает имя корневой структуры: "OrderPayload.brief.child.name" -> "brief.child.name".
func fieldPath(namespace string) string {
	if i := strings.Index(namespace, "."); i >= 0 {
		return namespace[i+1:]
	}
	return namespace
}

func fieldMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "email":
		return "must be a valid email"
	case "url":
		return "must be a valid URL"
	case "iso4217":
		return "must be an ISO-4217 currency code"
	case "oneof":
		return "must be one of: " + fe.Param()
	case "eq":
		return "must be " + fe.Param()
	case "max":
		if fe.Kind() == reflect.Slice {
			return "must have at most " + fe.Param() + " items"
		}
		if fe.Kind() == reflect.String {
			return "must be at most " + fe.Param() + " characters"
		}
		return "must be at most " + fe.Param()
	case "min":
		return "must be at least " + fe.Param()
	default:
		return "failed " + fe.Tag() + " check"
	}
}
