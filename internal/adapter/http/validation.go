package http

import (
	"errors"
	"reflect"
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"
)

// Reusable error payload
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}
type ErrorResponse struct {
	Error   string       `json:"error"`
	Details []FieldError `json:"details,omitempty"`
}

// ERP requisition ids: PR-2026-001, 0010000123, 10000123/00010 ...
var reRequisitionID = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._/-]{0,49}$`)

// bcrypt rejects passwords longer than this many bytes.
const maxPasswordBytes = 72

// Usernames: letters, digits, dot, dash and underscore.
var reUsername = regexp.MustCompile(`^[A-Za-z0-9._-]+$`)

type CustomValidator struct{ v *validator.Validate }

func NewValidator() *CustomValidator {
	v := validator.New()

	// report json / path names instead of Go field names
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		for _, tag := range []string{"json", "param", "query"} {
			name, _, _ := strings.Cut(f.Tag.Get(tag), ",")
			if name != "" && name != "-" {
				return name
			}
		}
		return f.Name
	})

	_ = v.RegisterValidation("reqid", func(fl validator.FieldLevel) bool {
		return reRequisitionID.MatchString(fl.Field().String())
	})
	_ = v.RegisterValidation("username", func(fl validator.FieldLevel) bool {
		return reUsername.MatchString(fl.Field().String())
	})
	// max counts runes; bcrypt counts bytes
	_ = v.RegisterValidation("pwbytes", func(fl validator.FieldLevel) bool {
		return len(fl.Field().String()) <= maxPasswordBytes
	})

	return &CustomValidator{v: v}
}

func (cv *CustomValidator) Validate(i any) error { return cv.v.Struct(i) }

// Map validator.ValidationErrors → []FieldError with readable messages.
func ToFieldErrors(err error) []FieldError {
	var ve validator.ValidationErrors
	if !errors.As(err, &ve) {
		return []FieldError{{Field: "_", Message: err.Error()}}
	}
	out := make([]FieldError, 0, len(ve))
	for _, e := range ve {
		field := fieldPath(e)
		switch e.Tag() {
		case "required":
			out = append(out, FieldError{Field: field, Message: "is required"})
		case "reqid":
			out = append(out, FieldError{Field: field, Message: "must be an ERP requisition id (letters, digits, . _ / -, max 50)"})
		case "username":
			out = append(out, FieldError{Field: field, Message: "may only contain letters, digits, '.', '_' and '-'"})
		case "pwbytes":
			out = append(out, FieldError{Field: field, Message: "must be at most 72 bytes"})
		case "oneof":
			out = append(out, FieldError{Field: field, Message: "must be one of: " + e.Param()})
		case "min":
			out = append(out, FieldError{Field: field, Message: "must have at least " + e.Param() + lengthUnit(e)})
		case "max":
			out = append(out, FieldError{Field: field, Message: "must have at most " + e.Param() + lengthUnit(e)})
		case "unique":
			out = append(out, FieldError{Field: field, Message: "must not contain duplicates"})
		default:
			out = append(out, FieldError{Field: field, Message: e.Tag() + " validation failed"})
		}
	}
	return out
}

// fieldPath drops the struct name: "batchReq.ids[2]" → "ids[2]".
func fieldPath(e validator.FieldError) string {
	ns := e.Namespace()
	if _, rest, ok := strings.Cut(ns, "."); ok {
		return rest
	}
	return e.Field()
}

func lengthUnit(e validator.FieldError) string {
	switch e.Kind() {
	case reflect.Slice, reflect.Array, reflect.Map:
		return " items"
	case reflect.String:
		return " characters"
	}
	return ""
}
