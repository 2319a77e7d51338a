// Package validation wraps a shared go-playground/validator instance with the
// custom tags used across the catalog pipeline.
//
// Custom tags:
//
//	crn   five ASCII digits (a Banner course reference number)
//	hhmm  an integer clock time in 24-hour HHMM form (0 <= HH < 24, 0 <= MM < 60)
package validation

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
)

var (
	validate     *validator.Validate
	validateOnce sync.Once
)

// FieldError is a single failed constraint.
type FieldError struct {
	Namespace string
	Tag       string
	Param     string
	Value     any
}

func (e FieldError) Error() string {
	if e.Param != "" {
		return fmt.Sprintf("%s failed %s=%s (got %v)", e.Namespace, e.Tag, e.Param, e.Value)
	}
	return fmt.Sprintf("%s failed %s (got %v)", e.Namespace, e.Tag, e.Value)
}

// Error collects every failed constraint of one validation pass.
type Error struct {
	Fields []FieldError
}

func (e *Error) Error() string {
	if len(e.Fields) == 0 {
		return "validation failed"
	}
	messages := make([]string, 0, len(e.Fields))
	for _, f := range e.Fields {
		messages = append(messages, f.Error())
	}
	return strings.Join(messages, "; ")
}

// Get returns the shared validator. It is safe for concurrent use.
func Get() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())
		mustRegister(validate, "crn", isCRN)
		mustRegister(validate, "hhmm", isHHMM)
	})
	return validate
}

func mustRegister(v *validator.Validate, tag string, fn validator.Func) {
	if err := v.RegisterValidation(tag, fn); err != nil {
		panic(fmt.Sprintf("validation: register %s: %v", tag, err))
	}
}

// Struct validates s and returns nil or an *Error.
func Struct(s any) error {
	err := Get().Struct(s)
	if err == nil {
		return nil
	}

	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return &Error{Fields: []FieldError{{Namespace: "unknown", Tag: "unknown", Value: err.Error()}}}
	}

	out := &Error{Fields: make([]FieldError, 0, len(fieldErrs))}
	for _, fe := range fieldErrs {
		out.Fields = append(out.Fields, FieldError{
			Namespace: fe.Namespace(),
			Tag:       fe.Tag(),
			Param:     fe.Param(),
			Value:     fe.Value(),
		})
	}
	return out
}

func isCRN(fl validator.FieldLevel) bool {
	return IsCRN(fl.Field().String())
}

func isHHMM(fl validator.FieldLevel) bool {
	return IsHHMM(int(fl.Field().Int()))
}

// IsCRN reports whether s is exactly five ASCII digits.
func IsCRN(s string) bool {
	if len(s) != 5 {
		return false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}

// IsHHMM reports whether t is a valid 24-hour HHMM clock value.
func IsHHMM(t int) bool {
	if t < 0 {
		return false
	}
	return t/100 < 24 && t%100 < 60
}
