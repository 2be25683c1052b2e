package common

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	validator "github.com/go-playground/validator/v10"
)

var (
	validateOnce sync.Once
	validate     *validator.Validate
)

// Validator returns the process-wide payload validator.
func Validator() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())
	})
	return validate
}

// RegisterValidation installs a custom tag on the shared validator. Registering the same tag twice replaces it.
func RegisterValidation(tag string, fn validator.Func) {
	_ = Validator().RegisterValidation(tag, fn)
}

// ValidateStruct validates v and converts failures into a VALIDATION AppError listing the offending fields.
func ValidateStruct(v any) error {
	err := Validator().Struct(v)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return Validation("invalid request payload", err)
	}
	fields := make(map[string]string, len(verrs))
	names := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		name := lowerFirst(fe.Field())
		fields[name] = fe.Tag()
		names = append(names, name)
	}
	return Validation(fmt.Sprintf("invalid fields: %s", strings.Join(names, ", ")), err).WithDetails(fields)
}

func lowerFirst(s string) string {
	if s == "" {
		return s
	}
	return strings.ToLower(s[:1]) + s[1:]
}
