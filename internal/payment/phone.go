package payment

import (
	"errors"
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/noah-isme/bundlehub/internal/common"
)

// ErrInvalidPhone is returned for a recipient number outside the Ghana formats.
var ErrInvalidPhone = errors.New("payment: invalid ghana phone number")

var (
	localPhone = regexp.MustCompile(`^0[235]\d{8}$`)
	intlPhone  = regexp.MustCompile(`^\+233[235]\d{8}$`)
	phoneNoise = regexp.MustCompile(`[^\d+]`)
)

// NormalizePhone strips everything except digits and '+'.
func NormalizePhone(phone string) string {
	return phoneNoise.ReplaceAllString(phone, "")
}

// ValidGhanaPhone accepts 0XXXXXXXXX or +233XXXXXXXXX where the first subscriber digit is 2, 3 or 5.
func ValidGhanaPhone(phone string) bool {
	clean := NormalizePhone(phone)
	return localPhone.MatchString(clean) || intlPhone.MatchString(clean)
}

func init() {
	common.RegisterValidation("ghphone", func(fl validator.FieldLevel) bool {
		v := strings.TrimSpace(fl.Field().String())
		return v == "" || ValidGhanaPhone(v)
	})
}
