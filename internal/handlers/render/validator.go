package render

import (
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/nkiryanov/eazynet/internal/service/session"
)

func configureValidator(validate *validator.Validate) {
	_ = validate.RegisterValidation("password", validatePassword)
	validate.RegisterTagNameFunc(useJSONTagNames)
}

func useJSONTagNames(fld reflect.StructField) string {
	name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
	// skip if tag key says it should be ignored
	if name == "-" {
		return ""
	}
	return name
}

// Same complexity rule the session client enforces before calling the backend
func validatePassword(fl validator.FieldLevel) bool {
	return session.ValidatePassword(fl.Field().String()) == nil
}
