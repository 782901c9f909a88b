package service

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/sakif/bananagen/internal/apperror"
)

// validate is shared by every service. validator.Validate caches struct
// metadata and is safe for concurrent use.
var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())

	// Report fields by their JSON names so messages match the request body.
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})

	_ = v.RegisterValidation("imageref", func(fl validator.FieldLevel) bool {
		return isImageRef(fl.Field().String())
	})
	_ = v.RegisterValidation("localpath", func(fl validator.FieldLevel) bool {
		return isLocalPath(fl.Field().String())
	})
	return v
}

// isImageRef accepts inline data URIs and http(s) URLs.
func isImageRef(s string) bool {
	return strings.HasPrefix(s, "data:image/") ||
		strings.HasPrefix(s, "https://") ||
		strings.HasPrefix(s, "http://")
}

// isLocalPath accepts same-origin absolute paths only. "//host" and
// "/\host" are treated as other origins by browsers.
func isLocalPath(s string) bool {
	if !strings.HasPrefix(s, "/") {
		return false
	}
	return !strings.HasPrefix(s, "//") && !strings.HasPrefix(s, "/\\")
}

// validateStruct runs the struct tags on in and converts the first
// failure into a validation AppError.
func validateStruct(in any) error {
	err := validate.Struct(in)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return fmt.Errorf("service: validating input: %w", err)
	}
	fe := verrs[0]
	return apperror.ValidationFailed(fe.Field(), validationMessage(fe))
}

func validationMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return fe.Field() + " required"
	case "imageref":
		return fe.Field() + " must be a data:image URI or an http(s) URL"
	case "localpath":
		return fe.Field() + " must be a path on this site"
	case "max":
		return fmt.Sprintf("%s must be at most %s", fe.Field(), fe.Param())
	default:
		return fmt.Sprintf("%s failed %s", fe.Field(), fe.Tag())
	}
}
