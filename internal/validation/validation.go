// Package validation wraps go-playground/validator with the request rules
// shared by the enrichment and avatar submission paths.
package validation

import (
	"fmt"
	"reflect"
	"strconv"
	"strings"
	"sync"
	"unicode"

	"github.com/go-playground/validator/v10"

	"videogenie/internal/pkg/errors"
	"videogenie/internal/storage"
	"videogenie/internal/worker/processor"
)

var (
	once     sync.Once
	validate *validator.Validate
)

// Validator returns the shared instance with the custom tags registered:
//
//	quality      a known render preset name
//	avatarid     a safe avatar identifier
//	minsolid=N   at least N non-whitespace characters
func Validator() *validator.Validate {
	once.Do(func() {
		v := validator.New(validator.WithRequiredStructEnabled())
		v.RegisterTagNameFunc(func(f reflect.StructField) string {
			name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
			if name == "-" || name == "" {
				return f.Name
			}
			return name
		})
		_ = v.RegisterValidation("quality", func(fl validator.FieldLevel) bool {
			return processor.ValidQuality(fl.Field().String())
		})
		_ = v.RegisterValidation("avatarid", func(fl validator.FieldLevel) bool {
			return storage.ValidAvatarID(fl.Field().String())
		})
		_ = v.RegisterValidation("minsolid", func(fl validator.FieldLevel) bool {
			n, err := strconv.Atoi(fl.Param())
			if err != nil {
				return false
			}
			return countSolid(fl.Field().String()) >= n
		})
		validate = v
	})
	return validate
}

func countSolid(s string) int {
	n := 0
	for _, r := range s {
		if !unicode.IsSpace(r) {
			n++
		}
	}
	return n
}

// Struct validates s and converts failures into a VALIDATION_ERROR whose
// message describes the first failing field and whose fields map every
// failing field to its rule.
func Struct(s any) error {
	err := Validator().Struct(s)
	if err == nil {
		return nil
	}
	verrs, ok := err.(validator.ValidationErrors)
	if !ok || len(verrs) == 0 {
		return errors.WrapWithCode(err, errors.CodeValidation, "validation", "invalid request")
	}

	rules := make(map[string]any, len(verrs))
	for _, fe := range verrs {
		rules[fe.Field()] = fe.Tag()
	}
	return errors.ValidationField(verrs[0].Field(), describe(verrs[0])).WithField("rules", rules)
}

func describe(fe validator.FieldError) string {
	f := fe.Field()
	switch fe.Tag() {
	case "required":
		return f + " is required"
	case "minsolid":
		return fmt.Sprintf("%s must contain at least %s non-whitespace characters", f, fe.Param())
	case "max":
		return fmt.Sprintf("%s must be at most %s characters", f, fe.Param())
	case "http_url", "url":
		return f + " must be an http(s) URL"
	case "quality":
		return fmt.Sprintf("%s must be one of %s", f, strings.Join(processor.PresetNames(), ", "))
	case "avatarid":
		return f + " must be letters, digits, '.', '_' or '-'"
	default:
		return fmt.Sprintf("%s failed %s", f, fe.Tag())
	}
}
