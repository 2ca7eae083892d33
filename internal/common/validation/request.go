package validation

import (
	"errors"
	"reflect"
	"regexp"
	"strings"

	stderrors "admissions-forms/internal/common/errors"

	"github.com/go-playground/locales/en"
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	en_translations "github.com/go-playground/validator/v10/translations/en"
)

var (
	validate   *validator.Validate
	translator ut.Translator

	objectIDTag   = "objectid"
	objectIDText  = "{0} must be a 24 character hex identifier"
	objectIDRegex = regexp.MustCompile(`^[0-9a-fA-F]{24}$`)

	notBlankTag  = "notblank"
	notBlankText = "{0} must not be blank"
)

// The validator is built once and only read afterwards; validator.Validate
// is safe for concurrent use.
func init() {
	validate = validator.New()

	_en := en.New()
	uni := ut.New(_en, _en)
	translator, _ = uni.GetTranslator("en")
	_ = en_translations.RegisterDefaultTranslations(validate, translator)

	// Use JSON tag names for errors instead of Go struct names.
	validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})

	_ = validate.RegisterValidation(objectIDTag, func(fl validator.FieldLevel) bool {
		return objectIDRegex.MatchString(fl.Field().String())
	})
	registerTranslation(objectIDTag, objectIDText)

	_ = validate.RegisterValidation(notBlankTag, func(fl validator.FieldLevel) bool {
		return strings.TrimSpace(fl.Field().String()) != ""
	})
	registerTranslation(notBlankTag, notBlankText)
}

func registerTranslation(tag, text string) {
	_ = validate.RegisterTranslation(
		tag, translator,
		func(t ut.Translator) error { return t.Add(tag, text, false) },
		func(t ut.Translator, fe validator.FieldError) string {
			s, _ := t.T(tag, fe.Field())
			return s
		},
	)
}

// Struct validates v against its `validate` tags. Failures come back as a
// VALIDATION_FAILED StandardError carrying one entry per invalid field.
func Struct(v interface{}) error {
	err := validate.Struct(v)
	if err == nil {
		return nil
	}

	var vErrs validator.ValidationErrors
	if !errors.As(err, &vErrs) {
		return stderrors.NewValidationError(err.Error())
	}

	fields := make([]stderrors.FieldError, 0, len(vErrs))
	for _, fe := range vErrs {
		fields = append(fields, stderrors.FieldError{
			Field:   fieldPath(fe.Namespace()),
			Message: fe.Translate(translator),
		})
	}
	return stderrors.NewValidationError(fields[0].Message, fields...)
}

// Var validates a single value against tag.
func Var(field string, value interface{}, tag string) error {
	err := validate.Var(value, tag)
	if err == nil {
		return nil
	}
	var vErrs validator.ValidationErrors
	if errors.As(err, &vErrs) && len(vErrs) > 0 {
		msg := field + " " + strings.TrimSpace(vErrs[0].Translate(translator))
		return stderrors.NewValidationError(msg, stderrors.FieldError{Field: field, Message: msg})
	}
	return stderrors.NewValidationError(err.Error())
}

// IsObjectID reports whether s is a 24 character hex identifier.
func IsObjectID(s string) bool {
	return objectIDRegex.MatchString(s)
}

// fieldPath drops the root struct name: "CreateFormRequest.fields[0].name"
// becomes "fields[0].name".
func fieldPath(namespace string) string {
	if i := strings.Index(namespace, "."); i >= 0 {
		return namespace[i+1:]
	}
	return namespace
}
