package reservation

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
)

var (
	ErrNotFound                = errors.New("no booking found")
	ErrRecordNotFound          = errors.New("record not found")
	ErrUnauthorized            = errors.New("pms rejected credentials")
	ErrUnreachable             = errors.New("pms unreachable")
	ErrWebhookSignatureInvalid = errors.New("webhook signature invalid")
	ErrNotAuthorized           = errors.New("no active deposit hold")
	ErrPortalLocked            = errors.New("pre-check-in is not complete")
)

type InputError struct {
	fields map[string][]string
}

func NewInputError() *InputError {
	return &InputError{
		fields: make(map[string][]string),
	}
}

func IsInputError(err error) *InputError {
	if err == nil {
		return nil
	}

	var inputError *InputError

	if errors.As(err, &inputError) {
		return inputError
	}

	return nil
}

func (ie *InputError) FieldsCount() int {
	return len(ie.fields)
}

func (ie *InputError) AddError(field, msg string) {
	ie.fields[field] = append(ie.fields[field], msg)
}

// OrNil returns ie when at least one field failed.
func (ie *InputError) OrNil() error {
	if ie.FieldsCount() > 0 {
		return ie
	}

	return nil
}

func (ie *InputError) Error() string {
	return fmt.Sprintf("%+v", ie.fields)
}

func (ie *InputError) Fields() map[string][]string {
	return ie.fields
}

//nolint:gochecknoglobals
var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(field reflect.StructField) string {
		name := strings.SplitN(field.Tag.Get("json"), ",", 2)[0] //nolint:gomnd
		if name == "-" || name == "" {
			return field.Name
		}

		return name
	})

	return v
}

// ValidateStruct runs the struct tag rules of in and converts failures into an InputError.
func ValidateStruct(in any) error {
	err := validate.Struct(in)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return fmt.Errorf("validate input: %w", err)
	}

	inputErr := NewInputError()

	for _, fe := range verrs {
		inputErr.AddError(fe.Field(), describe(fe))
	}

	return inputErr
}

func describe(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "provide " + fe.Field()
	case "email":
		return "provide valid email"
	case "eq":
		return fe.Field() + " must be " + fe.Param()
	case "min":
		return fe.Field() + " is too short"
	case "max":
		return fe.Field() + " is too long"
	case "datetime":
		return fe.Field() + " must be formatted as " + fe.Param()
	default:
		return fe.Field() + " is invalid"
	}
}
