package validators

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"reflect"
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	pkgerrors "github.com/angelmondragon/marketplace-backend/pkg/errors"
)

// maxBodyBytes caps JSON request bodies; webhooks read their own raw body.
const maxBodyBytes = 1 << 20

var (
	phoneRe  = regexp.MustCompile(`^\+?[0-9][0-9 ()-]{5,18}[0-9]$`)
	validate = newValidator()
)

type validatable interface{ IsValid() bool }

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "" || name == "-" {
			return f.Name
		}
		return name
	})
	// money fields compare numerically (gte=0 on a price)
	v.RegisterCustomTypeFunc(func(field reflect.Value) any {
		if d, ok := field.Interface().(decimal.Decimal); ok {
			f, _ := d.Float64()
			return f
		}
		return nil
	}, decimal.Decimal{})
	_ = v.RegisterValidation("phone", func(fl validator.FieldLevel) bool {
		return phoneRe.MatchString(strings.TrimSpace(fl.Field().String()))
	})
	// enum fields with an IsValid method, e.g. enums.OrderStatus
	_ = v.RegisterValidation("enum", func(fl validator.FieldLevel) bool {
		if e, ok := fl.Field().Interface().(validatable); ok {
			return e.IsValid()
		}
		return false
	})
	return v
}

// DecodeJSONBody decodes a single JSON object into dest, rejecting unknown
// fields and trailing data, then runs struct validation.
func DecodeJSONBody(r *http.Request, dest any) error {
	body := http.MaxBytesReader(nil, r.Body, maxBodyBytes)
	defer func() {
		_, _ = io.Copy(io.Discard, body)
	}()

	decoder := json.NewDecoder(body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(dest); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return pkgerrors.New(pkgerrors.CodeValidation, "request body too large").WithDetails(map[string]any{"limit_bytes": tooLarge.Limit})
		}
		return pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid request body").WithDetails(map[string]any{"error": err.Error()})
	}
	if decoder.More() {
		return pkgerrors.New(pkgerrors.CodeValidation, "request body must contain a single JSON object")
	}
	if err := validate.Struct(dest); err != nil {
		return formatValidationErrors(err)
	}
	return nil
}

func formatValidationErrors(err error) *pkgerrors.Error {
	var errs validator.ValidationErrors
	if !errors.As(err, &errs) {
		return pkgerrors.Wrap(pkgerrors.CodeValidation, err, "validation failed")
	}
	details := make(map[string]string, len(errs))
	for _, fe := range errs {
		details[fieldPath(fe)] = validationMessage(fe)
	}
	return pkgerrors.New(pkgerrors.CodeValidation, "validation failed").WithDetails(details)
}

// fieldPath drops the root struct name: "shipping_address.phone", "items[0].quantity".
func fieldPath(fe validator.FieldError) string {
	ns := fe.Namespace()
	if i := strings.Index(ns, "."); i >= 0 {
		return ns[i+1:]
	}
	return fe.Field()
}

func validationMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "min":
		return fmt.Sprintf("must be at least %s", fe.Param())
	case "max":
		return fmt.Sprintf("must be at most %s", fe.Param())
	case "gte":
		return fmt.Sprintf("must be %s or more", fe.Param())
	case "email":
		return "must be a valid email"
	case "phone":
		return "must be a valid phone number"
	case "uuid":
		return "must be a valid id"
	case "url":
		return "must be a valid url"
	case "oneof":
		return fmt.Sprintf("must be one of [%s]", fe.Param())
	case "enum":
		return "is not a recognised value"
	}
	return "is invalid"
}
