// Package validation adapts go-playground/validator to the domain's
// EntityValidator contract.
package validation

import (
	"errors"
	"reflect"
	"strings"

	"github.com/erp/marketsync/internal/domain/shared"
	"github.com/go-playground/validator/v10"
)

// Validator validates entities by their `validate` struct tags
type Validator struct {
	validate *validator.Validate
}

// New creates a Validator. Field names in errors follow the json tag when present.
func New() *Validator {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return &Validator{validate: v}
}

// Ensure Validator implements EntityValidator
var _ shared.EntityValidator = (*Validator)(nil)

// ValidateAndThrow returns a *shared.ValidationError listing every invalid
// field of entity, or nil
func (v *Validator) ValidateAndThrow(entity any) error {
	if entity == nil {
		return &shared.ValidationError{Entity: "nil", Fields: []shared.FieldError{{Field: "", Message: "Entity is required"}}}
	}

	err := v.validate.Struct(entity)
	if err == nil {
		return nil
	}

	vErr := &shared.ValidationError{Entity: entityName(entity)}
	var fieldErrors validator.ValidationErrors
	if !errors.As(err, &fieldErrors) {
		vErr.Fields = append(vErr.Fields, shared.FieldError{Message: err.Error()})
		return vErr
	}
	for _, fe := range fieldErrors {
		vErr.Fields = append(vErr.Fields, shared.FieldError{
			Field:   fieldPath(fe),
			Message: message(fe),
		})
	}
	return vErr
}

func entityName(entity any) string {
	t := reflect.TypeOf(entity)
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	return t.Name()
}

// fieldPath drops the root struct name: "Order.Lines[0].Quantity" becomes "Lines[0].Quantity"
func fieldPath(fe validator.FieldError) string {
	ns := fe.Namespace()
	if i := strings.IndexByte(ns, '.'); i >= 0 {
		return ns[i+1:]
	}
	return fe.Field()
}

func message(e validator.FieldError) string {
	switch e.Tag() {
	case "required":
		return "This field is required"
	case "email":
		return "Invalid email format"
	case "min":
		if e.Kind() == reflect.Slice {
			return "Must contain at least " + e.Param() + " item(s)"
		}
		return "Must be at least " + e.Param()
	case "max":
		if e.Kind() == reflect.String {
			return "Must be at most " + e.Param() + " characters"
		}
		return "Must be at most " + e.Param()
	case "oneof":
		return "Must be one of: " + e.Param()
	case "gte":
		return "Must be greater than or equal to " + e.Param()
	case "gt":
		return "Must be greater than " + e.Param()
	case "ltefield":
		return "Must not exceed " + e.Param()
	default:
		return "Invalid value"
	}
}
