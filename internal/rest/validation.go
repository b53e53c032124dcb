package rest

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"reflect"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
	"github.com/pocket/pocket/internal/utils"
	"github.com/shopspring/decimal"
)

var (
	validate     *validator.Validate
	validateOnce sync.Once
)

var maxAmount = decimal.NewFromInt(1_000_000_000)

func validatorInstance() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())
		_ = validate.RegisterValidation("date", func(fl validator.FieldLevel) bool {
			value := fl.Field().String()
			if value == "" {
				return true
			}
			_, err := utils.ParseDate(value)
			return err == nil
		})
		// amounts are validated through their string form
		validate.RegisterCustomTypeFunc(func(field reflect.Value) any {
			if amount, ok := field.Interface().(decimal.Decimal); ok {
				return amount.String()
			}
			return nil
		}, decimal.Decimal{})
		_ = validate.RegisterValidation("amount", func(fl validator.FieldLevel) bool {
			amount, err := decimal.NewFromString(fl.Field().String())
			return err == nil && amount.IsPositive() && amount.LessThanOrEqual(maxAmount) && amount.Equal(amount.Truncate(2))
		})
		validate.RegisterTagNameFunc(func(field reflect.StructField) string {
			name := strings.SplitN(field.Tag.Get("json"), ",", 2)[0]
			if name == "-" {
				return ""
			}
			return name
		})
	})
	return validate
}

// Validate checks the struct tags of a request DTO and returns a client readable error.
func Validate(dto any) error {
	err := validatorInstance().Struct(dto)
	if err == nil {
		return nil
	}
	var validationErrors validator.ValidationErrors
	if !errors.As(err, &validationErrors) {
		return err
	}
	messages := make([]string, 0, len(validationErrors))
	for _, fe := range validationErrors {
		messages = append(messages, fieldMessage(fe))
	}
	return errors.New(strings.Join(messages, "; "))
}

func fieldMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", fe.Field())
	case "max":
		return fmt.Sprintf("%s must be at most %s characters", fe.Field(), fe.Param())
	case "amount":
		return fmt.Sprintf("%s must be positive with at most 2 decimal places and not exceed %s", fe.Field(), maxAmount)
	case "date":
		return fmt.Sprintf("%s must be a date in YYYY-MM-DD format", fe.Field())
	case "oneof":
		return fmt.Sprintf("%s must be one of: %s", fe.Field(), fe.Param())
	default:
		return fmt.Sprintf("%s is invalid (%s)", fe.Field(), fe.Tag())
	}
}

// DecodeAndValidate decodes a JSON request body into dto and validates it. On failure it writes a 400 response
// and returns false.
func DecodeAndValidate(w http.ResponseWriter, r *http.Request, dto any) bool {
	if err := json.NewDecoder(r.Body).Decode(dto); err != nil {
		WriteJSON(w, http.StatusBadRequest, ErrorResponse{Error: "Invalid request body format", Details: err.Error()})
		return false
	}
	if err := Validate(dto); err != nil {
		WriteError(w, http.StatusBadRequest, err.Error())
		return false
	}
	return true
}
