package validation

import (
	"errors"
	"fmt"
	"strings"
	"unicode"

	"github.com/benvon/nextstep/internal/models"
	"github.com/go-playground/validator/v10"
)

var (
	// Validate is a shared validator instance
	Validate *validator.Validate
)

func init() {
	Validate = validator.New()

	if err := Validate.RegisterValidation("calendar_date", validateCalendarDate); err != nil {
		panic(fmt.Sprintf("failed to register calendar_date validator: %v", err))
	}
	if err := Validate.RegisterValidation("notblank_text", validateNotBlankText); err != nil {
		panic(fmt.Sprintf("failed to register notblank_text validator: %v", err))
	}
}

// validateCalendarDate validates that a string is a YYYY-MM-DD calendar date
func validateCalendarDate(fl validator.FieldLevel) bool {
	_, err := models.ParseCalendarDate(fl.Field().String())
	return err == nil
}

// validateNotBlankText validates that a string has content after sanitization
func validateNotBlankText(fl validator.FieldLevel) bool {
	return SanitizeText(fl.Field().String()) != ""
}

// SanitizeText sanitizes text input by trimming whitespace and removing control characters
func SanitizeText(text string) string {
	// Trim whitespace
	text = strings.TrimSpace(text)

	// Remove control characters except newline and tab
	var sanitized strings.Builder
	for _, r := range text {
		if unicode.IsControl(r) && r != '\n' && r != '\t' {
			continue
		}
		sanitized.WriteRune(r)
	}

	return sanitized.String()
}

// SanitizeOptional sanitizes an optional text field in place
func SanitizeOptional(text *string) *string {
	if text == nil {
		return nil
	}
	s := SanitizeText(*text)
	return &s
}

// FirstError returns a readable message for the first failed validation rule
func FirstError(err error) string {
	var validationErrors validator.ValidationErrors
	if errors.As(err, &validationErrors) && len(validationErrors) > 0 {
		fe := validationErrors[0]
		switch fe.Tag() {
		case "required", "notblank_text":
			return fmt.Sprintf("%s is required", fe.Field())
		case "calendar_date":
			return fmt.Sprintf("%s must be a YYYY-MM-DD date", fe.Field())
		case "min", "max":
			return fmt.Sprintf("%s must satisfy %s=%s", fe.Field(), fe.Tag(), fe.Param())
		default:
			return fmt.Sprintf("Validation failed: %s", fe.Error())
		}
	}
	return "Validation failed"
}
