package validators

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"convoy/internal/models"
	"convoy/internal/utils"
)

var validate *validator.Validate

func init() {
	validate = validator.New()

	// Report wire names rather than Go field names.
	validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" || name == "" {
			return fld.Name
		}
		return name
	})

	// Register custom validation functions
	validate.RegisterValidation("room_code", validateRoomCode)
	validate.RegisterValidation("hazard_type", validateHazardType)
	validate.RegisterValidation("message_type", validateMessageType)
	validate.RegisterValidation("notblank", validateNotBlank)
}

// Common validation errors
var (
	ErrInvalidRoomCode    = errors.New("invalid room code")
	ErrInvalidCoordinates = errors.New("invalid GPS coordinates")
	ErrMissingPlace       = errors.New("place requires an address or coordinates")
)

// ValidationError represents a field validation error
type ValidationError struct {
	Field   string `json:"field"`
	Tag     string `json:"tag"`
	Value   string `json:"value"`
	Message string `json:"message"`
}

type ValidationErrors []ValidationError

func (v ValidationErrors) Error() string {
	var messages []string
	for _, err := range v {
		messages = append(messages, fmt.Sprintf("%s: %s", err.Field, err.Message))
	}
	return strings.Join(messages, "; ")
}

// Map returns the errors keyed by field, the shape API responses use.
func (v ValidationErrors) Map() map[string]string {
	out := make(map[string]string, len(v))
	for _, err := range v {
		out[err.Field] = err.Message
	}
	return out
}

// ValidateStruct validates a struct and returns detailed errors
func ValidateStruct(s interface{}) ValidationErrors {
	var validationErrors ValidationErrors

	err := validate.Struct(s)
	if err == nil {
		return nil
	}

	var fieldErrors validator.ValidationErrors
	if !errors.As(err, &fieldErrors) {
		return ValidationErrors{{Field: "body", Tag: "invalid", Message: err.Error()}}
	}

	for _, err := range fieldErrors {
		validationError := ValidationError{
			Field:   err.Field(),
			Tag:     err.Tag(),
			Value:   fmt.Sprintf("%v", err.Value()),
			Message: getErrorMessage(err),
		}
		validationErrors = append(validationErrors, validationError)
	}

	return validationErrors
}

func getErrorMessage(err validator.FieldError) string {
	switch err.Tag() {
	case "required", "notblank":
		return fmt.Sprintf("%s is required", err.Field())
	case "min":
		return fmt.Sprintf("%s must be at least %s", err.Field(), err.Param())
	case "max":
		return fmt.Sprintf("%s must be at most %s", err.Field(), err.Param())
	case "room_code":
		return "Invalid room code"
	case "hazard_type":
		return "Unknown hazard type"
	case "message_type":
		return "Unknown message type"
	default:
		return fmt.Sprintf("Validation failed for %s", err.Field())
	}
}

// Custom validation functions
func validateRoomCode(fl validator.FieldLevel) bool {
	code := fl.Field().String()
	if code == "" {
		return true // Let required tag handle empty values
	}
	if len(code) < 4 || len(code) > 12 {
		return false
	}
	for _, r := range code {
		if !(r >= 'A' && r <= 'Z' || r >= 'a' && r <= 'z' || r >= '0' && r <= '9' || r == '-') {
			return false
		}
	}
	return true
}

func validateHazardType(fl validator.FieldLevel) bool {
	switch models.HazardType(fl.Field().String()) {
	case models.HazardTypeAccident, models.HazardTypeRoadClosure, models.HazardTypePothole,
		models.HazardTypeTraffic, models.HazardTypeWeather, models.HazardTypePolice, models.HazardTypeOther:
		return true
	}
	return false
}

func validateMessageType(fl validator.FieldLevel) bool {
	switch models.MessageType(fl.Field().String()) {
	case "", models.MessageTypeChat, models.MessageTypeSOS:
		return true
	}
	return false
}

func validateNotBlank(fl validator.FieldLevel) bool {
	return strings.TrimSpace(fl.Field().String()) != ""
}

// NormalizeRoomCode upper-cases and trims a user-typed code.
func NormalizeRoomCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// ValidateCoordinates checks a client position.
func ValidateCoordinates(c *models.Coords) error {
	if c == nil || !utils.IsValidCoordinates(c.Lat, c.Lng) {
		return ErrInvalidCoordinates
	}
	return nil
}
