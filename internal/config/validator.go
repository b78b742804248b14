package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
)

var validate *validator.Validate

func init() {
	validate = validator.New(validator.WithRequiredStructEnabled())
	registerCustomValidators(validate)
}

// registerCustomValidators adds validators that go beyond the built-in tags.
func registerCustomValidators(v *validator.Validate) {
	// duration: field must parse as a time.Duration string ("5s", "1m30s").
	_ = v.RegisterValidation("duration", func(fl validator.FieldLevel) bool {
		_, err := time.ParseDuration(fl.Field().String())
		return err == nil
	})
}

// Validate checks the configuration for errors. Call after SetDefaults.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			return formatValidationErrors(verrs)
		}
		return fmt.Errorf("config validation: %w", err)
	}

	if c.Audit.Output == "sqlite" && c.Audit.DBPath == "" {
		return errors.New("config validation failed: audit.db_path is required when audit.output is \"sqlite\"")
	}

	if c.Audit.Output == "jsonl" && c.Audit.Dir == "" {
		return errors.New("config validation failed: audit.dir is required when audit.output is \"jsonl\"")
	}

	if ct := c.Validation.CheckTimeout; ct != "" {
		if d, err := time.ParseDuration(ct); err == nil && d < 0 {
			return errors.New("config validation failed: validation.check_timeout must not be negative")
		}
	}

	return nil
}

// formatValidationErrors converts validator errors into user-friendly messages.
func formatValidationErrors(verrs validator.ValidationErrors) error {
	msgs := make([]string, 0, len(verrs))
	for _, ve := range verrs {
		msgs = append(msgs, formatSingleValidationError(ve))
	}
	return fmt.Errorf("config validation failed:\n  - %s", strings.Join(msgs, "\n  - "))
}

func formatSingleValidationError(ve validator.FieldError) string {
	field := ve.Namespace()
	field = strings.TrimPrefix(field, "Config.")

	switch ve.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", field)
	case "min":
		return fmt.Sprintf("%s must be at least %s", field, ve.Param())
	case "gt":
		return fmt.Sprintf("%s must be greater than %s", field, ve.Param())
	case "oneof":
		return fmt.Sprintf("%s must be one of: %s", field, ve.Param())
	case "hostname_port":
		return fmt.Sprintf("%s must be a valid host:port address", field)
	case "duration":
		return fmt.Sprintf("%s must be a valid duration (e.g., \"5s\", \"1m\")", field)
	default:
		return fmt.Sprintf("%s failed validation (%s)", field, ve.Tag())
	}
}
