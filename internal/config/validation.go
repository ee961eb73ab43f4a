package config

import (
	"fmt"
	"net"
	"strings"
)

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("config: %s: %s", e.Field, e.Message)
}

// ValidationErrors is a collection of validation errors.
type ValidationErrors []ValidationError

func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return ""
	}
	var msgs []string
	for _, err := range e {
		msgs = append(msgs, err.Error())
	}
	return strings.Join(msgs, "; ")
}

// ValidateConfig performs semantic validation of the configuration.
func ValidateConfig(c *Config) error {
	var errs ValidationErrors

	if c.Version < 1 || c.Version > Version {
		errs = append(errs, ValidationError{
			Field:   "version",
			Message: fmt.Sprintf("unsupported version %d (current: %d)", c.Version, Version),
		})
	}

	errs = append(errs, validateEngine(&c.Engine)...)
	errs = append(errs, validatePreedit(&c.Preedit)...)
	errs = append(errs, validateLogging(&c.Logging)...)
	errs = append(errs, validateIBus(&c.IBus)...)
	errs = append(errs, validateMetrics(&c.Metrics)...)

	if len(errs) > 0 {
		return errs
	}
	return nil
}

func validateEngine(e *EngineConfig) ValidationErrors {
	var errs ValidationErrors

	switch e.Name {
	case "compose", "passthrough":
	default:
		errs = append(errs, ValidationError{
			Field:   "engine.name",
			Message: fmt.Sprintf("unknown engine: %q (valid: compose, passthrough)", e.Name),
		})
	}

	if _, err := e.Compile(); err != nil {
		errs = append(errs, ValidationError{
			Field:   "engine",
			Message: err.Error(),
		})
	}

	return errs
}

func validatePreedit(p *PreeditConfig) ValidationErrors {
	var errs ValidationErrors

	switch p.Underline {
	case "", "none", "single", "double", "low", "error":
	default:
		errs = append(errs, ValidationError{
			Field:   "preedit.underline",
			Message: fmt.Sprintf("invalid underline style: %s", p.Underline),
		})
	}

	for field, v := range map[string]string{"preedit.foreground": p.Foreground, "preedit.background": p.Background} {
		if v == "" {
			continue
		}
		if _, ok := parseColor(v); !ok {
			errs = append(errs, ValidationError{
				Field:   field,
				Message: fmt.Sprintf("invalid color %q (want #rrggbb)", v),
			})
		}
	}

	return errs
}

func validateLogging(l *LoggingConfig) ValidationErrors {
	var errs ValidationErrors

	switch l.Level {
	case "debug", "info", "warn", "error":
		// Valid levels
	default:
		errs = append(errs, ValidationError{
			Field:   "logging.level",
			Message: fmt.Sprintf("invalid log level: %s (valid: debug, info, warn, error)", l.Level),
		})
	}

	switch l.Format {
	case "text", "json":
		// Valid formats
	default:
		errs = append(errs, ValidationError{
			Field:   "logging.format",
			Message: fmt.Sprintf("invalid log format: %s (valid: text, json)", l.Format),
		})
	}

	switch l.Output {
	case "stdout", "stderr":
	case "file", "both":
		if l.FilePath == "" {
			errs = append(errs, ValidationError{
				Field:   "logging.file_path",
				Message: "file path is required when output is 'file' or 'both'",
			})
		}
	default:
		errs = append(errs, ValidationError{
			Field:   "logging.output",
			Message: fmt.Sprintf("invalid log output: %q (valid: stdout, stderr, file, both)", l.Output),
		})
	}

	if l.MaxSizeMB < 1 {
		errs = append(errs, ValidationError{
			Field:   "logging.max_size_mb",
			Message: "max size must be at least 1 MB",
		})
	}

	if l.MaxBackups < 0 {
		errs = append(errs, ValidationError{
			Field:   "logging.max_backups",
			Message: "max backups cannot be negative",
		})
	}

	if l.MaxAgeDays < 0 {
		errs = append(errs, ValidationError{
			Field:   "logging.max_age_days",
			Message: "max age cannot be negative",
		})
	}

	return errs
}

func validateIBus(i *IBusConfig) ValidationErrors {
	var errs ValidationErrors

	if i.BusName == "" {
		errs = append(errs, RequiredFieldError("ibus.bus_name"))
	} else if strings.Count(i.BusName, ".") < 1 {
		errs = append(errs, ValidationError{
			Field:   "ibus.bus_name",
			Message: fmt.Sprintf("%q is not a well-known bus name", i.BusName),
		})
	}
	if i.EngineName == "" {
		errs = append(errs, RequiredFieldError("ibus.engine_name"))
	}

	return errs
}

func validateMetrics(m *MetricsConfig) ValidationErrors {
	if m.Listen == "" {
		return nil
	}
	if _, port, err := net.SplitHostPort(m.Listen); err != nil || port == "" {
		return ValidationErrors{{
			Field:   "metrics.listen",
			Message: fmt.Sprintf("%q is not a host:port address", m.Listen),
		}}
	}
	return nil
}

// RequiredFieldError creates a validation error for a missing required field.
func RequiredFieldError(field string) ValidationError {
	return ValidationError{
		Field:   field,
		Message: "required field is missing",
	}
}
