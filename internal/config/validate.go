package config

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
)

// Validation range constants.
const (
	chunkAlignBytes     = 256 << 10 // resumable uploads move whole 256 KiB chunks
	minSimpleUploadSize = 1
	minConnectTimeout   = 1 * time.Second
	minDataTimeout      = 5 * time.Second
)

var structValidator = newStructValidator()

// newStructValidator reports fields by their TOML names.
func newStructValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())

	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("toml"), ",")
		if name == "-" {
			return ""
		}

		return name
	})

	return v
}

// Validate checks all configuration values and returns every error found.
func Validate(cfg *Config) error {
	var errs []error

	errs = append(errs, validateTags(cfg)...)
	errs = append(errs, validateTransfers(&cfg.Transfers)...)
	errs = append(errs, validateNetwork(&cfg.Network)...)

	return errors.Join(errs...)
}

// validateTags runs the struct tag rules and rewrites failures as
// "section.key: ..." messages.
func validateTags(cfg *Config) []error {
	err := structValidator.Struct(cfg)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return []error{err}
	}

	errs := make([]error, 0, len(verrs))

	for _, fe := range verrs {
		_, key, _ := strings.Cut(fe.Namespace(), ".")
		errs = append(errs, fmt.Errorf("%s: %s", key, describeRule(fe)))
	}

	return errs
}

func describeRule(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "must not be empty"
	case "oneof":
		return fmt.Sprintf("must be one of [%s], got %q", fe.Param(), fe.Value())
	case "min":
		return fmt.Sprintf("must be at least %s, got %v", fe.Param(), fe.Value())
	case "max":
		return fmt.Sprintf("must be at most %s, got %v", fe.Param(), fe.Value())
	case "url":
		return fmt.Sprintf("must be a URL, got %q", fe.Value())
	default:
		return fmt.Sprintf("failed %q check", fe.Tag())
	}
}

func validateTransfers(t *TransfersConfig) []error {
	var errs []error

	if t.SimpleUploadMaxSize != "" {
		n, err := ParseSize(t.SimpleUploadMaxSize)

		switch {
		case err != nil:
			errs = append(errs, fmt.Errorf("simple_upload_max_size: %w", err))
		case n < minSimpleUploadSize:
			errs = append(errs, errors.New("simple_upload_max_size: must be positive"))
		}
	}

	if t.CommitInterval != "" {
		n, err := ParseSize(t.CommitInterval)

		switch {
		case err != nil:
			errs = append(errs, fmt.Errorf("commit_interval: %w", err))
		case n <= 0 || n%chunkAlignBytes != 0:
			errs = append(errs, fmt.Errorf("commit_interval: must be a positive multiple of 256KiB, got %q",
				t.CommitInterval))
		}
	}

	return errs
}

func validateNetwork(n *NetworkConfig) []error {
	var errs []error

	errs = append(errs, validateDuration("connect_timeout", n.ConnectTimeout, minConnectTimeout)...)
	errs = append(errs, validateDuration("data_timeout", n.DataTimeout, minDataTimeout)...)

	return errs
}

func validateDuration(key, value string, minimum time.Duration) []error {
	if value == "" {
		return nil
	}

	d, err := time.ParseDuration(value)
	if err != nil {
		return []error{fmt.Errorf("%s: invalid duration %q: %w", key, value, err)}
	}

	if d < minimum {
		return []error{fmt.Errorf("%s: must be at least %s, got %s", key, minimum, d)}
	}

	return nil
}
