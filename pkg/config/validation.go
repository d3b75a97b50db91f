package config

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
)

var (
	validateOnce sync.Once
	validate     *validator.Validate
)

func getValidator() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())
		// Report fields by their config file key.
		validate.RegisterTagNameFunc(func(f reflect.StructField) string {
			name, _, _ := strings.Cut(f.Tag.Get("mapstructure"), ",")
			if name == "-" {
				return ""
			}
			return name
		})
	})
	return validate
}

// Validate checks cfg against the `validate` struct tags. It does not
// modify cfg; normalization happens in ApplyDefaults.
func Validate(cfg *Config) error {
	if cfg == nil {
		return errors.New("configuration is nil")
	}

	err := getValidator().Struct(cfg)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}

	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		msgs = append(msgs, describe(fe))
	}
	return errors.New(strings.Join(msgs, "; "))
}

// describe renders one validation failure as "<key>: <reason>", where key is
// the dotted config file path, e.g. "logging.level".
func describe(fe validator.FieldError) string {
	key := fe.Namespace()
	if _, rest, ok := strings.Cut(key, "."); ok {
		key = rest
	}

	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("%s: is required", key)
	case "required_if":
		return fmt.Sprintf("%s: is required when %s", key, fe.Param())
	case "oneof":
		return fmt.Sprintf("%s: must be one of [%s], got %v", key, fe.Param(), fe.Value())
	case "gte", "min":
		return fmt.Sprintf("%s: must be >= %s, got %v", key, fe.Param(), fe.Value())
	case "lte", "max":
		return fmt.Sprintf("%s: must be <= %s, got %v", key, fe.Param(), fe.Value())
	case "gt":
		return fmt.Sprintf("%s: must be > %s, got %v", key, fe.Param(), fe.Value())
	case "url":
		return fmt.Sprintf("%s: must be a URL, got %v", key, fe.Value())
	case "uuid":
		return fmt.Sprintf("%s: must be a UUID, got %v", key, fe.Value())
	default:
		return fmt.Sprintf("%s: failed %q validation", key, fe.Tag())
	}
}
