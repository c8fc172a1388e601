package config

import (
	"errors"
	"fmt"
	"maps"
	"slices"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New()

// Validate checks struct tags and the rules tags cannot express.
func Validate(cfg *Config) error {
	if err := validate.Struct(cfg); err != nil {
		return formatValidationError(err)
	}

	if cfg.HTTP.RateLimit > 0 && cfg.HTTP.Burst == 0 {
		return fmt.Errorf("http: burst must be positive when rate_limit is set")
	}
	return validateRegistry(cfg.Registry)
}

// validateRegistry rejects ids whose chain of mappings loops back on
// itself.
func validateRegistry(registry map[string]string) error {
	ids := slices.Sorted(maps.Keys(registry))
	for _, id := range ids {
		seen := map[string]bool{id: true}
		for next, ok := registry[id]; ok; next, ok = registry[next] {
			if seen[next] {
				return fmt.Errorf("registry: id %q resolves in a cycle through %q", id, next)
			}
			seen[next] = true
		}
	}
	return nil
}

// formatValidationError reports the first failed field.
func formatValidationError(err error) error {
	var errs validator.ValidationErrors
	if errors.As(err, &errs) && len(errs) > 0 {
		e := errs[0]
		return fmt.Errorf("%s: validation failed on '%s' tag (value: %v)",
			e.Namespace(), e.Tag(), e.Value())
	}
	return err
}
