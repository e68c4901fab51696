// internal/variants/generator.go
package variants

import (
	"strings"

	"github.com/lib/pq"

	"github.com/javajoker/multistore-backend/internal/apperrors"
	"github.com/javajoker/multistore-backend/internal/models"
)

const (
	MaxOptions      = 3
	MaxCombinations = 1000
)

// Normalize trims option names and values and drops empty values. The
// returned options carry 1-based positions in input order.
func Normalize(options []models.ProductOption) ([]models.ProductOption, error) {
	if len(options) > MaxOptions {
		return nil, apperrors.NewValidationError("a product supports at most %d options, got %d", MaxOptions, len(options))
	}

	out := make([]models.ProductOption, 0, len(options))
	seenNames := make(map[string]bool, len(options))

	for i, opt := range options {
		name := strings.TrimSpace(opt.Name)
		if name == "" {
			return nil, apperrors.NewValidationError("option %d has no name", i+1)
		}
		key := strings.ToLower(name)
		if seenNames[key] {
			return nil, apperrors.NewValidationError("duplicate option name %q", name)
		}
		seenNames[key] = true

		values := make(pq.StringArray, 0, len(opt.Values))
		seenValues := make(map[string]bool, len(opt.Values))
		for _, raw := range opt.Values {
			value := strings.TrimSpace(raw)
			if value == "" {
				continue
			}
			if seenValues[strings.ToLower(value)] {
				return nil, apperrors.NewValidationError("duplicate value %q for option %q", value, name)
			}
			seenValues[strings.ToLower(value)] = true
			values = append(values, value)
		}
		if len(values) == 0 {
			return nil, apperrors.NewValidationError("option %q has no values", name)
		}

		opt.Name = name
		opt.Values = values
		opt.Position = i + 1
		out = append(out, opt)
	}

	return out, nil
}

// Generate returns the cartesian product of the option values. The first
// option varies slowest; positions are 1-based in generation order.
func Generate(options []models.ProductOption) ([]models.Variant, error) {
	normalized, err := Normalize(options)
	if err != nil {
		return nil, err
	}

	if len(normalized) == 0 {
		return []models.Variant{{Position: 1, Title: "Default Title", OptionValues: models.OptionValues{}}}, nil
	}

	total := 1
	for _, opt := range normalized {
		total *= len(opt.Values)
		if total > MaxCombinations {
			return nil, apperrors.NewValidationError("options produce more than %d variants", MaxCombinations)
		}
	}

	result := make([]models.Variant, 0, total)
	current := make(models.OptionValues, len(normalized))

	var walk func(depth int)
	walk = func(depth int) {
		if depth == len(normalized) {
			values := append(models.OptionValues(nil), current...)
			result = append(result, models.Variant{
				Position:     len(result) + 1,
				Title:        values.Title(),
				OptionValues: values,
			})
			return
		}
		opt := normalized[depth]
		for _, value := range opt.Values {
			current[depth] = models.OptionValue{OptionName: opt.Name, Value: value}
			walk(depth + 1)
		}
	}
	walk(0)

	return result, nil
}

// ValidateVariants checks a user-curated variant list against the declared
// options: every entry names a declared option and value, in option order,
// and no combination appears twice.
func ValidateVariants(options []models.ProductOption, variants []models.Variant) error {
	normalized, err := Normalize(options)
	if err != nil {
		return err
	}

	if len(normalized) == 0 {
		if len(variants) > 1 {
			return apperrors.NewValidationError("a product without options has exactly one variant")
		}
		for _, v := range variants {
			if len(v.OptionValues) != 0 {
				return apperrors.NewValidationError("variant references options the product does not declare")
			}
		}
		return nil
	}

	allowed := make([]map[string]bool, len(normalized))
	for i, opt := range normalized {
		allowed[i] = make(map[string]bool, len(opt.Values))
		for _, value := range opt.Values {
			allowed[i][value] = true
		}
	}

	seen := make(map[string]int, len(variants))
	for i, v := range variants {
		if len(v.OptionValues) != len(normalized) {
			return apperrors.NewValidationError("variant %d has %d option values, product declares %d options", i+1, len(v.OptionValues), len(normalized))
		}
		for j, ov := range v.OptionValues {
			if ov.OptionName != normalized[j].Name {
				return apperrors.NewValidationError("variant %d: option %q is not declared at position %d", i+1, ov.OptionName, j+1)
			}
			if !allowed[j][ov.Value] {
				return apperrors.NewValidationError("variant %d: %q is not a value of option %q", i+1, ov.Value, ov.OptionName)
			}
		}
		key := v.OptionValues.Key()
		if prev, ok := seen[key]; ok {
			return apperrors.NewValidationError("variants %d and %d have the same options", prev+1, i+1)
		}
		seen[key] = i
	}

	return nil
}
