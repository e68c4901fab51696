// internal/utils/validator.go
package utils

import (
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"
)

var validate *validator.Validate

var shopDomainPattern = regexp.MustCompile(`^[a-z0-9][a-z0-9-]*\.myshopify\.com$`)

func init() {
	validate = validator.New()
	validate.RegisterValidation("allocation_strategy", validateAllocationStrategy)
	validate.RegisterValidation("shop_domain", validateShopDomain)
	validate.RegisterValidation("product_status", validateProductStatus)
}

func ValidateStruct(s interface{}) error {
	return validate.Struct(s)
}

func validateAllocationStrategy(fl validator.FieldLevel) bool {
	switch strings.ToLower(fl.Field().String()) {
	case "", "balanced", "priority", "demand-based", "geographic":
		return true
	}
	return false
}

// Shop domains are the permanent *.myshopify.com hostnames.
func validateShopDomain(fl validator.FieldLevel) bool {
	return shopDomainPattern.MatchString(strings.ToLower(strings.TrimSpace(fl.Field().String())))
}

func validateProductStatus(fl validator.FieldLevel) bool {
	switch fl.Field().String() {
	case "", "DRAFT", "ACTIVE", "ARCHIVED":
		return true
	}
	return false
}

// Validation tags for common fields
type ValidationError struct {
	Field   string `json:"field"`
	Tag     string `json:"tag"`
	Message string `json:"message"`
}

func GetValidationErrors(err error) []ValidationError {
	var validationErrors []ValidationError

	if validationErrs, ok := err.(validator.ValidationErrors); ok {
		for _, e := range validationErrs {
			validationErrors = append(validationErrors, ValidationError{
				Field:   strings.ToLower(e.Field()),
				Tag:     e.Tag(),
				Message: getValidationMessage(e),
			})
		}
	}

	return validationErrors
}

func getValidationMessage(e validator.FieldError) string {
	switch e.Tag() {
	case "required":
		return e.Field() + " is required"
	case "min":
		return e.Field() + " must be at least " + e.Param()
	case "max":
		return e.Field() + " must be at most " + e.Param()
	case "gte":
		return e.Field() + " must be greater than or equal to " + e.Param()
	case "allocation_strategy":
		return "Strategy must be one of balanced, priority, demand-based, geographic"
	case "shop_domain":
		return "Domain must be a *.myshopify.com shop domain"
	case "product_status":
		return "Status must be one of DRAFT, ACTIVE, ARCHIVED"
	default:
		return e.Field() + " is invalid"
	}
}
