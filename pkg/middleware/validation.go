package middleware

import (
	"errors"
	"net/http"
	"reflect"
	"regexp"
	"strings"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"

	apperrors "github.com/meal-program/production-service/pkg/errors"
)

var (
	validate     *validator.Validate
	validateOnce sync.Once
)

var (
	batchNumberRegex = regexp.MustCompile(`^PROD-\d{8}-\d{3}$`)
	checkTypes       = setOf("TEMPERATURE", "HYGIENE", "TASTE", "APPEARANCE", "SAFETY")
	severities       = setOf("LOW", "MEDIUM", "HIGH", "CRITICAL")
	batchStatuses    = setOf("PLANNED", "PREPARING", "COOKING", "QUALITY_CHECK", "COMPLETED", "CANCELLED")
)

func setOf(values ...string) map[string]bool {
	m := make(map[string]bool, len(values))
	for _, v := range values {
		m[v] = true
	}
	return m
}

func registerCustom(v *validator.Validate) {
	_ = v.RegisterValidation("batch_number", func(fl validator.FieldLevel) bool {
		return batchNumberRegex.MatchString(fl.Field().String())
	})
	_ = v.RegisterValidation("check_type", func(fl validator.FieldLevel) bool {
		return checkTypes[fl.Field().String()]
	})
	_ = v.RegisterValidation("severity", func(fl validator.FieldLevel) bool {
		return severities[fl.Field().String()]
	})
	_ = v.RegisterValidation("batch_status", func(fl validator.FieldLevel) bool {
		return batchStatuses[fl.Field().String()]
	})

	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "" || name == "-" {
			name = strings.SplitN(fld.Tag.Get("form"), ",", 2)[0]
		}
		if name == "" || name == "-" {
			return fld.Name
		}
		return name
	})
}

// InitValidator registers the custom validators on both the package
// validator and Gin's binding engine
func InitValidator() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New()
		registerCustom(validate)

		if v, ok := binding.Validator.Engine().(*validator.Validate); ok {
			registerCustom(v)
		}
	})
	return validate
}

// ValidationErrorFormatter formats validation errors into a field map
func ValidationErrorFormatter(err error) map[string]string {
	fields := make(map[string]string)

	var validationErrors validator.ValidationErrors
	if errors.As(err, &validationErrors) {
		for _, e := range validationErrors {
			fields[e.Field()] = formatValidationError(e)
		}
	}
	return fields
}

func formatValidationError(e validator.FieldError) string {
	switch e.Tag() {
	case "required":
		return "is required"
	case "min":
		return "must be at least " + e.Param()
	case "max":
		return "must be at most " + e.Param()
	case "gte":
		return "must be greater than or equal to " + e.Param()
	case "lte":
		return "must be less than or equal to " + e.Param()
	case "gtfield":
		return "must be after " + e.Param()
	case "uuid":
		return "must be a valid UUID"
	case "batch_number":
		return "must be a valid batch number (format: PROD-YYYYMMDD-NNN)"
	case "check_type":
		return "must be one of: TEMPERATURE, HYGIENE, TASTE, APPEARANCE, SAFETY"
	case "severity":
		return "must be one of: LOW, MEDIUM, HIGH, CRITICAL"
	case "batch_status":
		return "must be one of: PLANNED, PREPARING, COOKING, QUALITY_CHECK, COMPLETED, CANCELLED"
	case "oneof":
		return "must be one of: " + e.Param()
	case "datetime":
		return "must be a date in format " + e.Param()
	default:
		return "is invalid"
	}
}

func bindingError(err error) *apperrors.AppError {
	var validationErrors validator.ValidationErrors
	if errors.As(err, &validationErrors) {
		return apperrors.ErrValidationWithFields("validation failed", ValidationErrorFormatter(validationErrors))
	}
	return apperrors.ErrBadRequest("invalid request: " + err.Error())
}

// BindAndValidate binds the JSON body and validates it
func BindAndValidate(c *gin.Context, obj interface{}) *apperrors.AppError {
	if err := c.ShouldBindJSON(obj); err != nil {
		return bindingError(err)
	}
	return nil
}

// BindQuery binds and validates query parameters
func BindQuery(c *gin.Context, obj interface{}) *apperrors.AppError {
	if err := c.ShouldBindQuery(obj); err != nil {
		return bindingError(err)
	}
	return nil
}

// SanitizeString removes null bytes and surrounding whitespace
func SanitizeString(s string) string {
	return strings.TrimSpace(strings.ReplaceAll(s, "\x00", ""))
}

// InputSanitizer sanitizes query parameters
func InputSanitizer() gin.HandlerFunc {
	return func(c *gin.Context) {
		query := c.Request.URL.Query()
		for key, values := range query {
			for i, v := range values {
				values[i] = SanitizeString(v)
			}
			query[key] = values
		}
		c.Request.URL.RawQuery = query.Encode()

		c.Next()
	}
}

// ContentType rejects non-JSON bodies on write methods
func ContentType() gin.HandlerFunc {
	return func(c *gin.Context) {
		switch c.Request.Method {
		case http.MethodPost, http.MethodPut, http.MethodPatch:
			contentType := c.GetHeader("Content-Type")
			if !strings.HasPrefix(contentType, "application/json") && c.Request.ContentLength > 0 {
				AbortWithAppError(c, apperrors.NewAppError("INVALID_CONTENT_TYPE", "Content-Type must be application/json", http.StatusUnsupportedMediaType))
				return
			}
		}
		c.Next()
	}
}
