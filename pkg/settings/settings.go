// Package settings holds the user-editable configuration of the assistant
// and the stores it is persisted in.
package settings

import (
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
)

// Defaults for a fresh install.
const (
	DefaultUprightAngle       = 50.0
	DefaultAudioTimeoutMs     = 1000
	DefaultCompressionQuality = 50
	DefaultGeminiModel        = "gemini-2.0-flash"
	DefaultUsername           = "User"
)

// Configuration is the flat settings object edited on the settings screen.
type Configuration struct {
	// UprightAngle is the activation threshold in degrees.
	UprightAngle float64 `json:"uprightAngle" validate:"gte=0,lte=90"`

	// AudioTimeout is the transcript stabilization interval in milliseconds.
	AudioTimeout int `json:"audioTimeout" validate:"gte=200,lte=10000"`

	// CompressionQuality is the JPEG quality in percent.
	CompressionQuality int `json:"compressionQuality" validate:"gte=1,lte=100"`

	GeminiModel  string `json:"geminiModel" validate:"required"`
	GeminiAPIKey string `json:"geminiApiKey"`
	Username     string `json:"username" validate:"required,max=64"`
}

// Defaults returns the built-in configuration.
func Defaults() Configuration {
	return Configuration{
		UprightAngle:       DefaultUprightAngle,
		AudioTimeout:       DefaultAudioTimeoutMs,
		CompressionQuality: DefaultCompressionQuality,
		GeminiModel:        DefaultGeminiModel,
		Username:           DefaultUsername,
	}
}

// StabilizationTimeout returns AudioTimeout as a duration.
func (c Configuration) StabilizationTimeout() time.Duration {
	return time.Duration(c.AudioTimeout) * time.Millisecond
}

// HasAPIKey reports whether a non-blank API key is configured.
func (c Configuration) HasAPIKey() bool {
	return strings.TrimSpace(c.GeminiAPIKey) != ""
}

// Redacted returns a copy safe to log or serve, with the API key masked.
func (c Configuration) Redacted() Configuration {
	if c.HasAPIKey() {
		key := c.GeminiAPIKey
		if len(key) > 4 {
			c.GeminiAPIKey = strings.Repeat("*", len(key)-4) + key[len(key)-4:]
		} else {
			c.GeminiAPIKey = "****"
		}
	}
	return c
}

// Patch is a partially specified configuration as stored on disk.
// Nil fields were absent.
type Patch struct {
	UprightAngle       *float64 `json:"uprightAngle,omitempty"`
	AudioTimeout       *int     `json:"audioTimeout,omitempty"`
	CompressionQuality *int     `json:"compressionQuality,omitempty"`
	GeminiModel        *string  `json:"geminiModel,omitempty"`
	GeminiAPIKey       *string  `json:"geminiApiKey,omitempty"`
	Username           *string  `json:"username,omitempty"`
}

// PatchOf returns a patch that sets every field of c.
func PatchOf(c Configuration) Patch {
	return Patch{
		UprightAngle:       &c.UprightAngle,
		AudioTimeout:       &c.AudioTimeout,
		CompressionQuality: &c.CompressionQuality,
		GeminiModel:        &c.GeminiModel,
		GeminiAPIKey:       &c.GeminiAPIKey,
		Username:           &c.Username,
	}
}

// Merge applies p on top of c. Absent fields and blank strings keep the
// value from c.
func (c Configuration) Merge(p Patch) Configuration {
	if p.UprightAngle != nil {
		c.UprightAngle = *p.UprightAngle
	}
	if p.AudioTimeout != nil {
		c.AudioTimeout = *p.AudioTimeout
	}
	if p.CompressionQuality != nil {
		c.CompressionQuality = *p.CompressionQuality
	}
	c.GeminiModel = nonBlank(p.GeminiModel, c.GeminiModel)
	c.GeminiAPIKey = nonBlank(p.GeminiAPIKey, c.GeminiAPIKey)
	c.Username = nonBlank(p.Username, c.Username)
	return c
}

func nonBlank(p *string, fallback string) string {
	if p == nil {
		return fallback
	}
	if v := strings.TrimSpace(*p); v != "" {
		return v
	}
	return fallback
}

var validate *validator.Validate

func init() {
	validate = validator.New(validator.WithRequiredStructEnabled())

	// Report JSON names so messages match the stored keys.
	validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" || name == "" {
			return fld.Name
		}
		return name
	})
}

// FieldIssue describes a rejected settings value.
type FieldIssue struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

func (f FieldIssue) String() string {
	return f.Field + " " + f.Message
}

// Validate checks c and returns one issue per invalid field.
func (c Configuration) Validate() []FieldIssue {
	err := validate.Struct(c)
	if err == nil {
		return nil
	}
	verrs, ok := err.(validator.ValidationErrors)
	if !ok {
		return []FieldIssue{{Field: "", Message: err.Error()}}
	}
	issues := make([]FieldIssue, 0, len(verrs))
	for _, e := range verrs {
		issues = append(issues, FieldIssue{Field: e.Field(), Message: formatValidationMessage(e)})
	}
	return issues
}

// Sanitize replaces every invalid field of c with the value from fallback.
// It returns the corrected configuration and the issues that were fixed.
func (c Configuration) Sanitize(fallback Configuration) (Configuration, []FieldIssue) {
	issues := c.Validate()
	for _, is := range issues {
		switch is.Field {
		case "uprightAngle":
			c.UprightAngle = fallback.UprightAngle
		case "audioTimeout":
			c.AudioTimeout = fallback.AudioTimeout
		case "compressionQuality":
			c.CompressionQuality = fallback.CompressionQuality
		case "geminiModel":
			c.GeminiModel = fallback.GeminiModel
		case "username":
			c.Username = fallback.Username
		}
	}
	return c, issues
}

func formatValidationMessage(e validator.FieldError) string {
	switch e.Tag() {
	case "required":
		return "is required"
	case "gte":
		return fmt.Sprintf("must be greater than or equal to %s", e.Param())
	case "lte":
		return fmt.Sprintf("must be less than or equal to %s", e.Param())
	case "max":
		return fmt.Sprintf("must be at most %s characters", e.Param())
	default:
		return fmt.Sprintf("failed validation '%s'", e.Tag())
	}
}
