package validation

import (
	"encoding/json"
	"fmt"
	"strings"
	"unicode/utf8"
)

// Kind tags a structural validation failure so callers can map each class of
// failure to the right client-facing status.
type Kind string

const (
	TooDeep      Kind = "too_deep"
	TooLarge     Kind = "too_large"
	MissingField Kind = "missing_field"
	InvalidValue Kind = "invalid_value"
)

// Error is a tagged validation failure.
type Error struct {
	Kind    Kind
	Field   string
	Message string
}

func (e *Error) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("%s: %s", e.Field, e.Message)
	}
	return e.Message
}

// Config defines the structural limits applied to untrusted input
type Config struct {
	// MaxDepth is the maximum JSON nesting depth for content fields.
	// See Validator.ValidateContent for the counting convention.
	MaxDepth int
	// MaxContentBytes is the maximum serialized size of a content field
	MaxContentBytes int
	// MaxTitleLength is the maximum title length in runes, after trimming
	MaxTitleLength int
}

// DefaultConfig returns the default structural limits
func DefaultConfig() *Config {
	return &Config{
		MaxDepth:        10,
		MaxContentBytes: 50 * 1024,
		MaxTitleLength:  200,
	}
}

// Validator performs structural validation on untrusted input. It runs before
// any resource lookup and knows nothing about principals or resources.
type Validator struct {
	config *Config
}

// NewValidator creates a validator with the given limits
func NewValidator(config *Config) *Validator {
	if config == nil {
		config = DefaultConfig()
	}
	return &Validator{config: config}
}

// ValidateTitle checks that a title is present and within length limits.
// Leading and trailing whitespace does not count toward either check.
func (v *Validator) ValidateTitle(title string) *Error {
	trimmed := strings.TrimSpace(title)
	if trimmed == "" {
		return &Error{Kind: MissingField, Field: "title", Message: "title is required"}
	}
	if utf8.RuneCountInString(trimmed) > v.config.MaxTitleLength {
		return &Error{
			Kind:    InvalidValue,
			Field:   "title",
			Message: fmt.Sprintf("title must be at most %d characters", v.config.MaxTitleLength),
		}
	}
	return nil
}

// ValidateContent checks a free-form JSON content value against the size and
// nesting limits.
//
// Depth convention: a bare scalar has depth 0; an object or array whose
// children are all scalars has depth 1, and each enclosing object or array
// adds one level. An empty object counts as depth 1. The configured maximum
// is inclusive: a value at exactly
// MaxDepth is accepted, one level deeper is rejected. Size is likewise
// inclusive: exactly MaxContentBytes is accepted, one byte over is rejected.
func (v *Validator) ValidateContent(field string, content json.RawMessage) *Error {
	if len(content) == 0 {
		return nil
	}
	if len(content) > v.config.MaxContentBytes {
		return &Error{
			Kind:    TooLarge,
			Field:   field,
			Message: fmt.Sprintf("content exceeds maximum size of %d bytes", v.config.MaxContentBytes),
		}
	}

	var value any
	if err := json.Unmarshal(content, &value); err != nil {
		return &Error{Kind: InvalidValue, Field: field, Message: "content is not valid JSON"}
	}
	if depth(value) > v.config.MaxDepth {
		return &Error{
			Kind:    TooDeep,
			Field:   field,
			Message: fmt.Sprintf("content exceeds maximum nesting depth of %d", v.config.MaxDepth),
		}
	}
	return nil
}

// ValidateRequiredID checks that a numeric identifier field was supplied.
func (v *Validator) ValidateRequiredID(field string, id int64) *Error {
	if id <= 0 {
		return &Error{Kind: MissingField, Field: field, Message: field + " is required"}
	}
	return nil
}

// depth measures JSON nesting. Scalars contribute no depth of their own;
// each object or array wrapper adds one, so {"a": 1} is depth 1 and
// {"a": {"b": 1}} is depth 2.
func depth(value any) int {
	switch v := value.(type) {
	case map[string]any:
		deepest := 0
		for _, child := range v {
			if d := depth(child); d > deepest {
				deepest = d
			}
		}
		return deepest + 1
	case []any:
		deepest := 0
		for _, child := range v {
			if d := depth(child); d > deepest {
				deepest = d
			}
		}
		return deepest + 1
	default:
		return 0
	}
}
