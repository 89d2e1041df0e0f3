package iso8583

import (
	"fmt"
	"regexp"
	"strconv"
)

// ValidationRule checks the payload of a single field.
type ValidationRule interface {
	Validate(value []byte) error
	Name() string // Returns the name of the rule (e.g., "length")
}

// FieldValidator runs an ordered set of rules against one field's value.
// It is immutable after construction and safe for concurrent use.
type FieldValidator struct {
	rules []ValidationRule
}

// NewFieldValidator prepares the rules for use. Regex rules are compiled
// here so a bad pattern is a configuration fault rather than a runtime one.
func NewFieldValidator(rules ...ValidationRule) (*FieldValidator, error) {
	fv := &FieldValidator{rules: make([]ValidationRule, 0, len(rules))}
	for _, rule := range rules {
		if rule == nil {
			return nil, fmt.Errorf("%w: nil validation rule", ErrInvalidConfiguration)
		}
		if rr, ok := rule.(*RegexRule); ok && rr.regex == nil {
			re, err := regexp.Compile(rr.Pattern)
			if err != nil {
				return nil, fmt.Errorf("%w: regex rule: %v", ErrInvalidConfiguration, err)
			}
			rr.regex = re
		}
		fv.rules = append(fv.rules, rule)
	}
	return fv, nil
}

// MustFieldValidator panics on invalid configuration.
func MustFieldValidator(rules ...ValidationRule) *FieldValidator {
	fv, err := NewFieldValidator(rules...)
	if err != nil {
		panic(err)
	}
	return fv
}

// Validate returns a *ValidationError for the first rule that fails.
func (fv *FieldValidator) Validate(field int, value []byte) error {
	if fv == nil {
		return nil
	}
	for _, rule := range fv.rules {
		if err := rule.Validate(value); err != nil {
			return &ValidationError{
				Field:   field,
				Rule:    rule.Name(),
				Message: err.Error(),
			}
		}
	}
	return nil
}

// Rules returns the configured rules.
func (fv *FieldValidator) Rules() []ValidationRule {
	if fv == nil {
		return nil
	}
	out := make([]ValidationRule, len(fv.rules))
	copy(out, fv.rules)
	return out
}

// --- Validation Rule Implementations ---

// LengthRule validates the field's length.
type LengthRule struct {
	MinLength   int
	MaxLength   int
	ExactLength int
	AllowEmpty  bool
}

// Name returns the rule name.
func (r *LengthRule) Name() string {
	return "length"
}

// Validate checks the field's length constraints.
func (r *LengthRule) Validate(value []byte) error {
	length := len(value)

	if length == 0 && r.AllowEmpty {
		return nil
	}

	if r.ExactLength > 0 && length != r.ExactLength {
		return fmt.Errorf("expected length %d, got %d", r.ExactLength, length)
	}

	if r.MinLength > 0 && length < r.MinLength {
		return fmt.Errorf("length %d below minimum %d", length, r.MinLength)
	}

	if r.MaxLength > 0 && length > r.MaxLength {
		return fmt.Errorf("length %d exceeds maximum %d", length, r.MaxLength)
	}

	return nil
}

// NumericRule validates that the field contains only numeric digits.
type NumericRule struct {
	AllowEmpty     bool
	NoLeadingZeros bool
}

// Name returns the rule name.
func (r *NumericRule) Name() string {
	return "numeric"
}

// Validate checks for non-numeric characters.
func (r *NumericRule) Validate(value []byte) error {
	if len(value) == 0 && r.AllowEmpty {
		return nil
	}

	for i, b := range value {
		if b < '0' || b > '9' {
			return fmt.Errorf("non-numeric character at position %d", i)
		}
	}

	if r.NoLeadingZeros && len(value) > 1 && value[0] == '0' {
		return fmt.Errorf("leading zeros not allowed")
	}

	return nil
}

// AlphanumericRule validates alphanumeric content.
type AlphanumericRule struct {
	AllowEmpty        bool
	AllowSpecialChars bool   // If true, allows any printable ASCII. If false, only [0-9a-zA-Z ].
	CustomCharset     string // If set, validates against this specific charset.
}

// Name returns the rule name.
func (r *AlphanumericRule) Name() string {
	return "alphanumeric"
}

// Validate checks for invalid characters.
func (r *AlphanumericRule) Validate(value []byte) error {
	if len(value) == 0 && r.AllowEmpty {
		return nil
	}

	for i, b := range value {
		switch {
		case r.CustomCharset != "":
			found := false
			for j := 0; j < len(r.CustomCharset); j++ {
				if r.CustomCharset[j] == b {
					found = true
					break
				}
			}
			if !found {
				return fmt.Errorf("invalid character at position %d", i)
			}
		case r.AllowSpecialChars:
			if b < 32 || b > 126 {
				return fmt.Errorf("non-printable character at position %d", i)
			}
		default:
			if !((b >= '0' && b <= '9') || (b >= 'A' && b <= 'Z') || (b >= 'a' && b <= 'z') || b == ' ') {
				return fmt.Errorf("special character not allowed at position %d", i)
			}
		}
	}

	return nil
}

// BinaryRule validates binary data.
type BinaryRule struct {
	AllowEmpty        bool
	RequireEvenLength bool
}

// Name returns the rule name.
func (r *BinaryRule) Name() string {
	return "binary"
}

// Validate checks binary data constraints.
func (r *BinaryRule) Validate(value []byte) error {
	if len(value) == 0 && r.AllowEmpty {
		return nil
	}

	if r.RequireEvenLength && len(value)%2 != 0 {
		return fmt.Errorf("binary data must have even length")
	}

	return nil
}

// RegexRule validates the field against a regular expression. The pattern is
// compiled by NewFieldValidator or NewRegexRule.
type RegexRule struct {
	Pattern     string
	AllowEmpty  bool
	Description string // User-friendly error message
	regex       *regexp.Regexp
}

// NewRegexRule compiles pattern eagerly.
func NewRegexRule(pattern, description string) (*RegexRule, error) {
	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, fmt.Errorf("%w: regex rule: %v", ErrInvalidConfiguration, err)
	}
	return &RegexRule{Pattern: pattern, Description: description, regex: re}, nil
}

// Name returns the rule name.
func (r *RegexRule) Name() string {
	return "regex"
}

// Validate checks the field against the compiled regex.
func (r *RegexRule) Validate(value []byte) error {
	if len(value) == 0 && r.AllowEmpty {
		return nil
	}

	if r.regex == nil {
		return fmt.Errorf("pattern %s was never compiled", r.Pattern)
	}

	if !r.regex.Match(value) {
		if r.Description != "" {
			return fmt.Errorf("%s", r.Description)
		}
		return fmt.Errorf("does not match pattern %s", r.Pattern)
	}

	return nil
}

// RangeRule validates that a numeric field's value is within a given range.
type RangeRule struct {
	Min        int64
	Max        int64
	AllowEmpty bool
}

// Name returns the rule name.
func (r *RangeRule) Name() string {
	return "range"
}

// Validate parses the field as an int64 and checks the range.
func (r *RangeRule) Validate(value []byte) error {
	if len(value) == 0 && r.AllowEmpty {
		return nil
	}

	val, err := strconv.ParseInt(string(value), 10, 64)
	if err != nil {
		return fmt.Errorf("cannot parse as integer: %v", err)
	}

	if val < r.Min {
		return fmt.Errorf("value %d below minimum %d", val, r.Min)
	}

	if val > r.Max {
		return fmt.Errorf("value %d exceeds maximum %d", val, r.Max)
	}

	return nil
}

// CustomRule allows defining an arbitrary validation function.
type CustomRule struct {
	ValidateFunc func([]byte) error
	RuleName     string
}

// Name returns the custom rule name.
func (r *CustomRule) Name() string {
	return r.RuleName
}

// Validate executes the custom validation function.
func (r *CustomRule) Validate(value []byte) error {
	return r.ValidateFunc(value)
}

// rulesForConfig derives the content rules implied by a packager field
// definition.
func rulesForConfig(config FieldConfig) []ValidationRule {
	var rules []ValidationRule

	if config.MinLength > 0 {
		rules = append(rules, &LengthRule{MinLength: config.MinLength})
	}

	switch config.Type {
	case FieldTypeN:
		rules = append(rules, &NumericRule{AllowEmpty: config.Length != LengthFixed})
	case FieldTypeAN:
		rules = append(rules, &AlphanumericRule{AllowEmpty: true})
	case FieldTypeANS:
		rules = append(rules, &AlphanumericRule{AllowEmpty: true, AllowSpecialChars: true})
	}

	if config.Pattern != "" {
		rules = append(rules, &RegexRule{Pattern: config.Pattern, AllowEmpty: true})
	}

	return rules
}
