package iso8583

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"
)

// SubfieldSpec locates a value inside a field, such as a date or a code
// packed into a private use element.
type SubfieldSpec struct {
	Field       int    `json:"field" toml:"field"`
	DataType    string `json:"data_type" toml:"data_type"` // "numeric", "alpha", "alphanumeric", "alphanumeric_special", "hex", "any"
	Length      int    `json:"length" toml:"length"`
	Padding     string `json:"padding" toml:"padding"` // "left", "right", "none"
	PadChar     string `json:"pad_char" toml:"pad_char"`
	Format      string `json:"format,omitempty" toml:"format"` // "YYYYMMDD", "YYYY", ...
	From        int    `json:"from,omitempty" toml:"from"`      // 1-based, inclusive
	Until       int    `json:"until,omitempty" toml:"until"`    // 1-based, inclusive
	Required    bool   `json:"required" toml:"required"`
	TrimPadding bool   `json:"trim_padding" toml:"trim_padding"`
}

// Padding constants
const (
	PaddingLeft  = "left"
	PaddingRight = "right"
	PaddingNone  = "none"
)

// Format constants
const (
	FormatYYYYMMDD = "YYYYMMDD"
	FormatYYYY     = "YYYY"
	FormatYYMMDD   = "YYMMDD"
	FormatMMDD     = "MMDD"
	FormatHHMMSS   = "HHMMSS"
)

// DataType constants
const (
	DataTypeNumeric             = "numeric"
	DataTypeAlpha               = "alpha"
	DataTypeAlphanumeric        = "alphanumeric"
	DataTypeAlphanumericSpecial = "alphanumeric_special"
	DataTypeHex                 = "hex"
	DataTypeAny                 = "any"
)

var (
	alphaRule = &RegexRule{Pattern: "^[A-Za-z]*$", Description: "alphabetic characters only"}
	hexRule   = &RegexRule{Pattern: "^[0-9A-Fa-f]*$", Description: "hex digits only"}

	dataTypeRules = map[string]*FieldValidator{
		DataTypeNumeric:             MustFieldValidator(&NumericRule{AllowEmpty: true}),
		DataTypeAlpha:               MustFieldValidator(alphaRule),
		DataTypeAlphanumeric:        MustFieldValidator(&AlphanumericRule{AllowEmpty: true, CustomCharset: "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz"}),
		DataTypeAlphanumericSpecial: MustFieldValidator(&AlphanumericRule{AllowEmpty: true, AllowSpecialChars: true}),
		DataTypeHex:                 MustFieldValidator(hexRule),
	}

	dateLayouts = map[string]string{
		FormatYYYYMMDD: "20060102",
		FormatYYMMDD:   "060102",
		FormatMMDD:     "0102",
		FormatHHMMSS:   "150405",
	}
)

// SubfieldResult is the outcome of one extraction.
type SubfieldResult struct {
	Value    string `json:"value"`
	Field    int    `json:"field"`
	DataType string `json:"data_type"`
	IsValid  bool   `json:"is_valid"`
	Error    string `json:"error,omitempty"`
}

// ExtractSubfields pulls the value of every SubfieldSpec out of msg. Results are returned
// for all keys that could be looked at; the error lists every failure.
func ExtractSubfields(msg *Message, specs map[string]SubfieldSpec) (map[string]SubfieldResult, error) {
	results := make(map[string]SubfieldResult, len(specs))
	var failures []string

	keys := make([]string, 0, len(specs))
	for key := range specs {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	for _, key := range keys {
		spec := specs[key]
		raw, err := msg.GetString(spec.Field)
		if err != nil {
			if spec.Required {
				reason := fmt.Sprintf("field %d (%s): required: %v", spec.Field, key, err)
				failures = append(failures, reason)
				results[key] = SubfieldResult{Field: spec.Field, DataType: spec.DataType, Error: reason}
			}
			continue
		}

		value, err := spec.extract(raw)
		result := SubfieldResult{Value: value, Field: spec.Field, DataType: spec.DataType, IsValid: err == nil}
		if err != nil {
			result.Error = fmt.Sprintf("field %d (%s): %v", spec.Field, key, err)
			failures = append(failures, result.Error)
		}
		results[key] = result
	}

	if len(failures) > 0 {
		return results, fmt.Errorf("%w: %s", ErrValidationFailed, strings.Join(failures, "; "))
	}
	return results, nil
}

func (s SubfieldSpec) extract(raw string) (string, error) {
	value := raw
	if s.From > 0 || s.Until > 0 {
		if s.From < 1 || s.Until < s.From {
			return "", fmt.Errorf("%w: range %d..%d", ErrInvalidConfiguration, s.From, s.Until)
		}
		if s.Until > len(raw) {
			return "", fmt.Errorf("%w: range ends at %d, value has %d characters", ErrInvalidLength, s.Until, len(raw))
		}
		value = raw[s.From-1 : s.Until]
	}

	if s.TrimPadding && s.PadChar != "" {
		switch s.Padding {
		case PaddingLeft:
			// left justified, filler on the right
			value = strings.TrimRight(value, s.PadChar)
		case PaddingRight:
			value = strings.TrimLeft(value, s.PadChar)
		}
	}

	if err := checkDateFormat(value, s.Format); err != nil {
		return value, err
	}

	if s.DataType != "" && s.DataType != DataTypeAny {
		v, ok := dataTypeRules[s.DataType]
		if !ok {
			return value, fmt.Errorf("%w: unknown data type %q", ErrInvalidConfiguration, s.DataType)
		}
		if err := v.Validate(s.Field, []byte(value)); err != nil {
			return value, err
		}
	}

	if s.Length > 0 && !s.TrimPadding && len(value) != s.Length {
		return value, fmt.Errorf("%w: expected %d characters, got %d", ErrInvalidLength, s.Length, len(value))
	}
	return value, nil
}

func checkDateFormat(value, format string) error {
	if format == "" {
		return nil
	}
	if format == FormatYYYY {
		year, err := strconv.Atoi(value)
		if err != nil || len(value) != 4 || year < 1900 || year > 2100 {
			return fmt.Errorf("invalid year %q", value)
		}
		return nil
	}
	layout, ok := dateLayouts[format]
	if !ok {
		return fmt.Errorf("%w: unknown format %q", ErrInvalidConfiguration, format)
	}
	if len(value) != len(layout) {
		return fmt.Errorf("invalid %s value %q", format, value)
	}
	if _, err := time.Parse(layout, value); err != nil {
		return fmt.Errorf("invalid %s value %q: %w", format, value, err)
	}
	return nil
}
