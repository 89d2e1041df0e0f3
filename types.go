package iso8583

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

type FieldType int

const (
	FieldTypeANS FieldType = iota
	FieldTypeAN
	FieldTypeN
	FieldTypeB
	FieldTypeZ
	FieldTypeCustom
)

var fieldTypeNames = []string{"ANS", "AN", "N", "B", "Z", "CUSTOM"}

type BitmapEncoding int

const (
	BitmapEncodingBinary BitmapEncoding = iota
	BitmapEncodingHex
)

var bitmapEncodingNames = []string{"BINARY", "HEX"}

type LengthType int

const (
	LengthFixed LengthType = iota
	LengthLLVAR
	LengthLLLVAR
	LengthLLLLVAR
)

var lengthTypeNames = []string{"FIXED", "LLVAR", "LLLVAR", "LLLLVAR"}

type LengthIndicatorType int

const (
	LengthIndicatorNone LengthIndicatorType = iota
	LengthIndicatorBinary
	LengthIndicatorASCII
	LengthIndicatorHex
)

var lengthIndicatorNames = []string{"NONE", "BINARY", "ASCII", "HEX"}

type HeaderType int

const (
	HeaderNone HeaderType = iota
	HeaderBinary
	HeaderASCII
	HeaderHex
	HeaderCustom
)

var headerTypeNames = []string{"NONE", "BINARY", "ASCII", "HEX", "CUSTOM"}

type TLVType int

const (
	TLVStandard TLVType = iota
	TLVEMV
	TLVASCII
)

var tlvTypeNames = []string{"STANDARD", "EMV", "ASCII"}

// parseEnum accepts either the symbolic name (any case) or the numeric
// value of a configuration enum.
func parseEnum(kind string, text []byte, names []string) (int, error) {
	s := strings.ToUpper(strings.TrimSpace(string(text)))
	for i, name := range names {
		if s == name {
			return i, nil
		}
	}
	if n, err := strconv.Atoi(s); err == nil && n >= 0 && n < len(names) {
		return n, nil
	}
	return 0, fmt.Errorf("%w: unknown %s %q", ErrInvalidConfiguration, kind, string(text))
}

// unmarshalEnumJSON lets JSON carry enums as numbers or as names.
func unmarshalEnumJSON(kind string, data []byte, names []string) (int, error) {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		return parseEnum(kind, []byte(s), names)
	}
	var n int
	if err := json.Unmarshal(data, &n); err != nil {
		return 0, fmt.Errorf("%w: %s must be a name or a number", ErrInvalidConfiguration, kind)
	}
	return parseEnum(kind, []byte(strconv.Itoa(n)), names)
}

func enumName(v int, names []string) string {
	if v < 0 || v >= len(names) {
		return strconv.Itoa(v)
	}
	return names[v]
}

func (t FieldType) String() string { return enumName(int(t), fieldTypeNames) }

func (t *FieldType) UnmarshalText(text []byte) error {
	v, err := parseEnum("field type", text, fieldTypeNames)
	*t = FieldType(v)
	return err
}

func (t *FieldType) UnmarshalJSON(data []byte) error {
	v, err := unmarshalEnumJSON("field type", data, fieldTypeNames)
	*t = FieldType(v)
	return err
}

func (t LengthType) String() string { return enumName(int(t), lengthTypeNames) }

func (t *LengthType) UnmarshalText(text []byte) error {
	v, err := parseEnum("length type", text, lengthTypeNames)
	*t = LengthType(v)
	return err
}

func (t *LengthType) UnmarshalJSON(data []byte) error {
	v, err := unmarshalEnumJSON("length type", data, lengthTypeNames)
	*t = LengthType(v)
	return err
}

func (e BitmapEncoding) String() string { return enumName(int(e), bitmapEncodingNames) }

func (e *BitmapEncoding) UnmarshalText(text []byte) error {
	v, err := parseEnum("bitmap encoding", text, bitmapEncodingNames)
	*e = BitmapEncoding(v)
	return err
}

func (e *BitmapEncoding) UnmarshalJSON(data []byte) error {
	v, err := unmarshalEnumJSON("bitmap encoding", data, bitmapEncodingNames)
	*e = BitmapEncoding(v)
	return err
}

func (t LengthIndicatorType) String() string { return enumName(int(t), lengthIndicatorNames) }

func (t *LengthIndicatorType) UnmarshalText(text []byte) error {
	v, err := parseEnum("length indicator", text, lengthIndicatorNames)
	*t = LengthIndicatorType(v)
	return err
}

func (t *LengthIndicatorType) UnmarshalJSON(data []byte) error {
	v, err := unmarshalEnumJSON("length indicator", data, lengthIndicatorNames)
	*t = LengthIndicatorType(v)
	return err
}

func (t HeaderType) String() string { return enumName(int(t), headerTypeNames) }

func (t *HeaderType) UnmarshalText(text []byte) error {
	v, err := parseEnum("header type", text, headerTypeNames)
	*t = HeaderType(v)
	return err
}

func (t *HeaderType) UnmarshalJSON(data []byte) error {
	v, err := unmarshalEnumJSON("header type", data, headerTypeNames)
	*t = HeaderType(v)
	return err
}

func (t TLVType) String() string { return enumName(int(t), tlvTypeNames) }

func (t *TLVType) UnmarshalText(text []byte) error {
	v, err := parseEnum("TLV type", text, tlvTypeNames)
	*t = TLVType(v)
	return err
}

func (t *TLVType) UnmarshalJSON(data []byte) error {
	v, err := unmarshalEnumJSON("TLV type", data, tlvTypeNames)
	*t = TLVType(v)
	return err
}

type TLV struct {
	Tag    []byte
	Length int
	Value  []byte
}

// FieldConfig describes one data element of a packager definition.
type FieldConfig struct {
	Type        FieldType  `json:"type" toml:"type"`
	Length      LengthType `json:"length" toml:"length"`
	MaxLength   int        `json:"max_length" toml:"max_length"`
	MinLength   int        `json:"min_length" toml:"min_length"`
	Mandatory   bool       `json:"mandatory" toml:"mandatory"`
	Pattern     string     `json:"pattern,omitempty" toml:"pattern"`
	Description string     `json:"description,omitempty" toml:"description"`
}

type LengthIndicatorConfig struct {
	Type   LengthIndicatorType `json:"type" toml:"type"`
	Length int                 `json:"length" toml:"length"`
}

type HeaderConfig struct {
	Type   HeaderType `json:"type" toml:"type"`
	Length int        `json:"length" toml:"length"`
}

type TLVConfig struct {
	Type     TLVType `json:"type" toml:"type"`
	Enabled  bool    `json:"enabled" toml:"enabled"`
	Field    int     `json:"field" toml:"field"`
	MaxDepth int     `json:"max_depth" toml:"max_depth"`
}

// PackagerConfig is a declarative message layout. Compile turns it into a
// MessageFormatter.
type PackagerConfig struct {
	Fields           map[int]FieldConfig   `json:"fields" toml:"-"`
	BitmapEncoding   BitmapEncoding        `json:"bitmap_encoding" toml:"bitmap_encoding"`
	TertiaryBitmap   bool                  `json:"tertiary_bitmap" toml:"tertiary_bitmap"`
	EnforceMandatory bool                  `json:"enforce_mandatory" toml:"enforce_mandatory"`
	LengthIndicator  LengthIndicatorConfig `json:"length_indicator" toml:"length_indicator"`
	Header           HeaderConfig          `json:"header" toml:"header"`
	TLV              TLVConfig             `json:"tlv" toml:"tlv"`
}

const (
	DefaultBufferSize = 8192
	MaxFieldNumber    = 192
)
