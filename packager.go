package iso8583

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/pkg/errors"
)

// CompiledPackager is a PackagerConfig turned into ready formatters, plus
// the framing and TLV settings that live outside the message itself. It is
// immutable and safe for concurrent use.
type CompiledPackager struct {
	config    PackagerConfig
	formatter *MessageFormatter
	tlv       *TLVParser
}

// NewCompiledPackager compiles config. Options are passed to the message
// formatter.
func NewCompiledPackager(config *PackagerConfig, opts ...FormatterOption) (*CompiledPackager, error) {
	mf, err := Compile(config, opts...)
	if err != nil {
		return nil, err
	}
	cp := &CompiledPackager{config: *config, formatter: mf}
	if config.TLV.Enabled {
		if config.TLV.Type == TLVASCII {
			return nil, fmt.Errorf("%w: ASCII TLV needs explicit tag and length widths", ErrInvalidConfiguration)
		}
		cp.tlv = NewTLVParser(config.TLV.Type)
	}
	return cp, nil
}

// Formatter is the compiled message formatter.
func (cp *CompiledPackager) Formatter() *MessageFormatter {
	return cp.formatter
}

// GetFieldConfig retrieves the configuration for a specific field number.
func (cp *CompiledPackager) GetFieldConfig(fieldNum int) (FieldConfig, bool) {
	config, exists := cp.config.Fields[fieldNum]
	return config, exists
}

// LengthIndicator is the framing used around each message on a stream.
func (cp *CompiledPackager) LengthIndicator() LengthIndicatorConfig {
	return cp.config.LengthIndicator
}

// TLVs decodes the TLV field of msg, when TLV support is enabled.
func (cp *CompiledPackager) TLVs(msg *Message) ([]TLV, error) {
	if cp.tlv == nil {
		return nil, fmt.Errorf("%w: TLV support is disabled", ErrInvalidConfiguration)
	}
	data, err := msg.GetBytes(cp.config.TLV.Field)
	if err != nil {
		return nil, err
	}
	return cp.tlv.ParseTLV(data)
}

// Compile builds the message formatter described by config: the MTI as
// field -1, chained bitmaps at fields 0, 1 and optionally 65, and one
// formatter per configured data element.
func Compile(config *PackagerConfig, opts ...FormatterOption) (*MessageFormatter, error) {
	if config == nil {
		return nil, fmt.Errorf("%w: nil packager config", ErrInvalidConfiguration)
	}
	mf := NewMessageFormatter(opts...)

	hf, err := compileHeader(config.Header)
	if err != nil {
		return nil, err
	}
	mf.SetHeaderFormatter(hf)

	mti, err := NewStringFieldFormatter(FieldMTI, "Message Type Indicator", MustFixedLengthManager(4), ASCIIStringEncoder,
		WithValidator(MustFieldValidator(&NumericRule{})))
	if err != nil {
		return nil, err
	}

	var bitmapEncoder BinaryEncoder = RawBinaryEncoder
	if config.BitmapEncoding == BitmapEncodingHex {
		bitmapEncoder = HexBinaryEncoder
	}
	bitmaps := []*BitmapFieldFormatter{
		MustBitmapFieldFormatter(FieldPrimaryBitmap, "Primary Bitmap", 1, 64, bitmapEncoder),
		MustBitmapFieldFormatter(FieldSecondaryBitmap, "Secondary Bitmap", 65, 128, bitmapEncoder),
	}
	maxField := 128
	if config.TertiaryBitmap {
		bitmaps = append(bitmaps, MustBitmapFieldFormatter(FieldTertiaryBitmap, "Tertiary Bitmap", 129, 192, bitmapEncoder))
		maxField = 192
	}

	if err := mf.Add(mti); err != nil {
		return nil, err
	}
	reserved := map[int]bool{FieldMTI: true}
	for _, bm := range bitmaps {
		if err := mf.Add(bm); err != nil {
			return nil, err
		}
		reserved[bm.FieldNumber()] = true
	}

	for n, fc := range config.Fields {
		if reserved[n] {
			return nil, fmt.Errorf("%w: field %d is reserved for the MTI or a bitmap", ErrInvalidConfiguration, n)
		}
		if n < 1 || n > maxField {
			return nil, fmt.Errorf("%w: field %d outside 1..%d", ErrInvalidConfiguration, n, maxField)
		}
		ff, err := compileField(n, fc)
		if err != nil {
			return nil, err
		}
		if err := mf.Add(ff); err != nil {
			return nil, err
		}
		if config.EnforceMandatory && fc.Mandatory {
			mf.Require(n)
		}
	}
	return mf, nil
}

func compileLengthManager(n int, fc FieldConfig) (LengthManager, error) {
	var max int
	switch fc.Length {
	case LengthFixed:
		return NewFixedLengthManager(fc.MaxLength)
	case LengthLLVAR:
		max = 99
	case LengthLLLVAR:
		max = 999
	case LengthLLLLVAR:
		max = 9999
	default:
		return nil, fmt.Errorf("%w: field %d length type %d", ErrUnsupportedLengthType, n, fc.Length)
	}
	enc, err := NewStringLengthEncoder(max)
	if err != nil {
		return nil, err
	}
	return NewVariableLengthManager(fc.MinLength, fc.MaxLength, enc)
}

func compileField(n int, fc FieldConfig) (FieldFormatter, error) {
	lm, err := compileLengthManager(n, fc)
	if err != nil {
		return nil, fmt.Errorf("field %d: %w", n, err)
	}

	var opts []FieldFormatterOption
	if rules := rulesForConfig(fc); len(rules) > 0 {
		v, err := NewFieldValidator(rules...)
		if err != nil {
			return nil, fmt.Errorf("field %d: %w", n, err)
		}
		opts = append(opts, WithValidator(v))
	}

	desc := fc.Description
	if desc == "" {
		desc = "DE " + strconv.Itoa(n)
	}

	switch fc.Type {
	case FieldTypeN:
		opts = append(opts, WithPadder(ZeroLeftPadder))
		return NewStringFieldFormatter(n, desc, lm, ASCIIStringEncoder, opts...)
	case FieldTypeAN, FieldTypeANS:
		opts = append(opts, WithPadder(SpaceRightPadder))
		return NewStringFieldFormatter(n, desc, lm, ASCIIStringEncoder, opts...)
	case FieldTypeZ:
		return NewStringFieldFormatter(n, desc, lm, ASCIIStringEncoder, opts...)
	case FieldTypeB:
		return NewBinaryFieldFormatter(n, desc, lm, HexBinaryEncoder, opts...)
	default:
		return nil, fmt.Errorf("%w: field %d type %s needs a hand-built formatter", ErrInvalidConfiguration, n, fc.Type)
	}
}

func compileHeader(hc HeaderConfig) (MessageHeaderFormatter, error) {
	if hc.Type == HeaderNone {
		return nil, nil
	}
	lm, err := NewFixedLengthManager(hc.Length)
	if err != nil {
		return nil, err
	}
	switch hc.Type {
	case HeaderASCII:
		return NewStringMessageHeaderFormatter(lm, ASCIIStringEncoder, SpaceRightPadder)
	case HeaderBinary:
		return NewStringMessageHeaderFormatter(lm, ASCIIStringEncoder, nil)
	case HeaderHex:
		return NewStringMessageHeaderFormatter(lm, HexStringEncoder, nil)
	default:
		return nil, fmt.Errorf("%w: header type %s needs a hand-built formatter", ErrInvalidConfiguration, hc.Type)
	}
}

// LoadPackagerFromJSON unmarshals a JSON byte slice into a PackagerConfig
// and returns a new CompiledPackager.
func LoadPackagerFromJSON(data []byte, opts ...FormatterOption) (*CompiledPackager, error) {
	var config PackagerConfig
	if err := json.Unmarshal(data, &config); err != nil {
		return nil, errors.Wrap(err, "failed to parse packager config")
	}
	return NewCompiledPackager(&config, opts...)
}

// tomlPackagerConfig mirrors PackagerConfig with string keys, since TOML
// table keys are always strings.
type tomlPackagerConfig struct {
	PackagerConfig
	Fields map[string]FieldConfig `toml:"fields"`
}

// LoadPackagerFromTOML reads a packager definition such as
//
//	bitmap_encoding = "hex"
//
//	[fields.2]
//	type = "N"
//	length = "LLVAR"
//	max_length = 19
func LoadPackagerFromTOML(data []byte, opts ...FormatterOption) (*CompiledPackager, error) {
	var raw tomlPackagerConfig
	meta, err := toml.Decode(string(data), &raw)
	if err != nil {
		return nil, errors.Wrap(err, "failed to parse packager config")
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		return nil, errors.Wrapf(ErrInvalidConfiguration, "unknown packager key %q", undecoded[0].String())
	}
	config := raw.PackagerConfig
	config.Fields = make(map[int]FieldConfig, len(raw.Fields))
	for key, fc := range raw.Fields {
		n, err := strconv.Atoi(key)
		if err != nil {
			return nil, errors.Wrapf(ErrInvalidConfiguration, "field key %q is not a number", key)
		}
		config.Fields[n] = fc
	}
	return NewCompiledPackager(&config, opts...)
}

// LoadPackagerFile picks the decoder from the file extension (.json or
// .toml).
func LoadPackagerFile(path string, opts ...FormatterOption) (*CompiledPackager, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "read packager %s", path)
	}
	var cp *CompiledPackager
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		cp, err = LoadPackagerFromJSON(data, opts...)
	case ".toml":
		cp, err = LoadPackagerFromTOML(data, opts...)
	default:
		return nil, errors.Wrapf(ErrInvalidConfiguration, "unknown packager format %q", filepath.Ext(path))
	}
	if err != nil {
		return nil, errors.Wrapf(err, "load packager %s", path)
	}
	return cp, nil
}

// DefaultPackagerConfig returns the ISO 8583:1987 layout with hex bitmaps
// and no framing.
func DefaultPackagerConfig() *PackagerConfig {
	fields := make(map[int]FieldConfig, len(DefaultConfigField))
	for n, fc := range DefaultConfigField {
		fields[n] = fc
	}
	return &PackagerConfig{
		Fields:         fields,
		BitmapEncoding: BitmapEncodingHex,
		LengthIndicator: LengthIndicatorConfig{
			Type:   LengthIndicatorNone,
			Length: 0,
		},
		Header: HeaderConfig{
			Type:   HeaderNone,
			Length: 0,
		},
		TLV: TLVConfig{
			Type:     TLVEMV,
			Enabled:  true,
			Field:    55,
			MaxDepth: 3,
		},
	}
}

// NewPackagerConfig creates a new PackagerConfig using the options pattern.
func NewPackagerConfig(opts ...PackagerOption) *PackagerConfig {
	config := DefaultPackagerConfig()
	for _, opt := range opts {
		opt(config)
	}
	return config
}
