package iso8583

import (
	"fmt"
)

// BitmapFieldFormatter writes a bitmap over [lower, upper] through a binary
// encoder (raw bytes or hex digits). A bitmap is parsed as a unit.
type BitmapFieldFormatter struct {
	number      int
	description string
	lower       int
	upper       int
	encoder     BinaryEncoder
}

func NewBitmapFieldFormatter(number int, description string, lower, upper int, encoder BinaryEncoder) (*BitmapFieldFormatter, error) {
	if encoder == nil {
		return nil, fmt.Errorf("%w: bitmap %d has no encoder", ErrInvalidConfiguration, number)
	}
	if lower < 0 || upper < lower {
		return nil, fmt.Errorf("%w: bitmap %d range [%d, %d]", ErrInvalidConfiguration, number, lower, upper)
	}
	if number >= lower && number <= upper {
		return nil, fmt.Errorf("%w: bitmap %d cannot flag itself", ErrInvalidConfiguration, number)
	}
	return &BitmapFieldFormatter{
		number:      number,
		description: description,
		lower:       lower,
		upper:       upper,
		encoder:     encoder,
	}, nil
}

// MustBitmapFieldFormatter panics on invalid configuration.
func MustBitmapFieldFormatter(number int, description string, lower, upper int, encoder BinaryEncoder) *BitmapFieldFormatter {
	ff, err := NewBitmapFieldFormatter(number, description, lower, upper, encoder)
	if err != nil {
		panic(err)
	}
	return ff
}

func (ff *BitmapFieldFormatter) FieldNumber() int      { return ff.number }
func (ff *BitmapFieldFormatter) Description() string   { return ff.description }
func (ff *BitmapFieldFormatter) LowerFieldNumber() int { return ff.lower }
func (ff *BitmapFieldFormatter) UpperFieldNumber() int { return ff.upper }

// Covers tells whether field n is flagged by this bitmap.
func (ff *BitmapFieldFormatter) Covers(n int) bool {
	return n >= ff.lower && n <= ff.upper
}

// ByteLength is the size of the bit vector before encoding.
func (ff *BitmapFieldFormatter) ByteLength() int {
	return bitmapBytes(ff.lower, ff.upper)
}

// NewField returns an empty bitmap matching this formatter.
func (ff *BitmapFieldFormatter) NewField() *BitmapField {
	return &BitmapField{
		number: ff.number,
		lower:  ff.lower,
		upper:  ff.upper,
		bits:   make([]byte, ff.ByteLength()),
	}
}

func (ff *BitmapFieldFormatter) Format(field Field, fc *FormatterContext) error {
	bm, ok := field.(*BitmapField)
	if !ok {
		return fmt.Errorf("%w: bitmap formatter got a %s field", ErrFieldTypeMismatch, field.Kind())
	}
	if bm.lower != ff.lower || bm.upper != ff.upper {
		return fmt.Errorf("%w: bitmap range [%d, %d], formatter expects [%d, %d]",
			ErrInvalidBitmap, bm.lower, bm.upper, ff.lower, ff.upper)
	}
	return ff.encoder.Encode(bm.bits, fc)
}

func (ff *BitmapFieldFormatter) Parse(pc *ParserContext) (Field, bool, error) {
	size := ff.ByteLength()
	if pc.DataLength() < ff.encoder.EncodedLength(size) {
		return nil, false, nil
	}
	offset := pc.Offset()
	data, err := ff.encoder.Decode(pc, size)
	if err != nil {
		return nil, false, decodeFault(ff.number, offset, fmt.Errorf("%w: %w", ErrInvalidBitmap, err))
	}
	bm := ff.NewField()
	copy(bm.bits, data)
	return bm, true, nil
}
