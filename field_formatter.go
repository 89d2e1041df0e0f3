package iso8583

import (
	"fmt"
	"unicode/utf8"
)

// FieldFormatter writes and reads one field. Parse returns false with a nil
// error when the buffered bytes do not hold the whole field yet; whatever it
// has committed so far (a length prefix, an announced tag) is kept in the
// ParserContext and picked up by the next call. A decoded value that fails
// a validator comes back complete together with its *ValidationError, since
// its bytes are already consumed.
type FieldFormatter interface {
	FieldNumber() int
	Description() string
	Format(field Field, fc *FormatterContext) error
	Parse(pc *ParserContext) (Field, bool, error)
}

// readFieldLength returns the payload length of the field in progress,
// reading the prefix when it has not been read yet.
func readFieldLength(pc *ParserContext, field int, lm LengthManager) (int, bool, error) {
	if n, ok := pc.DecodedLength(); ok {
		return n, true, nil
	}
	if !lm.EnoughData(pc) {
		return 0, false, nil
	}
	offset := pc.Offset()
	n, ok, err := lm.ReadLength(pc)
	if err != nil {
		return 0, false, decodeFault(field, offset, err)
	}
	if !ok {
		return 0, false, nil
	}
	pc.setDecodedLength(n)
	return n, true, nil
}

// fieldLayout is the span logic shared by string and binary formatters:
// the length prefix, the optional announced tag and the fixed data width.
type fieldLayout struct {
	number              int
	description         string
	lengthManager       LengthManager
	announcer           *FieldNumberManager
	includeAnnouncement bool
	padder              Padder
	validator           *FieldValidator
}

func newFieldLayout(number int, description string, lm LengthManager, opts []FieldFormatterOption) (fieldLayout, error) {
	if number < -1 {
		return fieldLayout{}, fmt.Errorf("%w: field number %d", ErrInvalidConfiguration, number)
	}
	if lm == nil {
		return fieldLayout{}, fmt.Errorf("%w: field %d has no length manager", ErrInvalidConfiguration, number)
	}
	settings := fieldSettings{}
	for _, opt := range opts {
		opt(&settings)
	}
	return fieldLayout{
		number:        number,
		description:   description,
		lengthManager: lm,
		padder:        settings.padder,
		validator:     settings.validator,
	}, nil
}

func (l *fieldLayout) FieldNumber() int    { return l.number }
func (l *fieldLayout) Description() string { return l.description }

// LengthManager is the manager that sizes the field.
func (l *fieldLayout) LengthManager() LengthManager { return l.lengthManager }

func (l *fieldLayout) tagWidth() int {
	if l.announcer == nil || !l.includeAnnouncement {
		return 0
	}
	return l.announcer.EncodedLength()
}

// fixedDataLength is the payload width of a fixed field, minus the tag when
// the tag is counted in the length.
func (l *fieldLayout) fixedDataLength() int {
	return l.lengthManager.MaximumLength() - l.tagWidth()
}

func (l *fieldLayout) padded() bool {
	return l.padder != nil && l.lengthManager.Fixed()
}

// writePrefix emits the length prefix and the tag for a payload of
// dataLength units.
func (l *fieldLayout) writePrefix(dataLength int, fc *FormatterContext) error {
	if err := l.lengthManager.WriteLength(dataLength+l.tagWidth(), fc); err != nil {
		return err
	}
	if l.announcer != nil {
		return l.announcer.Write(l.number, fc)
	}
	return nil
}

// readDeclared returns the length as declared on the wire. Announced fields
// read it without the manager's bounds, because the tag that picks the
// formatter has not been seen yet; bounds are checked afterwards.
func (l *fieldLayout) readDeclared(pc *ParserContext) (int, bool, error) {
	if l.announcer == nil {
		return readFieldLength(pc, l.number, l.lengthManager)
	}
	// [tag][data]: the width belongs to whichever field the tag names
	if l.lengthManager.Fixed() {
		return l.lengthManager.MaximumLength(), true, nil
	}
	if n, ok := pc.DecodedLength(); ok {
		return n, true, nil
	}
	vlm, ok := l.lengthManager.(*VariableLengthManager)
	if !ok {
		return readFieldLength(pc, l.number, l.lengthManager)
	}
	offset := pc.Offset()
	n, ok, err := vlm.encoder.Decode(pc)
	if err != nil {
		return 0, false, decodeFault(l.number, offset, err)
	}
	if !ok {
		return 0, false, nil
	}
	pc.setDecodedLength(n)
	return n, true, nil
}

// parseFieldNumber consumes the prefix and the tag and reports the announced
// field number. Calling it again before the field is parsed returns the same
// number without consuming anything.
func (l *fieldLayout) parseFieldNumber(pc *ParserContext) (int, bool, error) {
	if pc.announcementParsed {
		return pc.currentField, true, nil
	}
	if _, ok, err := l.readDeclared(pc); err != nil || !ok {
		return 0, false, err
	}
	offset := pc.Offset()
	n, ok, err := l.announcer.Read(pc)
	if err != nil {
		return 0, false, decodeFault(l.number, offset, err)
	}
	if !ok {
		return 0, false, nil
	}
	pc.currentField = n
	pc.announcementParsed = true
	return n, true, nil
}

// readPrefix returns the payload length of the field, consuming the length
// prefix and the tag as needed.
func (l *fieldLayout) readPrefix(pc *ParserContext) (int, bool, error) {
	offset := pc.Offset()
	if l.announcer != nil {
		n, ok, err := l.parseFieldNumber(pc)
		if err != nil || !ok {
			return 0, false, err
		}
		if n != l.number {
			return 0, false, decodeFault(l.number, offset,
				fmt.Errorf("%w: tag announces field %d", ErrUnexpectedAnnouncement, n))
		}
	}
	declared, ok, err := l.readDeclared(pc)
	if err != nil || !ok {
		return 0, false, err
	}
	if l.announcer != nil {
		if vlm, isVar := l.lengthManager.(*VariableLengthManager); isVar && (declared < vlm.min || declared > vlm.max) {
			return 0, false, decodeFault(l.number, offset,
				fmt.Errorf("%w: length prefix %d not in [%d, %d]", ErrLengthOutOfRange, declared, vlm.min, vlm.max))
		}
	}
	data := declared - l.tagWidth()
	if data < 0 {
		return 0, false, decodeFault(l.number, offset,
			fmt.Errorf("%w: declared length %d shorter than the tag", ErrInvalidLength, declared))
	}
	return data, true, nil
}

// StringFieldFormatter formats text fields.
type StringFieldFormatter struct {
	fieldLayout
	encoder StringEncoder
}

// NewStringFieldFormatter builds a positional string field. Padding only
// applies when the length manager is fixed.
func NewStringFieldFormatter(number int, description string, lm LengthManager, encoder StringEncoder, opts ...FieldFormatterOption) (*StringFieldFormatter, error) {
	layout, err := newFieldLayout(number, description, lm, opts)
	if err != nil {
		return nil, err
	}
	if encoder == nil {
		return nil, fmt.Errorf("%w: field %d has no encoder", ErrInvalidConfiguration, number)
	}
	return &StringFieldFormatter{fieldLayout: layout, encoder: encoder}, nil
}

// MustStringFieldFormatter panics on invalid configuration.
func MustStringFieldFormatter(number int, description string, lm LengthManager, encoder StringEncoder, opts ...FieldFormatterOption) *StringFieldFormatter {
	ff, err := NewStringFieldFormatter(number, description, lm, encoder, opts...)
	if err != nil {
		panic(err)
	}
	return ff
}

// Encoder is the data encoder of the field.
func (ff *StringFieldFormatter) Encoder() StringEncoder { return ff.encoder }

// Format appends the field to fc. Nothing is left in fc when it fails.
func (ff *StringFieldFormatter) Format(field Field, fc *FormatterContext) error {
	start := fc.Len()
	if err := ff.format(field, fc); err != nil {
		fc.truncate(start)
		return err
	}
	return nil
}

func (ff *StringFieldFormatter) format(field Field, fc *FormatterContext) error {
	var value string
	switch f := field.(type) {
	case *StringField:
		value = f.value
	case *BinaryField:
		value = string(f.value)
	default:
		return fmt.Errorf("%w: string formatter got a %s field", ErrFieldTypeMismatch, field.Kind())
	}

	if err := ff.validator.Validate(ff.number, []byte(value)); err != nil {
		return err
	}

	if ff.padded() {
		padded, err := ff.padder.Pad(value, ff.fixedDataLength())
		if err != nil {
			return err
		}
		value = padded
	}

	if err := ff.writePrefix(utf8.RuneCountInString(value), fc); err != nil {
		return err
	}
	return ff.encoder.Encode(value, fc)
}

func (ff *StringFieldFormatter) Parse(pc *ParserContext) (Field, bool, error) {
	length, ok, err := ff.readPrefix(pc)
	if err != nil || !ok {
		return nil, false, err
	}
	if pc.DataLength() < ff.encoder.EncodedLength(length) {
		return nil, false, nil
	}

	offset := pc.Offset()
	value, err := ff.encoder.Decode(pc, length)
	if err != nil {
		return nil, false, decodeFault(ff.number, offset, err)
	}
	pc.clearFieldState()

	if ff.padded() {
		value = ff.padder.RemovePad(value)
	}
	// the bytes are consumed either way, so the field goes back with its
	// validation fault
	f := NewStringField(ff.number, value)
	return f, true, ff.validator.Validate(ff.number, []byte(value))
}

// BinaryFieldFormatter formats byte fields.
type BinaryFieldFormatter struct {
	fieldLayout
	encoder BinaryEncoder
}

// NewBinaryFieldFormatter builds a positional binary field.
func NewBinaryFieldFormatter(number int, description string, lm LengthManager, encoder BinaryEncoder, opts ...FieldFormatterOption) (*BinaryFieldFormatter, error) {
	layout, err := newFieldLayout(number, description, lm, opts)
	if err != nil {
		return nil, err
	}
	if encoder == nil {
		return nil, fmt.Errorf("%w: field %d has no encoder", ErrInvalidConfiguration, number)
	}
	return &BinaryFieldFormatter{fieldLayout: layout, encoder: encoder}, nil
}

// MustBinaryFieldFormatter panics on invalid configuration.
func MustBinaryFieldFormatter(number int, description string, lm LengthManager, encoder BinaryEncoder, opts ...FieldFormatterOption) *BinaryFieldFormatter {
	ff, err := NewBinaryFieldFormatter(number, description, lm, encoder, opts...)
	if err != nil {
		panic(err)
	}
	return ff
}

// Encoder is the data encoder of the field.
func (ff *BinaryFieldFormatter) Encoder() BinaryEncoder { return ff.encoder }

func (ff *BinaryFieldFormatter) Format(field Field, fc *FormatterContext) error {
	start := fc.Len()
	if err := ff.format(field, fc); err != nil {
		fc.truncate(start)
		return err
	}
	return nil
}

func (ff *BinaryFieldFormatter) format(field Field, fc *FormatterContext) error {
	var value []byte
	switch f := field.(type) {
	case *BinaryField:
		value = f.value
	case *StringField:
		value = []byte(f.value)
	default:
		return fmt.Errorf("%w: binary formatter got a %s field", ErrFieldTypeMismatch, field.Kind())
	}

	if err := ff.validator.Validate(ff.number, value); err != nil {
		return err
	}

	if ff.padded() {
		padded, err := ff.padder.PadBytes(value, ff.fixedDataLength())
		if err != nil {
			return err
		}
		value = padded
	}

	if err := ff.writePrefix(len(value), fc); err != nil {
		return err
	}
	return ff.encoder.Encode(value, fc)
}

func (ff *BinaryFieldFormatter) Parse(pc *ParserContext) (Field, bool, error) {
	length, ok, err := ff.readPrefix(pc)
	if err != nil || !ok {
		return nil, false, err
	}
	if pc.DataLength() < ff.encoder.EncodedLength(length) {
		return nil, false, nil
	}

	offset := pc.Offset()
	value, err := ff.encoder.Decode(pc, length)
	if err != nil {
		return nil, false, decodeFault(ff.number, offset, err)
	}
	pc.clearFieldState()

	if ff.padded() {
		value = ff.padder.RemovePadBytes(value)
	}
	f := NewBinaryField(ff.number, value)
	return f, true, ff.validator.Validate(ff.number, value)
}
