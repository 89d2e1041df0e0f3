package iso8583

import (
	"fmt"
)

// FieldNumberManager writes and reads the tag of self-announced fields. The
// tag is the field number in the form of a length prefix, so any
// LengthEncoder can carry it.
type FieldNumberManager struct {
	encoder LengthEncoder
}

func NewFieldNumberManager(encoder LengthEncoder) (*FieldNumberManager, error) {
	if encoder == nil {
		return nil, fmt.Errorf("%w: nil field number encoder", ErrInvalidConfiguration)
	}
	return &FieldNumberManager{encoder: encoder}, nil
}

// MustFieldNumberManager panics on invalid configuration.
func MustFieldNumberManager(encoder LengthEncoder) *FieldNumberManager {
	m, err := NewFieldNumberManager(encoder)
	if err != nil {
		panic(err)
	}
	return m
}

// EncodedLength is the width of the tag on the wire.
func (m *FieldNumberManager) EncodedLength() int {
	return m.encoder.EncodedLength()
}

func (m *FieldNumberManager) Write(number int, fc *FormatterContext) error {
	if number < 0 || number > m.encoder.MaxLength() {
		return fmt.Errorf("%w: field number %d cannot be announced (max %d)", ErrInvalidField, number, m.encoder.MaxLength())
	}
	return m.encoder.Encode(number, fc)
}

func (m *FieldNumberManager) Read(pc *ParserContext) (int, bool, error) {
	return m.encoder.Decode(pc)
}

// AnnouncedFieldFormatter is a field formatter whose wire form carries its
// own field number, so fields may appear in any order.
type AnnouncedFieldFormatter interface {
	FieldFormatter
	// ParseFieldNumber identifies the next field on the wire. It may be
	// called repeatedly; once it has succeeded it keeps returning the same
	// number until the field itself is parsed.
	ParseFieldNumber(pc *ParserContext) (int, bool, error)
	layoutKey() string
}

func announcedLayoutKey(l *fieldLayout) string {
	if vlm, ok := l.lengthManager.(*VariableLengthManager); ok {
		return fmt.Sprintf("var/%d/%d", vlm.encoder.EncodedLength(), l.announcer.EncodedLength())
	}
	return fmt.Sprintf("fixed/%d", l.announcer.EncodedLength())
}

// AnnouncedStringFieldFormatter is a string field preceded by its tag. Fixed
// fields are laid out as [tag][data], variable ones as [length][tag][data].
type AnnouncedStringFieldFormatter struct {
	StringFieldFormatter
}

// NewAnnouncedStringFieldFormatter builds a self-announced string field. With
// includeAnnouncement set, the declared length (and a fixed field's width)
// counts the tag bytes too; padding and validation apply to the data only.
func NewAnnouncedStringFieldFormatter(number int, description string, lm LengthManager, encoder StringEncoder,
	announcer *FieldNumberManager, includeAnnouncement bool, opts ...FieldFormatterOption) (*AnnouncedStringFieldFormatter, error) {
	ff, err := NewStringFieldFormatter(number, description, lm, encoder, opts...)
	if err != nil {
		return nil, err
	}
	if err := ff.announce(announcer, includeAnnouncement); err != nil {
		return nil, err
	}
	return &AnnouncedStringFieldFormatter{StringFieldFormatter: *ff}, nil
}

// MustAnnouncedStringFieldFormatter panics on invalid configuration.
func MustAnnouncedStringFieldFormatter(number int, description string, lm LengthManager, encoder StringEncoder,
	announcer *FieldNumberManager, includeAnnouncement bool, opts ...FieldFormatterOption) *AnnouncedStringFieldFormatter {
	ff, err := NewAnnouncedStringFieldFormatter(number, description, lm, encoder, announcer, includeAnnouncement, opts...)
	if err != nil {
		panic(err)
	}
	return ff
}

func (ff *AnnouncedStringFieldFormatter) ParseFieldNumber(pc *ParserContext) (int, bool, error) {
	return ff.parseFieldNumber(pc)
}

func (ff *AnnouncedStringFieldFormatter) IncludeAnnouncementInLength() bool {
	return ff.includeAnnouncement
}

func (ff *AnnouncedStringFieldFormatter) layoutKey() string {
	return announcedLayoutKey(&ff.fieldLayout)
}

// AnnouncedBinaryFieldFormatter is the binary counterpart of
// AnnouncedStringFieldFormatter.
type AnnouncedBinaryFieldFormatter struct {
	BinaryFieldFormatter
}

func NewAnnouncedBinaryFieldFormatter(number int, description string, lm LengthManager, encoder BinaryEncoder,
	announcer *FieldNumberManager, includeAnnouncement bool, opts ...FieldFormatterOption) (*AnnouncedBinaryFieldFormatter, error) {
	ff, err := NewBinaryFieldFormatter(number, description, lm, encoder, opts...)
	if err != nil {
		return nil, err
	}
	if err := ff.announce(announcer, includeAnnouncement); err != nil {
		return nil, err
	}
	return &AnnouncedBinaryFieldFormatter{BinaryFieldFormatter: *ff}, nil
}

// MustAnnouncedBinaryFieldFormatter panics on invalid configuration.
func MustAnnouncedBinaryFieldFormatter(number int, description string, lm LengthManager, encoder BinaryEncoder,
	announcer *FieldNumberManager, includeAnnouncement bool, opts ...FieldFormatterOption) *AnnouncedBinaryFieldFormatter {
	ff, err := NewAnnouncedBinaryFieldFormatter(number, description, lm, encoder, announcer, includeAnnouncement, opts...)
	if err != nil {
		panic(err)
	}
	return ff
}

func (ff *AnnouncedBinaryFieldFormatter) ParseFieldNumber(pc *ParserContext) (int, bool, error) {
	return ff.parseFieldNumber(pc)
}

func (ff *AnnouncedBinaryFieldFormatter) IncludeAnnouncementInLength() bool {
	return ff.includeAnnouncement
}

func (ff *AnnouncedBinaryFieldFormatter) layoutKey() string {
	return announcedLayoutKey(&ff.fieldLayout)
}

func (l *fieldLayout) announce(announcer *FieldNumberManager, include bool) error {
	if announcer == nil {
		return fmt.Errorf("%w: field %d has no field number manager", ErrInvalidConfiguration, l.number)
	}
	if l.number < 0 || l.number > announcer.encoder.MaxLength() {
		return fmt.Errorf("%w: field %d does not fit the announcement width", ErrInvalidConfiguration, l.number)
	}
	l.announcer = announcer
	l.includeAnnouncement = include
	if include && l.lengthManager.Fixed() && l.lengthManager.MaximumLength() < announcer.EncodedLength() {
		return fmt.Errorf("%w: fixed length of field %d is shorter than its tag", ErrInvalidConfiguration, l.number)
	}
	return nil
}
