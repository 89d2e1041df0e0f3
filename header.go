package iso8583

import (
	"fmt"
	"unicode/utf8"
)

// MessageHeader is an opaque prefix carried before the message fields, such
// as a TPDU or a network routing header.
type MessageHeader interface {
	String() string
	Clone() MessageHeader
}

// StringMessageHeader is a textual header value.
type StringMessageHeader struct {
	Value string
}

func NewStringMessageHeader(value string) *StringMessageHeader {
	return &StringMessageHeader{Value: value}
}

func (h *StringMessageHeader) String() string {
	return h.Value
}

func (h *StringMessageHeader) Clone() MessageHeader {
	return &StringMessageHeader{Value: h.Value}
}

// MessageHeaderFormatter writes and reads a MessageHeader. Parse follows the
// field formatter contract: false with a nil error means not enough data.
type MessageHeaderFormatter interface {
	Format(h MessageHeader, fc *FormatterContext) error
	Parse(pc *ParserContext) (MessageHeader, bool, error)
}

// StringMessageHeaderFormatter handles headers made of text, with the same
// length manager, encoder and padding building blocks as string fields.
type StringMessageHeaderFormatter struct {
	lengthManager LengthManager
	encoder       StringEncoder
	padder        Padder
}

// NewStringMessageHeaderFormatter validates its collaborators. padder may be
// nil.
func NewStringMessageHeaderFormatter(lm LengthManager, encoder StringEncoder, padder Padder) (*StringMessageHeaderFormatter, error) {
	if lm == nil || encoder == nil {
		return nil, fmt.Errorf("%w: header formatter needs a length manager and an encoder", ErrInvalidConfiguration)
	}
	return &StringMessageHeaderFormatter{lengthManager: lm, encoder: encoder, padder: padder}, nil
}

// MustStringMessageHeaderFormatter panics on invalid configuration.
func MustStringMessageHeaderFormatter(lm LengthManager, encoder StringEncoder, padder Padder) *StringMessageHeaderFormatter {
	hf, err := NewStringMessageHeaderFormatter(lm, encoder, padder)
	if err != nil {
		panic(err)
	}
	return hf
}

func (hf *StringMessageHeaderFormatter) Format(h MessageHeader, fc *FormatterContext) error {
	value := ""
	if h != nil {
		value = h.String()
	}
	if hf.padder != nil && hf.lengthManager.Fixed() {
		padded, err := hf.padder.Pad(value, hf.lengthManager.MaximumLength())
		if err != nil {
			return fmt.Errorf("%w: %w", ErrInvalidHeader, err)
		}
		value = padded
	}
	if err := hf.lengthManager.WriteLength(utf8.RuneCountInString(value), fc); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidHeader, err)
	}
	if err := hf.encoder.Encode(value, fc); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidHeader, err)
	}
	return nil
}

func (hf *StringMessageHeaderFormatter) Parse(pc *ParserContext) (MessageHeader, bool, error) {
	length, ok, err := readFieldLength(pc, FieldHeader, hf.lengthManager)
	if err != nil || !ok {
		return nil, false, err
	}

	if pc.DataLength() < hf.encoder.EncodedLength(length) {
		return nil, false, nil
	}

	offset := pc.Offset()
	value, err := hf.encoder.Decode(pc, length)
	if err != nil {
		return nil, false, decodeFault(FieldHeader, offset, err)
	}
	pc.clearFieldState()

	if hf.padder != nil && hf.lengthManager.Fixed() {
		value = hf.padder.RemovePad(value)
	}
	return &StringMessageHeader{Value: value}, true, nil
}
