package iso8583

import (
	"errors"
	"fmt"
)

// InnerMessageFieldFormatter carries a whole nested message as the payload
// of one field. The payload is sized by the length manager in bytes.
type InnerMessageFieldFormatter struct {
	number        int
	description   string
	lengthManager LengthManager
	formatter     *MessageFormatter
}

func NewInnerMessageFieldFormatter(number int, description string, lm LengthManager, formatter *MessageFormatter) (*InnerMessageFieldFormatter, error) {
	if lm == nil {
		return nil, fmt.Errorf("%w: field %d has no length manager", ErrInvalidConfiguration, number)
	}
	if formatter == nil {
		return nil, fmt.Errorf("%w: field %d has no inner message formatter", ErrInvalidConfiguration, number)
	}
	return &InnerMessageFieldFormatter{
		number:        number,
		description:   description,
		lengthManager: lm,
		formatter:     formatter,
	}, nil
}

// MustInnerMessageFieldFormatter panics on invalid configuration.
func MustInnerMessageFieldFormatter(number int, description string, lm LengthManager, formatter *MessageFormatter) *InnerMessageFieldFormatter {
	ff, err := NewInnerMessageFieldFormatter(number, description, lm, formatter)
	if err != nil {
		panic(err)
	}
	return ff
}

func (ff *InnerMessageFieldFormatter) FieldNumber() int    { return ff.number }
func (ff *InnerMessageFieldFormatter) Description() string { return ff.description }

// MessageFormatter is the formatter of the nested message.
func (ff *InnerMessageFieldFormatter) MessageFormatter() *MessageFormatter {
	return ff.formatter
}

func (ff *InnerMessageFieldFormatter) Format(field Field, fc *FormatterContext) error {
	inner, ok := field.(*InnerMessageField)
	if !ok {
		return fmt.Errorf("%w: inner message formatter got a %s field", ErrFieldTypeMismatch, field.Kind())
	}
	if inner.value == nil {
		return fmt.Errorf("%w: field %d holds no message", ErrInvalidField, ff.number)
	}

	scratch := acquireFormatterContext()
	defer releaseFormatterContext(scratch)
	if err := ff.formatter.Format(inner.value, scratch); err != nil {
		return err
	}
	if err := ff.lengthManager.WriteLength(scratch.Len(), fc); err != nil {
		return err
	}
	fc.Write(scratch.Data())
	return nil
}

// Parse waits until the whole payload is buffered, then parses the nested
// message in place with the decoding window closed at the payload end.
func (ff *InnerMessageFieldFormatter) Parse(pc *ParserContext) (Field, bool, error) {
	length, ok, err := readFieldLength(pc, ff.number, ff.lengthManager)
	if err != nil || !ok {
		return nil, false, err
	}
	if pc.DataLength() < length {
		return nil, false, nil
	}

	offset := pc.Offset()
	outer := pc.saveState()
	pc.clearMessageState()
	pc.frontier = pc.lower + length
	// conditions on the nested fields may look at the enclosing message
	pc.currentMessage = NewMessage(WithFormatter(ff.formatter))
	pc.currentMessage.parent = outer.currentMessage

	msg, complete, err := ff.formatter.Parse(pc)
	leftover := pc.DataLength()
	pc.restoreState(outer)

	switch {
	case err != nil && !complete:
		var ve *ValidationError
		if errors.As(err, &ve) {
			return nil, false, err
		}
		return nil, false, &DecodeError{Field: ff.number, Offset: offset, Err: err}
	case !complete:
		return nil, false, decodeFault(ff.number, offset,
			fmt.Errorf("%w: nested message truncated within its %d byte span", ErrInsufficientData, length))
	case leftover > 0:
		return nil, false, decodeFault(ff.number, offset,
			fmt.Errorf("%w: %d bytes left in nested message span", ErrTrailingData, leftover))
	}

	pc.clearFieldState()
	msg.parent = pc.currentMessage
	// err is nil or a rejected nested value
	return NewInnerMessageField(ff.number, msg), true, err
}
