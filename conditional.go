package iso8583

import (
	"fmt"
)

// Condition decides between two formatters for the same field. It receives
// the message being formatted or parsed; during parsing that message only
// holds the fields decoded so far.
type Condition func(msg *Message) bool

// FieldEquals holds when field number has the given string value.
func FieldEquals(number int, value string) Condition {
	return func(msg *Message) bool {
		if msg == nil {
			return false
		}
		s, err := msg.GetString(number)
		return err == nil && s == value
	}
}

// FieldPresent holds when field number is present.
func FieldPresent(number int) Condition {
	return func(msg *Message) bool {
		return msg != nil && msg.HasField(number)
	}
}

// ParentFieldEquals holds when the enclosing message's field has value.
func ParentFieldEquals(number int, value string) Condition {
	return func(msg *Message) bool {
		if msg == nil || msg.Parent() == nil {
			return false
		}
		return FieldEquals(number, value)(msg.Parent())
	}
}

// ConditionalFieldFormatter delegates to one of two formatters of the same
// field number, picked by a Condition.
type ConditionalFieldFormatter struct {
	number      int
	description string
	condition   Condition
	whenTrue    FieldFormatter
	whenFalse   FieldFormatter
}

func NewConditionalFieldFormatter(number int, description string, condition Condition, whenTrue, whenFalse FieldFormatter) (*ConditionalFieldFormatter, error) {
	if condition == nil || whenTrue == nil || whenFalse == nil {
		return nil, fmt.Errorf("%w: conditional field %d needs a condition and two formatters", ErrInvalidConfiguration, number)
	}
	if whenTrue.FieldNumber() != number || whenFalse.FieldNumber() != number {
		return nil, fmt.Errorf("%w: conditional field %d wraps formatters for fields %d and %d",
			ErrInvalidConfiguration, number, whenTrue.FieldNumber(), whenFalse.FieldNumber())
	}
	return &ConditionalFieldFormatter{
		number:      number,
		description: description,
		condition:   condition,
		whenTrue:    whenTrue,
		whenFalse:   whenFalse,
	}, nil
}

// MustConditionalFieldFormatter panics on invalid configuration.
func MustConditionalFieldFormatter(number int, description string, condition Condition, whenTrue, whenFalse FieldFormatter) *ConditionalFieldFormatter {
	ff, err := NewConditionalFieldFormatter(number, description, condition, whenTrue, whenFalse)
	if err != nil {
		panic(err)
	}
	return ff
}

func (ff *ConditionalFieldFormatter) FieldNumber() int    { return ff.number }
func (ff *ConditionalFieldFormatter) Description() string { return ff.description }

func (ff *ConditionalFieldFormatter) pick(msg *Message) FieldFormatter {
	if ff.condition(msg) {
		return ff.whenTrue
	}
	return ff.whenFalse
}

func (ff *ConditionalFieldFormatter) Format(field Field, fc *FormatterContext) error {
	return ff.pick(fc.CurrentMessage()).Format(field, fc)
}

func (ff *ConditionalFieldFormatter) Parse(pc *ParserContext) (Field, bool, error) {
	return ff.pick(pc.CurrentMessage()).Parse(pc)
}
