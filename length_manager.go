package iso8583

import (
	"fmt"
)

// LengthManager decides the span of a field's payload. Lengths are expressed
// in payload units (characters or bytes) before data encoding.
type LengthManager interface {
	MaximumLength() int
	// Fixed reports whether the length is implied by configuration rather
	// than carried on the wire.
	Fixed() bool
	// EnoughData tells, without consuming, whether the length can be read.
	EnoughData(pc *ParserContext) bool
	// ReadLength consumes the length prefix, if any. It reports false when
	// the prefix is not completely buffered.
	ReadLength(pc *ParserContext) (int, bool, error)
	WriteLength(length int, fc *FormatterContext) error
}

// FixedLengthManager is used for fields whose length never varies.
type FixedLengthManager struct {
	length int
}

// NewFixedLengthManager returns a manager for fields of exactly length units.
func NewFixedLengthManager(length int) (*FixedLengthManager, error) {
	if length < 0 {
		return nil, fmt.Errorf("%w: fixed length %d is negative", ErrInvalidConfiguration, length)
	}
	return &FixedLengthManager{length: length}, nil
}

// MustFixedLengthManager panics on invalid configuration.
func MustFixedLengthManager(length int) *FixedLengthManager {
	lm, err := NewFixedLengthManager(length)
	if err != nil {
		panic(err)
	}
	return lm
}

func (lm *FixedLengthManager) MaximumLength() int                { return lm.length }
func (lm *FixedLengthManager) Fixed() bool                       { return true }
func (lm *FixedLengthManager) EnoughData(pc *ParserContext) bool { return true }

func (lm *FixedLengthManager) ReadLength(pc *ParserContext) (int, bool, error) {
	return lm.length, true, nil
}

func (lm *FixedLengthManager) WriteLength(length int, fc *FormatterContext) error {
	if length > lm.length {
		return fmt.Errorf("%w: got %d, fixed length is %d", ErrLengthOutOfRange, length, lm.length)
	}
	if length != lm.length {
		return fmt.Errorf("%w: got %d, fixed length is %d", ErrInvalidLength, length, lm.length)
	}
	return nil
}

func (lm *FixedLengthManager) String() string {
	return fmt.Sprintf("fixed(%d)", lm.length)
}

// VariableLengthManager reads and writes a length prefix through a
// LengthEncoder and keeps the value within [min, max].
type VariableLengthManager struct {
	min     int
	max     int
	encoder LengthEncoder
}

// NewVariableLengthManager validates the bounds against the encoder.
func NewVariableLengthManager(min, max int, encoder LengthEncoder) (*VariableLengthManager, error) {
	switch {
	case encoder == nil:
		return nil, fmt.Errorf("%w: nil length encoder", ErrInvalidConfiguration)
	case min < 0:
		return nil, fmt.Errorf("%w: minimum length %d is negative", ErrInvalidConfiguration, min)
	case min > max:
		return nil, fmt.Errorf("%w: minimum length %d exceeds maximum %d", ErrInvalidConfiguration, min, max)
	case max > encoder.MaxLength():
		return nil, fmt.Errorf("%w: maximum length %d exceeds what the encoder can represent (%d)",
			ErrInvalidConfiguration, max, encoder.MaxLength())
	}
	return &VariableLengthManager{min: min, max: max, encoder: encoder}, nil
}

// MustVariableLengthManager panics on invalid configuration.
func MustVariableLengthManager(min, max int, encoder LengthEncoder) *VariableLengthManager {
	lm, err := NewVariableLengthManager(min, max, encoder)
	if err != nil {
		panic(err)
	}
	return lm
}

func (lm *VariableLengthManager) MaximumLength() int { return lm.max }
func (lm *VariableLengthManager) MinimumLength() int { return lm.min }
func (lm *VariableLengthManager) Fixed() bool        { return false }

// Encoder is the length encoder used for the prefix.
func (lm *VariableLengthManager) Encoder() LengthEncoder { return lm.encoder }

func (lm *VariableLengthManager) EnoughData(pc *ParserContext) bool {
	return pc.DataLength() >= lm.encoder.EncodedLength()
}

func (lm *VariableLengthManager) ReadLength(pc *ParserContext) (int, bool, error) {
	length, ok, err := lm.encoder.Decode(pc)
	if err != nil || !ok {
		return 0, ok, err
	}
	if length < lm.min || length > lm.max {
		return 0, false, fmt.Errorf("%w: length prefix %d not in [%d, %d]", ErrLengthOutOfRange, length, lm.min, lm.max)
	}
	return length, true, nil
}

func (lm *VariableLengthManager) WriteLength(length int, fc *FormatterContext) error {
	if length < lm.min || length > lm.max {
		return fmt.Errorf("%w: %d not in [%d, %d]", ErrLengthOutOfRange, length, lm.min, lm.max)
	}
	return lm.encoder.Encode(length, fc)
}

func (lm *VariableLengthManager) String() string {
	return fmt.Sprintf("variable(%d..%d)", lm.min, lm.max)
}
