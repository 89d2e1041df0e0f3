package iso8583

import (
	"fmt"
)

// LengthEncoder writes and reads an integer length prefix of a fixed width.
// The width is derived from the largest value the encoder must represent.
type LengthEncoder interface {
	// EncodedLength is the number of bytes of the prefix on the wire.
	EncodedLength() int
	// MaxLength is the largest value the prefix can carry.
	MaxLength() int
	Encode(length int, fc *FormatterContext) error
	// Decode consumes the prefix. It reports false without consuming when
	// fewer than EncodedLength bytes are buffered.
	Decode(pc *ParserContext) (int, bool, error)
}

// StringLengthEncoder writes the length as left-zero-padded ASCII digits, as
// many as the maximum has (99 -> 2 digits, 999 -> 3 digits).
type StringLengthEncoder struct {
	max    int
	digits int
}

// NewStringLengthEncoder returns an ASCII digit length encoder for lengths up
// to max.
func NewStringLengthEncoder(max int) (*StringLengthEncoder, error) {
	if max <= 0 {
		return nil, fmt.Errorf("%w: length encoder maximum %d must be positive", ErrInvalidConfiguration, max)
	}
	return &StringLengthEncoder{max: max, digits: decimalDigits(max)}, nil
}

// MustStringLengthEncoder panics on invalid configuration.
func MustStringLengthEncoder(max int) *StringLengthEncoder {
	enc, err := NewStringLengthEncoder(max)
	if err != nil {
		panic(err)
	}
	return enc
}

func (e *StringLengthEncoder) EncodedLength() int { return e.digits }
func (e *StringLengthEncoder) MaxLength() int     { return e.max }

func (e *StringLengthEncoder) Encode(length int, fc *FormatterContext) error {
	if length < 0 || length > e.max {
		return fmt.Errorf("%w: %d not in [0, %d]", ErrLengthOutOfRange, length, e.max)
	}
	var buf [20]byte
	n := formatIntToBytes(buf[:], length, e.digits)
	fc.Write(buf[:n])
	return nil
}

func (e *StringLengthEncoder) Decode(pc *ParserContext) (int, bool, error) {
	src, ok := pc.Peek(e.digits)
	if !ok {
		return 0, false, nil
	}
	length := 0
	for i, c := range src {
		if c < '0' || c > '9' {
			return 0, false, fmt.Errorf("%w: length prefix byte 0x%02X at offset %d", ErrInvalidDigit, c, pc.Offset()+i)
		}
		length = length*10 + int(c-'0')
	}
	pc.lower += e.digits
	return length, true, nil
}

// BCDLengthEncoder writes the length as packed decimal, left padded with a
// zero nibble when the digit count is odd.
type BCDLengthEncoder struct {
	max    int
	digits int
}

// NewBCDLengthEncoder returns a BCD length encoder for lengths up to max.
func NewBCDLengthEncoder(max int) (*BCDLengthEncoder, error) {
	if max <= 0 {
		return nil, fmt.Errorf("%w: length encoder maximum %d must be positive", ErrInvalidConfiguration, max)
	}
	return &BCDLengthEncoder{max: max, digits: decimalDigits(max)}, nil
}

// MustBCDLengthEncoder panics on invalid configuration.
func MustBCDLengthEncoder(max int) *BCDLengthEncoder {
	enc, err := NewBCDLengthEncoder(max)
	if err != nil {
		panic(err)
	}
	return enc
}

func (e *BCDLengthEncoder) EncodedLength() int { return (e.digits + 1) / 2 }
func (e *BCDLengthEncoder) MaxLength() int     { return e.max }

func (e *BCDLengthEncoder) Encode(length int, fc *FormatterContext) error {
	if length < 0 || length > e.max {
		return fmt.Errorf("%w: %d not in [0, %d]", ErrLengthOutOfRange, length, e.max)
	}
	width := e.EncodedLength() * 2
	var buf [20]byte
	n := formatIntToBytes(buf[:], length, width)
	return LeftPaddedBCDStringEncoder.Encode(string(buf[:n]), fc)
}

func (e *BCDLengthEncoder) Decode(pc *ParserContext) (int, bool, error) {
	size := e.EncodedLength()
	src, ok := pc.Peek(size)
	if !ok {
		return 0, false, nil
	}
	length := 0
	for i, b := range src {
		hi, lo := b>>4, b&0x0F
		if hi > 9 || lo > 9 {
			return 0, false, fmt.Errorf("%w: length prefix byte 0x%02X at offset %d", ErrInvalidBCDDigit, b, pc.Offset()+i)
		}
		length = length*100 + int(hi)*10 + int(lo)
	}
	pc.lower += size
	return length, true, nil
}

// BinaryLengthEncoder writes the length as an unsigned big-endian integer of
// 1 to 4 bytes, the smallest width that holds the maximum.
type BinaryLengthEncoder struct {
	max   int
	width int
}

// NewBinaryLengthEncoder returns a network byte order length encoder for
// lengths up to max.
func NewBinaryLengthEncoder(max int) (*BinaryLengthEncoder, error) {
	if max <= 0 {
		return nil, fmt.Errorf("%w: length encoder maximum %d must be positive", ErrInvalidConfiguration, max)
	}
	width := 1
	for limit := 0xFF; max > limit; limit = limit<<8 | 0xFF {
		width++
		if width > 4 {
			return nil, fmt.Errorf("%w: length encoder maximum %d needs more than 4 bytes", ErrInvalidConfiguration, max)
		}
	}
	return &BinaryLengthEncoder{max: max, width: width}, nil
}

// MustBinaryLengthEncoder panics on invalid configuration.
func MustBinaryLengthEncoder(max int) *BinaryLengthEncoder {
	enc, err := NewBinaryLengthEncoder(max)
	if err != nil {
		panic(err)
	}
	return enc
}

func (e *BinaryLengthEncoder) EncodedLength() int { return e.width }
func (e *BinaryLengthEncoder) MaxLength() int     { return e.max }

func (e *BinaryLengthEncoder) Encode(length int, fc *FormatterContext) error {
	if length < 0 || length > e.max {
		return fmt.Errorf("%w: %d not in [0, %d]", ErrLengthOutOfRange, length, e.max)
	}
	dst := fc.grow(e.width)
	for i := e.width - 1; i >= 0; i-- {
		dst[i] = byte(length)
		length >>= 8
	}
	return nil
}

func (e *BinaryLengthEncoder) Decode(pc *ParserContext) (int, bool, error) {
	src, ok := pc.Peek(e.width)
	if !ok {
		return 0, false, nil
	}
	length := 0
	for _, b := range src {
		length = length<<8 | int(b)
	}
	pc.lower += e.width
	return length, true, nil
}
