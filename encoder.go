package iso8583

import (
	"fmt"
	"strings"
	"sync"
	"unicode/utf8"

	"golang.org/x/text/encoding/charmap"
)

// StringEncoder converts a string field value to and from its wire form.
// Lengths are counted in characters, each of which must fit in one byte of
// the encoder's character set.
type StringEncoder interface {
	Encode(value string, fc *FormatterContext) error
	// Decode consumes EncodedLength(length) bytes from pc.
	Decode(pc *ParserContext, length int) (string, error)
	EncodedLength(dataLength int) int
}

// BinaryEncoder converts a binary field value to and from its wire form.
type BinaryEncoder interface {
	Encode(value []byte, fc *FormatterContext) error
	Decode(pc *ParserContext, length int) ([]byte, error)
	EncodedLength(dataLength int) int
}

// Shared encoder instances. They hold no mutable state.
var (
	ASCIIStringEncoder  = &PlainStringEncoder{charset: charmap.ISO8859_1, name: "ISO-8859-1"}
	EBCDICStringEncoder = &PlainStringEncoder{charset: charmap.CodePage037, name: "IBM037"}
	HexStringEncoder    = hexStringEncoder{}

	RawBinaryEncoder = rawBinaryEncoder{}
	HexBinaryEncoder = hexBinaryEncoder{}

	LeftPaddedBCDStringEncoder  = MustBCDStringEncoder(true, 0x0)
	RightPaddedBCDStringEncoder = MustBCDStringEncoder(false, 0xF)
)

// PlainStringEncoder writes one byte per character using a single-byte
// character set.
type PlainStringEncoder struct {
	charset *charmap.Charmap
	name    string
}

// NewPlainStringEncoder builds an encoder over any single-byte charmap.
func NewPlainStringEncoder(charset *charmap.Charmap) (*PlainStringEncoder, error) {
	if charset == nil {
		return nil, fmt.Errorf("%w: nil charset", ErrInvalidConfiguration)
	}
	return &PlainStringEncoder{charset: charset, name: charset.String()}, nil
}

// Encode writes nothing when value holds a rune outside the charset.
func (e *PlainStringEncoder) Encode(value string, fc *FormatterContext) error {
	start := fc.Len()
	dst := fc.grow(utf8.RuneCountInString(value))
	i := 0
	for _, r := range value {
		b, ok := e.charset.EncodeRune(r)
		if !ok {
			fc.truncate(start)
			return fmt.Errorf("%w: %q in %s", ErrInvalidCharacter, r, e.name)
		}
		dst[i] = b
		i++
	}
	return nil
}

func (e *PlainStringEncoder) Decode(pc *ParserContext, length int) (string, error) {
	data, err := pc.Read(length)
	if err != nil {
		return "", err
	}
	var sb strings.Builder
	sb.Grow(length)
	for _, b := range data {
		sb.WriteRune(e.charset.DecodeByte(b))
	}
	return sb.String(), nil
}

func (e *PlainStringEncoder) EncodedLength(dataLength int) int {
	return dataLength
}

func (e *PlainStringEncoder) String() string {
	return "plain/" + e.name
}

// latin1Bytes maps each rune of s to one byte, failing above U+00FF.
func latin1Bytes(s string) ([]byte, error) {
	out := make([]byte, 0, len(s))
	for _, r := range s {
		if r > 0xFF {
			return nil, fmt.Errorf("%w: %q", ErrInvalidCharacter, r)
		}
		out = append(out, byte(r))
	}
	return out, nil
}

func latin1String(b []byte) string {
	var sb strings.Builder
	sb.Grow(len(b))
	for _, c := range b {
		sb.WriteRune(rune(c))
	}
	return sb.String()
}

type hexStringEncoder struct{}

func (hexStringEncoder) Encode(value string, fc *FormatterContext) error {
	raw, err := latin1Bytes(value)
	if err != nil {
		return err
	}
	encodeHexUpper(fc.grow(len(raw)*2), raw)
	return nil
}

func (hexStringEncoder) Decode(pc *ParserContext, length int) (string, error) {
	raw, err := decodeHexFrom(pc, length)
	if err != nil {
		return "", err
	}
	return latin1String(raw), nil
}

func (hexStringEncoder) EncodedLength(dataLength int) int {
	return dataLength * 2
}

func (hexStringEncoder) String() string {
	return "hex"
}

type rawBinaryEncoder struct{}

func (rawBinaryEncoder) Encode(value []byte, fc *FormatterContext) error {
	fc.Write(value)
	return nil
}

func (rawBinaryEncoder) Decode(pc *ParserContext, length int) ([]byte, error) {
	return pc.Read(length)
}

func (rawBinaryEncoder) EncodedLength(dataLength int) int {
	return dataLength
}

func (rawBinaryEncoder) String() string {
	return "binary"
}

type hexBinaryEncoder struct{}

func (hexBinaryEncoder) Encode(value []byte, fc *FormatterContext) error {
	encodeHexUpper(fc.grow(len(value)*2), value)
	return nil
}

func (hexBinaryEncoder) Decode(pc *ParserContext, length int) ([]byte, error) {
	return decodeHexFrom(pc, length)
}

func (hexBinaryEncoder) EncodedLength(dataLength int) int {
	return dataLength * 2
}

func (hexBinaryEncoder) String() string {
	return "hex"
}

// decodeHexFrom reads length*2 hex digits. Nothing is consumed on failure.
func decodeHexFrom(pc *ParserContext, length int) ([]byte, error) {
	src, ok := pc.Peek(length * 2)
	if !ok {
		return nil, fmt.Errorf("%w: need %d bytes, have %d", ErrInsufficientData, length*2, pc.DataLength())
	}
	out := make([]byte, length)
	if pos, ok := decodeHex(out, src); !ok {
		return nil, fmt.Errorf("%w: 0x%02X at offset %d", ErrInvalidHexDigit, src[pos], pc.Offset()+pos)
	}
	pc.lower += length * 2
	return out, nil
}

// BCDStringEncoder packs two decimal digits per byte. Odd-length values get
// one pad nibble on the configured side.
type BCDStringEncoder struct {
	leftPadded bool
	pad        byte
}

type bcdKey struct {
	leftPadded bool
	pad        byte
}

var bcdEncoders sync.Map // bcdKey -> *BCDStringEncoder

// BCDStringEncoderFor returns the shared encoder for the given padding side
// and nibble.
func BCDStringEncoderFor(leftPadded bool, pad byte) (*BCDStringEncoder, error) {
	if pad > 0x0F {
		return nil, fmt.Errorf("%w: BCD pad nibble 0x%X exceeds 0xF", ErrInvalidConfiguration, pad)
	}
	key := bcdKey{leftPadded: leftPadded, pad: pad}
	if enc, ok := bcdEncoders.Load(key); ok {
		return enc.(*BCDStringEncoder), nil
	}
	enc, _ := bcdEncoders.LoadOrStore(key, &BCDStringEncoder{leftPadded: leftPadded, pad: pad})
	return enc.(*BCDStringEncoder), nil
}

// MustBCDStringEncoder is BCDStringEncoderFor for static configuration.
func MustBCDStringEncoder(leftPadded bool, pad byte) *BCDStringEncoder {
	enc, err := BCDStringEncoderFor(leftPadded, pad)
	if err != nil {
		panic(err)
	}
	return enc
}

func (e *BCDStringEncoder) Encode(value string, fc *FormatterContext) error {
	for i := 0; i < len(value); i++ {
		if value[i] < '0' || value[i] > '9' {
			return fmt.Errorf("%w: %q at position %d", ErrInvalidDigit, value[i], i)
		}
	}
	dst := fc.grow(e.EncodedLength(len(value)))
	e.pack(dst, value)
	return nil
}

func (e *BCDStringEncoder) pack(dst []byte, value string) {
	nibble := 0
	put := func(v byte) {
		if nibble%2 == 0 {
			dst[nibble/2] = v << 4
		} else {
			dst[nibble/2] |= v
		}
		nibble++
	}
	odd := len(value)%2 != 0
	if odd && e.leftPadded {
		put(e.pad)
	}
	for i := 0; i < len(value); i++ {
		put(value[i] - '0')
	}
	if odd && !e.leftPadded {
		put(e.pad)
	}
}

func (e *BCDStringEncoder) Decode(pc *ParserContext, length int) (string, error) {
	size := e.EncodedLength(length)
	src, ok := pc.Peek(size)
	if !ok {
		return "", fmt.Errorf("%w: need %d bytes, have %d", ErrInsufficientData, size, pc.DataLength())
	}
	digits := make([]byte, 0, size*2)
	for _, b := range src {
		digits = append(digits, b>>4, b&0x0F)
	}
	if length%2 != 0 {
		if e.leftPadded {
			digits = digits[1:]
		} else {
			digits = digits[:len(digits)-1]
		}
	}
	for i, d := range digits {
		if d > 9 {
			return "", fmt.Errorf("%w: nibble 0x%X at digit %d (offset %d)", ErrInvalidBCDDigit, d, i, pc.Offset())
		}
		digits[i] = d + '0'
	}
	pc.lower += size
	return string(digits), nil
}

func (e *BCDStringEncoder) EncodedLength(dataLength int) int {
	return (dataLength + 1) / 2
}

func (e *BCDStringEncoder) LeftPadded() bool {
	return e.leftPadded
}

func (e *BCDStringEncoder) Pad() byte {
	return e.pad
}

func (e *BCDStringEncoder) String() string {
	side := "right"
	if e.leftPadded {
		side = "left"
	}
	return fmt.Sprintf("bcd/%s/%X", side, e.pad)
}

// BCDBinaryEncoder packs a binary value holding ASCII decimal digits.
type BCDBinaryEncoder struct {
	digits *BCDStringEncoder
}

// NewBCDBinaryEncoder wraps a BCD string encoder for byte values.
func NewBCDBinaryEncoder(digits *BCDStringEncoder) (*BCDBinaryEncoder, error) {
	if digits == nil {
		return nil, fmt.Errorf("%w: nil BCD encoder", ErrInvalidConfiguration)
	}
	return &BCDBinaryEncoder{digits: digits}, nil
}

func (e *BCDBinaryEncoder) Encode(value []byte, fc *FormatterContext) error {
	return e.digits.Encode(string(value), fc)
}

func (e *BCDBinaryEncoder) Decode(pc *ParserContext, length int) ([]byte, error) {
	s, err := e.digits.Decode(pc, length)
	if err != nil {
		return nil, err
	}
	return []byte(s), nil
}

func (e *BCDBinaryEncoder) EncodedLength(dataLength int) int {
	return e.digits.EncodedLength(dataLength)
}
