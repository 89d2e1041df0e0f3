package iso8583

import (
	"bytes"
	"fmt"
	"sort"
	"strconv"
)

// FieldKind tags the variant of a Field.
type FieldKind int

const (
	KindString FieldKind = iota
	KindBinary
	KindBitmap
	KindInnerMessage
)

func (k FieldKind) String() string {
	switch k {
	case KindString:
		return "string"
	case KindBinary:
		return "binary"
	case KindBitmap:
		return "bitmap"
	case KindInnerMessage:
		return "message"
	default:
		return "unknown"
	}
}

// Field is one numbered value of a Message. The number never changes after
// creation; the value may.
type Field interface {
	FieldNumber() int
	Kind() FieldKind
	Value() any
	// String renders the value for display.
	String() string
	Clone() Field
}

// StringField holds a textual value.
type StringField struct {
	number int
	value  string
}

func NewStringField(number int, value string) *StringField {
	return &StringField{number: number, value: value}
}

func (f *StringField) FieldNumber() int      { return f.number }
func (f *StringField) Kind() FieldKind       { return KindString }
func (f *StringField) Value() any            { return f.value }
func (f *StringField) String() string        { return f.value }
func (f *StringField) Bytes() []byte         { return []byte(f.value) }
func (f *StringField) Length() int           { return len(f.value) }
func (f *StringField) SetValue(value string) { f.value = value }

// Int parses the value as a decimal integer.
func (f *StringField) Int() (int, error) {
	return strconv.Atoi(f.value)
}

// Int64 parses the value as a decimal int64.
func (f *StringField) Int64() (int64, error) {
	return strconv.ParseInt(f.value, 10, 64)
}

// SetInt stores value as decimal digits, left padded with zeros to width.
func (f *StringField) SetInt(value int, width int) error {
	if value < 0 {
		return fmt.Errorf("%w: negative value %d for field %d", ErrInvalidField, value, f.number)
	}
	// 20 digits is enough for a 64-bit int
	var stackBuf [20]byte
	if width > len(stackBuf) {
		return fmt.Errorf("%w: width %d for field %d", ErrInvalidLength, width, f.number)
	}
	n := formatIntToBytes(stackBuf[:], value, width)
	f.value = string(stackBuf[:n])
	return nil
}

func (f *StringField) Clone() Field {
	return &StringField{number: f.number, value: f.value}
}

// BinaryField holds raw bytes.
type BinaryField struct {
	number int
	value  []byte
}

// NewBinaryField keeps a reference to value, not a copy.
func NewBinaryField(number int, value []byte) *BinaryField {
	return &BinaryField{number: number, value: value}
}

func (f *BinaryField) FieldNumber() int      { return f.number }
func (f *BinaryField) Kind() FieldKind       { return KindBinary }
func (f *BinaryField) Value() any            { return f.value }
func (f *BinaryField) Bytes() []byte         { return f.value }
func (f *BinaryField) Length() int           { return len(f.value) }
func (f *BinaryField) SetValue(value []byte) { f.value = value }

// String renders the bytes as upper-case hex.
func (f *BinaryField) String() string {
	out := make([]byte, len(f.value)*2)
	encodeHexUpper(out, f.value)
	return string(out)
}

func (f *BinaryField) Equal(other *BinaryField) bool {
	return other != nil && f.number == other.number && bytes.Equal(f.value, other.value)
}

func (f *BinaryField) Clone() Field {
	clone := &BinaryField{number: f.number}
	if f.value != nil {
		clone.value = make([]byte, len(f.value))
		copy(clone.value, f.value)
	}
	return clone
}

// InnerMessageField carries a nested message, which it owns.
type InnerMessageField struct {
	number int
	value  *Message
}

func NewInnerMessageField(number int, value *Message) *InnerMessageField {
	return &InnerMessageField{number: number, value: value}
}

func (f *InnerMessageField) FieldNumber() int  { return f.number }
func (f *InnerMessageField) Kind() FieldKind   { return KindInnerMessage }
func (f *InnerMessageField) Value() any        { return f.value }
func (f *InnerMessageField) Message() *Message { return f.value }

func (f *InnerMessageField) SetValue(value *Message) {
	f.value = value
}

func (f *InnerMessageField) String() string {
	if f.value == nil {
		return "<nil>"
	}
	return f.value.String()
}

// Clone copies the nested message. The copy keeps the original parent link
// until it is attached to another message.
func (f *InnerMessageField) Clone() Field {
	clone := &InnerMessageField{number: f.number}
	if f.value != nil {
		clone.value = f.value.Clone()
		clone.value.parent = f.value.parent
	}
	return clone
}

// formatIntToBytes converts an integer to its ASCII representation in the buffer.
// It applies zero-padding to the left if the specified width is larger than
// the number of digits.
func formatIntToBytes(buf []byte, value int, width int) int {
	if value == 0 {
		if width > 0 {
			for i := 0; i < width; i++ {
				buf[i] = '0'
			}
			return width
		}
		buf[0] = '0'
		return 1
	}

	// Write digits backwards from the end of the buffer
	i := len(buf) - 1
	for value > 0 {
		buf[i] = byte(value%10 + '0')
		value /= 10
		i--
	}

	digits := len(buf) - 1 - i
	if width > digits {
		padding := width - digits
		copy(buf[padding:], buf[i+1:])
		for j := 0; j < padding; j++ {
			buf[j] = '0'
		}
		return width
	}

	copy(buf, buf[i+1:])
	return digits
}

// FieldCollection is a sparse set of fields indexed by number. Adding,
// removing or clearing marks it dirty so derived state such as bitmap bits
// can be recomputed lazily.
type FieldCollection struct {
	fields map[int]Field
	dirty  bool
}

func NewFieldCollection() *FieldCollection {
	return &FieldCollection{fields: make(map[int]Field)}
}

// Add stores f, replacing any field with the same number.
func (fc *FieldCollection) Add(f Field) {
	if fc.fields == nil {
		fc.fields = make(map[int]Field)
	}
	fc.fields[f.FieldNumber()] = f
	fc.dirty = true
}

func (fc *FieldCollection) Get(number int) (Field, bool) {
	f, ok := fc.fields[number]
	return f, ok
}

func (fc *FieldCollection) Contains(number int) bool {
	_, ok := fc.fields[number]
	return ok
}

// Remove deletes the field if present. Removing an absent field is a no-op
// and leaves the dirty flag alone.
func (fc *FieldCollection) Remove(number int) {
	if _, ok := fc.fields[number]; !ok {
		return
	}
	delete(fc.fields, number)
	fc.dirty = true
}

func (fc *FieldCollection) Clear() {
	for k := range fc.fields {
		delete(fc.fields, k)
	}
	fc.dirty = true
}

func (fc *FieldCollection) Len() int {
	return len(fc.fields)
}

// Numbers returns the field numbers in ascending order.
func (fc *FieldCollection) Numbers() []int {
	numbers := make([]int, 0, len(fc.fields))
	for k := range fc.fields {
		numbers = append(numbers, k)
	}
	sort.Ints(numbers)
	return numbers
}

// MaximumFieldNumber is the largest number present.
func (fc *FieldCollection) MaximumFieldNumber() (int, error) {
	if len(fc.fields) == 0 {
		return 0, ErrEmptyCollection
	}
	max := 0
	first := true
	for k := range fc.fields {
		if first || k > max {
			max = k
			first = false
		}
	}
	return max, nil
}

func (fc *FieldCollection) Dirty() bool {
	return fc.dirty
}

func (fc *FieldCollection) ResetDirty() {
	fc.dirty = false
}
