package iso8583

import (
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/rs/zerolog"
)

// Message is a sparse, numbered set of fields, optionally preceded by a
// header. Field -1 holds the MTI and field 0 the primary bitmap when the
// formatter defines them.
//
// A nested message keeps a pointer to its enclosing message for lookups
// only. The nested message is owned by the InnerMessageField holding it.
//
// A Message is not safe for concurrent mutation.
type Message struct {
	header    MessageHeader
	fields    *FieldCollection
	parent    *Message
	formatter *MessageFormatter
}

// NewMessage returns an empty message configured by opts.
func NewMessage(opts ...MessageOption) *Message {
	m := &Message{fields: NewFieldCollection()}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Fields exposes the field collection.
func (m *Message) Fields() *FieldCollection {
	return m.fields
}

func (m *Message) Header() MessageHeader {
	return m.header
}

func (m *Message) SetHeader(h MessageHeader) {
	m.header = h
}

// Formatter is the formatter the message was parsed with or assigned.
func (m *Message) Formatter() *MessageFormatter {
	return m.formatter
}

func (m *Message) SetFormatter(mf *MessageFormatter) {
	m.formatter = mf
}

// Parent is the enclosing message of a nested message, nil at the top.
func (m *Message) Parent() *Message {
	return m.parent
}

// Root walks parent links up to the outermost message.
func (m *Message) Root() *Message {
	root := m
	for root.parent != nil {
		root = root.parent
	}
	return root
}

// ParentField looks up field number in the enclosing message.
func (m *Message) ParentField(number int) (Field, bool) {
	if m.parent == nil {
		return nil, false
	}
	return m.parent.fields.Get(number)
}

// AddField stores f, replacing any field with the same number. A nested
// message gets its parent link pointed at m.
func (m *Message) AddField(f Field) {
	if inner, ok := f.(*InnerMessageField); ok && inner.value != nil {
		inner.value.parent = m
	}
	m.fields.Add(f)
}

// SetField stores value under fieldNum. It accepts string, []byte, int,
// *Message or a Field whose number matches.
func (m *Message) SetField(fieldNum int, value any) error {
	if fieldNum < -1 {
		return &FieldError{Field: fieldNum, Err: ErrInvalidField}
	}

	switch v := value.(type) {
	case string:
		m.AddField(NewStringField(fieldNum, v))
	case []byte:
		m.AddField(NewBinaryField(fieldNum, v))
	case int:
		f := NewStringField(fieldNum, "")
		if err := f.SetInt(v, 0); err != nil {
			return &FieldError{Field: fieldNum, Err: err}
		}
		m.AddField(f)
	case *Message:
		m.AddField(NewInnerMessageField(fieldNum, v))
	case Field:
		if v.FieldNumber() != fieldNum {
			return &FieldError{Field: fieldNum, Err: fmt.Errorf("%w: field carries number %d", ErrInvalidField, v.FieldNumber())}
		}
		m.AddField(v)
	default:
		return &FieldError{Field: fieldNum, Err: fmt.Errorf("%w: unsupported value type %T", ErrFieldTypeMismatch, value)}
	}
	return nil
}

// RemoveField deletes fieldNum. Absent fields are ignored.
func (m *Message) RemoveField(fieldNum int) {
	m.fields.Remove(fieldNum)
}

// GetField returns the field or ErrFieldNotFound.
func (m *Message) GetField(fieldNum int) (Field, error) {
	f, ok := m.fields.Get(fieldNum)
	if !ok {
		return nil, ErrFieldNotFound
	}
	return f, nil
}

// HasField returns true if the field is present in the message.
func (m *Message) HasField(fieldNum int) bool {
	return m.fields.Contains(fieldNum)
}

// GetPresentFields returns the present field numbers in ascending order.
func (m *Message) GetPresentFields() []int {
	return m.fields.Numbers()
}

// GetString is a convenience helper to get a field's value as a string.
func (m *Message) GetString(fieldNum int) (string, error) {
	f, err := m.GetField(fieldNum)
	if err != nil {
		return "", err
	}
	switch v := f.(type) {
	case *StringField:
		return v.value, nil
	case *BinaryField:
		return string(v.value), nil
	default:
		return "", fmt.Errorf("%w: field %d is %s", ErrFieldTypeMismatch, fieldNum, f.Kind())
	}
}

// GetBytes is a convenience helper to get a field's value as a byte slice.
func (m *Message) GetBytes(fieldNum int) ([]byte, error) {
	f, err := m.GetField(fieldNum)
	if err != nil {
		return nil, err
	}
	switch v := f.(type) {
	case *BinaryField:
		return v.value, nil
	case *StringField:
		return []byte(v.value), nil
	case *BitmapField:
		return v.Bytes(), nil
	default:
		return nil, fmt.Errorf("%w: field %d is %s", ErrFieldTypeMismatch, fieldNum, f.Kind())
	}
}

// GetInt is a convenience helper to get a field's value as an integer.
func (m *Message) GetInt(fieldNum int) (int, error) {
	s, err := m.GetString(fieldNum)
	if err != nil {
		return 0, err
	}
	return strconv.Atoi(s)
}

// GetInnerMessage returns the nested message held by fieldNum.
func (m *Message) GetInnerMessage(fieldNum int) (*Message, error) {
	f, err := m.GetField(fieldNum)
	if err != nil {
		return nil, err
	}
	inner, ok := f.(*InnerMessageField)
	if !ok {
		return nil, fmt.Errorf("%w: field %d is %s", ErrFieldTypeMismatch, fieldNum, f.Kind())
	}
	return inner.value, nil
}

// MTI returns the message type indicator stored in field -1.
func (m *Message) MTI() string {
	s, _ := m.GetString(FieldMTI)
	return s
}

// SetMTI sets the 4-digit message type indicator.
func (m *Message) SetMTI(mti string) error {
	if len(mti) != 4 {
		return ErrInvalidMTI
	}
	for i := 0; i < 4; i++ {
		if mti[i] < '0' || mti[i] > '9' {
			return ErrInvalidMTI
		}
	}
	m.AddField(NewStringField(FieldMTI, mti))
	return nil
}

// CorrectBitmaps recomputes every bitmap of the message from the fields
// actually present, using the message's formatter.
func (m *Message) CorrectBitmaps() error {
	if m.formatter == nil {
		return ErrNoFormatter
	}
	return m.formatter.CorrectBitmaps(m)
}

// Clone creates a deep copy of the message. Nested messages are copied too
// and point at the copy as their parent. The formatter is shared.
func (m *Message) Clone() *Message {
	clone := &Message{
		fields:    NewFieldCollection(),
		parent:    m.parent,
		formatter: m.formatter,
	}
	if m.header != nil {
		clone.header = m.header.Clone()
	}
	for _, n := range m.fields.Numbers() {
		f, _ := m.fields.Get(n)
		cf := f.Clone()
		if inner, ok := cf.(*InnerMessageField); ok && inner.value != nil {
			inner.value.parent = clone
		}
		clone.fields.fields[n] = cf
	}
	clone.fields.dirty = m.fields.dirty
	return clone
}

// CreateResponse generates a response message based on the current message.
// It clones the message, flips the MTI (e.g., 0100 -> 0110),
// and sets the response code (Field 39).
func (m *Message) CreateResponse(responseCode string) (*Message, error) {
	resMsg := m.Clone()
	resMsg.parent = nil

	mti := resMsg.MTI()
	if len(mti) != 4 || mti[2] != '0' {
		return nil, fmt.Errorf("cannot create response from MTI: %q", mti)
	}

	if err := resMsg.SetMTI(mti[:2] + "1" + mti[3:]); err != nil {
		return nil, err
	}

	if err := resMsg.SetField(39, responseCode); err != nil {
		return nil, err
	}

	return resMsg, nil
}

// IsNMM reports whether the MTI is a network management message.
func (m *Message) IsNMM() bool {
	switch m.MTI() {
	case MTINetworkManagementRequest, MTINetworkManagementResponse:
		return true
	default:
		return false
	}
}

func (m *Message) String() string {
	var sb strings.Builder
	if m.header != nil {
		sb.WriteString("[")
		sb.WriteString(m.header.String())
		sb.WriteString("] ")
	}
	sb.WriteString("{")
	for i, n := range m.fields.Numbers() {
		if i > 0 {
			sb.WriteString(", ")
		}
		f, _ := m.fields.Get(n)
		sb.WriteString(strconv.Itoa(n))
		sb.WriteString(":")
		sb.WriteString(f.String())
	}
	sb.WriteString("}")
	return sb.String()
}

// LogValue implements the slog.LogValuer interface for structured logging.
func (m *Message) LogValue() slog.Value {
	attrs := make([]slog.Attr, 0, 3)
	if m.header != nil {
		attrs = append(attrs, slog.String("header", m.header.String()))
	}
	attrs = append(attrs, slog.String("MTI", m.MTI()))

	numbers := m.fields.Numbers()
	fieldArgs := make([]any, 0, len(numbers))
	for _, n := range numbers {
		if n == FieldMTI {
			continue
		}
		f, _ := m.fields.Get(n)
		// TODO: Add masking for sensitive fields (PAN, track data)
		fieldArgs = append(fieldArgs, slog.String(strconv.Itoa(n), f.String()))
	}

	attrs = append(attrs, slog.Group("Fields", fieldArgs...))
	return slog.GroupValue(attrs...)
}

// MarshalZerologObject implements zerolog.LogObjectMarshaler.
func (m *Message) MarshalZerologObject(e *zerolog.Event) {
	if m.header != nil {
		e.Str("header", m.header.String())
	}
	e.Str("mti", m.MTI())
	fields := zerolog.Dict()
	for _, n := range m.fields.Numbers() {
		if n == FieldMTI {
			continue
		}
		f, _ := m.fields.Get(n)
		fields.Str(strconv.Itoa(n), f.String())
	}
	e.Dict("fields", fields)
}
