package iso8583

// MessageOption represents a functional option for message configuration
type MessageOption func(*Message)

// WithFormatter sets the formatter for the message
func WithFormatter(mf *MessageFormatter) MessageOption {
	return func(m *Message) {
		m.formatter = mf
	}
}

// WithHeader sets the header for a message
func WithHeader(header MessageHeader) MessageOption {
	return func(m *Message) {
		m.header = header
	}
}

// WithMTI sets the Message Type Indicator. Invalid values are ignored;
// use SetMTI to see the error.
func WithMTI(mti string) MessageOption {
	return func(m *Message) {
		_ = m.SetMTI(mti)
	}
}

// WithField sets a field value during message creation
func WithField(fieldNum int, value any) MessageOption {
	return func(m *Message) {
		_ = m.SetField(fieldNum, value)
	}
}

// WithFields sets multiple fields during message creation
func WithFields(fields map[int]any) MessageOption {
	return func(m *Message) {
		for fieldNum, value := range fields {
			_ = m.SetField(fieldNum, value)
		}
	}
}

// fieldSettings collects the optional parts of a field formatter.
type fieldSettings struct {
	padder    Padder
	validator *FieldValidator
}

// FieldFormatterOption configures a string or binary field formatter.
type FieldFormatterOption func(*fieldSettings)

// WithPadder pads fixed length values up to the field width.
func WithPadder(p Padder) FieldFormatterOption {
	return func(s *fieldSettings) {
		s.padder = p
	}
}

// WithValidator checks values before encoding and after decoding.
func WithValidator(v *FieldValidator) FieldFormatterOption {
	return func(s *fieldSettings) {
		s.validator = v
	}
}

// PackagerOption represents a functional option for packager configuration
type PackagerOption func(*PackagerConfig)

// WithFieldConfig adds a field configuration
func WithFieldConfig(fieldNum int, config FieldConfig) PackagerOption {
	return func(pc *PackagerConfig) {
		fields := make(map[int]FieldConfig, len(pc.Fields)+1)
		for n, c := range pc.Fields {
			fields[n] = c
		}
		fields[fieldNum] = config
		pc.Fields = fields
	}
}

// WithHeaderConfig sets the header configuration
func WithHeaderConfig(config HeaderConfig) PackagerOption {
	return func(pc *PackagerConfig) {
		pc.Header = config
	}
}

// WithBitmapEncoding sets how bitmaps are written
func WithBitmapEncoding(enc BitmapEncoding) PackagerOption {
	return func(pc *PackagerConfig) {
		pc.BitmapEncoding = enc
	}
}

// WithLengthIndicator sets the message framing prefix
func WithLengthIndicator(config LengthIndicatorConfig) PackagerOption {
	return func(pc *PackagerConfig) {
		pc.LengthIndicator = config
	}
}

// WithTLVConfig sets the TLV configuration
func WithTLVConfig(config TLVConfig) PackagerOption {
	return func(pc *PackagerConfig) {
		pc.TLV = config
	}
}
