package iso8583

import (
	"fmt"
)

// IndicatorLength is the number of bytes the indicator occupies on the wire.
func (c LengthIndicatorConfig) IndicatorLength() int {
	if c.Type == LengthIndicatorNone {
		return 0
	}
	return c.Length
}

func (c LengthIndicatorConfig) maxMessageLength() (int, error) {
	switch c.Type {
	case LengthIndicatorNone:
		return int(^uint(0) >> 1), nil
	case LengthIndicatorBinary:
		switch c.Length {
		case 2:
			return 0xFFFF, nil
		case 4:
			return 0x7FFFFFFF, nil
		}
		return 0, fmt.Errorf("%w: binary length indicator size %d (must be 2 or 4)", ErrInvalidConfiguration, c.Length)
	case LengthIndicatorASCII:
		if c.Length != 4 {
			return 0, fmt.Errorf("%w: ASCII length indicator must be 4 characters, got %d", ErrInvalidConfiguration, c.Length)
		}
		return 9999, nil
	case LengthIndicatorHex:
		if c.Length != 4 {
			return 0, fmt.Errorf("%w: hex length indicator must be 4 characters, got %d", ErrInvalidConfiguration, c.Length)
		}
		return 0xFFFF, nil
	default:
		return 0, fmt.Errorf("%w: length indicator type %s", ErrUnsupportedLengthType, c.Type)
	}
}

// WriteLengthIndicator writes the message length indicator (the prefix that
// tells a TCP server how long the message is) to the buffer.
// Returns the number of bytes written.
func WriteLengthIndicator(msgLen int, buf []byte, config LengthIndicatorConfig) (int, error) {
	max, err := config.maxMessageLength()
	if err != nil {
		return 0, err
	}
	if config.Type == LengthIndicatorNone {
		return 0, nil
	}
	if msgLen < 0 || msgLen > max {
		return 0, fmt.Errorf("%w: message length %d exceeds indicator maximum %d", ErrLengthOutOfRange, msgLen, max)
	}
	if len(buf) < config.Length {
		return 0, ErrBufferTooSmall
	}

	switch config.Type {
	case LengthIndicatorBinary:
		for i := config.Length - 1; i >= 0; i-- {
			buf[i] = byte(msgLen)
			msgLen >>= 8
		}
	case LengthIndicatorASCII:
		formatIntToBytes(buf[:4], msgLen, 4)
	case LengthIndicatorHex:
		for i := 3; i >= 0; i-- {
			buf[i] = hexTableUpper[msgLen&0x0F]
			msgLen >>= 4
		}
	}
	return config.Length, nil
}

// ReadLengthIndicator reads the message length indicator from the buffer.
// Returns:
// 1. The message length (e.g., 200 for "0200")
// 2. The number of bytes consumed by the indicator (e.g., 4 for "0200")
// 3. An error, if any; ErrInsufficientData when buf is shorter than the
// indicator
func ReadLengthIndicator(buf []byte, config LengthIndicatorConfig) (int, int, error) {
	if _, err := config.maxMessageLength(); err != nil {
		return 0, 0, err
	}
	if config.Type == LengthIndicatorNone {
		// No length indicator, assume the buffer is the full message
		return len(buf), 0, nil
	}
	if len(buf) < config.Length {
		return 0, 0, fmt.Errorf("%w: length indicator needs %d bytes, got %d", ErrInsufficientData, config.Length, len(buf))
	}

	msgLen := 0
	switch config.Type {
	case LengthIndicatorBinary:
		for _, b := range buf[:config.Length] {
			msgLen = msgLen<<8 | int(b)
		}
	case LengthIndicatorASCII:
		n, err := parseASCIIToInt(buf[:4])
		if err != nil {
			return 0, 0, fmt.Errorf("invalid ASCII length indicator: %w", err)
		}
		msgLen = n
	case LengthIndicatorHex:
		for i, b := range buf[:4] {
			v, ok := hexNibble(b)
			if !ok {
				return 0, 0, fmt.Errorf("%w: %q at indicator offset %d", ErrInvalidHexDigit, b, i)
			}
			msgLen = msgLen<<4 | int(v)
		}
	}
	return msgLen, config.Length, nil
}

// FrameMessage prefixes payload with its length indicator.
func FrameMessage(payload []byte, config LengthIndicatorConfig) ([]byte, error) {
	out := make([]byte, config.IndicatorLength()+len(payload))
	n, err := WriteLengthIndicator(len(payload), out, config)
	if err != nil {
		return nil, err
	}
	copy(out[n:], payload)
	return out, nil
}

// readFrameLength consumes the indicator from pc once it is buffered.
func readFrameLength(pc *ParserContext, config LengthIndicatorConfig) (int, bool, error) {
	width := config.IndicatorLength()
	data, ok := pc.Peek(width)
	if !ok {
		return 0, false, nil
	}
	n, _, err := ReadLengthIndicator(data, config)
	if err != nil {
		return 0, false, err
	}
	if err := pc.Consumed(width); err != nil {
		return 0, false, err
	}
	return n, true, nil
}

// parseASCIIToInt is a helper function to parse ASCII digits to an integer
// without using strconv, avoiding allocations.
func parseASCIIToInt(b []byte) (int, error) {
	n := 0
	for _, ch := range b {
		if ch < '0' || ch > '9' {
			return 0, fmt.Errorf("%w: %q in numeric string", ErrInvalidDigit, ch)
		}
		n = n*10 + int(ch-'0')
	}
	return n, nil
}
