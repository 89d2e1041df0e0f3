package iso8583

import (
	"fmt"
	"strings"
	"unicode/utf8"
)

// Padder fills short values up to a fixed width and strips the filler again
// when decoding.
type Padder interface {
	Pad(value string, width int) (string, error)
	RemovePad(value string) string
	PadBytes(value []byte, width int) ([]byte, error)
	RemovePadBytes(value []byte) []byte
}

// FillPadder repeats a single filler character on one side of the value.
type FillPadder struct {
	left bool
	pad  rune
	trim bool
}

// Common padders. Zero left fill is not trimmed on decode, so numeric fields
// keep their full width ("000123" stays "000123").
var (
	SpaceRightPadder = &FillPadder{left: false, pad: ' ', trim: true}
	SpaceLeftPadder  = &FillPadder{left: true, pad: ' ', trim: true}
	ZeroLeftPadder   = &FillPadder{left: true, pad: '0', trim: false}
	ZeroRightPadder  = &FillPadder{left: false, pad: '0', trim: false}
)

// NewFillPadder returns a padder writing pad on the left or right side. When
// trim is set, decoding removes every filler character from that side.
func NewFillPadder(left bool, pad rune, trim bool) (*FillPadder, error) {
	if pad > 0xFF {
		return nil, fmt.Errorf("%w: padding character %q is not single-byte", ErrInvalidConfiguration, pad)
	}
	return &FillPadder{left: left, pad: pad, trim: trim}, nil
}

func (p *FillPadder) Pad(value string, width int) (string, error) {
	n := utf8.RuneCountInString(value)
	if n > width {
		return "", fmt.Errorf("%w: value of length %d exceeds width %d", ErrLengthOutOfRange, n, width)
	}
	if n == width {
		return value, nil
	}
	fill := strings.Repeat(string(p.pad), width-n)
	if p.left {
		return fill + value, nil
	}
	return value + fill, nil
}

func (p *FillPadder) RemovePad(value string) string {
	if !p.trim {
		return value
	}
	if p.left {
		return strings.TrimLeft(value, string(p.pad))
	}
	return strings.TrimRight(value, string(p.pad))
}

func (p *FillPadder) PadBytes(value []byte, width int) ([]byte, error) {
	if len(value) > width {
		return nil, fmt.Errorf("%w: value of length %d exceeds width %d", ErrLengthOutOfRange, len(value), width)
	}
	out := make([]byte, width)
	fill := width - len(value)
	if p.left {
		copy(out[fill:], value)
		for i := 0; i < fill; i++ {
			out[i] = byte(p.pad)
		}
		return out, nil
	}
	copy(out, value)
	for i := len(value); i < width; i++ {
		out[i] = byte(p.pad)
	}
	return out, nil
}

func (p *FillPadder) RemovePadBytes(value []byte) []byte {
	if !p.trim {
		return value
	}
	b := byte(p.pad)
	if p.left {
		i := 0
		for i < len(value) && value[i] == b {
			i++
		}
		return value[i:]
	}
	j := len(value)
	for j > 0 && value[j-1] == b {
		j--
	}
	return value[:j]
}
