package iso8583

const hexTableUpper = "0123456789ABCDEF"

// encodeHexUpper converts src to uppercase hex and writes it to dst.
func encodeHexUpper(dst, src []byte) {
	for i, v := range src {
		dst[i*2] = hexTableUpper[v>>4]
		dst[i*2+1] = hexTableUpper[v&0x0f]
	}
}

// hexNibble maps an ASCII hex digit of either case to its value.
func hexNibble(b byte) (byte, bool) {
	switch {
	case b >= '0' && b <= '9':
		return b - '0', true
	case b >= 'A' && b <= 'F':
		return b - 'A' + 10, true
	case b >= 'a' && b <= 'f':
		return b - 'a' + 10, true
	}
	return 0, false
}

// decodeHex is the inverse of encodeHexUpper. It returns the index of the
// first offending byte on failure.
func decodeHex(dst, src []byte) (int, bool) {
	for i := 0; i < len(src)/2; i++ {
		hi, ok := hexNibble(src[i*2])
		if !ok {
			return i * 2, false
		}
		lo, ok := hexNibble(src[i*2+1])
		if !ok {
			return i*2 + 1, false
		}
		dst[i] = hi<<4 | lo
	}
	return 0, true
}

// decimalDigits is the number of decimal digits needed to print n.
func decimalDigits(n int) int {
	digits := 1
	for n >= 10 {
		n /= 10
		digits++
	}
	return digits
}
