package iso8583

import (
	"bytes"
	"fmt"
	"strconv"
)

// TLVParser handles parsing and packing of Tag-Length-Value encoded data.
// It supports Standard (1-byte T/L), EMV (BER tag and length), and a
// fixed-width ASCII format. A TLVParser holds configuration only and is safe
// for concurrent use.
type TLVParser struct {
	tlvType TLVType

	asciiTagLen     int // e.g., 2 for "AL"
	asciiLenLen     int // e.g., 2 for "04"
	asciiLengthBase int // 10 for decimal, 16 for hex
}

// NewTLVParser creates a new TLV parser for Standard or EMV types.
func NewTLVParser(tlvType TLVType) *TLVParser {
	return &TLVParser{tlvType: tlvType}
}

// NewASCIITLVParser creates a new parser for fixed-length ASCII TLV.
// tagLen: number of characters for the tag (e.g., 2 for "AL")
// lenLen: number of characters for the length (e.g., 2 for "04")
// base:   10 for decimal length ("04"), 16 for hex length ("0C")
func NewASCIITLVParser(tagLen, lenLen, base int) (*TLVParser, error) {
	if tagLen <= 0 || lenLen <= 0 || (base != 10 && base != 16) {
		return nil, fmt.Errorf("%w: ASCII TLV tag %d, length %d, base %d", ErrInvalidConfiguration, tagLen, lenLen, base)
	}
	return &TLVParser{
		tlvType:         TLVASCII,
		asciiTagLen:     tagLen,
		asciiLenLen:     lenLen,
		asciiLengthBase: base,
	}, nil
}

// ParseTLV parses TLV data from a byte slice based on the parser's configured
// type. Tags and values alias data.
func (tp *TLVParser) ParseTLV(data []byte) ([]TLV, error) {
	switch tp.tlvType {
	case TLVStandard:
		return tp.parseStandardTLV(data)
	case TLVEMV:
		return tp.parseEMVTLV(data)
	case TLVASCII:
		return tp.parseASCIITLV(data)
	default:
		return nil, fmt.Errorf("%w: TLV type %s", ErrInvalidConfiguration, tp.tlvType)
	}
}

// parseASCIITLV parses fixed-length ASCII TLV format.
// Format: T(fixed_ascii_len) L(fixed_ascii_len) V(variable_len)
// Example: "AL04Data" (Tag="AL", Length="04", Value="Data")
func (tp *TLVParser) parseASCIITLV(data []byte) ([]TLV, error) {
	var result []TLV
	offset := 0
	for offset < len(data) {
		if offset+tp.asciiTagLen+tp.asciiLenLen > len(data) {
			return nil, &TLVError{Tag: data[offset:], Err: fmt.Errorf("%w: truncated header at offset %d", ErrInvalidTLV, offset)}
		}
		tag := data[offset : offset+tp.asciiTagLen]
		offset += tp.asciiTagLen

		lengthStr := string(data[offset : offset+tp.asciiLenLen])
		length, err := strconv.ParseUint(lengthStr, tp.asciiLengthBase, 31)
		if err != nil {
			return nil, &TLVError{Tag: tag, Err: fmt.Errorf("%w: length %q", ErrInvalidTLV, lengthStr)}
		}
		offset += tp.asciiLenLen

		if offset+int(length) > len(data) {
			return nil, &TLVError{Tag: tag, Err: fmt.Errorf("%w: value needs %d bytes, got %d", ErrInvalidTLV, length, len(data)-offset)}
		}
		result = append(result, TLV{Tag: tag, Length: int(length), Value: data[offset : offset+int(length)]})
		offset += int(length)
	}
	return result, nil
}

// parseStandardTLV parses standard TLV format (T=1byte, L=1byte, V=variable).
func (tp *TLVParser) parseStandardTLV(data []byte) ([]TLV, error) {
	var result []TLV
	offset := 0
	for offset < len(data) {
		tag := data[offset : offset+1]
		offset++

		if offset >= len(data) {
			return nil, &TLVError{Tag: tag, Err: fmt.Errorf("%w: missing length", ErrInvalidTLV)}
		}
		length := int(data[offset])
		offset++

		if offset+length > len(data) {
			return nil, &TLVError{Tag: tag, Err: fmt.Errorf("%w: value needs %d bytes, got %d", ErrInvalidTLV, length, len(data)-offset)}
		}
		result = append(result, TLV{Tag: tag, Length: length, Value: data[offset : offset+length]})
		offset += length
	}
	return result, nil
}

// parseEMVTLV parses EMV TLV format with variable tag and length encoding.
func (tp *TLVParser) parseEMVTLV(data []byte) ([]TLV, error) {
	var result []TLV
	offset := 0
	for offset < len(data) {
		tagStart := offset
		firstByte := data[offset]
		offset++

		// Bits 5-1 all set: subsequent bytes belong to the tag while
		// their MSB is set; the last one has it clear.
		if firstByte&0x1F == 0x1F {
			for offset < len(data) && data[offset]&0x80 != 0 {
				offset++
			}
			if offset >= len(data) {
				return nil, &TLVError{Tag: data[tagStart:], Err: fmt.Errorf("%w: truncated tag", ErrInvalidTLV)}
			}
			offset++
		}
		tag := data[tagStart:offset]

		if offset >= len(data) {
			return nil, &TLVError{Tag: tag, Err: fmt.Errorf("%w: missing length", ErrInvalidTLV)}
		}
		lengthByte := data[offset]
		offset++

		length := int(lengthByte)
		if lengthByte&0x80 != 0 {
			// Long form: the low 7 bits count the length bytes that follow.
			numLengthBytes := int(lengthByte & 0x7F)
			if numLengthBytes == 0 || numLengthBytes > 4 {
				return nil, &TLVError{Tag: tag, Err: fmt.Errorf("%w: %d length bytes", ErrInvalidTLV, numLengthBytes)}
			}
			if offset+numLengthBytes > len(data) {
				return nil, &TLVError{Tag: tag, Err: fmt.Errorf("%w: truncated length", ErrInvalidTLV)}
			}
			length = 0
			for i := 0; i < numLengthBytes; i++ {
				length = length<<8 | int(data[offset])
				offset++
			}
		}

		if length < 0 || offset+length > len(data) {
			return nil, &TLVError{Tag: tag, Err: fmt.Errorf("%w: value needs %d bytes, got %d", ErrInvalidTLV, length, len(data)-offset)}
		}
		result = append(result, TLV{Tag: tag, Length: length, Value: data[offset : offset+length]})
		offset += length
	}
	return result, nil
}

// PackTLV appends tlvs to fc. Nothing is written when an entry is invalid.
func (tp *TLVParser) PackTLV(tlvs []TLV, fc *FormatterContext) error {
	start := fc.Len()
	var err error
	switch tp.tlvType {
	case TLVStandard:
		err = tp.packStandardTLV(tlvs, fc)
	case TLVEMV:
		err = tp.packEMVTLV(tlvs, fc)
	case TLVASCII:
		err = tp.packASCIITLV(tlvs, fc)
	default:
		err = fmt.Errorf("%w: TLV type %s", ErrInvalidConfiguration, tp.tlvType)
	}
	if err != nil {
		fc.truncate(start)
	}
	return err
}

// PackTLVBytes is PackTLV into a new slice.
func (tp *TLVParser) PackTLVBytes(tlvs []TLV) ([]byte, error) {
	fc := acquireFormatterContext()
	defer releaseFormatterContext(fc)
	if err := tp.PackTLV(tlvs, fc); err != nil {
		return nil, err
	}
	return fc.Bytes(), nil
}

func (tp *TLVParser) packASCIITLV(tlvs []TLV, fc *FormatterContext) error {
	maxLen := 1
	for i := 0; i < tp.asciiLenLen; i++ {
		maxLen *= tp.asciiLengthBase
	}
	maxLen--

	for _, tlv := range tlvs {
		if len(tlv.Tag) != tp.asciiTagLen {
			return &TLVError{Tag: tlv.Tag, Err: fmt.Errorf("%w: tag must be %d characters", ErrInvalidTLV, tp.asciiTagLen)}
		}
		if len(tlv.Value) > maxLen {
			return &TLVError{Tag: tlv.Tag, Err: fmt.Errorf("%w: value length %d exceeds %d", ErrLengthOutOfRange, len(tlv.Value), maxLen)}
		}
		fc.Write(tlv.Tag)

		length := fc.grow(tp.asciiLenLen)
		v := len(tlv.Value)
		for i := len(length) - 1; i >= 0; i-- {
			length[i] = hexTableUpper[v%tp.asciiLengthBase]
			v /= tp.asciiLengthBase
		}
		fc.Write(tlv.Value)
	}
	return nil
}

func (tp *TLVParser) packStandardTLV(tlvs []TLV, fc *FormatterContext) error {
	for _, tlv := range tlvs {
		if len(tlv.Tag) != 1 {
			return &TLVError{Tag: tlv.Tag, Err: fmt.Errorf("%w: standard tag must be 1 byte", ErrInvalidTLV)}
		}
		if len(tlv.Value) > 0xFF {
			return &TLVError{Tag: tlv.Tag, Err: fmt.Errorf("%w: value length %d exceeds 255", ErrLengthOutOfRange, len(tlv.Value))}
		}
		_ = fc.WriteByte(tlv.Tag[0])
		_ = fc.WriteByte(byte(len(tlv.Value)))
		fc.Write(tlv.Value)
	}
	return nil
}

func (tp *TLVParser) packEMVTLV(tlvs []TLV, fc *FormatterContext) error {
	for _, tlv := range tlvs {
		if len(tlv.Tag) == 0 {
			return &TLVError{Tag: tlv.Tag, Err: fmt.Errorf("%w: empty tag", ErrInvalidTLV)}
		}
		fc.Write(tlv.Tag)

		valueLen := len(tlv.Value)
		if valueLen < 0x80 {
			_ = fc.WriteByte(byte(valueLen))
		} else {
			n := 0
			for v := valueLen; v > 0; v >>= 8 {
				n++
			}
			_ = fc.WriteByte(byte(0x80 | n))
			length := fc.grow(n)
			for i := n - 1; i >= 0; i-- {
				length[i] = byte(valueLen)
				valueLen >>= 8
			}
		}
		fc.Write(tlv.Value)
	}
	return nil
}

// FindTLV finds the first TLV entry matching the given tag.
func FindTLV(tlvs []TLV, tag []byte) (*TLV, bool) {
	for i := range tlvs {
		if bytes.Equal(tlvs[i].Tag, tag) {
			return &tlvs[i], true
		}
	}
	return nil, false
}

// FilterTLVsByTag finds all TLV entries matching the given tag prefix.
func FilterTLVsByTag(tlvs []TLV, tagPrefix []byte) []TLV {
	var result []TLV
	for _, tlv := range tlvs {
		if bytes.HasPrefix(tlv.Tag, tagPrefix) {
			result = append(result, tlv)
		}
	}
	return result
}

func tlvKey(tag []byte, tlvType TLVType) string {
	if tlvType == TLVASCII {
		return string(tag)
	}
	key := make([]byte, len(tag)*2)
	encodeHexUpper(key, tag)
	return string(key)
}

// TLVToMap converts a slice of TLV structs to a map[string][]byte.
// For ASCII TLV, the map key is the literal tag string (e.g., "AL").
// For Standard/EMV TLV, the map key is a HEX string (e.g., "9F02").
func TLVToMap(tlvs []TLV, tlvType TLVType) map[string][]byte {
	result := make(map[string][]byte, len(tlvs))
	for _, tlv := range tlvs {
		result[tlvKey(tlv.Tag, tlvType)] = tlv.Value
	}
	return result
}

// MapToTLV converts a map[string][]byte to a slice of TLV structs, keyed as
// TLVToMap does.
func MapToTLV(tlvMap map[string][]byte, tlvType TLVType) ([]TLV, error) {
	result := make([]TLV, 0, len(tlvMap))
	for key, value := range tlvMap {
		tag := []byte(key)
		if tlvType != TLVASCII {
			if len(key)%2 != 0 {
				return nil, fmt.Errorf("%w: odd length tag %q", ErrInvalidHexDigit, key)
			}
			tag = make([]byte, len(key)/2)
			if at, ok := decodeHex(tag, []byte(key)); !ok {
				return nil, fmt.Errorf("%w: %q in tag %q", ErrInvalidHexDigit, key[at], key)
			}
		}
		result = append(result, TLV{Tag: tag, Length: len(value), Value: value})
	}
	return result, nil
}

// TLVToMapString is TLVToMap with the values converted to strings.
func TLVToMapString(tlvs []TLV, tlvType TLVType) map[string]string {
	result := make(map[string]string, len(tlvs))
	for _, tlv := range tlvs {
		result[tlvKey(tlv.Tag, tlvType)] = string(tlv.Value)
	}
	return result
}
