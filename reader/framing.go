package reader

import (
	"bytes"
	"fmt"
	"strconv"
	"strings"
)

// Framing says how a reader delimits the card identifier in its response.
type Framing string

const (
	// FramingLine is ASCII text ending in a newline. The empty Framing
	// means FramingLine.
	FramingLine Framing = "line"

	// FramingSTX is ASCII text between STX (0x02) and ETX (0x03), as
	// sent by most 125kHz EM4100 serial modules.
	FramingSTX Framing = "stx_etx"

	// FramingBinary9 is the 9-byte frame [0x02][0x09][d0..d4][xor][0x03].
	// The xor covers the length byte and data; d1..d4 are a big-endian
	// tag number, reported in decimal.
	FramingBinary9 Framing = "binary9"
)

const (
	stx = 0x02
	etx = 0x03
)

func parseFraming(s string) (Framing, error) {
	switch f := Framing(strings.ToLower(strings.TrimSpace(s))); f {
	case "", FramingLine:
		return FramingLine, nil
	case FramingSTX, FramingBinary9:
		return f, nil
	default:
		return "", fmt.Errorf("unknown framing %q", s)
	}
}

// terminators are the bytes that end a response early.
func (f Framing) terminators() []byte {
	switch f {
	case FramingSTX:
		return []byte{etx}
	case FramingBinary9:
		return nil
	default:
		return []byte{'\n'}
	}
}

// decode extracts the card identifier. A malformed frame yields "", which
// the caller reports as no card.
func (f Framing) decode(resp []byte) string {
	switch f {
	case FramingSTX:
		return decodeSTX(resp)
	case FramingBinary9:
		return decodeBinary9(resp)
	default:
		return strings.TrimSpace(string(resp))
	}
}

func decodeSTX(resp []byte) string {
	start := bytes.IndexByte(resp, stx)
	if start < 0 {
		return ""
	}
	body := resp[start+1:]
	end := bytes.IndexByte(body, etx)
	if end < 0 {
		return ""
	}
	return strings.TrimSpace(string(body[:end]))
}

func decodeBinary9(resp []byte) string {
	if len(resp) != 9 || resp[0] != stx || resp[1] != 0x09 || resp[8] != etx {
		return ""
	}

	data := resp[1:7]
	xor := data[0]
	for _, b := range data[1:] {
		xor ^= b
	}
	if xor != resp[7] {
		return ""
	}

	tag := uint64(data[2])<<24 | uint64(data[3])<<16 | uint64(data[4])<<8 | uint64(data[5])
	if tag == 0 {
		return ""
	}
	return strconv.FormatUint(tag, 10)
}
