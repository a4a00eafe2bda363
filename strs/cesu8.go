package strs

import (
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
)

// hasAstral reports whether b (valid UTF-8) contains any code point
// outside the Basic Multilingual Plane, i.e. one that UTF-8 encodes as a
// 4-byte sequence and CESU-8 must instead split into a surrogate pair.
func hasAstral(b []byte) bool {
	for _, r := range string(b) {
		if r > 0xFFFF {
			return true
		}
	}
	return false
}

// toCESU8 converts UTF-8 input containing astral code points into CESU-8
// (spec.md §3.3/§4.D): each code point is first widened to its UTF-16
// code unit(s) — astral points become a surrogate pair — and every code
// unit is then re-encoded as an independent (possibly 3-byte) UTF-8
// sequence, rather than the single 4-byte UTF-8 sequence a direct
// transcoding would produce.
//
// The UTF-16 widening step is delegated to
// golang.org/x/text/encoding/unicode, matching the rest of the pack's use
// of x/text for codec-level transcoding rather than a hand-rolled
// surrogate splitter.
func toCESU8(b []byte) ([]byte, error) {
	enc := unicode.UTF16(unicode.BigEndian, unicode.IgnoreBOM)
	u16, _, err := transform.Bytes(enc.NewEncoder(), b)
	if err != nil {
		return nil, err
	}

	out := make([]byte, 0, len(u16)/2*3)
	for i := 0; i+1 < len(u16); i += 2 {
		unit := uint16(u16[i])<<8 | uint16(u16[i+1])
		out = appendCESU8Unit(out, unit)
	}
	return out, nil
}

func appendCESU8Unit(out []byte, unit uint16) []byte {
	switch {
	case unit < 0x80:
		return append(out, byte(unit))
	case unit < 0x800:
		return append(out, byte(0xC0|unit>>6), byte(0x80|unit&0x3F))
	default:
		return append(out, byte(0xE0|unit>>12), byte(0x80|(unit>>6)&0x3F), byte(0x80|unit&0x3F))
	}
}

// codeUnitCount returns the number of UTF-16/CESU-8 code units (i.e. the
// ECMAScript string "length") represented by already-CESU-8-or-ASCII
// bytes b.
func codeUnitCount(b []byte) uint32 {
	n := uint32(0)
	for _, c := range b {
		switch {
		case c&0xC0 == 0x80:
			// continuation byte of a code unit already counted
		case c >= 0xF0:
			n += 2 // 4-byte UTF-8 sequence: one astral code point, two code units
		default:
			n++
		}
	}
	return n
}
