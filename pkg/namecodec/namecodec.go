// Package namecodec implements DecSync's reversible encoding of arbitrary
// strings into filesystem-safe names. The exact alphabet and
// leading-dot rule here are bit-for-bit load-bearing: every DecSync
// implementation, on every platform, must agree on the encoded form of a
// given string or peers sharing a sync directory will simply not see each
// other's files.
package namecodec

import (
	"strings"

	"golang.org/x/text/unicode/norm"
)

// safe reports whether b is in the codec's safe byte set: [A-Za-z0-9-_.~].
func safe(b byte) bool {
	switch {
	case b >= 'A' && b <= 'Z':
		return true
	case b >= 'a' && b <= 'z':
		return true
	case b >= '0' && b <= '9':
		return true
	case b == '-' || b == '_' || b == '.' || b == '~':
		return true
	default:
		return false
	}
}

const hexDigits = "0123456789ABCDEF"

// Encode encodes s into a filesystem-safe name. Every byte outside the safe
// set is replaced by %HH (uppercase hex). If the result would begin with a
// literal '.', the first byte is instead encoded as %2E so that "hidden"
// files remain distinguishable from encoded user content.
//
// s is first normalized to Unicode NFC form, so that two filesystems which
// disagree about Unicode decomposition (as POSIX filesystems on macOS are
// known to) still produce byte-identical encoded names for the same
// logical string.
func Encode(s string) string {
	s = norm.NFC.String(s)

	var builder strings.Builder
	builder.Grow(len(s))

	data := []byte(s)
	for i, b := range data {
		if i == 0 && b == '.' {
			builder.WriteString("%2E")
			continue
		}
		if safe(b) {
			builder.WriteByte(b)
		} else {
			builder.WriteByte('%')
			builder.WriteByte(hexDigits[b>>4])
			builder.WriteByte(hexDigits[b&0xF])
		}
	}

	return builder.String()
}

// Decode reverses Encode. It rejects any string beginning with a literal
// '.' (those are reserved for engine internals and are never produced by
// Encode), rewrites a leading "%2E" back to '.', and expands %HH escapes.
// It returns ("", false) on any malformed input: an odd trailing '%', a
// non-hex digit following '%', a lowercase hex digit (only uppercase is
// accepted, per the exact shared alphabet), or a byte outside the safe set
// appearing unescaped.
func Decode(encoded string) (string, bool) {
	if encoded == "" {
		return "", true
	}
	if encoded[0] == '.' {
		return "", false
	}

	rest := encoded
	var builder strings.Builder
	builder.Grow(len(encoded))

	if strings.HasPrefix(rest, "%2E") {
		builder.WriteByte('.')
		rest = rest[3:]
	}

	data := []byte(rest)
	for i := 0; i < len(data); i++ {
		b := data[i]
		if b == '%' {
			if i+2 >= len(data) {
				return "", false
			}
			hi, ok1 := hexValue(data[i+1])
			lo, ok2 := hexValue(data[i+2])
			if !ok1 || !ok2 {
				return "", false
			}
			builder.WriteByte(hi<<4 | lo)
			i += 2
			continue
		}
		if !safe(b) {
			return "", false
		}
		builder.WriteByte(b)
	}

	return builder.String(), true
}

// hexValue decodes a single uppercase hex digit. Lowercase is intentionally
// rejected: the shared encoding alphabet mandates uppercase escapes, so a
// lowercase digit indicates a name this implementation did not produce and
// should not trust.
func hexValue(b byte) (byte, bool) {
	switch {
	case b >= '0' && b <= '9':
		return b - '0', true
	case b >= 'A' && b <= 'F':
		return b - 'A' + 10, true
	default:
		return 0, false
	}
}

// MustEncode is like Encode, but panics if given an empty string, which has
// no meaningful encoding as a path segment. It exists for call sites that
// already know their input is non-empty (e.g. hard-coded directory names)
// and want a usage bug to fail loudly.
func MustEncode(s string) string {
	if s == "" {
		panic("namecodec: cannot encode empty string")
	}
	return Encode(s)
}
