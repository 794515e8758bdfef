package namecodec

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRoundTripNonDot(t *testing.T) {
	cases := []string{
		"simple",
		"with space",
		"unicode ☺",
		"slash/in/name",
		"percent%sign",
		"safe-chars_stay.the~same",
		"",
	}
	for _, s := range cases {
		encoded := Encode(s)
		decoded, ok := Decode(encoded)
		require.True(t, ok, "decode should succeed for %q -> %q", s, encoded)
		require.Equal(t, s, decoded)
	}
}

func TestLeadingDotProtection(t *testing.T) {
	encoded := Encode(".hidden")
	require.True(t, len(encoded) >= 3)
	require.Equal(t, "%2E", encoded[:3])
	require.NotEqual(t, byte('.'), encoded[0])

	decoded, ok := Decode(encoded)
	require.True(t, ok)
	require.Equal(t, ".hidden", decoded)
}

func TestDecodeRejectsLeadingDot(t *testing.T) {
	_, ok := Decode(".decsync-sequence")
	require.False(t, ok)
}

func TestDecodeRejectsLowercaseHex(t *testing.T) {
	_, ok := Decode("%2e")
	require.False(t, ok)
}

func TestDecodeRejectsUnsafeByte(t *testing.T) {
	_, ok := Decode("a/b")
	require.False(t, ok)
}

func TestDecodeRejectsTruncatedEscape(t *testing.T) {
	_, ok := Decode("a%2")
	require.False(t, ok)
}

func TestEncodeIsUppercaseHex(t *testing.T) {
	encoded := Encode("/")
	require.Equal(t, "%2F", encoded)
}

func TestEncodeNormalizesToNFC(t *testing.T) {
	decomposed := "e\u0301" // "e" + combining acute accent (NFD)
	composed := "\u00e9"    // precomposed form (NFC)

	require.Equal(t, Encode(composed), Encode(decomposed))
}
