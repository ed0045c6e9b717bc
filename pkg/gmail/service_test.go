package gmail

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
)

func TestTrimBody_ShortBodyUnchanged(t *testing.T) {
	assert.Equal(t, "hello", trimBody("hello"))
	assert.Equal(t, "", trimBody(""))
}

func TestTrimBody_CutsOnRuneBoundary(t *testing.T) {
	// A four-byte rune straddling the cap must not be split.
	body := strings.Repeat("a", 3499) + "🎉 and more"
	trimmed := trimBody(body)
	assert.True(t, utf8.ValidString(trimmed))
	assert.Equal(t, strings.Repeat("a", 3499)+"…", trimmed)
}

func TestTrimBody_MultiByteBodyStaysValid(t *testing.T) {
	// Three-byte runes guarantee the cap lands mid-rune.
	trimmed := trimBody(strings.Repeat("你", 2000))
	assert.True(t, utf8.ValidString(trimmed))
	assert.LessOrEqual(t, len(trimmed), 3500+len("…"))
	assert.True(t, strings.HasSuffix(trimmed, "…"))
}

func TestSenderAddress(t *testing.T) {
	assert.Equal(t, "alice@example.com", senderAddress(`"Alice" <alice@example.com>`))
	assert.Equal(t, "bob@example.com", senderAddress("bob@example.com"))
	assert.Equal(t, "not a header", senderAddress("not a header"))
}

func TestDecodeSubject(t *testing.T) {
	assert.Equal(t, "(no subject)", decodeSubject(""))
	assert.Equal(t, "plain", decodeSubject("plain"))
	assert.Equal(t, "Привет", decodeSubject("=?UTF-8?B?0J/RgNC40LLQtdGC?="))
}
