// src/validation/sanitizers_test.go
package validation

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSanitizeTextStripsMarkupAndControlChars(t *testing.T) {
	assert.Equal(t, "bold note", SanitizeText("<b>bold</b> note"))
	assert.Equal(t, "", SanitizeText("<script>alert(1)</script>"))
	assert.Equal(t, "clean", SanitizeText("  cle\x07an\x1b  "))
	assert.Equal(t, "line one\nline two", SanitizeText("line one\nline two"))
}

func TestStripUnprintableKeepsCommonWhitespace(t *testing.T) {
	assert.Equal(t, "a\tb\nc\rd", StripUnprintable("a\tb\nc\rd"))
	assert.Equal(t, "ab", StripUnprintable("a\x1bb"))
}

func TestSanitizeTicker(t *testing.T) {
	assert.Equal(t, "AAPL", SanitizeTicker("  aapl "))
	assert.Equal(t, "BRK.B", SanitizeTicker("brk.b"))
	assert.Equal(t, "AAPL", SanitizeTicker("aa<pl>"))
}
