// Package rfid renders asset identifiers as fixed-width hexadecimal tag ids.
package rfid

import (
	"fmt"
	"strings"
	"unicode/utf8"
)

// DefaultBits is the tag id width used when none is configured.
const DefaultBits = 16

// Encode returns the tag id for id. Each character of the optional one
// character prefix and of the rightmost id characters that fit is written as
// uppercase hex. With totalBits=16 a prefix leaves room for 7 id characters.
func Encode(id, prefix string, totalBits int) string {
	maxChars := totalBits / 2
	var p string
	if prefix != "" {
		r, _ := utf8.DecodeRuneInString(prefix)
		p = string(r)
		maxChars--
	}
	if maxChars < 0 {
		maxChars = 0
	}

	runes := []rune(id)
	if len(runes) > maxChars {
		runes = runes[len(runes)-maxChars:]
	}

	var b strings.Builder
	for _, r := range p + string(runes) {
		fmt.Fprintf(&b, "%X", r)
	}
	return b.String()
}
