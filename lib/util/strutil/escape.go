package strutil

import "strings"

// Escape wraps str in quote characters, doubling any embedded quotes the way
// postgres string and identifier literals expect.
func Escape(str string, quote byte) string {
	var b strings.Builder
	b.Grow(len(str) + 2)
	b.WriteByte(quote)
	for i := 0; i < len(str); i++ {
		if str[i] == quote {
			b.WriteByte(quote)
		}
		b.WriteByte(str[i])
	}
	b.WriteByte(quote)
	return b.String()
}
