package config

import (
	"bytes"
	"strings"
	"unicode"
)

// QuoteFields renders args as a single line, each argument wrapped in quote
// and followed by a space. Quote characters inside an argument are not
// escaped, so the result only splits back to args when no argument contains
// quote.
func QuoteFields(args []string, quote rune) string {
	var sb strings.Builder
	for _, arg := range args {
		sb.WriteRune(quote)
		sb.WriteString(arg)
		sb.WriteRune(quote)
		sb.WriteByte(' ')
	}
	return sb.String()
}

// Like strings.Fields but ignores spaces inside areas surrounded
// by the specified quote character.
// Inside a quoted area a backslash escapes the next character.
func SplitQuotedFields(in string, quote rune) []string {
	type stateEnum int
	const (
		inSpace stateEnum = iota
		inField
		inQuote
		inQuoteEscaped
	)
	state := inSpace
	r := []string{}
	var buf bytes.Buffer
	// quoted remembers that the current field was opened by a quote, so
	// that '' yields an empty field instead of nothing.
	quoted := false

	flush := func() {
		if buf.Len() != 0 || quoted {
			r = append(r, buf.String())
		}
		buf.Reset()
		quoted = false
	}

	for _, ch := range in {
		switch state {
		case inSpace:
			if ch == quote {
				state = inQuote
				quoted = true
			} else if !unicode.IsSpace(ch) {
				buf.WriteRune(ch)
				state = inField
			}

		case inField:
			if ch == quote {
				state = inQuote
				quoted = true
			} else if unicode.IsSpace(ch) {
				flush()
				state = inSpace
			} else {
				buf.WriteRune(ch)
			}

		case inQuote:
			if ch == quote {
				state = inField
			} else if ch == '\\' {
				state = inQuoteEscaped
			} else {
				buf.WriteRune(ch)
			}

		case inQuoteEscaped:
			buf.WriteRune(ch)
			state = inQuote
		}
	}

	if state != inSpace {
		flush()
	}

	return r
}
