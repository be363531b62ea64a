// Package markup decorates task details for display.
package markup

import (
	"regexp"
	"strings"
	"unicode"
)

var urlPattern = regexp.MustCompile(`https?://[A-Za-z0-9-]+(?:\.[A-Za-z0-9-]+)+(?:/[A-Za-z0-9._~/?&=%+-]*)?`)

// TaskDetails wraps every standalone http(s) URL in an anchor that opens
// in a new tab. A URL only qualifies when its host has a dot and it is not
// directly followed by a port, a fragment or other non-URL text, so
// "http://localhost/" and "http://host.tld:8000" are left untouched.
func TaskDetails(details string) string {
	matches := urlPattern.FindAllStringIndex(details, -1)
	if len(matches) == 0 {
		return details
	}

	var b strings.Builder
	last := 0
	for _, m := range matches {
		start, end := m[0], m[1]
		if !leftBoundary(details, start) || !rightBoundary(details, end) {
			continue
		}
		url := details[start:end]
		b.WriteString(details[last:start])
		b.WriteString(`<a href="`)
		b.WriteString(url)
		b.WriteString(`" target="_blank">`)
		b.WriteString(url)
		b.WriteString(`</a>`)
		last = end
	}
	b.WriteString(details[last:])
	return b.String()
}

func leftBoundary(s string, i int) bool {
	if i == 0 {
		return true
	}
	c := rune(s[i-1])
	return unicode.IsSpace(c) || c == '>' || c == '('
}

// rightBoundary accepts end of text, whitespace, a tag, or one trailing
// punctuation mark that ends a sentence.
func rightBoundary(s string, i int) bool {
	if i == len(s) {
		return true
	}
	c := rune(s[i])
	if unicode.IsSpace(c) || c == '<' {
		return true
	}
	if strings.ContainsRune(".,;!?)", c) {
		return i+1 == len(s) || unicode.IsSpace(rune(s[i+1])) || s[i+1] == '<'
	}
	return false
}
