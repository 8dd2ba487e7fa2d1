package model

import (
	"strings"
	"unicode"
)

// DeriveSearchText normalizes a message body (plus any indexable metadata,
// e.g. an attachment filename) into the text the search indexes cover. The
// result feeds both the tsvector column and the trigram index, so it keeps
// all scripts intact: lowercasing is Unicode-aware and punctuation collapses
// to single spaces without assuming space-delimited words.
func DeriveSearchText(parts ...string) string {
	var b strings.Builder
	for _, part := range parts {
		for _, r := range part {
			switch {
			case unicode.IsLetter(r) || unicode.IsNumber(r):
				b.WriteRune(unicode.ToLower(r))
			default:
				b.WriteRune(' ')
			}
		}
		b.WriteRune(' ')
	}
	return strings.Join(strings.Fields(b.String()), " ")
}
