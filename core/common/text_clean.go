package common

import (
	"regexp"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/unicode/norm"
)

var (
	// 多个空格/制表符合并为一个空格
	spaceRe = regexp.MustCompile(`[ \t\f\v]+`)
	// 3 个及以上换行合并为段落分隔
	newlineRe = regexp.MustCompile(`\n{3,}`)
)

// 零宽字符 & BOM
var zeroWidthRunes = map[rune]bool{
	'\u200B': true, // Zero Width Space
	'\u200C': true, // Zero Width Non-Joiner
	'\u200D': true, // Zero Width Joiner
	'\uFEFF': true, // BOM
	'\u2060': true, // Word Joiner
	'\u180E': true, // Mongolian Vowel Separator
}

func isNonStandardSpace(r rune) bool {
	return r == '\u00A0' || r == '\u1680' || r == '\u202F' || r == '\u205F' || r == '\u3000' ||
		(r >= '\u2000' && r <= '\u200A')
}

// CleanChunkText prepares extracted document text for chunking and embedding.
// The cleaned text is what gets stored and later placed in the prompt.
func CleanChunkText(s string) string {
	if !utf8.ValidString(s) {
		s = strings.ToValidUTF8(s, "")
	}

	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		switch {
		case r == '\n' || r == '\t' || r == '\r':
			b.WriteRune(r)
		case r < 0x20 || r == 0x7F:
		case zeroWidthRunes[r]:
		case isNonStandardSpace(r):
			b.WriteRune(' ')
		default:
			b.WriteRune(r)
		}
	}

	s = norm.NFC.String(b.String())
	s = strings.ReplaceAll(s, "\r\n", "\n")
	s = strings.ReplaceAll(s, "\r", "\n")
	s = spaceRe.ReplaceAllString(s, " ")
	s = newlineRe.ReplaceAllString(s, "\n\n")
	return strings.TrimSpace(s)
}
