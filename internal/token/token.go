// Package token splits raw citation strings into typed tokens.
package token

import (
	"errors"
	"strings"
	"unicode"
	"unicode/utf8"
)

// ErrInvalidInput is returned for empty or whitespace-only citation strings.
var ErrInvalidInput = errors.New("invalid input")

// Class is the character class of a token.
type Class uint8

const (
	Word Class = iota
	Number
	Punct
	Open  // opening bracket
	Close // closing bracket
	URL
	DOI
	Other
)

var classNames = [...]string{"word", "number", "punct", "open", "close", "url", "doi", "other"}

func (c Class) String() string {
	if int(c) < len(classNames) {
		return classNames[c]
	}
	return "unknown"
}

// IsPunctuation reports whether the class is a delimiter class.
func (c Class) IsPunctuation() bool {
	return c == Punct || c == Open || c == Close
}

// Token is a minimal lexical unit of a citation string. Start and End are
// byte offsets into the source, so src[Start:End] == Text.
type Token struct {
	Text  string `json:"text"`
	Start int    `json:"start"`
	End   int    `json:"end"`
	Class Class  `json:"class"`
}

// trailingURLPunct is trimmed from the end of URL and DOI tokens and
// re-emitted as separate punctuation tokens.
const trailingURLPunct = ".,;:)]}>'\""

// Tokenize splits s on whitespace and punctuation boundaries. Every
// punctuation rune is a token of its own; URLs and DOIs are kept whole;
// Han, kana and hangul characters are one token each.
func Tokenize(s string) ([]Token, error) {
	if strings.TrimSpace(s) == "" {
		return nil, ErrInvalidInput
	}

	var tokens []Token
	i := 0
	for i < len(s) {
		r, size := utf8.DecodeRuneInString(s[i:])

		switch {
		case unicode.IsSpace(r):
			i += size

		case isURLStart(s[i:]) || isDOIStart(s[i:]):
			class := URL
			if isDOIStart(s[i:]) {
				class = DOI
			}
			end := i
			for end < len(s) {
				r2, sz := utf8.DecodeRuneInString(s[end:])
				if unicode.IsSpace(r2) {
					break
				}
				end += sz
			}
			trimmed := strings.TrimRight(s[i:end], trailingURLPunct)
			tokens = append(tokens, Token{Text: trimmed, Start: i, End: i + len(trimmed), Class: class})
			i += len(trimmed)

		case isIdeograph(r):
			tokens = append(tokens, Token{Text: s[i : i+size], Start: i, End: i + size, Class: Word})
			i += size

		case isWordRune(r):
			start := i
			hasLetter := false
			for i < len(s) {
				r2, sz := utf8.DecodeRuneInString(s[i:])
				if isWordRune(r2) && !isIdeograph(r2) {
					if unicode.IsLetter(r2) {
						hasLetter = true
					}
					i += sz
					continue
				}
				// Joiners stay inside a word when flanked by letters: O'Brien, Smith-Jones.
				if isJoiner(r2) && i > start {
					prev, _ := utf8.DecodeLastRuneInString(s[start:i])
					next, _ := utf8.DecodeRuneInString(s[i+sz:])
					if unicode.IsLetter(prev) && unicode.IsLetter(next) && !isIdeograph(next) {
						i += sz
						continue
					}
				}
				break
			}
			class := Number
			if hasLetter {
				class = Word
			}
			tokens = append(tokens, Token{Text: s[start:i], Start: start, End: i, Class: class})

		default:
			tokens = append(tokens, Token{Text: s[i : i+size], Start: i, End: i + size, Class: punctClass(r)})
			i += size
		}
	}

	return tokens, nil
}

func isWordRune(r rune) bool {
	return unicode.IsLetter(r) || unicode.IsDigit(r) || unicode.Is(unicode.Mn, r)
}

func isJoiner(r rune) bool {
	return r == '\'' || r == '-' || r == '’'
}

// isIdeograph reports whether r belongs to a script written without spaces.
func isIdeograph(r rune) bool {
	return unicode.Is(unicode.Han, r) ||
		unicode.Is(unicode.Hiragana, r) ||
		unicode.Is(unicode.Katakana, r) ||
		unicode.Is(unicode.Hangul, r)
}

func punctClass(r rune) Class {
	switch r {
	case '(', '[', '{', '（', '【', '「', '《', '〈', '『':
		return Open
	case ')', ']', '}', '）', '】', '」', '》', '〉', '』':
		return Close
	}
	if unicode.IsPunct(r) || unicode.IsSymbol(r) {
		return Punct
	}
	return Other
}

func isURLStart(s string) bool {
	lower := strings.ToLower(prefix(s, 8))
	return strings.HasPrefix(lower, "http://") ||
		strings.HasPrefix(lower, "https://") ||
		strings.HasPrefix(lower, "www.")
}

// isDOIStart matches "10." followed by 4-9 digits and a slash.
func isDOIStart(s string) bool {
	if !strings.HasPrefix(s, "10.") {
		return false
	}
	digits := 0
	for i := 3; i < len(s); i++ {
		c := s[i]
		switch {
		case c >= '0' && c <= '9':
			digits++
		case c == '/':
			return digits >= 4 && digits <= 9 && i+1 < len(s) && !unicode.IsSpace(rune(s[i+1]))
		default:
			return false
		}
	}
	return false
}

func prefix(s string, n int) string {
	if len(s) < n {
		return s
	}
	return s[:n]
}
