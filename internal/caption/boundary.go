package caption

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// DefaultTerminators are the sentence-ending marks recognized when none are
// configured.
const DefaultTerminators = ".!?。！？…"

var defaultAbbreviations = []string{
	"mr.", "mrs.", "ms.", "dr.", "prof.", "sr.", "jr.", "st.", "vs.",
	"e.g.", "i.e.", "inc.", "ltd.", "co.", "approx.", "dept.", "fig.", "mt.",
}

// Tokenizer finds sentence boundaries in hypothesis text.
type Tokenizer struct {
	terminators   map[rune]struct{}
	abbreviations map[string]struct{}
}

// NewTokenizer returns a Tokenizer for the given terminator set. Extra
// abbreviations are matched case-insensitively and need their trailing
// period ("Gov.").
func NewTokenizer(terminators string, abbreviations []string) *Tokenizer {
	if terminators == "" {
		terminators = DefaultTerminators
	}
	t := &Tokenizer{
		terminators:   make(map[rune]struct{}),
		abbreviations: make(map[string]struct{}),
	}
	for _, r := range terminators {
		t.terminators[r] = struct{}{}
	}
	for _, a := range defaultAbbreviations {
		t.abbreviations[a] = struct{}{}
	}
	for _, a := range abbreviations {
		a = strings.ToLower(strings.TrimSpace(a))
		if a == "" {
			continue
		}
		if !strings.HasSuffix(a, ".") {
			a += "."
		}
		t.abbreviations[a] = struct{}{}
	}
	return t
}

// IsTerminator reports whether r ends a sentence.
func (t *Tokenizer) IsTerminator(r rune) bool {
	_, ok := t.terminators[r]
	return ok
}

// Boundaries returns the byte offsets just past each sentence-ending run in
// text, in increasing order. A run of consecutive terminators ("...", "?!")
// and any closing quotes after it yield a single boundary at its end. ASCII
// terminators only count when followed by whitespace or the end of text.
func (t *Tokenizer) Boundaries(text string) []int {
	var out []int
	for i := 0; i < len(text); {
		r, size := utf8.DecodeRuneInString(text[i:])
		if !t.IsTerminator(r) {
			i += size
			continue
		}
		wide := r >= utf8.RuneSelf
		j := i + size
		for j < len(text) {
			r2, s2 := utf8.DecodeRuneInString(text[j:])
			if !t.IsTerminator(r2) {
				break
			}
			if r2 >= utf8.RuneSelf {
				wide = true
			}
			j += s2
		}
		for j < len(text) {
			r2, s2 := utf8.DecodeRuneInString(text[j:])
			if !isCloser(r2) {
				break
			}
			j += s2
		}
		i = j
		if !wide && j < len(text) {
			next, _ := utf8.DecodeRuneInString(text[j:])
			if !unicode.IsSpace(next) {
				continue
			}
		}
		out = append(out, j)
	}
	return out
}

// IsAbbreviation reports whether the word ending at boundary is a known
// abbreviation, a single capital initial ("N."), or a dotted initialism
// ("U.S."), any of which make the boundary unreliable.
func (t *Tokenizer) IsAbbreviation(text string, boundary int) bool {
	if boundary <= 0 || boundary > len(text) {
		return false
	}
	prefix := strings.TrimRightFunc(text[:boundary], isCloser)
	if !strings.HasSuffix(prefix, ".") {
		return false
	}
	word := prefix
	if idx := strings.LastIndexFunc(prefix, unicode.IsSpace); idx >= 0 {
		_, size := utf8.DecodeRuneInString(prefix[idx:])
		word = prefix[idx+size:]
	}
	word = strings.TrimLeftFunc(word, isOpener)
	if word == "" || word == "." {
		return false
	}
	if _, ok := t.abbreviations[strings.ToLower(word)]; ok {
		return true
	}
	return isInitialism(word)
}

// Split cuts text at every reliable boundary. The returned pieces are
// contiguous and concatenate back to text.
func (t *Tokenizer) Split(text string) []string {
	var out []string
	last := 0
	for _, b := range t.Boundaries(text) {
		if b <= last || b >= len(text) || t.IsAbbreviation(text, b) {
			continue
		}
		out = append(out, text[last:b])
		last = b
	}
	if last < len(text) {
		out = append(out, text[last:])
	}
	return out
}

// isInitialism matches "N." and "U.S." style tokens: single letters each
// followed by a period, the first one upper case.
func isInitialism(word string) bool {
	runes := []rune(word)
	if len(runes) < 2 || len(runes)%2 != 0 {
		return false
	}
	if !unicode.IsUpper(runes[0]) {
		return false
	}
	for i := 0; i < len(runes); i += 2 {
		if !unicode.IsLetter(runes[i]) || runes[i+1] != '.' {
			return false
		}
	}
	return true
}

func isCloser(r rune) bool {
	switch r {
	case '"', '\'', ')', ']', '}', '”', '’', '」', '』', '）':
		return true
	}
	return false
}

func isOpener(r rune) bool {
	switch r {
	case '"', '\'', '(', '[', '{', '“', '‘', '「', '『', '（':
		return true
	}
	return false
}

// hasWordContent reports whether s contains a letter or digit.
func hasWordContent(s string) bool {
	for _, r := range s {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			return true
		}
	}
	return false
}
