package translate

import (
	"fmt"
	"strings"
)

// Prompt is a system instruction plus the text to translate.
type Prompt struct {
	System string
	User   string
}

// BuildPrompt assembles the translation instruction. sourceLanguage may be
// empty to let the model detect it.
func BuildPrompt(sourceLanguage, targetLanguage, history, text string) Prompt {
	var b strings.Builder
	if sourceLanguage != "" {
		fmt.Fprintf(&b, "You translate live speech captions from %s into %s.\n", sourceLanguage, targetLanguage)
	} else {
		fmt.Fprintf(&b, "You translate live speech captions into %s.\n", targetLanguage)
	}
	b.WriteString("The input is a transcript fragment and may be incomplete or contain recognition errors.\n")
	b.WriteString("Reply with the translation only, without quotes, notes or explanations.")
	if history = strings.TrimSpace(history); history != "" {
		b.WriteString("\n\nEarlier captions and their translations, for context only:\n")
		b.WriteString(history)
	}
	return Prompt{System: b.String(), User: text}
}

// cleanTranslation strips wrapping whitespace and quotes models tend to add.
func cleanTranslation(s string) string {
	s = strings.TrimSpace(s)
	for _, q := range [][2]string{{`"`, `"`}, {"“", "”"}, {"「", "」"}} {
		if len(s) > len(q[0])+len(q[1]) && strings.HasPrefix(s, q[0]) && strings.HasSuffix(s, q[1]) {
			s = strings.TrimSpace(s[len(q[0]) : len(s)-len(q[1])])
		}
	}
	return s
}
