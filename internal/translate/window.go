package translate

import "strings"

// Entry pairs a finalized caption with its translation, which stays empty
// until the translation completes.
type Entry struct {
	CaptionID   string
	Original    string
	Translation string
}

// Window is a bounded, ordered history of finalized captions used to give
// the translator context. The oldest entry is evicted first.
type Window struct {
	size    int
	entries []Entry
}

// NewWindow returns a Window holding at most size entries. A size below one
// keeps no history.
func NewWindow(size int) *Window {
	if size < 0 {
		size = 0
	}
	return &Window{size: size}
}

// Add records a caption. Adding an id that is already present replaces its
// original text and clears the translation, keeping one entry per id.
func (w *Window) Add(captionID, original string) {
	if w.size == 0 {
		return
	}
	for i := range w.entries {
		if w.entries[i].CaptionID == captionID {
			w.entries = append(w.entries[:i], w.entries[i+1:]...)
			break
		}
	}
	w.entries = append(w.entries, Entry{CaptionID: captionID, Original: original})
	if over := len(w.entries) - w.size; over > 0 {
		w.entries = append(w.entries[:0:0], w.entries[over:]...)
	}
}

// SetTranslation fills in the translation for captionID. It reports false
// if the entry has already been evicted.
func (w *Window) SetTranslation(captionID, translation string) bool {
	for i := range w.entries {
		if w.entries[i].CaptionID == captionID {
			w.entries[i].Translation = translation
			return true
		}
	}
	return false
}

// Entries returns a copy of the window, oldest first.
func (w *Window) Entries() []Entry {
	out := make([]Entry, len(w.entries))
	copy(out, w.entries)
	return out
}

// Len returns the number of entries.
func (w *Window) Len() int { return len(w.entries) }

// Reset drops all entries.
func (w *Window) Reset() { w.entries = nil }

// String formats translated entries as "original -> translation" lines,
// oldest first. Untranslated entries are skipped.
func (w *Window) String() string {
	var b strings.Builder
	for _, e := range w.entries {
		if e.Translation == "" {
			continue
		}
		if b.Len() > 0 {
			b.WriteByte('\n')
		}
		b.WriteString(e.Original)
		b.WriteString(" -> ")
		b.WriteString(e.Translation)
	}
	return b.String()
}
