package caption

import (
	"fmt"
	"unicode/utf8"
)

// Strategy selects how the segmenter remembers what it has finalized.
type Strategy string

const (
	// StrategySegments tracks the number of processed segments and only
	// finalizes boundaries before the last, still provisional, segment.
	StrategySegments Strategy = "segments"
	// StrategyOffsets tracks a byte offset into the hypothesis text. Used
	// with backends that send no segment metadata.
	StrategyOffsets Strategy = "offsets"
)

// ParseStrategy validates a configured strategy name. Empty selects
// StrategySegments.
func ParseStrategy(s string) (Strategy, error) {
	switch Strategy(s) {
	case "", StrategySegments:
		return StrategySegments, nil
	case StrategyOffsets:
		return StrategyOffsets, nil
	}
	return "", fmt.Errorf("caption: unknown segmentation strategy %q", s)
}

// Result is the outcome of applying one hypothesis.
type Result struct {
	// Finalized holds the newly stable spans, untrimmed and in order.
	Finalized []string
	// Residual is the unfinalized text to display live.
	Residual string
	// Changed reports whether Residual differs from the previous residual.
	Changed bool
}

// Segmenter detects the stable prefix of successive hypotheses within one
// recognition session. Text at or before the processed boundary has been
// returned in Finalized exactly once and is never returned again.
//
// A Segmenter is not safe for concurrent use.
type Segmenter struct {
	tok       *Tokenizer
	strategy  Strategy
	splitLong int

	processed    int
	processedLen int
	residual     string
	last         Hypothesis
}

// NewSegmenter returns a Segmenter. Forced finalization re-splits residual
// text longer than splitLong runes at sentence boundaries; zero disables it.
func NewSegmenter(tok *Tokenizer, strategy Strategy, splitLong int) *Segmenter {
	if tok == nil {
		tok = NewTokenizer("", nil)
	}
	if strategy == "" {
		strategy = StrategySegments
	}
	return &Segmenter{tok: tok, strategy: strategy, splitLong: splitLong}
}

// Residual returns the current unfinalized text.
func (s *Segmenter) Residual() string { return s.residual }

// ProcessedSegments returns the number of segments already finalized.
func (s *Segmenter) ProcessedSegments() int { return s.processed }

// ProcessedLength returns the byte offset already finalized under
// StrategyOffsets.
func (s *Segmenter) ProcessedLength() int { return s.processedLen }

// Apply consumes a new hypothesis for the current session.
func (s *Segmenter) Apply(h Hypothesis) Result {
	h = h.normalized()
	s.last = h

	var res Result
	if s.strategy == StrategyOffsets {
		res.Finalized = s.applyOffsets(h)
	} else {
		res.Finalized = s.applySegments(h)
	}

	prev := s.residual
	s.residual = h.Text[s.residualOffset(h):]
	res.Residual = s.residual
	res.Changed = s.residual != prev
	return res
}

func (s *Segmenter) applySegments(h Hypothesis) []string {
	n := len(h.Segments)
	if s.processed > n {
		s.processed = n
		s.processedLen = segmentOffset(h, n)
	}
	// The last segment is always provisional.
	if n < 2 {
		return nil
	}

	from := s.segmentsFrom(h)
	// Boundaries inside or after the last segment are provisional.
	limit := h.Segments[n-1].Start
	best := -1
	for _, b := range s.tok.Boundaries(h.Text) {
		if b <= from || b > limit {
			continue
		}
		if s.tok.IsAbbreviation(h.Text, b) {
			continue
		}
		best = b
	}
	if best < 0 {
		return nil
	}

	// Segments starting before the boundary are finalized with it. Backends
	// may put the punctuation in the gap after a segment rather than inside
	// it, so the span ends at the boundary or at the end of the segment the
	// boundary falls in, whichever is later. The limit above keeps the last
	// segment out.
	idx := s.processed
	for idx < n && h.Segments[idx].Start < best {
		idx++
	}
	if idx >= n {
		return nil
	}
	end := best
	if idx > 0 && h.Segments[idx-1].End > end {
		end = h.Segments[idx-1].End
	}
	if end <= from {
		return nil
	}
	span := h.Text[from:end]
	if !hasWordContent(span) {
		return nil
	}
	s.processed = idx
	s.processedLen = end
	return []string{span}
}

// segmentsFrom is where unprocessed text begins under StrategySegments:
// the end of the last processed segment, or the boundary offset when the
// last finalization ended in the gap after that segment.
func (s *Segmenter) segmentsFrom(h Hypothesis) int {
	off := segmentOffset(h, s.processed)
	p := s.processedLen
	if p <= off || p > len(h.Text) {
		return off
	}
	if p < len(h.Text) && !utf8.RuneStart(h.Text[p]) {
		return off
	}
	if s.processed < len(h.Segments) && p > h.Segments[s.processed].Start {
		return off
	}
	return p
}

// residualOffset is where the unfinalized text of h begins. Under
// StrategySegments a hypothesis without segment metadata falls back to the
// byte offset recorded by the last finalization.
func (s *Segmenter) residualOffset(h Hypothesis) int {
	if s.strategy == StrategySegments && len(h.Segments) > 0 {
		return s.segmentsFrom(h)
	}
	if s.processedLen > len(h.Text) {
		s.processedLen = len(h.Text)
	}
	for s.processedLen < len(h.Text) && !utf8.RuneStart(h.Text[s.processedLen]) {
		s.processedLen++
	}
	return s.processedLen
}

func (s *Segmenter) applyOffsets(h Hypothesis) []string {
	if s.processedLen > len(h.Text) {
		s.processedLen = len(h.Text)
	}
	for s.processedLen < len(h.Text) && !utf8.RuneStart(h.Text[s.processedLen]) {
		s.processedLen++
	}

	rest := h.Text[s.processedLen:]
	best := -1
	for _, b := range s.tok.Boundaries(rest) {
		// A boundary at the very end is provisional: the backend may still
		// be mid-sentence.
		if b >= len(rest) || !hasWordContent(rest[b:]) {
			continue
		}
		if s.tok.IsAbbreviation(rest, b) {
			continue
		}
		best = b
	}
	if best <= 0 {
		return nil
	}
	span := rest[:best]
	if !hasWordContent(span) {
		return nil
	}
	s.processedLen += best
	return []string{span}
}

// Flush finalizes the whole residual in one shot, splitting an overlong
// residual at sentence boundaries, and marks all known text as processed.
func (s *Segmenter) Flush() []string {
	text := s.residual
	s.processed = len(s.last.Segments)
	s.processedLen = len(s.last.Text)
	s.residual = ""

	if !hasWordContent(text) {
		return nil
	}
	if s.splitLong <= 0 || utf8.RuneCountInString(text) <= s.splitLong {
		return []string{text}
	}
	var out []string
	for _, piece := range s.tok.Split(text) {
		if hasWordContent(piece) {
			out = append(out, piece)
		}
	}
	return out
}

// Reset clears all offsets for a new recognition session.
func (s *Segmenter) Reset() {
	s.processed = 0
	s.processedLen = 0
	s.residual = ""
	s.last = Hypothesis{}
}

// segmentOffset is the byte offset where segment k begins its unprocessed
// region: the end of segment k-1, or zero.
func segmentOffset(h Hypothesis, k int) int {
	if k <= 0 || len(h.Segments) == 0 {
		return 0
	}
	if k > len(h.Segments) {
		k = len(h.Segments)
	}
	return h.Segments[k-1].End
}
