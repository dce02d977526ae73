// Package pipeline drives one conversation turn end to end: transcription,
// streamed text generation, incremental sentence segmentation, and
// concurrent speech synthesis with strictly ordered audio delivery.
package pipeline

import (
	"strings"
)

// sentenceTerminators are the runes that close a sentence. Both ASCII and
// fullwidth CJK punctuation count, so mixed-language output segments cleanly.
const sentenceTerminators = ".!?\n。！？:："

// SentenceUnit is a complete sentence plus its ordinal position within a
// turn. The ordinal drives in-order audio delivery even when synthesis
// calls complete out of order.
type SentenceUnit struct {
	// Index is the zero-based ordinal of this sentence within the turn.
	Index int

	// Text is the trimmed sentence text, including its terminator.
	Text string
}

// Segmenter performs incremental sentence segmentation over a stream of
// text deltas. It holds a trailing partial sentence until more text
// arrives or Flush is called at end of stream.
//
// Segmenter is not safe for concurrent use; each turn owns its own.
type Segmenter struct {
	pending strings.Builder
	next    int
}

// NewSegmenter creates a segmenter with an empty buffer.
func NewSegmenter() *Segmenter {
	return &Segmenter{}
}

// Feed appends a generation delta to the buffer and returns any sentences
// completed by it, in order. Sentences that are empty after trimming are
// dropped without consuming an ordinal.
func (s *Segmenter) Feed(delta string) []SentenceUnit {
	if delta == "" {
		return nil
	}
	s.pending.WriteString(delta)

	text := s.pending.String()
	var units []SentenceUnit
	start := 0
	for i, r := range text {
		if !strings.ContainsRune(sentenceTerminators, r) {
			continue
		}
		sentence := strings.TrimSpace(text[start : i+len(string(r))])
		if sentence != "" {
			units = append(units, SentenceUnit{Index: s.next, Text: sentence})
			s.next++
		}
		start = i + len(string(r))
	}

	s.pending.Reset()
	if start < len(text) {
		s.pending.WriteString(text[start:])
	}
	return units
}

// Flush returns the trailing partial sentence as a final unit, or nil if
// the buffer is empty after trimming. Call once, at end of stream.
func (s *Segmenter) Flush() *SentenceUnit {
	sentence := strings.TrimSpace(s.pending.String())
	s.pending.Reset()
	if sentence == "" {
		return nil
	}
	unit := &SentenceUnit{Index: s.next, Text: sentence}
	s.next++
	return unit
}

// Count returns the number of units emitted so far.
func (s *Segmenter) Count() int {
	return s.next
}
