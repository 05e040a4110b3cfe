package usecase

import "strings"

// AppendUtterance merges a finalized fragment into the accumulated transcript.
// A separator is only inserted when both sides carry text: a single space
// after '.', '!' or '?', otherwise ". ".
func AppendUtterance(accumulated string, fragment string) string {
	if isBlank(accumulated) || isBlank(fragment) {
		return accumulated + fragment
	}
	if endsWithTerminalPunctuation(accumulated) {
		return accumulated + " " + fragment
	}
	return accumulated + ". " + fragment
}

func isBlank(s string) bool {
	return strings.TrimSpace(s) == ""
}

func endsWithTerminalPunctuation(s string) bool {
	switch s[len(s)-1] {
	case '.', '!', '?':
		return true
	default:
		return false
	}
}

// transcriptAggregator holds one session's finalized text and the utterance
// currently being recognized.
type transcriptAggregator struct {
	accumulated string
	partial     string
}

func newTranscriptAggregator() *transcriptAggregator {
	return &transcriptAggregator{}
}

func (a *transcriptAggregator) Reset() {
	a.accumulated = ""
	a.partial = ""
}

func (a *transcriptAggregator) SetPartial(text string) {
	a.partial = text
}

func (a *transcriptAggregator) Partial() string {
	return a.partial
}

// Finalize appends fragment and clears the partial utterance.
func (a *transcriptAggregator) Finalize(fragment string) {
	a.accumulated = AppendUtterance(a.accumulated, fragment)
	a.partial = ""
}

func (a *transcriptAggregator) Accumulated() string {
	return a.accumulated
}

// Text is what the display shows: finalized text followed by the partial.
func (a *transcriptAggregator) Text() string {
	return a.accumulated + a.partial
}
