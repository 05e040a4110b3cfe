package voice

import (
	"strings"

	"voicepad/internal/domain"
)

// notice is what a provider event means for voice listeners.
type notice struct {
	final bool
	text  string
}

// utteranceSegmenter groups a provider's final segments into utterances.
// Segments are final pieces of text; the utterance is complete once the
// provider marks speech as final.
type utteranceSegmenter struct {
	segments []string
}

func (u *utteranceSegmenter) Add(event domain.TranscriptEvent) (notice, bool) {
	text := strings.TrimSpace(event.Text)

	switch event.Kind {
	case domain.TranscriptKindPartial:
		if text == "" {
			return notice{}, false
		}
		return notice{text: u.joined(text)}, true

	case domain.TranscriptKindFinal:
		if text != "" {
			u.segments = append(u.segments, text)
		}
		if event.IsSpeechFinal {
			if len(u.segments) == 0 {
				return notice{}, false
			}
			return notice{final: true, text: u.Flush()}, true
		}
		if text == "" {
			return notice{}, false
		}
		return notice{text: u.joined("")}, true
	}

	return notice{}, false
}

// Flush returns the pending utterance and starts a new one.
func (u *utteranceSegmenter) Flush() string {
	text := u.joined("")
	u.segments = nil
	return text
}

func (u *utteranceSegmenter) joined(interim string) string {
	parts := u.segments
	if interim != "" {
		parts = append(parts[:len(parts):len(parts)], interim)
	}
	return strings.Join(parts, " ")
}
