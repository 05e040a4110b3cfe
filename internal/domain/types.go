package domain

import "time"

// SessionState models the push-to-talk lifecycle.
type SessionState string

const (
	SessionStateIdle      SessionState = "idle"
	SessionStateListening SessionState = "listening"
	// SessionStateUnavailable is reported when the backend failed to start.
	SessionStateUnavailable SessionState = "unavailable"
)

// ErrorCode identifies where a recognition or delivery error came from.
type ErrorCode string

const (
	ErrorCodeStartup       ErrorCode = "startup"
	ErrorCodeAudioStream   ErrorCode = "audio_stream"
	ErrorCodeTranscription ErrorCode = "transcription"
	ErrorCodeClipboard     ErrorCode = "clipboard"
	ErrorCodePublish       ErrorCode = "publish"
)

// RecognitionError is raised by the voice service instead of returning errors
// to callers.
type RecognitionError struct {
	Code    ErrorCode `json:"code"`
	Message string    `json:"message"`
}

func (e RecognitionError) Error() string {
	if e.Message == "" {
		return string(e.Code)
	}
	return string(e.Code) + ": " + e.Message
}

// TranscriptKind identifies whether a stream event is partial or final text.
type TranscriptKind string

const (
	TranscriptKindPartial TranscriptKind = "partial"
	TranscriptKindFinal   TranscriptKind = "final"
)

// TranscriptEvent represents incremental transcription output from a provider.
// A final event with IsSpeechFinal closes the current utterance; its Text may
// be empty when the provider only signals the utterance boundary.
type TranscriptEvent struct {
	Kind          TranscriptKind `json:"kind"`
	Text          string         `json:"text"`
	IsSpeechFinal bool           `json:"isSpeechFinal"`
}

// IndicatorColor is the microphone indicator tint.
type IndicatorColor string

const (
	IndicatorColorIdle      IndicatorColor = "#ffffff"
	IndicatorColorRecording IndicatorColor = "#ff0000"
)

func IndicatorColorFor(recording bool) IndicatorColor {
	if recording {
		return IndicatorColorRecording
	}
	return IndicatorColorIdle
}

// FinishedTranscript is what gets delivered once a session fully finalizes.
type FinishedTranscript struct {
	SessionID  string    `json:"sessionId"`
	Text       string    `json:"text"`
	Copied     bool      `json:"copied"`
	Published  bool      `json:"published"`
	FinishedAt time.Time `json:"finishedAt"`
}

// Status summarizes the current runtime status.
type Status struct {
	State     SessionState `json:"state"`
	Active    bool         `json:"active"`
	SessionID string       `json:"sessionId,omitempty"`
	Text      string       `json:"text,omitempty"`
	Message   string       `json:"message,omitempty"`
}
