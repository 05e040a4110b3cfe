package ports

import (
	"context"
	"io"

	"voicepad/internal/domain"
	"voicepad/internal/event"
)

// AudioConfig describes how the microphone should be captured.
type AudioConfig struct {
	SampleRate  int
	Channels    int
	InputFormat string
	InputDevice string
}

// AudioSession is a live capture session.
type AudioSession interface {
	io.ReadCloser
	Stop() error
}

// AudioCapture creates microphone capture sessions.
type AudioCapture interface {
	Start(ctx context.Context, cfg AudioConfig) (AudioSession, error)
}

// StreamingConfig describes provider-agnostic streaming settings.
type StreamingConfig struct {
	SampleRate     int
	Channels       int
	Encoding       string
	InterimResults bool
}

// StreamingSession is an active provider websocket session.
type StreamingSession interface {
	SendAudio(chunk []byte) error
	CloseSend() error
	Events() <-chan domain.TranscriptEvent
	Wait() error
	Close() error
}

// TranscriptionProvider starts streaming transcription sessions.
type TranscriptionProvider interface {
	StartStreaming(ctx context.Context, cfg StreamingConfig) (StreamingSession, error)
}

// VoiceEvents are the notification feeds of a voice service.
type VoiceEvents interface {
	OnFullTranscription(fn func(text string)) *event.Subscription
	OnPartialTranscription(fn func(text string)) *event.Subscription
	OnError(fn func(err domain.RecognitionError)) *event.Subscription
}

// VoiceService is the recognizer the transcriber drives. Every method is a
// request; results arrive later through Events.
type VoiceService interface {
	Activate()
	ActivateImmediately()
	Deactivate()
	Events() VoiceEvents
}

// TextDisplay shows the running transcript.
type TextDisplay interface {
	SetText(text string)
}

// RecordingIndicator shows whether the microphone is live.
type RecordingIndicator interface {
	SetRecording(recording bool)
}

// TriggerBinding replaces whatever the on-screen button currently does.
type TriggerBinding interface {
	Bind(action func())
}

// TriggerInput is a digital push-to-talk input sampled once per frame.
type TriggerInput interface {
	TriggerHeld() bool
}

// Clipboard writes text into the system clipboard.
type Clipboard interface {
	SetText(ctx context.Context, text string) error
}

// TranscriptPublisher forwards finished transcripts to other processes.
type TranscriptPublisher interface {
	Publish(ctx context.Context, transcript domain.FinishedTranscript) error
}

// EventSink emits delivery results and errors to the UI.
type EventSink interface {
	TranscriptFinished(transcript domain.FinishedTranscript)
	SessionError(code domain.ErrorCode, detail string)
}
