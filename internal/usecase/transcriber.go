package usecase

import (
	"context"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"voicepad/internal/domain"
	"voicepad/internal/event"
	"voicepad/internal/ports"
	"voicepad/internal/telemetry"
)

// Transcriber turns a voice service's short utterances into one long
// transcript. It keeps the voice service listening after every utterance
// until Deactivate is called.
//
// A Transcriber is not safe for concurrent use; every method and every voice
// callback must run on the same goroutine.
type Transcriber struct {
	voice   ports.VoiceService
	log     logrus.FieldLogger
	metrics *telemetry.Metrics

	state      domain.SessionState
	sessionID  string
	aggregator *transcriptAggregator
	voiceSubs  event.Group

	updated  event.Feed[string]
	finished event.Feed[string]
	failed   event.Feed[domain.RecognitionError]
}

func NewTranscriber(voice ports.VoiceService, log logrus.FieldLogger, metrics *telemetry.Metrics) *Transcriber {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Transcriber{
		voice:      voice,
		log:        log,
		metrics:    metrics,
		state:      domain.SessionStateIdle,
		aggregator: newTranscriptAggregator(),
	}
}

// Activate starts a new transcript. It is a no-op while listening.
func (t *Transcriber) Activate() {
	if t.Active() {
		return
	}

	// A previous session that was deactivated but never saw its terminating
	// final still holds voice subscriptions; drop them so they cannot feed
	// into the new transcript.
	t.voiceSubs.Unsubscribe()

	t.aggregator.Reset()
	t.sessionID = uuid.NewString()
	t.state = domain.SessionStateListening

	events := t.voice.Events()
	t.voiceSubs.Add(events.OnFullTranscription(t.onFullTranscription))
	t.voiceSubs.Add(events.OnError(t.onError))
	t.voiceSubs.Add(events.OnPartialTranscription(t.onPartialTranscription))

	t.metrics.SessionStarted(context.Background())
	t.logger().Debug("transcription activated")
	t.voice.Activate()
}

// Deactivate asks the voice service to stop. The transcript is finished once
// the voice service delivers its last final.
func (t *Transcriber) Deactivate() {
	if !t.Active() {
		return
	}

	t.state = domain.SessionStateIdle
	t.metrics.SessionStopped(context.Background())
	t.logger().Debug("transcription deactivated")
	t.voice.Deactivate()
}

// ApplicationFocusChanged treats losing focus as an implicit stop: the host
// releases the microphone, so whatever is pending is finalized now.
func (t *Transcriber) ApplicationFocusChanged(focused bool) {
	if focused || !t.Active() {
		return
	}
	t.logger().Info("application lost focus, finishing transcription")
	t.Deactivate()
	t.onFullTranscription(t.aggregator.Partial())
}

// Active reports whether the transcriber is listening.
func (t *Transcriber) Active() bool {
	return t.state == domain.SessionStateListening
}

func (t *Transcriber) State() domain.SessionState {
	return t.state
}

// SessionID identifies the most recent activation.
func (t *Transcriber) SessionID() string {
	return t.sessionID
}

// Text returns the finalized text followed by the pending partial.
func (t *Transcriber) Text() string {
	return t.aggregator.Text()
}

// Status snapshots the transcriber for the host.
func (t *Transcriber) Status() domain.Status {
	return domain.Status{
		State:     t.state,
		Active:    t.Active(),
		SessionID: t.sessionID,
		Text:      t.aggregator.Text(),
	}
}

// OnTranscriptUpdated is raised with the combined text on every change.
func (t *Transcriber) OnTranscriptUpdated(fn func(text string)) *event.Subscription {
	return t.updated.Subscribe(fn)
}

// OnTranscriptFinished is raised once per session with the full transcript.
func (t *Transcriber) OnTranscriptFinished(fn func(text string)) *event.Subscription {
	return t.finished.Subscribe(fn)
}

// OnError is raised when the voice service fails, before the transcript is
// finished with what was recognized so far.
func (t *Transcriber) OnError(fn func(err domain.RecognitionError)) *event.Subscription {
	return t.failed.Subscribe(fn)
}

func (t *Transcriber) onFullTranscription(fragment string) {
	if t.Active() {
		t.metrics.VoiceRestarted(context.Background())
		t.voice.ActivateImmediately()
	}

	t.aggregator.Finalize(fragment)
	t.metrics.UtteranceFinalized(context.Background())
	t.publishText()

	if t.Active() {
		return
	}

	t.voiceSubs.Unsubscribe()
	text := t.aggregator.Accumulated()
	t.logger().WithField("chars", len(text)).Info("transcription finished")
	t.finished.Emit(text)
}

func (t *Transcriber) onPartialTranscription(text string) {
	t.aggregator.SetPartial(text)
	t.publishText()
}

func (t *Transcriber) onError(err domain.RecognitionError) {
	t.logger().WithFields(logrus.Fields{
		"code":    err.Code,
		"message": err.Message,
	}).Warn("voice service error")
	t.metrics.RecognitionError(context.Background(), string(err.Code))
	t.failed.Emit(err)

	t.Deactivate()
	t.onFullTranscription(t.aggregator.Partial())
}

func (t *Transcriber) publishText() {
	t.updated.Emit(t.aggregator.Text())
}

func (t *Transcriber) logger() logrus.FieldLogger {
	return t.log.WithField("session", t.sessionID)
}
