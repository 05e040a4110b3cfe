package usecase

import (
	"context"
	"sync"

	"voicepad/internal/domain"
	"voicepad/internal/event"
	"voicepad/internal/ports"
)

// fakeVoice records requests and lets tests raise voice callbacks
// synchronously, the way the main loop would.
type fakeVoice struct {
	activateCalls   int
	immediateCalls  int
	deactivateCalls int
	full            event.Feed[string]
	partial         event.Feed[string]
	errs            event.Feed[domain.RecognitionError]
}

func (v *fakeVoice) Activate() { v.activateCalls++ }

func (v *fakeVoice) ActivateImmediately() { v.immediateCalls++ }

func (v *fakeVoice) Deactivate() { v.deactivateCalls++ }

func (v *fakeVoice) Events() ports.VoiceEvents { return v }

func (v *fakeVoice) OnFullTranscription(fn func(string)) *event.Subscription {
	return v.full.Subscribe(fn)
}

func (v *fakeVoice) OnPartialTranscription(fn func(string)) *event.Subscription {
	return v.partial.Subscribe(fn)
}

func (v *fakeVoice) OnError(fn func(domain.RecognitionError)) *event.Subscription {
	return v.errs.Subscribe(fn)
}

func (v *fakeVoice) subscriberCount() int {
	return v.full.Len() + v.partial.Len() + v.errs.Len()
}

type fakeDisplay struct {
	texts []string
}

func (d *fakeDisplay) SetText(text string) { d.texts = append(d.texts, text) }

func (d *fakeDisplay) last() string {
	if len(d.texts) == 0 {
		return ""
	}
	return d.texts[len(d.texts)-1]
}

type fakeIndicator struct {
	states []bool
}

func (i *fakeIndicator) SetRecording(recording bool) { i.states = append(i.states, recording) }

func (i *fakeIndicator) recording() bool {
	return len(i.states) > 0 && i.states[len(i.states)-1]
}

type fakeButton struct {
	action func()
	binds  int
}

func (b *fakeButton) Bind(action func()) {
	b.action = action
	b.binds++
}

func (b *fakeButton) press() {
	if b.action != nil {
		b.action()
	}
}

type fakeTrigger struct {
	held bool
}

func (t *fakeTrigger) TriggerHeld() bool { return t.held }

type fakeClipboard struct {
	lastText string
	calls    int
	err      error
}

func (f *fakeClipboard) SetText(_ context.Context, text string) error {
	f.calls++
	f.lastText = text
	return f.err
}

type fakePublisher struct {
	published []domain.FinishedTranscript
	err       error
}

func (f *fakePublisher) Publish(_ context.Context, transcript domain.FinishedTranscript) error {
	if f.err != nil {
		return f.err
	}
	f.published = append(f.published, transcript)
	return nil
}

type fakeEventSink struct {
	mu sync.Mutex

	finished []domain.FinishedTranscript
	errors   []errEvent
}

type errEvent struct {
	code   domain.ErrorCode
	detail string
}

func (f *fakeEventSink) TranscriptFinished(transcript domain.FinishedTranscript) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.finished = append(f.finished, transcript)
}

func (f *fakeEventSink) SessionError(code domain.ErrorCode, detail string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.errors = append(f.errors, errEvent{code: code, detail: detail})
}

func (f *fakeEventSink) snapshotErrors() []errEvent {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]errEvent, len(f.errors))
	copy(out, f.errors)
	return out
}
