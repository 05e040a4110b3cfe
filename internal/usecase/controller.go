package usecase

import (
	"voicepad/internal/event"
	"voicepad/internal/ports"
)

// TranscriptionSession is the part of Transcriber the input field drives.
type TranscriptionSession interface {
	Activate()
	Deactivate()
	Active() bool
	OnTranscriptUpdated(fn func(text string)) *event.Subscription
	OnTranscriptFinished(fn func(text string)) *event.Subscription
}

// InputField is the speech-to-text text field: one button toggles dictation,
// an indicator shows when the microphone is live and a label shows the text.
//
// Listening state lives in the session; the field only remembers whether it
// holds the session's subscriptions.
type InputField struct {
	session   TranscriptionSession
	display   ports.TextDisplay
	indicator ports.RecordingIndicator
	button    ports.TriggerBinding

	subs event.Group
}

func NewInputField(
	session TranscriptionSession,
	display ports.TextDisplay,
	indicator ports.RecordingIndicator,
	button ports.TriggerBinding,
) *InputField {
	return &InputField{
		session:   session,
		display:   display,
		indicator: indicator,
		button:    button,
	}
}

// Enable puts the field into its idle presentation.
func (f *InputField) Enable() {
	f.button.Bind(f.Activate)
	f.indicator.SetRecording(false)
}

// Disable releases a session the field still owns.
func (f *InputField) Disable() {
	if !f.Owned() {
		return
	}
	f.Deactivate()
}

// Activate starts dictation. It is a no-op while the session is listening.
func (f *InputField) Activate() {
	if f.session.Active() {
		return
	}
	f.subs.Unsubscribe()

	f.button.Bind(f.Deactivate)
	f.indicator.SetRecording(true)

	f.subs.Add(f.session.OnTranscriptFinished(f.onTranscriptFinished))
	f.subs.Add(f.session.OnTranscriptUpdated(f.onTranscriptUpdated))

	f.session.Activate()
}

// Deactivate stops dictation started by this field.
func (f *InputField) Deactivate() {
	if !f.Owned() {
		return
	}

	f.button.Bind(f.Activate)
	f.indicator.SetRecording(false)
	f.session.Deactivate()

	f.subs.Unsubscribe()
}

// Owned reports whether the field started the current session and has not
// released it yet.
func (f *InputField) Owned() bool {
	return f.subs.Len() > 0
}

// Listening reports the session's state.
func (f *InputField) Listening() bool {
	return f.session.Active()
}

func (f *InputField) onTranscriptUpdated(text string) {
	f.display.SetText(text)
}

func (f *InputField) onTranscriptFinished(text string) {
	f.display.SetText(text)
	f.Deactivate()
}

// TriggerPoller samples push-to-talk inputs once per frame. Pressing any
// input starts dictation, releasing all of them stops it.
type TriggerPoller struct {
	field  *InputField
	inputs []ports.TriggerInput
	held   bool
}

func NewTriggerPoller(field *InputField, inputs ...ports.TriggerInput) *TriggerPoller {
	return &TriggerPoller{field: field, inputs: inputs}
}

// Tick reads the inputs and acts on press and release edges only, so a
// transcript that finishes while the trigger is still held stays finished.
func (p *TriggerPoller) Tick() {
	held := p.anyHeld()
	switch {
	case held && !p.held:
		p.field.Activate()
	case !held && p.held:
		p.field.Deactivate()
	}
	p.held = held
}

func (p *TriggerPoller) anyHeld() bool {
	for _, input := range p.inputs {
		if input != nil && input.TriggerHeld() {
			return true
		}
	}
	return false
}
