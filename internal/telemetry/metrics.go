// Package telemetry holds the OpenTelemetry instruments recorded by voicepad.
//
// A nil *Metrics is valid and records nothing, so components can be built
// without a meter provider in tests.
package telemetry

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const meterName = "voicepad"

// Metrics holds every instrument used by the transcription pipeline.
type Metrics struct {
	SessionsStarted     metric.Int64Counter
	UtterancesFinalized metric.Int64Counter
	RecognitionErrors   metric.Int64Counter
	VoiceRestarts       metric.Int64Counter
	ActiveSessions      metric.Int64UpDownCounter
}

// NewMetrics creates the instruments on mp.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	if met.SessionsStarted, err = m.Int64Counter("voicepad.sessions.started",
		metric.WithDescription("Transcription sessions activated."),
	); err != nil {
		return nil, err
	}
	if met.UtterancesFinalized, err = m.Int64Counter("voicepad.utterances.finalized",
		metric.WithDescription("Final utterances merged into a transcript."),
	); err != nil {
		return nil, err
	}
	if met.RecognitionErrors, err = m.Int64Counter("voicepad.recognition.errors",
		metric.WithDescription("Recognition errors reported by the voice service."),
	); err != nil {
		return nil, err
	}
	if met.VoiceRestarts, err = m.Int64Counter("voicepad.voice.restarts",
		metric.WithDescription("Immediate voice restarts for continuous dictation."),
	); err != nil {
		return nil, err
	}
	if met.ActiveSessions, err = m.Int64UpDownCounter("voicepad.sessions.active",
		metric.WithDescription("Sessions currently listening."),
	); err != nil {
		return nil, err
	}

	return met, nil
}

// SessionStarted records an activation.
func (m *Metrics) SessionStarted(ctx context.Context) {
	if m == nil {
		return
	}
	m.SessionsStarted.Add(ctx, 1)
	m.ActiveSessions.Add(ctx, 1)
}

// SessionStopped records a deactivation.
func (m *Metrics) SessionStopped(ctx context.Context) {
	if m == nil {
		return
	}
	m.ActiveSessions.Add(ctx, -1)
}

// UtteranceFinalized records one merged final fragment.
func (m *Metrics) UtteranceFinalized(ctx context.Context) {
	if m == nil {
		return
	}
	m.UtterancesFinalized.Add(ctx, 1)
}

// RecognitionError records an error by code.
func (m *Metrics) RecognitionError(ctx context.Context, code string) {
	if m == nil {
		return
	}
	m.RecognitionErrors.Add(ctx, 1, metric.WithAttributes(attribute.String("code", code)))
}

// VoiceRestarted records an immediate restart.
func (m *Metrics) VoiceRestarted(ctx context.Context) {
	if m == nil {
		return
	}
	m.VoiceRestarts.Add(ctx, 1)
}
