package usecase

import (
	"context"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"voicepad/internal/domain"
	"voicepad/internal/ports"
)

// TranscriptDelivery hands a finished transcript to the clipboard, the bus and
// the UI. Delivery failures are reported, never returned.
type TranscriptDelivery struct {
	clipboard ports.Clipboard
	publisher ports.TranscriptPublisher
	events    ports.EventSink
	log       logrus.FieldLogger

	copyToClipboard bool
	now             func() time.Time
}

func NewTranscriptDelivery(
	clipboard ports.Clipboard,
	publisher ports.TranscriptPublisher,
	events ports.EventSink,
	log logrus.FieldLogger,
	copyToClipboard bool,
) *TranscriptDelivery {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &TranscriptDelivery{
		clipboard:       clipboard,
		publisher:       publisher,
		events:          events,
		log:             log,
		copyToClipboard: copyToClipboard,
		now:             time.Now,
	}
}

// Deliver processes one finished transcript. Blank transcripts are dropped.
func (d *TranscriptDelivery) Deliver(ctx context.Context, sessionID string, text string) (domain.FinishedTranscript, bool) {
	if strings.TrimSpace(text) == "" {
		d.log.WithField("session", sessionID).Debug("empty transcript not delivered")
		return domain.FinishedTranscript{}, false
	}

	result := domain.FinishedTranscript{
		SessionID:  sessionID,
		Text:       text,
		FinishedAt: d.now().UTC(),
	}
	log := d.log.WithField("session", sessionID)

	if d.copyToClipboard && d.clipboard != nil {
		if err := d.clipboard.SetText(ctx, text); err != nil {
			log.WithError(err).Warn("clipboard write failed")
			d.events.SessionError(domain.ErrorCodeClipboard, "transcript ready but clipboard write failed")
		} else {
			result.Copied = true
		}
	}

	if d.publisher != nil {
		if err := d.publisher.Publish(ctx, result); err != nil {
			log.WithError(err).Warn("transcript publish failed")
			d.events.SessionError(domain.ErrorCodePublish, err.Error())
		} else {
			result.Published = true
		}
	}

	d.events.TranscriptFinished(result)
	return result, true
}
