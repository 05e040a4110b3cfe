// Package publish hands finished transcripts to other processes.
package publish

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/nats-io/nats.go"
	"github.com/sirupsen/logrus"

	"voicepad/internal/config"
	"voicepad/internal/domain"
)

// ErrDisabled is returned by Connect when the bus is turned off.
var ErrDisabled = errors.New("transcript bus disabled")

type natsConn interface {
	Publish(subject string, data []byte) error
	FlushWithContext(ctx context.Context) error
	Drain() error
	Close()
}

// NATSPublisher publishes finished transcripts as JSON on one subject.
type NATSPublisher struct {
	conn    natsConn
	subject string
	log     logrus.FieldLogger
}

// Connect dials the configured servers.
func Connect(cfg config.BusConfig, log logrus.FieldLogger) (*NATSPublisher, error) {
	if !cfg.Enabled {
		return nil, ErrDisabled
	}
	if len(cfg.Servers) == 0 {
		return nil, errors.New("no NATS servers configured")
	}
	if log == nil {
		log = logrus.StandardLogger()
	}

	options := []nats.Option{
		nats.Name(cfg.Name),
		nats.Timeout(cfg.ConnectTimeout()),
	}
	if cfg.Token != "" {
		options = append(options, nats.Token(cfg.Token))
	}

	url := strings.Join(cfg.Servers, ",")
	conn, err := nats.Connect(url, options...)
	if err != nil {
		return nil, fmt.Errorf("connect to nats: %w", err)
	}

	log.WithField("servers", url).Info("connected to transcript bus")
	return newPublisher(conn, cfg.Subject, log), nil
}

func newPublisher(conn natsConn, subject string, log logrus.FieldLogger) *NATSPublisher {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &NATSPublisher{conn: conn, subject: subject, log: log.WithField("subject", subject)}
}

func (p *NATSPublisher) Publish(ctx context.Context, transcript domain.FinishedTranscript) error {
	payload, err := json.Marshal(transcript)
	if err != nil {
		return fmt.Errorf("encode transcript: %w", err)
	}
	if err := p.conn.Publish(p.subject, payload); err != nil {
		return fmt.Errorf("publish transcript: %w", err)
	}
	if err := p.conn.FlushWithContext(ctx); err != nil {
		return fmt.Errorf("flush transcript: %w", err)
	}
	p.log.WithField("session_id", transcript.SessionID).Debug("transcript published")
	return nil
}

// Close drains pending messages and closes the connection.
func (p *NATSPublisher) Close() {
	if p == nil || p.conn == nil {
		return
	}
	if err := p.conn.Drain(); err != nil {
		p.log.WithError(err).Warn("failed to drain transcript bus")
	}
	p.conn.Close()
}

// Noop discards transcripts; it stands in when the bus is disabled.
type Noop struct{}

func (Noop) Publish(context.Context, domain.FinishedTranscript) error { return nil }
