// Package voice is the recognizer behind the transcriber: it streams the
// microphone to a transcription provider and reports partial and full
// transcriptions on the main loop.
package voice

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"voicepad/internal/domain"
	"voicepad/internal/event"
	"voicepad/internal/ports"
)

// Config controls capture and streaming for every voice session.
type Config struct {
	Audio          ports.AudioConfig
	Streaming      ports.StreamingConfig
	ChunkSize      int
	StreamingGrace time.Duration
	StopTimeout    time.Duration
}

// Poster runs callbacks on the goroutine that owns listener state.
type Poster interface {
	Post(fn func()) bool
}

// Service implements ports.VoiceService. Every session ends with exactly one
// notification: an error if capture or streaming failed, otherwise a full
// transcription of whatever had not been delivered yet, possibly empty.
type Service struct {
	audio    ports.AudioCapture
	provider ports.TranscriptionProvider
	loop     Poster
	cfg      Config
	log      logrus.FieldLogger

	full    event.Feed[string]
	partial event.Feed[string]
	errs    event.Feed[domain.RecognitionError]

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu         sync.Mutex
	current    *activeSession
	last       *activeSession
	generation uint64
	// oldest is the first generation whose events are still delivered.
	oldest uint64
}

func NewService(
	audio ports.AudioCapture,
	provider ports.TranscriptionProvider,
	loop Poster,
	cfg Config,
	log logrus.FieldLogger,
) *Service {
	if cfg.ChunkSize < 256 {
		cfg.ChunkSize = 4096
	}
	if cfg.StopTimeout <= 0 {
		cfg.StopTimeout = 4 * time.Second
	}
	if log == nil {
		log = logrus.StandardLogger()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Service{
		audio:    audio,
		provider: provider,
		loop:     loop,
		cfg:      cfg,
		log:      log,
		ctx:      ctx,
		cancel:   cancel,
	}
}

// Activate starts a session unless one is already listening.
func (s *Service) Activate() {
	s.start("activate")
}

// ActivateImmediately keeps listening after an utterance. A provider stream
// spans utterances, so this only starts a session when none is live.
func (s *Service) ActivateImmediately() {
	s.start("restart")
}

// Deactivate stops the microphone and lets the provider finish. Events the
// stopped session still has queued are delivered unless another session is
// started before they run.
func (s *Service) Deactivate() {
	s.mu.Lock()
	sess := s.current
	if s.last != nil {
		s.last.markDeactivated()
	}
	s.mu.Unlock()
	if sess == nil {
		return
	}
	s.log.WithField("voice_session", sess.generation).Debug("voice session stopping")
	sess.requestStop()
}

func (s *Service) Events() ports.VoiceEvents {
	return s
}

func (s *Service) OnFullTranscription(fn func(text string)) *event.Subscription {
	return s.full.Subscribe(fn)
}

func (s *Service) OnPartialTranscription(fn func(text string)) *event.Subscription {
	return s.partial.Subscribe(fn)
}

func (s *Service) OnError(fn func(err domain.RecognitionError)) *event.Subscription {
	return s.errs.Subscribe(fn)
}

// Listening reports whether a session is live and not stopping.
func (s *Service) Listening() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current != nil && !s.current.stopRequested()
}

// Close ends every session and waits for their goroutines.
func (s *Service) Close(ctx context.Context) error {
	s.cancel()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Service) start(reason string) {
	s.mu.Lock()
	if s.ctx.Err() != nil {
		s.mu.Unlock()
		return
	}
	if s.current != nil && !s.current.stopRequested() {
		s.mu.Unlock()
		return
	}
	s.generation++
	// A session that ended on its own while listeners kept listening hands
	// over to this one; its trailing events still count.
	if s.last != nil && s.last.wasDeactivated() {
		s.oldest = s.generation
	}
	sess := newActiveSession(s.ctx, s.generation, s.cfg.StreamingGrace)
	s.current = sess
	s.last = sess
	s.mu.Unlock()

	s.log.WithFields(logrus.Fields{
		"voice_session": sess.generation,
		"reason":        reason,
	}).Debug("voice session starting")

	s.wg.Add(1)
	go s.run(sess)
}

func (s *Service) run(sess *activeSession) {
	defer s.wg.Done()
	defer sess.cancel()

	log := s.log.WithField("voice_session", sess.generation)

	stream, err := s.provider.StartStreaming(sess.ctx, s.cfg.Streaming)
	if err != nil {
		log.WithError(err).Warn("failed to start transcription stream")
		s.finishWithError(sess, domain.RecognitionError{Code: domain.ErrorCodeStartup, Message: err.Error()})
		return
	}

	audio, err := s.audio.Start(sess.ctx, s.cfg.Audio)
	if err != nil {
		_ = stream.Close()
		log.WithError(err).Warn("failed to start audio capture")
		s.finishWithError(sess, domain.RecognitionError{Code: domain.ErrorCodeStartup, Message: err.Error()})
		return
	}

	var segmenter utteranceSegmenter
	eventsDone := make(chan struct{})
	audioDone := make(chan struct{})

	go s.consume(sess, stream, &segmenter, eventsDone)
	go pumpAudioChunks(audio, stream, s.cfg.ChunkSize, func(err error) {
		sess.fail(domain.ErrorCodeAudioStream, err)
	}, audioDone)
	sess.attach(audio, stream)
	log.Info("voice session listening")

	select {
	case <-eventsDone:
	case <-sess.drained:
	case <-sess.ctx.Done():
		_ = stream.Close()
	}

	streamErr := waitForStream(stream, s.cfg.StopTimeout)
	<-eventsDone
	_ = audio.Stop()
	<-audioDone

	if streamErr != nil {
		log.WithError(streamErr).Warn("transcription stream failed")
		s.finishWithError(sess, domain.RecognitionError{Code: domain.ErrorCodeTranscription, Message: streamErr.Error()})
		return
	}
	if code, err := sess.failure(); err != nil {
		log.WithError(err).Warn("audio capture failed")
		s.finishWithError(sess, domain.RecognitionError{Code: code, Message: err.Error()})
		return
	}

	text := segmenter.Flush()
	s.release(sess)
	log.Info("voice session ended")
	s.post(sess, func() { s.full.Emit(text) })
}

func (s *Service) consume(
	sess *activeSession,
	stream ports.StreamingSession,
	segmenter *utteranceSegmenter,
	done chan struct{},
) {
	defer close(done)

	for ev := range stream.Events() {
		n, ok := segmenter.Add(ev)
		if !ok {
			continue
		}
		text := n.text
		if n.final {
			s.post(sess, func() { s.full.Emit(text) })
		} else {
			s.post(sess, func() { s.partial.Emit(text) })
		}
	}
}

func (s *Service) finishWithError(sess *activeSession, err domain.RecognitionError) {
	s.release(sess)
	s.post(sess, func() { s.errs.Emit(err) })
}

func (s *Service) release(sess *activeSession) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current == sess {
		s.current = nil
	}
}

// post delivers fn on the main loop unless, by then, the session was
// deactivated and a newer one started.
func (s *Service) post(sess *activeSession, fn func()) {
	s.loop.Post(func() {
		s.mu.Lock()
		current := sess.generation >= s.oldest
		s.mu.Unlock()
		if current {
			fn()
		}
	})
}
