package voice

import (
	"context"
	"sync"
	"time"

	"voicepad/internal/domain"
	"voicepad/internal/ports"
)

// activeSession is one provider stream plus the microphone feeding it.
type activeSession struct {
	generation uint64
	ctx        context.Context
	cancel     context.CancelFunc
	grace      time.Duration
	drained    chan struct{}

	mu       sync.Mutex
	audio    ports.AudioSession
	stream   ports.StreamingSession
	stopping bool
	// deactivated is set when a listener explicitly stopped this session;
	// its queued events no longer belong to anyone once a new session starts.
	deactivated bool
	err         error
	errCode     domain.ErrorCode

	drainOnce sync.Once
}

func newActiveSession(parent context.Context, generation uint64, grace time.Duration) *activeSession {
	ctx, cancel := context.WithCancel(parent)
	return &activeSession{
		generation: generation,
		ctx:        ctx,
		cancel:     cancel,
		grace:      grace,
		drained:    make(chan struct{}),
	}
}

// attach records the started resources. A stop requested while they were
// starting is carried out now.
func (s *activeSession) attach(audio ports.AudioSession, stream ports.StreamingSession) {
	s.mu.Lock()
	s.audio = audio
	s.stream = stream
	stopping := s.stopping
	s.mu.Unlock()

	if stopping {
		go s.drain()
	}
}

func (s *activeSession) requestStop() {
	s.mu.Lock()
	if s.stopping {
		s.mu.Unlock()
		return
	}
	s.stopping = true
	attached := s.stream != nil
	s.mu.Unlock()

	if attached {
		go s.drain()
	}
}

func (s *activeSession) markDeactivated() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.deactivated = true
}

func (s *activeSession) wasDeactivated() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.deactivated
}

func (s *activeSession) stopRequested() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stopping
}

// fail records the first error seen before a stop was requested and stops
// the session. Errors after a stop request are teardown noise.
func (s *activeSession) fail(code domain.ErrorCode, err error) {
	if err == nil {
		return
	}
	s.mu.Lock()
	if s.stopping {
		s.mu.Unlock()
		return
	}
	if s.err == nil {
		s.err = err
		s.errCode = code
	}
	s.mu.Unlock()

	s.requestStop()
}

func (s *activeSession) failure() (domain.ErrorCode, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.errCode, s.err
}

// drain stops the microphone, gives the provider the grace period to return
// trailing results, then closes the send side of the stream.
func (s *activeSession) drain() {
	s.drainOnce.Do(func() {
		defer close(s.drained)

		s.mu.Lock()
		audio, stream := s.audio, s.stream
		s.mu.Unlock()

		if audio != nil {
			_ = audio.Stop()
		}
		if s.grace > 0 {
			timer := time.NewTimer(s.grace)
			select {
			case <-timer.C:
			case <-s.ctx.Done():
				timer.Stop()
			}
		}
		if stream != nil {
			_ = stream.CloseSend()
		}
	})
}
