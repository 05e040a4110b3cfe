package voice

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	logtest "github.com/sirupsen/logrus/hooks/test"

	"voicepad/internal/domain"
	"voicepad/internal/ports"
)

func TestServiceDeliversPartialsAndUtterances(t *testing.T) {
	t.Parallel()

	stream := newFakeStreamingSession(
		domain.TranscriptEvent{Kind: domain.TranscriptKindPartial, Text: "hel"},
		domain.TranscriptEvent{Kind: domain.TranscriptKindFinal, Text: "hello"},
		domain.TranscriptEvent{Kind: domain.TranscriptKindFinal, Text: "world", IsSpeechFinal: true},
	)
	h := newServiceHarness(t, &fakeProvider{sessions: []ports.StreamingSession{stream}})

	h.svc.Activate()
	h.runPosts(t, 3)

	if got := h.partials; len(got) != 2 || got[0] != "hel" || got[1] != "hello" {
		t.Fatalf("unexpected partials: %q", got)
	}
	if got := h.fulls; len(got) != 1 || got[0] != "hello world" {
		t.Fatalf("unexpected full transcriptions: %q", got)
	}
	if !h.svc.Listening() {
		t.Fatalf("expected the session to keep listening across utterances")
	}

	h.svc.Deactivate()
	h.runPosts(t, 1)

	if got := h.fulls; len(got) != 2 || got[1] != "" {
		t.Fatalf("expected an empty terminating transcription, got %q", got)
	}
	if stream.closeSendCalls() == 0 {
		t.Fatalf("expected the stream send side to be closed")
	}
	if h.audio.stopCalls() == 0 {
		t.Fatalf("expected audio capture to be stopped")
	}
	if h.svc.Listening() {
		t.Fatalf("expected no live session")
	}
}

func TestServiceFlushesPendingSegmentsOnStop(t *testing.T) {
	t.Parallel()

	stream := newFakeStreamingSession(
		domain.TranscriptEvent{Kind: domain.TranscriptKindFinal, Text: "half"},
	)
	h := newServiceHarness(t, &fakeProvider{sessions: []ports.StreamingSession{stream}})

	h.svc.Activate()
	h.runPosts(t, 1)
	h.svc.Deactivate()
	h.runPosts(t, 1)

	if got := h.fulls; len(got) != 1 || got[0] != "half" {
		t.Fatalf("expected pending segment as terminating transcription, got %q", got)
	}
}

func TestServiceActivateIsIdempotent(t *testing.T) {
	t.Parallel()

	provider := &fakeProvider{sessions: []ports.StreamingSession{newFakeStreamingSession()}}
	h := newServiceHarness(t, provider)

	h.svc.Activate()
	h.svc.Activate()
	h.svc.ActivateImmediately()
	h.svc.Deactivate()
	h.runPosts(t, 1)

	if provider.callCount() != 1 {
		t.Fatalf("expected one provider stream, got %d", provider.callCount())
	}
}

func TestServiceReportsProviderStartFailure(t *testing.T) {
	t.Parallel()

	h := newServiceHarness(t, &fakeProvider{err: errors.New("no api key")})

	h.svc.Activate()
	h.runPosts(t, 1)

	if len(h.errs) != 1 || h.errs[0].Code != domain.ErrorCodeStartup || h.errs[0].Message != "no api key" {
		t.Fatalf("unexpected errors: %+v", h.errs)
	}
	if len(h.fulls) != 0 {
		t.Fatalf("a failed session must not deliver a transcription")
	}
}

func TestServiceReportsStreamFailure(t *testing.T) {
	t.Parallel()

	stream := newFakeStreamingSession()
	stream.waitErr = errors.New("socket reset")
	h := newServiceHarness(t, &fakeProvider{sessions: []ports.StreamingSession{stream}})

	h.svc.Activate()
	stream.fail()
	h.runPosts(t, 1)

	if len(h.errs) != 1 || h.errs[0].Code != domain.ErrorCodeTranscription {
		t.Fatalf("unexpected errors: %+v", h.errs)
	}
}

func TestServiceRestartStartsNewSessionAfterEnd(t *testing.T) {
	t.Parallel()

	first := newFakeStreamingSession()
	second := newFakeStreamingSession()
	provider := &fakeProvider{sessions: []ports.StreamingSession{first, second}}
	h := newServiceHarness(t, provider)

	h.svc.Activate()
	first.fail()
	h.runPosts(t, 1)

	h.svc.ActivateImmediately()
	h.svc.Deactivate()
	h.runPosts(t, 1)

	if provider.callCount() != 2 {
		t.Fatalf("expected restart to open a second stream, got %d", provider.callCount())
	}
}

func TestServiceKeepsTrailingEventsWhenRestartedAfterStreamEnds(t *testing.T) {
	t.Parallel()

	first := newFakeStreamingSession(
		domain.TranscriptEvent{Kind: domain.TranscriptKindFinal, Text: "a", IsSpeechFinal: true},
		domain.TranscriptEvent{Kind: domain.TranscriptKindFinal, Text: "b"},
	)
	second := newFakeStreamingSession()
	provider := &fakeProvider{sessions: []ports.StreamingSession{first, second}}
	h := newServiceHarness(t, provider)
	// A listening transcriber restarts the voice service after every utterance.
	h.svc.OnFullTranscription(func(string) { h.svc.ActivateImmediately() })

	h.svc.Activate()
	first.fail()

	deadline := time.After(2 * time.Second)
	for h.svc.Listening() {
		select {
		case <-deadline:
			t.Fatalf("first session never ended")
		case <-time.After(time.Millisecond):
		}
	}

	h.runPosts(t, 3)

	if got := h.fulls; len(got) != 2 || got[0] != "a" || got[1] != "b" {
		t.Fatalf("expected the trailing segment after the restart, got %q", got)
	}
	if got := h.partials; len(got) != 1 || got[0] != "b" {
		t.Fatalf("unexpected partials: %q", got)
	}
	if provider.callCount() != 2 {
		t.Fatalf("expected the restart to open a second stream, got %d", provider.callCount())
	}
}

func TestServiceDropsEventsFromSupersededSession(t *testing.T) {
	t.Parallel()

	first := newFakeStreamingSession(domain.TranscriptEvent{Kind: domain.TranscriptKindPartial, Text: "old"})
	second := newFakeStreamingSession()
	h := newServiceHarness(t, &fakeProvider{sessions: []ports.StreamingSession{first, second}})

	h.svc.Activate()
	h.svc.Deactivate()
	h.svc.Activate()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := h.svc.Close(ctx); err != nil {
		t.Fatalf("close failed: %v", err)
	}
	h.runQueued()

	for _, p := range h.partials {
		if p == "old" {
			t.Fatalf("superseded session leaked a partial")
		}
	}
	if len(h.fulls) != 1 {
		t.Fatalf("expected only the latest session's terminating transcription, got %q", h.fulls)
	}
}

func TestPumpAudioChunksReportsSendError(t *testing.T) {
	t.Parallel()

	audio := &fakeAudioSession{chunks: [][]byte{[]byte("abc")}}
	stream := newFakeStreamingSession()
	stream.sendErr = errors.New("send failed")
	done := make(chan struct{})
	var got error

	go pumpAudioChunks(audio, stream, 256, func(err error) { got = err }, done)
	<-done

	if got == nil || !errors.Is(got, stream.sendErr) {
		t.Fatalf("expected wrapped send error, got %v", got)
	}
}

func TestPumpAudioChunksReportsReadError(t *testing.T) {
	t.Parallel()

	readErr := errors.New("read failed")
	audio := &fakeAudioSession{readErr: readErr}
	done := make(chan struct{})
	var got error

	go pumpAudioChunks(audio, newFakeStreamingSession(), 256, func(err error) { got = err }, done)
	<-done

	if !errors.Is(got, readErr) {
		t.Fatalf("expected wrapped read error, got %v", got)
	}
}

func TestWaitForStreamTimeoutClosesSession(t *testing.T) {
	t.Parallel()

	stream := newFakeStreamingSession()
	stream.waitErr = errors.New("closed")
	err := waitForStream(stream, 10*time.Millisecond)
	if err == nil || err.Error() != "closed" {
		t.Fatalf("expected closed error, got %v", err)
	}
	if stream.closeCalls() == 0 {
		t.Fatalf("expected close to be called on timeout")
	}
}

type serviceHarness struct {
	svc      *Service
	audio    *fakeAudioSession
	posts    chan func()
	partials []string
	fulls    []string
	errs     []domain.RecognitionError
}

func newServiceHarness(t *testing.T, provider *fakeProvider) *serviceHarness {
	t.Helper()
	log, _ := logtest.NewNullLogger()
	h := &serviceHarness{
		audio: &fakeAudioSession{},
		posts: make(chan func(), 64),
	}
	h.svc = NewService(
		&fakeAudioCapture{session: h.audio},
		provider,
		chanPoster(h.posts),
		Config{StopTimeout: time.Second},
		log,
	)
	h.svc.OnPartialTranscription(func(text string) { h.partials = append(h.partials, text) })
	h.svc.OnFullTranscription(func(text string) { h.fulls = append(h.fulls, text) })
	h.svc.OnError(func(err domain.RecognitionError) { h.errs = append(h.errs, err) })
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = h.svc.Close(ctx)
	})
	return h
}

// runPosts executes n posted callbacks on the test goroutine, standing in for
// the main loop.
func (h *serviceHarness) runPosts(t *testing.T, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		select {
		case fn := <-h.posts:
			fn()
		case <-time.After(2 * time.Second):
			t.Fatalf("timed out waiting for posted callback %d of %d", i+1, n)
		}
	}
}

func (h *serviceHarness) runQueued() {
	for {
		select {
		case fn := <-h.posts:
			fn()
		default:
			return
		}
	}
}

type chanPoster chan func()

func (p chanPoster) Post(fn func()) bool {
	p <- fn
	return true
}

type fakeProvider struct {
	mu       sync.Mutex
	sessions []ports.StreamingSession
	err      error
	calls    int
}

func (f *fakeProvider) StartStreaming(_ context.Context, _ ports.StreamingConfig) (ports.StreamingSession, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	if f.calls > len(f.sessions) {
		return nil, errors.New("no stream session configured")
	}
	return f.sessions[f.calls-1], nil
}

func (f *fakeProvider) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type fakeAudioCapture struct {
	session ports.AudioSession
}

func (f *fakeAudioCapture) Start(_ context.Context, _ ports.AudioConfig) (ports.AudioSession, error) {
	return f.session, nil
}

type fakeAudioSession struct {
	mu      sync.Mutex
	chunks  [][]byte
	index   int
	readErr error
	stops   int
}

func (f *fakeAudioSession) Read(p []byte) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.readErr != nil {
		return 0, f.readErr
	}
	if f.index >= len(f.chunks) {
		return 0, io.EOF
	}
	n := copy(p, f.chunks[f.index])
	f.index++
	return n, nil
}

func (f *fakeAudioSession) Close() error { return nil }

func (f *fakeAudioSession) Stop() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stops++
	return nil
}

func (f *fakeAudioSession) stopCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.stops
}

type fakeStreamingSession struct {
	events  chan domain.TranscriptEvent
	ended   chan struct{}
	waitErr error
	sendErr error

	mu         sync.Mutex
	closed     bool
	closeSends int
	closes     int
}

func newFakeStreamingSession(events ...domain.TranscriptEvent) *fakeStreamingSession {
	s := &fakeStreamingSession{
		events: make(chan domain.TranscriptEvent, 16),
		ended:  make(chan struct{}),
	}
	for _, ev := range events {
		s.events <- ev
	}
	return s
}

func (f *fakeStreamingSession) SendAudio(_ []byte) error { return f.sendErr }

func (f *fakeStreamingSession) CloseSend() error {
	f.mu.Lock()
	f.closeSends++
	f.mu.Unlock()
	f.end()
	return nil
}

func (f *fakeStreamingSession) Events() <-chan domain.TranscriptEvent { return f.events }

func (f *fakeStreamingSession) Wait() error {
	<-f.ended
	return f.waitErr
}

func (f *fakeStreamingSession) Close() error {
	f.mu.Lock()
	f.closes++
	f.mu.Unlock()
	f.end()
	return nil
}

// fail ends the stream from the provider side.
func (f *fakeStreamingSession) fail() {
	f.end()
}

func (f *fakeStreamingSession) end() {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return
	}
	f.closed = true
	close(f.events)
	close(f.ended)
}

func (f *fakeStreamingSession) closeSendCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closeSends
}

func (f *fakeStreamingSession) closeCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closes
}
