package bootstrap

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"

	"voicepad/internal/audio"
	"voicepad/internal/config"
	"voicepad/internal/domain"
	"voicepad/internal/logging"
	"voicepad/internal/mainloop"
	"voicepad/internal/ports"
	"voicepad/internal/providers/deepgram"
	"voicepad/internal/publish"
	"voicepad/internal/telemetry"
	"voicepad/internal/usecase"
	"voicepad/internal/voice"
)

const deliveryTimeout = 5 * time.Second

// ErrStopped is returned when the main loop is no longer running.
var ErrStopped = errors.New("voicepad stopped")

// Host is the desktop surface the dictation field renders into.
type Host interface {
	ports.TextDisplay
	ports.RecordingIndicator
	ports.TriggerBinding
	ports.TriggerInput
	ports.EventSink
}

// Services is the assembled runtime graph.
type Services struct {
	Config      config.Config
	Log         logrus.FieldLogger
	Loop        *mainloop.Loop
	Voice       *voice.Service
	Transcriber *usecase.Transcriber
	Field       *usecase.InputField
	Delivery    *usecase.TranscriptDelivery

	ctx       context.Context
	cancel    context.CancelFunc
	closers   []func(context.Context) error
	closeOnce sync.Once

	mu        sync.Mutex
	closing   bool
	deliverWG sync.WaitGroup
}

// Build loads configuration and wires all backend dependencies.
func Build(host Host, clipboard ports.Clipboard) (*Services, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	log, logFile, err := logging.New(cfg.Log)
	if err != nil {
		return nil, err
	}
	services, err := Assemble(cfg, log, host, clipboard)
	if err != nil {
		_ = logFile.Close()
		return nil, err
	}
	// Closers run in reverse, so the log file outlives everything that logs.
	services.closers = append([]func(context.Context) error{
		func(context.Context) error { return logFile.Close() },
	}, services.closers...)
	return services, nil
}

// Assemble wires the runtime graph for an already loaded configuration.
func Assemble(cfg config.Config, log logrus.FieldLogger, host Host, clipboard ports.Clipboard) (*Services, error) {
	if log == nil {
		log = logrus.StandardLogger()
	}
	ctx, cancel := context.WithCancel(context.Background())
	s := &Services{Config: cfg, Log: log, ctx: ctx, cancel: cancel}

	meterProvider, err := s.initTelemetry()
	if err != nil {
		_ = s.Close(context.Background())
		return nil, err
	}
	metrics, err := telemetry.NewMetrics(meterProvider)
	if err != nil {
		_ = s.Close(context.Background())
		return nil, err
	}

	publisher := s.initPublisher()

	s.Loop = mainloop.New(cfg.Input.FrameInterval(), cfg.Input.QueueSize)
	s.Voice = voice.NewService(
		audio.NewFFMPEGCapture(cfg.Audio.RecorderCommand, log),
		deepgram.NewProvider(deepgram.Config{
			APIKey:         cfg.Deepgram.APIKey,
			APIBaseURL:     cfg.Deepgram.APIBaseURL,
			Model:          cfg.Deepgram.Model,
			Language:       cfg.Deepgram.Language,
			SmartFormat:    cfg.Deepgram.SmartFormat,
			EndpointingMS:  cfg.Deepgram.EndpointingMS,
			UtteranceEndMS: cfg.Deepgram.UtteranceEndMS,
		}, log),
		s.Loop,
		voice.Config{
			Audio: ports.AudioConfig{
				SampleRate:  cfg.Audio.SampleRate,
				Channels:    cfg.Audio.Channels,
				InputFormat: cfg.Audio.InputFormat,
				InputDevice: cfg.Audio.InputDevice,
			},
			Streaming: ports.StreamingConfig{
				SampleRate:     cfg.Audio.SampleRate,
				Channels:       cfg.Audio.Channels,
				Encoding:       "linear16",
				InterimResults: true,
			},
			ChunkSize:      cfg.Session.ChunkSize,
			StreamingGrace: cfg.Session.StreamingGrace(),
			StopTimeout:    cfg.Session.StopTimeout(),
		},
		log,
	)
	s.closers = append(s.closers, s.Voice.Close)

	s.Transcriber = usecase.NewTranscriber(s.Voice, log, metrics)
	s.Field = usecase.NewInputField(s.Transcriber, host, host, host)
	s.Delivery = usecase.NewTranscriptDelivery(clipboard, publisher, host, log, cfg.Session.CopyOnFinish)

	s.Transcriber.OnTranscriptFinished(s.deliver)
	s.Transcriber.OnError(func(err domain.RecognitionError) {
		host.SessionError(err.Code, err.Message)
	})
	s.Loop.OnFrame(usecase.NewTriggerPoller(s.Field, host).Tick)
	s.Field.Enable()

	return s, nil
}

// Run drives the main loop until ctx ends.
func (s *Services) Run(ctx context.Context) error {
	return s.Loop.Run(ctx)
}

// Status reads the transcriber state on the main loop.
func (s *Services) Status(ctx context.Context) (domain.Status, error) {
	var status domain.Status
	if err := s.onLoop(ctx, func() { status = s.Transcriber.Status() }); err != nil {
		return domain.Status{}, err
	}
	return status, nil
}

// Disable tears the dictation field down on the main loop, deactivating a
// session it still owns. Call it before the loop is cancelled.
func (s *Services) Disable(ctx context.Context) error {
	return s.onLoop(ctx, s.Field.Disable)
}

// onLoop runs fn on the main loop and waits for it.
func (s *Services) onLoop(ctx context.Context, fn func()) error {
	done := make(chan struct{})
	if !s.Loop.Post(func() {
		fn()
		close(done)
	}) {
		return ErrStopped
	}
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-s.Loop.Done():
		select {
		case <-done:
			return nil
		default:
			return ErrStopped
		}
	}
}

// Close stops voice sessions, waits for in-flight deliveries and releases
// the bus and telemetry.
func (s *Services) Close(ctx context.Context) error {
	var errs []error
	s.closeOnce.Do(func() {
		s.mu.Lock()
		s.closing = true
		s.mu.Unlock()
		s.cancel()

		done := make(chan struct{})
		go func() {
			s.deliverWG.Wait()
			close(done)
		}()
		select {
		case <-done:
		case <-ctx.Done():
			errs = append(errs, ctx.Err())
		}

		for i := len(s.closers) - 1; i >= 0; i-- {
			if err := s.closers[i](ctx); err != nil {
				errs = append(errs, err)
			}
		}
	})
	return errors.Join(errs...)
}

// deliver runs off the main loop so clipboard and bus latency never stall
// trigger polling.
func (s *Services) deliver(text string) {
	sessionID := s.Transcriber.SessionID()

	s.mu.Lock()
	if s.closing {
		s.mu.Unlock()
		return
	}
	s.deliverWG.Add(1)
	s.mu.Unlock()

	go func() {
		defer s.deliverWG.Done()
		ctx, cancel := context.WithTimeout(context.Background(), deliveryTimeout)
		defer cancel()
		s.Delivery.Deliver(ctx, sessionID, text)
	}()
}

func (s *Services) initTelemetry() (metric.MeterProvider, error) {
	if !s.Config.Telemetry.Enabled {
		return otel.GetMeterProvider(), nil
	}

	provider, err := telemetry.InitProvider(s.Config.Telemetry.ServiceName)
	if err != nil {
		return nil, err
	}
	s.closers = append(s.closers, provider.Shutdown)

	if err := provider.Serve(s.ctx, s.Config.Telemetry.PrometheusBind, s.Log); err != nil {
		return nil, err
	}
	return provider.MeterProvider, nil
}

func (s *Services) initPublisher() ports.TranscriptPublisher {
	publisher, err := publish.Connect(s.Config.Bus, s.Log)
	if errors.Is(err, publish.ErrDisabled) {
		return publish.Noop{}
	}
	if err != nil {
		s.Log.WithError(err).Warn("transcript bus unavailable; finished transcripts stay local")
		return publish.Noop{}
	}

	s.closers = append(s.closers, func(context.Context) error {
		publisher.Close()
		return nil
	})
	return publisher
}
