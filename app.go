package main

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/wailsapp/wails/v2/pkg/runtime"

	"voicepad/internal/bootstrap"
	"voicepad/internal/config"
	"voicepad/internal/domain"
)

const (
	eventTrigger   = "voicepad:trigger"
	eventFocus     = "voicepad:focus"
	eventText      = "voicepad:text"
	eventIndicator = "voicepad:indicator"
	eventFinal     = "voicepad:final"
	eventError     = "voicepad:error"

	statusTimeout = time.Second
)

// App is the Wails application root. It is the dictation field's host: the
// frontend renders the text and indicator and reports trigger and focus
// changes back as events.
type App struct {
	ctx  context.Context
	emit func(ctx context.Context, name string, data ...interface{})

	// mu guards everything below; bound methods run on Wails goroutines.
	mu       sync.Mutex
	cancel   context.CancelFunc
	services *bootstrap.Services
	cfg      config.Config
	bootErr  error
	held     bool
	action   func()
}

func NewApp() *App {
	return &App{emit: runtime.EventsEmit}
}

func (a *App) startup(ctx context.Context) {
	a.ctx = ctx

	// Build calls back into the host, which takes a.mu.
	services, err := bootstrap.Build(a, &wailsClipboard{app: a})
	if err != nil {
		a.mu.Lock()
		a.bootErr = err
		a.mu.Unlock()
		a.SessionError(domain.ErrorCodeStartup, err.Error())
		return
	}

	runCtx, cancel := context.WithCancel(ctx)
	a.mu.Lock()
	a.services = services
	a.cfg = services.Config
	a.cancel = cancel
	a.mu.Unlock()

	runtime.EventsOn(ctx, eventTrigger, a.onTrigger)
	runtime.EventsOn(ctx, eventFocus, a.onFocus)

	go func() {
		if err := services.Run(runCtx); err != nil {
			services.Log.WithError(err).Error("main loop stopped")
		}
	}()
}

func (a *App) shutdown(ctx context.Context) {
	a.mu.Lock()
	services, cancel := a.services, a.cancel
	a.mu.Unlock()
	if services == nil {
		return
	}

	// The field gives up its session while the loop still runs, so the
	// microphone is released and the transcript finished.
	if err := services.Disable(ctx); err != nil {
		services.Log.WithError(err).Warn("dictation field not disabled")
	}
	cancel()
	if err := services.Close(ctx); err != nil {
		services.Log.WithError(err).Warn("shutdown incomplete")
	}
}

// Press clicks the dictation button: it starts dictation when idle and stops
// it while listening.
func (a *App) Press() error {
	services, err := a.ready()
	if err != nil {
		return err
	}
	if !services.Loop.Post(a.pressButton) {
		return bootstrap.ErrStopped
	}
	return nil
}

// GetStatus returns the current session status.
func (a *App) GetStatus() domain.Status {
	a.mu.Lock()
	services, bootErr := a.services, a.bootErr
	a.mu.Unlock()
	if services == nil {
		if bootErr != nil {
			return domain.Status{State: domain.SessionStateUnavailable, Active: false, Message: bootErr.Error()}
		}
		return domain.Status{State: domain.SessionStateIdle, Active: false}
	}

	ctx, cancel := context.WithTimeout(context.Background(), statusTimeout)
	defer cancel()
	status, err := services.Status(ctx)
	if err != nil {
		return domain.Status{State: domain.SessionStateUnavailable, Active: false, Message: err.Error()}
	}
	return status
}

// GetRuntimeInfo returns non-sensitive config for the UI.
func (a *App) GetRuntimeInfo() map[string]string {
	a.mu.Lock()
	cfg, bootErr := a.cfg, a.bootErr
	a.mu.Unlock()
	if bootErr != nil {
		return map[string]string{"error": bootErr.Error()}
	}

	info := map[string]string{
		"provider":         "Deepgram",
		"model":            cfg.Deepgram.Model,
		"language":         cfg.Deepgram.Language,
		"audioInput":       cfg.Audio.InputDevice,
		"audioInputFormat": cfg.Audio.InputFormat,
		"copyOnFinish":     fmt.Sprintf("%t", cfg.Session.CopyOnFinish),
	}
	if cfg.Bus.Enabled {
		info["busSubject"] = cfg.Bus.Subject
	}
	if cfg.Telemetry.Enabled {
		info["metrics"] = cfg.Telemetry.PrometheusBind
	}
	return info
}

// ready returns the running services, or why there are none.
func (a *App) ready() (*bootstrap.Services, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.bootErr != nil {
		return nil, a.bootErr
	}
	if a.services == nil {
		return nil, fmt.Errorf("application is not initialized")
	}
	return a.services, nil
}

// SetText shows the dictation field's text.
func (a *App) SetText(text string) {
	a.send(eventText, map[string]string{"text": text})
}

// SetRecording tints the microphone indicator.
func (a *App) SetRecording(recording bool) {
	a.send(eventIndicator, map[string]interface{}{
		"recording": recording,
		"color":     string(domain.IndicatorColorFor(recording)),
	})
}

// Bind replaces the button's click handler.
func (a *App) Bind(action func()) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.action = action
}

// TriggerHeld reports the push-to-talk state last sent by the frontend.
func (a *App) TriggerHeld() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.held
}

// TranscriptFinished emits the delivered transcript.
func (a *App) TranscriptFinished(transcript domain.FinishedTranscript) {
	a.send(eventFinal, transcript)
}

// SessionError emits backend errors to the UI.
func (a *App) SessionError(code domain.ErrorCode, detail string) {
	a.send(eventError, map[string]string{
		"code":    string(code),
		"message": errorMessage(code, detail),
		"detail":  detail,
	})
}

func (a *App) send(name string, payload interface{}) {
	if a.ctx == nil || a.emit == nil {
		return
	}
	a.emit(a.ctx, name, payload)
}

func (a *App) pressButton() {
	a.mu.Lock()
	action := a.action
	a.mu.Unlock()
	if action != nil {
		action()
	}
}

func (a *App) onTrigger(data ...interface{}) {
	held, ok := boolPayload(data)
	if !ok {
		return
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	a.held = held
}

func (a *App) onFocus(data ...interface{}) {
	focused, ok := boolPayload(data)
	if !ok {
		return
	}
	services, err := a.ready()
	if err != nil {
		return
	}
	transcriber := services.Transcriber
	services.Loop.Post(func() { transcriber.ApplicationFocusChanged(focused) })
}

func boolPayload(data []interface{}) (bool, bool) {
	if len(data) == 0 {
		return false, false
	}
	value, ok := data[0].(bool)
	return value, ok
}

func errorMessage(code domain.ErrorCode, detail string) string {
	switch code {
	case domain.ErrorCodeStartup:
		return "Startup failed"
	case domain.ErrorCodeAudioStream:
		return "Audio streaming issue"
	case domain.ErrorCodeTranscription:
		return "Transcription error"
	case domain.ErrorCodeClipboard:
		return "Clipboard write failed"
	case domain.ErrorCodePublish:
		return "Transcript publish failed"
	default:
		if detail == "" {
			return "Unknown error"
		}
		return detail
	}
}

// wailsClipboard writes through the runtime, which needs the application
// context rather than the caller's.
type wailsClipboard struct {
	app *App
}

func (c *wailsClipboard) SetText(ctx context.Context, text string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return runtime.ClipboardSetText(c.app.ctx, text)
}
