package audio

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"voicepad/internal/ports"
)

// startupProbe is how long ffmpeg must stay alive before capture counts as
// started; device errors make it exit well within this window.
const startupProbe = 250 * time.Millisecond

// FFMPEGCapture streams microphone PCM audio using ffmpeg.
type FFMPEGCapture struct {
	command string
	log     logrus.FieldLogger
}

func NewFFMPEGCapture(command string, log logrus.FieldLogger) *FFMPEGCapture {
	if command == "" {
		command = "ffmpeg"
	}
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &FFMPEGCapture{command: command, log: log.WithField("capture", "ffmpeg")}
}

func (c *FFMPEGCapture) Start(ctx context.Context, cfg ports.AudioConfig) (ports.AudioSession, error) {
	cfg = withCaptureDefaults(cfg)

	cmd := exec.CommandContext(ctx, c.command, captureArgs(cfg)...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("failed to create ffmpeg stdout pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("failed to start ffmpeg: %w", err)
	}

	waitErr := make(chan error, 1)
	go func() {
		waitErr <- cmd.Wait()
		close(waitErr)
	}()

	select {
	case err := <-waitErr:
		if err != nil {
			return nil, fmt.Errorf("ffmpeg exited before capture started: %w: %s", err, strings.TrimSpace(stderr.String()))
		}
		return nil, errors.New("ffmpeg exited before capture started")
	case <-time.After(startupProbe):
	}

	c.log.WithFields(logrus.Fields{
		"format":      cfg.InputFormat,
		"device":      cfg.InputDevice,
		"sample_rate": cfg.SampleRate,
		"channels":    cfg.Channels,
	}).Debug("microphone capture started")

	return &ffmpegSession{
		log:     c.log,
		stdout:  stdout,
		stderr:  &stderr,
		process: cmd.Process,
		waitErr: waitErr,
	}, nil
}

func withCaptureDefaults(cfg ports.AudioConfig) ports.AudioConfig {
	if cfg.SampleRate <= 0 {
		cfg.SampleRate = 16000
	}
	if cfg.Channels <= 0 {
		cfg.Channels = 1
	}
	if cfg.InputFormat == "" {
		cfg.InputFormat = "pulse"
	}
	if cfg.InputDevice == "" {
		cfg.InputDevice = "default"
	}
	return cfg
}

// captureArgs asks ffmpeg for raw little-endian 16-bit PCM on stdout, the
// linear16 encoding the streaming provider is configured for.
func captureArgs(cfg ports.AudioConfig) []string {
	return []string{
		"-nostdin",
		"-hide_banner",
		"-loglevel", "warning",
		"-f", cfg.InputFormat,
		"-i", cfg.InputDevice,
		"-ac", strconv.Itoa(cfg.Channels),
		"-ar", strconv.Itoa(cfg.SampleRate),
		"-f", "s16le",
		"-",
	}
}

type ffmpegSession struct {
	log    logrus.FieldLogger
	stdout io.ReadCloser
	stderr *bytes.Buffer

	process *os.Process
	waitErr <-chan error

	stopOnce sync.Once
	stopErr  error
}

func (s *ffmpegSession) Read(p []byte) (int, error) {
	return s.stdout.Read(p)
}

func (s *ffmpegSession) Close() error {
	return s.Stop()
}

func (s *ffmpegSession) Stop() error {
	s.stopOnce.Do(func() {
		if s.process != nil {
			_ = s.process.Signal(os.Interrupt)
		}

		select {
		case err, ok := <-s.waitErr:
			if ok {
				s.stopErr = normalizeStopErr(err)
			}
		case <-time.After(1200 * time.Millisecond):
			if s.process != nil {
				_ = s.process.Kill()
			}
			err, ok := <-s.waitErr
			if ok {
				s.stopErr = normalizeStopErr(err)
			}
		}

		if closeErr := s.stdout.Close(); closeErr != nil && !errors.Is(closeErr, os.ErrClosed) {
			if s.stopErr == nil {
				s.stopErr = closeErr
			}
		}

		if s.stopErr != nil && s.stderr != nil && s.stderr.Len() > 0 {
			s.stopErr = fmt.Errorf("%w: %s", s.stopErr, strings.TrimSpace(s.stderr.String()))
		}
		if s.stopErr != nil {
			s.log.WithError(s.stopErr).Warn("microphone capture did not stop cleanly")
		} else {
			s.log.Debug("microphone capture stopped")
		}
	})

	return s.stopErr
}

func normalizeStopErr(err error) error {
	if err == nil {
		return nil
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return nil
	}
	return err
}
