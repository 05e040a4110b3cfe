package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// ErrInvalidConfig is returned when a config file exists but cannot be used.
var ErrInvalidConfig = errors.New("invalid config")

// Config stores runtime configuration for the overlay.
type Config struct {
	Deepgram  DeepgramConfig  `yaml:"deepgram"`
	Audio     AudioConfig     `yaml:"audio"`
	Session   SessionConfig   `yaml:"session"`
	Input     InputConfig     `yaml:"input"`
	Log       LogConfig       `yaml:"log"`
	Telemetry TelemetryConfig `yaml:"telemetry"`
	Bus       BusConfig       `yaml:"bus"`
}

type DeepgramConfig struct {
	APIKey         string `yaml:"api_key"`
	APIBaseURL     string `yaml:"api_base"`
	Model          string `yaml:"model"`
	Language       string `yaml:"language"`
	SmartFormat    bool   `yaml:"smart_format"`
	EndpointingMS  int    `yaml:"endpointing_ms"`
	UtteranceEndMS int    `yaml:"utterance_end_ms"`
}

type AudioConfig struct {
	RecorderCommand string `yaml:"recorder_command"`
	InputFormat     string `yaml:"input_format"`
	InputDevice     string `yaml:"input_device"`
	SampleRate      int    `yaml:"sample_rate"`
	Channels        int    `yaml:"channels"`
}

type SessionConfig struct {
	ChunkSize        int  `yaml:"chunk_size"`
	StreamingGraceMS int  `yaml:"streaming_grace_ms"`
	StopTimeoutMS    int  `yaml:"stop_timeout_ms"`
	CopyOnFinish     bool `yaml:"copy_on_finish"`
}

func (c SessionConfig) StreamingGrace() time.Duration {
	return time.Duration(c.StreamingGraceMS) * time.Millisecond
}

func (c SessionConfig) StopTimeout() time.Duration {
	return time.Duration(c.StopTimeoutMS) * time.Millisecond
}

// InputConfig sizes the main loop that polls the trigger.
type InputConfig struct {
	FrameIntervalMS int `yaml:"frame_interval_ms"`
	QueueSize       int `yaml:"queue_size"`
}

func (c InputConfig) FrameInterval() time.Duration {
	return time.Duration(c.FrameIntervalMS) * time.Millisecond
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	File   string `yaml:"file"`
}

type TelemetryConfig struct {
	Enabled        bool   `yaml:"enabled"`
	PrometheusBind string `yaml:"prometheus_bind"`
	ServiceName    string `yaml:"service_name"`
}

// BusConfig controls publishing finished transcripts to NATS.
type BusConfig struct {
	Enabled          bool     `yaml:"enabled"`
	Servers          []string `yaml:"servers"`
	Subject          string   `yaml:"subject"`
	Name             string   `yaml:"name"`
	Token            string   `yaml:"token"`
	ConnectTimeoutMS int      `yaml:"connect_timeout_ms"`
}

func (c BusConfig) ConnectTimeout() time.Duration {
	return time.Duration(c.ConnectTimeoutMS) * time.Millisecond
}

// Defaults returns the configuration used when nothing is overridden.
func Defaults() Config {
	return Config{
		Deepgram: DeepgramConfig{
			APIBaseURL:     "https://api.deepgram.com/v1",
			Model:          "nova-2",
			SmartFormat:    true,
			EndpointingMS:  300,
			UtteranceEndMS: 1000,
		},
		Audio: AudioConfig{
			RecorderCommand: "ffmpeg",
			InputFormat:     "pulse",
			InputDevice:     "default",
			SampleRate:      16000,
			Channels:        1,
		},
		Session: SessionConfig{
			ChunkSize:        4096,
			StreamingGraceMS: 1000,
			StopTimeoutMS:    4000,
			CopyOnFinish:     true,
		},
		Input: InputConfig{
			FrameIntervalMS: 16,
			QueueSize:       256,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
		Telemetry: TelemetryConfig{
			PrometheusBind: "127.0.0.1:9464",
			ServiceName:    "voicepad",
		},
		Bus: BusConfig{
			Servers:          []string{"nats://127.0.0.1:4222"},
			Subject:          "voicepad.transcript.finished",
			Name:             "voicepad",
			ConnectTimeoutMS: 2000,
		},
	}
}

// Load resolves configuration from defaults, the optional config file and
// environment variables, in that order.
func Load() (Config, error) {
	path := strings.TrimSpace(os.Getenv("VOICEPAD_CONFIG"))
	if path == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return Config{}, errors.New("could not determine home directory")
		}
		path = filepath.Join(home, ".config", "voicepad", "config.yaml")
	}
	return LoadFile(path)
}

// LoadFile is Load with an explicit config file path. A missing file is not
// an error.
func LoadFile(path string) (Config, error) {
	cfg := Defaults()

	if err := readFile(path, &cfg); err != nil {
		return Config{}, err
	}
	applyEnv(&cfg)
	normalize(&cfg)

	return cfg, nil
}

func readFile(path string, cfg *Config) error {
	if path == "" {
		return nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrInvalidConfig, path, err)
	}
	return nil
}

func applyEnv(cfg *Config) {
	dg := &cfg.Deepgram
	dg.APIKey = envOrDefault("DEEPGRAM_API_KEY", dg.APIKey)
	dg.APIBaseURL = envOrDefault("DEEPGRAM_API_BASE", dg.APIBaseURL)
	dg.Model = envOrDefault("DEEPGRAM_MODEL", dg.Model)
	dg.Language = envOrDefault("DEEPGRAM_LANGUAGE", dg.Language)
	dg.SmartFormat = envOrDefaultBool("DEEPGRAM_SMART_FORMAT", dg.SmartFormat)
	dg.EndpointingMS = envOrDefaultInt("DEEPGRAM_ENDPOINTING_MS", dg.EndpointingMS)
	dg.UtteranceEndMS = envOrDefaultInt("DEEPGRAM_UTTERANCE_END_MS", dg.UtteranceEndMS)

	audio := &cfg.Audio
	audio.RecorderCommand = envOrDefault("VOICEPAD_FFMPEG_COMMAND", audio.RecorderCommand)
	audio.InputFormat = envOrDefault("VOICEPAD_AUDIO_INPUT_FORMAT", audio.InputFormat)
	audio.InputDevice = firstNonEmpty(
		os.Getenv("VOICEPAD_AUDIO_INPUT_DEVICE"),
		os.Getenv("DEEPGRAM_PULSE_SOURCE"),
		audio.InputDevice,
	)
	audio.SampleRate = envOrDefaultInt("VOICEPAD_SAMPLE_RATE", audio.SampleRate)
	audio.Channels = envOrDefaultInt("VOICEPAD_CHANNELS", audio.Channels)

	session := &cfg.Session
	session.ChunkSize = envOrDefaultInt("VOICEPAD_AUDIO_CHUNK_SIZE", session.ChunkSize)
	session.StreamingGraceMS = firstNonNegativeInt("VOICEPAD_STREAMING_GRACE_MS", "DEEPGRAM_STREAMING_GRACE_MS", session.StreamingGraceMS)
	session.StopTimeoutMS = envOrDefaultInt("VOICEPAD_STOP_TIMEOUT_MS", session.StopTimeoutMS)
	session.CopyOnFinish = envOrDefaultBool("VOICEPAD_COPY_ON_FINISH", session.CopyOnFinish)

	cfg.Input.FrameIntervalMS = envOrDefaultInt("VOICEPAD_FRAME_INTERVAL_MS", cfg.Input.FrameIntervalMS)
	cfg.Input.QueueSize = envOrDefaultInt("VOICEPAD_QUEUE_SIZE", cfg.Input.QueueSize)

	cfg.Log.Level = envOrDefault("VOICEPAD_LOG_LEVEL", cfg.Log.Level)
	cfg.Log.Format = envOrDefault("VOICEPAD_LOG_FORMAT", cfg.Log.Format)
	cfg.Log.File = envOrDefault("VOICEPAD_LOG_FILE", cfg.Log.File)

	cfg.Telemetry.Enabled = envOrDefaultBool("VOICEPAD_TELEMETRY_ENABLED", cfg.Telemetry.Enabled)
	cfg.Telemetry.PrometheusBind = envOrDefault("VOICEPAD_PROMETHEUS_BIND", cfg.Telemetry.PrometheusBind)

	bus := &cfg.Bus
	bus.Enabled = envOrDefaultBool("VOICEPAD_BUS_ENABLED", bus.Enabled)
	if servers := splitList(os.Getenv("VOICEPAD_BUS_SERVERS")); len(servers) > 0 {
		bus.Servers = servers
	}
	bus.Subject = envOrDefault("VOICEPAD_BUS_SUBJECT", bus.Subject)
	bus.Token = envOrDefault("VOICEPAD_BUS_TOKEN", bus.Token)
}

func normalize(cfg *Config) {
	defaults := Defaults()

	if cfg.Audio.SampleRate <= 0 {
		cfg.Audio.SampleRate = defaults.Audio.SampleRate
	}
	if cfg.Audio.Channels <= 0 {
		cfg.Audio.Channels = defaults.Audio.Channels
	}
	if cfg.Session.ChunkSize < 256 {
		cfg.Session.ChunkSize = defaults.Session.ChunkSize
	}
	if cfg.Session.StreamingGraceMS < 0 {
		cfg.Session.StreamingGraceMS = defaults.Session.StreamingGraceMS
	}
	if cfg.Session.StopTimeoutMS <= 0 {
		cfg.Session.StopTimeoutMS = defaults.Session.StopTimeoutMS
	}
	if cfg.Deepgram.EndpointingMS < 0 {
		cfg.Deepgram.EndpointingMS = 0
	}
	if cfg.Deepgram.UtteranceEndMS < 0 {
		cfg.Deepgram.UtteranceEndMS = 0
	}
	if cfg.Input.FrameIntervalMS <= 0 {
		cfg.Input.FrameIntervalMS = defaults.Input.FrameIntervalMS
	}
	if cfg.Input.QueueSize <= 0 {
		cfg.Input.QueueSize = defaults.Input.QueueSize
	}
	if cfg.Telemetry.ServiceName == "" {
		cfg.Telemetry.ServiceName = defaults.Telemetry.ServiceName
	}
	if cfg.Bus.Subject == "" {
		cfg.Bus.Subject = defaults.Bus.Subject
	}
	if cfg.Bus.ConnectTimeoutMS <= 0 {
		cfg.Bus.ConnectTimeoutMS = defaults.Bus.ConnectTimeoutMS
	}
	cfg.Log.Level = strings.ToLower(strings.TrimSpace(cfg.Log.Level))
	cfg.Log.Format = strings.ToLower(strings.TrimSpace(cfg.Log.Format))
}

func firstNonEmpty(values ...string) string {
	for _, value := range values {
		trimmed := strings.TrimSpace(value)
		if trimmed != "" {
			return trimmed
		}
	}
	return ""
}

func splitList(value string) []string {
	var out []string
	for _, part := range strings.Split(value, ",") {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

func envOrDefault(key string, fallback string) string {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}
	return value
}

func envOrDefaultInt(key string, fallback int) int {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func envOrDefaultBool(key string, fallback bool) bool {
	value := strings.TrimSpace(strings.ToLower(os.Getenv(key)))
	switch value {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	default:
		return fallback
	}
}

func firstNonNegativeInt(primary string, secondary string, fallback int) int {
	for _, key := range []string{primary, secondary} {
		value := strings.TrimSpace(os.Getenv(key))
		if value == "" {
			continue
		}
		parsed, err := strconv.Atoi(value)
		if err == nil && parsed >= 0 {
			return parsed
		}
	}
	return fallback
}
