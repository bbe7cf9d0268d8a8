// Package config loads livcap settings from an optional YAML file and the
// environment.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/w93163red/LivCap-Translate/internal/caption"
	"github.com/w93163red/LivCap-Translate/internal/translate"
)

// Defaults.
const (
	DefaultLogLevel           = "info"
	DefaultRecognizerURL      = "ws://127.0.0.1:8765/v1/recognize"
	DefaultSilenceTimeout     = 1500 * time.Millisecond
	DefaultFrameInterval      = 100 * time.Millisecond
	DefaultSplitLongCaptions  = 120
	DefaultTranslationBackend = BackendOpenAI
	DefaultTargetLanguage     = "English"
	DefaultMinInterval        = 500 * time.Millisecond
	DefaultProxyAddr          = "127.0.0.1:11435"
	DefaultProxyMinInterval   = 2 * time.Second
)

// Translation backends.
const (
	BackendOpenAI = "openai"
	BackendGemini = "gemini"
	BackendNone   = "none"
)

// Config is the full daemon, proxy, and client configuration.
type Config struct {
	LogLevel string `yaml:"log_level"`
	Socket   string `yaml:"socket"`
	Database string `yaml:"database"`

	Recognizer  RecognizerConfig  `yaml:"recognizer"`
	Recognition RecognitionConfig `yaml:"recognition"`
	Silence     SilenceConfig     `yaml:"silence"`
	Translation TranslationConfig `yaml:"translation"`
	Proxy       ProxyConfig       `yaml:"proxy"`
}

// RecognizerConfig locates the speech recognition service.
type RecognizerConfig struct {
	URL              string        `yaml:"url"`
	Token            string        `yaml:"token"`
	HandshakeTimeout time.Duration `yaml:"handshake_timeout"`
}

// RecognitionConfig tunes the session engine.
type RecognitionConfig struct {
	Locale               string        `yaml:"locale"`
	Segmentation         string        `yaml:"segmentation"`
	SplitLongCaptions    int           `yaml:"split_long_captions"`
	Abbreviations        []string      `yaml:"abbreviations"`
	Terminators          string        `yaml:"terminators"`
	MaxSessionDuration   time.Duration `yaml:"max_session_duration"`
	MaxNoSpeechRotations int           `yaml:"max_no_speech_rotations"`
}

// SilenceConfig sets the forced-finalization threshold. Frames wins when
// set; otherwise it is derived from Timeout and FrameInterval.
type SilenceConfig struct {
	Frames        int           `yaml:"frames"`
	Timeout       time.Duration `yaml:"timeout"`
	FrameInterval time.Duration `yaml:"frame_interval"`
}

// TranslationConfig selects the translation backend and its timing.
type TranslationConfig struct {
	Backend        string `yaml:"backend"`
	BaseURL        string `yaml:"base_url"`
	Model          string `yaml:"model"`
	SourceLanguage string `yaml:"source_language"`
	TargetLanguage string `yaml:"target_language"`

	RealtimeMinLength    int           `yaml:"realtime_min_length"`
	RealtimeBurstUpdates int           `yaml:"realtime_burst_updates"`
	RealtimeIdle         time.Duration `yaml:"realtime_idle"`
	IdlePollInterval     time.Duration `yaml:"idle_poll_interval"`
	ContextWindow        int           `yaml:"context_window"`
	MinInterval          time.Duration `yaml:"min_interval"`
	Timeout              time.Duration `yaml:"timeout"`

	// Keys come from the environment only.
	OpenAIAPIKey string `yaml:"-"`
	GeminiAPIKey string `yaml:"-"`
}

// ProxyConfig configures livcap-proxy.
type ProxyConfig struct {
	Addr        string        `yaml:"addr"`
	MinInterval time.Duration `yaml:"min_interval"`
	BaseURL     string        `yaml:"base_url"`
}

// DataDir returns the directory holding the socket, database, and default
// config file.
func DataDir() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		home, _ := os.UserHomeDir()
		dir = filepath.Join(home, ".config")
	}
	return filepath.Join(dir, "LivCap")
}

// DefaultSocketPath returns the daemon socket path.
func DefaultSocketPath() string { return filepath.Join(DataDir(), "livcap.sock") }

// DefaultDatabasePath returns the caption database path.
func DefaultDatabasePath() string { return filepath.Join(DataDir(), "livcap.sqlite") }

// DefaultConfigPath returns the config file read when none is named.
func DefaultConfigPath() string { return filepath.Join(DataDir(), "config.yaml") }

// Validate fills defaults and rejects out-of-range values.
func (c *Config) Validate() error {
	var errs []error
	bad := func(format string, args ...any) { errs = append(errs, fmt.Errorf(format, args...)) }

	c.LogLevel = strings.ToLower(strings.TrimSpace(c.LogLevel))
	switch c.LogLevel {
	case "":
		c.LogLevel = DefaultLogLevel
	case "debug", "info", "warn", "error":
	default:
		bad("log_level %q: want debug, info, warn or error", c.LogLevel)
	}
	if c.Socket == "" {
		c.Socket = DefaultSocketPath()
	}
	if c.Database == "" {
		c.Database = DefaultDatabasePath()
	}

	if c.Recognizer.URL == "" {
		c.Recognizer.URL = DefaultRecognizerURL
	}
	if c.Recognizer.HandshakeTimeout < 0 {
		bad("recognizer.handshake_timeout must not be negative")
	}

	r := &c.Recognition
	if _, err := caption.ParseStrategy(r.Segmentation); err != nil {
		bad("recognition.segmentation: %v", err)
	}
	if r.SplitLongCaptions == 0 {
		r.SplitLongCaptions = DefaultSplitLongCaptions
	} else if r.SplitLongCaptions < 0 {
		bad("recognition.split_long_captions must not be negative")
	}
	if r.Terminators == "" {
		r.Terminators = caption.DefaultTerminators
	}
	if r.MaxSessionDuration < 0 {
		bad("recognition.max_session_duration must not be negative")
	}
	if r.MaxNoSpeechRotations < 0 {
		bad("recognition.max_no_speech_rotations must not be negative")
	}

	s := &c.Silence
	if s.Timeout == 0 {
		s.Timeout = DefaultSilenceTimeout
	}
	if s.FrameInterval == 0 {
		s.FrameInterval = DefaultFrameInterval
	}
	switch {
	case s.Frames < 0 || s.Timeout < 0 || s.FrameInterval < 0:
		bad("silence values must not be negative")
	case s.Frames == 0:
		s.Frames = caption.SilenceFrames(s.Timeout, s.FrameInterval)
	}

	t := &c.Translation
	t.Backend = strings.ToLower(strings.TrimSpace(t.Backend))
	switch t.Backend {
	case "":
		t.Backend = DefaultTranslationBackend
	case BackendOpenAI, BackendGemini, BackendNone:
	default:
		bad("translation.backend %q: want openai, gemini or none", t.Backend)
	}
	if t.Backend == BackendOpenAI && t.BaseURL == "" {
		t.BaseURL = translate.DefaultOpenAIBaseURL
	}
	if t.Model == "" && t.Backend == BackendOpenAI {
		t.Model = translate.DefaultModel
	}
	if t.TargetLanguage == "" {
		t.TargetLanguage = DefaultTargetLanguage
	}
	if t.RealtimeMinLength == 0 {
		t.RealtimeMinLength = translate.DefaultMinLength
	}
	if t.RealtimeBurstUpdates == 0 {
		t.RealtimeBurstUpdates = translate.DefaultBurstUpdates
	}
	if t.RealtimeIdle == 0 {
		t.RealtimeIdle = translate.DefaultIdleThreshold
	}
	if t.IdlePollInterval == 0 {
		t.IdlePollInterval = translate.DefaultPollInterval
	}
	if t.ContextWindow == 0 {
		t.ContextWindow = translate.DefaultContextWindow
	}
	if t.MinInterval == 0 {
		t.MinInterval = DefaultMinInterval
	}
	if t.Timeout == 0 {
		t.Timeout = translate.DefaultTimeout
	}
	if t.RealtimeMinLength < 0 || t.RealtimeBurstUpdates < 0 {
		bad("translation realtime thresholds must not be negative")
	}
	if t.RealtimeIdle < 0 || t.IdlePollInterval < 0 || t.MinInterval < 0 || t.Timeout < 0 {
		bad("translation durations must not be negative")
	}
	if t.Backend == BackendGemini && t.GeminiAPIKey == "" {
		bad("translation.backend gemini requires GEMINI_API_KEY")
	}

	if c.Proxy.Addr == "" {
		c.Proxy.Addr = DefaultProxyAddr
	}
	if c.Proxy.MinInterval == 0 {
		c.Proxy.MinInterval = DefaultProxyMinInterval
	} else if c.Proxy.MinInterval < 0 {
		bad("proxy.min_interval must not be negative")
	}

	if len(errs) > 0 {
		return fmt.Errorf("config: %w", errors.Join(errs...))
	}
	return nil
}

// EngineConfig returns the session engine settings.
func (c Config) EngineConfig() caption.Config {
	strategy, _ := caption.ParseStrategy(c.Recognition.Segmentation)
	return caption.Config{
		Strategy:             strategy,
		Terminators:          c.Recognition.Terminators,
		Abbreviations:        c.Recognition.Abbreviations,
		SplitLongCaptions:    c.Recognition.SplitLongCaptions,
		SilenceFrames:        c.Silence.Frames,
		MaxSessionDuration:   c.Recognition.MaxSessionDuration,
		MaxNoSpeechRotations: c.Recognition.MaxNoSpeechRotations,
	}
}

// ControllerConfig returns the translation timing settings.
func (c Config) ControllerConfig() translate.Config {
	t := c.Translation
	return translate.Config{
		MinLength:     t.RealtimeMinLength,
		BurstUpdates:  t.RealtimeBurstUpdates,
		IdleThreshold: t.RealtimeIdle,
		PollInterval:  t.IdlePollInterval,
		ContextWindow: t.ContextWindow,
		Timeout:       t.Timeout,
	}
}
