// Package config provides the configuration schema, loader, and provider registry
// for the trigger mic.
package config

import "time"

// LogLevel controls log verbosity.
type LogLevel string

const (
	LogDebug LogLevel = "debug"
	LogInfo  LogLevel = "info"
	LogWarn  LogLevel = "warn"
	LogError LogLevel = "error"
)

// IsValid reports whether l is a recognised log level.
func (l LogLevel) IsValid() bool {
	switch l {
	case LogDebug, LogInfo, LogWarn, LogError:
		return true
	}
	return false
}

// Defaults applied by [LoadFromReader] for absent values.
const (
	DefaultSampleRate      = 16000
	DefaultFrameMs         = 30
	DefaultSilenceFrames   = 30
	DefaultMaxSegmentBytes = 500000
	DefaultVADSensitivity  = 3
	DefaultVADProvider     = "webrtc"
	DefaultSTTProvider     = "vosk"
	DefaultVoskModel       = "~/vosk-model-small-en-us-0.15"
)

// Config is the root configuration structure.
// It is typically loaded from a YAML file using [Load] or [LoadFromReader].
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Trigger   TriggerConfig   `yaml:"trigger"`
	Providers ProvidersConfig `yaml:"providers"`
	Sources   []SourceConfig  `yaml:"sources"`
	Output    OutputConfig    `yaml:"output"`
}

// ServerConfig holds network and logging settings.
type ServerConfig struct {
	// ListenAddr is the TCP address of the HTTP surface (e.g., ":8090").
	// Empty disables it.
	ListenAddr string `yaml:"listen_addr"`

	// LogLevel controls verbosity.
	LogLevel LogLevel `yaml:"log_level"`

	// TLS configures TLS for the server. When nil, the server runs plain HTTP.
	TLS *TLSConfig `yaml:"tls"`
}

// TLSConfig holds TLS certificate paths for enabling HTTPS.
type TLSConfig struct {
	CertFile string `yaml:"cert_file"`
	KeyFile  string `yaml:"key_file"`
}

// TriggerConfig tunes the trigger mic itself.
type TriggerConfig struct {
	// Source names an entry in [Config.Sources]. Empty means no upstream.
	Source string `yaml:"source"`

	// TriggerWord is lower-cased at load time. Empty disables triggering.
	TriggerWord string `yaml:"trigger_word"`

	// SilenceFrames is the number of consecutive non-speech frames that ends
	// an utterance.
	SilenceFrames int `yaml:"silence_frames"`

	// FrameMs is the classifier frame duration: 10, 20 or 30.
	FrameMs int `yaml:"frame_ms"`

	SampleRate int `yaml:"sample_rate"`

	// MaxSegmentBytes is the overflow ceiling of one utterance.
	MaxSegmentBytes int `yaml:"max_segment_bytes"`

	// FlushOnEnd evaluates a pending utterance when a finite source ends.
	FlushOnEnd bool `yaml:"flush_on_end"`

	// VADSensitivity is the classifier mode 0..3. Absent means 3, the least
	// sensitive mode.
	VADSensitivity *int `yaml:"vad_sensitivity"`
}

// Sensitivity returns the configured mode or the default.
func (t TriggerConfig) Sensitivity() int {
	if t.VADSensitivity == nil {
		return DefaultVADSensitivity
	}
	return *t.VADSensitivity
}

// ProvidersConfig selects the engines. Each entry names a provider registered
// in the [Registry].
type ProvidersConfig struct {
	VAD ProviderEntry `yaml:"vad"`
	STT ProviderEntry `yaml:"stt"`

	// STTFallbacks are tried in order when the primary recognizer fails or
	// its breaker is open.
	STTFallbacks []ProviderEntry `yaml:"stt_fallbacks"`

	// STTBreaker tunes the circuit breaker around each recognizer.
	STTBreaker BreakerConfig `yaml:"stt_breaker"`
}

// ProviderEntry is the common configuration block shared by all provider types.
type ProviderEntry struct {
	// Name selects the registered provider implementation (e.g., "vosk", "webrtc").
	Name string `yaml:"name"`

	// BaseURL is the endpoint of server-backed engines such as whisper-server.
	BaseURL string `yaml:"base_url"`

	// Model is the model location. A leading "~" is expanded at load time.
	Model string `yaml:"model"`

	// Options holds provider-specific values decoded with [DecodeOptions].
	Options map[string]any `yaml:"options"`
}

// BreakerConfig tunes a circuit breaker. Zero values select the breaker's
// own defaults.
type BreakerConfig struct {
	MaxFailures  int           `yaml:"max_failures"`
	ResetTimeout time.Duration `yaml:"reset_timeout"`
}

// SourceConfig declares a named upstream audio source.
type SourceConfig struct {
	// Name is referenced by [TriggerConfig.Source].
	Name string `yaml:"name"`

	// Type selects the registered source factory (e.g., "miniaudio", "pcmfile").
	Type string `yaml:"type"`

	// Options holds type-specific values decoded with [DecodeOptions].
	Options map[string]any `yaml:"options"`
}

// OutputConfig configures the optional local sink for triggered audio.
type OutputConfig struct {
	// Path is "-" for stdout or a file that forwarded PCM is appended to.
	// Empty disables the sink.
	Path string `yaml:"path"`
}

// SourceByName returns the source declared under name.
func (c *Config) SourceByName(name string) (SourceConfig, bool) {
	for _, s := range c.Sources {
		if s.Name == name {
			return s, true
		}
	}
	return SourceConfig{}, false
}
