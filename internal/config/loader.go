package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/MrWong99/triggermic/internal/trigger"
)

// ValidProviderNames lists known provider names per provider kind.
// Used by [Validate] to warn about unrecognised provider names.
var ValidProviderNames = map[string][]string{
	"vad":    {"webrtc", "energy"},
	"stt":    {"vosk", "whisper", "whisper-native"},
	"source": {"miniaudio", "pcmfile"},
}

// Load reads the YAML configuration file at path and returns a validated [Config].
// It is a convenience wrapper around [LoadFromReader].
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r, applies defaults, expands
// model paths and validates the result. An empty document is valid.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := &Config{}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	if err := applyDefaults(cfg); err != nil {
		return nil, err
	}
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyDefaults fills absent values and normalises the trigger word.
func applyDefaults(cfg *Config) error {
	if cfg.Server.LogLevel == "" {
		cfg.Server.LogLevel = LogInfo
	}

	t := &cfg.Trigger
	t.TriggerWord = trigger.Word(t.TriggerWord)
	if t.SampleRate == 0 {
		t.SampleRate = DefaultSampleRate
	}
	if t.FrameMs == 0 {
		t.FrameMs = DefaultFrameMs
	}
	if t.SilenceFrames == 0 {
		t.SilenceFrames = DefaultSilenceFrames
	}
	if t.MaxSegmentBytes == 0 {
		t.MaxSegmentBytes = DefaultMaxSegmentBytes
	}

	p := &cfg.Providers
	if p.VAD.Name == "" {
		p.VAD.Name = DefaultVADProvider
	}
	if p.STT.Name == "" {
		p.STT.Name = DefaultSTTProvider
	}
	if p.STT.Name == "vosk" && p.STT.Model == "" {
		p.STT.Model = DefaultVoskModel
	}

	var errs []error
	var err error
	if p.STT.Model, err = ExpandHome(p.STT.Model); err != nil {
		errs = append(errs, fmt.Errorf("providers.stt.model: %w", err))
	}
	for i := range p.STTFallbacks {
		if p.STTFallbacks[i].Model, err = ExpandHome(p.STTFallbacks[i].Model); err != nil {
			errs = append(errs, fmt.Errorf("providers.stt_fallbacks[%d].model: %w", i, err))
		}
	}
	return errors.Join(errs...)
}

// ExpandHome replaces a leading "~" in path with the invoking user's home
// directory. Other paths are returned unchanged.
func ExpandHome(path string) (string, error) {
	if path != "~" && !strings.HasPrefix(path, "~/") {
		return path, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("config: expand %q: %w", path, err)
	}
	return filepath.Join(home, strings.TrimPrefix(path, "~")), nil
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}
	if tls := cfg.Server.TLS; tls != nil && (tls.CertFile == "" || tls.KeyFile == "") {
		errs = append(errs, errors.New("server.tls requires both cert_file and key_file"))
	}

	t := cfg.Trigger
	switch t.FrameMs {
	case 10, 20, 30:
	default:
		errs = append(errs, fmt.Errorf("trigger.frame_ms %d is invalid; valid values: 10, 20, 30", t.FrameMs))
	}
	if t.SampleRate != DefaultSampleRate {
		errs = append(errs, fmt.Errorf("trigger.sample_rate %d is unsupported; sources deliver %d Hz", t.SampleRate, DefaultSampleRate))
	}
	if t.SilenceFrames < 1 {
		errs = append(errs, fmt.Errorf("trigger.silence_frames %d must be at least 1", t.SilenceFrames))
	}
	if t.MaxSegmentBytes < 1 {
		errs = append(errs, fmt.Errorf("trigger.max_segment_bytes %d must be positive", t.MaxSegmentBytes))
	}
	if s := t.Sensitivity(); s < 0 || s > 3 {
		errs = append(errs, fmt.Errorf("trigger.vad_sensitivity %d is out of range [0, 3]", s))
	}

	validateProviderName("vad", cfg.Providers.VAD.Name)
	validateProviderName("stt", cfg.Providers.STT.Name)
	for i, fb := range cfg.Providers.STTFallbacks {
		if fb.Name == "" {
			errs = append(errs, fmt.Errorf("providers.stt_fallbacks[%d].name is required", i))
			continue
		}
		validateProviderName("stt", fb.Name)
	}
	if b := cfg.Providers.STTBreaker; b.MaxFailures < 0 || b.ResetTimeout < 0 {
		errs = append(errs, errors.New("providers.stt_breaker values must not be negative"))
	}

	seen := make(map[string]int, len(cfg.Sources))
	for i, src := range cfg.Sources {
		prefix := fmt.Sprintf("sources[%d]", i)
		if src.Name == "" {
			errs = append(errs, fmt.Errorf("%s.name is required", prefix))
		} else {
			if prev, ok := seen[src.Name]; ok {
				errs = append(errs, fmt.Errorf("%s.name %q is a duplicate of sources[%d]", prefix, src.Name, prev))
			}
			seen[src.Name] = i
		}
		if src.Type == "" {
			errs = append(errs, fmt.Errorf("%s.type is required", prefix))
		} else {
			validateProviderName("source", src.Type)
		}
	}

	if t.Source != "" {
		if _, ok := seen[t.Source]; !ok {
			errs = append(errs, fmt.Errorf("trigger.source %q: upstream dependency unresolvable; no such entry in sources", t.Source))
		}
	} else {
		slog.Warn("trigger.source is empty; streaming sessions will deliver no audio")
	}

	return errors.Join(errs...)
}

// validateProviderName logs a warning if name is non-empty and not found in
// the [ValidProviderNames] list for the given kind.
func validateProviderName(kind, name string) {
	if name == "" {
		return
	}
	known, ok := ValidProviderNames[kind]
	if !ok {
		return
	}
	if slices.Contains(known, name) {
		return
	}
	slog.Warn("unknown provider name; may be a typo or third-party provider",
		"kind", kind,
		"name", name,
		"known", known,
	)
}
