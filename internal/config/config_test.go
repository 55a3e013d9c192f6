package config_test

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/MrWong99/triggermic/internal/config"
	"github.com/MrWong99/triggermic/pkg/audio"
	audiomock "github.com/MrWong99/triggermic/pkg/audio/mock"
	"github.com/MrWong99/triggermic/pkg/provider/stt"
	sttmock "github.com/MrWong99/triggermic/pkg/provider/stt/mock"
	"github.com/MrWong99/triggermic/pkg/provider/vad"
	vadmock "github.com/MrWong99/triggermic/pkg/provider/vad/mock"
)

const fullYAML = `
server:
  listen_addr: ":8090"
  log_level: debug
trigger:
  source: file
  trigger_word: "Robot"
  silence_frames: 20
  frame_ms: 20
  sample_rate: 16000
  max_segment_bytes: 320000
  flush_on_end: true
  vad_sensitivity: 0
providers:
  vad:
    name: energy
  stt:
    name: whisper
    base_url: http://localhost:8080
    options:
      language: en
  stt_fallbacks:
    - name: vosk
      model: /models/vosk
  stt_breaker:
    max_failures: 3
    reset_timeout: 10s
sources:
  - name: mic
    type: miniaudio
  - name: file
    type: pcmfile
    options:
      path: "-"
      chunk_ms: 50
output:
  path: "-"
`

func TestLoadFromReader_Valid(t *testing.T) {
	t.Parallel()
	cfg, err := config.LoadFromReader(strings.NewReader(fullYAML))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Server.ListenAddr != ":8090" || cfg.Server.LogLevel != config.LogDebug {
		t.Errorf("server = %+v", cfg.Server)
	}
	tr := cfg.Trigger
	if tr.TriggerWord != "robot" {
		t.Errorf("trigger_word = %q, want lower-cased", tr.TriggerWord)
	}
	if tr.Source != "file" || tr.SilenceFrames != 20 || tr.FrameMs != 20 || tr.MaxSegmentBytes != 320000 || !tr.FlushOnEnd {
		t.Errorf("trigger = %+v", tr)
	}
	if tr.Sensitivity() != 0 {
		t.Errorf("explicit sensitivity 0 lost: got %d", tr.Sensitivity())
	}
	if cfg.Providers.STTBreaker.ResetTimeout != 10*time.Second || cfg.Providers.STTBreaker.MaxFailures != 3 {
		t.Errorf("stt_breaker = %+v", cfg.Providers.STTBreaker)
	}
	if len(cfg.Providers.STTFallbacks) != 1 || cfg.Providers.STTFallbacks[0].Model != "/models/vosk" {
		t.Errorf("stt_fallbacks = %+v", cfg.Providers.STTFallbacks)
	}
	src, ok := cfg.SourceByName("file")
	if !ok || src.Type != "pcmfile" || src.Options["chunk_ms"] != 50 {
		t.Errorf("SourceByName(file) = %+v, %v", src, ok)
	}
	if cfg.Output.Path != "-" {
		t.Errorf("output.path = %q", cfg.Output.Path)
	}
}

func TestLoadFromReader_Defaults(t *testing.T) {
	t.Parallel()
	cfg, err := config.LoadFromReader(strings.NewReader(""))
	if err != nil {
		t.Fatalf("empty config should be valid: %v", err)
	}
	tr := cfg.Trigger
	if tr.SampleRate != 16000 || tr.FrameMs != 30 || tr.SilenceFrames != 30 || tr.MaxSegmentBytes != 500000 {
		t.Errorf("trigger defaults = %+v", tr)
	}
	if tr.Sensitivity() != 3 {
		t.Errorf("default sensitivity = %d, want 3", tr.Sensitivity())
	}
	if cfg.Providers.VAD.Name != "webrtc" || cfg.Providers.STT.Name != "vosk" {
		t.Errorf("provider defaults = %q/%q", cfg.Providers.VAD.Name, cfg.Providers.STT.Name)
	}
	if strings.HasPrefix(cfg.Providers.STT.Model, "~") || !strings.HasSuffix(cfg.Providers.STT.Model, "vosk-model-small-en-us-0.15") {
		t.Errorf("default model = %q, want expanded default vosk model", cfg.Providers.STT.Model)
	}
	if cfg.Server.LogLevel != config.LogInfo {
		t.Errorf("log_level = %q, want info", cfg.Server.LogLevel)
	}
}

func TestLoadFromReader_UnknownField(t *testing.T) {
	t.Parallel()
	_, err := config.LoadFromReader(strings.NewReader("trigger:\n  trigger_wrod: robot\n"))
	if err == nil {
		t.Fatal("expected error for unknown field")
	}
}

func TestValidate_Errors(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		yaml string
		want string
	}{
		{"log level", "server:\n  log_level: bananas\n", "log_level"},
		{"frame size", "trigger:\n  frame_ms: 25\n", "frame_ms"},
		{"sample rate", "trigger:\n  sample_rate: 48000\n", "sample_rate"},
		{"sensitivity high", "trigger:\n  vad_sensitivity: 4\n", "vad_sensitivity"},
		{"sensitivity negative", "trigger:\n  vad_sensitivity: -1\n", "vad_sensitivity"},
		{"silence frames", "trigger:\n  silence_frames: -2\n", "silence_frames"},
		{"ceiling", "trigger:\n  max_segment_bytes: -1\n", "max_segment_bytes"},
		{"unknown source", "trigger:\n  source: mic\n", "upstream dependency unresolvable"},
		{"duplicate source", "sources:\n  - {name: a, type: pcmfile}\n  - {name: a, type: miniaudio}\n", "duplicate"},
		{"source type", "sources:\n  - {name: a}\n", "type is required"},
		{"fallback name", "providers:\n  stt_fallbacks:\n    - model: x\n", "stt_fallbacks[0].name"},
		{"tls", "server:\n  tls:\n    cert_file: c.pem\n", "tls"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, err := config.LoadFromReader(strings.NewReader(tt.yaml))
			if err == nil {
				t.Fatal("expected error, got nil")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("error should mention %q, got: %v", tt.want, err)
			}
		})
	}
}

func TestValidate_JoinsAllErrors(t *testing.T) {
	t.Parallel()
	_, err := config.LoadFromReader(strings.NewReader("trigger:\n  frame_ms: 7\n  vad_sensitivity: 9\n"))
	if err == nil {
		t.Fatal("expected error")
	}
	if !strings.Contains(err.Error(), "frame_ms") || !strings.Contains(err.Error(), "vad_sensitivity") {
		t.Errorf("error should list both problems, got: %v", err)
	}
}

func TestLoad_File(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "triggermic.yaml")
	if err := os.WriteFile(path, []byte(fullYAML), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := config.Load(path); err != nil {
		t.Fatalf("Load: %v", err)
	}
	if _, err := config.Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestExpandHome(t *testing.T) {
	t.Parallel()
	home, err := os.UserHomeDir()
	if err != nil {
		t.Skipf("no home directory: %v", err)
	}
	tests := []struct {
		in, want string
	}{
		{"~/models/vosk", filepath.Join(home, "models/vosk")},
		{"~", home},
		{"/abs/path", "/abs/path"},
		{"rel/~/path", "rel/~/path"},
		{"~user/x", "~user/x"},
		{"", ""},
	}
	for _, tt := range tests {
		got, err := config.ExpandHome(tt.in)
		if err != nil {
			t.Errorf("ExpandHome(%q): %v", tt.in, err)
			continue
		}
		if got != tt.want {
			t.Errorf("ExpandHome(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestDecodeOptions(t *testing.T) {
	t.Parallel()
	type opts struct {
		Path     string `mapstructure:"path"`
		ChunkMs  int    `mapstructure:"chunk_ms"`
		Realtime bool   `mapstructure:"realtime"`
	}

	var got opts
	err := config.DecodeOptions(map[string]any{"path": "-", "Chunk-Ms": "40", "realtime": "true"}, &got)
	if err != nil {
		t.Fatalf("DecodeOptions: %v", err)
	}
	if got.Path != "-" || got.ChunkMs != 40 || !got.Realtime {
		t.Errorf("decoded = %+v", got)
	}

	if err := config.DecodeOptions(map[string]any{"pth": "x"}, &got); err == nil {
		t.Error("expected error for unused key")
	}
	if err := config.DecodeOptions(nil, &got); err != nil {
		t.Errorf("nil options: %v", err)
	}
}

func TestRegistry_Unknown(t *testing.T) {
	t.Parallel()
	reg := config.NewRegistry()
	if _, err := reg.CreateVAD(config.ProviderEntry{Name: "nope"}); !errors.Is(err, config.ErrProviderNotRegistered) {
		t.Errorf("CreateVAD err = %v, want ErrProviderNotRegistered", err)
	}
	if _, err := reg.CreateSTT(config.ProviderEntry{Name: "nope"}); !errors.Is(err, config.ErrProviderNotRegistered) {
		t.Errorf("CreateSTT err = %v, want ErrProviderNotRegistered", err)
	}
	if _, err := reg.CreateSource(config.SourceConfig{Name: "x", Type: "nope"}); !errors.Is(err, config.ErrProviderNotRegistered) {
		t.Errorf("CreateSource err = %v, want ErrProviderNotRegistered", err)
	}
}

func TestRegistry_Registered(t *testing.T) {
	t.Parallel()
	reg := config.NewRegistry()
	eng := &vadmock.Engine{}
	rec := &sttmock.Recognizer{}
	src := &audiomock.Source{}

	var gotEntry config.ProviderEntry
	reg.RegisterVAD("mock", func(config.ProviderEntry) (vad.Engine, error) { return eng, nil })
	reg.RegisterSTT("mock", func(e config.ProviderEntry) (stt.Recognizer, error) {
		gotEntry = e
		return rec, nil
	})
	reg.RegisterSource("mock", func(config.SourceConfig) (audio.Source, error) { return src, nil })

	if got, err := reg.CreateVAD(config.ProviderEntry{Name: "mock"}); err != nil || got != eng {
		t.Errorf("CreateVAD = %v, %v", got, err)
	}
	if got, err := reg.CreateSTT(config.ProviderEntry{Name: "mock", Model: "/m"}); err != nil || got != rec {
		t.Errorf("CreateSTT = %v, %v", got, err)
	}
	if gotEntry.Model != "/m" {
		t.Errorf("factory entry model = %q, want /m", gotEntry.Model)
	}
	if got, err := reg.CreateSource(config.SourceConfig{Name: "x", Type: "mock"}); err != nil || got != src {
		t.Errorf("CreateSource = %v, %v", got, err)
	}
	if names := reg.Names("stt"); len(names) != 1 || names[0] != "mock" {
		t.Errorf("Names(stt) = %v", names)
	}
}

func TestRegistry_FactoryError(t *testing.T) {
	t.Parallel()
	reg := config.NewRegistry()
	wantErr := errors.New("model missing")
	reg.RegisterSTT("broken", func(config.ProviderEntry) (stt.Recognizer, error) { return nil, wantErr })

	if _, err := reg.CreateSTT(config.ProviderEntry{Name: "broken"}); !errors.Is(err, wantErr) {
		t.Errorf("err = %v, want %v", err, wantErr)
	}
}
