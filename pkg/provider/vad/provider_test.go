package vad_test

import (
	"testing"

	"github.com/MrWong99/triggermic/pkg/provider/vad"
)

func TestConfigValidate(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name    string
		cfg     vad.Config
		wantErr bool
	}{
		{"default", vad.Config{SampleRate: 16000, FrameSizeMs: 30, Mode: vad.DefaultMode}, false},
		{"10ms mode 0", vad.Config{SampleRate: 8000, FrameSizeMs: 10, Mode: 0}, false},
		{"zero rate", vad.Config{FrameSizeMs: 30}, true},
		{"15ms", vad.Config{SampleRate: 16000, FrameSizeMs: 15}, true},
		{"mode 4", vad.Config{SampleRate: 16000, FrameSizeMs: 30, Mode: 4}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			err := tt.cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}
