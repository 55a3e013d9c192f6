package stt_test

import (
	"testing"

	"github.com/MrWong99/triggermic/pkg/provider/stt"
)

func TestTextField(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		raw  string
		want string
	}{
		{"vosk final", `{"text" : "wake up robot"}`, "wake up robot"},
		{"whisper server", `{"text":" Hello there.\n"}`, "Hello there."},
		{"empty text", `{"text" : ""}`, ""},
		{"missing field", `{"partial" : "wake"}`, ""},
		{"non-string", `{"text" : 42}`, ""},
		{"not json", `wake up`, ""},
		{"empty payload", ``, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := stt.TextField([]byte(tt.raw)); got != tt.want {
				t.Errorf("TextField(%q) = %q, want %q", tt.raw, got, tt.want)
			}
		})
	}
}
