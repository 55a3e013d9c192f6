// Package webrtc provides a [vad.Engine] backed by the WebRTC voice activity
// detector (github.com/maxhawkins/go-webrtcvad).
//
// The detector accepts 16-bit mono PCM at 8, 16, 32 or 48 kHz in frames of
// 10, 20 or 30 ms. Mode 0 is the least aggressive about filtering out
// non-speech and mode 3 the most.
package webrtc

import (
	"errors"
	"fmt"
	"sync"

	webrtcvad "github.com/maxhawkins/go-webrtcvad"

	"github.com/MrWong99/triggermic/pkg/audio"
	"github.com/MrWong99/triggermic/pkg/provider/vad"
)

// Engine creates WebRTC classifiers. The zero value is ready to use.
type Engine struct{}

// Ensure Engine implements vad.Engine at compile time.
var _ vad.Engine = (*Engine)(nil)

// New returns a WebRTC VAD engine.
func New() *Engine { return &Engine{} }

// NewClassifier allocates a detector and applies cfg.Mode. The sample rate
// and frame length are checked against what the detector supports.
func (e *Engine) NewClassifier(cfg vad.Config) (vad.Classifier, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("webrtc vad: %w", err)
	}
	det, err := webrtcvad.New()
	if err != nil {
		return nil, fmt.Errorf("webrtc vad: create detector: %w", err)
	}
	if err := det.SetMode(cfg.Mode); err != nil {
		return nil, fmt.Errorf("webrtc vad: set mode %d: %w", cfg.Mode, err)
	}
	frameBytes := audio.FrameBytes(cfg.SampleRate, cfg.FrameSizeMs)
	if !det.ValidRateAndFrameLength(cfg.SampleRate, frameBytes/audio.BytesPerSample) {
		return nil, fmt.Errorf("webrtc vad: unsupported rate %d Hz with %d ms frames", cfg.SampleRate, cfg.FrameSizeMs)
	}
	return &classifier{det: det, rate: cfg.SampleRate, frameBytes: frameBytes}, nil
}

type classifier struct {
	mu         sync.Mutex
	det        *webrtcvad.VAD
	rate       int
	frameBytes int
}

func (c *classifier) IsSpeech(frame []byte) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.det == nil {
		return false, errors.New("webrtc vad: classifier closed")
	}
	if len(frame) != c.frameBytes {
		return false, fmt.Errorf("webrtc vad: frame is %d bytes, want %d", len(frame), c.frameBytes)
	}
	speech, err := c.det.Process(c.rate, frame)
	if err != nil {
		return false, fmt.Errorf("webrtc vad: process: %w", err)
	}
	return speech, nil
}

// Close drops the detector; its C state is released by the binding's
// finalizer.
func (c *classifier) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.det = nil
	return nil
}
