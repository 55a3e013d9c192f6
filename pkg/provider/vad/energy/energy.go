// Package energy provides a dependency-free [vad.Engine] that classifies a
// frame as speech when its RMS energy exceeds a mode-dependent threshold.
//
// It is far less robust than a trained detector against steady background
// noise, but needs no native library and behaves deterministically, which
// makes it useful for piped or synthetic audio.
package energy

import (
	"fmt"

	"github.com/MrWong99/triggermic/pkg/audio"
	"github.com/MrWong99/triggermic/pkg/provider/vad"
)

// Thresholds maps each mode to the RMS level (in PCM16 sample units) above
// which a frame counts as speech.
var Thresholds = [vad.MaxMode + 1]float64{200, 400, 700, 1000}

// Engine creates energy classifiers. The zero value is ready to use.
type Engine struct{}

// Ensure Engine implements vad.Engine at compile time.
var _ vad.Engine = (*Engine)(nil)

// New returns an energy VAD engine.
func New() *Engine { return &Engine{} }

// NewClassifier validates cfg and returns a classifier for it.
func (e *Engine) NewClassifier(cfg vad.Config) (vad.Classifier, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("energy vad: %w", err)
	}
	return &classifier{
		threshold:  Thresholds[cfg.Mode],
		frameBytes: audio.FrameBytes(cfg.SampleRate, cfg.FrameSizeMs),
	}, nil
}

type classifier struct {
	threshold  float64
	frameBytes int
}

func (c *classifier) IsSpeech(frame []byte) (bool, error) {
	if len(frame) != c.frameBytes {
		return false, fmt.Errorf("energy vad: frame is %d bytes, want %d", len(frame), c.frameBytes)
	}
	return audio.ComputeRMS(frame) > c.threshold, nil
}

func (c *classifier) Close() error { return nil }
