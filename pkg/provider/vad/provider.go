// Package vad defines the Engine interface for Voice Activity Detection backends.
//
// A VAD engine wraps a frame-level speech detector (WebRTC VAD, a simple energy
// gate, or a test double) and surfaces it as a per-stream [Classifier]. A
// classifier may keep internal state, so each audio stream owns its own
// instance and multiple concurrent streams are processed independently.
//
// Classification is synchronous: IsSpeech returns immediately with a decision,
// making it suitable for the per-frame loop that gates speech recognition.
//
// Engines must be safe for concurrent use. A single Classifier must not be
// shared across goroutines.
package vad

import "fmt"

// Sensitivity bounds. Higher modes are more aggressive about rejecting
// non-speech, i.e. less sensitive to noise.
const (
	MinMode     = 0
	MaxMode     = 3
	DefaultMode = MaxMode
)

// Config holds the parameters for a classifier.
type Config struct {
	// SampleRate is the audio sample rate in Hz. Must match the rate of the PCM
	// frames passed to IsSpeech.
	SampleRate int

	// FrameSizeMs is the duration of each audio frame in milliseconds. Engines
	// typically accept 10, 20 or 30 ms.
	FrameSizeMs int

	// Mode is the classification sensitivity in [MinMode, MaxMode].
	Mode int
}

// Validate reports whether cfg is structurally usable. Engines may impose
// further restrictions.
func (c Config) Validate() error {
	if c.SampleRate <= 0 {
		return fmt.Errorf("vad: sample rate must be positive, got %d", c.SampleRate)
	}
	switch c.FrameSizeMs {
	case 10, 20, 30:
	default:
		return fmt.Errorf("vad: frame size must be 10, 20 or 30 ms, got %d", c.FrameSizeMs)
	}
	if c.Mode < MinMode || c.Mode > MaxMode {
		return fmt.Errorf("vad: mode must be in [%d, %d], got %d", MinMode, MaxMode, c.Mode)
	}
	return nil
}

// Classifier decides whether a single PCM frame contains speech.
type Classifier interface {
	// IsSpeech analyses one frame of raw little-endian PCM16 at the configured
	// sample rate and frame size. Returns an error if the frame has the wrong
	// length or the engine fails internally.
	IsSpeech(frame []byte) (bool, error)

	// Close releases all resources associated with the classifier. Calling
	// Close more than once is safe and returns nil.
	Close() error
}

// Engine is the factory for classifiers. It is the top-level interface
// implemented by each VAD backend.
type Engine interface {
	// NewClassifier creates a classifier configured with cfg. Returns an error
	// if the configuration is rejected by the engine.
	NewClassifier(cfg Config) (Classifier, error)
}
