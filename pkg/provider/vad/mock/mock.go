// Package mock provides test doubles for the vad package interfaces.
//
// Use Engine to verify that classifiers are created with the expected Config.
// Use Classifier to script speech decisions and inspect the frames that were
// submitted for classification.
//
// By default a Classifier reports speech for any frame that contains a
// non-zero byte, so tests can build speech from non-zero PCM and silence from
// zeroed buffers.
//
// Example:
//
//	eng := &mock.Engine{}
//	c, _ := eng.NewClassifier(cfg)
//	speech, _ := c.IsSpeech(frame)
package mock

import (
	"sync"

	"github.com/MrWong99/triggermic/pkg/provider/vad"
)

// NewClassifierCall records a single invocation of Engine.NewClassifier.
type NewClassifierCall struct {
	// Cfg is the Config passed to NewClassifier.
	Cfg vad.Config
}

// Engine is a mock implementation of vad.Engine.
type Engine struct {
	mu sync.Mutex

	// Classifier is returned by NewClassifier. If nil, NewClassifier returns a
	// new default Classifier per call.
	Classifier vad.Classifier

	// SpeechFunc, if set, is installed on every default Classifier created.
	SpeechFunc func(frame []byte) (bool, error)

	// NewClassifierErr, if non-nil, is returned as the error from NewClassifier.
	NewClassifierErr error

	// NewClassifierCalls records every call to NewClassifier in order.
	NewClassifierCalls []NewClassifierCall

	// Created holds every default Classifier handed out, in order.
	Created []*Classifier
}

// NewClassifier records the call and returns Classifier, NewClassifierErr.
func (e *Engine) NewClassifier(cfg vad.Config) (vad.Classifier, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.NewClassifierCalls = append(e.NewClassifierCalls, NewClassifierCall{Cfg: cfg})
	if e.NewClassifierErr != nil {
		return nil, e.NewClassifierErr
	}
	if e.Classifier != nil {
		return e.Classifier, nil
	}
	c := &Classifier{SpeechFunc: e.SpeechFunc}
	e.Created = append(e.Created, c)
	return c, nil
}

// CallCount returns the number of NewClassifier calls. Thread-safe.
func (e *Engine) CallCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.NewClassifierCalls)
}

// Reset clears all recorded calls. Thread-safe.
func (e *Engine) Reset() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.NewClassifierCalls = nil
	e.Created = nil
}

// Ensure Engine implements vad.Engine at compile time.
var _ vad.Engine = (*Engine)(nil)

// Classifier is a mock implementation of vad.Classifier.
type Classifier struct {
	mu sync.Mutex

	// SpeechFunc decides each frame. If nil, any non-zero byte means speech.
	SpeechFunc func(frame []byte) (bool, error)

	// Frames counts IsSpeech calls.
	Frames int

	// CloseCount counts Close calls.
	CloseCount int
}

// IsSpeech records the call and applies SpeechFunc.
func (c *Classifier) IsSpeech(frame []byte) (bool, error) {
	c.mu.Lock()
	c.Frames++
	fn := c.SpeechFunc
	c.mu.Unlock()
	if fn != nil {
		return fn(frame)
	}
	for _, b := range frame {
		if b != 0 {
			return true, nil
		}
	}
	return false, nil
}

// Close records the call.
func (c *Classifier) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.CloseCount++
	return nil
}

// FrameCount returns the number of classified frames. Thread-safe.
func (c *Classifier) FrameCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.Frames
}

// Closed reports whether Close has been called. Thread-safe.
func (c *Classifier) Closed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.CloseCount > 0
}

// Ensure Classifier implements vad.Classifier at compile time.
var _ vad.Classifier = (*Classifier)(nil)
