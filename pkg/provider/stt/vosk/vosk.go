// Package vosk provides an offline [stt.Recognizer] backed by the Vosk speech
// recognition toolkit (github.com/alphacep/vosk-api/go).
//
// The acoustic model is loaded once and shared. Every Recognize call creates
// its own Vosk recognizer from the model, submits the whole segment as one
// waveform and reads the final result, so concurrent calls do not interfere.
// The libvosk shared library must be available at link and run time.
package vosk

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"

	vosk "github.com/alphacep/vosk-api/go"

	"github.com/MrWong99/triggermic/pkg/provider/stt"
)

// Compile-time assertion that Recognizer satisfies stt.Recognizer.
var _ stt.Recognizer = (*Recognizer)(nil)

// Option is a functional option for configuring a Recognizer.
type Option func(*Recognizer)

// WithLogLevel sets the global Vosk log level. Negative values silence the
// engine's own logging. Defaults to -1.
func WithLogLevel(level int) Option {
	return func(r *Recognizer) { r.logLevel = level }
}

// WithWords enables per-word detail in the engine's result payload.
func WithWords(enabled bool) Option {
	return func(r *Recognizer) { r.words = enabled }
}

// Recognizer implements stt.Recognizer with a shared Vosk model.
type Recognizer struct {
	logLevel int
	words    bool

	mu    sync.RWMutex
	model *vosk.VoskModel
}

// New loads the Vosk model directory at modelPath. The caller must call Close
// when the recognizer is no longer needed.
func New(modelPath string, opts ...Option) (*Recognizer, error) {
	if modelPath == "" {
		return nil, errors.New("vosk: modelPath must not be empty")
	}
	r := &Recognizer{logLevel: -1}
	for _, o := range opts {
		o(r)
	}
	if _, err := os.Stat(modelPath); err != nil {
		return nil, fmt.Errorf("vosk: model %q: %w", modelPath, err)
	}
	vosk.SetLogLevel(r.logLevel)
	model, err := vosk.NewModel(modelPath)
	if err != nil {
		return nil, fmt.Errorf("vosk: load model %q: %w", modelPath, err)
	}
	r.model = model
	return r, nil
}

// Recognize transcribes one segment. Failure to create the per-call Vosk
// recognizer is reported as [stt.ErrNoSession].
func (r *Recognizer) Recognize(ctx context.Context, pcm []byte, sampleRate int) (stt.Result, error) {
	if err := ctx.Err(); err != nil {
		return stt.Result{}, fmt.Errorf("vosk: %w", err)
	}

	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.model == nil {
		return stt.Result{}, fmt.Errorf("vosk: %w: model closed", stt.ErrNoSession)
	}

	rec, err := vosk.NewRecognizer(r.model, float64(sampleRate))
	if err != nil {
		return stt.Result{}, fmt.Errorf("vosk: %w: %v", stt.ErrNoSession, err)
	}
	defer rec.Free()
	if r.words {
		rec.SetWords(1)
	}

	if len(pcm) > 0 && rec.AcceptWaveform(pcm) < 0 {
		return stt.Result{}, errors.New("vosk: waveform rejected")
	}
	return stt.Result{Text: stt.TextField(rec.FinalResult())}, nil
}

// Close frees the model. It waits for in-flight recognitions to finish.
func (r *Recognizer) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.model != nil {
		r.model.Free()
		r.model = nil
	}
	return nil
}
