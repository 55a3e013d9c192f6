// Package mock provides test doubles for the stt package interfaces.
//
// Use Recognizer to return controlled text and inspect which segments were
// submitted for recognition.
//
// Example:
//
//	rec := &mock.Recognizer{Text: "please wake up robot"}
//	res, _ := rec.Recognize(ctx, pcm, 16000)
package mock

import (
	"context"
	"sync"

	"github.com/MrWong99/triggermic/pkg/provider/stt"
)

// RecognizeCall records a single invocation of Recognizer.Recognize.
type RecognizeCall struct {
	// PCM is a copy of the audio passed to Recognize.
	PCM []byte
	// SampleRate is the rate passed to Recognize.
	SampleRate int
}

// Recognizer is a mock implementation of stt.Recognizer.
type Recognizer struct {
	mu sync.Mutex

	// Text is returned by every call unless Texts or TextFunc is set.
	Text string

	// Texts, if non-empty, is consumed one entry per call. When exhausted,
	// Text is returned.
	Texts []string

	// TextFunc, if set, decides the result for each call.
	TextFunc func(pcm []byte) (string, error)

	// Err, if non-nil, is returned by every call.
	Err error

	// Calls records every call to Recognize in order.
	Calls []RecognizeCall

	// Closed counts Close calls.
	Closed int
}

// Recognize records the call and returns the scripted result.
func (r *Recognizer) Recognize(ctx context.Context, pcm []byte, sampleRate int) (stt.Result, error) {
	r.mu.Lock()
	cp := make([]byte, len(pcm))
	copy(cp, pcm)
	r.Calls = append(r.Calls, RecognizeCall{PCM: cp, SampleRate: sampleRate})
	if r.Err != nil {
		err := r.Err
		r.mu.Unlock()
		return stt.Result{}, err
	}
	fn := r.TextFunc
	text := r.Text
	if len(r.Texts) > 0 {
		text = r.Texts[0]
		r.Texts = r.Texts[1:]
	}
	r.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return stt.Result{}, err
	}
	if fn != nil {
		t, err := fn(pcm)
		return stt.Result{Text: t}, err
	}
	return stt.Result{Text: text}, nil
}

// Close records the call.
func (r *Recognizer) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Closed++
	return nil
}

// CallCount returns the number of Recognize calls. Thread-safe.
func (r *Recognizer) CallCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.Calls)
}

// CallsSnapshot returns a copy of the recorded calls. Thread-safe.
func (r *Recognizer) CallsSnapshot() []RecognizeCall {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]RecognizeCall, len(r.Calls))
	copy(out, r.Calls)
	return out
}

// Ensure Recognizer implements stt.Recognizer at compile time.
var _ stt.Recognizer = (*Recognizer)(nil)
