// Package stt defines the Recognizer interface for offline Speech-to-Text
// backends.
//
// A recognizer turns one complete utterance of raw PCM into text. It is a
// batch interface: the caller has already segmented the audio and submits a
// whole segment at once. Implementations create a fresh recognition session
// per call from a shared, read-only model, so Recognize is safe for concurrent
// use across streams.
//
// Engines that hold native resources also implement io.Closer.
package stt

import (
	"context"
	"errors"
	"strings"

	"github.com/tidwall/gjson"
)

// ErrNoSession is returned (wrapped) when a recognizer cannot create a
// recognition session for a segment. Callers treat it like any other
// recognition failure: the segment yields no text.
var ErrNoSession = errors.New("stt: cannot create recognition session")

// Result is the outcome of recognising one segment.
type Result struct {
	// Text is the transcribed speech. Empty means nothing was recognised.
	Text string
}

// Recognizer is the abstraction over any offline STT backend.
type Recognizer interface {
	// Recognize transcribes pcm, which is 16-bit signed little-endian mono
	// audio at sampleRate Hz. A result with empty Text is not an error.
	Recognize(ctx context.Context, pcm []byte, sampleRate int) (Result, error)
}

// TextField extracts the "text" member from an engine's JSON result payload.
// A missing or non-string field, or a payload that is not JSON, yields "".
func TextField(raw []byte) string {
	if !gjson.ValidBytes(raw) {
		return ""
	}
	v := gjson.GetBytes(raw, "text")
	if v.Type != gjson.String {
		return ""
	}
	return strings.TrimSpace(v.Str)
}
