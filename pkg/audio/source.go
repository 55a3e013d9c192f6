// Package audio defines the chunked audio [Source] contract shared by the
// trigger mic, its upstream audio sources and its downstream consumers.
//
// A Source pushes [Chunk] values to a caller-supplied [AcceptFunc]. The call
// is synchronous: a Source must wait for AcceptFunc to return before it
// delivers the next chunk, which gives strict backpressure without a queue
// between producer and consumer. AcceptFunc returning false means the consumer
// is done; the Source stops reading and Stream returns nil.
//
// This package lives under pkg/ because external code is expected to provide
// additional Source implementations.
package audio

import (
	"context"
	"time"
)

// AcceptFunc receives ownership of one chunk and reports whether streaming
// should continue.
type AcceptFunc func(Chunk) bool

// StreamRequest carries the parameters of a single [Source.Stream] call.
type StreamRequest struct {
	// Codec identifies the requested encoding (e.g. [CodecPCM16]).
	Codec string

	// Duration bounds the amount of audio to deliver. Zero means continuous.
	Duration time.Duration

	// PreviousTimestamp resumes delivery after this stream offset. Zero means
	// from the start.
	PreviousTimestamp time.Duration

	// Extra is an opaque options payload forwarded unchanged.
	Extra map[string]any
}

// Source produces a stream of audio chunks.
//
// Implementations must be safe for concurrent Stream calls; each call is an
// independent streaming session.
type Source interface {
	// Stream delivers chunks to accept until the audio ends, req.Duration is
	// reached, ctx is cancelled, or accept returns false. Consumer
	// cancellation is not an error.
	Stream(ctx context.Context, req StreamRequest, accept AcceptFunc) error

	// Properties reports the format of the chunks Stream delivers.
	Properties(ctx context.Context) (Properties, error)
}
