// Package mock provides an in-memory implementation of [audio.Source] for use
// in unit tests.
//
// The mock is safe for concurrent use. It records every Stream call so that
// tests can assert on the request that reached the upstream, and it exposes
// exported fields that control what the mock delivers.
//
// Typical usage:
//
//	src := &mock.Source{Chunks: []audio.Chunk{{Data: pcm}}}
//	err := src.Stream(ctx, audio.StreamRequest{}, func(c audio.Chunk) bool {
//	    got = append(got, c)
//	    return true
//	})
package mock

import (
	"context"
	"sync"

	"github.com/MrWong99/triggermic/pkg/audio"
)

// Source is a mock implementation of [audio.Source]. Every Stream call
// delivers Chunks in order.
type Source struct {
	mu sync.Mutex

	// Chunks is delivered, in order, by every Stream call.
	Chunks []audio.Chunk

	// StreamErr, if non-nil, is returned by Stream after all chunks have been
	// delivered (or immediately when StreamErrFirst is set).
	StreamErr error

	// StreamErrFirst makes Stream return StreamErr without delivering chunks.
	StreamErrFirst bool

	// PropertiesResult is returned by Properties. Zero means
	// [audio.DefaultProperties].
	PropertiesResult audio.Properties

	// PropertiesErr is returned by Properties.
	PropertiesErr error

	// --- Call records ---

	// StreamCalls records the request of every Stream call in order.
	StreamCalls []audio.StreamRequest

	// Delivered is the total number of chunks passed to accept functions.
	Delivered int

	// Rejected is the number of Stream calls stopped by accept returning false.
	Rejected int
}

// Stream implements [audio.Source].
func (s *Source) Stream(ctx context.Context, req audio.StreamRequest, accept audio.AcceptFunc) error {
	s.mu.Lock()
	s.StreamCalls = append(s.StreamCalls, req)
	chunks := make([]audio.Chunk, len(s.Chunks))
	copy(chunks, s.Chunks)
	streamErr, errFirst := s.StreamErr, s.StreamErrFirst
	s.mu.Unlock()

	if errFirst {
		return streamErr
	}

	for _, c := range chunks {
		if err := ctx.Err(); err != nil {
			return err
		}
		s.mu.Lock()
		s.Delivered++
		s.mu.Unlock()
		if !accept(c) {
			s.mu.Lock()
			s.Rejected++
			s.mu.Unlock()
			return nil
		}
	}
	return streamErr
}

// Properties implements [audio.Source].
func (s *Source) Properties(_ context.Context) (audio.Properties, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.PropertiesErr != nil {
		return audio.Properties{}, s.PropertiesErr
	}
	if s.PropertiesResult == (audio.Properties{}) {
		return audio.DefaultProperties(), nil
	}
	return s.PropertiesResult, nil
}

// StreamCallCount returns the number of Stream calls. Thread-safe.
func (s *Source) StreamCallCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.StreamCalls)
}

// Requests returns a copy of the recorded Stream requests. Thread-safe.
func (s *Source) Requests() []audio.StreamRequest {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]audio.StreamRequest, len(s.StreamCalls))
	copy(out, s.StreamCalls)
	return out
}

// DeliveredCount returns the number of chunks handed to accept. Thread-safe.
func (s *Source) DeliveredCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.Delivered
}

// Ensure Source implements audio.Source at compile time.
var _ audio.Source = (*Source)(nil)
