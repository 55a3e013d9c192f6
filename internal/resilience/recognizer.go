package resilience

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/MrWong99/triggermic/pkg/provider/stt"
)

// Recognizer implements [stt.Recognizer] with a circuit breaker per engine and
// optional failover to further engines. When every engine fails or is open the
// call fails, and the caller treats the segment as untriggered.
type Recognizer struct {
	group *FallbackGroup[stt.Recognizer]
}

// Compile-time interface assertion.
var _ stt.Recognizer = (*Recognizer)(nil)

// NewRecognizer wraps primary with a breaker configured by cfg.
func NewRecognizer(primary stt.Recognizer, primaryName string, cfg CircuitBreakerConfig) *Recognizer {
	return &Recognizer{group: NewFallbackGroup(primary, primaryName, cfg)}
}

// AddFallback registers an additional recognizer tried after the primary.
func (r *Recognizer) AddFallback(name string, rec stt.Recognizer) {
	r.group.AddFallback(name, rec)
}

// Recognize transcribes pcm on the first healthy engine.
func (r *Recognizer) Recognize(ctx context.Context, pcm []byte, sampleRate int) (stt.Result, error) {
	res, _, err := ExecuteWithResult(ctx, r.group, func(ctx context.Context, rec stt.Recognizer) (stt.Result, error) {
		return rec.Recognize(ctx, pcm, sampleRate)
	})
	return res, err
}

// Available reports whether at least one engine's breaker is not open.
func (r *Recognizer) Available() bool {
	for _, cb := range r.group.Breakers() {
		if cb.State() != StateOpen {
			return true
		}
	}
	return false
}

// Check is a readiness probe: it fails when every engine's breaker is open.
func (r *Recognizer) Check(context.Context) error {
	if r.Available() {
		return nil
	}
	return fmt.Errorf("recognizer: %w", ErrCircuitOpen)
}

// Breakers returns the per-engine breakers in order.
func (r *Recognizer) Breakers() []*CircuitBreaker { return r.group.Breakers() }

// Close closes every wrapped engine that implements io.Closer.
func (r *Recognizer) Close() error {
	var errs []error
	for _, rec := range r.group.Values() {
		if c, ok := rec.(io.Closer); ok {
			if err := c.Close(); err != nil {
				errs = append(errs, err)
			}
		}
	}
	return errors.Join(errs...)
}
