// Package filter implements the trigger mic: an [audio.Source] that sits in
// front of another source and forwards only the utterances that contain a
// configured trigger word.
//
// Each Stream call is one session. The session owns a voice activity
// classifier and a [segment.State]; upstream chunks are grouped into segments
// by [segment.Step], each resolved segment is transcribed once by the shared
// recognizer, and a segment whose transcript contains the trigger word is
// handed to the consumer chunk by chunk in arrival order. Everything else is
// discarded, including every segment whose recognition failed.
//
// The consumer ends a session by returning false from its accept function.
// The session then stops reading from the upstream and Stream returns nil.
// Cancelling the context ends it with the context's error.
package filter

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/MrWong99/triggermic/internal/observe"
	"github.com/MrWong99/triggermic/internal/segment"
	"github.com/MrWong99/triggermic/internal/trigger"
	"github.com/MrWong99/triggermic/pkg/audio"
	"github.com/MrWong99/triggermic/pkg/provider/stt"
	"github.com/MrWong99/triggermic/pkg/provider/vad"
)

var (
	// ErrUnsupportedCommand is returned by [Filter.DoCommand] for every command.
	ErrUnsupportedCommand = errors.New("filter: unsupported command")

	// ErrNoUpstream is logged when a session starts without an upstream source.
	ErrNoUpstream = errors.New("filter: no upstream source configured")

	// ErrUpstreamUnresolvable is returned by [New] when a source is named in
	// the configuration but no source was supplied for it.
	ErrUpstreamUnresolvable = errors.New("filter: upstream dependency unresolvable")
)

// Defaults for a 16 kHz mono pipeline with 30 ms frames.
const (
	DefaultSampleRate      = audio.DefaultSampleRate
	DefaultFrameMs         = 30
	DefaultSilenceFrames   = segment.DefaultSilenceFrames
	DefaultMaxSegmentBytes = segment.DefaultMaxBytes
)

// Config is the already-validated configuration of a trigger mic.
type Config struct {
	// TriggerWord is matched case-insensitively as a substring of each
	// transcript. Empty disables triggering.
	TriggerWord string

	// Source names the upstream source. Empty means no upstream: sessions
	// log an error and deliver nothing.
	Source string

	// SampleRate of the upstream audio and of the recognizer input. Only
	// [DefaultSampleRate] is accepted.
	SampleRate int

	// FrameMs is the classifier frame duration: 10, 20 or 30.
	FrameMs int

	// SilenceFrames is the run of non-speech frames that ends a segment.
	SilenceFrames int

	// MaxSegmentBytes is the overflow ceiling. A segment is force-checked
	// once it holds more than this many bytes.
	MaxSegmentBytes int

	// Sensitivity is the classifier mode in [vad.MinMode, vad.MaxMode].
	Sensitivity int

	// FlushOnEnd evaluates a pending segment when the upstream ends by itself
	// instead of dropping it.
	FlushOnEnd bool
}

// DefaultConfig returns a Config with every default applied and triggering
// disabled.
func DefaultConfig() Config {
	return Config{
		SampleRate:      DefaultSampleRate,
		FrameMs:         DefaultFrameMs,
		SilenceFrames:   DefaultSilenceFrames,
		MaxSegmentBytes: DefaultMaxSegmentBytes,
		Sensitivity:     vad.DefaultMode,
	}
}

// withDefaults fills zero numeric fields. Sensitivity is left alone because
// mode 0 is a valid choice.
func (c Config) withDefaults() Config {
	if c.SampleRate == 0 {
		c.SampleRate = DefaultSampleRate
	}
	if c.FrameMs == 0 {
		c.FrameMs = DefaultFrameMs
	}
	if c.SilenceFrames == 0 {
		c.SilenceFrames = DefaultSilenceFrames
	}
	if c.MaxSegmentBytes == 0 {
		c.MaxSegmentBytes = DefaultMaxSegmentBytes
	}
	c.TriggerWord = trigger.Word(c.TriggerWord)
	return c
}

func (c Config) vadConfig() vad.Config {
	return vad.Config{SampleRate: c.SampleRate, FrameSizeMs: c.FrameMs, Mode: c.Sensitivity}
}

func (c Config) params() segment.Params {
	return segment.Params{
		FrameBytes:    audio.FrameBytes(c.SampleRate, c.FrameMs),
		SilenceFrames: c.SilenceFrames,
		MaxBytes:      c.MaxSegmentBytes,
	}
}

// Validate checks every field and reports all problems at once.
func (c Config) Validate() error {
	var errs []error
	if c.SampleRate != DefaultSampleRate {
		errs = append(errs, fmt.Errorf("filter: sample rate %d is unsupported, want %d", c.SampleRate, DefaultSampleRate))
	}
	if err := c.vadConfig().Validate(); err != nil {
		errs = append(errs, err)
	}
	if c.SilenceFrames < 1 {
		errs = append(errs, fmt.Errorf("filter: silence frames must be at least 1, got %d", c.SilenceFrames))
	}
	if c.MaxSegmentBytes < 1 {
		errs = append(errs, fmt.Errorf("filter: max segment bytes must be positive, got %d", c.MaxSegmentBytes))
	}
	return errors.Join(errs...)
}

// Deps are the collaborators a [Filter] is built from.
type Deps struct {
	// Upstream delivers the raw audio. May be nil when Config.Source is empty.
	Upstream audio.Source

	// VAD creates one classifier per session.
	VAD vad.Engine

	// OpenRecognizer loads the recognizer model. The filter owns the result:
	// if it implements io.Closer it is closed by [Filter.Close], or right away
	// when construction fails.
	OpenRecognizer func(ctx context.Context) (stt.Recognizer, error)

	// RecognizerName labels recognition metrics. Default: "recognizer".
	RecognizerName string
}

// Option configures a [Filter].
type Option func(*Filter)

// WithMetrics overrides the metrics instance. Default: [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(f *Filter) { f.metrics = m }
}

// Geometry describes a physical footprint. The trigger mic has none.
type Geometry struct {
	Label string
}

// Filter is the trigger mic. It is safe for concurrent Stream calls.
type Filter struct {
	// mu guards cfg.
	mu  sync.RWMutex
	cfg Config

	upstream audio.Source
	vad      vad.Engine
	rec      stt.Recognizer
	recName  string
	metrics  *observe.Metrics

	closers   closerStack
	closeOnce sync.Once
	closeErr  error
}

// Ensure Filter implements audio.Source at compile time.
var _ audio.Source = (*Filter)(nil)

// New builds a Filter. Construction either succeeds completely or releases
// everything it acquired before returning the error: the classifier engine is
// probed with cfg first, then the recognizer model is loaded, then the
// upstream is resolved.
func New(ctx context.Context, cfg Config, deps Deps, opts ...Option) (*Filter, error) {
	cfg = cfg.withDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if deps.VAD == nil {
		return nil, errors.New("filter: vad engine is required")
	}
	if deps.OpenRecognizer == nil {
		return nil, errors.New("filter: recognizer is required")
	}

	f := &Filter{
		cfg:      cfg,
		upstream: deps.Upstream,
		vad:      deps.VAD,
		recName:  deps.RecognizerName,
	}
	if f.recName == "" {
		f.recName = "recognizer"
	}
	for _, opt := range opts {
		opt(f)
	}
	if f.metrics == nil {
		f.metrics = observe.DefaultMetrics()
	}

	var acquired closerStack
	ok := false
	defer func() {
		if !ok {
			_ = acquired.unwind()
		}
	}()

	probe, err := deps.VAD.NewClassifier(cfg.vadConfig())
	if err != nil {
		return nil, fmt.Errorf("filter: configure vad: %w", err)
	}
	acquired.push(probe.Close)

	rec, err := deps.OpenRecognizer(ctx)
	if err != nil {
		return nil, fmt.Errorf("filter: load recognizer: %w", err)
	}
	if c, isCloser := rec.(io.Closer); isCloser {
		acquired.push(c.Close)
	}
	f.rec = rec

	if cfg.Source != "" && deps.Upstream == nil {
		return nil, fmt.Errorf("filter: source %q: %w", cfg.Source, ErrUpstreamUnresolvable)
	}

	// The probe only proves the engine accepts cfg; sessions create their own.
	acquired = acquired[1:]
	if err := probe.Close(); err != nil {
		return nil, fmt.Errorf("filter: close vad probe: %w", err)
	}

	ok = true
	f.closers = acquired
	return f, nil
}

// TriggerWord returns the lower-cased trigger word.
func (f *Filter) TriggerWord() string {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.cfg.TriggerWord
}

// Config returns a copy of the current configuration.
func (f *Filter) Config() Config {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.cfg
}

// Reconfigure applies the hot-reloadable fields of cfg: trigger word,
// sensitivity, silence frames and flush-on-end. The trigger word takes effect
// at the next evaluation; the other fields at the next session. Changes to
// the source, sample rate, frame size or ceiling require a restart and are
// ignored with a warning.
func (f *Filter) Reconfigure(cfg Config) error {
	cfg = cfg.withDefaults()
	if err := cfg.Validate(); err != nil {
		return err
	}
	probe, err := f.vad.NewClassifier(cfg.vadConfig())
	if err != nil {
		return fmt.Errorf("filter: reconfigure vad: %w", err)
	}
	_ = probe.Close()

	f.mu.Lock()
	defer f.mu.Unlock()
	if cfg.Source != f.cfg.Source || cfg.SampleRate != f.cfg.SampleRate ||
		cfg.FrameMs != f.cfg.FrameMs || cfg.MaxSegmentBytes != f.cfg.MaxSegmentBytes {
		observe.Logger(context.Background()).Warn("trigger mic: ignoring fields that require a restart",
			"source", cfg.Source, "sample_rate", cfg.SampleRate, "frame_ms", cfg.FrameMs,
			"max_segment_bytes", cfg.MaxSegmentBytes)
	}
	f.cfg.TriggerWord = cfg.TriggerWord
	f.cfg.Sensitivity = cfg.Sensitivity
	f.cfg.SilenceFrames = cfg.SilenceFrames
	f.cfg.FlushOnEnd = cfg.FlushOnEnd
	return nil
}

// Properties reports the upstream's format, or the pipeline default when no
// upstream is configured.
func (f *Filter) Properties(ctx context.Context) (audio.Properties, error) {
	if f.upstream == nil {
		return audio.DefaultProperties(), nil
	}
	props, err := f.upstream.Properties(ctx)
	if err != nil {
		return audio.Properties{}, fmt.Errorf("filter: upstream properties: %w", err)
	}
	return props, nil
}

// Geometries returns an empty set.
func (f *Filter) Geometries(context.Context) ([]Geometry, error) {
	return []Geometry{}, nil
}

// DoCommand rejects every command.
func (f *Filter) DoCommand(context.Context, map[string]any) (map[string]any, error) {
	return nil, ErrUnsupportedCommand
}

// Close releases the recognizer model. It is safe to call more than once.
func (f *Filter) Close() error {
	f.closeOnce.Do(func() {
		f.closeErr = f.closers.unwind()
	})
	return f.closeErr
}

// Stream implements [audio.Source]. It runs one session against the upstream
// and forwards the chunks of every triggered segment to accept. Only the codec
// and extra fields of req reach the upstream.
func (f *Filter) Stream(ctx context.Context, req audio.StreamRequest, accept audio.AcceptFunc) error {
	if f.upstream == nil {
		observe.Logger(ctx).Error("trigger mic: cannot stream", "err", ErrNoUpstream)
		return nil
	}

	cfg := f.Config()
	ctx = observe.WithLogAttrs(ctx, "session_id", uuid.NewString(), "source", cfg.Source)
	log := observe.Logger(ctx)

	cls, err := f.vad.NewClassifier(cfg.vadConfig())
	if err != nil {
		return fmt.Errorf("filter: create classifier: %w", err)
	}
	defer cls.Close()

	f.metrics.ActiveSessions.Add(ctx, 1)
	defer f.metrics.ActiveSessions.Add(context.WithoutCancel(ctx), -1)

	classifyFailed := false
	classify := func(frame []byte) bool {
		speech, err := cls.IsSpeech(frame)
		if err != nil {
			if !classifyFailed {
				log.Warn("trigger mic: classifier failed, treating frames as non-speech", "err", err)
				classifyFailed = true
			}
			return false
		}
		return speech
	}

	st := segment.NewState()
	params := cfg.params()
	stopped := false
	handle := func(chunk audio.Chunk) bool {
		if ctx.Err() != nil {
			return false
		}
		out := segment.Step(st, chunk, classify, params)
		if out.Misaligned {
			f.metrics.ChunksMisaligned.Add(ctx, 1)
			log.Warn("trigger mic: chunk length is not sample aligned", "bytes", len(chunk.Data))
		}
		if out.Started {
			log.Debug("trigger mic: speech started", "timestamp", chunk.Timestamp)
		}
		if out.Segment == nil {
			return true
		}
		switch out.Segment.Reason {
		case segment.ReasonSilence:
			log.Debug("trigger mic: speech ended", "silent_frames", out.SilentFrames)
		case segment.ReasonOverflow:
			log.Warn("trigger mic: segment exceeded ceiling, forcing check",
				"bytes", len(out.Segment.PCM), "max_bytes", params.MaxBytes)
		}
		if !f.Evaluate(ctx, out.Segment, accept) {
			stopped = true
			return false
		}
		return true
	}

	// The upstream always runs continuously from now; the caller's duration
	// and resume point do not bound the raw audio.
	upReq := audio.StreamRequest{Codec: req.Codec, Extra: req.Extra}
	upErr := f.upstream.Stream(ctx, upReq, handle)
	if err := ctx.Err(); err != nil {
		return err
	}
	if stopped {
		return nil
	}
	if upErr != nil {
		return fmt.Errorf("filter: upstream: %w", upErr)
	}
	if cfg.FlushOnEnd {
		if seg := st.Flush(); seg != nil {
			log.Debug("trigger mic: upstream ended with a pending segment", "chunks", len(seg.Chunks))
			f.Evaluate(ctx, seg, accept)
		}
	}
	return nil
}

// Evaluate transcribes seg and, if the transcript contains the trigger word,
// passes every chunk of seg to accept in order. It reports false when the
// consumer asked to stop, in which case no further chunk is passed. A failed
// recognition discards the segment.
func (f *Filter) Evaluate(ctx context.Context, seg *segment.Segment, accept audio.AcceptFunc) bool {
	if seg == nil || len(seg.Chunks) == 0 {
		return true
	}
	ctx, span := observe.StartSpan(ctx, "filter.evaluate", trace.WithAttributes(
		attribute.Int("segment.bytes", len(seg.PCM)),
		attribute.Int("segment.chunks", len(seg.Chunks)),
		attribute.String("segment.reason", seg.Reason.String()),
	))
	defer span.End()
	log := observe.Logger(ctx)

	f.metrics.RecordSegment(ctx, seg.Reason.String())
	cfg := f.Config()

	start := time.Now()
	res, err := f.rec.Recognize(ctx, seg.PCM, cfg.SampleRate)
	f.metrics.RecordRecognition(ctx, f.recName, time.Since(start), err)
	if err != nil {
		span.RecordError(err)
		span.SetAttributes(attribute.Bool("trigger.matched", false))
		log.Error("trigger mic: recognition failed, discarding segment",
			"err", err, "chunks", len(seg.Chunks))
		return true
	}

	text := trigger.Normalize(res.Text)
	log.Debug("trigger mic: recognized", "text", text)
	matched := trigger.Matches(text, cfg.TriggerWord)
	span.SetAttributes(attribute.Bool("trigger.matched", matched))
	if !matched {
		log.Debug("trigger mic: no trigger", "chunks", len(seg.Chunks))
		return true
	}

	f.metrics.Triggers.Add(ctx, 1)
	log.Info("trigger mic: trigger detected", "trigger_word", cfg.TriggerWord, "text", text)

	forwarded := 0
	defer func() { f.metrics.ChunksForwarded.Add(ctx, int64(forwarded)) }()
	for _, c := range seg.Chunks {
		if ctx.Err() != nil {
			return false
		}
		forwarded++
		if !accept(c) {
			log.Info("trigger mic: consumer stopped the session", "forwarded", forwarded)
			return false
		}
	}
	log.Info("trigger mic: forwarded segment", "chunks", forwarded)
	return true
}

// closerStack releases acquired resources in reverse order.
type closerStack []func() error

func (s *closerStack) push(fn func() error) { *s = append(*s, fn) }

func (s closerStack) unwind() error {
	var errs []error
	for i := len(s) - 1; i >= 0; i-- {
		if err := s[i](); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
