// Package miniaudio provides an [audio.Source] backed by the default system
// capture device through miniaudio (github.com/gen2brain/malgo).
//
// Each Stream call opens its own capture device. The device callback copies
// PCM into a bounded queue; when the consumer falls behind, chunks are dropped
// with a warning because a live microphone cannot be paused.
package miniaudio

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/gen2brain/malgo"

	"github.com/MrWong99/triggermic/pkg/audio"
)

const (
	defaultPeriodFrames = 480 // 30 ms at 16 kHz
	defaultQueueDepth   = 64
)

// Options configures a [Source]. Zero values select defaults.
type Options struct {
	// PeriodFrames is the device period in sample frames. Default: 480.
	PeriodFrames int `mapstructure:"period_frames"`

	// QueueDepth is the number of periods buffered between the device
	// callback and the consumer. Default: 64.
	QueueDepth int `mapstructure:"queue_depth"`
}

// Source captures mono PCM16 at 16 kHz from the default input device.
type Source struct {
	opts Options

	mu     sync.Mutex
	ctx    *malgo.AllocatedContext
	closed bool
}

// Ensure Source implements audio.Source at compile time.
var _ audio.Source = (*Source)(nil)

// New initialises the miniaudio context. Devices are opened per Stream call.
func New(opts Options) (*Source, error) {
	if opts.PeriodFrames <= 0 {
		opts.PeriodFrames = defaultPeriodFrames
	}
	if opts.QueueDepth <= 0 {
		opts.QueueDepth = defaultQueueDepth
	}
	actx, err := malgo.InitContext(nil, malgo.ContextConfig{}, func(message string) {
		slog.Debug("malgo", "message", message)
	})
	if err != nil {
		return nil, fmt.Errorf("miniaudio: init context: %w", err)
	}
	return &Source{opts: opts, ctx: actx}, nil
}

// Properties reports the capture format.
func (s *Source) Properties(_ context.Context) (audio.Properties, error) {
	return audio.DefaultProperties(), nil
}

// Stream opens a capture device and delivers its audio until ctx is
// cancelled, accept returns false, or req.Duration has been captured.
func (s *Source) Stream(ctx context.Context, req audio.StreamRequest, accept audio.AcceptFunc) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return errors.New("miniaudio: source closed")
	}
	actx := s.ctx
	s.mu.Unlock()

	queue := make(chan []byte, s.opts.QueueDepth)
	var dropped int
	bytesPerFrame := malgo.SampleSizeInBytes(malgo.FormatS16) * audio.DefaultChannels

	cfg := malgo.DefaultDeviceConfig(malgo.Capture)
	cfg.SampleRate = audio.DefaultSampleRate
	cfg.Capture.Format = malgo.FormatS16
	cfg.Capture.Channels = audio.DefaultChannels
	cfg.Alsa.NoMMap = 1
	cfg.PerformanceProfile = malgo.LowLatency
	cfg.PeriodSizeInFrames = uint32(s.opts.PeriodFrames)
	cfg.Periods = 3

	device, err := malgo.InitDevice(actx.Context, cfg, malgo.DeviceCallbacks{
		Data: func(_, pInput []byte, frameCount uint32) {
			n := int(frameCount) * bytesPerFrame
			if len(pInput) < n || n == 0 {
				return
			}
			buf := make([]byte, n)
			copy(buf, pInput[:n])
			select {
			case queue <- buf:
			default:
				dropped++
				if dropped == 1 || dropped%100 == 0 {
					slog.Warn("miniaudio: consumer too slow, dropping audio", "dropped", dropped)
				}
			}
		},
	})
	if err != nil {
		return fmt.Errorf("miniaudio: init capture device: %w", err)
	}
	defer device.Uninit()

	if err := device.Start(); err != nil {
		return fmt.Errorf("miniaudio: start capture device: %w", err)
	}
	defer func() {
		if err := device.Stop(); err != nil {
			slog.Warn("miniaudio: stop capture device", "err", err)
		}
	}()

	return pump(ctx, queue, req, accept)
}

// pump delivers queued PCM as chunks with running timestamps.
func pump(ctx context.Context, queue <-chan []byte, req audio.StreamRequest, accept audio.AcceptFunc) error {
	limit := audio.BytesFor(req.Duration, audio.DefaultSampleRate, audio.DefaultChannels)
	offset := 0
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case pcm, ok := <-queue:
			if !ok {
				return nil
			}
			if limit > 0 && offset+len(pcm) > limit {
				pcm = pcm[:limit-offset]
			}
			chunk := audio.Chunk{
				Data:       pcm,
				SampleRate: audio.DefaultSampleRate,
				Channels:   audio.DefaultChannels,
				Timestamp:  req.PreviousTimestamp + durationOf(offset),
			}
			offset += len(pcm)
			if !accept(chunk) {
				return nil
			}
			if limit > 0 && offset >= limit {
				return nil
			}
		}
	}
}

func durationOf(n int) time.Duration {
	return audio.DurationOf(n, audio.DefaultSampleRate, audio.DefaultChannels)
}

// Close releases the miniaudio context. Streams started afterwards fail.
func (s *Source) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	if err := s.ctx.Uninit(); err != nil {
		s.ctx.Free()
		return fmt.Errorf("miniaudio: uninit context: %w", err)
	}
	s.ctx.Free()
	return nil
}
