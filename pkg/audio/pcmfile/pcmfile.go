// Package pcmfile provides an [audio.Source] that reads headerless 16-bit
// signed little-endian PCM from a file or from stdin.
//
// Each Stream call opens the file afresh, so concurrent sessions read
// independently from the start. Stdin ("-") can only be consumed once; Stream
// calls on a stdin source are serialised and later sessions continue where the
// previous one stopped.
//
// Input in a format other than the 16 kHz mono pipeline format is converted
// with [audio.Converter] before delivery.
package pcmfile

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/MrWong99/triggermic/pkg/audio"
)

// StdinPath selects standard input instead of a file.
const StdinPath = "-"

const defaultChunkMs = 100

// Options configures a [Source]. Zero values select defaults.
type Options struct {
	// Path is the PCM file to read, or [StdinPath].
	Path string `mapstructure:"path"`

	// ChunkMs is the duration of each delivered chunk. Default: 100 ms.
	ChunkMs int `mapstructure:"chunk_ms"`

	// SampleRate of the input. Default: 16000.
	SampleRate int `mapstructure:"sample_rate"`

	// Channels of the input. Default: 1.
	Channels int `mapstructure:"channels"`

	// Realtime paces delivery at the input's playback rate, which makes a
	// file behave like a live microphone.
	Realtime bool `mapstructure:"realtime"`
}

// Source reads PCM from a file path or stdin.
type Source struct {
	opts  Options
	stdin io.Reader

	// stdinMu serialises sessions that share stdin.
	stdinMu sync.Mutex
}

// Ensure Source implements audio.Source at compile time.
var _ audio.Source = (*Source)(nil)

// New validates opts and returns a Source.
func New(opts Options) (*Source, error) {
	if opts.Path == "" {
		return nil, errors.New("pcmfile: path must not be empty")
	}
	if opts.ChunkMs <= 0 {
		opts.ChunkMs = defaultChunkMs
	}
	if opts.SampleRate <= 0 {
		opts.SampleRate = audio.DefaultSampleRate
	}
	if opts.Channels <= 0 {
		opts.Channels = audio.DefaultChannels
	}
	if opts.Channels > 2 {
		return nil, fmt.Errorf("pcmfile: %d channels not supported", opts.Channels)
	}
	if opts.Path != StdinPath {
		if _, err := os.Stat(opts.Path); err != nil {
			return nil, fmt.Errorf("pcmfile: %w", err)
		}
	}
	return &Source{opts: opts, stdin: os.Stdin}, nil
}

// NewReader returns a Source that reads from r as if it were stdin. It is
// meant for tests and for piping audio from another in-process producer.
func NewReader(r io.Reader, opts Options) *Source {
	opts.Path = StdinPath
	s, _ := New(opts)
	s.stdin = r
	return s
}

// Properties reports the pipeline format; conversion happens before delivery.
func (s *Source) Properties(_ context.Context) (audio.Properties, error) {
	return audio.DefaultProperties(), nil
}

// Stream implements [audio.Source].
func (s *Source) Stream(ctx context.Context, req audio.StreamRequest, accept audio.AcceptFunc) error {
	var r io.Reader
	if s.opts.Path == StdinPath {
		s.stdinMu.Lock()
		defer s.stdinMu.Unlock()
		r = s.stdin
	} else {
		f, err := os.Open(s.opts.Path)
		if err != nil {
			return fmt.Errorf("pcmfile: open %q: %w", s.opts.Path, err)
		}
		defer f.Close()
		r = f
	}

	offset := 0
	if skip := audio.BytesFor(req.PreviousTimestamp, s.opts.SampleRate, s.opts.Channels); skip > 0 {
		n, err := io.CopyN(io.Discard, r, int64(skip))
		offset = int(n)
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("pcmfile: skip to %v: %w", req.PreviousTimestamp, err)
		}
	}

	limit := -1
	if req.Duration > 0 {
		limit = audio.BytesFor(req.Duration, s.opts.SampleRate, s.opts.Channels)
	}

	chunkBytes := audio.BytesFor(time.Duration(s.opts.ChunkMs)*time.Millisecond, s.opts.SampleRate, s.opts.Channels)
	conv := audio.Converter{Target: audio.DefaultProperties()}
	var pace *time.Ticker
	if s.opts.Realtime {
		pace = time.NewTicker(time.Duration(s.opts.ChunkMs) * time.Millisecond)
		defer pace.Stop()
	}

	delivered := 0
	for limit < 0 || delivered < limit {
		if err := ctx.Err(); err != nil {
			return err
		}

		size := chunkBytes
		if limit >= 0 && limit-delivered < size {
			size = limit - delivered
		}
		buf := make([]byte, size)
		n, err := io.ReadFull(r, buf)
		if n > 0 {
			chunk := conv.Convert(audio.Chunk{
				Data:       buf[:n],
				SampleRate: s.opts.SampleRate,
				Channels:   s.opts.Channels,
				Timestamp:  audio.DurationOf(offset, s.opts.SampleRate, s.opts.Channels),
			})
			offset += n
			delivered += n
			if !accept(chunk) {
				return nil
			}
		}
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("pcmfile: read: %w", err)
		}

		if pace != nil {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-pace.C:
			}
		}
	}
	return nil
}
