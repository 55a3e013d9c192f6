// Package segment implements the speech/silence state machine that groups
// upstream audio chunks into utterances.
//
// Every whole frame of a chunk is classified. The first speech frame makes
// the state Active; from then on every chunk is buffered until a run of
// consecutive non-speech frames reaches the silence threshold, or until the
// buffered bytes exceed the overflow ceiling. Either event resolves the
// segment: [Step] hands the buffered chunks to the caller and the state
// returns to Idle.
//
// The byte accumulator always equals the concatenation of the buffered
// chunks' payloads in arrival order.
package segment

import (
	"github.com/MrWong99/triggermic/pkg/audio"
)

// Defaults for 30 ms frames of 16 kHz mono PCM16.
const (
	DefaultFrameBytes    = 960
	DefaultSilenceFrames = 30
	DefaultMaxBytes      = 500000
)

// Reason says why a segment was resolved.
type Reason int

const (
	// ReasonNone means the segment is still open.
	ReasonNone Reason = iota
	// ReasonSilence means enough consecutive non-speech frames were seen.
	ReasonSilence
	// ReasonOverflow means the byte ceiling was exceeded.
	ReasonOverflow
	// ReasonEnd means the upstream stream ended with a segment pending.
	ReasonEnd
)

func (r Reason) String() string {
	switch r {
	case ReasonNone:
		return "none"
	case ReasonSilence:
		return "silence"
	case ReasonOverflow:
		return "overflow"
	case ReasonEnd:
		return "end"
	default:
		return "unknown"
	}
}

// Params tunes the state machine.
type Params struct {
	// FrameBytes is the classifier frame length in bytes.
	FrameBytes int
	// SilenceFrames is the number of consecutive non-speech frames that ends
	// a segment. Values below 1 are treated as 1.
	SilenceFrames int
	// MaxBytes is the overflow ceiling. A segment is force-resolved once its
	// byte length is strictly greater than MaxBytes. Zero disables the ceiling.
	MaxBytes int
}

// DefaultParams returns the parameters for 30 ms frames at 16 kHz.
func DefaultParams() Params {
	return Params{
		FrameBytes:    DefaultFrameBytes,
		SilenceFrames: DefaultSilenceFrames,
		MaxBytes:      DefaultMaxBytes,
	}
}

// Classify reports whether a frame contains speech.
type Classify func(frame []byte) bool

// Segment is a resolved utterance.
type Segment struct {
	// Chunks are the buffered chunks in arrival order.
	Chunks []audio.Chunk
	// PCM is the concatenation of every chunk's payload.
	PCM []byte
	// Reason is why the segment was resolved.
	Reason Reason
}

// State is the per-session buffer state. The zero value is Idle and ready to
// use. A State must not be shared across goroutines.
type State struct {
	active  bool
	silence int
	chunks  []audio.Chunk
	pcm     []byte
}

// NewState returns an Idle state.
func NewState() *State { return &State{} }

// Active reports whether a segment is being collected.
func (s *State) Active() bool { return s.active }

// SilentFrames returns the current run of consecutive non-speech frames.
func (s *State) SilentFrames() int { return s.silence }

// Len returns the number of buffered bytes.
func (s *State) Len() int { return len(s.pcm) }

// ChunkCount returns the number of buffered chunks.
func (s *State) ChunkCount() int { return len(s.chunks) }

// Reset returns the state to Idle and discards the buffer.
func (s *State) Reset() {
	s.active = false
	s.silence = 0
	s.chunks = nil
	s.pcm = nil
}

// take hands the buffer to a Segment and resets the state.
func (s *State) take(reason Reason) *Segment {
	seg := &Segment{Chunks: s.chunks, PCM: s.pcm, Reason: reason}
	s.Reset()
	return seg
}

// Flush resolves a pending segment with [ReasonEnd]. It returns nil when no
// chunks are buffered.
func (s *State) Flush() *Segment {
	if len(s.chunks) == 0 {
		s.Reset()
		return nil
	}
	return s.take(ReasonEnd)
}

// Outcome describes what a single Step did.
type Outcome struct {
	// Frames is the number of whole frames classified.
	Frames int
	// Started is true when this chunk moved the state from Idle to Active.
	Started bool
	// Misaligned is true when the chunk has an odd byte length.
	Misaligned bool
	// SilentFrames is the silence run at the moment of resolution.
	SilentFrames int
	// Segment is non-nil when the chunk resolved a segment.
	Segment *Segment
}

// Frames splits data into whole frames of frameBytes. A trailing partial
// frame is dropped. The returned frames alias data.
func Frames(data []byte, frameBytes int) [][]byte {
	if frameBytes <= 0 {
		return nil
	}
	n := len(data) / frameBytes
	frames := make([][]byte, n)
	for i := range n {
		frames[i] = data[i*frameBytes : (i+1)*frameBytes]
	}
	return frames
}

// Step feeds one chunk into the state machine. Empty chunks are ignored.
//
// Frames are classified in order. A speech frame activates the state and
// clears the silence run; a non-speech frame while Active extends the run,
// and reaching p.SilenceFrames ends classification of this chunk. The chunk is
// buffered if the state is Active after classification. The segment is then
// resolved by silence, or failing that by overflow when the buffer exceeds
// p.MaxBytes.
func Step(st *State, chunk audio.Chunk, classify Classify, p Params) Outcome {
	var out Outcome
	if len(chunk.Data) == 0 {
		return out
	}
	out.Misaligned = len(chunk.Data)%audio.BytesPerSample != 0

	threshold := max(p.SilenceFrames, 1)
	wasActive := st.active
	resolved := false
	for _, frame := range Frames(chunk.Data, p.FrameBytes) {
		out.Frames++
		if classify(frame) {
			st.active = true
			st.silence = 0
			continue
		}
		if st.active {
			st.silence++
			if st.silence >= threshold {
				resolved = true
				break
			}
		}
	}
	out.Started = !wasActive && st.active

	if st.active {
		st.chunks = append(st.chunks, chunk)
		st.pcm = append(st.pcm, chunk.Data...)
	}

	switch {
	case resolved:
		out.SilentFrames = st.silence
		out.Segment = st.take(ReasonSilence)
	case p.MaxBytes > 0 && len(st.pcm) > p.MaxBytes:
		out.SilentFrames = st.silence
		out.Segment = st.take(ReasonOverflow)
	}
	return out
}
