package audio

import "time"

const (
	// DefaultSampleRate is the fixed sample rate of the trigger pipeline in Hz.
	DefaultSampleRate = 16000

	// DefaultChannels is the fixed channel count of the trigger pipeline.
	DefaultChannels = 1

	// BytesPerSample is the byte width of one 16-bit signed little-endian
	// PCM sample.
	BytesPerSample = 2

	// CodecPCM16 identifies raw 16-bit signed little-endian PCM.
	CodecPCM16 = "pcm16"
)

// Chunk is a single unit of audio delivered by a [Source]. The payload is
// opaque to the pipeline apart from being framed as PCM16 for voice activity
// classification.
//
// Ownership moves with the value: once a Chunk has been handed to an
// [AcceptFunc] the sender must not touch Data again.
type Chunk struct {
	// Data is the raw PCM payload.
	Data []byte

	// SampleRate in Hz of the payload.
	SampleRate int

	// Channels in the payload; the trigger pipeline expects mono.
	Channels int

	// Timestamp is the source-assigned capture offset relative to the start
	// of the source's stream.
	Timestamp time.Duration
}

// Properties describes the audio format a [Source] produces.
type Properties struct {
	SampleRate int
	Channels   int
}

// DefaultProperties returns the pipeline's fixed 16 kHz mono format.
func DefaultProperties() Properties {
	return Properties{SampleRate: DefaultSampleRate, Channels: DefaultChannels}
}
