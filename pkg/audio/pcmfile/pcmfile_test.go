package pcmfile_test

import (
	"bytes"
	"context"
	"encoding/binary"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/MrWong99/triggermic/pkg/audio"
	"github.com/MrWong99/triggermic/pkg/audio/pcmfile"
)

// ramp returns n mono samples whose value equals their index.
func ramp(n int) []byte {
	buf := make([]byte, n*2)
	for i := range n {
		binary.LittleEndian.PutUint16(buf[i*2:], uint16(i))
	}
	return buf
}

func writeTemp(t *testing.T, data []byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "in.pcm")
	if err := os.WriteFile(path, data, 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	return path
}

func collect(t *testing.T, src audio.Source, req audio.StreamRequest) []audio.Chunk {
	t.Helper()
	var got []audio.Chunk
	err := src.Stream(context.Background(), req, func(c audio.Chunk) bool {
		got = append(got, c)
		return true
	})
	if err != nil {
		t.Fatalf("Stream: %v", err)
	}
	return got
}

func TestNew_Validation(t *testing.T) {
	if _, err := pcmfile.New(pcmfile.Options{}); err == nil {
		t.Error("expected error for empty path")
	}
	if _, err := pcmfile.New(pcmfile.Options{Path: filepath.Join(t.TempDir(), "missing.pcm")}); err == nil {
		t.Error("expected error for missing file")
	}
	if _, err := pcmfile.New(pcmfile.Options{Path: pcmfile.StdinPath, Channels: 6}); err == nil {
		t.Error("expected error for 6 channels")
	}
}

func TestStream_ChunksAndTimestamps(t *testing.T) {
	// 250 ms of 16 kHz mono: two full 100 ms chunks plus a 50 ms tail.
	path := writeTemp(t, ramp(4000))
	src, err := pcmfile.New(pcmfile.Options{Path: path})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	got := collect(t, src, audio.StreamRequest{})
	if len(got) != 3 {
		t.Fatalf("chunks = %d, want 3", len(got))
	}
	wantLens := []int{3200, 3200, 1600}
	wantTS := []time.Duration{0, 100 * time.Millisecond, 200 * time.Millisecond}
	for i, c := range got {
		if len(c.Data) != wantLens[i] {
			t.Errorf("chunk %d len = %d, want %d", i, len(c.Data), wantLens[i])
		}
		if c.Timestamp != wantTS[i] {
			t.Errorf("chunk %d timestamp = %v, want %v", i, c.Timestamp, wantTS[i])
		}
		if c.SampleRate != 16000 || c.Channels != 1 {
			t.Errorf("chunk %d format = %d/%d", i, c.SampleRate, c.Channels)
		}
	}

	// A second session reads the file again from the start.
	if again := collect(t, src, audio.StreamRequest{}); len(again) != 3 {
		t.Errorf("second session chunks = %d, want 3", len(again))
	}
}

func TestStream_DurationAndPreviousTimestamp(t *testing.T) {
	path := writeTemp(t, ramp(16000)) // 1 s
	src, err := pcmfile.New(pcmfile.Options{Path: path})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	got := collect(t, src, audio.StreamRequest{
		PreviousTimestamp: 500 * time.Millisecond,
		Duration:          150 * time.Millisecond,
	})
	total := 0
	for _, c := range got {
		total += len(c.Data)
	}
	if total != 4800 {
		t.Errorf("delivered %d bytes, want 4800", total)
	}
	if len(got) == 0 || got[0].Timestamp != 500*time.Millisecond {
		t.Fatalf("first timestamp = %v, want 500ms", got[0].Timestamp)
	}
	// Sample 8000 sits at 500 ms.
	if first := int16(binary.LittleEndian.Uint16(got[0].Data)); first != 8000 {
		t.Errorf("first sample = %d, want 8000", first)
	}
}

func TestStream_SkipPastEnd(t *testing.T) {
	path := writeTemp(t, ramp(160))
	src, _ := pcmfile.New(pcmfile.Options{Path: path})
	if got := collect(t, src, audio.StreamRequest{PreviousTimestamp: time.Second}); len(got) != 0 {
		t.Errorf("chunks = %d, want 0", len(got))
	}
}

func TestStream_AcceptFalseStops(t *testing.T) {
	path := writeTemp(t, ramp(16000))
	src, _ := pcmfile.New(pcmfile.Options{Path: path})

	calls := 0
	err := src.Stream(context.Background(), audio.StreamRequest{}, func(audio.Chunk) bool {
		calls++
		return calls < 2
	})
	if err != nil {
		t.Fatalf("Stream: %v", err)
	}
	if calls != 2 {
		t.Errorf("accept calls = %d, want 2", calls)
	}
}

func TestStream_ContextCancelled(t *testing.T) {
	path := writeTemp(t, ramp(16000))
	src, _ := pcmfile.New(pcmfile.Options{Path: path})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := src.Stream(ctx, audio.StreamRequest{}, func(audio.Chunk) bool { return true })
	if err == nil {
		t.Fatal("expected context error")
	}
}

func TestNewReader_ConvertsStereo(t *testing.T) {
	// 100 ms stereo at 16 kHz with equal channels.
	stereo := make([]byte, 1600*4)
	for i := range 1600 {
		binary.LittleEndian.PutUint16(stereo[i*4:], 500)
		binary.LittleEndian.PutUint16(stereo[i*4+2:], 500)
	}
	src := pcmfile.NewReader(bytes.NewReader(stereo), pcmfile.Options{Channels: 2})

	got := collect(t, src, audio.StreamRequest{})
	if len(got) != 1 {
		t.Fatalf("chunks = %d, want 1", len(got))
	}
	if got[0].Channels != 1 || len(got[0].Data) != 3200 {
		t.Errorf("chunk = %d ch, %d bytes; want mono 3200 bytes", got[0].Channels, len(got[0].Data))
	}
	if v := int16(binary.LittleEndian.Uint16(got[0].Data)); v != 500 {
		t.Errorf("sample = %d, want 500", v)
	}
}

func TestProperties(t *testing.T) {
	src := pcmfile.NewReader(bytes.NewReader(nil), pcmfile.Options{SampleRate: 48000})
	props, err := src.Properties(context.Background())
	if err != nil {
		t.Fatalf("Properties: %v", err)
	}
	if props != audio.DefaultProperties() {
		t.Errorf("Properties = %+v, want pipeline default", props)
	}
}
