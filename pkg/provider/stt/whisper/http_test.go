package whisper_test

import (
	"context"
	"encoding/binary"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/MrWong99/triggermic/pkg/provider/stt/whisper"
)

// newMockServer creates a test server that responds to POST /inference with
// body. It increments *callCount on every matched request and sends the
// uploaded WAV on wavs when non-nil.
func newMockServer(t *testing.T, status int, body string, callCount *atomic.Int32, wavs chan<- []byte) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/inference" {
			http.Error(w, "not found", http.StatusNotFound)
			return
		}
		if callCount != nil {
			callCount.Add(1)
		}
		f, _, err := r.FormFile("file")
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		defer f.Close()
		if wavs != nil {
			data, _ := io.ReadAll(f)
			wavs <- data
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = io.WriteString(w, body)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestNew_EmptyServerURL_ReturnsError(t *testing.T) {
	if _, err := whisper.New(""); err == nil {
		t.Fatal("expected error for empty serverURL, got nil")
	}
}

func TestRecognize_ReturnsText(t *testing.T) {
	var calls atomic.Int32
	wavs := make(chan []byte, 1)
	srv := newMockServer(t, http.StatusOK, `{"text":" Please wake up, robot.\n"}`, &calls, wavs)

	r, err := whisper.New(srv.URL+"/", whisper.WithLanguage("en"), whisper.WithModel("base.en"))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	pcm := make([]byte, 3200)
	res, err := r.Recognize(context.Background(), pcm, 16000)
	if err != nil {
		t.Fatalf("Recognize: %v", err)
	}
	if res.Text != "Please wake up, robot." {
		t.Errorf("text = %q", res.Text)
	}
	if calls.Load() != 1 {
		t.Errorf("server calls = %d, want 1", calls.Load())
	}
	wav := <-wavs
	if len(wav) != 44+len(pcm) {
		t.Fatalf("wav length = %d, want %d", len(wav), 44+len(pcm))
	}
	if string(wav[0:4]) != "RIFF" || string(wav[8:12]) != "WAVE" {
		t.Error("upload is not a RIFF/WAVE file")
	}
	if rate := binary.LittleEndian.Uint32(wav[24:28]); rate != 16000 {
		t.Errorf("wav sample rate = %d, want 16000", rate)
	}
}

func TestRecognize_ResamplesTo16k(t *testing.T) {
	wavs := make(chan []byte, 1)
	srv := newMockServer(t, http.StatusOK, `{"text":""}`, nil, wavs)
	r, _ := whisper.New(srv.URL)

	// 30 ms at 48 kHz.
	if _, err := r.Recognize(context.Background(), make([]byte, 2880), 48000); err != nil {
		t.Fatalf("Recognize: %v", err)
	}
	if wav := <-wavs; len(wav) != 44+960 {
		t.Errorf("wav length = %d, want %d", len(wav), 44+960)
	}
}

func TestRecognize_MissingTextField(t *testing.T) {
	srv := newMockServer(t, http.StatusOK, `{"error":"no speech"}`, nil, nil)
	r, _ := whisper.New(srv.URL)
	res, err := r.Recognize(context.Background(), make([]byte, 960), 16000)
	if err != nil {
		t.Fatalf("Recognize: %v", err)
	}
	if res.Text != "" {
		t.Errorf("text = %q, want empty", res.Text)
	}
}

func TestRecognize_ServerError(t *testing.T) {
	srv := newMockServer(t, http.StatusInternalServerError, `oops`, nil, nil)
	r, _ := whisper.New(srv.URL)
	if _, err := r.Recognize(context.Background(), make([]byte, 960), 16000); err == nil {
		t.Fatal("expected error for HTTP 500")
	}
}

func TestRecognize_CancelledContext(t *testing.T) {
	srv := newMockServer(t, http.StatusOK, `{"text":"x"}`, nil, nil)
	r, _ := whisper.New(srv.URL)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := r.Recognize(ctx, make([]byte, 960), 16000); err == nil {
		t.Fatal("expected error for cancelled context")
	}
}
