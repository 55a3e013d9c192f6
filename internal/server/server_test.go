package server_test

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/prometheus/client_golang/prometheus"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"

	"github.com/MrWong99/triggermic/internal/health"
	"github.com/MrWong99/triggermic/internal/observe"
	"github.com/MrWong99/triggermic/internal/server"
	"github.com/MrWong99/triggermic/pkg/audio"
	audiomock "github.com/MrWong99/triggermic/pkg/audio/mock"
)

func newTestServer(t *testing.T, src audio.Source, opts ...server.Option) *httptest.Server {
	t.Helper()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(sdkmetric.NewManualReader()))
	t.Cleanup(func() { _ = mp.Shutdown(context.Background()) })
	m, err := observe.NewMetrics(mp)
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}
	opts = append([]server.Option{server.WithMetrics(m)}, opts...)
	srv := httptest.NewServer(server.New(src, health.New(health.Upstream("mic")), opts...).Handler())
	t.Cleanup(srv.Close)
	return srv
}

func dial(t *testing.T, srv *httptest.Server, query string) *websocket.Conn {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/v1/stream" + query
	conn, _, err := websocket.Dial(ctx, url, nil)
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	t.Cleanup(func() { conn.CloseNow() })
	return conn
}

func TestStream_SendsChunksAndCloses(t *testing.T) {
	t.Parallel()
	src := &audiomock.Source{Chunks: []audio.Chunk{
		{Data: []byte{1, 2, 3, 4}},
		{Data: []byte{5, 6}},
	}}
	srv := newTestServer(t, src)
	conn := dial(t, srv, "?duration=2s&previous_timestamp=500ms&device=front")

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	var got [][]byte
	for {
		typ, data, err := conn.Read(ctx)
		if err != nil {
			if status := websocket.CloseStatus(err); status != websocket.StatusNormalClosure {
				t.Fatalf("close status = %v (err %v), want normal closure", status, err)
			}
			break
		}
		if typ != websocket.MessageBinary {
			t.Errorf("message type = %v, want binary", typ)
		}
		got = append(got, data)
	}

	if len(got) != 2 || !bytes.Equal(got[0], []byte{1, 2, 3, 4}) || !bytes.Equal(got[1], []byte{5, 6}) {
		t.Errorf("received %v", got)
	}

	reqs := src.Requests()
	if len(reqs) != 1 {
		t.Fatalf("stream calls = %d, want 1", len(reqs))
	}
	req := reqs[0]
	if req.Codec != audio.CodecPCM16 || req.Duration != 2*time.Second || req.PreviousTimestamp != 500*time.Millisecond {
		t.Errorf("request = %+v", req)
	}
	if req.Extra["device"] != "front" {
		t.Errorf("extra = %v, want device=front", req.Extra)
	}
}

func TestStream_BadQuery(t *testing.T) {
	t.Parallel()
	srv := newTestServer(t, &audiomock.Source{})

	resp, err := http.Get(srv.URL + "/v1/stream?duration=forever")
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", resp.StatusCode)
	}
}

func TestParseStreamRequest_Defaults(t *testing.T) {
	t.Parallel()
	req, err := server.ParseStreamRequest(httptest.NewRequest("GET", "/v1/stream", nil))
	if err != nil {
		t.Fatalf("ParseStreamRequest: %v", err)
	}
	if req.Codec != audio.CodecPCM16 || req.Duration != 0 || req.PreviousTimestamp != 0 || req.Extra != nil {
		t.Errorf("request = %+v, want continuous pcm16", req)
	}
	if _, err := server.ParseStreamRequest(httptest.NewRequest("GET", "/v1/stream?previous_timestamp=-1s", nil)); err == nil {
		t.Error("expected error for negative previous_timestamp")
	}
}

func TestMetricsEndpoint(t *testing.T) {
	t.Parallel()
	reg := prometheus.NewRegistry()
	c := prometheus.NewCounter(prometheus.CounterOpts{Name: "triggermic_test_total", Help: "test"})
	reg.MustRegister(c)
	c.Inc()
	srv := newTestServer(t, &audiomock.Source{}, server.WithGatherer(reg))

	resp, err := http.Get(srv.URL + "/metrics")
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	if !strings.Contains(string(body), "triggermic_test_total 1") {
		t.Errorf("metrics body missing counter:\n%s", body)
	}
}

func TestHealthRoutes(t *testing.T) {
	t.Parallel()
	srv := newTestServer(t, &audiomock.Source{})
	for _, path := range []string{"/healthz", "/readyz"} {
		resp, err := http.Get(srv.URL + path)
		if err != nil {
			t.Fatalf("GET %s: %v", path, err)
		}
		resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			t.Errorf("%s status = %d, want 200", path, resp.StatusCode)
		}
	}
}
