// Package server exposes the trigger mic over HTTP.
//
// Routes:
//
//   - GET /healthz, GET /readyz: see package health.
//   - GET /metrics: Prometheus scrape endpoint.
//   - GET /v1/stream: WebSocket. Each connection is one streaming session;
//     every forwarded chunk is sent as one binary message of raw PCM16.
//
// The stream endpoint accepts the query parameters codec, duration and
// previous_timestamp (Go duration strings). Any other parameter is passed to
// the source in [audio.StreamRequest.Extra]. A write that fails or times out
// ends the session the same way a consumer returning false does.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/coder/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/MrWong99/triggermic/internal/health"
	"github.com/MrWong99/triggermic/internal/observe"
	"github.com/MrWong99/triggermic/pkg/audio"
)

const defaultWriteTimeout = 5 * time.Second

// Server routes HTTP requests to the trigger mic.
type Server struct {
	src          audio.Source
	health       *health.Handler
	metrics      *observe.Metrics
	gatherer     prometheus.Gatherer
	origins      []string
	writeTimeout time.Duration
}

// Option configures a [Server].
type Option func(*Server)

// WithMetrics overrides the metrics instance used by the request middleware.
func WithMetrics(m *observe.Metrics) Option {
	return func(s *Server) { s.metrics = m }
}

// WithGatherer sets the registry served on /metrics. Default:
// [prometheus.DefaultGatherer].
func WithGatherer(g prometheus.Gatherer) Option {
	return func(s *Server) { s.gatherer = g }
}

// WithOriginPatterns allows browser clients from the given host patterns to
// open the stream endpoint.
func WithOriginPatterns(patterns ...string) Option {
	return func(s *Server) { s.origins = patterns }
}

// WithWriteTimeout bounds each WebSocket write. Default: 5 s.
func WithWriteTimeout(d time.Duration) Option {
	return func(s *Server) {
		if d > 0 {
			s.writeTimeout = d
		}
	}
}

// New returns a Server streaming from src.
func New(src audio.Source, hh *health.Handler, opts ...Option) *Server {
	s := &Server{
		src:          src,
		health:       hh,
		gatherer:     prometheus.DefaultGatherer,
		writeTimeout: defaultWriteTimeout,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.metrics == nil {
		s.metrics = observe.DefaultMetrics()
	}
	if s.health == nil {
		s.health = health.New()
	}
	return s
}

// Handler returns the instrumented route table.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	s.health.Register(mux)
	mux.Handle("GET /metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))
	mux.HandleFunc("GET /v1/stream", s.handleStream)
	return observe.Middleware(s.metrics)(mux)
}

// ParseStreamRequest builds a stream request from URL query parameters.
func ParseStreamRequest(r *http.Request) (audio.StreamRequest, error) {
	q := r.URL.Query()
	req := audio.StreamRequest{Codec: q.Get("codec")}
	if req.Codec == "" {
		req.Codec = audio.CodecPCM16
	}
	var err error
	if v := q.Get("duration"); v != "" {
		if req.Duration, err = time.ParseDuration(v); err != nil || req.Duration < 0 {
			return req, fmt.Errorf("server: invalid duration %q", v)
		}
	}
	if v := q.Get("previous_timestamp"); v != "" {
		if req.PreviousTimestamp, err = time.ParseDuration(v); err != nil || req.PreviousTimestamp < 0 {
			return req, fmt.Errorf("server: invalid previous_timestamp %q", v)
		}
	}
	for k, vs := range q {
		switch k {
		case "codec", "duration", "previous_timestamp":
			continue
		}
		if req.Extra == nil {
			req.Extra = make(map[string]any)
		}
		req.Extra[k] = vs[0]
	}
	return req, nil
}

func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	req, err := ParseStreamRequest(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{OriginPatterns: s.origins})
	if err != nil {
		observe.Logger(r.Context()).Warn("stream: websocket accept failed", "err", err)
		return
	}
	defer conn.CloseNow()

	// CloseRead cancels ctx once the client closes the connection.
	ctx := conn.CloseRead(r.Context())
	log := observe.Logger(ctx)
	log.Info("stream: client connected", "remote", r.RemoteAddr, "codec", req.Codec)

	sent := 0
	err = s.src.Stream(ctx, req, func(c audio.Chunk) bool {
		wctx, cancel := context.WithTimeout(ctx, s.writeTimeout)
		defer cancel()
		if err := conn.Write(wctx, websocket.MessageBinary, c.Data); err != nil {
			log.Info("stream: client write failed, ending session", "err", err)
			return false
		}
		sent++
		return true
	})

	switch {
	case err == nil:
		log.Info("stream: session ended", "chunks_sent", sent)
		conn.Close(websocket.StatusNormalClosure, "stream ended")
	case errors.Is(err, context.Canceled):
		log.Info("stream: client went away", "chunks_sent", sent)
	default:
		log.Error("stream: session failed", "err", err, "chunks_sent", sent)
		conn.Close(websocket.StatusInternalError, "stream failed")
	}
}
