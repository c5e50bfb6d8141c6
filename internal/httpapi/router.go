package httpapi

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/lexiqai/voice-calorie-tracker/internal/audio"
	"github.com/lexiqai/voice-calorie-tracker/internal/conversation"
	"github.com/lexiqai/voice-calorie-tracker/internal/observability"
)

// Conversation is the part of the conversation manager the HTTP surface uses
type Conversation interface {
	Submit(ctx context.Context, rec audio.Recording) (conversation.TurnResult, error)
	Reset() conversation.Session
	Snapshot() conversation.Session
}

// Options configures the router
type Options struct {
	Conversation      Conversation
	Readiness         *observability.Readiness
	MetricsEnabled    bool
	MaxRecordingBytes int64

	// Live, when set, is mounted at /api/live
	Live http.Handler
}

// NewRouter wires HTTP routes to the conversation
func NewRouter(opts Options) http.Handler {
	if opts.MaxRecordingBytes <= 0 {
		opts.MaxRecordingBytes = 25 << 20
	}
	if opts.Readiness == nil {
		opts.Readiness = observability.NewReadiness(5 * time.Second)
	}

	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger)
	r.Use(middleware.Recoverer)

	r.Get("/health", observability.HealthCheckHandler())
	r.Get("/ready", observability.ReadinessHandler(opts.Readiness))
	if opts.MetricsEnabled {
		r.Handle("/metrics", promhttp.Handler())
	}

	h := &handler{conversation: opts.Conversation, maxBytes: opts.MaxRecordingBytes}

	r.Route("/api", func(api chi.Router) {
		api.Post("/turns", h.handleTurn)
		api.Post("/reset", h.handleReset)
		api.Get("/transcript", h.handleTranscript)
		api.Get("/audio/latest", h.handleLatestAudio)

		if opts.Live != nil {
			api.Handle("/live", opts.Live)
		}
	})

	return r
}

// requestLogger logs one line per request through the global zerolog logger
func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()

		defer func() {
			logger := observability.WithCorrelationID(middleware.GetReqID(r.Context()))
			logger.Info().
				Str("method", r.Method).
				Str("path", r.URL.Path).
				Int("status", ww.Status()).
				Int("bytes", ww.BytesWritten()).
				Dur("duration", time.Since(start)).
				Str("remote_ip", r.RemoteAddr).
				Msg("HTTP request")
		}()

		next.ServeHTTP(ww, r)
	})
}
