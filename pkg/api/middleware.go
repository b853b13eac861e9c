package api

import (
	"bufio"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/slskd/slskgo/pkg/metrics"
)

// statusRecorder captures the response status for instrumentation. It
// forwards Hijack so the hub websocket upgrade still works behind it.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func (r *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	hj, ok := r.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, http.ErrNotSupported
	}
	return hj.Hijack()
}

func (r *statusRecorder) Flush() {
	if f, ok := r.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

// instrument wraps next with request metrics and logging.
func (s *Server) instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		start := time.Now()

		next.ServeHTTP(rec, r)

		took := time.Since(start)
		metrics.APIRequestsTotal.WithLabelValues(r.Method, strconv.Itoa(rec.status)).Inc()
		metrics.APIRequestDuration.WithLabelValues(r.Method).Observe(took.Seconds())

		event := s.logger.Debug()
		if rec.status >= http.StatusInternalServerError {
			event = s.logger.Warn()
		}
		event.
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", rec.status).
			Dur("took", took).
			Msg("request")
	})
}
