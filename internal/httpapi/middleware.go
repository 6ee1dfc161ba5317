package httpapi

import (
	"context"
	"net/http"
	"time"

	"fulfillment/internal/platform/observability"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	"go.uber.org/zap"
)

type ctxKey int

const (
	ctxKeyRequestID ctxKey = iota
)

func RequestIDFromContext(ctx context.Context) string {
	v, _ := ctx.Value(ctxKeyRequestID).(string)
	return v
}

type statusRecorder struct {
	h  http.ResponseWriter
	st int
	n  int
}

func (w *statusRecorder) Header() http.Header { return w.h.Header() }
func (w *statusRecorder) WriteHeader(code int) {
	w.st = code
	w.h.WriteHeader(code)
}
func (w *statusRecorder) Write(b []byte) (int, error) {
	n, err := w.h.Write(b)
	w.n += n
	return n, err
}

func WithRequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reqID := r.Header.Get("X-Request-Id")
		if reqID == "" {
			reqID = uuid.NewString()
		}
		w.Header().Set("X-Request-Id", reqID)
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), ctxKeyRequestID, reqID)))
	})
}

// WithTraceContext continues a trace started by the calling service.
func WithTraceContext(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := otel.GetTextMapPropagator().Extract(r.Context(), propagation.HeaderCarrier(r.Header))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func WithLogging(logger observability.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			sr := &statusRecorder{h: w, st: http.StatusOK}
			next.ServeHTTP(sr, r)
			logger.Info("http_request",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", sr.st),
				zap.Int("bytes", sr.n),
				zap.Float64("latency_ms", float64(time.Since(start).Microseconds())/1000.0),
				zap.String("request_id", RequestIDFromContext(r.Context())),
			)
		})
	}
}

// Wrap applies the common middleware chain and adds /healthz.
func Wrap(mux *http.ServeMux, logger observability.Logger) http.Handler {
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	return WithRequestID(WithTraceContext(WithLogging(logger)(mux)))
}
