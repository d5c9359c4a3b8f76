package httpx

import (
	"net/http"
	"time"

	"github.com/ariefcatur/storefront-checkout/internal/metrics"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"
)

// NewRouter wires the common middleware. timeout bounds every request and
// must exceed the payment confirmation window.
func NewRouter(logger *zap.Logger, m *metrics.Checkout, timeout time.Duration) *chi.Mux {
	if logger == nil {
		logger = zap.NewNop()
	}
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	r := chi.NewRouter()
	r.Use(middleware.RequestID, middleware.RealIP, requestLogger(logger, m), middleware.Recoverer)
	r.Use(middleware.Timeout(timeout))
	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Handle("/metrics", metrics.Handler())
	return r
}

func requestLogger(logger *zap.Logger, m *metrics.Checkout) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)

			route := r.URL.Path
			if rc := chi.RouteContext(r.Context()); rc != nil && rc.RoutePattern() != "" {
				route = rc.RoutePattern()
			}
			status := ww.Status()
			if status == 0 {
				status = http.StatusOK
			}
			took := time.Since(start)
			m.Request(route, status, took)
			logger.Info("HTTP request",
				zap.String("method", r.Method),
				zap.String("route", route),
				zap.Int("status", status),
				zap.Duration("took", took),
				zap.String("request_id", middleware.GetReqID(r.Context())),
			)
		})
	}
}
