// metrics.go — Prometheus HTTP метрики для File Manager.
// Регистрирует метрики: fm_http_requests_total, fm_http_request_duration_seconds.
// Бизнес-метрики (fm_files_total, fm_operations_total) обновляются из сервисного слоя.
package middleware

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// HTTP метрики
var (
	// httpRequestsTotal — общее количество HTTP-запросов.
	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fm_http_requests_total",
			Help: "Общее количество HTTP-запросов к File Manager",
		},
		[]string{"method", "path", "status"},
	)

	// httpRequestDuration — гистограмма длительности HTTP-запросов.
	httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "fm_http_request_duration_seconds",
			Help:    "Длительность HTTP-запросов к File Manager в секундах",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)
)

// Бизнес-метрики (экспортируются для обновления из сервисного слоя)
var (
	// FilesTotal — текущее количество зарегистрированных файлов (gauge).
	FilesTotal = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "fm_files_total",
			Help: "Текущее количество зарегистрированных файлов",
		},
	)

	// OperationsTotal — общее количество файловых операций.
	OperationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fm_operations_total",
			Help: "Общее количество файловых операций",
		},
		[]string{"operation", "result"},
	)
)

// MetricsMiddleware возвращает HTTP middleware для сбора Prometheus метрик.
// Записывает количество запросов и длительность для каждого endpoint.
func MetricsMiddleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			// Нормализуем путь для лейблов метрик
			normalizedPath := normalizePath(r.URL.Path)

			wrapped := newMetricsResponseWriter(w)
			next.ServeHTTP(wrapped, r)

			duration := time.Since(start).Seconds()
			status := strconv.Itoa(wrapped.statusCode)

			httpRequestsTotal.WithLabelValues(r.Method, normalizedPath, status).Inc()
			httpRequestDuration.WithLabelValues(r.Method, normalizedPath).Observe(duration)
		})
	}
}

// metricsResponseWriter — обёртка для перехвата статус-кода.
type metricsResponseWriter struct {
	http.ResponseWriter
	statusCode int
}

func newMetricsResponseWriter(w http.ResponseWriter) *metricsResponseWriter {
	return &metricsResponseWriter{ResponseWriter: w, statusCode: http.StatusOK}
}

func (rw *metricsResponseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// Unwrap позволяет http.ResponseController получить доступ к оригинальному ResponseWriter.
func (rw *metricsResponseWriter) Unwrap() http.ResponseWriter {
	return rw.ResponseWriter
}

// normalizePath сворачивает динамические сегменты пути, чтобы кардинальность
// лейблов не зависела от числа файлов.
// /download/a1b2c3d4-... → /download/{id}
// /uploads/1700000000-....pdf → /uploads/{name}
func normalizePath(path string) string {
	switch path {
	case "/", "/api/files", "/upload", "/health/live", "/health/ready", "/metrics":
		return path
	}

	switch {
	case strings.HasPrefix(path, "/download/"):
		return "/download/{id}"
	case strings.HasPrefix(path, "/delete/"):
		return "/delete/{id}"
	case strings.HasPrefix(path, "/uploads/"):
		return "/uploads/{name}"
	case strings.HasPrefix(path, "/static/"):
		return "/static/{asset}"
	}

	return "other"
}
