// Пакет server — HTTP-сервер File Manager с graceful shutdown.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os/signal"
	"syscall"

	"github.com/go-chi/chi/v5"

	"github.com/bigkaa/filemanager/internal/api/middleware"
	"github.com/bigkaa/filemanager/internal/config"
)

// Routes — регистрация маршрутов приложения.
type Routes interface {
	// MountProbes — health probes и /metrics (без ограничения частоты).
	MountProbes(r chi.Router)
	// MountApp — пользовательские endpoints.
	MountApp(r chi.Router)
}

// Server — HTTP-сервер File Manager.
type Server struct {
	httpServer *http.Server
	logger     *slog.Logger
	cfg        *config.Config
}

// New создаёт HTTP-сервер с настроенными маршрутами и middleware.
// limiter == nil отключает ограничение частоты запросов.
func New(cfg *config.Config, logger *slog.Logger, routes Routes, limiter *middleware.RateLimiter) *Server {
	router := chi.NewRouter()

	// Middleware
	router.Use(middleware.RequestLogger(logger))
	router.Use(middleware.MetricsMiddleware())
	router.Use(middleware.SecurityHeaders())

	routes.MountProbes(router)
	router.Group(func(r chi.Router) {
		r.Use(middleware.RateLimit(limiter))
		routes.MountApp(r)
	})

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      router,
		ReadTimeout:  cfg.HTTPReadTimeout,
		WriteTimeout: cfg.HTTPWriteTimeout,
		IdleTimeout:  cfg.HTTPIdleTimeout,
	}

	return &Server{
		httpServer: srv,
		logger:     logger,
		cfg:        cfg,
	}
}

// Handler возвращает корневой обработчик со всеми маршрутами и middleware.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// Run запускает сервер и ожидает сигнала завершения (SIGINT, SIGTERM).
// При получении сигнала выполняется graceful shutdown с таймаутом FM_SHUTDOWN_TIMEOUT.
func (s *Server) Run() error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	return s.RunContext(ctx)
}

// RunContext запускает сервер и работает до отмены ctx.
func (s *Server) RunContext(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.httpServer.Addr)
	if err != nil {
		return fmt.Errorf("ошибка открытия порта %s: %w", s.httpServer.Addr, err)
	}
	return s.serve(ctx, ln)
}

// serve обслуживает соединения ln до отмены ctx или ошибки сервера.
func (s *Server) serve(ctx context.Context, ln net.Listener) error {
	// Канал для ошибок сервера
	errCh := make(chan error, 1)

	go func() {
		s.logger.Info("HTTP-сервер запущен", slog.String("addr", ln.Addr().String()))

		if err := s.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		s.logger.Info("Получен сигнал завершения")
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("ошибка HTTP-сервера: %w", err)
		}
		return nil
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
	defer cancel()

	s.logger.Info("Выполняется graceful shutdown...",
		slog.Duration("timeout", s.cfg.ShutdownTimeout),
	)
	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("ошибка при graceful shutdown: %w", err)
	}

	s.logger.Info("HTTP-сервер остановлен")
	return nil
}
