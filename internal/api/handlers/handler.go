// handler.go — APIHandler объединяет доменные обработчики и регистрирует маршруты.
package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/bigkaa/filemanager/internal/ui/static"
)

// APIHandler — единая точка регистрации маршрутов File Manager.
type APIHandler struct {
	files        *FilesHandler
	health       *HealthHandler
	serveUploads bool
}

// NewAPIHandler создаёт обработчик всех endpoints.
// serveUploads включает прямую раздачу /uploads/{name}.
func NewAPIHandler(files *FilesHandler, health *HealthHandler, serveUploads bool) *APIHandler {
	return &APIHandler{
		files:        files,
		health:       health,
		serveUploads: serveUploads,
	}
}

// MountProbes регистрирует служебные endpoints: health probes и /metrics.
// Ограничение частоты запросов на них не распространяется.
func (h *APIHandler) MountProbes(r chi.Router) {
	r.Get("/health/live", h.health.HealthLive)
	r.Get("/health/ready", h.health.HealthReady)
	r.Get("/metrics", h.health.GetMetrics)
}

// MountApp регистрирует пользовательские endpoints: API, UI и статику.
func (h *APIHandler) MountApp(r chi.Router) {
	// --- File Operations ---
	r.Get("/api/files", h.files.ListFiles)
	r.Post("/upload", h.files.UploadFile)
	r.Get("/download/{id}", h.files.DownloadFile)
	r.Post("/delete/{id}", h.files.DeleteFile)

	if h.serveUploads {
		r.Get("/uploads/{name}", h.files.ServeUpload)
	}

	// --- Browser UI ---
	r.Get("/", serveIndex)
	r.Handle("/static/*", http.StripPrefix("/static/", http.FileServer(static.FileSystem())))
}

// serveIndex отдаёт index.html браузерного клиента.
func serveIndex(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(static.IndexHTML())
}

// --- Вспомогательные функции ---

// writeJSON записывает JSON-ответ с указанным статусом.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}
