// files.go — обработчики файловых операций:
// GET /api/files, POST /upload, GET /download/{id}, POST /delete/{id}, GET /uploads/{name}.
package handlers

import (
	"errors"
	"fmt"
	"log/slog"
	"mime"
	"net/http"

	"github.com/go-chi/chi/v5"

	apierrors "github.com/bigkaa/filemanager/internal/api/errors"
	"github.com/bigkaa/filemanager/internal/service"
	"github.com/bigkaa/filemanager/internal/storage/filestore"
)

// multipartOverhead — запас на заголовки multipart сверх максимального размера файла.
const multipartOverhead = 1 << 20

// multipartMemory — часть формы, которая держится в памяти при разборе;
// остальное ParseMultipartForm пишет во временные файлы.
const multipartMemory = 1 << 20

// FilesHandler — обработчик файловых операций.
type FilesHandler struct {
	files  *service.FileService
	store  *filestore.FileStore
	logger *slog.Logger
}

// NewFilesHandler создаёт обработчик файловых операций.
// store используется для прямой раздачи /uploads/*.
func NewFilesHandler(files *service.FileService, store *filestore.FileStore, logger *slog.Logger) *FilesHandler {
	return &FilesHandler{
		files:  files,
		store:  store,
		logger: logger.With(slog.String("component", "files_handler")),
	}
}

// uploadResponse — ответ POST /upload.
type uploadResponse struct {
	Message string `json:"message"`
	ID      string `json:"id"`
}

// messageResponse — ответ с текстовым сообщением.
type messageResponse struct {
	Message string `json:"message"`
}

// ListFiles обрабатывает GET /api/files.
// Возвращает все записи в порядке загрузки; пустое хранилище — [].
func (h *FilesHandler) ListFiles(w http.ResponseWriter, r *http.Request) {
	files, err := h.files.List(r.Context())
	if err != nil {
		h.logger.Error("Ошибка получения списка файлов", slog.String("error", err.Error()))
		apierrors.InternalError(w, "Внутренняя ошибка при получении списка файлов")
		return
	}
	writeJSON(w, http.StatusOK, files)
}

// UploadFile обрабатывает POST /upload (multipart/form-data, поле "file").
func (h *FilesHandler) UploadFile(w http.ResponseWriter, r *http.Request) {
	maxSize := h.files.MaxFileSize()
	r.Body = http.MaxBytesReader(w, r.Body, maxSize+multipartOverhead)

	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			apierrors.WriteError(w, http.StatusBadRequest, apierrors.CodeFileTooLarge,
				fmt.Sprintf("Размер файла превышает допустимый (%d байт)", maxSize))
			return
		}
		apierrors.ValidationError(w, "Ошибка загрузки файла: некорректный multipart-запрос")
		return
	}
	defer func() { _ = r.MultipartForm.RemoveAll() }()

	file, header, err := r.FormFile("file")
	if err != nil {
		apierrors.ValidationError(w, "Ошибка загрузки файла: поле 'file' обязательно")
		return
	}
	defer file.Close()

	record, err := h.files.Upload(r.Context(), service.UploadParams{
		Reader:   file,
		Filename: header.Filename,
		Mimetype: header.Header.Get("Content-Type"),
		Size:     header.Size,
	})
	if err != nil {
		var ve *service.ValidationError
		if errors.As(err, &ve) {
			apierrors.WriteError(w, http.StatusBadRequest, ve.Code, ve.Message)
			return
		}
		h.logger.Error("Ошибка загрузки файла",
			slog.String("filename", header.Filename),
			slog.String("error", err.Error()),
		)
		apierrors.InternalError(w, "Внутренняя ошибка при сохранении файла")
		return
	}

	writeJSON(w, http.StatusOK, uploadResponse{
		Message: "Файл успешно загружен",
		ID:      record.ID,
	})
}

// DownloadFile обрабатывает GET /download/{id}.
// Отдаёт содержимое с оригинальным именем файла в Content-Disposition.
func (h *FilesHandler) DownloadFile(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	f, record, err := h.files.Open(r.Context(), id)
	if err != nil {
		h.writeLookupError(w, id, err)
		return
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		h.logger.Error("Ошибка получения информации о файле",
			slog.String("file_id", id),
			slog.String("error", err.Error()),
		)
		apierrors.InternalError(w, "Внутренняя ошибка при чтении файла")
		return
	}

	w.Header().Set("Content-Type", record.Mimetype)
	w.Header().Set("Content-Disposition", contentDisposition(record.Filename))
	w.Header().Set("X-Content-Type-Options", "nosniff")

	// ServeContent обрабатывает Range и If-Modified-Since
	http.ServeContent(w, r, "", info.ModTime(), f)
}

// DeleteFile обрабатывает POST /delete/{id}.
func (h *FilesHandler) DeleteFile(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	if err := h.files.Delete(r.Context(), id); err != nil {
		h.writeLookupError(w, id, err)
		return
	}

	writeJSON(w, http.StatusOK, messageResponse{Message: "Файл успешно удалён"})
}

// ServeUpload обрабатывает GET /uploads/{name} — прямую раздачу файлов
// из директории хранения. Листинг директории не поддерживается.
func (h *FilesHandler) ServeUpload(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")

	f, err := h.store.Open(name)
	if err != nil {
		if errors.Is(err, filestore.ErrNotFound) || errors.Is(err, filestore.ErrInvalidPath) {
			apierrors.NotFound(w, "Файл не найден")
			return
		}
		h.logger.Error("Ошибка открытия файла",
			slog.String("name", name),
			slog.String("error", err.Error()),
		)
		apierrors.InternalError(w, "Внутренняя ошибка при чтении файла")
		return
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		apierrors.InternalError(w, "Внутренняя ошибка при чтении файла")
		return
	}

	// Content-Type определяется ServeContent по расширению сгенерированного имени
	http.ServeContent(w, r, info.Name(), info.ModTime(), f)
}

// writeLookupError отображает ошибки сервиса в HTTP-ответ.
func (h *FilesHandler) writeLookupError(w http.ResponseWriter, id string, err error) {
	if errors.Is(err, service.ErrNotFound) {
		apierrors.NotFound(w, "Файл не найден")
		return
	}
	h.logger.Error("Ошибка файловой операции",
		slog.String("file_id", id),
		slog.String("error", err.Error()),
	)
	apierrors.InternalError(w, "Внутренняя ошибка файлового хранилища")
}

// contentDisposition формирует заголовок attachment с оригинальным именем (RFC 6266).
// Имена вне ASCII кодируются через filename*.
func contentDisposition(filename string) string {
	if v := mime.FormatMediaType("attachment", map[string]string{"filename": filename}); v != "" {
		return v
	}
	return "attachment"
}
