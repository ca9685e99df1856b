// files.go — сервис операций с файлами: загрузка, список, выдача, удаление.
//
// Порядок операций:
//   - загрузка: сначала файл на диск, затем запись метаданных;
//   - удаление: сначала файл с диска, затем запись метаданных.
//
// Транзакции между диском и БД нет. Если запись метаданных не удалась после
// сохранения файла, файл остаётся на диске без записи (orphan) и удаляется
// фоновой сверкой (ReconcileService).
package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/bigkaa/filemanager/internal/api/middleware"
	"github.com/bigkaa/filemanager/internal/domain/model"
	"github.com/bigkaa/filemanager/internal/repository"
	"github.com/bigkaa/filemanager/internal/storage/filestore"
)

// ErrNotFound — файл не найден (нет записи, некорректный ID или нет файла на диске).
var ErrNotFound = errors.New("файл не найден")

// UploadParams — параметры загрузки файла.
type UploadParams struct {
	// Reader — поток данных файла
	Reader io.Reader
	// Filename — оригинальное имя файла
	Filename string
	// Mimetype — MIME-тип, заявленный клиентом
	Mimetype string
	// Size — заявленный размер (из multipart), фактический проверяется при записи
	Size int64
}

// FileService — сервис файловых операций.
type FileService struct {
	repo      repository.FileRepository
	store     *filestore.FileStore
	cache     *CacheService
	validator *UploadValidator
	logger    *slog.Logger
}

// NewFileService создаёт сервис файловых операций.
// cache может быть nil — тогда каждый запрос идёт в БД.
func NewFileService(
	repo repository.FileRepository,
	store *filestore.FileStore,
	cache *CacheService,
	validator *UploadValidator,
	logger *slog.Logger,
) *FileService {
	return &FileService{
		repo:      repo,
		store:     store,
		cache:     cache,
		validator: validator,
		logger:    logger.With(slog.String("component", "files")),
	}
}

// MaxFileSize возвращает максимальный допустимый размер загружаемого файла.
func (s *FileService) MaxFileSize() int64 {
	return s.validator.MaxSize()
}

// Upload проверяет и сохраняет файл, затем регистрирует его метаданные.
// Ошибки валидации — *ValidationError, остальное — внутренние ошибки.
func (s *FileService) Upload(ctx context.Context, params UploadParams) (*model.FileRecord, error) {
	// 1. Валидация до записи каких-либо данных
	if err := s.validator.ValidateFilename(params.Filename); err != nil {
		middleware.OperationsTotal.WithLabelValues("upload", "rejected").Inc()
		return nil, err
	}
	if err := s.validator.Validate(params.Mimetype, params.Size); err != nil {
		middleware.OperationsTotal.WithLabelValues("upload", "rejected").Inc()
		return nil, err
	}
	mimetype := NormalizeMimetype(params.Mimetype)

	// 2. Запись на диск. Читаем не больше maxSize+1 байт, чтобы отличить
	// файл ровно на пределе от превышающего его.
	limited := io.LimitReader(params.Reader, s.validator.MaxSize()+1)
	saved, err := s.store.SaveFile(limited, params.Filename, mimetype)
	if err != nil {
		middleware.OperationsTotal.WithLabelValues("upload", "error").Inc()
		return nil, fmt.Errorf("ошибка сохранения файла: %w", err)
	}

	// 3. Фактический размер мог превысить заявленный
	if saved.Size > s.validator.MaxSize() {
		if rmErr := s.store.Remove(saved.StoragePath); rmErr != nil {
			s.logger.Warn("Не удалось удалить файл, превысивший лимит",
				slog.String("path", saved.StoragePath),
				slog.String("error", rmErr.Error()),
			)
		}
		middleware.OperationsTotal.WithLabelValues("upload", "rejected").Inc()
		return nil, s.validator.tooLarge()
	}

	// 4. Метаданные
	record := &model.FileRecord{
		Filename: params.Filename,
		Path:     saved.StoragePath,
		Mimetype: mimetype,
		Size:     saved.Size,
	}
	if err := s.repo.Create(ctx, record); err != nil {
		// Файл остаётся на диске без записи и будет удалён сверкой
		s.logger.Error("Ошибка записи метаданных, файл остался на диске без записи",
			slog.String("path", saved.StoragePath),
			slog.String("filename", params.Filename),
			slog.String("error", err.Error()),
		)
		middleware.OperationsTotal.WithLabelValues("upload", "error").Inc()
		return nil, fmt.Errorf("ошибка регистрации файла: %w", err)
	}

	if s.cache != nil {
		s.cache.Set(record.ID, record)
	}
	middleware.OperationsTotal.WithLabelValues("upload", "success").Inc()
	middleware.FilesTotal.Inc()

	s.logger.Info("Файл загружен",
		slog.String("file_id", record.ID),
		slog.String("filename", record.Filename),
		slog.String("path", record.Path),
		slog.String("mimetype", record.Mimetype),
		slog.Int64("size", record.Size),
		slog.String("checksum", saved.Checksum),
	)
	return record, nil
}

// List возвращает все зарегистрированные файлы в порядке загрузки.
func (s *FileService) List(ctx context.Context) ([]*model.FileRecord, error) {
	files, err := s.repo.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("ошибка получения списка файлов: %w", err)
	}
	return files, nil
}

// Get возвращает метаданные файла по ID. Неизвестный или некорректный ID — ErrNotFound.
func (s *FileService) Get(ctx context.Context, id string) (*model.FileRecord, error) {
	if s.cache != nil {
		if rec, ok := s.cache.Get(id); ok {
			return rec, nil
		}
	}

	rec, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("ошибка получения метаданных файла: %w", err)
	}

	if s.cache != nil {
		s.cache.Set(id, rec)
	}
	return rec, nil
}

// Open открывает файл для скачивания. Вызывающий закрывает *os.File.
// Запись без файла на диске — ErrNotFound.
func (s *FileService) Open(ctx context.Context, id string) (*os.File, *model.FileRecord, error) {
	rec, err := s.Get(ctx, id)
	if err != nil {
		return nil, nil, err
	}

	f, err := s.store.Open(rec.Path)
	if err != nil {
		if errors.Is(err, filestore.ErrNotFound) || errors.Is(err, filestore.ErrInvalidPath) {
			s.logger.Warn("Запись есть, файл на диске отсутствует",
				slog.String("file_id", rec.ID),
				slog.String("path", rec.Path),
			)
			middleware.OperationsTotal.WithLabelValues("download", "missing").Inc()
			return nil, nil, ErrNotFound
		}
		middleware.OperationsTotal.WithLabelValues("download", "error").Inc()
		return nil, nil, fmt.Errorf("ошибка открытия файла: %w", err)
	}

	middleware.OperationsTotal.WithLabelValues("download", "success").Inc()
	return f, rec, nil
}

// Delete удаляет файл с диска, затем его запись.
// Если файл на диске отсутствует или не удаляется, запись сохраняется.
func (s *FileService) Delete(ctx context.Context, id string) error {
	rec, err := s.Get(ctx, id)
	if err != nil {
		return err
	}

	// 1. Диск
	if err := s.store.Remove(rec.Path); err != nil {
		if errors.Is(err, filestore.ErrNotFound) || errors.Is(err, filestore.ErrInvalidPath) {
			s.logger.Warn("Удаление: файл на диске отсутствует, запись сохранена",
				slog.String("file_id", rec.ID),
				slog.String("path", rec.Path),
			)
			middleware.OperationsTotal.WithLabelValues("delete", "missing").Inc()
			return ErrNotFound
		}
		middleware.OperationsTotal.WithLabelValues("delete", "error").Inc()
		return fmt.Errorf("ошибка удаления файла с диска: %w", err)
	}

	if s.cache != nil {
		s.cache.Delete(id)
	}

	// 2. Метаданные
	if err := s.repo.DeleteByID(ctx, rec.ID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			// Запись удалена параллельным запросом
			middleware.OperationsTotal.WithLabelValues("delete", "missing").Inc()
			return ErrNotFound
		}
		s.logger.Error("Файл удалён с диска, но запись не удалена",
			slog.String("file_id", rec.ID),
			slog.String("path", rec.Path),
			slog.String("error", err.Error()),
		)
		middleware.OperationsTotal.WithLabelValues("delete", "error").Inc()
		return fmt.Errorf("ошибка удаления метаданных файла: %w", err)
	}

	middleware.OperationsTotal.WithLabelValues("delete", "success").Inc()
	middleware.FilesTotal.Dec()

	s.logger.Info("Файл удалён",
		slog.String("file_id", rec.ID),
		slog.String("filename", rec.Filename),
	)
	return nil
}

// SyncFilesGauge выставляет fm_files_total по числу записей в БД.
func (s *FileService) SyncFilesGauge(ctx context.Context) error {
	files, err := s.repo.List(ctx)
	if err != nil {
		return err
	}
	middleware.FilesTotal.Set(float64(len(files)))
	return nil
}
