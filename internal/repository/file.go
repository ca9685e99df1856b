package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/bigkaa/filemanager/internal/domain/model"
)

// fileColumns — список столбцов таблицы files для SELECT-запросов.
const fileColumns = `id::text, filename, path, mimetype, size, upload_timestamp`

// FileRepository — интерфейс доступа к метаданным файлов.
// Обновления не предусмотрены: запись создаётся и удаляется целиком.
type FileRepository interface {
	// Create сохраняет запись. ID и UploadTimestamp заполняются БД.
	Create(ctx context.Context, f *model.FileRecord) error
	// List возвращает все записи в порядке загрузки.
	List(ctx context.Context) ([]*model.FileRecord, error)
	// GetByID возвращает запись по ID или ErrNotFound.
	GetByID(ctx context.Context, id string) (*model.FileRecord, error)
	// DeleteByID удаляет запись по ID или возвращает ErrNotFound.
	DeleteByID(ctx context.Context, id string) error
	// ListPaths возвращает множество имён файлов, на которые ссылаются записи.
	ListPaths(ctx context.Context) (map[string]struct{}, error)
}

// fileRepo — реализация FileRepository поверх PostgreSQL.
type fileRepo struct {
	db DBTX
}

// NewFileRepository создаёт репозиторий метаданных файлов.
func NewFileRepository(db DBTX) FileRepository {
	return &fileRepo{db: db}
}

func (r *fileRepo) Create(ctx context.Context, f *model.FileRecord) error {
	query := `
		INSERT INTO files (filename, path, mimetype, size)
		VALUES ($1, $2, $3, $4)
		RETURNING id::text, upload_timestamp`

	err := r.db.QueryRow(ctx, query, f.Filename, f.Path, f.Mimetype, f.Size).
		Scan(&f.ID, &f.UploadTimestamp)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: файл с таким путём уже зарегистрирован", ErrConflict)
		}
		return fmt.Errorf("ошибка создания записи файла: %w", err)
	}
	f.UploadTimestamp = f.UploadTimestamp.UTC()
	return nil
}

func (r *fileRepo) List(ctx context.Context) ([]*model.FileRecord, error) {
	query := `SELECT ` + fileColumns + ` FROM files ORDER BY upload_timestamp, id`

	rows, err := r.db.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("ошибка получения списка файлов: %w", err)
	}
	defer rows.Close()

	result := make([]*model.FileRecord, 0)
	for rows.Next() {
		f, err := scanFile(rows)
		if err != nil {
			return nil, fmt.Errorf("ошибка сканирования файла: %w", err)
		}
		result = append(result, f)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("ошибка чтения списка файлов: %w", err)
	}
	return result, nil
}

func (r *fileRepo) GetByID(ctx context.Context, id string) (*model.FileRecord, error) {
	// Некорректный UUID не может существовать в таблице
	if _, err := uuid.Parse(id); err != nil {
		return nil, ErrNotFound
	}

	query := `SELECT ` + fileColumns + ` FROM files WHERE id = $1::uuid`

	f, err := scanFile(r.db.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("ошибка получения файла: %w", err)
	}
	return f, nil
}

func (r *fileRepo) DeleteByID(ctx context.Context, id string) error {
	if _, err := uuid.Parse(id); err != nil {
		return ErrNotFound
	}

	tag, err := r.db.Exec(ctx, `DELETE FROM files WHERE id = $1::uuid`, id)
	if err != nil {
		return fmt.Errorf("ошибка удаления файла: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *fileRepo) ListPaths(ctx context.Context) (map[string]struct{}, error) {
	rows, err := r.db.Query(ctx, `SELECT path FROM files`)
	if err != nil {
		return nil, fmt.Errorf("ошибка получения путей файлов: %w", err)
	}
	defer rows.Close()

	paths := make(map[string]struct{})
	for rows.Next() {
		var p string
		if err := rows.Scan(&p); err != nil {
			return nil, fmt.Errorf("ошибка сканирования пути: %w", err)
		}
		paths[p] = struct{}{}
	}
	return paths, rows.Err()
}

// scanFile читает одну строку fileColumns в FileRecord.
func scanFile(row pgx.Row) (*model.FileRecord, error) {
	f := &model.FileRecord{}
	if err := row.Scan(&f.ID, &f.Filename, &f.Path, &f.Mimetype, &f.Size, &f.UploadTimestamp); err != nil {
		return nil, err
	}
	f.UploadTimestamp = f.UploadTimestamp.UTC()
	return f, nil
}
