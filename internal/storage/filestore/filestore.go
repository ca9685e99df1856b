// Пакет filestore — операции с загруженными файлами на диске.
// Все файлы лежат в одной плоской директории; любое имя, пришедшее
// извне, проходит через Resolve до обращения к файловой системе.
package filestore

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
)

// tmpSuffix — суффикс временных файлов незавершённой записи.
const tmpSuffix = ".tmp"

// Ошибки файлового хранилища.
var (
	// ErrNotFound — файл отсутствует на диске.
	ErrNotFound = errors.New("файл не найден на диске")
	// ErrInvalidPath — имя файла не может быть безопасно сопоставлено
	// с директорией хранения.
	ErrInvalidPath = errors.New("недопустимый путь к файлу")
)

// extByMimetype — расширения для допустимых MIME-типов.
var extByMimetype = map[string]string{
	"image/jpeg":      ".jpg",
	"image/png":       ".png",
	"application/pdf": ".pdf",
}

// FileStore — управление загруженными файлами на диске.
type FileStore struct {
	// dataDir — абсолютный путь к директории хранения (FM_DATA_DIR)
	dataDir string
}

// SaveResult — результат сохранения файла на диск.
type SaveResult struct {
	// StoragePath — имя файла в dataDir
	StoragePath string
	// FullPath — абсолютный путь файла на диске
	FullPath string
	// Size — количество записанных байт
	Size int64
	// Checksum — SHA-256 содержимого
	Checksum string
}

// BlobInfo — сведения о файле в директории хранения.
type BlobInfo struct {
	Name    string
	Size    int64
	ModTime time.Time
}

// New создаёт FileStore. Создаёт директорию, если она не существует.
func New(dataDir string) (*FileStore, error) {
	abs, err := filepath.Abs(dataDir)
	if err != nil {
		return nil, fmt.Errorf("не удалось определить абсолютный путь %s: %w", dataDir, err)
	}
	if err := os.MkdirAll(abs, 0o750); err != nil {
		return nil, fmt.Errorf("не удалось создать директорию данных %s: %w", abs, err)
	}

	return &FileStore{dataDir: filepath.Clean(abs)}, nil
}

// SaveFile записывает данные из reader на диск с подсчётом SHA-256 на лету.
// Имя файла не содержит ничего из переданного клиентом, кроме
// очищенного расширения: {unix_nanos}-{uuid}{ext}.
//
// Паттерн: temp файл → запись + SHA-256 → fsync → atomic rename.
// При ошибке temp файл удаляется.
func (fs *FileStore) SaveFile(reader io.Reader, originalFilename, mimetype string) (*SaveResult, error) {
	storageName := generateStorageName(originalFilename, mimetype)
	fullPath := filepath.Join(fs.dataDir, storageName)
	tmpPath := fullPath + tmpSuffix

	f, err := os.OpenFile(tmpPath, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o640)
	if err != nil {
		return nil, fmt.Errorf("ошибка создания временного файла: %w", err)
	}

	hasher := sha256.New()
	size, err := io.Copy(f, io.TeeReader(reader, hasher))
	if err != nil {
		f.Close()
		os.Remove(tmpPath)
		return nil, fmt.Errorf("ошибка записи данных: %w", err)
	}

	if err := f.Sync(); err != nil {
		f.Close()
		os.Remove(tmpPath)
		return nil, fmt.Errorf("ошибка fsync: %w", err)
	}

	if err := f.Close(); err != nil {
		os.Remove(tmpPath)
		return nil, fmt.Errorf("ошибка закрытия файла: %w", err)
	}

	if err := os.Rename(tmpPath, fullPath); err != nil {
		os.Remove(tmpPath)
		return nil, fmt.Errorf("ошибка атомарного переименования: %w", err)
	}

	return &SaveResult{
		StoragePath: storageName,
		FullPath:    fullPath,
		Size:        size,
		Checksum:    hex.EncodeToString(hasher.Sum(nil)),
	}, nil
}

// Resolve сопоставляет имя файла с абсолютным путём внутри dataDir.
// Компоненты директорий отбрасываются, результат проверяется на
// принадлежность dataDir. Временные файлы недоступны.
func (fs *FileStore) Resolve(storagePath string) (string, error) {
	name := path.Base(strings.ReplaceAll(storagePath, `\`, "/"))
	if name == "." || name == ".." || name == "/" ||
		strings.ContainsRune(name, 0) || strings.HasSuffix(name, tmpSuffix) {
		return "", fmt.Errorf("%w: %q", ErrInvalidPath, storagePath)
	}

	fullPath := filepath.Clean(filepath.Join(fs.dataDir, name))

	rel, err := filepath.Rel(fs.dataDir, fullPath)
	if err != nil || rel == "." || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) ||
		strings.ContainsRune(rel, filepath.Separator) {
		return "", fmt.Errorf("%w: %q", ErrInvalidPath, storagePath)
	}

	return fullPath, nil
}

// Open открывает файл для чтения. Вызывающий код обязан закрыть файл.
func (fs *FileStore) Open(storagePath string) (*os.File, error) {
	fullPath, err := fs.Resolve(storagePath)
	if err != nil {
		return nil, err
	}

	f, err := os.Open(fullPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, storagePath)
		}
		return nil, fmt.Errorf("ошибка открытия файла %s: %w", storagePath, err)
	}

	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("ошибка получения информации о файле %s: %w", storagePath, err)
	}
	if !info.Mode().IsRegular() {
		f.Close()
		return nil, fmt.Errorf("%w: %s", ErrNotFound, storagePath)
	}

	return f, nil
}

// Remove удаляет файл с диска. Отсутствующий файл — ErrNotFound.
func (fs *FileStore) Remove(storagePath string) error {
	fullPath, err := fs.Resolve(storagePath)
	if err != nil {
		return err
	}

	if err := os.Remove(fullPath); err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("%w: %s", ErrNotFound, storagePath)
		}
		return fmt.Errorf("ошибка удаления файла %s: %w", storagePath, err)
	}
	return nil
}

// List возвращает файлы директории хранения, кроме временных.
func (fs *FileStore) List() ([]BlobInfo, error) {
	entries, err := os.ReadDir(fs.dataDir)
	if err != nil {
		return nil, fmt.Errorf("ошибка чтения директории %s: %w", fs.dataDir, err)
	}

	blobs := make([]BlobInfo, 0, len(entries))
	for _, entry := range entries {
		if !entry.Type().IsRegular() || strings.HasSuffix(entry.Name(), tmpSuffix) {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			// Файл удалён между ReadDir и Info
			continue
		}
		blobs = append(blobs, BlobInfo{
			Name:    entry.Name(),
			Size:    info.Size(),
			ModTime: info.ModTime(),
		})
	}
	return blobs, nil
}

// DataDir возвращает абсолютный путь к директории хранения.
func (fs *FileStore) DataDir() string {
	return fs.dataDir
}

// generateStorageName генерирует имя файла для хранения на диске.
// Формат: {unix_nanos}-{uuid}{ext}
// Пример: 1760870400000000000-0b6c2a1e-3d4f-4e5a-9b8c-7d6e5f4a3b2c.pdf
func generateStorageName(originalFilename, mimetype string) string {
	ext, ok := extByMimetype[mimetype]
	if !ok {
		ext = sanitizeExt(filepath.Ext(originalFilename))
	}
	return fmt.Sprintf("%d-%s%s", time.Now().UTC().UnixNano(), uuid.NewString(), ext)
}

// sanitizeExt оставляет в расширении только латинские буквы и цифры.
// Слишком длинные и пустые расширения отбрасываются.
func sanitizeExt(ext string) string {
	ext = strings.TrimPrefix(ext, ".")
	var b strings.Builder
	for _, r := range strings.ToLower(ext) {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		}
	}
	if b.Len() == 0 || b.Len() > 10 {
		return ""
	}
	return "." + b.String()
}
