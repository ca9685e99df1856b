// Пакет service — бизнес-логика File Manager.
// validator.go — проверка загружаемых файлов до записи на диск.
package service

import (
	"fmt"
	"mime"
	"slices"
	"strings"
	"unicode/utf8"

	apierrors "github.com/bigkaa/filemanager/internal/api/errors"
)

// ValidationError — отказ в загрузке. Code — машиночитаемый код
// (UNSUPPORTED_FILE_TYPE, FILE_TOO_LARGE, VALIDATION_ERROR).
type ValidationError struct {
	Code    string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// UploadValidator проверяет MIME-тип, размер и имя загружаемого файла.
type UploadValidator struct {
	allowed map[string]struct{}
	maxSize int64
}

// NewUploadValidator создаёт валидатор со списком допустимых MIME-типов
// и максимальным размером файла в байтах.
func NewUploadValidator(allowedTypes []string, maxSize int64) *UploadValidator {
	allowed := make(map[string]struct{}, len(allowedTypes))
	for _, t := range allowedTypes {
		if n := NormalizeMimetype(t); n != "" {
			allowed[n] = struct{}{}
		}
	}
	return &UploadValidator{allowed: allowed, maxSize: maxSize}
}

// MaxSize возвращает максимальный допустимый размер файла.
func (v *UploadValidator) MaxSize() int64 {
	return v.maxSize
}

// Validate принимает файл, только если MIME-тип входит в список допустимых
// и 0 <= size <= MaxSize. Проверка выполняется до записи каких-либо данных.
func (v *UploadValidator) Validate(mimetype string, size int64) error {
	if _, ok := v.allowed[NormalizeMimetype(mimetype)]; !ok {
		return &ValidationError{
			Code:    apierrors.CodeUnsupportedFileType,
			Message: "Недопустимый тип файла: разрешены только " + v.allowedList(),
		}
	}
	if size < 0 {
		return &ValidationError{
			Code:    apierrors.CodeValidationError,
			Message: "Некорректный размер файла",
		}
	}
	if size > v.maxSize {
		return v.tooLarge()
	}
	return nil
}

// ValidateFilename проверяет, что оригинальное имя можно сохранить
// в колонке text PostgreSQL: валидный UTF-8 без NUL. Длина не ограничена,
// имя хранится только в метаданных и не попадает в путь на диске.
func (v *UploadValidator) ValidateFilename(name string) error {
	if strings.ContainsRune(name, 0) || !utf8.ValidString(name) {
		return &ValidationError{Code: apierrors.CodeValidationError, Message: "Имя файла содержит недопустимые символы"}
	}
	return nil
}

func (v *UploadValidator) tooLarge() *ValidationError {
	return &ValidationError{
		Code:    apierrors.CodeFileTooLarge,
		Message: fmt.Sprintf("Размер файла превышает допустимый (%d байт)", v.maxSize),
	}
}

func (v *UploadValidator) allowedList() string {
	list := make([]string, 0, len(v.allowed))
	for t := range v.allowed {
		list = append(list, t)
	}
	slices.Sort(list)
	return strings.Join(list, ", ")
}

// NormalizeMimetype приводит MIME-тип к виду "type/subtype" в нижнем регистре,
// отбрасывая параметры. Некорректное значение — пустая строка.
func NormalizeMimetype(mimetype string) string {
	mt, _, err := mime.ParseMediaType(mimetype)
	if err != nil {
		return ""
	}
	return mt
}
