// Пакет model — доменные модели File Manager.
package model

import (
	"time"
)

// FileRecord — метаданные загруженного файла (таблица files).
// Запись создаётся после успешной записи файла на диск и никогда
// не изменяется; удаляется вместе с файлом.
type FileRecord struct {
	// ID — уникальный идентификатор (UUID), генерируется БД при создании
	ID string `json:"id"`

	// Filename — оригинальное имя файла, переданное клиентом.
	// Используется для отображения и как имя при скачивании.
	Filename string `json:"filename"`

	// Path — имя файла в директории хранения, сгенерированное сервером.
	// Формат: {unix_nanos}-{uuid}{ext}
	Path string `json:"path"`

	// Mimetype — MIME-тип, прошедший валидацию
	Mimetype string `json:"mimetype"`

	// Size — размер файла в байтах
	Size int64 `json:"size"`

	// UploadTimestamp — время загрузки (UTC), устанавливается БД
	UploadTimestamp time.Time `json:"uploadTimestamp"`
}
