// Пакет static — встроенный браузерный клиент File Manager.
// Файлы встраиваются в бинарник через //go:embed и раздаются через HTTP.
package static

import (
	"embed"
	"net/http"
)

// content — встроенная файловая система с HTML, JS и CSS клиента.
//
//go:embed index.html css/style.css js/app.js
var content embed.FS

// FileSystem возвращает http.FileSystem для обработки запросов к /static/*.
// Файлы доступны по путям вида /static/css/style.css, /static/js/app.js.
func FileSystem() http.FileSystem {
	return http.FS(content)
}

// IndexHTML возвращает содержимое index.html.
func IndexHTML() []byte {
	data, err := content.ReadFile("index.html")
	if err != nil {
		// index.html встроен при компиляции
		panic(err)
	}
	return data
}
