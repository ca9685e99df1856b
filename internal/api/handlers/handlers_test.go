package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/bigkaa/filemanager/internal/domain/model"
	"github.com/bigkaa/filemanager/internal/repository"
	"github.com/bigkaa/filemanager/internal/service"
	"github.com/bigkaa/filemanager/internal/storage/filestore"
)

const testMaxSize = 64 * 1024

// --- In-memory FileRepository ---

type memFileRepo struct {
	mu      sync.Mutex
	order   []string
	records map[string]*model.FileRecord

	// Переопределения методов (nil — работа с памятью)
	createFn  func(ctx context.Context, f *model.FileRecord) error
	listFn    func(ctx context.Context) ([]*model.FileRecord, error)
	getByIDFn func(ctx context.Context, id string) (*model.FileRecord, error)
}

func newMemFileRepo() *memFileRepo {
	return &memFileRepo{records: make(map[string]*model.FileRecord)}
}

func (m *memFileRepo) Create(ctx context.Context, f *model.FileRecord) error {
	if m.createFn != nil {
		return m.createFn(ctx, f)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	f.ID = uuid.NewString()
	f.UploadTimestamp = time.Now().UTC()
	cp := *f
	m.records[f.ID] = &cp
	m.order = append(m.order, f.ID)
	return nil
}

func (m *memFileRepo) List(ctx context.Context) ([]*model.FileRecord, error) {
	if m.listFn != nil {
		return m.listFn(ctx)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	result := make([]*model.FileRecord, 0, len(m.records))
	for _, id := range m.order {
		if r, ok := m.records[id]; ok {
			cp := *r
			result = append(result, &cp)
		}
	}
	return result, nil
}

func (m *memFileRepo) GetByID(ctx context.Context, id string) (*model.FileRecord, error) {
	if m.getByIDFn != nil {
		return m.getByIDFn(ctx, id)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.records[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *r
	return &cp, nil
}

func (m *memFileRepo) DeleteByID(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.records[id]; !ok {
		return repository.ErrNotFound
	}
	delete(m.records, id)
	return nil
}

func (m *memFileRepo) ListPaths(_ context.Context) (map[string]struct{}, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	paths := make(map[string]struct{}, len(m.records))
	for _, r := range m.records {
		paths[r.Path] = struct{}{}
	}
	return paths, nil
}

// --- Test environment ---

type testEnv struct {
	router http.Handler
	repo   *memFileRepo
	store  *filestore.FileStore
}

func setupTestEnv(t *testing.T) *testEnv {
	t.Helper()

	store, err := filestore.New(t.TempDir())
	if err != nil {
		t.Fatalf("Ошибка создания FileStore: %v", err)
	}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	repo := newMemFileRepo()

	validator := service.NewUploadValidator([]string{"image/jpeg", "image/png", "application/pdf"}, testMaxSize)
	// Без кэша: тесты подменяют репозиторий на лету
	files := service.NewFileService(repo, store, nil, validator, logger)

	api := NewAPIHandler(
		NewFilesHandler(files, store, logger),
		NewHealthHandler(stubChecker{status: "ok"}, store.DataDir()),
		true,
	)
	router := chi.NewRouter()
	api.MountProbes(router)
	api.MountApp(router)

	return &testEnv{router: router, repo: repo, store: store}
}

func (e *testEnv) do(req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)
	return rec
}

// uploadRequest формирует multipart-запрос с полем field.
func uploadRequest(t *testing.T, field, filename, contentType string, data []byte) *http.Request {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)

	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name=%q; filename=%q`, field, filename))
	h.Set("Content-Type", contentType)
	part, err := mw.CreatePart(h)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := part.Write(data); err != nil {
		t.Fatal(err)
	}
	if err := mw.Close(); err != nil {
		t.Fatal(err)
	}

	req := httptest.NewRequest(http.MethodPost, "/upload", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func (e *testEnv) upload(t *testing.T, filename, contentType string, data []byte) string {
	t.Helper()
	rec := e.do(uploadRequest(t, "file", filename, contentType, data))
	if rec.Code != http.StatusOK {
		t.Fatalf("upload %q: статус %d, тело %s", filename, rec.Code, rec.Body.String())
	}
	var resp uploadResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("декодирование ответа: %v", err)
	}
	if resp.ID == "" || resp.Message == "" {
		t.Fatalf("неполный ответ: %+v", resp)
	}
	return resp.ID
}

func (e *testEnv) list(t *testing.T) []model.FileRecord {
	t.Helper()
	rec := e.do(httptest.NewRequest(http.MethodGet, "/api/files", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("GET /api/files: статус %d", rec.Code)
	}
	var files []model.FileRecord
	if err := json.NewDecoder(rec.Body).Decode(&files); err != nil {
		t.Fatalf("декодирование списка: %v", err)
	}
	return files
}

func (e *testEnv) blobCount(t *testing.T) int {
	t.Helper()
	blobs, err := e.store.List()
	if err != nil {
		t.Fatal(err)
	}
	return len(blobs)
}

func errorCode(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var body struct {
		Error struct {
			Code    string `json:"code"`
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("тело ошибки не JSON: %v", err)
	}
	return body.Error.Code
}

type stubChecker struct {
	status string
}

func (c stubChecker) CheckReady() (string, string) {
	return c.status, "stub"
}

// --- List ---

func TestListFiles_Empty(t *testing.T) {
	env := setupTestEnv(t)
	rec := env.do(httptest.NewRequest(http.MethodGet, "/api/files", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("статус %d", rec.Code)
	}
	if got := strings.TrimSpace(rec.Body.String()); got != "[]" {
		t.Errorf("ожидался пустой массив, получено %s", got)
	}
}

func TestListFiles_StoreError(t *testing.T) {
	env := setupTestEnv(t)
	env.repo.listFn = func(context.Context) ([]*model.FileRecord, error) {
		return nil, errors.New("connection refused: 10.0.0.5:5432")
	}

	rec := env.do(httptest.NewRequest(http.MethodGet, "/api/files", nil))

	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("статус %d, ожидалось 500", rec.Code)
	}
	body := rec.Body.String()
	if strings.Contains(body, "connection refused") || strings.Contains(body, "10.0.0.5") {
		t.Errorf("детали ошибки попали в ответ: %s", body)
	}
	if code := errorCode(t, rec); code != "INTERNAL_ERROR" {
		t.Errorf("code = %q, ожидался INTERNAL_ERROR", code)
	}
}

// --- Upload / Download round trip ---

func TestUploadDownloadRoundTrip(t *testing.T) {
	env := setupTestEnv(t)
	data := []byte("\x89PNG\r\n\x1a\n fake image")

	id := env.upload(t, "фото отпуска.png", "image/png", data)

	files := env.list(t)
	if len(files) != 1 {
		t.Fatalf("ожидалась 1 запись, получено %d", len(files))
	}
	f := files[0]
	if f.ID != id || f.Filename != "фото отпуска.png" || f.Mimetype != "image/png" || f.Size != int64(len(data)) {
		t.Errorf("неожиданная запись: %+v", f)
	}
	if f.UploadTimestamp.IsZero() {
		t.Error("uploadTimestamp не заполнен")
	}

	rec := env.do(httptest.NewRequest(http.MethodGet, "/download/"+id, nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("download: статус %d", rec.Code)
	}
	if !bytes.Equal(rec.Body.Bytes(), data) {
		t.Error("содержимое не совпадает с загруженным")
	}
	if ct := rec.Header().Get("Content-Type"); ct != "image/png" {
		t.Errorf("Content-Type = %q", ct)
	}
	cd := rec.Header().Get("Content-Disposition")
	if !strings.HasPrefix(cd, "attachment") || !strings.Contains(cd, "filename") {
		t.Errorf("Content-Disposition = %q", cd)
	}
}

func TestUpload_ListOrder(t *testing.T) {
	env := setupTestEnv(t)
	names := []string{"a.pdf", "b.jpg", "c.png"}
	types := []string{"application/pdf", "image/jpeg", "image/png"}
	for i := range names {
		env.upload(t, names[i], types[i], []byte(names[i]))
	}

	files := env.list(t)
	if len(files) != len(names) {
		t.Fatalf("ожидалось %d записей, получено %d", len(names), len(files))
	}
	for i, f := range files {
		if f.Filename != names[i] {
			t.Errorf("files[%d] = %q, ожидалось %q", i, f.Filename, names[i])
		}
	}
}

func TestUpload_Rejected(t *testing.T) {
	tests := []struct {
		name     string
		field    string
		filename string
		ctype    string
		data     []byte
		wantCode string
	}{
		{"недопустимый тип", "file", "notes.txt", "text/plain", []byte("hello"), "UNSUPPORTED_FILE_TYPE"},
		{"gif", "file", "a.gif", "image/gif", []byte("GIF89a"), "UNSUPPORTED_FILE_TYPE"},
		{"превышен размер", "file", "big.png", "image/png", bytes.Repeat([]byte("x"), testMaxSize+1), "FILE_TOO_LARGE"},
		{"нет поля file", "document", "a.png", "image/png", []byte("x"), "VALIDATION_ERROR"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := setupTestEnv(t)
			rec := env.do(uploadRequest(t, tt.field, tt.filename, tt.ctype, tt.data))

			if rec.Code != http.StatusBadRequest {
				t.Fatalf("статус: ожидалось 400, получено %d (%s)", rec.Code, rec.Body.String())
			}
			if code := errorCode(t, rec); code != tt.wantCode {
				t.Errorf("code = %q, ожидался %q", code, tt.wantCode)
			}
			if n := env.blobCount(t); n != 0 {
				t.Errorf("на диске %d файлов, ожидалось 0", n)
			}
			if files := env.list(t); len(files) != 0 {
				t.Errorf("создано %d записей, ожидалось 0", len(files))
			}
		})
	}
}

func TestUpload_LongFilename(t *testing.T) {
	env := setupTestEnv(t)
	name := strings.Repeat("отчёт", 30) + ".pdf"

	id := env.upload(t, name, "application/pdf", []byte("%PDF-1.4"))

	files := env.list(t)
	if len(files) != 1 || files[0].ID != id || files[0].Filename != name {
		t.Errorf("неожиданный список: %+v", files)
	}
}

func TestUpload_MetadataFailure(t *testing.T) {
	env := setupTestEnv(t)
	env.repo.createFn = func(context.Context, *model.FileRecord) error {
		return errors.New("pq: duplicate key value violates unique constraint")
	}

	rec := env.do(uploadRequest(t, "file", "a.pdf", "application/pdf", []byte("%PDF-1.4")))

	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("статус %d, ожидалось 500", rec.Code)
	}
	if strings.Contains(rec.Body.String(), "duplicate key") {
		t.Errorf("детали ошибки попали в ответ: %s", rec.Body.String())
	}
	if code := errorCode(t, rec); code != "INTERNAL_ERROR" {
		t.Errorf("code = %q, ожидался INTERNAL_ERROR", code)
	}
	// Файл остаётся на диске до фоновой сверки
	if n := env.blobCount(t); n != 1 {
		t.Errorf("на диске %d файлов, ожидался 1", n)
	}
}

func TestUpload_ExactlyMaxSize(t *testing.T) {
	env := setupTestEnv(t)
	env.upload(t, "max.pdf", "application/pdf", bytes.Repeat([]byte("x"), testMaxSize))
	if n := env.blobCount(t); n != 1 {
		t.Errorf("на диске %d файлов, ожидался 1", n)
	}
}

func TestUpload_BodyOverLimit(t *testing.T) {
	env := setupTestEnv(t)
	req := uploadRequest(t, "file", "huge.png", "image/png", bytes.Repeat([]byte("x"), testMaxSize+multipartOverhead+1024))

	rec := env.do(req)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("статус: ожидалось 400, получено %d", rec.Code)
	}
	if n := env.blobCount(t); n != 0 {
		t.Errorf("на диске %d файлов, ожидалось 0", n)
	}
}

func TestUpload_NotMultipart(t *testing.T) {
	env := setupTestEnv(t)
	req := httptest.NewRequest(http.MethodPost, "/upload", strings.NewReader(`{"file":"x"}`))
	req.Header.Set("Content-Type", "application/json")

	rec := env.do(req)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("статус: ожидалось 400, получено %d", rec.Code)
	}
	if code := errorCode(t, rec); code != "VALIDATION_ERROR" {
		t.Errorf("code = %q", code)
	}
}

func TestUpload_ClientFilenameNotUsedAsPath(t *testing.T) {
	env := setupTestEnv(t)
	env.upload(t, "../../../evil.png", "image/png", []byte("x"))

	files := env.list(t)
	if len(files) != 1 {
		t.Fatalf("ожидалась 1 запись")
	}
	if strings.Contains(files[0].Path, "..") || strings.Contains(files[0].Path, "evil") {
		t.Errorf("путь хранения содержит имя клиента: %q", files[0].Path)
	}
	if _, err := os.Stat(filepath.Join(env.store.DataDir(), files[0].Path)); err != nil {
		t.Errorf("файл не в директории хранения: %v", err)
	}
	// multipart отбрасывает каталоги из имени файла
	if files[0].Filename != "evil.png" {
		t.Errorf("Filename = %q, ожидалось %q", files[0].Filename, "evil.png")
	}
}

// --- Download ---

func TestDownload_NotFound(t *testing.T) {
	env := setupTestEnv(t)

	for _, id := range []string{uuid.NewString(), "not-a-uuid", "..%2F..%2Fetc%2Fpasswd"} {
		rec := env.do(httptest.NewRequest(http.MethodGet, "/download/"+id, nil))
		if rec.Code != http.StatusNotFound {
			t.Errorf("GET /download/%s: статус %d, ожидалось 404", id, rec.Code)
		}
	}
}

func TestDownload_MissingBlob(t *testing.T) {
	env := setupTestEnv(t)
	id := env.upload(t, "a.pdf", "application/pdf", []byte("pdf"))
	files := env.list(t)
	if err := os.Remove(filepath.Join(env.store.DataDir(), files[0].Path)); err != nil {
		t.Fatal(err)
	}

	rec := env.do(httptest.NewRequest(http.MethodGet, "/download/"+id, nil))
	if rec.Code != http.StatusNotFound {
		t.Errorf("статус %d, ожидалось 404", rec.Code)
	}
}

func TestDownload_TraversalInStoredPath(t *testing.T) {
	env := setupTestEnv(t)

	// Файл рядом с директорией хранения
	outside := filepath.Join(filepath.Dir(env.store.DataDir()), "secret.txt")
	if err := os.WriteFile(outside, []byte("secret"), 0o600); err != nil {
		t.Fatal(err)
	}

	env.repo.getByIDFn = func(_ context.Context, id string) (*model.FileRecord, error) {
		return &model.FileRecord{ID: id, Filename: "x", Path: "../secret.txt", Mimetype: "text/plain"}, nil
	}

	rec := env.do(httptest.NewRequest(http.MethodGet, "/download/"+uuid.NewString(), nil))
	if rec.Code != http.StatusNotFound {
		t.Errorf("статус %d, ожидалось 404", rec.Code)
	}
	if strings.Contains(rec.Body.String(), "secret") {
		t.Error("содержимое файла вне директории хранения отдано клиенту")
	}
}

func TestDownload_Range(t *testing.T) {
	env := setupTestEnv(t)
	id := env.upload(t, "a.pdf", "application/pdf", []byte("0123456789"))

	req := httptest.NewRequest(http.MethodGet, "/download/"+id, nil)
	req.Header.Set("Range", "bytes=2-4")
	rec := env.do(req)

	if rec.Code != http.StatusPartialContent {
		t.Fatalf("статус %d, ожидалось 206", rec.Code)
	}
	if rec.Body.String() != "234" {
		t.Errorf("тело = %q", rec.Body.String())
	}
}

// --- Delete ---

func TestDelete_ThenDownloadAndDeleteAgain(t *testing.T) {
	env := setupTestEnv(t)
	id := env.upload(t, "a.jpg", "image/jpeg", []byte("jpeg"))

	rec := env.do(httptest.NewRequest(http.MethodPost, "/delete/"+id, nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("delete: статус %d", rec.Code)
	}
	var resp messageResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil || resp.Message == "" {
		t.Errorf("некорректный ответ: %v, %+v", err, resp)
	}

	if rec := env.do(httptest.NewRequest(http.MethodGet, "/download/"+id, nil)); rec.Code != http.StatusNotFound {
		t.Errorf("download после удаления: статус %d", rec.Code)
	}
	if rec := env.do(httptest.NewRequest(http.MethodPost, "/delete/"+id, nil)); rec.Code != http.StatusNotFound {
		t.Errorf("повторное удаление: статус %d", rec.Code)
	}
	if files := env.list(t); len(files) != 0 {
		t.Errorf("список после удаления: %d записей", len(files))
	}
	if n := env.blobCount(t); n != 0 {
		t.Errorf("на диске осталось %d файлов", n)
	}
}

func TestDelete_NotFound(t *testing.T) {
	env := setupTestEnv(t)
	for _, id := range []string{uuid.NewString(), "garbage"} {
		rec := env.do(httptest.NewRequest(http.MethodPost, "/delete/"+id, nil))
		if rec.Code != http.StatusNotFound {
			t.Errorf("POST /delete/%s: статус %d", id, rec.Code)
		}
		if code := errorCode(t, rec); code != "NOT_FOUND" {
			t.Errorf("code = %q", code)
		}
	}
}

func TestDelete_MissingBlobKeepsRecord(t *testing.T) {
	env := setupTestEnv(t)
	id := env.upload(t, "a.png", "image/png", []byte("png"))
	files := env.list(t)
	if err := os.Remove(filepath.Join(env.store.DataDir(), files[0].Path)); err != nil {
		t.Fatal(err)
	}

	rec := env.do(httptest.NewRequest(http.MethodPost, "/delete/"+id, nil))
	if rec.Code != http.StatusNotFound {
		t.Errorf("статус %d, ожидалось 404", rec.Code)
	}
	if files := env.list(t); len(files) != 1 {
		t.Errorf("запись должна сохраниться, записей: %d", len(files))
	}
}

// --- /uploads ---

func TestServeUpload(t *testing.T) {
	env := setupTestEnv(t)
	env.upload(t, "doc.pdf", "application/pdf", []byte("%PDF"))
	path := env.list(t)[0].Path

	rec := env.do(httptest.NewRequest(http.MethodGet, "/uploads/"+path, nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("статус %d", rec.Code)
	}
	if rec.Body.String() != "%PDF" {
		t.Errorf("тело = %q", rec.Body.String())
	}

	for _, name := range []string{"missing.pdf", "..%2F..%2Fetc%2Fpasswd", ".health_check.tmp"} {
		if rec := env.do(httptest.NewRequest(http.MethodGet, "/uploads/"+name, nil)); rec.Code != http.StatusNotFound {
			t.Errorf("GET /uploads/%s: статус %d, ожидалось 404", name, rec.Code)
		}
	}
}

// --- UI ---

func TestIndexAndStatic(t *testing.T) {
	env := setupTestEnv(t)

	rec := env.do(httptest.NewRequest(http.MethodGet, "/", nil))
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "upload-form") {
		t.Errorf("GET /: статус %d", rec.Code)
	}

	rec = env.do(httptest.NewRequest(http.MethodGet, "/static/js/app.js", nil))
	if rec.Code != http.StatusOK {
		t.Errorf("GET /static/js/app.js: статус %d", rec.Code)
	}
}

// --- contentDisposition ---

func TestContentDisposition(t *testing.T) {
	tests := []struct {
		in       string
		contains string
	}{
		{"report.pdf", `filename=report.pdf`},
		{"my report.pdf", `filename="my report.pdf"`},
		{"отчёт.pdf", `filename*=utf-8''`},
	}
	for _, tt := range tests {
		got := contentDisposition(tt.in)
		if !strings.HasPrefix(got, "attachment") || !strings.Contains(got, tt.contains) {
			t.Errorf("contentDisposition(%q) = %q, ожидалось вхождение %q", tt.in, got, tt.contains)
		}
	}
}
