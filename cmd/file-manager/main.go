// Точка входа File Manager — веб-сервис загрузки, хранения и выдачи файлов.
// Загружает конфигурацию, применяет миграции, подключается к PostgreSQL,
// создаёт файловое хранилище и сервисный слой, запускает фоновые задачи
// (сверка хранилища, topologymetrics) и HTTP-сервер с graceful shutdown.
// Без доступной БД сервис не стартует.
package main

import (
	"context"
	"log/slog"
	"os"

	"github.com/jackc/pgx/v5/stdlib"

	"github.com/bigkaa/filemanager/internal/api/handlers"
	"github.com/bigkaa/filemanager/internal/api/middleware"
	"github.com/bigkaa/filemanager/internal/config"
	"github.com/bigkaa/filemanager/internal/database"
	"github.com/bigkaa/filemanager/internal/repository"
	"github.com/bigkaa/filemanager/internal/server"
	"github.com/bigkaa/filemanager/internal/service"
	"github.com/bigkaa/filemanager/internal/storage/filestore"
)

func main() {
	// 1. Загрузка конфигурации из переменных окружения
	cfg, err := config.Load()
	if err != nil {
		slog.Error("Ошибка загрузки конфигурации", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// 2. Настройка логирования
	logger := config.SetupLogger(cfg)
	logger.Info("File Manager запускается",
		slog.String("version", config.Version),
		slog.Int("port", cfg.Port),
		slog.String("data_dir", cfg.DataDir),
		slog.Int64("max_file_size", cfg.MaxFileSize),
		slog.Any("allowed_types", cfg.AllowedTypes),
	)

	// 3. Применение миграций БД
	logger.Info("Применение миграций БД...")
	if err := database.Migrate(cfg, logger); err != nil {
		logger.Error("Ошибка миграций БД", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// 4. Подключение к PostgreSQL (pgxpool)
	ctx := context.Background()
	pool, err := database.Connect(ctx, cfg, logger)
	if err != nil {
		logger.Error("Ошибка подключения к PostgreSQL", slog.String("error", err.Error()))
		os.Exit(1)
	}
	defer pool.Close()

	// 4.1 Адаптер pgxpool → *sql.DB для topologymetrics (connection pool mode)
	pgDB := stdlib.OpenDBFromPool(pool)
	defer pgDB.Close()

	// 5. Файловое хранилище
	store, err := filestore.New(cfg.DataDir)
	if err != nil {
		logger.Error("Ошибка инициализации директории хранения", slog.String("error", err.Error()))
		os.Exit(1)
	}
	logger.Info("Директория хранения готова", slog.String("path", store.DataDir()))

	// 6. Repository и сервисы
	fileRepo := repository.NewFileRepository(pool)
	cache := service.NewCacheService(cfg.CacheSize, cfg.CacheTTL)
	validator := service.NewUploadValidator(cfg.AllowedTypes, cfg.MaxFileSize)
	filesSvc := service.NewFileService(fileRepo, store, cache, validator, logger)

	if err := filesSvc.SyncFilesGauge(ctx); err != nil {
		logger.Warn("Не удалось инициализировать метрику fm_files_total",
			slog.String("error", err.Error()),
		)
	}

	// 7. Фоновая сверка хранилища (FM_RECONCILE_INTERVAL=0 — отключена)
	var reconcileSvc *service.ReconcileService
	if cfg.ReconcileInterval > 0 {
		reconcileSvc = service.NewReconcileService(fileRepo, store, cfg.ReconcileInterval, cfg.ReconcileGrace, logger)
		reconcileSvc.Start(ctx)
	} else {
		logger.Info("Фоновая сверка хранилища отключена (FM_RECONCILE_INTERVAL=0)")
	}

	// 8. topologymetrics — мониторинг PostgreSQL
	dephealthSvc, dephealthErr := service.NewDephealthService(
		"file-manager",
		cfg.DephealthGroup,
		pgDB,
		cfg.DatabaseURL,
		cfg.DephealthCheckInterval,
		logger,
	)
	if dephealthErr != nil {
		logger.Warn("topologymetrics недоступен, запуск без мониторинга зависимостей",
			slog.String("error", dephealthErr.Error()),
		)
		dephealthSvc = nil
	} else if startErr := dephealthSvc.Start(ctx); startErr != nil {
		logger.Warn("Ошибка запуска topologymetrics", slog.String("error", startErr.Error()))
		dephealthSvc = nil
	} else {
		logger.Info("topologymetrics запущен",
			slog.String("group", cfg.DephealthGroup),
			slog.String("check_interval", cfg.DephealthCheckInterval.String()),
		)
	}

	// 9. Handlers
	healthHandler := handlers.NewHealthHandler(database.NewReadinessChecker(pool), store.DataDir())
	filesHandler := handlers.NewFilesHandler(filesSvc, store, logger)
	apiHandler := handlers.NewAPIHandler(filesHandler, healthHandler, cfg.ServeUploads)

	// 10. Ограничение частоты запросов (FM_RATE_LIMIT_REQUESTS=0 — отключено)
	limiter := middleware.NewRateLimiter(cfg.RateLimitRequests, cfg.RateLimitWindow)
	if limiter != nil {
		logger.Info("Ограничение частоты запросов включено",
			slog.Int("requests", cfg.RateLimitRequests),
			slog.String("window", cfg.RateLimitWindow.String()),
		)
	}

	// 11. Создание и запуск HTTP-сервера
	srv := server.New(cfg, logger, apiHandler, limiter)
	if err := srv.Run(); err != nil {
		logger.Error("Ошибка сервера", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// 12. Graceful shutdown фоновых задач
	logger.Info("Останавливаем фоновые задачи...")
	if dephealthSvc != nil {
		dephealthSvc.Stop()
	}
	if reconcileSvc != nil {
		reconcileSvc.Stop()
	}

	logger.Info("File Manager остановлен")
}
