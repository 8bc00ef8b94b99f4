// Точка входа Expertise Module — модуль чек-листов и сборки заключений.
// Загружает конфигурацию, подключается к PostgreSQL, применяет миграции,
// создаёт клиенты внешних сервисов (файловый сервис, профили), сервисный
// слой и API handlers, запускает пул загрузки фотографий, topologymetrics,
// HTTP-сервер с JWT middleware и graceful shutdown.
package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"

	"github.com/jackc/pgx/v5/stdlib"

	"github.com/stroyexpert/expertise-module/internal/api/handlers"
	"github.com/stroyexpert/expertise-module/internal/api/middleware"
	"github.com/stroyexpert/expertise-module/internal/config"
	"github.com/stroyexpert/expertise-module/internal/database"
	"github.com/stroyexpert/expertise-module/internal/filestore"
	"github.com/stroyexpert/expertise-module/internal/profileclient"
	"github.com/stroyexpert/expertise-module/internal/repository"
	"github.com/stroyexpert/expertise-module/internal/server"
	"github.com/stroyexpert/expertise-module/internal/service"
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
	logger.Info("Expertise Module запускается",
		slog.String("version", config.Version),
		slog.Int("port", cfg.Port),
	)

	if os.Getenv("EM_DEPHEALTH_GROUP") == "" {
		logger.Warn("EM_DEPHEALTH_GROUP не задана, используется значение по умолчанию",
			slog.String("default", cfg.DephealthGroup),
		)
	}

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

	// 4.1 Адаптер pgxpool → *sql.DB для topologymetrics (connection pool mode).
	pgDB := stdlib.OpenDBFromPool(pool)
	defer pgDB.Close()

	// 5. Клиенты внешних сервисов
	fileStore := filestore.New(cfg.FileStoreURL, cfg.FileStoreTimeout, nil, logger)
	profiles := profileclient.New(cfg.ProfileURL, cfg.ProfileTimeout, logger)
	logger.Info("Клиенты внешних сервисов созданы",
		slog.String("filestore_url", cfg.FileStoreURL),
		slog.String("profile_url", cfg.ProfileURL),
	)

	// 6. Repositories
	templateRepo := repository.NewTemplateRepository(pool)
	instanceRepo := repository.NewInstanceRepository(pool)
	expertiseRepo := repository.NewExpertiseRepository(pool)

	// 7. Services
	catalogSvc := service.NewCatalogService(templateRepo, cfg.TemplateCacheSize, cfg.TemplateCacheTTL, logger)
	registry := service.NewRendererRegistry(fileStore, instanceRepo, logger)
	checklistSvc := service.NewChecklistService(catalogSvc, instanceRepo, expertiseRepo, registry, fileStore, logger)
	photoPool := service.NewPhotoPool(expertiseRepo, fileStore, cfg.PhotoWorkers, cfg.PhotoQueueSize, logger)
	documentSvc := service.NewDocumentService(
		expertiseRepo, instanceRepo, catalogSvc,
		fileStore, profiles,
		cfg.ReportTemplateName,
		logger,
	)

	// 8. API handlers
	h := server.Handlers{
		Health: handlers.NewHealthHandler(
			handlers.DependencyCheck{Name: "postgresql", Critical: true, Checker: database.NewPoolChecker(pool)},
			handlers.DependencyCheck{Name: "filestore", Checker: fileStore},
		),
		Templates:  handlers.NewTemplateHandler(catalogSvc, logger),
		Checklists: handlers.NewChecklistHandler(checklistSvc, logger),
		Photos:     handlers.NewPhotoHandler(photoPool, logger),
		Documents:  handlers.NewDocumentHandler(documentSvc, logger),
	}

	// 9. Middleware: metrics → logging → JWT (health и metrics без JWT)
	middlewares := []func(http.Handler) http.Handler{
		middleware.MetricsMiddleware(),
		middleware.RequestLogger(logger),
	}
	if cfg.JWTJWKSURL != "" {
		jwtAuth, jwtErr := middleware.NewJWTAuth(cfg.JWTJWKSURL, cfg.JWTIssuer, logger)
		if jwtErr != nil {
			logger.Error("Ошибка создания JWT middleware", slog.String("error", jwtErr.Error()))
			os.Exit(1)
		}
		middlewares = append(middlewares,
			server.JWTAuthWithExclusions(jwtAuth.Middleware(), "/health/", "/metrics"))
		logger.Info("JWT middleware инициализирован",
			slog.String("jwks_url", cfg.JWTJWKSURL),
			slog.String("issuer", cfg.JWTIssuer),
		)
	} else {
		logger.Warn("EM_JWT_JWKS_URL не задан, аутентификация отключена")
	}

	// 10. Фоновые задачи
	photoPool.Start(ctx)
	defer photoPool.Stop()

	// 10.1 topologymetrics — мониторинг зависимостей
	dephealthSvc, dephealthErr := service.NewDephealthService(
		"expertise-module",
		cfg.DephealthGroup,
		pgDB,
		cfg.DatabaseURL(),
		cfg.FileStoreURL,
		cfg.ProfileURL,
		cfg.DephealthCheckInterval,
		logger,
	)
	if dephealthErr != nil {
		logger.Warn("topologymetrics недоступен, запуск без мониторинга зависимостей",
			slog.String("error", dephealthErr.Error()),
		)
	} else {
		if startErr := dephealthSvc.Start(ctx); startErr != nil {
			logger.Warn("Ошибка запуска topologymetrics",
				slog.String("error", startErr.Error()),
			)
		} else {
			defer dephealthSvc.Stop()
			logger.Info("topologymetrics запущен",
				slog.String("group", cfg.DephealthGroup),
				slog.String("check_interval", cfg.DephealthCheckInterval.String()),
			)
		}
	}

	// 11. HTTP-сервер с graceful shutdown
	srv := server.New(cfg, logger, h, middlewares...)
	if err := srv.Run(); err != nil {
		logger.Error("Ошибка HTTP-сервера", slog.String("error", err.Error()))
		os.Exit(1)
	}
}
