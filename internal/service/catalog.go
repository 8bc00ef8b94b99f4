// catalog.go — каталог шаблонов чек-листов.
// Чтение с LRU-кэшем (TTL), запись через репозиторий с инвалидацией.
// Обёртка над hashicorp/golang-lru/v2/expirable.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/stroyexpert/expertise-module/internal/domain/model"
	"github.com/stroyexpert/expertise-module/internal/repository"
)

// Prometheus-метрики кэша каталога.
var (
	catalogCacheHitsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "em_template_cache_hits_total",
		Help: "Общее количество попаданий в LRU-кэш шаблонов.",
	})
	catalogCacheMissesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "em_template_cache_misses_total",
		Help: "Общее количество промахов LRU-кэша шаблонов.",
	})
)

// CatalogService — каталог шаблонов чек-листов.
// Структура шаблона неизменяема после создания, поэтому кэш
// инвалидируется только по TTL. Каждый экземпляр модуля имеет
// собственный in-memory кэш (per-instance, stateless архитектура).
type CatalogService struct {
	repo    repository.TemplateRepository
	byID    *expirable.LRU[uuid.UUID, *model.Template]
	idsByNm *expirable.LRU[string, uuid.UUID]
	logger  *slog.Logger
}

// NewCatalogService создаёт каталог с LRU-кэшем указанного размера и TTL.
func NewCatalogService(repo repository.TemplateRepository, maxSize int, ttl time.Duration, logger *slog.Logger) *CatalogService {
	return &CatalogService{
		repo:    repo,
		byID:    expirable.NewLRU[uuid.UUID, *model.Template](maxSize, nil, ttl),
		idsByNm: expirable.NewLRU[string, uuid.UUID](maxSize, nil, ttl),
		logger:  logger.With(slog.String("component", "catalog_service")),
	}
}

// Create регистрирует новый шаблон. Имя уникально в каталоге.
// Структура валидируется до записи в БД.
func (s *CatalogService) Create(ctx context.Context, name string, structure []model.FieldNode) (*model.Template, error) {
	if name == "" {
		return nil, fmt.Errorf("%w: имя шаблона не задано", ErrValidation)
	}
	if err := model.ValidateStructure(structure); err != nil {
		return nil, fmt.Errorf("%w: %s", ErrValidation, err.Error()) //nolint:errorlint // намеренный одиночный wrap
	}

	tpl := &model.Template{
		ID:        uuid.New(),
		Name:      name,
		Structure: structure,
		CreatedAt: time.Now().UTC(),
	}

	if err := s.repo.Create(ctx, tpl); err != nil {
		if errors.Is(err, repository.ErrConflict) {
			return nil, fmt.Errorf("%w: шаблон %q уже существует", ErrValidation, name)
		}
		return nil, fmt.Errorf("создание шаблона: %w", err)
	}

	s.byID.Add(tpl.ID, tpl)
	s.idsByNm.Add(tpl.Name, tpl.ID)
	s.logger.Info("шаблон зарегистрирован", slog.String("template_id", tpl.ID.String()), slog.String("name", name))
	return tpl, nil
}

// ListSummaries возвращает список шаблонов без структуры (id, имя).
// Список не кэшируется: каталог небольшой, запрос дешёвый.
func (s *CatalogService) ListSummaries(ctx context.Context) ([]model.TemplateSummary, error) {
	return s.repo.ListSummaries(ctx)
}

// ListAll возвращает все шаблоны вместе со структурой.
// Попутно прогревает кэш.
func (s *CatalogService) ListAll(ctx context.Context) ([]*model.Template, error) {
	tpls, err := s.repo.ListAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("чтение каталога шаблонов: %w", err)
	}
	for _, tpl := range tpls {
		s.byID.Add(tpl.ID, tpl)
		s.idsByNm.Add(tpl.Name, tpl.ID)
	}
	return tpls, nil
}

// GetByID возвращает шаблон по идентификатору.
func (s *CatalogService) GetByID(ctx context.Context, id uuid.UUID) (*model.Template, error) {
	if tpl, ok := s.byID.Get(id); ok {
		catalogCacheHitsTotal.Inc()
		return tpl, nil
	}
	catalogCacheMissesTotal.Inc()

	tpl, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, fmt.Errorf("%w: шаблон %s", ErrNotFound, id)
		}
		return nil, fmt.Errorf("чтение шаблона: %w", err)
	}

	s.byID.Add(tpl.ID, tpl)
	s.idsByNm.Add(tpl.Name, tpl.ID)
	return tpl, nil
}

// GetIDByName возвращает идентификатор шаблона по имени. Имя — внешний
// ключ шаблона для API-клиентов и сидинга; внутри модуля диспетчеризация
// идёт напрямую по имени, а сборка заключения — по id.
func (s *CatalogService) GetIDByName(ctx context.Context, name string) (uuid.UUID, error) {
	if id, ok := s.idsByNm.Get(name); ok {
		catalogCacheHitsTotal.Inc()
		return id, nil
	}
	catalogCacheMissesTotal.Inc()

	id, err := s.repo.GetIDByName(ctx, name)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return uuid.Nil, fmt.Errorf("%w: шаблон %q", ErrNotFound, name)
		}
		return uuid.Nil, fmt.Errorf("поиск шаблона по имени: %w", err)
	}

	s.idsByNm.Add(name, id)
	return id, nil
}
