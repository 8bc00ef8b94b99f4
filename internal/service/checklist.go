// checklist.go — оркестратор чек-листов: приём отправок, чтение,
// удаление файлов и экземпляров. Семейство-специфичная обработка
// делегируется отрисовщику из реестра.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/stroyexpert/expertise-module/internal/domain/model"
	"github.com/stroyexpert/expertise-module/internal/filestore"
	"github.com/stroyexpert/expertise-module/internal/repository"
)

// Prometheus-метрики оркестратора.
var fileCleanupFailuresTotal = promauto.NewCounter(prometheus.CounterOpts{
	Name: "em_file_cleanup_failures_total",
	Help: "Количество файлов, не удалённых при каскадной очистке экземпляра.",
})

// ChecklistService — оркестратор жизненного цикла экземпляров чек-листов.
type ChecklistService struct {
	catalog    *CatalogService
	instances  repository.InstanceRepository
	expertises repository.ExpertiseRepository
	registry   *RendererRegistry
	files      FileStore
	logger     *slog.Logger
}

// NewChecklistService создаёт оркестратор чек-листов.
func NewChecklistService(
	catalog *CatalogService,
	instances repository.InstanceRepository,
	expertises repository.ExpertiseRepository,
	registry *RendererRegistry,
	files FileStore,
	logger *slog.Logger,
) *ChecklistService {
	return &ChecklistService{
		catalog:    catalog,
		instances:  instances,
		expertises: expertises,
		registry:   registry,
		files:      files,
		logger:     logger.With(slog.String("component", "checklist_service")),
	}
}

// Submit обрабатывает отправку чек-листа: находит или создаёт экземпляр
// для пары (вопрос, шаблон) и передаёт обновление отрисовщику.
// Пара — естественный ключ: повторная отправка обновляет тот же
// экземпляр, гонка создания разрешается на уникальном индексе БД.
func (s *ChecklistService) Submit(ctx context.Context, questionID, templateID uuid.UUID, payload model.DataTree, files []UploadFile) (*model.Instance, error) {
	if _, err := s.expertises.GetQuestion(ctx, questionID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, fmt.Errorf("%w: вопрос %s", ErrNotFound, questionID)
		}
		return nil, fmt.Errorf("чтение вопроса: %w", err)
	}

	tpl, err := s.catalog.GetByID(ctx, templateID)
	if err != nil {
		return nil, err
	}

	inst, err := s.instances.GetByPair(ctx, questionID, templateID)
	switch {
	case err == nil:
	case errors.Is(err, repository.ErrNotFound):
		inst = &model.Instance{
			ID:         uuid.New(),
			TemplateID: templateID,
			QuestionID: questionID,
			Data:       model.DataTree{},
			CreatedAt:  time.Now().UTC(),
		}
	default:
		return nil, fmt.Errorf("чтение экземпляра: %w", err)
	}

	rd := s.registry.Resolve(tpl.Name)
	if err := rd.ApplyUpdate(ctx, tpl, inst, payload, files); err != nil {
		return nil, err
	}

	s.logger.Info("чек-лист обновлён",
		slog.String("instance_id", inst.ID.String()),
		slog.String("template", tpl.Name),
		slog.String("renderer", rd.Name()))
	return inst, nil
}

// Get возвращает экземпляр чек-листа по идентификатору.
func (s *ChecklistService) Get(ctx context.Context, instanceID uuid.UUID) (*model.Instance, error) {
	inst, err := s.instances.GetByID(ctx, instanceID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, fmt.Errorf("%w: экземпляр %s", ErrNotFound, instanceID)
		}
		return nil, fmt.Errorf("чтение экземпляра: %w", err)
	}
	return inst, nil
}

// DeleteFile удаляет один файл из данных экземпляра и из файлового
// сервиса. Отсутствующая ссылка — no-op (повтор безопасен).
func (s *ChecklistService) DeleteFile(ctx context.Context, instanceID uuid.UUID, fileName string, bucket model.Bucket) (*model.Instance, error) {
	if !bucket.IsValid() {
		return nil, fmt.Errorf("%w: недопустимый bucket %q", ErrValidation, bucket)
	}

	inst, err := s.Get(ctx, instanceID)
	if err != nil {
		return nil, err
	}
	tpl, err := s.catalog.GetByID(ctx, inst.TemplateID)
	if err != nil {
		return nil, err
	}

	rd := s.registry.Resolve(tpl.Name)
	if err := rd.RemoveFile(ctx, tpl, inst, fileName, bucket); err != nil {
		return nil, err
	}
	return inst, nil
}

// DeleteInstance удаляет экземпляр вместе со всеми файлами, на которые
// ссылается его дерево данных, включая вложенные повторяемые группы.
// Сбой удаления отдельного файла не прерывает очистку: ошибка
// логируется, учитывается в метрике, остальные файлы и строка БД
// удаляются.
func (s *ChecklistService) DeleteInstance(ctx context.Context, instanceID uuid.UUID) error {
	inst, err := s.Get(ctx, instanceID)
	if err != nil {
		return err
	}

	for _, ref := range inst.Data.Files() {
		if err := s.files.Delete(ctx, ref.Name, ref.Ext, ref.Bucket); err != nil && !errors.Is(err, filestore.ErrNotFound) {
			fileCleanupFailuresTotal.Inc()
			s.logger.Warn("файл не удалён при очистке экземпляра",
				slog.String("instance_id", instanceID.String()),
				slog.String("file", ref.Name),
				slog.String("bucket", string(ref.Bucket)),
				slog.String("error", err.Error()))
		}
	}

	if err := s.instances.Delete(ctx, instanceID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return fmt.Errorf("%w: экземпляр %s", ErrNotFound, instanceID)
		}
		return fmt.Errorf("удаление экземпляра: %w", err)
	}

	s.logger.Info("экземпляр чек-листа удалён", slog.String("instance_id", instanceID.String()))
	return nil
}
