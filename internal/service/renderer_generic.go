// renderer_generic.go — общая часть отрисовщиков и универсальный
// отрисовщик для шаблонов без семейство-специфичной обработки.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/stroyexpert/expertise-module/internal/domain/model"
	"github.com/stroyexpert/expertise-module/internal/filestore"
	"github.com/stroyexpert/expertise-module/internal/repository"
)

// baseRenderer — общая механика отрисовщиков: слияние payload,
// пересчёт кэша подписей, запись, удаление файлов.
type baseRenderer struct {
	instances repository.InstanceRepository
	files     FileStore
	logger    *slog.Logger
}

// persist пересчитывает кэш подписей из структуры шаблона и сохраняет
// экземпляр. Кэш — производное состояние: источник истины всегда шаблон.
func (b *baseRenderer) persist(ctx context.Context, tpl *model.Template, inst *model.Instance) error {
	inst.FieldNames = tpl.FieldNames()
	if err := b.instances.Upsert(ctx, inst); err != nil {
		return fmt.Errorf("сохранение экземпляра чек-листа: %w", err)
	}
	return nil
}

// removeFileRef удаляет ссылку (fileName, bucket) из данных экземпляра,
// сохраняет экземпляр и затем удаляет объект из файлового сервиса.
// Порядок строгий: сначала БД, потом объект — при сбое удаления объекта
// возможен осиротевший файл, но не висячая ссылка.
func (b *baseRenderer) removeFileRef(ctx context.Context, tpl *model.Template, inst *model.Instance, fileName string, bucket model.Bucket) error {
	var ref *model.FileRef
	for _, f := range inst.Data.Files() {
		if f.Name == fileName && f.Bucket == bucket {
			ref = &f
			break
		}
	}
	if ref == nil {
		// Ссылки нет — операция идемпотентна, повтор безопасен.
		return nil
	}

	inst.Data.RemoveFile(fileName, bucket)
	if err := b.persist(ctx, tpl, inst); err != nil {
		return err
	}

	if err := b.files.Delete(ctx, ref.Name, ref.Ext, ref.Bucket); err != nil {
		if errors.Is(err, filestore.ErrNotFound) {
			// Объекта уже нет — ровно то состояние, к которому мы шли.
			return nil
		}
		// Объект остался без ссылки: не фатально, но логируем.
		b.logger.Warn("объект не удалён из файлового сервиса",
			slog.String("file", ref.Name),
			slog.String("bucket", string(ref.Bucket)),
			slog.String("error", err.Error()))
		return fmt.Errorf("%w: удаление файла %s: %w", ErrIntegration, ref.Name, err) //nolint:errorlint // намеренный двойной wrap
	}
	return nil
}

// genericRenderer — универсальный отрисовщик: вливает payload как есть,
// файлы не принимает.
type genericRenderer struct {
	baseRenderer
}

func (g *genericRenderer) Name() string { return "generic" }

// ApplyUpdate вливает payload в данные экземпляра и сохраняет его.
// Приложенные файлы — ошибка валидации: шаблоны без фото-отрисовщика
// файлов не содержат.
func (g *genericRenderer) ApplyUpdate(ctx context.Context, tpl *model.Template, inst *model.Instance, payload model.DataTree, files []UploadFile) error {
	if len(files) > 0 {
		return fmt.Errorf("%w: шаблон %q не принимает файлы", ErrValidation, tpl.Name)
	}
	inst.Data.Merge(payload)
	return g.persist(ctx, tpl, inst)
}

// RemoveFile удаляет ссылку на файл из данных экземпляра.
func (g *genericRenderer) RemoveFile(ctx context.Context, tpl *model.Template, inst *model.Instance, fileName string, bucket model.Bucket) error {
	return g.removeFileRef(ctx, tpl, inst, fileName, bucket)
}
