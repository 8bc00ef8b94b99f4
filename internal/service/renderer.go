// renderer.go — контракт отрисовщика чек-листов и статический реестр.
// Отрисовщик инкапсулирует семейство-специфичную обработку данных:
// как вливается payload, как обрабатываются приложенные файлы.
package service

import (
	"context"
	"log/slog"
	"strconv"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/stroyexpert/expertise-module/internal/domain/model"
	"github.com/stroyexpert/expertise-module/internal/repository"
)

// Prometheus-метрики диспетчеризации.
var rendererDispatchTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "em_renderer_dispatch_total",
	Help: "Количество обработок чек-листов по отрисовщикам.",
}, []string{"renderer"})

// UploadFile — файл, приложенный к отправке чек-листа.
// FieldPath — путь поля назначения в данных: ключи через точку,
// индексы записей повторяемых групп — числовыми сегментами
// (например "помещения.0.фото").
type UploadFile struct {
	FieldPath string
	Ext       string
	Data      []byte
}

// FileStore — операции файлового сервиса, нужные отрисовщикам
// и сборке заключения. Реализуется filestore.Client.
type FileStore interface {
	Get(ctx context.Context, name, ext string, bucket model.Bucket, asLink bool) ([]byte, string, error)
	Put(ctx context.Context, name, ext string, bucket model.Bucket, data []byte) error
	Delete(ctx context.Context, name, ext string, bucket model.Bucket) error
}

// Renderer — стратегия обработки данных одного семейства шаблонов.
type Renderer interface {
	// Name возвращает имя отрисовщика для логов и метрик.
	Name() string
	// ApplyUpdate вливает payload и приложенные файлы в экземпляр
	// и сохраняет результат. Загрузка файлов строго до записи в БД:
	// при сбое загрузки состояние экземпляра не меняется.
	ApplyUpdate(ctx context.Context, tpl *model.Template, inst *model.Instance, payload model.DataTree, files []UploadFile) error
	// RemoveFile удаляет ссылку на файл из данных экземпляра и сам
	// объект из файлового сервиса. Отсутствующая ссылка — no-op.
	RemoveFile(ctx context.Context, tpl *model.Template, inst *model.Instance, fileName string, bucket model.Bucket) error
}

// photoTemplateNames — имена шаблонов, обрабатываемых фото-отрисовщиком.
// Таблица статическая: появление нового семейства — изменение кода.
var photoTemplateNames = []string{
	"осмотр_помещений",
	"дефектная_ведомость",
	"ведомость_материалов",
}

// RendererRegistry — статический реестр отрисовщиков: имя шаблона →
// отрисовщик. Для неизвестных имён используется универсальный
// отрисовщик без обработки файлов.
type RendererRegistry struct {
	byName   map[string]Renderer
	fallback Renderer
}

// NewRendererRegistry создаёт реестр со статической таблицей диспетчеризации.
func NewRendererRegistry(files FileStore, instances repository.InstanceRepository, logger *slog.Logger) *RendererRegistry {
	base := baseRenderer{
		instances: instances,
		files:     files,
		logger:    logger.With(slog.String("component", "renderer")),
	}

	photo := &photoRenderer{baseRenderer: base}
	byName := make(map[string]Renderer, len(photoTemplateNames))
	for _, name := range photoTemplateNames {
		byName[name] = photo
	}

	return &RendererRegistry{
		byName:   byName,
		fallback: &genericRenderer{baseRenderer: base},
	}
}

// Resolve возвращает отрисовщик по имени шаблона.
// Для неизвестного имени — универсальный отрисовщик.
func (r *RendererRegistry) Resolve(templateName string) Renderer {
	if rd, ok := r.byName[templateName]; ok {
		rendererDispatchTotal.WithLabelValues(rd.Name()).Inc()
		return rd
	}
	rendererDispatchTotal.WithLabelValues(r.fallback.Name()).Inc()
	return r.fallback
}

// structuralKey возвращает структурный ключ пути поля: числовые
// сегменты (индексы повторяемых групп) отбрасываются.
func structuralKey(fieldPath string) string {
	segs := strings.Split(fieldPath, ".")
	keep := segs[:0]
	for _, s := range segs {
		if _, err := strconv.Atoi(s); err != nil {
			keep = append(keep, s)
		}
	}
	return strings.Join(keep, ".")
}

// nodeTypeAt возвращает тип узла структуры шаблона по структурному
// ключу (ключи через точку, без индексов).
func nodeTypeAt(nodes []model.FieldNode, key string) (model.FieldType, bool) {
	seg, rest, nested := strings.Cut(key, ".")
	for _, n := range nodes {
		if n.Key != seg {
			continue
		}
		if !nested {
			return n.Type, true
		}
		return nodeTypeAt(n.Children, rest)
	}
	return "", false
}
