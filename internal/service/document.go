// document.go — сборка заключения по делу.
//
// Конвейер фиксированный: агрегация данных дела → чтение шаблона
// заключения → индекс закладок → текстовая подстановка → вставка
// изображений → развёртка чек-листов по вопросам → приложения →
// сериализация. Сбой любого шага — ошибка всей сборки, частичный
// документ не возвращается. Конвейер детерминирован: одно состояние
// дела даёт байт-в-байт одинаковый результат.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/stroyexpert/expertise-module/internal/doctpl"
	"github.com/stroyexpert/expertise-module/internal/domain/model"
	"github.com/stroyexpert/expertise-module/internal/profileclient"
	"github.com/stroyexpert/expertise-module/internal/repository"
)

// Prometheus метрики сборки заключений.
var (
	generationTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "em_generation_total",
		Help: "Количество сборок заключений по результату.",
	}, []string{"status"})
	generationDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "em_generation_duration_seconds",
		Help:    "Длительность сборки заключения.",
		Buckets: []float64{0.1, 0.5, 1, 5, 10, 30, 60},
	})
)

// dateLayout — формат дат в тексте заключения.
const dateLayout = "02.01.2006"

// ProfileProvider — чтение профиля эксперта. Реализуется profileclient.Client.
type ProfileProvider interface {
	GetProfile(ctx context.Context, profileID uuid.UUID) (*profileclient.Profile, error)
}

// DocumentService — сборка заключения по делу.
type DocumentService struct {
	expertises   repository.ExpertiseRepository
	instances    repository.InstanceRepository
	catalog      *CatalogService
	files        FileStore
	profiles     ProfileProvider
	templateName string
	logger       *slog.Logger
}

// NewDocumentService создаёт сервис сборки заключений.
// templateName — имя шаблона заключения в bucket templates.
func NewDocumentService(
	expertises repository.ExpertiseRepository,
	instances repository.InstanceRepository,
	catalog *CatalogService,
	files FileStore,
	profiles ProfileProvider,
	templateName string,
	logger *slog.Logger,
) *DocumentService {
	return &DocumentService{
		expertises:   expertises,
		instances:    instances,
		catalog:      catalog,
		files:        files,
		profiles:     profiles,
		templateName: templateName,
		logger:       logger.With(slog.String("component", "document_service")),
	}
}

// Generate собирает заключение по делу и возвращает закодированный
// документ. Файлы подгружаются из файлового сервиса в момент вставки
// и нигде не кэшируются.
func (s *DocumentService) Generate(ctx context.Context, expertiseID uuid.UUID) ([]byte, error) {
	start := time.Now()

	raw, err := s.generate(ctx, expertiseID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, err
		}
		generationTotal.WithLabelValues("error").Inc()
		s.logger.Error("сборка заключения не удалась",
			slog.String("expertise_id", expertiseID.String()),
			slog.String("error", err.Error()))
		return nil, fmt.Errorf("%w: %w", ErrGeneration, err) //nolint:errorlint // намеренный двойной wrap
	}

	generationTotal.WithLabelValues("ok").Inc()
	generationDuration.Observe(time.Since(start).Seconds())
	s.logger.Info("заключение собрано",
		slog.String("expertise_id", expertiseID.String()),
		slog.Int("size_bytes", len(raw)),
		slog.Duration("took", time.Since(start)))
	return raw, nil
}

func (s *DocumentService) generate(ctx context.Context, expertiseID uuid.UUID) ([]byte, error) {
	// Шаг 1: агрегация данных дела.
	e, err := s.expertises.GetExpertise(ctx, expertiseID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, fmt.Errorf("%w: экспертиза %s", ErrNotFound, expertiseID)
		}
		return nil, fmt.Errorf("чтение экспертизы: %w", err)
	}
	questions, err := s.expertises.ListQuestions(ctx, expertiseID)
	if err != nil {
		return nil, fmt.Errorf("чтение вопросов: %w", err)
	}
	profile, err := s.profiles.GetProfile(ctx, e.ProfileID)
	if err != nil {
		return nil, fmt.Errorf("чтение профиля эксперта: %w", err)
	}

	// Шаг 2: шаблон заключения из bucket templates.
	tplRaw, _, err := s.files.Get(ctx, s.templateName, "tpl", model.BucketTemplates, false)
	if err != nil {
		return nil, fmt.Errorf("чтение шаблона заключения %q: %w", s.templateName, err)
	}
	doc, err := doctpl.Decode(tplRaw)
	if err != nil {
		return nil, fmt.Errorf("разбор шаблона заключения: %w", err)
	}

	// Шаг 3: индекс закладок строится один раз на сборку.
	idx, err := doc.IndexBookmarks()
	if err != nil {
		return nil, err
	}

	// Шаг 4: текстовая подстановка. Порядок пар фиксированный.
	if err := s.mergeText(idx, e, questions, profile); err != nil {
		return nil, err
	}

	// Шаг 5: изображения уровня дела.
	if e.MapScreen != nil {
		img, _, err := s.files.Get(ctx, e.MapScreen.Name, e.MapScreen.Ext, e.MapScreen.Bucket, false)
		if err != nil {
			return nil, fmt.Errorf("чтение скриншота карты: %w", err)
		}
		if err := idx.SetImage("карта", img); err != nil {
			return nil, err
		}
	}

	// Шаг 6: развёртка чек-листов и фотографий по вопросам.
	for _, q := range questions {
		blocks, err := s.answerBlocks(ctx, q)
		if err != nil {
			return nil, fmt.Errorf("вопрос %d: %w", q.Position, err)
		}
		if len(blocks) == 0 {
			// Ответ пуст — закладка остаётся пустой.
			continue
		}
		if err := idx.SetBlocks(fmt.Sprintf("ответ_%d", q.Position), blocks); err != nil {
			return nil, err
		}
	}

	// Шаг 7: приложения — квалификационные документы эксперта
	// в фиксированном порядке (внутри группы — по id записи).
	if err := s.appendCredentials(ctx, doc, profile); err != nil {
		return nil, err
	}

	// Шаг 8: сериализация.
	return doc.Encode()
}

// mergeText выполняет текстовую подстановку метаданных дела и профиля.
func (s *DocumentService) mergeText(idx doctpl.BookmarkIndex, e *model.Expertise, questions []*model.Question, profile *profileclient.Profile) error {
	finished := ""
	if e.FinishedAt != nil {
		finished = e.FinishedAt.Format(dateLayout)
	}

	pairs := []struct{ name, text string }{
		{"номер_дела", e.Number},
		{"суд", e.Court},
		{"место_проведения", e.Location},
		{"адрес_объекта", e.ObjectAddress},
		{"истец", e.Claimant},
		{"ответчик", e.Defendant},
		{"дата_начала", e.StartedAt.Format(dateLayout)},
		{"дата_окончания", finished},
		{"эксперт", profile.FullName},
		{"квалификация", formatQualifications(profile.Qualifications)},
	}
	for _, p := range pairs {
		if err := idx.SetText(p.name, p.text); err != nil {
			return err
		}
	}
	for _, q := range questions {
		if err := idx.SetText(fmt.Sprintf("вопрос_%d", q.Position), q.Text); err != nil {
			return err
		}
	}
	return nil
}

// answerBlocks строит содержимое ответа на вопрос: развёрнутые
// чек-листы (в порядке создания), затем отдельные фотографии.
func (s *DocumentService) answerBlocks(ctx context.Context, q *model.Question) ([]doctpl.Block, error) {
	insts, err := s.instances.ListByQuestion(ctx, q.ID)
	if err != nil {
		return nil, fmt.Errorf("чтение чек-листов: %w", err)
	}

	var blocks []doctpl.Block
	for _, inst := range insts {
		tpl, err := s.catalog.GetByID(ctx, inst.TemplateID)
		if err != nil {
			return nil, err
		}
		rendered, err := s.renderNodes(ctx, "", tpl.Structure, inst.Data)
		if err != nil {
			return nil, fmt.Errorf("чек-лист %q: %w", tpl.Name, err)
		}
		blocks = append(blocks, rendered...)
	}

	photos, err := s.expertises.ListPhotos(ctx, q.ID)
	if err != nil {
		return nil, fmt.Errorf("чтение фотографий: %w", err)
	}
	for _, ph := range photos {
		img, err := s.imageBlock(ctx, ph.File)
		if err != nil {
			return nil, err
		}
		blocks = append(blocks, img)
	}
	return blocks, nil
}

// renderNodes разворачивает данные чек-листа по структуре шаблона.
// Структура — источник истины: порядок полей и подписи берутся из неё,
// ключи данных вне структуры игнорируются.
func (s *DocumentService) renderNodes(ctx context.Context, prefix string, nodes []model.FieldNode, data model.DataTree) ([]doctpl.Block, error) {
	var blocks []doctpl.Block
	for _, n := range nodes {
		key := n.Key
		if prefix != "" {
			key = prefix + "." + n.Key
		}

		switch n.Type {
		case model.FieldText, model.FieldNumber, model.FieldDate:
			v, ok := data[key]
			if !ok || v.Kind != model.KindScalar || v.Scalar == "" {
				continue
			}
			blocks = append(blocks, doctpl.Block{
				Type: doctpl.BlockParagraph,
				Text: fmt.Sprintf("%s: %s", n.Label, v.Scalar),
			})

		case model.FieldPhoto:
			v, ok := data[key]
			if !ok || v.Kind != model.KindFile || v.File == nil {
				continue
			}
			img, err := s.imageBlock(ctx, *v.File)
			if err != nil {
				return nil, err
			}
			blocks = append(blocks, img)

		case model.FieldGroup:
			children, err := s.renderNodes(ctx, key, n.Children, data)
			if err != nil {
				return nil, err
			}
			if len(children) == 0 {
				continue
			}
			blocks = append(blocks, doctpl.Block{Type: doctpl.BlockParagraph, Text: n.Label})
			blocks = append(blocks, children...)

		case model.FieldRepeat:
			v, ok := data[key]
			if !ok || v.Kind != model.KindList {
				continue
			}
			for i, item := range v.Items {
				blocks = append(blocks, doctpl.Block{
					Type: doctpl.BlockParagraph,
					Text: fmt.Sprintf("%s %d", n.Label, i+1),
				})
				children, err := s.renderNodes(ctx, "", n.Children, item)
				if err != nil {
					return nil, err
				}
				blocks = append(blocks, children...)
			}
		}
	}
	return blocks, nil
}

// imageBlock подгружает файл и строит блок изображения с границами
// по умолчанию.
func (s *DocumentService) imageBlock(ctx context.Context, ref model.FileRef) (doctpl.Block, error) {
	raw, _, err := s.files.Get(ctx, ref.Name, ref.Ext, ref.Bucket, false)
	if err != nil {
		return doctpl.Block{}, fmt.Errorf("чтение файла %s: %w", ref.Name, err)
	}
	blk, err := doctpl.NewImageBlock(raw)
	if err != nil {
		return doctpl.Block{}, fmt.Errorf("файл %s: %w", ref.Name, err)
	}
	return blk, nil
}

// appendCredentials добавляет квалификационные документы эксперта
// приложениями: дипломы, дополнительные дипломы, сертификаты.
// Внутри группы порядок фиксируется сортировкой по id записи.
func (s *DocumentService) appendCredentials(ctx context.Context, doc *doctpl.Document, profile *profileclient.Profile) error {
	groups := [][]profileclient.CredentialFile{
		profile.Diplomas,
		profile.AdditionalDiplomas,
		profile.Certificates,
	}
	for _, group := range groups {
		sorted := make([]profileclient.CredentialFile, len(group))
		copy(sorted, group)
		sort.Slice(sorted, func(i, j int) bool {
			return strings.Compare(sorted[i].ID.String(), sorted[j].ID.String()) < 0
		})

		for _, cf := range sorted {
			raw, _, err := s.files.Get(ctx, cf.File.Name, cf.File.Ext, cf.File.Bucket, false)
			if err != nil {
				return fmt.Errorf("чтение документа %s: %w", cf.File.Name, err)
			}
			if err := doc.AppendAttachment(raw); err != nil {
				return fmt.Errorf("документ %s: %w", cf.File.Name, err)
			}
		}
	}
	return nil
}

// formatQualifications собирает строку квалификаций для текстовой
// подстановки: "специальность (год)" через точку с запятой.
func formatQualifications(quals []profileclient.Qualification) string {
	parts := make([]string, 0, len(quals))
	for _, q := range quals {
		parts = append(parts, fmt.Sprintf("%s (%d)", q.Speciality, q.IssuedYear))
	}
	return strings.Join(parts, "; ")
}
