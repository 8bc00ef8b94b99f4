// photopool.go — пул фоновой загрузки отдельных фотографий ответов.
//
// Приём фотографии отвечает сразу после постановки в очередь;
// загрузка в файловый сервис и запись в БД выполняются воркерами.
// Очередь ограничена: при заполнении задача отклоняется (ErrQueueFull),
// вызывающая сторона получает явный сигнал backpressure и может
// повторить позже.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/stroyexpert/expertise-module/internal/domain/model"
	"github.com/stroyexpert/expertise-module/internal/repository"
)

// Prometheus метрики пула фотографий.
var (
	photoQueueDepth = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "em_photo_pool_queue_depth",
		Help: "Текущая глубина очереди пула загрузки фотографий.",
	})
	photoRejectedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "em_photo_pool_rejected_total",
		Help: "Количество задач, отклонённых из-за заполненной очереди.",
	})
	photoIngestTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "em_photo_ingest_total",
		Help: "Количество обработанных фотографий по результату.",
	}, []string{"status"})
	photoIngestDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "em_photo_ingest_duration_seconds",
		Help:    "Длительность обработки одной фотографии.",
		Buckets: []float64{0.05, 0.1, 0.5, 1, 5, 10, 30},
	})
)

// photoTask — одна фотография в очереди на загрузку.
type photoTask struct {
	photo model.Photo
	data  []byte
}

// PhotoPool — пул воркеров загрузки фотографий ответов.
type PhotoPool struct {
	expertises repository.ExpertiseRepository
	files      FileStore
	workers    int
	queue      chan photoTask
	logger     *slog.Logger

	wg     sync.WaitGroup
	cancel context.CancelFunc
}

// NewPhotoPool создаёт пул с указанным числом воркеров и ёмкостью очереди.
func NewPhotoPool(expertises repository.ExpertiseRepository, files FileStore, workers, queueSize int, logger *slog.Logger) *PhotoPool {
	return &PhotoPool{
		expertises: expertises,
		files:      files,
		workers:    workers,
		queue:      make(chan photoTask, queueSize),
		logger:     logger.With(slog.String("component", "photo_pool")),
	}
}

// Start запускает воркеры. Вызывается один раз при старте приложения.
func (p *PhotoPool) Start(ctx context.Context) {
	poolCtx, cancel := context.WithCancel(ctx)
	p.cancel = cancel

	for i := 0; i < p.workers; i++ {
		p.wg.Add(1)
		go p.run(poolCtx)
	}

	p.logger.Info("пул загрузки фотографий запущен",
		slog.Int("workers", p.workers),
		slog.Int("queue_size", cap(p.queue)))
}

// Stop останавливает пул: закрывает очередь и дожидается, пока воркеры
// дообработают уже принятые задачи.
func (p *PhotoPool) Stop() {
	close(p.queue)
	p.wg.Wait()
	if p.cancel != nil {
		p.cancel()
	}
	p.logger.Info("пул загрузки фотографий остановлен")
}

// Submit проверяет вопрос и ставит фотографию в очередь на загрузку.
// Возвращает запись фотографии с присвоенным id; сама загрузка
// выполняется асинхронно. При заполненной очереди — ErrQueueFull.
func (p *PhotoPool) Submit(ctx context.Context, questionID uuid.UUID, ext string, data []byte) (*model.Photo, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: пустая фотография", ErrValidation)
	}
	if _, err := p.expertises.GetQuestion(ctx, questionID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, fmt.Errorf("%w: вопрос %s", ErrNotFound, questionID)
		}
		return nil, fmt.Errorf("чтение вопроса: %w", err)
	}

	id := uuid.New()
	photo := model.Photo{
		ID:         id,
		QuestionID: questionID,
		File: model.FileRef{
			Name:   id.String(),
			Ext:    ext,
			Bucket: model.BucketAnswerPhotos,
		},
		CreatedAt: time.Now().UTC(),
	}

	select {
	case p.queue <- photoTask{photo: photo, data: data}:
		photoQueueDepth.Set(float64(len(p.queue)))
		return &photo, nil
	default:
		photoRejectedTotal.Inc()
		return nil, ErrQueueFull
	}
}

// run — цикл воркера: читает очередь до её закрытия.
func (p *PhotoPool) run(ctx context.Context) {
	defer p.wg.Done()
	for task := range p.queue {
		photoQueueDepth.Set(float64(len(p.queue)))
		p.process(ctx, task)
	}
}

// process загружает фотографию и записывает её в БД.
// Порядок строгий: сначала объект, потом строка — ссылка в БД никогда
// не указывает на отсутствующий объект.
func (p *PhotoPool) process(ctx context.Context, task photoTask) {
	start := time.Now()

	ref := task.photo.File
	if err := p.files.Put(ctx, ref.Name, ref.Ext, ref.Bucket, task.data); err != nil {
		photoIngestTotal.WithLabelValues("upload_error").Inc()
		p.logger.Error("загрузка фотографии не удалась",
			slog.String("photo_id", task.photo.ID.String()),
			slog.String("error", err.Error()))
		return
	}
	if err := p.expertises.AddPhoto(ctx, &task.photo); err != nil {
		photoIngestTotal.WithLabelValues("db_error").Inc()
		p.logger.Error("запись фотографии в БД не удалась",
			slog.String("photo_id", task.photo.ID.String()),
			slog.String("error", err.Error()))
		return
	}

	photoIngestTotal.WithLabelValues("ok").Inc()
	photoIngestDuration.Observe(time.Since(start).Seconds())
	p.logger.Debug("фотография загружена",
		slog.String("photo_id", task.photo.ID.String()),
		slog.String("question_id", task.photo.QuestionID.String()))
}
