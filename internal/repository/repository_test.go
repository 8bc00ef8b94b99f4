package repository

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/stroyexpert/expertise-module/internal/config"
	"github.com/stroyexpert/expertise-module/internal/database"
	"github.com/stroyexpert/expertise-module/internal/domain/model"
)

// setupTestDB запускает PostgreSQL контейнер, применяет миграции.
// Возвращает pgxpool.Pool; контейнер останавливается через t.Cleanup.
func setupTestDB(t *testing.T) *pgxpool.Pool {
	t.Helper()

	if os.Getenv("TEST_INTEGRATION") == "" {
		t.Skip("Пропуск интеграционного теста: TEST_INTEGRATION не установлена")
	}

	ctx := context.Background()

	container, err := postgres.Run(ctx,
		"docker.io/postgres:17-alpine",
		postgres.WithDatabase("expertise_test"),
		postgres.WithUsername("expertise"),
		postgres.WithPassword("test-password"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second),
		),
	)
	if err != nil {
		t.Fatalf("Не удалось запустить PostgreSQL контейнер: %v", err)
	}
	t.Cleanup(func() {
		if err := container.Terminate(ctx); err != nil {
			t.Logf("Ошибка остановки контейнера: %v", err)
		}
	})

	host, err := container.Host(ctx)
	if err != nil {
		t.Fatalf("Не удалось получить host контейнера: %v", err)
	}
	port, err := container.MappedPort(ctx, "5432")
	if err != nil {
		t.Fatalf("Не удалось получить port контейнера: %v", err)
	}

	// Настраиваем env для config.Load()
	t.Setenv("EM_DB_HOST", host)
	t.Setenv("EM_DB_PORT", port.Port())
	t.Setenv("EM_DB_NAME", "expertise_test")
	t.Setenv("EM_DB_USER", "expertise")
	t.Setenv("EM_DB_PASSWORD", "test-password")
	t.Setenv("EM_DB_SSL_MODE", "disable")
	t.Setenv("EM_FILESTORE_URL", "http://localhost:18081")
	t.Setenv("EM_PROFILE_URL", "http://localhost:18082")

	cfg, err := config.Load()
	if err != nil {
		t.Fatalf("Ошибка загрузки конфигурации: %v", err)
	}

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}))

	// Применяем миграции
	if err := database.Migrate(cfg, logger); err != nil {
		t.Fatalf("Ошибка применения миграций: %v", err)
	}

	pool, err := database.Connect(ctx, cfg, logger)
	if err != nil {
		t.Fatalf("Ошибка подключения к PostgreSQL: %v", err)
	}
	t.Cleanup(pool.Close)

	return pool
}

// seedQuestion создаёт экспертизу с одним вопросом и возвращает вопрос.
func seedQuestion(t *testing.T, pool *pgxpool.Pool) *model.Question {
	t.Helper()
	ctx := context.Background()
	repo := NewExpertiseRepository(pool)

	e := &model.Expertise{
		ID:        uuid.New(),
		Number:    "2-1234/2026",
		ProfileID: uuid.New(),
		Court:     "Арбитражный суд г. Москвы",
		StartedAt: time.Now().UTC(),
	}
	if err := repo.CreateExpertise(ctx, e); err != nil {
		t.Fatalf("CreateExpertise: %v", err)
	}

	q := &model.Question{
		ID:          uuid.New(),
		ExpertiseID: e.ID,
		Position:    1,
		Text:        "Соответствует ли объект проектной документации?",
	}
	if err := repo.CreateQuestion(ctx, q); err != nil {
		t.Fatalf("CreateQuestion: %v", err)
	}
	return q
}

// seedTemplate создаёт шаблон с повторяемой группой.
func seedTemplate(t *testing.T, pool *pgxpool.Pool, name string) *model.Template {
	t.Helper()
	repo := NewTemplateRepository(pool)

	tpl := &model.Template{
		ID:   uuid.New(),
		Name: name,
		Structure: []model.FieldNode{
			{Key: "адрес", Label: "Адрес объекта", Type: model.FieldText},
			{Key: "помещения", Label: "Помещения", Type: model.FieldRepeat, Children: []model.FieldNode{
				{Key: "площадь", Label: "Площадь, м²", Type: model.FieldNumber},
				{Key: "фото", Label: "Фотофиксация", Type: model.FieldPhoto},
			}},
		},
	}
	if err := repo.Create(context.Background(), tpl); err != nil {
		t.Fatalf("Create template: %v", err)
	}
	return tpl
}

func TestTemplateRepository_GetIDByName(t *testing.T) {
	pool := setupTestDB(t)
	ctx := context.Background()
	repo := NewTemplateRepository(pool)

	tpl := seedTemplate(t, pool, "осмотр_помещений")

	id, err := repo.GetIDByName(ctx, "осмотр_помещений")
	if err != nil {
		t.Fatalf("GetIDByName: %v", err)
	}
	if id != tpl.ID {
		t.Errorf("GetIDByName = %s, ожидается %s", id, tpl.ID)
	}

	// Несуществующее имя — ErrNotFound
	if _, err := repo.GetIDByName(ctx, "нет_такого"); !errors.Is(err, ErrNotFound) {
		t.Errorf("ожидается ErrNotFound, получено: %v", err)
	}

	// Имя уникально: повторное создание с тем же именем — конфликт
	dup := &model.Template{ID: uuid.New(), Name: "осмотр_помещений",
		Structure: []model.FieldNode{{Key: "x", Label: "X", Type: model.FieldText}}}
	if err := repo.Create(ctx, dup); !errors.Is(err, ErrConflict) {
		t.Errorf("ожидается ErrConflict, получено: %v", err)
	}
}

func TestInstanceRepository_UpsertConverges(t *testing.T) {
	pool := setupTestDB(t)
	ctx := context.Background()
	repo := NewInstanceRepository(pool)

	q := seedQuestion(t, pool)
	tpl := seedTemplate(t, pool, "осмотр_помещений")

	first := &model.Instance{
		ID:         uuid.New(),
		TemplateID: tpl.ID,
		QuestionID: q.ID,
		Data:       model.DataTree{"адрес": model.ScalarValue("адрес 1")},
		FieldNames: tpl.FieldNames(),
	}
	if err := repo.Upsert(ctx, first); err != nil {
		t.Fatalf("первый Upsert: %v", err)
	}

	// Повторная отправка для той же пары — обновление, не дубликат
	second := &model.Instance{
		ID:         uuid.New(),
		TemplateID: tpl.ID,
		QuestionID: q.ID,
		Data:       model.DataTree{"адрес": model.ScalarValue("адрес 2")},
		FieldNames: tpl.FieldNames(),
	}
	if err := repo.Upsert(ctx, second); err != nil {
		t.Fatalf("второй Upsert: %v", err)
	}

	if second.ID != first.ID {
		t.Errorf("upsert должен вернуть id существующей строки: %s != %s", second.ID, first.ID)
	}

	got, err := repo.GetByPair(ctx, q.ID, tpl.ID)
	if err != nil {
		t.Fatalf("GetByPair: %v", err)
	}
	if got.Data["адрес"].Scalar != "адрес 2" {
		t.Errorf("данные не обновлены: %q", got.Data["адрес"].Scalar)
	}

	list, err := repo.ListByQuestion(ctx, q.ID)
	if err != nil {
		t.Fatalf("ListByQuestion: %v", err)
	}
	if len(list) != 1 {
		t.Errorf("строк %d, ожидается ровно одна на пару", len(list))
	}
}

func TestInstanceRepository_DataRoundTrip(t *testing.T) {
	pool := setupTestDB(t)
	ctx := context.Background()
	repo := NewInstanceRepository(pool)

	q := seedQuestion(t, pool)
	tpl := seedTemplate(t, pool, "дефектная_ведомость")

	inst := &model.Instance{
		ID:         uuid.New(),
		TemplateID: tpl.ID,
		QuestionID: q.ID,
		Data: model.DataTree{
			"адрес": model.ScalarValue("г. Москва"),
			"помещения": model.ListValue([]model.DataTree{
				{"фото": model.FileValue(model.FileRef{Name: "p1", Ext: "jpg", Bucket: model.BucketAnswerPhotos})},
			}),
		},
		FieldNames: tpl.FieldNames(),
	}
	if err := repo.Upsert(ctx, inst); err != nil {
		t.Fatalf("Upsert: %v", err)
	}

	got, err := repo.GetByID(ctx, inst.ID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	refs := got.Data.Files()
	if len(refs) != 1 || refs[0].Name != "p1" {
		t.Errorf("файловая ссылка потеряна при хранении: %+v", refs)
	}
	if got.FieldNames["помещения.фото"] != "Фотофиксация" {
		t.Errorf("кэш подписей потерян: %+v", got.FieldNames)
	}
}

func TestExpertiseRepository_QuestionOrder(t *testing.T) {
	pool := setupTestDB(t)
	ctx := context.Background()
	repo := NewExpertiseRepository(pool)

	e := &model.Expertise{
		ID:        uuid.New(),
		Number:    "2-5678/2026",
		ProfileID: uuid.New(),
		StartedAt: time.Now().UTC(),
	}
	if err := repo.CreateExpertise(ctx, e); err != nil {
		t.Fatalf("CreateExpertise: %v", err)
	}

	// Вставляем в обратном порядке позиций
	for _, pos := range []int{3, 1, 2} {
		q := &model.Question{ID: uuid.New(), ExpertiseID: e.ID, Position: pos, Text: "вопрос"}
		if err := repo.CreateQuestion(ctx, q); err != nil {
			t.Fatalf("CreateQuestion: %v", err)
		}
	}

	list, err := repo.ListQuestions(ctx, e.ID)
	if err != nil {
		t.Fatalf("ListQuestions: %v", err)
	}
	if len(list) != 3 {
		t.Fatalf("вопросов %d, ожидается 3", len(list))
	}
	for i, q := range list {
		if q.Position != i+1 {
			t.Errorf("позиция %d на месте %d: порядок должен задаваться делом", q.Position, i)
		}
	}
}
