package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/stroyexpert/expertise-module/internal/domain/model"
	"github.com/stroyexpert/expertise-module/internal/repository"
)

// inspectionTemplate — шаблон осмотра помещений с повторяемой группой
// и полем фотофиксации.
func inspectionTemplate() *model.Template {
	return &model.Template{
		ID:   uuid.New(),
		Name: "осмотр_помещений",
		Structure: []model.FieldNode{
			{Key: "адрес", Label: "Адрес объекта", Type: model.FieldText},
			{Key: "помещения", Label: "Помещение", Type: model.FieldRepeat, Children: []model.FieldNode{
				{Key: "наименование", Label: "Наименование", Type: model.FieldText},
				{Key: "площадь", Label: "Площадь, кв. м", Type: model.FieldNumber},
				{Key: "фото", Label: "Фотофиксация", Type: model.FieldPhoto},
			}},
		},
		CreatedAt: time.Now().UTC(),
	}
}

// newTestChecklist собирает оркестратор с каталогом, обслуживающим
// один шаблон, и реестром отрисовщиков поверх моков.
func newTestChecklist(tpl *model.Template, instances *mockInstanceRepo, expertises *mockExpertiseRepo, store *mockFileStore) *ChecklistService {
	logger := slog.Default()
	catalog := NewCatalogService(&mockTemplateRepo{
		getByIDFn: func(_ context.Context, id uuid.UUID) (*model.Template, error) {
			if id == tpl.ID {
				return tpl, nil
			}
			return nil, repository.ErrNotFound
		},
	}, 16, time.Minute, logger)
	registry := NewRendererRegistry(store, instances, logger)
	return NewChecklistService(catalog, instances, expertises, registry, store, logger)
}

func questionStub(id uuid.UUID) *mockExpertiseRepo {
	return &mockExpertiseRepo{
		getQuestionFn: func(_ context.Context, qid uuid.UUID) (*model.Question, error) {
			if qid == id {
				return &model.Question{ID: qid, Position: 1, Text: "Вопрос"}, nil
			}
			return nil, repository.ErrNotFound
		},
	}
}

// TestChecklistService_Submit_CreatesInstance проверяет создание
// экземпляра: слияние payload, загрузку приложенных файлов по
// детерминированным ключам и сохранение.
func TestChecklistService_Submit_CreatesInstance(t *testing.T) {
	tpl := inspectionTemplate()
	questionID := uuid.New()
	store := newMockFileStore()

	var saved *model.Instance
	instances := &mockInstanceRepo{
		upsertFn: func(_ context.Context, inst *model.Instance) error {
			if len(store.puts) != 2 {
				t.Errorf("к моменту записи загружено %d файлов, ожидалось 2", len(store.puts))
			}
			saved = inst
			return nil
		},
	}

	svc := newTestChecklist(tpl, instances, questionStub(questionID), store)

	payload := model.DataTree{
		"адрес": model.ScalarValue("г. Москва, ул. Строителей, 5"),
		"помещения": model.ListValue([]model.DataTree{
			{"наименование": model.ScalarValue("Кухня"), "площадь": model.ScalarValue("12.5")},
			{"наименование": model.ScalarValue("Санузел"), "площадь": model.ScalarValue("4.1")},
		}),
	}
	files := []UploadFile{
		{FieldPath: "помещения.0.фото", Ext: "jpg", Data: []byte("photo-0")},
		{FieldPath: "помещения.1.фото", Ext: "jpg", Data: []byte("photo-1")},
	}

	inst, err := svc.Submit(context.Background(), questionID, tpl.ID, payload, files)
	if err != nil {
		t.Fatalf("Submit ошибка: %v", err)
	}
	if saved == nil || saved.ID != inst.ID {
		t.Fatal("экземпляр не сохранён")
	}

	rooms := inst.Data["помещения"]
	if len(rooms.Items) != 2 {
		t.Fatalf("записей группы = %d, ожидалось 2", len(rooms.Items))
	}
	wantName := fmt.Sprintf("%s_помещения-0-фото_0", inst.ID)
	ref := rooms.Items[0]["фото"]
	if ref.Kind != model.KindFile || ref.File == nil {
		t.Fatal("в первой записи нет файловой ссылки")
	}
	if ref.File.Name != wantName {
		t.Errorf("ключ объекта = %q, ожидался %q", ref.File.Name, wantName)
	}
	if ref.File.Bucket != model.BucketAnswerPhotos {
		t.Errorf("bucket = %q, ожидался answer-photos", ref.File.Bucket)
	}
	if inst.FieldNames["помещения.фото"] != "Фотофиксация" {
		t.Errorf("кэш подписей не пересчитан: %v", inst.FieldNames)
	}
}

// TestChecklistService_Submit_UpdatesExisting проверяет, что повторная
// отправка для той же пары обновляет существующий экземпляр.
func TestChecklistService_Submit_UpdatesExisting(t *testing.T) {
	tpl := inspectionTemplate()
	questionID := uuid.New()
	existing := &model.Instance{
		ID:         uuid.New(),
		TemplateID: tpl.ID,
		QuestionID: questionID,
		Data:       model.DataTree{"адрес": model.ScalarValue("старый адрес")},
	}

	instances := &mockInstanceRepo{
		getByPairFn: func(_ context.Context, _, _ uuid.UUID) (*model.Instance, error) {
			return existing, nil
		},
	}
	svc := newTestChecklist(tpl, instances, questionStub(questionID), newMockFileStore())

	inst, err := svc.Submit(context.Background(), questionID, tpl.ID,
		model.DataTree{"адрес": model.ScalarValue("новый адрес")}, nil)
	if err != nil {
		t.Fatalf("Submit ошибка: %v", err)
	}
	if inst.ID != existing.ID {
		t.Errorf("создан новый экземпляр %s, ожидалось обновление %s", inst.ID, existing.ID)
	}
	if inst.Data["адрес"].Scalar != "новый адрес" {
		t.Errorf("адрес = %q, ожидался %q", inst.Data["адрес"].Scalar, "новый адрес")
	}
}

// TestChecklistService_Submit_QuestionNotFound — отправка на
// несуществующий вопрос отклоняется.
func TestChecklistService_Submit_QuestionNotFound(t *testing.T) {
	tpl := inspectionTemplate()
	svc := newTestChecklist(tpl, &mockInstanceRepo{}, &mockExpertiseRepo{}, newMockFileStore())

	_, err := svc.Submit(context.Background(), uuid.New(), tpl.ID, model.DataTree{}, nil)
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("err = %v, ожидался ErrNotFound", err)
	}
}

// TestChecklistService_Submit_GenericRejectsFiles — шаблон без
// фото-отрисовщика не принимает приложенные файлы.
func TestChecklistService_Submit_GenericRejectsFiles(t *testing.T) {
	tpl := inspectionTemplate()
	tpl.Name = "произвольный_шаблон"
	questionID := uuid.New()

	upserts := 0
	instances := &mockInstanceRepo{
		upsertFn: func(_ context.Context, _ *model.Instance) error {
			upserts++
			return nil
		},
	}
	svc := newTestChecklist(tpl, instances, questionStub(questionID), newMockFileStore())

	_, err := svc.Submit(context.Background(), questionID, tpl.ID, model.DataTree{},
		[]UploadFile{{FieldPath: "помещения.0.фото", Ext: "jpg", Data: []byte("x")}})
	if !errors.Is(err, ErrValidation) {
		t.Errorf("err = %v, ожидался ErrValidation", err)
	}
	if upserts != 0 {
		t.Errorf("upsert вызван %d раз, состояние не должно меняться", upserts)
	}
}

// TestChecklistService_Submit_UploadFailureKeepsState — сбой загрузки
// файла прерывает отправку до записи в БД.
func TestChecklistService_Submit_UploadFailureKeepsState(t *testing.T) {
	tpl := inspectionTemplate()
	questionID := uuid.New()
	store := newMockFileStore()
	store.putErr = errors.New("файловый сервис недоступен")

	upserts := 0
	instances := &mockInstanceRepo{
		upsertFn: func(_ context.Context, _ *model.Instance) error {
			upserts++
			return nil
		},
	}
	svc := newTestChecklist(tpl, instances, questionStub(questionID), store)

	payload := model.DataTree{
		"помещения": model.ListValue([]model.DataTree{{"наименование": model.ScalarValue("Кухня")}}),
	}
	_, err := svc.Submit(context.Background(), questionID, tpl.ID, payload,
		[]UploadFile{{FieldPath: "помещения.0.фото", Ext: "jpg", Data: []byte("x")}})
	if !errors.Is(err, ErrIntegration) {
		t.Errorf("err = %v, ожидался ErrIntegration", err)
	}
	if upserts != 0 {
		t.Errorf("upsert вызван %d раз, ожидалось 0", upserts)
	}
}

// TestChecklistService_DeleteFile проверяет удаление файла: ссылка
// убирается из дерева, экземпляр сохраняется до удаления объекта.
func TestChecklistService_DeleteFile(t *testing.T) {
	tpl := inspectionTemplate()
	ref := model.FileRef{Name: "inst_фото_0", Ext: "jpg", Bucket: model.BucketAnswerPhotos}
	inst := &model.Instance{
		ID:         uuid.New(),
		TemplateID: tpl.ID,
		QuestionID: uuid.New(),
		Data: model.DataTree{
			"помещения": model.ListValue([]model.DataTree{{"фото": model.FileValue(ref)}}),
		},
	}

	store := newMockFileStore()
	store.objects[objKey(ref.Name, ref.Ext, ref.Bucket)] = []byte("photo")

	instances := &mockInstanceRepo{
		getByIDFn: func(_ context.Context, _ uuid.UUID) (*model.Instance, error) { return inst, nil },
		upsertFn: func(_ context.Context, saved *model.Instance) error {
			if len(store.deletes) != 0 {
				t.Error("объект удалён до записи экземпляра")
			}
			if len(saved.Data.Files()) != 0 {
				t.Error("ссылка осталась в сохранённом экземпляре")
			}
			return nil
		},
	}
	svc := newTestChecklist(tpl, instances, &mockExpertiseRepo{}, store)

	updated, err := svc.DeleteFile(context.Background(), inst.ID, ref.Name, ref.Bucket)
	if err != nil {
		t.Fatalf("DeleteFile ошибка: %v", err)
	}
	if len(updated.Data.Files()) != 0 {
		t.Error("ссылка осталась в экземпляре")
	}
	if len(store.deletes) != 1 {
		t.Errorf("удалено объектов = %d, ожидался 1", len(store.deletes))
	}
}

// TestChecklistService_DeleteFile_Idempotent — удаление отсутствующего
// файла завершается успешно без побочных эффектов.
func TestChecklistService_DeleteFile_Idempotent(t *testing.T) {
	tpl := inspectionTemplate()
	inst := &model.Instance{ID: uuid.New(), TemplateID: tpl.ID, Data: model.DataTree{}}

	upserts := 0
	instances := &mockInstanceRepo{
		getByIDFn: func(_ context.Context, _ uuid.UUID) (*model.Instance, error) { return inst, nil },
		upsertFn: func(_ context.Context, _ *model.Instance) error {
			upserts++
			return nil
		},
	}
	store := newMockFileStore()
	svc := newTestChecklist(tpl, instances, &mockExpertiseRepo{}, store)

	if _, err := svc.DeleteFile(context.Background(), inst.ID, "нет-такого", model.BucketAnswerPhotos); err != nil {
		t.Fatalf("DeleteFile ошибка: %v", err)
	}
	if upserts != 0 || len(store.deletes) != 0 {
		t.Error("no-op операция изменила состояние")
	}
}

// TestChecklistService_DeleteInstance — каскадное удаление убирает все
// файлы дерева, включая вложенные, и строку экземпляра.
func TestChecklistService_DeleteInstance(t *testing.T) {
	tpl := inspectionTemplate()
	refA := model.FileRef{Name: "a", Ext: "jpg", Bucket: model.BucketAnswerPhotos}
	refB := model.FileRef{Name: "b", Ext: "jpg", Bucket: model.BucketAnswerPhotos}
	inst := &model.Instance{
		ID:         uuid.New(),
		TemplateID: tpl.ID,
		Data: model.DataTree{
			"помещения": model.ListValue([]model.DataTree{
				{"фото": model.FileValue(refA)},
				{"фото": model.FileValue(refB)},
			}),
		},
	}

	store := newMockFileStore()
	store.objects[objKey("a", "jpg", model.BucketAnswerPhotos)] = []byte("a")
	store.objects[objKey("b", "jpg", model.BucketAnswerPhotos)] = []byte("b")

	deleted := false
	instances := &mockInstanceRepo{
		getByIDFn: func(_ context.Context, _ uuid.UUID) (*model.Instance, error) { return inst, nil },
		deleteFn: func(_ context.Context, id uuid.UUID) error {
			deleted = true
			return nil
		},
	}
	svc := newTestChecklist(tpl, instances, &mockExpertiseRepo{}, store)

	if err := svc.DeleteInstance(context.Background(), inst.ID); err != nil {
		t.Fatalf("DeleteInstance ошибка: %v", err)
	}
	if !deleted {
		t.Error("строка экземпляра не удалена")
	}
	if len(store.objects) != 0 {
		t.Errorf("в хранилище осталось %d объектов", len(store.objects))
	}
}

// TestChecklistService_DeleteInstance_FileErrorsDoNotBlock — сбой
// удаления файлов не мешает удалению строки экземпляра.
func TestChecklistService_DeleteInstance_FileErrorsDoNotBlock(t *testing.T) {
	tpl := inspectionTemplate()
	inst := &model.Instance{
		ID:         uuid.New(),
		TemplateID: tpl.ID,
		Data: model.DataTree{
			"фото": model.FileValue(model.FileRef{Name: "a", Ext: "jpg", Bucket: model.BucketAnswerPhotos}),
		},
	}

	store := newMockFileStore()
	store.delErr = errors.New("файловый сервис недоступен")

	deleted := false
	instances := &mockInstanceRepo{
		getByIDFn: func(_ context.Context, _ uuid.UUID) (*model.Instance, error) { return inst, nil },
		deleteFn: func(_ context.Context, _ uuid.UUID) error {
			deleted = true
			return nil
		},
	}
	svc := newTestChecklist(tpl, instances, &mockExpertiseRepo{}, store)

	if err := svc.DeleteInstance(context.Background(), inst.ID); err != nil {
		t.Fatalf("DeleteInstance ошибка: %v", err)
	}
	if !deleted {
		t.Error("строка экземпляра не удалена несмотря на сбой очистки файлов")
	}
}
