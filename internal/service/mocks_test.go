package service

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/stroyexpert/expertise-module/internal/domain/model"
	"github.com/stroyexpert/expertise-module/internal/filestore"
	"github.com/stroyexpert/expertise-module/internal/profileclient"
	"github.com/stroyexpert/expertise-module/internal/repository"
)

// --- Моки репозиториев и клиентов для unit-тестов сервисного слоя ---

// mockTemplateRepo — мок TemplateRepository.
type mockTemplateRepo struct {
	createFn        func(ctx context.Context, t *model.Template) error
	listSummariesFn func(ctx context.Context) ([]model.TemplateSummary, error)
	listAllFn       func(ctx context.Context) ([]*model.Template, error)
	getByIDFn       func(ctx context.Context, id uuid.UUID) (*model.Template, error)
	getIDByNameFn   func(ctx context.Context, name string) (uuid.UUID, error)
}

func (m *mockTemplateRepo) Create(ctx context.Context, t *model.Template) error {
	if m.createFn != nil {
		return m.createFn(ctx, t)
	}
	return nil
}

func (m *mockTemplateRepo) ListSummaries(ctx context.Context) ([]model.TemplateSummary, error) {
	if m.listSummariesFn != nil {
		return m.listSummariesFn(ctx)
	}
	return nil, nil
}

func (m *mockTemplateRepo) ListAll(ctx context.Context) ([]*model.Template, error) {
	if m.listAllFn != nil {
		return m.listAllFn(ctx)
	}
	return nil, nil
}

func (m *mockTemplateRepo) GetByID(ctx context.Context, id uuid.UUID) (*model.Template, error) {
	if m.getByIDFn != nil {
		return m.getByIDFn(ctx, id)
	}
	return nil, repository.ErrNotFound
}

func (m *mockTemplateRepo) GetIDByName(ctx context.Context, name string) (uuid.UUID, error) {
	if m.getIDByNameFn != nil {
		return m.getIDByNameFn(ctx, name)
	}
	return uuid.Nil, repository.ErrNotFound
}

// mockInstanceRepo — мок InstanceRepository.
type mockInstanceRepo struct {
	getByIDFn        func(ctx context.Context, id uuid.UUID) (*model.Instance, error)
	getByPairFn      func(ctx context.Context, questionID, templateID uuid.UUID) (*model.Instance, error)
	listByQuestionFn func(ctx context.Context, questionID uuid.UUID) ([]*model.Instance, error)
	upsertFn         func(ctx context.Context, inst *model.Instance) error
	deleteFn         func(ctx context.Context, id uuid.UUID) error
}

func (m *mockInstanceRepo) GetByID(ctx context.Context, id uuid.UUID) (*model.Instance, error) {
	if m.getByIDFn != nil {
		return m.getByIDFn(ctx, id)
	}
	return nil, repository.ErrNotFound
}

func (m *mockInstanceRepo) GetByPair(ctx context.Context, questionID, templateID uuid.UUID) (*model.Instance, error) {
	if m.getByPairFn != nil {
		return m.getByPairFn(ctx, questionID, templateID)
	}
	return nil, repository.ErrNotFound
}

func (m *mockInstanceRepo) ListByQuestion(ctx context.Context, questionID uuid.UUID) ([]*model.Instance, error) {
	if m.listByQuestionFn != nil {
		return m.listByQuestionFn(ctx, questionID)
	}
	return nil, nil
}

func (m *mockInstanceRepo) Upsert(ctx context.Context, inst *model.Instance) error {
	if m.upsertFn != nil {
		return m.upsertFn(ctx, inst)
	}
	return nil
}

func (m *mockInstanceRepo) Delete(ctx context.Context, id uuid.UUID) error {
	if m.deleteFn != nil {
		return m.deleteFn(ctx, id)
	}
	return nil
}

// mockExpertiseRepo — мок ExpertiseRepository.
type mockExpertiseRepo struct {
	getExpertiseFn  func(ctx context.Context, id uuid.UUID) (*model.Expertise, error)
	getQuestionFn   func(ctx context.Context, id uuid.UUID) (*model.Question, error)
	listQuestionsFn func(ctx context.Context, expertiseID uuid.UUID) ([]*model.Question, error)
	addPhotoFn      func(ctx context.Context, p *model.Photo) error
	listPhotosFn    func(ctx context.Context, questionID uuid.UUID) ([]*model.Photo, error)
}

func (m *mockExpertiseRepo) CreateExpertise(_ context.Context, _ *model.Expertise) error { return nil }

func (m *mockExpertiseRepo) GetExpertise(ctx context.Context, id uuid.UUID) (*model.Expertise, error) {
	if m.getExpertiseFn != nil {
		return m.getExpertiseFn(ctx, id)
	}
	return nil, repository.ErrNotFound
}

func (m *mockExpertiseRepo) CreateQuestion(_ context.Context, _ *model.Question) error { return nil }

func (m *mockExpertiseRepo) GetQuestion(ctx context.Context, id uuid.UUID) (*model.Question, error) {
	if m.getQuestionFn != nil {
		return m.getQuestionFn(ctx, id)
	}
	return nil, repository.ErrNotFound
}

func (m *mockExpertiseRepo) ListQuestions(ctx context.Context, expertiseID uuid.UUID) ([]*model.Question, error) {
	if m.listQuestionsFn != nil {
		return m.listQuestionsFn(ctx, expertiseID)
	}
	return nil, nil
}

func (m *mockExpertiseRepo) AddPhoto(ctx context.Context, p *model.Photo) error {
	if m.addPhotoFn != nil {
		return m.addPhotoFn(ctx, p)
	}
	return nil
}

func (m *mockExpertiseRepo) ListPhotos(ctx context.Context, questionID uuid.UUID) ([]*model.Photo, error) {
	if m.listPhotosFn != nil {
		return m.listPhotosFn(ctx, questionID)
	}
	return nil, nil
}

// mockFileStore — in-memory файловый сервис. Потокобезопасен: пул
// фотографий пишет из нескольких горутин.
type mockFileStore struct {
	mu      sync.Mutex
	objects map[string][]byte
	putErr  error
	delErr  error
	// puts и deletes — журнал операций в порядке вызова.
	puts    []string
	deletes []string
}

func newMockFileStore() *mockFileStore {
	return &mockFileStore{objects: make(map[string][]byte)}
}

func objKey(name, ext string, bucket model.Bucket) string {
	return fmt.Sprintf("%s/%s.%s", bucket, name, ext)
}

func (m *mockFileStore) Get(_ context.Context, name, ext string, bucket model.Bucket, _ bool) ([]byte, string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	data, ok := m.objects[objKey(name, ext, bucket)]
	if !ok {
		return nil, "", filestore.ErrNotFound
	}
	return data, "application/octet-stream", nil
}

func (m *mockFileStore) Put(_ context.Context, name, ext string, bucket model.Bucket, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.putErr != nil {
		return m.putErr
	}
	key := objKey(name, ext, bucket)
	m.objects[key] = data
	m.puts = append(m.puts, key)
	return nil
}

func (m *mockFileStore) Delete(_ context.Context, name, ext string, bucket model.Bucket) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.delErr != nil {
		return m.delErr
	}
	key := objKey(name, ext, bucket)
	if _, ok := m.objects[key]; !ok {
		return filestore.ErrNotFound
	}
	delete(m.objects, key)
	m.deletes = append(m.deletes, key)
	return nil
}

// mockProfiles — мок ProfileProvider.
type mockProfiles struct {
	getProfileFn func(ctx context.Context, profileID uuid.UUID) (*profileclient.Profile, error)
}

func (m *mockProfiles) GetProfile(ctx context.Context, profileID uuid.UUID) (*profileclient.Profile, error) {
	if m.getProfileFn != nil {
		return m.getProfileFn(ctx, profileID)
	}
	return nil, profileclient.ErrNotFound
}
