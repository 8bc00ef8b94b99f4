package repository

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/stroyexpert/expertise-module/internal/domain/model"
)

// ExpertiseRepository — доступ к экспертизам, их вопросам и фотографиям ответов.
type ExpertiseRepository interface {
	// CreateExpertise создаёт дело.
	CreateExpertise(ctx context.Context, e *model.Expertise) error
	// GetExpertise возвращает дело по UUID.
	GetExpertise(ctx context.Context, id uuid.UUID) (*model.Expertise, error)
	// CreateQuestion создаёт вопрос дела.
	CreateQuestion(ctx context.Context, q *model.Question) error
	// GetQuestion возвращает вопрос по UUID.
	GetQuestion(ctx context.Context, id uuid.UUID) (*model.Question, error)
	// ListQuestions возвращает вопросы дела в порядке позиций.
	ListQuestions(ctx context.Context, expertiseID uuid.UUID) ([]*model.Question, error)
	// AddPhoto сохраняет отдельную фотографию ответа.
	AddPhoto(ctx context.Context, p *model.Photo) error
	// ListPhotos возвращает фотографии вопроса в порядке загрузки.
	ListPhotos(ctx context.Context, questionID uuid.UUID) ([]*model.Photo, error)
}

// expertiseRepo — реализация ExpertiseRepository.
type expertiseRepo struct {
	db DBTX
}

// NewExpertiseRepository создаёт репозиторий экспертиз.
func NewExpertiseRepository(db DBTX) ExpertiseRepository {
	return &expertiseRepo{db: db}
}

func (r *expertiseRepo) CreateExpertise(ctx context.Context, e *model.Expertise) error {
	var mapScreen []byte
	if e.MapScreen != nil {
		var err error
		mapScreen, err = json.Marshal(e.MapScreen)
		if err != nil {
			return fmt.Errorf("кодирование ссылки на карту: %w", err)
		}
	}

	query := `
		INSERT INTO expertises (id, number, profile_id, court, location, object_address,
			claimant, defendant, started_at, finished_at, map_screen)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		RETURNING created_at`

	err := r.db.QueryRow(ctx, query,
		e.ID, e.Number, e.ProfileID, e.Court, e.Location, e.ObjectAddress,
		e.Claimant, e.Defendant, e.StartedAt, e.FinishedAt, mapScreen,
	).Scan(&e.CreatedAt)
	if err != nil {
		return fmt.Errorf("ошибка создания экспертизы: %w", err)
	}
	return nil
}

func (r *expertiseRepo) GetExpertise(ctx context.Context, id uuid.UUID) (*model.Expertise, error) {
	query := `
		SELECT id, number, profile_id, court, location, object_address,
			claimant, defendant, started_at, finished_at, map_screen, created_at
		FROM expertises
		WHERE id = $1`

	e := &model.Expertise{}
	var mapScreen []byte
	err := r.db.QueryRow(ctx, query, id).Scan(
		&e.ID, &e.Number, &e.ProfileID, &e.Court, &e.Location, &e.ObjectAddress,
		&e.Claimant, &e.Defendant, &e.StartedAt, &e.FinishedAt, &mapScreen, &e.CreatedAt,
	)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("ошибка получения экспертизы: %w", err)
	}

	if len(mapScreen) > 0 {
		e.MapScreen = &model.FileRef{}
		if err := json.Unmarshal(mapScreen, e.MapScreen); err != nil {
			return nil, fmt.Errorf("декодирование ссылки на карту %s: %w", e.ID, err)
		}
	}
	return e, nil
}

func (r *expertiseRepo) CreateQuestion(ctx context.Context, q *model.Question) error {
	query := `
		INSERT INTO questions (id, expertise_id, position, text)
		VALUES ($1, $2, $3, $4)`

	_, err := r.db.Exec(ctx, query, q.ID, q.ExpertiseID, q.Position, q.Text)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: позиция %d уже занята в деле", ErrConflict, q.Position)
		}
		return fmt.Errorf("ошибка создания вопроса: %w", err)
	}
	return nil
}

func (r *expertiseRepo) GetQuestion(ctx context.Context, id uuid.UUID) (*model.Question, error) {
	query := `SELECT id, expertise_id, position, text FROM questions WHERE id = $1`

	q := &model.Question{}
	err := r.db.QueryRow(ctx, query, id).Scan(&q.ID, &q.ExpertiseID, &q.Position, &q.Text)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("ошибка получения вопроса: %w", err)
	}
	return q, nil
}

func (r *expertiseRepo) ListQuestions(ctx context.Context, expertiseID uuid.UUID) ([]*model.Question, error) {
	query := `
		SELECT id, expertise_id, position, text
		FROM questions
		WHERE expertise_id = $1
		ORDER BY position`

	rows, err := r.db.Query(ctx, query, expertiseID)
	if err != nil {
		return nil, fmt.Errorf("ошибка получения вопросов: %w", err)
	}
	defer rows.Close()

	var result []*model.Question
	for rows.Next() {
		q := &model.Question{}
		if err := rows.Scan(&q.ID, &q.ExpertiseID, &q.Position, &q.Text); err != nil {
			return nil, fmt.Errorf("ошибка сканирования вопроса: %w", err)
		}
		result = append(result, q)
	}
	return result, rows.Err()
}

func (r *expertiseRepo) AddPhoto(ctx context.Context, p *model.Photo) error {
	fileRef, err := json.Marshal(p.File)
	if err != nil {
		return fmt.Errorf("кодирование ссылки фотографии: %w", err)
	}

	query := `
		INSERT INTO answer_photos (id, question_id, file_ref)
		VALUES ($1, $2, $3)
		RETURNING created_at`

	err = r.db.QueryRow(ctx, query, p.ID, p.QuestionID, fileRef).Scan(&p.CreatedAt)
	if err != nil {
		return fmt.Errorf("ошибка сохранения фотографии: %w", err)
	}
	return nil
}

func (r *expertiseRepo) ListPhotos(ctx context.Context, questionID uuid.UUID) ([]*model.Photo, error) {
	query := `
		SELECT id, question_id, file_ref, created_at
		FROM answer_photos
		WHERE question_id = $1
		ORDER BY created_at, id`

	rows, err := r.db.Query(ctx, query, questionID)
	if err != nil {
		return nil, fmt.Errorf("ошибка получения фотографий: %w", err)
	}
	defer rows.Close()

	var result []*model.Photo
	for rows.Next() {
		p := &model.Photo{}
		var fileRef []byte
		if err := rows.Scan(&p.ID, &p.QuestionID, &fileRef, &p.CreatedAt); err != nil {
			return nil, fmt.Errorf("ошибка сканирования фотографии: %w", err)
		}
		if err := json.Unmarshal(fileRef, &p.File); err != nil {
			return nil, fmt.Errorf("декодирование ссылки фотографии %s: %w", p.ID, err)
		}
		result = append(result, p)
	}
	return result, rows.Err()
}
