package repository

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/stroyexpert/expertise-module/internal/domain/model"
)

// TemplateRepository — доступ к таблице checklist_templates.
// Шаблоны read-mostly: заводятся административно, каталог их только читает.
type TemplateRepository interface {
	// Create создаёт шаблон (административное заведение, сиды, тесты).
	Create(ctx context.Context, t *model.Template) error
	// ListSummaries возвращает облегчённые проекции {id, name}.
	ListSummaries(ctx context.Context) ([]model.TemplateSummary, error)
	// ListAll возвращает все шаблоны со структурой.
	ListAll(ctx context.Context) ([]*model.Template, error)
	// GetByID возвращает шаблон по UUID.
	GetByID(ctx context.Context, id uuid.UUID) (*model.Template, error)
	// GetIDByName возвращает id шаблона по уникальному имени.
	GetIDByName(ctx context.Context, name string) (uuid.UUID, error)
}

// templateRepo — реализация TemplateRepository.
type templateRepo struct {
	db DBTX
}

// NewTemplateRepository создаёт репозиторий шаблонов.
func NewTemplateRepository(db DBTX) TemplateRepository {
	return &templateRepo{db: db}
}

func (r *templateRepo) Create(ctx context.Context, t *model.Template) error {
	structure, err := json.Marshal(t.Structure)
	if err != nil {
		return fmt.Errorf("кодирование структуры шаблона: %w", err)
	}

	query := `
		INSERT INTO checklist_templates (id, name, structure)
		VALUES ($1, $2, $3)
		RETURNING created_at`

	err = r.db.QueryRow(ctx, query, t.ID, t.Name, structure).Scan(&t.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: шаблон с именем %q уже существует", ErrConflict, t.Name)
		}
		return fmt.Errorf("ошибка создания шаблона: %w", err)
	}
	return nil
}

func (r *templateRepo) ListSummaries(ctx context.Context) ([]model.TemplateSummary, error) {
	query := `SELECT id, name FROM checklist_templates ORDER BY name`

	rows, err := r.db.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("ошибка получения списка шаблонов: %w", err)
	}
	defer rows.Close()

	var result []model.TemplateSummary
	for rows.Next() {
		var s model.TemplateSummary
		if err := rows.Scan(&s.ID, &s.Name); err != nil {
			return nil, fmt.Errorf("ошибка сканирования шаблона: %w", err)
		}
		result = append(result, s)
	}
	return result, rows.Err()
}

func (r *templateRepo) ListAll(ctx context.Context) ([]*model.Template, error) {
	query := `SELECT id, name, structure, created_at FROM checklist_templates ORDER BY name`

	rows, err := r.db.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("ошибка получения шаблонов: %w", err)
	}
	defer rows.Close()

	var result []*model.Template
	for rows.Next() {
		t, err := scanTemplate(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, t)
	}
	return result, rows.Err()
}

func (r *templateRepo) GetByID(ctx context.Context, id uuid.UUID) (*model.Template, error) {
	query := `SELECT id, name, structure, created_at FROM checklist_templates WHERE id = $1`

	t, err := scanTemplate(r.db.QueryRow(ctx, query, id))
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("ошибка получения шаблона: %w", err)
	}
	return t, nil
}

func (r *templateRepo) GetIDByName(ctx context.Context, name string) (uuid.UUID, error) {
	query := `SELECT id FROM checklist_templates WHERE name = $1`

	var id uuid.UUID
	err := r.db.QueryRow(ctx, query, name).Scan(&id)
	if err != nil {
		if err == pgx.ErrNoRows {
			return uuid.Nil, ErrNotFound
		}
		return uuid.Nil, fmt.Errorf("ошибка поиска шаблона по имени: %w", err)
	}
	return id, nil
}

// rowScanner — общий интерфейс pgx.Row и pgx.Rows для scanTemplate.
type rowScanner interface {
	Scan(dest ...any) error
}

// scanTemplate читает строку шаблона и декодирует структуру.
func scanTemplate(row rowScanner) (*model.Template, error) {
	t := &model.Template{}
	var structure []byte
	if err := row.Scan(&t.ID, &t.Name, &structure, &t.CreatedAt); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(structure, &t.Structure); err != nil {
		return nil, fmt.Errorf("декодирование структуры шаблона %s: %w", t.ID, err)
	}
	return t, nil
}
