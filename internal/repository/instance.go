package repository

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/stroyexpert/expertise-module/internal/domain/model"
)

// InstanceRepository — доступ к таблице checklist_instances.
type InstanceRepository interface {
	// GetByID возвращает экземпляр по UUID.
	GetByID(ctx context.Context, id uuid.UUID) (*model.Instance, error)
	// GetByPair возвращает экземпляр для пары (вопрос, шаблон).
	GetByPair(ctx context.Context, questionID, templateID uuid.UUID) (*model.Instance, error)
	// ListByQuestion возвращает все экземпляры вопроса.
	ListByQuestion(ctx context.Context, questionID uuid.UUID) ([]*model.Instance, error)
	// Upsert вставляет или обновляет экземпляр по естественному ключу
	// (question_id, template_id). Конкурентные создания для одной пары
	// сходятся к одной строке за счёт UNIQUE + ON CONFLICT.
	Upsert(ctx context.Context, inst *model.Instance) error
	// Delete удаляет строку экземпляра.
	Delete(ctx context.Context, id uuid.UUID) error
}

// instanceRepo — реализация InstanceRepository.
type instanceRepo struct {
	db DBTX
}

// NewInstanceRepository создаёт репозиторий экземпляров чек-листов.
func NewInstanceRepository(db DBTX) InstanceRepository {
	return &instanceRepo{db: db}
}

const instanceColumns = `id, template_id, question_id, data, field_names, created_at, updated_at`

func (r *instanceRepo) GetByID(ctx context.Context, id uuid.UUID) (*model.Instance, error) {
	query := `SELECT ` + instanceColumns + ` FROM checklist_instances WHERE id = $1`

	inst, err := scanInstance(r.db.QueryRow(ctx, query, id))
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("ошибка получения экземпляра: %w", err)
	}
	return inst, nil
}

func (r *instanceRepo) GetByPair(ctx context.Context, questionID, templateID uuid.UUID) (*model.Instance, error) {
	query := `SELECT ` + instanceColumns + ` FROM checklist_instances
		WHERE question_id = $1 AND template_id = $2`

	inst, err := scanInstance(r.db.QueryRow(ctx, query, questionID, templateID))
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("ошибка получения экземпляра по паре: %w", err)
	}
	return inst, nil
}

func (r *instanceRepo) ListByQuestion(ctx context.Context, questionID uuid.UUID) ([]*model.Instance, error) {
	query := `SELECT ` + instanceColumns + ` FROM checklist_instances
		WHERE question_id = $1
		ORDER BY created_at`

	rows, err := r.db.Query(ctx, query, questionID)
	if err != nil {
		return nil, fmt.Errorf("ошибка получения экземпляров вопроса: %w", err)
	}
	defer rows.Close()

	var result []*model.Instance
	for rows.Next() {
		inst, err := scanInstance(rows)
		if err != nil {
			return nil, fmt.Errorf("ошибка сканирования экземпляра: %w", err)
		}
		result = append(result, inst)
	}
	return result, rows.Err()
}

func (r *instanceRepo) Upsert(ctx context.Context, inst *model.Instance) error {
	data, err := model.EncodeData(inst.Data)
	if err != nil {
		return err
	}
	fieldNames, err := json.Marshal(inst.FieldNames)
	if err != nil {
		return fmt.Errorf("кодирование кэша подписей полей: %w", err)
	}

	// При конфликте по естественному ключу строка обновляется, а id
	// остаётся прежним: RETURNING возвращает id выигравшей строки.
	query := `
		INSERT INTO checklist_instances (id, template_id, question_id, data, field_names)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (question_id, template_id) DO UPDATE SET
			data = EXCLUDED.data,
			field_names = EXCLUDED.field_names,
			updated_at = now()
		RETURNING id, created_at, updated_at`

	err = r.db.QueryRow(ctx, query,
		inst.ID, inst.TemplateID, inst.QuestionID, data, fieldNames,
	).Scan(&inst.ID, &inst.CreatedAt, &inst.UpdatedAt)
	if err != nil {
		return fmt.Errorf("ошибка upsert экземпляра: %w", err)
	}
	return nil
}

func (r *instanceRepo) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM checklist_instances WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("ошибка удаления экземпляра: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// scanInstance читает строку экземпляра и декодирует данные
// из opaque-блоба в типизированное дерево.
func scanInstance(row rowScanner) (*model.Instance, error) {
	inst := &model.Instance{}
	var data, fieldNames []byte
	if err := row.Scan(
		&inst.ID, &inst.TemplateID, &inst.QuestionID,
		&data, &fieldNames, &inst.CreatedAt, &inst.UpdatedAt,
	); err != nil {
		return nil, err
	}

	tree, err := model.DecodeData(data)
	if err != nil {
		return nil, fmt.Errorf("экземпляр %s: %w", inst.ID, err)
	}
	inst.Data = tree

	if len(fieldNames) > 0 {
		if err := json.Unmarshal(fieldNames, &inst.FieldNames); err != nil {
			return nil, fmt.Errorf("декодирование кэша подписей %s: %w", inst.ID, err)
		}
	}
	return inst, nil
}
