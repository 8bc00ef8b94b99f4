// handler.go — общая часть HTTP-обработчиков: JSON-ответы, DTO,
// маппинг ошибок сервисного слоя в HTTP-статусы.
package handlers

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"

	apierrors "github.com/stroyexpert/expertise-module/internal/api/errors"
	"github.com/stroyexpert/expertise-module/internal/domain/model"
	"github.com/stroyexpert/expertise-module/internal/service"
)

// maxUploadBytes — предел размера multipart-запроса (данные + файлы).
const maxUploadBytes = 64 << 20

// instanceResponse — представление экземпляра чек-листа в API.
type instanceResponse struct {
	ID         uuid.UUID         `json:"id"`
	TemplateID uuid.UUID         `json:"template_id"`
	QuestionID uuid.UUID         `json:"question_id"`
	Data       model.DataTree    `json:"data"`
	FieldNames map[string]string `json:"field_names"`
	CreatedAt  time.Time         `json:"created_at"`
	UpdatedAt  time.Time         `json:"updated_at"`
}

func toInstanceResponse(inst *model.Instance) instanceResponse {
	return instanceResponse{
		ID:         inst.ID,
		TemplateID: inst.TemplateID,
		QuestionID: inst.QuestionID,
		Data:       inst.Data,
		FieldNames: inst.FieldNames,
		CreatedAt:  inst.CreatedAt,
		UpdatedAt:  inst.UpdatedAt,
	}
}

// writeJSON записывает JSON-ответ с указанным статусом.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

// writeServiceError маппит ошибку сервисного слоя в HTTP-ответ.
func writeServiceError(w http.ResponseWriter, logger *slog.Logger, err error) {
	switch {
	case errors.Is(err, service.ErrNotFound):
		apierrors.NotFound(w, err.Error())
	case errors.Is(err, service.ErrValidation):
		apierrors.ValidationError(w, err.Error())
	case errors.Is(err, service.ErrQueueFull):
		apierrors.QueueFull(w, err.Error())
	case errors.Is(err, service.ErrIntegration):
		apierrors.UpstreamUnavailable(w, err.Error())
	case errors.Is(err, service.ErrGeneration):
		apierrors.GenerationFailed(w, err.Error())
	default:
		logger.Error("необработанная ошибка", slog.String("error", err.Error()))
		apierrors.InternalError(w, "внутренняя ошибка сервиса")
	}
}

// parseUUIDParam разбирает UUID из параметра пути. При ошибке пишет 400
// и возвращает false.
func parseUUIDParam(w http.ResponseWriter, raw, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(raw)
	if err != nil {
		apierrors.ValidationError(w, "некорректный "+name)
		return uuid.Nil, false
	}
	return id, true
}
