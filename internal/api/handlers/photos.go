// photos.go — приём отдельных фотографий ответов на вопросы.
// Загрузка выполняется асинхронно пулом воркеров: запрос отвечает 202
// сразу после постановки в очередь.
package handlers

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	apierrors "github.com/stroyexpert/expertise-module/internal/api/errors"
	"github.com/stroyexpert/expertise-module/internal/domain/model"
	"github.com/stroyexpert/expertise-module/internal/service"
)

// PhotoHandler — обработчик приёма фотографий.
type PhotoHandler struct {
	pool   *service.PhotoPool
	logger *slog.Logger
}

// NewPhotoHandler создаёт обработчик фотографий.
func NewPhotoHandler(pool *service.PhotoPool, logger *slog.Logger) *PhotoHandler {
	return &PhotoHandler{
		pool:   pool,
		logger: logger.With(slog.String("component", "photo_handler")),
	}
}

// photoResponse — представление принятой фотографии.
type photoResponse struct {
	ID         uuid.UUID     `json:"id"`
	QuestionID uuid.UUID     `json:"question_id"`
	File       model.FileRef `json:"file"`
}

// Submit — POST /api/v1/questions/{questionID}/photos.
// Multipart с файловой частью "photo". При заполненной очереди — 429.
func (h *PhotoHandler) Submit(w http.ResponseWriter, r *http.Request) {
	questionID, ok := parseUUIDParam(w, chi.URLParam(r, "questionID"), "questionID")
	if !ok {
		return
	}

	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		apierrors.ValidationError(w, "некорректный multipart-запрос: "+err.Error())
		return
	}
	if r.MultipartForm == nil || len(r.MultipartForm.File["photo"]) == 0 {
		apierrors.ValidationError(w, "отсутствует файловая часть photo")
		return
	}

	fh := r.MultipartForm.File["photo"][0]
	data, err := readFilePart(fh)
	if err != nil {
		apierrors.ValidationError(w, "чтение файла: "+err.Error())
		return
	}

	photo, err := h.pool.Submit(r.Context(), questionID, fileExt(fh.Filename), data)
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusAccepted, photoResponse{
		ID:         photo.ID,
		QuestionID: photo.QuestionID,
		File:       photo.File,
	})
}
