// templates.go — обработчики каталога шаблонов чек-листов.
package handlers

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	apierrors "github.com/stroyexpert/expertise-module/internal/api/errors"
	"github.com/stroyexpert/expertise-module/internal/domain/model"
	"github.com/stroyexpert/expertise-module/internal/service"
)

// TemplateHandler — обработчики каталога шаблонов.
type TemplateHandler struct {
	catalog *service.CatalogService
	logger  *slog.Logger
}

// NewTemplateHandler создаёт обработчик каталога шаблонов.
func NewTemplateHandler(catalog *service.CatalogService, logger *slog.Logger) *TemplateHandler {
	return &TemplateHandler{
		catalog: catalog,
		logger:  logger.With(slog.String("component", "template_handler")),
	}
}

// templateResponse — полное представление шаблона.
type templateResponse struct {
	ID        uuid.UUID         `json:"id"`
	Name      string            `json:"name"`
	Structure []model.FieldNode `json:"structure"`
}

// createTemplateRequest — тело запроса регистрации шаблона.
type createTemplateRequest struct {
	Name      string            `json:"name"`
	Structure []model.FieldNode `json:"structure"`
}

// List — GET /api/v1/templates. Облегчённый список для выбора шаблона.
func (h *TemplateHandler) List(w http.ResponseWriter, r *http.Request) {
	summaries, err := h.catalog.ListSummaries(r.Context())
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	if summaries == nil {
		summaries = []model.TemplateSummary{}
	}
	writeJSON(w, http.StatusOK, summaries)
}

// Create — POST /api/v1/templates. Административное заведение шаблона.
func (h *TemplateHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req createTemplateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		apierrors.ValidationError(w, "некорректное тело запроса: "+err.Error())
		return
	}

	tpl, err := h.catalog.Create(r.Context(), req.Name, req.Structure)
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, templateResponse{
		ID:        tpl.ID,
		Name:      tpl.Name,
		Structure: tpl.Structure,
	})
}

// Get — GET /api/v1/templates/{templateID}. Шаблон со структурой.
func (h *TemplateHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, ok := parseUUIDParam(w, chi.URLParam(r, "templateID"), "templateID")
	if !ok {
		return
	}

	tpl, err := h.catalog.GetByID(r.Context(), id)
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, templateResponse{
		ID:        tpl.ID,
		Name:      tpl.Name,
		Structure: tpl.Structure,
	})
}
