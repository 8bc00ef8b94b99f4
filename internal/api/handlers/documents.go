// documents.go — выдача собранного заключения по делу.
package handlers

import (
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/stroyexpert/expertise-module/internal/service"
)

// DocumentHandler — обработчик сборки заключений.
type DocumentHandler struct {
	svc    *service.DocumentService
	logger *slog.Logger
}

// NewDocumentHandler создаёт обработчик заключений.
func NewDocumentHandler(svc *service.DocumentService, logger *slog.Logger) *DocumentHandler {
	return &DocumentHandler{
		svc:    svc,
		logger: logger.With(slog.String("component", "document_handler")),
	}
}

// Generate — GET /api/v1/expertises/{expertiseID}/document.
// Документ собирается на каждый запрос и не сохраняется на сервере.
func (h *DocumentHandler) Generate(w http.ResponseWriter, r *http.Request) {
	expertiseID, ok := parseUUIDParam(w, chi.URLParam(r, "expertiseID"), "expertiseID")
	if !ok {
		return
	}

	raw, err := h.svc.Generate(r.Context(), expertiseID)
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}

	w.Header().Set("Content-Type", "application/octet-stream")
	w.Header().Set("Content-Disposition",
		fmt.Sprintf(`attachment; filename="expertise-%s.doc.json"`, expertiseID))
	w.Header().Set("Content-Length", strconv.Itoa(len(raw)))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(raw)
}
