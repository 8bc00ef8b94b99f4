// checklists.go — обработчики жизненного цикла экземпляров чек-листов.
//
// Отправка — multipart/form-data: часть "data" содержит JSON дерева
// данных, остальные файловые части прикладывают фотографии; имя части —
// путь поля назначения (например "помещения.0.фото").
package handlers

import (
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"path/filepath"
	"sort"
	"strings"

	"github.com/go-chi/chi/v5"

	apierrors "github.com/stroyexpert/expertise-module/internal/api/errors"
	"github.com/stroyexpert/expertise-module/internal/domain/model"
	"github.com/stroyexpert/expertise-module/internal/service"
)

// ChecklistHandler — обработчики чек-листов.
type ChecklistHandler struct {
	svc    *service.ChecklistService
	logger *slog.Logger
}

// NewChecklistHandler создаёт обработчик чек-листов.
func NewChecklistHandler(svc *service.ChecklistService, logger *slog.Logger) *ChecklistHandler {
	return &ChecklistHandler{
		svc:    svc,
		logger: logger.With(slog.String("component", "checklist_handler")),
	}
}

// Submit — POST /api/v1/questions/{questionID}/checklists/{templateID}.
// Создаёт или обновляет экземпляр для пары (вопрос, шаблон).
func (h *ChecklistHandler) Submit(w http.ResponseWriter, r *http.Request) {
	questionID, ok := parseUUIDParam(w, chi.URLParam(r, "questionID"), "questionID")
	if !ok {
		return
	}
	templateID, ok := parseUUIDParam(w, chi.URLParam(r, "templateID"), "templateID")
	if !ok {
		return
	}

	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		apierrors.ValidationError(w, "некорректный multipart-запрос: "+err.Error())
		return
	}

	payload, err := model.DecodeData([]byte(r.FormValue("data")))
	if err != nil {
		apierrors.ValidationError(w, err.Error())
		return
	}

	files, err := readUploadFiles(r.MultipartForm)
	if err != nil {
		apierrors.ValidationError(w, err.Error())
		return
	}

	inst, err := h.svc.Submit(r.Context(), questionID, templateID, payload, files)
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, toInstanceResponse(inst))
}

// Get — GET /api/v1/checklists/{instanceID}.
func (h *ChecklistHandler) Get(w http.ResponseWriter, r *http.Request) {
	instanceID, ok := parseUUIDParam(w, chi.URLParam(r, "instanceID"), "instanceID")
	if !ok {
		return
	}

	inst, err := h.svc.Get(r.Context(), instanceID)
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, toInstanceResponse(inst))
}

// Delete — DELETE /api/v1/checklists/{instanceID}.
// Каскадно удаляет экземпляр со всеми его файлами.
func (h *ChecklistHandler) Delete(w http.ResponseWriter, r *http.Request) {
	instanceID, ok := parseUUIDParam(w, chi.URLParam(r, "instanceID"), "instanceID")
	if !ok {
		return
	}

	if err := h.svc.DeleteInstance(r.Context(), instanceID); err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// DeleteFile — DELETE /api/v1/checklists/{instanceID}/files/{fileName}?bucket=...
// Удаляет один файл из данных экземпляра. Повтор — no-op.
func (h *ChecklistHandler) DeleteFile(w http.ResponseWriter, r *http.Request) {
	instanceID, ok := parseUUIDParam(w, chi.URLParam(r, "instanceID"), "instanceID")
	if !ok {
		return
	}
	fileName := chi.URLParam(r, "fileName")
	if fileName == "" {
		apierrors.ValidationError(w, "не задано имя файла")
		return
	}
	bucket := model.Bucket(r.URL.Query().Get("bucket"))
	if bucket == "" {
		apierrors.ValidationError(w, "не задан параметр bucket")
		return
	}

	inst, err := h.svc.DeleteFile(r.Context(), instanceID, fileName, bucket)
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, toInstanceResponse(inst))
}

// readUploadFiles собирает файловые части multipart-формы.
// Порядок частей стабилен: ключи сортируются, внутри ключа порядок
// следования сохраняется — от него зависят порядковые номера в ключах
// объектов.
func readUploadFiles(form *multipart.Form) ([]service.UploadFile, error) {
	if form == nil {
		return nil, nil
	}

	keys := make([]string, 0, len(form.File))
	for key := range form.File {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	var files []service.UploadFile
	for _, key := range keys {
		for _, fh := range form.File[key] {
			data, err := readFilePart(fh)
			if err != nil {
				return nil, err
			}
			files = append(files, service.UploadFile{
				FieldPath: key,
				Ext:       fileExt(fh.Filename),
				Data:      data,
			})
		}
	}
	return files, nil
}

func readFilePart(fh *multipart.FileHeader) ([]byte, error) {
	f, err := fh.Open()
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return io.ReadAll(f)
}

// fileExt возвращает расширение имени файла без точки, в нижнем регистре.
func fileExt(filename string) string {
	return strings.ToLower(strings.TrimPrefix(filepath.Ext(filename), "."))
}
