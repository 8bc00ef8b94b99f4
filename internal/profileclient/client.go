// Пакет profileclient — HTTP-клиент сервиса профилей.
// Возвращает метаданные профиля эксперта и ссылки на файлы
// квалификационных документов для приложений к заключению.
package profileclient

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/stroyexpert/expertise-module/internal/domain/model"
)

// Ошибки клиента сервиса профилей.
var (
	// ErrNotFound — профиль не найден.
	ErrNotFound = errors.New("профиль не найден")
	// ErrUnavailable — сервис профилей недоступен или вернул не-2xx.
	ErrUnavailable = errors.New("сервис профилей недоступен")
)

// CredentialFile — квалификационный документ профиля: идентификатор
// записи и ссылка на файл. Порядок приложений в заключении
// фиксируется сортировкой по ID записи.
type CredentialFile struct {
	ID   uuid.UUID     `json:"id"`
	File model.FileRef `json:"file"`
}

// Qualification — запись о квалификации эксперта.
type Qualification struct {
	Speciality string `json:"speciality"`
	IssuedYear int    `json:"issued_year"`
}

// Profile — метаданные профиля эксперта.
type Profile struct {
	ID                 uuid.UUID        `json:"id"`
	FullName           string           `json:"full_name"`
	Qualifications     []Qualification  `json:"qualifications"`
	Diplomas           []CredentialFile `json:"diplomas"`
	AdditionalDiplomas []CredentialFile `json:"additional_diplomas"`
	Certificates       []CredentialFile `json:"certificates"`
}

// Client — HTTP-клиент сервиса профилей.
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *slog.Logger
}

// New создаёт клиент сервиса профилей.
func New(baseURL string, timeout time.Duration, logger *slog.Logger) *Client {
	return &Client{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: timeout},
		logger:     logger.With(slog.String("component", "profile_client")),
	}
}

// GetProfile возвращает полный профиль эксперта.
// GET /api/v1/profiles/{id}.
func (c *Client) GetProfile(ctx context.Context, profileID uuid.UUID) (*Profile, error) {
	reqURL := fmt.Sprintf("%s/api/v1/profiles/%s", c.baseURL, profileID)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, fmt.Errorf("создание запроса GetProfile: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: запрос профиля %s: %v", ErrUnavailable, profileID, err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusNotFound:
		return nil, fmt.Errorf("%w: %s", ErrNotFound, profileID)
	default:
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, fmt.Errorf("%w: статус %d: %s", ErrUnavailable, resp.StatusCode, string(body))
	}

	var p Profile
	if err := json.NewDecoder(resp.Body).Decode(&p); err != nil {
		return nil, fmt.Errorf("декодирование профиля %s: %w", profileID, err)
	}
	return &p, nil
}
