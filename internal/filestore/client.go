// Пакет filestore — HTTP-клиент файлового сервиса (object storage).
// Файлы адресуются тройкой (имя, расширение, bucket); набор bucket закрыт.
// Операции: Get (байты или ссылка), Put, Delete.
package filestore

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/stroyexpert/expertise-module/internal/domain/model"
)

// Ошибки клиента файлового сервиса.
var (
	// ErrNotFound — файл отсутствует в хранилище.
	ErrNotFound = errors.New("файл не найден в файловом сервисе")
	// ErrUnavailable — файловый сервис недоступен или вернул не-2xx.
	// Операции идемпотентны по ключу, вызывающая сторона может повторить.
	ErrUnavailable = errors.New("файловый сервис недоступен")
)

// readyTimeout ограничивает опрос liveness probe файлового сервиса.
const readyTimeout = 3 * time.Second

// TokenProvider — функция, возвращающая JWT для авторизации запросов
// к файловому сервису (может быть nil — запросы без авторизации).
type TokenProvider func(ctx context.Context) (string, error)

// Client — HTTP-клиент файлового сервиса.
type Client struct {
	baseURL       string
	httpClient    *http.Client
	tokenProvider TokenProvider
	logger        *slog.Logger
}

// linkResponse — ответ файлового сервиса на запрос с as_link=true.
type linkResponse struct {
	Link string `json:"link"`
}

// New создаёт клиент файлового сервиса.
// timeout ограничивает каждую операцию целиком: зависших запросов нет,
// таймаут классифицируется как ErrUnavailable (повторяемая ошибка интеграции).
func New(baseURL string, timeout time.Duration, tokenProvider TokenProvider, logger *slog.Logger) *Client {
	return &Client{
		baseURL:       baseURL,
		httpClient:    &http.Client{Timeout: timeout},
		tokenProvider: tokenProvider,
		logger:        logger.With(slog.String("component", "filestore_client")),
	}
}

// fileURL строит URL файла: /api/v1/files/{bucket}/{name}.{ext}.
func (c *Client) fileURL(name, ext string, bucket model.Bucket) string {
	return fmt.Sprintf("%s/api/v1/files/%s/%s.%s",
		c.baseURL, url.PathEscape(string(bucket)), url.PathEscape(name), url.PathEscape(ext))
}

// Get возвращает содержимое файла. При asLink=true вместо байтов
// возвращается прямая ссылка на файл (второе возвращаемое значение).
func (c *Client) Get(ctx context.Context, name, ext string, bucket model.Bucket, asLink bool) ([]byte, string, error) {
	reqURL := c.fileURL(name, ext, bucket)
	if asLink {
		reqURL += "?as_link=true"
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, "", fmt.Errorf("создание запроса Get: %w", err)
	}
	if err := c.authorize(ctx, req); err != nil {
		return nil, "", err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, "", fmt.Errorf("%w: запрос файла %s/%s.%s: %v", ErrUnavailable, bucket, name, ext, err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusNotFound:
		return nil, "", fmt.Errorf("%w: %s/%s.%s", ErrNotFound, bucket, name, ext)
	default:
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, "", fmt.Errorf("%w: статус %d: %s", ErrUnavailable, resp.StatusCode, string(body))
	}

	if asLink {
		var lr linkResponse
		if err := json.NewDecoder(resp.Body).Decode(&lr); err != nil {
			return nil, "", fmt.Errorf("декодирование ссылки на файл: %w", err)
		}
		return nil, lr.Link, nil
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, "", fmt.Errorf("%w: чтение тела файла: %v", ErrUnavailable, err)
	}
	return data, "", nil
}

// Put загружает файл под детерминированным ключом. Повторная загрузка
// с тем же ключом перезаписывает файл, поэтому retry безопасен.
func (c *Client) Put(ctx context.Context, name, ext string, bucket model.Bucket, data []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, c.fileURL(name, ext, bucket), bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("создание запроса Put: %w", err)
	}
	req.Header.Set("Content-Type", "application/octet-stream")
	if err := c.authorize(ctx, req); err != nil {
		return err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: загрузка файла %s/%s.%s: %v", ErrUnavailable, bucket, name, ext, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("%w: статус %d: %s", ErrUnavailable, resp.StatusCode, string(body))
	}

	c.logger.Debug("Файл загружен",
		slog.String("name", name),
		slog.String("bucket", string(bucket)),
		slog.Int("size", len(data)),
	)
	return nil
}

// Delete удаляет файл. 404 прозрачно транслируется в ErrNotFound —
// вызывающая сторона решает, считать ли это ошибкой.
func (c *Client) Delete(ctx context.Context, name, ext string, bucket model.Bucket) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, c.fileURL(name, ext, bucket), nil)
	if err != nil {
		return fmt.Errorf("создание запроса Delete: %w", err)
	}
	if err := c.authorize(ctx, req); err != nil {
		return err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: удаление файла %s/%s.%s: %v", ErrUnavailable, bucket, name, ext, err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK, http.StatusNoContent:
		return nil
	case http.StatusNotFound:
		return fmt.Errorf("%w: %s/%s.%s", ErrNotFound, bucket, name, ext)
	default:
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("%w: статус %d: %s", ErrUnavailable, resp.StatusCode, string(body))
	}
}

// CheckReady опрашивает liveness probe файлового сервиса для readiness
// probe модуля. Реализует интерфейс handlers.ReadinessChecker.
func (c *Client) CheckReady() (status, message string) {
	ctx, cancel := context.WithTimeout(context.Background(), readyTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/health/live", nil)
	if err != nil {
		return "fail", err.Error()
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "fail", fmt.Sprintf("файловый сервис недоступен: %v", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 1024))

	if resp.StatusCode != http.StatusOK {
		return "fail", fmt.Sprintf("файловый сервис вернул статус %d", resp.StatusCode)
	}
	return "ok", "файловый сервис доступен"
}

// authorize добавляет Bearer-токен, если настроен tokenProvider.
func (c *Client) authorize(ctx context.Context, req *http.Request) error {
	if c.tokenProvider == nil {
		return nil
	}
	token, err := c.tokenProvider(ctx)
	if err != nil {
		return fmt.Errorf("получение токена для файлового сервиса: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	return nil
}
