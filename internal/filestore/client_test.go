package filestore

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stroyexpert/expertise-module/internal/domain/model"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return New(srv.URL, 5*time.Second, nil, slog.Default())
}

func TestClient_GetBytes(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v1/files/answer-photos/room-1.jpg" {
			t.Errorf("неожиданный путь: %s", r.URL.Path)
		}
		_, _ = w.Write([]byte("image-bytes"))
	})

	data, link, err := c.Get(context.Background(), "room-1", "jpg", model.BucketAnswerPhotos, false)
	if err != nil {
		t.Fatalf("Get() вернул ошибку: %v", err)
	}
	if string(data) != "image-bytes" {
		t.Errorf("данные = %q", data)
	}
	if link != "" {
		t.Errorf("ссылка должна быть пустой, получено %q", link)
	}
}

func TestClient_GetAsLink(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("as_link") != "true" {
			t.Error("ожидается параметр as_link=true")
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"link":"https://files.local/room-1.jpg"}`))
	})

	_, link, err := c.Get(context.Background(), "room-1", "jpg", model.BucketAnswerPhotos, true)
	if err != nil {
		t.Fatalf("Get() вернул ошибку: %v", err)
	}
	if link != "https://files.local/room-1.jpg" {
		t.Errorf("ссылка = %q", link)
	}
}

func TestClient_GetNotFound(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})

	_, _, err := c.Get(context.Background(), "x", "jpg", model.BucketAnswerPhotos, false)
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("ожидается ErrNotFound, получено: %v", err)
	}
}

func TestClient_ServerErrorIsUnavailable(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	})

	if err := c.Put(context.Background(), "x", "jpg", model.BucketAnswerPhotos, []byte("a")); !errors.Is(err, ErrUnavailable) {
		t.Errorf("Put: ожидается ErrUnavailable, получено: %v", err)
	}
	if _, _, err := c.Get(context.Background(), "x", "jpg", model.BucketAnswerPhotos, false); !errors.Is(err, ErrUnavailable) {
		t.Errorf("Get: ожидается ErrUnavailable, получено: %v", err)
	}
	if err := c.Delete(context.Background(), "x", "jpg", model.BucketAnswerPhotos); !errors.Is(err, ErrUnavailable) {
		t.Errorf("Delete: ожидается ErrUnavailable, получено: %v", err)
	}
}

func TestClient_PutAndDelete(t *testing.T) {
	var gotMethod []string
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotMethod = append(gotMethod, r.Method)
		if r.Method == http.MethodPut && r.Header.Get("Content-Type") != "application/octet-stream" {
			t.Errorf("Content-Type = %q", r.Header.Get("Content-Type"))
		}
		w.WriteHeader(http.StatusOK)
	})

	ctx := context.Background()
	if err := c.Put(ctx, "doc", "pdf", model.BucketCertificates, []byte("pdf")); err != nil {
		t.Fatalf("Put() вернул ошибку: %v", err)
	}
	if err := c.Delete(ctx, "doc", "pdf", model.BucketCertificates); err != nil {
		t.Fatalf("Delete() вернул ошибку: %v", err)
	}
	if len(gotMethod) != 2 || gotMethod[0] != http.MethodPut || gotMethod[1] != http.MethodDelete {
		t.Errorf("методы = %v", gotMethod)
	}
}

func TestClient_TokenProvider(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer test-token" {
			t.Errorf("Authorization = %q", r.Header.Get("Authorization"))
		}
	}))
	t.Cleanup(srv.Close)

	provider := func(ctx context.Context) (string, error) { return "test-token", nil }
	c := New(srv.URL, 5*time.Second, provider, slog.Default())

	if _, _, err := c.Get(context.Background(), "a", "jpg", model.BucketAvatars, false); err != nil {
		t.Fatalf("Get() вернул ошибку: %v", err)
	}
}

func TestClient_CheckReady(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/health/live" {
			t.Errorf("неожиданный путь: %s", r.URL.Path)
		}
		w.WriteHeader(http.StatusOK)
	})

	status, _ := c.CheckReady()
	if status != "ok" {
		t.Errorf("статус = %q, ожидается ok", status)
	}
}

func TestClient_CheckReadyFail(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	})

	status, msg := c.CheckReady()
	if status != "fail" {
		t.Errorf("статус = %q, ожидается fail", status)
	}
	if msg == "" {
		t.Error("сообщение об отказе не должно быть пустым")
	}
}
