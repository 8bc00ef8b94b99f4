// health.go — обработчики health endpoints.
// /health/live — liveness probe (процесс жив)
// /health/ready — readiness probe (зависимости модуля)
// /metrics — Prometheus метрики
package handlers

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/stroyexpert/expertise-module/internal/config"
)

const serviceName = "expertise-module"

// Статусы health check.
const (
	statusOK       = "ok"
	statusDegraded = "degraded"
	statusFail     = "fail"
)

// ReadinessChecker — интерфейс проверки готовности одной зависимости.
type ReadinessChecker interface {
	// CheckReady возвращает статус ("ok", "degraded", "fail") и сообщение.
	CheckReady() (status, message string)
}

// DependencyCheck — именованная проверка зависимости модуля.
// Отказ критичной зависимости выводит модуль из ротации (503);
// отказ некритичной лишь деградирует его: чтение чек-листов работает
// и без файлового сервиса.
type DependencyCheck struct {
	Name     string
	Critical bool
	Checker  ReadinessChecker
}

// HealthHandler — обработчик health endpoints.
type HealthHandler struct {
	checks      []DependencyCheck
	promHandler http.Handler
}

// NewHealthHandler создаёт обработчик health endpoints.
// checks перечисляются в порядке вывода в ответе readiness probe.
func NewHealthHandler(checks ...DependencyCheck) *HealthHandler {
	return &HealthHandler{
		checks:      checks,
		promHandler: promhttp.Handler(),
	}
}

// healthCheckResult — результат проверки одной зависимости.
type healthCheckResult struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
}

// healthResponse — ответ liveness/readiness probe. Checks заполняется
// только для readiness.
type healthResponse struct {
	Status    string                       `json:"status"`
	Service   string                       `json:"service"`
	Version   string                       `json:"version"`
	Timestamp string                       `json:"timestamp"`
	Checks    map[string]healthCheckResult `json:"checks,omitempty"`
}

func writeHealth(w http.ResponseWriter, code int, resp healthResponse) {
	resp.Service = serviceName
	resp.Version = config.Version
	resp.Timestamp = time.Now().UTC().Format(time.RFC3339)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(resp)
}

// HealthLive — liveness probe. Возвращает 200 если процесс жив.
func (h *HealthHandler) HealthLive(w http.ResponseWriter, _ *http.Request) {
	writeHealth(w, http.StatusOK, healthResponse{Status: statusOK})
}

// HealthReady — readiness probe. Опрашивает зависимости модуля
// (PostgreSQL, файловый сервис). 503 только при отказе критичной
// зависимости; деградация отвечает 200.
func (h *HealthHandler) HealthReady(w http.ResponseWriter, _ *http.Request) {
	overall := statusOK
	results := make(map[string]healthCheckResult, len(h.checks))

	for _, dep := range h.checks {
		status, msg := dep.Checker.CheckReady()
		results[dep.Name] = healthCheckResult{Status: status, Message: msg}

		switch {
		case status == statusFail && dep.Critical:
			overall = statusFail
		case status != statusOK && overall != statusFail:
			overall = statusDegraded
		}
	}

	code := http.StatusOK
	if overall == statusFail {
		code = http.StatusServiceUnavailable
	}
	writeHealth(w, code, healthResponse{Status: overall, Checks: results})
}

// GetMetrics — Prometheus метрики.
func (h *HealthHandler) GetMetrics(w http.ResponseWriter, r *http.Request) {
	h.promHandler.ServeHTTP(w, r)
}
