// Пакет database — подключение к PostgreSQL через pgxpool,
// применение миграций (golang-migrate) и проверка готовности пула.
package database

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/pgx/v5"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/stroyexpert/expertise-module/internal/config"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Таймауты проверок подключения.
const (
	pingTimeout  = 5 * time.Second
	readyTimeout = 3 * time.Second
)

// Connect создаёт пул подключений к PostgreSQL и проверяет его
// ограниченным по времени ping.
func Connect(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*pgxpool.Pool, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.DatabaseDSN())
	if err != nil {
		return nil, fmt.Errorf("разбор DSN: %w", err)
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("создание пула подключений: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("подключение к PostgreSQL: %w", err)
	}

	logger.Info("Подключение к PostgreSQL установлено",
		slog.String("host", cfg.DBHost),
		slog.Int("port", cfg.DBPort),
		slog.String("database", cfg.DBName),
		slog.Int("max_conns", int(pool.Config().MaxConns)),
	)
	return pool, nil
}

// migrateLog адаптирует slog к логгеру golang-migrate.
type migrateLog struct {
	logger *slog.Logger
}

func (l *migrateLog) Printf(format string, v ...interface{}) {
	l.logger.Info(strings.TrimSpace(fmt.Sprintf(format, v...)),
		slog.String("component", "migrate"))
}

func (l *migrateLog) Verbose() bool { return false }

// Migrate применяет SQL-миграции схемы модуля из embedded FS:
// шаблоны чек-листов, экземпляры, экспертизы, вопросы, фотографии.
func Migrate(cfg *config.Config, logger *slog.Logger) error {
	source, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("источник миграций: %w", err)
	}

	m, err := migrate.NewWithSourceInstance("iofs", source, migrateURL(cfg))
	if err != nil {
		return fmt.Errorf("инициализация миграций: %w", err)
	}
	defer m.Close()
	m.Log = &migrateLog{logger: logger}

	err = m.Up()
	version, dirty, _ := m.Version()
	switch {
	case errors.Is(err, migrate.ErrNoChange):
		logger.Info("Схема БД актуальна", slog.Uint64("version", uint64(version)))
	case err != nil:
		return fmt.Errorf("применение миграций: %w", err)
	default:
		logger.Info("Миграции применены",
			slog.Uint64("version", uint64(version)),
			slog.Bool("dirty", dirty),
		)
	}
	return nil
}

// migrateURL строит URL подключения для golang-migrate (схема pgx5).
// В отличие от config.DatabaseURL здесь нужен пароль.
func migrateURL(cfg *config.Config) string {
	return fmt.Sprintf(
		"pgx5://%s:%s@%s:%d/%s?sslmode=%s",
		cfg.DBUser, cfg.DBPassword, cfg.DBHost, cfg.DBPort, cfg.DBName, cfg.DBSSLMode,
	)
}

// PoolChecker — проверка готовности пула PostgreSQL для readiness probe.
// Реализует интерфейс handlers.ReadinessChecker.
type PoolChecker struct {
	pool *pgxpool.Pool
}

// NewPoolChecker создаёт проверку готовности пула.
func NewPoolChecker(pool *pgxpool.Pool) *PoolChecker {
	return &PoolChecker{pool: pool}
}

// CheckReady выполняет ping с коротким таймаутом и отдаёт занятость пула.
func (c *PoolChecker) CheckReady() (status, message string) {
	ctx, cancel := context.WithTimeout(context.Background(), readyTimeout)
	defer cancel()

	if err := c.pool.Ping(ctx); err != nil {
		return "fail", fmt.Sprintf("PostgreSQL недоступен: %v", err)
	}
	stat := c.pool.Stat()
	return "ok", fmt.Sprintf("пул активен: занято %d из %d соединений",
		stat.AcquiredConns(), stat.MaxConns())
}
