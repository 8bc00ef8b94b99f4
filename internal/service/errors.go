// errors.go — ошибки бизнес-логики сервисного слоя.
package service

import "errors"

var (
	// ErrNotFound — ресурс не найден (шаблон, вопрос, экземпляр, фотография).
	ErrNotFound = errors.New("ресурс не найден")
	// ErrValidation — ошибка валидации входных данных.
	ErrValidation = errors.New("ошибка валидации")
	// ErrIntegration — внешний сервис (файловый, профили) недоступен.
	// Повторяемая ошибка: операции идемпотентны по ключу.
	ErrIntegration = errors.New("ошибка интеграции с внешним сервисом")
	// ErrGeneration — сборка заключения прервана. Ошибка всегда целиком
	// на весь pipeline, частичный результат не возвращается.
	ErrGeneration = errors.New("ошибка генерации заключения")
	// ErrQueueFull — очередь пула загрузки фотографий заполнена,
	// задача отклонена (backpressure, вызывающая сторона может повторить).
	ErrQueueFull = errors.New("очередь загрузки фотографий заполнена")
)
