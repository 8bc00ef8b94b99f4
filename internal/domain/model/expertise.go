package model

import (
	"time"

	"github.com/google/uuid"
)

// Expertise — дело (экспертиза): верхнеуровневая единица, владеющая
// упорядоченным списком вопросов. Метаданные дела используются
// шагом текстовой подстановки при сборке заключения.
type Expertise struct {
	// ID — UUID экспертизы
	ID uuid.UUID
	// Number — номер дела
	Number string
	// ProfileID — UUID профиля эксперта, ведущего дело
	ProfileID uuid.UUID
	// Court — наименование суда, назначившего экспертизу
	Court string
	// Location — место проведения экспертизы
	Location string
	// ObjectAddress — адрес объекта исследования
	ObjectAddress string
	// Claimant — истец
	Claimant string
	// Defendant — ответчик
	Defendant string
	// StartedAt — дата начала производства
	StartedAt time.Time
	// FinishedAt — дата окончания производства (nil — не завершена)
	FinishedAt *time.Time
	// MapScreen — скриншот карты расположения объекта (опционально)
	MapScreen *FileRef
	// CreatedAt — время создания записи
	CreatedAt time.Time
}

// Question — вопрос экспертизы. Вопросы упорядочены позицией в деле;
// вопрос владеет экземплярами чек-листов (по одному на шаблон)
// и отдельными фотографиями ответа.
type Question struct {
	// ID — UUID вопроса
	ID uuid.UUID
	// ExpertiseID — UUID экспертизы
	ExpertiseID uuid.UUID
	// Position — порядковый номер вопроса в деле (с 1)
	Position int
	// Text — формулировка вопроса
	Text string
}

// Photo — отдельная фотография ответа на вопрос, не привязанная
// к чек-листу.
type Photo struct {
	// ID — UUID фотографии
	ID uuid.UUID
	// QuestionID — UUID вопроса
	QuestionID uuid.UUID
	// File — ссылка на файл (bucket answer-photos)
	File FileRef
	// CreatedAt — время загрузки
	CreatedAt time.Time
}
