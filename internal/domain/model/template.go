package model

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// FieldType — тип узла структуры шаблона чек-листа.
type FieldType string

const (
	// FieldText — текстовое поле
	FieldText FieldType = "text"
	// FieldNumber — числовое поле
	FieldNumber FieldType = "number"
	// FieldDate — поле даты
	FieldDate FieldType = "date"
	// FieldGroup — именованная группа полей (рендерится inline)
	FieldGroup FieldType = "group"
	// FieldRepeat — повторяемая группа (список однотипных записей)
	FieldRepeat FieldType = "repeat"
	// FieldPhoto — фотография (хранится как FileRef)
	FieldPhoto FieldType = "photo"
)

// FieldNode — узел структуры шаблона: описывает ожидаемое поле данных
// и его человекочитаемую подпись.
type FieldNode struct {
	// Key — ключ поля в данных Instance
	Key string `json:"key"`
	// Label — подпись поля для отображения и рендеринга
	Label string `json:"label"`
	// Type — тип поля
	Type FieldType `json:"type"`
	// Children — вложенные поля (для group и repeat)
	Children []FieldNode `json:"children,omitempty"`
}

// Template — шаблон чек-листа. Имя уникально и служит ключом
// диспетчеризации рендереров. Structure — единственный источник истины
// о форме данных и подписях полей; после появления ссылающихся Instance
// структура считается неизменяемой.
type Template struct {
	// ID — UUID шаблона
	ID uuid.UUID
	// Name — уникальное имя шаблона
	Name string
	// Structure — упорядоченное дерево полей
	Structure []FieldNode
	// CreatedAt — время создания
	CreatedAt time.Time
}

// TemplateSummary — облегчённая проекция шаблона для списков выбора.
type TemplateSummary struct {
	ID   uuid.UUID `json:"id"`
	Name string    `json:"name"`
}

// FieldNames строит плоскую проекцию ключ → подпись по всей структуре.
// Ключи вложенных полей разделяются точкой (например "premises.area").
// Индексы повторяемых групп в ключ не входят: подпись одинакова для
// всех записей группы.
func (t *Template) FieldNames() map[string]string {
	names := make(map[string]string)
	collectFieldNames("", t.Structure, names)
	return names
}

func collectFieldNames(prefix string, nodes []FieldNode, out map[string]string) {
	for _, n := range nodes {
		key := n.Key
		if prefix != "" {
			key = prefix + "." + n.Key
		}
		out[key] = n.Label
		if len(n.Children) > 0 {
			collectFieldNames(key, n.Children, out)
		}
	}
}

// FindNode ищет узел структуры по ключу верхнего уровня.
func (t *Template) FindNode(key string) (FieldNode, bool) {
	for _, n := range t.Structure {
		if n.Key == key {
			return n, true
		}
	}
	return FieldNode{}, false
}

// ValidateStructure проверяет дерево полей: непустые ключи,
// известные типы, уникальность ключей в пределах одного уровня.
// Полностью числовые ключи запрещены: в путях полей числовые сегменты
// зарезервированы под индексы записей повторяемых групп.
func ValidateStructure(nodes []FieldNode) error {
	seen := make(map[string]bool, len(nodes))
	for _, n := range nodes {
		if n.Key == "" {
			return fmt.Errorf("узел структуры без ключа (label=%q)", n.Label)
		}
		if isNumericKey(n.Key) {
			return fmt.Errorf("числовой ключ %q зарезервирован под индексы записей", n.Key)
		}
		if seen[n.Key] {
			return fmt.Errorf("дублирующийся ключ %q в структуре", n.Key)
		}
		seen[n.Key] = true

		switch n.Type {
		case FieldText, FieldNumber, FieldDate, FieldPhoto:
			if len(n.Children) > 0 {
				return fmt.Errorf("поле %q типа %s не может иметь вложенных полей", n.Key, n.Type)
			}
		case FieldGroup, FieldRepeat:
			if len(n.Children) == 0 {
				return fmt.Errorf("поле %q типа %s должно иметь вложенные поля", n.Key, n.Type)
			}
			if err := ValidateStructure(n.Children); err != nil {
				return fmt.Errorf("%s: %w", n.Key, err)
			}
		default:
			return fmt.Errorf("поле %q: неизвестный тип %q", n.Key, n.Type)
		}
	}
	return nil
}

func isNumericKey(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
