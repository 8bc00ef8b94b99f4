package model

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// ValueKind — вид значения поля в данных чек-листа.
type ValueKind string

const (
	// KindScalar — скалярное значение (строка)
	KindScalar ValueKind = "scalar"
	// KindList — список записей повторяемой группы
	KindList ValueKind = "list"
	// KindFile — ссылка на файл в файловом сервисе
	KindFile ValueKind = "file"
)

// Value — значение одного поля чек-листа: скаляр, список вложенных
// деревьев (повторяемая группа) или ссылка на файл. Ровно одно из
// полей заполнено в зависимости от Kind.
type Value struct {
	Kind   ValueKind  `json:"kind"`
	Scalar string     `json:"scalar,omitempty"`
	Items  []DataTree `json:"items,omitempty"`
	File   *FileRef   `json:"file,omitempty"`
}

// ScalarValue создаёт скалярное значение.
func ScalarValue(s string) Value {
	return Value{Kind: KindScalar, Scalar: s}
}

// ListValue создаёт значение повторяемой группы.
func ListValue(items []DataTree) Value {
	return Value{Kind: KindList, Items: items}
}

// FileValue создаёт значение-ссылку на файл.
func FileValue(ref FileRef) Value {
	return Value{Kind: KindFile, File: &ref}
}

// DataTree — дерево данных чек-листа: ключ поля → значение.
type DataTree map[string]Value

// Merge вливает поля другого дерева в текущее. Скаляры перезаписываются,
// записи повторяемых групп сливаются позиционно. Существующие файловые
// значения входящее дерево перезаписать не может: файловые ссылки меняются
// только загрузкой и удалением файлов, иначе повторная отправка данных
// без файловых узлов осиротила бы объекты в хранилище.
func (d DataTree) Merge(incoming DataTree) {
	for k, v := range incoming {
		cur, ok := d[k]
		if !ok {
			d[k] = v
			continue
		}
		switch {
		case cur.Kind == KindFile:
			// ссылка остаётся как есть
		case cur.Kind == KindList && v.Kind == KindList:
			d[k] = ListValue(mergeItems(cur.Items, v.Items))
		default:
			d[k] = v
		}
	}
}

// mergeItems сливает записи повторяемой группы позиционно: запись i
// входящего списка вливается в запись i текущего. Длину задаёт входящий
// список: добавленные записи берутся как есть, укорачивание списка —
// явное действие пользователя.
func mergeItems(cur, incoming []DataTree) []DataTree {
	merged := make([]DataTree, len(incoming))
	for i, item := range incoming {
		if i < len(cur) {
			cur[i].Merge(item)
			merged[i] = cur[i]
			continue
		}
		merged[i] = item
	}
	return merged
}

// Files рекурсивно собирает все файловые ссылки, достижимые в дереве,
// включая вложенные повторяемые группы любой глубины.
func (d DataTree) Files() []FileRef {
	var refs []FileRef
	for _, v := range d {
		switch v.Kind {
		case KindFile:
			if v.File != nil {
				refs = append(refs, *v.File)
			}
		case KindList:
			for _, item := range v.Items {
				refs = append(refs, item.Files()...)
			}
		}
	}
	return refs
}

// RemoveFile удаляет из дерева все ссылки на файл (name, bucket).
// Возвращает true, если была удалена хотя бы одна ссылка; false — ссылка
// отсутствовала (повторный вызов — no-op, операция идемпотентна).
func (d DataTree) RemoveFile(name string, bucket Bucket) bool {
	removed := false
	for k, v := range d {
		switch v.Kind {
		case KindFile:
			if v.File != nil && v.File.Name == name && v.File.Bucket == bucket {
				delete(d, k)
				removed = true
			}
		case KindList:
			for _, item := range v.Items {
				if item.RemoveFile(name, bucket) {
					removed = true
				}
			}
		}
	}
	return removed
}

// EncodeData сериализует дерево данных в opaque-блоб для хранения.
// Единственная граница сериализации: пишем здесь, читаем в DecodeData.
func EncodeData(d DataTree) ([]byte, error) {
	raw, err := json.Marshal(d)
	if err != nil {
		return nil, fmt.Errorf("кодирование данных чек-листа: %w", err)
	}
	return raw, nil
}

// DecodeData разбирает хранимый блоб обратно в типизированное дерево.
func DecodeData(raw []byte) (DataTree, error) {
	if len(raw) == 0 {
		return DataTree{}, nil
	}
	var d DataTree
	if err := json.Unmarshal(raw, &d); err != nil {
		return nil, fmt.Errorf("декодирование данных чек-листа: %w", err)
	}
	if err := validateTree(d); err != nil {
		return nil, fmt.Errorf("некорректное дерево данных: %w", err)
	}
	return d, nil
}

// validateTree проверяет согласованность Kind и заполненных полей.
func validateTree(d DataTree) error {
	for k, v := range d {
		switch v.Kind {
		case KindScalar:
			if v.File != nil || v.Items != nil {
				return fmt.Errorf("поле %q: скаляр с посторонними данными", k)
			}
		case KindList:
			for _, item := range v.Items {
				if err := validateTree(item); err != nil {
					return fmt.Errorf("%s: %w", k, err)
				}
			}
		case KindFile:
			if v.File == nil {
				return fmt.Errorf("поле %q: файловое значение без ссылки", k)
			}
			if !v.File.Bucket.IsValid() {
				return fmt.Errorf("поле %q: недопустимый bucket %q", k, v.File.Bucket)
			}
		default:
			return fmt.Errorf("поле %q: неизвестный вид значения %q", k, v.Kind)
		}
	}
	return nil
}

// Instance — заполненный чек-лист. Привязан ровно к одной паре
// (вопрос, шаблон): пара — естественный ключ, id — синтетический.
type Instance struct {
	// ID — UUID экземпляра
	ID uuid.UUID
	// TemplateID — UUID шаблона
	TemplateID uuid.UUID
	// QuestionID — UUID вопроса экспертизы
	QuestionID uuid.UUID
	// Data — дерево данных чек-листа
	Data DataTree
	// FieldNames — плоская проекция ключ → подпись, пересчитывается
	// из структуры шаблона при каждом изменении Data
	FieldNames map[string]string
	// CreatedAt — время создания
	CreatedAt time.Time
	// UpdatedAt — время последнего обновления
	UpdatedAt time.Time
}
