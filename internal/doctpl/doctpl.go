// Пакет doctpl — логическая модель документа заключения.
//
// Физический формат шаблона вне зоны ответственности модуля: шаблон
// хранится в файловом сервисе (bucket templates) как закодированный
// документ и разбирается здесь в типизированное дерево блоков.
// Encode/Decode — единственная граница сериализации; сборка заключения
// работает только с типизированной моделью.
//
// Кодирование детерминировано: одинаковое дерево блоков даёт
// байт-в-байт одинаковый результат, что обеспечивает воспроизводимую
// повторную генерацию заключения.
package doctpl

import (
	"encoding/json"
	"fmt"
)

// BlockType — тип блока документа.
type BlockType string

const (
	// BlockParagraph — абзац текста
	BlockParagraph BlockType = "paragraph"
	// BlockBookmark — именованная закладка (точка вставки содержимого)
	BlockBookmark BlockType = "bookmark"
	// BlockImage — именованный image placeholder с заявленными границами
	BlockImage BlockType = "image"
	// BlockAttachment — приложение (изображение на отдельной странице в конце)
	BlockAttachment BlockType = "attachment"
)

// Bounds — заявленные границы представления изображения в пунктах.
type Bounds struct {
	Width  int `json:"width"`
	Height int `json:"height"`
}

// DefaultImageBounds — границы по умолчанию для изображений,
// вставляемых при развёртке чек-листов (не через именованный placeholder).
var DefaultImageBounds = Bounds{Width: 460, Height: 620}

// Image — вставленное изображение: байты и итоговые размеры
// после вписывания в границы.
type Image struct {
	Width  int    `json:"width"`
	Height int    `json:"height"`
	Data   []byte `json:"data"`
}

// Block — элемент документа. Поля заполняются в зависимости от Type:
// paragraph несёт Text; bookmark — Name и Children; image — Name,
// Bounds и (после вставки) Image; attachment — Image.
type Block struct {
	Type     BlockType `json:"type"`
	Name     string    `json:"name,omitempty"`
	Text     string    `json:"text,omitempty"`
	Bounds   *Bounds   `json:"bounds,omitempty"`
	Image    *Image    `json:"image,omitempty"`
	Children []Block   `json:"children,omitempty"`
}

// Document — упорядоченный список блоков. Один экземпляр принадлежит
// ровно одному вызову сборки и между вызовами не разделяется.
type Document struct {
	Blocks []Block `json:"blocks"`
}

// Decode разбирает закодированный шаблон в модель документа.
func Decode(raw []byte) (*Document, error) {
	var doc Document
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("разбор шаблона документа: %w", err)
	}
	return &doc, nil
}

// Encode сериализует документ в итоговые байты.
// encoding/json детерминирован для структур: порядок полей фиксирован,
// поэтому повторная сборка с теми же данными байт-идентична.
func (d *Document) Encode() ([]byte, error) {
	raw, err := json.Marshal(d)
	if err != nil {
		return nil, fmt.Errorf("сериализация документа: %w", err)
	}
	return raw, nil
}
