package doctpl

import (
	"bytes"
	"errors"
	"fmt"
	"image"

	// Регистрация декодеров для image.DecodeConfig
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
)

// Ошибки операций слияния.
var (
	// ErrBookmarkNotFound — закладка или placeholder с таким именем отсутствует в шаблоне.
	ErrBookmarkNotFound = errors.New("закладка не найдена в шаблоне")
	// ErrDuplicateBookmark — шаблон содержит две закладки с одним именем.
	ErrDuplicateBookmark = errors.New("дублирующаяся закладка в шаблоне")
)

// BookmarkIndex — индекс закладок и image placeholder документа по имени.
type BookmarkIndex map[string]*Block

// IndexBookmarks строит индекс всех именованных блоков (bookmark и image)
// по имени. Дублирующееся имя — ошибка шаблона.
func (d *Document) IndexBookmarks() (BookmarkIndex, error) {
	idx := make(BookmarkIndex)
	if err := indexBlocks(d.Blocks, idx); err != nil {
		return nil, err
	}
	return idx, nil
}

func indexBlocks(blocks []Block, idx BookmarkIndex) error {
	for i := range blocks {
		b := &blocks[i]
		if (b.Type == BlockBookmark || b.Type == BlockImage) && b.Name != "" {
			if _, exists := idx[b.Name]; exists {
				return fmt.Errorf("%w: %q", ErrDuplicateBookmark, b.Name)
			}
			idx[b.Name] = b
		}
		if len(b.Children) > 0 {
			if err := indexBlocks(b.Children, idx); err != nil {
				return err
			}
		}
	}
	return nil
}

// SetText заменяет содержимое закладки одним абзацем текста.
// Подстановка идёт по имени, поэтому порядок обхода закладок
// на результат не влияет.
func (idx BookmarkIndex) SetText(name, text string) error {
	b, ok := idx[name]
	if !ok || b.Type != BlockBookmark {
		return fmt.Errorf("%w: %q", ErrBookmarkNotFound, name)
	}
	b.Children = []Block{{Type: BlockParagraph, Text: text}}
	return nil
}

// SetBlocks заменяет содержимое закладки произвольным списком блоков
// (развёртка чек-листа в закладку ответа на вопрос).
func (idx BookmarkIndex) SetBlocks(name string, blocks []Block) error {
	b, ok := idx[name]
	if !ok || b.Type != BlockBookmark {
		return fmt.Errorf("%w: %q", ErrBookmarkNotFound, name)
	}
	b.Children = blocks
	return nil
}

// SetImage вписывает изображение в именованный placeholder, масштабируя
// его к заявленным границам placeholder с сохранением пропорций.
func (idx BookmarkIndex) SetImage(name string, data []byte) error {
	b, ok := idx[name]
	if !ok || b.Type != BlockImage {
		return fmt.Errorf("%w: %q", ErrBookmarkNotFound, name)
	}

	bounds := DefaultImageBounds
	if b.Bounds != nil {
		bounds = *b.Bounds
	}
	img, err := fitImage(data, bounds)
	if err != nil {
		return fmt.Errorf("placeholder %q: %w", name, err)
	}
	b.Image = img
	return nil
}

// NewImageBlock создаёт блок изображения для развёртки чек-листа:
// изображение вписывается в границы по умолчанию.
func NewImageBlock(data []byte) (Block, error) {
	img, err := fitImage(data, DefaultImageBounds)
	if err != nil {
		return Block{}, err
	}
	return Block{Type: BlockImage, Image: img}, nil
}

// AppendAttachment добавляет изображение отдельной страницей в конец
// документа (приложения: дипломы, сертификаты).
func (d *Document) AppendAttachment(data []byte) error {
	img, err := fitImage(data, DefaultImageBounds)
	if err != nil {
		return fmt.Errorf("приложение: %w", err)
	}
	d.Blocks = append(d.Blocks, Block{Type: BlockAttachment, Image: img})
	return nil
}

// fitImage читает размеры изображения и вписывает их в границы
// с сохранением пропорций. Изображение меньше границ не растягивается.
func fitImage(data []byte, bounds Bounds) (*Image, error) {
	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("чтение размеров изображения: %w", err)
	}
	if cfg.Width <= 0 || cfg.Height <= 0 {
		return nil, fmt.Errorf("некорректные размеры изображения: %dx%d", cfg.Width, cfg.Height)
	}

	w, h := cfg.Width, cfg.Height
	if w > bounds.Width {
		h = h * bounds.Width / w
		w = bounds.Width
	}
	if h > bounds.Height {
		w = w * bounds.Height / h
		h = bounds.Height
	}

	return &Image{Width: w, Height: h, Data: data}, nil
}
