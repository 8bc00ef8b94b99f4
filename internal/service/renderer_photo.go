// renderer_photo.go — отрисовщик семейства шаблонов с фотофиксацией
// (осмотр помещений, дефектная ведомость, ведомость материалов).
// Принимает приложенные файлы, загружает их в bucket answer-photos
// по детерминированным ключам и вписывает ссылки в дерево данных.
package service

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/stroyexpert/expertise-module/internal/domain/model"
)

type photoRenderer struct {
	baseRenderer
}

func (p *photoRenderer) Name() string { return "photo" }

// ApplyUpdate вливает payload, загружает приложенные файлы и сохраняет
// экземпляр. Ключ объекта детерминирован (id экземпляра + путь поля +
// порядковый номер), поэтому повтор запроса перезаписывает те же
// объекты, а не плодит копии.
func (p *photoRenderer) ApplyUpdate(ctx context.Context, tpl *model.Template, inst *model.Instance, payload model.DataTree, files []UploadFile) error {
	inst.Data.Merge(payload)

	seq := make(map[string]int, len(files))
	for _, f := range files {
		ft, ok := nodeTypeAt(tpl.Structure, structuralKey(f.FieldPath))
		if !ok {
			return fmt.Errorf("%w: поле %q отсутствует в шаблоне %q", ErrValidation, f.FieldPath, tpl.Name)
		}
		if ft != model.FieldPhoto {
			return fmt.Errorf("%w: поле %q не является фотографией", ErrValidation, f.FieldPath)
		}

		ref := model.FileRef{
			Name:   objectKey(inst.ID.String(), f.FieldPath, seq[f.FieldPath]),
			Ext:    f.Ext,
			Bucket: model.BucketAnswerPhotos,
		}
		seq[f.FieldPath]++

		// Сначала объект, потом ссылка: запись в дерево только после
		// успешной загрузки.
		if err := p.files.Put(ctx, ref.Name, ref.Ext, ref.Bucket, f.Data); err != nil {
			return fmt.Errorf("%w: загрузка фотографии %s: %w", ErrIntegration, ref.Name, err) //nolint:errorlint // намеренный двойной wrap
		}
		if err := setFileAtPath(inst.Data, f.FieldPath, ref); err != nil {
			return err
		}
	}

	return p.persist(ctx, tpl, inst)
}

// RemoveFile удаляет ссылку на файл из данных экземпляра и сам объект.
func (p *photoRenderer) RemoveFile(ctx context.Context, tpl *model.Template, inst *model.Instance, fileName string, bucket model.Bucket) error {
	return p.removeFileRef(ctx, tpl, inst, fileName, bucket)
}

// objectKey строит детерминированный ключ объекта в файловом сервисе.
// Точки пути заменяются дефисами: ключ — одна компонента URL.
func objectKey(instanceID, fieldPath string, seq int) string {
	return fmt.Sprintf("%s_%s_%d", instanceID, strings.ReplaceAll(fieldPath, ".", "-"), seq)
}

// setFileAtPath вписывает файловую ссылку в дерево данных по пути поля.
// Числовые сегменты индексируют записи повторяемых групп; запись должна
// существовать (создаётся слиянием payload в этом же запросе).
func setFileAtPath(tree model.DataTree, fieldPath string, ref model.FileRef) error {
	segs := strings.Split(fieldPath, ".")
	cur := tree
	key := ""

	for _, seg := range segs {
		idx, err := strconv.Atoi(seg)
		if err != nil {
			if key != "" {
				key += "."
			}
			key += seg
			continue
		}
		if key == "" {
			return fmt.Errorf("%w: путь %q: индекс без имени группы", ErrValidation, fieldPath)
		}
		v, ok := cur[key]
		if !ok || v.Kind != model.KindList {
			return fmt.Errorf("%w: путь %q: %q не является повторяемой группой", ErrValidation, fieldPath, key)
		}
		if idx < 0 || idx >= len(v.Items) {
			return fmt.Errorf("%w: путь %q: запись %d отсутствует в группе %q", ErrValidation, fieldPath, idx, key)
		}
		cur = v.Items[idx]
		key = ""
	}

	if key == "" {
		return fmt.Errorf("%w: путь %q не указывает на поле", ErrValidation, fieldPath)
	}
	cur[key] = model.FileValue(ref)
	return nil
}
