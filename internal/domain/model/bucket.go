// Пакет model — доменные модели Expertise Module.
package model

// Bucket — логическая категория файлов в файловом сервисе.
// Набор закрытый: файловый сервис не принимает произвольные имена bucket.
type Bucket string

const (
	// BucketAvatars — аватары профилей
	BucketAvatars Bucket = "avatars"
	// BucketDiplomas — дипломы экспертов
	BucketDiplomas Bucket = "diplomas"
	// BucketAdditionalDiplomas — дипломы о дополнительном образовании
	BucketAdditionalDiplomas Bucket = "additional-diplomas"
	// BucketQualificationCerts — сертификаты повышения квалификации
	BucketQualificationCerts Bucket = "qualification-certs"
	// BucketPassports — паспорта объектов
	BucketPassports Bucket = "passports"
	// BucketTemplates — шаблоны документов заключений
	BucketTemplates Bucket = "templates"
	// BucketCertificates — прочие сертификаты
	BucketCertificates Bucket = "certificates"
	// BucketAnswerPhotos — фотографии в ответах на вопросы экспертизы
	BucketAnswerPhotos Bucket = "answer-photos"
)

// validBuckets — множество допустимых bucket.
var validBuckets = map[Bucket]bool{
	BucketAvatars:            true,
	BucketDiplomas:           true,
	BucketAdditionalDiplomas: true,
	BucketQualificationCerts: true,
	BucketPassports:          true,
	BucketTemplates:          true,
	BucketCertificates:       true,
	BucketAnswerPhotos:       true,
}

// IsValid сообщает, входит ли bucket в закрытый набор категорий.
func (b Bucket) IsValid() bool {
	return validBuckets[b]
}

// FileRef — ссылка на файл в файловом сервисе.
// Файл адресуется тройкой (имя, расширение, bucket); сами байты
// в БД не хранятся.
type FileRef struct {
	// Name — логическое имя файла (без расширения)
	Name string `json:"name"`
	// Ext — расширение файла (без точки: jpg, png, pdf)
	Ext string `json:"ext"`
	// Bucket — категория хранения
	Bucket Bucket `json:"bucket"`
}

// Equal сравнивает две ссылки по всем трём составляющим адреса.
func (f FileRef) Equal(other FileRef) bool {
	return f.Name == other.Name && f.Ext == other.Ext && f.Bucket == other.Bucket
}
