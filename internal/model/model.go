// Package model содержит доменные сущности маркетплейса изображений.
package model

import "time"

// User представляет зарегистрированного пользователя маркетплейса.
type User struct {
	ID           int64
	Username     string
	PasswordHash []byte
	BalanceCents int64
	CreatedAt    time.Time
}

// Extension описывает допустимое расширение файла изображения.
type Extension string

const (
	ExtensionJPG Extension = "jpg"
	ExtensionPNG Extension = "png"
)

// SupportedExtensions перечисляет расширения, принимаемые при загрузке.
var SupportedExtensions = []Extension{ExtensionJPG, ExtensionPNG}

// IsSupportedExtension сообщает, входит ли расширение в список допустимых.
func IsSupportedExtension(ext Extension) bool {
	for _, e := range SupportedExtensions {
		if e == ext {
			return true
		}
	}
	return false
}

// MaxPriceCents ограничивает цену изображения сверху.
const MaxPriceCents int64 = 9999999999 * 100

// Image описывает изображение и его положение на маркетплейсе.
type Image struct {
	ID         int64
	Name       string
	PriceCents int64
	ForSale    bool
	OwnerID    int64
	Extension  Extension
	Data       []byte
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// CatalogFilter задаёт параметры поиска по каталогу.
// Пустое имя и пустой список расширений означают "все".
type CatalogFilter struct {
	Name       string
	Extensions []Extension
}
