// Package validation содержит функции валидации входных данных.
package validation

import (
	"fmt"
	"strings"

	"github.com/avoronin/picmarket/internal/model"
)

// Errors содержит сообщения об ошибках валидации по именам полей.
type Errors map[string]string

// Error реализует интерфейс error для набора ошибок валидации.
func (e Errors) Error() string {
	parts := make([]string, 0, len(e))
	for field, msg := range e {
		parts = append(parts, field+": "+msg)
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

// ImageInput описывает проверяемые поля при создании и изменении изображения.
type ImageInput struct {
	Name       string
	PriceCents int64
	Extension  model.Extension
	DataSize   int64
	// RequireData указывает, обязателен ли файл (при создании — да,
	// при обновлении файл можно не передавать).
	RequireData bool
	MaxDataSize int64
}

// ValidateImage проверяет поля изображения и возвращает ошибки по полям.
// Пустой результат означает, что входные данные корректны.
func ValidateImage(in ImageInput) Errors {
	errs := Errors{}

	if strings.TrimSpace(in.Name) == "" {
		errs["name"] = "the name is required"
	}

	if in.PriceCents < 0 {
		errs["price"] = "the price must not be negative"
	} else if in.PriceCents > model.MaxPriceCents {
		errs["price"] = fmt.Sprintf("the price must not exceed %d", model.MaxPriceCents/100)
	}

	hasData := in.DataSize > 0
	if in.RequireData && !hasData {
		errs["file"] = "the file is required"
	}

	if hasData {
		if !model.IsSupportedExtension(in.Extension) {
			errs["file"] = "the file extension must be one of: jpg, png"
		} else if in.MaxDataSize > 0 && in.DataSize > in.MaxDataSize {
			errs["file"] = fmt.Sprintf("the file must not exceed %d bytes", in.MaxDataSize)
		}
	}

	if len(errs) == 0 {
		return nil
	}
	return errs
}

// ValidateCredentials проверяет имя пользователя и пароль при регистрации.
func ValidateCredentials(username, password string) Errors {
	errs := Errors{}

	if strings.TrimSpace(username) == "" {
		errs["username"] = "the username is required"
	}

	if len(password) < 6 {
		errs["password"] = "the password must be at least 6 characters long"
	}

	if len(errs) == 0 {
		return nil
	}
	return errs
}
