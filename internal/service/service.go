// Package service реализует бизнес-логику маркетплейса изображений.
package service

import (
	"context"
	"errors"
	"strings"

	"golang.org/x/crypto/bcrypt"

	"github.com/avoronin/picmarket/internal/model"
	"github.com/avoronin/picmarket/internal/repository"
	"github.com/avoronin/picmarket/internal/validation"
)

// ErrForbidden возвращается при попытке изменить чужое изображение.
var (
	ErrForbidden = errors.New("operation is allowed to the owner only")
	// ErrInvalidCredentials возвращается при неверном имени пользователя или пароле.
	ErrInvalidCredentials = errors.New("invalid credentials")
)

// Repository описывает контракт доступа к данным, используемый сервисом.
type Repository interface {
	Close() error
	CreateUser(ctx context.Context, username string, passwordHash []byte) (int64, error)
	GetUserByUsername(ctx context.Context, username string) (*model.User, error)
	GetUserByID(ctx context.Context, id int64) (*model.User, error)
	CreateImage(ctx context.Context, img *model.Image) (int64, error)
	GetImage(ctx context.Context, id int64) (*model.Image, error)
	GetImageData(ctx context.Context, id int64) ([]byte, model.Extension, error)
	UpdateImage(ctx context.Context, id int64, name string, priceCents int64, forSale bool, data []byte, ext model.Extension) error
	DeleteImage(ctx context.Context, id int64) error
	ListForSale(ctx context.Context, filter model.CatalogFilter) ([]model.Image, error)
	ListByOwner(ctx context.Context, ownerID int64) ([]model.Image, error)
	PurchaseImage(ctx context.Context, buyerID, imageID int64) (int64, error)
}

// Service содержит бизнес-логику маркетплейса изображений.
type Service struct {
	repo           Repository
	maxUploadBytes int64
}

// NewService создаёт новый сервис с указанным репозиторием и лимитом размера файла.
func NewService(repo Repository, maxUploadBytes int64) *Service {
	return &Service{
		repo:           repo,
		maxUploadBytes: maxUploadBytes,
	}
}

// Close закрывает ресурсы сервиса.
func (s *Service) Close() error {
	if s.repo != nil {
		return s.repo.Close()
	}
	return nil
}

// RegisterUser регистрирует нового пользователя со стартовым балансом.
func (s *Service) RegisterUser(ctx context.Context, username, password string) (int64, error) {
	username = strings.TrimSpace(username)

	if errs := validation.ValidateCredentials(username, password); errs != nil {
		return 0, errs
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return 0, err
	}

	return s.repo.CreateUser(ctx, username, hash)
}

// AuthenticateUser проверяет имя пользователя и пароль и возвращает идентификатор.
func (s *Service) AuthenticateUser(ctx context.Context, username, password string) (int64, error) {
	u, err := s.repo.GetUserByUsername(ctx, strings.TrimSpace(username))
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return 0, ErrInvalidCredentials
		}
		return 0, err
	}

	if err := bcrypt.CompareHashAndPassword(u.PasswordHash, []byte(password)); err != nil {
		return 0, ErrInvalidCredentials
	}

	return u.ID, nil
}

// GetProfile возвращает пользователя и все его изображения.
func (s *Service) GetProfile(ctx context.Context, userID int64) (*model.User, []model.Image, error) {
	u, err := s.repo.GetUserByID(ctx, userID)
	if err != nil {
		return nil, nil, err
	}

	images, err := s.repo.ListByOwner(ctx, userID)
	if err != nil {
		return nil, nil, err
	}

	return u, images, nil
}

// Catalog возвращает выставленные на продажу изображения по фильтру.
func (s *Service) Catalog(ctx context.Context, filter model.CatalogFilter) ([]model.Image, error) {
	return s.repo.ListForSale(ctx, filter)
}

// ImageInput описывает поля изображения при создании и обновлении.
// При обновлении Data может быть nil — содержимое остаётся прежним.
type ImageInput struct {
	Name       string
	PriceCents int64
	ForSale    bool
	Data       []byte
	Extension  model.Extension
}

// CreateImage создаёт изображение, принадлежащее актору.
func (s *Service) CreateImage(ctx context.Context, actorID int64, in ImageInput) (int64, error) {
	in.Name = strings.TrimSpace(in.Name)

	errs := validation.ValidateImage(validation.ImageInput{
		Name:        in.Name,
		PriceCents:  in.PriceCents,
		Extension:   in.Extension,
		DataSize:    int64(len(in.Data)),
		RequireData: true,
		MaxDataSize: s.maxUploadBytes,
	})
	if errs != nil {
		return 0, errs
	}

	return s.repo.CreateImage(ctx, &model.Image{
		Name:       in.Name,
		PriceCents: in.PriceCents,
		ForSale:    in.ForSale,
		OwnerID:    actorID,
		Extension:  in.Extension,
		Data:       in.Data,
	})
}

// GetImageForEdit возвращает метаданные изображения для формы редактирования.
// Доступно только владельцу.
func (s *Service) GetImageForEdit(ctx context.Context, actorID, imageID int64) (*model.Image, error) {
	img, err := s.repo.GetImage(ctx, imageID)
	if err != nil {
		return nil, err
	}

	if !canModify(actorID, img) {
		return nil, ErrForbidden
	}

	return img, nil
}

// UpdateImage изменяет изображение актора. Все поля применяются вместе;
// при ошибке валидации хранилище не меняется.
func (s *Service) UpdateImage(ctx context.Context, actorID, imageID int64, in ImageInput) error {
	img, err := s.repo.GetImage(ctx, imageID)
	if err != nil {
		return err
	}

	if !canModify(actorID, img) {
		return ErrForbidden
	}

	in.Name = strings.TrimSpace(in.Name)

	errs := validation.ValidateImage(validation.ImageInput{
		Name:        in.Name,
		PriceCents:  in.PriceCents,
		Extension:   in.Extension,
		DataSize:    int64(len(in.Data)),
		MaxDataSize: s.maxUploadBytes,
	})
	if errs != nil {
		return errs
	}

	return s.repo.UpdateImage(ctx, imageID, in.Name, in.PriceCents, in.ForSale, in.Data, in.Extension)
}

// DeleteImage удаляет изображение актора безвозвратно.
func (s *Service) DeleteImage(ctx context.Context, actorID, imageID int64) error {
	img, err := s.repo.GetImage(ctx, imageID)
	if err != nil {
		return err
	}

	if !canModify(actorID, img) {
		return ErrForbidden
	}

	return s.repo.DeleteImage(ctx, imageID)
}

// GetImageFile возвращает содержимое файла изображения. Файл изображения,
// снятого с продажи, доступен только владельцу.
func (s *Service) GetImageFile(ctx context.Context, actorID, imageID int64) ([]byte, model.Extension, error) {
	img, err := s.repo.GetImage(ctx, imageID)
	if err != nil {
		return nil, "", err
	}

	if !img.ForSale && !canModify(actorID, img) {
		return nil, "", ErrForbidden
	}

	return s.repo.GetImageData(ctx, imageID)
}

// BuyImage покупает изображение для указанного покупателя и возвращает
// его баланс после операции.
func (s *Service) BuyImage(ctx context.Context, buyerID, imageID int64) (int64, error) {
	return s.repo.PurchaseImage(ctx, buyerID, imageID)
}

// canModify сообщает, владеет ли актор изображением. Изменять и удалять
// изображение может только владелец.
func canModify(actorID int64, img *model.Image) bool {
	return img.OwnerID == actorID
}
