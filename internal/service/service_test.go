package service

import (
	"context"
	"errors"
	"testing"

	"golang.org/x/crypto/bcrypt"

	"github.com/avoronin/picmarket/internal/model"
	"github.com/avoronin/picmarket/internal/repository"
	"github.com/avoronin/picmarket/internal/validation"
)

type stubRepo struct {
	createUserID  int64
	createUserErr error
	createdUsers  int

	getUser    *model.User
	getUserErr error

	createImageID  int64
	createImageErr error
	createdImages  int
	lastCreated    *model.Image

	image    *model.Image
	imageErr error

	imageData    []byte
	imageDataExt model.Extension

	updateErr      error
	updatedImages  int
	lastUpdateData []byte

	deleteErr     error
	deletedImages int

	forSale    []model.Image
	forSaleErr error
	lastFilter model.CatalogFilter

	owned    []model.Image
	ownedErr error

	purchaseBalance int64
	purchaseErr     error
}

func (s *stubRepo) Close() error { return nil }

func (s *stubRepo) CreateUser(ctx context.Context, username string, passwordHash []byte) (int64, error) {
	s.createdUsers++
	return s.createUserID, s.createUserErr
}

func (s *stubRepo) GetUserByUsername(ctx context.Context, username string) (*model.User, error) {
	return s.getUser, s.getUserErr
}

func (s *stubRepo) GetUserByID(ctx context.Context, id int64) (*model.User, error) {
	return s.getUser, s.getUserErr
}

func (s *stubRepo) CreateImage(ctx context.Context, img *model.Image) (int64, error) {
	s.createdImages++
	s.lastCreated = img
	return s.createImageID, s.createImageErr
}

func (s *stubRepo) GetImage(ctx context.Context, id int64) (*model.Image, error) {
	return s.image, s.imageErr
}

func (s *stubRepo) GetImageData(ctx context.Context, id int64) ([]byte, model.Extension, error) {
	return s.imageData, s.imageDataExt, nil
}

func (s *stubRepo) UpdateImage(ctx context.Context, id int64, name string, priceCents int64, forSale bool, data []byte, ext model.Extension) error {
	s.updatedImages++
	s.lastUpdateData = data
	return s.updateErr
}

func (s *stubRepo) DeleteImage(ctx context.Context, id int64) error {
	s.deletedImages++
	return s.deleteErr
}

func (s *stubRepo) ListForSale(ctx context.Context, filter model.CatalogFilter) ([]model.Image, error) {
	s.lastFilter = filter
	return s.forSale, s.forSaleErr
}

func (s *stubRepo) ListByOwner(ctx context.Context, ownerID int64) ([]model.Image, error) {
	return s.owned, s.ownedErr
}

func (s *stubRepo) PurchaseImage(ctx context.Context, buyerID, imageID int64) (int64, error) {
	return s.purchaseBalance, s.purchaseErr
}

func TestRegisterUser_PropagatesDuplicateError(t *testing.T) {
	repo := &stubRepo{
		createUserErr: repository.ErrUserExists,
	}
	svc := NewService(repo, 0)

	_, err := svc.RegisterUser(context.Background(), "username", "password")
	if !errors.Is(err, repository.ErrUserExists) {
		t.Fatalf("expected ErrUserExists, got %v", err)
	}
}

func TestRegisterUser_ShortPasswordDoesNotTouchStore(t *testing.T) {
	repo := &stubRepo{}
	svc := NewService(repo, 0)

	_, err := svc.RegisterUser(context.Background(), "username", "12345")

	var verrs validation.Errors
	if !errors.As(err, &verrs) {
		t.Fatalf("expected validation.Errors, got %v", err)
	}
	if _, ok := verrs["password"]; !ok {
		t.Fatalf("expected password error, got %v", verrs)
	}
	if repo.createdUsers != 0 {
		t.Fatalf("store must not be touched on validation failure")
	}
}

func TestAuthenticateUser_InvalidCredentials(t *testing.T) {
	hash, err := bcrypt.GenerateFromPassword([]byte("correct"), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("bcrypt: %v", err)
	}

	repo := &stubRepo{
		getUser: &model.User{
			ID:           1,
			Username:     "user",
			PasswordHash: hash,
		},
	}
	svc := NewService(repo, 0)

	_, err = svc.AuthenticateUser(context.Background(), "user", "wrong")
	if !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials, got %v", err)
	}
}

func TestAuthenticateUser_UnknownUser(t *testing.T) {
	repo := &stubRepo{
		getUserErr: repository.ErrUserNotFound,
	}
	svc := NewService(repo, 0)

	_, err := svc.AuthenticateUser(context.Background(), "ghost", "password")
	if !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials, got %v", err)
	}
}

func TestCreateImage_InvalidPriceDoesNotTouchStore(t *testing.T) {
	repo := &stubRepo{}
	svc := NewService(repo, 0)

	_, err := svc.CreateImage(context.Background(), 1, ImageInput{
		Name:       "Kitten",
		PriceCents: -100,
		Data:       []byte{1},
		Extension:  model.ExtensionJPG,
	})

	var verrs validation.Errors
	if !errors.As(err, &verrs) {
		t.Fatalf("expected validation.Errors, got %v", err)
	}
	if repo.createdImages != 0 {
		t.Fatalf("store must not be touched on validation failure")
	}
}

func TestCreateImage_AssignsOwner(t *testing.T) {
	repo := &stubRepo{createImageID: 7}
	svc := NewService(repo, 0)

	id, err := svc.CreateImage(context.Background(), 42, ImageInput{
		Name:       "Kitten",
		PriceCents: 900100,
		ForSale:    true,
		Data:       []byte{1, 2, 3},
		Extension:  model.ExtensionPNG,
	})
	if err != nil {
		t.Fatalf("CreateImage error: %v", err)
	}
	if id != 7 {
		t.Fatalf("id = %d, want 7", id)
	}
	if repo.lastCreated.OwnerID != 42 {
		t.Fatalf("owner = %d, want 42", repo.lastCreated.OwnerID)
	}
}

func TestUpdateImage_ForbiddenForNonOwner(t *testing.T) {
	repo := &stubRepo{
		image: &model.Image{ID: 5, OwnerID: 1, Name: "Image", Extension: model.ExtensionJPG},
	}
	svc := NewService(repo, 0)

	err := svc.UpdateImage(context.Background(), 2, 5, ImageInput{
		Name:       "Kitten",
		PriceCents: 100,
	})
	if !errors.Is(err, ErrForbidden) {
		t.Fatalf("expected ErrForbidden, got %v", err)
	}
	if repo.updatedImages != 0 {
		t.Fatalf("store must not be touched on authorization failure")
	}
}

func TestUpdateImage_OwnerSucceedsWithoutNewFile(t *testing.T) {
	repo := &stubRepo{
		image: &model.Image{ID: 5, OwnerID: 1, Name: "Image", Extension: model.ExtensionJPG},
	}
	svc := NewService(repo, 0)

	err := svc.UpdateImage(context.Background(), 1, 5, ImageInput{
		Name:       "Kitten",
		PriceCents: 900100,
		ForSale:    true,
	})
	if err != nil {
		t.Fatalf("UpdateImage error: %v", err)
	}
	if repo.updatedImages != 1 {
		t.Fatalf("expected one update, got %d", repo.updatedImages)
	}
	if repo.lastUpdateData != nil {
		t.Fatalf("data must stay nil when no new file is supplied")
	}
}

func TestUpdateImage_NotFound(t *testing.T) {
	repo := &stubRepo{imageErr: repository.ErrImageNotFound}
	svc := NewService(repo, 0)

	err := svc.UpdateImage(context.Background(), 1, 99, ImageInput{Name: "Kitten"})
	if !errors.Is(err, repository.ErrImageNotFound) {
		t.Fatalf("expected ErrImageNotFound, got %v", err)
	}
}

func TestDeleteImage_ForbiddenForNonOwner(t *testing.T) {
	repo := &stubRepo{
		image: &model.Image{ID: 5, OwnerID: 1},
	}
	svc := NewService(repo, 0)

	err := svc.DeleteImage(context.Background(), 2, 5)
	if !errors.Is(err, ErrForbidden) {
		t.Fatalf("expected ErrForbidden, got %v", err)
	}
	if repo.deletedImages != 0 {
		t.Fatalf("store must not be touched on authorization failure")
	}
}

func TestDeleteImage_OwnerSucceeds(t *testing.T) {
	repo := &stubRepo{
		image: &model.Image{ID: 5, OwnerID: 1},
	}
	svc := NewService(repo, 0)

	if err := svc.DeleteImage(context.Background(), 1, 5); err != nil {
		t.Fatalf("DeleteImage error: %v", err)
	}
	if repo.deletedImages != 1 {
		t.Fatalf("expected one delete, got %d", repo.deletedImages)
	}
}

func TestGetImageForEdit_ForbiddenForNonOwner(t *testing.T) {
	repo := &stubRepo{
		image: &model.Image{ID: 5, OwnerID: 1},
	}
	svc := NewService(repo, 0)

	_, err := svc.GetImageForEdit(context.Background(), 2, 5)
	if !errors.Is(err, ErrForbidden) {
		t.Fatalf("expected ErrForbidden, got %v", err)
	}
}

func TestGetImageFile_NotForSaleVisibleToOwnerOnly(t *testing.T) {
	repo := &stubRepo{
		image:        &model.Image{ID: 5, OwnerID: 1, ForSale: false},
		imageData:    []byte{1, 2, 3},
		imageDataExt: model.ExtensionPNG,
	}
	svc := NewService(repo, 0)

	_, _, err := svc.GetImageFile(context.Background(), 2, 5)
	if !errors.Is(err, ErrForbidden) {
		t.Fatalf("expected ErrForbidden for non-owner, got %v", err)
	}

	data, ext, err := svc.GetImageFile(context.Background(), 1, 5)
	if err != nil {
		t.Fatalf("GetImageFile error for owner: %v", err)
	}
	if len(data) != 3 || ext != model.ExtensionPNG {
		t.Fatalf("unexpected file: %v %q", data, ext)
	}
}

func TestGetImageFile_ForSaleVisibleToAnyone(t *testing.T) {
	repo := &stubRepo{
		image:        &model.Image{ID: 5, OwnerID: 1, ForSale: true},
		imageData:    []byte{1},
		imageDataExt: model.ExtensionJPG,
	}
	svc := NewService(repo, 0)

	if _, _, err := svc.GetImageFile(context.Background(), 2, 5); err != nil {
		t.Fatalf("GetImageFile error: %v", err)
	}
}

func TestCatalog_PassesFilterThrough(t *testing.T) {
	repo := &stubRepo{
		forSale: []model.Image{{ID: 1, Name: "Kitten", ForSale: true}},
	}
	svc := NewService(repo, 0)

	filter := model.CatalogFilter{
		Name:       "Kit",
		Extensions: []model.Extension{model.ExtensionPNG},
	}

	images, err := svc.Catalog(context.Background(), filter)
	if err != nil {
		t.Fatalf("Catalog error: %v", err)
	}
	if len(images) != 1 || images[0].ID != 1 {
		t.Fatalf("unexpected catalog: %+v", images)
	}
	if repo.lastFilter.Name != "Kit" || len(repo.lastFilter.Extensions) != 1 {
		t.Fatalf("filter not passed through: %+v", repo.lastFilter)
	}
}

func TestBuyImage_PropagatesPurchaseErrors(t *testing.T) {
	tests := []struct {
		name    string
		repoErr error
	}{
		{name: "not found", repoErr: repository.ErrImageNotFound},
		{name: "not for sale", repoErr: repository.ErrNotForSale},
		{name: "insufficient balance", repoErr: repository.ErrInsufficientBalance},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := &stubRepo{purchaseErr: tt.repoErr}
			svc := NewService(repo, 0)

			_, err := svc.BuyImage(context.Background(), 1, 5)
			if !errors.Is(err, tt.repoErr) {
				t.Fatalf("expected %v, got %v", tt.repoErr, err)
			}
		})
	}
}

func TestBuyImage_ReturnsRemainingBalance(t *testing.T) {
	repo := &stubRepo{purchaseBalance: 8800}
	svc := NewService(repo, 0)

	balance, err := svc.BuyImage(context.Background(), 1, 5)
	if err != nil {
		t.Fatalf("BuyImage error: %v", err)
	}
	if balance != 8800 {
		t.Fatalf("balance = %d, want 8800", balance)
	}
}

func TestCanModify(t *testing.T) {
	img := &model.Image{OwnerID: 1}

	if !canModify(1, img) {
		t.Fatalf("owner must be allowed to modify")
	}
	if canModify(2, img) {
		t.Fatalf("non-owner must not be allowed to modify")
	}
}
