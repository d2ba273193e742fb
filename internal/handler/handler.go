// Package handler содержит HTTP-обработчики API маркетплейса изображений.
package handler

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/avoronin/picmarket/internal/middleware"
	"github.com/avoronin/picmarket/internal/model"
	"github.com/avoronin/picmarket/internal/repository"
	"github.com/avoronin/picmarket/internal/service"
	"github.com/avoronin/picmarket/internal/validation"
)

// Service определяет контракт бизнес-логики, используемой HTTP-обработчиками.
type Service interface {
	RegisterUser(ctx context.Context, username, password string) (int64, error)
	AuthenticateUser(ctx context.Context, username, password string) (int64, error)
	GetProfile(ctx context.Context, userID int64) (*model.User, []model.Image, error)
	Catalog(ctx context.Context, filter model.CatalogFilter) ([]model.Image, error)
	CreateImage(ctx context.Context, actorID int64, in service.ImageInput) (int64, error)
	GetImageForEdit(ctx context.Context, actorID, imageID int64) (*model.Image, error)
	UpdateImage(ctx context.Context, actorID, imageID int64, in service.ImageInput) error
	DeleteImage(ctx context.Context, actorID, imageID int64) error
	GetImageFile(ctx context.Context, actorID, imageID int64) ([]byte, model.Extension, error)
	BuyImage(ctx context.Context, buyerID, imageID int64) (int64, error)
}

// Handler реализует HTTP-обработчики API маркетплейса изображений.
type Handler struct {
	service        Service
	logger         *zap.Logger
	authMiddleware *middleware.AuthMiddleware
}

// NewHandler создаёт новый экземпляр обработчика HTTP-запросов.
func NewHandler(s Service, logger *zap.Logger, auth *middleware.AuthMiddleware) *Handler {
	return &Handler{
		service:        s,
		logger:         logger,
		authMiddleware: auth,
	}
}

type credentialsRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type imageRequest struct {
	Name      string  `json:"name"`
	Price     float64 `json:"price"`
	ForSale   bool    `json:"for_sale"`
	Data      string  `json:"data,omitempty"`
	Extension string  `json:"extension,omitempty"`
}

type imageResponse struct {
	ID        int64   `json:"id"`
	Name      string  `json:"name"`
	Price     float64 `json:"price"`
	ForSale   bool    `json:"for_sale"`
	OwnerID   int64   `json:"owner_id"`
	Extension string  `json:"extension"`
	CreatedAt string  `json:"created_at"`
}

func toImageResponse(img model.Image) imageResponse {
	return imageResponse{
		ID:        img.ID,
		Name:      img.Name,
		Price:     float64(img.PriceCents) / 100,
		ForSale:   img.ForSale,
		OwnerID:   img.OwnerID,
		Extension: string(img.Extension),
		CreatedAt: img.CreatedAt.Format(time.RFC3339),
	}
}

// Register обрабатывает регистрацию нового пользователя.
func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	userID, err := h.service.RegisterUser(r.Context(), req.Username, req.Password)
	if err != nil {
		var verrs validation.Errors
		if errors.As(err, &verrs) {
			writeValidationErrors(w, verrs)
			return
		}
		if errors.Is(err, repository.ErrUserExists) {
			http.Error(w, http.StatusText(http.StatusConflict), http.StatusConflict)
			return
		}
		h.logger.Error("register user error", zap.Error(err))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	h.authMiddleware.SetAuthCookie(w, userID)
	w.WriteHeader(http.StatusOK)
}

// Login выполняет аутентификацию пользователя и установку cookie.
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	if req.Username == "" || req.Password == "" {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	userID, err := h.service.AuthenticateUser(r.Context(), req.Username, req.Password)
	if err != nil {
		if errors.Is(err, service.ErrInvalidCredentials) {
			http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
			return
		}
		h.logger.Error("login user error", zap.Error(err))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	h.authMiddleware.SetAuthCookie(w, userID)
	w.WriteHeader(http.StatusOK)
}

type profileResponse struct {
	Username string          `json:"username"`
	Balance  float64         `json:"balance"`
	Images   []imageResponse `json:"images"`
}

// GetProfile возвращает баланс текущего пользователя и его изображения.
func (h *Handler) GetProfile(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserIDFromContext(r.Context())
	if !ok {
		http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
		return
	}

	user, images, err := h.service.GetProfile(r.Context(), userID)
	if err != nil {
		h.logger.Error("get profile error", zap.Error(err), zap.Int64("userID", userID))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	resp := profileResponse{
		Username: user.Username,
		Balance:  float64(user.BalanceCents) / 100,
		Images:   make([]imageResponse, 0, len(images)),
	}
	for _, img := range images {
		resp.Images = append(resp.Images, toImageResponse(img))
	}

	writeJSON(w, h.logger, resp)
}

// GetCatalog возвращает выставленные на продажу изображения по фильтрам запроса.
func (h *Handler) GetCatalog(w http.ResponseWriter, r *http.Request) {
	filter := model.CatalogFilter{
		Name: r.URL.Query().Get("name"),
	}

	for _, raw := range r.URL.Query()["ext"] {
		ext := model.Extension(raw)
		if !model.IsSupportedExtension(ext) {
			writeValidationErrors(w, validation.Errors{"ext": "unsupported extension: " + raw})
			return
		}
		filter.Extensions = append(filter.Extensions, ext)
	}

	images, err := h.service.Catalog(r.Context(), filter)
	if err != nil {
		h.logger.Error("get catalog error", zap.Error(err))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	resp := make([]imageResponse, 0, len(images))
	for _, img := range images {
		resp = append(resp, toImageResponse(img))
	}

	writeJSON(w, h.logger, resp)
}

// CreateImage создаёт новое изображение текущего пользователя.
func (h *Handler) CreateImage(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserIDFromContext(r.Context())
	if !ok {
		http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
		return
	}

	var req imageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	in, verr := imageInputFromRequest(req)
	if verr != nil {
		writeValidationErrors(w, verr)
		return
	}

	id, err := h.service.CreateImage(r.Context(), userID, in)
	if err != nil {
		var verrs validation.Errors
		if errors.As(err, &verrs) {
			writeValidationErrors(w, verrs)
			return
		}
		h.logger.Error("create image error", zap.Error(err), zap.Int64("userID", userID))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	if err := json.NewEncoder(w).Encode(map[string]int64{"id": id}); err != nil {
		h.logger.Error("encode response error", zap.Error(err))
	}
}

// GetImage возвращает метаданные изображения для формы редактирования.
func (h *Handler) GetImage(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserIDFromContext(r.Context())
	if !ok {
		http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
		return
	}

	imageID, err := imageIDFromRequest(r)
	if err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	img, err := h.service.GetImageForEdit(r.Context(), userID, imageID)
	if err != nil {
		h.writeImageError(w, err, userID, imageID)
		return
	}

	writeJSON(w, h.logger, toImageResponse(*img))
}

// UpdateImage изменяет изображение текущего пользователя.
func (h *Handler) UpdateImage(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserIDFromContext(r.Context())
	if !ok {
		http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
		return
	}

	imageID, err := imageIDFromRequest(r)
	if err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	var req imageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	in, verr := imageInputFromRequest(req)
	if verr != nil {
		writeValidationErrors(w, verr)
		return
	}

	if err := h.service.UpdateImage(r.Context(), userID, imageID, in); err != nil {
		var verrs validation.Errors
		if errors.As(err, &verrs) {
			writeValidationErrors(w, verrs)
			return
		}
		h.writeImageError(w, err, userID, imageID)
		return
	}

	w.WriteHeader(http.StatusOK)
}

// DeleteImage удаляет изображение текущего пользователя.
func (h *Handler) DeleteImage(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserIDFromContext(r.Context())
	if !ok {
		http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
		return
	}

	imageID, err := imageIDFromRequest(r)
	if err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	if err := h.service.DeleteImage(r.Context(), userID, imageID); err != nil {
		h.writeImageError(w, err, userID, imageID)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// GetImageFile отдаёт бинарное содержимое изображения.
func (h *Handler) GetImageFile(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserIDFromContext(r.Context())
	if !ok {
		http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
		return
	}

	imageID, err := imageIDFromRequest(r)
	if err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	data, ext, err := h.service.GetImageFile(r.Context(), userID, imageID)
	if err != nil {
		h.writeImageError(w, err, userID, imageID)
		return
	}

	w.Header().Set("Content-Type", contentTypeForExtension(ext))
	if _, err := w.Write(data); err != nil {
		h.logger.Error("write image data error", zap.Error(err), zap.Int64("imageID", imageID))
	}
}

type buyResponse struct {
	Balance float64 `json:"balance"`
}

type purchaseErrorResponse struct {
	Message string   `json:"message"`
	Balance *float64 `json:"balance,omitempty"`
}

// BuyImage покупает изображение для текущего пользователя.
func (h *Handler) BuyImage(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserIDFromContext(r.Context())
	if !ok {
		http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
		return
	}

	imageID, err := imageIDFromRequest(r)
	if err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	balanceCents, err := h.service.BuyImage(r.Context(), userID, imageID)
	if err != nil {
		switch {
		case errors.Is(err, repository.ErrImageNotFound):
			http.Error(w, http.StatusText(http.StatusNotFound), http.StatusNotFound)
		case errors.Is(err, repository.ErrNotForSale):
			writeJSONStatus(w, h.logger, http.StatusConflict, purchaseErrorResponse{
				Message: "image is not for sale",
			})
		case errors.Is(err, repository.ErrInsufficientBalance):
			balance := float64(balanceCents) / 100
			writeJSONStatus(w, h.logger, http.StatusPaymentRequired, purchaseErrorResponse{
				Message: "insufficient balance",
				Balance: &balance,
			})
		default:
			h.logger.Error("buy image error", zap.Error(err), zap.Int64("userID", userID), zap.Int64("imageID", imageID))
			http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		}
		return
	}

	writeJSON(w, h.logger, buyResponse{Balance: float64(balanceCents) / 100})
}

func (h *Handler) writeImageError(w http.ResponseWriter, err error, userID, imageID int64) {
	switch {
	case errors.Is(err, repository.ErrImageNotFound):
		http.Error(w, http.StatusText(http.StatusNotFound), http.StatusNotFound)
	case errors.Is(err, service.ErrForbidden):
		http.Error(w, http.StatusText(http.StatusForbidden), http.StatusForbidden)
	default:
		h.logger.Error("image operation error", zap.Error(err), zap.Int64("userID", userID), zap.Int64("imageID", imageID))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
	}
}

func imageIDFromRequest(r *http.Request) (int64, error) {
	return strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
}

func imageInputFromRequest(req imageRequest) (service.ImageInput, validation.Errors) {
	in := service.ImageInput{
		Name:       req.Name,
		PriceCents: int64(req.Price * 100),
		ForSale:    req.ForSale,
		Extension:  model.Extension(req.Extension),
	}

	if req.Data != "" {
		data, err := base64.StdEncoding.DecodeString(req.Data)
		if err != nil {
			return service.ImageInput{}, validation.Errors{"file": "the file must be base64-encoded"}
		}
		in.Data = data
	}

	return in, nil
}

func contentTypeForExtension(ext model.Extension) string {
	switch ext {
	case model.ExtensionJPG:
		return "image/jpeg"
	case model.ExtensionPNG:
		return "image/png"
	default:
		return "application/octet-stream"
	}
}

func writeJSON(w http.ResponseWriter, logger *zap.Logger, v any) {
	writeJSONStatus(w, logger, http.StatusOK, v)
}

func writeJSONStatus(w http.ResponseWriter, logger *zap.Logger, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Error("encode response error", zap.Error(err))
	}
}

func writeValidationErrors(w http.ResponseWriter, errs validation.Errors) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnprocessableEntity)
	_ = json.NewEncoder(w).Encode(map[string]validation.Errors{"errors": errs})
}
