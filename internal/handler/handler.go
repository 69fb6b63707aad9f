// Package handler содержит HTTP-обработчики API торгов SOOM.
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/RaifayoussefDev/Backend-DabApp-sub000/internal/middleware"
	"github.com/RaifayoussefDev/Backend-DabApp-sub000/internal/model"
	"github.com/RaifayoussefDev/Backend-DabApp-sub000/internal/repository"
	"github.com/RaifayoussefDev/Backend-DabApp-sub000/internal/service"
)

// Service определяет контракт бизнес-логики, используемой HTTP-обработчиками.
type Service interface {
	RegisterUser(ctx context.Context, login, password string) (int64, error)
	AuthenticateUser(ctx context.Context, login, password string) (int64, error)
	CreateSoom(ctx context.Context, listingID string, userID int64, amount float64) (*service.CreateResult, error)
	MinimumSoom(ctx context.Context, listingID string) (*service.MinimumResult, error)
	ListSooms(ctx context.Context, listingID string) (*service.ListResult, error)
	LastSoom(ctx context.Context, listingID string) (*service.LastResult, error)
	AcceptSoom(ctx context.Context, soomID string, userID int64) (*model.Soom, error)
	RejectSoom(ctx context.Context, soomID string, userID int64, reason *string) (*model.Soom, error)
	CancelSoom(ctx context.Context, soomID string, userID int64) (*model.Soom, error)
	EditSoom(ctx context.Context, soomID string, userID int64, amount float64) (*service.EditResult, error)
	SellerInbox(ctx context.Context, sellerID int64) (*service.BoxResult, error)
	BuyerOutbox(ctx context.Context, userID int64) (*service.BoxResult, error)
}

// Handler реализует HTTP-обработчики API торгов SOOM.
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

func centsToAmount(c int64) float64 {
	return float64(c) / 100
}

func centsPtrToAmount(c *int64) *float64 {
	if c == nil {
		return nil
	}
	v := centsToAmount(*c)
	return &v
}

type soomResponse struct {
	ID              string  `json:"id"`
	ListingID       string  `json:"listing_id"`
	UserID          int64   `json:"user_id"`
	Amount          float64 `json:"amount"`
	MinSoom         float64 `json:"min_soom"`
	Status          string  `json:"status"`
	RejectionReason *string `json:"rejection_reason,omitempty"`
	SubmissionDate  string  `json:"submission_date"`
}

func toSoomResponse(s *model.Soom) soomResponse {
	return soomResponse{
		ID:              s.ID,
		ListingID:       s.ListingID,
		UserID:          s.UserID,
		Amount:          centsToAmount(s.Amount),
		MinSoom:         centsToAmount(s.MinSoom),
		Status:          string(s.Status),
		RejectionReason: s.RejectionReason,
		SubmissionDate:  s.SubmissionDate.Format(time.RFC3339),
	}
}

type listingSoomResponse struct {
	soomResponse
	BidderLogin string `json:"bidder_login"`
}

type boxSoomResponse struct {
	soomResponse
	ListingTitle string `json:"listing_title"`
	SellerID     int64  `json:"seller_id"`
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		h.logger.Error("encode response", zap.Error(err))
	}
}

// writeError отправляет ошибку в формате {"message": ..., контекстные поля}.
func (h *Handler) writeError(w http.ResponseWriter, status int, message string, extra map[string]any) {
	body := map[string]any{"message": message}
	for k, v := range extra {
		body[k] = v
	}
	h.writeJSON(w, status, body)
}

// respondDomainError транслирует доменные ошибки в HTTP-статусы:
// 404 для отсутствующих сущностей, 403 для нарушений ролей,
// 422 для сумм ниже минимума и конфликтующих состояний, 500 для остального.
func (h *Handler) respondDomainError(w http.ResponseWriter, err error, op string) {
	var belowMin *service.BelowMinimumError
	var dup *service.DuplicatePendingError

	switch {
	case errors.Is(err, repository.ErrListingNotFound),
		errors.Is(err, repository.ErrSoomNotFound):
		h.writeError(w, http.StatusNotFound, err.Error(), nil)
	case errors.Is(err, service.ErrSubmissionsClosed),
		errors.Is(err, service.ErrOwnListing),
		errors.Is(err, service.ErrNotSeller),
		errors.Is(err, service.ErrNotBidder),
		errors.Is(err, service.ErrNotPending):
		h.writeError(w, http.StatusForbidden, err.Error(), nil)
	case errors.Is(err, service.ErrInvalidAmount),
		errors.Is(err, service.ErrAlreadyAccepted),
		errors.Is(err, service.ErrAlreadyRejected):
		h.writeError(w, http.StatusUnprocessableEntity, err.Error(), nil)
	case errors.As(err, &belowMin):
		h.writeError(w, http.StatusUnprocessableEntity, "soom amount below required minimum", map[string]any{
			"minimum_required": centsToAmount(belowMin.MinimumRequired),
			"current_highest":  centsPtrToAmount(belowMin.CurrentHighest),
		})
	case errors.As(err, &dup):
		extra := map[string]any{}
		if dup.Existing != nil {
			extra["existing_amount"] = centsToAmount(*dup.Existing)
		}
		h.writeError(w, http.StatusUnprocessableEntity, err.Error(), extra)
	default:
		h.logger.Error(op, zap.Error(err))
		h.writeError(w, http.StatusInternalServerError, "internal error", map[string]any{
			"error": http.StatusText(http.StatusInternalServerError),
		})
	}
}

type credentialsRequest struct {
	Login    string `json:"login"`
	Password string `json:"password"`
}

// Register обрабатывает регистрацию нового пользователя.
func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid request body", nil)
		return
	}

	if req.Login == "" || req.Password == "" {
		h.writeError(w, http.StatusBadRequest, "login and password are required", nil)
		return
	}

	userID, err := h.service.RegisterUser(r.Context(), req.Login, req.Password)
	if err != nil {
		if errors.Is(err, repository.ErrUserExists) {
			h.writeError(w, http.StatusConflict, "login already taken", nil)
			return
		}
		h.logger.Error("register user", zap.Error(err))
		h.writeError(w, http.StatusInternalServerError, "internal error", nil)
		return
	}

	h.authMiddleware.SetAuthCookie(w, userID)
	w.WriteHeader(http.StatusOK)
}

// Login выполняет аутентификацию пользователя и установку cookie.
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid request body", nil)
		return
	}

	if req.Login == "" || req.Password == "" {
		h.writeError(w, http.StatusBadRequest, "login and password are required", nil)
		return
	}

	userID, err := h.service.AuthenticateUser(r.Context(), req.Login, req.Password)
	if err != nil {
		if errors.Is(err, service.ErrInvalidCredentials) {
			h.writeError(w, http.StatusUnauthorized, "invalid credentials", nil)
			return
		}
		h.logger.Error("login user", zap.Error(err))
		h.writeError(w, http.StatusInternalServerError, "internal error", nil)
		return
	}

	h.authMiddleware.SetAuthCookie(w, userID)
	w.WriteHeader(http.StatusOK)
}

type soomRequest struct {
	Amount float64 `json:"amount"`
}

// CreateSoom принимает новое предложение по объявлению от текущего пользователя.
func (h *Handler) CreateSoom(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserIDFromContext(r.Context())
	if !ok {
		h.writeError(w, http.StatusUnauthorized, http.StatusText(http.StatusUnauthorized), nil)
		return
	}

	listingID := pathParam(r, "listingID")

	var req soomRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid request body", nil)
		return
	}

	res, err := h.service.CreateSoom(r.Context(), listingID, userID, req.Amount)
	if err != nil {
		h.respondDomainError(w, err, "create soom")
		return
	}

	h.writeJSON(w, http.StatusCreated, map[string]any{
		"submission":       toSoomResponse(&res.Soom),
		"previous_highest": centsPtrToAmount(res.PreviousHighest),
	})
}

// ListSooms возвращает всю историю торга по объявлению.
func (h *Handler) ListSooms(w http.ResponseWriter, r *http.Request) {
	res, err := h.service.ListSooms(r.Context(), pathParam(r, "listingID"))
	if err != nil {
		h.respondDomainError(w, err, "list sooms")
		return
	}

	sooms := make([]listingSoomResponse, 0, len(res.Sooms))
	for i := range res.Sooms {
		sooms = append(sooms, listingSoomResponse{
			soomResponse: toSoomResponse(&res.Sooms[i].Soom),
			BidderLogin:  res.Sooms[i].BidderLogin,
		})
	}

	h.writeJSON(w, http.StatusOK, map[string]any{
		"sooms":          sooms,
		"total":          res.Total,
		"highest_amount": centsPtrToAmount(res.HighestAmount),
	})
}

// MinimumSoom возвращает минимально допустимую сумму следующего предложения.
func (h *Handler) MinimumSoom(w http.ResponseWriter, r *http.Request) {
	res, err := h.service.MinimumSoom(r.Context(), pathParam(r, "listingID"))
	if err != nil {
		h.respondDomainError(w, err, "minimum soom")
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]any{
		"minimum_amount":      centsToAmount(res.MinimumAmount),
		"current_highest":     centsPtrToAmount(res.CurrentHighest),
		"listing_minimum_bid": centsToAmount(res.ListingMinimumBid),
	})
}

// LastSoom возвращает последнее по дате подачи предложение объявления.
func (h *Handler) LastSoom(w http.ResponseWriter, r *http.Request) {
	res, err := h.service.LastSoom(r.Context(), pathParam(r, "listingID"))
	if err != nil {
		h.respondDomainError(w, err, "last soom")
		return
	}

	var data *soomResponse
	if res.Soom != nil {
		v := toSoomResponse(res.Soom)
		data = &v
	}

	h.writeJSON(w, http.StatusOK, map[string]any{
		"data":                 data,
		"has_sooms":            res.HasSooms,
		"total_sooms_count":    res.TotalCount,
		"minimum_bid_required": centsToAmount(res.MinimumBidRequired),
	})
}

// AcceptSoom принимает предложение от имени продавца объявления.
func (h *Handler) AcceptSoom(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserIDFromContext(r.Context())
	if !ok {
		h.writeError(w, http.StatusUnauthorized, http.StatusText(http.StatusUnauthorized), nil)
		return
	}

	soom, err := h.service.AcceptSoom(r.Context(), pathParam(r, "soomID"), userID)
	if err != nil {
		h.respondDomainError(w, err, "accept soom")
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]any{
		"submission": toSoomResponse(soom),
	})
}

type rejectRequest struct {
	Reason *string `json:"reason"`
}

// RejectSoom отклоняет предложение от имени продавца объявления.
func (h *Handler) RejectSoom(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserIDFromContext(r.Context())
	if !ok {
		h.writeError(w, http.StatusUnauthorized, http.StatusText(http.StatusUnauthorized), nil)
		return
	}

	// Тело запроса необязательно: причина отклонения может отсутствовать.
	var req rejectRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		h.writeError(w, http.StatusBadRequest, "invalid request body", nil)
		return
	}

	soom, err := h.service.RejectSoom(r.Context(), pathParam(r, "soomID"), userID, req.Reason)
	if err != nil {
		h.respondDomainError(w, err, "reject soom")
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]any{
		"submission": toSoomResponse(soom),
	})
}

// CancelSoom отзывает открытое предложение текущего пользователя.
func (h *Handler) CancelSoom(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserIDFromContext(r.Context())
	if !ok {
		h.writeError(w, http.StatusUnauthorized, http.StatusText(http.StatusUnauthorized), nil)
		return
	}

	soom, err := h.service.CancelSoom(r.Context(), pathParam(r, "soomID"), userID)
	if err != nil {
		h.respondDomainError(w, err, "cancel soom")
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]any{
		"submission": toSoomResponse(soom),
	})
}

// EditSoom меняет сумму открытого предложения текущего пользователя.
func (h *Handler) EditSoom(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserIDFromContext(r.Context())
	if !ok {
		h.writeError(w, http.StatusUnauthorized, http.StatusText(http.StatusUnauthorized), nil)
		return
	}

	var req soomRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid request body", nil)
		return
	}

	res, err := h.service.EditSoom(r.Context(), pathParam(r, "soomID"), userID, req.Amount)
	if err != nil {
		h.respondDomainError(w, err, "edit soom")
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]any{
		"submission":      toSoomResponse(&res.Soom),
		"previous_amount": centsToAmount(res.PreviousAmount),
		"current_highest": centsToAmount(res.CurrentHighest),
	})
}

// SellerInbox возвращает предложения по объявлениям текущего пользователя.
func (h *Handler) SellerInbox(w http.ResponseWriter, r *http.Request) {
	h.box(w, r, h.service.SellerInbox, "seller inbox")
}

// BuyerOutbox возвращает предложения, поданные текущим пользователем.
func (h *Handler) BuyerOutbox(w http.ResponseWriter, r *http.Request) {
	h.box(w, r, h.service.BuyerOutbox, "buyer outbox")
}

func (h *Handler) box(w http.ResponseWriter, r *http.Request, fetch func(context.Context, int64) (*service.BoxResult, error), op string) {
	userID, ok := middleware.GetUserIDFromContext(r.Context())
	if !ok {
		h.writeError(w, http.StatusUnauthorized, http.StatusText(http.StatusUnauthorized), nil)
		return
	}

	res, err := fetch(r.Context(), userID)
	if err != nil {
		h.respondDomainError(w, err, op)
		return
	}

	sooms := make([]boxSoomResponse, 0, len(res.Sooms))
	for i := range res.Sooms {
		sooms = append(sooms, boxSoomResponse{
			soomResponse: toSoomResponse(&res.Sooms[i].Soom),
			ListingTitle: res.Sooms[i].ListingTitle,
			SellerID:     res.Sooms[i].SellerID,
		})
	}

	h.writeJSON(w, http.StatusOK, map[string]any{
		"sooms": sooms,
		"stats": res.Stats,
	})
}
