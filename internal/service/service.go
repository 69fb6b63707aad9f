// Package service реализует бизнес-логику торгов SOOM.
package service

import (
	"context"
	"crypto/sha256"
	"crypto/subtle"
	"errors"
	"math"
	"time"

	"github.com/google/uuid"

	"github.com/RaifayoussefDev/Backend-DabApp-sub000/internal/model"
	"github.com/RaifayoussefDev/Backend-DabApp-sub000/internal/repository"
	"github.com/RaifayoussefDev/Backend-DabApp-sub000/internal/validation"
)

// Repository описывает контракт доступа к данным, используемый сервисом.
type Repository interface {
	repository.Store
	InTx(ctx context.Context, fn func(repository.Store) error) error
	Close() error
}

// Service содержит бизнес-логику торгов: подачу, правку, отзыв предложений
// и решения продавца. Идентификатор вызывающего пользователя всегда передаётся
// явным параметром.
type Service struct {
	repo Repository
}

// NewService создаёт новый сервис с указанным репозиторием.
func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

// Close закрывает ресурсы сервиса.
func (s *Service) Close() error {
	if s.repo != nil {
		return s.repo.Close()
	}
	return nil
}

// RegisterUser регистрирует нового пользователя.
func (s *Service) RegisterUser(ctx context.Context, login, password string) (int64, error) {
	hashed := hashPassword(login, password)
	return s.repo.CreateUser(ctx, login, hashed)
}

// AuthenticateUser проверяет логин и пароль пользователя и возвращает его идентификатор.
func (s *Service) AuthenticateUser(ctx context.Context, login, password string) (int64, error) {
	u, err := s.repo.GetUserByLogin(ctx, login)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return 0, ErrInvalidCredentials
		}
		return 0, err
	}

	hashed := hashPassword(login, password)
	if subtle.ConstantTimeCompare(hashed, u.PasswordHash) != 1 {
		return 0, ErrInvalidCredentials
	}

	return u.ID, nil
}

func hashPassword(login, password string) []byte {
	sum := sha256.Sum256([]byte(login + ":" + password))
	return sum[:]
}

func toCents(amount float64) int64 {
	return int64(math.Round(amount * 100))
}

// CreateResult описывает результат подачи предложения. Суммы — в копейках.
type CreateResult struct {
	Soom            model.Soom
	PreviousHighest *int64
}

// MinimumResult описывает действующий минимум по объявлению. Суммы — в копейках.
type MinimumResult struct {
	MinimumAmount     int64
	CurrentHighest    *int64
	ListingMinimumBid int64
}

// ListResult содержит все предложения объявления по убыванию суммы.
type ListResult struct {
	Sooms         []model.ListingSoom
	Total         int64
	HighestAmount *int64
}

// LastResult описывает последнее по дате предложение. MinimumBidRequired —
// минимум для следующего предложения: при отсутствии предложений это нижняя
// граница объявления, иначе сумма последнего предложения плюс шаг.
type LastResult struct {
	Soom               *model.Soom
	HasSooms           bool
	TotalCount         int64
	MinimumBidRequired int64
}

// EditResult описывает результат правки предложения.
type EditResult struct {
	Soom           model.Soom
	PreviousAmount int64
	CurrentHighest int64
}

// BoxResult содержит предложения выборки со счётчиками статусов.
type BoxResult struct {
	Sooms []model.BoxSoom
	Stats model.SoomStats
}

// minimumCents вычисляет действующий минимум: нижняя граница объявления либо
// максимальная сумма среди всех предложений любого статуса плюс шаг.
// Отклонённые и принятые предложения тоже поднимают планку.
func minimumCents(ctx context.Context, st repository.Store, listing *model.Listing, excludeSoomID string) (int64, *int64, error) {
	highest, err := st.HighestAmount(ctx, listing.ID, excludeSoomID)
	if err != nil {
		return 0, nil, err
	}

	min := listing.FloorCents()
	if highest != nil && *highest+model.MinBidStepCents > min {
		min = *highest + model.MinBidStepCents
	}

	return min, highest, nil
}

// CreateSoom подаёт новое предложение по объявлению от имени пользователя userID.
// Вся проверка и вставка выполняются в одной транзакции; строка объявления
// блокируется, чтобы два конкурентных предложения не прошли проверку минимума
// по одному и тому же устаревшему максимуму.
func (s *Service) CreateSoom(ctx context.Context, listingID string, userID int64, amount float64) (*CreateResult, error) {
	if !validation.IsValidAmount(amount) {
		return nil, ErrInvalidAmount
	}
	amountCents := toCents(amount)

	var res *CreateResult
	err := s.repo.InTx(ctx, func(st repository.Store) error {
		listing, err := st.LockListing(ctx, listingID)
		if err != nil {
			return err
		}

		if !listing.AllowSubmission {
			return ErrSubmissionsClosed
		}
		if listing.SellerID == userID {
			return ErrOwnListing
		}

		min, highest, err := minimumCents(ctx, st, listing, "")
		if err != nil {
			return err
		}
		if amountCents < min {
			return &BelowMinimumError{MinimumRequired: min, CurrentHighest: highest}
		}

		existing, err := st.PendingByUser(ctx, listingID, userID)
		if err != nil {
			return err
		}
		if existing != nil {
			return &DuplicatePendingError{Existing: &existing.Amount}
		}

		soom := &model.Soom{
			ID:             uuid.New().String(),
			ListingID:      listingID,
			UserID:         userID,
			Amount:         amountCents,
			MinSoom:        min,
			Status:         model.SoomStatusPending,
			SubmissionDate: time.Now().UTC(),
		}

		if err := st.InsertSoom(ctx, soom); err != nil {
			if errors.Is(err, repository.ErrDuplicatePending) {
				return &DuplicatePendingError{}
			}
			return err
		}

		res = &CreateResult{Soom: *soom, PreviousHighest: highest}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return res, nil
}

// MinimumSoom возвращает действующий минимум по объявлению без создания записи.
func (s *Service) MinimumSoom(ctx context.Context, listingID string) (*MinimumResult, error) {
	listing, err := s.repo.GetListing(ctx, listingID)
	if err != nil {
		return nil, err
	}

	if !listing.AllowSubmission {
		return nil, ErrSubmissionsClosed
	}

	min, highest, err := minimumCents(ctx, s.repo, listing, "")
	if err != nil {
		return nil, err
	}

	return &MinimumResult{
		MinimumAmount:     min,
		CurrentHighest:    highest,
		ListingMinimumBid: listing.FloorCents(),
	}, nil
}

// ListSooms возвращает всю историю торга по объявлению по убыванию суммы.
func (s *Service) ListSooms(ctx context.Context, listingID string) (*ListResult, error) {
	if _, err := s.repo.GetListing(ctx, listingID); err != nil {
		return nil, err
	}

	sooms, err := s.repo.ListByListing(ctx, listingID)
	if err != nil {
		return nil, err
	}

	res := &ListResult{
		Sooms: sooms,
		Total: int64(len(sooms)),
	}
	if len(sooms) > 0 {
		res.HighestAmount = &sooms[0].Amount
	}

	return res, nil
}

// LastSoom возвращает последнее по дате подачи предложение, общее количество
// и минимум для следующего предложения.
func (s *Service) LastSoom(ctx context.Context, listingID string) (*LastResult, error) {
	listing, err := s.repo.GetListing(ctx, listingID)
	if err != nil {
		return nil, err
	}

	last, total, err := s.repo.LastByListing(ctx, listingID)
	if err != nil {
		return nil, err
	}

	if last == nil {
		return &LastResult{
			HasSooms:           false,
			MinimumBidRequired: listing.FloorCents(),
		}, nil
	}

	return &LastResult{
		Soom:               last,
		HasSooms:           true,
		TotalCount:         total,
		MinimumBidRequired: last.Amount + model.MinBidStepCents,
	}, nil
}

// AcceptSoom принимает предложение от имени продавца. В той же транзакции все
// остальные открытые предложения объявления отклоняются: по объявлению может
// быть принято не более одного предложения.
func (s *Service) AcceptSoom(ctx context.Context, soomID string, userID int64) (*model.Soom, error) {
	var res *model.Soom
	err := s.repo.InTx(ctx, func(st repository.Store) error {
		soom, err := st.GetSoom(ctx, soomID)
		if err != nil {
			return err
		}

		listing, err := st.LockListing(ctx, soom.ListingID)
		if err != nil {
			return err
		}
		if listing.SellerID != userID {
			return ErrNotSeller
		}

		switch soom.Status {
		case model.SoomStatusAccepted:
			return ErrAlreadyAccepted
		case model.SoomStatusRejected:
			return ErrAlreadyRejected
		}

		if err := st.UpdateSoomStatus(ctx, soomID, model.SoomStatusAccepted, nil); err != nil {
			return err
		}
		if err := st.RejectPendingExcept(ctx, soom.ListingID, soomID); err != nil {
			return err
		}

		soom.Status = model.SoomStatusAccepted
		res = soom
		return nil
	})
	if err != nil {
		return nil, err
	}
	return res, nil
}

// RejectSoom отклоняет предложение от имени продавца с необязательной причиной.
func (s *Service) RejectSoom(ctx context.Context, soomID string, userID int64, reason *string) (*model.Soom, error) {
	var res *model.Soom
	err := s.repo.InTx(ctx, func(st repository.Store) error {
		soom, err := st.GetSoom(ctx, soomID)
		if err != nil {
			return err
		}

		listing, err := st.GetListing(ctx, soom.ListingID)
		if err != nil {
			return err
		}
		if listing.SellerID != userID {
			return ErrNotSeller
		}

		switch soom.Status {
		case model.SoomStatusRejected:
			return ErrAlreadyRejected
		case model.SoomStatusAccepted:
			// Принятое предложение нельзя «разпринять» отклонением.
			return ErrAlreadyAccepted
		}

		if err := st.UpdateSoomStatus(ctx, soomID, model.SoomStatusRejected, reason); err != nil {
			return err
		}

		soom.Status = model.SoomStatusRejected
		soom.RejectionReason = reason
		res = soom
		return nil
	})
	if err != nil {
		return nil, err
	}
	return res, nil
}

// CancelSoom отзывает открытое предложение его автором. Запись удаляется.
func (s *Service) CancelSoom(ctx context.Context, soomID string, userID int64) (*model.Soom, error) {
	var res *model.Soom
	err := s.repo.InTx(ctx, func(st repository.Store) error {
		soom, err := st.GetSoom(ctx, soomID)
		if err != nil {
			return err
		}

		if soom.UserID != userID {
			return ErrNotBidder
		}
		if soom.Status != model.SoomStatusPending {
			return ErrNotPending
		}

		if err := st.DeleteSoom(ctx, soomID); err != nil {
			return err
		}

		res = soom
		return nil
	})
	if err != nil {
		return nil, err
	}
	return res, nil
}

// EditSoom меняет сумму открытого предложения его автором. Минимум
// пересчитывается без учёта правимого предложения, но не ниже нижней
// границы объявления; дата подачи и зафиксированный минимум обновляются.
func (s *Service) EditSoom(ctx context.Context, soomID string, userID int64, amount float64) (*EditResult, error) {
	if !validation.IsValidAmount(amount) {
		return nil, ErrInvalidAmount
	}
	amountCents := toCents(amount)

	var res *EditResult
	err := s.repo.InTx(ctx, func(st repository.Store) error {
		soom, err := st.GetSoom(ctx, soomID)
		if err != nil {
			return err
		}

		if soom.UserID != userID {
			return ErrNotBidder
		}
		if soom.Status != model.SoomStatusPending {
			return ErrNotPending
		}

		listing, err := st.LockListing(ctx, soom.ListingID)
		if err != nil {
			return err
		}
		if !listing.AllowSubmission {
			return ErrSubmissionsClosed
		}

		min, highest, err := minimumCents(ctx, st, listing, soomID)
		if err != nil {
			return err
		}
		if amountCents < min {
			return &BelowMinimumError{MinimumRequired: min, CurrentHighest: highest}
		}

		now := time.Now().UTC()
		if err := st.UpdateSoomAmount(ctx, soomID, amountCents, min, now); err != nil {
			return err
		}

		currentHighest := amountCents
		if highest != nil && *highest > currentHighest {
			currentHighest = *highest
		}

		previous := soom.Amount
		soom.Amount = amountCents
		soom.MinSoom = min
		soom.SubmissionDate = now

		res = &EditResult{
			Soom:           *soom,
			PreviousAmount: previous,
			CurrentHighest: currentHighest,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return res, nil
}

// SellerInbox возвращает предложения по всем объявлениям продавца со счётчиками статусов.
func (s *Service) SellerInbox(ctx context.Context, sellerID int64) (*BoxResult, error) {
	sooms, stats, err := s.repo.ListBySeller(ctx, sellerID)
	if err != nil {
		return nil, err
	}
	return &BoxResult{Sooms: sooms, Stats: stats}, nil
}

// BuyerOutbox возвращает все предложения покупателя со счётчиками статусов.
func (s *Service) BuyerOutbox(ctx context.Context, userID int64) (*BoxResult, error) {
	sooms, stats, err := s.repo.ListByBidder(ctx, userID)
	if err != nil {
		return nil, err
	}
	return &BoxResult{Sooms: sooms, Stats: stats}, nil
}
