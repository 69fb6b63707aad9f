// Package model содержит доменные сущности сервиса торгов SOOM.
package model

import "time"

// User представляет зарегистрированного пользователя маркетплейса.
type User struct {
	ID           int64
	Login        string
	PasswordHash []byte
	CreatedAt    time.Time
}

// SoomStatus описывает состояние предложения.
type SoomStatus string

const (
	SoomStatusPending  SoomStatus = "pending"
	SoomStatusAccepted SoomStatus = "accepted"
	SoomStatusRejected SoomStatus = "rejected"
)

// MinBidStepCents — минимальный шаг между текущим максимальным предложением
// и следующим допустимым: одна целая денежная единица.
const MinBidStepCents int64 = 100

// Listing описывает объявление, по которому принимаются предложения.
// Создаётся и редактируется вне этого сервиса; здесь только читается.
type Listing struct {
	ID              string
	SellerID        int64
	Title           string
	AllowSubmission bool
	MinimumBid      *int64 // в копейках; nil означает отсутствие нижней границы
	CreatedAt       time.Time
}

// FloorCents возвращает нижнюю границу объявления в копейках.
func (l *Listing) FloorCents() int64 {
	if l.MinimumBid == nil {
		return 0
	}
	return *l.MinimumBid
}

// Soom представляет предложение покупателя по объявлению.
type Soom struct {
	ID              string
	ListingID       string
	UserID          int64
	Amount          int64 // в копейках
	MinSoom         int64 // минимум, действовавший на момент подачи, в копейках
	Status          SoomStatus
	RejectionReason *string
	SubmissionDate  time.Time
}

// ListingSoom — предложение вместе с логином подавшего его покупателя.
type ListingSoom struct {
	Soom
	BidderLogin string
}

// BoxSoom — предложение в выборках «входящие продавца» и «исходящие покупателя»,
// дополненное данными объявления.
type BoxSoom struct {
	Soom
	ListingTitle string
	SellerID     int64
}

// SoomStats содержит количество предложений по статусам.
type SoomStats struct {
	Pending  int64 `json:"pending"`
	Accepted int64 `json:"accepted"`
	Rejected int64 `json:"rejected"`
}
