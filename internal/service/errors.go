package service

import (
	"errors"
	"fmt"
)

// ErrInvalidAmount возвращается, если сумма предложения не является корректным неотрицательным числом.
var (
	ErrInvalidAmount = errors.New("invalid soom amount")
	// ErrInvalidCredentials возвращается при неверной паре логин/пароль.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrSubmissionsClosed возвращается, если объявление не принимает предложения.
	ErrSubmissionsClosed = errors.New("listing does not accept sooms")
	// ErrOwnListing возвращается при попытке продавца подать предложение по своему объявлению.
	ErrOwnListing = errors.New("seller cannot soom own listing")
	// ErrNotSeller возвращается, если решение по предложению принимает не владелец объявления.
	ErrNotSeller = errors.New("only the listing seller can decide on a soom")
	// ErrNotBidder возвращается, если предложение меняет не его автор.
	ErrNotBidder = errors.New("only the soom author can modify it")
	// ErrAlreadyAccepted возвращается для предложения, по которому уже принято положительное решение.
	ErrAlreadyAccepted = errors.New("soom already accepted")
	// ErrAlreadyRejected возвращается для уже отклонённого предложения.
	ErrAlreadyRejected = errors.New("soom already rejected")
	// ErrNotPending возвращается при попытке изменить или отозвать решённое предложение.
	ErrNotPending = errors.New("soom is not pending")
)

// BelowMinimumError означает, что сумма предложения ниже действующего минимума.
// Суммы — в копейках; CurrentHighest равен nil, если предложений ещё не было.
type BelowMinimumError struct {
	MinimumRequired int64
	CurrentHighest  *int64
}

func (e *BelowMinimumError) Error() string {
	return fmt.Sprintf("soom amount below minimum required %d", e.MinimumRequired)
}

// DuplicatePendingError означает, что у покупателя уже есть открытое предложение
// по этому объявлению. Existing равен nil, когда конфликт обнаружен уникальным
// индексом, а не предварительной проверкой.
type DuplicatePendingError struct {
	Existing *int64
}

func (e *DuplicatePendingError) Error() string {
	return "user already has a pending soom on this listing"
}
