package models

import (
	"errors"
	"fmt"
	"time"
)

var (
	ErrNotFound     = errors.New("not found")
	ErrDuplicate    = errors.New("already exists")
	ErrChainCycle   = errors.New("pays_also_service chain forms a cycle")
	ErrChainTooDeep = errors.New("pays_also_service chain is too deep")

	// ErrSelfSubscribeDenied участник не может сам подписаться на сервис.
	ErrSelfSubscribeDenied = errors.New("service is not open for self subscription")
)

// ValidationError некорректный идентификатор или поле; отклоняется до сохранения.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("validation failed for %s: %s", e.Field, e.Message)
}

// UnmatchedTransactionError ссылочный номер не соответствует ни участнику, ни счёту.
// Транзакция сохранена и ждёт ручной проверки.
type UnmatchedTransactionError struct {
	TransactionID int64
	Reference     *int64
}

func (e UnmatchedTransactionError) Error() string {
	if e.Reference == nil {
		return fmt.Sprintf("transaction %d has no reference number", e.TransactionID)
	}
	return fmt.Sprintf("transaction %d: reference %d matches no member or invoice", e.TransactionID, *e.Reference)
}

// StateConflictError недопустимый ручной переход состояния подписки.
type StateConflictError struct {
	SubscriptionID int64
	From           SubscriptionState
	To             SubscriptionState
	PaidUntil      *time.Time
	Reason         string
}

func (e StateConflictError) Error() string {
	return fmt.Sprintf("subscription %d: cannot move from %s to %s: %s", e.SubscriptionID, e.From, e.To, e.Reason)
}

// InsufficientPaymentError сумма платежа ниже минимальной.
type InsufficientPaymentError struct {
	TransactionID int64
	Amount        int64
	Minimum       int64
}

func (e InsufficientPaymentError) Error() string {
	return fmt.Sprintf("transaction %d: amount %d is below minimum %d", e.TransactionID, e.Amount, e.Minimum)
}

// IsNotFound сообщает, что ошибка означает отсутствие записи.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsDuplicate сообщает о нарушении уникальности.
func IsDuplicate(err error) bool {
	return errors.Is(err, ErrDuplicate)
}

// IsValidation сообщает, что ошибка вызвана некорректными входными данными.
func IsValidation(err error) bool {
	var ve ValidationError
	return errors.As(err, &ve) || errors.Is(err, ErrChainCycle) || errors.Is(err, ErrChainTooDeep)
}
