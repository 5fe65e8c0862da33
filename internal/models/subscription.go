package models

import "time"

// SubscriptionState состояние подписки участника на сервис.
type SubscriptionState string

const (
	// StateActive сервис оплачен, paid_until в будущем.
	StateActive SubscriptionState = "ACTIVE"
	// StateOverdue срок оплаты прошёл, для продолжения нужен платёж.
	StateOverdue SubscriptionState = "OVERDUE"
	// StateSuspended начальное состояние, а также ручная приостановка.
	// Приостановить можно только полностью оплаченную подписку.
	StateSuspended SubscriptionState = "SUSPENDED"
)

var stateColors = map[SubscriptionState]string{
	StateActive:    "green",
	StateOverdue:   "yellow",
	StateSuspended: "red",
}

// ServiceSubscription связь участника с платным сервисом.
// LastPaymentID слабая ссылка: удаление транзакции обнуляет её.
type ServiceSubscription struct {
	ID             int64             `json:"id"`
	MemberID       int64             `json:"member_id"`
	ServiceID      int64             `json:"service_id"`
	State          SubscriptionState `json:"state"`
	PaidUntil      *time.Time        `json:"paid_until,omitempty"`
	LastPaymentID  *int64            `json:"last_payment_id,omitempty"`
	LastWarningFor *time.Time        `json:"last_warning_for,omitempty"`
}

// StateColor цвет состояния для интерфейса администратора.
func (s ServiceSubscription) StateColor() string {
	return stateColors[s.State]
}
