package models

import "time"

// Invoice произвольный счёт участнику. Оплата по его ссылочному номеру
// продлевает указанную подписку на Days дней.
type Invoice struct {
	ID                   int64     `json:"id"`
	MemberID             int64     `json:"member_id"`
	SubscriptionID       int64     `json:"subscription_id"`
	Days                 int       `json:"days"`
	Amount               int64     `json:"amount"`
	ReferenceNumber      *int64    `json:"reference_number,omitempty"`
	PaymentTransactionID *int64    `json:"payment_transaction_id,omitempty"`
	Created              time.Time `json:"created"`
}

// Paid сообщает, оплачен ли счёт.
func (i Invoice) Paid() bool {
	return i.PaymentTransactionID != nil
}
