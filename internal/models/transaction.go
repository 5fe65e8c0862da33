package models

import (
	"fmt"
	"time"
)

// TransactionStatus результат сверки банковской транзакции.
type TransactionStatus string

const (
	// TxPending транзакция сохранена, но ещё не сверена.
	TxPending TransactionStatus = "PENDING"
	// TxApplied платёж зачтён в подписку.
	TxApplied TransactionStatus = "APPLIED"
	// TxUnmatched по ссылочному номеру никто не найден, требуется ручная проверка.
	TxUnmatched TransactionStatus = "UNMATCHED"
	// TxInsufficient сумма меньше минимальной, покрытие не продлено.
	TxInsufficient TransactionStatus = "INSUFFICIENT"
)

// Final сообщает, что транзакция уже обработана и не должна применяться повторно.
func (s TransactionStatus) Final() bool {
	return s == TxApplied || s == TxInsufficient
}

// BankTransaction входящий перевод на счёт клуба. Сумма в центах.
// MemberID связывается при сверке и может остаться пустым.
type BankTransaction struct {
	ID              int64             `json:"id"`
	MemberID        *int64            `json:"member_id,omitempty"`
	Date            time.Time         `json:"date"`
	Amount          int64             `json:"amount"`
	Message         string            `json:"message"`
	Sender          string            `json:"sender"`
	ReferenceNumber *int64            `json:"reference_number,omitempty"`
	Status          TransactionStatus `json:"status"`
	Created         time.Time         `json:"created"`
}

func (t BankTransaction) String() string {
	ref := "none"
	if t.ReferenceNumber != nil {
		ref = fmt.Sprint(*t.ReferenceNumber)
	}
	return fmt.Sprintf("bank transaction %d from %s %d.%02d€, reference %s at %s",
		t.ID, t.Sender, t.Amount/100, t.Amount%100, ref, t.Date.Format(time.DateOnly))
}

// DummyTransaction используется для приёма транзакции из JSON-запроса или очереди.
type DummyTransaction struct {
	Date            string `json:"date" validate:"required"` // 2006-01-02
	Amount          int64  `json:"amount" validate:"gt=0"`
	Message         string `json:"message"`
	Sender          string `json:"sender"`
	ReferenceNumber string `json:"reference_number,omitempty"`
}
