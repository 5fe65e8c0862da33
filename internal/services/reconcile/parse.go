package reconcile

import (
	"errors"
	"strings"

	"github.com/go-playground/validator"

	"github.com/magabrotheeeer/member-ledger/internal/lib/day"
	"github.com/magabrotheeeer/member-ledger/internal/lib/refnum"
	"github.com/magabrotheeeer/member-ledger/internal/models"
)

var validate = validator.New()

// ParseTransaction преобразует входящую запись выписки в BankTransaction.
// Пустой ссылочный номер допустим: такая транзакция уйдёт на ручную проверку.
func ParseTransaction(in models.DummyTransaction) (models.BankTransaction, error) {
	if err := validate.Struct(in); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			return models.BankTransaction{}, models.ValidationError{
				Field:   strings.ToLower(verrs[0].Field()),
				Message: "failed on " + verrs[0].Tag(),
			}
		}
		return models.BankTransaction{}, err
	}

	date, err := day.Parse(in.Date)
	if err != nil {
		return models.BankTransaction{}, models.ValidationError{Field: "date", Message: "must be YYYY-MM-DD"}
	}

	t := models.BankTransaction{
		Date:    date,
		Amount:  in.Amount,
		Message: in.Message,
		Sender:  in.Sender,
		Status:  models.TxPending,
	}
	if strings.TrimSpace(in.ReferenceNumber) != "" {
		ref, err := refnum.Parse(in.ReferenceNumber)
		if err != nil {
			return models.BankTransaction{}, err
		}
		t.ReferenceNumber = &ref
	}
	return t, nil
}
