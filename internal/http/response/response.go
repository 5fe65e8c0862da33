// Package response содержит вспомогательные типы и функции для формирования
// унифицированных JSON‑ответов HTTP‑обработчиков.
package response

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/go-playground/validator"

	"github.com/magabrotheeeer/member-ledger/internal/models"
)

// Response описывает стандартную структуру JSON‑ответа сервера.
// Поле Status: статус запроса ("OK" или "Error").
// Поле Error: текст ошибки (опционально, при неуспехе).
// Поле Data: данные ответа (опционально, при успехе).
type Response struct {
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`
	Data   any    `json:"data,omitempty"`
}

const (
	// StatusOK значение статуса для успешного ответа.
	StatusOK = "OK"
	// StatusError значение статуса для ответа с ошибкой.
	StatusError = "Error"
)

// StatusOKWithData возвращает успешный Response с переданными данными.
func StatusOKWithData(data any) Response {
	return Response{
		Status: StatusOK,
		Data:   data,
	}
}

// Error возвращает Response с ошибкой и переданным сообщением.
func Error(msg string) Response {
	return Response{
		Status: StatusError,
		Error:  msg,
	}
}

// ValidationError формирует Response со статусом Error на основе ошибок валидации.
// Каждое нарушение формируется в человеко‑читаемый текст, объединённый через запятую.
func ValidationError(errs validator.ValidationErrors) Response {
	var errsMsgs []string

	for _, err := range errs {
		switch err.ActualTag() {
		case "required":
			errsMsgs = append(errsMsgs, fmt.Sprintf("field %s is a required field", err.Field()))
		case "email":
			errsMsgs = append(errsMsgs, fmt.Sprintf("field %s must be a valid email", err.Field()))
		case "gt":
			errsMsgs = append(errsMsgs, fmt.Sprintf("field %s must be greater than %s", err.Field(), err.Param()))
		case "oneof":
			errsMsgs = append(errsMsgs, fmt.Sprintf("field %s must be one of %s", err.Field(), err.Param()))
		default:
			errsMsgs = append(errsMsgs, fmt.Sprintf("field %s is not a valid", err.Field()))
		}
	}
	return Response{
		Status: StatusError,
		Error:  strings.Join(errsMsgs, ", "),
	}
}

// FromError подбирает HTTP-статус для ошибки сервиса. Текст внутренних ошибок
// клиенту не отдаётся.
func FromError(err error) (int, Response) {
	var (
		verrs    validator.ValidationErrors
		conflict models.StateConflictError
	)
	switch {
	case errors.As(err, &verrs):
		return http.StatusUnprocessableEntity, ValidationError(verrs)
	case models.IsValidation(err):
		return http.StatusUnprocessableEntity, Error(validationMessage(err))
	case errors.As(err, &conflict):
		return http.StatusConflict, Error(conflict.Error())
	case models.IsNotFound(err):
		return http.StatusNotFound, Error("not found")
	case models.IsDuplicate(err):
		return http.StatusConflict, Error("already exists")
	case errors.Is(err, models.ErrSelfSubscribeDenied):
		return http.StatusForbidden, Error(models.ErrSelfSubscribeDenied.Error())
	default:
		return http.StatusInternalServerError, Error("internal error")
	}
}

func validationMessage(err error) string {
	var ve models.ValidationError
	if errors.As(err, &ve) {
		return ve.Error()
	}
	switch {
	case errors.Is(err, models.ErrChainCycle):
		return models.ErrChainCycle.Error()
	case errors.Is(err, models.ErrChainTooDeep):
		return models.ErrChainTooDeep.Error()
	}
	return "invalid request"
}
