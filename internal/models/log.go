package models

import "time"

// MaxLogMessageLength ограничение длины сообщения журнала.
const MaxLogMessageLength = 1024

// UsersLog запись журнала участника. После записи не изменяется.
type UsersLog struct {
	ID       int64     `json:"id"`
	MemberID int64     `json:"member_id"`
	Date     time.Time `json:"date"`
	Message  string    `json:"message"`
}

// TruncateLogMessage обрезает сообщение до MaxLogMessageLength символов.
func TruncateLogMessage(msg string) string {
	r := []rune(msg)
	if len(r) <= MaxLogMessageLength {
		return msg
	}
	return string(r[:MaxLogMessageLength])
}
