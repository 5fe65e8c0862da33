package models

import "time"

// EventKind тип уведомления для внешнего отправителя.
type EventKind string

const (
	EventWarning      EventKind = "warning"
	EventExpired      EventKind = "expired"
	EventActivated    EventKind = "activated"
	EventInsufficient EventKind = "insufficient"
)

// Event сообщение об изменении подписки участника.
type Event struct {
	EventID     string     `json:"event_id"`
	Kind        EventKind  `json:"kind"`
	MemberID    int64      `json:"member_id"`
	Email       string     `json:"email"`
	Name        string     `json:"name"`
	ServiceName string     `json:"service_name,omitempty"`
	PaidUntil   *time.Time `json:"paid_until,omitempty"`
	OccurredAt  time.Time  `json:"occurred_at"`
}
