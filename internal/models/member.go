// Package models содержит доменные структуры учёта членов хаклаба:
// участников, платных сервисов, банковских транзакций, подписок на сервисы,
// счетов и журнала событий участника.
package models

import "time"

// MembershipPlan тариф членства участника.
type MembershipPlan string

const (
	// PlanMemberOnly только членство.
	PlanMemberOnly MembershipPlan = "MO"
	// PlanAccessRights членство с круглосуточным доступом в помещение.
	PlanAccessRights MembershipPlan = "AR"
)

// Valid сообщает, является ли тариф одним из известных.
func (p MembershipPlan) Valid() bool {
	return p == PlanMemberOnly || p == PlanAccessRights
}

// Member представляет участника. Email является ключом идентификации,
// ReferenceNumber назначается один раз и никогда не переиспользуется.
type Member struct {
	ID                  int64          `json:"id"`
	Email               string         `json:"email"`
	FirstName           string         `json:"first_name"`
	LastName            string         `json:"last_name"`
	Nick                string         `json:"nick"`
	Municipality        string         `json:"municipality"`
	Phone               string         `json:"phone"`
	MXID                *string        `json:"mxid,omitempty"`
	BankAccount         *string        `json:"bank_account,omitempty"`
	Birthday            *time.Time     `json:"birthday,omitempty"`
	MembershipPlan      MembershipPlan `json:"membership_plan"`
	ReferenceNumber     *int64         `json:"reference_number,omitempty"`
	Created             time.Time      `json:"created"`
	LastModified        time.Time      `json:"last_modified"`
	MarkedForDeletionOn *time.Time     `json:"marked_for_deletion_on,omitempty"`
}

// FullName возвращает имя и фамилию участника.
func (m Member) FullName() string {
	if m.LastName == "" {
		return m.FirstName
	}
	return m.FirstName + " " + m.LastName
}

// DummyMember используется для приёма данных нового участника из JSON-запроса.
type DummyMember struct {
	Email          string `json:"email" validate:"required,email"`
	FirstName      string `json:"first_name" validate:"required"`
	LastName       string `json:"last_name" validate:"required"`
	Nick           string `json:"nick"`
	Municipality   string `json:"municipality"`
	Phone          string `json:"phone" validate:"required"`
	MXID           string `json:"mxid,omitempty"`
	BankAccount    string `json:"bank_account,omitempty"`
	Birthday       string `json:"birthday,omitempty"` // 02.01.2006
	MembershipPlan string `json:"membership_plan" validate:"required,oneof=MO AR"`
}
