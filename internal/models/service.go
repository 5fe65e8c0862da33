package models

import "fmt"

// MaxChainDepth максимальное число переходов по цепочке pays_also_service.
const MaxChainDepth = 2

// MemberService платный сервис для участников, например годовое членство
// или права доступа. Суммы хранятся в центах.
type MemberService struct {
	ID                int64  `json:"id"`
	Name              string `json:"name"`
	Cost              int64  `json:"cost"`
	CostMin           *int64 `json:"cost_min,omitempty"`
	CostMax           *int64 `json:"cost_max,omitempty"`
	DaysPerPayment    int    `json:"days_per_payment"`
	DaysBonusForFirst int    `json:"days_bonus_for_first"`
	DaysBeforeWarning *int   `json:"days_before_warning,omitempty"`
	// PaysAlsoServiceID сервис, который оплачивается вместе с этим.
	PaysAlsoServiceID *int64 `json:"pays_also_service_id,omitempty"`
	Hidden            bool   `json:"hidden"`
	SelfSubscribe     bool   `json:"self_subscribe"`
}

// MinimumPayment возвращает минимальную сумму платежа: cost_min, если задан, иначе cost.
func (s MemberService) MinimumPayment() int64 {
	if s.CostMin != nil {
		return *s.CostMin
	}
	return s.Cost
}

// Validate проверяет числовые инварианты сервиса. Цепочка проверяется хранилищем.
func (s MemberService) Validate() error {
	if s.Name == "" {
		return ValidationError{Field: "name", Message: "must not be empty"}
	}
	if s.Cost < 0 {
		return ValidationError{Field: "cost", Message: "must not be negative"}
	}
	if s.CostMin != nil && *s.CostMin < 0 {
		return ValidationError{Field: "cost_min", Message: "must not be negative"}
	}
	if s.CostMax != nil && *s.CostMax < 0 {
		return ValidationError{Field: "cost_max", Message: "must not be negative"}
	}
	if s.CostMin != nil && s.CostMax != nil && *s.CostMin > *s.CostMax {
		return ValidationError{Field: "cost_min", Message: "must not exceed cost_max"}
	}
	if s.DaysPerPayment < 0 {
		return ValidationError{Field: "days_per_payment", Message: "must not be negative"}
	}
	if s.DaysBonusForFirst < 0 {
		return ValidationError{Field: "days_bonus_for_first", Message: "must not be negative"}
	}
	if s.DaysBeforeWarning != nil && *s.DaysBeforeWarning < 0 {
		return ValidationError{Field: "days_before_warning", Message: "must not be negative"}
	}
	return nil
}

// ValidateChain проверяет, что ссылка pays_also_service сервиса serviceID на target
// не образует цикл и не превышает MaxChainDepth переходов. lookup возвращает
// следующий сервис цепочки или nil.
func ValidateChain(serviceID int64, target *int64, lookup func(id int64) (*MemberService, error)) error {
	if target == nil {
		return nil
	}
	if serviceID != 0 && *target == serviceID {
		return fmt.Errorf("service %d: %w", serviceID, ErrChainCycle)
	}

	hops := 1
	next := target
	for next != nil {
		svc, err := lookup(*next)
		if err != nil {
			return fmt.Errorf("pays_also_service %d: %w", *next, err)
		}
		next = svc.PaysAlsoServiceID
		if next == nil {
			break
		}
		if serviceID != 0 && *next == serviceID {
			return fmt.Errorf("service %d: %w", serviceID, ErrChainCycle)
		}
		hops++
		if hops > MaxChainDepth {
			return fmt.Errorf("service %d: %w", serviceID, ErrChainTooDeep)
		}
	}
	return nil
}

// ValidateServiceGraph проверяет цепочки всех сервисов. Изменение одного сервиса
// может удлинить цепочки тех, кто на него ссылается, поэтому проверяется весь граф.
func ValidateServiceGraph(services []MemberService) error {
	byID := make(map[int64]MemberService, len(services))
	for _, s := range services {
		if s.ID != 0 {
			byID[s.ID] = s
		}
	}
	lookup := func(id int64) (*MemberService, error) {
		s, ok := byID[id]
		if !ok {
			return nil, ErrNotFound
		}
		return &s, nil
	}
	for _, s := range services {
		if err := ValidateChain(s.ID, s.PaysAlsoServiceID, lookup); err != nil {
			return err
		}
	}
	return nil
}
