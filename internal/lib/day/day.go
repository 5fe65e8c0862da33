// Package day содержит арифметику календарных дат для расчёта оплаченных периодов.
// Все даты приводятся к полуночи UTC, время суток не учитывается.
package day

import "time"

// Layout формат даты в запросах и конфигурации.
const Layout = time.DateOnly

// Truncate приводит момент времени к календарной дате в UTC.
func Truncate(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// Add прибавляет к дате n календарных дней.
func Add(t time.Time, n int) time.Time {
	return Truncate(t).AddDate(0, 0, n)
}

// Later возвращает более позднюю из дат. Пустая дата paidUntil заменяется на from.
func Later(paidUntil *time.Time, from time.Time) time.Time {
	from = Truncate(from)
	if paidUntil == nil {
		return from
	}
	p := Truncate(*paidUntil)
	if p.After(from) {
		return p
	}
	return from
}

// Extend продлевает покрытие: от max(paidUntil, from) на n дней.
// Поздняя обработка платежа не сокращает оплаченный период участника.
func Extend(paidUntil *time.Time, from time.Time, n int) time.Time {
	return Later(paidUntil, from).AddDate(0, 0, n)
}

// Between возвращает число дней от a до b (отрицательное, если b раньше a).
func Between(a, b time.Time) int {
	return int(Truncate(b).Sub(Truncate(a)).Hours() / 24)
}

// Parse разбирает дату в формате Layout.
func Parse(s string) (time.Time, error) {
	t, err := time.Parse(Layout, s)
	if err != nil {
		return time.Time{}, err
	}
	return Truncate(t), nil
}
