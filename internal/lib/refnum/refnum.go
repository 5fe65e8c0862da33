// Package refnum генерирует и проверяет ссылочные номера банковских платежей
// (финский стандарт viitenumero): базовая часть плюс контрольная цифра,
// вычисленная по весам 7, 3, 1 справа налево.
package refnum

import (
	"strconv"
	"strings"

	"github.com/magabrotheeeer/member-ledger/internal/models"
)

const (
	// MinSeed наименьшая допустимая базовая часть (три цифры).
	MinSeed int64 = 100
	// MaxSeed наибольшая базовая часть, при которой номер помещается в BIGINT.
	MaxSeed int64 = 99_999_999_999_999_999
)

var weights = [3]int64{7, 3, 1}

// Generate возвращает ссылочный номер для seed: seed*10 + контрольная цифра.
// Один и тот же seed всегда даёт один и тот же номер, разные seed не совпадают.
func Generate(seed int64) (int64, error) {
	if seed < MinSeed || seed > MaxSeed {
		return 0, models.ValidationError{
			Field:   "seed",
			Message: "must be between " + strconv.FormatInt(MinSeed, 10) + " and " + strconv.FormatInt(MaxSeed, 10),
		}
	}
	return seed*10 + checkDigit(seed), nil
}

// Validate пересчитывает контрольную цифру и сравнивает её с последней цифрой номера.
func Validate(candidate int64) bool {
	if candidate < MinSeed*10 {
		return false
	}
	return checkDigit(candidate/10) == candidate%10
}

// Parse разбирает номер в банковской записи ("1000 0007"), убирая пробелы
// и ведущие нули, и проверяет контрольную цифру.
func Parse(s string) (int64, error) {
	clean := strings.TrimLeft(strings.ReplaceAll(strings.TrimSpace(s), " ", ""), "0")
	if clean == "" {
		return 0, models.ValidationError{Field: "reference_number", Message: "is empty"}
	}
	n, err := strconv.ParseInt(clean, 10, 64)
	if err != nil {
		return 0, models.ValidationError{Field: "reference_number", Message: "must contain only digits"}
	}
	if !Validate(n) {
		return 0, models.ValidationError{Field: "reference_number", Message: "check digit mismatch"}
	}
	return n, nil
}

// Format группирует цифры по пять справа налево, как принято в платёжках.
func Format(ref int64) string {
	s := strconv.FormatInt(ref, 10)
	var b strings.Builder
	first := len(s) % 5
	if first > 0 {
		b.WriteString(s[:first])
	}
	for i := first; i < len(s); i += 5 {
		if b.Len() > 0 {
			b.WriteByte(' ')
		}
		b.WriteString(s[i : i+5])
	}
	return b.String()
}

func checkDigit(base int64) int64 {
	var sum int64
	for i := 0; base > 0; i++ {
		sum += (base % 10) * weights[i%3]
		base /= 10
	}
	return (10 - sum%10) % 10
}
