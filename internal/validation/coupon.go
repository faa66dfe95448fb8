// Package validation содержит функции валидации входных данных.
package validation

const (
	minCouponCodeLen = 3
	maxCouponCodeLen = 32
)

// IsValidCouponCode проверяет формат кода купона: 3-32 символа,
// заглавные латинские буквы, цифры и дефис не по краям.
func IsValidCouponCode(code string) bool {
	if len(code) < minCouponCodeLen || len(code) > maxCouponCodeLen {
		return false
	}

	for i := 0; i < len(code); i++ {
		ch := code[i]
		switch {
		case ch >= 'A' && ch <= 'Z':
		case ch >= '0' && ch <= '9':
		case ch == '-':
			if i == 0 || i == len(code)-1 {
				return false
			}
		default:
			return false
		}
	}

	return true
}
