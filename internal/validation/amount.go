// Package validation содержит функции валидации входных данных.
package validation

import "math"

// IsValidAmount проверяет, что сумма предложения — конечное неотрицательное число.
func IsValidAmount(amount float64) bool {
	if math.IsNaN(amount) || math.IsInf(amount, 0) {
		return false
	}
	return amount >= 0
}
