package utils

import (
	"fmt"
	"math"
)

// amountEpsilon absorbs binary float error so that e.g. 3600*0.03 floors to 108.
const amountEpsilon = 1e-9

// FloorAmount returns floor(base*rate). Every credited amount is a whole unit;
// non-finite inputs yield 0.
func FloorAmount(base, rate float64) float64 {
	if !(base > 0 && rate > 0) || math.IsInf(base, 0) || math.IsInf(rate, 0) {
		return 0
	}
	return math.Floor(base*rate + amountEpsilon)
}

func FormatAmount(amount float64) string {
	return fmt.Sprintf("%.0f", math.Round(amount))
}
