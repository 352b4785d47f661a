package dashboard

import (
	"math"

	"github.com/shopspring/decimal"
)

// round rounds half away from zero on the shortest decimal form of v, so
// 0.125 becomes 0.13 rather than the binary-float 0.12.
func round(v float64, places int32) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return v
	}
	return decimal.NewFromFloat(v).Round(places).InexactFloat64()
}

func round2(v float64) float64 { return round(v, 2) }
func round4(v float64) float64 { return round(v, 4) }

// share returns part/total*100 rounded to one decimal, or 0 for an empty total.
func share(part, total float64) float64 {
	if total == 0 {
		return 0
	}
	return round(part/total*100, 1)
}
