// Package greenops expresses emission totals as everyday equivalents.
package greenops

import (
	"errors"
	"fmt"
	"math"

	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

// EPA greenhouse-gas equivalency divisors, kg CO2e per unit.
const (
	MilesDrivenFactor         = 0.192
	SmartphoneChargeFactor    = 0.00822
	TreeSeedlingFactor        = 60.0
	MinEquivalencyThresholdKg = 1.0
	LargeNumberThreshold      = 1_000_000
	BillionThreshold          = 1_000_000_000
)

// ErrNegativeValue is returned for a negative emission total.
var ErrNegativeValue = errors.New("negative carbon value")

var printer = message.NewPrinter(language.English)

// Equivalency is one everyday comparison.
type Equivalency struct {
	Kind      string  `json:"kind"`
	Label     string  `json:"label"`
	Value     float64 `json:"value"`
	Formatted string  `json:"formatted"`
}

// Output is the set of comparisons for one total. Empty is set when the total
// is too small to compare meaningfully.
type Output struct {
	InputKg     float64       `json:"input_kg"`
	Results     []Equivalency `json:"results"`
	DisplayText string        `json:"display_text"`
	Empty       bool          `json:"empty"`
}

// FromTonnes computes the equivalencies of an emission total in tonnes CO2e.
func FromTonnes(tonnes float64) (Output, error) {
	if tonnes < 0 {
		return Output{Empty: true, Results: []Equivalency{}}, ErrNegativeValue
	}
	kg := tonnes * 1000
	if kg < MinEquivalencyThresholdKg {
		return Output{InputKg: kg, Empty: true, Results: []Equivalency{}}, nil
	}

	miles := kg / MilesDrivenFactor
	phones := kg / SmartphoneChargeFactor
	trees := kg / TreeSeedlingFactor
	if math.IsInf(phones, 0) || math.IsNaN(phones) {
		return Output{Empty: true, Results: []Equivalency{}}, fmt.Errorf("equivalency overflow for %v kg", kg)
	}

	results := []Equivalency{
		{Kind: "miles_driven", Label: "miles driven", Value: miles, Formatted: FormatValue(miles)},
		{Kind: "smartphones_charged", Label: "smartphones charged", Value: phones, Formatted: FormatValue(phones)},
		{Kind: "tree_seedlings", Label: "tree seedlings grown for 10 years", Value: trees, Formatted: FormatValue(trees)},
	}
	return Output{
		InputKg: kg,
		Results: results,
		DisplayText: fmt.Sprintf("Equivalent to driving ~%s miles or charging ~%s smartphones",
			results[0].Formatted, results[1].Formatted),
	}, nil
}

// FormatValue renders v with thousand separators, abbreviating millions and billions.
func FormatValue(v float64) string {
	switch {
	case v >= BillionThreshold:
		return fmt.Sprintf("~%.1f billion", v/BillionThreshold)
	case v >= LargeNumberThreshold:
		return fmt.Sprintf("~%.1f million", v/LargeNumberThreshold)
	default:
		return printer.Sprintf("%d", int64(math.Round(v)))
	}
}
