// Package recommend turns the dominant emission source into reduction advice.
package recommend

import (
	"context"

	"github.com/Nissan15/hackathon/internal/domain"
)

// Recommendation is a single piece of advice.
type Recommendation struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	Priority    string `json:"priority"`
}

// TotalsStore returns all-time emissions per source ordered largest first.
type TotalsStore interface {
	SourceTotals(ctx context.Context) ([]domain.SourceTotal, error)
}

var sourceAdvice = map[string]Recommendation{
	"electricity": {
		Title:       "Focus on Energy Efficiency",
		Description: "Electricity is your biggest emission source. Consider switching to LED lighting and installing solar panels.",
		Priority:    "High",
	},
	"bus_diesel": {
		Title:       "Promote Green Transportation",
		Description: "Transport emissions are high. Encourage carpooling, cycling, and consider electric buses.",
		Priority:    "High",
	},
	"canteen_lpg": {
		Title:       "Optimize Canteen Operations",
		Description: "Canteen fuel usage is significant. Consider induction cooking or solar cookers.",
		Priority:    "Medium",
	},
	"waste_landfill": {
		Title:       "Improve Waste Management",
		Description: "Waste emissions are high. Implement composting and recycling programs.",
		Priority:    "High",
	},
}

var generalAdvice = []Recommendation{
	{
		Title:       "Regular Monitoring",
		Description: "Continue tracking emissions data monthly to identify trends and measure improvement.",
		Priority:    "Medium",
	},
	{
		Title:       "Campus Awareness Campaign",
		Description: "Educate students and staff about sustainable practices and carbon footprint reduction.",
		Priority:    "Low",
	},
}

// ForTotals applies the rules to already-ranked totals. No data yields no advice.
func ForTotals(totals []domain.SourceTotal) []Recommendation {
	out := make([]Recommendation, 0, len(generalAdvice)+1)
	if len(totals) == 0 {
		return out
	}
	if advice, ok := sourceAdvice[totals[0].Source]; ok {
		out = append(out, advice)
	}
	return append(out, generalAdvice...)
}

// Service reads totals from a store and applies the rules.
type Service struct {
	store TotalsStore
}

// NewService constructs a Service.
func NewService(store TotalsStore) *Service {
	return &Service{store: store}
}

// Recommendations returns advice for the store's current data.
func (s *Service) Recommendations(ctx context.Context) ([]Recommendation, error) {
	totals, err := s.store.SourceTotals(ctx)
	if err != nil {
		return nil, err
	}
	return ForTotals(totals), nil
}
