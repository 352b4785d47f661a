package dashboard

import (
	"strings"
	"time"

	"github.com/Nissan15/hackathon/internal/domain"
)

// DefaultWindowDays is the trailing window used when no range is supplied.
const DefaultWindowDays = 180

// DateRange is an inclusive, normalized calendar range.
type DateRange struct {
	Start      time.Time
	End        time.Time
	WindowDays int
}

// NormalizeRange parses the optional bounds of a dashboard query. Both bounds
// must be supplied for either to be used; otherwise the trailing defaultDays
// ending on today apply. Reversed bounds are swapped.
func NormalizeRange(startRaw, endRaw string, today time.Time, defaultDays int) (DateRange, error) {
	if defaultDays <= 0 {
		defaultDays = DefaultWindowDays
	}

	var start, end time.Time
	if strings.TrimSpace(startRaw) == "" || strings.TrimSpace(endRaw) == "" {
		end = domain.Day(today)
		start = end.AddDate(0, 0, -defaultDays)
	} else {
		var err error
		if start, err = domain.ParseDate(startRaw); err != nil {
			return DateRange{}, err
		}
		if end, err = domain.ParseDate(endRaw); err != nil {
			return DateRange{}, err
		}
	}

	if start.After(end) {
		start, end = end, start
	}

	days := int(end.Sub(start).Hours() / 24)
	if days < 1 {
		days = 1
	}
	return DateRange{Start: start, End: end, WindowDays: days}, nil
}

// Previous returns the window of the same length that ends the day before
// Start, i.e. the half-open range [Start-WindowDays, Start).
func (r DateRange) Previous() DateRange {
	return DateRange{
		Start:      r.Start.AddDate(0, 0, -r.WindowDays),
		End:        r.Start.AddDate(0, 0, -1),
		WindowDays: r.WindowDays,
	}
}
