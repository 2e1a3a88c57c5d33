package rollups

import (
	"slices"
	"strings"
	"time"

	"newsagent/internal/cadence"
)

// MonthSummary is one month's contribution to a yearly payload.
type MonthSummary struct {
	Period   cadence.Period `json:"period"`
	Bullets  []string       `json:"bullets"`
	TopItems []Item         `json:"top_items"`
}

// YearlyPayload is the aggregated input for a yearly edition.
type YearlyPayload struct {
	Report   cadence.ReportKey `json:"report"`
	Year     int               `json:"year"`
	Coverage int               `json:"coverage"`
	Missing  []time.Month      `json:"missing,omitempty"`
	Months   []MonthSummary    `json:"months"`
	Bullets  []string          `json:"bullets"`
	TopItems []Item            `json:"top_items"`
}

// Partial reports whether any month of the year is missing.
func (p YearlyPayload) Partial() bool { return p.Coverage < 12 }

// CompileYear aggregates the year's monthly entries. It performs no I/O.
// Bullets are the de-duplicated union in month order; top items put top
// picks first, drop repeats by link (or title when no link), and stop at maxTop.
func CompileYear(report cadence.ReportKey, year int, entries []Entry, maxTop int) YearlyPayload {
	months := make([]Entry, 0, len(entries))
	for _, entry := range entries {
		if entry.Year == year {
			months = append(months, entry)
		}
	}
	slices.SortStableFunc(months, func(a, b Entry) int { return int(a.Month) - int(b.Month) })

	payload := YearlyPayload{Report: report, Year: year}
	seenBullets := make(map[string]struct{})
	var picks, others []Item
	covered := make(map[time.Month]bool)
	for _, entry := range months {
		if covered[entry.Month] {
			continue
		}
		covered[entry.Month] = true
		summary := SanitizeSummary(entry.ExecutiveSummary, FallbackSummary(entry.TopItems))
		payload.Months = append(payload.Months, MonthSummary{
			Period:   entry.Period(),
			Bullets:  summary,
			TopItems: slices.Clone(entry.TopItems),
		})
		for _, bullet := range summary {
			key := strings.ToLower(bullet)
			if _, dup := seenBullets[key]; dup {
				continue
			}
			seenBullets[key] = struct{}{}
			payload.Bullets = append(payload.Bullets, bullet)
		}
		for _, item := range entry.TopItems {
			if item.TopPick {
				picks = append(picks, item)
			} else {
				others = append(others, item)
			}
		}
	}
	payload.Coverage = len(covered)
	for m := time.January; m <= time.December; m++ {
		if !covered[m] {
			payload.Missing = append(payload.Missing, m)
		}
	}

	seenItems := make(map[string]struct{})
	for _, item := range append(picks, others...) {
		if maxTop > 0 && len(payload.TopItems) >= maxTop {
			break
		}
		key := itemKey(item)
		if _, dup := seenItems[key]; dup {
			continue
		}
		seenItems[key] = struct{}{}
		payload.TopItems = append(payload.TopItems, item)
	}
	return payload
}

func itemKey(item Item) string {
	if link := strings.TrimSpace(item.Link); link != "" {
		return "link:" + strings.ToLower(link)
	}
	return "title:" + strings.ToLower(strings.TrimSpace(item.Title))
}
