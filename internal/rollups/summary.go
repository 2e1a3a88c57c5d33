package rollups

import (
	"slices"
	"strings"
)

const (
	fallbackHeadline = "Highlights derived from top items."
	noSummary        = "(no summary captured)"
	poolFlushLength  = 240
)

// forbiddenSummaryTerms mark operational text that must never reach a rollup.
var forbiddenSummaryTerms = []string{
	"metadata",
	"run metadata",
	"attached",
	"lookback window",
	"foamed source health",
	"pubmed items",
	"foamed items",
}

// ExtractSummaryBullets pulls up to maxBullets bullets from a rendered overview.
// Inside an "## Executive Summary" or "## Kurzüberblick" section every list
// item becomes a bullet; prose collapses into a single sentence bullet when no
// list items exist. With requireExecSection unset and no such section, the
// first list item or sentence of the document is used.
func ExtractSummaryBullets(markdown string, maxBullets int, requireExecSection bool) []string {
	if maxBullets <= 0 || strings.TrimSpace(markdown) == "" {
		return nil
	}
	var (
		bullets   []string
		pool      []string
		execFound bool
		inExec    bool
	)
	flush := func() {
		if len(bullets) > 0 || len(pool) == 0 {
			return
		}
		if sentence := strings.TrimSpace(strings.Join(pool, " ")); sentence != "" {
			bullets = append(bullets, sentence)
		}
	}

scan:
	for _, line := range strings.Split(markdown, "\n") {
		text := strings.TrimSpace(line)
		if text == "" {
			continue
		}
		lower := strings.ToLower(text)
		switch {
		case strings.HasPrefix(lower, "## "):
			header := strings.TrimSpace(lower[3:])
			if strings.HasPrefix(header, "executive summary") || strings.HasPrefix(header, "kurzüberblick") {
				execFound, inExec = true, true
				bullets, pool = nil, nil
				continue
			}
			flush()
			if inExec {
				break scan
			}
			pool = nil
			continue
		case strings.HasPrefix(lower, "### "):
			if inExec {
				flush()
				break scan
			}
			continue
		}
		if !inExec && (requireExecSection || len(bullets) > 0) {
			continue
		}
		if strings.HasPrefix(text, "-") || strings.HasPrefix(text, "*") {
			if bullet := strings.TrimSpace(strings.TrimLeft(text, "-* ")); bullet != "" {
				bullets = append(bullets, bullet)
				if len(bullets) >= maxBullets {
					break scan
				}
			}
			continue
		}
		pool = append(pool, text)
		if len(strings.Join(pool, " ")) > poolFlushLength || strings.HasSuffix(text, ".") {
			flush()
			pool = nil
			if len(bullets) >= maxBullets {
				break scan
			}
		}
	}
	flush()

	if requireExecSection && !execFound {
		return nil
	}
	if len(bullets) > maxBullets {
		bullets = bullets[:maxBullets]
	}
	return bullets
}

// SanitizeSummary strips Markdown emphasis and list markers and drops
// operational lines. When nothing survives, the cleaned fallback is used, and
// a fixed headline when that is empty too.
func SanitizeSummary(lines []string, fallback []string) []string {
	if cleaned := cleanSummary(lines); len(cleaned) > 0 {
		return cleaned
	}
	if cleaned := cleanSummary(fallback); len(cleaned) > 0 {
		return cleaned
	}
	return []string{fallbackHeadline}
}

func cleanSummary(lines []string) []string {
	var out []string
	for _, raw := range lines {
		text := strings.TrimSpace(raw)
		if strings.HasPrefix(text, "- ") || strings.HasPrefix(text, "* ") {
			text = strings.TrimSpace(text[2:])
		}
		text = strings.TrimSpace(strings.TrimLeft(text, "*_ "))
		text = strings.TrimSpace(strings.TrimRight(text, "*_ "))
		text = strings.TrimSpace(strings.ReplaceAll(text, "**", ""))
		if text == "" || containsForbidden(text) {
			continue
		}
		out = append(out, text)
	}
	return out
}

func containsForbidden(text string) bool {
	lower := strings.ToLower(text)
	return slices.ContainsFunc(forbiddenSummaryTerms, func(term string) bool {
		return strings.Contains(lower, term)
	})
}

// FallbackSummary builds bullets from the two leading titles, top picks first.
func FallbackSummary(items []Item) []string {
	ranked := slices.Clone(items)
	slices.SortStableFunc(ranked, func(a, b Item) int {
		switch {
		case a.TopPick == b.TopPick:
			return 0
		case a.TopPick:
			return -1
		default:
			return 1
		}
	})
	var titles []string
	for _, item := range ranked {
		if title := strings.TrimSpace(item.Title); title != "" {
			titles = append(titles, title)
		}
	}
	if len(titles) == 0 {
		return []string{noSummary}
	}
	return append([]string{fallbackHeadline}, titles[:min(2, len(titles))]...)
}

// DeriveMonthlySummary extracts executive bullets from a rendered monthly
// overview, falling back to the top items when the overview has none.
func DeriveMonthlySummary(overview string, items []Item, maxBullets int) []string {
	bullets := ExtractSummaryBullets(overview, maxBullets, true)
	summary := SanitizeSummary(bullets, FallbackSummary(items))
	if maxBullets > 0 && len(summary) > maxBullets {
		summary = summary[:maxBullets]
	}
	if len(summary) == 0 {
		return []string{noSummary}
	}
	return summary
}
