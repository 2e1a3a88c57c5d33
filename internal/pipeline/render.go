package pipeline

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"newsagent/internal/cadence"
	"newsagent/internal/rollups"
)

const (
	digestSummaryBullets = 5
	yearlyMonthBullets   = 3
	sparseYearThreshold  = 6
)

// MarkdownRenderer produces plain Markdown digests. Yearly runs render the
// compiled rollup payload instead of collected items.
type MarkdownRenderer struct{}

// Render implements Renderer.
func (MarkdownRenderer) Render(ctx context.Context, in RenderInput) (Rendered, error) {
	if err := ctx.Err(); err != nil {
		return Rendered{}, err
	}
	title := strings.TrimSpace(in.Title)
	if title == "" {
		title = string(in.Report)
	}
	if in.Cadence == cadence.Yearly {
		if in.Yearly == nil {
			return Rendered{}, fmt.Errorf("render yearly %s: missing rollup payload", in.Report)
		}
		return Rendered{
			Subject: fmt.Sprintf("%s: %d in review", title, in.Yearly.Year),
			Body:    renderYearly(title, *in.Yearly),
		}, nil
	}
	return Rendered{
		Subject: fmt.Sprintf("%s: %s", title, digestLabel(in)),
		Body:    renderDigest(title, in),
	}, nil
}

func digestLabel(in RenderInput) string {
	loc := in.Until.Location()
	switch in.Cadence {
	case cadence.Monthly:
		if !in.Period.IsZero() {
			start, _ := in.Period.Bounds(loc)
			return "monthly edition " + start.Format("January 2006")
		}
	case cadence.Weekly:
		return fmt.Sprintf("weekly edition %s to %s", in.Since.In(loc).Format("2006-01-02"), in.Until.Format("2006-01-02"))
	}
	return fmt.Sprintf("%s edition %s", in.Cadence, in.Until.Format("2006-01-02"))
}

func renderDigest(title string, in RenderInput) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# %s\n\n", title)
	fmt.Fprintf(&b, "*%s*\n\n", digestLabel(in))

	b.WriteString("## Executive Summary\n\n")
	highlights := digestHighlights(in.Items)
	if len(highlights) == 0 {
		b.WriteString("- No new items in this period.\n")
	}
	for _, line := range highlights {
		fmt.Fprintf(&b, "- %s\n", line)
	}
	b.WriteString("\n")

	if len(in.Items) > 0 {
		b.WriteString("## Items\n\n")
		for _, item := range in.Items {
			b.WriteString(itemLine(item.RollupItem()))
			b.WriteString("\n")
			if summary := strings.TrimSpace(item.Summary); summary != "" {
				fmt.Fprintf(&b, "  %s\n", summary)
			}
		}
	}
	return strings.TrimRight(b.String(), "\n") + "\n"
}

func digestHighlights(items []Item) []string {
	var picks, others []string
	for _, item := range items {
		text := strings.TrimSpace(item.Title)
		if bottom := strings.TrimSpace(item.Summary); bottom != "" {
			text = fmt.Sprintf("%s: %s", text, bottom)
		}
		if text == "" {
			continue
		}
		if item.TopPick {
			picks = append(picks, text)
		} else {
			others = append(others, text)
		}
	}
	out := append(picks, others...)
	return out[:min(digestSummaryBullets, len(out))]
}

func renderYearly(title string, payload rollups.YearlyPayload) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# %s\n\n", title)
	fmt.Fprintf(&b, "*%d in review*\n\n", payload.Year)

	if payload.Coverage < sparseYearThreshold {
		fmt.Fprintf(&b, "Coverage note: only %d monthly editions were available for this year.\n\n", payload.Coverage)
	} else if payload.Partial() {
		fmt.Fprintf(&b, "Coverage: %d of 12 months.\n\n", payload.Coverage)
	}

	b.WriteString("## Executive Summary\n\n")
	if len(payload.Months) == 0 {
		b.WriteString("- No monthly rollups were found for this year.\n")
	}
	for _, month := range payload.Months {
		fmt.Fprintf(&b, "- %s: %s\n", monthLabel(month.Period), strings.Join(month.Bullets, "; "))
	}
	b.WriteString("\n")

	fmt.Fprintf(&b, "## Top %d items\n\n", max(len(payload.TopItems), 1))
	if len(payload.TopItems) == 0 {
		b.WriteString("- No monthly highlights were captured.\n")
	}
	for _, item := range payload.TopItems {
		b.WriteString(itemLine(item))
		b.WriteString("\n")
	}
	b.WriteString("\n")

	if len(payload.Months) > 0 {
		b.WriteString("## By month\n\n")
	}
	for _, month := range payload.Months {
		fmt.Fprintf(&b, "### %s\n\n", monthLabel(month.Period))
		bullets := slices.Clone(month.Bullets[:min(yearlyMonthBullets, len(month.Bullets))])
		for _, bullet := range bullets {
			fmt.Fprintf(&b, "- %s\n", bullet)
		}
		for _, item := range month.TopItems {
			if len(bullets) >= yearlyMonthBullets {
				break
			}
			bullets = append(bullets, item.Title)
			b.WriteString(itemLine(item))
			b.WriteString("\n")
		}
		if len(bullets) == 0 {
			b.WriteString("- (no summary captured)\n")
		}
		b.WriteString("\n")
	}
	return strings.TrimRight(b.String(), "\n") + "\n"
}

func itemLine(item rollups.Item) string {
	title := strings.TrimSpace(item.Title)
	if title == "" {
		title = "(untitled)"
	}
	prefix := ""
	if item.TopPick {
		prefix = "⭐ "
	}
	var meta []string
	for _, part := range []string{item.Channel, item.Source, item.Date} {
		if part = strings.TrimSpace(part); part != "" {
			meta = append(meta, part)
		}
	}
	line := "- " + prefix + title
	if link := strings.TrimSpace(item.Link); link != "" {
		line = fmt.Sprintf("- %s[%s](%s)", prefix, title, link)
	}
	if len(meta) > 0 {
		line += " (" + strings.Join(meta, ", ") + ")"
	}
	return line
}

func monthLabel(p cadence.Period) string {
	if p.Month == 0 {
		return p.String()
	}
	return fmt.Sprintf("%s %d", p.Month, p.Year)
}
