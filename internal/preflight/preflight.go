package preflight

import (
	"context"
	"path/filepath"

	"newsagent/internal/cadence"
	"newsagent/internal/config"
	"newsagent/internal/recipients"
)

// Result reports the outcome of a single preflight check. Required checks
// block a run when they fail; the rest are advisory.
type Result struct {
	Name     string `json:"name"`
	Passed   bool   `json:"passed"`
	Required bool   `json:"required"`
	Detail   string `json:"detail"`
}

// RunAll executes all preflight checks for the given config.
func RunAll(ctx context.Context, cfg *config.Config, sources []recipients.Source) []Result {
	if cfg == nil {
		return nil
	}

	var results []Result

	dirs := []struct {
		name string
		path string
	}{
		{"State directory", filepath.Dir(cfg.Paths.StateFile)},
		{"Rollup directory", filepath.Dir(cfg.Paths.RollupsFile)},
		{"Report outbox", cfg.Paths.ReportDir},
	}
	for _, dir := range dirs {
		res := CheckDirectoryAccess(dir.name, dir.path)
		res.Required = true
		results = append(results, res)
	}

	results = append(results,
		CheckDocument("State document", cfg.Paths.StateFile),
		CheckDocument("Rollup document", cfg.Paths.RollupsFile),
	)

	reports, err := cfg.EnabledReports()
	if err != nil {
		return append(results, Result{Name: "Reports", Required: true, Detail: err.Error()})
	}
	for _, report := range reports {
		if ctx.Err() != nil {
			break
		}
		results = append(results, CheckRecipients(report, sources)...)
	}
	return results
}

// Failed returns the required checks that did not pass.
func Failed(results []Result) []Result {
	var out []Result
	for _, r := range results {
		if r.Required && !r.Passed {
			out = append(out, r)
		}
	}
	return out
}

// CheckRecipients resolves every cadence for report and reports where each
// list came from.
func CheckRecipients(report cadence.ReportKey, sources []recipients.Source) []Result {
	out := make([]Result, 0, len(cadence.AllCadences))
	for _, c := range cadence.AllCadences {
		res, err := recipients.Resolve(report, c, sources)
		result := Result{Name: "Recipients " + string(report) + "/" + string(c)}
		switch {
		case err != nil:
			result.Detail = err.Error()
		default:
			result.Passed = true
			result.Detail = describeResolution(res)
		}
		out = append(out, result)
	}
	return out
}
