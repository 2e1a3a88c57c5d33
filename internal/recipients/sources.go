package recipients

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"

	"newsagent/internal/cadence"
)

// LookupEnv matches os.LookupEnv so tests can inject an environment.
type LookupEnv func(key string) (string, bool)

// EnvJSON reads a JSON recipient document from an environment variable
// whose name may depend on the pair.
type EnvJSON struct {
	Label   string
	VarName func(report cadence.ReportKey, c cadence.Cadence) string
	Env     LookupEnv
}

// Name returns the source label used in diagnostics.
func (s EnvJSON) Name() string { return "env:" + s.Label }

// Lookup implements Source.
func (s EnvJSON) Lookup(report cadence.ReportKey, c cadence.Cadence) ([]string, error) {
	name := s.VarName(report, c)
	raw, ok := s.Env(name)
	if !ok || strings.TrimSpace(raw) == "" {
		return nil, ErrSourceAbsent
	}
	doc, err := parseDocument([]byte(raw))
	if err != nil {
		return nil, &MalformedSourceError{Source: "env:" + name, Err: err}
	}
	list, err := lookupDocument(doc, report, c)
	if err != nil && !errors.Is(err, ErrSourceAbsent) {
		return nil, &MalformedSourceError{Source: "env:" + name, Err: err}
	}
	return list, err
}

// File reads a recipient document from disk with the same shape as the
// combined environment document.
type File struct {
	Path string
}

// Name returns the source label used in diagnostics.
func (s File) Name() string { return "file:" + s.Path }

// Lookup implements Source.
func (s File) Lookup(report cadence.ReportKey, c cadence.Cadence) ([]string, error) {
	if s.Path == "" {
		return nil, ErrSourceAbsent
	}
	data, err := os.ReadFile(s.Path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, ErrSourceAbsent
		}
		return nil, &MalformedSourceError{Source: s.Name(), Err: err}
	}
	if strings.TrimSpace(string(data)) == "" {
		return nil, ErrSourceAbsent
	}
	doc, err := parseDocument(data)
	if err != nil {
		return nil, &MalformedSourceError{Source: s.Name(), Err: err}
	}
	list, err := lookupDocument(doc, report, c)
	if err != nil && !errors.Is(err, ErrSourceAbsent) {
		return nil, &MalformedSourceError{Source: s.Name(), Err: err}
	}
	return list, err
}

// EnvList reads a comma separated address list that applies to every pair.
type EnvList struct {
	Var string
	Env LookupEnv
}

// Name returns the source label used in diagnostics.
func (s EnvList) Name() string { return "env:" + s.Var }

// Lookup implements Source.
func (s EnvList) Lookup(cadence.ReportKey, cadence.Cadence) ([]string, error) {
	raw, ok := s.Env(s.Var)
	if !ok || strings.TrimSpace(raw) == "" {
		return nil, ErrSourceAbsent
	}
	list, err := splitList(raw)
	if err != nil {
		return nil, &MalformedSourceError{Source: s.Name(), Err: err}
	}
	return list, nil
}

// DefaultSources returns the production cascade in priority order:
// RECIPIENTS_JSON_<REPORT>_<CADENCE>, RECIPIENTS_JSON_<REPORT>,
// RECIPIENTS_CONFIG_JSON, RECIPIENTS_JSON, the local file, then EMAIL_TO.
func DefaultSources(env LookupEnv, filePath string) []Source {
	if env == nil {
		env = os.LookupEnv
	}
	fixed := func(name string) func(cadence.ReportKey, cadence.Cadence) string {
		return func(cadence.ReportKey, cadence.Cadence) string { return name }
	}
	return []Source{
		EnvJSON{
			Label: "RECIPIENTS_JSON_<REPORT>_<CADENCE>",
			VarName: func(r cadence.ReportKey, c cadence.Cadence) string {
				return fmt.Sprintf("RECIPIENTS_JSON_%s_%s", strings.ToUpper(string(r)), strings.ToUpper(string(c)))
			},
			Env: env,
		},
		EnvJSON{
			Label: "RECIPIENTS_JSON_<REPORT>",
			VarName: func(r cadence.ReportKey, _ cadence.Cadence) string {
				return "RECIPIENTS_JSON_" + strings.ToUpper(string(r))
			},
			Env: env,
		},
		EnvJSON{Label: "RECIPIENTS_CONFIG_JSON", VarName: fixed("RECIPIENTS_CONFIG_JSON"), Env: env},
		EnvJSON{Label: "RECIPIENTS_JSON", VarName: fixed("RECIPIENTS_JSON"), Env: env},
		File{Path: filePath},
		EnvList{Var: "EMAIL_TO", Env: env},
	}
}
