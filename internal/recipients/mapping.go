package recipients

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/tidwall/jsonc"

	"newsagent/internal/cadence"
)

var errWrongShape = errors.New("unexpected document shape")

// parseDocument decodes a recipient document. Comments and trailing commas
// are tolerated.
func parseDocument(raw []byte) (any, error) {
	var doc any
	if err := json.Unmarshal(jsonc.ToJSON(raw), &doc); err != nil {
		return nil, err
	}
	return doc, nil
}

// lookupDocument resolves the list for a pair from a decoded document.
// Accepted shapes:
//
//	["a@x", "b@x"]                                  a list for every pair
//	{"cybermed": {"daily": [...], "default": [...]}} nested by report then cadence
//	{"cybermed_daily": [...]}                        flattened; "-" or no separator also match
//	{"cybermed": [...]} / {"default": [...]}         per report or global
func lookupDocument(doc any, report cadence.ReportKey, c cadence.Cadence) ([]string, error) {
	switch v := doc.(type) {
	case []any:
		return toList(v)
	case string:
		return toList(v)
	case map[string]any:
		keys := lowerKeys(v)
		for _, sep := range []string{"_", "-", ""} {
			if value, ok := keys[string(report)+sep+string(c)]; ok {
				return toList(value)
			}
		}
		if value, ok := keys[string(report)]; ok {
			list, err := fromNested(value, c)
			if err != nil || len(list) > 0 {
				return list, err
			}
		}
		for _, key := range []string{"default", "all"} {
			if value, ok := keys[key]; ok {
				list, err := fromNested(value, c)
				if err != nil || len(list) > 0 {
					return list, err
				}
			}
		}
		return nil, ErrSourceAbsent
	case nil:
		return nil, ErrSourceAbsent
	default:
		return nil, fmt.Errorf("%w: %T at document root", errWrongShape, doc)
	}
}

func fromNested(value any, c cadence.Cadence) ([]string, error) {
	nested, ok := value.(map[string]any)
	if !ok {
		return toList(value)
	}
	keys := lowerKeys(nested)
	for _, key := range []string{string(c), "default", "all"} {
		if v, ok := keys[key]; ok {
			return toList(v)
		}
	}
	return nil, nil
}

func lowerKeys(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[strings.ToLower(strings.TrimSpace(k))] = v
	}
	return out
}

func toList(value any) ([]string, error) {
	switch v := value.(type) {
	case nil:
		return nil, nil
	case string:
		return splitList(v)
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			s, ok := item.(string)
			if !ok {
				return nil, fmt.Errorf("%w: recipient entry %v is not a string", errWrongShape, item)
			}
			if s = strings.TrimSpace(s); s == "" {
				continue
			}
			if !strings.Contains(s, "@") {
				return nil, fmt.Errorf("%w: %q is not an email address", errWrongShape, s)
			}
			out = append(out, s)
		}
		return out, nil
	default:
		return nil, fmt.Errorf("%w: %T where a recipient list was expected", errWrongShape, value)
	}
}

// splitList parses a comma separated address list.
func splitList(raw string) ([]string, error) {
	parts := strings.Split(raw, ",")
	items := make([]any, 0, len(parts))
	for _, part := range parts {
		items = append(items, part)
	}
	return toList(items)
}
