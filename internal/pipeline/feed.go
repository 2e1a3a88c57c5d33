package pipeline

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/tidwall/jsonc"

	"newsagent/internal/services"
)

// FeedCollector reads candidate items from <Dir>/<report>.json, written by the
// external collectors. The file holds either an array of items or an object
// with an "items" array; comments and trailing commas are tolerated. A missing
// file yields no items.
type FeedCollector struct {
	Dir string
}

// Collect returns the feed items published in [req.Since, req.Until). Items
// without a publication time are always included.
func (f FeedCollector) Collect(ctx context.Context, req CollectRequest) ([]Item, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	path := filepath.Join(f.Dir, string(req.Report)+".json")
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("read item feed %s: %w", path, err)
	}
	data = jsonc.ToJSON(data)
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, nil
	}

	var items []Item
	if trimmed := bytes.TrimSpace(data); trimmed[0] == '{' {
		var wrapper struct {
			Items []Item `json:"items"`
		}
		err = json.Unmarshal(trimmed, &wrapper)
		items = wrapper.Items
	} else {
		err = json.Unmarshal(trimmed, &items)
	}
	if err != nil {
		return nil, services.Wrap(services.ErrValidation, "collector", "decode feed", path, err)
	}

	out := make([]Item, 0, len(items))
	for _, item := range items {
		if strings.TrimSpace(item.Title) == "" && strings.TrimSpace(item.URL) == "" {
			continue
		}
		if !item.Published.IsZero() {
			if !req.Since.IsZero() && item.Published.Before(req.Since) {
				continue
			}
			if !req.Until.IsZero() && !item.Published.Before(req.Until) {
				continue
			}
		}
		if strings.TrimSpace(item.Source) == "" {
			item.Source = string(req.Report)
		}
		out = append(out, item)
	}
	return out, nil
}
