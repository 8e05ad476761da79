// Package filesource is a delta source reading a table from a JSON-lines
// file, one full row per line.
//
// With an UpdatedField set, incremental fetches return only rows whose
// RFC3339 timestamp in that field is after the last sync. Rows without a
// parseable timestamp are always returned.
package filesource

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/drpcorg/offline/tables"
)

const maxLine = 4 << 20

type Source struct {
	Path         string
	UpdatedField string
}

var _ tables.Source = (*Source)(nil)

// New reads <dir>/<table>.jsonl.
func New(dir, table, updatedField string) *Source {
	return &Source{
		Path:         filepath.Join(dir, table+".jsonl"),
		UpdatedField: updatedField,
	}
}

func (s *Source) GetSince(ctx context.Context, since *time.Time) ([]tables.Row, error) {
	f, err := os.Open(s.Path)
	if err != nil {
		if os.IsNotExist(err) {
			return []tables.Row{}, nil
		}
		return nil, fmt.Errorf("failed to open source file %s: %w", s.Path, err)
	}
	defer func() {
		_ = f.Close()
	}()

	rows := []tables.Row{}
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64<<10), maxLine)
	lineno := 0
	for scanner.Scan() {
		lineno++
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var row tables.Row
		if err := json.Unmarshal(line, &row); err != nil {
			return nil, fmt.Errorf("failed to unmarshal row at %s:%d: %w", s.Path, lineno, err)
		}
		if s.changedSince(row, since) {
			rows = append(rows, row)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read source file %s: %w", s.Path, err)
	}
	return rows, nil
}

func (s *Source) changedSince(row tables.Row, since *time.Time) bool {
	if since == nil || s.UpdatedField == "" {
		return true
	}
	raw, ok := row[s.UpdatedField].(string)
	if !ok {
		return true
	}
	updated, err := time.Parse(time.RFC3339Nano, raw)
	if err != nil {
		return true
	}
	return updated.After(*since)
}
