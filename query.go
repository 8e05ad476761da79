package offline

import (
	"context"

	"github.com/drpcorg/offline/indexes"
	"github.com/drpcorg/offline/overlay"
	"github.com/drpcorg/offline/store"
	"github.com/drpcorg/offline/tables"
)

type QueryOptions struct {
	// Limit caps the number of rows; zero or negative means no cap.
	Limit int
	// Offset skips that many matches before collecting.
	Offset int
}

type QueryResult struct {
	Rows []tables.Row
	// IndexesUsed names the indexes that produced candidates, in the
	// order they were consulted.
	IndexesUsed []string
}

// Query returns the rows of a table matching filter. Filter values are
// literals compared with strict equality or tables.Predicate functions.
func (db *Database) Query(ctx context.Context, tableKey string, filter tables.Filter, opts QueryOptions) (*QueryResult, error) {
	t, err := db.Table(tableKey)
	if err != nil {
		return nil, err
	}
	return db.query(ctx, db.store, t, filter, opts)
}

// QueryTx is Query against an open transaction, seeing its buffered writes.
func (db *Database) QueryTx(ctx context.Context, tx *overlay.Overlay, tableKey string, filter tables.Filter, opts QueryOptions) (*QueryResult, error) {
	t, err := db.Table(tableKey)
	if err != nil {
		return nil, err
	}
	return db.query(ctx, tx, t, filter, opts)
}

type plan struct {
	ids    []string
	seeded bool
	// residual filters checked against every fetched row
	scan tables.Filter
	used []string
}

func (p *plan) intersect(ids []string) {
	if !p.seeded {
		p.seeded = true
		p.ids = dedupe(ids)
		return
	}
	keep := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		keep[id] = struct{}{}
	}
	narrowed := make([]string, 0, len(p.ids))
	for _, id := range p.ids {
		if _, ok := keep[id]; ok {
			narrowed = append(narrowed, id)
		}
	}
	p.ids = narrowed
}

func dedupe(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

// planQuery resolves filter to candidate ids:
//
//  1. a literal on the key path seeds exactly that id;
//  2. function indexes are evaluated against the filter itself, a defined
//     result narrows to its group;
//  3. filter entries over column indexes narrow to the matching group(s);
//     entries without a matching group stay as residual scan filters;
//  4. with nothing seeded, every row of the table is a candidate.
func (db *Database) planQuery(ctx context.Context, r store.Reader, t *tables.Table, filter tables.Filter) (*plan, error) {
	p := &plan{scan: tables.Filter{}, used: []string{}}
	for name, value := range filter {
		p.scan[name] = value
	}

	if value, ok := filter[t.KeyPath]; ok && value != nil {
		if _, pred := tables.AsPredicate(value); !pred {
			p.intersect([]string{tables.IDString(value)})
		}
	}

	for _, d := range t.Indexes {
		if d.Type != tables.FuncIndex {
			continue
		}
		value, ok := d.Value(tables.Row(filter))
		if !ok {
			continue
		}
		groups, err := db.im.Groups(ctx, r, t, d.Name)
		if err != nil {
			return nil, err
		}
		var ids []string
		if i := indexes.FindGroup(groups, value); i >= 0 {
			ids = groups[i].IDStrings()
		}
		p.intersect(ids)
		p.used = append(p.used, d.Name)
	}

	for _, name := range filter.Names() {
		d, ok := t.ColumnIndexFor(name)
		if !ok {
			continue
		}
		groups, err := db.im.Groups(ctx, r, t, d.Name)
		if err != nil {
			return nil, err
		}
		value := filter[name]
		var ids []string
		found := false
		if pred, ok := tables.AsPredicate(value); ok {
			for i := range groups {
				if pred(groups[i].Value) {
					found = true
					ids = append(ids, groups[i].IDStrings()...)
				}
			}
		} else if i := indexes.FindGroup(groups, value); i >= 0 {
			found = true
			ids = groups[i].IDStrings()
		}
		if !found {
			continue
		}
		p.intersect(ids)
		p.used = append(p.used, d.Name)
		delete(p.scan, name)
	}

	if !p.seeded {
		ids, err := db.im.RowIDs(ctx, r, t)
		if err != nil {
			return nil, err
		}
		p.ids = ids
		QueryPlans.WithLabelValues(t.Key, "fullscan").Inc()
	} else {
		QueryPlans.WithLabelValues(t.Key, "index").Inc()
	}
	return p, nil
}

func matches(row tables.Row, scan tables.Filter) bool {
	for name, want := range scan {
		got, ok := row[name]
		if pred, isPred := tables.AsPredicate(want); isPred {
			if !pred(got) {
				return false
			}
			continue
		}
		if !ok || !tables.Equal(got, want) {
			return false
		}
	}
	return true
}

func (db *Database) query(ctx context.Context, r store.Reader, t *tables.Table, filter tables.Filter, opts QueryOptions) (*QueryResult, error) {
	p, err := db.planQuery(ctx, r, t, filter)
	if err != nil {
		return nil, err
	}
	res := &QueryResult{Rows: []tables.Row{}, IndexesUsed: p.used}
	skipped := 0
	for _, id := range p.ids {
		if opts.Limit > 0 && len(res.Rows) >= opts.Limit {
			break
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		row, ok, err := db.im.Row(ctx, r, t, id)
		if err != nil {
			return nil, err
		}
		if !ok || !matches(row, p.scan) {
			continue
		}
		if skipped < opts.Offset {
			skipped++
			continue
		}
		res.Rows = append(res.Rows, row)
	}
	return res, nil
}
