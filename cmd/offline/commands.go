package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/drpcorg/offline"
	"github.com/drpcorg/offline/keyspace"
	"github.com/drpcorg/offline/store"
	"github.com/drpcorg/offline/tables"
)

var errExit = io.EOF

var (
	HelpQuery  = errors.New("query todos {\"active\":true} [limit [offset]]")
	HelpPatch  = errors.New("patch todos {\"id\":1,\"active\":true}")
	HelpDelete = errors.New("delete todos {\"active\":false}")
	HelpMeta   = errors.New("meta todos")
)

var out io.Writer = os.Stdout

// tableAndJSON splits `table {json} rest...`.
func tableAndJSON(arg string, v any) (table string, rest []string, err error) {
	table, tail := splitCommand(arg)
	if table == "" {
		return "", nil, errors.New("no table given")
	}
	if tail == "" {
		return table, nil, nil
	}
	dec := json.NewDecoder(strings.NewReader(tail))
	if err := dec.Decode(v); err != nil {
		return "", nil, fmt.Errorf("bad JSON argument: %w", err)
	}
	return table, strings.Fields(tail[dec.InputOffset():]), nil
}

func printJSON(v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(out, "%s\n", data)
	return err
}

func (repl *REPL) CommandHelp(arg string) error {
	for _, line := range []string{
		"tables", "sync", "clear", "keys [table]",
		HelpMeta.Error(), HelpQuery.Error(), HelpPatch.Error(), HelpDelete.Error(),
		"exit",
	} {
		_, _ = fmt.Fprintln(out, line)
	}
	return nil
}

func (repl *REPL) CommandTables(arg string) error {
	for _, t := range repl.DB.Tables() {
		names := make([]string, 0, len(t.Indexes))
		for _, d := range t.Indexes {
			names = append(names, d.Name)
		}
		_, _ = fmt.Fprintf(out, "%s\tkey=%s\tindexes=%s\tforce=%v\n", t.Key, t.KeyPath, strings.Join(names, ","), t.ForceSync)
	}
	return nil
}

func (repl *REPL) CommandMeta(arg string) error {
	if arg == "" {
		return HelpMeta
	}
	meta, err := repl.DB.Meta(repl.ctx, arg)
	if err != nil {
		return err
	}
	return printJSON(meta)
}

func (repl *REPL) CommandKeys(arg string) error {
	prefix := ""
	if arg != "" {
		prefix = keyspace.TablePrefix(arg)
	}
	keys, err := store.KeysWithPrefix(repl.ctx, repl.DB.Store(), prefix)
	if err != nil {
		return err
	}
	for _, key := range keys {
		_, _ = fmt.Fprintln(out, key)
	}
	return nil
}

func (repl *REPL) CommandSync(arg string) error {
	if err := repl.DB.Sync(repl.ctx); err != nil {
		return err
	}
	_, _ = fmt.Fprintln(out, "synced")
	return nil
}

func (repl *REPL) CommandQuery(arg string) error {
	if arg == "" {
		return HelpQuery
	}
	filter := tables.Filter{}
	table, rest, err := tableAndJSON(arg, &filter)
	if err != nil {
		return err
	}
	opts := offline.QueryOptions{}
	if len(rest) > 0 {
		if opts.Limit, err = strconv.Atoi(rest[0]); err != nil {
			return HelpQuery
		}
	}
	if len(rest) > 1 {
		if opts.Offset, err = strconv.Atoi(rest[1]); err != nil {
			return HelpQuery
		}
	}
	res, err := repl.DB.Query(repl.ctx, table, filter, opts)
	if err != nil {
		return err
	}
	for _, row := range res.Rows {
		if err := printJSON(row); err != nil {
			return err
		}
	}
	used := "none (full scan)"
	if len(res.IndexesUsed) > 0 {
		used = strings.Join(res.IndexesUsed, ",")
	}
	_, _ = fmt.Fprintf(out, "%d rows, indexes: %s\n", len(res.Rows), used)
	return nil
}

func (repl *REPL) CommandPatch(arg string) error {
	row := tables.Row{}
	table, _, err := tableAndJSON(arg, &row)
	if err != nil || len(row) == 0 {
		return HelpPatch
	}
	return repl.DB.Patch(repl.ctx, table, row, nil)
}

func (repl *REPL) CommandDelete(arg string) error {
	filter := tables.Filter{}
	table, _, err := tableAndJSON(arg, &filter)
	if err != nil {
		return HelpDelete
	}
	n, err := repl.DB.Delete(repl.ctx, table, filter)
	if err != nil {
		return err
	}
	_, _ = fmt.Fprintf(out, "%d rows deleted\n", n)
	return nil
}

func (repl *REPL) CommandClear(arg string) error {
	if err := repl.DB.Clear(repl.ctx); err != nil {
		return err
	}
	_, _ = fmt.Fprintln(out, "cleared")
	return nil
}
