package main

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/drpcorg/lsindex"
	"github.com/drpcorg/lsindex/cells"
	"github.com/drpcorg/lsindex/lsindex_errors"
	"github.com/drpcorg/lsindex/schema"
)

var (
	HelpOpen     = errors.New("open <dir>")
	HelpCreate   = errors.New(`create {"name":"t","columns":[{"name":"k","type":"text","kind":"partition_key"},...]}`)
	HelpDescribe = errors.New("describe <table>")
	HelpPut      = errors.New("put <table> <partition> <clustering...> <column>=<value>... [--ttl=<duration>]")
	HelpDel      = errors.New("del <table> <partition> [<clustering...>] [<column>...]")
	HelpGet      = errors.New("get <table> <partition> <clustering...>")
	HelpSearch   = errors.New("search <table> <partition> <column> <op> <value>... [limit <n>] [columns <n>] [order asc|desc]")
	HelpRebuild  = errors.New("rebuild <table> [<column>...]")
	HelpTruncate = errors.New("truncate <table> [<column>...]")
)

var ErrNoStore = errors.New("no store open, use: open <dir>")

func (repl *REPL) CommandHelp(args []string) error {
	repl.printf("%s\n", headerStyle.Render("commands"))
	for _, h := range []error{HelpOpen, HelpCreate, HelpDescribe, HelpPut, HelpDel, HelpGet, HelpSearch, HelpRebuild, HelpTruncate} {
		repl.printf("  %s\n", h.Error())
	}
	repl.printf("  tables | close | exit\n")
	return nil
}

func (repl *REPL) CommandOpen(args []string) (err error) {
	if len(args) != 1 {
		return HelpOpen
	}
	if repl.Store != nil {
		if err = repl.CommandClose(nil); err != nil {
			return
		}
	}
	repl.Store, err = lsindex.Open(args[0], lsindex.Options{Logger: repl.log})
	if err == nil {
		repl.printf("%s\n", okStyle.Render("store "+args[0]+" opened"))
	}
	return
}

func (repl *REPL) CommandClose(args []string) (err error) {
	if repl.Store == nil {
		return ErrNoStore
	}
	err = repl.Store.Close()
	repl.Store = nil
	if err == nil {
		repl.printf("%s\n", okStyle.Render("store closed"))
	}
	return
}

func (repl *REPL) store() (*lsindex.Store, error) {
	if repl.Store == nil {
		return nil, ErrNoStore
	}
	return repl.Store, nil
}

func (repl *REPL) CommandCreate(ctx context.Context, def string) error {
	s, err := repl.store()
	if err != nil {
		return err
	}
	if def == "" {
		return HelpCreate
	}
	t, err := schema.ParseTable([]byte(def))
	if err != nil {
		return err
	}
	if err = s.CreateTable(ctx, t); err != nil {
		return err
	}
	repl.printf("%s\n", okStyle.Render("table "+t.Name+" created"))
	return nil
}

func (repl *REPL) CommandTables(args []string) error {
	s, err := repl.store()
	if err != nil {
		return err
	}
	for _, t := range s.Tables() {
		repl.printf("%s\n", t.Name)
	}
	return nil
}

func (repl *REPL) CommandDescribe(args []string) error {
	if len(args) != 1 {
		return HelpDescribe
	}
	t, err := repl.table(args[0])
	if err != nil {
		return err
	}
	repl.printf("%s\n", headerStyle.Render(t.Name))
	for _, c := range t.Columns {
		kind, _ := c.Kind.MarshalText()
		line := fmt.Sprintf("  %-16s %-10s %s", c.Name, c.Type, kind)
		if c.IsIndexed() {
			index, _ := c.Index.MarshalText()
			line += " " + okStyle.Render(string(index))
		}
		repl.printf("%s\n", line)
	}
	return nil
}

func (repl *REPL) table(name string) (*schema.Table, error) {
	s, err := repl.store()
	if err != nil {
		return nil, err
	}
	return s.Table(name)
}

func (repl *REPL) CommandPut(ctx context.Context, args []string) error {
	if len(args) < 3 {
		return HelpPut
	}
	t, err := repl.table(args[0])
	if err != nil {
		return err
	}
	m := &lsindex.Mutation{Table: t.Name}
	var positional []string
	type assignment struct{ column, value string }
	var sets []assignment
	for _, arg := range args[1:] {
		if ttl, ok := strings.CutPrefix(arg, "--ttl="); ok {
			if m.TTL, err = time.ParseDuration(ttl); err != nil {
				return err
			}
			continue
		}
		if column, value, ok := strings.Cut(arg, "="); ok {
			sets = append(sets, assignment{column, value})
			continue
		}
		positional = append(positional, arg)
	}
	if len(positional) == 0 || len(sets) == 0 {
		return HelpPut
	}
	if m.Partition, err = parseColumn(t, t.PartitionKey().Name, positional[0]); err != nil {
		return err
	}
	clustering, err := parseClustering(t, positional[1:])
	if err != nil {
		return err
	}
	for _, a := range sets {
		v, err := parseColumn(t, a.column, a.value)
		if err != nil {
			return err
		}
		m.Put(clustering, a.column, v)
	}
	if err = repl.Store.Apply(ctx, m); err != nil {
		return err
	}
	repl.printf("%s\n", okStyle.Render(fmt.Sprintf("%d cells written", len(m.Ops))))
	return nil
}

// CommandDel deletes named columns, or the whole row when none is named.
// Static columns may follow the partition key directly.
func (repl *REPL) CommandDel(ctx context.Context, args []string) error {
	if len(args) < 2 {
		return HelpDel
	}
	t, err := repl.table(args[0])
	if err != nil {
		return err
	}
	m := &lsindex.Mutation{Table: t.Name}
	if m.Partition, err = parseColumn(t, t.PartitionKey().Name, args[1]); err != nil {
		return err
	}
	rest := args[2:]
	var clustering [][]byte
	if len(rest) > 0 && !isStatic(t, rest[0]) {
		arity := t.ClusteringArity()
		if len(rest) < arity {
			return HelpDel
		}
		if clustering, err = parseClustering(t, rest[:arity]); err != nil {
			return err
		}
		rest = rest[arity:]
		if len(rest) == 0 {
			m.DeleteRow(clustering)
		}
	}
	for _, column := range rest {
		if t.Column(column) == nil {
			return fmt.Errorf("%w: %s", lsindex_errors.ErrColumnUnknown, column)
		}
		m.Delete(clustering, column)
	}
	if len(m.Ops) == 0 {
		return HelpDel
	}
	if err = repl.Store.Apply(ctx, m); err != nil {
		return err
	}
	repl.printf("%s\n", okStyle.Render("deleted"))
	return nil
}

func (repl *REPL) CommandGet(ctx context.Context, args []string) error {
	if len(args) < 2 {
		return HelpGet
	}
	t, err := repl.table(args[0])
	if err != nil {
		return err
	}
	partition, err := parseColumn(t, t.PartitionKey().Name, args[1])
	if err != nil {
		return err
	}
	clustering, err := parseClustering(t, args[2:])
	if err != nil {
		return err
	}
	row, err := repl.Store.Get(ctx, t.Name, partition, clustering)
	if err != nil {
		return err
	}
	repl.printRow(t, row)
	return nil
}

func (repl *REPL) CommandSearch(ctx context.Context, args []string) error {
	if len(args) < 5 {
		return HelpSearch
	}
	t, err := repl.table(args[0])
	if err != nil {
		return err
	}
	filter, err := parseFilter(t, args[1:])
	if err != nil {
		return err
	}
	rows, err := repl.Store.Search(ctx, t.Name, filter)
	if err != nil {
		return err
	}
	for _, row := range rows {
		repl.printRow(t, row)
	}
	if len(rows) == 0 {
		repl.printf("%s\n", keyStyle.Render("nothing found"))
	}
	return nil
}

func (repl *REPL) CommandRebuild(ctx context.Context, args []string) error {
	if len(args) < 1 {
		return HelpRebuild
	}
	s, err := repl.store()
	if err != nil {
		return err
	}
	stats, err := s.RebuildIndex(ctx, args[0], args[1:]...)
	if err != nil {
		return err
	}
	for _, st := range stats {
		repl.printf("%s inserted %d reclaimed %d skipped %d\n",
			valueStyle.Render(st.Column), st.Inserted, st.Reclaimed, st.Skipped)
	}
	return nil
}

func (repl *REPL) CommandTruncate(ctx context.Context, args []string) error {
	if len(args) < 1 {
		return HelpTruncate
	}
	s, err := repl.store()
	if err != nil {
		return err
	}
	if err := s.TruncateIndex(ctx, args[0], args[1:]...); err != nil {
		return err
	}
	repl.printf("%s\n", okStyle.Render("truncated, run rebuild to repopulate"))
	return nil
}

func (repl *REPL) printRow(t *schema.Table, row *cells.Row) {
	if row == nil || row.IsEmpty() {
		repl.printf("%s\n", keyStyle.Render("no data"))
		return
	}
	pk := t.PartitionKey()
	repl.printf("%s\n", partitionStyle.Render(pk.Name+" = "+pk.Type.Format(row.Partition)))
	for _, c := range row.Cells {
		col, clustering, err := t.ParseCellName(c.Name)
		if err != nil {
			repl.printf("  %s\n", errorStyle.Render(fmt.Sprintf("%x: %s", []byte(c.Name), err)))
			continue
		}
		key := "static"
		if col.Kind != schema.Static {
			key = formatClustering(t, clustering)
		}
		line := fmt.Sprintf("  %s %s = %s", keyStyle.Render(key), col.Name, valueStyle.Render(col.Type.Format(c.Value)))
		if c.Kind == cells.Expiring {
			line += keyStyle.Render(" ttl " + strconv.Itoa(int(c.TTL)) + "s")
		}
		repl.printf("%s\n", line)
	}
}
