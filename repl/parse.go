package main

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/drpcorg/lsindex/lsindex_errors"
	"github.com/drpcorg/lsindex/query"
	"github.com/drpcorg/lsindex/schema"
)

var ErrUnterminatedQuote = errors.New("unterminated quote")

// splitArgs splits on whitespace; double quotes group words and support
// the Go escapes.
func splitArgs(line string) (args []string, err error) {
	for {
		line = strings.TrimLeft(line, " \t\r\n")
		if line == "" {
			return
		}
		var arg strings.Builder
		for len(line) > 0 && !strings.ContainsRune(" \t\r\n", rune(line[0])) {
			q := strings.IndexByte(line, '"')
			end := strings.IndexAny(line, " \t\r\n")
			if q < 0 || (end >= 0 && end < q) {
				if end < 0 {
					end = len(line)
				}
				arg.WriteString(line[:end])
				line = line[end:]
				break
			}
			arg.WriteString(line[:q])
			quoted, err := strconv.QuotedPrefix(line[q:])
			if err != nil {
				return nil, ErrUnterminatedQuote
			}
			unquoted, _ := strconv.Unquote(quoted)
			arg.WriteString(unquoted)
			line = line[q+len(quoted):]
		}
		args = append(args, arg.String())
	}
}

func parseColumn(t *schema.Table, column, text string) ([]byte, error) {
	col := t.Column(column)
	if col == nil {
		return nil, fmt.Errorf("%w: %s", lsindex_errors.ErrColumnUnknown, column)
	}
	v, err := col.Type.Parse(text)
	if err != nil {
		return nil, fmt.Errorf("column %s: %w", column, err)
	}
	return v, nil
}

func parseClustering(t *schema.Table, texts []string) ([][]byte, error) {
	cols := t.Clustering()
	if len(texts) != len(cols) {
		if len(texts) == 0 {
			return nil, nil
		}
		return nil, fmt.Errorf("%w: want %d components", lsindex_errors.ErrBadClustering, len(cols))
	}
	ret := make([][]byte, len(cols))
	for i, c := range cols {
		v, err := c.Type.Parse(texts[i])
		if err != nil {
			return nil, fmt.Errorf("column %s: %w", c.Name, err)
		}
		ret[i] = v
	}
	return ret, nil
}

func formatClustering(t *schema.Table, clustering [][]byte) string {
	parts := make([]string, 0, len(clustering))
	for i, c := range t.Clustering() {
		if i < len(clustering) {
			parts = append(parts, c.Type.Format(clustering[i]))
		}
	}
	return "[" + strings.Join(parts, " ") + "]"
}

func isStatic(t *schema.Table, name string) bool {
	col := t.Column(name)
	return col != nil && col.Kind == schema.Static
}

func optionsColumn(t *schema.Table) string {
	for _, c := range t.Columns {
		if c.Index == schema.QueryOptionsIndex {
			return c.Name
		}
	}
	return ""
}

// parseFilter reads "<partition> (<column> <op> <value>)... [limit n]
// [columns n] [order asc|desc]".
func parseFilter(t *schema.Table, args []string) (*query.Filter, error) {
	if len(args) == 0 {
		return nil, HelpSearch
	}
	partition, err := parseColumn(t, t.PartitionKey().Name, args[0])
	if err != nil {
		return nil, err
	}
	filter := &query.Filter{Partition: partition}
	for rest := args[1:]; len(rest) > 0; {
		if len(rest) < 2 {
			return nil, HelpSearch
		}
		switch strings.ToLower(rest[0]) {
		case "limit", "columns":
			n, err := strconv.Atoi(rest[1])
			if err != nil || n <= 0 {
				return nil, fmt.Errorf("bad %s: %s", rest[0], rest[1])
			}
			if strings.EqualFold(rest[0], "limit") {
				filter.RowLimit = n
			} else {
				filter.ColumnLimit = n
			}
			rest = rest[2:]
			continue
		case "order":
			opts := optionsColumn(t)
			if opts == "" {
				return nil, fmt.Errorf("table %s has no query options column", t.Name)
			}
			filter.Clause = append(filter.Clause, query.Expression{
				Column: opts,
				Op:     query.EQ,
				Value:  []byte("ORDER:" + strings.ToUpper(rest[1])),
			})
			rest = rest[2:]
			continue
		}
		if len(rest) < 3 {
			return nil, HelpSearch
		}
		op, ok := query.ParseOperator(rest[1])
		if !ok {
			return nil, fmt.Errorf("bad operator: %s", rest[1])
		}
		v, err := parseColumn(t, rest[0], rest[2])
		if err != nil {
			return nil, err
		}
		filter.Clause = append(filter.Clause, query.Expression{Column: rest[0], Op: op, Value: v})
		rest = rest[3:]
	}
	return filter, nil
}
