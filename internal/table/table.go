// Package table implements the incremental merge engine for accumulated
// datasets: row-wise union of an existing table with a fresh increment,
// key-based deduplication with a keep-first or keep-last rule, and ascending
// sort by the dedup key.
package table

import (
	"fmt"
	"sort"
	"time"
)

// Keep selects which duplicate survives deduplication.
type Keep string

const (
	// KeepFirst keeps the row that appeared first in concatenation order.
	KeepFirst Keep = "first"
	// KeepLast keeps the row that appeared last in concatenation order.
	KeepLast Keep = "last"
)

// ParseKeep validates a keep rule coming from external configuration.
func ParseKeep(s string) (Keep, error) {
	switch Keep(s) {
	case KeepFirst, KeepLast:
		return Keep(s), nil
	default:
		return "", fmt.Errorf("unknown keep rule %q", s)
	}
}

// MergePolicy describes how rows of a product are deduplicated.
type MergePolicy struct {
	// Keys are the columns forming the dedup key, in significance order.
	Keys []string
	Keep Keep
}

// Table is a simple in-memory tabular dataset. Cells are opaque strings;
// schema interpretation is left to the per-product policy.
type Table struct {
	Columns []string
	Rows    [][]string
}

// Empty reports whether the table has no rows.
func (t *Table) Empty() bool {
	return t == nil || len(t.Rows) == 0
}

// ColumnIndex returns the index of the named column, or -1.
func (t *Table) ColumnIndex(name string) int {
	for i, c := range t.Columns {
		if c == name {
			return i
		}
	}
	return -1
}

// Group is one partition of a table under a group column.
type Group struct {
	Key   string
	Table *Table
}

// GroupBy partitions the table by the values of the given column, preserving
// row order inside each group. Groups are returned in first-seen order so
// iteration is deterministic.
func (t *Table) GroupBy(column string) ([]Group, error) {
	idx := t.ColumnIndex(column)
	if idx < 0 {
		return nil, fmt.Errorf("group column %q not found", column)
	}

	order := make([]string, 0)
	byKey := make(map[string]*Table)
	for _, row := range t.Rows {
		key := row[idx]
		grp, ok := byKey[key]
		if !ok {
			grp = &Table{Columns: t.Columns}
			byKey[key] = grp
			order = append(order, key)
		}
		grp.Rows = append(grp.Rows, row)
	}

	groups := make([]Group, 0, len(order))
	for _, key := range order {
		groups = append(groups, Group{Key: key, Table: byKey[key]})
	}
	return groups, nil
}

// Merge unions existing and increment rows, removes duplicates under the
// policy's dedup key, and sorts ascending by that key. A nil or empty
// existing table is treated as an empty table with the increment's shape.
// The inputs are not modified.
func Merge(existing, increment *Table, policy MergePolicy) (*Table, error) {
	if increment == nil {
		increment = &Table{}
	}
	if existing == nil {
		existing = &Table{}
	}
	if len(existing.Columns) == 0 {
		existing = &Table{Columns: increment.Columns}
	}
	if len(increment.Columns) == 0 {
		increment = &Table{Columns: existing.Columns}
	}

	columns := unionColumns(existing.Columns, increment.Columns)
	merged := &Table{Columns: columns}
	merged.Rows = append(merged.Rows, alignRows(existing, columns)...)
	merged.Rows = append(merged.Rows, alignRows(increment, columns)...)

	keyIdx := make([]int, len(policy.Keys))
	for i, key := range policy.Keys {
		idx := merged.ColumnIndex(key)
		if idx < 0 {
			return nil, fmt.Errorf("dedup key column %q not found", key)
		}
		keyIdx[i] = idx
	}

	merged.Rows = dedupRows(merged.Rows, keyIdx, policy.Keep)

	sort.SliceStable(merged.Rows, func(i, j int) bool {
		return lessByKey(merged.Rows[i], merged.Rows[j], keyIdx)
	})

	return merged, nil
}

// Concat appends b's rows after a's under the union of their columns,
// without deduplication. Used to stitch a multi-file increment together
// before the real merge runs.
func Concat(a, b *Table) *Table {
	if a == nil {
		a = &Table{}
	}
	if b == nil {
		b = &Table{}
	}
	columns := unionColumns(a.Columns, b.Columns)
	out := &Table{Columns: columns}
	out.Rows = append(out.Rows, alignRows(a, columns)...)
	out.Rows = append(out.Rows, alignRows(b, columns)...)
	return out
}

// unionColumns returns a's columns followed by columns of b not in a.
func unionColumns(a, b []string) []string {
	columns := make([]string, len(a))
	copy(columns, a)
	seen := make(map[string]bool, len(a))
	for _, c := range a {
		seen[c] = true
	}
	for _, c := range b {
		if !seen[c] {
			columns = append(columns, c)
			seen[c] = true
		}
	}
	return columns
}

// alignRows reshapes the table's rows onto the given column layout, filling
// missing cells with the empty string.
func alignRows(t *Table, columns []string) [][]string {
	if len(t.Rows) == 0 {
		return nil
	}

	identical := len(columns) == len(t.Columns)
	if identical {
		for i := range columns {
			if columns[i] != t.Columns[i] {
				identical = false
				break
			}
		}
	}
	if identical {
		return t.Rows
	}

	srcIdx := make([]int, len(columns))
	for i, c := range columns {
		srcIdx[i] = t.ColumnIndex(c)
	}

	rows := make([][]string, 0, len(t.Rows))
	for _, row := range t.Rows {
		aligned := make([]string, len(columns))
		for i, idx := range srcIdx {
			if idx >= 0 && idx < len(row) {
				aligned[i] = row[idx]
			}
		}
		rows = append(rows, aligned)
	}
	return rows
}

// dedupRows removes rows sharing the same key, keeping one per the rule.
// Surviving rows retain concatenation order; the sort happens afterwards.
func dedupRows(rows [][]string, keyIdx []int, keep Keep) [][]string {
	chosen := make(map[string]int, len(rows))
	for i, row := range rows {
		key := rowKey(row, keyIdx)
		if _, ok := chosen[key]; ok {
			if keep == KeepLast {
				chosen[key] = i
			}
			continue
		}
		chosen[key] = i
	}

	keepIdx := make(map[int]bool, len(chosen))
	for _, i := range chosen {
		keepIdx[i] = true
	}

	out := make([][]string, 0, len(chosen))
	for i, row := range rows {
		if keepIdx[i] {
			out = append(out, row)
		}
	}
	return out
}

func rowKey(row []string, keyIdx []int) string {
	key := ""
	for _, idx := range keyIdx {
		cell := ""
		if idx < len(row) {
			cell = row[idx]
		}
		key += cell + "\x1f"
	}
	return key
}

func lessByKey(a, b []string, keyIdx []int) bool {
	for _, idx := range keyIdx {
		av, bv := "", ""
		if idx < len(a) {
			av = a[idx]
		}
		if idx < len(b) {
			bv = b[idx]
		}
		if av != bv {
			return av < bv
		}
	}
	return false
}

// dateLayouts are the accepted input layouts for date columns.
var dateLayouts = []string{
	"2006-01-02",
	"2006/01/02",
	"20060102",
	"2006-01-02 15:04:05",
}

// NormalizeDates rewrites the named columns to the canonical YYYY-MM-DD form
// so equal dates in different spellings dedup together. Cells that parse
// under none of the accepted layouts are left untouched.
func (t *Table) NormalizeDates(columns []string) {
	for _, name := range columns {
		idx := t.ColumnIndex(name)
		if idx < 0 {
			continue
		}
		for _, row := range t.Rows {
			if idx >= len(row) || row[idx] == "" {
				continue
			}
			for _, layout := range dateLayouts {
				if ts, err := time.Parse(layout, row[idx]); err == nil {
					row[idx] = ts.Format("2006-01-02")
					break
				}
			}
		}
	}
}
