package table

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseKeep(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    Keep
		wantErr bool
	}{
		{name: "first", input: "first", want: KeepFirst},
		{name: "last", input: "last", want: KeepLast},
		{name: "unknown", input: "newest", wantErr: true},
		{name: "empty", input: "", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseKeep(tt.input)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestMergeKeepFirst(t *testing.T) {
	existing := &Table{
		Columns: []string{"code", "date", "close"},
		Rows: [][]string{
			{"sh600000", "2026-08-27", "10.0"},
			{"sh600001", "2026-08-27", "20.0"},
		},
	}
	increment := &Table{
		Columns: []string{"code", "date", "close"},
		Rows: [][]string{
			{"sh600000", "2026-08-27", "99.0"},
			{"sh600000", "2026-08-28", "10.5"},
		},
	}

	merged, err := Merge(existing, increment, MergePolicy{
		Keys: []string{"code", "date"},
		Keep: KeepFirst,
	})
	require.NoError(t, err)

	assert.Equal(t, [][]string{
		{"sh600000", "2026-08-27", "10.0"},
		{"sh600000", "2026-08-28", "10.5"},
		{"sh600001", "2026-08-27", "20.0"},
	}, merged.Rows)
}

func TestMergeKeepLast(t *testing.T) {
	existing := &Table{
		Columns: []string{"code", "date", "close"},
		Rows: [][]string{
			{"sh600000", "2026-08-27", "10.0"},
			{"sh600001", "2026-08-27", "20.0"},
		},
	}
	increment := &Table{
		Columns: []string{"code", "date", "close"},
		Rows: [][]string{
			{"sh600000", "2026-08-27", "10.2"},
			{"sh600000", "2026-08-28", "10.5"},
		},
	}

	merged, err := Merge(existing, increment, MergePolicy{
		Keys: []string{"code", "date"},
		Keep: KeepLast,
	})
	require.NoError(t, err)

	assert.Equal(t, [][]string{
		{"sh600000", "2026-08-27", "10.2"},
		{"sh600000", "2026-08-28", "10.5"},
		{"sh600001", "2026-08-27", "20.0"},
	}, merged.Rows)
}

func TestMergeIsIdempotent(t *testing.T) {
	existing := &Table{
		Columns: []string{"code", "date"},
		Rows: [][]string{
			{"sh600001", "2026-08-27"},
			{"sh600000", "2026-08-28"},
		},
	}
	increment := &Table{
		Columns: []string{"code", "date"},
		Rows: [][]string{
			{"sh600000", "2026-08-28"},
		},
	}
	policy := MergePolicy{Keys: []string{"code", "date"}, Keep: KeepFirst}

	once, err := Merge(existing, increment, policy)
	require.NoError(t, err)
	twice, err := Merge(once, increment, policy)
	require.NoError(t, err)

	assert.Equal(t, once.Rows, twice.Rows)
}

func TestMergeNilExisting(t *testing.T) {
	increment := &Table{
		Columns: []string{"code", "date"},
		Rows:    [][]string{{"sh600000", "2026-08-28"}},
	}

	merged, err := Merge(nil, increment, MergePolicy{Keys: []string{"code"}, Keep: KeepFirst})
	require.NoError(t, err)

	assert.Equal(t, increment.Columns, merged.Columns)
	assert.Equal(t, increment.Rows, merged.Rows)
}

func TestMergeUnionsColumns(t *testing.T) {
	existing := &Table{
		Columns: []string{"code", "date"},
		Rows:    [][]string{{"sh600000", "2026-08-27"}},
	}
	increment := &Table{
		Columns: []string{"code", "date", "volume"},
		Rows:    [][]string{{"sh600000", "2026-08-28", "1000"}},
	}

	merged, err := Merge(existing, increment, MergePolicy{
		Keys: []string{"code", "date"},
		Keep: KeepFirst,
	})
	require.NoError(t, err)

	assert.Equal(t, []string{"code", "date", "volume"}, merged.Columns)
	assert.Equal(t, [][]string{
		{"sh600000", "2026-08-27", ""},
		{"sh600000", "2026-08-28", "1000"},
	}, merged.Rows)
}

func TestMergeUnknownKeyColumn(t *testing.T) {
	existing := &Table{Columns: []string{"code"}, Rows: [][]string{{"sh600000"}}}

	_, err := Merge(existing, nil, MergePolicy{Keys: []string{"missing"}, Keep: KeepFirst})
	assert.Error(t, err)
}

func TestConcatDoesNotDedup(t *testing.T) {
	a := &Table{
		Columns: []string{"code", "date"},
		Rows:    [][]string{{"sh600000", "2026-08-28"}},
	}
	b := &Table{
		Columns: []string{"code", "date"},
		Rows:    [][]string{{"sh600000", "2026-08-28"}},
	}

	out := Concat(a, b)
	assert.Len(t, out.Rows, 2)
}

func TestGroupBy(t *testing.T) {
	tbl := &Table{
		Columns: []string{"code", "date"},
		Rows: [][]string{
			{"sh600000", "2026-08-27"},
			{"sh600001", "2026-08-27"},
			{"sh600000", "2026-08-28"},
		},
	}

	groups, err := tbl.GroupBy("code")
	require.NoError(t, err)
	require.Len(t, groups, 2)

	assert.Equal(t, "sh600000", groups[0].Key)
	assert.Len(t, groups[0].Table.Rows, 2)
	assert.Equal(t, "sh600001", groups[1].Key)
	assert.Len(t, groups[1].Table.Rows, 1)

	_, err = tbl.GroupBy("missing")
	assert.Error(t, err)
}

func TestNormalizeDates(t *testing.T) {
	tbl := &Table{
		Columns: []string{"code", "date"},
		Rows: [][]string{
			{"sh600000", "2026/08/28"},
			{"sh600001", "20260828"},
			{"sh600002", "2026-08-28 15:00:00"},
			{"sh600003", "not-a-date"},
			{"sh600004", ""},
		},
	}

	tbl.NormalizeDates([]string{"date", "missing"})

	assert.Equal(t, "2026-08-28", tbl.Rows[0][1])
	assert.Equal(t, "2026-08-28", tbl.Rows[1][1])
	assert.Equal(t, "2026-08-28", tbl.Rows[2][1])
	assert.Equal(t, "not-a-date", tbl.Rows[3][1])
	assert.Equal(t, "", tbl.Rows[4][1])
}

func TestEmpty(t *testing.T) {
	var nilTable *Table
	assert.True(t, nilTable.Empty())
	assert.True(t, (&Table{Columns: []string{"code"}}).Empty())
	assert.False(t, (&Table{Rows: [][]string{{"x"}}}).Empty())
}
