package syncer

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"qcsync/internal/client"
	"qcsync/internal/table"
)

func TestParseStrategy(t *testing.T) {
	tests := []struct {
		tag     string
		want    Strategy
		wantErr bool
	}{
		{tag: "update_by_group", want: StrategyByGroup},
		{tag: "by_group", want: StrategyByGroup},
		{tag: "update_by_file", want: StrategyByFile},
		{tag: "by_file", want: StrategyByFile},
		{tag: "move", want: StrategyDirectMove},
		{tag: "direct_move", want: StrategyDirectMove},
		{tag: "merge", wantErr: true},
		{tag: "", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.tag, func(t *testing.T) {
			got, err := ParseStrategy(tt.tag)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestBuildPlans(t *testing.T) {
	policies := map[string]client.ProductPolicy{
		"stock": {
			DedupColumns: []string{"股票代码", "交易日期"},
			Keep:         "last",
			ParseDates:   []string{"交易日期"},
			Group:        "股票代码",
			Strategy:     "update_by_group",
		},
		"calendar": {
			Strategy: "move",
		},
	}

	plans, err := BuildPlans(policies)
	require.NoError(t, err)
	require.Len(t, plans, 2)

	stock := plans["stock"]
	assert.Equal(t, StrategyByGroup, stock.Strategy)
	assert.Equal(t, table.KeepLast, stock.Merge.Keep)
	assert.Equal(t, []string{"股票代码", "交易日期"}, stock.Merge.Keys)

	calendar := plans["calendar"]
	assert.Equal(t, StrategyDirectMove, calendar.Strategy)
	assert.Equal(t, table.KeepFirst, calendar.Merge.Keep)
}

func TestBuildPlansRejectsInvalidPolicies(t *testing.T) {
	tests := []struct {
		name   string
		policy client.ProductPolicy
	}{
		{
			name:   "unknown strategy tag",
			policy: client.ProductPolicy{Strategy: "explode"},
		},
		{
			name: "unknown keep rule",
			policy: client.ProductPolicy{
				DedupColumns: []string{"code"},
				Keep:         "newest",
				Strategy:     "update_by_file",
			},
		},
		{
			name:   "merge strategy without dedup columns",
			policy: client.ProductPolicy{Strategy: "update_by_file"},
		},
		{
			name: "by-group without group column",
			policy: client.ProductPolicy{
				DedupColumns: []string{"code"},
				Strategy:     "update_by_group",
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := BuildPlans(map[string]client.ProductPolicy{"p": tt.policy})
			assert.Error(t, err)
		})
	}
}
