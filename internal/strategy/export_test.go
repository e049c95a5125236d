package strategy

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"qcsync/internal/client"
)

func TestExportXLSX(t *testing.T) {
	sel := &Selection{
		Strategy:   "small-market-value",
		SelectTime: "2026-08-28",
		Stocks: []client.StrategyRow{
			{Symbol: "sh600000", Name: "浦发银行"},
			{Symbol: "sz000001", Name: "平安银行"},
		},
	}

	path := filepath.Join(t.TempDir(), "export", "selection.xlsx")
	require.NoError(t, ExportXLSX(sel, path))

	f, err := excelize.OpenFile(path)
	require.NoError(t, err)
	defer f.Close()

	rows, err := f.GetRows(f.GetSheetName(0))
	require.NoError(t, err)
	require.Len(t, rows, 3)

	assert.Equal(t, []string{colTradeDate, colSymbol, colName, colRank}, rows[0])
	assert.Equal(t, "sh600000", rows[1][1])
	assert.Equal(t, "平安银行", rows[2][2])
}
