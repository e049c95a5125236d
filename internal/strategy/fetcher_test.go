package strategy

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"qcsync/internal/client"
	"qcsync/internal/infrastructure"
	"qcsync/internal/table"
)

// fakeAPI scripts stock-result responses.
type fakeAPI struct {
	envelope *client.StrategyEnvelope
	err      error
	calls    int
}

func (f *fakeAPI) StrategyResult(_ context.Context, strategy, periodType string, selectCount int) (*client.StrategyEnvelope, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return f.envelope, nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, nil))
}

func newTestFetcher(t *testing.T, api *fakeAPI) *Fetcher {
	t.Helper()
	metrics := infrastructure.NewSyncMetrics(prometheus.NewRegistry())
	return NewFetcher(api, t.TempDir(), testLogger(), metrics)
}

func TestFetchSuccessPersistsResult(t *testing.T) {
	api := &fakeAPI{envelope: &client.StrategyEnvelope{
		Code:       200,
		SelectTime: "2026-08-28",
		BuyTime:    "2026-08-31 09:30",
		Result: []client.StrategyRow{
			{Symbol: "sh600000", Name: "浦发银行"},
			{Symbol: "sz000001", Name: "平安银行"},
		},
	}}
	f := newTestFetcher(t, api)

	sel, err := f.Fetch(context.Background(), "small-market-value", "周", 3)
	require.NoError(t, err)
	assert.Equal(t, "2026-08-28", sel.SelectTime)
	require.Len(t, sel.Stocks, 2)

	got, err := table.ReadCSV(f.ResultPath("small-market-value", "周", 3))
	require.NoError(t, err)
	assert.Equal(t, []string{colTradeDate, colSymbol, colName, colRank}, got.Columns)
	assert.Len(t, got.Rows, 2)
}

func TestFetchAccumulatesAcrossDates(t *testing.T) {
	api := &fakeAPI{envelope: &client.StrategyEnvelope{
		Code:       200,
		SelectTime: "2026-08-21",
		Result:     []client.StrategyRow{{Symbol: "sh600000", Name: "浦发银行"}},
	}}
	f := newTestFetcher(t, api)

	_, err := f.Fetch(context.Background(), "small-market-value", "周", 3)
	require.NoError(t, err)

	api.envelope.SelectTime = "2026-08-28"
	_, err = f.Fetch(context.Background(), "small-market-value", "周", 3)
	require.NoError(t, err)

	got, err := table.ReadCSV(f.ResultPath("small-market-value", "周", 3))
	require.NoError(t, err)
	assert.Len(t, got.Rows, 2)
}

func TestFetchRefetchKeepsNewestRow(t *testing.T) {
	api := &fakeAPI{envelope: &client.StrategyEnvelope{
		Code:       200,
		SelectTime: "2026-08-28",
		Result:     []client.StrategyRow{{Symbol: "sh600000", Name: "旧名称"}},
	}}
	f := newTestFetcher(t, api)

	_, err := f.Fetch(context.Background(), "small-market-value", "周", 3)
	require.NoError(t, err)

	api.envelope.Result = []client.StrategyRow{{Symbol: "sh600000", Name: "新名称"}}
	_, err = f.Fetch(context.Background(), "small-market-value", "周", 3)
	require.NoError(t, err)

	got, err := table.ReadCSV(f.ResultPath("small-market-value", "周", 3))
	require.NoError(t, err)
	require.Len(t, got.Rows, 1)
	assert.Equal(t, "新名称", got.Rows[0][2])
}

func TestFetchServiceCodeFailure(t *testing.T) {
	tests := []struct {
		code int
		want string
	}{
		{code: 1003, want: "small-market-value策略无获取权限"},
		{code: 1004, want: "small-market-value策略不存在"},
		{code: 1005, want: "small-market-value策略无数据"},
		{code: 1006, want: "small-market-value策略获取数据参数错误"},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprintf("code %d", tt.code), func(t *testing.T) {
			api := &fakeAPI{envelope: &client.StrategyEnvelope{Code: tt.code}}
			f := newTestFetcher(t, api)

			_, err := f.Fetch(context.Background(), "small-market-value", "周", 3)

			var codeErr *CodeError
			require.ErrorAs(t, err, &codeErr)
			assert.Equal(t, tt.code, codeErr.Code)
			assert.Equal(t, tt.want, codeErr.Error())

			// Rejections write nothing.
			assert.NoFileExists(t, f.ResultPath("small-market-value", "周", 3))
		})
	}
}

func TestFetchTransportFailure(t *testing.T) {
	api := &fakeAPI{err: fmt.Errorf("connection reset")}
	f := newTestFetcher(t, api)

	_, err := f.Fetch(context.Background(), "small-market-value", "周", 3)
	require.Error(t, err)

	var codeErr *CodeError
	assert.False(t, errors.As(err, &codeErr))
}

func TestWithLoggerStampsEveryLine(t *testing.T) {
	api := &fakeAPI{envelope: &client.StrategyEnvelope{
		Code:       200,
		SelectTime: "2026-08-28",
		Result:     []client.StrategyRow{{Symbol: "sh600000", Name: "浦发银行"}},
	}}
	f := newTestFetcher(t, api)

	var buf bytes.Buffer
	runLogger := slog.New(slog.NewJSONHandler(&buf, nil)).With(slog.String("run_id", "run-1"))
	scoped := f.WithLogger(runLogger)

	_, err := scoped.Fetch(context.Background(), "small-market-value", "周", 3)
	require.NoError(t, err)

	assert.Contains(t, buf.String(), `"run_id":"run-1"`)
	assert.Contains(t, buf.String(), "strategy result fetched")
}

func TestResultPath(t *testing.T) {
	f := newTestFetcher(t, &fakeAPI{})

	assert.Equal(t, "small_market_value_week_3.csv",
		filepath.Base(f.ResultPath("small-market-value", "周", 3)))
	assert.Equal(t, "event_nf_flow_2_5.csv",
		filepath.Base(f.ResultPath("event-nf-flow", "2天", 5)))
}

func TestPeriodToken(t *testing.T) {
	tests := []struct {
		period string
		want   string
	}{
		{period: "周", want: "week"},
		{period: "月", want: "month"},
		{period: "自然月", want: "natural_month"},
		{period: "2天", want: "2"},
		{period: "10天", want: "10"},
		{period: "quarter", want: "quarter"},
	}

	for _, tt := range tests {
		t.Run(tt.period, func(t *testing.T) {
			assert.Equal(t, tt.want, PeriodToken(tt.period))
		})
	}
}
