// Package strategy fetches precomputed stock-selection results from the data
// API, persists them into per-configuration result files and adapts them for
// the chat front end.
package strategy

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"strconv"
	"strings"

	"qcsync/internal/client"
	"qcsync/internal/infrastructure"
	"qcsync/internal/table"
)

// Result file columns.
const (
	colTradeDate = "交易日期"
	colSymbol    = "股票代码"
	colName      = "股票名称"
	colRank      = "选股排名"
)

// Service-level outcome codes of the stock-result endpoint.
const (
	codeOK           = 200
	codeNoPermission = 1003
	codeNotExist     = 1004
	codeNoData       = 1005
	codeBadParams    = 1006
)

// CodeError is a service-level failure with a user-facing message. The chat
// front end forwards the message verbatim.
type CodeError struct {
	Code     int
	Strategy string
}

func (e *CodeError) Error() string {
	switch e.Code {
	case codeNoPermission:
		return fmt.Sprintf("%s策略无获取权限", e.Strategy)
	case codeNotExist:
		return fmt.Sprintf("%s策略不存在", e.Strategy)
	case codeNoData:
		return fmt.Sprintf("%s策略无数据", e.Strategy)
	case codeBadParams:
		return fmt.Sprintf("%s策略获取数据参数错误", e.Strategy)
	default:
		return fmt.Sprintf("%s策略获取失败(code=%d)", e.Strategy, e.Code)
	}
}

// API is the slice of the data API client the fetcher needs.
type API interface {
	StrategyResult(ctx context.Context, strategy, periodType string, selectCount int) (*client.StrategyEnvelope, error)
}

// Selection is a successfully fetched stock selection.
type Selection struct {
	Strategy   string
	Period     string
	Count      int
	SelectTime string
	BuyTime    string
	Stocks     []client.StrategyRow
}

// Fetcher retrieves strategy results and maintains the local result files.
type Fetcher struct {
	api       API
	resultDir string
	logger    *slog.Logger
	metrics   *infrastructure.SyncMetrics
}

// NewFetcher creates a strategy result fetcher writing under resultDir.
func NewFetcher(api API, resultDir string, logger *slog.Logger, metrics *infrastructure.SyncMetrics) *Fetcher {
	return &Fetcher{
		api:       api,
		resultDir: resultDir,
		logger:    logger.With(slog.String("component", "strategy")),
		metrics:   metrics,
	}
}

// WithLogger returns a copy of the fetcher logging through the given logger.
// Batch runs use this to stamp every line of a run with its run id.
func (f *Fetcher) WithLogger(logger *slog.Logger) *Fetcher {
	clone := *f
	clone.logger = logger.With(slog.String("component", "strategy"))
	return &clone
}

// Fetch retrieves the selection for a strategy configuration. On success the
// rows are appended into the per-configuration result file, deduplicated by
// (trade date, symbol) with the newest row winning. Service-level failures
// come back as *CodeError; nothing is written for them.
func (f *Fetcher) Fetch(ctx context.Context, strategy, period string, count int) (*Selection, error) {
	envelope, err := f.api.StrategyResult(ctx, strategy, period, count)
	if err != nil {
		return nil, fmt.Errorf("strategy request failed: %w", err)
	}

	if f.metrics != nil {
		f.metrics.StrategyFetchTotal.WithLabelValues(strategy, strconv.Itoa(envelope.Code)).Inc()
	}

	if envelope.Code != codeOK {
		f.logger.Warn("strategy fetch rejected",
			slog.String("strategy", strategy),
			slog.Int("code", envelope.Code))
		return nil, &CodeError{Code: envelope.Code, Strategy: strategy}
	}

	selection := &Selection{
		Strategy:   strategy,
		Period:     period,
		Count:      count,
		SelectTime: envelope.SelectTime,
		BuyTime:    envelope.BuyTime,
		Stocks:     envelope.Result,
	}

	if err := f.persist(selection); err != nil {
		return nil, fmt.Errorf("failed to persist strategy result: %w", err)
	}

	f.logger.Info("strategy result fetched",
		slog.String("strategy", strategy),
		slog.String("select_time", selection.SelectTime),
		slog.Int("stocks", len(selection.Stocks)))
	return selection, nil
}

// ResultPath returns the result file path for a strategy configuration.
func (f *Fetcher) ResultPath(strategy, period string, count int) string {
	name := fmt.Sprintf("%s_%s_%d.csv", strings.ReplaceAll(strategy, "-", "_"), PeriodToken(period), count)
	return filepath.Join(f.resultDir, name)
}

// persist appends the selection rows into the result file, keeping the
// newest row per (trade date, symbol). Result files are kept append-forever.
func (f *Fetcher) persist(sel *Selection) error {
	increment := &table.Table{Columns: []string{colTradeDate, colSymbol, colName, colRank}}
	for _, stock := range sel.Stocks {
		increment.Rows = append(increment.Rows, []string{sel.SelectTime, stock.Symbol, stock.Name, "1"})
	}

	path := f.ResultPath(sel.Strategy, sel.Period, sel.Count)
	existing, err := table.ReadFile(path, f.logger)
	if err != nil {
		return err
	}

	merged, err := table.Merge(existing, increment, table.MergePolicy{
		Keys: []string{colTradeDate, colSymbol},
		Keep: table.KeepLast,
	})
	if err != nil {
		return err
	}

	return table.WriteCSVPlain(path, merged)
}

// PeriodToken maps a user-facing holding period onto the file-name token:
// 周→week, 月→month, 自然月→natural_month, and N天→N for event strategies.
func PeriodToken(period string) string {
	switch period {
	case "周":
		return "week"
	case "月":
		return "month"
	case "自然月":
		return "natural_month"
	}
	if strings.HasSuffix(period, "天") {
		return strings.TrimSuffix(period, "天")
	}
	return period
}
