package client

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// StatusError reports a non-200 response on an endpoint whose caller needs
// the raw status code.
type StatusError struct {
	Code int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected status %d", e.Code)
}

// ProductPolicy is the per-product schema policy served by get-data-info.
// It drives deduplication, date parsing, grouping and merge strategy
// dispatch during a sync.
type ProductPolicy struct {
	DedupColumns []string `json:"duplicate_removal_column"`
	Keep         string   `json:"keep"`
	ParseDates   []string `json:"parse_dates"`
	Group        string   `json:"group"`
	Strategy     string   `json:"fun"`
}

// StrategyRow is one selected stock in a strategy result.
type StrategyRow struct {
	Symbol string `json:"symbol"`
	Name   string `json:"name"`
}

// StrategyEnvelope is the response of the stock-result service.
type StrategyEnvelope struct {
	Code       int           `json:"code"`
	SelectTime string        `json:"select_time"`
	BuyTime    string        `json:"buy_time"`
	Result     []StrategyRow `json:"result"`
}

// DataInfo fetches the per-product schema policies. Called once at startup;
// the result is treated as immutable configuration.
func (c *Client) DataInfo(ctx context.Context) (map[string]ProductPolicy, error) {
	resp, err := c.Do(ctx, http.MethodGet, c.baseURL+"/get-data-info")
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, &StatusError{Code: resp.StatusCode}
	}

	var policies map[string]ProductPolicy
	if err := json.NewDecoder(resp.Body).Decode(&policies); err != nil {
		return nil, fmt.Errorf("failed to decode data info: %w", err)
	}

	return policies, nil
}

// DownloadLink resolves the signed download URL for a product and date.
// A non-200 response is returned as a StatusError.
func (c *Client) DownloadLink(ctx context.Context, product, date string) (string, error) {
	endpoint := fmt.Sprintf("%s/get-download-link/%s-daily/%s?uuid=%s", c.baseURL, product, date, url.QueryEscape(c.uuid))
	resp, err := c.Do(ctx, http.MethodGet, endpoint)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", &StatusError{Code: resp.StatusCode}
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read download link: %w", err)
	}

	return strings.TrimSpace(string(body)), nil
}

// LatestDates returns the list of currently available dates for a product,
// newest last. An HTML body indicates a misconfigured account and yields an
// empty list.
func (c *Client) LatestDates(ctx context.Context, product string) ([]string, error) {
	endpoint := fmt.Sprintf("%s/fetch/%s-daily/latest?uuid=%s", c.baseURL, product, url.QueryEscape(c.uuid))
	resp, err := c.Do(ctx, http.MethodGet, endpoint)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read latest dates: %w", err)
	}

	text := strings.TrimSpace(string(body))
	if strings.Contains(text, "HTML") {
		c.logger.Warn("latest dates request returned HTML, check account configuration",
			slog.String("product", product))
		c.notifier.Warn(ctx, "获取最新数据日期出错，请检查配置")
		return nil, nil
	}
	if text == "" {
		return nil, nil
	}

	return strings.Split(text, ","), nil
}

// Download streams the file at the signed URL into destPath in chunks,
// avoiding holding large payloads in memory. Returns the number of bytes
// written. A non-200 response is returned as a StatusError.
func (c *Client) Download(ctx context.Context, fileURL, destPath string) (int64, error) {
	resp, err := c.Do(ctx, http.MethodGet, fileURL, WithoutTimeout())
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return 0, &StatusError{Code: resp.StatusCode}
	}

	if err := os.MkdirAll(filepath.Dir(destPath), 0755); err != nil {
		return 0, fmt.Errorf("failed to create download directory: %w", err)
	}

	out, err := os.Create(destPath)
	if err != nil {
		return 0, fmt.Errorf("failed to create download file: %w", err)
	}
	defer out.Close()

	buf := make([]byte, 32*1024)
	written, err := io.CopyBuffer(out, resp.Body, buf)
	if err != nil {
		return written, fmt.Errorf("failed to stream download: %w", err)
	}

	return written, out.Sync()
}

// StrategyResult fetches the precomputed selection for a strategy. The
// envelope's Code field carries the service-level outcome; the HTTP status
// has already been classified by Do.
func (c *Client) StrategyResult(ctx context.Context, strategy, periodType string, selectCount int) (*StrategyEnvelope, error) {
	endpoint := fmt.Sprintf("%s/stock-result/service/%s", c.baseURL, url.PathEscape(strategy))
	query := url.Values{
		"uuid":                 {c.uuid},
		"period_type":          {periodType},
		"select_stock_max_num": {strconv.Itoa(selectCount)},
	}

	resp, err := c.Do(ctx, http.MethodGet, endpoint, WithQuery(query))
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, &StatusError{Code: resp.StatusCode}
	}

	var envelope StrategyEnvelope
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		return nil, fmt.Errorf("failed to decode strategy result: %w", err)
	}

	return &envelope, nil
}
