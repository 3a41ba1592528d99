// Package extranet は旧世代の外部会員プラットフォーム（JSON REST API）のクライアントを提供する。
// 現行世代のGraphQL APIと同じ member.DataSource を実装し、同期処理からは区別なく利用できる。
package extranet

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"

	"github.com/hitoshi/ffmesync/internal/metrics"
)

const (
	// maxIDsPerRequest は1リクエストあたりの最大ID数。
	maxIDsPerRequest = 50
	// metricsSource は上流ステータスメトリクスのラベル値。
	metricsSource = "extranet"
	// userAgent は旧APIに送信するUser-Agent。
	userAgent = "ffmesync/1.0"
)

// Client は旧APIのクライアント。APIキーをヘッダーで送信する。
type Client struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
	metrics    metrics.MetricsCollector
	logger     *slog.Logger
}

// NewClient はClientの新しいインスタンスを生成する。metricsはnilでもよい。
func NewClient(httpClient *http.Client, baseURL, apiKey string, m metrics.MetricsCollector, logger *slog.Logger) *Client {
	return &Client{
		httpClient: httpClient,
		baseURL:    baseURL,
		apiKey:     apiKey,
		metrics:    m,
		logger:     logger,
	}
}

// getJSON はGETリクエストを送信し、レスポンスJSONをoutにデコードする。
func (c *Client) getJSON(ctx context.Context, path string, query url.Values, out any) error {
	reqURL, err := url.Parse(c.baseURL)
	if err != nil {
		return fmt.Errorf("ベースURLのパースに失敗しました: %w", err)
	}
	reqURL = reqURL.JoinPath(path)
	reqURL.RawQuery = query.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL.String(), nil)
	if err != nil {
		return fmt.Errorf("HTTPリクエストの作成に失敗しました: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Api-Key", c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Error("旧APIの呼び出しに失敗しました",
			slog.String("path", path),
			slog.String("error", err.Error()),
		)
		return err
	}
	defer resp.Body.Close()

	if c.metrics != nil {
		c.metrics.RecordUpstreamStatus(metricsSource, resp.StatusCode)
	}

	if resp.StatusCode != http.StatusOK {
		c.logger.Error("旧APIがエラーステータスを返しました",
			slog.String("path", path),
			slog.Int("http_status", resp.StatusCode),
		)
		return fmt.Errorf("旧APIがステータス %d を返しました: %s", resp.StatusCode, path)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("レスポンスボディの読み取りに失敗しました: %w", err)
	}
	if err := json.Unmarshal(body, out); err != nil {
		c.logger.Error("旧APIのレスポンスのパースに失敗しました",
			slog.String("path", path),
			slog.String("error", err.Error()),
		)
		return fmt.Errorf("レスポンスJSONのパースに失敗しました: %w", err)
	}
	return nil
}

// getBatched はIDをmaxIDsPerRequest件ずつに分けてGETし、各レスポンスをhandleに渡す。
func getBatched[T any](ctx context.Context, c *Client, path, param string, ids []string, handle func([]T) error) error {
	for start := 0; start < len(ids); start += maxIDsPerRequest {
		end := min(start+maxIDsPerRequest, len(ids))
		q := url.Values{}
		for _, id := range ids[start:end] {
			q.Add(param, id)
		}

		var page []T
		if err := c.getJSON(ctx, path, q, &page); err != nil {
			return err
		}
		if err := handle(page); err != nil {
			return err
		}
	}
	return nil
}

func itoaAll(ids []int) []string {
	out := make([]string, len(ids))
	for i, id := range ids {
		out[i] = strconv.Itoa(id)
	}
	return out
}
