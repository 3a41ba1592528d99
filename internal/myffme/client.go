// Package myffme は現行世代の外部会員プラットフォーム（GraphQL API）のクライアントを提供する。
//
// リクエストには credentials.Cell に保持されたアクセストークンとブラウザフィンガープリントを付与し、
// rate.Limiter で送信間隔を制御する。
package myffme

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"golang.org/x/time/rate"

	"github.com/hitoshi/ffmesync/internal/credentials"
	"github.com/hitoshi/ffmesync/internal/metrics"
	"github.com/hitoshi/ffmesync/internal/worker/retry"
)

// metricsSource は上流ステータスメトリクスのラベル値。
const metricsSource = "myffme"

var (
	// ErrNoCredential は有効な認証情報がまだ取得されていないことを示す。
	ErrNoCredential = errors.New("no valid credential")
	// ErrUnauthorized はプラットフォームが認証情報を拒否したことを示す。
	ErrUnauthorized = errors.New("credential rejected")
)

type graphQLRequest struct {
	Query     string         `json:"query"`
	Variables map[string]any `json:"variables,omitempty"`
}

type graphQLError struct {
	Message string `json:"message"`
}

type graphQLResponse struct {
	Data   json.RawMessage `json:"data"`
	Errors []graphQLError  `json:"errors"`
}

// Client はGraphQL APIのクライアント。member.DataSource を実装する。
type Client struct {
	http     *resty.Client
	endpoint string
	cell     *credentials.Cell
	limiter  *rate.Limiter
	metrics  metrics.MetricsCollector
	logger   *slog.Logger
}

// NewClient はClientの新しいインスタンスを生成する。
// requestsPerSecondが0以下の場合は送信間隔を制限しない。metricsはnilでもよい。
func NewClient(endpoint string, cell *credentials.Cell, requestsPerSecond float64, m metrics.MetricsCollector, logger *slog.Logger) *Client {
	limit := rate.Inf
	if requestsPerSecond > 0 {
		limit = rate.Limit(requestsPerSecond)
	}

	httpClient := resty.New().
		SetTimeout(30*time.Second).
		SetRetryCount(2).
		SetRetryWaitTime(time.Second).
		SetRetryMaxWaitTime(5*time.Second).
		AddRetryCondition(func(resp *resty.Response, err error) bool {
			return resp != nil && retry.ClassifyHTTPStatus(resp.StatusCode()) == retry.ResultBackoff
		}).
		SetHeader("Content-Type", "application/json").
		SetHeader("Accept", "application/json")

	return &Client{
		http:     httpClient,
		endpoint: endpoint,
		cell:     cell,
		limiter:  rate.NewLimiter(limit, 1),
		metrics:  m,
		logger:   logger,
	}
}

// query はGraphQLクエリを実行し、dataフィールドをoutにデコードする。
func (c *Client) query(ctx context.Context, operation, query string, variables map[string]any, out any) error {
	cred, ok := c.cell.Current()
	if !ok {
		return ErrNoCredential
	}

	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}

	req := c.http.R().
		SetContext(ctx).
		SetAuthToken(cred.Token).
		SetBody(graphQLRequest{Query: query, Variables: variables})
	cred.Fingerprint.Apply(req.Header)

	start := time.Now()
	resp, err := req.Post(c.endpoint)
	if err != nil {
		c.logger.Error("会員プラットフォームAPIの呼び出しに失敗しました",
			slog.String("operation", operation),
			slog.String("error", err.Error()),
		)
		return fmt.Errorf("%s: %w", operation, err)
	}

	status := resp.StatusCode()
	if c.metrics != nil {
		c.metrics.RecordUpstreamStatus(metricsSource, status)
	}
	c.logger.Debug("会員プラットフォームAPIを呼び出しました",
		slog.String("operation", operation),
		slog.Int("http_status", status),
		slog.Int64("duration_ms", time.Since(start).Milliseconds()),
	)

	switch retry.ClassifyHTTPStatus(status) {
	case retry.ResultOK:
	case retry.ResultUnauthorized:
		c.logger.Warn("会員プラットフォームが認証情報を拒否しました",
			slog.String("operation", operation),
			slog.Int("http_status", status),
		)
		return fmt.Errorf("%s: status %d: %w", operation, status, ErrUnauthorized)
	default:
		c.logger.Error("会員プラットフォームAPIがエラーステータスを返しました",
			slog.String("operation", operation),
			slog.Int("http_status", status),
		)
		return fmt.Errorf("%s: unexpected status %d", operation, status)
	}

	var body graphQLResponse
	if err := json.Unmarshal(resp.Body(), &body); err != nil {
		return fmt.Errorf("%s: failed to decode response: %w", operation, err)
	}
	if len(body.Errors) > 0 {
		msgs := make([]string, len(body.Errors))
		for i, e := range body.Errors {
			msgs[i] = e.Message
		}
		return fmt.Errorf("%s: graphql errors: %s", operation, strings.Join(msgs, "; "))
	}
	if err := json.Unmarshal(body.Data, out); err != nil {
		return fmt.Errorf("%s: failed to decode data: %w", operation, err)
	}
	return nil
}
