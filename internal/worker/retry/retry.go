// Package retry は上流APIの応答分類と、再試行間隔の計算を提供する。
package retry

import (
	"math/rand/v2"
	"time"
)

// Result はHTTPステータスコードに基づく上流応答の分類。
type Result int

const (
	// ResultOK は成功（2xx）。
	ResultOK Result = iota
	// ResultUnauthorized は認証情報の更新が必要なステータス（401/403）。
	ResultUnauthorized
	// ResultStop は再試行しても結果が変わらないステータス（400/404/410）。
	ResultStop
	// ResultBackoff は時間をおいて再試行すべきステータス（429/5xx）。
	ResultBackoff
	// ResultUnknown は未知のステータスコード。
	ResultUnknown
)

// String はログ出力用の名前を返す。
func (r Result) String() string {
	switch r {
	case ResultOK:
		return "ok"
	case ResultUnauthorized:
		return "unauthorized"
	case ResultStop:
		return "stop"
	case ResultBackoff:
		return "backoff"
	default:
		return "unknown"
	}
}

// ClassifyHTTPStatus はHTTPステータスコードを分類する。
func ClassifyHTTPStatus(statusCode int) Result {
	switch {
	case statusCode >= 200 && statusCode < 300:
		return ResultOK
	case statusCode == 401 || statusCode == 403:
		return ResultUnauthorized
	case statusCode == 400 || statusCode == 404 || statusCode == 410:
		return ResultStop
	case statusCode == 429:
		return ResultBackoff
	case statusCode >= 500:
		return ResultBackoff
	default:
		return ResultUnknown
	}
}

// Backoff は連続失敗回数に応じた指数バックオフを計算する。
// 初回はinitial、以降2倍ずつ増加し、maxで頭打ちになる。
type Backoff struct {
	Initial time.Duration
	Max     time.Duration
}

// Delay は連続失敗回数に基づいて遅延を返す。consecutiveFailuresが0以下ならInitialを返す。
func (b Backoff) Delay(consecutiveFailures int) time.Duration {
	delay := b.Initial
	for i := 1; i < consecutiveFailures; i++ {
		delay *= 2
		if delay >= b.Max {
			return b.Max
		}
	}
	if delay > b.Max {
		return b.Max
	}
	return delay
}

// Jitter は base ± spread の範囲で一様に分布した遅延を返す。
// 結果が0未満になる場合は0を返す。
func Jitter(base, spread time.Duration) time.Duration {
	return jitter(base, spread, rand.Int64N)
}

func jitter(base, spread time.Duration, int64n func(int64) int64) time.Duration {
	if spread <= 0 {
		return base
	}
	d := base - spread + time.Duration(int64n(int64(2*spread)+1))
	if d < 0 {
		return 0
	}
	return d
}
