// Package credentials は外部会員プラットフォームへの認証情報（アクセストークンと
// ブラウザフィンガープリント）の生成・保持・定期更新を提供する。
package credentials

import (
	"fmt"
	"math/rand/v2"
	"net/http"
	"strings"
	"time"

	"github.com/mssola/useragent"
)

// FingerprintValidity はフィンガープリントの有効期間。期限後は新しいものに入れ替える。
const FingerprintValidity = 72 * time.Hour

// browserAgents はフィンガープリントの候補とするデスクトップ/モバイルブラウザのUser-Agent。
var browserAgents = []string{
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/126.0.0.0 Safari/537.36 Edg/126.0.0.0",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/125.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.4 Safari/605.1.15",
	"Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64; rv:126.0) Gecko/20100101 Firefox/126.0",
	"Mozilla/5.0 (Linux; Android 14; Pixel 8) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/125.0.0.0 Mobile Safari/537.36",
}

var acceptLanguages = []string{
	"fr-FR,fr;q=0.9",
	"fr-FR,fr;q=0.9,en-US;q=0.8,en;q=0.7",
	"fr,fr-FR;q=0.9,en;q=0.8",
}

// Fingerprint はリクエストに付与するブラウザ由来のヘッダー一式。
// Client Hints はUser-Agentから導出するため、両者が矛盾することはない。
type Fingerprint struct {
	UserAgent       string
	SecCHUA         string // Chromium系以外では空
	SecCHUAMobile   string
	SecCHUAPlatform string
	AcceptLanguage  string
	CreatedAt       time.Time
}

// ExpiresAt はフィンガープリントの有効期限を返す。
func (f Fingerprint) ExpiresAt() time.Time {
	return f.CreatedAt.Add(FingerprintValidity)
}

// ValidAt は指定時刻にフィンガープリントが有効かどうかを返す。
func (f Fingerprint) ValidAt(t time.Time) bool {
	return f.UserAgent != "" && t.Before(f.ExpiresAt())
}

// Apply はリクエストヘッダーにフィンガープリントを設定する。
func (f Fingerprint) Apply(h http.Header) {
	h.Set("User-Agent", f.UserAgent)
	h.Set("Accept-Language", f.AcceptLanguage)
	if f.SecCHUA != "" {
		h.Set("Sec-CH-UA", f.SecCHUA)
		h.Set("Sec-CH-UA-Mobile", f.SecCHUAMobile)
		h.Set("Sec-CH-UA-Platform", f.SecCHUAPlatform)
	}
}

// Generator はランダムなブラウザフィンガープリントを生成する。
type Generator struct {
	agents    []string
	languages []string
	intn      func(n int) int
	now       func() time.Time
}

// NewGenerator は組み込みの候補から生成するGeneratorを返す。
func NewGenerator() *Generator {
	return &Generator{
		agents:    browserAgents,
		languages: acceptLanguages,
		intn:      rand.IntN,
		now:       time.Now,
	}
}

// Generate は新しいフィンガープリントを生成する。
func (g *Generator) Generate() Fingerprint {
	ua := g.agents[g.intn(len(g.agents))]
	fp := fromUserAgent(ua)
	fp.AcceptLanguage = g.languages[g.intn(len(g.languages))]
	fp.CreatedAt = g.now()
	return fp
}

// fromUserAgent はUser-AgentからClient Hintsを導出する。
// Client HintsはChromium系ブラウザのみが送信するため、それ以外では空のままにする。
func fromUserAgent(raw string) Fingerprint {
	ua := useragent.New(raw)
	fp := Fingerprint{UserAgent: raw}

	name, version := ua.Browser()
	major, _, _ := strings.Cut(version, ".")

	var brand string
	switch name {
	case "Chrome":
		brand = "Google Chrome"
	case "Edge":
		brand = "Microsoft Edge"
	default:
		return fp
	}

	fp.SecCHUA = fmt.Sprintf(`"Chromium";v="%s", "%s";v="%s", "Not-A.Brand";v="99"`, major, brand, major)
	fp.SecCHUAMobile = "?0"
	if ua.Mobile() {
		fp.SecCHUAMobile = "?1"
	}
	fp.SecCHUAPlatform = fmt.Sprintf("%q", platformHint(ua.OSInfo().Name))
	return fp
}

func platformHint(osName string) string {
	switch {
	case strings.HasPrefix(osName, "Windows"):
		return "Windows"
	case strings.HasPrefix(osName, "Mac OS"):
		return "macOS"
	case strings.HasPrefix(osName, "Android"):
		return "Android"
	case strings.HasPrefix(osName, "Linux"):
		return "Linux"
	default:
		return "Unknown"
	}
}
