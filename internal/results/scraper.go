// Package results は公開リザルトページから会員の大会成績を取得する。
package results

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"golang.org/x/net/html"

	"github.com/hitoshi/ffmesync/internal/metrics"
	"github.com/hitoshi/ffmesync/internal/model"
	"github.com/hitoshi/ffmesync/internal/security"
)

const (
	// maxBodySize は読み込むページサイズの上限（2MB）。
	maxBodySize = 2 * 1024 * 1024
	// licenseParam はライセンス番号を渡すクエリパラメータ名。
	licenseParam = "licence"
	// metricsSource は上流ステータスメトリクスのラベル値。
	metricsSource = "results"
	userAgent     = "ffmesync/1.0"
)

// ErrPageTooLarge はリザルトページが maxBodySize を超えたことを示す。
// 途中で切り詰めたHTMLでは成績行が欠けるため、部分的な成績は返さない。
var ErrPageTooLarge = errors.New("results page too large")

// column は成績表の列。
type column int

const (
	colSeason column = iota
	colDate
	colCompetition
	colDiscipline
	colCategory
	colRank
	numColumns
)

// headerColumns は見出しの表記と列の対応表。
var headerColumns = map[string]column{
	"saison":      colSeason,
	"season":      colSeason,
	"date":        colDate,
	"compétition": colCompetition,
	"competition": colCompetition,
	"épreuve":     colCompetition,
	"epreuve":     colCompetition,
	"discipline":  colDiscipline,
	"catégorie":   colCategory,
	"categorie":   colCategory,
	"category":    colCategory,
	"classement":  colRank,
	"rang":        colRank,
	"place":       colRank,
	"rank":        colRank,
}

// Scraper は公開リザルトページを取得して成績表を解析する。
type Scraper struct {
	httpClient *http.Client
	baseURL    string
	sanitizer  *security.TextSanitizer
	metrics    metrics.MetricsCollector
	logger     *slog.Logger
}

// NewScraper はScraperの新しいインスタンスを生成する。
// 本番ではsecurity.NewSafeClientで生成したクライアントを渡す。metricsはnilでもよい。
func NewScraper(httpClient *http.Client, baseURL string, m metrics.MetricsCollector, logger *slog.Logger) *Scraper {
	return &Scraper{
		httpClient: httpClient,
		baseURL:    baseURL,
		sanitizer:  security.NewTextSanitizer(),
		metrics:    m,
		logger:     logger,
	}
}

// Fetch は指定ライセンス番号の成績を取得する。
// ページが存在しない場合や成績表がない場合は空のスライスを返す。
// 順位が数値でない行（棄権など）は含めない。
func (s *Scraper) Fetch(ctx context.Context, licenseNumber string) ([]model.CompetitionResult, error) {
	reqURL, err := url.Parse(s.baseURL)
	if err != nil {
		return nil, fmt.Errorf("リザルトページURLのパースに失敗しました: %w", err)
	}
	q := reqURL.Query()
	q.Set(licenseParam, licenseNumber)
	reqURL.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("HTTPリクエストの作成に失敗しました: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", "text/html")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("リザルトページの取得に失敗しました: %w", err)
	}
	defer resp.Body.Close()

	if s.metrics != nil {
		s.metrics.RecordUpstreamStatus(metricsSource, resp.StatusCode)
	}

	if resp.StatusCode == http.StatusNotFound {
		return []model.CompetitionResult{}, nil
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("リザルトページがステータス %d を返しました", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize+1))
	if err != nil {
		return nil, fmt.Errorf("レスポンスボディの読み取りに失敗しました: %w", err)
	}
	if len(body) > maxBodySize {
		return nil, fmt.Errorf("%w: %d バイトを超えています", ErrPageTooLarge, maxBodySize)
	}

	results, skipped, err := s.Parse(body)
	if err != nil {
		return nil, err
	}
	if skipped > 0 {
		s.logger.Debug("順位が数値でない成績行をスキップしました",
			slog.String("license_number", licenseNumber),
			slog.Int("skipped", skipped),
		)
	}
	return results, nil
}

// Parse はHTMLの最初の表を成績表として解析する。戻り値のskippedは順位が数値でなかった行数。
// 見出し行がない場合はシーズン、日付、大会、種目、カテゴリ、順位の列順とみなす。
func (s *Scraper) Parse(body []byte) (results []model.CompetitionResult, skipped int, err error) {
	doc, err := html.Parse(bytes.NewReader(body))
	if err != nil {
		return nil, 0, fmt.Errorf("HTMLのパースに失敗しました: %w", err)
	}

	results = []model.CompetitionResult{}
	table := findFirst(doc, "table")
	if table == nil {
		return results, 0, nil
	}

	cols := defaultLayout()
	for _, row := range rows(table) {
		cells, header := s.cells(row)
		if header {
			if l, ok := headerLayout(cells); ok {
				cols = l
			}
			continue
		}
		if len(cells) == 0 {
			continue
		}

		rank, ok := parseRank(cols.get(cells, colRank))
		if !ok {
			skipped++
			continue
		}
		season, _ := strconv.Atoi(cols.get(cells, colSeason))
		results = append(results, model.CompetitionResult{
			Season:      season,
			Date:        cols.get(cells, colDate),
			Competition: cols.get(cells, colCompetition),
			Discipline:  cols.get(cells, colDiscipline),
			Category:    cols.get(cells, colCategory),
			Rank:        rank,
		})
	}
	return results, skipped, nil
}

// layout は列から表中のセル位置への対応。-1 は表に存在しない列。
type layout [numColumns]int

func defaultLayout() layout {
	var l layout
	for i := range l {
		l[i] = i
	}
	return l
}

func headerLayout(headers []string) (layout, bool) {
	var l layout
	for i := range l {
		l[i] = -1
	}
	for i, h := range headers {
		if c, ok := headerColumns[strings.ToLower(h)]; ok {
			l[c] = i
		}
	}
	return l, l[colRank] >= 0
}

func (l layout) get(cells []string, c column) string {
	i := l[c]
	if i < 0 || i >= len(cells) {
		return ""
	}
	return cells[i]
}

// parseRank は "3", "1er", "12e", "5ème" 形式の順位を数値に変換する。
func parseRank(raw string) (int, bool) {
	trimmed := strings.ToLower(strings.TrimSpace(raw))
	for _, suffix := range []string{"ème", "eme", "er", "e"} {
		if strings.HasSuffix(trimmed, suffix) {
			trimmed = strings.TrimSuffix(trimmed, suffix)
			break
		}
	}
	rank, err := strconv.Atoi(trimmed)
	if err != nil || rank <= 0 {
		return 0, false
	}
	return rank, true
}

func findFirst(n *html.Node, tag string) *html.Node {
	if n.Type == html.ElementNode && n.Data == tag {
		return n
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if found := findFirst(c, tag); found != nil {
			return found
		}
	}
	return nil
}

// rows は表の行を順に返す。入れ子の表の行は含めない。
func rows(table *html.Node) []*html.Node {
	var out []*html.Node
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			if c.Type != html.ElementNode {
				continue
			}
			switch c.Data {
			case "tr":
				out = append(out, c)
			case "thead", "tbody", "tfoot":
				walk(c)
			}
		}
	}
	walk(table)
	return out
}

// cells は行のセルをテキストとして返す。すべてのセルがthであれば見出し行とみなす。
func (s *Scraper) cells(row *html.Node) ([]string, bool) {
	var out []string
	header := true
	for c := row.FirstChild; c != nil; c = c.NextSibling {
		if c.Type != html.ElementNode || (c.Data != "td" && c.Data != "th") {
			continue
		}
		if c.Data == "td" {
			header = false
		}
		out = append(out, s.sanitizer.Text(innerHTML(c)))
	}
	return out, header && len(out) > 0
}

func innerHTML(n *html.Node) string {
	var buf bytes.Buffer
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if err := html.Render(&buf, c); err != nil {
			return ""
		}
	}
	return buf.String()
}
