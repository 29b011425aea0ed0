package collector

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"CDPRadar/internal/model"
)

const twseBaseURL = "https://www.twse.com.tw"

// taipeiZone is fixed: Taiwan has no daylight saving time.
var taipeiZone = time.FixedZone("Asia/Taipei", 8*60*60)

// TWSEFetcher implements Fetcher over the TWSE STOCK_DAY open-data endpoint,
// which serves one calendar month per request.
type TWSEFetcher struct {
	Client  *http.Client
	BaseURL string
	Now     func() time.Time
	// MaxMonths bounds how far back a single fetch walks.
	MaxMonths int
}

// NewTWSEFetcher creates a fetcher against the public TWSE site.
func NewTWSEFetcher(proxyURL string, timeout time.Duration) *TWSEFetcher {
	return &TWSEFetcher{
		Client:    newHTTPClient(proxyURL, timeout),
		BaseURL:   twseBaseURL,
		Now:       time.Now,
		MaxMonths: 3,
	}
}

func (f *TWSEFetcher) Name() string { return "twse" }

type twseStockDay struct {
	Stat   string     `json:"stat"`
	Fields []string   `json:"fields"`
	Data   [][]string `json:"data"`
}

func (f *TWSEFetcher) FetchDailyBars(ctx context.Context, symbol string, days int) ([]model.OHLCV, error) {
	now := f.Now().In(taipeiZone)
	month := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, taipeiZone)

	var bars []model.OHLCV
	for i := 0; i < f.MaxMonths && len(bars) < days; i++ {
		monthBars, err := f.fetchMonth(ctx, symbol, month)
		if err != nil {
			if len(bars) > 0 {
				break // keep what the newer months produced
			}
			return nil, err
		}
		bars = append(monthBars, bars...)
		month = month.AddDate(0, -1, 0)
	}
	if len(bars) == 0 {
		return nil, fmt.Errorf("twse %s: %w", symbol, ErrNoData)
	}
	sort.Slice(bars, func(i, j int) bool { return bars[i].Time.Before(bars[j].Time) })
	return trimBars(bars, days), nil
}

func (f *TWSEFetcher) fetchMonth(ctx context.Context, symbol string, month time.Time) ([]model.OHLCV, error) {
	q := url.Values{}
	q.Set("response", "json")
	q.Set("date", month.Format("20060102"))
	q.Set("stockNo", symbol)
	u := fmt.Sprintf("%s/exchangeReport/STOCK_DAY?%s", f.BaseURL, q.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	resp, err := f.Client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("twse fetch: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("twse read body: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("twse: status %d, body: %s", resp.StatusCode, string(body))
	}

	var payload twseStockDay
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, fmt.Errorf("twse decode: %w", err)
	}
	if payload.Stat != "OK" {
		return nil, fmt.Errorf("twse %s %s: %w (%s)", symbol, month.Format("2006-01"), ErrNoData, payload.Stat)
	}

	bars := make([]model.OHLCV, 0, len(payload.Data))
	for _, row := range payload.Data {
		bar, ok := parseTWSERow(row)
		if !ok {
			continue
		}
		bars = append(bars, bar)
	}
	return bars, nil
}

// parseTWSERow reads one STOCK_DAY row:
// date(ROC), shares, value, open, high, low, close, change, transactions.
func parseTWSERow(row []string) (model.OHLCV, bool) {
	if len(row) < 7 {
		return model.OHLCV{}, false
	}
	date, err := parseROCDate(row[0])
	if err != nil {
		return model.OHLCV{}, false
	}
	shares, okV := parseTWSENumber(row[1])
	open, okO := parseTWSENumber(row[3])
	high, okH := parseTWSENumber(row[4])
	low, okL := parseTWSENumber(row[5])
	close, okC := parseTWSENumber(row[6])
	if !okV || !okO || !okH || !okL || !okC {
		return model.OHLCV{}, false // "--": no trade that day
	}
	return model.OHLCV{
		Time:   date,
		Open:   open,
		High:   high,
		Low:    low,
		Close:  close,
		Volume: int64(shares),
	}, true
}

// parseROCDate converts a Minguo date such as "113/01/02" to 2024-01-02 Taipei time.
func parseROCDate(s string) (time.Time, error) {
	parts := strings.Split(strings.TrimSpace(s), "/")
	if len(parts) != 3 {
		return time.Time{}, fmt.Errorf("bad roc date %q", s)
	}
	y, err1 := strconv.Atoi(parts[0])
	m, err2 := strconv.Atoi(parts[1])
	d, err3 := strconv.Atoi(parts[2])
	if err1 != nil || err2 != nil || err3 != nil || m < 1 || m > 12 || d < 1 || d > 31 {
		return time.Time{}, fmt.Errorf("bad roc date %q", s)
	}
	return time.Date(y+1911, time.Month(m), d, 0, 0, 0, 0, taipeiZone), nil
}

func parseTWSENumber(s string) (float64, bool) {
	s = strings.ReplaceAll(strings.TrimSpace(s), ",", "")
	if s == "" || strings.HasPrefix(s, "--") {
		return 0, false
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}
