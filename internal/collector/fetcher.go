package collector

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"time"

	"CDPRadar/internal/model"
)

// ErrNoData is returned when a provider has no bars for a symbol.
var ErrNoData = errors.New("no data returned")

// Fetcher defines the interface for fetching daily bars.
// Bars are returned in chronological order.
type Fetcher interface {
	FetchDailyBars(ctx context.Context, symbol string, days int) ([]model.OHLCV, error)
	Name() string
}

func newHTTPClient(proxyURL string, timeout time.Duration) *http.Client {
	transport := &http.Transport{}
	if proxyURL != "" {
		if u, err := url.Parse(proxyURL); err == nil {
			transport.Proxy = http.ProxyURL(u)
		}
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &http.Client{Timeout: timeout, Transport: transport}
}

func trimBars(bars []model.OHLCV, n int) []model.OHLCV {
	if n > 0 && len(bars) > n {
		return bars[len(bars)-n:]
	}
	return bars
}
