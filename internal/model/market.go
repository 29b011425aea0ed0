package model

import (
	"errors"
	"fmt"
	"math"
	"time"
)

// ErrInvalidBar is returned when a bar breaks the price invariants.
var ErrInvalidBar = errors.New("invalid bar")

// OHLCV represents a single daily candlestick bar.
// Open is 0 when the data source did not report it.
type OHLCV struct {
	Time   time.Time `json:"time"`
	Open   float64   `json:"open"`
	High   float64   `json:"high"`
	Low    float64   `json:"low"`
	Close  float64   `json:"close"`
	Volume int64     `json:"volume"`
}

// Validate checks high >= low >= 0, a non-negative open and that every price is finite.
func (b OHLCV) Validate() error {
	for _, v := range []float64{b.Open, b.High, b.Low, b.Close} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("%w: non-finite price", ErrInvalidBar)
		}
	}
	if b.Low < 0 {
		return fmt.Errorf("%w: low %.2f is negative", ErrInvalidBar, b.Low)
	}
	if b.Open < 0 {
		return fmt.Errorf("%w: open %.2f is negative", ErrInvalidBar, b.Open)
	}
	if b.High < b.Low {
		return fmt.Errorf("%w: high %.2f below low %.2f", ErrInvalidBar, b.High, b.Low)
	}
	if b.Volume < 0 {
		return fmt.Errorf("%w: negative volume", ErrInvalidBar)
	}
	return nil
}

// IsEmpty reports whether the bar carries no prices at all (holiday rows).
func (b OHLCV) IsEmpty() bool {
	return b.Open == 0 && b.High == 0 && b.Low == 0 && b.Close == 0
}

// Instrument is a watchlist entry.
type Instrument struct {
	ID   string `yaml:"id" json:"id" validate:"required"`
	Name string `yaml:"name" json:"name"`
}

// Watchlist is the ordered list of instruments a scan covers.
type Watchlist []Instrument

// IDs returns the instrument ids in watchlist order.
func (w Watchlist) IDs() []string {
	out := make([]string, len(w))
	for i, in := range w {
		out[i] = in.ID
	}
	return out
}

// Names returns an id -> display name lookup.
func (w Watchlist) Names() map[string]string {
	out := make(map[string]string, len(w))
	for _, in := range w {
		out[in.ID] = in.Name
	}
	return out
}
