package model

// PivotLevels holds the five CDP levels projected for the next session.
type PivotLevels struct {
	CDP float64 `json:"cdp"`
	AH  float64 `json:"ah"` // outer resistance
	NH  float64 `json:"nh"` // inner resistance
	NL  float64 `json:"nl"` // inner support
	AL  float64 `json:"al"` // outer support
}

// ScanCriterion filters scan candidates. MaxPrice <= 0 disables the price ceiling.
type ScanCriterion struct {
	MinVolume        int64   `json:"min_volume"`
	MinChangePercent float64 `json:"min_change_percent"`
	MaxPrice         float64 `json:"max_price"`
}

// Match reports whether a bar with the given change percent passes the criterion.
func (c ScanCriterion) Match(bar OHLCV, changePercent float64) bool {
	if bar.Volume < c.MinVolume {
		return false
	}
	if changePercent < c.MinChangePercent {
		return false
	}
	if c.MaxPrice > 0 && bar.Close > c.MaxPrice {
		return false
	}
	return true
}

// ScanResult is one ranked row of a scan.
type ScanResult struct {
	Rank          int         `json:"rank"`
	InstrumentID  string      `json:"instrument_id"`
	Name          string      `json:"name"`
	Bar           OHLCV       `json:"bar"`
	Volume        int64       `json:"volume"`
	ChangePercent float64     `json:"change_percent"`
	Levels        PivotLevels `json:"levels"`
}

// Turnover is close times volume.
func (r ScanResult) Turnover() float64 {
	return r.Bar.Close * float64(r.Volume)
}
