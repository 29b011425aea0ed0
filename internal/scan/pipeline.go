package scan

import (
	"errors"
	"sort"

	"CDPRadar/internal/calculator"
	"CDPRadar/internal/model"
)

// DefaultTopN is the number of rows a scan keeps when TopN is unset.
const DefaultTopN = 20

// SkipReason explains why an instrument did not make it into the ranking.
type SkipReason string

const (
	SkipMissingData   SkipReason = "missing_data"
	SkipMalformed     SkipReason = "malformed"
	SkipDivisionGuard SkipReason = "division_guard"
	SkipFiltered      SkipReason = "filtered"
)

// Skip records one excluded instrument.
type Skip struct {
	InstrumentID string     `json:"instrument_id"`
	Reason       SkipReason `json:"reason"`
	Detail       string     `json:"detail,omitempty"`
}

// Outcome is the per-instrument evaluation result: either Result or Skip is set.
type Outcome struct {
	Result *model.ScanResult
	Skip   *Skip
}

// Report is the output of one scan run.
type Report struct {
	Results   []model.ScanResult `json:"results"`
	Skipped   []Skip             `json:"skipped"`
	Evaluated int                `json:"evaluated"`
}

// SkipCounts tallies skipped instruments by reason.
func (r *Report) SkipCounts() map[SkipReason]int {
	out := make(map[SkipReason]int)
	for _, s := range r.Skipped {
		out[s.Reason]++
	}
	return out
}

// Pipeline filters, prices and ranks a batch of bars.
type Pipeline struct {
	Criterion model.ScanCriterion
	Order     SortKey
	TopN      int
}

// NewPipeline creates a Pipeline ranked by change percent.
func NewPipeline(criterion model.ScanCriterion, topN int) *Pipeline {
	return &Pipeline{Criterion: criterion, Order: ByChangePercent, TopN: topN}
}

// Evaluate runs the filter and pivot steps for a single instrument.
func (p *Pipeline) Evaluate(id, name string, bar model.OHLCV, ok bool) Outcome {
	if !ok || bar.IsEmpty() {
		return skip(id, SkipMissingData, "")
	}
	if err := bar.Validate(); err != nil {
		return skip(id, SkipMalformed, err.Error())
	}

	change, err := calculator.ChangePercent(bar.Open, bar.Close)
	if errors.Is(err, calculator.ErrDivisionGuard) {
		return skip(id, SkipDivisionGuard, "")
	}
	if err != nil {
		return skip(id, SkipMalformed, err.Error())
	}

	if !p.Criterion.Match(bar, change) {
		return skip(id, SkipFiltered, "")
	}

	levels, err := calculator.CalculateCDPFromBar(bar)
	if err != nil {
		return skip(id, SkipMalformed, err.Error())
	}

	if name == "" {
		name = id
	}
	return Outcome{Result: &model.ScanResult{
		InstrumentID:  id,
		Name:          name,
		Bar:           bar,
		Volume:        bar.Volume,
		ChangePercent: change,
		Levels:        levels,
	}}
}

// Run evaluates every instrument, ranks the survivors and keeps the top N.
// Missing or malformed entries are recorded in Report.Skipped; Run never fails.
func (p *Pipeline) Run(instruments []string, bars map[string]model.OHLCV, names map[string]string) *Report {
	report := &Report{Results: []model.ScanResult{}, Skipped: []Skip{}}
	seen := make(map[string]struct{}, len(instruments))

	for _, id := range instruments {
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		report.Evaluated++

		bar, ok := bars[id]
		out := p.Evaluate(id, names[id], bar, ok)
		if out.Skip != nil {
			report.Skipped = append(report.Skipped, *out.Skip)
			continue
		}
		report.Results = append(report.Results, *out.Result)
	}

	order := p.Order
	if order == nil {
		order = ByChangePercent
	}
	sort.SliceStable(report.Results, func(i, j int) bool {
		return order(report.Results[i], report.Results[j])
	})

	n := p.TopN
	if n <= 0 {
		n = DefaultTopN
	}
	if len(report.Results) > n {
		report.Results = report.Results[:n]
	}
	for i := range report.Results {
		report.Results[i].Rank = i + 1
	}
	return report
}

func skip(id string, reason SkipReason, detail string) Outcome {
	return Outcome{Skip: &Skip{InstrumentID: id, Reason: reason, Detail: detail}}
}
