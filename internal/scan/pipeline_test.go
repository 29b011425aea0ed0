package scan

import (
	"fmt"
	"math"
	"testing"

	"CDPRadar/internal/model"
)

// barWithChange builds a valid bar whose change percent is exactly pct.
func barWithChange(pct float64, volume int64) model.OHLCV {
	open := 100.0
	close := open * (1 + pct/100)
	high := math.Max(open, close) + 1
	low := math.Min(open, close) - 1
	return model.OHLCV{Open: open, High: high, Low: low, Close: close, Volume: volume}
}

func TestRun_DivisionGuardExcluded(t *testing.T) {
	p := NewPipeline(model.ScanCriterion{}, 20)
	bars := map[string]model.OHLCV{
		"2330": barWithChange(3, 5000),
		"2317": {Open: 0, High: 110, Low: 100, Close: 105, Volume: 9000},
	}
	rep := p.Run([]string{"2330", "2317"}, bars, nil)

	if len(rep.Results) != 1 || rep.Results[0].InstrumentID != "2330" {
		t.Fatalf("expected only 2330 in results, got %+v", rep.Results)
	}
	if got := rep.SkipCounts()[SkipDivisionGuard]; got != 1 {
		t.Errorf("expected 1 division_guard skip, got %d", got)
	}
}

func TestRun_MissingAndMalformedSkipped(t *testing.T) {
	p := NewPipeline(model.ScanCriterion{}, 20)
	bars := map[string]model.OHLCV{
		"2330": barWithChange(1, 100),
		"2603": {Open: 50, High: 40, Low: 45, Close: 42, Volume: 100}, // high < low
		"3231": {},
	}
	rep := p.Run([]string{"2330", "2603", "3231", "9999"}, bars, nil)

	if len(rep.Results) != 1 {
		t.Fatalf("expected 1 result, got %d", len(rep.Results))
	}
	counts := rep.SkipCounts()
	if counts[SkipMalformed] != 1 {
		t.Errorf("expected 1 malformed skip, got %d", counts[SkipMalformed])
	}
	if counts[SkipMissingData] != 2 {
		t.Errorf("expected 2 missing_data skips, got %d", counts[SkipMissingData])
	}
	if rep.Evaluated != 4 {
		t.Errorf("expected 4 evaluated, got %d", rep.Evaluated)
	}
}

func TestRun_NegativeOpenMalformed(t *testing.T) {
	p := NewPipeline(model.ScanCriterion{}, 20)
	bars := map[string]model.OHLCV{
		"2330": {Open: -100, High: 110, Low: 100, Close: 105, Volume: 100},
	}
	rep := p.Run([]string{"2330"}, bars, nil)

	if len(rep.Results) != 0 {
		t.Fatalf("expected no results, got %+v", rep.Results)
	}
	if len(rep.Skipped) != 1 || rep.Skipped[0].Reason != SkipMalformed {
		t.Errorf("expected a malformed skip, got %+v", rep.Skipped)
	}
}

func TestRun_StableOnTies(t *testing.T) {
	p := NewPipeline(model.ScanCriterion{}, 20)
	bars := map[string]model.OHLCV{
		"A": barWithChange(5, 100),
		"B": barWithChange(5, 900),
		"C": barWithChange(3, 100),
	}
	rep := p.Run([]string{"C", "A", "B"}, bars, nil)

	got := []string{}
	for _, r := range rep.Results {
		got = append(got, r.InstrumentID)
	}
	want := []string{"A", "B", "C"}
	if fmt.Sprint(got) != fmt.Sprint(want) {
		t.Errorf("expected order %v, got %v", want, got)
	}
	for i, r := range rep.Results {
		if r.Rank != i+1 {
			t.Errorf("%s: expected rank %d, got %d", r.InstrumentID, i+1, r.Rank)
		}
	}
}

func TestRun_TruncatesToTopN(t *testing.T) {
	p := NewPipeline(model.ScanCriterion{}, 20)
	bars := make(map[string]model.OHLCV)
	var ids []string
	for i := 0; i < 50; i++ {
		id := fmt.Sprintf("%04d", i)
		ids = append(ids, id)
		bars[id] = barWithChange(float64(i)/10, 1000)
	}
	rep := p.Run(ids, bars, nil)

	if len(rep.Results) != 20 {
		t.Fatalf("expected 20 results, got %d", len(rep.Results))
	}
	// highest change belongs to the last id
	for i, r := range rep.Results {
		want := fmt.Sprintf("%04d", 49-i)
		if r.InstrumentID != want {
			t.Errorf("rank %d: expected %s, got %s", i+1, want, r.InstrumentID)
		}
	}
}

func TestRun_DefaultTopN(t *testing.T) {
	p := &Pipeline{}
	bars := make(map[string]model.OHLCV)
	var ids []string
	for i := 0; i < 25; i++ {
		id := fmt.Sprintf("T%d", i)
		ids = append(ids, id)
		bars[id] = barWithChange(1, 10)
	}
	if got := len(p.Run(ids, bars, nil).Results); got != DefaultTopN {
		t.Errorf("expected %d results, got %d", DefaultTopN, got)
	}
}

func TestRun_CriterionFilters(t *testing.T) {
	crit := model.ScanCriterion{MinVolume: 1000, MinChangePercent: 2, MaxPrice: 104}
	p := NewPipeline(crit, 20)
	bars := map[string]model.OHLCV{
		"ok":        barWithChange(3, 2000), // close 103
		"thin":      barWithChange(3, 999),  // volume too low
		"flat":      barWithChange(1, 5000), // change too small
		"expensive": barWithChange(5, 5000), // close 105 > 104
		"edge":      barWithChange(2, 1000), // exactly on both thresholds
	}
	rep := p.Run([]string{"ok", "thin", "flat", "expensive", "edge"}, bars, nil)

	if len(rep.Results) != 2 {
		t.Fatalf("expected 2 results, got %+v", rep.Results)
	}
	if rep.Results[0].InstrumentID != "ok" || rep.Results[1].InstrumentID != "edge" {
		t.Errorf("unexpected ranking: %+v", rep.Results)
	}
	if rep.SkipCounts()[SkipFiltered] != 3 {
		t.Errorf("expected 3 filtered, got %d", rep.SkipCounts()[SkipFiltered])
	}
}

func TestRun_AttachesLevelsAndNames(t *testing.T) {
	p := NewPipeline(model.ScanCriterion{}, 5)
	bars := map[string]model.OHLCV{
		"2330": {Open: 221, High: 225, Low: 220, Close: 222, Volume: 30000},
	}
	rep := p.Run([]string{"2330"}, bars, map[string]string{"2330": "台積電"})

	if len(rep.Results) != 1 {
		t.Fatalf("expected 1 result, got %d", len(rep.Results))
	}
	r := rep.Results[0]
	if r.Name != "台積電" {
		t.Errorf("expected name 台積電, got %q", r.Name)
	}
	want := model.PivotLevels{CDP: 222.25, AH: 227.25, NH: 224.5, NL: 219.5, AL: 217.25}
	if r.Levels != want {
		t.Errorf("expected %+v, got %+v", want, r.Levels)
	}
	if r.Volume != 30000 {
		t.Errorf("expected volume 30000, got %d", r.Volume)
	}
}

func TestRun_DuplicatesEvaluatedOnce(t *testing.T) {
	p := NewPipeline(model.ScanCriterion{}, 20)
	bars := map[string]model.OHLCV{"2330": barWithChange(1, 10)}
	rep := p.Run([]string{"2330", "2330"}, bars, nil)
	if len(rep.Results) != 1 || rep.Evaluated != 1 {
		t.Errorf("expected a single evaluation, got %d results / %d evaluated", len(rep.Results), rep.Evaluated)
	}
}

func TestRun_SortKeys(t *testing.T) {
	bars := map[string]model.OHLCV{
		"big":   barWithChange(1, 9000),
		"fast":  barWithChange(9, 100),
		"pricy": {Open: 990, High: 1010, Low: 980, Close: 1000, Volume: 1000},
	}
	ids := []string{"big", "fast", "pricy"}

	tests := []struct {
		key   string
		first string
	}{
		{"change_percent", "fast"},
		{"volume", "big"},
		{"turnover", "pricy"},
	}
	for _, tt := range tests {
		key, err := ParseSortKey(tt.key)
		if err != nil {
			t.Fatalf("parse %s: %v", tt.key, err)
		}
		p := &Pipeline{Order: key, TopN: 3}
		rep := p.Run(ids, bars, nil)
		if rep.Results[0].InstrumentID != tt.first {
			t.Errorf("%s: expected %s first, got %s", tt.key, tt.first, rep.Results[0].InstrumentID)
		}
	}

	if _, err := ParseSortKey("concentration"); err == nil {
		t.Error("expected error for unknown sort key")
	}
}

func TestRun_IndependentOfMapConstruction(t *testing.T) {
	p := NewPipeline(model.ScanCriterion{}, 3)
	ids := []string{"a", "b", "c", "d"}
	first := map[string]model.OHLCV{}
	second := map[string]model.OHLCV{}
	for i, id := range ids {
		first[id] = barWithChange(float64(i%2), 10)
	}
	for i := len(ids) - 1; i >= 0; i-- {
		second[ids[i]] = barWithChange(float64(i%2), 10)
	}
	a := p.Run(ids, first, nil)
	b := p.Run(ids, second, nil)
	for i := range a.Results {
		if a.Results[i].InstrumentID != b.Results[i].InstrumentID {
			t.Fatalf("ranking differs at %d: %s vs %s", i, a.Results[i].InstrumentID, b.Results[i].InstrumentID)
		}
	}
}
