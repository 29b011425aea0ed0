package notifier

import (
	"fmt"
	"html"
	"strings"

	"CDPRadar/internal/model"
	"CDPRadar/internal/scan"
)

// sharesPerLot is the TWSE board lot; volumes are displayed in lots (張).
const sharesPerLot = 1000

// FormatPivotCard formats one instrument's next-session levels.
// symbol and name may be empty for a manual calculation.
func FormatPivotCard(symbol, name string, bar model.OHLCV, levels model.PivotLevels) string {
	var b strings.Builder

	title := "🧮 <b>明日點位</b>"
	if symbol != "" {
		title = fmt.Sprintf("🧮 <b>%s %s</b>", html.EscapeString(symbol), html.EscapeString(name))
	}
	b.WriteString(title)
	if !bar.Time.IsZero() {
		b.WriteString(fmt.Sprintf(" | %s", bar.Time.Format("2006-01-02")))
	}
	b.WriteString("\n\n")

	b.WriteString(fmt.Sprintf("收盤 %.2f | 高 %.2f | 低 %.2f\n", bar.Close, bar.High, bar.Low))
	if bar.Volume > 0 {
		b.WriteString(fmt.Sprintf("成交量: %d 張\n", bar.Volume/sharesPerLot))
	}
	b.WriteString("\n")

	b.WriteString(fmt.Sprintf("🔴 最高壓力 (AH): <b>%.2f</b>\n", levels.AH))
	b.WriteString(fmt.Sprintf("🟠 關鍵主力倒貨區 (NH): <b>%.2f</b>\n", levels.NH))
	b.WriteString(fmt.Sprintf("⚪ 中關價 (CDP): %.2f\n", levels.CDP))
	b.WriteString(fmt.Sprintf("🟢 買進支撐 (NL): <b>%.2f</b>\n", levels.NL))
	b.WriteString(fmt.Sprintf("🔵 最低支撐 (AL): <b>%.2f</b>\n", levels.AL))
	return b.String()
}

// FormatScanReport formats a ranked scan for the chat.
func FormatScanReport(report *scan.Report, criterion model.ScanCriterion) string {
	var b strings.Builder

	b.WriteString("📡 <b>市場雷達</b>\n")
	b.WriteString(fmt.Sprintf("條件: 量 ≥ %d 張 | 漲幅 ≥ %.2f%%", criterion.MinVolume/sharesPerLot, criterion.MinChangePercent))
	if criterion.MaxPrice > 0 {
		b.WriteString(fmt.Sprintf(" | 價 ≤ %.2f", criterion.MaxPrice))
	}
	b.WriteString("\n\n")

	if len(report.Results) == 0 {
		b.WriteString("今日無符合條件的個股\n")
	}
	for _, r := range report.Results {
		b.WriteString(fmt.Sprintf("%d. <b>%s %s</b> %+.2f%%\n",
			r.Rank, html.EscapeString(r.InstrumentID), html.EscapeString(r.Name), r.ChangePercent))
		b.WriteString(fmt.Sprintf("   量: %d 張 | 收盤: %.2f\n", r.Volume/sharesPerLot, r.Bar.Close))
		b.WriteString(fmt.Sprintf("   壓力 (NH) %.2f | 支撐 (NL) %.2f\n", r.Levels.NH, r.Levels.NL))
	}

	b.WriteString(fmt.Sprintf("\n掃描 %d 檔 | 入選 %d | 略過 %d", report.Evaluated, len(report.Results), len(report.Skipped)))
	counts := report.SkipCounts()
	if n := counts[scan.SkipMissingData] + counts[scan.SkipMalformed] + counts[scan.SkipDivisionGuard]; n > 0 {
		b.WriteString(fmt.Sprintf(" (資料異常 %d)", n))
	}
	b.WriteString("\n")
	return b.String()
}

// FormatWatchlist lists the configured instruments.
func FormatWatchlist(w model.Watchlist) string {
	var b strings.Builder
	b.WriteString(fmt.Sprintf("📋 <b>觀察清單</b> (%d)\n\n", len(w)))
	for _, inst := range w {
		b.WriteString(fmt.Sprintf("• %s %s\n", html.EscapeString(inst.ID), html.EscapeString(inst.Name)))
	}
	return b.String()
}
