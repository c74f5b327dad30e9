package agents

import (
	"fmt"
	"strings"

	"stock-advisor/internal/analysis/indicators"
	"stock-advisor/internal/models"
)

// noData marks readings without enough history.
const noData = "không đủ dữ liệu"

const systemPrompt = `Bạn là chuyên gia phân tích chứng khoán. Hãy kết hợp phân tích kỹ thuật và phân tích cơ bản để đưa ra khuyến nghị.
Chỉ trả lời bằng MỘT đối tượng JSON hợp lệ, không kèm văn bản nào khác.`

const responseFormat = `Trả lời theo đúng định dạng JSON sau:
{
  "signal": "BUY" | "SELL" | "HOLD",
  "confidence": <số từ 0 đến 100>,
  "summary": "<tóm tắt 1-2 câu>",
  "targetPrice": <giá mục tiêu hoặc null>,
  "stopLoss": <giá cắt lỗ hoặc null>,
  "shortTerm": {"signal": "BUY" | "SELL" | "HOLD", "confidence": <0-100>},
  "longTerm": {"signal": "BUY" | "SELL" | "HOLD", "confidence": <0-100>},
  "technicalAnalysis": ["<nhận định>", ...],
  "fundamentalAnalysis": ["<nhận định>", ...],
  "risks": ["<rủi ro>", ...],
  "opportunities": ["<cơ hội>", ...]
}`

var ratioLabels = map[string]string{
	models.RatioPE:            "P/E",
	models.RatioPB:            "P/B",
	models.RatioROE:           "ROE (%)",
	models.RatioEPS:           "EPS",
	models.RatioBVPS:          "Giá trị sổ sách/cổ phiếu",
	models.RatioDividendYield: "Tỷ suất cổ tức (%)",
	models.RatioMarketCap:     "Vốn hóa",
}

// BuildPrompt renders the analysis request. Undefined readings are written
// out as missing data rather than zero.
func BuildPrompt(req AnalysisRequest) string {
	snap := req.Snapshot
	var sb strings.Builder

	fmt.Fprintf(&sb, "Mã cổ phiếu: %s\n", req.Symbol)
	fmt.Fprintf(&sb, "Giá hiện tại: %.2f (ngày %s, %d phiên dữ liệu)\n\n",
		snap.CurrentPrice, snap.AsOf.Format("2006-01-02"), snap.Bars)

	sb.WriteString("## Chỉ báo kỹ thuật\n")
	fmt.Fprintf(&sb, "- MA%d: %s\n", snap.MAShortPeriod, formatValue(snap.MAShort, "%.2f"))
	fmt.Fprintf(&sb, "- MA%d: %s\n", snap.MALongPeriod, formatValue(snap.MALong, "%.2f"))
	if snap.MAShort.Valid && snap.MALong.Valid {
		switch {
		case snap.Trend.BarsSinceGoldenCross >= 0:
			fmt.Fprintf(&sb, "- Giao cắt vàng: %d phiên trước\n", snap.Trend.BarsSinceGoldenCross)
		case snap.Trend.ShortAboveLong:
			fmt.Fprintf(&sb, "- MA%d nằm trên MA%d\n", snap.MAShortPeriod, snap.MALongPeriod)
		default:
			fmt.Fprintf(&sb, "- MA%d nằm dưới MA%d\n", snap.MAShortPeriod, snap.MALongPeriod)
		}
	}
	fmt.Fprintf(&sb, "- Bollinger Bands: trên %s, giữa %s, dưới %s\n",
		formatValue(snap.Bollinger.Upper, "%.2f"),
		formatValue(snap.Bollinger.Middle, "%.2f"),
		formatValue(snap.Bollinger.Lower, "%.2f"))
	for _, p := range snap.MomentumPeriods() {
		fmt.Fprintf(&sb, "- Biến động giá %d phiên: %s\n", p, formatValue(snap.Momentum[p], "%+.2f%%"))
	}
	fmt.Fprintf(&sb, "- Khối lượng: hiện tại %.0f, trung bình %d phiên %s, tỷ lệ %s\n",
		snap.Volume.Current, snap.Volume.Period,
		formatValue(snap.Volume.Average, "%.0f"),
		formatValue(snap.Volume.Ratio, "%.2fx"))
	fmt.Fprintf(&sb, "- Đỉnh/đáy 52 tuần: %s / %s\n",
		formatValue(snap.Week52.High, "%.2f"),
		formatValue(snap.Week52.Low, "%.2f"))

	sb.WriteString("\n## Chỉ số cơ bản\n")
	if len(req.Fundamentals) == 0 {
		fmt.Fprintf(&sb, "- %s\n", noData)
	}
	for _, code := range req.Fundamentals.Codes() {
		label, ok := ratioLabels[code]
		if !ok {
			label = code
		}
		fmt.Fprintf(&sb, "- %s: %.2f\n", label, req.Fundamentals[code])
	}

	sb.WriteString("\n## Giá mục tiêu của các chuyên gia\n")
	if req.Targets.HasMean() {
		fmt.Fprintf(&sb, "- Trung bình %.2f (thấp %.2f, cao %.2f, %d chuyên gia)\n",
			req.Targets.Mean, req.Targets.Low, req.Targets.High, req.Targets.Count)
	} else {
		fmt.Fprintf(&sb, "- %s\n", noData)
	}

	sb.WriteString("\n")
	sb.WriteString(responseFormat)
	return sb.String()
}

func formatValue(v indicators.Value, format string) string {
	if !v.Valid {
		return noData
	}
	return fmt.Sprintf(format, v.V)
}
