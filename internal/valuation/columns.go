package valuation

import "strings"

// Canonical fields of a valuation table.
const (
	FieldDate       = "date"
	FieldPE         = "pe"
	FieldPercentile = "pe_percentile"
	FieldClose      = "close"
)

// Aliases lists the known vendor spellings of each canonical field in priority order.
var Aliases = map[string][]string{
	FieldDate:       {"日期", "Date", "date", "交易日期", "trade_date"},
	FieldPE:         {"PE-TTM正数等权", "PE-TTM", "市盈率TTM", "PE", "pe"},
	FieldPercentile: {"PE-TTM 分位点", "PE-TTM分位点", "分位点", "百分位", "pe_percentile"},
	FieldClose:      {"收盘点位", "收盘价", "收盘", "Close", "close"},
}

// resolveColumns maps each canonical field to a column index, or -1 when absent.
// Exact matches win over case-insensitive ones; within each pass the alias order decides.
func resolveColumns(columns []string) map[string]int {
	trimmed := make([]string, len(columns))
	for i, c := range columns {
		trimmed[i] = strings.TrimSpace(strings.TrimPrefix(c, "\ufeff"))
	}

	out := make(map[string]int, len(Aliases))
	for field, candidates := range Aliases {
		out[field] = findColumn(trimmed, candidates)
	}
	return out
}

func findColumn(columns, candidates []string) int {
	for _, cand := range candidates {
		for i, c := range columns {
			if c == cand {
				return i
			}
		}
	}
	for _, cand := range candidates {
		for i, c := range columns {
			if strings.EqualFold(c, cand) {
				return i
			}
		}
	}
	return -1
}
