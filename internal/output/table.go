package output

import (
	"fmt"
	"strconv"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"

	"Relay_Selector_Go/internal/ranker"
	"Relay_Selector_Go/pkg/model"
)

var (
	headerStyle      = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("99")).Padding(0, 1)
	cellStyle        = lipgloss.NewStyle().Padding(0, 1)
	unreachableStyle = cellStyle.Foreground(lipgloss.Color("240"))
	borderStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("238"))
)

// 表格列顺序
const (
	colIndex = iota
	colHost
	colProtocol
	colCountry
	colCity
	colDistance
	colMedian
	colMean
	colLoss
)

// RenderTable 把排序结果渲染为终端表格，排序依据所在列的表头带 " *" 标记
func RenderTable(results []*model.EndpointStats, sortBy ranker.SortKey) string {
	headers := []string{"#", "IP", "Protocol", "Country", "City", "Distance", "RTT median", "RTT mean", "Loss"}
	if col, ok := sortColumn(sortBy); ok {
		headers[col] += " *"
	}

	rows := make([][]string, 0, len(results))
	for i, r := range results {
		rows = append(rows, []string{
			strconv.Itoa(i + 1),
			r.Endpoint.Host,
			r.Endpoint.Protocol.String(),
			r.Endpoint.Country,
			r.Endpoint.City,
			fmt.Sprintf("%.0f km", r.Endpoint.DistanceKm),
			formatRTT(r.MedianMs),
			formatRTT(r.MeanMs),
			fmt.Sprintf("%.0f%%", r.LossRate()*100),
		})
	}

	t := table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(borderStyle).
		Headers(headers...).
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return headerStyle
			}
			if row >= 0 && row < len(results) && !results[row].Reachable() {
				return unreachableStyle
			}
			return cellStyle
		})

	return t.String()
}

func sortColumn(k ranker.SortKey) (int, bool) {
	switch k {
	case ranker.SortByMedian:
		return colMedian, true
	case ranker.SortByMean:
		return colMean, true
	case ranker.SortByCountry:
		return colCountry, true
	case ranker.SortByCity:
		return colCity, true
	case ranker.SortByDistance:
		return colDistance, true
	}
	return 0, false
}

func formatRTT(v *float64) string {
	if v == nil {
		return "-"
	}
	return fmt.Sprintf("%.1f ms", *v)
}
