package output

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"

	"Relay_Selector_Go/pkg/model"
)

var csvHeader = []string{
	"Host",
	"Port",
	"Protocol",
	"Country",
	"City",
	"Distance (km)",
	"Median (ms)",
	"Mean (ms)",
	"Loss Rate (%)",
	"Owned",
}

// WriteCSVFile 将最终结果列表写入到指定的 CSV 文件中
func WriteCSVFile(filePath string, results []*model.EndpointStats) error {
	file, err := os.Create(filePath)
	if err != nil {
		return fmt.Errorf("无法创建 CSV 文件 '%s': %w", filePath, err)
	}
	defer file.Close()

	return WriteCSV(file, results)
}

// WriteCSV writes the header and one row per endpoint. Absent RTTs are left
// empty.
func WriteCSV(w io.Writer, results []*model.EndpointStats) error {
	writer := csv.NewWriter(w)

	if err := writer.Write(csvHeader); err != nil {
		return fmt.Errorf("写入 CSV 表头失败: %w", err)
	}

	for _, r := range results {
		row := []string{
			r.Endpoint.Host,
			strconv.Itoa(r.Endpoint.Port),
			r.Endpoint.Protocol.String(),
			r.Endpoint.Country,
			r.Endpoint.City,
			fmt.Sprintf("%.1f", r.Endpoint.DistanceKm),
			optionalMs(r.MedianMs, ""),
			optionalMs(r.MeanMs, ""),
			fmt.Sprintf("%.2f", r.LossRate()*100),
			strconv.FormatBool(r.Endpoint.Owned),
		}
		if err := writer.Write(row); err != nil {
			return fmt.Errorf("写入 CSV 行失败: %w", err)
		}
	}

	writer.Flush()
	return writer.Error()
}

func optionalMs(v *float64, absent string) string {
	if v == nil {
		return absent
	}
	return fmt.Sprintf("%.2f", *v)
}
