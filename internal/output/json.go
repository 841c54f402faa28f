package output

import (
	"encoding/json"
	"fmt"
	"os"

	"Relay_Selector_Go/pkg/model"
)

// WriteJSONFile 将最终结果列表写入到指定的 JSON 文件中
func WriteJSONFile(filePath string, results []*model.EndpointStats) error {
	data, err := json.MarshalIndent(ToHumanReadable(results), "", "  ")
	if err != nil {
		return fmt.Errorf("无法将结果序列化为 JSON: %w", err)
	}

	if err := os.WriteFile(filePath, data, 0644); err != nil {
		return fmt.Errorf("无法写入 JSON 文件 '%s': %w", filePath, err)
	}

	return nil
}
