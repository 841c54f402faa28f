package output

import "Relay_Selector_Go/pkg/model"

// HumanReadableResult 定义了一个对人类友好的、用于最终文件输出的数据结构
type HumanReadableResult struct {
	Host       string   `json:"Host"`
	Port       int      `json:"Port"`
	Protocol   string   `json:"Protocol"`
	Country    string   `json:"Country"`
	City       string   `json:"City"`
	DistanceKm float64  `json:"DistanceKm"`
	MedianMS   *float64 `json:"MedianMS"` // 无成功探测时为 null
	MeanMS     *float64 `json:"MeanMS"`
	SmoothedMS *float64 `json:"SmoothedMS"`
	Successes  int      `json:"Successes"`
	Failures   int      `json:"Failures"`
	LossRate   float64  `json:"LossRate"` // 丢包率
	Owned      bool     `json:"Owned"`
	Cancelled  bool     `json:"Cancelled"`
}

// ToHumanReadable 将排序后的统计结果转换为对人类友好的格式
func ToHumanReadable(results []*model.EndpointStats) []HumanReadableResult {
	humanResults := make([]HumanReadableResult, len(results))
	for i, r := range results {
		humanResults[i] = HumanReadableResult{
			Host:       r.Endpoint.Host,
			Port:       r.Endpoint.Port,
			Protocol:   r.Endpoint.Protocol.String(),
			Country:    r.Endpoint.Country,
			City:       r.Endpoint.City,
			DistanceKm: r.Endpoint.DistanceKm,
			MedianMS:   r.MedianMs,
			MeanMS:     r.MeanMs,
			SmoothedMS: r.SmoothedMs,
			Successes:  r.SuccessCount,
			Failures:   r.FailureCount,
			LossRate:   r.LossRate(),
			Owned:      r.Endpoint.Owned,
			Cancelled:  r.Cancelled,
		}
	}
	return humanResults
}
