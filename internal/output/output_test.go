package output

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"Relay_Selector_Go/internal/ranker"
	"Relay_Selector_Go/pkg/model"
)

func ptr(v float64) *float64 { return &v }

func sampleResults() []*model.EndpointStats {
	return []*model.EndpointStats{
		{
			Endpoint: model.Endpoint{
				Host: "185.65.134.1", Port: 80, Protocol: model.ProtocolWireGuard,
				Country: "Sweden", City: "Stockholm", DistanceKm: 12.4, Owned: true,
			},
			Samples:      make([]model.ProbeSample, 4),
			SuccessCount: 3,
			FailureCount: 1,
			MeanMs:       ptr(21.5),
			MedianMs:     ptr(20.25),
		},
		{
			Endpoint: model.Endpoint{
				Host: "185.65.135.9", Port: 80, Protocol: model.ProtocolOpenVPN,
				Country: "Sweden", City: "Malmö", DistanceKm: 513,
			},
			Samples:      make([]model.ProbeSample, 4),
			FailureCount: 4,
		},
	}
}

func TestToHumanReadable(t *testing.T) {
	hr := ToHumanReadable(sampleResults())
	require.Len(t, hr, 2)
	assert.Equal(t, "WireGuard", hr[0].Protocol)
	assert.InDelta(t, 0.25, hr[0].LossRate, 1e-9)
	require.NotNil(t, hr[0].MedianMS)
	assert.Nil(t, hr[1].MedianMS)
	assert.InDelta(t, 1.0, hr[1].LossRate, 1e-9)
}

func TestWriteJSONFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "result.json")
	require.NoError(t, WriteJSONFile(path, sampleResults()))

	data, err := os.ReadFile(path)
	require.NoError(t, err)

	var decoded []map[string]any
	require.NoError(t, json.Unmarshal(data, &decoded))
	require.Len(t, decoded, 2)
	assert.Equal(t, "185.65.134.1", decoded[0]["Host"])
	assert.Equal(t, 20.25, decoded[0]["MedianMS"])
	assert.Nil(t, decoded[1]["MedianMS"])
}

func TestWriteCSV(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteCSV(&buf, sampleResults()))

	records, err := csv.NewReader(&buf).ReadAll()
	require.NoError(t, err)
	require.Len(t, records, 3)
	assert.Equal(t, csvHeader, records[0])
	assert.Equal(t, []string{"185.65.134.1", "80", "WireGuard", "Sweden", "Stockholm", "12.4", "20.25", "21.50", "25.00", "true"}, records[1])
	assert.Equal(t, "", records[2][6])
	assert.Equal(t, "100.00", records[2][8])
}

func TestRenderTable(t *testing.T) {
	out := RenderTable(sampleResults(), ranker.SortByMedian)

	assert.Contains(t, out, "RTT median *")
	assert.NotContains(t, out, "RTT mean *")
	assert.Contains(t, out, "185.65.134.1")
	assert.Contains(t, out, "21.5 ms")

	var unreachable string
	for _, line := range strings.Split(out, "\n") {
		if strings.Contains(line, "185.65.135.9") {
			unreachable = line
		}
	}
	require.NotEmpty(t, unreachable)
	assert.Contains(t, unreachable, "-")
	assert.Contains(t, unreachable, "100%")

	out = RenderTable(sampleResults(), ranker.SortByCountry)
	assert.Contains(t, out, "Country *")
}
