package ranker

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"Relay_Selector_Go/pkg/model"
)

func ms(v float64) *float64 { return &v }

func stats(host, country string, p model.Protocol, distance float64, median, mean *float64) *model.EndpointStats {
	st := &model.EndpointStats{
		Endpoint: model.Endpoint{Host: host, Port: 80, Protocol: p, Country: country, City: country + "-city", DistanceKm: distance},
		MedianMs: median,
		MeanMs:   mean,
	}
	if median != nil {
		st.SuccessCount = 1
	} else {
		st.FailureCount = 1
	}
	return st
}

func resultOf(ss ...*model.EndpointStats) model.RunResult {
	r := model.RunResult{}
	for _, s := range ss {
		r[s.Endpoint.Key()] = s
	}
	return r
}

func hosts(ranked []*model.EndpointStats) []string {
	out := make([]string, len(ranked))
	for i, s := range ranked {
		out[i] = s.Endpoint.Host
	}
	return out
}

func TestRank_DefaultMedianWithUnreachableLast(t *testing.T) {
	r := resultOf(
		stats("10.0.0.1", "Sweden", model.ProtocolWireGuard, 10, ms(30), ms(31)),
		stats("10.0.0.2", "Norway", model.ProtocolOpenVPN, 400, ms(12), ms(40)),
		stats("10.0.0.3", "Denmark", model.ProtocolWireGuard, 300, nil, nil),
		stats("10.0.0.4", "Finland", model.ProtocolWireGuard, 200, ms(20), ms(20)),
	)

	ranked := Rank(r, Options{IncludeUnreachable: true})
	assert.Equal(t, []string{"10.0.0.2", "10.0.0.4", "10.0.0.1", "10.0.0.3"}, hosts(ranked))

	ranked = Rank(r, Options{})
	assert.Equal(t, []string{"10.0.0.2", "10.0.0.4", "10.0.0.1"}, hosts(ranked))
}

func TestRank_SortKeys(t *testing.T) {
	r := resultOf(
		stats("10.0.0.1", "Sweden", model.ProtocolWireGuard, 10, ms(30), ms(31)),
		stats("10.0.0.2", "Norway", model.ProtocolOpenVPN, 400, ms(12), ms(40)),
		stats("10.0.0.4", "Finland", model.ProtocolWireGuard, 200, ms(20), ms(20)),
	)

	assert.Equal(t, []string{"10.0.0.4", "10.0.0.1", "10.0.0.2"}, hosts(Rank(r, Options{SortBy: SortByMean})))
	assert.Equal(t, []string{"10.0.0.4", "10.0.0.2", "10.0.0.1"}, hosts(Rank(r, Options{SortBy: SortByCountry})))
	assert.Equal(t, []string{"10.0.0.1", "10.0.0.4", "10.0.0.2"}, hosts(Rank(r, Options{SortBy: SortByDistance})))
}

func TestRank_Filters(t *testing.T) {
	r := resultOf(
		stats("10.0.0.1", "Sweden", model.ProtocolWireGuard, 10, ms(30), ms(31)),
		stats("10.0.0.2", "Norway", model.ProtocolOpenVPN, 400, ms(12), ms(40)),
		stats("10.0.0.4", "Finland", model.ProtocolWireGuard, 200, ms(20), ms(20)),
	)

	assert.Equal(t, []string{"10.0.0.2", "10.0.0.4"}, hosts(Rank(r, Options{MaxRTTMs: 20})))
	assert.Equal(t, []string{"10.0.0.4", "10.0.0.1"}, hosts(Rank(r, Options{Protocol: model.ProtocolWireGuard})))
	assert.Equal(t, []string{"10.0.0.1"}, hosts(Rank(r, Options{MaxDistanceKm: 200})))
}

func TestParseSortKey(t *testing.T) {
	for _, k := range []SortKey{SortByMedian, SortByMean, SortByCountry, SortByCity, SortByDistance} {
		got, err := ParseSortKey(k.String())
		require.NoError(t, err)
		assert.Equal(t, k, got)
	}
	got, err := ParseSortKey("")
	require.NoError(t, err)
	assert.Equal(t, SortByMedian, got)

	_, err = ParseSortKey("rtt")
	assert.Error(t, err)
}
