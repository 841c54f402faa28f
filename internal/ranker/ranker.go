package ranker

import (
	"fmt"
	"sort"
	"strings"

	"Relay_Selector_Go/pkg/model"
)

// SortKey 排序依据
type SortKey int

const (
	SortByMedian SortKey = iota
	SortByMean
	SortByCountry
	SortByCity
	SortByDistance
)

func (k SortKey) String() string {
	switch k {
	case SortByMean:
		return "mean"
	case SortByCountry:
		return "country"
	case SortByCity:
		return "city"
	case SortByDistance:
		return "distance"
	default:
		return "median"
	}
}

// ParseSortKey accepts the names printed by String; empty means median.
func ParseSortKey(s string) (SortKey, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "median":
		return SortByMedian, nil
	case "mean":
		return SortByMean, nil
	case "country":
		return SortByCountry, nil
	case "city":
		return SortByCity, nil
	case "distance":
		return SortByDistance, nil
	default:
		return 0, fmt.Errorf("unknown sort key %q", s)
	}
}

// Options 是探测之后的过滤与排序参数
type Options struct {
	MaxRTTMs           float64 // 0 disables the RTT filter
	MaxDistanceKm      float64 // 0 disables the distance filter
	Protocol           model.Protocol
	IncludeUnreachable bool
	SortBy             SortKey
}

// Rank filters the run result and orders it by opts.SortBy. Reachable
// endpoints always come before unreachable ones; ties are broken by endpoint
// identity so the order does not depend on map iteration.
func Rank(result model.RunResult, opts Options) []*model.EndpointStats {
	ranked := make([]*model.EndpointStats, 0, len(result))
	for _, st := range result {
		if keep(st, opts) {
			ranked = append(ranked, st)
		}
	}

	sort.SliceStable(ranked, func(i, j int) bool {
		a, b := ranked[i], ranked[j]
		if a.Reachable() != b.Reachable() {
			return a.Reachable()
		}
		if c := compare(a, b, opts.SortBy); c != 0 {
			return c < 0
		}
		return a.Endpoint.Key() < b.Endpoint.Key()
	})
	return ranked
}

func keep(st *model.EndpointStats, opts Options) bool {
	ep := st.Endpoint
	if opts.Protocol != 0 && ep.Protocol != opts.Protocol {
		return false
	}
	if opts.MaxDistanceKm > 0 && ep.DistanceKm >= opts.MaxDistanceKm {
		return false
	}
	if !st.Reachable() {
		return opts.IncludeUnreachable
	}
	if opts.MaxRTTMs > 0 && *st.MedianMs > opts.MaxRTTMs {
		return false
	}
	return true
}

func compare(a, b *model.EndpointStats, key SortKey) int {
	switch key {
	case SortByMean:
		return compareOptional(a.MeanMs, b.MeanMs)
	case SortByCountry:
		return strings.Compare(a.Endpoint.Country, b.Endpoint.Country)
	case SortByCity:
		return strings.Compare(a.Endpoint.City, b.Endpoint.City)
	case SortByDistance:
		return compareFloat(a.Endpoint.DistanceKm, b.Endpoint.DistanceKm)
	default:
		return compareOptional(a.MedianMs, b.MedianMs)
	}
}

// compareOptional orders absent values last.
func compareOptional(a, b *float64) int {
	switch {
	case a == nil && b == nil:
		return 0
	case a == nil:
		return 1
	case b == nil:
		return -1
	default:
		return compareFloat(*a, *b)
	}
}

func compareFloat(a, b float64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}
