package engine

import (
	"slices"

	"github.com/VividCortex/ewma"

	"Relay_Selector_Go/pkg/model"
)

// Finalize recounts outcomes and computes the RTT statistics of st in place.
// Statistics stay nil when there is no successful sample.
func Finalize(st *model.EndpointStats) *model.EndpointStats {
	st.SuccessCount, st.FailureCount = 0, 0
	durations := make([]float64, 0, len(st.Samples))
	for _, s := range st.Samples {
		if s.Success() {
			st.SuccessCount++
			durations = append(durations, s.DurationMs())
		} else {
			st.FailureCount++
		}
	}

	st.MeanMs, st.MedianMs, st.SmoothedMs = nil, nil, nil
	if len(durations) == 0 {
		return st
	}

	mean := Mean(durations)
	median := Median(durations)
	smoothed := Smoothed(durations)
	st.MeanMs = &mean
	st.MedianMs = &median
	st.SmoothedMs = &smoothed
	return st
}

// Mean sums a sorted copy, so the result does not depend on input order.
func Mean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sorted := slices.Clone(values)
	slices.Sort(sorted)

	var total float64
	for _, v := range sorted {
		total += v
	}
	return total / float64(len(sorted))
}

// Median averages the two middle values for an even count.
func Median(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sorted := slices.Clone(values)
	slices.Sort(sorted)

	middle := len(sorted) / 2
	if len(sorted)%2 == 0 {
		return (sorted[middle-1] + sorted[middle]) / 2
	}
	return sorted[middle]
}

// Smoothed is an exponentially weighted moving average taken in round order.
func Smoothed(values []float64) float64 {
	e := ewma.NewMovingAverage()
	for _, v := range values {
		e.Add(v)
	}
	return e.Value()
}
