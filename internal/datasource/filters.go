package datasource

import "Relay_Selector_Go/pkg/model"

// Filter decides whether a relay enters the candidate list.
type Filter interface {
	Matches(ep model.Endpoint) bool
}

// FilterFunc adapts a function to Filter.
type FilterFunc func(ep model.Endpoint) bool

func (f FilterFunc) Matches(ep model.Endpoint) bool { return f(ep) }

// ByDistance keeps relays strictly closer than maxKm. Zero disables it.
func ByDistance(maxKm float64) Filter {
	return FilterFunc(func(ep model.Endpoint) bool {
		return maxKm <= 0 || ep.DistanceKm < maxKm
	})
}

// ByProtocol keeps relays of protocol p; the zero Protocol keeps all.
func ByProtocol(p model.Protocol) Filter {
	return FilterFunc(func(ep model.Endpoint) bool {
		return p == 0 || ep.Protocol == p
	})
}

// ActiveOnly drops relays the provider marked inactive.
func ActiveOnly() Filter {
	return FilterFunc(func(ep model.Endpoint) bool { return ep.Active })
}

func matchesAll(filters []Filter, ep model.Endpoint) bool {
	for _, f := range filters {
		if !f.Matches(ep) {
			return false
		}
	}
	return true
}
