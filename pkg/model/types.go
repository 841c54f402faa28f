package model

import (
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"
)

// Protocol 是中继使用的隧道协议
type Protocol int

const (
	ProtocolOpenVPN Protocol = iota + 1
	ProtocolWireGuard
)

func (p Protocol) String() string {
	switch p {
	case ProtocolOpenVPN:
		return "OpenVPN"
	case ProtocolWireGuard:
		return "WireGuard"
	default:
		return "Unknown"
	}
}

// ParseProtocol accepts "openvpn" / "wireguard" in any case. An empty string
// yields 0, which means "any protocol" to the filters.
func ParseProtocol(s string) (Protocol, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "":
		return 0, nil
	case "openvpn":
		return ProtocolOpenVPN, nil
	case "wireguard":
		return ProtocolWireGuard, nil
	default:
		return 0, fmt.Errorf("unknown protocol %q", s)
	}
}

func (p Protocol) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}

// Endpoint 是一个候选中继，由 Catalog 构建后只读
type Endpoint struct {
	Host       string   `json:"host"`
	Port       int      `json:"port"`
	Protocol   Protocol `json:"protocol"`
	Country    string   `json:"country"`
	City       string   `json:"city"`
	DistanceKm float64  `json:"distance_km"`
	Active     bool     `json:"active"`
	Owned      bool     `json:"owned"`
}

// EndpointKey identifies an endpoint by host, port and protocol.
type EndpointKey string

func (e Endpoint) Key() EndpointKey {
	return EndpointKey(e.Address() + "/" + e.Protocol.String())
}

// Address returns host:port suitable for dialing.
func (e Endpoint) Address() string {
	return net.JoinHostPort(e.Host, strconv.Itoa(e.Port))
}

// Outcome 是单次探测的结果类型
type Outcome int

const (
	OutcomeSuccess Outcome = iota
	OutcomeTimeout
	OutcomeConnectionRefused
	OutcomeResolutionFailed
	OutcomeOtherIOError
)

func (o Outcome) String() string {
	switch o {
	case OutcomeSuccess:
		return "success"
	case OutcomeTimeout:
		return "timeout"
	case OutcomeConnectionRefused:
		return "connection_refused"
	case OutcomeResolutionFailed:
		return "resolution_failed"
	case OutcomeOtherIOError:
		return "io_error"
	default:
		return "unknown"
	}
}

func (o Outcome) MarshalText() ([]byte, error) {
	return []byte(o.String()), nil
}

// ProbeSample 是一次探测的记录，创建后不再修改
type ProbeSample struct {
	Endpoint EndpointKey   `json:"endpoint"`
	Round    int           `json:"round"`
	Outcome  Outcome       `json:"outcome"`
	Duration time.Duration `json:"duration"` // only meaningful when Outcome == OutcomeSuccess
	Err      string        `json:"error,omitempty"`
}

func (s ProbeSample) Success() bool { return s.Outcome == OutcomeSuccess }

// DurationMs returns the connect time in fractional milliseconds.
func (s ProbeSample) DurationMs() float64 {
	return float64(s.Duration) / float64(time.Millisecond)
}

// EndpointStats 汇总一个端点的所有探测样本
//
// MeanMs, MedianMs and SmoothedMs are nil when SuccessCount == 0.
type EndpointStats struct {
	Endpoint     Endpoint      `json:"endpoint"`
	Samples      []ProbeSample `json:"samples"`
	SuccessCount int           `json:"success_count"`
	FailureCount int           `json:"failure_count"`
	MeanMs       *float64      `json:"mean_ms,omitempty"`
	MedianMs     *float64      `json:"median_ms,omitempty"`
	SmoothedMs   *float64      `json:"smoothed_ms,omitempty"`
	Cancelled    bool          `json:"cancelled"`
}

// Reachable reports whether at least one round succeeded.
func (s *EndpointStats) Reachable() bool { return s.SuccessCount > 0 }

// LossRate is the share of attempted rounds that failed.
func (s *EndpointStats) LossRate() float64 {
	if len(s.Samples) == 0 {
		return 0
	}
	return float64(s.FailureCount) / float64(len(s.Samples))
}

// RunResult maps endpoint identity to its finalized stats.
type RunResult map[EndpointKey]*EndpointStats

// Stats returns the entries as a slice, for consumers that sort.
func (r RunResult) Stats() []*EndpointStats {
	out := make([]*EndpointStats, 0, len(r))
	for _, s := range r {
		out = append(out, s)
	}
	return out
}
