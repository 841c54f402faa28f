package tester

import (
	"context"
	"errors"
	"net"
	"time"

	"Relay_Selector_Go/pkg/model"
)

// DialFunc matches net.Dialer.DialContext.
type DialFunc func(ctx context.Context, network, address string) (net.Conn, error)

// Result 是单次 TCP 握手探测的结果
type Result struct {
	Outcome  model.Outcome
	Duration time.Duration
	Err      error
}

// Prober 对一个端点执行一次延迟测量
type Prober interface {
	Probe(ctx context.Context, ep model.Endpoint, timeout time.Duration) Result
}

// TCPProber measures the time it takes to complete a TCP handshake with the
// endpoint. No payload is exchanged; the connection is closed as soon as it is
// established.
type TCPProber struct {
	Dial DialFunc
}

// NewTCPProber 返回使用系统拨号器的探测器
func NewTCPProber() *TCPProber {
	return &TCPProber{Dial: (&net.Dialer{}).DialContext}
}

// Probe opens exactly one connection and never retries.
func (p *TCPProber) Probe(ctx context.Context, ep model.Endpoint, timeout time.Duration) Result {
	dial := p.Dial
	if dial == nil {
		dial = (&net.Dialer{}).DialContext
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	start := time.Now()
	conn, err := dial(ctx, "tcp", ep.Address())
	elapsed := time.Since(start)
	if err != nil {
		// 拨号器没有遵守 ctx 时，以超时为准
		if ctx.Err() == context.DeadlineExceeded {
			return Result{Outcome: model.OutcomeTimeout, Duration: elapsed, Err: err}
		}
		return Result{Outcome: Classify(err), Duration: elapsed, Err: err}
	}
	_ = conn.Close()

	return Result{Outcome: model.OutcomeSuccess, Duration: elapsed}
}

// Classify maps a dial error onto a probe outcome.
func Classify(err error) model.Outcome {
	if err == nil {
		return model.OutcomeSuccess
	}

	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) && !dnsErr.IsTimeout {
		return model.OutcomeResolutionFailed
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return model.OutcomeTimeout
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return model.OutcomeTimeout
	}

	if isRefused(err) {
		return model.OutcomeConnectionRefused
	}

	return model.OutcomeOtherIOError
}
