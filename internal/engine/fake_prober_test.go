package engine

import (
	"context"
	"fmt"
	"sync"
	"time"

	"Relay_Selector_Go/internal/tester"
	"Relay_Selector_Go/pkg/model"
)

// fakeProber records how many probes run at once and lets each test decide
// the outcome of every call.
type fakeProber struct {
	delay   time.Duration
	respond func(ctx context.Context, ep model.Endpoint, call int) tester.Result

	mu          sync.Mutex
	inflight    int
	maxInflight int
	calls       map[model.EndpointKey]int
	starts      []time.Time
}

func newFakeProber(delay time.Duration) *fakeProber {
	return &fakeProber{delay: delay, calls: map[model.EndpointKey]int{}}
}

func (f *fakeProber) Probe(ctx context.Context, ep model.Endpoint, timeout time.Duration) tester.Result {
	f.mu.Lock()
	f.inflight++
	if f.inflight > f.maxInflight {
		f.maxInflight = f.inflight
	}
	call := f.calls[ep.Key()]
	f.calls[ep.Key()] = call + 1
	f.starts = append(f.starts, time.Now())
	f.mu.Unlock()

	defer func() {
		f.mu.Lock()
		f.inflight--
		f.mu.Unlock()
	}()

	if f.respond != nil {
		return f.respond(ctx, ep, call)
	}

	select {
	case <-time.After(f.delay):
		return tester.Result{Outcome: model.OutcomeSuccess, Duration: f.delay}
	case <-ctx.Done():
		return tester.Result{Outcome: model.OutcomeOtherIOError, Err: ctx.Err()}
	}
}

func (f *fakeProber) max() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.maxInflight
}

func (f *fakeProber) callsFor(ep model.Endpoint) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[ep.Key()]
}

func makeEndpoints(n int) []model.Endpoint {
	eps := make([]model.Endpoint, n)
	for i := range eps {
		eps[i] = model.Endpoint{
			Host:     fmt.Sprintf("10.0.%d.%d", i/250, i%250+1),
			Port:     80,
			Protocol: model.ProtocolWireGuard,
		}
	}
	return eps
}
