package engine

import (
	"context"
	"errors"
	"net"
	"strconv"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"Relay_Selector_Go/internal/tester"
	"Relay_Selector_Go/pkg/model"
)

func TestRun_RespectsConcurrencyBound(t *testing.T) {
	p := newFakeProber(2 * time.Millisecond)
	eps := makeEndpoints(50)

	var started, done atomic.Int32
	opts := Options{
		Rounds:      3,
		Timeout:     time.Second,
		Concurrency: 5,
		Prober:      p,
		Callbacks: Callbacks{
			OnEndpointStart: func(model.Endpoint) { started.Add(1) },
			OnEndpointDone:  func(*model.EndpointStats) { done.Add(1) },
		},
	}

	result, err := Run(context.Background(), eps, opts)
	require.NoError(t, err)
	require.Len(t, result, 50)

	assert.LessOrEqual(t, p.max(), 5)
	assert.Greater(t, p.max(), 1, "endpoints should be probed in parallel")
	assert.Equal(t, int32(50), started.Load())
	assert.Equal(t, int32(50), done.Load())

	for _, ep := range eps {
		st := result[ep.Key()]
		require.NotNil(t, st, ep.Key())
		assert.Equal(t, 3, st.SuccessCount+st.FailureCount)
		assert.Len(t, st.Samples, 3)
		assert.False(t, st.Cancelled)
		require.NotNil(t, st.MedianMs)
	}
}

func TestRun_UnreachableEndpointIsKept(t *testing.T) {
	eps := makeEndpoints(3)
	bad := eps[1]

	p := newFakeProber(0)
	p.respond = func(ctx context.Context, ep model.Endpoint, call int) tester.Result {
		if ep.Key() == bad.Key() {
			return tester.Result{Outcome: model.OutcomeResolutionFailed, Err: errors.New("no such host")}
		}
		return tester.Result{Outcome: model.OutcomeSuccess, Duration: 15 * time.Millisecond}
	}

	result, err := Run(context.Background(), eps, Options{Rounds: 4, Timeout: time.Second, Concurrency: 2, Prober: p})
	require.NoError(t, err)
	require.Len(t, result, 3)

	st := result[bad.Key()]
	require.NotNil(t, st)
	assert.False(t, st.Reachable())
	assert.Equal(t, 4, st.FailureCount)
	assert.Nil(t, st.MeanMs)
	assert.Nil(t, st.MedianMs)
	for _, s := range st.Samples {
		assert.Equal(t, model.OutcomeResolutionFailed, s.Outcome)
	}

	ok := result[eps[0].Key()]
	require.NotNil(t, ok.MedianMs)
	assert.InDelta(t, 15.0, *ok.MedianMs, 1e-9)
}

func TestRun_CancellationReturnsPartialResults(t *testing.T) {
	eps := makeEndpoints(6)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	firstRound := make(chan struct{}, len(eps))
	p := newFakeProber(0)
	p.respond = func(ctx context.Context, ep model.Endpoint, call int) tester.Result {
		if call == 0 {
			firstRound <- struct{}{}
			return tester.Result{Outcome: model.OutcomeSuccess, Duration: 8 * time.Millisecond}
		}
		<-ctx.Done()
		return tester.Result{Outcome: model.OutcomeTimeout, Err: ctx.Err()}
	}

	go func() {
		<-firstRound
		<-firstRound
		cancel()
	}()

	start := time.Now()
	result, err := Run(ctx, eps, Options{Rounds: 10, Timeout: time.Minute, Concurrency: 2, Prober: p})
	require.NoError(t, err)
	assert.Less(t, time.Since(start), 2*time.Second)
	require.Len(t, result, len(eps))

	for _, ep := range eps[:2] {
		st := result[ep.Key()]
		require.NotNil(t, st)
		assert.True(t, st.Cancelled)
		require.Len(t, st.Samples, 1)
		assert.Equal(t, 1, st.SuccessCount)
		assert.Equal(t, 0, st.FailureCount)
		require.NotNil(t, st.MedianMs)
		assert.InDelta(t, 8.0, *st.MedianMs, 1e-9)
	}
	for _, ep := range eps[2:] {
		st := result[ep.Key()]
		require.NotNil(t, st)
		assert.True(t, st.Cancelled)
		assert.Empty(t, st.Samples)
		assert.Nil(t, st.MedianMs)
		assert.Zero(t, p.callsFor(ep))
	}
}

func TestRun_InvalidOptions(t *testing.T) {
	eps := makeEndpoints(1)

	_, err := Run(context.Background(), eps, Options{Rounds: 0, Timeout: time.Second, Concurrency: 1})
	assert.ErrorIs(t, err, ErrInvalidRounds)

	_, err = Run(context.Background(), eps, Options{Rounds: 1, Timeout: time.Second, Concurrency: 0})
	assert.ErrorIs(t, err, ErrInvalidConcurrency)

	_, err = Run(context.Background(), eps, Options{Rounds: -1, Timeout: 0, Concurrency: -3})
	assert.ErrorIs(t, err, ErrInvalidRounds)
	assert.ErrorIs(t, err, ErrInvalidTimeout)
	assert.ErrorIs(t, err, ErrInvalidConcurrency)

	_, err = Run(context.Background(), nil, DefaultOptions())
	assert.ErrorIs(t, err, ErrNoEndpoints)
}

func TestRun_DeduplicatesEndpoints(t *testing.T) {
	eps := makeEndpoints(2)
	eps = append(eps, eps[0])
	p := newFakeProber(0)

	result, err := Run(context.Background(), eps, Options{Rounds: 2, Timeout: time.Second, Concurrency: 4, Prober: p})
	require.NoError(t, err)
	assert.Len(t, result, 2)
	assert.Equal(t, 2, p.callsFor(eps[0]))
}

func TestRun_DialRateLimitsAttempts(t *testing.T) {
	p := newFakeProber(0)
	eps := makeEndpoints(4)

	start := time.Now()
	_, err := Run(context.Background(), eps, Options{Rounds: 2, Timeout: time.Second, Concurrency: 4, DialRate: 5, Prober: p})
	require.NoError(t, err)

	// 8 次连接，5/s 且突发为 5：剩余 3 次至少等待 0.6s
	assert.GreaterOrEqual(t, time.Since(start), 500*time.Millisecond)
	assert.Equal(t, 2, p.callsFor(eps[3]))
}

func TestRun_RealTCP(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()
	go func() {
		for {
			c, err := ln.Accept()
			if err != nil {
				return
			}
			_ = c.Close()
		}
	}()

	closed, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	closedPort := closed.Addr().(*net.TCPAddr).Port
	require.NoError(t, closed.Close())

	openPort, _ := strconv.Atoi(portOf(t, ln.Addr()))
	eps := []model.Endpoint{
		{Host: "127.0.0.1", Port: openPort, Protocol: model.ProtocolWireGuard},
		{Host: "127.0.0.1", Port: closedPort, Protocol: model.ProtocolOpenVPN},
	}

	result, err := Run(context.Background(), eps, Options{Rounds: 3, Timeout: 500 * time.Millisecond, Interval: 5 * time.Millisecond, Concurrency: 2})
	require.NoError(t, err)

	open := result[eps[0].Key()]
	assert.Equal(t, 3, open.SuccessCount)
	require.NotNil(t, open.MedianMs)
	assert.Greater(t, *open.MedianMs, 0.0)

	refused := result[eps[1].Key()]
	assert.Equal(t, 3, refused.FailureCount)
	assert.Equal(t, model.OutcomeConnectionRefused, refused.Samples[0].Outcome)
}

func portOf(t *testing.T, addr net.Addr) string {
	t.Helper()
	_, port, err := net.SplitHostPort(addr.String())
	require.NoError(t, err)
	return port
}
