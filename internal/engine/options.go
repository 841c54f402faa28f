package engine

import (
	"errors"
	"fmt"
	"time"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"Relay_Selector_Go/internal/tester"
	"Relay_Selector_Go/pkg/model"
)

const (
	DefaultRounds      = 4
	DefaultTimeout     = 750 * time.Millisecond
	DefaultInterval    = 50 * time.Millisecond
	DefaultConcurrency = 32
)

var (
	ErrNoEndpoints        = errors.New("no endpoints to probe")
	ErrInvalidRounds      = errors.New("rounds must be positive")
	ErrInvalidConcurrency = errors.New("concurrency must be positive")
	ErrInvalidTimeout     = errors.New("timeout must be positive")
	ErrInvalidInterval    = errors.New("interval must not be negative")
	ErrInvalidDialRate    = errors.New("dial rate must not be negative")
)

// Callbacks 在并发的采样协程中被调用，实现方必须是并发安全的
type Callbacks struct {
	OnEndpointStart func(ep model.Endpoint)
	OnSample        func(s model.ProbeSample)
	OnEndpointDone  func(st *model.EndpointStats)
}

// Options controls a probing run.
type Options struct {
	Rounds      int
	Timeout     time.Duration // per round
	Interval    time.Duration // between rounds of one endpoint
	Concurrency int           // max endpoints sampled at once
	DialRate    float64       // connection attempts per second across the run, 0 = unlimited

	Prober    tester.Prober
	Logger    *zap.Logger
	Callbacks Callbacks
}

// DefaultOptions mirrors the defaults of the command line.
func DefaultOptions() Options {
	return Options{
		Rounds:      DefaultRounds,
		Timeout:     DefaultTimeout,
		Interval:    DefaultInterval,
		Concurrency: DefaultConcurrency,
	}
}

func (o Options) validate() error {
	var err error
	if o.Rounds <= 0 {
		err = multierr.Append(err, fmt.Errorf("%w: %d", ErrInvalidRounds, o.Rounds))
	}
	if o.Concurrency <= 0 {
		err = multierr.Append(err, fmt.Errorf("%w: %d", ErrInvalidConcurrency, o.Concurrency))
	}
	if o.Timeout <= 0 {
		err = multierr.Append(err, fmt.Errorf("%w: %s", ErrInvalidTimeout, o.Timeout))
	}
	if o.Interval < 0 {
		err = multierr.Append(err, fmt.Errorf("%w: %s", ErrInvalidInterval, o.Interval))
	}
	if o.DialRate < 0 {
		err = multierr.Append(err, fmt.Errorf("%w: %g", ErrInvalidDialRate, o.DialRate))
	}
	return err
}

func (o Options) prober() tester.Prober {
	if o.Prober == nil {
		return tester.NewTCPProber()
	}
	return o.Prober
}

func (o Options) logger() *zap.Logger {
	if o.Logger == nil {
		return zap.NewNop()
	}
	return o.Logger
}
