package engine

import (
	"context"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"Relay_Selector_Go/internal/tester"
	"Relay_Selector_Go/pkg/model"
)

// Sampler runs the rounds of a single endpoint one after another. Rounds never
// overlap, so consecutive measurements cannot contend with each other.
type Sampler struct {
	Prober   tester.Prober
	Rounds   int
	Timeout  time.Duration
	Interval time.Duration

	// Limiter, when set, is shared by every sampler of a run and paces
	// connection attempts globally.
	Limiter  *rate.Limiter
	Logger   *zap.Logger
	OnSample func(s model.ProbeSample)
}

// Sample returns the raw, not yet finalized stats for ep. A failed round does
// not stop the loop; only cancellation of ctx does, in which case the stats
// are marked Cancelled and hold the samples collected so far.
func (s *Sampler) Sample(ctx context.Context, ep model.Endpoint) *model.EndpointStats {
	key := ep.Key()
	stats := &model.EndpointStats{
		Endpoint: ep,
		Samples:  make([]model.ProbeSample, 0, s.Rounds),
	}

	for round := 0; round < s.Rounds; round++ {
		if round > 0 && s.Interval > 0 {
			if !sleepCtx(ctx, s.Interval) {
				stats.Cancelled = true
				break
			}
		}
		if ctx.Err() != nil {
			stats.Cancelled = true
			break
		}
		if s.Limiter != nil {
			if err := s.Limiter.Wait(ctx); err != nil {
				stats.Cancelled = true
				break
			}
		}

		res := s.Prober.Probe(ctx, ep, s.Timeout)
		// 被取消打断的探测不是有效测量，丢弃
		if res.Outcome != model.OutcomeSuccess && ctx.Err() != nil {
			stats.Cancelled = true
			break
		}

		sample := model.ProbeSample{
			Endpoint: key,
			Round:    round,
			Outcome:  res.Outcome,
		}
		if res.Outcome == model.OutcomeSuccess {
			sample.Duration = res.Duration
			stats.SuccessCount++
		} else {
			stats.FailureCount++
			if res.Err != nil {
				sample.Err = res.Err.Error()
			}
			if s.Logger != nil {
				s.Logger.Debug("probe failed",
					zap.String("endpoint", string(key)),
					zap.Int("round", round),
					zap.Stringer("outcome", res.Outcome),
					zap.Error(res.Err))
			}
		}
		stats.Samples = append(stats.Samples, sample)

		if s.OnSample != nil {
			s.OnSample(sample)
		}
	}

	return stats
}

// sleepCtx waits for d and reports false if ctx ended first.
func sleepCtx(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
