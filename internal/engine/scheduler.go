package engine

import (
	"context"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"

	"Relay_Selector_Go/pkg/model"
)

// Run probes every endpoint, at most opts.Concurrency of them at a time, and
// returns their finalized stats keyed by endpoint identity.
//
// Only invalid options or an empty endpoint set make Run fail. Cancelling ctx
// stops new rounds from starting; the partial stats gathered so far are still
// returned, and endpoints that never started appear with no samples.
func Run(ctx context.Context, endpoints []model.Endpoint, opts Options) (model.RunResult, error) {
	if err := opts.validate(); err != nil {
		return nil, err
	}
	eps := deduplicateEndpoints(endpoints)
	if len(eps) == 0 {
		return nil, ErrNoEndpoints
	}

	logger := opts.logger()
	sampler := &Sampler{
		Prober:   opts.prober(),
		Rounds:   opts.Rounds,
		Timeout:  opts.Timeout,
		Interval: opts.Interval,
		Logger:   logger,
		OnSample: opts.Callbacks.OnSample,
	}
	if opts.DialRate > 0 {
		burst := int(opts.DialRate)
		if burst < 1 {
			burst = 1
		}
		sampler.Limiter = rate.NewLimiter(rate.Limit(opts.DialRate), burst)
	}

	// 每个端点只写自己的槽位，无需加锁
	slots := make([]*model.EndpointStats, len(eps))
	sem := semaphore.NewWeighted(int64(opts.Concurrency))
	var wg sync.WaitGroup

	logger.Debug("scheduling endpoints",
		zap.Int("endpoints", len(eps)),
		zap.Int("rounds", opts.Rounds),
		zap.Int("concurrency", opts.Concurrency))

	for i, ep := range eps {
		if ctx.Err() != nil {
			break
		}
		if err := sem.Acquire(ctx, 1); err != nil {
			break
		}
		wg.Add(1)
		go func(i int, ep model.Endpoint) {
			defer func() {
				sem.Release(1)
				wg.Done()
			}()

			if opts.Callbacks.OnEndpointStart != nil {
				opts.Callbacks.OnEndpointStart(ep)
			}
			st := Finalize(sampler.Sample(ctx, ep))
			slots[i] = st

			logger.Debug("endpoint sampled",
				zap.String("endpoint", string(ep.Key())),
				zap.Int("success", st.SuccessCount),
				zap.Int("failure", st.FailureCount),
				zap.Bool("cancelled", st.Cancelled))
			if opts.Callbacks.OnEndpointDone != nil {
				opts.Callbacks.OnEndpointDone(st)
			}
		}(i, ep)
	}
	wg.Wait()

	result := make(model.RunResult, len(eps))
	for i, ep := range eps {
		st := slots[i]
		if st == nil {
			st = Finalize(&model.EndpointStats{Endpoint: ep, Samples: []model.ProbeSample{}, Cancelled: true})
		}
		result[ep.Key()] = st
	}

	if err := ctx.Err(); err != nil {
		logger.Info("run cancelled, returning partial results", zap.Error(err))
	}
	return result, nil
}

func deduplicateEndpoints(endpoints []model.Endpoint) []model.Endpoint {
	seen := make(map[model.EndpointKey]struct{}, len(endpoints))
	out := make([]model.Endpoint, 0, len(endpoints))
	for _, ep := range endpoints {
		key := ep.Key()
		if _, exists := seen[key]; exists {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, ep)
	}
	return out
}
