package engine

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"go.uber.org/zap"

	"Relay_Selector_Go/internal/config"
	"Relay_Selector_Go/internal/datasource"
	"Relay_Selector_Go/internal/locations"
	"Relay_Selector_Go/internal/ranker"
	"Relay_Selector_Go/internal/tester"
	"Relay_Selector_Go/pkg/model"
)

// ErrNoRelays 过滤后没有可探测的中继
var ErrNoRelays = errors.New("couldn't find any relays")

// ProgressCallback 是一个用于报告进度的回调函数类型
type ProgressCallback func(message string)

// Pipeline 串联定位、加载中继、探测与排序
type Pipeline struct {
	Config     *config.Config
	Logger     *zap.Logger
	HTTPClient *http.Client
	Prober     tester.Prober
	Callbacks  Callbacks
}

// Select 启动中继优选流程，返回排序后的结果
func (p *Pipeline) Select(ctx context.Context, progressCb ProgressCallback) ([]*model.EndpointStats, error) {
	cfg := p.Config
	if progressCb == nil {
		progressCb = func(string) {}
	}
	logger := p.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	// --- 1. 定位 ---
	progressCb("步骤 1/4: 获取当前位置...")
	origin, err := p.locate(ctx)
	if err != nil {
		return nil, err
	}
	logger.Info("location resolved", zap.Float64("latitude", origin.Latitude), zap.Float64("longitude", origin.Longitude))

	// --- 2. 加载中继 ---
	progressCb("步骤 2/4: 加载中继列表...")
	endpoints, err := p.loadRelays(ctx, origin)
	if err != nil {
		return nil, err
	}
	if len(endpoints) == 0 {
		return nil, ErrNoRelays
	}
	progressCb(fmt.Sprintf("筛选出 %d 个中继。", len(endpoints)))

	// --- 3. 延迟测试 ---
	progressCb(fmt.Sprintf("步骤 3/4: 对 %d 个中继进行并发延迟测试...", len(endpoints)))
	opts := Options{
		Rounds:      cfg.Rounds,
		Timeout:     cfg.Timeout(),
		Interval:    cfg.Interval(),
		Concurrency: cfg.Concurrency,
		DialRate:    cfg.DialRate,
		Prober:      p.Prober,
		Logger:      logger,
		Callbacks:   p.Callbacks,
	}
	result, err := Run(ctx, endpoints, opts)
	if err != nil {
		return nil, fmt.Errorf("延迟测试失败: %w", err)
	}
	if ctx.Err() != nil {
		progressCb("延迟测试被中断，仅使用已收集的样本。")
	} else {
		progressCb("延迟测试完成。")
	}

	// --- 4. 过滤与排序 ---
	progressCb("步骤 4/4: 过滤与排序...")
	ranked := ranker.Rank(result, ranker.Options{
		MaxRTTMs:           cfg.MaxRTTMS,
		MaxDistanceKm:      cfg.MaxDistanceKm,
		Protocol:           cfg.ProtocolFilter(),
		IncludeUnreachable: cfg.IncludeUnreachable,
		SortBy:             cfg.SortKey(),
	})
	progressCb(fmt.Sprintf("共 %d 个中继进入结果。", len(ranked)))

	return ranked, nil
}

func (p *Pipeline) locate(ctx context.Context) (locations.Coord, error) {
	cfg := p.Config
	if cfg.Latitude != nil && cfg.Longitude != nil {
		return locations.Coord{Latitude: *cfg.Latitude, Longitude: *cfg.Longitude}, nil
	}
	origin, err := locations.Fetch(ctx, p.HTTPClient, cfg.LocationURL)
	if err != nil {
		return locations.Coord{}, fmt.Errorf("获取当前位置失败: %w", err)
	}
	return origin, nil
}

func (p *Pipeline) loadRelays(ctx context.Context, origin locations.Coord) ([]model.Endpoint, error) {
	cfg := p.Config
	path := cfg.RelaysFile
	if path == "" {
		var err error
		if path, err = datasource.DefaultRelaysPath(""); err != nil {
			return nil, err
		}
	}
	if err := datasource.EnsureRelaysFile(ctx, p.HTTPClient, path, cfg.RelaysURL); err != nil {
		return nil, err
	}

	filters := []datasource.Filter{
		datasource.ByDistance(cfg.MaxDistanceKm),
		datasource.ByProtocol(cfg.ProtocolFilter()),
	}
	if cfg.ActiveOnly {
		filters = append(filters, datasource.ActiveOnly())
	}

	endpoints, err := datasource.LoadRelaysFromFile(path, datasource.LoadOptions{
		Origin:  origin,
		Port:    cfg.Port,
		Filters: filters,
	})
	if err != nil {
		return nil, fmt.Errorf("加载中继列表失败: %w", err)
	}
	return endpoints, nil
}
