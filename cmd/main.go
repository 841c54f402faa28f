package main

import (
	"context"
	_ "embed"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"go.uber.org/zap"

	"Relay_Selector_Go/internal/config"
	"Relay_Selector_Go/internal/engine"
	"Relay_Selector_Go/internal/logging"
	"Relay_Selector_Go/internal/output"
	"Relay_Selector_Go/internal/server"
)

//go:embed default_config.yaml
var defaultConfigData []byte

// ensureFile 检查文件是否存在于 dir 目录，如果不存在，则使用提供的默认数据创建它。
func ensureFile(dir, fileName string, defaultData []byte) (path string, created bool, err error) {
	filePath := filepath.Join(dir, fileName)

	if _, err := os.Stat(filePath); os.IsNotExist(err) {
		if err := os.WriteFile(filePath, defaultData, 0644); err != nil {
			return "", false, fmt.Errorf("无法写入默认文件 %s: %w", fileName, err)
		}
		return filePath, true, nil
	} else if err != nil {
		return "", false, fmt.Errorf("检查文件 %s 时出错: %w", fileName, err)
	}
	return filePath, false, nil
}

func executableDir() (string, error) {
	exePath, err := os.Executable()
	if err != nil {
		return "", fmt.Errorf("无法获取可执行文件路径: %w", err)
	}
	return filepath.Dir(exePath), nil
}

// cliFlags 保存命令行参数，只有显式设置的参数才会覆盖配置文件
type cliFlags struct {
	configPath  string
	web         bool
	noBrowser   bool
	save        string
	protocol    string
	distance    float64
	rtt         float64
	rounds      int
	timeoutMS   int
	intervalMS  int
	concurrency int
	dialRate    float64
	port        int
	latitude    float64
	longitude   float64
	sortBy      string
	relaysFile  string
	logLevel    string
}

func parseFlags(fs *flag.FlagSet, args []string) (*cliFlags, map[string]bool, error) {
	f := &cliFlags{}
	fs.StringVar(&f.configPath, "config", "", "配置文件路径 (默认: 可执行文件目录下的 config.yaml)")
	fs.BoolVar(&f.web, "web", false, "以 Web 服务器模式运行")
	fs.BoolVar(&f.noBrowser, "no-browser", false, "Web 模式下不自动打开浏览器")
	fs.StringVar(&f.save, "save", "", "将结果保存到该路径，扩展名 .json 或 .csv")
	fs.StringVar(&f.protocol, "protocol", "", "协议过滤: openvpn / wireguard")
	fs.Float64Var(&f.distance, "distance", 0, "最大距离 (km)，0 表示不限制")
	fs.Float64Var(&f.rtt, "rtt", 0, "最大延迟中位数 (ms)，0 表示不限制")
	fs.IntVar(&f.rounds, "count", 0, "每个中继的探测轮数")
	fs.IntVar(&f.timeoutMS, "timeout", 0, "单次连接超时 (毫秒)")
	fs.IntVar(&f.intervalMS, "interval", 0, "两轮探测之间的间隔 (毫秒)")
	fs.IntVar(&f.concurrency, "concurrency", 0, "同时探测的中继数量上限")
	fs.Float64Var(&f.dialRate, "rate", 0, "全局每秒最多发起的连接数，0 表示不限制")
	fs.IntVar(&f.port, "port", 0, "探测的 TCP 端口")
	fs.Float64Var(&f.latitude, "latitude", 0, "当前位置纬度，需与 -longitude 同时设置")
	fs.Float64Var(&f.longitude, "longitude", 0, "当前位置经度，需与 -latitude 同时设置")
	fs.StringVar(&f.sortBy, "sort", "", "排序依据: median / mean / distance / country / city")
	fs.StringVar(&f.relaysFile, "relays", "", "中继列表文件路径")
	fs.StringVar(&f.logLevel, "log-level", "", "日志级别: debug / info / warn / error")

	if err := fs.Parse(args); err != nil {
		return nil, nil, err
	}
	set := map[string]bool{}
	fs.Visit(func(fl *flag.Flag) { set[fl.Name] = true })
	return f, set, nil
}

// apply 用显式设置的命令行参数覆盖配置
func (f *cliFlags) apply(cfg *config.Config, set map[string]bool) {
	if set["protocol"] {
		cfg.Protocol = f.protocol
	}
	if set["distance"] {
		cfg.MaxDistanceKm = f.distance
	}
	if set["rtt"] {
		cfg.MaxRTTMS = f.rtt
	}
	if set["count"] {
		cfg.Rounds = f.rounds
	}
	if set["timeout"] {
		cfg.TimeoutMS = f.timeoutMS
	}
	if set["interval"] {
		cfg.IntervalMS = f.intervalMS
	}
	if set["concurrency"] {
		cfg.Concurrency = f.concurrency
	}
	if set["rate"] {
		cfg.DialRate = f.dialRate
	}
	if set["port"] {
		cfg.Port = f.port
	}
	if set["latitude"] {
		lat := f.latitude
		cfg.Latitude = &lat
	}
	if set["longitude"] {
		lon := f.longitude
		cfg.Longitude = &lon
	}
	if set["sort"] {
		cfg.SortBy = f.sortBy
	}
	if set["relays"] {
		cfg.RelaysFile = f.relaysFile
	}
	if set["log-level"] {
		cfg.LogLevel = f.logLevel
	}
}

func main() {
	if err := run(os.Args[1:]); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			os.Exit(0)
		}
		fmt.Fprintf(os.Stderr, "错误: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	fs := flag.NewFlagSet("relay-selector", flag.ContinueOnError)
	flags, set, err := parseFlags(fs, args)
	if err != nil {
		return err
	}

	// 确保配置文件存在
	cfgPath := flags.configPath
	created := false
	if cfgPath == "" {
		exeDir, err := executableDir()
		if err != nil {
			return err
		}
		if cfgPath, created, err = ensureFile(exeDir, "config.yaml", defaultConfigData); err != nil {
			return fmt.Errorf("初始化配置文件失败: %w", err)
		}
	}

	cfg, err := config.LoadConfig(cfgPath)
	if err != nil {
		return fmt.Errorf("加载配置文件失败: %w", err)
	}
	flags.apply(cfg, set)

	logger, err := logging.New(cfg.LogLevel)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()
	if created {
		logger.Info("首次运行，已生成默认配置文件", zap.String("path", cfgPath))
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if flags.web {
		// --- Web 服务器模式 ---
		srv := server.New(cfgPath, logger)
		srv.ResultDir = filepath.Dir(cfgPath)
		return srv.Start(ctx, cfg.ListenPort, !flags.noBrowser)
	}

	// --- 命令行模式 (默认) ---
	return runCli(ctx, cfg, flags.save, logger)
}

// runCli 运行一次优选并在终端打印结果表格
func runCli(ctx context.Context, cfg *config.Config, savePath string, logger *zap.Logger) error {
	logger.Info("配置加载成功",
		zap.String("protocol", cfg.Protocol),
		zap.Float64("max_distance_km", cfg.MaxDistanceKm),
		zap.Int("rounds", cfg.Rounds),
		zap.Int("concurrency", cfg.Concurrency),
	)

	pipeline := &engine.Pipeline{Config: cfg, Logger: logger}
	results, err := pipeline.Select(ctx, func(message string) {
		logger.Info(message)
	})
	if err != nil {
		return fmt.Errorf("引擎运行时出错: %w", err)
	}

	fmt.Println(output.RenderTable(results, cfg.SortKey()))

	if savePath == "" {
		return nil
	}
	switch filepath.Ext(savePath) {
	case ".csv":
		err = output.WriteCSVFile(savePath, results)
	default:
		err = output.WriteJSONFile(savePath, results)
	}
	if err != nil {
		return err
	}
	logger.Info("结果已写入", zap.String("path", savePath))
	return nil
}
