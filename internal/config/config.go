package config

import (
	"fmt"
	"os"
	"time"

	"go.uber.org/multierr"
	"gopkg.in/yaml.v3"

	"Relay_Selector_Go/internal/ranker"
	"Relay_Selector_Go/pkg/model"
)

// Config 结构用于映射 config.yaml 文件的内容
type Config struct {
	RelaysFile  string `yaml:"relays_file" json:"relays_file"`
	RelaysURL   string `yaml:"relays_url" json:"relays_url"`
	LocationURL string `yaml:"location_url" json:"location_url"`

	Port        int     `yaml:"port" json:"port"`
	Rounds      int     `yaml:"rounds" json:"rounds"`
	TimeoutMS   int     `yaml:"timeout_ms" json:"timeout_ms"`
	IntervalMS  int     `yaml:"interval_ms" json:"interval_ms"`
	Concurrency int     `yaml:"concurrency" json:"concurrency"`
	DialRate    float64 `yaml:"dial_rate" json:"dial_rate"`

	Protocol           string  `yaml:"protocol" json:"protocol"`
	MaxDistanceKm      float64 `yaml:"max_distance_km" json:"max_distance_km"`
	MaxRTTMS           float64 `yaml:"max_rtt_ms" json:"max_rtt_ms"`
	SortBy             string  `yaml:"sort_by" json:"sort_by"`
	IncludeUnreachable bool    `yaml:"include_unreachable" json:"include_unreachable"`
	ActiveOnly         bool    `yaml:"active_only" json:"active_only"`

	Latitude  *float64 `yaml:"latitude" json:"latitude"`
	Longitude *float64 `yaml:"longitude" json:"longitude"`

	LogLevel   string `yaml:"log_level" json:"log_level"`
	ListenPort int    `yaml:"listen_port" json:"listen_port"`
}

// Default 返回内置默认配置
func Default() *Config {
	return &Config{
		LocationURL:        "https://am.i.mullvad.net/json",
		Port:               80,
		Rounds:             4,
		TimeoutMS:          750,
		IntervalMS:         50,
		Concurrency:        32,
		MaxDistanceKm:      500,
		SortBy:             "median",
		IncludeUnreachable: true,
		ActiveOnly:         true,
		LogLevel:           "info",
		ListenPort:         8080,
	}
}

// LoadConfig 从指定路径加载和解析 YAML 配置文件，缺省字段使用默认值
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("解析配置文件失败: %w", err)
	}

	return cfg, nil
}

// Validate reports every invalid field at once.
func (c *Config) Validate() error {
	var err error
	if c.Port <= 0 || c.Port > 65535 {
		err = multierr.Append(err, fmt.Errorf("port must be between 1 and 65535, got %d", c.Port))
	}
	if c.Rounds <= 0 {
		err = multierr.Append(err, fmt.Errorf("rounds must be positive, got %d", c.Rounds))
	}
	if c.TimeoutMS <= 0 {
		err = multierr.Append(err, fmt.Errorf("timeout_ms must be positive, got %d", c.TimeoutMS))
	}
	if c.IntervalMS < 0 {
		err = multierr.Append(err, fmt.Errorf("interval_ms must not be negative, got %d", c.IntervalMS))
	}
	if c.Concurrency <= 0 {
		err = multierr.Append(err, fmt.Errorf("concurrency must be positive, got %d", c.Concurrency))
	}
	if c.DialRate < 0 {
		err = multierr.Append(err, fmt.Errorf("dial_rate must not be negative, got %g", c.DialRate))
	}
	if c.MaxDistanceKm < 0 {
		err = multierr.Append(err, fmt.Errorf("max_distance_km must not be negative, got %g", c.MaxDistanceKm))
	}
	if c.MaxRTTMS < 0 {
		err = multierr.Append(err, fmt.Errorf("max_rtt_ms must not be negative, got %g", c.MaxRTTMS))
	}
	if _, perr := model.ParseProtocol(c.Protocol); perr != nil {
		err = multierr.Append(err, perr)
	}
	if _, serr := ranker.ParseSortKey(c.SortBy); serr != nil {
		err = multierr.Append(err, serr)
	}
	if (c.Latitude == nil) != (c.Longitude == nil) {
		err = multierr.Append(err, fmt.Errorf("latitude and longitude must be set together"))
	}
	if c.Latitude != nil && (*c.Latitude < -90 || *c.Latitude > 90) {
		err = multierr.Append(err, fmt.Errorf("latitude out of range: %g", *c.Latitude))
	}
	if c.Longitude != nil && (*c.Longitude < -180 || *c.Longitude > 180) {
		err = multierr.Append(err, fmt.Errorf("longitude out of range: %g", *c.Longitude))
	}
	return err
}

func (c *Config) Timeout() time.Duration {
	return time.Duration(c.TimeoutMS) * time.Millisecond
}

func (c *Config) Interval() time.Duration {
	return time.Duration(c.IntervalMS) * time.Millisecond
}

// ProtocolFilter 返回协议过滤值，配置已通过 Validate 时不会出错
func (c *Config) ProtocolFilter() model.Protocol {
	p, _ := model.ParseProtocol(c.Protocol)
	return p
}

func (c *Config) SortKey() ranker.SortKey {
	k, _ := ranker.ParseSortKey(c.SortBy)
	return k
}
