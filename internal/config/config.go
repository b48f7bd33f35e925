package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server     ServerConfig     `yaml:"server" mapstructure:"server"`
	Database   DatabaseConfig   `yaml:"database" mapstructure:"database"`
	AI         AIConfig         `yaml:"ai" mapstructure:"ai"`
	Watcher    WatcherConfig    `yaml:"watcher" mapstructure:"watcher"`
	Kafka      KafkaConfig      `yaml:"kafka" mapstructure:"kafka"`
	JWT        JWTConfig        `yaml:"jwt" mapstructure:"jwt"`
	Log        LogConfig        `yaml:"log" mapstructure:"log"`
	Monitoring MonitoringConfig `yaml:"monitoring" mapstructure:"monitoring"`
}

type ServerConfig struct {
	Host string `yaml:"host" mapstructure:"host"`
	Port int    `yaml:"port" mapstructure:"port"`
}

type DatabaseConfig struct {
	Host            string        `yaml:"host" mapstructure:"host"`
	Port            int           `yaml:"port" mapstructure:"port"`
	User            string        `yaml:"user" mapstructure:"user"`
	Password        string        `yaml:"password" mapstructure:"password"`
	Name            string        `yaml:"name" mapstructure:"name"`
	MaxOpenConns    int           `yaml:"max_open_conns" mapstructure:"max_open_conns"`
	MaxIdleConns    int           `yaml:"max_idle_conns" mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime" mapstructure:"conn_max_lifetime"`
}

// AIConfig 分类接口配置。APIKeys 至少配置一个，否则启动直接失败。
type AIConfig struct {
	APIKeys        []string      `yaml:"api_keys" mapstructure:"api_keys"`
	Model          string        `yaml:"model" mapstructure:"model"`
	BaseURL        string        `yaml:"base_url" mapstructure:"base_url"`
	Timeout        time.Duration `yaml:"timeout" mapstructure:"timeout"`
	RetryBudget    int           `yaml:"retry_budget" mapstructure:"retry_budget"`
	RetryBackoff   time.Duration `yaml:"retry_backoff" mapstructure:"retry_backoff"`
	RotationBudget int           `yaml:"rotation_budget" mapstructure:"rotation_budget"` // 0 表示池大小-1
}

// WatcherConfig 客户消息活动监听配置
type WatcherConfig struct {
	DebounceWindow time.Duration `yaml:"debounce_window" mapstructure:"debounce_window"`
}

// KafkaConfig 分析完成事件配置，Brokers 为空时不启用
type KafkaConfig struct {
	Brokers []string `yaml:"brokers" mapstructure:"brokers"`
	Topic   string   `yaml:"topic" mapstructure:"topic"`
}

type JWTConfig struct {
	Secret    string        `yaml:"secret" mapstructure:"secret"`
	ExpiresIn time.Duration `yaml:"expires_in" mapstructure:"expires_in"`
}

type LogConfig struct {
	Level      string `yaml:"level" mapstructure:"level"`
	Format     string `yaml:"format" mapstructure:"format"` // json, text
	Output     string `yaml:"output" mapstructure:"output"` // stdout, file, both
	FilePath   string `yaml:"file_path" mapstructure:"file_path"`
	MaxSize    int    `yaml:"max_size" mapstructure:"max_size"`       // MB
	MaxAge     int    `yaml:"max_age" mapstructure:"max_age"`         // days
	MaxBackups int    `yaml:"max_backups" mapstructure:"max_backups"` // number of backup files
	Compress   bool   `yaml:"compress" mapstructure:"compress"`
}

type MonitoringConfig struct {
	Tracing TracingConfig `yaml:"tracing" mapstructure:"tracing"`
}

// TracingConfig OpenTelemetry 追踪配置
type TracingConfig struct {
	Enabled     bool    `yaml:"enabled" mapstructure:"enabled"`
	Endpoint    string  `yaml:"endpoint" mapstructure:"endpoint"`
	Insecure    bool    `yaml:"insecure" mapstructure:"insecure"`
	SampleRatio float64 `yaml:"sample_ratio" mapstructure:"sample_ratio"`
	ServiceName string  `yaml:"service_name" mapstructure:"service_name"`
}

func Load() *Config {
	config := GetDefaultConfig()
	if err := viper.Unmarshal(config); err != nil {
		panic(err)
	}
	return config
}

// Validate 启动期配置校验
func (c *Config) Validate() error {
	if len(c.AI.APIKeys) == 0 {
		return fmt.Errorf("ai.api_keys: at least one API credential is required")
	}
	if c.AI.RetryBudget < 0 {
		return fmt.Errorf("ai.retry_budget must be >= 0")
	}
	if c.AI.RotationBudget < 0 {
		return fmt.Errorf("ai.rotation_budget must be >= 0")
	}
	if c.Watcher.DebounceWindow <= 0 {
		return fmt.Errorf("watcher.debounce_window must be positive")
	}
	return nil
}

// GetDefaultConfig 返回默认配置
func GetDefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host: "0.0.0.0",
			Port: 8080,
		},
		Database: DatabaseConfig{
			Host:            "localhost",
			Port:            5432,
			User:            "postgres",
			Password:        "password",
			Name:            "tiketai",
			MaxOpenConns:    100,
			MaxIdleConns:    10,
			ConnMaxLifetime: 3600 * time.Second,
		},
		AI: AIConfig{
			Model:        "gemini-2.0-flash",
			BaseURL:      "https://generativelanguage.googleapis.com/v1beta",
			Timeout:      30 * time.Second,
			RetryBudget:  2,
			RetryBackoff: 1500 * time.Millisecond,
		},
		Watcher: WatcherConfig{
			DebounceWindow: 3 * time.Second,
		},
		Kafka: KafkaConfig{
			Topic: "ticket.analysis",
		},
		JWT: JWTConfig{
			Secret:    "default-secret-key",
			ExpiresIn: 24 * time.Hour,
		},
		Log: LogConfig{
			Level:      "info",
			Format:     "json",
			Output:     "both",
			FilePath:   "./logs/tiketai.log",
			MaxSize:    100,
			MaxAge:     7,
			MaxBackups: 3,
			Compress:   true,
		},
		Monitoring: MonitoringConfig{
			Tracing: TracingConfig{
				Enabled:     false,
				Endpoint:    "http://localhost:4317",
				Insecure:    true,
				SampleRatio: 0.1,
				ServiceName: "tiketai",
			},
		},
	}
}
