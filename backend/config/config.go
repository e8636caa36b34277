package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/viper"
)

type Config struct {
	Running struct {
		Port int `mapstructure:"port"`
	} `mapstructure:"running"`
	Mysql struct {
		DSN string `mapstructure:"dsn"`
	} `mapstructure:"mysql"`
	Redis struct {
		// 为空时批注缓存退化为进程内实现
		Addrs    []string `mapstructure:"addrs"`
		Password string   `mapstructure:"password"`
	} `mapstructure:"redis"`
	Kafka struct {
		Brokers []string `mapstructure:"brokers"`
		Topic   string   `mapstructure:"topic"`
	} `mapstructure:"kafka"`
	Auth struct {
		Secret string `mapstructure:"secret"`
	} `mapstructure:"auth"`
	Blob struct {
		Dir     string `mapstructure:"dir"`
		BaseURL string `mapstructure:"baseurl"`
	} `mapstructure:"blob"`
	Upload struct {
		// 例如 "10MB"、"512KiB"
		MaxSize string `mapstructure:"maxsize"`
	} `mapstructure:"upload"`
	Editor struct {
		DebounceMs   int `mapstructure:"debouncems"`
		OverflowStep int `mapstructure:"overflowstep"`
		LineHeight   int `mapstructure:"lineheight"`
		CharWidth    int `mapstructure:"charwidth"`
	} `mapstructure:"editor"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("running.port", 3004)
	v.SetDefault("kafka.topic", "annotation-events")
	v.SetDefault("blob.dir", "./data/blobs")
	v.SetDefault("blob.baseurl", "http://localhost:3004")
	v.SetDefault("upload.maxsize", "10MB")
	v.SetDefault("editor.debouncems", 2000)
	v.SetDefault("editor.overflowstep", 25)
	v.SetDefault("editor.lineheight", 24)
	v.SetDefault("editor.charwidth", 8)
}

// Load 读取 annotationConfig.yaml；找不到文件时只用默认值
func Load(paths ...string) (*Config, error) {
	v := viper.New()
	setDefaults(v)
	v.SetConfigName("annotationConfig")
	v.SetConfigType("yaml")
	if len(paths) == 0 {
		// 兼容从项目根目录或 backend 目录启动
		paths = []string{"./backend/config", "./config", "."}
	}
	for _, p := range paths {
		v.AddConfigPath(p)
	}
	// 环境变量覆盖，例如 ANNOTATION_AUTH_SECRET
	v.SetEnvPrefix("ANNOTATION")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, err
		}
	}
	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, err
	}
	if _, err := cfg.UploadMaxBytes(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) UploadMaxBytes() (int64, error) {
	n, err := humanize.ParseBytes(c.Upload.MaxSize)
	if err != nil {
		return 0, fmt.Errorf("upload.maxsize %q: %w", c.Upload.MaxSize, err)
	}
	return int64(n), nil
}

func (c *Config) Debounce() time.Duration {
	return time.Duration(c.Editor.DebounceMs) * time.Millisecond
}
