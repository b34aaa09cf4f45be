package config

import (
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
		Addr     string `mapstructure:"addr"`
		Password string `mapstructure:"password"`
		// 快照缓存 TTL，秒
		SnapshotTTL int `mapstructure:"snapshotTtl"`
	} `mapstructure:"redis"`
	Kafka struct {
		Brokers []string `mapstructure:"brokers"`
		Topic   string   `mapstructure:"topic"`
	} `mapstructure:"kafka"`
	Auth struct {
		Secret     string `mapstructure:"secret"`
		AccessTTL  int    `mapstructure:"accessTtlMinutes"`
		RefreshTTL int    `mapstructure:"refreshTtlHours"`
	} `mapstructure:"auth"`
	Collab struct {
		// diff 的前向扫描窗口，0 取默认值
		DiffWindow int `mapstructure:"diffWindow"`
		// 提交并发上限（信号量容量）
		MaxInflight int `mapstructure:"maxInflight"`
	} `mapstructure:"collab"`
}

func Load() (*Config, error) {
	cfg := &Config{}
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	// 兼容从项目根目录或 cmd 目录启动
	v.AddConfigPath("./config")
	v.AddConfigPath(".")
	if err := v.ReadInConfig(); err != nil {
		return nil, err
	}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}
