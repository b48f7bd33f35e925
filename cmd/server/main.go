package main

import (
	"github.com/spf13/viper"

	"tiketai/cmd/cli"
)

func main() {
	// 读取配置文件（默认 ./config.yml）
	viper.AddConfigPath(".")
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AutomaticEnv()
	_ = viper.ReadInConfig()

	cli.RunServer()
}
