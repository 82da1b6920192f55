package main

import (
	"strings"

	"github.com/dinodialabs/hub-platform/internal/api/http"
	"github.com/dinodialabs/hub-platform/internal/auth"
	"github.com/dinodialabs/hub-platform/internal/db"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Config struct {
	Log      LogConfig
	Http     http.Config
	Database db.Config
	Crypto   CryptoConfig
	Auth     auth.Config
}

type CryptoConfig struct {
	// AtRestKey is 32 bytes of hex used to encrypt bootstrap secrets,
	// sync secrets and hub token plaintexts at rest.
	AtRestKey string `mapstructure:"at_rest_key"`
}

var config Config

func InitConfig() {
	_ = godotenv.Load()

	viper.SetConfigName("application")
	viper.AddConfigPath(".")
	viper.AddConfigPath("./cmd/hub-platform-server")
	viper.SetConfigType("yaml")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	_ = viper.BindEnv("database.url", "DATABASE_URL")
	_ = viper.BindEnv("crypto.at_rest_key", "HUB_AT_REST_KEY")
	_ = viper.BindEnv("http.admin_api_key", "ADMIN_API_KEY")
	_ = viper.BindEnv("http.cron_secret", "CRON_SECRET")
	_ = viper.BindEnv("auth.secret", "SERVICE_JWT_SECRET")

	viper.SetDefault("http.port", 8080)
	viper.SetDefault("auth.issuer", "hub-platform")
	viper.SetDefault("auth.ttl_minutes", 60)

	if err := viper.ReadInConfig(); err != nil {
		panic(err)
	}

	if err := viper.Unmarshal(&config); err != nil {
		panic(err)
	}

	// Initialize logger with configured log level
	initLogger(config.Log.Level)
}
