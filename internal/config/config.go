package config

import (
	"log/slog"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/halcyonlabs/relay/pkg/logger"
)

func MustInit() {
	if err := godotenv.Load("./.env"); err != nil {
		panic("error while loading .env file: " + err.Error())
	}
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath("/etc/relay-svc")
	viper.AddConfigPath(".")
	if err := viper.ReadInConfig(); err != nil {
		panic("error while reading config file: " + err.Error())
	}
	setDefaults()
	SetupLogger()
}

// setDefaults fills in the tunables the config file may omit.
func setDefaults() {
	viper.SetDefault("projector.batch_size", 100)
	viper.SetDefault("projector.max_concurrent_workers", 4)
	viper.SetDefault("projector.sleep_busy", "50ms")
	viper.SetDefault("projector.sleep_idle", "500ms")
	viper.SetDefault("projector.sleep_idle_max", "30s")
	viper.SetDefault("projector.error_retry_delay", "5s")
	viper.SetDefault("projector.tenant_refresh_interval", "30s")
	viper.SetDefault("projector.default_tenant_id", "default")
	viper.SetDefault("retry.max_retry_attempts", 5)
	viper.SetDefault("retry.backoff_base_seconds", 30)
	viper.SetDefault("retry.backoff_multiplier", 2.0)
	viper.SetDefault("retry.backoff_max_exponent", 6)
	viper.SetDefault("dispatch.strategy", "all_or_nothing")
	viper.SetDefault("dispatch.permanent_bypasses_retry", true)
	viper.SetDefault("routing.zero_match_is_error", false)
	viper.SetDefault("postgres.migrations_path", "./migrations")
}

func SetupLogger() {
	handler := logger.NewHandler(nil)
	log := slog.New(handler)
	slog.SetDefault(log)
}
