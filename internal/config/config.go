/**
 * @description
 * Configuration management for the backend. Uses the Viper library to read
 * settings from environment variables (with an optional .env file),
 * providing defaults and validation in one place. Startup failure is
 * surfaced as a returned error, never a process exit, so the caller owns
 * the exit decision.
 *
 * @dependencies
 * - github.com/spf13/viper: Environment-variable configuration.
 */

package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// Config holds all configuration for the backend, loaded from environment
// variables.
type Config struct {
	ServerPort string `mapstructure:"PORT"`

	DatabaseURL string `mapstructure:"DATABASE_URL"`

	PaystackBaseURL   string `mapstructure:"PAYSTACK_BASE_URL"`
	PaystackSecretKey string `mapstructure:"PAYSTACK_SECRET_KEY"`

	VTPassBaseURL   string `mapstructure:"VTPASS_BASE_URL"`
	VTPassAPIKey    string `mapstructure:"VTPASS_API_KEY"`
	VTPassSecretKey string `mapstructure:"VTPASS_SECRET_KEY"`

	CloudinaryCloudName string `mapstructure:"CLOUDINARY_CLOUD_NAME"`
	CloudinaryAPIKey    string `mapstructure:"CLOUDINARY_API_KEY"`
	CloudinaryAPISecret string `mapstructure:"CLOUDINARY_API_SECRET"`

	JWTSecret string `mapstructure:"JWT_SECRET"`

	RedisURL                   string `mapstructure:"REDIS_URL"`
	PurchaseRateLimitPerMinute int    `mapstructure:"PURCHASE_RATE_LIMIT_PER_MINUTE"`

	RabbitMQURL         string `mapstructure:"RABBITMQ_URL"`
	WalletEventExchange string `mapstructure:"WALLET_EVENT_EXCHANGE"`

	ReconcileIntervalMinutes int `mapstructure:"RECONCILE_INTERVAL_MINUTES"`
	ReconcileMinAgeMinutes   int `mapstructure:"RECONCILE_MIN_AGE_MINUTES"`
	PayoutTimeoutSeconds     int `mapstructure:"PAYOUT_TIMEOUT_SECONDS"`
}

// LoadConfig reads configuration from environment variables, consulting an
// optional .env file under the given path.
func LoadConfig(path string) (config Config, err error) {
	viper.AddConfigPath(path)
	viper.SetConfigName(".env")
	viper.SetConfigType("env")

	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	viper.SetDefault("PORT", "8080")
	viper.SetDefault("PAYSTACK_BASE_URL", "https://api.paystack.co")
	viper.SetDefault("VTPASS_BASE_URL", "https://vtpass.com/api")
	viper.SetDefault("WALLET_EVENT_EXCHANGE", "callondemand.events")
	viper.SetDefault("PURCHASE_RATE_LIMIT_PER_MINUTE", 30)
	viper.SetDefault("RECONCILE_INTERVAL_MINUTES", 10)
	viper.SetDefault("RECONCILE_MIN_AGE_MINUTES", 15)
	viper.SetDefault("PAYOUT_TIMEOUT_SECONDS", 30)

	for _, key := range []string{
		"PORT",
		"DATABASE_URL",
		"PAYSTACK_BASE_URL",
		"PAYSTACK_SECRET_KEY",
		"VTPASS_BASE_URL",
		"VTPASS_API_KEY",
		"VTPASS_SECRET_KEY",
		"CLOUDINARY_CLOUD_NAME",
		"CLOUDINARY_API_KEY",
		"CLOUDINARY_API_SECRET",
		"JWT_SECRET",
		"REDIS_URL",
		"PURCHASE_RATE_LIMIT_PER_MINUTE",
		"RABBITMQ_URL",
		"WALLET_EVENT_EXCHANGE",
		"RECONCILE_INTERVAL_MINUTES",
		"RECONCILE_MIN_AGE_MINUTES",
		"PAYOUT_TIMEOUT_SECONDS",
	} {
		_ = viper.BindEnv(key)
	}

	// The .env file is optional; only a malformed one is worth surfacing.
	if err = viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return Config{}, fmt.Errorf("failed to read config file: %w", err)
		}
		err = nil
	}

	if err = viper.Unmarshal(&config); err != nil {
		return Config{}, err
	}

	config.DatabaseURL = strings.TrimSpace(config.DatabaseURL)
	config.PaystackSecretKey = strings.TrimSpace(config.PaystackSecretKey)
	config.JWTSecret = strings.TrimSpace(config.JWTSecret)
	config.RedisURL = strings.TrimSpace(config.RedisURL)
	config.RabbitMQURL = strings.TrimSpace(config.RabbitMQURL)

	if config.DatabaseURL == "" {
		return Config{}, fmt.Errorf("DATABASE_URL must be configured")
	}
	if config.PaystackSecretKey == "" {
		return Config{}, fmt.Errorf("PAYSTACK_SECRET_KEY must be configured")
	}
	if config.JWTSecret == "" {
		return Config{}, fmt.Errorf("JWT_SECRET must be configured")
	}

	if config.ReconcileIntervalMinutes <= 0 {
		config.ReconcileIntervalMinutes = 10
	}
	if config.ReconcileMinAgeMinutes <= 0 {
		config.ReconcileMinAgeMinutes = 15
	}
	if config.PayoutTimeoutSeconds <= 0 {
		config.PayoutTimeoutSeconds = 30
	}

	return config, nil
}
