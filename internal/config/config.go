// Package config reads storefront settings from the environment and an optional .env file.
package config

import (
	"fmt"
	"log"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds everything main needs to assemble the service.
type Config struct {
	AppPort     string `validate:"required"`
	DBDriver    string `validate:"oneof=sqlite postgres"`
	DatabaseDSN string `validate:"required"`
	JWTSecret   string `validate:"required,min=8"`

	// Empty RabbitMQURL disables order events.
	RabbitMQURL string `validate:"omitempty,url"`

	// Empty RedisAddr selects the in-process idempotency store.
	RedisAddr      string
	RedisPassword  string
	RedisDB        int           `validate:"gte=0"`
	IdempotencyTTL time.Duration `validate:"gt=0"`

	SeedDemoData bool

	// Admin account created at startup when AdminUsername is set.
	AdminUsername string
	AdminEmail    string `validate:"omitempty,email"`
	AdminPassword string `validate:"omitempty,min=6"`
}

// Load reads a .env file if one exists, then the environment, over built-in defaults.
func Load() (Config, error) {
	if err := godotenv.Load(); err == nil {
		log.Println("Loaded settings from .env")
	}
	return FromViper(newViper())
}

func newViper() *viper.Viper {
	v := viper.New()
	v.SetDefault("APP_PORT", ":8080")
	v.SetDefault("DB_DRIVER", "sqlite")
	v.SetDefault("DATABASE_DSN", "storefront.db")
	v.SetDefault("JWT_SECRET", "change-me-in-production")
	v.SetDefault("RABBITMQ_URL", "")
	v.SetDefault("REDIS_ADDR", "")
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("REDIS_DB", 0)
	v.SetDefault("IDEMPOTENCY_TTL", "24h")
	v.SetDefault("SEED_DEMO_DATA", false)
	v.SetDefault("ADMIN_USERNAME", "")
	v.SetDefault("ADMIN_EMAIL", "")
	v.SetDefault("ADMIN_PASSWORD", "")
	v.AutomaticEnv()
	return v
}

// FromViper builds and validates a Config from v.
func FromViper(v *viper.Viper) (Config, error) {
	cfg := Config{
		AppPort:        v.GetString("APP_PORT"),
		DBDriver:       v.GetString("DB_DRIVER"),
		DatabaseDSN:    v.GetString("DATABASE_DSN"),
		JWTSecret:      v.GetString("JWT_SECRET"),
		RabbitMQURL:    v.GetString("RABBITMQ_URL"),
		RedisAddr:      v.GetString("REDIS_ADDR"),
		RedisPassword:  v.GetString("REDIS_PASSWORD"),
		RedisDB:        v.GetInt("REDIS_DB"),
		IdempotencyTTL: v.GetDuration("IDEMPOTENCY_TTL"),
		SeedDemoData:   v.GetBool("SEED_DEMO_DATA"),
		AdminUsername:  v.GetString("ADMIN_USERNAME"),
		AdminEmail:     v.GetString("ADMIN_EMAIL"),
		AdminPassword:  v.GetString("ADMIN_PASSWORD"),
	}
	if err := validator.New().Struct(cfg); err != nil {
		return Config{}, fmt.Errorf("invalid configuration: %w", err)
	}
	if cfg.AdminUsername != "" && (cfg.AdminEmail == "" || cfg.AdminPassword == "") {
		return Config{}, fmt.Errorf("invalid configuration: ADMIN_USERNAME needs ADMIN_EMAIL and ADMIN_PASSWORD")
	}
	return cfg, nil
}
