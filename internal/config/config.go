package config

import (
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server    ServerConfig
	Storage   StorageConfig
	Queue     QueueConfig
	Engine    EngineConfig
	Redis     RedisConfig
	Auth      AuthConfig
	RateLimit RateLimitConfig
}

type ServerConfig struct {
	Port        string
	Env         string
	BodyLimitMB int
}

type StorageConfig struct {
	UploadDir     string
	OutputDir     string
	PublicBaseURL string
}

type QueueConfig struct {
	PollInterval    time.Duration
	CleanupInterval time.Duration
	Retention       time.Duration
}

type EngineConfig struct {
	// URL of the external rendering engine. Empty selects the local
	// ffmpeg engine.
	URL    string
	FFmpeg string
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

type AuthConfig struct {
	// Secret enables bearer-token auth on the render routes when set.
	Secret string
}

type RateLimitConfig struct {
	RenderPerHour int
}

func Load() (*Config, error) {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("./config")

	viper.AutomaticEnv()

	// Defaults
	viper.SetDefault("server.port", "3000")
	viper.SetDefault("server.env", "development")
	viper.SetDefault("server.body_limit_mb", 200)
	viper.SetDefault("storage.upload_dir", "./data/uploads")
	viper.SetDefault("storage.output_dir", "./data/output")
	viper.SetDefault("storage.public_base_url", "http://localhost:3000")
	viper.SetDefault("queue.poll_interval_seconds", 2)
	viper.SetDefault("queue.cleanup_interval_minutes", 60)
	viper.SetDefault("queue.retention_hours", 24)
	viper.SetDefault("engine.url", "")
	viper.SetDefault("engine.ffmpeg", "ffmpeg")
	viper.SetDefault("redis.addr", "localhost:6379")
	viper.SetDefault("redis.password", "")
	viper.SetDefault("redis.db", 0)
	viper.SetDefault("auth.secret", "")
	viper.SetDefault("ratelimit.render_per_hour", 20)

	// Config file is optional
	_ = viper.ReadInConfig()

	cfg := &Config{
		Server: ServerConfig{
			Port:        viper.GetString("server.port"),
			Env:         viper.GetString("server.env"),
			BodyLimitMB: viper.GetInt("server.body_limit_mb"),
		},
		Storage: StorageConfig{
			UploadDir:     viper.GetString("storage.upload_dir"),
			OutputDir:     viper.GetString("storage.output_dir"),
			PublicBaseURL: viper.GetString("storage.public_base_url"),
		},
		Queue: QueueConfig{
			PollInterval:    time.Duration(viper.GetInt("queue.poll_interval_seconds")) * time.Second,
			CleanupInterval: time.Duration(viper.GetInt("queue.cleanup_interval_minutes")) * time.Minute,
			Retention:       time.Duration(viper.GetInt("queue.retention_hours")) * time.Hour,
		},
		Engine: EngineConfig{
			URL:    viper.GetString("engine.url"),
			FFmpeg: viper.GetString("engine.ffmpeg"),
		},
		Redis: RedisConfig{
			Addr:     viper.GetString("redis.addr"),
			Password: viper.GetString("redis.password"),
			DB:       viper.GetInt("redis.db"),
		},
		Auth: AuthConfig{
			Secret: viper.GetString("auth.secret"),
		},
		RateLimit: RateLimitConfig{
			RenderPerHour: viper.GetInt("ratelimit.render_per_hour"),
		},
	}

	return cfg, nil
}
