package config

import (
	"context"
	"fmt"
	"log/slog"
	"os/exec"
	"reflect"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

// Thumbnail dispatch modes.
const (
	DispatchInline   = "inline"
	DispatchPostgres = "postgres"
	DispatchKafka    = "kafka"
)

type Config struct {
	// WebServer Configuration
	WebServerPort int    `mapstructure:"WEBSERVER_PORT"`
	SessionSecret string `mapstructure:"SESSION_SECRET"`

	// Database Configuration
	DatabaseDSN     string `mapstructure:"DATABASE_DSN" validate:"required"`
	DatabaseRetries int    `mapstructure:"DATABASE_RETRIES"`

	Media     MediaConfig     `mapstructure:",squash"`
	Thumbnail ThumbnailConfig `mapstructure:",squash"`
	Kafka     KafkaConfig     `mapstructure:",squash"`

	MetricsEnabled bool `mapstructure:"METRICS_ENABLED"`
	// MetricsPort is where the thumbnailer serves /metrics and /healthz.
	MetricsPort int `mapstructure:"METRICS_PORT"`
}

type MediaConfig struct {
	Root          string `mapstructure:"MEDIA_ROOT" validate:"required"`
	URLPrefix     string `mapstructure:"MEDIA_URL" validate:"required"`
	UploadMaxSize string `mapstructure:"UPLOAD_MAX_SIZE" validate:"required"`

	// UploadMaxBytes is derived from UploadMaxSize.
	UploadMaxBytes uint64 `mapstructure:"-"`
}

type ThumbnailConfig struct {
	// FFmpegPath is resolved once at startup; an empty value means a PATH lookup.
	FFmpegPath string        `mapstructure:"FFMPEG_PATH"`
	Timeout    time.Duration `mapstructure:"THUMBNAIL_TIMEOUT" validate:"gt=0"`
	TempDir    string        `mapstructure:"THUMBNAIL_TEMP_DIR"`
	MaxWidth   int           `mapstructure:"THUMBNAIL_MAX_WIDTH" validate:"gte=0"`
	Dispatch   string        `mapstructure:"THUMBNAIL_DISPATCH" validate:"oneof=inline postgres kafka"`
	Workers    int           `mapstructure:"THUMBNAIL_WORKERS" validate:"gte=1"`
}

type KafkaConfig struct {
	Brokers []string `mapstructure:"KAFKA_BROKERS"`
	Topic   string   `mapstructure:"KAFKA_TOPIC"`
	GroupID string   `mapstructure:"KAFKA_GROUP_ID"`
}

// use reflect to bind environment variables based on mapstructure tags
func bindEnv(c Config) {
	val := reflect.ValueOf(c)
	typ := val.Type()

	for i := 0; i < val.NumField(); i++ {
		field := typ.Field(i)
		fieldVal := val.Field(i)
		tag := field.Tag.Get("mapstructure")

		squash := strings.Contains(tag, "squash")
		if tag != "" && tag != "-" && !squash {
			viper.BindEnv(tag)
		}

		// Handle nested structs
		if field.Type.Kind() == reflect.Struct && (tag == "" || squash) {
			nestedTyp := fieldVal.Type()
			for j := 0; j < fieldVal.NumField(); j++ {
				nestedField := nestedTyp.Field(j)
				nestedTag := nestedField.Tag.Get("mapstructure")
				if nestedTag != "" && nestedTag != "-" {
					viper.BindEnv(nestedTag)
				}
			}
		}
	}
}

func LoadConfig(ctx context.Context) (*Config, error) {
	bindEnv(Config{})
	viper.AutomaticEnv()

	// Defaults
	viper.SetDefault("WEBSERVER_PORT", 8080)
	viper.SetDefault("DATABASE_RETRIES", 10)
	viper.SetDefault("MEDIA_ROOT", "./media")
	viper.SetDefault("MEDIA_URL", "/media/")
	viper.SetDefault("UPLOAD_MAX_SIZE", "200MB")
	viper.SetDefault("THUMBNAIL_TIMEOUT", 15*time.Second)
	viper.SetDefault("THUMBNAIL_MAX_WIDTH", 1280)
	viper.SetDefault("THUMBNAIL_DISPATCH", DispatchPostgres)
	viper.SetDefault("THUMBNAIL_WORKERS", 2)
	viper.SetDefault("KAFKA_TOPIC", "edit-thumbnails")
	viper.SetDefault("KAFKA_GROUP_ID", "thumbnailer")
	viper.SetDefault("METRICS_ENABLED", true)
	viper.SetDefault("METRICS_PORT", 9090)

	cfg := Config{}
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	validate := validator.New()
	if err := validate.Struct(cfg); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	maxBytes, err := humanize.ParseBytes(cfg.Media.UploadMaxSize)
	if err != nil {
		return nil, fmt.Errorf("parse UPLOAD_MAX_SIZE: %w", err)
	}
	cfg.Media.UploadMaxBytes = maxBytes

	cfg.Kafka.Brokers = compact(cfg.Kafka.Brokers)
	if cfg.Thumbnail.Dispatch == DispatchKafka && len(cfg.Kafka.Brokers) == 0 {
		return nil, fmt.Errorf("validate config: KAFKA_BROKERS is required when THUMBNAIL_DISPATCH=%s", DispatchKafka)
	}

	slog.Info("Loaded configuration",
		"port", cfg.WebServerPort,
		"media_root", cfg.Media.Root,
		"upload_max", humanize.Bytes(cfg.Media.UploadMaxBytes),
		"thumbnail_dispatch", cfg.Thumbnail.Dispatch,
		"thumbnail_timeout", cfg.Thumbnail.Timeout,
	)

	return &cfg, nil
}

// ResolveFFmpeg returns the absolute path of the frame extraction binary.
// It is called once at process start and the result is injected where needed.
func (c *Config) ResolveFFmpeg() (string, error) {
	name := strings.TrimSpace(c.Thumbnail.FFmpegPath)
	if name == "" {
		name = "ffmpeg"
	}
	path, err := exec.LookPath(name)
	if err != nil {
		return "", fmt.Errorf("resolve ffmpeg %q: %w", name, err)
	}
	return path, nil
}

// compact splits comma separated entries and drops blanks.
func compact(in []string) []string {
	var out []string
	for _, raw := range in {
		for _, part := range strings.Split(raw, ",") {
			if v := strings.TrimSpace(part); v != "" {
				out = append(out, v)
			}
		}
	}
	return out
}
