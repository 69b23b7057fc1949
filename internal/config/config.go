// Package config loads dartcam settings from the environment.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
)

// Config is the full runtime configuration of the service.
type Config struct {
	Env      string `validate:"oneof=development production test"`
	HTTPAddr string `validate:"required,hostname_port"`
	DBPath   string `validate:"required"`

	// HitRetention prunes older hits; zero keeps them forever.
	HitRetention time.Duration `validate:"min=0"`

	// Device is a V4L2 path, an ffmpeg input URL, or an http(s) snapshot URL.
	Device    string `validate:"required"`
	WorkWidth int    `validate:"min=64,max=1920"`

	SampleInterval time.Duration `validate:"min=50ms,max=5s"`
	RecalInterval  time.Duration `validate:"min=0,max=1h"`
	RecalMode      string        `validate:"oneof=manual scheduled adaptive"`
	BlendFactor    float64       `validate:"gt=0,lte=1"`
	LensStrength   float64       `validate:"min=-0.5,max=0.5"`
	BoardRadius    float64       `validate:"min=0.25,max=0.48"`
	Game           string        `validate:"oneof=tons ladder jdc atc"`

	HintProvider     string  `validate:"oneof=none http grpc"`
	HintHTTPEndpoint string  `validate:"required_if=HintProvider http"`
	HintGRPCEndpoint string  `validate:"required_if=HintProvider grpc"`
	HintConfidence   float64 `validate:"gte=0,lte=1"`

	AuthEnabled  bool
	AuthUsername string
	AuthPassword string
	JWTSecret    string
	JWTExpiry    time.Duration
}

var validate = validator.New()

// Load reads an optional .env file and then the process environment.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}
	return FromEnv()
}

// FromEnv builds and validates a Config from environment variables only.
func FromEnv() (*Config, error) {
	cfg := &Config{
		Env:              getEnv("APP_ENV", "development"),
		HTTPAddr:         getEnv("DARTCAM_HTTP_ADDR", "0.0.0.0:8080"),
		DBPath:           getEnv("DARTCAM_DB_PATH", "./storage/dartcam.db"),
		HitRetention:     getDuration("DARTCAM_HIT_RETENTION", 0),
		Device:           getEnv("DARTCAM_DEVICE", "/dev/video0"),
		WorkWidth:        getInt("DARTCAM_WORK_WIDTH", 320),
		SampleInterval:   time.Duration(getInt("DARTCAM_SAMPLE_MS", 300)) * time.Millisecond,
		RecalInterval:    time.Duration(getInt("DARTCAM_RECAL_SECONDS", 30)) * time.Second,
		RecalMode:        getEnv("DARTCAM_RECAL_MODE", "scheduled"),
		BlendFactor:      getFloat("DARTCAM_BLEND", 0.3),
		LensStrength:     getFloat("DARTCAM_LENS_K", 0),
		BoardRadius:      getFloat("DARTCAM_BOARD_RADIUS", 0.36),
		Game:             getEnv("DARTCAM_GAME", "tons"),
		HintProvider:     getEnv("HINT_PROVIDER", "none"),
		HintHTTPEndpoint: os.Getenv("HINT_HTTP_ENDPOINT"),
		HintGRPCEndpoint: os.Getenv("HINT_GRPC_ENDPOINT"),
		HintConfidence:   getFloat("HINT_CONF_THRESHOLD", 0.25),
		AuthEnabled:      os.Getenv("AUTH_ENABLED") == "true",
		AuthUsername:     getEnv("AUTH_USERNAME", "admin"),
		AuthPassword:     os.Getenv("AUTH_PASSWORD"),
		JWTSecret:        os.Getenv("JWT_SECRET"),
		JWTExpiry:        getDuration("JWT_EXPIRY", 24*time.Hour),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks field constraints.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	if c.AuthEnabled && c.AuthPassword == "" {
		return errors.New("invalid configuration: AUTH_PASSWORD is required when AUTH_ENABLED=true")
	}
	return nil
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func getFloat(key string, def float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}

func getDuration(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}
