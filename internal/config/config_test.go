package config

import (
	"testing"
	"time"
)

func TestFromEnvDefaults(t *testing.T) {
	t.Setenv("APP_ENV", "test")
	cfg, err := FromEnv()
	if err != nil {
		t.Fatalf("FromEnv: %v", err)
	}
	if cfg.SampleInterval != 300*time.Millisecond {
		t.Errorf("SampleInterval = %v, want 300ms", cfg.SampleInterval)
	}
	if cfg.RecalInterval != 30*time.Second {
		t.Errorf("RecalInterval = %v, want 30s", cfg.RecalInterval)
	}
	if cfg.BlendFactor != 0.3 || cfg.BoardRadius != 0.36 || cfg.WorkWidth != 320 {
		t.Errorf("unexpected defaults: %+v", cfg)
	}
	if cfg.RecalMode != "scheduled" {
		t.Errorf("RecalMode = %q", cfg.RecalMode)
	}
	if cfg.HintProvider != "none" {
		t.Errorf("HintProvider = %q", cfg.HintProvider)
	}
}

func TestFromEnvValidation(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
	}{
		{"unknown game", map[string]string{"DARTCAM_GAME": "cricket"}},
		{"radius too large", map[string]string{"DARTCAM_BOARD_RADIUS": "0.6"}},
		{"http provider without endpoint", map[string]string{"HINT_PROVIDER": "http"}},
		{"grpc provider without endpoint", map[string]string{"HINT_PROVIDER": "grpc"}},
		{"auth without password", map[string]string{"AUTH_ENABLED": "true"}},
		{"blend zero", map[string]string{"DARTCAM_BLEND": "0"}},
		{"unknown recalibration mode", map[string]string{"DARTCAM_RECAL_MODE": "always"}},
		{"hint confidence above one", map[string]string{"HINT_CONF_THRESHOLD": "1.5"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("APP_ENV", "test")
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			if _, err := FromEnv(); err == nil {
				t.Fatal("expected validation error")
			}
		})
	}
}

func TestFromEnvOverrides(t *testing.T) {
	t.Setenv("APP_ENV", "test")
	t.Setenv("DARTCAM_SAMPLE_MS", "150")
	t.Setenv("DARTCAM_LENS_K", "0.2")
	t.Setenv("HINT_PROVIDER", "grpc")
	t.Setenv("HINT_GRPC_ENDPOINT", "localhost:50051")
	t.Setenv("JWT_EXPIRY", "2h")

	cfg, err := FromEnv()
	if err != nil {
		t.Fatalf("FromEnv: %v", err)
	}
	if cfg.SampleInterval != 150*time.Millisecond || cfg.LensStrength != 0.2 {
		t.Errorf("overrides not applied: %+v", cfg)
	}
	if cfg.JWTExpiry != 2*time.Hour {
		t.Errorf("JWTExpiry = %v", cfg.JWTExpiry)
	}
}
