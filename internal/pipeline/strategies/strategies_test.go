package strategies

import (
	"errors"
	"testing"
	"time"

	"dartcam/internal/pipeline"
)

var t0 = time.Date(2024, 5, 1, 20, 0, 0, 0, time.UTC)

func TestScheduledStrategy(t *testing.T) {
	s := NewScheduledStrategy(30 * time.Second)
	idle := pipeline.EngineState{Aligned: true}

	if !s.ShouldRecalibrate(t0, idle) {
		t.Fatal("first tick should recalibrate")
	}
	s.OnCalibrationComplete(t0, nil)
	if s.ShouldRecalibrate(t0.Add(29*time.Second), idle) {
		t.Error("recalibrated before the interval")
	}
	if !s.ShouldRecalibrate(t0.Add(30*time.Second), idle) {
		t.Error("did not recalibrate after the interval")
	}
	if s.ShouldRecalibrate(t0.Add(time.Minute), pipeline.EngineState{Settling: true}) {
		t.Error("recalibrated while a dart was settling")
	}
	if s.ShouldRecalibrate(t0.Add(time.Minute), pipeline.EngineState{Calibrating: true}) {
		t.Error("recalibrated during a calibration")
	}

	s.Reset()
	if !s.ShouldRecalibrate(t0.Add(time.Second), idle) {
		t.Error("Reset did not clear the last run")
	}
}

func TestAdaptiveStrategyRetriesUntilAligned(t *testing.T) {
	s := NewAdaptiveStrategy(60*time.Second, 0)
	s.OnCalibrationComplete(t0, errors.New("no board"))

	if !s.ShouldRecalibrate(t0.Add(20*time.Second), pipeline.EngineState{}) {
		t.Error("no quick retry after a failure")
	}

	s.OnCalibrationComplete(t0, nil)
	if s.ShouldRecalibrate(t0.Add(20*time.Second), pipeline.EngineState{Aligned: true}) {
		t.Error("aligned board retried on the short interval")
	}
	if !s.ShouldRecalibrate(t0.Add(20*time.Second), pipeline.EngineState{Aligned: false}) {
		t.Error("unaligned board did not retry")
	}
	if !s.ShouldRecalibrate(t0.Add(60*time.Second), pipeline.EngineState{Aligned: true}) {
		t.Error("aligned board missed the regular interval")
	}
}

func TestAdaptiveRetryFloor(t *testing.T) {
	s := NewAdaptiveStrategy(6*time.Second, 0)
	if s.retry != 5*time.Second {
		t.Errorf("retry = %v, want 5s floor", s.retry)
	}
	s = NewAdaptiveStrategy(3*time.Second, 0)
	if s.retry != 3*time.Second {
		t.Errorf("retry = %v, want capped at interval", s.retry)
	}
}

func TestDisabledStrategy(t *testing.T) {
	s := NewDisabledStrategy()
	if s.ShouldRecalibrate(t0, pipeline.EngineState{}) {
		t.Error("manual strategy recalibrated")
	}
}

func TestCreate(t *testing.T) {
	tests := []struct {
		mode     pipeline.RecalibrationMode
		interval time.Duration
		want     string
		wantErr  bool
	}{
		{pipeline.RecalibrationManual, time.Minute, "manual", false},
		{pipeline.RecalibrationScheduled, time.Minute, "scheduled", false},
		{pipeline.RecalibrationScheduled, 0, "manual", false},
		{pipeline.RecalibrationAdaptive, time.Minute, "adaptive", false},
		{"continuous", time.Minute, "", true},
	}
	for _, tt := range tests {
		s, err := Create(tt.mode, tt.interval)
		if tt.wantErr {
			if err == nil {
				t.Errorf("Create(%q) succeeded", tt.mode)
			}
			continue
		}
		if err != nil {
			t.Fatalf("Create(%q): %v", tt.mode, err)
		}
		if s.Name() != tt.want {
			t.Errorf("Create(%q, %v) = %s, want %s", tt.mode, tt.interval, s.Name(), tt.want)
		}
	}
}
