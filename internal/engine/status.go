package engine

import (
	"fmt"
	"math"
	"strings"

	"dartcam/internal/board"
	"dartcam/internal/scoring"
)

// Status strings shown to the player.
const (
	StatusIdle          = "Camera idle"
	StatusCameraOn      = "Camera on — tap Auto-Calibrate to align"
	StatusCalibrating   = "Calibrating..."
	StatusNoBoard       = "Board not detected — adjust camera or lighting"
	StatusStopped       = "Camera stopped"
	StatusNeedFrame     = "Need live camera feed before calibration"
	StatusAligned       = "Aligned"
	statusPartSeparator = " · "
)

// StatusAccessFailed reports a camera that could not be opened.
func StatusAccessFailed(err error) string {
	return "Camera access failed: " + err.Error()
}

// StatusCalibrationFailed reports a calibration pass that failed for a reason
// other than a missing board.
func StatusCalibrationFailed(err error) string {
	return "Calibration failed: " + err.Error()
}

// StatusFrameFailed reports a tick that could not process its frame.
func StatusFrameFailed(err error) string {
	return "Frame processing failed: " + err.Error()
}

// StatusForBoard describes a fresh calibration, noting tilt above 8% and
// rotation above 2°.
func StatusForBoard(cal board.Calibration) string {
	parts := []string{StatusAligned}
	rx, ry := math.Max(cal.RX, cal.RY), math.Min(cal.RX, cal.RY)
	if rx > 0 {
		if tilt := int(math.Round((1 - ry/rx) * 100)); tilt > 8 {
			parts = append(parts, fmt.Sprintf("tilt %d%%", tilt))
		}
	}
	if rot := int(math.Round(cal.RotationDegrees())); rot > 2 || rot < -2 {
		parts = append(parts, fmt.Sprintf("rot %d°", rot))
	}
	return strings.Join(parts, statusPartSeparator)
}

// StatusForHit is shown after every resolved landing.
func StatusForHit(h scoring.Hit) string {
	return fmt.Sprintf("Detected %s (%d%%)", scoring.Label(h), int(math.Round(h.Confidence*100)))
}
