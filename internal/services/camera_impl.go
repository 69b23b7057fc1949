package services

import (
	"context"
	"errors"
	"net/http"
	"time"

	"dartcam/internal/board"
	"dartcam/internal/calibration"
	"dartcam/internal/engine"
	"dartcam/internal/logger"
)

// CameraImplementation exposes acquisition and calibration of the engine
type CameraImplementation struct {
	engine *engine.Engine
	// runCtx outlives requests; the capture loop is bound to it.
	runCtx context.Context
}

// NewCameraService creates a new camera service implementation
func NewCameraService(runCtx context.Context, e *engine.Engine) *CameraImplementation {
	return &CameraImplementation{engine: e, runCtx: runCtx}
}

// Start begins acquisition. Starting a running camera is a no-op.
func (c *CameraImplementation) Start(w http.ResponseWriter, r *http.Request) {
	if err := c.engine.Start(c.runCtx); err != nil {
		if errors.Is(err, engine.ErrAcquisition) {
			writeError(r.Context(), w, unavailable(err.Error()))
			return
		}
		writeError(r.Context(), w, err)
		return
	}
	logger.Info(logger.Fields{"request_id": requestID(r.Context())}, "[API] camera started")
	writeJSON(r.Context(), w, http.StatusOK, c.engine.Status())
}

// Stop ends acquisition.
func (c *CameraImplementation) Stop(w http.ResponseWriter, r *http.Request) {
	c.engine.Stop()
	logger.Info(logger.Fields{"request_id": requestID(r.Context())}, "[API] camera stopped")
	writeJSON(r.Context(), w, http.StatusOK, c.engine.Status())
}

// Status returns the engine snapshot.
func (c *CameraImplementation) Status(w http.ResponseWriter, r *http.Request) {
	writeJSON(r.Context(), w, http.StatusOK, c.engine.Status())
}

// CalibrationResult is the body of a successful manual calibration.
type CalibrationResult struct {
	Calibration board.Calibration `json:"calibration"`
	Status      string            `json:"status"`
	Tilt        float64           `json:"tilt"`
	RotationDeg float64           `json:"rotation_deg"`
}

// Calibrate runs a manual calibration and blocks until it finishes.
func (c *CameraImplementation) Calibrate(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 30*time.Second)
	defer cancel()

	cal, err := c.engine.Calibrate(ctx)
	switch {
	case errors.Is(err, engine.ErrNotAcquiring):
		writeError(r.Context(), w, conflict(engine.StatusNeedFrame))
		return
	case errors.Is(err, engine.ErrCalibrationInProgress):
		writeError(r.Context(), w, conflict(err.Error()))
		return
	case errors.Is(err, calibration.ErrCalibrationFailed):
		writeError(r.Context(), w, &ServiceError{Name: "calibration_failed", Message: c.engine.Status().Status, status: http.StatusUnprocessableEntity})
		return
	case err != nil:
		writeError(r.Context(), w, err)
		return
	}

	writeJSON(r.Context(), w, http.StatusOK, &CalibrationResult{
		Calibration: cal,
		Status:      c.engine.Status().Status,
		Tilt:        cal.Tilt(),
		RotationDeg: cal.RotationDegrees(),
	})
}
