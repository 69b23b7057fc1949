// Package design describes the dartcam HTTP API in the goa DSL. The
// handlers in internal/services implement these methods by hand.
package design

import (
	. "goa.design/goa/v3/dsl"
)

var _ = API("dartcam", func() {
	Title("dartcam")
	Description("Dart landing detection and board calibration service")
	Version("1.0")
	Server("dartcam", func() {
		Host("localhost", func() {
			URI("http://localhost:8080")
		})
	})
})

var ServiceError = Type("ServiceError", func() {
	Description("Error body returned by every endpoint")
	Field(1, "name", String, "Error name", func() {
		Enum("bad_request", "unauthorized", "conflict", "calibration_failed", "unavailable", "internal")
	})
	Field(2, "message", String, "Human readable message")
	Field(3, "id", String, "Request ID")
	Required("name", "message")
})

var Calibration = Type("Calibration", func() {
	Description("Board ellipse in a frame")
	Field(1, "cx", Float64, "Centre X, fraction of frame width")
	Field(2, "cy", Float64, "Centre Y, fraction of frame height")
	Field(3, "rx", Float64, "Semi-major axis, fraction of min(width, height)")
	Field(4, "ry", Float64, "Semi-minor axis, fraction of min(width, height)")
	Field(5, "angle", Float64, "Major axis direction in radians")
	Field(6, "rotation", Float64, "Offset of segment 20 from straight up in radians")
	Required("cx", "cy", "rx", "ry", "angle", "rotation")
})

var CalibrationRecord = Type("CalibrationRecord", func() {
	Description("An applied calibration")
	Field(1, "id", String)
	Field(2, "calibration", Calibration)
	Field(3, "manual", Boolean, "Operator triggered; replaced the board")
	Field(4, "blended", Boolean, "Background pass blended into the previous board")
	Field(5, "source", String, "Initial circle source: hint or hough")
	Field(6, "rays", Int, "Edge rays used in the ellipse fit")
	Field(7, "created_at", String, func() {
		Format(FormatDateTime)
	})
	Required("id", "calibration", "manual", "blended", "created_at")
})

var HitEvent = Type("HitEvent", func() {
	Description("A classified landing")
	Field(1, "seq", UInt64, "Monotonic sequence number")
	Field(2, "id", String, "Event ID", func() {
		Format(FormatUUID)
	})
	Field(3, "game", String, "Active drill", func() {
		Enum("tons", "ladder", "jdc", "atc")
	})
	Field(4, "number", Int, "Board number: 1-20, 25 for bull, 0 for none")
	Field(5, "multiplier", Int, "0 for a miss, 1-3 otherwise")
	Field(6, "confidence", Float64, "Confidence 0-0.99")
	Field(7, "label", String, "Scorer label, e.g. T20, DBULL, MISS")
	Field(8, "score", Int, "Points value")
	Field(9, "timestamp", String, func() {
		Format(FormatDateTime)
	})
	Required("seq", "id", "game", "number", "multiplier", "confidence", "label", "score", "timestamp")
})

var EngineStatus = Type("EngineStatus", func() {
	Field(1, "status", String, "Status line shown to the player")
	Field(2, "acquiring", Boolean)
	Field(3, "calibrating", Boolean)
	Field(4, "hint_ready", Boolean)
	Field(5, "calibration", Calibration, "Current board, absent before the first calibration")
	Field(6, "last_hit", HitEvent)
	Required("status", "acquiring", "calibrating", "hint_ready")
})

var Settings = Type("Settings", func() {
	Description("Runtime tunables; on update every field is optional")
	Field(1, "lens_strength", Float64, func() {
		Minimum(-0.5)
		Maximum(0.5)
	})
	Field(2, "fallback_radius", Float64, "Clamped to 0.25-0.48")
	Field(3, "sample_interval_ms", Int64, func() {
		Minimum(50)
		Maximum(5000)
	})
	Field(4, "recal_interval_seconds", Float64, "0 disables background recalibration", func() {
		Minimum(0)
	})
	Field(5, "blend_factor", Float64, func() {
		Minimum(0)
		Maximum(1)
	})
	Field(6, "game", String, func() {
		Enum("tons", "ladder", "jdc", "atc")
	})
})

var _ = Service("health", func() {
	Description("Liveness and readiness probes")

	Method("healthz", func() {
		Result(Empty)
		HTTP(func() {
			GET("/healthz")
			Response(StatusOK)
		})
	})

	Method("readyz", func() {
		Result(Empty)
		Error("unavailable", ServiceError, "Database not reachable")
		HTTP(func() {
			GET("/readyz")
			Response(StatusOK)
			Response("unavailable", StatusServiceUnavailable)
		})
	})
})

var _ = Service("auth", func() {
	Description("Operator login")

	Method("login", func() {
		Payload(func() {
			Field(1, "username", String)
			Field(2, "password", String)
			Required("username", "password")
		})
		Result(func() {
			Field(1, "token", String, "JWT bearer token")
			Field(2, "expires_at", Int64, "Unix seconds")
			Required("token", "expires_at")
		})
		Error("unauthorized", ServiceError)
		Error("bad_request", ServiceError, "Authentication is disabled")
		HTTP(func() {
			POST("/api/v1/auth/login")
			Response(StatusOK)
			Response("unauthorized", StatusUnauthorized)
			Response("bad_request", StatusBadRequest)
		})
	})

	Method("status", func() {
		Result(func() {
			Field(1, "enabled", Boolean)
			Field(2, "authenticated", Boolean)
			Field(3, "username", String)
			Required("enabled", "authenticated")
		})
		HTTP(func() {
			GET("/api/v1/auth/status")
			Response(StatusOK)
		})
	})
})

var _ = Service("camera", func() {
	Description("Acquisition and calibration")

	Method("status", func() {
		Result(EngineStatus)
		HTTP(func() {
			GET("/api/v1/status")
			Response(StatusOK)
		})
	})

	Method("start", func() {
		Result(EngineStatus)
		Error("unavailable", ServiceError, "Camera access failed")
		HTTP(func() {
			POST("/api/v1/camera/start")
			Response(StatusOK)
			Response("unavailable", StatusServiceUnavailable)
		})
	})

	Method("stop", func() {
		Result(EngineStatus)
		HTTP(func() {
			POST("/api/v1/camera/stop")
			Response(StatusOK)
		})
	})

	Method("calibrate", func() {
		Description("Run a manual calibration; blocks until it finishes")
		Result(func() {
			Field(1, "calibration", Calibration)
			Field(2, "status", String)
			Field(3, "tilt", Float64)
			Field(4, "rotation_deg", Float64)
			Required("calibration", "status")
		})
		Error("conflict", ServiceError, "Camera off or calibration already running")
		Error("calibration_failed", ServiceError, "No board found")
		HTTP(func() {
			POST("/api/v1/calibrate")
			Response(StatusOK)
			Response("conflict", StatusConflict)
			Response("calibration_failed", StatusUnprocessableEntity)
		})
	})
})

var _ = Service("config", func() {
	Description("Engine tunables, persisted across restarts")

	Method("get", func() {
		Result(Settings)
		HTTP(func() {
			GET("/api/v1/settings")
			Response(StatusOK)
		})
	})

	Method("update", func() {
		Payload(Settings)
		Result(Settings)
		Error("bad_request", ServiceError)
		HTTP(func() {
			PUT("/api/v1/settings")
			Response(StatusOK)
			Response("bad_request", StatusBadRequest)
		})
	})
})

var _ = Service("history", func() {
	Description("Persisted hits and calibrations")

	Method("hits", func() {
		Payload(func() {
			Field(1, "limit", Int, func() {
				Default(100)
				Minimum(1)
			})
			Field(2, "game", String)
			Field(3, "since", String, func() {
				Format(FormatDateTime)
			})
		})
		Result(ArrayOf(HitEvent))
		Error("bad_request", ServiceError)
		HTTP(func() {
			GET("/api/v1/hits")
			Param("limit")
			Param("game")
			Param("since")
			Response(StatusOK)
			Response("bad_request", StatusBadRequest)
		})
	})

	Method("calibrations", func() {
		Payload(func() {
			Field(1, "limit", Int, func() {
				Default(100)
				Minimum(1)
			})
		})
		Result(ArrayOf(CalibrationRecord))
		HTTP(func() {
			GET("/api/v1/calibrations")
			Param("limit")
			Response(StatusOK)
		})
	})
})
