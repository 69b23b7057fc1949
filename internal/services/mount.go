// Package services implements the HTTP API of the dartcam server.
package services

import (
	"net/http"

	goahttp "goa.design/goa/v3/http"
)

// MountPoint holds information about a mounted handler.
type MountPoint struct {
	Method  string
	Verb    string
	Pattern string
}

// Server lists the service implementations to mount. Nil members are skipped.
type Server struct {
	Health  *HealthImplementation
	Auth    *AuthImplementation
	Camera  *CameraImplementation
	Config  *ConfigImplementation
	History *HistoryImplementation
	// Preview serves the annotated JPEG and its MJPEG stream.
	Preview interface {
		ServeHTTP(http.ResponseWriter, *http.Request)
		ServeStream(http.ResponseWriter, *http.Request)
	}
	WS http.Handler

	Mounts []*MountPoint
}

// Mount registers every route on mux.
func (s *Server) Mount(mux goahttp.Muxer) {
	if s.Health != nil {
		s.handle(mux, "Healthz", "GET", "/healthz", s.Health.Healthz)
		s.handle(mux, "Readyz", "GET", "/readyz", s.Health.Readyz)
	}
	if s.Auth != nil {
		s.handle(mux, "Login", "POST", "/api/v1/auth/login", s.Auth.Login)
		s.handle(mux, "AuthStatus", "GET", "/api/v1/auth/status", s.Auth.Status)
	}
	if s.Camera != nil {
		s.handle(mux, "Status", "GET", "/api/v1/status", s.Camera.Status)
		s.handle(mux, "Start", "POST", "/api/v1/camera/start", s.Camera.Start)
		s.handle(mux, "Stop", "POST", "/api/v1/camera/stop", s.Camera.Stop)
		s.handle(mux, "Calibrate", "POST", "/api/v1/calibrate", s.Camera.Calibrate)
	}
	if s.Config != nil {
		s.handle(mux, "GetSettings", "GET", "/api/v1/settings", s.Config.Get)
		s.handle(mux, "UpdateSettings", "PUT", "/api/v1/settings", s.Config.Update)
	}
	if s.History != nil {
		s.handle(mux, "ListHits", "GET", "/api/v1/hits", s.History.Hits)
		s.handle(mux, "ListCalibrations", "GET", "/api/v1/calibrations", s.History.Calibrations)
	}
	if s.Preview != nil {
		s.handle(mux, "Preview", "GET", "/api/v1/preview.jpg", s.Preview.ServeHTTP)
		s.handle(mux, "PreviewStream", "GET", "/api/v1/preview.mjpeg", s.Preview.ServeStream)
	}
	if s.WS != nil {
		s.handle(mux, "Hits", "GET", "/ws/hits", s.WS.ServeHTTP)
	}
}

func (s *Server) handle(mux goahttp.Muxer, method, verb, pattern string, h http.HandlerFunc) {
	mux.Handle(verb, pattern, h)
	s.Mounts = append(s.Mounts, &MountPoint{Method: method, Verb: verb, Pattern: pattern})
}

// PublicPaths are reachable without a token.
var PublicPaths = []string{"/healthz", "/readyz", "/api/v1/auth/login", "/api/v1/auth/status"}
