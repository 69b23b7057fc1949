package detection

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"image/jpeg"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/test/bufconn"
	"google.golang.org/protobuf/types/known/structpb"

	"dartcam/internal/vision"
)

func TestRegionFromBox(t *testing.T) {
	r, ok := RegionFromBox(Detection{Class: "clock", Confidence: 0.6, BBox: []float32{100, 50, 200, 130}})
	if !ok {
		t.Fatal("box rejected")
	}
	if r.CX != 150 || r.CY != 90 || r.R != 50 {
		t.Errorf("region %+v, want centre (150, 90) radius 50", r)
	}
	if _, ok := RegionFromBox(Detection{BBox: []float32{10, 10, 5, 20}}); ok {
		t.Error("inverted box accepted")
	}
	if _, ok := RegionFromBox(Detection{BBox: []float32{1, 2}}); ok {
		t.Error("short box accepted")
	}
}

func TestBestRegionPrefersBoardLabels(t *testing.T) {
	regions := []Region{
		{Label: "person", Confidence: 0.9, R: 10},
		{Label: "clock", Confidence: 0.5, R: 20},
		{Label: "bowl", Confidence: 0.3, R: 30},
	}
	best, ok := BestRegion(regions)
	if !ok || best.Label != "clock" {
		t.Errorf("best = %+v, want the clock", best)
	}
	if _, ok := BestRegion(nil); ok {
		t.Error("empty input produced a region")
	}
}

func TestNoopProvider(t *testing.T) {
	var p Provider = NoopProvider{}
	regions, err := p.Hints(context.Background(), vision.NewFrame(4, 4))
	if err != nil || len(regions) != 0 || !p.IsReady() {
		t.Errorf("noop provider returned %v, %v", regions, err)
	}
}

func TestHTTPProviderHints(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	mux.HandleFunc("/detect", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "method", http.StatusMethodNotAllowed)
			return
		}
		file, _, err := r.FormFile("file")
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		defer file.Close()
		if _, err := jpeg.Decode(file); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		_ = json.NewEncoder(w).Encode(DetectionResult{
			Detections: []Detection{{Class: "sports ball", Confidence: 0.7, BBox: []float32{60, 20, 260, 220}}},
			Count:      1,
		})
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	p := NewHTTPProvider(srv.URL, 0.25)
	defer p.Close()

	if !p.IsReady() {
		t.Fatal("provider not ready")
	}
	regions, err := p.Hints(context.Background(), vision.NewFrame(320, 240))
	if err != nil {
		t.Fatalf("Hints: %v", err)
	}
	if len(regions) != 1 || regions[0].CX != 160 || regions[0].R != 100 {
		t.Errorf("regions = %+v", regions)
	}
}

func TestHTTPProviderUnavailable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	p := NewHTTPProvider(srv.URL, 0.25)
	if p.IsReady() {
		t.Fatal("unhealthy service reported ready")
	}
	if _, err := p.Hints(context.Background(), vision.NewFrame(8, 8)); !errors.Is(err, ErrProviderUnavailable) {
		t.Errorf("err = %v, want ErrProviderUnavailable", err)
	}
}

type fakeHintServer struct {
	gotWidth float64
}

func (s *fakeHintServer) Detect(_ context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	s.gotWidth = req.GetFields()["width"].GetNumberValue()
	raw, err := base64.StdEncoding.DecodeString(req.GetFields()["image"].GetStringValue())
	if err != nil {
		return nil, err
	}
	if _, err := jpeg.Decode(bytes.NewReader(raw)); err != nil {
		return nil, err
	}
	return DetectionsToStruct([]Detection{
		{Class: "person", Confidence: 0.9, BBox: []float32{0, 0, 30, 80}},
		{Class: "clock", Confidence: 0.6, BBox: []float32{70, 30, 250, 210}},
	})
}

func TestGRPCProviderHints(t *testing.T) {
	lis := bufconn.Listen(1 << 20)
	s := grpc.NewServer()
	fake := &fakeHintServer{}
	RegisterHintServer(s, fake)
	hs := health.NewServer()
	hs.SetServingStatus(HintServiceName, healthpb.HealthCheckResponse_SERVING)
	healthpb.RegisterHealthServer(s, hs)
	go func() { _ = s.Serve(lis) }()
	defer s.Stop()

	p, err := NewGRPCProvider(GRPCProviderConfig{
		Endpoint: "passthrough:///bufnet",
		DialOptions: []grpc.DialOption{
			grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
				return lis.DialContext(ctx)
			}),
		},
	})
	if err != nil {
		t.Fatalf("NewGRPCProvider: %v", err)
	}
	defer p.Close()

	if !p.IsReady() {
		t.Fatal("provider not ready")
	}
	regions, err := p.Hints(context.Background(), vision.NewFrame(320, 240))
	if err != nil {
		t.Fatalf("Hints: %v", err)
	}
	if fake.gotWidth != 320 {
		t.Errorf("server saw width %v", fake.gotWidth)
	}
	best, ok := BestRegion(regions)
	if !ok || best.Label != "clock" || best.CX != 160 || best.CY != 120 || best.R != 90 {
		t.Errorf("best region %+v", best)
	}
}

func TestGRPCProviderNotServing(t *testing.T) {
	lis := bufconn.Listen(1 << 20)
	s := grpc.NewServer()
	hs := health.NewServer()
	hs.SetServingStatus(HintServiceName, healthpb.HealthCheckResponse_NOT_SERVING)
	healthpb.RegisterHealthServer(s, hs)
	go func() { _ = s.Serve(lis) }()
	defer s.Stop()

	p, err := NewGRPCProvider(GRPCProviderConfig{
		Endpoint: "passthrough:///bufnet",
		DialOptions: []grpc.DialOption{
			grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
				return lis.DialContext(ctx)
			}),
		},
	})
	if err != nil {
		t.Fatalf("NewGRPCProvider: %v", err)
	}
	defer p.Close()

	if _, err := p.Hints(context.Background(), vision.NewFrame(8, 8)); !errors.Is(err, ErrProviderUnavailable) {
		t.Errorf("err = %v, want ErrProviderUnavailable", err)
	}
}
