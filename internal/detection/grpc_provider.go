package detection

import (
	"context"
	"encoding/base64"
	"fmt"
	"sync"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/keepalive"
	"google.golang.org/protobuf/types/known/structpb"

	"dartcam/internal/logger"
	"dartcam/internal/vision"
)

// HintServiceName is the gRPC service serving region hints. Requests and
// responses are google.protobuf.Struct messages:
//
//	request:  {"image": <base64 JPEG>, "width": n, "height": n, "conf_threshold": f}
//	response: {"detections": [{"class": s, "confidence": f, "bbox": [x1, y1, x2, y2]}]}
const HintServiceName = "dartcam.hint.v1.HintService"

const detectMethod = "/" + HintServiceName + "/Detect"

// GRPCProviderConfig configures a GRPCProvider.
type GRPCProviderConfig struct {
	Endpoint      string
	ConfThreshold float32
	Timeout       time.Duration
	// DialOptions are appended to the defaults.
	DialOptions []grpc.DialOption
}

// GRPCProvider asks a hint service over a unary gRPC call.
type GRPCProvider struct {
	endpoint      string
	confThreshold float32
	timeout       time.Duration
	conn          *grpc.ClientConn
	health        healthpb.HealthClient

	mu         sync.RWMutex
	healthy    bool
	lastHealth time.Time
}

// NewGRPCProvider creates the client connection. The connection is lazy; a
// missing server shows up as IsReady() == false.
func NewGRPCProvider(cfg GRPCProviderConfig) (*GRPCProvider, error) {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 2 * time.Second
	}

	kacp := keepalive.ClientParameters{
		Time:                10 * time.Second,
		Timeout:             5 * time.Second,
		PermitWithoutStream: true,
	}
	opts := append([]grpc.DialOption{
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithKeepaliveParams(kacp),
	}, cfg.DialOptions...)

	conn, err := grpc.NewClient(cfg.Endpoint, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create hint client: %w", err)
	}

	logger.Info(logger.Fields{"endpoint": cfg.Endpoint}, "[GRPCProvider] client created")
	return &GRPCProvider{
		endpoint:      cfg.Endpoint,
		confThreshold: cfg.ConfThreshold,
		timeout:       cfg.Timeout,
		conn:          conn,
		health:        healthpb.NewHealthClient(conn),
	}, nil
}

func (p *GRPCProvider) Name() string { return "grpc" }

// IsReady queries the standard health service, caching a positive answer for 30 seconds.
func (p *GRPCProvider) IsReady() bool {
	p.mu.RLock()
	if p.healthy && time.Since(p.lastHealth) < 30*time.Second {
		p.mu.RUnlock()
		return true
	}
	p.mu.RUnlock()

	ctx, cancel := context.WithTimeout(context.Background(), p.timeout)
	defer cancel()

	resp, err := p.health.Check(ctx, &healthpb.HealthCheckRequest{Service: HintServiceName})
	p.mu.Lock()
	defer p.mu.Unlock()
	if err != nil {
		logger.Warn(logger.Fields{"endpoint": p.endpoint, "error": err.Error()}, "[GRPCProvider] health check failed")
		p.healthy = false
		return false
	}
	p.healthy = resp.GetStatus() == healthpb.HealthCheckResponse_SERVING
	p.lastHealth = time.Now()
	return p.healthy
}

// Hints sends the frame as a base64 JPEG and parses the returned boxes.
func (p *GRPCProvider) Hints(ctx context.Context, frame *vision.Frame) ([]Region, error) {
	if !p.IsReady() {
		return nil, ErrProviderUnavailable
	}
	jpg, err := EncodeJPEG(frame)
	if err != nil {
		return nil, fmt.Errorf("failed to encode frame: %w", err)
	}

	req, err := structpb.NewStruct(map[string]any{
		"image":          base64.StdEncoding.EncodeToString(jpg),
		"width":          frame.Width,
		"height":         frame.Height,
		"conf_threshold": float64(p.confThreshold),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to build hint request: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	resp := &structpb.Struct{}
	if err := p.conn.Invoke(ctx, detectMethod, req, resp); err != nil {
		p.mu.Lock()
		p.healthy = false
		p.mu.Unlock()
		return nil, fmt.Errorf("%w: %v", ErrProviderUnavailable, err)
	}
	return RegionsFromResult(resultFromStruct(resp)), nil
}

func (p *GRPCProvider) Close() error {
	return p.conn.Close()
}

func resultFromStruct(s *structpb.Struct) *DetectionResult {
	res := &DetectionResult{}
	list := s.GetFields()["detections"].GetListValue()
	for _, v := range list.GetValues() {
		fields := v.GetStructValue().GetFields()
		d := Detection{
			Class:      fields["class"].GetStringValue(),
			Confidence: float32(fields["confidence"].GetNumberValue()),
		}
		for _, b := range fields["bbox"].GetListValue().GetValues() {
			d.BBox = append(d.BBox, float32(b.GetNumberValue()))
		}
		res.Detections = append(res.Detections, d)
	}
	res.Count = len(res.Detections)
	return res
}

// HintServer is implemented by hint services.
type HintServer interface {
	Detect(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
}

// RegisterHintServer registers srv under HintServiceName.
func RegisterHintServer(s grpc.ServiceRegistrar, srv HintServer) {
	s.RegisterService(&hintServiceDesc, srv)
}

var hintServiceDesc = grpc.ServiceDesc{
	ServiceName: HintServiceName,
	HandlerType: (*HintServer)(nil),
	Methods: []grpc.MethodDesc{{
		MethodName: "Detect",
		Handler:    detectHandler,
	}},
	Streams: []grpc.StreamDesc{},
}

func detectHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(structpb.Struct)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(HintServer).Detect(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: detectMethod}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(HintServer).Detect(ctx, req.(*structpb.Struct))
	}
	return interceptor(ctx, in, info, handler)
}

// DetectionsToStruct builds a hint response.
func DetectionsToStruct(dets []Detection) (*structpb.Struct, error) {
	list := make([]any, 0, len(dets))
	for _, d := range dets {
		bbox := make([]any, len(d.BBox))
		for i, v := range d.BBox {
			bbox[i] = float64(v)
		}
		list = append(list, map[string]any{
			"class":      d.Class,
			"confidence": float64(d.Confidence),
			"bbox":       bbox,
		})
	}
	return structpb.NewStruct(map[string]any{"detections": list})
}

var _ Provider = (*GRPCProvider)(nil)
