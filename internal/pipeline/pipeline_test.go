package pipeline

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/jpeg"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"dartcam/internal/vision"
)

func TestExtractJPEGFrame(t *testing.T) {
	a := []byte{0xFF, 0xD8, 1, 2, 3, 0xFF, 0xD9}
	b := []byte{0xFF, 0xD8, 9, 0xFF, 0xD9}
	buf := append([]byte{0x00, 0x11}, a...)
	buf = append(buf, b...)
	buf = append(buf, 0xFF, 0xD8, 7) // partial

	got := extractJPEGFrame(&buf)
	if !bytes.Equal(got, a) {
		t.Fatalf("first frame = %x, want %x", got, a)
	}
	got = extractJPEGFrame(&buf)
	if !bytes.Equal(got, b) {
		t.Fatalf("second frame = %x, want %x", got, b)
	}
	if got := extractJPEGFrame(&buf); got != nil {
		t.Fatalf("partial frame extracted: %x", got)
	}
	if !bytes.Equal(buf, []byte{0xFF, 0xD8, 7}) {
		t.Errorf("remaining buffer = %x", buf)
	}
}

func TestExtractJPEGFrameDropsGarbage(t *testing.T) {
	buf := []byte{1, 2, 3, 4, 5, 0xFF}
	if extractJPEGFrame(&buf) != nil {
		t.Fatal("frame extracted from garbage")
	}
	if !bytes.Equal(buf, []byte{0xFF}) {
		t.Errorf("buffer = %x, want trailing marker byte kept", buf)
	}
}

func TestFFmpegArgs(t *testing.T) {
	tests := []struct {
		device string
		want   string
	}{
		{"rtsp://cam/stream", "-rtsp_transport tcp -i rtsp://cam/stream -r 10"},
		{"http://cam/mjpeg", "-i http://cam/mjpeg -r 10"},
		{"/dev/video0", "-f v4l2 -video_size 640x480 -framerate 10 -i /dev/video0"},
	}
	for _, tt := range tests {
		got := strings.Join(ffmpegArgs(tt.device, 10, 640, 480), " ")
		if !strings.HasPrefix(got, tt.want) {
			t.Errorf("ffmpegArgs(%q) = %q, want prefix %q", tt.device, got, tt.want)
		}
		if !strings.HasSuffix(got, "-f image2pipe -vcodec mjpeg -q:v 5 -") {
			t.Errorf("ffmpegArgs(%q) = %q, missing mjpeg pipe output", tt.device, got)
		}
	}
}

func TestEventBusFiltersAndOrder(t *testing.T) {
	bus := NewEventBus()
	defer bus.Close()

	var all, hits []EventType
	bus.Subscribe(EventHandlerFunc(func(ev Event) { all = append(all, ev.Type) }))
	unsub := bus.SubscribeType(EventHit, EventHandlerFunc(func(ev Event) { hits = append(hits, ev.Type) }))

	bus.Publish(Event{Type: EventStatus, Status: &StatusEvent{Status: "Camera idle"}})
	bus.Publish(Event{Type: EventHit, Hit: &HitEvent{Label: "T20"}})
	unsub()
	bus.Publish(Event{Type: EventHit, Hit: &HitEvent{Label: "S5"}})

	if len(all) != 3 || all[0] != EventStatus || all[1] != EventHit {
		t.Errorf("all = %v", all)
	}
	if len(hits) != 1 {
		t.Errorf("hits = %v, want one before unsubscribe", hits)
	}
	if n := bus.SubscriberCount(); n != 1 {
		t.Errorf("SubscriberCount = %d, want 1", n)
	}
}

func TestEventBusChannelDropsWhenFull(t *testing.T) {
	bus := NewEventBus()
	ch, unsub := bus.SubscribeChannel(1)

	bus.Publish(Event{Type: EventStatus})
	bus.Publish(Event{Type: EventHit}) // dropped

	ev := <-ch
	if ev.Type != EventStatus {
		t.Errorf("got %s, want status", ev.Type)
	}
	select {
	case ev := <-ch:
		t.Errorf("unexpected second event %s", ev.Type)
	default:
	}

	unsub()
	if _, ok := <-ch; ok {
		t.Error("channel still open after unsubscribe")
	}
	unsub() // second call is a no-op
}

func TestFrameDataDecode(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 640, 480))
	for i := range img.Pix {
		img.Pix[i] = 200
	}
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, nil); err != nil {
		t.Fatal(err)
	}

	fd := &FrameData{Seq: 1, Data: buf.Bytes()}
	f, err := fd.Decode(320)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if f.Width != 320 || f.Height != 240 {
		t.Errorf("decoded %dx%d, want 320x240", f.Width, f.Height)
	}

	if _, err := (&FrameData{}).Decode(320); !errors.Is(err, ErrNoFrame) {
		t.Errorf("empty frame err = %v", err)
	}
	if _, err := (&FrameData{Data: []byte("nope")}).Decode(320); err == nil {
		t.Error("garbage decoded")
	}
}

func TestScriptedSource(t *testing.T) {
	a, b := vision.NewFrame(4, 4), vision.NewFrame(4, 4)
	s := NewScriptedSource(a, b)

	if _, err := s.Latest(); !errors.Is(err, ErrNoFrame) {
		t.Fatalf("Latest before Open = %v", err)
	}
	if err := s.Open(context.Background()); err != nil {
		t.Fatal(err)
	}
	for i, want := range []*vision.Frame{a, b, b} {
		fd, err := s.Latest()
		if err != nil {
			t.Fatal(err)
		}
		if fd.Image != want || fd.Seq != uint64(i+1) {
			t.Errorf("frame %d = seq %d", i, fd.Seq)
		}
	}
	if !s.Exhausted() {
		t.Error("not exhausted")
	}

	s.Close()
	boom := errors.New("device busy")
	s.FailOpen(boom)
	if err := s.Open(context.Background()); !errors.Is(err, boom) {
		t.Errorf("Open = %v, want %v", err, boom)
	}
}

func TestCameraSourcePollsJPEGEndpoint(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 32, 24))
	for y := 0; y < 24; y++ {
		for x := 0; x < 32; x++ {
			img.Set(x, y, color.RGBA{R: 90, G: 90, B: 90, A: 255})
		}
	}
	var body bytes.Buffer
	if err := jpeg.Encode(&body, img, nil); err != nil {
		t.Fatal(err)
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "image/jpeg")
		_, _ = w.Write(body.Bytes())
	}))
	defer srv.Close()

	src := NewCameraSource(CameraSourceConfig{Device: srv.URL + "/snapshot.jpg", FPS: 10, FirstFrameTimeout: 2 * time.Second})
	if err := src.Open(context.Background()); err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer src.Close()

	if err := src.Open(context.Background()); !errors.Is(err, ErrSourceRunning) {
		t.Errorf("second Open = %v", err)
	}

	fd, err := src.Latest()
	if err != nil {
		t.Fatalf("Latest: %v", err)
	}
	f, err := fd.Decode(320)
	if err != nil {
		t.Fatal(err)
	}
	if f.Width != 32 || f.Height != 24 {
		t.Errorf("frame %dx%d", f.Width, f.Height)
	}
	if src.Stats().FramesCaptured == 0 {
		t.Error("no frames counted")
	}
}

func TestCameraSourceTimesOut(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	src := NewCameraSource(CameraSourceConfig{Device: srv.URL + "/image", FirstFrameTimeout: 300 * time.Millisecond})
	if err := src.Open(context.Background()); err == nil {
		src.Close()
		t.Fatal("Open succeeded without frames")
	}
	if _, err := src.Latest(); !errors.Is(err, ErrNoFrame) {
		t.Errorf("Latest = %v", err)
	}
}

func TestCameraSourceReportsEndedStream(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 32, 24))
	var frame bytes.Buffer
	if err := jpeg.Encode(&frame, img, nil); err != nil {
		t.Fatal(err)
	}

	src := NewCameraSource(CameraSourceConfig{Device: "/dev/video0"})
	src.stopCh = make(chan struct{})
	src.ffmpegOut = io.NopCloser(bytes.NewReader(frame.Bytes()))
	src.running.Store(true)

	frames := 0
	if err := src.capture(func() { frames++ }); err != nil {
		t.Fatalf("capture: %v", err)
	}
	if frames == 0 {
		t.Fatal("no frame read before EOF")
	}
	if _, err := src.Latest(); !errors.Is(err, ErrStreamEnded) {
		t.Errorf("Latest after EOF = %v, want ErrStreamEnded", err)
	}
	if src.running.Load() {
		t.Error("source still marked running")
	}
}

func TestCameraSourceRequiresDevice(t *testing.T) {
	if err := NewCameraSource(CameraSourceConfig{}).Open(context.Background()); err == nil {
		t.Fatal("Open with no device succeeded")
	}
}
