package snapshot

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"image"
	"image/color"
	"image/png"
	"strings"
	"sync"
	"testing"

	"spaces/api/internal/store"
)

type fakeCapturer struct {
	capture func(ctx context.Context, job Job) (Capture, error)
}

func (f fakeCapturer) Capture(ctx context.Context, job Job) (Capture, error) {
	return f.capture(ctx, job)
}

type fakeAttacher struct {
	mu       sync.Mutex
	attached map[string]store.SnapshotAttachment
	failed   map[string]string
}

func newFakeAttacher() *fakeAttacher {
	return &fakeAttacher{attached: map[string]store.SnapshotAttachment{}, failed: map[string]string{}}
}

func (f *fakeAttacher) AttachSnapshot(_ context.Context, resultID string, att store.SnapshotAttachment) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.attached[resultID] = att
	return nil
}

func (f *fakeAttacher) FailSnapshot(_ context.Context, resultID, reason string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failed[resultID] = reason
	return nil
}

type recordingBlobs struct {
	keys []string
}

func (r *recordingBlobs) Put(_ context.Context, key, _ string, _ []byte) (string, error) {
	r.keys = append(r.keys, key)
	return "https://blobs.example.com/" + key, nil
}

func tinyPNG(t *testing.T) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 3, 2))
	img.Set(0, 0, color.White)
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("encode png: %v", err)
	}
	return buf.Bytes()
}

func TestScheduledCaptureIsAttached(t *testing.T) {
	attacher := newFakeAttacher()
	blobs := &recordingBlobs{}
	capturer := fakeCapturer{capture: func(_ context.Context, job Job) (Capture, error) {
		if job.URL != "https://example.com" {
			t.Errorf("unexpected job %+v", job)
		}
		return Capture{Data: []byte("jpeg"), ContentType: "image/jpeg", Width: 1280, Height: 2000}, nil
	}}
	svc := NewService(capturer, blobs, attacher, 2)
	svc.Start()

	if err := svc.Schedule(Job{ResultID: "res_1", SpaceID: "sp_1", URL: "https://example.com"}); err != nil {
		t.Fatalf("Schedule() error = %v", err)
	}
	svc.Close()

	att, ok := attacher.attached["res_1"]
	if !ok {
		t.Fatalf("snapshot not attached; failed=%v", attacher.failed)
	}
	if att.ContentURL != "https://blobs.example.com/snapshots/res_1.jpg" || att.Height != 2000 {
		t.Fatalf("unexpected attachment %+v", att)
	}
}

func TestFailedCaptureIsRecorded(t *testing.T) {
	attacher := newFakeAttacher()
	capturer := fakeCapturer{capture: func(context.Context, Job) (Capture, error) {
		return Capture{}, errors.New("navigation timed out")
	}}
	svc := NewService(capturer, DataURLStore{}, attacher, 1)
	svc.Start()
	if err := svc.Schedule(Job{ResultID: "res_2", URL: "https://example.com"}); err != nil {
		t.Fatalf("Schedule() error = %v", err)
	}
	svc.Close()

	if !strings.Contains(attacher.failed["res_2"], "navigation timed out") {
		t.Fatalf("failure not recorded: %v", attacher.failed)
	}
}

func TestScheduleWithoutCapturerOrAfterClose(t *testing.T) {
	disabled := NewService(nil, DataURLStore{}, newFakeAttacher(), 1)
	if disabled.Enabled() {
		t.Fatal("service without capturer should be disabled")
	}
	if err := disabled.Schedule(Job{ResultID: "res_1"}); err == nil {
		t.Fatal("expected error when capture is disabled")
	}

	svc := NewService(fakeCapturer{capture: func(context.Context, Job) (Capture, error) {
		return Capture{}, nil
	}}, DataURLStore{}, newFakeAttacher(), 1)
	svc.Start()
	svc.Close()
	if err := svc.Schedule(Job{ResultID: "res_1"}); err == nil {
		t.Fatal("expected error after Close")
	}
}

func TestStoreClientSnapshot(t *testing.T) {
	svc := NewService(nil, DataURLStore{}, newFakeAttacher(), 1)
	data := tinyPNG(t)

	att, err := svc.Store(context.Background(), "res_3", "", data)
	if err != nil {
		t.Fatalf("Store() error = %v", err)
	}
	if att.Width != 3 || att.Height != 2 || att.ContentType != "image/png" {
		t.Fatalf("unexpected attachment %+v", att)
	}
	if !strings.HasPrefix(att.ContentURL, "data:image/png;base64,") {
		t.Fatalf("unexpected url %s", att.ContentURL)
	}
}

func TestDecodeBase64(t *testing.T) {
	raw := []byte("hello")
	encoded := base64.StdEncoding.EncodeToString(raw)

	tests := []struct {
		name        string
		input       string
		contentType string
		wantErr     bool
	}{
		{name: "plain", input: encoded},
		{name: "data url", input: "data:image/png;base64," + encoded, contentType: "image/png"},
		{name: "data url without base64", input: "data:text/plain,hello", wantErr: true},
		{name: "garbage", input: "!!!", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data, contentType, err := DecodeBase64(tt.input)
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected error")
				}
				return
			}
			if err != nil {
				t.Fatalf("DecodeBase64() error = %v", err)
			}
			if string(data) != "hello" || contentType != tt.contentType {
				t.Fatalf("got %q %q", data, contentType)
			}
		})
	}
}

func TestPercentEncodeForDataURL(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"hello world", "hello%20world"},
		{"test+sign", "test%2Bsign"},
		{"special<>", "special%3C%3E"},
		{"normal-text.txt", "normal-text.txt"},
		{"é", "%C3%A9"},
		{"", ""},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			result := percentEncodeForDataURL(tt.input)
			if result != tt.expected {
				t.Errorf("percentEncodeForDataURL(%q) = %q, want %q", tt.input, result, tt.expected)
			}
		})
	}
}
