// Package snapshot captures page snapshots for saved entities and attaches
// them once the bytes are stored.
package snapshot

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"log"
	"strings"
	"sync"
	"time"

	"spaces/api/internal/store"
)

var ErrQueueFull = errors.New("snapshot queue full")

// Job asks for a capture of URL, or of HTML when the client sent markup.
type Job struct {
	ResultID string
	SpaceID  string
	URL      string
	HTML     string
}

type Capture struct {
	Data        []byte
	ContentType string
	Width       int
	Height      int
}

type Capturer interface {
	Capture(ctx context.Context, job Job) (Capture, error)
}

// BlobStore persists bytes and returns a URL clients can load.
type BlobStore interface {
	Put(ctx context.Context, key, contentType string, data []byte) (string, error)
}

type Attacher interface {
	AttachSnapshot(ctx context.Context, resultID string, att store.SnapshotAttachment) error
	FailSnapshot(ctx context.Context, resultID, reason string) error
}

type Service struct {
	capturer Capturer
	blobs    BlobStore
	attacher Attacher
	workers  int
	timeout  time.Duration

	mu     sync.Mutex
	closed bool
	queue  chan Job
	wg     sync.WaitGroup
}

// NewService wires a capture pipeline. capturer may be nil, in which case
// Schedule never queues anything and only client-provided bytes are stored.
func NewService(capturer Capturer, blobs BlobStore, attacher Attacher, workers int) *Service {
	if workers <= 0 {
		workers = 1
	}
	return &Service{
		capturer: capturer,
		blobs:    blobs,
		attacher: attacher,
		workers:  workers,
		timeout:  45 * time.Second,
		queue:    make(chan Job, 64),
	}
}

func (s *Service) Start() {
	if s.capturer == nil {
		return
	}
	for i := 0; i < s.workers; i++ {
		s.wg.Add(1)
		go s.run()
	}
}

// Enabled reports whether server-side capture is available.
func (s *Service) Enabled() bool {
	return s.capturer != nil
}

// Schedule queues a capture without blocking.
func (s *Service) Schedule(job Job) error {
	if s.capturer == nil {
		return errors.New("snapshot capture disabled")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return errors.New("snapshot service closed")
	}
	select {
	case s.queue <- job:
		return nil
	default:
		return ErrQueueFull
	}
}

// Close drains queued jobs and stops the workers.
func (s *Service) Close() {
	s.mu.Lock()
	if !s.closed {
		s.closed = true
		close(s.queue)
	}
	s.mu.Unlock()
	s.wg.Wait()
}

func (s *Service) run() {
	defer s.wg.Done()
	for job := range s.queue {
		s.process(job)
	}
}

func (s *Service) process(job Job) {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	shot, err := s.capturer.Capture(ctx, job)
	if err == nil {
		var att store.SnapshotAttachment
		att, err = s.put(ctx, job.ResultID, shot)
		if err == nil {
			err = s.attacher.AttachSnapshot(ctx, job.ResultID, att)
			if err == nil {
				log.Printf("snapshot: attached %s (%dx%d)", job.ResultID, att.Width, att.Height)
				return
			}
		}
	}
	log.Printf("snapshot: capture %s failed: %v", job.ResultID, err)
	if failErr := s.attacher.FailSnapshot(ctx, job.ResultID, err.Error()); failErr != nil {
		log.Printf("snapshot: mark %s failed: %v", job.ResultID, failErr)
	}
}

// Store uploads bytes the client captured itself.
func (s *Service) Store(ctx context.Context, resultID, contentType string, data []byte) (store.SnapshotAttachment, error) {
	if len(data) == 0 {
		return store.SnapshotAttachment{}, errors.New("empty snapshot")
	}
	shot := Capture{Data: data, ContentType: contentType}
	if cfg, format, err := image.DecodeConfig(bytes.NewReader(data)); err == nil {
		shot.Width, shot.Height = cfg.Width, cfg.Height
		if shot.ContentType == "" {
			shot.ContentType = "image/" + format
		}
	}
	if shot.ContentType == "" {
		shot.ContentType = "application/octet-stream"
	}
	return s.put(ctx, resultID, shot)
}

func (s *Service) put(ctx context.Context, resultID string, shot Capture) (store.SnapshotAttachment, error) {
	key := "snapshots/" + resultID + extensionFor(shot.ContentType)
	url, err := s.blobs.Put(ctx, key, shot.ContentType, shot.Data)
	if err != nil {
		return store.SnapshotAttachment{}, fmt.Errorf("store snapshot: %w", err)
	}
	return store.SnapshotAttachment{
		ContentURL:  url,
		ContentType: shot.ContentType,
		Thumbnail:   url,
		Width:       shot.Width,
		Height:      shot.Height,
	}, nil
}

func extensionFor(contentType string) string {
	switch strings.ToLower(contentType) {
	case "image/jpeg", "image/jpg":
		return ".jpg"
	case "image/png":
		return ".png"
	case "image/gif":
		return ".gif"
	case "text/html":
		return ".html"
	default:
		return ""
	}
}

// DecodeBase64 accepts raw standard base64 or a data URL.
func DecodeBase64(value string) ([]byte, string, error) {
	value = strings.TrimSpace(value)
	contentType := ""
	if strings.HasPrefix(value, "data:") {
		header, payload, ok := strings.Cut(value, ",")
		if !ok || !strings.HasSuffix(header, ";base64") {
			return nil, "", errors.New("snapshot data URL must be base64 encoded")
		}
		contentType = strings.TrimSuffix(strings.TrimPrefix(header, "data:"), ";base64")
		value = payload
	}
	data, err := base64.StdEncoding.DecodeString(value)
	if err != nil {
		return nil, "", fmt.Errorf("decode snapshot: %w", err)
	}
	return data, contentType, nil
}
