package snapshot

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"os/exec"
	"strings"
	"time"

	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"
)

var ErrChromeMissing = errors.New("chromium not installed")

// ChromeCapturer takes full-page JPEG screenshots with headless Chrome.
type ChromeCapturer struct {
	width   int
	height  int
	quality int64
	timeout time.Duration
}

func NewChromeCapturer() (*ChromeCapturer, error) {
	if _, err := exec.LookPath("chromium-browser"); err != nil {
		if _, fallbackErr := exec.LookPath("chromium"); fallbackErr != nil {
			return nil, ErrChromeMissing
		}
	}
	return &ChromeCapturer{width: 1280, height: 800, quality: 80, timeout: 30 * time.Second}, nil
}

func (c *ChromeCapturer) Capture(ctx context.Context, job Job) (Capture, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	// Chrome options for headless mode in container
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", true),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("no-sandbox", true),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.Flag("disable-setuid-sandbox", true),
		chromedp.WindowSize(c.width, c.height),
	)

	allocCtx, cancel := chromedp.NewExecAllocator(ctx, opts...)
	defer cancel()

	taskCtx, cancel := chromedp.NewContext(allocCtx)
	defer cancel()

	target := job.URL
	if job.HTML != "" {
		target = "data:text/html;charset=utf-8," + percentEncodeForDataURL(job.HTML)
	}

	var shot []byte
	err := chromedp.Run(taskCtx,
		chromedp.Navigate(target),
		chromedp.WaitReady("body"),
		chromedp.ActionFunc(func(ctx context.Context) error {
			var err error
			shot, err = page.CaptureScreenshot().
				WithFormat(page.CaptureScreenshotFormatJpeg).
				WithQuality(c.quality).
				WithCaptureBeyondViewport(true).
				Do(ctx)
			return err
		}),
	)
	if err != nil {
		return Capture{}, fmt.Errorf("chrome screenshot failed: %w", err)
	}

	out := Capture{Data: shot, ContentType: "image/jpeg", Width: c.width}
	if cfg, _, err := image.DecodeConfig(bytes.NewReader(shot)); err == nil {
		out.Width, out.Height = cfg.Width, cfg.Height
	}
	return out, nil
}

// percentEncodeForDataURL encodes a string for use in a data URL.
// Spaces become %20, never +.
func percentEncodeForDataURL(s string) string {
	var result strings.Builder
	for _, b := range []byte(s) {
		switch {
		case b >= 'a' && b <= 'z',
			b >= 'A' && b <= 'Z',
			b >= '0' && b <= '9',
			b == '-', b == '_', b == '.', b == '~':
			result.WriteByte(b)
		default:
			fmt.Fprintf(&result, "%%%02X", b)
		}
	}
	return result.String()
}
