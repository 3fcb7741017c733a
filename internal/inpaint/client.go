// Package inpaint talks to an external neural inpainting server.
//
// The server accepts a multipart form with an "image" and a "mask" PNG
// (nonzero mask pixels are reconstructed) on POST /inpaint and answers with
// a PNG of the same size. GET /health returns 200 once the model is loaded.
package inpaint

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	imgutil "manga-patcher/internal/image"
	"manga-patcher/internal/logger"
)

// DefaultTimeout bounds a single inpainting call.
const DefaultTimeout = 60 * time.Second

// maxResponseSize caps how much of a response body is read.
const maxResponseSize = 64 << 20

// Client is an HTTP inpainting client. It is safe for concurrent use; the
// server is expected to serialize inference itself.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient creates a client for baseURL. A zero timeout uses DefaultTimeout.
func NewClient(baseURL string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// BaseURL returns the server address.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// Ping verifies the inpainting server is up and its model is loaded.
func (c *Client) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/health", nil)
	if err != nil {
		return fmt.Errorf("failed to create health check request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("inpaint server health check failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("inpaint server health check returned status %d: %s", resp.StatusCode, string(body))
	}
	return nil
}

// Inpaint sends rgb and mask to the server and decodes the reconstructed
// image. The response must match the input size.
func (c *Client) Inpaint(ctx context.Context, rgb *image.RGBA, mask *image.Gray) (*image.RGBA, error) {
	log := logger.WithContext(ctx).With().Str("component", "inpaint").Logger()
	size := rgb.Bounds().Size()

	imgPNG, err := imgutil.EncodePNG(rgb)
	if err != nil {
		return nil, fmt.Errorf("failed to encode image: %w", err)
	}
	maskPNG, err := imgutil.EncodePNG(mask)
	if err != nil {
		return nil, fmt.Errorf("failed to encode mask: %w", err)
	}

	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	if err := writePart(writer, "image", "image.png", imgPNG); err != nil {
		return nil, err
	}
	if err := writePart(writer, "mask", "mask.png", maskPNG); err != nil {
		return nil, err
	}
	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("failed to close multipart writer: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/inpaint", &body)
	if err != nil {
		return nil, fmt.Errorf("failed to create inpaint request: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())
	req.Header.Set("Accept", "image/png")

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("inpaint request failed after %v: %w", time.Since(start), err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return nil, fmt.Errorf("failed to read inpaint response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("inpaint server returned status %d: %s", resp.StatusCode, truncate(string(respBody), 256))
	}

	out, _, err := imgutil.Decode(respBody)
	if err != nil {
		return nil, fmt.Errorf("failed to decode inpaint response: %w", err)
	}
	if out.Bounds().Size() != size {
		return nil, fmt.Errorf("inpaint response is %v, want %v", out.Bounds().Size(), size)
	}

	log.Debug().
		Int("width", size.X).
		Int("height", size.Y).
		Dur("duration", time.Since(start)).
		Msg("Inpaint completed")
	return imgutil.ToRGB(out), nil
}

func writePart(w *multipart.Writer, field, filename string, data []byte) error {
	part, err := w.CreateFormFile(field, filename)
	if err != nil {
		return fmt.Errorf("failed to create form part %s: %w", field, err)
	}
	if _, err := part.Write(data); err != nil {
		return fmt.Errorf("failed to write form part %s: %w", field, err)
	}
	return nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
