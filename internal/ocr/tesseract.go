// Package ocr recognizes text in captured manga regions with Tesseract.
package ocr

import (
	"errors"
	"fmt"
	"image"
	"strings"
	"sync"

	imgutil "manga-patcher/internal/image"

	"github.com/otiai10/gosseract/v2"
	"gocv.io/x/gocv"
)

// DefaultLanguage is vertical Japanese, the common manga layout.
const DefaultLanguage = "jpn_vert"

// minOCRHeight is the smallest side regions are upscaled to before
// recognition.
const minOCRHeight = 150

// ErrClosed is returned after Close.
var ErrClosed = errors.New("ocr engine closed")

// Engine wraps a Tesseract client. The client is not safe for concurrent
// use, so every call is serialized.
type Engine struct {
	mu       sync.Mutex
	client   *gosseract.Client
	language string
}

// NewEngine creates an engine for language.
func NewEngine(language string) (*Engine, error) {
	if language == "" {
		language = DefaultLanguage
	}
	client := gosseract.NewClient()

	if err := client.SetLanguage(language); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to set OCR language: %w", err)
	}

	// Dictionary correction mangles onomatopoeia and names.
	_ = client.SetVariable("load_system_dawg", "false")
	_ = client.SetVariable("load_freq_dawg", "false")

	if err := client.SetPageSegMode(pageSegMode(language)); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to set PSM: %w", err)
	}

	return &Engine{
		client:   client,
		language: language,
	}, nil
}

// ModelName identifies the engine in status reports.
func (e *Engine) ModelName() string {
	return "tesseract-" + e.language
}

// Close releases OCR resources.
func (e *Engine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.client == nil {
		return nil
	}
	err := e.client.Close()
	e.client = nil
	return err
}

// Recognize returns the text in img with all whitespace removed, since
// Tesseract separates CJK glyphs with spaces.
func (e *Engine) Recognize(img image.Image) (string, error) {
	src, err := imgutil.RGBToMat(imgutil.ToRGB(img))
	if err != nil {
		return "", err
	}
	defer src.Close()

	processed := preprocessForOCR(src)
	defer processed.Close()

	buf, err := gocv.IMEncode(gocv.PNGFileExt, processed)
	if err != nil {
		return "", fmt.Errorf("failed to encode image: %w", err)
	}
	defer buf.Close()

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.client == nil {
		return "", ErrClosed
	}

	if err := e.client.SetImageFromBytes(buf.GetBytes()); err != nil {
		return "", fmt.Errorf("failed to set image: %w", err)
	}
	text, err := e.client.Text()
	if err != nil {
		return "", fmt.Errorf("OCR failed: %w", err)
	}
	return normalize(text, e.language), nil
}

func pageSegMode(language string) gosseract.PageSegMode {
	if strings.HasSuffix(language, "_vert") {
		return gosseract.PSM_SINGLE_BLOCK_VERT_TEXT
	}
	return gosseract.PSM_SINGLE_BLOCK
}

// normalize drops whitespace for CJK languages and collapses it otherwise.
func normalize(text, language string) string {
	fields := strings.Fields(text)
	if strings.HasPrefix(language, "jpn") || strings.HasPrefix(language, "chi") || strings.HasPrefix(language, "kor") {
		return strings.Join(fields, "")
	}
	return strings.Join(fields, " ")
}

// preprocessForOCR upscales small regions and converts to grayscale.
func preprocessForOCR(region gocv.Mat) gocv.Mat {
	h, w := region.Rows(), region.Cols()

	var scaled gocv.Mat
	if minDim := min(h, w); minDim < minOCRHeight {
		scale := float64(minOCRHeight) / float64(minDim)
		scaled = gocv.NewMat()
		gocv.Resize(region, &scaled, image.Point{}, scale, scale, gocv.InterpolationCubic)
	} else {
		scaled = region.Clone()
	}
	defer scaled.Close()

	gray := gocv.NewMat()
	gocv.CvtColor(scaled, &gray, gocv.ColorBGRToGray)
	return gray
}
