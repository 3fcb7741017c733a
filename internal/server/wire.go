package server

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"manga-patcher/internal/patch"
	"manga-patcher/internal/render"
	"manga-patcher/pkg/colorutil"
	"manga-patcher/pkg/geometry"
)

// HealthResponse is returned by GET /health.
type HealthResponse struct {
	Status      string `json:"status"`
	ModelLoaded bool   `json:"model_loaded"`
	CleanerMode string `json:"cleaner_mode"`
	BuildID     string `json:"build_id"`
}

// ModelStatus is the readiness of one model.
type ModelStatus struct {
	Name  string `json:"name"`
	Ready bool   `json:"ready"`
	State string `json:"state"`
	Error string `json:"error,omitempty"`
}

// StatusResponse is returned by GET /status.
type StatusResponse struct {
	Models map[string]ModelStatus `json:"models"`
}

// ImageRequest carries one base64 image.
type ImageRequest struct {
	Image  string `json:"image"`
	Format string `json:"format,omitempty"`
}

// ScanResponse is returned by the scan endpoints.
type ScanResponse struct {
	Status    string `json:"status"`
	Text      string `json:"text"`
	ImageSize [2]int `json:"image_size"`
}

// PatchRequest is the JSON body of POST /generate-patch.
type PatchRequest struct {
	CapturedImage    string             `json:"capturedImage"`
	TranslatedText   []string           `json:"translatedText"`
	FontSize         int                `json:"fontSize"`
	FontType         string             `json:"fontType"`
	TextColor        string             `json:"textColor"`
	StrokeColor      *string            `json:"strokeColor"`
	StrokeWidth      int                `json:"strokeWidth"`
	PolygonPoints    []geometry.Point2D `json:"polygonPoints"`
	AlphaBackground  bool               `json:"alphaBackground"`
	CleanerThreshold int                `json:"cleanerThreshold"`
}

func defaultPatchRequest() PatchRequest {
	return PatchRequest{
		FontSize:         24,
		FontType:         string(render.FamilyRegular),
		TextColor:        "#000000",
		CleanerThreshold: patch.DefaultCleanerThreshold,
	}
}

// toPatch converts the wire request. Errors are client errors.
func (p PatchRequest) toPatch() (patch.PatchRequest, error) {
	region, err := decodeBase64(p.CapturedImage)
	if err != nil {
		return patch.PatchRequest{}, fmt.Errorf("capturedImage: %w", err)
	}
	text, err := colorutil.ParseHex(p.TextColor)
	if err != nil {
		return patch.PatchRequest{}, fmt.Errorf("textColor: %w", err)
	}
	stroke, err := colorutil.ParseOptionalHex(p.StrokeColor)
	if err != nil {
		return patch.PatchRequest{}, fmt.Errorf("strokeColor: %w", err)
	}
	return patch.PatchRequest{
		Region: region,
		Lines:  p.TranslatedText,
		Font: render.FontDescriptor{
			Family: render.ParseFamily(p.FontType),
			SizePx: p.FontSize,
		},
		Style: render.Style{
			TextColor:   text,
			StrokeColor: stroke,
			StrokeWidth: p.StrokeWidth,
		},
		Polygon:          geometry.Polygon(p.PolygonPoints),
		AlphaBackground:  p.AlphaBackground,
		CleanerThreshold: p.CleanerThreshold,
	}, nil
}

// PatchResponse is returned by POST /generate-patch.
type PatchResponse struct {
	Status     string `json:"status"`
	PatchImage string `json:"patchImage"`
	Size       [2]int `json:"size"`
}

// PatchOverlay is one patch in a merge request.
type PatchOverlay struct {
	PatchImageBase64 string  `json:"patchImageBase64"`
	X                float64 `json:"x"`
	Y                float64 `json:"y"`
	Width            *int    `json:"width"`
	Height           *int    `json:"height"`
}

// MergePatchesRequest is the JSON body of POST /merge-patches.
type MergePatchesRequest struct {
	PageImageBase64 string         `json:"pageImageBase64"`
	Patches         []PatchOverlay `json:"patches"`
}

// toMerge converts the wire request. Only the page is required to decode;
// overlays with bad base64 carry the error and are skipped by the compositor.
func (m MergePatchesRequest) toMerge() (patch.MergeRequest, error) {
	page, err := decodeBase64(m.PageImageBase64)
	if err != nil {
		return patch.MergeRequest{}, fmt.Errorf("pageImageBase64: %w", err)
	}
	req := patch.MergeRequest{
		Page:     page,
		Overlays: make([]patch.Overlay, len(m.Patches)),
	}
	for i, p := range m.Patches {
		data, err := decodeBase64(p.PatchImageBase64)
		if err != nil {
			err = fmt.Errorf("patchImageBase64: %w", err)
		}
		req.Overlays[i] = patch.Overlay{
			Image:  data,
			X:      p.X,
			Y:      p.Y,
			Width:  p.Width,
			Height: p.Height,
			Err:    err,
		}
	}
	return req, nil
}

// MergePatchesResponse is returned by POST /merge-patches.
type MergePatchesResponse struct {
	Status      string                 `json:"status"`
	MergedImage string                 `json:"mergedImage"`
	Format      string                 `json:"format"`
	Skipped     []patch.SkippedOverlay `json:"skipped"`
}

// InpaintMaskResponse is returned by POST /inpaint-mask.
type InpaintMaskResponse struct {
	Status       string `json:"status"`
	CleanedImage string `json:"cleanedImage"`
}

// ErrorResponse is the body of every non-2xx response.
type ErrorResponse struct {
	Detail string `json:"detail"`
}

// decodeBase64 accepts standard base64 with or without a data URL prefix.
func decodeBase64(s string) ([]byte, error) {
	if i := strings.Index(s, ";base64,"); i >= 0 && strings.HasPrefix(s, "data:") {
		s = s[i+len(";base64,"):]
	}
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, fmt.Errorf("empty image data")
	}
	data, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("invalid base64: %w", err)
	}
	return data, nil
}

func encodeBase64(data []byte) string {
	return base64.StdEncoding.EncodeToString(data)
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, detail string) {
	writeJSON(w, status, ErrorResponse{Detail: detail})
}

// statusForKind maps pipeline error kinds to HTTP status codes.
func statusForKind(k patch.Kind) int {
	switch k {
	case patch.KindInput:
		return http.StatusBadRequest
	case patch.KindUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
