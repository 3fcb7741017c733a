package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"image"
	"image/draw"
	"io"
	"net/http"

	"manga-patcher/internal/app"
	imgutil "manga-patcher/internal/image"
	"manga-patcher/internal/logger"
	"manga-patcher/internal/patch"
)

// maxMultipartMemory is held in memory before parts spill to disk.
const maxMultipartMemory = 32 << 20

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, HealthResponse{
		Status:      "healthy",
		ModelLoaded: s.state.ModelsLoaded(),
		CleanerMode: string(s.state.CleanerMode),
		BuildID:     s.state.BuildID,
	})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	resp := StatusResponse{Models: make(map[string]ModelStatus)}
	sup := s.state.Supervisor()

	names := map[string]string{
		app.TaskCleaner: s.state.CleanerName(),
		app.TaskOCR:     s.state.OCRModelName(),
	}
	for key, name := range names {
		ms := ModelStatus{Name: name, State: app.TaskPending.String()}
		if task, ok := sup.Task(key); ok {
			st := task.Status()
			ms.Ready = st.State == app.TaskReady
			ms.State = st.State.String()
			ms.Error = st.Error
		} else if key == app.TaskOCR {
			ms.State = "disabled"
		}
		resp.Models[key] = ms
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleScan(w http.ResponseWriter, r *http.Request) {
	var req ImageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body: "+err.Error())
		return
	}
	data, err := decodeBase64(req.Image)
	if err != nil {
		writeError(w, http.StatusBadRequest, "image: "+err.Error())
		return
	}
	s.scan(w, r, data)
}

func (s *Server) handleScanUpload(w http.ResponseWriter, r *http.Request) {
	data, err := readFormFile(r, "file")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	s.scan(w, r, data)
}

func (s *Server) scan(w http.ResponseWriter, r *http.Request, data []byte) {
	log := logger.WithContext(r.Context())

	engine, ok := s.state.OCR()
	if !ok {
		writeError(w, http.StatusServiceUnavailable, "OCR model not ready")
		return
	}
	img, _, err := imgutil.Decode(data)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	text, err := engine.Recognize(img)
	if err != nil {
		log.Error().Err(err).Msg("OCR failed")
		writeError(w, http.StatusInternalServerError, "OCR failed: "+err.Error())
		return
	}
	b := img.Bounds()
	writeJSON(w, http.StatusOK, ScanResponse{
		Status:    "success",
		Text:      text,
		ImageSize: [2]int{b.Dx(), b.Dy()},
	})
}

func (s *Server) handleGeneratePatch(w http.ResponseWriter, r *http.Request) {
	req := defaultPatchRequest()
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body: "+err.Error())
		return
	}
	preq, err := req.toPatch()
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	res, err := s.generator.Generate(r.Context(), preq)
	if err != nil {
		writeError(w, statusForKind(patch.KindOf(err)), "Patch generation failed: "+err.Error())
		return
	}
	writeJSON(w, http.StatusOK, PatchResponse{
		Status:     "success",
		PatchImage: encodeBase64(res.PNG),
		Size:       [2]int{res.Width, res.Height},
	})
}

func (s *Server) handleMergePatches(w http.ResponseWriter, r *http.Request) {
	var req MergePatchesRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body: "+err.Error())
		return
	}
	mreq, err := req.toMerge()
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	res, err := s.compositor.Merge(r.Context(), mreq)
	if err != nil {
		writeError(w, statusForKind(patch.KindOf(err)), "Merge failed: "+err.Error())
		return
	}
	skipped := res.Skipped
	if skipped == nil {
		skipped = []patch.SkippedOverlay{}
	}
	writeJSON(w, http.StatusOK, MergePatchesResponse{
		Status:      "success",
		MergedImage: encodeBase64(res.Data),
		Format:      string(res.Format),
		Skipped:     skipped,
	})
}

func (s *Server) handleInpaintMask(w http.ResponseWriter, r *http.Request) {
	log := logger.WithContext(r.Context())

	neural, ok := s.state.NeuralCleaner()
	if !ok {
		writeError(w, http.StatusServiceUnavailable, "inpainting model not ready")
		return
	}

	imageData, err := readFormFile(r, "image")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	maskData, err := readFormFile(r, "mask")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	img, _, err := imgutil.Decode(imageData)
	if err != nil {
		writeError(w, http.StatusBadRequest, "image: "+err.Error())
		return
	}
	maskImg, _, err := imgutil.Decode(maskData)
	if err != nil {
		writeError(w, http.StatusBadRequest, "mask: "+err.Error())
		return
	}
	if img.Bounds().Size() != maskImg.Bounds().Size() {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("mask size %v does not match image size %v",
			maskImg.Bounds().Size(), img.Bounds().Size()))
		return
	}

	b := img.Bounds()
	log.Info().Int("width", b.Dx()).Int("height", b.Dy()).Msg("Inpainting page")

	cleaned, err := neural.InpaintMask(r.Context(), imgutil.ToRGB(img), toGray(maskImg))
	if err != nil {
		log.Error().Err(err).Int("width", b.Dx()).Int("height", b.Dy()).Msg("Inpainting failed")
		writeError(w, http.StatusInternalServerError, "Inpainting failed: "+err.Error())
		return
	}
	data, err := imgutil.EncodePNG(cleaned)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Inpainting failed: "+err.Error())
		return
	}
	writeJSON(w, http.StatusOK, InpaintMaskResponse{
		Status:       "success",
		CleanedImage: encodeBase64(data),
	})
}

func readFormFile(r *http.Request, field string) ([]byte, error) {
	if r.MultipartForm == nil {
		if err := r.ParseMultipartForm(maxMultipartMemory); err != nil {
			return nil, fmt.Errorf("invalid multipart form: %w", err)
		}
	}
	f, _, err := r.FormFile(field)
	if err != nil {
		if errors.Is(err, http.ErrMissingFile) {
			return nil, fmt.Errorf("missing form file %q", field)
		}
		return nil, fmt.Errorf("form file %q: %w", field, err)
	}
	defer f.Close()
	return io.ReadAll(f)
}

func toGray(img image.Image) *image.Gray {
	if g, ok := img.(*image.Gray); ok && g.Bounds().Min == (image.Point{}) {
		return g
	}
	b := img.Bounds()
	g := image.NewGray(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(g, g.Bounds(), img, b.Min, draw.Src)
	return g
}
