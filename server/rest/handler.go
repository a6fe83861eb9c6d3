package rest

import (
	"encoding/json"
	"errors"
	"log/slog"
	"mime"
	"net/http"
	"os"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/vidfetch/vidfetch/server/internal"
	middlewares "github.com/vidfetch/vidfetch/server/middleware"
)

type Handler struct {
	service *Service
	hub     *hub
}

func NewHandler(svc *Service, h *hub) *Handler {
	return &Handler{
		service: svc,
		hub:     h,
	}
}

func ApplyRouter(args *ContainerArgs) func(chi.Router) {
	h := ProvideHandler(ProvideService(args), args)
	return h.routes
}

func (h *Handler) routes(r chi.Router) {
	r.Post("/get_video_info", h.VideoInfo())
	r.Post("/download", h.Exec())
	r.Get("/download_progress/{id}", h.Progress())
	r.Get("/download_progress/{id}/ws", h.WebSocket())
	r.Get("/download_file/{id}", h.DownloadFile())
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)

	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("failed to encode response", slog.String("err", err.Error()))
	}
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, map[string]string{"error": msg})
}

func (h *Handler) VideoInfo() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		defer r.Body.Close()

		var req struct {
			URL string `json:"url"`
		}

		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}

		url := strings.TrimSpace(req.URL)
		if url == "" {
			writeError(w, http.StatusBadRequest, "Please enter a video URL")
			return
		}

		info, err := h.service.VideoInfo(r.Context(), url)
		switch {
		case err == nil:
			writeJSON(w, http.StatusOK, info)
		case errors.Is(err, internal.ErrInvalidURL), errors.Is(err, internal.ErrUnrecognizedURLShape):
			writeError(w, http.StatusBadRequest, "Please enter a valid YouTube, Instagram or Facebook URL")
		case errors.Is(err, internal.ErrExtractionFailed):
			writeError(w, http.StatusBadRequest, "Error loading video: "+err.Error())
		default:
			writeError(w, http.StatusInternalServerError, err.Error())
		}
	}
}

// downloadRequest also accepts the selector under its older names.
type downloadRequest struct {
	URL      string          `json:"url"`
	Selector string          `json:"selector"`
	Itag     json.RawMessage `json:"itag"`
	FormatID string          `json:"format_id"`
}

func (d downloadRequest) selector() string {
	if s := strings.TrimSpace(d.Selector); s != "" {
		return s
	}
	if s := strings.TrimSpace(d.FormatID); s != "" {
		return s
	}
	if len(d.Itag) == 0 {
		return ""
	}

	var s string
	if err := json.Unmarshal(d.Itag, &s); err == nil {
		return strings.TrimSpace(s)
	}

	var n json.Number
	if err := json.Unmarshal(d.Itag, &n); err == nil {
		return n.String()
	}
	return ""
}

func (h *Handler) Exec() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		defer r.Body.Close()

		var req downloadRequest

		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}

		url, selector := strings.TrimSpace(req.URL), req.selector()
		if url == "" || selector == "" {
			writeError(w, http.StatusBadRequest, "Missing URL or quality selection")
			return
		}

		id, err := h.service.Exec(r.Context(), internal.DownloadRequest{
			URL:       url,
			Selector:  selector,
			Requester: middlewares.RequesterFrom(r),
		})
		switch {
		case err == nil:
			writeJSON(w, http.StatusOK, DownloadResponse{
				DownloadID: id,
				Message:    "Download started",
			})
		case errors.Is(err, internal.ErrInvalidURL), errors.Is(err, internal.ErrFormatUnavailable):
			writeError(w, http.StatusBadRequest, err.Error())
		default:
			writeError(w, http.StatusInternalServerError, "Error starting download: "+err.Error())
		}
	}
}

func (h *Handler) Progress() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, h.service.Progress(chi.URLParam(r, "id")))
	}
}

func (h *Handler) DownloadFile() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		path, name, err := h.service.File(chi.URLParam(r, "id"))
		if err != nil {
			writeError(w, http.StatusNotFound, strings.TrimPrefix(err.Error(), internal.ErrNotFound.Error()+": "))
			return
		}

		fd, err := os.Open(path)
		if err != nil {
			writeError(w, http.StatusNotFound, "file not found")
			return
		}
		defer fd.Close()

		info, err := fd.Stat()
		if err != nil {
			slog.Error("error serving file", slog.String("path", path), slog.String("err", err.Error()))
			writeError(w, http.StatusInternalServerError, "Error serving file")
			return
		}

		w.Header().Set("Content-Type", "application/octet-stream")
		w.Header().Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{
			"filename": name,
		}))

		http.ServeContent(w, r, name, info.ModTime(), fd)
	}
}
