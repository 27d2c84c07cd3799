package handlers

import (
	"errors"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/orderdesk/apiserver/internal/logging"
	"github.com/orderdesk/apiserver/internal/services"
	"github.com/orderdesk/apiserver/internal/storage"
)

// UploadHandler serves stored order images.
type UploadHandler struct {
	images *services.ImageUploader
}

func NewUploadHandler(images *services.ImageUploader) *UploadHandler {
	return &UploadHandler{images: images}
}

// UploadRouter registers GET /{filename}. Images are public.
func UploadRouter(r chi.Router, images *services.ImageUploader) {
	handler := NewUploadHandler(images)
	r.Get("/{filename}", handler.ServeUpload)
}

func (h *UploadHandler) ServeUpload(w http.ResponseWriter, r *http.Request) {
	rc, contentType, err := h.images.Open(r.Context(), chi.URLParam(r, "filename"))
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotFound) {
			writeError(w, http.StatusNotFound, "File not found")
			return
		}
		logging.FromContext(r.Context()).Error("open upload failed", "error", err)
		writeError(w, http.StatusInternalServerError, "Failed to read file")
		return
	}
	defer rc.Close()

	w.Header().Set("Content-Type", contentType)
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.Header().Set("Content-Security-Policy", "default-src 'none'; sandbox")
	if contentType == services.FallbackContentType {
		w.Header().Set("Content-Disposition", "attachment")
	}
	w.WriteHeader(http.StatusOK)
	if _, err := io.Copy(w, rc); err != nil {
		logging.FromContext(r.Context()).Warn("stream upload failed", "error", err)
	}
}
