package apiserver

import (
	"fmt"
	"log"
	"net/http"

	"chatlink/internal/config"
	"chatlink/internal/storage"
)

const defaultMaxMemory = 32 << 20 // 32 MB for the non-file form parts

// UploadHandler accepts media uploads and returns their durable URL.
type UploadHandler struct {
	media storage.MediaStorage
	cfg   config.StorageConfig
}

// NewUploadHandler creates an UploadHandler.
func NewUploadHandler(media storage.MediaStorage, cfg config.StorageConfig) *UploadHandler {
	return &UploadHandler{media: media, cfg: cfg}
}

// UploadFile stores the "file" part of a multipart form.
func (h *UploadHandler) UploadFile(w http.ResponseWriter, r *http.Request) {
	maxUploadSize := h.cfg.MaxFileSizeMB << 20
	if maxUploadSize <= 0 {
		maxUploadSize = defaultMaxMemory
	}
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadSize)

	if err := r.ParseMultipartForm(defaultMaxMemory); err != nil {
		if err.Error() == "http: request body too large" {
			writeJSONError(w, fmt.Sprintf("file too large, limit is %d MB", maxUploadSize>>20), http.StatusRequestEntityTooLarge)
		} else {
			writeJSONError(w, fmt.Sprintf("failed to parse form: %v", err), http.StatusBadRequest)
		}
		return
	}

	file, handler, err := r.FormFile("file")
	if err != nil {
		if err == http.ErrMissingFile {
			writeJSONError(w, "missing 'file' field", http.StatusBadRequest)
		} else {
			writeJSONError(w, fmt.Sprintf("failed to read file: %v", err), http.StatusBadRequest)
		}
		return
	}
	defer file.Close()

	if handler.Size > maxUploadSize {
		writeJSONError(w, fmt.Sprintf("file too large, limit is %d MB", maxUploadSize>>20), http.StatusRequestEntityTooLarge)
		return
	}

	mimeType := handler.Header.Get("Content-Type")
	fileInfo, err := h.media.UploadFile(r.Context(), file, handler.Size, handler.Filename, mimeType)
	if err != nil {
		log.Printf("apiserver: storing upload failed: %v", err)
		writeJSONError(w, "failed to store file", http.StatusInternalServerError)
		return
	}
	writeJSONResponse(w, http.StatusOK, fileInfo)
}
