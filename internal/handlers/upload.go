package handlers

import (
	"fmt"
	"io"
	"mime"
	"net/http"
	"path/filepath"
	"strconv"

	"github.com/rianhasansiam/digicam/internal/api/middleware"
	"github.com/rianhasansiam/digicam/internal/metrics"
)

// maxUploadSize is the largest accepted attachment in bytes.
const maxUploadSize = 10 << 20 // 10MB

// uploadKind classifies an accepted mime type as "image" or "file".
func uploadKind(mimetype string) (string, bool) {
	switch mimetype {
	case "image/jpeg", "image/jpg", "image/png", "image/gif", "image/webp":
		return "image", true
	case "application/pdf", "application/msword",
		"application/vnd.openxmlformats-officedocument.wordprocessingml.document",
		"text/plain", "application/zip", "application/x-rar-compressed":
		return "file", true
	}
	return "", false
}

// UploadedFile describes one stored attachment in the upload response.
type UploadedFile struct {
	Type     string `json:"type"` // "image" or "file"
	Filename string `json:"filename"`
	URL      string `json:"url"`
	Size     int64  `json:"size"`
	Mimetype string `json:"mimetype"`
}

// UploadResponse carries the stored attachments.
type UploadResponse struct {
	Files []UploadedFile `json:"files"`
}

// Upload stores chat attachments. Callers must carry an identity (admin
// token or storefront user header); anonymous visitors cannot upload, though
// an authenticated user may attach files to a guest thread they hold the id
// for. Clients embed the returned URL in a regular chat message.
func (h *Handler) Upload(w http.ResponseWriter, r *http.Request) {
	if h.files == nil {
		h.Error(w, http.StatusServiceUnavailable, "uploads not configured")
		return
	}

	identity := middleware.IdentityFromContext(r.Context())
	if identity == nil || identity.ID == "" {
		h.Error(w, http.StatusUnauthorized, "authentication required")
		return
	}

	// The global body cap exempts this route; enforce the upload cap here,
	// with headroom for the multipart framing.
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadSize+(1<<20))
	if err := r.ParseMultipartForm(maxUploadSize); err != nil {
		h.Error(w, http.StatusBadRequest, "invalid multipart body")
		return
	}
	defer r.MultipartForm.RemoveAll()

	conversationID := r.FormValue("conversationId")
	if conversationID == "" {
		h.Error(w, http.StatusBadRequest, "conversationId is required")
		return
	}
	if !h.mayAccessConversation(r, conversationID) {
		h.Error(w, http.StatusForbidden, "unauthorized access")
		return
	}

	parts := r.MultipartForm.File["file"]
	if len(parts) == 0 {
		h.Error(w, http.StatusBadRequest, "no file provided")
		return
	}

	uploaded := make([]UploadedFile, 0, len(parts))
	for _, fh := range parts {
		mimetype := fh.Header.Get("Content-Type")
		kind, ok := uploadKind(mimetype)
		if !ok {
			h.Error(w, http.StatusBadRequest, fmt.Sprintf("file type %s not supported", mimetype))
			return
		}
		if fh.Size > maxUploadSize {
			h.Error(w, http.StatusBadRequest, "file size must be less than 10MB")
			return
		}

		src, err := fh.Open()
		if err != nil {
			h.Error(w, http.StatusInternalServerError, "failed to read upload")
			return
		}
		stored, err := h.files.Save(fh.Filename, src)
		src.Close()
		if err != nil {
			h.Error(w, http.StatusInternalServerError, "failed to store upload")
			return
		}
		metrics.FilesUploaded.Inc()

		uploaded = append(uploaded, UploadedFile{
			Type:     kind,
			Filename: fh.Filename,
			URL:      "/api/chat/upload?fileId=" + stored.ID,
			Size:     stored.Size,
			Mimetype: mimetype,
		})
	}

	h.JSON(w, http.StatusCreated, UploadResponse{Files: uploaded})
}

// Download streams a stored attachment back. File ids are unguessable ULIDs,
// which is the same bearer-credential model guest conversation ids use.
func (h *Handler) Download(w http.ResponseWriter, r *http.Request) {
	if h.files == nil {
		h.Error(w, http.StatusServiceUnavailable, "uploads not configured")
		return
	}

	fileID := r.URL.Query().Get("fileId")
	if fileID == "" {
		h.Error(w, http.StatusBadRequest, "fileId is required")
		return
	}

	file, err := h.files.Open(fileID)
	if err != nil {
		h.Error(w, http.StatusInternalServerError, "failed to open file")
		return
	}
	if file == nil {
		h.Error(w, http.StatusNotFound, "file not found")
		return
	}
	defer file.Close()

	ctype := mime.TypeByExtension(filepath.Ext(fileID))
	if ctype == "" {
		ctype = "application/octet-stream"
	}
	w.Header().Set("Content-Type", ctype)
	if stat, err := file.Stat(); err == nil {
		w.Header().Set("Content-Length", strconv.FormatInt(stat.Size(), 10))
	}
	io.Copy(w, file)
}
