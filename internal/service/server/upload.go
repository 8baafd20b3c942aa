package server

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime"
	"net/http"
	"os"
	"path/filepath"

	"ephemsg/internal/utils/log"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const maxUploadBytes = 10 << 20 // 10MB ceiling

// allowedMIME is the image/audio allow-list for uploads.
var allowedMIME = map[string]string{
	"image/jpeg": ".jpg",
	"image/png":  ".png",
	"image/gif":  ".gif",
	"image/webp": ".webp",
	"audio/mpeg": ".mp3",
	"audio/ogg":  ".ogg",
	"audio/wav":  ".wav",
	"audio/webm": ".webm",
}

// BlobStore is the opaque blob collaborator: it takes bytes and returns a
// stable URL the router stores verbatim in mediaUrl.
type BlobStore interface {
	Put(ctx context.Context, name, contentType string, r io.Reader) (string, error)
}

// DiskBlobStore is the default BlobStore: files on local disk served under
// baseURL.
type DiskBlobStore struct {
	Dir     string
	BaseURL string
}

func (s *DiskBlobStore) Put(_ context.Context, name, _ string, r io.Reader) (string, error) {
	if err := os.MkdirAll(s.Dir, 0o755); err != nil {
		return "", err
	}
	f, err := os.Create(filepath.Join(s.Dir, name))
	if err != nil {
		return "", err
	}
	defer f.Close()
	if _, err := io.Copy(f, r); err != nil {
		return "", err
	}
	return s.BaseURL + "/" + name, nil
}

// HandleUpload accepts one multipart file, enforces the size ceiling and
// MIME allow-list, and responds with the blob URL.
func (s *HttpServer) HandleUpload() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
		file, header, err := r.FormFile("file")
		if err != nil {
			http.Error(w, "file too large or missing", http.StatusBadRequest)
			return
		}
		defer file.Close()

		contentType, _, _ := mime.ParseMediaType(header.Header.Get("Content-Type"))
		ext, ok := allowedMIME[contentType]
		if !ok {
			http.Error(w, fmt.Sprintf("unsupported media type %q", contentType), http.StatusUnsupportedMediaType)
			return
		}

		name := uuid.NewString() + ext
		url, err := s.blobs.Put(r.Context(), name, contentType, file)
		if err != nil {
			log.Error("blob store put failed", zap.Error(err))
			http.Error(w, "upload failed", http.StatusInternalServerError)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]string{"url": url})
	}
}
