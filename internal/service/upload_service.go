package service

import (
	"io"
	"log"
	"mime/multipart"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/google/uuid"

	"github.com/lyricmotion/api/internal/model"
)

// allowedUploadTypes maps accepted extensions to the MIME types a part may
// declare for them. Both checks must agree or the upload is rejected before
// the rest of the request is processed.
var allowedUploadTypes = map[string][]string{
	".mp3":  {"audio/mpeg", "audio/mp3"},
	".wav":  {"audio/wav", "audio/x-wav", "audio/wave"},
	".m4a":  {"audio/mp4", "audio/x-m4a"},
	".aac":  {"audio/aac", "audio/x-aac"},
	".ogg":  {"audio/ogg"},
	".mp4":  {"video/mp4"},
	".mov":  {"video/quicktime"},
	".webm": {"video/webm"},
	".png":  {"image/png"},
	".jpg":  {"image/jpeg"},
	".jpeg": {"image/jpeg"},
	".gif":  {"image/gif"},
	".webp": {"image/webp"},
}

// UploadService persists multipart uploads under randomized names and maps
// them to public URLs.
type UploadService struct {
	uploadDir     string
	publicBaseURL string
}

func NewUploadService(uploadDir, publicBaseURL string) *UploadService {
	return &UploadService{
		uploadDir:     uploadDir,
		publicBaseURL: strings.TrimRight(publicBaseURL, "/"),
	}
}

// SaveAll persists every file part. Each file gets a random name keeping
// only the lower-cased original extension. On any rejection the files saved
// so far are removed and a *ValidationError is returned.
func (s *UploadService) SaveAll(files map[string][]*multipart.FileHeader) ([]model.UploadedAsset, error) {
	fields := make([]string, 0, len(files))
	for field := range files {
		fields = append(fields, field)
	}
	sort.Strings(fields)

	var saved []model.UploadedAsset
	for _, field := range fields {
		for _, header := range files[field] {
			asset, err := s.saveOne(field, header)
			if err != nil {
				s.Remove(saved)
				return nil, err
			}
			saved = append(saved, asset)
		}
	}
	return saved, nil
}

func (s *UploadService) saveOne(field string, header *multipart.FileHeader) (model.UploadedAsset, error) {
	ext := strings.ToLower(filepath.Ext(header.Filename))
	mimes, ok := allowedUploadTypes[ext]
	if !ok {
		return model.UploadedAsset{}, validationErrorf(field, "unsupported file extension %q", ext)
	}

	contentType := header.Header.Get("Content-Type")
	if i := strings.Index(contentType, ";"); i >= 0 {
		contentType = contentType[:i]
	}
	contentType = strings.TrimSpace(contentType)
	if !contains(mimes, contentType) {
		return model.UploadedAsset{}, validationErrorf(field, "content type %q does not match extension %q", contentType, ext)
	}

	src, err := header.Open()
	if err != nil {
		return model.UploadedAsset{}, err
	}
	defer src.Close()

	if err := os.MkdirAll(s.uploadDir, 0o755); err != nil {
		return model.UploadedAsset{}, err
	}

	name := uuid.New().String() + ext
	dstPath := filepath.Join(s.uploadDir, name)
	dst, err := os.Create(dstPath)
	if err != nil {
		return model.UploadedAsset{}, err
	}
	defer dst.Close()

	if _, err := io.Copy(dst, src); err != nil {
		os.Remove(dstPath)
		return model.UploadedAsset{}, err
	}

	return model.UploadedAsset{
		FieldKey:   field,
		StoredPath: dstPath,
		URL:        s.publicBaseURL + "/uploads/" + name,
	}, nil
}

// Remove deletes the stored files for the given assets. Best effort; used
// when a request fails after its uploads were persisted.
func (s *UploadService) Remove(assets []model.UploadedAsset) {
	for _, a := range assets {
		if err := os.Remove(a.StoredPath); err != nil && !os.IsNotExist(err) {
			log.Printf("Warning: failed to remove uploaded file %s: %v", a.StoredPath, err)
		}
	}
}

func contains(list []string, v string) bool {
	for _, item := range list {
		if item == v {
			return true
		}
	}
	return false
}
