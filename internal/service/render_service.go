package service

import (
	"encoding/json"
	"mime/multipart"

	"github.com/lyricmotion/api/internal/model"
	"github.com/lyricmotion/api/internal/store"
)

// RenderService accepts a multipart submission, resolves it against the
// uploaded assets, and enqueues the job. The store never receives a job
// carrying an unresolved file key: resolution failures reject the request
// and tear down the request's uploads before any job exists.
type RenderService struct {
	store    *store.Store
	uploads  *UploadService
	resolver *Resolver
}

func NewRenderService(st *store.Store, uploads *UploadService, resolver *Resolver) *RenderService {
	return &RenderService{
		store:    st,
		uploads:  uploads,
		resolver: resolver,
	}
}

// Submit processes a render request end to end: persist uploads, build the
// asset map, resolve the scene graph, create the pending job.
func (s *RenderService) Submit(form *multipart.Form) (*model.RenderSubmitResponse, error) {
	if len(form.File[audioFieldKey]) == 0 {
		return nil, validationErrorf(audioFieldKey, "audio file is required")
	}

	assets, err := s.uploads.SaveAll(form.File)
	if err != nil {
		return nil, err
	}

	req, err := parseRenderRequest(form.Value)
	if err != nil {
		s.uploads.Remove(assets)
		return nil, err
	}

	resolved, err := s.resolver.Resolve(req, model.BuildAssetMap(assets))
	if err != nil {
		s.uploads.Remove(assets)
		return nil, err
	}

	// The uploaded audio is transient once its URL is in the resolved
	// document; the invoker removes it after the render.
	var tempFiles []string
	for _, a := range assets {
		if a.FieldKey == audioFieldKey {
			tempFiles = append(tempFiles, a.StoredPath)
		}
	}

	job := s.store.Create(resolved, tempFiles)
	return &model.RenderSubmitResponse{
		JobID:   job.ID,
		Status:  job.Status,
		Message: "render job queued",
	}, nil
}

// GetStatus returns the polling view of a job.
func (s *RenderService) GetStatus(id string) (*model.RenderStatusResponse, bool) {
	job, ok := s.store.Get(id)
	if !ok {
		return nil, false
	}
	return &model.RenderStatusResponse{
		JobID:       job.ID,
		Status:      job.Status,
		Progress:    job.Progress,
		Error:       job.Error,
		CreatedAt:   job.CreatedAt,
		CompletedAt: job.CompletedAt,
	}, true
}

// GetJob returns the full job record.
func (s *RenderService) GetJob(id string) (*model.RenderJob, bool) {
	return s.store.Get(id)
}

// parseRenderRequest decodes the JSON-encoded form fields. Malformed JSON
// or a missing required field is a shape violation.
func parseRenderRequest(values map[string][]string) (*model.RenderRequest, error) {
	req := &model.RenderRequest{
		UseGrouping: firstValue(values, "useGrouping") == "true",
	}

	if req.UseGrouping {
		if err := decodeField(values, "sceneGroups", true, &req.SceneGroups); err != nil {
			return nil, err
		}
		if err := decodeField(values, "lyricLines", false, &req.LyricLines); err != nil {
			return nil, err
		}
	} else {
		if err := decodeField(values, "scenes", true, &req.Scenes); err != nil {
			return nil, err
		}
	}
	if err := decodeField(values, "metadata", false, &req.Metadata); err != nil {
		return nil, err
	}
	if err := decodeField(values, "outroConfig", false, &req.Outro); err != nil {
		return nil, err
	}
	if err := decodeField(values, "songInfoConfig", false, &req.SongInfo); err != nil {
		return nil, err
	}
	return req, nil
}

func decodeField(values map[string][]string, field string, required bool, dst interface{}) error {
	raw := firstValue(values, field)
	if raw == "" {
		if required {
			return validationErrorf(field, "field is required")
		}
		return nil
	}
	if err := json.Unmarshal([]byte(raw), dst); err != nil {
		return validationErrorf(field, "invalid JSON: %v", err)
	}
	return nil
}

func firstValue(values map[string][]string, key string) string {
	if v, ok := values[key]; ok && len(v) > 0 {
		return v[0]
	}
	return ""
}
