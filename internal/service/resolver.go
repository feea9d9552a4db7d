package service

import (
	"fmt"
	"log"

	"github.com/go-playground/validator/v10"

	"github.com/lyricmotion/api/internal/model"
)

// audioFieldKey is the multipart field the audio track must arrive under.
const audioFieldKey = "audioFile"

// Resolver rewrites a raw client scene/group graph into a render-ready
// document, substituting every upload field key with the durable URL from
// the asset map. It never mutates its inputs; a new tree is produced.
//
// Shape violations abort with *ValidationError before any job is created.
// A referenced key with no matching upload is non-fatal: the group or field
// is left unresolved and a warning is logged.
type Resolver struct {
	validate *validator.Validate
}

func NewResolver(v *validator.Validate) *Resolver {
	return &Resolver{validate: v}
}

// Resolve dispatches on the request's grouping flag exactly once; the two
// modes share only the outro and audio steps.
func (r *Resolver) Resolve(req *model.RenderRequest, assets model.AssetMap) (*model.ResolvedInput, error) {
	if req.UseGrouping {
		return r.resolveGrouped(req, assets)
	}
	return r.resolveLegacy(req, assets)
}

func (r *Resolver) resolveGrouped(req *model.RenderRequest, assets model.AssetMap) (*model.ResolvedInput, error) {
	audioURL, ok := assets.Lookup(audioFieldKey)
	if !ok {
		return nil, validationErrorf(audioFieldKey, "audio file is required")
	}

	byID := make(map[string]struct{}, len(req.SceneGroups))
	for i, g := range req.SceneGroups {
		if err := r.validate.Struct(&g); err != nil {
			return nil, shapeError(fmt.Sprintf("sceneGroups[%d]", i), err)
		}
		byID[g.ID] = struct{}{}
	}
	for i, line := range req.LyricLines {
		if err := r.validate.Struct(&line); err != nil {
			return nil, shapeError(fmt.Sprintf("lyricLines[%d]", i), err)
		}
	}

	groups := make([]model.SceneGroup, 0, len(req.SceneGroups))
	for _, g := range req.SceneGroups {
		resolved := g.Clone()
		r.resolveGroupMedia(&resolved, byID, assets)
		groups = append(groups, resolved)
	}

	outro, err := r.resolveOutro(req.Outro, assets)
	if err != nil {
		return nil, err
	}
	songInfo, err := r.validateSongInfo(req.SongInfo)
	if err != nil {
		return nil, err
	}

	lines := make([]model.LyricLine, len(req.LyricLines))
	copy(lines, req.LyricLines)

	return &model.ResolvedInput{
		Scenes:      []model.Scene{},
		SceneGroups: groups,
		LyricLines:  lines,
		UseGrouping: true,
		AudioURL:    audioURL,
		Metadata:    req.Metadata,
		Outro:       outro,
		SongInfo:    songInfo,
	}, nil
}

func (r *Resolver) resolveLegacy(req *model.RenderRequest, assets model.AssetMap) (*model.ResolvedInput, error) {
	audioURL, ok := assets.Lookup(audioFieldKey)
	if !ok {
		return nil, validationErrorf(audioFieldKey, "audio file is required")
	}

	for i, sc := range req.Scenes {
		if err := r.validate.Struct(&sc); err != nil {
			return nil, shapeError(fmt.Sprintf("scenes[%d]", i), err)
		}
	}
	scenes := make([]model.Scene, len(req.Scenes))
	copy(scenes, req.Scenes)

	outro, err := r.resolveOutro(req.Outro, assets)
	if err != nil {
		return nil, err
	}
	songInfo, err := r.validateSongInfo(req.SongInfo)
	if err != nil {
		return nil, err
	}

	return &model.ResolvedInput{
		Scenes:      scenes,
		SceneGroups: []model.SceneGroup{},
		LyricLines:  []model.LyricLine{},
		UseGrouping: false,
		AudioURL:    audioURL,
		Metadata:    req.Metadata,
		Outro:       outro,
		SongInfo:    songInfo,
	}, nil
}

// resolveGroupMedia applies the media substitution rules to a single group,
// in place on the already-cloned copy.
func (r *Resolver) resolveGroupMedia(g *model.SceneGroup, batch map[string]struct{}, assets model.AssetMap) {
	switch {
	case g.MediaFileKey != "":
		url, ok := assets.Lookup(g.MediaFileKey)
		if !ok {
			log.Printf("Warning: group %s references upload %q with no matching file, leaving unresolved", g.ID, g.MediaFileKey)
			return
		}
		g.MediaURL = url
		g.MediaFileKey = ""
		rewriteActiveVersion(g, url)

	case g.IsReusedGroup && g.OriginalGroupID != "":
		if _, ok := batch[g.OriginalGroupID]; !ok {
			log.Printf("Warning: group %s reuses unknown group %q, leaving unresolved", g.ID, g.OriginalGroupID)
			return
		}
		key := model.ReusedMediaKey(g.OriginalGroupID)
		url, ok := assets.Lookup(key)
		if !ok {
			log.Printf("Warning: group %s reuses %q but key %q has no upload, leaving unresolved", g.ID, g.OriginalGroupID, key)
			return
		}
		g.MediaURL = url
		rewriteActiveVersion(g, url)
	}
	// no media reference at all: pass through unchanged
}

// rewriteActiveVersion keeps the invariant that the media version matching
// activeMediaId carries the group's resolved media reference.
func rewriteActiveVersion(g *model.SceneGroup, url string) {
	for i := range g.MediaVersions {
		if g.MediaVersions[i].ID == g.ActiveMediaID {
			g.MediaVersions[i].Path = url
		}
	}
}

// resolveOutro substitutes the two QR upload keys. The key fields are
// cleared whether or not the lookup hits; a miss leaves the URL absent.
func (r *Resolver) resolveOutro(outro *model.OutroConfig, assets model.AssetMap) (*model.OutroConfig, error) {
	if outro == nil {
		return nil, nil
	}
	if err := r.validate.Struct(outro); err != nil {
		return nil, shapeError("outroConfig", err)
	}
	resolved := *outro

	if key := resolved.GithubQRFileKey; key != "" {
		if url, ok := assets.Lookup(key); ok {
			resolved.GithubQRURL = url
		} else {
			log.Printf("Warning: outro github QR key %q has no matching upload", key)
		}
		resolved.GithubQRFileKey = ""
	}
	if key := resolved.BitcoinQRFileKey; key != "" {
		if url, ok := assets.Lookup(key); ok {
			resolved.BitcoinQRURL = url
		} else {
			log.Printf("Warning: outro bitcoin QR key %q has no matching upload", key)
		}
		resolved.BitcoinQRFileKey = ""
	}
	return &resolved, nil
}

func (r *Resolver) validateSongInfo(info *model.SongInfoConfig) (*model.SongInfoConfig, error) {
	if info == nil {
		return nil, nil
	}
	if err := r.validate.Struct(info); err != nil {
		return nil, shapeError("songInfoConfig", err)
	}
	resolved := *info
	return &resolved, nil
}

// shapeError maps a validator failure onto the offending field path.
func shapeError(path string, err error) *ValidationError {
	if errs, ok := err.(validator.ValidationErrors); ok && len(errs) > 0 {
		e := errs[0]
		return validationErrorf(fmt.Sprintf("%s.%s", path, e.Field()), "failed %q validation", e.Tag())
	}
	return &ValidationError{Field: path, Message: err.Error()}
}
