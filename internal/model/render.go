package model

import (
	"encoding/json"
	"time"
)

// MediaVersion is one entry in a group's media history. The entry whose ID
// matches the group's activeMediaId carries the path the renderer uses.
type MediaVersion struct {
	ID     string `json:"id" validate:"required"`
	Path   string `json:"path"`
	Type   string `json:"type"`
	Active bool   `json:"active"`
}

// SceneGroup is a timed section of the video with its own media. A group
// either uploads its own media (mediaFileKey), reuses another group's
// (isReusedGroup + originalGroupId), or carries none at all.
type SceneGroup struct {
	ID               string         `json:"id" validate:"required"`
	StartTime        float64        `json:"startTime" validate:"gte=0"`
	EndTime          float64        `json:"endTime" validate:"gte=0"`
	Duration         float64        `json:"duration,omitempty"`
	MediaFileKey     string         `json:"mediaFileKey,omitempty"`
	MediaURL         string         `json:"mediaUrl,omitempty"`
	IsReusedGroup    bool           `json:"isReusedGroup,omitempty"`
	OriginalGroupID  string         `json:"originalGroupId,omitempty"`
	ActiveMediaID    string         `json:"activeMediaId,omitempty"`
	MediaVersions    []MediaVersion `json:"mediaVersions,omitempty" validate:"omitempty,dive"`
	DisplayMode      string         `json:"displayMode,omitempty"`
	EffectPreset     string         `json:"effectPreset,omitempty"`
	VerticalPosition float64        `json:"verticalPosition,omitempty"`

	extra map[string]json.RawMessage
}

func (g *SceneGroup) UnmarshalJSON(data []byte) error {
	type alias SceneGroup
	var a alias
	if err := json.Unmarshal(data, &a); err != nil {
		return err
	}
	extra, err := unknownFields(data, a)
	if err != nil {
		return err
	}
	*g = SceneGroup(a)
	g.extra = extra
	return nil
}

func (g SceneGroup) MarshalJSON() ([]byte, error) {
	type alias SceneGroup
	base, err := json.Marshal(alias(g))
	if err != nil {
		return nil, err
	}
	return mergeExtra(base, g.extra)
}

// Clone returns a deep copy so resolution never mutates the caller's tree.
func (g SceneGroup) Clone() SceneGroup {
	out := g
	if g.MediaVersions != nil {
		out.MediaVersions = make([]MediaVersion, len(g.MediaVersions))
		copy(out.MediaVersions, g.MediaVersions)
	}
	if g.extra != nil {
		out.extra = make(map[string]json.RawMessage, len(g.extra))
		for k, v := range g.extra {
			out.extra[k] = v
		}
	}
	return out
}

// LyricLine is a single timed lyric, optionally owned by a scene group.
type LyricLine struct {
	ID        string  `json:"id" validate:"required"`
	Text      string  `json:"text"`
	StartTime float64 `json:"startTime" validate:"gte=0"`
	EndTime   float64 `json:"endTime" validate:"gte=0"`
	GroupID   string  `json:"groupId,omitempty"`
}

// Scene is the flat legacy format: one lyric with a time range and an
// optional image, no grouping and no media versioning.
type Scene struct {
	Lyric     string  `json:"lyric"`
	Start     float64 `json:"start" validate:"gte=0"`
	End       float64 `json:"end" validate:"gte=0"`
	ImagePath string  `json:"imagePath,omitempty"`
}

// OutroConfig drives the closing card. The two QR file keys are upload
// references; resolution replaces them with URLs and they never appear in
// the resolved document.
type OutroConfig struct {
	Enabled          bool   `json:"enabled,omitempty"`
	Text             string `json:"text,omitempty"`
	GithubQRFileKey  string `json:"githubQrFileKey,omitempty"`
	BitcoinQRFileKey string `json:"bitcoinQrFileKey,omitempty"`
	GithubQRURL      string `json:"githubQrUrl,omitempty"`
	BitcoinQRURL     string `json:"bitcoinQrUrl,omitempty"`

	extra map[string]json.RawMessage
}

func (o *OutroConfig) UnmarshalJSON(data []byte) error {
	type alias OutroConfig
	var a alias
	if err := json.Unmarshal(data, &a); err != nil {
		return err
	}
	extra, err := unknownFields(data, a)
	if err != nil {
		return err
	}
	*o = OutroConfig(a)
	o.extra = extra
	return nil
}

func (o OutroConfig) MarshalJSON() ([]byte, error) {
	type alias OutroConfig
	base, err := json.Marshal(alias(o))
	if err != nil {
		return nil, err
	}
	return mergeExtra(base, o.extra)
}

// SongInfoConfig carries the title overlay settings. No asset references;
// resolution is pass-through validation only.
type SongInfoConfig struct {
	Enabled    bool   `json:"enabled,omitempty"`
	SongTitle  string `json:"songTitle,omitempty"`
	ArtistName string `json:"artistName,omitempty"`

	extra map[string]json.RawMessage
}

func (s *SongInfoConfig) UnmarshalJSON(data []byte) error {
	type alias SongInfoConfig
	var a alias
	if err := json.Unmarshal(data, &a); err != nil {
		return err
	}
	extra, err := unknownFields(data, a)
	if err != nil {
		return err
	}
	*s = SongInfoConfig(a)
	s.extra = extra
	return nil
}

func (s SongInfoConfig) MarshalJSON() ([]byte, error) {
	type alias SongInfoConfig
	base, err := json.Marshal(alias(s))
	if err != nil {
		return nil, err
	}
	return mergeExtra(base, s.extra)
}

// RenderRequest is the parsed multipart submission before asset resolution.
type RenderRequest struct {
	UseGrouping bool
	Scenes      []Scene
	SceneGroups []SceneGroup
	LyricLines  []LyricLine
	Metadata    map[string]interface{}
	Outro       *OutroConfig
	SongInfo    *SongInfoConfig
}

// ResolvedInput is the render-ready document handed to the engine. Every
// asset reference has been replaced by a durable URL; no file keys remain.
type ResolvedInput struct {
	Scenes      []Scene                `json:"scenes"`
	SceneGroups []SceneGroup           `json:"sceneGroups"`
	LyricLines  []LyricLine            `json:"lyricLines"`
	UseGrouping bool                   `json:"useGrouping"`
	AudioURL    string                 `json:"audioUrl"`
	Metadata    map[string]interface{} `json:"metadata,omitempty"`
	Outro       *OutroConfig           `json:"outroConfig,omitempty"`
	SongInfo    *SongInfoConfig        `json:"songInfo,omitempty"`
}

// RenderSubmitResponse is returned when a job is accepted.
type RenderSubmitResponse struct {
	JobID   string    `json:"jobId"`
	Status  JobStatus `json:"status"`
	Message string    `json:"message"`
}

// RenderStatusResponse reports job lifecycle for polling clients.
type RenderStatusResponse struct {
	JobID       string     `json:"jobId"`
	Status      JobStatus  `json:"status"`
	Progress    float64    `json:"progress"`
	Error       *string    `json:"error,omitempty"`
	CreatedAt   time.Time  `json:"createdAt"`
	CompletedAt *time.Time `json:"completedAt,omitempty"`
}
