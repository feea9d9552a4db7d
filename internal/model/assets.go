package model

// UploadedAsset ties a client-chosen multipart field name to the file that
// was persisted for it and the URL it is served from.
type UploadedAsset struct {
	FieldKey   string `json:"fieldKey"`
	StoredPath string `json:"storedPath"`
	URL        string `json:"url"`
}

// AssetMap maps upload field keys to publicly addressable URLs.
type AssetMap map[string]string

// BuildAssetMap turns uploaded assets into a field-key lookup table.
// Duplicate keys are a client error; the later upload shadows the earlier
// one rather than failing the request.
func BuildAssetMap(assets []UploadedAsset) AssetMap {
	m := make(AssetMap, len(assets))
	for _, a := range assets {
		m[a.FieldKey] = a.URL
	}
	return m
}

// Lookup returns the URL for a field key.
func (m AssetMap) Lookup(key string) (string, bool) {
	url, ok := m[key]
	return url, ok
}

// ReusedMediaKey returns the synthetic key a reused group resolves through.
// Reused groups address the shared upload as "media_<originalGroupId>", not
// through the original group's own mediaFileKey.
func ReusedMediaKey(originalGroupID string) string {
	return "media_" + originalGroupID
}
