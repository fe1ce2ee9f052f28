package source

import (
	"encoding/json"
)

// Manifest is the parsed source.json of an extension package.
type Manifest struct {
	Info   ManifestInfo    `json:"info"`
	Config json.RawMessage `json:"config,omitempty"`

	// Origin annotates where the package came from. It is not part of
	// the manifest file; the loader fills it and the sidecar caches it.
	Origin string `json:"-"`
}

// ManifestInfo is the identity block of a manifest.
type ManifestInfo struct {
	ID         string   `json:"id"`
	Name       string   `json:"name"`
	Version    int      `json:"version"`
	MinVersion string   `json:"minVersion,omitempty"`
	URL        string   `json:"url,omitempty"`
	URLs       []string `json:"urls,omitempty"`
	Lang       string   `json:"lang,omitempty"`
	Languages  []string `json:"languages,omitempty"`
}

// ParseManifest decodes and validates a source.json document.
func ParseManifest(data []byte) (*Manifest, error) {
	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, &ManifestError{Detail: "invalid JSON", Err: err}
	}
	if m.Info.ID == "" {
		return nil, &ManifestError{Detail: "missing info.id"}
	}
	if m.Info.Name == "" {
		return nil, &ManifestError{Detail: "missing info.name"}
	}
	return &m, nil
}

// LanguageKeys returns the language index keys for a manifest. The single
// lang field and the languages list are merged, deduplicated, in order.
func (m *Manifest) LanguageKeys() []string {
	seen := make(map[string]struct{})
	var out []string
	add := func(lang string) {
		if lang == "" {
			return
		}
		if _, ok := seen[lang]; ok {
			return
		}
		seen[lang] = struct{}{}
		out = append(out, lang)
	}
	add(m.Info.Lang)
	for _, l := range m.Info.Languages {
		add(l)
	}
	return out
}
