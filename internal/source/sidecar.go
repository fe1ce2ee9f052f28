package source

import (
	"encoding/json"
	"errors"
	"io/fs"
	"os"
)

// Sidecar caches the generation determination for a package so later
// loads skip re-detection. It lives next to the package file as
// <package>.sidecar.json.
type Sidecar struct {
	SourceOfSource string `json:"source_of_source"`
	IsNextSDK      bool   `json:"is_next_sdk"`
}

// SidecarPath returns the sidecar file path for a package path.
func SidecarPath(pkgPath string) string {
	return pkgPath + ".sidecar.json"
}

// ReadSidecar loads the sidecar next to pkgPath. A missing file returns
// (nil, nil); a present but malformed file is an error.
func ReadSidecar(pkgPath string) (*Sidecar, error) {
	data, err := os.ReadFile(SidecarPath(pkgPath))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}
	var sc Sidecar
	if err := json.Unmarshal(data, &sc); err != nil {
		return nil, err
	}
	return &sc, nil
}

// WriteSidecar persists the generation determination next to pkgPath.
func WriteSidecar(pkgPath string, sc *Sidecar) error {
	data, err := json.MarshalIndent(sc, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(SidecarPath(pkgPath), data, 0o644)
}
