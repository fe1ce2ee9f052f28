package source

import (
	"github.com/coreos/go-semver/semver"
)

// Generation selects which guest SDK calling convention an extension
// uses. It is decided once at load time.
type Generation int

const (
	GenerationLegacy Generation = iota
	GenerationNext
)

func (g Generation) String() string {
	if g == GenerationNext {
		return "next"
	}
	return "legacy"
}

// Opposite returns the other generation, for the one-shot load retry.
func (g Generation) Opposite() Generation {
	if g == GenerationLegacy {
		return GenerationNext
	}
	return GenerationLegacy
}

// nextGenThreshold is the minimum SDK version that selects the next
// generation when no sidecar overrides the inference.
var nextGenThreshold = semver.Version{Minor: 7}

// DetectGeneration infers the generation from the manifest's minimum
// SDK version. A sidecar annotation, when present, takes precedence.
func DetectGeneration(m *Manifest, sc *Sidecar) Generation {
	if sc != nil {
		if sc.IsNextSDK {
			return GenerationNext
		}
		return GenerationLegacy
	}
	if m.Info.MinVersion == "" {
		return GenerationLegacy
	}
	v, err := semver.NewVersion(m.Info.MinVersion)
	if err != nil {
		return GenerationLegacy
	}
	if v.LessThan(nextGenThreshold) {
		return GenerationLegacy
	}
	return GenerationNext
}
