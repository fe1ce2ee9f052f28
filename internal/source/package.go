package source

import (
	"archive/zip"
	"io"
	"strings"
)

// Package is the extracted content of one extension archive.
type Package struct {
	Path     string
	Manifest *Manifest

	// Wasm is the guest module binary.
	Wasm []byte

	// Schema is the raw settings.json preference schema, nil when the
	// package ships none.
	Schema []byte
}

// OpenPackage reads an extension archive. The archive must contain
// source.json and main.wasm; entries may sit at the root or under a
// Payload/ prefix.
func OpenPackage(path string) (*Package, error) {
	zr, err := zip.OpenReader(path)
	if err != nil {
		return nil, &LoadError{Path: path, Stage: "open archive", Err: err}
	}
	defer zr.Close()

	pkg := &Package{Path: path}
	var manifestRaw []byte
	for _, f := range zr.File {
		name := strings.TrimPrefix(f.Name, "Payload/")
		switch name {
		case "source.json":
			manifestRaw, err = readEntry(f)
		case "main.wasm":
			pkg.Wasm, err = readEntry(f)
		case "settings.json":
			pkg.Schema, err = readEntry(f)
		default:
			continue
		}
		if err != nil {
			return nil, &LoadError{Path: path, Stage: "read " + name, Err: err}
		}
	}

	if manifestRaw == nil {
		return nil, &LoadError{Path: path, Stage: "locate manifest",
			Err: &ManifestError{Detail: "archive has no source.json"}}
	}
	if pkg.Wasm == nil {
		return nil, &LoadError{Path: path, Stage: "locate module",
			Err: &ManifestError{Detail: "archive has no main.wasm"}}
	}

	pkg.Manifest, err = ParseManifest(manifestRaw)
	if err != nil {
		return nil, &LoadError{Path: path, Stage: "parse manifest", Err: err}
	}
	return pkg, nil
}

func readEntry(f *zip.File) ([]byte, error) {
	rc, err := f.Open()
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	return io.ReadAll(rc)
}
