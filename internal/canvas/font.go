package canvas

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/golang/freetype/truetype"
	"golang.org/x/image/font"
	"golang.org/x/image/font/gofont/gobold"
	"golang.org/x/image/font/gofont/goregular"
)

// fontDirs are the directories scanned when resolving a system font by
// family name. Scanning stops at the first match.
var fontDirs = []string{
	"/usr/share/fonts",
	"/usr/local/share/fonts",
	"/System/Library/Fonts",
	"/Library/Fonts",
}

// ErrFontNotFound reports that no installed font matched the family name.
var ErrFontNotFound = errors.New("font not found")

// Font is a parsed TrueType font usable by canvas text operations.
type Font struct {
	Family string
	Weight int
	font   *truetype.Font
}

// Face builds a rendering face at the given point size.
func (f *Font) Face(size float64) font.Face {
	return truetype.NewFace(f.font, &truetype.Options{Size: size})
}

// LoadFont parses TTF/OTF bytes into a Font.
func LoadFont(data []byte) (*Font, error) {
	ft, err := truetype.Parse(data)
	if err != nil {
		return nil, fmt.Errorf("parse font: %w", err)
	}
	return &Font{font: ft}, nil
}

// SystemFont resolves an installed font by family name and weight. When
// nothing on disk matches, the bundled Go fonts stand in so text drawing
// always has a face to fall back on.
func SystemFont(family string, weight int) (*Font, error) {
	if path := findFontFile(family); path != "" {
		data, err := os.ReadFile(path)
		if err == nil {
			f, err := LoadFont(data)
			if err == nil {
				f.Family = family
				f.Weight = weight
				return f, nil
			}
		}
	}

	data := goregular.TTF
	if weight >= 600 {
		data = gobold.TTF
	}
	f, err := LoadFont(data)
	if err != nil {
		return nil, ErrFontNotFound
	}
	f.Family = family
	f.Weight = weight
	return f, nil
}

func findFontFile(family string) string {
	needle := strings.ToLower(strings.ReplaceAll(family, " ", ""))
	if needle == "" {
		return ""
	}
	for _, dir := range fontDirs {
		var found string
		filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
			if err != nil || d.IsDir() {
				return nil
			}
			ext := strings.ToLower(filepath.Ext(path))
			if ext != ".ttf" && ext != ".otf" {
				return nil
			}
			base := strings.ToLower(strings.TrimSuffix(d.Name(), ext))
			if strings.Contains(strings.ReplaceAll(base, " ", ""), needle) {
				found = path
				return fs.SkipAll
			}
			return nil
		})
		if found != "" {
			return found
		}
	}
	return ""
}
