// Package proto implements the binary protocol that moves structured
// values across the guest/host boundary: a compact self-describing value
// encoding in both directions, and the tagged result frames guest code
// hands back from capability exports.
package proto

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/tachibana-shin/rakuyomi-sub000/internal/models"
	"github.com/tachibana-shin/rakuyomi-sub000/internal/store"
)

// Value encoding kind bytes. These are wire constants shared with guest
// SDKs; do not renumber.
const (
	wireNull   byte = 0
	wireInt    byte = 1
	wireFloat  byte = 2
	wireBool   byte = 3
	wireString byte = 4
	wireBytes  byte = 5
	wireDate   byte = 6
	wireList   byte = 7
	wireRecord byte = 8
)

// Record type bytes following wireRecord.
const (
	recManga    byte = 1
	recChapter  byte = 2
	recPage     byte = 3
	recFilter   byte = 4
	recListing  byte = 5
	recPageList byte = 6
	recDeepLink byte = 7
)

// EncodeError reports a value that cannot cross the boundary.
type EncodeError struct {
	Kind   string
	Detail string
}

func (e *EncodeError) Error() string {
	return fmt.Sprintf("encode %s: %s", e.Kind, e.Detail)
}

// Encode serializes a stored value with the structured encoding.
// Host-private handles (DOM elements, requests, images, fonts, canvases)
// never cross the boundary by value and refuse to encode.
func Encode(v store.Value) ([]byte, error) {
	w := &writer{}
	if err := w.value(v); err != nil {
		return nil, err
	}
	return w.buf, nil
}

type writer struct {
	buf []byte
}

func (w *writer) byte(b byte)    { w.buf = append(w.buf, b) }
func (w *writer) bytes(p []byte) { w.buf = append(w.buf, p...) }

func (w *writer) u32(n uint32) {
	w.buf = binary.LittleEndian.AppendUint32(w.buf, n)
}

func (w *writer) u64(n uint64) {
	w.buf = binary.LittleEndian.AppendUint64(w.buf, n)
}

func (w *writer) f32(f float32) { w.u32(math.Float32bits(f)) }
func (w *writer) f64(f float64) { w.u64(math.Float64bits(f)) }

func (w *writer) str(s string) {
	w.u32(uint32(len(s)))
	w.buf = append(w.buf, s...)
}

func (w *writer) bool(b bool) {
	if b {
		w.byte(1)
	} else {
		w.byte(0)
	}
}

func (w *writer) value(v store.Value) error {
	switch v.Kind {
	case store.KindNull:
		w.byte(wireNull)
	case store.KindInt:
		w.byte(wireInt)
		w.u64(uint64(v.Int))
	case store.KindFloat:
		w.byte(wireFloat)
		w.f64(v.Float)
	case store.KindBool:
		w.byte(wireBool)
		w.bool(v.Bool)
	case store.KindString:
		w.byte(wireString)
		w.str(v.Str)
	case store.KindBytes:
		w.byte(wireBytes)
		w.u32(uint32(len(v.Bytes)))
		w.bytes(v.Bytes)
	case store.KindDate:
		w.byte(wireDate)
		w.f64(float64(v.Time.UnixMilli()) / 1000.0)
	case store.KindList:
		w.byte(wireList)
		w.u32(uint32(len(v.List)))
		for _, el := range v.List {
			if err := w.value(el); err != nil {
				return err
			}
		}
	case store.KindManga:
		w.byte(wireRecord)
		w.manga(v.Manga)
	case store.KindChapter:
		w.byte(wireRecord)
		w.chapter(v.Chapter)
	case store.KindPage:
		w.byte(wireRecord)
		w.page(v.Page)
	case store.KindFilter:
		w.byte(wireRecord)
		w.filter(v.Filter)
	case store.KindListing:
		w.byte(wireRecord)
		w.byte(recListing)
		w.str(v.Listing.Name)
	case store.KindMangaPageResult:
		w.byte(wireRecord)
		w.pageResult(v.PageResult)
	case store.KindDeepLink:
		w.byte(wireRecord)
		w.deepLink(v.DeepLink)
	default:
		return &EncodeError{Kind: v.Kind.String(), Detail: "host-private handle cannot cross the boundary"}
	}
	return nil
}

func (w *writer) manga(m *models.Manga) {
	w.byte(recManga)
	w.str(m.ID)
	w.str(m.Title)
	w.str(m.Author)
	w.str(m.Artist)
	w.str(m.Description)
	w.str(m.URL)
	w.str(m.CoverURL)
	w.u32(uint32(len(m.Tags)))
	for _, t := range m.Tags {
		w.str(t)
	}
	w.byte(byte(m.Status))
	w.byte(byte(m.Rating))
	w.byte(byte(m.Viewer))
}

func (w *writer) chapter(c *models.Chapter) {
	w.byte(recChapter)
	w.str(c.ID)
	w.str(c.MangaID)
	w.str(c.Title)
	w.f32(c.Volume)
	w.f32(c.Chapter)
	w.u64(uint64(c.DateUploaded))
	w.str(c.Scanlator)
	w.str(c.URL)
	w.str(c.Lang)
}

func (w *writer) page(p *models.Page) {
	w.byte(recPage)
	w.u32(uint32(p.Index))
	w.str(p.URL)
	w.str(p.Base64)
	w.str(p.Text)
	w.u32(uint32(len(p.Context)))
	for k, v := range p.Context {
		w.str(k)
		w.str(v)
	}
}

func (w *writer) filter(f *models.Filter) {
	w.byte(recFilter)
	w.byte(byte(f.Kind))
	w.str(f.Name)
	w.str(f.StringV)
	w.u64(uint64(f.IntV))
	w.bool(f.BoolV)
	w.u32(uint32(len(f.Children)))
	for i := range f.Children {
		w.filter(&f.Children[i])
	}
}

func (w *writer) pageResult(r *models.MangaPageResult) {
	w.byte(recPageList)
	w.u32(uint32(len(r.Manga)))
	for i := range r.Manga {
		w.manga(&r.Manga[i])
	}
	w.bool(r.HasMore)
}

func (w *writer) deepLink(d *models.DeepLink) {
	w.byte(recDeepLink)
	var flags byte
	if d.Manga != nil {
		flags |= 1
	}
	if d.Chapter != nil {
		flags |= 2
	}
	w.byte(flags)
	if d.Manga != nil {
		w.manga(d.Manga)
	}
	if d.Chapter != nil {
		w.chapter(d.Chapter)
	}
}
