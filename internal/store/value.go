package store

import (
	"image"
	"time"

	"github.com/tachibana-shin/rakuyomi-sub000/internal/canvas"
	"github.com/tachibana-shin/rakuyomi-sub000/internal/html"
	"github.com/tachibana-shin/rakuyomi-sub000/internal/models"
)

// Kind tags the union held behind a descriptor.
type Kind uint8

const (
	KindNull Kind = iota
	KindInt
	KindFloat
	KindBool
	KindString
	KindBytes
	KindDate
	KindList
	KindManga
	KindChapter
	KindPage
	KindFilter
	KindListing
	KindMangaPageResult
	KindDeepLink
	KindElement
	KindRequest
	KindImage
	KindFont
	KindCanvas
	KindPath
)

func (k Kind) String() string {
	switch k {
	case KindNull:
		return "null"
	case KindInt:
		return "int"
	case KindFloat:
		return "float"
	case KindBool:
		return "bool"
	case KindString:
		return "string"
	case KindBytes:
		return "bytes"
	case KindDate:
		return "date"
	case KindList:
		return "list"
	case KindManga:
		return "manga"
	case KindChapter:
		return "chapter"
	case KindPage:
		return "page"
	case KindFilter:
		return "filter"
	case KindListing:
		return "listing"
	case KindMangaPageResult:
		return "manga_page_result"
	case KindDeepLink:
		return "deep_link"
	case KindElement:
		return "element"
	case KindRequest:
		return "request"
	case KindImage:
		return "image"
	case KindFont:
		return "font"
	case KindCanvas:
		return "canvas"
	case KindPath:
		return "path"
	default:
		return "unknown"
	}
}

// Value is the tagged union stored behind a descriptor. The store is the
// sole owner; everything else references values by descriptor only.
type Value struct {
	Kind Kind

	Int   int64
	Float float64
	Bool  bool
	Str   string
	Bytes []byte
	Time  time.Time
	List  []Value

	Manga      *models.Manga
	Chapter    *models.Chapter
	Page       *models.Page
	Filter     *models.Filter
	Listing    *models.Listing
	PageResult *models.MangaPageResult
	DeepLink   *models.DeepLink

	Element *html.Element
	Request int // index into the per-instance request table
	Image   *image.RGBA
	Font    *canvas.Font
	Canvas  *canvas.Context
	Path    *canvas.Path
}

// Constructors for the common variants.

func Null() Value                 { return Value{Kind: KindNull} }
func IntValue(n int64) Value      { return Value{Kind: KindInt, Int: n} }
func FloatValue(f float64) Value  { return Value{Kind: KindFloat, Float: f} }
func BoolValue(b bool) Value      { return Value{Kind: KindBool, Bool: b} }
func StringValue(s string) Value  { return Value{Kind: KindString, Str: s} }
func BytesValue(b []byte) Value   { return Value{Kind: KindBytes, Bytes: b} }
func DateValue(t time.Time) Value { return Value{Kind: KindDate, Time: t} }
func ListValue(vs []Value) Value  { return Value{Kind: KindList, List: vs} }

func MangaValue(m *models.Manga) Value     { return Value{Kind: KindManga, Manga: m} }
func ChapterValue(c *models.Chapter) Value { return Value{Kind: KindChapter, Chapter: c} }
func PageValue(p *models.Page) Value       { return Value{Kind: KindPage, Page: p} }
func FilterValue(f *models.Filter) Value   { return Value{Kind: KindFilter, Filter: f} }
func ListingValue(l *models.Listing) Value { return Value{Kind: KindListing, Listing: l} }

func PageResultValue(r *models.MangaPageResult) Value {
	return Value{Kind: KindMangaPageResult, PageResult: r}
}

func DeepLinkValue(d *models.DeepLink) Value { return Value{Kind: KindDeepLink, DeepLink: d} }

func ElementValue(e *html.Element) Value   { return Value{Kind: KindElement, Element: e} }
func RequestValue(idx int) Value           { return Value{Kind: KindRequest, Request: idx} }
func ImageValue(img *image.RGBA) Value     { return Value{Kind: KindImage, Image: img} }
func FontValue(f *canvas.Font) Value       { return Value{Kind: KindFont, Font: f} }
func CanvasValue(c *canvas.Context) Value  { return Value{Kind: KindCanvas, Canvas: c} }
func PathValue(p *canvas.Path) Value       { return Value{Kind: KindPath, Path: p} }

// StringBytes returns the value's contents as text bytes, for raw string
// materialization.
func (v Value) StringBytes() []byte {
	switch v.Kind {
	case KindString:
		return []byte(v.Str)
	case KindBytes:
		return v.Bytes
	default:
		return nil
	}
}
