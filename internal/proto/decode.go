package proto

import (
	"encoding/binary"
	"fmt"
	"math"
	"time"

	"github.com/tachibana-shin/rakuyomi-sub000/internal/models"
	"github.com/tachibana-shin/rakuyomi-sub000/internal/store"
)

// DecodeError reports malformed structured bytes. Decoding never
// partially applies: on error the caller gets no value at all.
type DecodeError struct {
	Offset int
	Detail string
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decode at offset %d: %s", e.Offset, e.Detail)
}

// Decode deserializes structured bytes into a stored value.
func Decode(data []byte) (store.Value, error) {
	r := &reader{buf: data}
	v, err := r.value()
	if err != nil {
		return store.Value{}, err
	}
	if r.pos != len(data) {
		return store.Value{}, &DecodeError{Offset: r.pos, Detail: "trailing bytes"}
	}
	return v, nil
}

// DecodeManga decodes a single manga record.
func DecodeManga(data []byte) (*models.Manga, error) {
	v, err := Decode(data)
	if err != nil {
		return nil, err
	}
	if v.Kind != store.KindManga {
		return nil, &DecodeError{Detail: fmt.Sprintf("expected manga, got %s", v.Kind)}
	}
	return v.Manga, nil
}

// DecodeMangaPageResult decodes one page of a manga list.
func DecodeMangaPageResult(data []byte) (*models.MangaPageResult, error) {
	v, err := Decode(data)
	if err != nil {
		return nil, err
	}
	switch v.Kind {
	case store.KindMangaPageResult:
		return v.PageResult, nil
	case store.KindList:
		// Legacy guests return a bare manga list with no paging flag.
		res := &models.MangaPageResult{}
		for _, el := range v.List {
			if el.Kind != store.KindManga {
				return nil, &DecodeError{Detail: fmt.Sprintf("expected manga in list, got %s", el.Kind)}
			}
			res.Manga = append(res.Manga, *el.Manga)
		}
		return res, nil
	default:
		return nil, &DecodeError{Detail: fmt.Sprintf("expected manga page result, got %s", v.Kind)}
	}
}

// DecodeChapters decodes a chapter list.
func DecodeChapters(data []byte) ([]models.Chapter, error) {
	v, err := Decode(data)
	if err != nil {
		return nil, err
	}
	if v.Kind != store.KindList {
		return nil, &DecodeError{Detail: fmt.Sprintf("expected chapter list, got %s", v.Kind)}
	}
	out := make([]models.Chapter, 0, len(v.List))
	for _, el := range v.List {
		if el.Kind != store.KindChapter {
			return nil, &DecodeError{Detail: fmt.Sprintf("expected chapter in list, got %s", el.Kind)}
		}
		out = append(out, *el.Chapter)
	}
	return out, nil
}

// DecodePages decodes a page list.
func DecodePages(data []byte) ([]models.Page, error) {
	v, err := Decode(data)
	if err != nil {
		return nil, err
	}
	if v.Kind != store.KindList {
		return nil, &DecodeError{Detail: fmt.Sprintf("expected page list, got %s", v.Kind)}
	}
	out := make([]models.Page, 0, len(v.List))
	for _, el := range v.List {
		if el.Kind != store.KindPage {
			return nil, &DecodeError{Detail: fmt.Sprintf("expected page in list, got %s", el.Kind)}
		}
		out = append(out, *el.Page)
	}
	return out, nil
}

// DecodeDeepLink decodes a deep-link resolution result.
func DecodeDeepLink(data []byte) (*models.DeepLink, error) {
	v, err := Decode(data)
	if err != nil {
		return nil, err
	}
	if v.Kind != store.KindDeepLink {
		return nil, &DecodeError{Detail: fmt.Sprintf("expected deep link, got %s", v.Kind)}
	}
	return v.DeepLink, nil
}

type reader struct {
	buf []byte
	pos int
}

func (r *reader) fail(detail string) error {
	return &DecodeError{Offset: r.pos, Detail: detail}
}

func (r *reader) byte() (byte, error) {
	if r.pos >= len(r.buf) {
		return 0, r.fail("unexpected end of input")
	}
	b := r.buf[r.pos]
	r.pos++
	return b, nil
}

func (r *reader) take(n int) ([]byte, error) {
	if n < 0 || r.pos+n > len(r.buf) {
		return nil, r.fail("unexpected end of input")
	}
	p := r.buf[r.pos : r.pos+n]
	r.pos += n
	return p, nil
}

func (r *reader) u32() (uint32, error) {
	p, err := r.take(4)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(p), nil
}

func (r *reader) u64() (uint64, error) {
	p, err := r.take(8)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint64(p), nil
}

func (r *reader) f32() (float32, error) {
	n, err := r.u32()
	return math.Float32frombits(n), err
}

func (r *reader) f64() (float64, error) {
	n, err := r.u64()
	return math.Float64frombits(n), err
}

func (r *reader) str() (string, error) {
	n, err := r.u32()
	if err != nil {
		return "", err
	}
	p, err := r.take(int(n))
	if err != nil {
		return "", err
	}
	return string(p), nil
}

func (r *reader) bool() (bool, error) {
	b, err := r.byte()
	return b != 0, err
}

func (r *reader) value() (store.Value, error) {
	kind, err := r.byte()
	if err != nil {
		return store.Value{}, err
	}
	switch kind {
	case wireNull:
		return store.Null(), nil
	case wireInt:
		n, err := r.u64()
		return store.IntValue(int64(n)), err
	case wireFloat:
		f, err := r.f64()
		return store.FloatValue(f), err
	case wireBool:
		b, err := r.bool()
		return store.BoolValue(b), err
	case wireString:
		s, err := r.str()
		return store.StringValue(s), err
	case wireBytes:
		n, err := r.u32()
		if err != nil {
			return store.Value{}, err
		}
		p, err := r.take(int(n))
		if err != nil {
			return store.Value{}, err
		}
		out := make([]byte, len(p))
		copy(out, p)
		return store.BytesValue(out), nil
	case wireDate:
		f, err := r.f64()
		if err != nil {
			return store.Value{}, err
		}
		return store.DateValue(time.UnixMilli(int64(f * 1000))), nil
	case wireList:
		n, err := r.u32()
		if err != nil {
			return store.Value{}, err
		}
		list := make([]store.Value, 0, min(int(n), 4096))
		for i := uint32(0); i < n; i++ {
			el, err := r.value()
			if err != nil {
				return store.Value{}, err
			}
			list = append(list, el)
		}
		return store.ListValue(list), nil
	case wireRecord:
		return r.record()
	default:
		return store.Value{}, r.fail(fmt.Sprintf("unknown kind byte %d", kind))
	}
}

func (r *reader) record() (store.Value, error) {
	rt, err := r.byte()
	if err != nil {
		return store.Value{}, err
	}
	switch rt {
	case recManga:
		m, err := r.manga()
		if err != nil {
			return store.Value{}, err
		}
		return store.MangaValue(m), nil
	case recChapter:
		c, err := r.chapterRec()
		if err != nil {
			return store.Value{}, err
		}
		return store.ChapterValue(c), nil
	case recPage:
		p, err := r.pageRec()
		if err != nil {
			return store.Value{}, err
		}
		return store.PageValue(p), nil
	case recFilter:
		f, err := r.filterRec()
		if err != nil {
			return store.Value{}, err
		}
		return store.FilterValue(f), nil
	case recListing:
		name, err := r.str()
		if err != nil {
			return store.Value{}, err
		}
		return store.ListingValue(&models.Listing{Name: name}), nil
	case recPageList:
		res, err := r.pageResultRec()
		if err != nil {
			return store.Value{}, err
		}
		return store.PageResultValue(res), nil
	case recDeepLink:
		d, err := r.deepLinkRec()
		if err != nil {
			return store.Value{}, err
		}
		return store.DeepLinkValue(d), nil
	default:
		return store.Value{}, r.fail(fmt.Sprintf("unknown record type %d", rt))
	}
}

func (r *reader) manga() (*models.Manga, error) {
	m := &models.Manga{}
	var err error
	read := func(dst *string) {
		if err == nil {
			*dst, err = r.str()
		}
	}
	read(&m.ID)
	read(&m.Title)
	read(&m.Author)
	read(&m.Artist)
	read(&m.Description)
	read(&m.URL)
	read(&m.CoverURL)
	if err != nil {
		return nil, err
	}
	n, err := r.u32()
	if err != nil {
		return nil, err
	}
	for i := uint32(0); i < n; i++ {
		t, err := r.str()
		if err != nil {
			return nil, err
		}
		m.Tags = append(m.Tags, t)
	}
	status, err := r.byte()
	if err != nil {
		return nil, err
	}
	rating, err := r.byte()
	if err != nil {
		return nil, err
	}
	viewer, err := r.byte()
	if err != nil {
		return nil, err
	}
	m.Status = models.PublishingStatus(status)
	m.Rating = models.ContentRating(rating)
	m.Viewer = models.Viewer(viewer)
	return m, nil
}

func (r *reader) mangaNested() (*models.Manga, error) {
	rt, err := r.byte()
	if err != nil {
		return nil, err
	}
	if rt != recManga {
		return nil, r.fail(fmt.Sprintf("expected manga record, got type %d", rt))
	}
	return r.manga()
}

func (r *reader) chapterRec() (*models.Chapter, error) {
	c := &models.Chapter{}
	var err error
	read := func(dst *string) {
		if err == nil {
			*dst, err = r.str()
		}
	}
	read(&c.ID)
	read(&c.MangaID)
	read(&c.Title)
	if err != nil {
		return nil, err
	}
	if c.Volume, err = r.f32(); err != nil {
		return nil, err
	}
	if c.Chapter, err = r.f32(); err != nil {
		return nil, err
	}
	uploaded, err := r.u64()
	if err != nil {
		return nil, err
	}
	c.DateUploaded = int64(uploaded)
	read(&c.Scanlator)
	read(&c.URL)
	read(&c.Lang)
	if err != nil {
		return nil, err
	}
	return c, nil
}

func (r *reader) pageRec() (*models.Page, error) {
	p := &models.Page{}
	idx, err := r.u32()
	if err != nil {
		return nil, err
	}
	p.Index = int(idx)
	if p.URL, err = r.str(); err != nil {
		return nil, err
	}
	if p.Base64, err = r.str(); err != nil {
		return nil, err
	}
	if p.Text, err = r.str(); err != nil {
		return nil, err
	}
	n, err := r.u32()
	if err != nil {
		return nil, err
	}
	if n > 0 {
		p.Context = make(map[string]string, n)
	}
	for i := uint32(0); i < n; i++ {
		k, err := r.str()
		if err != nil {
			return nil, err
		}
		v, err := r.str()
		if err != nil {
			return nil, err
		}
		p.Context[k] = v
	}
	return p, nil
}

func (r *reader) filterRec() (*models.Filter, error) {
	f := &models.Filter{}
	kind, err := r.byte()
	if err != nil {
		return nil, err
	}
	f.Kind = models.FilterKind(kind)
	if f.Name, err = r.str(); err != nil {
		return nil, err
	}
	if f.StringV, err = r.str(); err != nil {
		return nil, err
	}
	iv, err := r.u64()
	if err != nil {
		return nil, err
	}
	f.IntV = int64(iv)
	if f.BoolV, err = r.bool(); err != nil {
		return nil, err
	}
	n, err := r.u32()
	if err != nil {
		return nil, err
	}
	for i := uint32(0); i < n; i++ {
		rt, err := r.byte()
		if err != nil {
			return nil, err
		}
		if rt != recFilter {
			return nil, r.fail(fmt.Sprintf("expected filter record, got type %d", rt))
		}
		child, err := r.filterRec()
		if err != nil {
			return nil, err
		}
		f.Children = append(f.Children, *child)
	}
	return f, nil
}

func (r *reader) pageResultRec() (*models.MangaPageResult, error) {
	res := &models.MangaPageResult{}
	n, err := r.u32()
	if err != nil {
		return nil, err
	}
	for i := uint32(0); i < n; i++ {
		m, err := r.mangaNested()
		if err != nil {
			return nil, err
		}
		res.Manga = append(res.Manga, *m)
	}
	if res.HasMore, err = r.bool(); err != nil {
		return nil, err
	}
	return res, nil
}

func (r *reader) deepLinkRec() (*models.DeepLink, error) {
	d := &models.DeepLink{}
	flags, err := r.byte()
	if err != nil {
		return nil, err
	}
	if flags&1 != 0 {
		if d.Manga, err = r.mangaNested(); err != nil {
			return nil, err
		}
	}
	if flags&2 != 0 {
		rt, err := r.byte()
		if err != nil {
			return nil, err
		}
		if rt != recChapter {
			return nil, r.fail(fmt.Sprintf("expected chapter record, got type %d", rt))
		}
		if d.Chapter, err = r.chapterRec(); err != nil {
			return nil, err
		}
	}
	return d, nil
}
