package source

import (
	"context"
	"fmt"
	"net/http"

	"github.com/tetratelabs/wazero/api"
	"go.uber.org/zap"

	"github.com/tachibana-shin/rakuyomi-sub000/internal/imports"
	"github.com/tachibana-shin/rakuyomi-sub000/internal/models"
	"github.com/tachibana-shin/rakuyomi-sub000/internal/proto"
	"github.com/tachibana-shin/rakuyomi-sub000/internal/request"
	"github.com/tachibana-shin/rakuyomi-sub000/internal/store"
	"github.com/tachibana-shin/rakuyomi-sub000/internal/wasm"
)

// Guest export names shared by both generations.
const (
	expMangaList    = "get_manga_list"
	expMangaListing = "get_manga_listing"
	expMangaDetails = "get_manga_details"
	expChapterList  = "get_chapter_list"
	expPageList     = "get_page_list"
	expImageRequest = "get_image_request"
	expProcessImage = "process_page_image"
	expNotification = "handle_notification"
	expDeepLink     = "handle_deep_link"
	expStart        = "start"
)

// capabilities is the generation-neutral calling surface. Both adapters
// return the same host-side record types regardless of which wire
// convention produced them.
type capabilities interface {
	mangaList(ctx context.Context, filters []models.Filter, page int) (*models.MangaPageResult, error)
	mangaListing(ctx context.Context, listing models.Listing, page int) (*models.MangaPageResult, error)
	mangaDetails(ctx context.Context, manga models.Manga) (*models.Manga, error)
	chapterList(ctx context.Context, manga models.Manga) ([]models.Chapter, error)
	pageList(ctx context.Context, chapter models.Chapter) ([]models.Page, error)
	imageRequest(ctx context.Context, url string, pageContext map[string]string) (*models.Request, error)
	processPageImage(ctx context.Context, req *models.Request, resp *models.Response, data []byte, pageContext map[string]string) ([]byte, error)
	handleNotification(ctx context.Context, name string) error
	handleDeepLink(ctx context.Context, url string) (*models.DeepLink, error)
}

// guest wraps the instance call plumbing shared by both adapters.
type guest struct {
	inst   *wasm.Instance
	env    *imports.Env
	logger *zap.Logger
}

// call invokes a guest export with descriptor arguments and returns the
// raw i32 result. A guest-triggered abort surfaces as ErrSourceAborted.
func (g *guest) call(ctx context.Context, export string, args ...store.Descriptor) (int32, error) {
	if !g.inst.HasExport(export) {
		return 0, &MissingExportError{Export: export}
	}
	raw := make([]uint64, len(args))
	for i, d := range args {
		raw[i] = api.EncodeI32(d)
	}
	res, err := g.inst.Call(ctx, export, raw...)
	if err != nil {
		if g.env.TakeAborted() {
			return 0, imports.ErrSourceAborted
		}
		return 0, err
	}
	if len(res) == 0 {
		return 0, nil
	}
	return int32(res[0]), nil
}

// storeFilters pushes a filter list into the value store as one list
// descriptor.
func (g *guest) storeFilters(filters []models.Filter) store.Descriptor {
	items := make([]store.Value, len(filters))
	for i := range filters {
		items[i] = store.FilterValue(&filters[i])
	}
	return g.env.Store.Store(store.ListValue(items))
}

// storeRequestMeta exposes request metadata to the guest as a request
// descriptor in the Building phase, so the net accessors work on it.
func (g *guest) storeRequestMeta(req *models.Request) store.Descriptor {
	idx := g.env.Requests.Add()
	if req != nil {
		st := g.env.Requests.Get(idx)
		st.SetMethod(req.Method)
		st.SetURL(req.URL)
		for k, v := range req.Headers {
			st.SetHeader(k, v)
		}
		st.SetBody(req.Body)
	}
	return g.env.Store.Store(store.RequestValue(idx))
}

// storeResponseMeta exposes response metadata as a request descriptor in
// the Sent phase. Only status and headers are populated; the body
// travels separately as the image bytes.
func (g *guest) storeResponseMeta(resp *models.Response) store.Descriptor {
	idx := g.env.Requests.Add()
	if resp != nil {
		st := g.env.Requests.Get(idx)
		st.Phase = request.Sent
		st.RespURL = resp.URL
		st.Status = resp.Status
		st.RespHeaders = make(http.Header, len(resp.Headers))
		for k, v := range resp.Headers {
			st.RespHeaders.Set(k, v)
		}
	}
	return g.env.Store.Store(store.RequestValue(idx))
}

// requestFromTable converts a guest-built request entry into the record
// handed to the download pipeline.
func (g *guest) requestFromTable(idx int32) (*models.Request, error) {
	st := g.env.Requests.Get(int(idx))
	if st == nil {
		return nil, fmt.Errorf("guest returned unknown request %d", idx)
	}
	req := &models.Request{Method: st.Method, URL: st.URL, Body: st.Body}
	if len(st.Headers) > 0 {
		req.Headers = make(map[string]string, len(st.Headers))
		for k := range st.Headers {
			req.Headers[k] = st.Headers.Get(k)
		}
	}
	return req, nil
}

// Decode helpers shared by the legacy adapter, which receives store
// values rather than raw frames.

func decodePageResultValue(v store.Value) (*models.MangaPageResult, error) {
	switch v.Kind {
	case store.KindMangaPageResult:
		return v.PageResult, nil
	case store.KindList:
		res := &models.MangaPageResult{Manga: make([]models.Manga, 0, len(v.List))}
		for _, it := range v.List {
			if it.Kind != store.KindManga || it.Manga == nil {
				return nil, &proto.DecodeError{Detail: "list item is not a manga"}
			}
			res.Manga = append(res.Manga, *it.Manga)
		}
		return res, nil
	case store.KindString, store.KindBytes:
		return proto.DecodeMangaPageResult(v.StringBytes())
	default:
		return nil, &proto.DecodeError{Detail: "value is not a manga page result"}
	}
}

func decodeMangaValue(v store.Value) (*models.Manga, error) {
	switch v.Kind {
	case store.KindManga:
		return v.Manga, nil
	case store.KindString, store.KindBytes:
		return proto.DecodeManga(v.StringBytes())
	default:
		return nil, &proto.DecodeError{Detail: "value is not a manga"}
	}
}

func decodeChaptersValue(v store.Value) ([]models.Chapter, error) {
	switch v.Kind {
	case store.KindList:
		out := make([]models.Chapter, 0, len(v.List))
		for _, it := range v.List {
			if it.Kind != store.KindChapter || it.Chapter == nil {
				return nil, &proto.DecodeError{Detail: "list item is not a chapter"}
			}
			out = append(out, *it.Chapter)
		}
		return out, nil
	case store.KindString, store.KindBytes:
		return proto.DecodeChapters(v.StringBytes())
	default:
		return nil, &proto.DecodeError{Detail: "value is not a chapter list"}
	}
}

func decodePagesValue(v store.Value) ([]models.Page, error) {
	switch v.Kind {
	case store.KindList:
		out := make([]models.Page, 0, len(v.List))
		for _, it := range v.List {
			if it.Kind != store.KindPage || it.Page == nil {
				return nil, &proto.DecodeError{Detail: "list item is not a page"}
			}
			out = append(out, *it.Page)
		}
		return out, nil
	case store.KindString, store.KindBytes:
		return proto.DecodePages(v.StringBytes())
	default:
		return nil, &proto.DecodeError{Detail: "value is not a page list"}
	}
}

func decodeDeepLinkValue(v store.Value) (*models.DeepLink, error) {
	switch v.Kind {
	case store.KindDeepLink:
		return v.DeepLink, nil
	case store.KindString, store.KindBytes:
		return proto.DecodeDeepLink(v.StringBytes())
	default:
		return nil, &proto.DecodeError{Detail: "value is not a deep link"}
	}
}
