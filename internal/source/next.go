package source

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/tachibana-shin/rakuyomi-sub000/internal/imports"
	"github.com/tachibana-shin/rakuyomi-sub000/internal/models"
	"github.com/tachibana-shin/rakuyomi-sub000/internal/proto"
	"github.com/tachibana-shin/rakuyomi-sub000/internal/store"
	"github.com/tachibana-shin/rakuyomi-sub000/internal/wasm"
)

// nextAdapter speaks the result-frame convention: guest exports take
// descriptors but return pointers into linear memory holding a length-
// or error-tagged frame.
type nextAdapter struct {
	guest
}

func newNextAdapter(inst *wasm.Instance, env *imports.Env, logger *zap.Logger) *nextAdapter {
	return &nextAdapter{guest: guest{inst: inst, env: env, logger: logger}}
}

// frame reads the result frame a guest export returned.
func (a *nextAdapter) frame(ptr int32) ([]byte, error) {
	return proto.ReadResult(a.inst.Memory().Raw(), ptr)
}

func (a *nextAdapter) mangaList(ctx context.Context, filters []models.Filter, page int) (*models.MangaPageResult, error) {
	ptr, err := a.call(ctx, expMangaList, a.storeFilters(filters), int32(page))
	if err != nil {
		return nil, err
	}
	data, err := a.frame(ptr)
	if err != nil {
		return nil, err
	}
	return proto.DecodeMangaPageResult(data)
}

func (a *nextAdapter) mangaListing(ctx context.Context, listing models.Listing, page int) (*models.MangaPageResult, error) {
	ld := a.env.Store.Store(store.ListingValue(&listing))
	ptr, err := a.call(ctx, expMangaListing, ld, int32(page))
	if err != nil {
		return nil, err
	}
	data, err := a.frame(ptr)
	if err != nil {
		return nil, err
	}
	return proto.DecodeMangaPageResult(data)
}

func (a *nextAdapter) mangaDetails(ctx context.Context, manga models.Manga) (*models.Manga, error) {
	md := a.env.Store.Store(store.MangaValue(&manga))
	ptr, err := a.call(ctx, expMangaDetails, md)
	if err != nil {
		return nil, err
	}
	data, err := a.frame(ptr)
	if err != nil {
		return nil, err
	}
	return proto.DecodeManga(data)
}

func (a *nextAdapter) chapterList(ctx context.Context, manga models.Manga) ([]models.Chapter, error) {
	md := a.env.Store.Store(store.MangaValue(&manga))
	ptr, err := a.call(ctx, expChapterList, md)
	if err != nil {
		return nil, err
	}
	data, err := a.frame(ptr)
	if err != nil {
		return nil, err
	}
	return proto.DecodeChapters(data)
}

func (a *nextAdapter) pageList(ctx context.Context, chapter models.Chapter) ([]models.Page, error) {
	cd := a.env.Store.Store(store.ChapterValue(&chapter))
	ptr, err := a.call(ctx, expPageList, cd)
	if err != nil {
		return nil, err
	}
	data, err := a.frame(ptr)
	if err != nil {
		return nil, err
	}
	return proto.DecodePages(data)
}

// imageRequest returns a request-table index in both generations, since
// requests are built through the net namespace either way.
func (a *nextAdapter) imageRequest(ctx context.Context, url string, pageContext map[string]string) (*models.Request, error) {
	pd := a.env.Store.Store(store.PageValue(&models.Page{URL: url, Context: pageContext}))
	idx, err := a.call(ctx, expImageRequest, pd)
	if err != nil {
		return nil, err
	}
	if idx < 0 {
		return nil, proto.SentinelError(idx)
	}
	return a.requestFromTable(idx)
}

// processPageImage frames carry the processed image bytes directly
// rather than an encoded record.
func (a *nextAdapter) processPageImage(ctx context.Context, req *models.Request, resp *models.Response, data []byte, pageContext map[string]string) ([]byte, error) {
	rd := a.storeRequestMeta(req)
	sd := a.storeResponseMeta(resp)
	bd := a.env.Store.Store(store.BytesValue(data))
	cd := a.env.Store.Store(store.PageValue(&models.Page{Context: pageContext}))
	ptr, err := a.call(ctx, expProcessImage, rd, sd, bd, cd)
	if err != nil {
		return nil, err
	}
	return a.frame(ptr)
}

func (a *nextAdapter) handleNotification(ctx context.Context, name string) error {
	nd := a.env.Store.Store(store.StringValue(name))
	ptr, err := a.call(ctx, expNotification, nd)
	if err != nil {
		var missing *MissingExportError
		if errors.As(err, &missing) {
			return nil
		}
		return err
	}
	if ptr == 0 {
		return nil
	}
	if _, err := a.frame(ptr); err != nil {
		return err
	}
	return nil
}

func (a *nextAdapter) handleDeepLink(ctx context.Context, url string) (*models.DeepLink, error) {
	ud := a.env.Store.Store(store.StringValue(url))
	ptr, err := a.call(ctx, expDeepLink, ud)
	if err != nil {
		return nil, err
	}
	data, err := a.frame(ptr)
	if err != nil {
		return nil, err
	}
	return proto.DecodeDeepLink(data)
}
