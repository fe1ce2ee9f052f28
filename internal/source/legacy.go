package source

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/tachibana-shin/rakuyomi-sub000/internal/imaging"
	"github.com/tachibana-shin/rakuyomi-sub000/internal/imports"
	"github.com/tachibana-shin/rakuyomi-sub000/internal/models"
	"github.com/tachibana-shin/rakuyomi-sub000/internal/proto"
	"github.com/tachibana-shin/rakuyomi-sub000/internal/store"
	"github.com/tachibana-shin/rakuyomi-sub000/internal/wasm"
)

// legacyAdapter speaks the descriptor-exchange convention: guest exports
// take and return value-store descriptors.
type legacyAdapter struct {
	guest
}

func newLegacyAdapter(inst *wasm.Instance, env *imports.Env, logger *zap.Logger) *legacyAdapter {
	return &legacyAdapter{guest: guest{inst: inst, env: env, logger: logger}}
}

// result resolves a returned descriptor to its store value. Negative
// returns are sentinels.
func (a *legacyAdapter) result(d int32) (store.Value, error) {
	if d < 0 {
		return store.Value{}, proto.SentinelError(d)
	}
	v, ok := a.env.Store.Get(d)
	if !ok {
		return store.Value{}, fmt.Errorf("guest returned unknown descriptor %d", d)
	}
	return v, nil
}

func (a *legacyAdapter) mangaList(ctx context.Context, filters []models.Filter, page int) (*models.MangaPageResult, error) {
	d, err := a.call(ctx, expMangaList, a.storeFilters(filters), int32(page))
	if err != nil {
		return nil, err
	}
	v, err := a.result(d)
	if err != nil {
		return nil, err
	}
	return decodePageResultValue(v)
}

func (a *legacyAdapter) mangaListing(ctx context.Context, listing models.Listing, page int) (*models.MangaPageResult, error) {
	ld := a.env.Store.Store(store.ListingValue(&listing))
	d, err := a.call(ctx, expMangaListing, ld, int32(page))
	if err != nil {
		return nil, err
	}
	v, err := a.result(d)
	if err != nil {
		return nil, err
	}
	return decodePageResultValue(v)
}

func (a *legacyAdapter) mangaDetails(ctx context.Context, manga models.Manga) (*models.Manga, error) {
	md := a.env.Store.Store(store.MangaValue(&manga))
	d, err := a.call(ctx, expMangaDetails, md)
	if err != nil {
		return nil, err
	}
	v, err := a.result(d)
	if err != nil {
		return nil, err
	}
	return decodeMangaValue(v)
}

func (a *legacyAdapter) chapterList(ctx context.Context, manga models.Manga) ([]models.Chapter, error) {
	md := a.env.Store.Store(store.MangaValue(&manga))
	d, err := a.call(ctx, expChapterList, md)
	if err != nil {
		return nil, err
	}
	v, err := a.result(d)
	if err != nil {
		return nil, err
	}
	return decodeChaptersValue(v)
}

func (a *legacyAdapter) pageList(ctx context.Context, chapter models.Chapter) ([]models.Page, error) {
	cd := a.env.Store.Store(store.ChapterValue(&chapter))
	d, err := a.call(ctx, expPageList, cd)
	if err != nil {
		return nil, err
	}
	v, err := a.result(d)
	if err != nil {
		return nil, err
	}
	return decodePagesValue(v)
}

func (a *legacyAdapter) imageRequest(ctx context.Context, url string, pageContext map[string]string) (*models.Request, error) {
	pd := a.env.Store.Store(store.PageValue(&models.Page{URL: url, Context: pageContext}))
	d, err := a.call(ctx, expImageRequest, pd)
	if err != nil {
		return nil, err
	}
	if d < 0 {
		return nil, proto.SentinelError(d)
	}
	return a.requestFromTable(d)
}

func (a *legacyAdapter) processPageImage(ctx context.Context, req *models.Request, resp *models.Response, data []byte, pageContext map[string]string) ([]byte, error) {
	rd := a.storeRequestMeta(req)
	sd := a.storeResponseMeta(resp)
	bd := a.env.Store.Store(store.BytesValue(data))
	cd := a.env.Store.Store(store.PageValue(&models.Page{Context: pageContext}))
	d, err := a.call(ctx, expProcessImage, rd, sd, bd, cd)
	if err != nil {
		return nil, err
	}
	v, err := a.result(d)
	if err != nil {
		return nil, err
	}
	switch v.Kind {
	case store.KindBytes, store.KindString:
		return v.StringBytes(), nil
	case store.KindImage:
		return imaging.EncodePNG(v.Image)
	default:
		return nil, &proto.DecodeError{Detail: "value is not image data"}
	}
}

func (a *legacyAdapter) handleNotification(ctx context.Context, name string) error {
	nd := a.env.Store.Store(store.StringValue(name))
	d, err := a.call(ctx, expNotification, nd)
	if err != nil {
		var missing *MissingExportError
		if errors.As(err, &missing) {
			return nil
		}
		return err
	}
	if d < 0 {
		return proto.SentinelError(d)
	}
	return nil
}

func (a *legacyAdapter) handleDeepLink(ctx context.Context, url string) (*models.DeepLink, error) {
	ud := a.env.Store.Store(store.StringValue(url))
	d, err := a.call(ctx, expDeepLink, ud)
	if err != nil {
		return nil, err
	}
	v, err := a.result(d)
	if err != nil {
		return nil, err
	}
	return decodeDeepLinkValue(v)
}
