package source

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/tachibana-shin/rakuyomi-sub000/internal/imports"
	"github.com/tachibana-shin/rakuyomi-sub000/internal/models"
	"github.com/tachibana-shin/rakuyomi-sub000/internal/opctx"
	"github.com/tachibana-shin/rakuyomi-sub000/internal/settings"
	"github.com/tachibana-shin/rakuyomi-sub000/internal/store"
	"github.com/tachibana-shin/rakuyomi-sub000/internal/wasm"
)

// Source is the normalized capability façade over one loaded extension.
//
// A loaded instance is not safely callable concurrently: the guest runs
// on a single logical thread and every host function mutates per-
// instance tables. All capability calls are therefore funneled through
// one dedicated worker goroutine, which may block on guest-triggered
// I/O without stalling the caller's runtime beyond the one waiting call.
type Source struct {
	manifest *Manifest
	gen      Generation

	runtime  *wasm.Runtime
	instance *wasm.Instance
	env      *imports.Env
	store    *store.Store
	holder   *opctx.Holder
	settings settings.Store
	caps     capabilities

	// canProcessImages records whether the guest exports the optional
	// image post-processing capability.
	canProcessImages bool

	logger *zap.Logger

	jobs      chan func()
	done      chan struct{}
	stopped   chan struct{}
	closeOnce sync.Once
}

// ID returns the source's manifest ID.
func (s *Source) ID() string { return s.manifest.Info.ID }

// Name returns the source's display name.
func (s *Source) Name() string { return s.manifest.Info.Name }

// Manifest returns the parsed package manifest.
func (s *Source) Manifest() *Manifest { return s.manifest }

// Generation returns the calling convention selected at load time.
func (s *Source) Generation() Generation { return s.gen }

// CanProcessImages reports whether the guest declared the optional
// image post-processing capability.
func (s *Source) CanProcessImages() bool { return s.canProcessImages }

// Settings returns the per-extension settings store.
func (s *Source) Settings() settings.Store { return s.settings }

// worker executes submitted capability closures one at a time, then
// tears the instance down when the source closes.
func (s *Source) worker() {
	defer close(s.stopped)
	for {
		select {
		case fn := <-s.jobs:
			fn()
		case <-s.done:
			ctx := context.Background()
			if err := s.instance.Close(ctx); err != nil {
				s.logger.Warn("instance close failed", zap.Error(err))
			}
			if err := s.runtime.Close(ctx); err != nil {
				s.logger.Warn("runtime close failed", zap.Error(err))
			}
			s.store.Clear()
			s.env.Reset()
			return
		}
	}
}

// run submits a closure to the worker and waits for it to finish. The
// context only guards the wait for a free worker slot; once the closure
// starts it runs to completion, with cancellation enforced inside the
// guest call at blocking boundaries.
func (s *Source) run(ctx context.Context, fn func()) error {
	finished := make(chan struct{})
	job := func() {
		defer close(finished)
		fn()
	}
	select {
	case s.jobs <- job:
	case <-s.done:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
	<-finished
	return nil
}

// dispatch wraps one capability call: install the operation context,
// invoke, then restore the default and reset per-call store state on
// every exit path.
func (s *Source) dispatch(ctx context.Context, capability string, oc opctx.Context, fn func() error) error {
	var callErr error
	err := s.run(ctx, func() {
		restore := s.holder.Swap(oc)
		defer restore()
		defer s.store.Clear()
		defer s.env.Reset()
		callErr = fn()
	})
	if err != nil {
		return &CallError{SourceID: s.ID(), Capability: capability, Err: err}
	}
	if callErr != nil {
		return &CallError{SourceID: s.ID(), Capability: capability, Err: callErr}
	}
	return nil
}

// ListManga fetches one page of a named listing. An empty listing name
// falls back to the unfiltered manga list.
func (s *Source) ListManga(ctx context.Context, listing models.Listing, page int) (*models.MangaPageResult, error) {
	var res *models.MangaPageResult
	err := s.dispatch(ctx, "list", opctx.New(ctx), func() error {
		var err error
		if listing.Name == "" {
			res, err = s.caps.mangaList(ctx, nil, page)
		} else {
			res, err = s.caps.mangaListing(ctx, listing, page)
		}
		return err
	})
	if err != nil {
		return nil, err
	}
	return res, nil
}

// SearchManga fetches one page of search results. A non-empty query is
// passed as a title filter ahead of the caller's filters.
func (s *Source) SearchManga(ctx context.Context, query string, page int, filters []models.Filter) (*models.MangaPageResult, error) {
	if query != "" {
		all := make([]models.Filter, 0, len(filters)+1)
		all = append(all, models.Filter{Kind: models.FilterTitle, Name: "title", StringV: query})
		all = append(all, filters...)
		filters = all
	}
	var res *models.MangaPageResult
	err := s.dispatch(ctx, "search", opctx.New(ctx), func() error {
		var err error
		res, err = s.caps.mangaList(ctx, filters, page)
		return err
	})
	if err != nil {
		return nil, err
	}
	return res, nil
}

// GetMangaDetails fetches the full record for one manga.
func (s *Source) GetMangaDetails(ctx context.Context, manga models.Manga) (*models.Manga, error) {
	var res *models.Manga
	err := s.dispatch(ctx, "details", opctx.ForManga(ctx, manga.ID), func() error {
		var err error
		res, err = s.caps.mangaDetails(ctx, manga)
		return err
	})
	if err != nil {
		return nil, err
	}
	return res, nil
}

// GetChapterList fetches the chapter list for one manga.
func (s *Source) GetChapterList(ctx context.Context, manga models.Manga) ([]models.Chapter, error) {
	var res []models.Chapter
	err := s.dispatch(ctx, "chapters", opctx.ForManga(ctx, manga.ID), func() error {
		var err error
		res, err = s.caps.chapterList(ctx, manga)
		return err
	})
	if err != nil {
		return nil, err
	}
	return res, nil
}

// GetPageList fetches the page list for one chapter.
func (s *Source) GetPageList(ctx context.Context, chapter models.Chapter) ([]models.Page, error) {
	var res []models.Page
	err := s.dispatch(ctx, "pages", opctx.ForChapter(ctx, chapter.MangaID, chapter.ID), func() error {
		var err error
		res, err = s.caps.pageList(ctx, chapter)
		return err
	})
	if err != nil {
		return nil, err
	}
	return res, nil
}

// GetImageRequest asks the guest to describe the HTTP request for one
// page image. The download pipeline executes the request itself.
func (s *Source) GetImageRequest(ctx context.Context, url string, pageContext map[string]string) (*models.Request, error) {
	var res *models.Request
	err := s.dispatch(ctx, "image-request", opctx.New(ctx), func() error {
		var err error
		res, err = s.caps.imageRequest(ctx, url, pageContext)
		return err
	})
	if err != nil {
		return nil, err
	}
	return res, nil
}

// ProcessPageImage runs downloaded image bytes through the guest's
// optional post-processing capability, handing it the request and
// response metadata of the download so processing can vary by header.
// Without the capability the bytes pass through unchanged.
func (s *Source) ProcessPageImage(ctx context.Context, req *models.Request, resp *models.Response, data []byte, pageContext map[string]string) ([]byte, error) {
	if !s.canProcessImages {
		return data, nil
	}
	var res []byte
	err := s.dispatch(ctx, "process-image", opctx.New(ctx), func() error {
		var err error
		res, err = s.caps.processPageImage(ctx, req, resp, data, pageContext)
		return err
	})
	if err != nil {
		return nil, err
	}
	return res, nil
}

// HandleNotification forwards a named host notification to the guest.
// Guests without the export ignore notifications.
func (s *Source) HandleNotification(ctx context.Context, name string) error {
	return s.dispatch(ctx, "notification", opctx.New(ctx), func() error {
		return s.caps.handleNotification(ctx, name)
	})
}

// HandleDeepLink resolves an external URL to source entities.
func (s *Source) HandleDeepLink(ctx context.Context, url string) (*models.DeepLink, error) {
	var res *models.DeepLink
	err := s.dispatch(ctx, "deep-link", opctx.New(ctx), func() error {
		var err error
		res, err = s.caps.handleDeepLink(ctx, url)
		return err
	})
	if err != nil {
		return nil, err
	}
	return res, nil
}

// Close shuts the worker down and tears down the guest instance. It is
// idempotent and waits for an in-flight call to finish.
func (s *Source) Close() {
	s.closeOnce.Do(func() {
		close(s.done)
	})
	<-s.stopped
}
