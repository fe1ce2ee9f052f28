// Package opctx carries the per-call scratch state bound to one exported
// guest call: the active cancellation context and the coarse logical
// subject the call is about. Import functions receive it explicitly; the
// capability façade installs it before invoking the guest and restores
// the default on every exit path.
package opctx

import "context"

// SubjectKind classifies what a capability call is about.
type SubjectKind int

const (
	SubjectNone SubjectKind = iota
	SubjectManga
	SubjectChapter
)

// Subject is the logical subject of the in-flight call.
type Subject struct {
	Kind      SubjectKind
	MangaID   string
	ChapterID string
}

// Context is the per-call state. The zero value is not usable; use
// Default or New.
type Context struct {
	Ctx     context.Context
	Subject Subject
}

// Default is the context installed between calls.
func Default() Context {
	return Context{Ctx: context.Background()}
}

// New binds a cancellation context with no subject.
func New(ctx context.Context) Context {
	return Context{Ctx: ctx}
}

// ForManga binds a cancellation context to a manga subject.
func ForManga(ctx context.Context, mangaID string) Context {
	return Context{Ctx: ctx, Subject: Subject{Kind: SubjectManga, MangaID: mangaID}}
}

// ForChapter binds a cancellation context to a chapter subject.
func ForChapter(ctx context.Context, mangaID, chapterID string) Context {
	return Context{
		Ctx:     ctx,
		Subject: Subject{Kind: SubjectChapter, MangaID: mangaID, ChapterID: chapterID},
	}
}

// Holder owns the current per-call context for one instance. It is
// written only by the capability façade, which serializes calls, so no
// locking is needed.
type Holder struct {
	current Context
}

// NewHolder starts at the default context.
func NewHolder() *Holder {
	return &Holder{current: Default()}
}

// Current returns the active context.
func (h *Holder) Current() Context { return h.current }

// Swap installs c and returns a restore func. The façade defers the
// restore so the default comes back on every exit path, including guest
// failure.
func (h *Holder) Swap(c Context) (restore func()) {
	h.current = c
	return func() { h.current = Default() }
}
