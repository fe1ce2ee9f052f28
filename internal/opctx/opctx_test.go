package opctx

import (
	"context"
	"testing"
)

func TestHolderStartsAtDefault(t *testing.T) {
	h := NewHolder()
	cur := h.Current()
	if cur.Ctx == nil {
		t.Fatal("Default context has nil Ctx")
	}
	if cur.Subject.Kind != SubjectNone {
		t.Errorf("Subject = %+v, want none", cur.Subject)
	}
}

func TestSwapAndRestore(t *testing.T) {
	h := NewHolder()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	restore := h.Swap(ForManga(ctx, "m-1"))
	cur := h.Current()
	if cur.Ctx != ctx {
		t.Error("Swap did not install the call context")
	}
	if cur.Subject.Kind != SubjectManga || cur.Subject.MangaID != "m-1" {
		t.Errorf("Subject = %+v", cur.Subject)
	}

	restore()
	cur = h.Current()
	if cur.Subject.Kind != SubjectNone || cur.Ctx == ctx {
		t.Errorf("Restore did not reset to default: %+v", cur)
	}
}

func TestRestoreAfterPanic(t *testing.T) {
	h := NewHolder()

	func() {
		defer func() { recover() }()
		defer h.Swap(ForManga(context.Background(), "m-1"))()
		panic("guest trap")
	}()

	if h.Current().Subject.Kind != SubjectNone {
		t.Error("Context not restored after panic")
	}
}

func TestForChapter(t *testing.T) {
	c := ForChapter(context.Background(), "m-1", "c-9")
	if c.Subject.Kind != SubjectChapter {
		t.Fatalf("Kind = %v", c.Subject.Kind)
	}
	if c.Subject.MangaID != "m-1" || c.Subject.ChapterID != "c-9" {
		t.Errorf("Subject = %+v", c.Subject)
	}
}
