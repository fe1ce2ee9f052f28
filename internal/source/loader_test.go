package source

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"go.uber.org/zap/zaptest"

	"github.com/tachibana-shin/rakuyomi-sub000/internal/models"
	"github.com/tachibana-shin/rakuyomi-sub000/internal/request"
)

// emptyModule is a valid module exporting nothing.
var emptyModule = []byte{0x00, 0x61, 0x73, 0x6d, 0x01, 0x00, 0x00, 0x00}

// echoListModule exports get_manga_list(filters, page) returning its
// filters descriptor unchanged, which the host decodes as an empty
// result when no filters were passed.
var echoListModule = []byte{
	0x00, 0x61, 0x73, 0x6d, 0x01, 0x00, 0x00, 0x00,
	// type (i32, i32) -> i32
	0x01, 0x07, 0x01, 0x60, 0x02, 0x7f, 0x7f, 0x01, 0x7f,
	// one function of type 0
	0x03, 0x02, 0x01, 0x00,
	// export "get_manga_list"
	0x07, 0x12, 0x01, 0x0e,
	'g', 'e', 't', '_', 'm', 'a', 'n', 'g', 'a', '_', 'l', 'i', 's', 't',
	0x00, 0x00,
	// body: local.get 0
	0x0a, 0x06, 0x01, 0x04, 0x00, 0x20, 0x00, 0x0b,
}

func newTestLoader(t *testing.T) *Loader {
	t.Helper()
	client := request.NewClient(request.ClientConfig{}, zaptest.NewLogger(t))
	return NewLoader(client, "", nil, zaptest.NewLogger(t))
}

func packagePath(t *testing.T, manifest []byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "src.aix")
	writeArchive(t, path, map[string][]byte{
		"source.json": manifest,
		"main.wasm":   emptyModule,
	})
	return path
}

func TestLoaderLoadLegacy(t *testing.T) {
	ctx := context.Background()
	path := packagePath(t, testManifest)

	src, err := newTestLoader(t).Load(ctx, path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	defer src.Close()

	if src.ID() != "en.example" || src.Generation() != GenerationLegacy {
		t.Errorf("Source = %s %s", src.ID(), src.Generation())
	}
	if src.CanProcessImages() {
		t.Error("Empty guest reports image processing")
	}

	// The determination is persisted for the next load.
	sc, err := ReadSidecar(path)
	if err != nil || sc == nil {
		t.Fatalf("Sidecar = %+v, %v", sc, err)
	}
	if sc.IsNextSDK {
		t.Errorf("Sidecar = %+v, want legacy", sc)
	}

	// A capability against a guest without the export surfaces the
	// missing export, not a crash.
	var mee *MissingExportError
	if _, err := src.GetChapterList(ctx, models.Manga{ID: "m"}); !errors.As(err, &mee) {
		t.Errorf("GetChapterList = %v, want *MissingExportError", err)
	}
}

func TestLoaderLoadNext(t *testing.T) {
	ctx := context.Background()
	path := packagePath(t, []byte(`{
		"info": {"id": "en.next", "name": "Next", "minVersion": "0.8.0"}
	}`))

	src, err := newTestLoader(t).Load(ctx, path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	defer src.Close()

	if src.Generation() != GenerationNext {
		t.Errorf("Generation = %s, want next", src.Generation())
	}
	sc, err := ReadSidecar(path)
	if err != nil || sc == nil || !sc.IsNextSDK {
		t.Errorf("Sidecar = %+v, %v", sc, err)
	}
}

func TestLoaderSidecarPinsGeneration(t *testing.T) {
	ctx := context.Background()
	path := packagePath(t, testManifest)
	if err := WriteSidecar(path, &Sidecar{SourceOfSource: "cached", IsNextSDK: true}); err != nil {
		t.Fatal(err)
	}

	src, err := newTestLoader(t).Load(ctx, path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	defer src.Close()

	if src.Generation() != GenerationNext {
		t.Errorf("Generation = %s, sidecar should pin next", src.Generation())
	}
	if src.Manifest().Origin != "cached" {
		t.Errorf("Origin = %q, want sidecar origin", src.Manifest().Origin)
	}
}

func TestLegacyCapabilityCallEndToEnd(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "src.aix")
	writeArchive(t, path, map[string][]byte{
		"source.json": testManifest,
		"main.wasm":   echoListModule,
	})

	src, err := newTestLoader(t).Load(ctx, path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	defer src.Close()

	// An empty listing name routes to the plain manga list; the guest
	// echoes the empty filter-list descriptor back, which decodes as an
	// empty page.
	res, err := src.ListManga(ctx, models.Listing{}, 1)
	if err != nil {
		t.Fatalf("ListManga = %v", err)
	}
	if len(res.Manga) != 0 || res.HasMore {
		t.Errorf("Result = %+v", res)
	}

	// The per-call store state must not survive the dispatch.
	if got := src.store.Len(); got != 0 {
		t.Errorf("Store holds %d descriptors after the call", got)
	}
}

func TestRealExtensionPackage(t *testing.T) {
	path := os.Getenv("SOURCEHOST_TEST_PACKAGE")
	if path == "" {
		t.Skip("set SOURCEHOST_TEST_PACKAGE to an extension package path to run")
	}

	ctx := context.Background()
	src, err := newTestLoader(t).Load(ctx, path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	defer src.Close()

	res, err := src.ListManga(ctx, models.Listing{}, 1)
	if err != nil {
		t.Fatalf("ListManga = %v", err)
	}
	t.Logf("source %s (%s) listed %d manga", src.ID(), src.Generation(), len(res.Manga))
}

func TestLoaderRejectsInvalidModule(t *testing.T) {
	path := filepath.Join(t.TempDir(), "src.aix")
	writeArchive(t, path, map[string][]byte{
		"source.json": testManifest,
		"main.wasm":   []byte("not wasm"),
	})

	var lerr *LoadError
	if _, err := newTestLoader(t).Load(context.Background(), path); !errors.As(err, &lerr) {
		t.Fatalf("Load = %v, want *LoadError", err)
	}
}

func TestManagerLoadAll(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	writeArchive(t, filepath.Join(dir, "good.aix"), map[string][]byte{
		"source.json": testManifest,
		"main.wasm":   emptyModule,
	})
	writeArchive(t, filepath.Join(dir, "broken.aix"), map[string][]byte{
		"source.json": testManifest, // duplicate id, registration must fail
		"main.wasm":   emptyModule,
	})

	m := NewManager([]string{dir}, newTestLoader(t), zaptest.NewLogger(t))
	if err := m.LoadAll(ctx); err != nil {
		t.Fatalf("LoadAll failed: %v", err)
	}
	if !m.IsLoaded() {
		t.Error("IsLoaded false after LoadAll")
	}
	if got := m.Registry().Count(); got != 1 {
		t.Errorf("Count = %d, want the duplicate skipped", got)
	}
	if _, err := m.GetSource("en.example"); err != nil {
		t.Errorf("GetSource = %v", err)
	}

	if err := m.LoadAll(ctx); err == nil {
		t.Error("Second LoadAll accepted")
	}

	if err := m.Shutdown(ctx); err != nil {
		t.Fatalf("Shutdown failed: %v", err)
	}
	if m.Registry().Count() != 0 {
		t.Error("Sources remain after shutdown")
	}
}
