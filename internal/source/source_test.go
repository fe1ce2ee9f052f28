package source

import (
	"archive/zip"
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"go.uber.org/zap/zaptest"

	"github.com/tachibana-shin/rakuyomi-sub000/internal/imports"
	"github.com/tachibana-shin/rakuyomi-sub000/internal/models"
	"github.com/tachibana-shin/rakuyomi-sub000/internal/opctx"
	"github.com/tachibana-shin/rakuyomi-sub000/internal/store"
)

// stubSource builds a Source with a worker loop but no guest instance,
// enough to exercise dispatch and registry behavior.
func stubSource(t *testing.T, id string, langs ...string) *Source {
	t.Helper()
	s := &Source{
		manifest: &Manifest{Info: ManifestInfo{ID: id, Name: id, Languages: langs}},
		store:    store.New(),
		holder:   opctx.NewHolder(),
		logger:   zaptest.NewLogger(t),
		jobs:     make(chan func()),
		done:     make(chan struct{}),
		stopped:  make(chan struct{}),
	}
	s.env = imports.NewEnv(s.store, nil, nil, s.holder, s.logger)
	go func() {
		defer close(s.stopped)
		for {
			select {
			case fn := <-s.jobs:
				fn()
			case <-s.done:
				return
			}
		}
	}()
	return s
}

func TestDetectGeneration(t *testing.T) {
	cases := []struct {
		name       string
		minVersion string
		sidecar    *Sidecar
		want       Generation
	}{
		{"no min version", "", nil, GenerationLegacy},
		{"below threshold", "0.6.9", nil, GenerationLegacy},
		{"at threshold", "0.7.0", nil, GenerationNext},
		{"above threshold", "1.2.0", nil, GenerationNext},
		{"unparsable", "latest", nil, GenerationLegacy},
		{"sidecar forces next", "0.1.0", &Sidecar{IsNextSDK: true}, GenerationNext},
		{"sidecar forces legacy", "2.0.0", &Sidecar{IsNextSDK: false}, GenerationLegacy},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			m := &Manifest{Info: ManifestInfo{MinVersion: tc.minVersion}}
			if got := DetectGeneration(m, tc.sidecar); got != tc.want {
				t.Errorf("DetectGeneration = %s, want %s", got, tc.want)
			}
		})
	}
}

func TestGenerationOpposite(t *testing.T) {
	if GenerationLegacy.Opposite() != GenerationNext || GenerationNext.Opposite() != GenerationLegacy {
		t.Error("Opposite is not an involution")
	}
	if GenerationLegacy.String() != "legacy" || GenerationNext.String() != "next" {
		t.Error("String mismatch")
	}
}

func TestSidecarRoundTrip(t *testing.T) {
	pkgPath := filepath.Join(t.TempDir(), "src.aix")

	sc, err := ReadSidecar(pkgPath)
	if err != nil || sc != nil {
		t.Fatalf("Missing sidecar = %+v, %v, want nil, nil", sc, err)
	}

	want := Sidecar{SourceOfSource: "https://example.com/src.aix", IsNextSDK: true}
	if err := WriteSidecar(pkgPath, &want); err != nil {
		t.Fatalf("WriteSidecar failed: %v", err)
	}
	sc, err = ReadSidecar(pkgPath)
	if err != nil {
		t.Fatalf("ReadSidecar failed: %v", err)
	}
	if *sc != want {
		t.Errorf("Sidecar = %+v, want %+v", sc, want)
	}
}

func TestSidecarMalformed(t *testing.T) {
	pkgPath := filepath.Join(t.TempDir(), "src.aix")
	if err := os.WriteFile(SidecarPath(pkgPath), []byte("{"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := ReadSidecar(pkgPath); err == nil {
		t.Fatal("Malformed sidecar accepted")
	}
}

func TestParseManifest(t *testing.T) {
	m, err := ParseManifest([]byte(`{
		"info": {"id": "en.example", "name": "Example", "version": 3,
			"minVersion": "0.7.1", "lang": "en", "languages": ["en", "ja"]}
	}`))
	if err != nil {
		t.Fatalf("ParseManifest failed: %v", err)
	}
	if m.Info.ID != "en.example" || m.Info.Version != 3 {
		t.Errorf("Manifest = %+v", m.Info)
	}

	// Lang and languages merge deduplicated, in order.
	keys := m.LanguageKeys()
	if len(keys) != 2 || keys[0] != "en" || keys[1] != "ja" {
		t.Errorf("LanguageKeys = %v", keys)
	}

	var merr *ManifestError
	if _, err := ParseManifest([]byte(`{"info": {"name": "x"}}`)); !errors.As(err, &merr) {
		t.Errorf("Missing id = %v, want *ManifestError", err)
	}
	if _, err := ParseManifest([]byte(`{"info": {"id": "x"}}`)); !errors.As(err, &merr) {
		t.Errorf("Missing name = %v, want *ManifestError", err)
	}
	if _, err := ParseManifest([]byte(`not json`)); !errors.As(err, &merr) {
		t.Errorf("Invalid JSON = %v, want *ManifestError", err)
	}
}

func writeArchive(t *testing.T, path string, entries map[string][]byte) {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for name, data := range entries {
		w, err := zw.Create(name)
		if err != nil {
			t.Fatal(err)
		}
		if _, err := w.Write(data); err != nil {
			t.Fatal(err)
		}
	}
	if err := zw.Close(); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		t.Fatal(err)
	}
}

var testManifest = []byte(`{"info": {"id": "en.example", "name": "Example"}}`)

func TestOpenPackage(t *testing.T) {
	path := filepath.Join(t.TempDir(), "src.aix")
	writeArchive(t, path, map[string][]byte{
		"source.json":   testManifest,
		"main.wasm":     {0x00, 0x61, 0x73, 0x6d},
		"settings.json": []byte(`[]`),
		"icon.png":      {1, 2, 3},
	})

	pkg, err := OpenPackage(path)
	if err != nil {
		t.Fatalf("OpenPackage failed: %v", err)
	}
	if pkg.Manifest.Info.ID != "en.example" {
		t.Errorf("Manifest = %+v", pkg.Manifest.Info)
	}
	if len(pkg.Wasm) != 4 || pkg.Schema == nil {
		t.Errorf("Wasm %d bytes, schema %v", len(pkg.Wasm), pkg.Schema)
	}
}

func TestOpenPackagePayloadPrefix(t *testing.T) {
	path := filepath.Join(t.TempDir(), "src.aix")
	writeArchive(t, path, map[string][]byte{
		"Payload/source.json": testManifest,
		"Payload/main.wasm":   {0x00},
	})

	pkg, err := OpenPackage(path)
	if err != nil {
		t.Fatalf("OpenPackage failed: %v", err)
	}
	if pkg.Manifest.Info.ID != "en.example" || pkg.Schema != nil {
		t.Errorf("Package = %+v", pkg)
	}
}

func TestOpenPackageMissingEntries(t *testing.T) {
	dir := t.TempDir()

	noWasm := filepath.Join(dir, "nowasm.aix")
	writeArchive(t, noWasm, map[string][]byte{"source.json": testManifest})
	var lerr *LoadError
	if _, err := OpenPackage(noWasm); !errors.As(err, &lerr) {
		t.Errorf("Missing wasm = %v, want *LoadError", err)
	}

	noManifest := filepath.Join(dir, "nomanifest.aix")
	writeArchive(t, noManifest, map[string][]byte{"main.wasm": {0}})
	if _, err := OpenPackage(noManifest); !errors.As(err, &lerr) {
		t.Errorf("Missing manifest = %v, want *LoadError", err)
	}

	notZip := filepath.Join(dir, "garbage.aix")
	if err := os.WriteFile(notZip, []byte("not a zip"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := OpenPackage(notZip); !errors.As(err, &lerr) {
		t.Errorf("Garbage archive = %v, want *LoadError", err)
	}
}

func TestOriginForPrecedence(t *testing.T) {
	pkg := &Package{
		Path:     "/ext/src.aix",
		Manifest: &Manifest{Info: ManifestInfo{URL: "https://example.com"}},
	}
	if got := originFor(pkg, &Sidecar{SourceOfSource: "cached"}); got != "cached" {
		t.Errorf("With sidecar = %q", got)
	}
	if got := originFor(pkg, nil); got != "https://example.com" {
		t.Errorf("With manifest URL = %q", got)
	}
	pkg.Manifest.Info.URL = ""
	if got := originFor(pkg, nil); got != "/ext/src.aix" {
		t.Errorf("Fallback = %q", got)
	}
}

func TestDispatchRestoresStateOnEveryPath(t *testing.T) {
	s := stubSource(t, "en.example")
	defer s.Close()
	ctx := context.Background()

	err := s.dispatch(ctx, "test", opctx.ForManga(ctx, "m-1"), func() error {
		cur := s.holder.Current()
		if cur.Subject.MangaID != "m-1" {
			t.Errorf("Subject inside call = %+v", cur.Subject)
		}
		s.store.Store(store.IntValue(1))
		return nil
	})
	if err != nil {
		t.Fatalf("dispatch = %v", err)
	}
	if s.store.Len() != 0 {
		t.Error("Per-call store not cleared")
	}
	if s.holder.Current().Subject.Kind != opctx.SubjectNone {
		t.Error("Operation context not restored")
	}

	// A failing call is wrapped and still cleans up.
	want := errors.New("guest failure")
	err = s.dispatch(ctx, "test", opctx.New(ctx), func() error {
		s.store.Store(store.IntValue(2))
		return want
	})
	var cerr *CallError
	if !errors.As(err, &cerr) || !errors.Is(err, want) {
		t.Fatalf("dispatch = %v, want *CallError wrapping guest failure", err)
	}
	if cerr.SourceID != "en.example" || cerr.Capability != "test" {
		t.Errorf("CallError = %+v", cerr)
	}
	if s.store.Len() != 0 {
		t.Error("Store not cleared after failed call")
	}
}

func TestDispatchAfterClose(t *testing.T) {
	s := stubSource(t, "en.example")
	s.Close()
	s.Close() // idempotent

	err := s.dispatch(context.Background(), "test", opctx.New(context.Background()), func() error {
		return nil
	})
	if !errors.Is(err, ErrClosed) {
		t.Errorf("dispatch after close = %v, want ErrClosed", err)
	}
}

func TestProcessPageImagePassThrough(t *testing.T) {
	s := stubSource(t, "en.example")
	defer s.Close()

	data := []byte{1, 2, 3}
	got, err := s.ProcessPageImage(context.Background(), nil, nil, data, nil)
	if err != nil {
		t.Fatalf("ProcessPageImage = %v", err)
	}
	if !bytes.Equal(got, data) {
		t.Errorf("Pass-through altered data: %v", got)
	}
}

// fakeCaps substitutes for a generation adapter in façade tests.
type fakeCaps struct {
	mangaListFn    func(filters []models.Filter, page int) (*models.MangaPageResult, error)
	processImageFn func(req *models.Request, resp *models.Response, data []byte, pageContext map[string]string) ([]byte, error)
}

func (f *fakeCaps) mangaList(ctx context.Context, filters []models.Filter, page int) (*models.MangaPageResult, error) {
	if f.mangaListFn != nil {
		return f.mangaListFn(filters, page)
	}
	return &models.MangaPageResult{}, nil
}

func (f *fakeCaps) mangaListing(ctx context.Context, listing models.Listing, page int) (*models.MangaPageResult, error) {
	return &models.MangaPageResult{}, nil
}

func (f *fakeCaps) mangaDetails(ctx context.Context, manga models.Manga) (*models.Manga, error) {
	return &manga, nil
}

func (f *fakeCaps) chapterList(ctx context.Context, manga models.Manga) ([]models.Chapter, error) {
	return nil, nil
}

func (f *fakeCaps) pageList(ctx context.Context, chapter models.Chapter) ([]models.Page, error) {
	return nil, nil
}

func (f *fakeCaps) imageRequest(ctx context.Context, url string, pageContext map[string]string) (*models.Request, error) {
	return &models.Request{Method: "GET", URL: url}, nil
}

func (f *fakeCaps) processPageImage(ctx context.Context, req *models.Request, resp *models.Response, data []byte, pageContext map[string]string) ([]byte, error) {
	if f.processImageFn != nil {
		return f.processImageFn(req, resp, data, pageContext)
	}
	return data, nil
}

func (f *fakeCaps) handleNotification(ctx context.Context, name string) error { return nil }

func (f *fakeCaps) handleDeepLink(ctx context.Context, url string) (*models.DeepLink, error) {
	return nil, nil
}

func TestSearchMangaPrependsTitleFilter(t *testing.T) {
	s := stubSource(t, "en.example")
	defer s.Close()

	var gotFilters []models.Filter
	var gotPage int
	s.caps = &fakeCaps{mangaListFn: func(filters []models.Filter, page int) (*models.MangaPageResult, error) {
		gotFilters = filters
		gotPage = page
		return &models.MangaPageResult{HasMore: true}, nil
	}}

	res, err := s.SearchManga(context.Background(), "naruto", 3, []models.Filter{
		{Kind: models.FilterCheck, Name: "completed", BoolV: true},
	})
	if err != nil {
		t.Fatalf("SearchManga = %v", err)
	}
	if !res.HasMore {
		t.Errorf("Result = %+v", res)
	}
	if gotPage != 3 || len(gotFilters) != 2 {
		t.Fatalf("Call = page %d, filters %+v", gotPage, gotFilters)
	}
	if gotFilters[0].Kind != models.FilterTitle || gotFilters[0].StringV != "naruto" {
		t.Errorf("First filter = %+v, want the query as a title filter", gotFilters[0])
	}
	if gotFilters[1].Name != "completed" {
		t.Errorf("Caller filter dropped: %+v", gotFilters)
	}
}

func TestProcessPageImageForwardsMetadata(t *testing.T) {
	s := stubSource(t, "en.example")
	defer s.Close()
	s.canProcessImages = true

	req := &models.Request{Method: "GET", URL: "https://example.com/p1.png"}
	resp := &models.Response{Status: 200, Headers: map[string]string{"Content-Type": "image/png"}}
	s.caps = &fakeCaps{processImageFn: func(gotReq *models.Request, gotResp *models.Response, data []byte, pageContext map[string]string) ([]byte, error) {
		if gotReq != req || gotResp != resp {
			t.Error("Request or response metadata not forwarded")
		}
		if pageContext["key"] != "v" {
			t.Errorf("pageContext = %v", pageContext)
		}
		return append([]byte{0xff}, data...), nil
	}}

	got, err := s.ProcessPageImage(context.Background(), req, resp, []byte{1, 2}, map[string]string{"key": "v"})
	if err != nil {
		t.Fatalf("ProcessPageImage = %v", err)
	}
	if !bytes.Equal(got, []byte{0xff, 1, 2}) {
		t.Errorf("Processed bytes = %v", got)
	}
}

func TestStoreRequestMetaRoundTrip(t *testing.T) {
	s := stubSource(t, "en.example")
	defer s.Close()
	g := &guest{env: s.env, logger: s.logger}

	rd := g.storeRequestMeta(&models.Request{
		Method:  "POST",
		URL:     "https://example.com/img",
		Headers: map[string]string{"Referer": "https://example.com"},
		Body:    []byte("payload"),
	})
	v, ok := s.store.Get(rd)
	if !ok || v.Kind != store.KindRequest {
		t.Fatalf("Descriptor = %+v, %v", v, ok)
	}
	st := s.env.Requests.Get(v.Request)
	if st == nil || st.Method != "POST" || st.URL != "https://example.com/img" {
		t.Fatalf("Entry = %+v", st)
	}
	if st.Headers.Get("Referer") != "https://example.com" || string(st.Body) != "payload" {
		t.Errorf("Entry = %+v", st)
	}

	sd := g.storeResponseMeta(&models.Response{
		URL:     "https://cdn.example.com/img",
		Status:  203,
		Headers: map[string]string{"Content-Type": "image/png"},
	})
	v, ok = s.store.Get(sd)
	if !ok || v.Kind != store.KindRequest {
		t.Fatalf("Descriptor = %+v, %v", v, ok)
	}
	st = s.env.Requests.Get(v.Request)
	if st == nil || st.Status != 203 {
		t.Fatalf("Entry = %+v", st)
	}
	// The Sent phase makes the net status and header accessors work.
	if st.Header("Content-Type") != "image/png" {
		t.Errorf("Content-Type = %q", st.Header("Content-Type"))
	}
}

func TestRegistry(t *testing.T) {
	r := NewRegistry(zaptest.NewLogger(t))

	a := stubSource(t, "en.a", "en")
	b := stubSource(t, "multi.b", "en", "ja")
	if err := r.Register(a); err != nil {
		t.Fatal(err)
	}
	if err := r.Register(b); err != nil {
		t.Fatal(err)
	}

	var dup *AlreadyRegisteredError
	if err := r.Register(stubSource(t, "en.a")); !errors.As(err, &dup) {
		t.Errorf("Duplicate register = %v, want *AlreadyRegisteredError", err)
	}

	if got, ok := r.Get("multi.b"); !ok || got != b {
		t.Error("Get miss")
	}
	if _, ok := r.Get("nope"); ok {
		t.Error("Get hit for unknown id")
	}
	if got := r.LookupByLanguage("en"); len(got) != 2 {
		t.Errorf("en sources = %d", len(got))
	}
	if got := r.LookupByLanguage("ja"); len(got) != 1 || got[0] != b {
		t.Errorf("ja sources = %v", got)
	}
	if got := r.LookupByLanguage("fr"); len(got) != 0 {
		t.Errorf("fr sources = %v", got)
	}
	if r.Count() != 2 || len(r.List()) != 2 {
		t.Errorf("Count = %d", r.Count())
	}

	r.Unregister("multi.b")
	if r.Count() != 1 {
		t.Errorf("Count after unregister = %d", r.Count())
	}
	if got := r.LookupByLanguage("ja"); len(got) != 0 {
		t.Errorf("ja sources after unregister = %v", got)
	}
	// Unregistering closes the source.
	if err := b.dispatch(context.Background(), "test", opctx.New(context.Background()), func() error { return nil }); !errors.Is(err, ErrClosed) {
		t.Errorf("Unregistered source still dispatches: %v", err)
	}

	r.Unregister("nope")
	r.Unregister("en.a")
}

func TestManagerDiscovery(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"a.aix", "b.ZIP", "c.txt"} {
		if err := os.WriteFile(filepath.Join(dir, name), []byte("x"), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	if err := os.MkdirAll(filepath.Join(dir, "nested"), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "nested", "d.aix"), []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}

	m := NewManager([]string{dir, filepath.Join(dir, "missing")}, nil, zaptest.NewLogger(t))
	if m.IsLoaded() {
		t.Error("IsLoaded before LoadAll")
	}

	pkgs := m.discover()
	if len(pkgs) != 3 {
		t.Errorf("discover = %v, want a.aix, b.ZIP, nested/d.aix", pkgs)
	}

	var nferr *NotFoundError
	if _, err := m.GetSource("nope"); !errors.As(err, &nferr) {
		t.Errorf("GetSource = %v, want *NotFoundError", err)
	}
}
