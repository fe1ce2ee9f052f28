package source

import (
	"context"

	"go.uber.org/zap"

	"github.com/tachibana-shin/rakuyomi-sub000/internal/imports"
	"github.com/tachibana-shin/rakuyomi-sub000/internal/opctx"
	"github.com/tachibana-shin/rakuyomi-sub000/internal/request"
	"github.com/tachibana-shin/rakuyomi-sub000/internal/settings"
	"github.com/tachibana-shin/rakuyomi-sub000/internal/store"
	"github.com/tachibana-shin/rakuyomi-sub000/internal/wasm"
)

// Loader turns extension packages into running sources.
type Loader struct {
	client      *request.Client
	settingsDir string
	wasmCfg     *wasm.RuntimeConfig
	logger      *zap.Logger
}

// NewLoader creates a loader. An empty settingsDir keeps extension
// settings in memory only.
func NewLoader(client *request.Client, settingsDir string, wasmCfg *wasm.RuntimeConfig, logger *zap.Logger) *Loader {
	return &Loader{
		client:      client,
		settingsDir: settingsDir,
		wasmCfg:     wasmCfg,
		logger:      logger.With(zap.String("component", "source-loader")),
	}
}

// Load opens a package, decides the generation and instantiates the
// guest. When instantiation fails and no sidecar pinned the generation,
// it retries exactly once with the opposite generation; a second
// failure is fatal for this extension. The final determination is
// persisted to the sidecar so future loads skip re-detection.
func (l *Loader) Load(ctx context.Context, path string) (*Source, error) {
	pkg, err := OpenPackage(path)
	if err != nil {
		return nil, err
	}

	sc, err := ReadSidecar(path)
	if err != nil {
		l.logger.Warn("ignoring malformed sidecar",
			zap.String("path", SidecarPath(path)), zap.Error(err))
		sc = nil
	}
	pkg.Manifest.Origin = originFor(pkg, sc)

	gen := DetectGeneration(pkg.Manifest, sc)
	src, err := l.instantiate(ctx, pkg, gen)
	if err != nil {
		if sc != nil {
			return nil, &LoadError{Path: path, Stage: "instantiate " + gen.String(), Err: err}
		}
		l.logger.Info("instantiation failed, retrying with opposite generation",
			zap.String("source", pkg.Manifest.Info.ID),
			zap.Stringer("tried", gen), zap.Error(err))
		gen = gen.Opposite()
		src, err = l.instantiate(ctx, pkg, gen)
		if err != nil {
			return nil, &LoadError{Path: path, Stage: "instantiate both generations", Err: err}
		}
	}

	want := Sidecar{
		SourceOfSource: pkg.Manifest.Origin,
		IsNextSDK:      gen == GenerationNext,
	}
	if sc == nil || *sc != want {
		if err := WriteSidecar(path, &want); err != nil {
			l.logger.Warn("sidecar write failed",
				zap.String("path", SidecarPath(path)), zap.Error(err))
		}
	}

	l.logger.Info("source loaded",
		zap.String("source", src.ID()),
		zap.Stringer("generation", gen),
		zap.Bool("process_page_image", src.canProcessImages))
	return src, nil
}

// instantiate builds one complete per-source stack: fresh engine
// runtime, value store, import surface, compiled module, instance and
// worker. Each source gets its own runtime so host-function closures
// capture its private state.
func (l *Loader) instantiate(ctx context.Context, pkg *Package, gen Generation) (*Source, error) {
	rt, err := wasm.NewRuntime(ctx, l.logger, l.wasmCfg)
	if err != nil {
		return nil, err
	}

	setts, err := l.openSettings(pkg)
	if err != nil {
		rt.Close(ctx)
		return nil, err
	}

	st := store.New()
	holder := opctx.NewHolder()
	env := imports.NewEnv(st, l.client, setts, holder, l.logger)

	register := imports.RegisterLegacy
	if gen == GenerationNext {
		register = imports.RegisterNext
	}
	if err := register(ctx, rt.Wazero(), env); err != nil {
		rt.Close(ctx)
		return nil, err
	}

	modLoader := wasm.NewModuleLoader(rt, l.logger)
	compiled, err := modLoader.LoadPackageModule(ctx, pkg.Manifest.Info.ID, pkg.Wasm)
	if err != nil {
		rt.Close(ctx)
		return nil, err
	}

	inst, err := wasm.Instantiate(ctx, rt, compiled, pkg.Manifest.Info.ID, l.logger)
	if err != nil {
		rt.Close(ctx)
		return nil, err
	}

	src := &Source{
		manifest: pkg.Manifest,
		gen:      gen,
		runtime:  rt,
		instance: inst,
		env:      env,
		store:    st,
		holder:   holder,
		settings: setts,
		logger:   l.logger.With(zap.String("source", pkg.Manifest.Info.ID)),
		jobs:     make(chan func()),
		done:     make(chan struct{}),
		stopped:  make(chan struct{}),
	}
	if gen == GenerationNext {
		src.caps = newNextAdapter(inst, env, src.logger)
	} else {
		src.caps = newLegacyAdapter(inst, env, src.logger)
	}
	src.canProcessImages = inst.HasExport(expProcessImage)

	if gen == GenerationNext && inst.HasExport(expStart) {
		if _, err := inst.Call(ctx, expStart); err != nil {
			inst.Close(ctx)
			rt.Close(ctx)
			return nil, err
		}
	}

	go src.worker()
	return src, nil
}

// openSettings builds the per-extension settings store, seeding it with
// the package's preference schema defaults.
func (l *Loader) openSettings(pkg *Package) (settings.Store, error) {
	defaults := map[string]settings.Value{}
	if pkg.Schema != nil {
		parsed, err := settings.ParseSchema(pkg.Schema)
		if err != nil {
			l.logger.Warn("ignoring malformed settings schema",
				zap.String("source", pkg.Manifest.Info.ID), zap.Error(err))
		} else {
			defaults = parsed
		}
	}
	if l.settingsDir == "" {
		return settings.NewMemoryStore(defaults), nil
	}
	return settings.NewFileStore(l.settingsDir, pkg.Manifest.Info.ID, defaults, l.logger)
}

// originFor picks the cached origin annotation: an existing sidecar
// entry wins, then the manifest URL, then the package path.
func originFor(pkg *Package, sc *Sidecar) string {
	if sc != nil && sc.SourceOfSource != "" {
		return sc.SourceOfSource
	}
	if pkg.Manifest.Info.URL != "" {
		return pkg.Manifest.Info.URL
	}
	return pkg.Path
}
