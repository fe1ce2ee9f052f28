package source

import (
	"sync"

	"go.uber.org/zap"
)

// Registry manages loaded sources.
type Registry struct {
	sync.RWMutex
	sources map[string]*Source   // id -> source
	byLang  map[string][]*Source // language -> sources
	logger  *zap.Logger
}

// NewRegistry creates a new source registry.
func NewRegistry(logger *zap.Logger) *Registry {
	return &Registry{
		sources: make(map[string]*Source),
		byLang:  make(map[string][]*Source),
		logger:  logger.With(zap.String("component", "source-registry")),
	}
}

// Register adds a source to the registry.
func (r *Registry) Register(src *Source) error {
	r.Lock()
	defer r.Unlock()

	id := src.ID()
	if _, exists := r.sources[id]; exists {
		return &AlreadyRegisteredError{SourceID: id}
	}
	r.sources[id] = src

	for _, lang := range src.Manifest().LanguageKeys() {
		r.byLang[lang] = append(r.byLang[lang], src)
	}

	r.logger.Info("source registered",
		zap.String("id", id),
		zap.String("name", src.Name()),
		zap.Stringer("generation", src.Generation()),
	)
	return nil
}

// Get retrieves a source by ID.
func (r *Registry) Get(id string) (*Source, bool) {
	r.RLock()
	defer r.RUnlock()

	src, ok := r.sources[id]
	return src, ok
}

// LookupByLanguage finds sources declaring a language.
func (r *Registry) LookupByLanguage(lang string) []*Source {
	r.RLock()
	defer r.RUnlock()

	srcs, ok := r.byLang[lang]
	if !ok || len(srcs) == 0 {
		return []*Source{}
	}
	result := make([]*Source, len(srcs))
	copy(result, srcs)
	return result
}

// List returns all registered sources.
func (r *Registry) List() []*Source {
	r.RLock()
	defer r.RUnlock()

	result := make([]*Source, 0, len(r.sources))
	for _, src := range r.sources {
		result = append(result, src)
	}
	return result
}

// Unregister removes a source from the registry and closes it.
func (r *Registry) Unregister(id string) {
	r.Lock()
	defer r.Unlock()

	src, ok := r.sources[id]
	if !ok {
		return
	}

	for _, lang := range src.Manifest().LanguageKeys() {
		srcs := r.byLang[lang]
		for i, s := range srcs {
			if s.ID() == id {
				r.byLang[lang] = append(srcs[:i], srcs[i+1:]...)
				break
			}
		}
	}
	delete(r.sources, id)

	src.Close()
	r.logger.Info("source unregistered", zap.String("id", id))
}

// Count returns the number of registered sources.
func (r *Registry) Count() int {
	r.RLock()
	defer r.RUnlock()

	return len(r.sources)
}
