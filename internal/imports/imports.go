// Package imports builds the host function surface linked into guest
// modules. The same namespace implementations back both extension-SDK
// generations; the per-generation register functions assemble them, and
// everything operates on the shared per-instance state in Env.
package imports

import (
	"context"
	"errors"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"
	"go.uber.org/zap"

	"github.com/tachibana-shin/rakuyomi-sub000/internal/html"
	"github.com/tachibana-shin/rakuyomi-sub000/internal/opctx"
	"github.com/tachibana-shin/rakuyomi-sub000/internal/proto"
	"github.com/tachibana-shin/rakuyomi-sub000/internal/request"
	"github.com/tachibana-shin/rakuyomi-sub000/internal/settings"
	"github.com/tachibana-shin/rakuyomi-sub000/internal/store"
)

// ErrSourceAborted reports that guest code invoked the abort import. It
// is distinguishable from a guest trap so callers can tell a deliberate
// bail-out from a crash.
var ErrSourceAborted = errors.New("source aborted the call")

// abortPanic unwinds guest execution when the guest calls env.abort.
type abortPanic struct{}

// Env is the per-instance host state shared by every import namespace.
// It is confined to the goroutine executing guest code.
type Env struct {
	Store    *store.Store
	Requests *request.Table
	Client   *request.Client
	Settings settings.Store
	Holder   *opctx.Holder
	Logger   *zap.Logger

	// OnPartialResult receives values from the guest's partial-result
	// notification hook, when the capability caller wants them.
	OnPartialResult func(store.Value)

	// buffers caches materialized byte buffers until the descriptor is
	// destroyed or re-materialized.
	buffers map[store.Descriptor][]byte

	aborted bool
}

// NewEnv creates the shared import state for one instance.
func NewEnv(st *store.Store, client *request.Client, setts settings.Store, holder *opctx.Holder, logger *zap.Logger) *Env {
	return &Env{
		Store:    st,
		Requests: request.NewTable(),
		Client:   client,
		Settings: setts,
		Holder:   holder,
		Logger:   logger.With(zap.String("component", "imports")),
		buffers:  make(map[store.Descriptor][]byte),
	}
}

// Reset drops per-call state: cached materializations whose descriptors
// the store no longer tracks. The capability façade calls it whenever it
// clears the value store between calls.
func (e *Env) Reset() {
	clear(e.buffers)
}

// TakeAborted reports and clears the guest-abort flag. The generation
// adapters consult it after a failed export call.
func (e *Env) TakeAborted() bool {
	a := e.aborted
	e.aborted = false
	return a
}

// RegisterLegacy instantiates the legacy-generation import surface into
// a wazero runtime.
func RegisterLegacy(ctx context.Context, rt wazero.Runtime, env *Env) error {
	for _, reg := range []func(context.Context, wazero.Runtime, *Env) error{
		registerNet,
		registerHTML,
		registerStd,
		registerDefaults,
		registerCanvas,
		registerJS,
	} {
		if err := reg(ctx, rt, env); err != nil {
			return err
		}
	}
	return registerEnv(ctx, rt, env, false)
}

// RegisterNext instantiates the next-generation import surface. It
// shares every namespace with the legacy surface and additionally links
// the partial-result notification hook.
func RegisterNext(ctx context.Context, rt wazero.Runtime, env *Env) error {
	for _, reg := range []func(context.Context, wazero.Runtime, *Env) error{
		registerNet,
		registerHTML,
		registerStd,
		registerDefaults,
		registerCanvas,
		registerJS,
	} {
		if err := reg(ctx, rt, env); err != nil {
			return err
		}
	}
	return registerEnv(ctx, rt, env, true)
}

// readString reads guest memory as text, returning "" on a bad range.
func (e *Env) readString(mod api.Module, ptr, length uint32) string {
	if length == 0 {
		return ""
	}
	buf, ok := mod.Memory().Read(ptr, length)
	if !ok {
		e.Logger.Warn("guest passed out-of-bounds string",
			zap.Uint32("ptr", ptr), zap.Uint32("len", length))
		return ""
	}
	return string(buf)
}

// readBytes copies guest memory, returning nil on a bad range.
func (e *Env) readBytes(mod api.Module, ptr, length uint32) []byte {
	if length == 0 {
		return []byte{}
	}
	buf, ok := mod.Memory().Read(ptr, length)
	if !ok {
		e.Logger.Warn("guest passed out-of-bounds buffer",
			zap.Uint32("ptr", ptr), zap.Uint32("len", length))
		return nil
	}
	out := make([]byte, len(buf))
	copy(out, buf)
	return out
}

// storeElement retains the element's document and stores it under a new
// descriptor. Every element descriptor owns exactly one document
// reference; Take and Clear release it.
func (e *Env) storeElement(el *html.Element) store.Descriptor {
	el.Document().Retain()
	return e.Store.Store(store.ElementValue(el))
}

// reparentElement moves a descriptor onto a derived element of the same
// document. The descriptor's existing document reference carries over.
func (e *Env) reparentElement(d store.Descriptor, el *html.Element) store.Descriptor {
	e.Store.StoreAt(d, store.ElementValue(el))
	return d
}

// element resolves a descriptor to a live DOM element handle.
func (e *Env) element(d store.Descriptor) (*html.Element, bool) {
	v, ok := e.Store.Get(d)
	if !ok || v.Kind != store.KindElement || v.Element == nil {
		return nil, false
	}
	return v.Element, true
}

// dropBuffer forgets a cached materialization.
func (e *Env) dropBuffer(d store.Descriptor) {
	delete(e.buffers, d)
}

// materialize returns (and caches) the byte buffer for a descriptor.
func (e *Env) materialize(d store.Descriptor) ([]byte, error) {
	if buf, ok := e.buffers[d]; ok {
		return buf, nil
	}
	buf, err := proto.Materialize(e.Store, d)
	if err != nil {
		return nil, err
	}
	e.buffers[d] = buf
	return buf, nil
}
