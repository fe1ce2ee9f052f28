package imports

import (
	"context"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"
	"go.uber.org/zap"

	"github.com/tachibana-shin/rakuyomi-sub000/internal/html"
	"github.com/tachibana-shin/rakuyomi-sub000/internal/proto"
	"github.com/tachibana-shin/rakuyomi-sub000/internal/store"
)

// registerHTML links the DOM namespace. Selector-chaining operations
// (select, first, last, get) reparent the caller's descriptor onto the
// derived handle instead of allocating a new one, supporting fluent
// guest call chains without leaking a descriptor per step.
func registerHTML(ctx context.Context, rt wazero.Runtime, env *Env) error {
	b := rt.NewHostModuleBuilder("html")

	// parse and parse_fragment take the raw markup behind a string or
	// bytes descriptor plus an explicit base URI.
	b.NewFunctionBuilder().WithFunc(func(ctx context.Context, mod api.Module, data int32, bptr, blen uint32) int32 {
		v, ok := env.Store.Get(data)
		if !ok {
			return proto.SentinelUnknown
		}
		el, err := html.Parse(v.StringBytes(), env.readString(mod, bptr, blen))
		if err != nil {
			env.Logger.Debug("html parse failed", zap.Error(err))
			return proto.SentinelUnknown
		}
		return env.Store.Store(store.ElementValue(el))
	}).Export("parse")

	b.NewFunctionBuilder().WithFunc(func(ctx context.Context, mod api.Module, data int32, bptr, blen uint32) int32 {
		v, ok := env.Store.Get(data)
		if !ok {
			return proto.SentinelUnknown
		}
		el, err := html.ParseFragment(v.StringBytes(), env.readString(mod, bptr, blen))
		if err != nil {
			env.Logger.Debug("html fragment parse failed", zap.Error(err))
			return proto.SentinelUnknown
		}
		return env.Store.Store(store.ElementValue(el))
	}).Export("parse_fragment")

	b.NewFunctionBuilder().WithFunc(func(ctx context.Context, mod api.Module, d int32, sptr, slen uint32) int32 {
		el, ok := env.element(d)
		if !ok {
			return proto.SentinelUnknown
		}
		return env.reparentElement(d, el.Select(env.readString(mod, sptr, slen)))
	}).Export("select")

	b.NewFunctionBuilder().WithFunc(func(ctx context.Context, d int32) int32 {
		el, ok := env.element(d)
		if !ok {
			return proto.SentinelUnknown
		}
		return env.reparentElement(d, el.First())
	}).Export("first")

	b.NewFunctionBuilder().WithFunc(func(ctx context.Context, d int32) int32 {
		el, ok := env.element(d)
		if !ok {
			return proto.SentinelUnknown
		}
		return env.reparentElement(d, el.Last())
	}).Export("last")

	b.NewFunctionBuilder().WithFunc(func(ctx context.Context, d int32, idx int32) int32 {
		el, ok := env.element(d)
		if !ok {
			return proto.SentinelUnknown
		}
		return env.reparentElement(d, el.At(int(idx)))
	}).Export("get")

	b.NewFunctionBuilder().WithFunc(func(ctx context.Context, d int32) int32 {
		el, ok := env.element(d)
		if !ok {
			return 0
		}
		return int32(el.Count())
	}).Export("array_size")

	// Navigation allocates fresh handles; each new descriptor takes its
	// own document reference.
	nav := func(derive func(*html.Element) *html.Element) func(context.Context, int32) int32 {
		return func(ctx context.Context, d int32) int32 {
			el, ok := env.element(d)
			if !ok {
				return proto.SentinelUnknown
			}
			return env.storeElement(derive(el))
		}
	}
	b.NewFunctionBuilder().WithFunc(nav((*html.Element).Parent)).Export("parent")
	b.NewFunctionBuilder().WithFunc(nav((*html.Element).Children)).Export("children")
	b.NewFunctionBuilder().WithFunc(nav((*html.Element).Siblings)).Export("siblings")
	b.NewFunctionBuilder().WithFunc(nav((*html.Element).Next)).Export("next")
	b.NewFunctionBuilder().WithFunc(nav((*html.Element).Prev)).Export("previous")

	// String extractors return new string descriptors.
	str := func(get func(*html.Element) string) func(context.Context, int32) int32 {
		return func(ctx context.Context, d int32) int32 {
			el, ok := env.element(d)
			if !ok {
				return proto.SentinelUnknown
			}
			return env.Store.Store(store.StringValue(get(el)))
		}
	}
	b.NewFunctionBuilder().WithFunc(str((*html.Element).Text)).Export("text")
	b.NewFunctionBuilder().WithFunc(str((*html.Element).OwnText)).Export("own_text")
	b.NewFunctionBuilder().WithFunc(str((*html.Element).InnerHTML)).Export("inner_html")
	b.NewFunctionBuilder().WithFunc(str((*html.Element).OuterHTML)).Export("outer_html")
	b.NewFunctionBuilder().WithFunc(str((*html.Element).ID)).Export("id")
	b.NewFunctionBuilder().WithFunc(str((*html.Element).TagName)).Export("tag_name")
	b.NewFunctionBuilder().WithFunc(str((*html.Element).ClassName)).Export("class_name")
	b.NewFunctionBuilder().WithFunc(str((*html.Element).BaseURI)).Export("base_uri")

	b.NewFunctionBuilder().WithFunc(func(ctx context.Context, mod api.Module, d int32, kptr, klen uint32) int32 {
		el, ok := env.element(d)
		if !ok {
			return proto.SentinelUnknown
		}
		return env.Store.Store(store.StringValue(el.Attr(env.readString(mod, kptr, klen))))
	}).Export("attr")

	b.NewFunctionBuilder().WithFunc(func(ctx context.Context, mod api.Module, d int32, kptr, klen, vptr, vlen uint32) int32 {
		el, ok := env.element(d)
		if !ok {
			return proto.SentinelUnknown
		}
		el.SetAttr(env.readString(mod, kptr, klen), env.readString(mod, vptr, vlen))
		return 0
	}).Export("set_attr")

	b.NewFunctionBuilder().WithFunc(func(ctx context.Context, mod api.Module, d int32, kptr, klen uint32) int32 {
		el, ok := env.element(d)
		if !ok {
			return proto.SentinelUnknown
		}
		el.RemoveAttr(env.readString(mod, kptr, klen))
		return 0
	}).Export("remove_attr")

	b.NewFunctionBuilder().WithFunc(func(ctx context.Context, mod api.Module, d int32, cptr, clen uint32) int32 {
		el, ok := env.element(d)
		if !ok {
			return 0
		}
		if el.HasClass(env.readString(mod, cptr, clen)) {
			return 1
		}
		return 0
	}).Export("has_class")

	b.NewFunctionBuilder().WithFunc(func(ctx context.Context, mod api.Module, d int32, aptr, alen uint32) int32 {
		el, ok := env.element(d)
		if !ok {
			return 0
		}
		if el.HasAttr(env.readString(mod, aptr, alen)) {
			return 1
		}
		return 0
	}).Export("has_attr")

	// Mutations keep the caller's descriptor valid across the rebuild.
	mut := func(apply func(*html.Element, string)) func(context.Context, api.Module, int32, uint32, uint32) int32 {
		return func(ctx context.Context, mod api.Module, d int32, ptr, length uint32) int32 {
			el, ok := env.element(d)
			if !ok {
				return proto.SentinelUnknown
			}
			apply(el, env.readString(mod, ptr, length))
			env.dropBuffer(d)
			return 0
		}
	}
	b.NewFunctionBuilder().WithFunc(mut((*html.Element).SetText)).Export("set_text")
	b.NewFunctionBuilder().WithFunc(mut((*html.Element).SetHTML)).Export("set_html")
	b.NewFunctionBuilder().WithFunc(mut((*html.Element).Prepend)).Export("prepend")
	b.NewFunctionBuilder().WithFunc(mut((*html.Element).Append)).Export("append")

	b.NewFunctionBuilder().WithFunc(func(ctx context.Context, mod api.Module, ptr, length uint32) int32 {
		return env.Store.Store(store.StringValue(html.Escape(env.readString(mod, ptr, length))))
	}).Export("escape")

	b.NewFunctionBuilder().WithFunc(func(ctx context.Context, mod api.Module, ptr, length uint32) int32 {
		return env.Store.Store(store.StringValue(html.Unescape(env.readString(mod, ptr, length))))
	}).Export("unescape")

	_, err := b.Instantiate(ctx)
	return err
}
