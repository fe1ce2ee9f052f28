package imports

import (
	"context"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"
	"go.uber.org/zap"

	"github.com/tachibana-shin/rakuyomi-sub000/internal/proto"
	"github.com/tachibana-shin/rakuyomi-sub000/internal/settings"
	"github.com/tachibana-shin/rakuyomi-sub000/internal/store"
)

// registerDefaults links the defaults namespace backed by the settings
// collaborator. Unset keys resolve through the schema defaults inside
// the store itself.
func registerDefaults(ctx context.Context, rt wazero.Runtime, env *Env) error {
	b := rt.NewHostModuleBuilder("defaults")

	b.NewFunctionBuilder().WithFunc(func(ctx context.Context, mod api.Module, kptr, klen uint32) int32 {
		key := env.readString(mod, kptr, klen)
		return env.Store.Store(settingToValue(env.Settings.Get(key)))
	}).Export("get")

	b.NewFunctionBuilder().WithFunc(func(ctx context.Context, mod api.Module, kptr, klen uint32, kind int32, value int32) int32 {
		key := env.readString(mod, kptr, klen)
		v, ok := env.Store.Get(value)
		if !ok && settings.Kind(kind) != settings.KindNull {
			return proto.SentinelUnknown
		}
		sv, ok := valueToSetting(settings.Kind(kind), v)
		if !ok {
			return proto.SentinelUnknown
		}
		env.Settings.Set(key, sv)
		if err := env.Settings.Save(); err != nil {
			env.Logger.Warn("settings save failed", zap.String("key", key), zap.Error(err))
		}
		return 0
	}).Export("set")

	_, err := b.Instantiate(ctx)
	return err
}

// settingToValue lifts a persisted setting into a store value.
func settingToValue(v settings.Value) store.Value {
	switch v.Kind {
	case settings.KindBytes:
		return store.BytesValue(v.Bytes)
	case settings.KindBool:
		return store.BoolValue(v.Bool)
	case settings.KindInt:
		return store.IntValue(v.Int)
	case settings.KindFloat:
		return store.FloatValue(v.Float)
	case settings.KindString:
		return store.StringValue(v.String)
	case settings.KindStringList:
		items := make([]store.Value, len(v.StringList))
		for i, s := range v.StringList {
			items[i] = store.StringValue(s)
		}
		return store.ListValue(items)
	default:
		return store.Null()
	}
}

// valueToSetting lowers a store value into the requested setting kind.
// The second return is false when the value cannot represent the kind.
func valueToSetting(kind settings.Kind, v store.Value) (settings.Value, bool) {
	switch kind {
	case settings.KindNull:
		return settings.Null(), true
	case settings.KindBytes:
		return settings.Value{Kind: kind, Bytes: v.StringBytes()}, true
	case settings.KindBool:
		switch v.Kind {
		case store.KindBool:
			return settings.Value{Kind: kind, Bool: v.Bool}, true
		case store.KindInt:
			return settings.Value{Kind: kind, Bool: v.Int != 0}, true
		}
	case settings.KindInt:
		switch v.Kind {
		case store.KindInt:
			return settings.Value{Kind: kind, Int: v.Int}, true
		case store.KindFloat:
			return settings.Value{Kind: kind, Int: int64(v.Float)}, true
		case store.KindBool:
			n := int64(0)
			if v.Bool {
				n = 1
			}
			return settings.Value{Kind: kind, Int: n}, true
		}
	case settings.KindFloat:
		switch v.Kind {
		case store.KindFloat:
			return settings.Value{Kind: kind, Float: v.Float}, true
		case store.KindInt:
			return settings.Value{Kind: kind, Float: float64(v.Int)}, true
		}
	case settings.KindString:
		if v.Kind == store.KindString || v.Kind == store.KindBytes {
			return settings.Value{Kind: kind, String: string(v.StringBytes())}, true
		}
	case settings.KindStringList:
		if v.Kind != store.KindList {
			break
		}
		items := make([]string, 0, len(v.List))
		for _, it := range v.List {
			if it.Kind != store.KindString {
				return settings.Value{}, false
			}
			items = append(items, it.Str)
		}
		return settings.Value{Kind: kind, StringList: items}, true
	}
	return settings.Value{}, false
}
