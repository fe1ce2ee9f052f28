package imports

import (
	"context"

	"github.com/tetratelabs/wazero"

	"github.com/tachibana-shin/rakuyomi-sub000/internal/proto"
)

// registerJS links the js namespace. No embedded JavaScript engine is
// wired in, so every function reports the unimplemented sentinel and
// extensions fall back to their non-JS code paths.
func registerJS(ctx context.Context, rt wazero.Runtime, env *Env) error {
	b := rt.NewHostModuleBuilder("js")

	unimplemented := func(ctx context.Context, args ...int32) int32 {
		return proto.SentinelUnimplemented
	}

	b.NewFunctionBuilder().WithFunc(func(ctx context.Context) int32 {
		return unimplemented(ctx)
	}).Export("context_create")

	b.NewFunctionBuilder().WithFunc(func(ctx context.Context, d int32, ptr, length uint32) int32 {
		return unimplemented(ctx, d)
	}).Export("context_eval")

	b.NewFunctionBuilder().WithFunc(func(ctx context.Context, d int32, ptr, length uint32) int32 {
		return unimplemented(ctx, d)
	}).Export("context_get")

	b.NewFunctionBuilder().WithFunc(func(ctx context.Context, d int32) int32 {
		return unimplemented(ctx, d)
	}).Export("garbage")

	_, err := b.Instantiate(ctx)
	return err
}
