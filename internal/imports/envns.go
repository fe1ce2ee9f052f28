package imports

import (
	"context"
	"time"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"
	"go.uber.org/zap"
)

// registerEnv links the env namespace. The next generation additionally
// exposes the partial-result hook.
func registerEnv(ctx context.Context, rt wazero.Runtime, env *Env, next bool) error {
	b := rt.NewHostModuleBuilder("env")

	b.NewFunctionBuilder().WithFunc(func(ctx context.Context, mod api.Module, ptr, length uint32) {
		env.Logger.Info("guest print", zap.String("message", env.readString(mod, ptr, length)))
	}).Export("print")

	// sleep blocks guest execution but stays cancellable through the
	// operation context.
	b.NewFunctionBuilder().WithFunc(func(ctx context.Context, secs int32) {
		if secs <= 0 {
			return
		}
		opCtx := env.Holder.Current().Ctx
		timer := time.NewTimer(time.Duration(secs) * time.Second)
		defer timer.Stop()
		select {
		case <-timer.C:
		case <-opCtx.Done():
		}
	}).Export("sleep")

	b.NewFunctionBuilder().WithFunc(func(ctx context.Context) {
		env.aborted = true
		panic(abortPanic{})
	}).Export("abort")

	if next {
		b.NewFunctionBuilder().WithFunc(func(ctx context.Context, d int32) {
			v, ok := env.Store.Get(d)
			if !ok {
				return
			}
			if env.OnPartialResult != nil {
				env.OnPartialResult(v)
			}
		}).Export("send_partial_result")
	}

	_, err := b.Instantiate(ctx)
	return err
}
