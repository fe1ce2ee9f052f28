package imports

import (
	"context"
	"time"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"
	"go.uber.org/zap"

	"github.com/tachibana-shin/rakuyomi-sub000/internal/html"
	"github.com/tachibana-shin/rakuyomi-sub000/internal/imaging"
	"github.com/tachibana-shin/rakuyomi-sub000/internal/proto"
	"github.com/tachibana-shin/rakuyomi-sub000/internal/request"
	"github.com/tachibana-shin/rakuyomi-sub000/internal/store"
)

// Method tags shared with guest SDKs.
var methodNames = []string{"GET", "POST", "HEAD", "PUT", "DELETE"}

func methodName(tag int32) string {
	if tag >= 0 && int(tag) < len(methodNames) {
		return methodNames[tag]
	}
	return "GET"
}

// registerNet links the request-lifecycle namespace. Request descriptors
// index the per-instance append-only request table, a space separate
// from the value store.
func registerNet(ctx context.Context, rt wazero.Runtime, env *Env) error {
	b := rt.NewHostModuleBuilder("net")

	b.NewFunctionBuilder().WithFunc(func(ctx context.Context, method int32) int32 {
		idx := env.Requests.Add()
		env.Requests.Get(idx).SetMethod(methodName(method))
		return int32(idx)
	}).Export("init")

	b.NewFunctionBuilder().WithFunc(func(ctx context.Context, mod api.Module, rd int32, ptr, length uint32) {
		if s := env.Requests.Get(int(rd)); s != nil {
			s.SetURL(env.readString(mod, ptr, length))
		}
	}).Export("set_url")

	b.NewFunctionBuilder().WithFunc(func(ctx context.Context, rd int32, method int32) {
		if s := env.Requests.Get(int(rd)); s != nil {
			s.SetMethod(methodName(method))
		}
	}).Export("set_method")

	b.NewFunctionBuilder().WithFunc(func(ctx context.Context, mod api.Module, rd int32, kptr, klen, vptr, vlen uint32) {
		if s := env.Requests.Get(int(rd)); s != nil {
			s.SetHeader(env.readString(mod, kptr, klen), env.readString(mod, vptr, vlen))
		}
	}).Export("set_header")

	b.NewFunctionBuilder().WithFunc(func(ctx context.Context, mod api.Module, rd int32, ptr, length uint32) {
		if s := env.Requests.Get(int(rd)); s != nil {
			s.SetBody(env.readBytes(mod, ptr, length))
		}
	}).Export("set_body")

	b.NewFunctionBuilder().WithFunc(func(ctx context.Context, rd int32) int32 {
		s := env.Requests.Get(int(rd))
		if s == nil {
			return proto.SentinelUnknown
		}
		if err := env.Client.Send(env.Holder.Current().Ctx, s); err != nil {
			env.Logger.Debug("request send failed", zap.Error(err))
			return proto.SentinelRequestError
		}
		return 0
	}).Export("send")

	// send_all reads an i32 descriptor array out of guest memory and
	// sends the batch through the connectivity-probed path.
	b.NewFunctionBuilder().WithFunc(func(ctx context.Context, mod api.Module, ptr uint32, count int32) int32 {
		if count <= 0 {
			return 0
		}
		batch := make([]*request.State, 0, count)
		for i := int32(0); i < count; i++ {
			rd, ok := mod.Memory().ReadUint32Le(ptr + uint32(i)*4)
			if !ok {
				return proto.SentinelUnknown
			}
			s := env.Requests.Get(int(int32(rd)))
			if s == nil {
				return proto.SentinelUnknown
			}
			batch = append(batch, s)
		}
		if _, err := env.Client.SendAll(env.Holder.Current().Ctx, batch); err != nil {
			env.Logger.Debug("batch aborted", zap.Error(err))
			return proto.SentinelRequestError
		}
		return 0
	}).Export("send_all")

	b.NewFunctionBuilder().WithFunc(func(ctx context.Context, rd int32) int32 {
		s := env.Requests.Get(int(rd))
		if s == nil {
			return 0
		}
		return int32(s.DataLen())
	}).Export("data_len")

	b.NewFunctionBuilder().WithFunc(func(ctx context.Context, mod api.Module, rd int32, ptr, size uint32) int32 {
		s := env.Requests.Get(int(rd))
		if s == nil || size == 0 {
			return 0
		}
		chunk := make([]byte, size)
		n := s.ReadData(chunk)
		if n == 0 {
			return 0
		}
		if !mod.Memory().Write(ptr, chunk[:n]) {
			return proto.SentinelUnknown
		}
		return int32(n)
	}).Export("read_data")

	b.NewFunctionBuilder().WithFunc(func(ctx context.Context, rd int32) int32 {
		s := env.Requests.Get(int(rd))
		if s == nil {
			return proto.SentinelUnknown
		}
		return int32(s.Status)
	}).Export("get_status")

	b.NewFunctionBuilder().WithFunc(func(ctx context.Context, mod api.Module, rd int32, kptr, klen uint32) int32 {
		s := env.Requests.Get(int(rd))
		if s == nil {
			return proto.SentinelUnknown
		}
		v := s.Header(env.readString(mod, kptr, klen))
		return env.Store.Store(store.StringValue(v))
	}).Export("get_header")

	// get_image decodes the unread response body into an image handle.
	b.NewFunctionBuilder().WithFunc(func(ctx context.Context, rd int32) int32 {
		s := env.Requests.Get(int(rd))
		if s == nil {
			return proto.SentinelUnknown
		}
		body := make([]byte, s.DataLen())
		s.ReadData(body)
		img, err := imaging.Decode(body)
		if err != nil {
			env.Logger.Debug("response image decode failed", zap.Error(err))
			return proto.SentinelUnknown
		}
		return env.Store.Store(store.ImageValue(img))
	}).Export("get_image")

	// html parses the unread response body with the response URL as base.
	b.NewFunctionBuilder().WithFunc(func(ctx context.Context, rd int32) int32 {
		s := env.Requests.Get(int(rd))
		if s == nil {
			return proto.SentinelUnknown
		}
		body := make([]byte, s.DataLen())
		s.ReadData(body)
		el, err := html.Parse(body, s.RespURL)
		if err != nil {
			env.Logger.Debug("response html parse failed", zap.Error(err))
			return proto.SentinelUnknown
		}
		return env.Store.Store(store.ElementValue(el))
	}).Export("html")

	b.NewFunctionBuilder().WithFunc(func(ctx context.Context, rd int32) {
		env.Requests.Close(int(rd))
	}).Export("close")

	// Rate-limit registration point, reserved for future enforcement.
	b.NewFunctionBuilder().WithFunc(func(ctx context.Context, rd int32, permits int32, periodSecs int32) {
		if s := env.Requests.Get(int(rd)); s != nil {
			s.SetRateLimit(int(permits), time.Duration(periodSecs)*time.Second)
		}
	}).Export("set_rate_limit")

	_, err := b.Instantiate(ctx)
	return err
}
