package imports

import (
	"context"
	"image"
	"image/color"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"
	"go.uber.org/zap"

	"github.com/tachibana-shin/rakuyomi-sub000/internal/canvas"
	"github.com/tachibana-shin/rakuyomi-sub000/internal/imaging"
	"github.com/tachibana-shin/rakuyomi-sub000/internal/proto"
	"github.com/tachibana-shin/rakuyomi-sub000/internal/request"
	"github.com/tachibana-shin/rakuyomi-sub000/internal/store"
)

// registerCanvas links the canvas and font namespaces.
func registerCanvas(ctx context.Context, rt wazero.Runtime, env *Env) error {
	b := rt.NewHostModuleBuilder("canvas")

	b.NewFunctionBuilder().WithFunc(func(ctx context.Context, w, h int32) int32 {
		if w <= 0 || h <= 0 {
			return proto.SentinelUnknown
		}
		return env.Store.Store(store.CanvasValue(canvas.NewContext(int(w), int(h))))
	}).Export("new_context")

	b.NewFunctionBuilder().WithFunc(func(ctx context.Context, d int32, a, bb, c, dd, e, f float64) int32 {
		cv, ok := env.canvasContext(d)
		if !ok {
			return proto.SentinelUnknown
		}
		cv.SetTransform(canvas.Matrix{A: a, B: bb, C: c, D: dd, E: e, F: f})
		return 0
	}).Export("set_transform")

	b.NewFunctionBuilder().WithFunc(func(ctx context.Context, d, img int32, sx, sy, sw, sh, dx, dy, dw, dh float64) int32 {
		cv, ok := env.canvasContext(d)
		if !ok {
			return proto.SentinelUnknown
		}
		src, ok := env.imageValue(img)
		if !ok {
			return proto.SentinelUnknown
		}
		cv.DrawImage(src,
			canvas.Rect{X: sx, Y: sy, W: sw, H: sh},
			canvas.Rect{X: dx, Y: dy, W: dw, H: dh})
		return 0
	}).Export("draw_image")

	b.NewFunctionBuilder().WithFunc(func(ctx context.Context, d, path int32, rgba uint32) int32 {
		cv, ok := env.canvasContext(d)
		if !ok {
			return proto.SentinelUnknown
		}
		p, ok := env.pathValue(path)
		if !ok {
			return proto.SentinelUnknown
		}
		cv.FillPath(p, unpackColor(rgba))
		return 0
	}).Export("fill_path")

	b.NewFunctionBuilder().WithFunc(func(ctx context.Context, d, path int32, rgba uint32, width float64) int32 {
		cv, ok := env.canvasContext(d)
		if !ok {
			return proto.SentinelUnknown
		}
		p, ok := env.pathValue(path)
		if !ok {
			return proto.SentinelUnknown
		}
		cv.StrokePath(p, unpackColor(rgba), width)
		return 0
	}).Export("stroke_path")

	b.NewFunctionBuilder().WithFunc(func(ctx context.Context, mod api.Module, d int32, tptr, tlen uint32, fontD int32, size, x, y float64, rgba uint32) int32 {
		cv, ok := env.canvasContext(d)
		if !ok {
			return proto.SentinelUnknown
		}
		fnt, ok := env.fontValue(fontD)
		if !ok {
			return proto.SentinelUnknown
		}
		cv.DrawText(env.readString(mod, tptr, tlen), fnt, size, x, y, unpackColor(rgba))
		return 0
	}).Export("draw_text")

	// get_image snapshots the raster so later drawing does not mutate
	// the returned descriptor.
	b.NewFunctionBuilder().WithFunc(func(ctx context.Context, d int32) int32 {
		cv, ok := env.canvasContext(d)
		if !ok {
			return proto.SentinelUnknown
		}
		src := cv.Image()
		snap := image.NewRGBA(src.Bounds())
		copy(snap.Pix, src.Pix)
		return env.Store.Store(store.ImageValue(snap))
	}).Export("get_image")

	b.NewFunctionBuilder().WithFunc(func(ctx context.Context) int32 {
		return env.Store.Store(store.PathValue(canvas.NewPath()))
	}).Export("new_path")

	b.NewFunctionBuilder().WithFunc(func(ctx context.Context, d int32, x, y float64) int32 {
		p, ok := env.pathValue(d)
		if !ok {
			return proto.SentinelUnknown
		}
		p.MoveTo(x, y)
		return 0
	}).Export("move_to")

	b.NewFunctionBuilder().WithFunc(func(ctx context.Context, d int32, x, y float64) int32 {
		p, ok := env.pathValue(d)
		if !ok {
			return proto.SentinelUnknown
		}
		p.LineTo(x, y)
		return 0
	}).Export("line_to")

	b.NewFunctionBuilder().WithFunc(func(ctx context.Context, d int32, cx, cy, x, y float64) int32 {
		p, ok := env.pathValue(d)
		if !ok {
			return proto.SentinelUnknown
		}
		p.QuadTo(cx, cy, x, y)
		return 0
	}).Export("quad_to")

	b.NewFunctionBuilder().WithFunc(func(ctx context.Context, d int32, c1x, c1y, c2x, c2y, x, y float64) int32 {
		p, ok := env.pathValue(d)
		if !ok {
			return proto.SentinelUnknown
		}
		p.CubicTo(c1x, c1y, c2x, c2y, x, y)
		return 0
	}).Export("cubic_to")

	b.NewFunctionBuilder().WithFunc(func(ctx context.Context, d int32) int32 {
		p, ok := env.pathValue(d)
		if !ok {
			return proto.SentinelUnknown
		}
		p.Close()
		return 0
	}).Export("close_path")

	b.NewFunctionBuilder().WithFunc(func(ctx context.Context, d int32) int32 {
		img, ok := env.imageValue(d)
		if !ok {
			return proto.SentinelUnknown
		}
		return int32(img.Bounds().Dx())
	}).Export("get_image_width")

	b.NewFunctionBuilder().WithFunc(func(ctx context.Context, d int32) int32 {
		img, ok := env.imageValue(d)
		if !ok {
			return proto.SentinelUnknown
		}
		return int32(img.Bounds().Dy())
	}).Export("get_image_height")

	b.NewFunctionBuilder().WithFunc(func(ctx context.Context, d int32) int32 {
		img, ok := env.imageValue(d)
		if !ok {
			return proto.SentinelUnknown
		}
		data, err := imaging.EncodePNG(img)
		if err != nil {
			env.Logger.Warn("image encode failed", zap.Error(err))
			return proto.SentinelUnknown
		}
		return env.Store.Store(store.BytesValue(data))
	}).Export("get_image_data")

	if _, err := b.Instantiate(ctx); err != nil {
		return err
	}
	return registerFont(ctx, rt, env)
}

func registerFont(ctx context.Context, rt wazero.Runtime, env *Env) error {
	b := rt.NewHostModuleBuilder("font")

	b.NewFunctionBuilder().WithFunc(func(ctx context.Context, mod api.Module, nptr, nlen uint32, weight int32) int32 {
		family := env.readString(mod, nptr, nlen)
		fnt, err := canvas.SystemFont(family, int(weight))
		if err != nil {
			env.Logger.Debug("system font lookup failed",
				zap.String("family", family), zap.Error(err))
			return proto.SentinelUnknown
		}
		return env.Store.Store(store.FontValue(fnt))
	}).Export("system_font")

	// load_font fetches the font through the shared request client so
	// the host-wide user agent and timeouts apply.
	b.NewFunctionBuilder().WithFunc(func(ctx context.Context, mod api.Module, uptr, ulen uint32) int32 {
		url := env.readString(mod, uptr, ulen)
		st := request.NewState()
		st.SetMethod("GET")
		st.SetURL(url)
		if err := env.Client.Send(env.Holder.Current().Ctx, st); err != nil {
			env.Logger.Debug("font fetch failed", zap.String("url", url), zap.Error(err))
			return proto.SentinelUnknown
		}
		fnt, err := canvas.LoadFont(st.Data)
		if err != nil {
			env.Logger.Debug("font parse failed", zap.String("url", url), zap.Error(err))
			return proto.SentinelUnknown
		}
		return env.Store.Store(store.FontValue(fnt))
	}).Export("load_font")

	_, err := b.Instantiate(ctx)
	return err
}

// canvasContext resolves a canvas descriptor.
func (e *Env) canvasContext(d store.Descriptor) (*canvas.Context, bool) {
	v, ok := e.Store.Get(d)
	if !ok || v.Kind != store.KindCanvas || v.Canvas == nil {
		return nil, false
	}
	return v.Canvas, true
}

// pathValue resolves a path descriptor.
func (e *Env) pathValue(d store.Descriptor) (*canvas.Path, bool) {
	v, ok := e.Store.Get(d)
	if !ok || v.Kind != store.KindPath || v.Path == nil {
		return nil, false
	}
	return v.Path, true
}

// fontValue resolves a font descriptor.
func (e *Env) fontValue(d store.Descriptor) (*canvas.Font, bool) {
	v, ok := e.Store.Get(d)
	if !ok || v.Kind != store.KindFont || v.Font == nil {
		return nil, false
	}
	return v.Font, true
}

// imageValue resolves an image descriptor.
func (e *Env) imageValue(d store.Descriptor) (*image.RGBA, bool) {
	v, ok := e.Store.Get(d)
	if !ok || v.Kind != store.KindImage || v.Image == nil {
		return nil, false
	}
	return v.Image, true
}

// unpackColor splits a packed 0xRRGGBBAA value.
func unpackColor(rgba uint32) color.Color {
	return color.RGBA{
		R: uint8(rgba >> 24),
		G: uint8(rgba >> 16),
		B: uint8(rgba >> 8),
		A: uint8(rgba),
	}
}
