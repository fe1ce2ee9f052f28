package canvas

import (
	"image"
	"image/color"

	"github.com/fogleman/gg"
	xdraw "golang.org/x/image/draw"
	"golang.org/x/image/math/f64"
)

// Matrix is a 2D affine transform in the conventional
// [a c e; b d f] column order.
type Matrix struct {
	A, B, C, D, E, F float64
}

// Identity returns the identity transform.
func Identity() Matrix { return Matrix{A: 1, D: 1} }

func (m Matrix) apply(x, y float64) (float64, float64) {
	return m.A*x + m.C*y + m.E, m.B*x + m.D*y + m.F
}

func (m Matrix) aff3() f64.Aff3 {
	return f64.Aff3{m.A, m.C, m.E, m.B, m.D, m.F}
}

// Rect is an axis-aligned rectangle in canvas coordinates.
type Rect struct {
	X, Y, W, H float64
}

// Context is a 2D drawing surface. All drawing honors the current affine
// transform; bitmap copies additionally clip to the destination rectangle.
type Context struct {
	dc     *gg.Context
	matrix Matrix
}

// NewContext creates a transparent drawing surface of the given size.
func NewContext(width, height int) *Context {
	if width < 1 {
		width = 1
	}
	if height < 1 {
		height = 1
	}
	return &Context{dc: gg.NewContext(width, height), matrix: Identity()}
}

// SetTransform replaces the current affine transform.
func (c *Context) SetTransform(m Matrix) { c.matrix = m }

// Transform returns the current affine transform.
func (c *Context) Transform() Matrix { return c.matrix }

// Image returns the surface pixels. gg backs every context with an
// *image.RGBA, so this is the live buffer, not a copy.
func (c *Context) Image() *image.RGBA {
	return c.dc.Image().(*image.RGBA)
}

// DrawImage copies srcRect of src into dstRect, scaling as needed and
// applying the current transform. Pixels landing outside dstRect are
// clipped.
func (c *Context) DrawImage(src image.Image, srcRect, dstRect Rect) {
	sr := image.Rect(int(srcRect.X), int(srcRect.Y), int(srcRect.X+srcRect.W), int(srcRect.Y+srcRect.H))
	if sr.Empty() || dstRect.W <= 0 || dstRect.H <= 0 {
		return
	}

	// Compose scale-to-destination with the canvas transform.
	sx := dstRect.W / float64(sr.Dx())
	sy := dstRect.H / float64(sr.Dy())
	place := Matrix{A: sx, D: sy, E: dstRect.X - float64(sr.Min.X)*sx, F: dstRect.Y - float64(sr.Min.Y)*sy}
	m := mul(c.matrix, place)

	// Clip to the transformed destination rectangle by drawing through a
	// shared-pixels subimage.
	dst := c.Image()
	x0, y0 := c.matrix.apply(dstRect.X, dstRect.Y)
	x1, y1 := c.matrix.apply(dstRect.X+dstRect.W, dstRect.Y+dstRect.H)
	clip := image.Rect(int(min(x0, x1)), int(min(y0, y1)), int(max(x0, x1)+0.5), int(max(y0, y1)+0.5))
	clip = clip.Intersect(dst.Bounds())
	if clip.Empty() {
		return
	}
	target := dst.SubImage(clip).(*image.RGBA)

	xdraw.ApproxBiLinear.Transform(target, m.aff3(), src, sr, xdraw.Over, nil)
}

// FillPath fills a path with a solid color under the current transform.
func (c *Context) FillPath(p *Path, col color.Color) {
	c.tracePath(p)
	c.dc.SetColor(col)
	c.dc.Fill()
}

// StrokePath strokes a path with a solid color under the current transform.
func (c *Context) StrokePath(p *Path, col color.Color, width float64) {
	c.tracePath(p)
	c.dc.SetColor(col)
	c.dc.SetLineWidth(width)
	c.dc.Stroke()
}

// DrawText draws a string with its baseline origin at (x, y).
func (c *Context) DrawText(s string, fnt *Font, size float64, x, y float64, col color.Color) {
	if fnt == nil || s == "" {
		return
	}
	c.dc.SetFontFace(fnt.Face(size))
	c.dc.SetColor(col)
	tx, ty := c.matrix.apply(x, y)
	c.dc.DrawString(s, tx, ty)
}

func (c *Context) tracePath(p *Path) {
	c.dc.ClearPath()
	for _, cmd := range p.cmds {
		switch cmd.op {
		case opMove:
			x, y := c.matrix.apply(cmd.pts[0], cmd.pts[1])
			c.dc.MoveTo(x, y)
		case opLine:
			x, y := c.matrix.apply(cmd.pts[0], cmd.pts[1])
			c.dc.LineTo(x, y)
		case opQuad:
			cx, cy := c.matrix.apply(cmd.pts[0], cmd.pts[1])
			x, y := c.matrix.apply(cmd.pts[2], cmd.pts[3])
			c.dc.QuadraticTo(cx, cy, x, y)
		case opCubic:
			c1x, c1y := c.matrix.apply(cmd.pts[0], cmd.pts[1])
			c2x, c2y := c.matrix.apply(cmd.pts[2], cmd.pts[3])
			x, y := c.matrix.apply(cmd.pts[4], cmd.pts[5])
			c.dc.CubicTo(c1x, c1y, c2x, c2y, x, y)
		case opClose:
			c.dc.ClosePath()
		}
	}
}

func mul(m, n Matrix) Matrix {
	return Matrix{
		A: m.A*n.A + m.C*n.B,
		B: m.B*n.A + m.D*n.B,
		C: m.A*n.C + m.C*n.D,
		D: m.B*n.C + m.D*n.D,
		E: m.A*n.E + m.C*n.F + m.E,
		F: m.B*n.E + m.D*n.F + m.F,
	}
}

type pathOp uint8

const (
	opMove pathOp = iota
	opLine
	opQuad
	opCubic
	opClose
)

type pathCmd struct {
	op  pathOp
	pts [6]float64
}

// Path is a vector path built from guest-supplied commands.
type Path struct {
	cmds []pathCmd
}

// NewPath returns an empty path.
func NewPath() *Path { return &Path{} }

func (p *Path) MoveTo(x, y float64) {
	p.cmds = append(p.cmds, pathCmd{op: opMove, pts: [6]float64{x, y}})
}

func (p *Path) LineTo(x, y float64) {
	p.cmds = append(p.cmds, pathCmd{op: opLine, pts: [6]float64{x, y}})
}

func (p *Path) QuadTo(cx, cy, x, y float64) {
	p.cmds = append(p.cmds, pathCmd{op: opQuad, pts: [6]float64{cx, cy, x, y}})
}

func (p *Path) CubicTo(c1x, c1y, c2x, c2y, x, y float64) {
	p.cmds = append(p.cmds, pathCmd{op: opCubic, pts: [6]float64{c1x, c1y, c2x, c2y, x, y}})
}

func (p *Path) Close() {
	p.cmds = append(p.cmds, pathCmd{op: opClose})
}

// Len returns the number of recorded commands.
func (p *Path) Len() int { return len(p.cmds) }
