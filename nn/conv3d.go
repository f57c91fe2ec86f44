package nn

import (
	"context"
	"runtime"

	"golang.org/x/sync/errgroup"

	"github.com/BaSui01/videoflow/internal/pool"
	"github.com/BaSui01/videoflow/tensor"
	"github.com/BaSui01/videoflow/types"
)

// tileElements 单个 im2col 分块允许的最大元素数
const tileElements = 1 << 22

// Conv3D 步长为 1、SAME 填充的三维卷积。
// 输入布局 (batch, depth, height, width, channels)，
// 权重布局 (kd, kh, kw, in_channels, out_channels)。
type Conv3D struct {
	Weight  *Parameter
	Bias    *Parameter
	Workers int
}

// NewConv3D 创建卷积层并校验权重与偏置形状
func NewConv3D(weight, bias *Parameter) (*Conv3D, error) {
	if weight.Value.Rank() != 5 {
		return nil, types.NewShapeError("conv3d weight %s must be rank 5, got %s", weight.Name, weight.Value)
	}
	cout := weight.Value.Dim(4)
	if !bias.Value.HasShape(cout) {
		return nil, types.NewShapeError("conv3d bias %s must have shape [%d], got %s", bias.Name, cout, bias.Value)
	}
	return &Conv3D{Weight: weight, Bias: bias}, nil
}

func (c *Conv3D) workers() int {
	if c.Workers > 0 {
		return c.Workers
	}
	return runtime.GOMAXPROCS(0)
}

// convGeometry 一次卷积调用的尺寸信息
type convGeometry struct {
	batch, depth, height, width int
	cin, cout                   int
	kd, kh, kw                  int
	pd, ph, pw                  int
	k, positions                int
}

func (c *Conv3D) geometry(x *tensor.Tensor) (convGeometry, error) {
	w := c.Weight.Value
	if x.Rank() != 5 {
		return convGeometry{}, types.NewShapeError("conv3d %s expects rank-5 input, got %s", c.Weight.Name, x)
	}
	if x.Dim(4) != w.Dim(3) {
		return convGeometry{}, types.NewShapeError("conv3d %s expects %d input channels, got %s",
			c.Weight.Name, w.Dim(3), x)
	}
	g := convGeometry{
		batch: x.Dim(0), depth: x.Dim(1), height: x.Dim(2), width: x.Dim(3),
		cin: w.Dim(3), cout: w.Dim(4),
		kd: w.Dim(0), kh: w.Dim(1), kw: w.Dim(2),
	}
	g.pd, g.ph, g.pw = (g.kd-1)/2, (g.kh-1)/2, (g.kw-1)/2
	g.k = g.kd * g.kh * g.kw * g.cin
	g.positions = g.depth * g.height * g.width
	return g, nil
}

func (g convGeometry) tileRows() int {
	rows := tileElements / g.k
	if rows < 1 {
		rows = 1
	}
	if rows > g.positions {
		rows = g.positions
	}
	return rows
}

// im2col 将批内第 b 个样本的输出位置 [r0, r1) 展开为 (r1-r0, k) 矩阵
func (g convGeometry) im2col(x []float64, b, r0, r1 int, cols []float64) {
	plane := g.height * g.width
	for row := r0; row < r1; row++ {
		d, rem := row/plane, row%plane
		h, w := rem/g.width, rem%g.width
		dst := cols[(row-r0)*g.k : (row-r0+1)*g.k]
		off := 0
		for a := 0; a < g.kd; a++ {
			id := d + a - g.pd
			for bb := 0; bb < g.kh; bb++ {
				ih := h + bb - g.ph
				for cc := 0; cc < g.kw; cc++ {
					iw := w + cc - g.pw
					seg := dst[off : off+g.cin]
					off += g.cin
					if id < 0 || id >= g.depth || ih < 0 || ih >= g.height || iw < 0 || iw >= g.width {
						clear(seg)
						continue
					}
					src := (((b*g.depth+id)*g.height+ih)*g.width + iw) * g.cin
					copy(seg, x[src:src+g.cin])
				}
			}
		}
	}
}

// col2im 是 im2col 的伴随操作，将列梯度累加回输入梯度
func (g convGeometry) col2im(dcols []float64, b, r0, r1 int, dx []float64) {
	plane := g.height * g.width
	for row := r0; row < r1; row++ {
		d, rem := row/plane, row%plane
		h, w := rem/g.width, rem%g.width
		src := dcols[(row-r0)*g.k : (row-r0+1)*g.k]
		off := 0
		for a := 0; a < g.kd; a++ {
			id := d + a - g.pd
			for bb := 0; bb < g.kh; bb++ {
				ih := h + bb - g.ph
				for cc := 0; cc < g.kw; cc++ {
					iw := w + cc - g.pw
					seg := src[off : off+g.cin]
					off += g.cin
					if id < 0 || id >= g.depth || ih < 0 || ih >= g.height || iw < 0 || iw >= g.width {
						continue
					}
					dst := dx[(((b*g.depth+id)*g.height+ih)*g.width+iw)*g.cin:]
					for ci, v := range seg {
						dst[ci] += v
					}
				}
			}
		}
	}
}

// Forward 计算 conv(x, W) + b，批内样本并行
func (c *Conv3D) Forward(ctx context.Context, x *tensor.Tensor) (*tensor.Tensor, error) {
	g, err := c.geometry(x)
	if err != nil {
		return nil, err
	}

	out := tensor.New(g.batch, g.depth, g.height, g.width, g.cout)
	xd, od := x.Data(), out.Data()
	wm := general(g.k, g.cout, c.Weight.Value.Data())
	bias := c.Bias.Value.Data()
	rows := g.tileRows()

	eg, ctx := errgroup.WithContext(ctx)
	eg.SetLimit(c.workers())
	for b := 0; b < g.batch; b++ {
		b := b
		eg.Go(func() error {
			cols := pool.Float64.Get(rows * g.k)
			defer pool.Float64.Put(cols)

			for r0 := 0; r0 < g.positions; r0 += rows {
				if err := ctx.Err(); err != nil {
					return err
				}
				r1 := min(r0+rows, g.positions)
				n := r1 - r0
				g.im2col(xd, b, r0, r1, cols[:n*g.k])
				dst := od[(b*g.positions+r0)*g.cout : (b*g.positions+r1)*g.cout]
				gemm(false, false, 1, general(n, g.k, cols[:n*g.k]), wm, 0, general(n, g.cout, dst))
				addRowVector(dst, n, g.cout, bias)
			}
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

// Backward 给定前向输入 x 与输出梯度 dy，累加权重与偏置梯度并返回 dx。
// 输入梯度按样本并行计算；参数梯度按固定顺序累加，结果与调度无关。
func (c *Conv3D) Backward(ctx context.Context, x, dy *tensor.Tensor) (*tensor.Tensor, error) {
	g, err := c.geometry(x)
	if err != nil {
		return nil, err
	}
	if !dy.HasShape(g.batch, g.depth, g.height, g.width, g.cout) {
		return nil, types.NewShapeError("conv3d %s gradient shape %s does not match output", c.Weight.Name, dy)
	}

	dx := tensor.New(x.Shape()...)
	xd, dyd, dxd := x.Data(), dy.Data(), dx.Data()
	wm := general(g.k, g.cout, c.Weight.Value.Data())
	rows := g.tileRows()

	eg, egCtx := errgroup.WithContext(ctx)
	eg.SetLimit(c.workers())
	for b := 0; b < g.batch; b++ {
		b := b
		eg.Go(func() error {
			dcols := pool.Float64.Get(rows * g.k)
			defer pool.Float64.Put(dcols)

			for r0 := 0; r0 < g.positions; r0 += rows {
				if err := egCtx.Err(); err != nil {
					return err
				}
				r1 := min(r0+rows, g.positions)
				n := r1 - r0
				src := dyd[(b*g.positions+r0)*g.cout : (b*g.positions+r1)*g.cout]
				gemm(false, true, 1, general(n, g.cout, src), wm, 0, general(n, g.k, dcols[:n*g.k]))
				g.col2im(dcols[:n*g.k], b, r0, r1, dxd)
			}
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, err
	}

	dw := general(g.k, g.cout, c.Weight.Grad.Data())
	db := c.Bias.Grad.Data()
	cols := pool.Float64.Get(rows * g.k)
	defer pool.Float64.Put(cols)
	for b := 0; b < g.batch; b++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		for r0 := 0; r0 < g.positions; r0 += rows {
			r1 := min(r0+rows, g.positions)
			n := r1 - r0
			g.im2col(xd, b, r0, r1, cols[:n*g.k])
			src := dyd[(b*g.positions+r0)*g.cout : (b*g.positions+r1)*g.cout]
			gemm(true, false, 1, general(n, g.k, cols[:n*g.k]), general(n, g.cout, src), 1, dw)
			accumulateColumnSums(db, src, n, g.cout)
		}
	}
	return dx, nil
}
