package nn

import (
	"math"

	"github.com/BaSui01/videoflow/tensor"
	"github.com/BaSui01/videoflow/types"
)

// MaxPool3D 步长等于窗口的三维最大池化，SAME 填充。
// 输出尺寸为 ceil(in / k)，填充在两侧对半分配（多余的一格放在后侧）。
type MaxPool3D struct {
	Depth, Height, Width int
}

// PoolTrace 记录前向最大值位置，供反向使用
type PoolTrace struct {
	inShape []int
	argmax  []int
}

// samePadding 返回 SAME 池化的输出长度与前侧填充
func samePadding(in, k int) (out, before int) {
	out = (in + k - 1) / k
	total := out*k - in
	if total < 0 {
		total = 0
	}
	return out, total / 2
}

// OutputShape 计算输出形状
func (p MaxPool3D) OutputShape(in []int) []int {
	od, _ := samePadding(in[1], p.Depth)
	oh, _ := samePadding(in[2], p.Height)
	ow, _ := samePadding(in[3], p.Width)
	return []int{in[0], od, oh, ow, in[4]}
}

// Forward 计算最大池化
func (p MaxPool3D) Forward(x *tensor.Tensor) (*tensor.Tensor, *PoolTrace, error) {
	if x.Rank() != 5 {
		return nil, nil, types.NewShapeError("max_pool3d expects rank-5 input, got %s", x)
	}
	if p.Depth <= 0 || p.Height <= 0 || p.Width <= 0 {
		return nil, nil, types.NewConfigError("max_pool3d window [%d,%d,%d] must be positive", p.Depth, p.Height, p.Width)
	}
	B, D, H, W, C := x.Dim(0), x.Dim(1), x.Dim(2), x.Dim(3), x.Dim(4)
	od, pd := samePadding(D, p.Depth)
	oh, ph := samePadding(H, p.Height)
	ow, pw := samePadding(W, p.Width)

	out := tensor.New(B, od, oh, ow, C)
	trace := &PoolTrace{inShape: x.Shape(), argmax: make([]int, out.Len())}
	xd, yd := x.Data(), out.Data()

	o := 0
	for b := 0; b < B; b++ {
		for d := 0; d < od; d++ {
			d0, d1 := max(d*p.Depth-pd, 0), min(d*p.Depth-pd+p.Depth, D)
			for h := 0; h < oh; h++ {
				h0, h1 := max(h*p.Height-ph, 0), min(h*p.Height-ph+p.Height, H)
				for w := 0; w < ow; w++ {
					w0, w1 := max(w*p.Width-pw, 0), min(w*p.Width-pw+p.Width, W)
					for c := 0; c < C; c++ {
						best, bestIdx := math.Inf(-1), -1
						for id := d0; id < d1; id++ {
							for ih := h0; ih < h1; ih++ {
								for iw := w0; iw < w1; iw++ {
									idx := (((b*D+id)*H+ih)*W+iw)*C + c
									if xd[idx] > best || bestIdx < 0 {
										best, bestIdx = xd[idx], idx
									}
								}
							}
						}
						yd[o] = best
						trace.argmax[o] = bestIdx
						o++
					}
				}
			}
		}
	}
	return out, trace, nil
}

// Backward 将输出梯度路由回最大值所在位置
func (p MaxPool3D) Backward(trace *PoolTrace, dy *tensor.Tensor) (*tensor.Tensor, error) {
	if dy.Len() != len(trace.argmax) {
		return nil, types.NewShapeError("max_pool3d gradient %s does not match forward output", dy)
	}
	dx := tensor.New(trace.inShape...)
	dxd := dx.Data()
	for i, g := range dy.Data() {
		dxd[trace.argmax[i]] += g
	}
	return dx, nil
}
