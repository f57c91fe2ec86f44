// =============================================================================
// 🧮 稠密张量
// =============================================================================
// 行优先（row-major）存储的 float64 N 维张量。视频张量统一采用
// NDHWC 布局：(batch, time, height, width, channels)。
// =============================================================================
package tensor

import (
	"fmt"
	"strings"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"

	"github.com/BaSui01/videoflow/types"
)

// Tensor 稠密张量
type Tensor struct {
	shape []int
	data  []float64
}

// New 创建全零张量，维度必须为正
func New(shape ...int) *Tensor {
	n, err := numElements(shape)
	if err != nil {
		panic(err.Error())
	}
	return &Tensor{
		shape: append([]int(nil), shape...),
		data:  make([]float64, n),
	}
}

// FromData 使用给定数据创建张量（不拷贝）
func FromData(data []float64, shape ...int) (*Tensor, error) {
	n, err := numElements(shape)
	if err != nil {
		return nil, err
	}
	if len(data) != n {
		return nil, types.NewShapeError("data length %d does not match shape %v (%d elements)", len(data), shape, n)
	}
	return &Tensor{shape: append([]int(nil), shape...), data: data}, nil
}

// Scalar 创建 0 维语义的单元素张量
func Scalar(v float64) *Tensor {
	t := New(1)
	t.data[0] = v
	return t
}

func numElements(shape []int) (int, error) {
	if len(shape) == 0 {
		return 0, types.NewShapeError("tensor shape must have at least one dimension")
	}
	n := 1
	for i, d := range shape {
		if d <= 0 {
			return 0, types.NewShapeError("dimension %d of shape %v must be positive", i, shape)
		}
		n *= d
	}
	return n, nil
}

// =============================================================================
// 🔍 访问器
// =============================================================================

// Shape 返回形状副本
func (t *Tensor) Shape() []int {
	return append([]int(nil), t.shape...)
}

// Dim 返回第 i 维大小
func (t *Tensor) Dim(i int) int {
	return t.shape[i]
}

// Rank 返回维数
func (t *Tensor) Rank() int {
	return len(t.shape)
}

// Len 返回元素总数
func (t *Tensor) Len() int {
	return len(t.data)
}

// Data 返回底层数据（共享，不拷贝）
func (t *Tensor) Data() []float64 {
	return t.data
}

// HasShape 检查张量是否为指定形状
func (t *Tensor) HasShape(shape ...int) bool {
	if len(shape) != len(t.shape) {
		return false
	}
	for i := range shape {
		if shape[i] != t.shape[i] {
			return false
		}
	}
	return true
}

// SameShape 检查两个张量形状是否一致
func (t *Tensor) SameShape(o *Tensor) bool {
	return o != nil && t.HasShape(o.shape...)
}

// String 返回简短描述
func (t *Tensor) String() string {
	return fmt.Sprintf("Tensor%s", ShapeString(t.shape))
}

// ShapeString 格式化形状，例如 (1, 4, 4, 4, 3)
func ShapeString(shape []int) string {
	parts := make([]string, len(shape))
	for i, d := range shape {
		parts[i] = fmt.Sprintf("%d", d)
	}
	return "(" + strings.Join(parts, ", ") + ")"
}

func (t *Tensor) offset(idx []int) int {
	if len(idx) != len(t.shape) {
		panic(fmt.Sprintf("tensor: index rank %d does not match tensor rank %d", len(idx), len(t.shape)))
	}
	off := 0
	for i, v := range idx {
		if v < 0 || v >= t.shape[i] {
			panic(fmt.Sprintf("tensor: index %v out of range for shape %v", idx, t.shape))
		}
		off = off*t.shape[i] + v
	}
	return off
}

// At 返回指定位置的元素
func (t *Tensor) At(idx ...int) float64 {
	return t.data[t.offset(idx)]
}

// Set 设置指定位置的元素
func (t *Tensor) Set(v float64, idx ...int) {
	t.data[t.offset(idx)] = v
}

// =============================================================================
// 🔧 变换
// =============================================================================

// Clone 深拷贝
func (t *Tensor) Clone() *Tensor {
	return &Tensor{
		shape: append([]int(nil), t.shape...),
		data:  append([]float64(nil), t.data...),
	}
}

// Reshape 返回共享数据的新形状视图
func (t *Tensor) Reshape(shape ...int) (*Tensor, error) {
	n, err := numElements(shape)
	if err != nil {
		return nil, err
	}
	if n != len(t.data) {
		return nil, types.NewShapeError("cannot reshape %s into %s", ShapeString(t.shape), ShapeString(shape))
	}
	return &Tensor{shape: append([]int(nil), shape...), data: t.data}, nil
}

// Matrix 将二维张量包装为 gonum 矩阵（共享数据）
func (t *Tensor) Matrix() *mat.Dense {
	if len(t.shape) != 2 {
		panic(fmt.Sprintf("tensor: Matrix requires rank 2, got shape %v", t.shape))
	}
	return mat.NewDense(t.shape[0], t.shape[1], t.data)
}

// Zero 清零
func (t *Tensor) Zero() {
	for i := range t.data {
		t.data[i] = 0
	}
}

// CopyFrom 从同形状张量拷贝数据
func (t *Tensor) CopyFrom(src *Tensor) error {
	if !t.SameShape(src) {
		return types.NewShapeError("copy from %s into %s", ShapeString(src.shape), ShapeString(t.shape))
	}
	copy(t.data, src.data)
	return nil
}

// =============================================================================
// ➕ 逐元素运算（gonum/floats）
// =============================================================================

// Add 原地执行 t += o
func (t *Tensor) Add(o *Tensor) {
	floats.Add(t.data, o.data)
}

// AddScaled 原地执行 t += alpha * o
func (t *Tensor) AddScaled(alpha float64, o *Tensor) {
	floats.AddScaled(t.data, alpha, o.data)
}

// Scale 原地执行 t *= alpha
func (t *Tensor) Scale(alpha float64) {
	floats.Scale(alpha, t.data)
}

// SumSquares 返回所有元素的平方和
func (t *Tensor) SumSquares() float64 {
	return floats.Dot(t.data, t.data)
}

// Sum 返回所有元素之和
func (t *Tensor) Sum() float64 {
	return floats.Sum(t.data)
}

// Equal 逐元素完全相等
func Equal(a, b *Tensor) bool {
	return a.SameShape(b) && floats.Equal(a.data, b.data)
}

// AllClose 逐元素在容差内相等
func AllClose(a, b *Tensor, tol float64) bool {
	return a.SameShape(b) && floats.EqualApprox(a.data, b.data, tol)
}
