package tensor

import (
	"github.com/BaSui01/videoflow/types"
)

// Strides 返回行优先布局下每一维的步长
func Strides(shape []int) []int {
	strides := make([]int, len(shape))
	s := 1
	for i := len(shape) - 1; i >= 0; i-- {
		strides[i] = s
		s *= shape[i]
	}
	return strides
}

// Split 沿 axis 将张量等分为 n 段，按顺序返回拷贝。
// axis 的长度必须能被 n 整除。
func Split(t *Tensor, axis, n int) ([]*Tensor, error) {
	if axis < 0 || axis >= t.Rank() {
		return nil, types.NewShapeError("split axis %d out of range for shape %s", axis, ShapeString(t.shape))
	}
	size := t.shape[axis]
	if n <= 0 || size%n != 0 {
		return nil, types.NewShapeError("axis %d of length %d cannot be split into %d equal parts", axis, size, n)
	}
	chunk := size / n

	outer := 1
	for _, d := range t.shape[:axis] {
		outer *= d
	}
	inner := 1
	for _, d := range t.shape[axis+1:] {
		inner *= d
	}

	partShape := t.Shape()
	partShape[axis] = chunk
	parts := make([]*Tensor, n)
	block := chunk * inner
	for p := 0; p < n; p++ {
		part := New(partShape...)
		for o := 0; o < outer; o++ {
			src := o*size*inner + p*block
			copy(part.data[o*block:(o+1)*block], t.data[src:src+block])
		}
		parts[p] = part
	}
	return parts, nil
}

// Concat 沿 axis 按顺序拼接张量，除 axis 外各维必须一致
func Concat(ts []*Tensor, axis int) (*Tensor, error) {
	if len(ts) == 0 {
		return nil, types.NewShapeError("concat requires at least one tensor")
	}
	first := ts[0]
	if axis < 0 || axis >= first.Rank() {
		return nil, types.NewShapeError("concat axis %d out of range for shape %s", axis, ShapeString(first.shape))
	}

	outShape := first.Shape()
	outShape[axis] = 0
	for i, t := range ts {
		if t.Rank() != first.Rank() {
			return nil, types.NewShapeError("concat tensor %d has rank %d, expected %d", i, t.Rank(), first.Rank())
		}
		for d := range t.shape {
			if d != axis && t.shape[d] != first.shape[d] {
				return nil, types.NewShapeError("concat tensor %d has shape %s, incompatible with %s",
					i, ShapeString(t.shape), ShapeString(first.shape))
			}
		}
		outShape[axis] += t.shape[axis]
	}

	outer := 1
	for _, d := range first.shape[:axis] {
		outer *= d
	}
	inner := 1
	for _, d := range first.shape[axis+1:] {
		inner *= d
	}

	out := New(outShape...)
	rowLen := outShape[axis] * inner
	offset := 0
	for _, t := range ts {
		block := t.shape[axis] * inner
		for o := 0; o < outer; o++ {
			copy(out.data[o*rowLen+offset:o*rowLen+offset+block], t.data[o*block:(o+1)*block])
		}
		offset += block
	}
	return out, nil
}

// Permute 按 perm 重排维度，返回新张量：out.shape[i] = t.shape[perm[i]]
func Permute(t *Tensor, perm []int) (*Tensor, error) {
	r := t.Rank()
	if len(perm) != r {
		return nil, types.NewShapeError("permutation %v does not match rank %d", perm, r)
	}
	seen := make([]bool, r)
	for _, p := range perm {
		if p < 0 || p >= r || seen[p] {
			return nil, types.NewShapeError("invalid permutation %v", perm)
		}
		seen[p] = true
	}

	outShape := make([]int, r)
	for i, p := range perm {
		outShape[i] = t.shape[p]
	}
	inStrides := Strides(t.shape)
	srcStrides := make([]int, r)
	for i, p := range perm {
		srcStrides[i] = inStrides[p]
	}

	out := New(outShape...)
	idx := make([]int, r)
	for o := range out.data {
		off := 0
		for i := 0; i < r; i++ {
			off += idx[i] * srcStrides[i]
		}
		out.data[o] = t.data[off]
		for i := r - 1; i >= 0; i-- {
			idx[i]++
			if idx[i] < outShape[i] {
				break
			}
			idx[i] = 0
		}
	}
	return out, nil
}

// InversePermutation 返回 perm 的逆排列
func InversePermutation(perm []int) []int {
	inv := make([]int, len(perm))
	for i, p := range perm {
		inv[p] = i
	}
	return inv
}
