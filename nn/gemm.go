package nn

import (
	"gonum.org/v1/gonum/blas"
	"gonum.org/v1/gonum/blas/blas64"
)

// general 将行优先切片包装为 BLAS 通用矩阵
func general(rows, cols int, data []float64) blas64.General {
	return blas64.General{Rows: rows, Cols: cols, Stride: cols, Data: data}
}

// gemm 计算 c = alpha * op(a) * op(b) + beta * c
func gemm(transA, transB bool, alpha float64, a, b blas64.General, beta float64, c blas64.General) {
	ta, tb := blas.NoTrans, blas.NoTrans
	if transA {
		ta = blas.Trans
	}
	if transB {
		tb = blas.Trans
	}
	blas64.Gemm(ta, tb, alpha, a, b, beta, c)
}

// addRowVector 将长度为 cols 的向量加到矩阵的每一行
func addRowVector(data []float64, rows, cols int, v []float64) {
	for r := 0; r < rows; r++ {
		row := data[r*cols : (r+1)*cols]
		for j := range row {
			row[j] += v[j]
		}
	}
}

// accumulateColumnSums 将矩阵各列之和累加到 dst
func accumulateColumnSums(dst, data []float64, rows, cols int) {
	for r := 0; r < rows; r++ {
		row := data[r*cols : (r+1)*cols]
		for j, v := range row {
			dst[j] += v
		}
	}
}
