package nn

import (
	"math"

	"github.com/BaSui01/videoflow/tensor"
	"github.com/BaSui01/videoflow/types"
)

// Softmax 按行计算 softmax，logits 形状 (n, classes)
func Softmax(logits *tensor.Tensor) *tensor.Tensor {
	n, c := logits.Dim(0), logits.Dim(1)
	probs := tensor.New(n, c)
	ld, pd := logits.Data(), probs.Data()
	for r := 0; r < n; r++ {
		row := ld[r*c : (r+1)*c]
		out := pd[r*c : (r+1)*c]
		m := math.Inf(-1)
		for _, v := range row {
			m = math.Max(m, v)
		}
		sum := 0.0
		for j, v := range row {
			out[j] = math.Exp(v - m)
			sum += out[j]
		}
		for j := range out {
			out[j] /= sum
		}
	}
	return probs
}

// SoftmaxCrossEntropy 返回批平均交叉熵与 softmax 概率
func SoftmaxCrossEntropy(logits *tensor.Tensor, labels []int) (float64, *tensor.Tensor, error) {
	if logits.Rank() != 2 {
		return 0, nil, types.NewShapeError("logits must be rank 2, got %s", logits)
	}
	n, c := logits.Dim(0), logits.Dim(1)
	if len(labels) != n {
		return 0, nil, types.NewShapeError("got %d labels for %d rows of logits", len(labels), n)
	}

	ld := logits.Data()
	loss := 0.0
	for r, label := range labels {
		if label < 0 || label >= c {
			return 0, nil, types.NewShapeError("label %d out of range [0, %d)", label, c)
		}
		row := ld[r*c : (r+1)*c]
		m := math.Inf(-1)
		for _, v := range row {
			m = math.Max(m, v)
		}
		sum := 0.0
		for _, v := range row {
			sum += math.Exp(v - m)
		}
		loss += m + math.Log(sum) - row[label]
	}
	return loss / float64(n), Softmax(logits), nil
}

// SoftmaxCrossEntropyGrad 返回批平均交叉熵对 logits 的梯度：(p - onehot) / n
func SoftmaxCrossEntropyGrad(probs *tensor.Tensor, labels []int) *tensor.Tensor {
	n, c := probs.Dim(0), probs.Dim(1)
	grad := probs.Clone()
	gd := grad.Data()
	for r, label := range labels {
		gd[r*c+label] -= 1
	}
	grad.Scale(1 / float64(n))
	return grad
}

// ArgmaxRows 返回每行最大值的下标（并列取最小下标）
func ArgmaxRows(x *tensor.Tensor) []int {
	n, c := x.Dim(0), x.Dim(1)
	out := make([]int, n)
	xd := x.Data()
	for r := 0; r < n; r++ {
		best := 0
		for j := 1; j < c; j++ {
			if xd[r*c+j] > xd[r*c+best] {
				best = j
			}
		}
		out[r] = best
	}
	return out
}

// Accuracy 返回预测与标签一致的比例
func Accuracy(predictions, labels []int) float64 {
	if len(labels) == 0 {
		return 0
	}
	correct := 0
	for i, p := range predictions {
		if p == labels[i] {
			correct++
		}
	}
	return float64(correct) / float64(len(labels))
}
