// =============================================================================
// 🧪 测试辅助函数
// =============================================================================
// 提供通用的测试辅助函数和断言
//
// 使用方法:
//
//	ctx := testutil.TestContext(t)
//	testutil.AssertTensorClose(t, expected, actual, 1e-9)
//	testutil.AssertEventuallyTrue(t, func() bool { return condition }, 5*time.Second)
// =============================================================================
package testutil

import (
	"context"
	"math/rand"
	"testing"
	"time"

	"github.com/BaSui01/videoflow/tensor"
)

// =============================================================================
// 🎯 上下文辅助
// =============================================================================

// TestContext 返回带超时的测试上下文
func TestContext(t *testing.T) context.Context {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	t.Cleanup(cancel)
	return ctx
}

// TestContextWithTimeout 返回带自定义超时的测试上下文
func TestContextWithTimeout(t *testing.T, timeout time.Duration) context.Context {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	t.Cleanup(cancel)
	return ctx
}

// CancelledContext 返回已取消的上下文
func CancelledContext() context.Context {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	return ctx
}

// =============================================================================
// 🔍 断言辅助
// =============================================================================

// AssertTensorClose 断言两个张量形状相同且逐元素误差不超过 tol
func AssertTensorClose(t *testing.T, expected, actual *tensor.Tensor, tol float64) {
	t.Helper()

	if !expected.SameShape(actual) {
		t.Errorf("tensor shape mismatch: expected %s, got %s", expected, actual)
		return
	}
	if !tensor.AllClose(expected, actual, tol) {
		t.Errorf("tensor values differ by more than %g", tol)
	}
}

// AssertEventuallyTrue 断言条件最终为真
func AssertEventuallyTrue(t *testing.T, condition func() bool, timeout time.Duration) {
	t.Helper()

	if !WaitFor(condition, timeout) {
		t.Errorf("condition did not become true within %v", timeout)
	}
}

// =============================================================================
// ⏱️ 时间辅助
// =============================================================================

// WaitFor 等待条件满足或超时
func WaitFor(condition func() bool, timeout time.Duration) bool {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if condition() {
			return true
		}
		time.Sleep(10 * time.Millisecond)
	}
	return false
}

// =============================================================================
// 🔧 测试数据辅助
// =============================================================================

// RandomTensor 返回以 seed 填充 [-1, 1) 均匀噪声的张量
func RandomTensor(seed int64, shape ...int) *tensor.Tensor {
	x := tensor.New(shape...)
	x.FillUniform(rand.New(rand.NewSource(seed)), -1, 1)
	return x
}

// SnapshotParameters 复制一组张量的当前值
func SnapshotParameters(ts []*tensor.Tensor) []*tensor.Tensor {
	out := make([]*tensor.Tensor, len(ts))
	for i, t := range ts {
		out[i] = t.Clone()
	}
	return out
}
