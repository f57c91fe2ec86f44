// Copyright (c) VideoFlow Authors.
// Licensed under the MIT License.

/*
Package pool 提供数值内核使用的对象池。

Pool[T] 是带命中统计的泛型 sync.Pool 封装；Float64Buffers 在其上按长度
分发清零的 []float64 临时缓冲区，Float64 是卷积 im2col 共享的实例。
*/
package pool
