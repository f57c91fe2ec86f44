// Copyright (c) VideoFlow Authors.
// Licensed under the MIT License.

/*
Package tensor 提供 videoflow 使用的稠密 float64 张量。

# 概述

Tensor 以行优先方式存储数据，逐元素运算委托给 gonum/floats，二维视图
通过 Matrix() 直接包装为 gonum/mat.Dense 以便进行矩阵乘法。

# 主要能力

  - 构造：New / FromData / Scalar / Clone / Reshape
  - 结构运算：Split（沿轴等分）、Concat、Permute、InversePermutation
  - 初始化：FillTruncatedNormal / FillUniform / Fill
  - 比较：Equal / AllClose
*/
package tensor
