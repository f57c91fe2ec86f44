// Copyright (c) VideoFlow Authors.
// Licensed under the MIT License.

/*
Package nn 提供 videoflow 模型所需的神经网络层与训练原语。

# 概述

所有层都以显式前向/反向的方式实现：前向返回输出及反向所需的中间结果，
反向累加参数梯度并返回输入梯度。矩阵乘法委托给 gonum BLAS，
三维卷积采用 im2col 分块展开，批内样本通过 errgroup 并行。

# 核心类型

  - ParameterSet / Parameter：按名称注册的可训练参数，单模型单实例
  - Penalties：显式传递的 L2 权重衰减累加器
  - Conv3D / MaxPool3D / Dense / LSTMCell：前向与反向
  - SGD：带全局范数裁剪的梯度下降
*/
package nn
