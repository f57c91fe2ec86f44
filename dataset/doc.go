// Copyright (c) VideoFlow Authors.
// Licensed under the MIT License.

/*
Package dataset 定义训练数据输入边界并提供两种数据源。

# 数据源

  - Synthetic：按种子生成的随机视频，每轮可复现，用于冒烟训练与测试
  - FrameDirectory：从 <root>/<class>/<video>/ 下的 PNG/JPEG 帧读取视频，
    使用 nfnt/resize 双线性缩放，批内视频并行解码

所有数据源都实现 Input 接口，批次形状为 (batch, num_steps, height, width, channels)。
*/
package dataset
