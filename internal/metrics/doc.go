// Copyright (c) VideoFlow Authors.
// Licensed under the MIT License.

/*
包 metrics 提供基于 Prometheus 的训练指标采集能力，覆盖
训练步、检查点、HTTP 与数据库四个维度。

# 概述

本包通过 Collector 统一注册和记录 Prometheus 指标，使用 promauto
自动注册机制，避免手动管理 Registry。所有指标按 namespace 隔离，
训练类指标以 mode（train/eval）分组。

# 主要能力

  - 训练指标：步数、步耗时、最近一步代价与准确率、轮内困惑度与
    每秒视频数、学习率、梯度范数分布、状态转换计数。
  - 检查点指标：保存次数（按 success/error 分组）与保存耗时。
  - HTTP 指标：/metrics 与 /healthz 的请求总数与耗时。
  - 数据库指标：活跃/空闲连接数 Gauge、查询耗时 Histogram。
*/
package metrics
