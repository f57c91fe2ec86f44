// Copyright (c) VideoFlow Authors.
// Licensed under the MIT License.

// Package history 把训练过程的摘要写入关系数据库：每次运行一条
// TrainingRun，每轮一条 EpochSummary，按全局步记录 "Training Loss"
// 与 "Learning Rate" 等 ScalarSummary。未启用数据库时使用 NopRecorder。
package history
