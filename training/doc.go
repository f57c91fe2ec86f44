// Copyright (c) VideoFlow Authors.
// Licensed under the MIT License.

/*
Package training 驱动视频模型的训练循环。

状态机:

	idle → epoch_running → step_running* → epoch_done → (epoch_running | finished)

任何非终止状态都可以转到 failed。每轮开始前按
LearningRate(base, decay, epoch, max_epoch) 计算学习率并下发给模型，
RunEpoch 返回 exp(总损失 / 总时间步)。

Session 汇集检查点存储、历史记录、Prometheus 指标、指标 HTTP 服务与
OpenTelemetry provider；Train 是命令行使用的入口。
*/
package training
