// Copyright (c) VideoFlow Authors.
// Licensed under the MIT License.

// Package telemetry 封装 OpenTelemetry SDK 初始化逻辑，
// 为 VideoFlow 提供集中式的 TracerProvider 和 MeterProvider 配置，
// 以及训练循环使用的 span 与 OTel 指标（Instruments）。
// 当遥测功能禁用时，使用 noop 实现，不连接任何外部服务。
package telemetry
