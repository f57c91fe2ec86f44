// Copyright (c) VideoFlow Authors.
// Licensed under the MIT License.

/*
包 server 提供训练期间指标端点的 HTTP 服务器生命周期管理，
支持非阻塞启动与优雅关闭。

# 概述

Manager 封装 net/http.Server，管理监听、后台服务与关闭。
NewMetricsHandler 组装 /metrics（promhttp）与 /healthz 两个端点，
并通过 RequestRecorder 记录每个请求的状态码与耗时。

# 主要能力

  - 非阻塞启动：Start 在后台 goroutine 中运行服务，Addr 返回实际绑定地址。
  - 优雅关闭：Shutdown 在配置的超时内完成请求排空与连接释放，可重复调用。
  - 异常上报：后台服务异常退出时 Err() 返回该错误，训练会话关闭时一并报告。
  - 健康检查：/healthz 由 HealthFunc 决定返回 200 或 503。
*/
package server
