// Copyright (c) VideoFlow Authors.
// Licensed under the MIT License.

/*
Package main 提供 VideoFlow 训练程序入口。

# 概述

cmd/videoflow 读取 YAML 配置（可被 VIDEOFLOW_ 前缀的环境变量覆盖），
按配置创建数据源、模型与训练会话并运行全部轮次。任何致命错误都会
输出诊断信息并以退出码 1 结束。

# 主要能力

  - 子命令：train、version、help
  - 结构化日志（zap），级别与格式来自 log 配置
  - SIGINT / SIGTERM 取消训练上下文，会话资源在退出前关闭
  - 构建注入：Version、BuildTime、GitCommit 通过 ldflags 设置
*/
package main
