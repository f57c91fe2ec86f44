// Copyright (c) VideoFlow Authors.
// Licensed under the MIT License.

/*
Package types 提供 videoflow 的全局共享类型定义。

# 概述

types 是最底层的公共包，不依赖任何内部包，为 tensor、nn、c3d、bilstm、
model、training 等上层模块提供统一的错误契约与上下文传播工具，以避免循环依赖。

# 核心类型

  - Error / ErrorCode：结构化错误体系（配置错误、形状错误、检查点 I/O 错误等）

# 主要能力

  - 错误工具链：AsError / GetErrorCode / IsErrorCode / IsConfigError
  - 常用错误构造：NewConfigError / NewShapeError / NewCheckpointError
  - Context 传播：WithTraceID / WithRunID / WithEpoch
*/
package types
