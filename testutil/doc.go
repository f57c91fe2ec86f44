// Copyright (c) VideoFlow Authors.
// Licensed under the MIT License.

/*
Package testutil 提供 VideoFlow 测试的共享工具和辅助函数。

# 核心能力

  - 上下文辅助: TestContext / TestContextWithTimeout / CancelledContext，
    自动注册 Cleanup 防止泄漏
  - 断言工具: AssertTensorClose / AssertEventuallyTrue
  - 数据工具: RandomTensor / SnapshotParameters

# 子包

  - testutil/fixtures: 小尺寸模型与训练配置，单核上毫秒级完成一步训练
*/
package testutil
