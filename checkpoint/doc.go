// Copyright (c) VideoFlow Authors.
// Licensed under the MIT License.

/*
Package checkpoint 提供模型参数快照的保存与恢复。

# 概述

Checkpoint 记录共享 ParameterSet 中每个变量的形状与数值，以及全局步数、
轮次和创建时间。FromParameters 复制当前值生成快照，Restore 在校验全部
变量名与形状之后才把数值写回，校验失败时参数保持不变。

# 存储后端

  - MemoryStore: 进程内存储，用于测试与短训练
  - FileStore: 以保存路径为目录，JSON 文件 + checkpoint.json 索引，原子写入
  - RedisStore: go-redis 客户端，有序集合记录保存顺序

所有后端按 max_to_keep 保留最新的若干检查点。读写失败返回
CHECKPOINT_IO，路径下没有检查点时返回 CHECKPOINT_NOT_FOUND。
*/
package checkpoint
