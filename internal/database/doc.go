// Copyright (c) VideoFlow Authors.
// Licensed under the MIT License.

/*
包 database 提供基于 GORM 的数据库打开与连接池管理，供训练历史记录使用，
支持健康检查、统计上报与事务重试。

# 概述

Open 按 driver（postgres、mysql、sqlite）选择 GORM 方言并打开数据库，
sqlite 使用纯 Go 的 glebarez 驱动并限制为单连接。PoolManager 封装
GORM 与 database/sql 的连接池配置，后台健康检查定时探活，
并通过 StatsRecorder 上报打开与空闲连接数。

# 核心类型

  - PoolManager：连接池管理器，提供 DB()、Ping()、Stats()、Close() 等生命周期方法。
  - PoolConfig：连接池配置，包含最大空闲/打开连接数、生命周期、健康检查间隔与重试退避。
  - ErrPoolClosed：关闭后的调用返回此错误，不参与重试。
  - TransactionFunc：事务回调函数类型。

# 主要能力

  - 事务管理：WithTransaction 提供单次事务执行，
    WithTransactionRetry 在死锁、序列化冲突、sqlite 忙与断连时按指数退避重试。
  - 统计采集：ReportStats 把打开与空闲连接数写入指标收集器。
*/
package database
