// Copyright (c) VideoFlow Authors.
// Licensed under the MIT License.

// Package config 提供 VideoFlow 的配置管理功能。
//
// 配置按 默认值 → YAML 文件 → 环境变量 的顺序加载，
// 加载完成后由 Validate 统一校验构造期约束。
package config
