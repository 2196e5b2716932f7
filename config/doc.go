// Package config 提供 Streamform 的配置管理功能。
//
// 配置按 默认值 → YAML 文件 → STREAMFORM_ 前缀环境变量 的顺序叠加，
// Reloader 监听配置文件并在变更后重新加载，供日志级别等运行时可调项使用。
package config
