// 版权所有 2024 AgentChat Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

// Package telemetry 封装 OpenTelemetry SDK 初始化，为群聊运行时提供
// TracerProvider 与 MeterProvider。禁用时保持 noop，不连接外部服务。
package telemetry
