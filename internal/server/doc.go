// 版权所有 2024 AgentChat Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
包 server 管理暴露 Prometheus 指标的 HTTP 服务器生命周期。

Manager 封装 net/http.Server，提供非阻塞 Start、带超时的 Shutdown
与异步错误通道。NewMetricsServer 挂载指标路径与 /healthz。
信号处理由调用方负责。
*/
package server
