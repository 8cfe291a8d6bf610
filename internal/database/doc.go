// 版权所有 2024 AgentChat Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
包 database 管理 SQL 历史 Sink 背后的 GORM 连接。

PoolManager 按 PoolConfig 设置连接池参数，可选地在后台定时探活。
Transact 在事务中写入历史记录，遇到写冲突时按指数退避重试：

  - sqlite：SQLITE_BUSY / SQLITE_LOCKED（"database is locked" 等）
  - postgres：SQLSTATE 40001、40P01、55P03
  - driver.ErrBadConn

其他错误（约束冲突、语法错误）不重试。
*/
package database
