/*
Package mailbox 提供 Agent 使用的有序收件队列。

# 概述

Mailbox 是多生产者、单消费者的 FIFO 队列。默认无界，Send 永不阻塞；
通过 WithCapacity 可设置上限，此时 Send 在满时返回 ErrMailboxFull，
SendContext 则等待可用容量。

# 生命周期

  - Close 幂等，关闭后 Send 返回 ErrMailboxClosed
  - 已入队的消息在关闭后仍可被 Receive 读出
  - 关闭且排空后 Receive 每次都立即返回 ok=false，不会阻塞

# 单消费者

只有持有 *Mailbox 的所有者可以调用 Receive。其他组件只能拿到
Sender 句柄，从构造上避免并发消费。
*/
package mailbox
