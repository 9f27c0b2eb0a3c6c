/*
Package migration 管理运行历史的表结构, 基于 golang-migrate.

各方言的版本化 SQL 通过 embed.FS 内嵌在 migrations/<dialect>/ 下,
经 iofs 源驱动交给 golang-migrate 执行. 支持 sqlite、postgres 与
mysql, 与 internal/database 的驱动名一致.

  - [New] 打开独立连接并构造 [Migrator], Close 时一并释放.
  - [Migrator.Up] 应用全部待执行版本, 无变更时不报错.
  - [Migrator.Down] 回滚最近一个版本.
  - [Run] 供启动流程调用: New + Up + Close.

run_records 表只由这里的 SQL 定义, history 包不再做自动迁移.
*/
package migration
