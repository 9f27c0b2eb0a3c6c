/*
包 database 提供基于 GORM 的数据库打开与连接池管理。

# 概述

Open 按驱动名（sqlite/postgres/mysql）构造 gorm.Dialector，sqlite 使用
github.com/glebarez/sqlite 纯 Go 实现。PoolManager 负责连接池参数、
后台健康检查与关闭，并在每次探活后向 StatsObserver 上报连接数。

# 主要能力

  - 连接池调优：MaxIdleConns/MaxOpenConns/ConnMaxLifetime，Validate 合并所有错误。
  - 健康检查：后台定时 PingContext，Close 后退出。
  - 事务管理：WithTransaction 单次执行，WithTransactionRetry 对死锁、
    序列化失败与连接类错误做指数退避重试。
*/
package database
