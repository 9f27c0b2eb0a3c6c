/*
包 cache 提供基于 Redis 的缓存管理能力，为网络搜索结果缓存提供后端。

# 概述

Manager 封装 go-redis 客户端，负责连接建立、后台健康检查与关闭。
所有键统一加上 KeyPrefix，多个部署可共用一个 Redis 实例。
Manager 实现 tools.JSONCache，可直接交给 tools.NewCachedSearchProvider。

# 主要能力

  - 键值读写：字符串与 JSON 两种模式，ttl 为 0 时使用 DefaultTTL。
  - 命中统计：通过 WithObserver 上报命中/未命中，按键的首段（如 "search"）分类。
  - 健康检查：后台定时 Ping，Close 后退出。
  - 错误语义：ErrCacheMiss 与 ErrClosed 哨兵错误。
*/
package cache
