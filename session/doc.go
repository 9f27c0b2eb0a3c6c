// Package session 管理会话生命周期与查询流水线.
//
// Store 为每个会话创建独立的临时工作目录并编译一棵新的三层团队；
// 昂贵的共享依赖（模型 Provider、搜索后端）成功初始化一次后复用, 失败会在下次创建时重试. Pipeline 把一次
// 查询的运行转换为有序的事件流，并保证流以恰好一个 end 事件结束.
package session
