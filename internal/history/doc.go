// Package history 持久化查询运行摘要. Repository 实现 session.Recorder.
package history
