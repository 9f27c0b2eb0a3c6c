// Package config 加载服务配置。
//
// 优先级依次为默认值、YAML 文件、带 HATEAMS_ 前缀的环境变量。
// .env 文件与 OPENROUTER_API_KEY / TAVILY_API_KEY 用于补齐凭证。
package config
